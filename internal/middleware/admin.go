package middleware

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// AdminMiddleware protects admin endpoints. A request passes with either an
// admin JWT or an X-API-Key matching the configured bcrypt hash.
type AdminMiddleware struct {
	keyHash []byte
	auth    *AuthMiddleware
}

// NewAdminMiddleware creates the admin gate. An empty keyHash disables API key
// access; auth may be nil to disable tokens.
func NewAdminMiddleware(keyHash string, auth *AuthMiddleware) *AdminMiddleware {
	am := &AdminMiddleware{auth: auth}
	if keyHash != "" {
		am.keyHash = []byte(keyHash)
	}
	return am
}

// RequireAdminAuth middleware validates admin credentials.
func (am *AdminMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if key := c.GetHeader("X-API-Key"); key != "" {
			if am.ValidateAdminKey(key) {
				c.Set(ContextSubject, "api-key")
				c.Set(ContextRole, RoleAdmin)
				c.Next()
				return
			}
			abortUnauthorized(c, "Invalid admin API key")
			return
		}

		if am.auth == nil {
			abortUnauthorized(c, "Valid admin API key required for this endpoint")
			return
		}
		am.auth.RequireAuth(RoleAdmin)(c)
	}
}

// ValidateAdminKey compares key with the configured hash.
func (am *AdminMiddleware) ValidateAdminKey(key string) bool {
	if am.keyHash == nil || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(am.keyHash, []byte(key)) == nil
}

// Enabled reports whether API key access is configured.
func (am *AdminMiddleware) Enabled() bool {
	return am.keyHash != nil
}
