package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func adminRouter(am *AdminMiddleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", am.RequireAdminAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "admin access granted", "subject": c.GetString(ContextSubject)})
	})
	return router
}

func TestAdminMiddleware_RequireAdminAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("test-admin-key"), bcrypt.MinCost)
	require.NoError(t, err)

	auth := NewAuthMiddleware(testSecret, "perp-prophet")
	am := NewAdminMiddleware(string(hash), auth)
	router := adminRouter(am)
	assert.True(t, am.Enabled())

	t.Run("valid API key", func(t *testing.T) {
		w := request(router, "X-API-Key", "test-admin-key")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"subject":"api-key"`)
	})

	t.Run("invalid API key", func(t *testing.T) {
		w := request(router, "X-API-Key", "wrong-key")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid admin API key")
	})

	t.Run("admin token", func(t *testing.T) {
		token, _, err := auth.GenerateToken("ops", RoleAdmin, time.Hour)
		require.NoError(t, err)
		w := request(router, "Authorization", "Bearer "+token)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"subject":"ops"`)
	})

	t.Run("no credentials", func(t *testing.T) {
		w := request(router, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAdminMiddleware_WithoutTokens(t *testing.T) {
	router := adminRouter(NewAdminMiddleware("", nil))

	w := request(router, "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Valid admin API key required")

	w = request(router, "X-API-Key", "anything")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminMiddleware_ValidateAdminKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("k"), bcrypt.MinCost)
	require.NoError(t, err)

	am := NewAdminMiddleware(string(hash), nil)
	assert.True(t, am.ValidateAdminKey("k"))
	assert.False(t, am.ValidateAdminKey(""))
	assert.False(t, am.ValidateAdminKey("K"))
	assert.False(t, NewAdminMiddleware("", nil).ValidateAdminKey("k"))
}
