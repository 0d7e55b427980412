package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key"

func protectedRouter(am *AuthMiddleware, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", am.RequireAuth(role), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"subject": c.GetString(ContextSubject),
			"role":    c.GetString(ContextRole),
		})
	})
	return router
}

func request(router http.Handler, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_GenerateAndValidate(t *testing.T) {
	am := NewAuthMiddleware(testSecret, "perp-prophet")

	token, expiresAt, err := am.GenerateToken("ops", RoleAdmin, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := am.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, "perp-prophet", claims.Issuer)

	_, _, err = am.GenerateToken("", RoleAdmin, time.Hour)
	assert.Error(t, err)
}

func TestAuthMiddleware_ValidateTokenRejects(t *testing.T) {
	am := NewAuthMiddleware(testSecret, "perp-prophet")

	t.Run("wrong secret", func(t *testing.T) {
		token, _, err := NewAuthMiddleware("other", "perp-prophet").GenerateToken("ops", RoleAdmin, time.Hour)
		require.NoError(t, err)
		_, err = am.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		token, _, err := am.GenerateToken("ops", RoleAdmin, -time.Hour)
		require.NoError(t, err)
		_, err = am.ValidateToken(token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("none algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, &JWTClaims{Role: RoleAdmin})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = am.ValidateToken(signed)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := am.ValidateToken("not.a.token")
		assert.Error(t, err)
	})
}

func TestAuthMiddleware_RequireAuth(t *testing.T) {
	am := NewAuthMiddleware(testSecret, "perp-prophet")
	router := protectedRouter(am, RoleAdmin)

	valid, _, err := am.GenerateToken("ops", RoleAdmin, time.Hour)
	require.NoError(t, err)
	expired, _, err := am.GenerateToken("ops", RoleAdmin, -time.Minute)
	require.NoError(t, err)
	viewer, _, err := am.GenerateToken("viewer", "viewer", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantBody string
	}{
		{name: "valid token", header: "Bearer " + valid, wantCode: http.StatusOK, wantBody: `"subject":"ops"`},
		{name: "lowercase scheme", header: "bearer " + valid, wantCode: http.StatusOK},
		{name: "missing header", header: "", wantCode: http.StatusUnauthorized, wantBody: "Authorization header required"},
		{name: "wrong scheme", header: "Basic " + valid, wantCode: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer ", wantCode: http.StatusUnauthorized},
		{name: "expired token", header: "Bearer " + expired, wantCode: http.StatusUnauthorized, wantBody: "Token expired"},
		{name: "invalid token", header: "Bearer abc.def.ghi", wantCode: http.StatusUnauthorized, wantBody: "Invalid token"},
		{name: "wrong role", header: "Bearer " + viewer, wantCode: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headerName := "Authorization"
			if tt.header == "" {
				headerName = ""
			}
			w := request(router, headerName, tt.header)
			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestAuthMiddleware_RequireAuthAnyRole(t *testing.T) {
	am := NewAuthMiddleware(testSecret, "perp-prophet")
	token, _, err := am.GenerateToken("viewer", "viewer", time.Hour)
	require.NoError(t, err)

	w := request(protectedRouter(am, ""), "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"viewer"`)
}
