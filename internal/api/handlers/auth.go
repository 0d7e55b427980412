package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nbrons/perp-prophet/internal/middleware"
	"github.com/nbrons/perp-prophet/internal/utils"
)

// AuthHandler exchanges the admin API key for a short lived JWT.
type AuthHandler struct {
	auth   *middleware.AuthMiddleware
	admin  *middleware.AdminMiddleware
	expiry time.Duration
}

type TokenRequest struct {
	APIKey  string `json:"api_key" binding:"required"`
	Subject string `json:"subject"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewAuthHandler(auth *middleware.AuthMiddleware, admin *middleware.AdminMiddleware, expiry time.Duration) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		admin:  admin,
		expiry: expiry,
	}
}

// IssueToken returns an admin token when the API key matches.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	if !h.admin.Enabled() {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "admin API key not configured"})
		return
	}

	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, utils.NewValidationErrorf("body", "api_key is required: %v", err))
		return
	}
	if !h.admin.ValidateAdminKey(req.APIKey) {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid API key"})
		return
	}

	subject := req.Subject
	if subject == "" {
		subject = "admin"
	}
	token, expiresAt, err := h.auth.GenerateToken(subject, middleware.RoleAdmin, h.expiry)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, TokenResponse{Token: token, TokenType: "Bearer", ExpiresAt: expiresAt})
}
