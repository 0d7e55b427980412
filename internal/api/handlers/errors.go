package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nbrons/perp-prophet/internal/services"
	"github.com/nbrons/perp-prophet/internal/utils"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// respondError maps service errors to status codes.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	switch {
	case utils.IsValidationError(err):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Message: err.Error()})
	case errors.Is(err, services.ErrAllSourcesUnavailable):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "rate sources unavailable", Message: err.Error()})
	case errors.Is(err, services.ErrHistoryUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "history unavailable", Message: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: "request timed out"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
