package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nbrons/perp-prophet/internal/cache"
	"github.com/nbrons/perp-prophet/internal/services"
)

// AdminHandler exposes operational actions behind the admin gate.
type AdminHandler struct {
	collector *services.CollectorService
	alerts    *services.AlertService
	cache     *cache.RedisSnapshotCache
}

// NewAdminHandler creates the handler. alerts and snapshotCache may be nil.
func NewAdminHandler(collector *services.CollectorService, alerts *services.AlertService, snapshotCache *cache.RedisSnapshotCache) *AdminHandler {
	return &AdminHandler{
		collector: collector,
		alerts:    alerts,
		cache:     snapshotCache,
	}
}

// TriggerCollection runs one collection immediately.
func (h *AdminHandler) TriggerCollection(c *gin.Context) {
	report, err := h.collector.CollectOnce(c.Request.Context())
	if err != nil && report == nil {
		respondError(c, err)
		return
	}

	response := gin.H{"report": report, "stored": err == nil}
	if err != nil {
		_ = c.Error(err)
		response["warning"] = err.Error()
	}
	c.JSON(http.StatusOK, response)
}

// SendTestAlert delivers a test notification to every configured chat.
func (h *AdminHandler) SendTestAlert(c *gin.Context) {
	if h.alerts == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "alerts disabled"})
		return
	}

	alert, err := h.alerts.SendTest(c.Request.Context())
	if errors.Is(err, services.ErrNotificationsDisabled) {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "notifications not configured", Message: err.Error()})
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "failed to deliver alert", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, alert)
}

// CacheStats reports snapshot cache hits and misses.
func (h *AdminHandler) CacheStats(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "cache disabled"})
		return
	}
	c.JSON(http.StatusOK, h.cache.GetStats())
}

// InvalidateCache drops the cached snapshot so the next request refetches.
func (h *AdminHandler) InvalidateCache(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "cache disabled"})
		return
	}
	if err := h.cache.Invalidate(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
