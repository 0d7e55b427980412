package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/nbrons/perp-prophet/internal/models"
)

var startTime = time.Now()

// HealthChecker is implemented by *database.PostgresDB and *database.RedisClient.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CollectorStatus is the part of *services.CollectorService health reports on.
type CollectorStatus interface {
	IsRunning() bool
	LastReport() (*models.OpportunityReport, error)
}

// SourceStatus reports upstream circuit breakers. *market.Client implements it.
type SourceStatus interface {
	BreakerStates() map[string]string
}

type HealthHandler struct {
	db        HealthChecker
	redis     HealthChecker
	collector CollectorStatus
	sources   SourceStatus
	version   string
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Collector *CollectorHealth  `json:"collector,omitempty"`
	Sources   map[string]string `json:"sources,omitempty"`
	System    *SystemHealth     `json:"system,omitempty"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
}

type CollectorHealth struct {
	Running        bool       `json:"running"`
	LastCollection *time.Time `json:"last_collection,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
}

type SystemHealth struct {
	MemoryUsedPct float64 `json:"memory_used_pct"`
	MemoryTotalMB uint64  `json:"memory_total_mb"`
}

// NewHealthHandler creates the handler. Nil dependencies are reported as disabled.
func NewHealthHandler(db, redis HealthChecker, collector CollectorStatus, version string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		redis:     redis,
		collector: collector,
		version:   version,
	}
}

// WithSources adds the upstream breaker states to the health report. An open
// breaker does not make the service unhealthy.
func (h *HealthHandler) WithSources(sources SourceStatus) *HealthHandler {
	h.sources = sources
	return h
}

// HealthCheck reports every dependency. Any unhealthy dependency turns the
// response into a 503.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	services := map[string]string{
		"database": checkDependency(ctx, h.db),
		"redis":    checkDependency(ctx, h.redis),
	}

	overallStatus := "healthy"
	for _, status := range services {
		if status != "healthy" && status != "disabled" {
			overallStatus = "unhealthy"
			break
		}
	}

	response := HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Services:  services,
		Version:   h.version,
		Uptime:    time.Since(startTime).String(),
	}

	if h.collector != nil {
		collector := &CollectorHealth{Running: h.collector.IsRunning()}
		report, err := h.collector.LastReport()
		if report != nil {
			collector.LastCollection = &report.GeneratedAt
		}
		if err != nil {
			collector.LastError = err.Error()
		}
		response.Collector = collector
	}

	if h.sources != nil {
		response.Sources = h.sources.BreakerStates()
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		response.System = &SystemHealth{
			MemoryUsedPct: vm.UsedPercent,
			MemoryTotalMB: vm.Total / 1024 / 1024,
		}
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

// ReadinessCheck passes once the configured stores answer.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	services := map[string]string{}
	ready := true
	for name, dep := range map[string]HealthChecker{"database": h.db, "redis": h.redis} {
		if dep == nil {
			continue
		}
		if err := dep.HealthCheck(ctx); err != nil {
			services[name] = "not ready"
			ready = false
			continue
		}
		services[name] = "ready"
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, gin.H{"ready": ready, "services": services})
}

// LivenessCheck for container restarts
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func checkDependency(ctx context.Context, dep HealthChecker) string {
	if dep == nil {
		return "disabled"
	}
	if err := dep.HealthCheck(ctx); err != nil {
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}
