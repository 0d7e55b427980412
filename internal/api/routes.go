package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/nbrons/perp-prophet/internal/api/handlers"
	"github.com/nbrons/perp-prophet/internal/cache"
	"github.com/nbrons/perp-prophet/internal/metrics"
	"github.com/nbrons/perp-prophet/internal/middleware"
	"github.com/nbrons/perp-prophet/internal/services"
)

// Dependencies are the wired components the routes serve. Database, Redis,
// SnapshotCache, Alerts and Analysis may be nil when disabled.
type Dependencies struct {
	Opportunities *services.OpportunityService
	Advisory      *services.AdvisoryService
	Analysis      *services.FundingAnalysisService
	Collector     *services.CollectorService
	Alerts        *services.AlertService
	SnapshotCache *cache.RedisSnapshotCache

	Database handlers.HealthChecker
	Redis    handlers.HealthChecker
	Sources  handlers.SourceStatus

	Auth        *middleware.AuthMiddleware
	Admin       *middleware.AdminMiddleware
	TokenExpiry time.Duration
	Version     string
}

// SetupRoutes registers every endpoint on router.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	var collectorStatus handlers.CollectorStatus
	if deps.Collector != nil {
		collectorStatus = deps.Collector
	}
	healthHandler := handlers.NewHealthHandler(deps.Database, deps.Redis, collectorStatus, deps.Version)
	if deps.Sources != nil {
		healthHandler.WithSources(deps.Sources)
	}
	router.GET("/health", healthHandler.HealthCheck)
	router.HEAD("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/live", healthHandler.LivenessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	opportunityHandler := handlers.NewOpportunityHandler(deps.Opportunities, deps.Advisory, deps.Analysis)
	authHandler := handlers.NewAuthHandler(deps.Auth, deps.Admin, deps.TokenExpiry)
	adminHandler := handlers.NewAdminHandler(deps.Collector, deps.Alerts, deps.SnapshotCache)

	v1 := router.Group("/api/v1")
	{
		opportunities := v1.Group("/opportunities")
		{
			opportunities.GET("", opportunityHandler.GetOpportunities)
			opportunities.POST("/evaluate", opportunityHandler.Evaluate)
			opportunities.GET("/advisory", opportunityHandler.GetAdvisory)
		}

		v1.GET("/position-sizing", opportunityHandler.PositionSizing)
		v1.GET("/strategies/:strategy", opportunityHandler.ExplainStrategy)

		if deps.Analysis != nil {
			fundingHandler := handlers.NewFundingHandler(deps.Opportunities, deps.Analysis)
			funding := v1.Group("/funding")
			{
				funding.GET("/history", fundingHandler.GetHistory)
				funding.GET("/analysis", fundingHandler.GetAnalysis)
			}
		}

		v1.POST("/auth/token", authHandler.IssueToken)

		admin := v1.Group("/admin")
		admin.Use(deps.Admin.RequireAdminAuth())
		{
			admin.POST("/collect", adminHandler.TriggerCollection)
			admin.POST("/alerts/test", adminHandler.SendTestAlert)
			admin.GET("/cache/stats", adminHandler.CacheStats)
			admin.DELETE("/cache", adminHandler.InvalidateCache)
		}
	}
}

// NewRouter builds the engine with the standard middleware stack.
func NewRouter(serviceName string, allowedOrigins []string, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS(allowedOrigins))
	router.Use(middleware.TelemetryMiddleware(serviceName))
	router.Use(middleware.SpanStatus())
	router.Use(metrics.GinMiddleware())
	return router
}
