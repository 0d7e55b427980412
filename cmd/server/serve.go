package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/nbrons/perp-prophet/internal/api"
	"github.com/nbrons/perp-prophet/internal/api/handlers"
	"github.com/nbrons/perp-prophet/internal/config"
	"github.com/nbrons/perp-prophet/internal/logging"
	"github.com/nbrons/perp-prophet/internal/middleware"
	"github.com/nbrons/perp-prophet/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the rate collector",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	log := logger.WithComponent("server")

	shutdownTelemetry, err := telemetry.InitTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			log.WithError(err).Warn("Failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled && strings.EqualFold(cfg.Telemetry.Exporter, "otlp") {
		hook, err := telemetry.NewLogHook(ctx, cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("failed to initialize log export: %w", err)
		}
		logger.AddHook(hook)
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = hook.Shutdown(flushCtx)
		}()
	}

	app, err := newApplication(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer app.Close()

	if cfg.Collector.Enabled {
		if err := app.collector.Start(); err != nil {
			return fmt.Errorf("failed to start collector: %w", err)
		}
		defer app.collector.Stop()
	}

	secret := cfg.Security.JWTSecret
	if secret == "" {
		secret, err = ephemeralSecret()
		if err != nil {
			return err
		}
		log.Warn("JWT_SECRET not set: using a random secret, tokens will not survive a restart")
	}
	auth := middleware.NewAuthMiddleware(secret, telemetry.ServiceName)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(serviceName(cfg), cfg.Server.AllowedOrigins, logger.Logger)
	api.SetupRoutes(router, dependencies(app, auth))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout, 10*time.Second),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout, 15*time.Second),
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.LogStartup(version, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.LogShutdown("signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server exited")
	return nil
}

// dependencies converts the application into route dependencies, leaving
// disabled stores as nil interfaces.
func dependencies(app *application, auth *middleware.AuthMiddleware) api.Dependencies {
	deps := api.Dependencies{
		Opportunities: app.opportunities,
		Advisory:      app.advisory,
		Analysis:      app.analysis,
		Collector:     app.collector,
		Alerts:        app.alerts,
		SnapshotCache: app.snapshotCache,
		Sources:       app.source,
		Auth:          auth,
		Admin:         middleware.NewAdminMiddleware(app.cfg.Security.AdminAPIKeyHash, auth),
		TokenExpiry:   config.Duration(app.cfg.Security.JWTExpiry, 24*time.Hour),
		Version:       version,
	}
	var db, redis handlers.HealthChecker
	if app.db != nil {
		db = app.db
	}
	if app.redis != nil {
		redis = app.redis
	}
	deps.Database = db
	deps.Redis = redis
	return deps
}

func serviceName(cfg *config.Config) string {
	if cfg.Telemetry.ServiceName != "" {
		return cfg.Telemetry.ServiceName
	}
	return telemetry.ServiceName
}

func ephemeralSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
