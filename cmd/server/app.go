package main

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nbrons/perp-prophet/internal/cache"
	"github.com/nbrons/perp-prophet/internal/config"
	"github.com/nbrons/perp-prophet/internal/database"
	"github.com/nbrons/perp-prophet/internal/logging"
	"github.com/nbrons/perp-prophet/internal/market"
	"github.com/nbrons/perp-prophet/internal/models"
	"github.com/nbrons/perp-prophet/internal/services"
)

// application holds the wired services shared by the commands.
type application struct {
	cfg    *config.Config
	logger *logging.Logger

	db            *database.PostgresDB
	redis         *database.RedisClient
	repository    *database.RateRepository
	snapshotCache *cache.RedisSnapshotCache

	source        *market.Client
	opportunities *services.OpportunityService
	advisory      *services.AdvisoryService
	analysis      *services.FundingAnalysisService
	notifications *services.NotificationService
	alerts        *services.AlertService
	collector     *services.CollectorService
}

// newApplication wires every service. With withStores false, Postgres and
// Redis are skipped even when enabled, which is what the one-shot commands want.
func newApplication(ctx context.Context, cfg *config.Config, logger *logging.Logger, withStores bool) (*application, error) {
	app := &application{
		cfg:      cfg,
		logger:   logger,
		advisory: services.NewAdvisoryService(),
	}
	log := logger.WithComponent("bootstrap")

	var (
		store    services.RateStore
		snapshot services.SnapshotCache
		deduper  services.AlertDeduper
	)

	if withStores && cfg.Database.Enabled {
		db, err := database.NewPostgresConnection(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		app.db = db
		app.repository = database.NewRateRepository(db.Pool)
		if err := app.repository.EnsureSchema(ctx); err != nil {
			app.Close()
			return nil, err
		}
		store = app.repository
		log.Info("Rate history enabled")
	}

	if withStores && cfg.Redis.Enabled {
		redisClient, err := database.NewRedisConnection(cfg.Redis)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.redis = redisClient
		app.snapshotCache = cache.NewRedisSnapshotCache(
			redisClient.Client,
			config.Duration(cfg.Collector.SnapshotTTL, 2*time.Minute),
			logger.Logger,
		)
		snapshot = app.snapshotCache
		deduper = cache.NewAlertDeduper(redisClient.Client, config.Duration(cfg.Alerts.Cooldown, time.Hour))
	}

	params, err := strategyParameters(cfg.Strategy)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.source = market.NewClient(cfg.Market, logger.Logger)
	app.opportunities = services.NewOpportunityService(app.source, snapshot, params, logger.Logger)

	if store != nil {
		app.analysis = services.NewFundingAnalysisService(store, params, logger.Logger)
	}

	var sender services.MessageSender
	if cfg.Telegram.BotToken != "" {
		s, err := services.NewTelegramSender(cfg.Telegram.BotToken)
		if err != nil {
			app.Close()
			return nil, err
		}
		sender = s
	}
	app.notifications = services.NewNotificationService(sender, cfg.Telegram.AlertChatIDs, logger.Logger)
	if !app.notifications.Enabled() {
		log.Warn("Telegram alerts disabled: bot token or chat ids missing")
	}

	if cfg.Alerts.Enabled {
		minSpread, err := models.DecimalFromFloat(cfg.Alerts.MinSpreadPct)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("alerts.min_spread_pct: %w", err)
		}
		app.alerts = services.NewAlertService(app.notifications, deduper, store, minSpread, logger.Logger)
	}

	app.collector = services.NewCollectorService(
		app.opportunities,
		store,
		app.alerts,
		services.CollectorSettingsFromConfig(cfg.Collector),
		logger.Logger,
	)
	return app, nil
}

// Close releases the store connections.
func (a *application) Close() {
	if a.snapshotCache != nil {
		a.snapshotCache.LogStats()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func strategyParameters(cfg config.StrategyConfig) (models.StrategyParameters, error) {
	notional, ltv, margin, err := cfg.StrategyDecimals()
	if err != nil {
		return models.StrategyParameters{}, err
	}
	return models.StrategyParameters{
		NotionalAmount:  notional,
		AverageLTV:      ltv,
		BaseAsset:       cfg.BaseAsset,
		QuoteAsset:      cfg.QuoteAsset,
		RecommendMargin: margin,
	}, nil
}

// parseOverride returns nil for an empty flag.
func parseOverride(name, raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("--%s: not a number: %q", name, raw)
	}
	return &value, nil
}
