package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nbrons/perp-prophet/internal/config"
	"github.com/nbrons/perp-prophet/internal/metrics"
	"github.com/nbrons/perp-prophet/internal/models"
)

// RateStore persists collected rates. *database.RateRepository implements it.
type RateStore interface {
	Insert(ctx context.Context, record *models.RateRecord) error
	History(ctx context.Context, asset string, since time.Time) ([]models.RateRecord, error)
	Latest(ctx context.Context, asset string) (*models.RateRecord, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CollectorSettings holds the parsed collector configuration
type CollectorSettings struct {
	Interval        time.Duration
	Retention       time.Duration
	CleanupInterval time.Duration
}

// CollectorSettingsFromConfig parses the collector section, applying defaults.
func CollectorSettingsFromConfig(cfg config.CollectorConfig) CollectorSettings {
	return CollectorSettings{
		Interval:        config.Duration(cfg.Interval, 5*time.Minute),
		Retention:       config.Duration(cfg.Retention, 30*24*time.Hour),
		CleanupInterval: config.Duration(cfg.CleanupInterval, time.Hour),
	}
}

// CollectorService periodically snapshots the rate feeds, stores the result
// and hands it to the alert evaluator.
type CollectorService struct {
	opportunities *OpportunityService
	store         RateStore
	alerts        *AlertService
	settings      CollectorSettings
	logger        *logrus.Entry

	mu         sync.RWMutex
	lastReport *models.OpportunityReport
	lastError  error
	running    bool
	cancel     context.CancelFunc

	wg sync.WaitGroup
}

// NewCollectorService creates a new rate collector. store and alerts may be nil.
func NewCollectorService(
	opportunities *OpportunityService,
	store RateStore,
	alerts *AlertService,
	settings CollectorSettings,
	logger *logrus.Logger,
) *CollectorService {
	if logger == nil {
		logger = logrus.New()
	}
	return &CollectorService{
		opportunities: opportunities,
		store:         store,
		alerts:        alerts,
		settings:      settings,
		logger:        logger.WithField("component", "collector"),
	}
}

// Start launches the collection loop and, when a store is configured, the
// retention loop. The first collection runs immediately. A stopped collector
// can be started again.
func (c *CollectorService) Start() error {
	if c.settings.Interval <= 0 {
		return fmt.Errorf("collector interval must be positive, got %s", c.settings.Interval)
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("collector already running")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.running = true
	c.cancel = cancel
	c.mu.Unlock()

	c.logger.WithField("interval", c.settings.Interval.String()).Info("Starting rate collector")

	if c.alerts != nil {
		c.alerts.Prime(ctx, c.opportunities.Parameters().BaseAsset)
	}

	c.wg.Add(1)
	go c.collectLoop(ctx)

	if c.store != nil && c.settings.Retention > 0 && c.settings.CleanupInterval > 0 {
		c.wg.Add(1)
		go c.cleanupLoop(ctx)
	}
	return nil
}

// Stop gracefully stops the loops and waits for them to exit.
func (c *CollectorService) Stop() {
	c.logger.Info("Stopping rate collector...")
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	c.logger.Info("Rate collector stopped")
}

func (c *CollectorService) collectLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.settings.Interval)
	defer ticker.Stop()

	c.runCollection(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runCollection(ctx)
		}
	}
}

func (c *CollectorService) runCollection(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, c.settings.Interval)
	defer cancel()

	if _, err := c.CollectOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.WithError(err).Error("Rate collection failed")
	}
}

func (c *CollectorService) cleanupLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.settings.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.Cleanup(ctx); err != nil {
				c.logger.WithError(err).Warn("Rate history cleanup failed")
			}
		}
	}
}

// CollectOnce fetches a fresh snapshot, refreshes the cache, stores one
// record and evaluates alerts. It is safe to call while the loop runs. When
// only the store write fails, the report is returned with the error.
func (c *CollectorService) CollectOnce(ctx context.Context) (*models.OpportunityReport, error) {
	started := time.Now()

	report, err := c.collect(ctx)

	c.mu.Lock()
	c.lastError = err
	if err == nil {
		c.lastReport = report
	}
	c.mu.Unlock()

	if err != nil {
		metrics.CollectionsTotal.WithLabelValues("error").Inc()
		return report, err
	}

	status := "ok"
	if report.Snapshot.Degraded() {
		status = "degraded"
	}
	metrics.CollectionsTotal.WithLabelValues(status).Inc()

	c.logger.WithFields(logrus.Fields{
		"report_id":      report.ID,
		"recommendation": report.Comparison.Recommendation.Strategy,
		"strategy_a_apy": report.Comparison.StrategyA.APYPct.StringFixed(4),
		"strategy_b_apy": report.Comparison.StrategyB.APYPct.StringFixed(4),
		"unavailable":    report.Snapshot.Unavailable,
		"duration_ms":    time.Since(started).Milliseconds(),
	}).Info("Collected rate snapshot")

	return report, nil
}

func (c *CollectorService) collect(ctx context.Context) (*models.OpportunityReport, error) {
	snapshot, err := c.opportunities.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}

	report, err := c.opportunities.BuildReport(snapshot, c.opportunities.Parameters())
	if err != nil {
		return nil, fmt.Errorf("failed to build report: %w", err)
	}
	recordMetrics(report)

	if c.alerts != nil {
		if _, err := c.alerts.Evaluate(ctx, report); err != nil {
			c.logger.WithError(err).Warn("Alert evaluation failed")
		}
	}

	if c.store != nil {
		record := RecordFromReport(report)
		if err := c.store.Insert(ctx, &record); err != nil {
			return report, fmt.Errorf("failed to store snapshot: %w", err)
		}
	}
	return report, nil
}

// Cleanup deletes history older than the retention period.
func (c *CollectorService) Cleanup(ctx context.Context) (int64, error) {
	if c.store == nil {
		return 0, nil
	}
	cutoff := time.Now().Add(-c.settings.Retention)
	deleted, err := c.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		c.logger.WithFields(logrus.Fields{
			"deleted": deleted,
			"cutoff":  cutoff.Format(time.RFC3339),
		}).Info("Removed expired rate history")
	}
	return deleted, nil
}

// LastReport returns the most recent successful collection, if any.
func (c *CollectorService) LastReport() (*models.OpportunityReport, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastReport, c.lastError
}

// IsRunning reports whether the loops have been started.
func (c *CollectorService) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// RecordFromReport flattens a report into the persisted row for its base asset.
func RecordFromReport(report *models.OpportunityReport) models.RateRecord {
	params := report.Comparison.Parameters
	return models.RateRecord{
		Asset:          params.BaseAsset,
		FundingRate:    report.Snapshot.FundingRatePerPeriod,
		OpenInterest:   report.OpenInterest,
		BorrowRates:    report.Snapshot.BorrowRateAnnualPct,
		LendRates:      report.Snapshot.LendRateAnnualPct,
		StrategyAAPY:   report.Comparison.StrategyA.APYPct,
		StrategyBAPY:   report.Comparison.StrategyB.APYPct,
		LendingAPY:     report.Comparison.LendingAPYPct,
		Recommendation: report.Comparison.Recommendation.Strategy,
		Unavailable:    report.Snapshot.Unavailable,
		RecordedAt:     report.GeneratedAt,
	}
}

func recordMetrics(report *models.OpportunityReport) {
	metrics.StrategyAPY.WithLabelValues(string(models.StrategyA)).Set(report.Comparison.StrategyA.APYPct.InexactFloat64())
	metrics.StrategyAPY.WithLabelValues(string(models.StrategyB)).Set(report.Comparison.StrategyB.APYPct.InexactFloat64())
	metrics.StrategyAPY.WithLabelValues(string(models.SimpleLending)).Set(report.Comparison.LendingAPYPct.InexactFloat64())
	for token, m := range report.Snapshot.Markets {
		metrics.FundingRate.WithLabelValues(token).Set(m.FundingRate.InexactFloat64())
	}
}
