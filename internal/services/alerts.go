package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/nbrons/perp-prophet/internal/metrics"
	"github.com/nbrons/perp-prophet/internal/models"
)

// AlertDeduper claims an alert key for a cooldown. *cache.AlertDeduper implements it.
type AlertDeduper interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Notifier delivers an alert.
type Notifier interface {
	Notify(ctx context.Context, alert models.Alert) error
}

// alertState is what the evaluator remembers about the previous collection.
type alertState struct {
	recommendation models.StrategyKind
	fundingRate    decimal.Decimal
}

// AlertService compares each collection with the previous one and notifies
// when the recommendation changes, the funding rate flips sign, or the best
// strategy beats lending by the configured spread.
type AlertService struct {
	notifier  Notifier
	deduper   AlertDeduper
	store     RateStore
	minSpread decimal.Decimal
	logger    *logrus.Entry

	mu       sync.Mutex
	previous *alertState
}

// NewAlertService creates the evaluator. deduper and store may be nil.
func NewAlertService(notifier Notifier, deduper AlertDeduper, store RateStore, minSpreadPct decimal.Decimal, logger *logrus.Logger) *AlertService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AlertService{
		notifier:  notifier,
		deduper:   deduper,
		store:     store,
		minSpread: minSpreadPct,
		logger:    logger.WithField("component", "alerts"),
	}
}

// Prime seeds the previous state from the latest stored record so a restart
// does not miss a change that happened while the service was down.
func (a *AlertService) Prime(ctx context.Context, asset string) {
	if a.store == nil {
		return
	}
	record, err := a.store.Latest(ctx, asset)
	if err != nil {
		a.logger.WithError(err).Warn("Failed to load previous rate record")
		return
	}
	if record == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.previous == nil {
		a.previous = &alertState{recommendation: record.Recommendation, fundingRate: record.FundingRate}
	}
}

// Evaluate detects alerts for report and returns the ones delivered.
// A transition whose delivery fails is not committed, so the next
// collection detects it again.
func (a *AlertService) Evaluate(ctx context.Context, report *models.OpportunityReport) ([]models.Alert, error) {
	detected, previous, current := a.detect(report)

	var (
		sent   []models.Alert
		errs   []error
		failed = make(map[models.AlertKind]bool)
	)
	for _, alert := range detected {
		ok, err := a.claim(ctx, alert.Kind)
		if err != nil {
			// Redis outage: deliver without dedupe
			a.logger.WithError(err).Warn("Alert dedupe unavailable")
			ok = true
		}
		if !ok {
			metrics.AlertsTotal.WithLabelValues(string(alert.Kind), "suppressed").Inc()
			continue
		}

		if err := a.notifier.Notify(ctx, alert); err != nil {
			if errors.Is(err, ErrNotificationsDisabled) {
				metrics.AlertsTotal.WithLabelValues(string(alert.Kind), "skipped").Inc()
				a.logger.WithField("kind", alert.Kind).Info(alert.Message)
				continue
			}
			metrics.AlertsTotal.WithLabelValues(string(alert.Kind), "failed").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", alert.Kind, err))
			failed[alert.Kind] = true
			a.release(ctx, alert.Kind)
			continue
		}
		metrics.AlertsTotal.WithLabelValues(string(alert.Kind), "sent").Inc()
		sent = append(sent, alert)
	}

	a.commit(previous, current, failed)
	return sent, errors.Join(errs...)
}

// Detect compares report with the previous state and updates it.
func (a *AlertService) Detect(report *models.OpportunityReport) []models.Alert {
	alerts, previous, current := a.detect(report)
	a.commit(previous, current, nil)
	return alerts
}

// commit stores current as the previous state. A field whose alert failed
// keeps its old value.
func (a *AlertService) commit(previous *alertState, current alertState, failed map[models.AlertKind]bool) {
	if previous != nil {
		if failed[models.AlertRecommendationChanged] {
			current.recommendation = previous.recommendation
		}
		if failed[models.AlertFundingFlipped] {
			current.fundingRate = previous.fundingRate
		}
	}

	a.mu.Lock()
	a.previous = &current
	a.mu.Unlock()
}

func (a *AlertService) detect(report *models.OpportunityReport) ([]models.Alert, *alertState, alertState) {
	comparison := report.Comparison
	current := alertState{
		recommendation: comparison.Recommendation.Strategy,
		fundingRate:    report.Snapshot.FundingRatePerPeriod,
	}
	now := time.Now().UTC()

	a.mu.Lock()
	previous := a.previous
	a.mu.Unlock()

	var alerts []models.Alert
	newAlert := func(kind models.AlertKind, format string, args ...interface{}) {
		alerts = append(alerts, models.Alert{
			Kind:      kind,
			Message:   fmt.Sprintf(format, args...),
			ReportID:  report.ID,
			CreatedAt: now,
		})
	}

	if previous != nil {
		if previous.recommendation != current.recommendation {
			newAlert(models.AlertRecommendationChanged,
				"Recommendation changed from %s to %s (%s%% APY)",
				StrategyTitle(previous.recommendation),
				StrategyTitle(current.recommendation),
				comparison.Recommendation.APYPct.StringFixed(2))
		}

		prevSign, curSign := previous.fundingRate.Sign(), current.fundingRate.Sign()
		if prevSign != 0 && curSign != 0 && prevSign != curSign {
			direction := "positive"
			if curSign < 0 {
				direction = "negative"
			}
			newAlert(models.AlertFundingFlipped,
				"%s funding rate turned %s: %s%% -> %s%% annualised",
				comparison.Parameters.BaseAsset,
				direction,
				annualPct(previous.fundingRate).StringFixed(2),
				annualPct(current.fundingRate).StringFixed(2))
		}
	}

	if a.minSpread.IsPositive() {
		best := comparison.StrategyA
		if comparison.StrategyB.APYPct.GreaterThan(best.APYPct) {
			best = comparison.StrategyB
		}
		spread := best.APYPct.Sub(comparison.LendingAPYPct)
		if spread.GreaterThanOrEqual(a.minSpread) {
			newAlert(models.AlertSpreadOpened,
				"%s yields %s%% APY, %s points above lending at %s%%",
				StrategyTitle(best.Strategy),
				best.APYPct.StringFixed(2),
				spread.StringFixed(2),
				comparison.LendingAPYPct.StringFixed(2))
		}
	}

	return alerts, previous, current
}

// SendTest delivers a test alert without deduplication.
func (a *AlertService) SendTest(ctx context.Context) (models.Alert, error) {
	alert := models.Alert{
		Kind:      models.AlertTest,
		Message:   "Test alert: notifications are working.",
		CreatedAt: time.Now().UTC(),
	}
	if err := a.notifier.Notify(ctx, alert); err != nil {
		metrics.AlertsTotal.WithLabelValues(string(alert.Kind), "failed").Inc()
		return alert, err
	}
	metrics.AlertsTotal.WithLabelValues(string(alert.Kind), "sent").Inc()
	return alert, nil
}

func (a *AlertService) claim(ctx context.Context, kind models.AlertKind) (bool, error) {
	if a.deduper == nil {
		return true, nil
	}
	return a.deduper.Acquire(ctx, string(kind))
}

// release frees the cooldown of an alert that was claimed but never delivered.
func (a *AlertService) release(ctx context.Context, kind models.AlertKind) {
	if a.deduper == nil {
		return
	}
	if err := a.deduper.Release(ctx, string(kind)); err != nil {
		a.logger.WithError(err).WithField("kind", kind).Warn("Failed to release alert cooldown")
	}
}

func annualPct(ratePerPeriod decimal.Decimal) decimal.Decimal {
	return ratePerPeriod.Mul(decimal.NewFromInt(models.HoursPerYear * 100))
}
