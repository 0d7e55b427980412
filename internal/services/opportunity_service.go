package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/nbrons/perp-prophet/internal/market"
	"github.com/nbrons/perp-prophet/internal/models"
)

// ErrAllSourcesUnavailable is returned when none of the rate feeds answered.
var ErrAllSourcesUnavailable = errors.New("all rate sources unavailable")

// SnapshotCache stores the latest snapshot between collector ticks.
type SnapshotCache interface {
	Get(ctx context.Context) (models.RateSnapshot, bool)
	Set(ctx context.Context, snapshot models.RateSnapshot) error
}

// EvaluationOverrides replaces individual strategy parameters for one evaluation.
// Nil fields keep the configured value.
type EvaluationOverrides struct {
	NotionalAmount  *decimal.Decimal `json:"notional_amount,omitempty"`
	AverageLTV      *decimal.Decimal `json:"average_ltv,omitempty"`
	RecommendMargin *decimal.Decimal `json:"recommend_margin,omitempty"`
}

// Apply returns params with the overrides applied.
func (o EvaluationOverrides) Apply(params models.StrategyParameters) models.StrategyParameters {
	if o.NotionalAmount != nil {
		params.NotionalAmount = *o.NotionalAmount
	}
	if o.AverageLTV != nil {
		params.AverageLTV = *o.AverageLTV
	}
	if o.RecommendMargin != nil {
		params.RecommendMargin = *o.RecommendMargin
	}
	return params
}

// OpportunityService builds rate snapshots from the upstream feeds and turns
// them into strategy comparisons.
type OpportunityService struct {
	source     market.RateSource
	cache      SnapshotCache
	calculator *YieldCalculator
	params     models.StrategyParameters
	logger     *logrus.Entry
}

// NewOpportunityService creates the service. cache may be nil.
func NewOpportunityService(
	source market.RateSource,
	cache SnapshotCache,
	params models.StrategyParameters,
	logger *logrus.Logger,
) *OpportunityService {
	if logger == nil {
		logger = logrus.New()
	}
	return &OpportunityService{
		source:     source,
		cache:      cache,
		calculator: NewYieldCalculator(),
		params:     params,
		logger:     logger.WithField("component", "opportunity_service"),
	}
}

// Parameters returns the configured strategy parameters.
func (s *OpportunityService) Parameters() models.StrategyParameters {
	return s.params
}

// Calculator exposes the shared yield calculator.
func (s *OpportunityService) Calculator() *YieldCalculator {
	return s.calculator
}

// Snapshot returns the cached snapshot when one is fresh, otherwise fetches
// and caches a new one.
func (s *OpportunityService) Snapshot(ctx context.Context) (models.RateSnapshot, error) {
	if s.cache != nil {
		if snapshot, ok := s.cache.Get(ctx); ok {
			return snapshot, nil
		}
	}
	return s.Refresh(ctx)
}

// Refresh always fetches a new snapshot and stores it in the cache.
func (s *OpportunityService) Refresh(ctx context.Context) (models.RateSnapshot, error) {
	snapshot, err := s.FetchSnapshot(ctx)
	if err != nil {
		return models.RateSnapshot{}, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, snapshot); err != nil {
			s.logger.WithError(err).Warn("Failed to cache rate snapshot")
		}
	}
	return snapshot, nil
}

// FetchSnapshot queries the three feeds concurrently. A failed feed leaves its
// rates at zero and is listed in Unavailable; only a total failure is an error.
func (s *OpportunityService) FetchSnapshot(ctx context.Context) (models.RateSnapshot, error) {
	var (
		wg                  sync.WaitGroup
		markets             map[string]models.HelixMarketRate
		borrow, lend        map[string]decimal.Decimal
		helixErr, borrowErr error
		lendErr             error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		markets, helixErr = s.source.FetchHelixRates(ctx)
	}()
	go func() {
		defer wg.Done()
		borrow, borrowErr = s.source.FetchBorrowRates(ctx)
	}()
	go func() {
		defer wg.Done()
		lend, lendErr = s.source.FetchLendRates(ctx)
	}()
	wg.Wait()

	var unavailable []string
	for _, r := range []struct {
		source string
		err    error
	}{
		{models.SourceHelix, helixErr},
		{models.SourceNeptuneBorrow, borrowErr},
		{models.SourceNeptuneLend, lendErr},
	} {
		if r.err != nil {
			s.logger.WithError(r.err).WithField("source", r.source).Warn("Rate source unavailable")
			unavailable = append(unavailable, r.source)
		}
	}
	if len(unavailable) == 3 {
		return models.RateSnapshot{}, fmt.Errorf("%w: %v", ErrAllSourcesUnavailable, errors.Join(helixErr, borrowErr, lendErr))
	}

	funding := decimal.Zero
	if m, ok := markets[s.params.BaseAsset]; ok {
		funding = m.FundingRate
	}

	snapshot := models.NewRateSnapshot(funding, borrow, lend)
	snapshot.Markets = markets
	snapshot.Unavailable = unavailable
	return snapshot, nil
}

// BuildReport compares the strategies for snapshot under params.
func (s *OpportunityService) BuildReport(snapshot models.RateSnapshot, params models.StrategyParameters) (*models.OpportunityReport, error) {
	comparison, err := s.calculator.Compare(snapshot, params)
	if err != nil {
		return nil, err
	}
	return &models.OpportunityReport{
		ID:           uuid.New().String(),
		Snapshot:     snapshot,
		Comparison:   comparison,
		OpenInterest: snapshot.OpenInterest(params.BaseAsset),
		GeneratedAt:  time.Now().UTC(),
	}, nil
}

// Opportunities returns the comparison under the configured parameters.
func (s *OpportunityService) Opportunities(ctx context.Context) (*models.OpportunityReport, error) {
	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.BuildReport(snapshot, s.params)
}

// Evaluate returns the comparison with caller supplied overrides.
func (s *OpportunityService) Evaluate(ctx context.Context, overrides EvaluationOverrides) (*models.OpportunityReport, error) {
	params := overrides.Apply(s.params)
	if err := s.calculator.ValidateParameters(params); err != nil {
		return nil, err
	}

	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.BuildReport(snapshot, params)
}

// PositionSizing runs the sizing model against the live snapshot.
func (s *OpportunityService) PositionSizing(ctx context.Context, totalPositionSize, leverage decimal.Decimal) (models.PositionSizingResult, error) {
	snapshot, err := s.Snapshot(ctx)
	if err != nil {
		return models.PositionSizingResult{}, err
	}
	return s.calculator.PositionSizing(snapshot, s.params, totalPositionSize, leverage)
}
