package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nbrons/perp-prophet/internal/models"
	"github.com/nbrons/perp-prophet/internal/utils"
)

func TestOpportunityService_Opportunities(t *testing.T) {
	source := healthyRates()
	svc := NewOpportunityService(source, nil, models.DefaultStrategyParameters(), nil)

	report, err := svc.Opportunities(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.ID)
	assert.False(t, report.Snapshot.Degraded())
	assertDecimal(t, "90.6", report.Comparison.StrategyA.APYPct, 8)
	assertDecimal(t, "-192.2", report.Comparison.StrategyB.APYPct, 8)
	assertDecimal(t, "12", report.Comparison.LendingAPYPct, 8)
	assert.Equal(t, models.StrategyA, report.Comparison.Recommendation.Strategy)
	assertDecimal(t, "125000", report.OpenInterest, 0)
	source.AssertExpectations(t)
}

func TestOpportunityService_PartialFailure(t *testing.T) {
	source := &MockRateSource{}
	source.On("FetchHelixRates", mock.Anything).Return(map[string]models.HelixMarketRate{
		"INJ": {TickerID: "INJ/USDT PERP", Token: "INJ", FundingRate: d("0.0001")},
	}, nil)
	source.On("FetchBorrowRates", mock.Anything).Return(nil, errors.New("timeout"))
	source.On("FetchLendRates", mock.Anything).Return(map[string]decimal.Decimal{"INJ": d("8")}, nil)

	svc := NewOpportunityService(source, nil, models.DefaultStrategyParameters(), nil)
	snapshot, err := svc.FetchSnapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{models.SourceNeptuneBorrow}, snapshot.Unavailable)
	assert.True(t, snapshot.BorrowRate("USDT").IsZero())
	assertDecimal(t, "0.0001", snapshot.FundingRatePerPeriod, 10)
}

func TestOpportunityService_AllSourcesDown(t *testing.T) {
	source := &MockRateSource{}
	source.On("FetchHelixRates", mock.Anything).Return(nil, errors.New("down"))
	source.On("FetchBorrowRates", mock.Anything).Return(nil, errors.New("down"))
	source.On("FetchLendRates", mock.Anything).Return(nil, errors.New("down"))

	svc := NewOpportunityService(source, nil, models.DefaultStrategyParameters(), nil)
	_, err := svc.Opportunities(context.Background())
	assert.ErrorIs(t, err, ErrAllSourcesUnavailable)
}

func TestOpportunityService_UsesCache(t *testing.T) {
	source := healthyRates()
	cache := &memoryCache{}
	svc := NewOpportunityService(source, cache, models.DefaultStrategyParameters(), nil)
	ctx := context.Background()

	first, err := svc.Snapshot(ctx)
	require.NoError(t, err)
	second, err := svc.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.FetchedAt, second.FetchedAt)
	assert.Equal(t, 1, cache.sets)
	source.AssertNumberOfCalls(t, "FetchHelixRates", 1)

	_, err = svc.Refresh(ctx)
	require.NoError(t, err)
	source.AssertNumberOfCalls(t, "FetchHelixRates", 2)
	assert.Equal(t, 2, cache.sets)
}

func TestOpportunityService_Evaluate(t *testing.T) {
	svc := NewOpportunityService(healthyRates(), nil, models.DefaultStrategyParameters(), nil)

	notional := d("2000")
	margin := d("100")
	report, err := svc.Evaluate(context.Background(), EvaluationOverrides{
		NotionalAmount:  &notional,
		RecommendMargin: &margin,
	})
	require.NoError(t, err)

	assert.True(t, report.Comparison.Parameters.NotionalAmount.Equal(notional))
	assertDecimal(t, "90.6", report.Comparison.StrategyA.APYPct, 8)
	// 90.6 - 12 is below the 100 point margin
	assert.Equal(t, models.SimpleLending, report.Comparison.Recommendation.Strategy)
}

func TestOpportunityService_EvaluateRejectsBadOverrides(t *testing.T) {
	source := &MockRateSource{}
	svc := NewOpportunityService(source, nil, models.DefaultStrategyParameters(), nil)

	ltv := d("1.5")
	_, err := svc.Evaluate(context.Background(), EvaluationOverrides{AverageLTV: &ltv})
	assert.ErrorIs(t, err, utils.ErrInvalidParameter)
	source.AssertNotCalled(t, "FetchHelixRates", mock.Anything)
}

func TestOpportunityService_PositionSizing(t *testing.T) {
	svc := NewOpportunityService(healthyRates(), nil, models.DefaultStrategyParameters(), nil)

	result, err := svc.PositionSizing(context.Background(), d("1000"), d("2"))
	require.NoError(t, err)
	assertDecimal(t, "0.826", result.NetAPY, 8)

	_, err = svc.PositionSizing(context.Background(), d("1000"), d("0"))
	assert.ErrorIs(t, err, utils.ErrInvalidParameter)
}
