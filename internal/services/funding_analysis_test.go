package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nbrons/perp-prophet/internal/models"
)

func decimals(values ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = d(v)
	}
	return out
}

func TestParseWindow(t *testing.T) {
	w, ok := ParseWindow("")
	assert.True(t, ok)
	assert.Equal(t, 24*time.Hour, w.Duration)

	w, ok = ParseWindow("7d")
	assert.True(t, ok)
	assert.Equal(t, 7*24*time.Hour, w.Duration)

	_, ok = ParseWindow("1y")
	assert.False(t, ok)
}

func TestStdDev(t *testing.T) {
	assertDecimal(t, "2", stdDev(decimals("2", "4", "4", "4", "5", "5", "7", "9")), 8)
	assert.True(t, stdDev(decimals("0.0001")).IsZero())
	assert.True(t, stdDev(nil).IsZero())
}

func TestCountSignFlips(t *testing.T) {
	assert.Equal(t, 2, countSignFlips(decimals("1", "-1", "0", "-2", "3")))
	assert.Equal(t, 0, countSignFlips(decimals("0", "0", "1")))
	assert.Equal(t, 0, countSignFlips(nil))
}

func TestClassifyTrend(t *testing.T) {
	rising := make([]decimal.Decimal, 12)
	falling := make([]decimal.Decimal, 12)
	flat := make([]decimal.Decimal, 12)
	for i := range rising {
		rising[i] = decimal.New(int64(i+1), -5)
		falling[i] = decimal.New(int64(12-i), -5)
		flat[i] = d("0.0001")
	}

	assert.Equal(t, models.TrendIncreasing, classifyTrend(rising))
	assert.Equal(t, models.TrendDecreasing, classifyTrend(falling))
	assert.Equal(t, models.TrendStable, classifyTrend(flat))
	assert.Equal(t, models.TrendUnknown, classifyTrend(rising[:11]))
}

func TestBreakEvenFundingRate(t *testing.T) {
	snapshot := snapshotOf("0.0001", map[string]string{"USDT": "10"}, map[string]string{"INJ": "8"})
	got := BreakEvenFundingRate(snapshot, models.DefaultStrategyParameters())
	assertDecimal(t, d("2").Div(d("876000")).String(), got, 12)
}

func TestFundingAnalysisService_Analyze(t *testing.T) {
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)
	store := &MockRateStore{}
	store.On("History", context.Background(), "INJ", now.Add(-30*24*time.Hour)).Return([]models.RateRecord{
		{Asset: "INJ", FundingRate: d("-0.0001"), RecordedAt: now.Add(-10 * 24 * time.Hour)},
		{Asset: "INJ", FundingRate: d("0.0002"), RecordedAt: now.Add(-48 * time.Hour)},
		{Asset: "INJ", FundingRate: d("0.0001"), RecordedAt: now.Add(-time.Hour)},
	}, nil)

	svc := NewFundingAnalysisService(store, models.DefaultStrategyParameters(), nil)
	svc.now = func() time.Time { return now }

	snapshot := snapshotOf("0.0001", map[string]string{"USDT": "10"}, map[string]string{"INJ": "8"})
	analysis, err := svc.Analyze(context.Background(), snapshot)
	require.NoError(t, err)

	assert.Equal(t, "INJ", analysis.Asset)
	assert.Equal(t, 3, analysis.Samples)
	assert.Equal(t, 1, analysis.SignFlips)
	assert.Equal(t, models.TrendUnknown, analysis.Trend)
	require.Len(t, analysis.Windows, 3)

	day, week, month := analysis.Windows[0], analysis.Windows[1], analysis.Windows[2]
	assert.Equal(t, "24h", day.Window)
	assert.Equal(t, 1, day.Samples)
	assert.Equal(t, 2, week.Samples)
	assertDecimal(t, "0.0001", week.Min, 8)
	assertDecimal(t, "0.0002", week.Max, 8)
	assertDecimal(t, "0.00015", week.Mean, 8)
	assert.Equal(t, 3, month.Samples)
	assertDecimal(t, "-0.0001", month.Min, 8)

	assert.True(t, analysis.Volatility.IsPositive())
	assertDecimal(t, d("0.0001").Sub(analysis.BreakEvenRate).String(), analysis.DistanceFromBreakEven, 12)
	store.AssertExpectations(t)
}

func TestFundingAnalysisService_EmptyHistory(t *testing.T) {
	store := &MockRateStore{}
	store.On("History", context.Background(), "INJ", mockAnyTime()).Return([]models.RateRecord{}, nil)

	svc := NewFundingAnalysisService(store, models.DefaultStrategyParameters(), nil)
	analysis, err := svc.Analyze(context.Background(), snapshotOf("0.0001", nil, nil))
	require.NoError(t, err)

	assert.Zero(t, analysis.Samples)
	for _, w := range analysis.Windows {
		assert.Zero(t, w.Samples)
		assert.True(t, w.Mean.IsZero())
	}
	assert.Equal(t, models.TrendUnknown, analysis.Trend)
}

func TestFundingAnalysisService_Errors(t *testing.T) {
	svc := NewFundingAnalysisService(nil, models.DefaultStrategyParameters(), nil)
	_, err := svc.History(context.Background(), time.Hour)
	assert.ErrorIs(t, err, ErrHistoryUnavailable)
	_, err = svc.Analyze(context.Background(), models.RateSnapshot{})
	assert.ErrorIs(t, err, ErrHistoryUnavailable)

	store := &MockRateStore{}
	store.On("History", context.Background(), "INJ", mockAnyTime()).Return(nil, errors.New("db down"))
	svc = NewFundingAnalysisService(store, models.DefaultStrategyParameters(), nil)
	_, err = svc.Analyze(context.Background(), models.RateSnapshot{})
	assert.EqualError(t, err, "db down")
}
