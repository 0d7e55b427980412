package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nbrons/perp-prophet/internal/config"
	"github.com/nbrons/perp-prophet/internal/models"
)

func TestCollectorSettingsFromConfig(t *testing.T) {
	settings := CollectorSettingsFromConfig(config.CollectorConfig{Interval: "1m", Retention: "", CleanupInterval: "bad"})
	assert.Equal(t, time.Minute, settings.Interval)
	assert.Equal(t, 30*24*time.Hour, settings.Retention)
	assert.Equal(t, time.Hour, settings.CleanupInterval)
}

func TestCollectorService_CollectOnce(t *testing.T) {
	store := &MockRateStore{}
	store.On("Insert", mock.Anything, mock.MatchedBy(func(r *models.RateRecord) bool {
		return r.Asset == "INJ" &&
			r.Recommendation == models.StrategyA &&
			r.StrategyAAPY.Round(8).Equal(d("90.6")) &&
			r.FundingRate.Equal(d("0.0001")) &&
			r.OpenInterest.Equal(d("125000"))
	})).Return(nil).Once()

	cache := &memoryCache{}
	opportunities := NewOpportunityService(healthyRates(), cache, models.DefaultStrategyParameters(), nil)
	collector := NewCollectorService(opportunities, store, nil, CollectorSettings{Interval: time.Minute}, nil)

	report, err := collector.CollectOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StrategyA, report.Comparison.Recommendation.Strategy)
	assert.Equal(t, 1, cache.sets, "collection refreshes the cache")

	last, lastErr := collector.LastReport()
	assert.NoError(t, lastErr)
	assert.Equal(t, report.ID, last.ID)
	store.AssertExpectations(t)
}

func TestCollectorService_CollectOnce_StoreError(t *testing.T) {
	store := &MockRateStore{}
	store.On("Insert", mock.Anything, mock.Anything).Return(errors.New("db down"))

	opportunities := NewOpportunityService(healthyRates(), nil, models.DefaultStrategyParameters(), nil)
	collector := NewCollectorService(opportunities, store, nil, CollectorSettings{Interval: time.Minute}, nil)

	_, err := collector.CollectOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to store snapshot")

	_, lastErr := collector.LastReport()
	assert.Error(t, lastErr)
}

func TestCollectorService_CollectOnce_EvaluatesAlerts(t *testing.T) {
	notifier := &recordingNotifier{}
	alerts := NewAlertService(notifier, nil, nil, d("5"), nil)

	opportunities := NewOpportunityService(healthyRates(), nil, models.DefaultStrategyParameters(), nil)
	collector := NewCollectorService(opportunities, nil, alerts, CollectorSettings{Interval: time.Minute}, nil)

	_, err := collector.CollectOnce(context.Background())
	require.NoError(t, err)

	// 90.6 - 12 clears the 5 point spread
	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, models.AlertSpreadOpened, notifier.alerts[0].Kind)
}

func TestCollectorService_StartStop(t *testing.T) {
	store := &MockRateStore{}
	store.On("Insert", mock.Anything, mock.Anything).Return(nil)
	store.On("DeleteOlderThan", mock.Anything, mock.Anything).Return(int64(0), nil).Maybe()

	opportunities := NewOpportunityService(healthyRates(), nil, models.DefaultStrategyParameters(), nil)
	collector := NewCollectorService(opportunities, store, nil, CollectorSettings{
		Interval:        20 * time.Millisecond,
		Retention:       time.Hour,
		CleanupInterval: 10 * time.Millisecond,
	}, nil)

	require.NoError(t, collector.Start())
	assert.True(t, collector.IsRunning())
	assert.Error(t, collector.Start(), "second start is rejected")

	assert.Eventually(t, func() bool {
		report, _ := collector.LastReport()
		return report != nil
	}, time.Second, 5*time.Millisecond)

	collector.Stop()
	assert.False(t, collector.IsRunning())
	store.AssertCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestCollectorService_RestartAfterStop(t *testing.T) {
	var inserts atomic.Int64
	store := &MockRateStore{}
	store.On("Insert", mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) { inserts.Add(1) })

	opportunities := NewOpportunityService(healthyRates(), nil, models.DefaultStrategyParameters(), nil)
	collector := NewCollectorService(opportunities, store, nil, CollectorSettings{Interval: time.Hour}, nil)

	collector.Stop()
	assert.False(t, collector.IsRunning(), "stop before start is a no-op")

	require.NoError(t, collector.Start())
	assert.Eventually(t, func() bool { return inserts.Load() == 1 }, time.Second, 5*time.Millisecond)
	collector.Stop()

	require.NoError(t, collector.Start())
	assert.True(t, collector.IsRunning())
	assert.Eventually(t, func() bool { return inserts.Load() == 2 }, time.Second, 5*time.Millisecond,
		"restarted collector runs its immediate collection")
	collector.Stop()
	assert.False(t, collector.IsRunning())
}

func TestCollectorService_StartRejectsZeroInterval(t *testing.T) {
	opportunities := NewOpportunityService(healthyRates(), nil, models.DefaultStrategyParameters(), nil)
	collector := NewCollectorService(opportunities, nil, nil, CollectorSettings{}, nil)
	assert.Error(t, collector.Start())
}

func TestCollectorService_Cleanup(t *testing.T) {
	store := &MockRateStore{}
	store.On("DeleteOlderThan", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
		return time.Since(cutoff) >= 24*time.Hour-time.Minute
	})).Return(int64(4), nil)

	opportunities := NewOpportunityService(healthyRates(), nil, models.DefaultStrategyParameters(), nil)
	collector := NewCollectorService(opportunities, store, nil, CollectorSettings{Interval: time.Minute, Retention: 24 * time.Hour}, nil)

	deleted, err := collector.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), deleted)

	noStore := NewCollectorService(opportunities, nil, nil, CollectorSettings{Interval: time.Minute}, nil)
	deleted, err = noStore.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestRecordFromReport(t *testing.T) {
	svc := NewOpportunityService(healthyRates(), nil, models.DefaultStrategyParameters(), nil)
	report, err := svc.Opportunities(context.Background())
	require.NoError(t, err)

	record := RecordFromReport(report)
	assert.Equal(t, "INJ", record.Asset)
	assert.True(t, record.LendingAPY.Equal(d("12")))
	assert.True(t, record.BorrowRates["USDT"].Equal(d("10")))
	assert.Equal(t, report.GeneratedAt, record.RecordedAt)
}
