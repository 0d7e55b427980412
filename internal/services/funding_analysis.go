package services

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/nbrons/perp-prophet/internal/models"
)

// ErrHistoryUnavailable is returned when no rate store is configured.
var ErrHistoryUnavailable = errors.New("rate history not available")

// AnalysisWindow is one lookback window reported by the analysis.
type AnalysisWindow struct {
	Name     string
	Duration time.Duration
}

// DefaultAnalysisWindows are the 24h, 7d and 30d lookbacks.
var DefaultAnalysisWindows = []AnalysisWindow{
	{Name: "24h", Duration: 24 * time.Hour},
	{Name: "7d", Duration: 7 * 24 * time.Hour},
	{Name: "30d", Duration: 30 * 24 * time.Hour},
}

const (
	fastTrendPeriod = 3
	slowTrendPeriod = 12
	// relative gap between the fast and slow averages still called stable
	trendTolerance = 0.05
)

// FundingAnalysisService derives funding statistics from stored history.
type FundingAnalysisService struct {
	store  RateStore
	params models.StrategyParameters
	logger *logrus.Entry
	now    func() time.Time
}

// NewFundingAnalysisService creates the service. store may be nil, in which
// case every call returns ErrHistoryUnavailable.
func NewFundingAnalysisService(store RateStore, params models.StrategyParameters, logger *logrus.Logger) *FundingAnalysisService {
	if logger == nil {
		logger = logrus.New()
	}
	return &FundingAnalysisService{
		store:  store,
		params: params,
		logger: logger.WithField("component", "funding_analysis"),
		now:    time.Now,
	}
}

// ParseWindow maps a window name to its duration, defaulting to 24h.
func ParseWindow(name string) (AnalysisWindow, bool) {
	if name == "" {
		return DefaultAnalysisWindows[0], true
	}
	for _, w := range DefaultAnalysisWindows {
		if w.Name == name {
			return w, true
		}
	}
	return AnalysisWindow{}, false
}

// History returns the stored records of the base asset within window.
func (s *FundingAnalysisService) History(ctx context.Context, window time.Duration) ([]models.RateRecord, error) {
	if s.store == nil {
		return nil, ErrHistoryUnavailable
	}
	return s.store.History(ctx, s.params.BaseAsset, s.now().Add(-window))
}

// Analyze computes window statistics, volatility, sign flips, trend and the
// Strategy A break-even funding rate against the current snapshot.
func (s *FundingAnalysisService) Analyze(ctx context.Context, snapshot models.RateSnapshot) (*models.FundingAnalysis, error) {
	longest := DefaultAnalysisWindows[len(DefaultAnalysisWindows)-1].Duration
	records, err := s.History(ctx, longest)
	if err != nil {
		return nil, err
	}
	return s.analyze(records, snapshot), nil
}

func (s *FundingAnalysisService) analyze(records []models.RateRecord, snapshot models.RateSnapshot) *models.FundingAnalysis {
	now := s.now()
	rates := make([]decimal.Decimal, len(records))
	for i, r := range records {
		rates[i] = r.FundingRate
	}

	analysis := &models.FundingAnalysis{
		Asset:      s.params.BaseAsset,
		Current:    snapshot.FundingRatePerPeriod,
		Volatility: stdDev(rates),
		SignFlips:  countSignFlips(rates),
		Trend:      classifyTrend(rates),
		Samples:    len(records),
		AnalyzedAt: now.UTC(),
	}

	for _, w := range DefaultAnalysisWindows {
		cutoff := now.Add(-w.Duration)
		var inWindow []decimal.Decimal
		for _, r := range records {
			if !r.RecordedAt.Before(cutoff) {
				inWindow = append(inWindow, r.FundingRate)
			}
		}
		analysis.Windows = append(analysis.Windows, windowStats(w.Name, inWindow))
	}

	analysis.BreakEvenRate = BreakEvenFundingRate(snapshot, s.params)
	analysis.DistanceFromBreakEven = analysis.Current.Sub(analysis.BreakEvenRate)
	return analysis
}

// BreakEvenFundingRate is the hourly funding rate at which Strategy A nets
// zero: (br[quote] - lr[base]) / 100 / 8760.
func BreakEvenFundingRate(snapshot models.RateSnapshot, params models.StrategyParameters) decimal.Decimal {
	spread := snapshot.BorrowRate(params.QuoteAsset).Sub(snapshot.LendRate(params.BaseAsset))
	return spread.Div(decimal.NewFromInt(100)).Div(decimal.NewFromInt(models.HoursPerYear))
}

func windowStats(name string, rates []decimal.Decimal) models.FundingWindowStats {
	stats := models.FundingWindowStats{Window: name, Samples: len(rates)}
	if len(rates) == 0 {
		return stats
	}
	stats.Min = decimal.Min(rates[0], rates[1:]...)
	stats.Max = decimal.Max(rates[0], rates[1:]...)
	stats.Mean = decimal.Avg(rates[0], rates[1:]...)
	return stats
}

// stdDev is the population standard deviation.
func stdDev(rates []decimal.Decimal) decimal.Decimal {
	if len(rates) < 2 {
		return decimal.Zero
	}
	mean := decimal.Avg(rates[0], rates[1:]...)
	variance := decimal.Zero
	for _, r := range rates {
		diff := r.Sub(mean)
		variance = variance.Add(diff.Mul(diff))
	}
	variance = variance.Div(decimal.NewFromInt(int64(len(rates))))

	sd, err := models.DecimalFromFloat(math.Sqrt(variance.InexactFloat64()))
	if err != nil {
		return decimal.Zero
	}
	return sd
}

// countSignFlips counts changes between positive and negative, skipping zeros.
func countSignFlips(rates []decimal.Decimal) int {
	flips, last := 0, 0
	for _, r := range rates {
		sign := r.Sign()
		if sign == 0 {
			continue
		}
		if last != 0 && sign != last {
			flips++
		}
		last = sign
	}
	return flips
}

// classifyTrend compares the latest fast and slow simple moving averages.
func classifyTrend(rates []decimal.Decimal) models.FundingTrend {
	if len(rates) < slowTrendPeriod {
		return models.TrendUnknown
	}

	series := make([]float64, len(rates))
	for i, r := range rates {
		series[i] = r.InexactFloat64()
	}

	fast := lastSMA(series, fastTrendPeriod)
	slow := lastSMA(series, slowTrendPeriod)

	scale := math.Max(math.Abs(slow), 1e-9)
	switch gap := (fast - slow) / scale; {
	case math.Abs(gap) <= trendTolerance:
		return models.TrendStable
	case gap > 0:
		return models.TrendIncreasing
	default:
		return models.TrendDecreasing
	}
}

func lastSMA(series []float64, period int) float64 {
	sma := trend.NewSmaWithPeriod[float64](period)
	values := helper.ChanToSlice(sma.Compute(helper.SliceToChan(series)))
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}
