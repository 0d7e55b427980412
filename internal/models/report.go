package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpportunityReport is what the API, the CLI and the alerts show for one snapshot.
type OpportunityReport struct {
	ID           string             `json:"id"`
	Snapshot     RateSnapshot       `json:"snapshot"`
	Comparison   StrategyComparison `json:"comparison"`
	OpenInterest decimal.Decimal    `json:"open_interest"`
	GeneratedAt  time.Time          `json:"generated_at"`
}

// FundingTrend classifies the recent direction of the funding rate.
type FundingTrend string

const (
	TrendUnknown    FundingTrend = "unknown"
	TrendStable     FundingTrend = "stable"
	TrendIncreasing FundingTrend = "increasing"
	TrendDecreasing FundingTrend = "decreasing"
)

// FundingWindowStats summarises the funding rate over one lookback window.
type FundingWindowStats struct {
	Window  string          `json:"window"`
	Samples int             `json:"samples"`
	Min     decimal.Decimal `json:"min"`
	Max     decimal.Decimal `json:"max"`
	Mean    decimal.Decimal `json:"mean"`
}

// FundingAnalysis is the historical view of the funding rate used by the advisory report.
type FundingAnalysis struct {
	Asset                 string               `json:"asset"`
	Current               decimal.Decimal      `json:"current"`
	Windows               []FundingWindowStats `json:"windows"`
	Volatility            decimal.Decimal      `json:"volatility"`
	SignFlips             int                  `json:"sign_flips"`
	Trend                 FundingTrend         `json:"trend"`
	BreakEvenRate         decimal.Decimal      `json:"break_even_rate"`
	DistanceFromBreakEven decimal.Decimal      `json:"distance_from_break_even"`
	Samples               int                  `json:"samples"`
	AnalyzedAt            time.Time            `json:"analyzed_at"`
}

// AlertKind names the condition that raised an alert.
type AlertKind string

const (
	AlertRecommendationChanged AlertKind = "recommendation_changed"
	AlertFundingFlipped        AlertKind = "funding_flipped"
	AlertSpreadOpened          AlertKind = "spread_opened"
	AlertTest                  AlertKind = "test"
)

// Alert is a notification-worthy change detected after a collection.
type Alert struct {
	Kind      AlertKind `json:"kind"`
	Message   string    `json:"message"`
	ReportID  string    `json:"report_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
