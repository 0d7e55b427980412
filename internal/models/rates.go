package models

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Asset symbols used as keys in rate maps.
const (
	AssetINJ  = "INJ"
	AssetUSDT = "USDT"
	AssetETH  = "ETH"
)

// Rate source names reported in RateSnapshot.Unavailable.
const (
	SourceHelix         = "helix"
	SourceNeptuneBorrow = "neptune_borrow"
	SourceNeptuneLend   = "neptune_lend"
)

// ErrNonFiniteRate is returned when an upstream value is NaN or infinite.
var ErrNonFiniteRate = errors.New("non-finite rate")

// DecimalFromFloat converts a float coming off the wire into a decimal,
// rejecting NaN and infinities instead of panicking like decimal.NewFromFloat.
func DecimalFromFloat(v float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrNonFiniteRate, v)
	}
	return decimal.NewFromFloat(v), nil
}

// HelixMarketRate is one whitelisted perpetual market from the Helix ticker feed.
type HelixMarketRate struct {
	TickerID     string          `json:"ticker_id"`
	Token        string          `json:"token"`
	FundingRate  decimal.Decimal `json:"funding_rate"`
	OpenInterest decimal.Decimal `json:"open_interest"`
}

// RateSnapshot is a point-in-time observation of funding, borrow and lend rates.
// Borrow and lend rates are annual percentages; the funding rate is a signed
// hourly fraction. A missing asset key reads as zero, which means "unavailable".
type RateSnapshot struct {
	FundingRatePerPeriod decimal.Decimal            `json:"funding_rate_per_period"`
	BorrowRateAnnualPct  map[string]decimal.Decimal `json:"borrow_rate_annual_pct"`
	LendRateAnnualPct    map[string]decimal.Decimal `json:"lend_rate_annual_pct"`
	Markets              map[string]HelixMarketRate `json:"markets,omitempty"`
	Unavailable          []string                   `json:"unavailable,omitempty"`
	FetchedAt            time.Time                  `json:"fetched_at"`
}

// NewRateSnapshot builds a snapshot that owns copies of the given rate maps.
func NewRateSnapshot(fundingRate decimal.Decimal, borrow, lend map[string]decimal.Decimal) RateSnapshot {
	return RateSnapshot{
		FundingRatePerPeriod: fundingRate,
		BorrowRateAnnualPct:  copyRates(borrow),
		LendRateAnnualPct:    copyRates(lend),
		FetchedAt:            time.Now().UTC(),
	}
}

// BorrowRate returns the annual borrow percentage for asset, or zero.
func (s RateSnapshot) BorrowRate(asset string) decimal.Decimal {
	if rate, ok := s.BorrowRateAnnualPct[asset]; ok {
		return rate
	}
	return decimal.Zero
}

// LendRate returns the annual lend percentage for asset, or zero.
func (s RateSnapshot) LendRate(asset string) decimal.Decimal {
	if rate, ok := s.LendRateAnnualPct[asset]; ok {
		return rate
	}
	return decimal.Zero
}

// OpenInterest returns the open interest of the market quoted for token, or zero.
func (s RateSnapshot) OpenInterest(token string) decimal.Decimal {
	if m, ok := s.Markets[token]; ok {
		return m.OpenInterest
	}
	return decimal.Zero
}

// Degraded reports whether at least one source failed while building the snapshot.
func (s RateSnapshot) Degraded() bool {
	return len(s.Unavailable) > 0
}

// Assets returns every asset symbol that has a borrow or lend rate, sorted.
func (s RateSnapshot) Assets() []string {
	seen := make(map[string]struct{})
	for k := range s.BorrowRateAnnualPct {
		seen[k] = struct{}{}
	}
	for k := range s.LendRateAnnualPct {
		seen[k] = struct{}{}
	}
	assets := make([]string, 0, len(seen))
	for k := range seen {
		assets = append(assets, k)
	}
	sort.Strings(assets)
	return assets
}

func copyRates(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// RateRecord is one persisted collection of rates together with the model output for it.
type RateRecord struct {
	ID             int64                      `json:"id" db:"id"`
	Asset          string                     `json:"asset" db:"asset"`
	FundingRate    decimal.Decimal            `json:"funding_rate" db:"funding_rate"`
	OpenInterest   decimal.Decimal            `json:"open_interest" db:"open_interest"`
	BorrowRates    map[string]decimal.Decimal `json:"borrow_rates" db:"borrow_rates"`
	LendRates      map[string]decimal.Decimal `json:"lend_rates" db:"lend_rates"`
	StrategyAAPY   decimal.Decimal            `json:"strategy_a_apy" db:"strategy_a_apy"`
	StrategyBAPY   decimal.Decimal            `json:"strategy_b_apy" db:"strategy_b_apy"`
	LendingAPY     decimal.Decimal            `json:"lending_apy" db:"lending_apy"`
	Recommendation StrategyKind               `json:"recommendation" db:"recommendation"`
	Unavailable    []string                   `json:"unavailable,omitempty" db:"unavailable"`
	RecordedAt     time.Time                  `json:"recorded_at" db:"recorded_at"`
}
