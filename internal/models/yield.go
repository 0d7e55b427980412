package models

import (
	"github.com/shopspring/decimal"
)

// HoursPerYear annualises hourly funding rates. Leap years are ignored.
const HoursPerYear = 24 * 365

// StrategyKind identifies one of the yield strategies being compared.
type StrategyKind string

const (
	// StrategyA borrows the quote asset against base collateral and shorts the base perpetual.
	StrategyA StrategyKind = "strategy_a"
	// StrategyB lends the quote asset, borrows the base asset and goes long the perpetual.
	StrategyB StrategyKind = "strategy_b"
	// SimpleLending supplies the quote asset to the money market and nothing else.
	SimpleLending StrategyKind = "simple_lending"
)

// Label returns the short human readable name of the strategy.
func (k StrategyKind) Label() string {
	switch k {
	case StrategyA:
		return "strategy a - delta neutral short"
	case StrategyB:
		return "strategy b - delta neutral long"
	case SimpleLending:
		return "simple lending"
	default:
		return string(k)
	}
}

// StrategyParameters are the economic assumptions fixed for one computation.
type StrategyParameters struct {
	NotionalAmount  decimal.Decimal `json:"notional_amount"`
	AverageLTV      decimal.Decimal `json:"average_ltv"`
	BaseAsset       string          `json:"base_asset"`
	QuoteAsset      string          `json:"quote_asset"`
	RecommendMargin decimal.Decimal `json:"recommend_margin"`
}

// DefaultStrategyParameters mirrors the comparison the bot has always shown:
// 1000 units of notional at 50% LTV on INJ/USDT with no recommendation margin.
func DefaultStrategyParameters() StrategyParameters {
	return StrategyParameters{
		NotionalAmount:  decimal.NewFromInt(1000),
		AverageLTV:      decimal.RequireFromString("0.5"),
		BaseAsset:       AssetINJ,
		QuoteAsset:      AssetUSDT,
		RecommendMargin: decimal.Zero,
	}
}

// ImpliedLeverage is 1 / AverageLTV. It is zero for a zero LTV.
func (p StrategyParameters) ImpliedLeverage() decimal.Decimal {
	if p.AverageLTV.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromInt(1).Div(p.AverageLTV)
}

// StrategyComponents are the amounts that sum to a strategy's net profit.
type StrategyComponents struct {
	FundingRateAnnual decimal.Decimal `json:"funding_rate_annual"`
	SuppliedValue     decimal.Decimal `json:"supplied_value"`
	BorrowedValue     decimal.Decimal `json:"borrowed_value"`
	InterestPaid      decimal.Decimal `json:"interest_paid"`
	FundingEarned     decimal.Decimal `json:"funding_earned"`
	CollateralEarned  decimal.Decimal `json:"collateral_earned"`
	NetProfit         decimal.Decimal `json:"net_profit"`
}

// StrategyResult is the output of evaluating one strategy.
type StrategyResult struct {
	Strategy      StrategyKind       `json:"strategy"`
	APYPct        decimal.Decimal    `json:"apy_pct"`
	Components    StrategyComponents `json:"components"`
	MissingInputs []string           `json:"missing_inputs,omitempty"`
}

// Recommendation is the winner of a strategy comparison.
type Recommendation struct {
	Strategy      StrategyKind    `json:"strategy"`
	APYPct        decimal.Decimal `json:"apy_pct"`
	LendingAPYPct decimal.Decimal `json:"lending_apy_pct"`
	Margin        decimal.Decimal `json:"margin"`
}

// StrategyComparison bundles both strategies, the lending baseline and the recommendation.
type StrategyComparison struct {
	Parameters     StrategyParameters `json:"parameters"`
	StrategyA      StrategyResult     `json:"strategy_a"`
	StrategyB      StrategyResult     `json:"strategy_b"`
	LendingAPYPct  decimal.Decimal    `json:"lending_apy_pct"`
	Recommendation Recommendation     `json:"recommendation"`
}

// MissingInputs merges the missing inputs of both strategies without duplicates.
func (c StrategyComparison) MissingInputs() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range [][]string{c.StrategyA.MissingInputs, c.StrategyB.MissingInputs} {
		for _, name := range list {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}

// PositionSizingResult is the net yield of a levered position of a given size.
type PositionSizingResult struct {
	TotalPositionSize decimal.Decimal `json:"total_position_size"`
	Leverage          decimal.Decimal `json:"leverage"`
	BorrowedFunds     decimal.Decimal `json:"borrowed_funds"`
	InterestCost      decimal.Decimal `json:"interest_cost"`
	FundingEarnings   decimal.Decimal `json:"funding_earnings"`
	NetAPY            decimal.Decimal `json:"net_apy"`
	NetAPYPct         decimal.Decimal `json:"net_apy_pct"`
	MissingInputs     []string        `json:"missing_inputs,omitempty"`
}
