package services

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nbrons/perp-prophet/internal/models"
	"github.com/nbrons/perp-prophet/internal/utils"
)

// YieldCalculator turns a rate snapshot and strategy parameters into strategy
// APYs and a recommendation. It performs no I/O and holds no mutable state, so
// one instance can be shared by every request.
type YieldCalculator struct {
	// Configuration
	HoursPerYear decimal.Decimal // Hourly funding periods per year (8760)
	hundred      decimal.Decimal
}

// NewYieldCalculator creates a new calculator instance
func NewYieldCalculator() *YieldCalculator {
	return &YieldCalculator{
		HoursPerYear: decimal.NewFromInt(models.HoursPerYear),
		hundred:      decimal.NewFromInt(100),
	}
}

// ValidateParameters rejects parameters the model cannot evaluate.
func (calc *YieldCalculator) ValidateParameters(params models.StrategyParameters) error {
	if !params.NotionalAmount.IsPositive() {
		return utils.NewValidationErrorf("notional_amount", "must be positive, got %s", params.NotionalAmount)
	}
	if !params.AverageLTV.IsPositive() || params.AverageLTV.GreaterThan(decimal.NewFromInt(1)) {
		return utils.NewValidationErrorf("average_ltv", "must be in (0, 1], got %s", params.AverageLTV)
	}
	if params.RecommendMargin.IsNegative() {
		return utils.NewValidationErrorf("recommend_margin", "must not be negative, got %s", params.RecommendMargin)
	}
	if strings.TrimSpace(params.BaseAsset) == "" {
		return utils.NewValidationError("base_asset", "is required")
	}
	if strings.TrimSpace(params.QuoteAsset) == "" {
		return utils.NewValidationError("quote_asset", "is required")
	}
	if strings.EqualFold(params.BaseAsset, params.QuoteAsset) {
		return utils.NewValidationErrorf("quote_asset", "must differ from base asset %s", params.BaseAsset)
	}
	return nil
}

// AnnualizeFundingRate converts an hourly funding fraction into an annual fraction.
func (calc *YieldCalculator) AnnualizeFundingRate(ratePerPeriod decimal.Decimal) decimal.Decimal {
	return ratePerPeriod.Mul(calc.HoursPerYear)
}

// EvaluateStrategyA borrows the quote asset against base collateral and shorts
// the base perpetual, earning funding plus collateral interest.
func (calc *YieldCalculator) EvaluateStrategyA(snapshot models.RateSnapshot, params models.StrategyParameters) (models.StrategyResult, error) {
	if err := calc.ValidateParameters(params); err != nil {
		return models.StrategyResult{}, err
	}

	notional := params.NotionalAmount
	borrowRate := snapshot.BorrowRate(params.QuoteAsset)
	lendRate := snapshot.LendRate(params.BaseAsset)
	fundingAnnual := calc.AnnualizeFundingRate(snapshot.FundingRatePerPeriod)

	borrowed := notional.Mul(params.AverageLTV)
	interest := notional.Mul(borrowRate).Div(calc.hundred)
	funding := borrowed.Mul(params.ImpliedLeverage()).Mul(fundingAnnual)
	collateral := notional.Mul(lendRate).Div(calc.hundred)
	net := funding.Sub(interest).Add(collateral)

	return models.StrategyResult{
		Strategy: models.StrategyA,
		APYPct:   net.Div(notional).Mul(calc.hundred),
		Components: models.StrategyComponents{
			FundingRateAnnual: fundingAnnual,
			SuppliedValue:     notional,
			BorrowedValue:     borrowed,
			InterestPaid:      interest,
			FundingEarned:     funding,
			CollateralEarned:  collateral,
			NetProfit:         net,
		},
		MissingInputs: missingInputs(snapshot.FundingRatePerPeriod,
			rateInput{"borrow_rate", params.QuoteAsset, borrowRate},
			rateInput{"lend_rate", params.BaseAsset, lendRate},
		),
	}, nil
}

// EvaluateStrategyB lends the quote asset, borrows the base asset and goes
// long the perpetual. The supplied value is the negated notional; interest on
// the borrowed leg is always booked as a non-negative cost.
func (calc *YieldCalculator) EvaluateStrategyB(snapshot models.RateSnapshot, params models.StrategyParameters) (models.StrategyResult, error) {
	if err := calc.ValidateParameters(params); err != nil {
		return models.StrategyResult{}, err
	}

	notional := params.NotionalAmount
	borrowRate := snapshot.BorrowRate(params.BaseAsset)
	lendRate := snapshot.LendRate(params.QuoteAsset)
	fundingAnnual := calc.AnnualizeFundingRate(snapshot.FundingRatePerPeriod)

	supplied := notional.Neg()
	borrowed := supplied.Mul(params.AverageLTV)
	interest := borrowed.Abs().Mul(borrowRate).Div(calc.hundred)
	funding := supplied.Mul(params.ImpliedLeverage()).Mul(fundingAnnual)
	collateral := supplied.Mul(lendRate).Div(calc.hundred)
	net := funding.Sub(interest).Add(collateral)

	return models.StrategyResult{
		Strategy: models.StrategyB,
		APYPct:   net.Div(notional).Mul(calc.hundred),
		Components: models.StrategyComponents{
			FundingRateAnnual: fundingAnnual,
			SuppliedValue:     supplied,
			BorrowedValue:     borrowed,
			InterestPaid:      interest,
			FundingEarned:     funding,
			CollateralEarned:  collateral,
			NetProfit:         net,
		},
		MissingInputs: missingInputs(snapshot.FundingRatePerPeriod,
			rateInput{"borrow_rate", params.BaseAsset, borrowRate},
			rateInput{"lend_rate", params.QuoteAsset, lendRate},
		),
	}, nil
}

// Recommend picks the better delta-neutral strategy (A on ties) and keeps it
// only if it beats lending by at least margin; otherwise lending wins.
func (calc *YieldCalculator) Recommend(apyA, apyB, lendingAPY, margin decimal.Decimal) (models.Recommendation, error) {
	if margin.IsNegative() {
		return models.Recommendation{}, utils.NewValidationErrorf("recommend_margin", "must not be negative, got %s", margin)
	}

	best, bestAPY := models.StrategyA, apyA
	if apyB.GreaterThan(apyA) {
		best, bestAPY = models.StrategyB, apyB
	}

	rec := models.Recommendation{
		Strategy:      best,
		APYPct:        bestAPY,
		LendingAPYPct: lendingAPY,
		Margin:        margin,
	}
	if bestAPY.Sub(lendingAPY).LessThan(margin) {
		rec.Strategy = models.SimpleLending
		rec.APYPct = lendingAPY
	}
	return rec, nil
}

// PositionSizing computes the net APY of a position of totalPositionSize
// financed at the given leverage: funding on the full size minus interest on
// the borrowed part (totalPositionSize / leverage) at the quote borrow rate.
func (calc *YieldCalculator) PositionSizing(
	snapshot models.RateSnapshot,
	params models.StrategyParameters,
	totalPositionSize, leverage decimal.Decimal,
) (models.PositionSizingResult, error) {
	if !totalPositionSize.IsPositive() {
		return models.PositionSizingResult{}, utils.NewValidationErrorf("total_position_size", "must be positive, got %s", totalPositionSize)
	}
	if !leverage.IsPositive() {
		return models.PositionSizingResult{}, utils.NewValidationErrorf("leverage", "must be positive, got %s", leverage)
	}
	if strings.TrimSpace(params.QuoteAsset) == "" {
		return models.PositionSizingResult{}, utils.NewValidationError("quote_asset", "is required")
	}

	borrowRate := snapshot.BorrowRate(params.QuoteAsset)
	fundingAnnual := calc.AnnualizeFundingRate(snapshot.FundingRatePerPeriod)

	borrowed := totalPositionSize.Div(leverage)
	interest := borrowed.Mul(borrowRate).Div(calc.hundred)
	earnings := totalPositionSize.Mul(fundingAnnual)
	netAPY := earnings.Sub(interest).Div(totalPositionSize)

	return models.PositionSizingResult{
		TotalPositionSize: totalPositionSize,
		Leverage:          leverage,
		BorrowedFunds:     borrowed,
		InterestCost:      interest,
		FundingEarnings:   earnings,
		NetAPY:            netAPY,
		NetAPYPct:         netAPY.Mul(calc.hundred),
		MissingInputs: missingInputs(snapshot.FundingRatePerPeriod,
			rateInput{"borrow_rate", params.QuoteAsset, borrowRate},
		),
	}, nil
}

// Compare evaluates both strategies, the quote lending baseline and the recommendation.
func (calc *YieldCalculator) Compare(snapshot models.RateSnapshot, params models.StrategyParameters) (models.StrategyComparison, error) {
	a, err := calc.EvaluateStrategyA(snapshot, params)
	if err != nil {
		return models.StrategyComparison{}, err
	}
	b, err := calc.EvaluateStrategyB(snapshot, params)
	if err != nil {
		return models.StrategyComparison{}, err
	}

	lending := snapshot.LendRate(params.QuoteAsset)
	rec, err := calc.Recommend(a.APYPct, b.APYPct, lending, params.RecommendMargin)
	if err != nil {
		return models.StrategyComparison{}, err
	}

	return models.StrategyComparison{
		Parameters:     params,
		StrategyA:      a,
		StrategyB:      b,
		LendingAPYPct:  lending,
		Recommendation: rec,
	}, nil
}

type rateInput struct {
	kind  string
	asset string
	value decimal.Decimal
}

// missingInputs names every zero input, e.g. "funding_rate" or "borrow_rate:USDT".
func missingInputs(fundingRate decimal.Decimal, rates ...rateInput) []string {
	var missing []string
	if fundingRate.IsZero() {
		missing = append(missing, "funding_rate")
	}
	for _, r := range rates {
		if r.value.IsZero() {
			missing = append(missing, r.kind+":"+r.asset)
		}
	}
	return missing
}
