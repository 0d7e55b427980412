package market

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/nbrons/perp-prophet/internal/models"
)

// RateSource fetches the three upstream feeds a snapshot is built from.
type RateSource interface {
	// FetchHelixRates returns whitelisted perpetual markets keyed by base token.
	FetchHelixRates(ctx context.Context) (map[string]models.HelixMarketRate, error)
	// FetchBorrowRates returns annual borrow percentages keyed by asset symbol.
	FetchBorrowRates(ctx context.Context) (map[string]decimal.Decimal, error)
	// FetchLendRates returns annual lend percentages keyed by asset symbol.
	FetchLendRates(ctx context.Context) (map[string]decimal.Decimal, error)
}

var _ RateSource = (*Client)(nil)
