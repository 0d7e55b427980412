package market

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nbrons/perp-prophet/internal/models"
)

var hundred = decimal.NewFromInt(100)

type neptuneAsset struct {
	NativeToken *struct {
		Denom string `json:"denom"`
	} `json:"native_token"`
}

// FetchBorrowRates returns Neptune borrow rates as annual percentages.
func (c *Client) FetchBorrowRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	body, err := c.fetch(ctx, models.SourceNeptuneBorrow, c.cfg.NeptuneBorrowURL)
	if err != nil {
		return nil, err
	}
	return c.parseNeptuneRates(models.SourceNeptuneBorrow, body)
}

// FetchLendRates returns Neptune lending rates as annual percentages.
func (c *Client) FetchLendRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	body, err := c.fetch(ctx, models.SourceNeptuneLend, c.cfg.NeptuneLendURL)
	if err != nil {
		return nil, err
	}
	return c.parseNeptuneRates(models.SourceNeptuneLend, body)
}

// parseNeptuneRates decodes [[{"native_token":{"denom":...}}, rate], ...].
// Unknown denoms and non-native assets are skipped.
func (c *Client) parseNeptuneRates(source string, body []byte) (map[string]decimal.Decimal, error) {
	var entries [][]json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("%s: failed to decode rates: %w", source, err)
	}

	rates := make(map[string]decimal.Decimal)
	for i, entry := range entries {
		if len(entry) < 2 {
			return nil, fmt.Errorf("%s: entry %d has %d elements, want 2", source, i, len(entry))
		}

		var asset neptuneAsset
		if err := json.Unmarshal(entry[0], &asset); err != nil {
			return nil, fmt.Errorf("%s: entry %d asset: %w", source, i, err)
		}
		if asset.NativeToken == nil {
			continue
		}
		symbol, ok := c.denoms[strings.ToLower(asset.NativeToken.Denom)]
		if !ok {
			continue
		}

		rate, err := parseRate(entry[1])
		if err != nil {
			return nil, fmt.Errorf("%s: %s rate: %w", source, symbol, err)
		}
		rates[symbol] = rate.Mul(hundred)
	}
	return rates, nil
}

// parseRate accepts a JSON number, a numeric string or null (zero).
func parseRate(raw json.RawMessage) (decimal.Decimal, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return decimal.Zero, nil
	}
	text = strings.Trim(text, `"`)
	if text == "" {
		return decimal.Zero, nil
	}

	switch strings.ToLower(strings.TrimLeft(text, "+-")) {
	case "nan", "inf", "infinity":
		return decimal.Zero, fmt.Errorf("%w: %s", models.ErrNonFiniteRate, text)
	}

	value, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid rate %q: %w", text, err)
	}
	return value, nil
}
