package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nbrons/perp-prophet/internal/models"
)

type helixTicker struct {
	TickerID     string          `json:"ticker_id"`
	FundingRate  json.RawMessage `json:"funding_rate"`
	OpenInterest json.RawMessage `json:"open_interest"`
}

// FetchHelixRates reads the Helix ticker feed and keeps the whitelisted
// perpetual markets, keyed by base token ("INJ/USDT PERP" -> "INJ").
func (c *Client) FetchHelixRates(ctx context.Context) (map[string]models.HelixMarketRate, error) {
	body, err := c.fetch(ctx, models.SourceHelix, c.cfg.HelixDataURL)
	if err != nil {
		return nil, err
	}
	return parseHelixTickers(body, c.whitelist)
}

func parseHelixTickers(body []byte, whitelist map[string]struct{}) (map[string]models.HelixMarketRate, error) {
	// the feed is served with python-style single quotes
	body = bytes.ReplaceAll(body, []byte("'"), []byte(`"`))

	var tickers []helixTicker
	if err := json.Unmarshal(body, &tickers); err != nil {
		return nil, fmt.Errorf("%s: failed to decode tickers: %w", models.SourceHelix, err)
	}

	rates := make(map[string]models.HelixMarketRate)
	for _, t := range tickers {
		if _, ok := whitelist[t.TickerID]; !ok {
			continue
		}
		funding, err := parseRate(t.FundingRate)
		if err != nil {
			return nil, fmt.Errorf("%s: %s funding_rate: %w", models.SourceHelix, t.TickerID, err)
		}
		openInterest, err := parseRate(t.OpenInterest)
		if err != nil {
			return nil, fmt.Errorf("%s: %s open_interest: %w", models.SourceHelix, t.TickerID, err)
		}

		token := strings.SplitN(t.TickerID, "/", 2)[0]
		rates[token] = models.HelixMarketRate{
			TickerID:     t.TickerID,
			Token:        token,
			FundingRate:  funding,
			OpenInterest: openInterest,
		}
	}
	return rates, nil
}
