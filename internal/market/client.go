package market

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/nbrons/perp-prophet/internal/config"
	"github.com/nbrons/perp-prophet/internal/metrics"
	"github.com/nbrons/perp-prophet/internal/models"
	"github.com/nbrons/perp-prophet/internal/telemetry"
)

// ErrSourceNotConfigured is returned when a source has no URL configured.
var ErrSourceNotConfigured = errors.New("rate source URL not configured")

// maxBodyBytes bounds how much of an upstream response is read.
const maxBodyBytes = 4 << 20

// Client talks to the Helix and Neptune public endpoints.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	breakers   map[string]*gobreaker.CircuitBreaker
	cfg        config.MarketConfig
	denoms     map[string]string
	whitelist  map[string]struct{}
	logger     *logrus.Entry
}

// NewClient creates a rate client from the market configuration.
//
// Parameters:
//
//	cfg: Market configuration with URLs, denoms and throttling settings.
//	logger: Logger used for breaker state changes.
//
// Returns:
//
//	*Client: Initialized client.
func NewClient(cfg config.MarketConfig, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		httpClient: &http.Client{Timeout: config.Duration(cfg.Timeout, 15*time.Second)},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
		cfg:        cfg,
		denoms:     make(map[string]string, len(cfg.Denoms)),
		whitelist:  make(map[string]struct{}, len(cfg.WhitelistPairs)),
		logger:     logger.WithField("component", "market_client"),
	}

	// viper lowercases map keys, so denoms are matched case-insensitively
	for denom, asset := range cfg.Denoms {
		c.denoms[strings.ToLower(denom)] = strings.ToUpper(asset)
	}
	for _, pair := range cfg.WhitelistPairs {
		c.whitelist[pair] = struct{}{}
	}

	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	for _, source := range []string{models.SourceHelix, models.SourceNeptuneBorrow, models.SourceNeptuneLend} {
		c.breakers[source] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        source,
			MaxRequests: 1,
			Timeout:     config.Duration(cfg.BreakerTimeout, 60*time.Second),
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.WithFields(logrus.Fields{
					"source": name,
					"from":   from.String(),
					"to":     to.String(),
				}).Warn("Rate source circuit breaker changed state")
			},
		})
	}

	return c
}

// fetch performs one throttled, breaker-guarded GET and returns the body.
func (c *Client) fetch(ctx context.Context, source, url string) (body []byte, err error) {
	started := time.Now()
	defer func() { metrics.ObserveFetch(source, started, err) }()

	if url == "" {
		return nil, fmt.Errorf("%s: %w", source, ErrSourceNotConfigured)
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.GetExternalTracer(), "market.fetch",
		attribute.String("rate.source", source),
		attribute.String("http.url", url),
	)
	defer span.End()
	defer func() { telemetry.RecordError(span, err) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limiter: %w", source, err)
	}

	breaker, ok := c.breakers[source]
	if !ok {
		return c.makeRequest(ctx, source, url)
	}
	result, err := breaker.Execute(func() (interface{}, error) {
		return c.makeRequest(ctx, source, url)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// makeRequest is a helper method to issue the HTTP request for a source
func (c *Client) makeRequest(ctx context.Context, source, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create request: %w", source, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Perp-Prophet/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to make request: %w", source, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.WithError(err).Debug("Error closing response body")
		}
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response body: %w", source, err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s: upstream error (%d): %s", source, resp.StatusCode, truncate(string(respBody), 200))
	}
	return respBody, nil
}

// BreakerState reports the circuit breaker state of a source.
func (c *Client) BreakerState(source string) gobreaker.State {
	if b, ok := c.breakers[source]; ok {
		return b.State()
	}
	return gobreaker.StateClosed
}

// BreakerStates reports the circuit breaker state of every source.
func (c *Client) BreakerStates() map[string]string {
	states := make(map[string]string, len(c.breakers))
	for source, b := range c.breakers {
		states[source] = b.State().String()
	}
	return states
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
