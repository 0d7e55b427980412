package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/nbrons/perp-prophet/internal/models"
	"github.com/nbrons/perp-prophet/internal/services"
)

var errSourceDown = errors.New("source down")

// stubSource answers with fixed rates; a nil map fails that feed.
type stubSource struct {
	helix  map[string]models.HelixMarketRate
	borrow map[string]decimal.Decimal
	lend   map[string]decimal.Decimal
}

func (s *stubSource) FetchHelixRates(ctx context.Context) (map[string]models.HelixMarketRate, error) {
	if s.helix == nil {
		return nil, errSourceDown
	}
	return s.helix, nil
}

func (s *stubSource) FetchBorrowRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	if s.borrow == nil {
		return nil, errSourceDown
	}
	return s.borrow, nil
}

func (s *stubSource) FetchLendRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	if s.lend == nil {
		return nil, errSourceDown
	}
	return s.lend, nil
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// scenarioSource: funding 0.0001/h, USDT borrow 10%, INJ lend 8%, USDT lend 12%.
func scenarioSource() *stubSource {
	return &stubSource{
		helix: map[string]models.HelixMarketRate{
			"INJ": {TickerID: "INJ/USDT PERP", Token: "INJ", FundingRate: d("0.0001"), OpenInterest: d("125000")},
		},
		borrow: map[string]decimal.Decimal{"USDT": d("10"), "INJ": d("10")},
		lend:   map[string]decimal.Decimal{"INJ": d("8"), "USDT": d("12")},
	}
}

// memoryStore is a services.RateStore kept in memory.
type memoryStore struct {
	records []models.RateRecord
	err     error
}

func (m *memoryStore) Insert(ctx context.Context, record *models.RateRecord) error {
	if m.err != nil {
		return m.err
	}
	record.ID = int64(len(m.records) + 1)
	m.records = append(m.records, *record)
	return nil
}

func (m *memoryStore) History(ctx context.Context, asset string, since time.Time) ([]models.RateRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []models.RateRecord
	for _, r := range m.records {
		if r.Asset == asset && !r.RecordedAt.Before(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out, nil
}

func (m *memoryStore) Latest(ctx context.Context, asset string) (*models.RateRecord, error) {
	history, err := m.History(ctx, asset, time.Time{})
	if err != nil || len(history) == 0 {
		return nil, err
	}
	return &history[len(history)-1], nil
}

func (m *memoryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, m.err
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newOpportunities(source *stubSource) *services.OpportunityService {
	return services.NewOpportunityService(source, nil, models.DefaultStrategyParameters(), quietLogger())
}

func perform(t *testing.T, handler gin.HandlerFunc, method, path, route, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Handle(method, route, handler)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, d(want).Round(6).Equal(got.Round(6)), "want %s, got %s", want, got)
}
