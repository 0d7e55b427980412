package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nbrons/perp-prophet/internal/api/handlers"
	"github.com/nbrons/perp-prophet/internal/middleware"
	"github.com/nbrons/perp-prophet/internal/models"
	"github.com/nbrons/perp-prophet/internal/services"
)

type fixedSource struct{}

func (fixedSource) FetchHelixRates(ctx context.Context) (map[string]models.HelixMarketRate, error) {
	return map[string]models.HelixMarketRate{
		"INJ": {TickerID: "INJ/USDT PERP", Token: "INJ", FundingRate: decimal.RequireFromString("0.0001")},
	}, nil
}

func (fixedSource) FetchBorrowRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	return map[string]decimal.Decimal{"USDT": decimal.NewFromInt(10), "INJ": decimal.NewFromInt(10)}, nil
}

func (fixedSource) FetchLendRates(ctx context.Context) (map[string]decimal.Decimal, error) {
	return map[string]decimal.Decimal{"INJ": decimal.NewFromInt(8), "USDT": decimal.NewFromInt(12)}, nil
}

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	hash, err := bcrypt.GenerateFromPassword([]byte("admin-key"), bcrypt.MinCost)
	require.NoError(t, err)

	params := models.DefaultStrategyParameters()
	opportunities := services.NewOpportunityService(fixedSource{}, nil, params, logger)
	auth := middleware.NewAuthMiddleware("secret", "perp-prophet")

	router := NewRouter("perp-prophet-test", []string{"*"}, logger)
	SetupRoutes(router, Dependencies{
		Opportunities: opportunities,
		Advisory:      services.NewAdvisoryService(),
		Collector:     services.NewCollectorService(opportunities, nil, nil, services.CollectorSettings{Interval: time.Minute}, logger),
		Auth:          auth,
		Admin:         middleware.NewAdminMiddleware(string(hash), auth),
		TokenExpiry:   time.Hour,
		Version:       "test",
	})
	return router
}

func do(router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSetupRoutes_PublicEndpoints(t *testing.T) {
	router := testRouter(t)

	tests := []struct {
		method   string
		path     string
		body     string
		wantCode int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/ready", "", http.StatusOK},
		{http.MethodGet, "/live", "", http.StatusOK},
		{http.MethodGet, "/api/v1/opportunities", "", http.StatusOK},
		{http.MethodPost, "/api/v1/opportunities/evaluate", `{"recommend_margin":"5"}`, http.StatusOK},
		{http.MethodGet, "/api/v1/opportunities/advisory", "", http.StatusOK},
		{http.MethodGet, "/api/v1/position-sizing?total_position_size=1000&leverage=2", "", http.StatusOK},
		{http.MethodGet, "/api/v1/strategies/strategy_a", "", http.StatusOK},
		{http.MethodGet, "/api/v1/funding/history", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := do(router, tt.method, tt.path, tt.body, map[string]string{"Content-Type": "application/json"})
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
		})
	}
}

func TestSetupRoutes_Metrics(t *testing.T) {
	router := testRouter(t)
	do(router, http.MethodGet, "/api/v1/opportunities", "", nil)

	w := do(router, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "perp_prophet_http_request_duration_seconds")
}

func TestSetupRoutes_AdminRequiresCredentials(t *testing.T) {
	router := testRouter(t)

	w := do(router, http.MethodPost, "/api/v1/admin/collect", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodPost, "/api/v1/admin/collect", "", map[string]string{"X-API-Key": "admin-key"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetupRoutes_TokenFlow(t *testing.T) {
	router := testRouter(t)

	w := do(router, http.MethodPost, "/api/v1/auth/token", `{"api_key":"admin-key"}`, map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusOK, w.Code)

	token := extractToken(t, w.Body.String())
	w = do(router, http.MethodPost, "/api/v1/admin/collect", "", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodGet, "/api/v1/admin/cache/stats", "", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code, "cache disabled in this router")
}

func TestNewRouter_CORSPreflight(t *testing.T) {
	router := testRouter(t)
	w := do(router, http.MethodOptions, "/api/v1/opportunities", "", map[string]string{"Origin": "https://dash.example"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://dash.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func extractToken(t *testing.T, body string) string {
	t.Helper()
	var resp handlers.TokenResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}
