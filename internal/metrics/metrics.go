package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RateFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perp_prophet_rate_fetches_total",
		Help: "Upstream rate fetches by source and outcome",
	}, []string{"source", "status"})

	RateFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "perp_prophet_rate_fetch_duration_seconds",
		Help:    "Upstream rate fetch latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	SnapshotCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perp_prophet_snapshot_cache_total",
		Help: "Snapshot cache lookups by result",
	}, []string{"result"})

	CollectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perp_prophet_collections_total",
		Help: "Collector runs by outcome",
	}, []string{"status"})

	StrategyAPY = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "perp_prophet_strategy_apy_pct",
		Help: "Latest APY in percent per strategy",
	}, []string{"strategy"})

	FundingRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "perp_prophet_funding_rate_per_period",
		Help: "Latest hourly funding rate per asset",
	}, []string{"asset"})

	AlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perp_prophet_alerts_total",
		Help: "Alerts raised by kind and delivery outcome",
	}, []string{"kind", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "perp_prophet_http_request_duration_seconds",
		Help:    "API request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "code"})
)

// ObserveFetch records the outcome and latency of one upstream request.
func ObserveFetch(source string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	RateFetchesTotal.WithLabelValues(source, status).Inc()
	RateFetchDuration.WithLabelValues(source).Observe(time.Since(started).Seconds())
}

// GinMiddleware records request latency keyed by the matched route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(started).Seconds())
	}
}
