package monitoring

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects per-request counters for the gateway.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	wsConnections    prometheus.Gauge
	brokerCallErrors *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// NewMetrics returns the process-wide metrics set. Collectors register with
// the default registry, so construction happens once.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = newMetrics()
	})
	return defaultMetrics
}

func newMetrics() *Metrics {
	return &Metrics{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mgate_http_requests_total",
			Help: "Total HTTP requests by method, path and status.",
		}, []string{"method", "path", "status"}),
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mgate_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		wsConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mgate_ws_connections",
			Help: "Currently registered WebSocket clients.",
		}),
		brokerCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mgate_broker_call_errors_total",
			Help: "Failed broker calls by error code.",
		}, []string{"code"}),
	}
}

// Middleware records a counter and latency observation per request.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.requestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// SetActiveConnections tracks the WebSocket client count.
func (m *Metrics) SetActiveConnections(n float64) {
	m.wsConnections.Set(n)
}

// RecordBrokerError counts a failed broker call.
func (m *Metrics) RecordBrokerError(code string) {
	m.brokerCallErrors.WithLabelValues(code).Inc()
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
