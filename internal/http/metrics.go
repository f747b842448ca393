package http

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics holds the Prometheus collectors for the API.
//
//   - codesearch_http_requests_total{method,endpoint,status}
//   - codesearch_http_request_duration_seconds{method,endpoint,status}
//   - codesearch_http_response_size_bytes{method,endpoint,status}
//   - codesearch_http_active_requests
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	size     *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

var labels = []string{"method", "endpoint", "status"}

// defaultMetrics registers on the default registry once per process, which
// is what /metrics serves.
var defaultMetrics = sync.OnceValue(func() *HTTPMetrics {
	return NewHTTPMetrics(prometheus.DefaultRegisterer)
})

// NewHTTPMetrics registers the collectors on reg.
func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	f := promauto.With(reg)
	return &HTTPMetrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "codesearch_http_requests_total",
			Help: "HTTP requests by method, route template and status code.",
		}, labels),
		// Index builds run inside the request, hence the long tail.
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codesearch_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 10, 30, 120, 600},
		}, labels),
		size: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codesearch_http_response_size_bytes",
			Help:    "HTTP response body size.",
			Buckets: prometheus.ExponentialBuckets(128, 4, 8),
		}, labels),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "codesearch_http_active_requests",
			Help: "Requests currently being served.",
		}),
	}
}

// Middleware records every request. It must run outside the handler that
// writes error responses so the final status is observed.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.inFlight.Inc()
			defer m.inFlight.Dec()
			start := time.Now()

			err := next(c)

			res := c.Response()
			lv := []string{c.Request().Method, normalizePath(c.Path()), strconv.Itoa(res.Status)}
			m.requests.WithLabelValues(lv...).Inc()
			m.duration.WithLabelValues(lv...).Observe(time.Since(start).Seconds())
			m.size.WithLabelValues(lv...).Observe(float64(res.Size))
			return err
		}
	}
}

// normalizePath returns the endpoint label. Echo reports the route template
// (/api/code/:id), so ids never reach the label set; requests that matched
// no route share one label.
func normalizePath(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
