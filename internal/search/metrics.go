package search

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for searches.
type Metrics struct {
	Requests  *prometheus.CounterVec
	Duration  prometheus.Histogram
	Results   prometheus.Histogram
	StaleHits prometheus.Counter
}

// NewMetrics registers the search metrics once per process.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			Requests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "codesearch_search_requests_total",
					Help: "Total number of searches by outcome",
				},
				[]string{"status"},
			),
			Duration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "codesearch_search_duration_seconds",
					Help:    "Duration of searches in seconds",
					Buckets: prometheus.DefBuckets,
				},
			),
			Results: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "codesearch_search_results",
					Help:    "Number of results returned per search",
					Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
				},
			),
			StaleHits: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "codesearch_search_stale_hits_total",
					Help: "Index hits whose snippet no longer exists",
				},
			),
		}
	})
	return globalMetrics
}
