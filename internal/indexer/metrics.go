package indexer

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for index builds.
type Metrics struct {
	BuildsTotal   *prometheus.CounterVec
	BuildDuration prometheus.Histogram
	FilesSkipped  *prometheus.CounterVec
	SnippetsTotal prometheus.Counter
	IndexEntries  prometheus.Gauge
	EmbedFailures prometheus.Counter
}

// NewMetrics registers the index metrics once per process.
//
//   - codesearch_index_builds_total{policy,status}
//   - codesearch_index_build_duration_seconds
//   - codesearch_index_files_skipped_total{reason}
//   - codesearch_index_snippets_total
//   - codesearch_index_entries
//   - codesearch_index_embedding_failures_total
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			BuildsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "codesearch_index_builds_total",
					Help: "Total number of index builds",
				},
				[]string{"policy", "status"},
			),
			BuildDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "codesearch_index_build_duration_seconds",
					Help:    "Duration of index builds in seconds",
					Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
				},
			),
			FilesSkipped: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "codesearch_index_files_skipped_total",
					Help: "Files left out of index builds",
				},
				[]string{"reason"}, // "too_large", "unreadable", "binary"
			),
			SnippetsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "codesearch_index_snippets_total",
					Help: "Total number of snippets persisted by index builds",
				},
			),
			IndexEntries: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "codesearch_index_entries",
					Help: "Number of vectors in the persisted index",
				},
			),
			EmbedFailures: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "codesearch_index_embedding_failures_total",
					Help: "Index builds aborted by the embedding service",
				},
			),
		}
	})
	return globalMetrics
}
