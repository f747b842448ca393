package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/codesearch/internal/embeddings"

// Metrics records embedding calls by model and operation.
type Metrics struct {
	latency metric.Float64Histogram
	texts   metric.Int64Histogram
	errors  metric.Int64Counter
}

// NewMetrics registers the embedding instruments on the global meter
// provider. Registration failures leave the instrument unset.
func NewMetrics() *Metrics {
	return newMetrics(otel.Meter(instrumentationName))
}

func newMetrics(meter metric.Meter) *Metrics {
	m := &Metrics{}
	m.latency, _ = meter.Float64Histogram("codesearch.embedding.duration_seconds",
		metric.WithDescription("Embedding call latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30))
	m.texts, _ = meter.Int64Histogram("codesearch.embedding.batch_size",
		metric.WithDescription("Texts sent per document embedding call"),
		metric.WithUnit("{text}"),
		metric.WithExplicitBucketBoundaries(1, 8, 16, 32, 64, 128, 256))
	m.errors, _ = meter.Int64Counter("codesearch.embedding.errors_total",
		metric.WithDescription("Embedding calls that failed"),
		metric.WithUnit("{call}"))
	return m
}

// observe records one call that began at start. texts is zero for queries.
func (m *Metrics) observe(ctx context.Context, model, op string, start time.Time, texts int, err error) {
	attrs := metric.WithAttributes(attribute.String("model", model), attribute.String("operation", op))
	if m.latency != nil {
		m.latency.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	if texts > 0 && m.texts != nil {
		m.texts.Record(ctx, int64(texts), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}
