package mcp

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
)

const instrumentationName = "github.com/fyrsmithlabs/codesearch/internal/mcp"

// Metrics records tool calls. Instruments that fail to register are left
// nil and skipped.
type Metrics struct {
	calls    metric.Int64Counter
	latency  metric.Float64Histogram
	failures metric.Int64Counter
	inFlight metric.Int64UpDownCounter
}

// NewMetrics registers the tool instruments on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	return newMetrics(otel.Meter(instrumentationName), logger)
}

func newMetrics(meter metric.Meter, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	warn := func(name string, err error) {
		if err != nil {
			logger.Warn("registering instrument", zap.String("instrument", name), zap.Error(err))
		}
	}

	m := &Metrics{}
	var err error

	m.calls, err = meter.Int64Counter("codesearch.mcp.tool.invocations_total",
		metric.WithDescription("Tool calls received"),
		metric.WithUnit("{call}"))
	warn("invocations_total", err)

	m.latency, err = meter.Float64Histogram("codesearch.mcp.tool.duration_seconds",
		metric.WithDescription("Tool call latency. Index builds dominate the upper buckets."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300))
	warn("duration_seconds", err)

	m.failures, err = meter.Int64Counter("codesearch.mcp.tool.errors_total",
		metric.WithDescription("Tool calls that returned an error, by error code"),
		metric.WithUnit("{call}"))
	warn("errors_total", err)

	m.inFlight, err = meter.Int64UpDownCounter("codesearch.mcp.tool.active_requests",
		metric.WithDescription("Tool calls in progress"),
		metric.WithUnit("{call}"))
	warn("active_requests", err)

	return m
}

// start marks a call to tool as in flight. The returned func ends it and
// records its outcome.
func (m *Metrics) start(ctx context.Context, tool string) func(err error) {
	begun := time.Now()
	toolAttr := metric.WithAttributes(attribute.String("tool", tool))
	if m.inFlight != nil {
		m.inFlight.Add(ctx, 1, toolAttr)
	}

	return func(err error) {
		if m.inFlight != nil {
			m.inFlight.Add(ctx, -1, toolAttr)
		}
		if m.calls != nil {
			m.calls.Add(ctx, 1, toolAttr)
		}
		if m.latency != nil {
			m.latency.Record(ctx, time.Since(begun).Seconds(), toolAttr)
		}
		if err != nil && m.failures != nil {
			m.failures.Add(ctx, 1, metric.WithAttributes(
				attribute.String("tool", tool),
				attribute.String("code", codesearch.Code(err)),
			))
		}
	}
}
