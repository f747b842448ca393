// Package telemetry installs OpenTelemetry tracer and meter providers.
//
// Telemetry is off by default. When enabled, spans and metrics are exported
// over OTLP (gRPC or HTTP/protobuf) and W3C trace context is installed as the
// global propagator. Components never hold a *Telemetry: they create tracers
// and meters through the otel globals, which New replaces.
//
// Failures to build an exporter do not stop the process. The instance is
// marked degraded, the error is logged and the no-op globals stay in place.
//
//	tel, err := telemetry.New(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
package telemetry
