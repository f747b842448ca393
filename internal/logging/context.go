package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 4)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}
	if repoID, ok := RepositoryIDFromContext(ctx); ok {
		fields = append(fields, zap.Int64("repository.id", repoID))
	}
	return fields
}

type requestCtxKey struct{}
type repositoryCtxKey struct{}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRequestID adds request ID to context. Empty IDs are ignored.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RepositoryIDFromContext returns the repository the current operation works on.
func RepositoryIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(repositoryCtxKey{}).(int64)
	return id, ok
}

// WithRepositoryID tags the context with a repository id.
func WithRepositoryID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, repositoryCtxKey{}, id)
}
