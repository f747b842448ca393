package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
)

// guarded applies a per-call deadline and maps provider failures onto the
// codesearch error taxonomy.
type guarded struct {
	Provider
	timeout time.Duration
	metrics *Metrics
}

// WithTimeout wraps p so every call runs under timeout (0 disables the
// deadline) and any failure other than empty input is reported as
// codesearch.ErrCollaboratorUnavailable.
func WithTimeout(p Provider, timeout time.Duration) Provider {
	if g, ok := p.(*guarded); ok {
		p = g.Provider
	}
	return &guarded{Provider: p, timeout: timeout, metrics: NewMetrics()}
}

func (g *guarded) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := g.withDeadline(ctx)
	defer cancel()

	start := time.Now()
	vecs, err := g.Provider.EmbedDocuments(ctx, texts)
	err = g.classify(ctx, err)
	g.metrics.observe(ctx, g.Model(), "embed_documents", start, len(texts), err)
	return vecs, err
}

func (g *guarded) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := g.withDeadline(ctx)
	defer cancel()

	start := time.Now()
	vec, err := g.Provider.EmbedQuery(ctx, text)
	err = g.classify(ctx, err)
	g.metrics.observe(ctx, g.Model(), "embed_query", start, 0, err)
	return vec, err
}

func (g *guarded) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *guarded) classify(ctx context.Context, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrEmptyInput), errors.Is(err, codesearch.ErrCollaboratorUnavailable):
		return err
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: embedding timed out after %s", codesearch.ErrCollaboratorUnavailable, g.timeout)
	default:
		return fmt.Errorf("%w: embedding failed: %v", codesearch.ErrCollaboratorUnavailable, err)
	}
}
