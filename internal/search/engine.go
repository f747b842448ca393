// Package search answers free-text queries against the global snippet index.
//
// A query is embedded, the k nearest index entries are retrieved, then hits
// are filtered by repository and resolved to stored snippets. Filtering
// happens after retrieval, so a repository-scoped search can return fewer
// than k results even when that repository has more matching snippets.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
	"github.com/fyrsmithlabs/codesearch/internal/embeddings"
	"github.com/fyrsmithlabs/codesearch/internal/indexer"
	"github.com/fyrsmithlabs/codesearch/internal/logging"
	"github.com/fyrsmithlabs/codesearch/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/codesearch/internal/search")

const (
	DefaultTopK           = 5
	DefaultMinQueryLength = 3
	DefaultPreviewLength  = 300
)

// SnippetStore resolves hits and records the search ledger.
type SnippetStore interface {
	GetSnippets(ctx context.Context, ids []int64) (map[int64]*codesearch.Snippet, error)
	RecordSearch(ctx context.Context, query string, count int) (*codesearch.SearchHistoryEntry, error)
}

// Index is the loaded-index side of the index manager.
type Index interface {
	Load(ctx context.Context) (vectorstore.Handle, error)
	Manifest() (*indexer.IndexManifest, error)
}

// Config configures the Engine.
type Config struct {
	TopK           int
	MinQueryLength int
	PreviewLength  int
}

// Engine runs searches.
type Engine struct {
	store    SnippetStore
	index    Index
	embedder embeddings.Embedder
	model    string
	cfg      Config
	metrics  *Metrics
	logger   *zap.Logger
}

// NewEngine creates an Engine. model is the embedding model name compared
// against the index manifest.
func NewEngine(store SnippetStore, index Index, embedder embeddings.Embedder, model string, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MinQueryLength <= 0 {
		cfg.MinQueryLength = DefaultMinQueryLength
	}
	if cfg.PreviewLength <= 0 {
		cfg.PreviewLength = DefaultPreviewLength
	}
	return &Engine{
		store:    store,
		index:    index,
		embedder: embedder,
		model:    model,
		cfg:      cfg,
		metrics:  NewMetrics(),
		logger:   logger,
	}
}

// Search returns up to TopK results for query, optionally restricted to one
// repository, and records the search in the history ledger.
func (e *Engine) Search(ctx context.Context, query string, repositoryID *int64) ([]codesearch.SearchResult, error) {
	return e.run(ctx, "Engine.Search", query, repositoryID, true)
}

// Lookup runs a query like Search but leaves the history ledger untouched.
// Exports re-render a search the caller already ran.
func (e *Engine) Lookup(ctx context.Context, query string, repositoryID *int64) ([]codesearch.SearchResult, error) {
	return e.run(ctx, "Engine.Lookup", query, repositoryID, false)
}

func (e *Engine) run(ctx context.Context, op, query string, repositoryID *int64, record bool) ([]codesearch.SearchResult, error) {
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.Int("query_length", utf8.RuneCountInString(query)))
	if repositoryID != nil {
		span.SetAttributes(attribute.Int64("repository_id", *repositoryID))
	}

	start := time.Now()
	results, err := e.search(ctx, query, repositoryID, record)
	status := "success"
	if err != nil {
		status = codesearch.Code(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("results", len(results)))
		span.SetStatus(codes.Ok, "ok")
		e.metrics.Results.Observe(float64(len(results)))
	}
	e.metrics.Requests.WithLabelValues(status).Inc()
	e.metrics.Duration.Observe(time.Since(start).Seconds())
	return results, err
}

func (e *Engine) search(ctx context.Context, query string, repositoryID *int64, record bool) ([]codesearch.SearchResult, error) {
	if n := utf8.RuneCountInString(query); n < e.cfg.MinQueryLength {
		return nil, fmt.Errorf("%w: query must be at least %d characters, got %d", codesearch.ErrInvalidQuery, e.cfg.MinQueryLength, n)
	}

	handle, err := e.index.Load(ctx)
	if err != nil {
		return nil, err
	}
	e.checkModel()

	vec, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		if !errors.Is(err, codesearch.ErrCollaboratorUnavailable) {
			err = fmt.Errorf("%w: %v", codesearch.ErrCollaboratorUnavailable, err)
		}
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := handle.Query(ctx, vec, e.cfg.TopK)
	if err != nil {
		return nil, err
	}

	if repositoryID != nil {
		kept := make([]vectorstore.Hit, 0, len(hits))
		for _, h := range hits {
			if h.RepositoryID == *repositoryID {
				kept = append(kept, h)
			}
		}
		hits = kept
	}

	results, err := e.hydrate(ctx, hits)
	if err != nil {
		return nil, err
	}

	if !record {
		return results, nil
	}
	if _, err := e.store.RecordSearch(ctx, query, len(results)); err != nil {
		return nil, fmt.Errorf("recording search: %w", err)
	}
	return results, nil
}

// hydrate resolves hits to snippets in hit order. Hits whose snippet no
// longer exists are dropped.
func (e *Engine) hydrate(ctx context.Context, hits []vectorstore.Hit) ([]codesearch.SearchResult, error) {
	results := make([]codesearch.SearchResult, 0, len(hits))
	if len(hits) == 0 {
		return results, nil
	}

	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.SnippetID
	}
	snippets, err := e.store.GetSnippets(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading snippets: %w", err)
	}

	for _, h := range hits {
		sn, ok := snippets[h.SnippetID]
		if !ok {
			e.metrics.StaleHits.Inc()
			e.logger.Debug("index entry has no snippet",
				append(logging.ContextFields(ctx), zap.Int64("snippet_id", h.SnippetID))...)
			continue
		}
		results = append(results, codesearch.SearchResult{
			ID:           sn.ID,
			RepositoryID: sn.RepositoryID,
			FilePath:     sn.FilePath,
			Name:         sn.Name,
			StartLine:    sn.StartLine,
			EndLine:      sn.EndLine,
			Language:     sn.Language,
			Distance:     h.Distance,
			CodePreview:  Preview(sn.Code, e.cfg.PreviewLength),
		})
	}
	return results, nil
}

func (e *Engine) checkModel() {
	if e.model == "" {
		return
	}
	m, err := e.index.Manifest()
	if err != nil {
		return
	}
	if m.Model != e.model {
		e.logger.Warn("index was built with a different embedding model",
			zap.String("index_model", m.Model),
			zap.String("query_model", e.model),
		)
	}
}

// Preview returns the first n characters of code, never splitting a rune.
func Preview(code string, n int) string {
	if utf8.RuneCountInString(code) <= n {
		return code
	}
	i := 0
	for pos := range code {
		if i == n {
			return code[:pos]
		}
		i++
	}
	return code
}
