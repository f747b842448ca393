// Package vectorstore persists the global snippet vector index.
//
// The index is one corpus spanning every repository. Each entry carries the
// snippet id and owning repository id; filtering by repository happens after
// nearest-neighbour retrieval, in the search engine.
//
// Backends:
//   - ChromemStore: a chromem-go database exported to a single gob file
//     (optionally gzip-compressed and AES-encrypted), replaced atomically.
//   - QdrantStore: one Qdrant collection over gRPC with cosine distance.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/codesearch/internal/vectorstore")

// ErrInvalidConfig indicates a backend configuration problem.
var ErrInvalidConfig = errors.New("invalid vector store configuration")

// Entry is one vector with its snippet metadata.
type Entry struct {
	SnippetID    int64
	RepositoryID int64
	Vector       []float32
}

// Hit is one query result. Distance is 1 - cosine similarity, lower is closer.
type Hit struct {
	SnippetID    int64
	RepositoryID int64
	Distance     float64
}

// Handle is a loaded, queryable index.
type Handle interface {
	// Query returns up to k nearest entries ordered by ascending distance.
	Query(ctx context.Context, vector []float32, k int) ([]Hit, error)
	// Count returns the number of entries.
	Count(ctx context.Context) (int, error)
}

// Store manages the persisted index.
type Store interface {
	// Replace discards the whole index and persists entries in its place.
	Replace(ctx context.Context, entries []Entry) error
	// ReplaceRepository removes the entries of repoID and adds entries,
	// leaving other repositories untouched.
	ReplaceRepository(ctx context.Context, repoID int64, entries []Entry) error
	// DeleteRepository removes the entries of repoID. A missing index is not an error.
	DeleteRepository(ctx context.Context, repoID int64) error
	// Open loads the index, or fails with codesearch.ErrIndexNotFound.
	Open(ctx context.Context) (Handle, error)
	// Drop removes the index entirely. A missing index is not an error.
	Drop(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}

// Backend names.
const (
	BackendChromem = "chromem"
	BackendQdrant  = "qdrant"
)

// Config selects and configures a backend.
type Config struct {
	Backend string
	Chromem ChromemConfig
	Qdrant  QdrantConfig
}

// New creates the configured backend.
func New(cfg Config, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "", BackendChromem:
		return NewChromemStore(cfg.Chromem, logger)
	case BackendQdrant:
		return NewQdrantStore(cfg.Qdrant, logger)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, cfg.Backend)
	}
}

func indexNotFound(detail string) error {
	return fmt.Errorf("%w: %s", codesearch.ErrIndexNotFound, detail)
}
