// Package service exposes every codesearch operation behind one facade.
//
// Transports (HTTP, MCP, the watcher) depend on Service only. Each method
// returns errors wrapping the codesearch sentinels so callers can map them
// with codesearch.Code.
package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
	"github.com/fyrsmithlabs/codesearch/internal/indexer"
	"github.com/fyrsmithlabs/codesearch/internal/logging"
	"github.com/fyrsmithlabs/codesearch/internal/repository"
	"github.com/fyrsmithlabs/codesearch/internal/search"
	"github.com/fyrsmithlabs/codesearch/internal/store"
	"go.uber.org/zap"
)

// Explainer produces a natural-language explanation of a snippet.
type Explainer interface {
	Explain(ctx context.Context, snippet *codesearch.Snippet) (string, error)
}

// Options configures the service with its components.
type Options struct {
	Store     *store.Store
	Ingestor  *repository.Ingestor
	Indexer   *indexer.Manager
	Engine    *search.Engine
	Explainer Explainer
	Logger    *zap.Logger
}

// Service implements the produced operations.
type Service struct {
	store     *store.Store
	ingestor  *repository.Ingestor
	indexer   *indexer.Manager
	engine    *search.Engine
	explainer Explainer
	logger    *zap.Logger
}

// New creates a Service. Explainer is optional.
func New(opts Options) (*Service, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("service: store is required")
	case opts.Ingestor == nil:
		return nil, errors.New("service: ingestor is required")
	case opts.Indexer == nil:
		return nil, errors.New("service: indexer is required")
	case opts.Engine == nil:
		return nil, errors.New("service: search engine is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     opts.Store,
		ingestor:  opts.Ingestor,
		indexer:   opts.Indexer,
		engine:    opts.Engine,
		explainer: opts.Explainer,
		logger:    logger,
	}, nil
}

// AddRepository registers the directory at path. A relative path is
// resolved against the working directory.
func (s *Service) AddRepository(ctx context.Context, name, path string) (*codesearch.Repository, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: path cannot be empty", codesearch.ErrInvalidPath)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", codesearch.ErrInvalidPath, path, err)
	}
	return s.ingestor.Ingest(ctx, name, abs)
}

// ListRepositories returns every repository ordered by id.
func (s *Service) ListRepositories(ctx context.Context) ([]*codesearch.Repository, error) {
	return s.store.ListRepositories(ctx)
}

// GetRepository returns one repository or ErrNotFound.
func (s *Service) GetRepository(ctx context.Context, id int64) (*codesearch.Repository, error) {
	return s.store.GetRepository(ctx, id)
}

// IndexRepository rebuilds the index from the repository and returns the
// number of snippets embedded.
func (s *Service) IndexRepository(ctx context.Context, id int64) (int, error) {
	repo, err := s.store.GetRepository(ctx, id)
	if err != nil {
		return 0, err
	}
	return s.indexer.Build(ctx, repo)
}

// Search runs a query, optionally scoped to one repository.
func (s *Service) Search(ctx context.Context, query string, repositoryID *int64) ([]codesearch.SearchResult, error) {
	if repositoryID != nil {
		ctx = logging.WithRepositoryID(ctx, *repositoryID)
	}
	return s.engine.Search(ctx, query, repositoryID)
}

// ExportSearch renders the results of a query as Markdown without adding a
// history entry.
func (s *Service) ExportSearch(ctx context.Context, query string, repositoryID *int64) (string, error) {
	if repositoryID != nil {
		ctx = logging.WithRepositoryID(ctx, *repositoryID)
	}
	results, err := s.engine.Lookup(ctx, query, repositoryID)
	if err != nil {
		return "", err
	}
	return ExportSearchMarkdown(results), nil
}

// GetSnippet returns a snippet with its full code.
func (s *Service) GetSnippet(ctx context.Context, id int64) (*codesearch.Snippet, error) {
	return s.store.GetSnippet(ctx, id)
}

// ExplainSnippet asks the generative-text service to explain a snippet.
func (s *Service) ExplainSnippet(ctx context.Context, id int64) (string, error) {
	sn, err := s.store.GetSnippet(ctx, id)
	if err != nil {
		return "", err
	}
	if s.explainer == nil {
		return "", fmt.Errorf("%w: no generative text service configured", codesearch.ErrCollaboratorUnavailable)
	}
	out, err := s.explainer.Explain(ctx, sn)
	if err != nil {
		if !errors.Is(err, codesearch.ErrCollaboratorUnavailable) {
			err = fmt.Errorf("%w: %v", codesearch.ErrCollaboratorUnavailable, err)
		}
		return "", err
	}
	return out, nil
}

// ListHistory returns search history newest first.
func (s *Service) ListHistory(ctx context.Context) ([]codesearch.SearchHistoryEntry, error) {
	return s.store.ListHistory(ctx)
}

// DeleteHistoryEntry removes one history entry or returns ErrNotFound.
func (s *Service) DeleteHistoryEntry(ctx context.Context, id int64) error {
	return s.store.DeleteHistoryEntry(ctx, id)
}

// DeleteRepository removes a repository and its snippets, then drops or
// prunes the index according to the rebuild policy.
func (s *Service) DeleteRepository(ctx context.Context, id int64) error {
	if err := s.store.DeleteRepository(ctx, id); err != nil {
		return err
	}
	if err := s.indexer.Forget(ctx, id); err != nil {
		return fmt.Errorf("updating index after deleting repository %d: %w", id, err)
	}
	s.logger.Info("repository deleted", append(logging.ContextFields(logging.WithRepositoryID(ctx, id)),
		zap.String("index_policy", s.indexer.Policy()),
	)...)
	return nil
}

// IndexStatus returns the manifest of the current index or ErrIndexNotFound.
func (s *Service) IndexStatus(context.Context) (*indexer.IndexManifest, error) {
	return s.indexer.Manifest()
}

// Ping checks the relational store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
