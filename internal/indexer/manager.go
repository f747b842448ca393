// Package indexer builds and maintains the global snippet vector index.
//
// A build re-walks one repository, extracts code units, persists them as
// snippets, embeds their code and writes the vectors to the index backend.
// Under the overwrite policy each build replaces the whole index, so only the
// most recently built repository is searchable. The scoped policy replaces
// only the built repository's entries.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fyrsmithlabs/codesearch/internal/chunker"
	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
	"github.com/fyrsmithlabs/codesearch/internal/embeddings"
	"github.com/fyrsmithlabs/codesearch/internal/logging"
	"github.com/fyrsmithlabs/codesearch/internal/repository"
	"github.com/fyrsmithlabs/codesearch/internal/vectorstore"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/codesearch/internal/indexer")

// Rebuild policies.
const (
	PolicyOverwrite = "overwrite"
	PolicyScoped    = "scoped"
)

const (
	defaultMaxFileSize = 1 << 20
	defaultBatchSize   = 32
)

// SnippetStore is the part of the relational store a build needs.
type SnippetStore interface {
	ReplaceSnippets(ctx context.Context, repoID int64, snippets []codesearch.Snippet) error
	MarkIndexed(ctx context.Context, id int64) error
}

// Config configures the Manager.
type Config struct {
	// Policy is PolicyOverwrite (default) or PolicyScoped.
	Policy string
	// ManifestPath is where the manifest JSON is written.
	ManifestPath string
	// MaxFileSize skips larger files. Default 1 MiB.
	MaxFileSize int64
	// BatchSize is the number of snippets per embedding request. Default 32.
	BatchSize int
	Walk      repository.WalkOptions
}

// Manager owns index builds. Builds, prunes and drops are serialized.
type Manager struct {
	store    SnippetStore
	index    vectorstore.Store
	embedder embeddings.Provider
	chunks   *chunker.Registry
	cfg      Config
	metrics  *Metrics
	logger   *zap.Logger
	now      func() time.Time

	mu sync.Mutex
}

// NewManager creates a Manager.
func NewManager(store SnippetStore, index vectorstore.Store, embedder embeddings.Provider, chunks *chunker.Registry, cfg Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Policy {
	case "":
		cfg.Policy = PolicyOverwrite
	case PolicyOverwrite, PolicyScoped:
	default:
		return nil, fmt.Errorf("unknown rebuild policy %q", cfg.Policy)
	}
	if cfg.ManifestPath == "" {
		return nil, errors.New("manifest path is required")
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if chunks == nil {
		chunks = chunker.NewRegistry(logger)
	}
	return &Manager{
		store:    store,
		index:    index,
		embedder: embedder,
		chunks:   chunks,
		cfg:      cfg,
		metrics:  NewMetrics(),
		logger:   logger,
		now:      time.Now,
	}, nil
}

// ManifestPathIn returns the manifest location inside an index directory.
func ManifestPathIn(dir string) string {
	return filepath.Join(dir, manifestFile)
}

// Policy returns the active rebuild policy.
func (m *Manager) Policy() string { return m.cfg.Policy }

// Build indexes repo and returns the number of snippets embedded.
func (m *Manager) Build(ctx context.Context, repo *codesearch.Repository) (int, error) {
	ctx, span := tracer.Start(ctx, "Manager.Build")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("repository_id", repo.ID),
		attribute.String("policy", m.cfg.Policy),
	)

	ctx = logging.WithRepositoryID(ctx, repo.ID)

	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.now()
	n, err := m.build(ctx, repo)
	status := "success"
	if err != nil {
		status = codesearch.Code(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("snippets", n))
		span.SetStatus(codes.Ok, "indexed")
	}
	m.metrics.BuildsTotal.WithLabelValues(m.cfg.Policy, status).Inc()
	m.metrics.BuildDuration.Observe(time.Since(start).Seconds())
	return n, err
}

func (m *Manager) build(ctx context.Context, repo *codesearch.Repository) (int, error) {
	snippets, err := m.collect(ctx, repo)
	if err != nil {
		return 0, err
	}
	if len(snippets) == 0 {
		return 0, fmt.Errorf("%w: repository %d (%s) has no indexable code", codesearch.ErrEmptyCorpus, repo.ID, repo.Name)
	}

	if err := m.store.ReplaceSnippets(ctx, repo.ID, snippets); err != nil {
		return 0, fmt.Errorf("saving snippets: %w", err)
	}
	m.metrics.SnippetsTotal.Add(float64(len(snippets)))

	entries, err := m.embed(ctx, snippets)
	if err != nil {
		m.metrics.EmbedFailures.Inc()
		return 0, err
	}

	manifest := &IndexManifest{
		BuildID:      uuid.NewString(),
		Policy:       m.cfg.Policy,
		Model:        m.embedder.Model(),
		Dimension:    len(entries[0].Vector),
		Repositories: []int64{repo.ID},
		BuiltAt:      m.now().UTC(),
	}

	switch m.cfg.Policy {
	case PolicyScoped:
		if err := m.index.ReplaceRepository(ctx, repo.ID, entries); err != nil {
			return 0, fmt.Errorf("updating index: %w", err)
		}
		if prev, err := readManifest(m.cfg.ManifestPath); err == nil {
			for _, id := range prev.Repositories {
				manifest.addRepository(id)
			}
		}
		total, err := m.count(ctx)
		if err != nil {
			return 0, err
		}
		manifest.Entries = total
	default:
		if err := m.index.Replace(ctx, entries); err != nil {
			return 0, fmt.Errorf("writing index: %w", err)
		}
		manifest.Entries = len(entries)
	}

	if err := writeManifest(m.cfg.ManifestPath, manifest); err != nil {
		return 0, err
	}
	m.metrics.IndexEntries.Set(float64(manifest.Entries))

	if err := m.store.MarkIndexed(ctx, repo.ID); err != nil {
		return 0, fmt.Errorf("marking repository indexed: %w", err)
	}

	m.logger.Info("repository indexed", append(logging.ContextFields(ctx),
		zap.String("name", repo.Name),
		zap.Int("snippets", len(snippets)),
		zap.Int("index_entries", manifest.Entries),
		zap.String("build_id", manifest.BuildID),
		zap.String("policy", m.cfg.Policy),
	)...)
	return len(snippets), nil
}

// collect walks the repository and turns every readable text file into snippets.
func (m *Manager) collect(ctx context.Context, repo *codesearch.Repository) ([]codesearch.Snippet, error) {
	files, err := repository.Walk(ctx, repo.Path, m.cfg.Walk)
	if err != nil {
		return nil, err
	}

	var snippets []codesearch.Snippet
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.Size > m.cfg.MaxFileSize {
			m.skip("too_large", f.RelPath)
			continue
		}
		src, err := os.ReadFile(f.AbsPath)
		if err != nil {
			m.skip("unreadable", f.RelPath)
			continue
		}
		if !utf8.Valid(src) {
			m.skip("binary", f.RelPath)
			continue
		}

		lang := chunker.LanguageFor(f.RelPath)
		for _, u := range m.chunks.Extract(f.RelPath, src) {
			snippets = append(snippets, codesearch.NewSnippet(repo.ID, f.RelPath, lang, u))
		}
	}
	return snippets, nil
}

func (m *Manager) skip(reason, path string) {
	m.metrics.FilesSkipped.WithLabelValues(reason).Inc()
	m.logger.Debug("file skipped", zap.String("file", path), zap.String("reason", reason))
}

func (m *Manager) embed(ctx context.Context, snippets []codesearch.Snippet) ([]vectorstore.Entry, error) {
	ctx, span := tracer.Start(ctx, "Manager.embed")
	defer span.End()

	entries := make([]vectorstore.Entry, 0, len(snippets))
	for start := 0; start < len(snippets); start += m.cfg.BatchSize {
		batch := snippets[start:min(start+m.cfg.BatchSize, len(snippets))]
		texts := make([]string, len(batch))
		for i, sn := range batch {
			texts[i] = sn.Code
		}

		vecs, err := m.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			if !errors.Is(err, codesearch.ErrCollaboratorUnavailable) {
				err = fmt.Errorf("%w: %v", codesearch.ErrCollaboratorUnavailable, err)
			}
			return nil, fmt.Errorf("embedding snippets: %w", err)
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("%w: embedding service returned %d vectors for %d texts",
				codesearch.ErrCollaboratorUnavailable, len(vecs), len(batch))
		}
		for i, sn := range batch {
			entries = append(entries, vectorstore.Entry{
				SnippetID:    sn.ID,
				RepositoryID: sn.RepositoryID,
				Vector:       vecs[i],
			})
		}
	}
	span.SetAttributes(attribute.Int("vectors", len(entries)))
	return entries, nil
}

func (m *Manager) count(ctx context.Context) (int, error) {
	h, err := m.index.Open(ctx)
	if err != nil {
		return 0, err
	}
	return h.Count(ctx)
}

// Load opens the persisted index for querying, or fails with
// codesearch.ErrIndexNotFound.
func (m *Manager) Load(ctx context.Context) (vectorstore.Handle, error) {
	return m.index.Open(ctx)
}

// Drop removes the index and its manifest.
func (m *Manager) Drop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.index.Drop(ctx); err != nil {
		return err
	}
	m.metrics.IndexEntries.Set(0)
	return removeManifest(m.cfg.ManifestPath)
}

// Prune removes one repository's entries and leaves the rest of the index
// intact. A missing index is not an error.
func (m *Manager) Prune(ctx context.Context, repoID int64) error {
	ctx, span := tracer.Start(ctx, "Manager.Prune")
	defer span.End()
	span.SetAttributes(attribute.Int64("repository_id", repoID))

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.index.DeleteRepository(ctx, repoID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("pruning repository %d: %w", repoID, err)
	}

	manifest, err := readManifest(m.cfg.ManifestPath)
	if err != nil {
		if errors.Is(err, codesearch.ErrIndexNotFound) {
			return nil
		}
		return err
	}
	manifest.removeRepository(repoID)
	if n, err := m.count(ctx); err == nil {
		manifest.Entries = n
		m.metrics.IndexEntries.Set(float64(n))
	}
	return writeManifest(m.cfg.ManifestPath, manifest)
}

// Forget applies the rebuild policy to a deleted repository: the overwrite
// policy discards the whole index, the scoped policy prunes its entries.
func (m *Manager) Forget(ctx context.Context, repoID int64) error {
	if m.cfg.Policy == PolicyScoped {
		return m.Prune(ctx, repoID)
	}
	return m.Drop(ctx)
}

// Manifest returns the manifest of the current index, or
// codesearch.ErrIndexNotFound.
func (m *Manager) Manifest() (*IndexManifest, error) {
	return readManifest(m.cfg.ManifestPath)
}
