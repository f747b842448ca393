package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	collectionName = "snippets"
	metaSnippetID  = "snippet_id"
	metaRepoID     = "repository_id"
	indexFileBase  = "snippets.gob"
)

// ChromemConfig configures the file-backed chromem index.
type ChromemConfig struct {
	// Dir holds the index file.
	Dir string
	// Compress gzips the index file.
	Compress bool
	// EncryptionKey enables AES-GCM encryption when set; it must be 32 bytes.
	EncryptionKey string
}

// Validate checks the configuration.
func (c ChromemConfig) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("%w: index directory is required", ErrInvalidConfig)
	}
	if c.EncryptionKey != "" && len(c.EncryptionKey) != 32 {
		return fmt.Errorf("%w: encryption key must be 32 bytes, got %d", ErrInvalidConfig, len(c.EncryptionKey))
	}
	return nil
}

// ChromemStore keeps the index as one exported chromem-go database file.
// Every write builds the new database in memory and renames it over the old
// file, so concurrent readers see either the previous or the new index.
type ChromemStore struct {
	cfg    ChromemConfig
	logger *zap.Logger

	mu     sync.Mutex
	cached *chromemHandle
	stamp  fileStamp
}

type fileStamp struct {
	path    string
	size    int64
	modTime time.Time
}

// NewChromemStore creates the store and its directory.
func NewChromemStore(cfg ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("creating index directory %s: %w", cfg.Dir, err)
	}

	logger.Info("chromem index store ready",
		zap.String("dir", cfg.Dir),
		zap.Bool("compress", cfg.Compress),
		zap.Bool("encrypted", cfg.EncryptionKey != ""),
	)
	return &ChromemStore{cfg: cfg, logger: logger}, nil
}

// Path returns the index file written by the current configuration.
func (s *ChromemStore) Path() string {
	return filepath.Join(s.cfg.Dir, fileName(s.cfg.Compress, s.cfg.EncryptionKey != ""))
}

func fileName(compress, encrypted bool) string {
	name := indexFileBase
	if compress {
		name += ".gz"
	}
	if encrypted {
		name += ".enc"
	}
	return name
}

// allPaths lists every file name the index may have been written under.
func (s *ChromemStore) allPaths() []string {
	var out []string
	for _, c := range []bool{false, true} {
		for _, e := range []bool{false, true} {
			out = append(out, filepath.Join(s.cfg.Dir, fileName(c, e)))
		}
	}
	return out
}

// Replace implements Store.
func (s *ChromemStore) Replace(ctx context.Context, entries []Entry) error {
	ctx, span := tracer.Start(ctx, "ChromemStore.Replace")
	defer span.End()
	span.SetAttributes(attribute.Int("entries", len(entries)))

	s.mu.Lock()
	defer s.mu.Unlock()

	db, col, err := newCollection()
	if err != nil {
		return err
	}
	if err := addEntries(ctx, col, entries); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return s.persist(db)
}

// ReplaceRepository implements Store.
func (s *ChromemStore) ReplaceRepository(ctx context.Context, repoID int64, entries []Entry) error {
	ctx, span := tracer.Start(ctx, "ChromemStore.ReplaceRepository")
	defer span.End()
	span.SetAttributes(attribute.Int64("repository_id", repoID), attribute.Int("entries", len(entries)))

	s.mu.Lock()
	defer s.mu.Unlock()

	db, col, err := s.loadOrNew()
	if err != nil {
		return err
	}
	if err := deleteRepository(ctx, col, repoID); err != nil {
		return err
	}
	if err := addEntries(ctx, col, entries); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return s.persist(db)
}

// DeleteRepository implements Store.
func (s *ChromemStore) DeleteRepository(ctx context.Context, repoID int64) error {
	ctx, span := tracer.Start(ctx, "ChromemStore.DeleteRepository")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.existingPath(); err != nil {
		return nil
	}
	db, col, err := s.loadOrNew()
	if err != nil {
		return err
	}
	if err := deleteRepository(ctx, col, repoID); err != nil {
		return err
	}
	return s.persist(db)
}

// Open implements Store. The loaded index is cached until the file changes.
func (s *ChromemStore) Open(ctx context.Context) (Handle, error) {
	_, span := tracer.Start(ctx, "ChromemStore.Open")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.existingPath()
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat index: %w", err)
	}
	stamp := fileStamp{path: path, size: info.Size(), modTime: info.ModTime()}
	if s.cached != nil && s.stamp == stamp {
		return s.cached, nil
	}

	_, col, err := s.load(path)
	if err != nil {
		return nil, err
	}
	s.cached = &chromemHandle{col: col}
	s.stamp = stamp
	span.SetAttributes(attribute.Int("entries", col.Count()))
	return s.cached, nil
}

// Drop implements Store.
func (s *ChromemStore) Drop(ctx context.Context) error {
	_, span := tracer.Start(ctx, "ChromemStore.Drop")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cached = nil
	s.stamp = fileStamp{}
	for _, p := range s.allPaths() {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing index %s: %w", p, err)
		}
	}
	s.logger.Info("index dropped", zap.String("dir", s.cfg.Dir))
	return nil
}

// Close implements Store.
func (s *ChromemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
	return nil
}

// existingPath returns the index file for the current configuration, or
// ErrIndexNotFound. Files written under another compression setting are
// not readable with a different key, so only the configured name counts.
func (s *ChromemStore) existingPath() (string, error) {
	p := s.Path()
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", indexNotFound("no index at " + p)
		}
		return "", fmt.Errorf("stat index: %w", err)
	}
	return p, nil
}

func (s *ChromemStore) loadOrNew() (*chromem.DB, *chromem.Collection, error) {
	p, err := s.existingPath()
	if err != nil {
		return newCollection()
	}
	return s.load(p)
}

func (s *ChromemStore) load(path string) (*chromem.DB, *chromem.Collection, error) {
	db := chromem.NewDB()
	if err := db.ImportFromFile(path, s.cfg.EncryptionKey); err != nil {
		return nil, nil, fmt.Errorf("loading index %s: %w", path, err)
	}
	col := db.GetCollection(collectionName, noEmbed)
	if col == nil {
		var err error
		if col, err = db.CreateCollection(collectionName, nil, noEmbed); err != nil {
			return nil, nil, fmt.Errorf("creating collection: %w", err)
		}
	}
	return db, col, nil
}

// persist exports db next to the target and renames it into place.
func (s *ChromemStore) persist(db *chromem.DB) error {
	final := s.Path()
	tmp := final + ".tmp"
	if err := db.ExportToFile(tmp, s.cfg.Compress, s.cfg.EncryptionKey); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("exporting index: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing index file: %w", err)
	}
	for _, p := range s.allPaths() {
		if p != final {
			_ = os.Remove(p)
		}
	}
	s.cached = nil
	s.stamp = fileStamp{}
	return nil
}

func newCollection() (*chromem.DB, *chromem.Collection, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(collectionName, nil, noEmbed)
	if err != nil {
		return nil, nil, fmt.Errorf("creating collection: %w", err)
	}
	return db, col, nil
}

// noEmbed is the collection embedding function. Every document and query
// arrives with a precomputed vector, so it is never expected to run.
func noEmbed(context.Context, string) ([]float32, error) {
	return nil, errors.New("vectorstore: entries must carry precomputed vectors")
}

func addEntries(ctx context.Context, col *chromem.Collection, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		if len(e.Vector) == 0 {
			return fmt.Errorf("entry for snippet %d has no vector", e.SnippetID)
		}
		docs[i] = chromem.Document{
			ID: strconv.FormatInt(e.SnippetID, 10),
			Metadata: map[string]string{
				metaSnippetID: strconv.FormatInt(e.SnippetID, 10),
				metaRepoID:    strconv.FormatInt(e.RepositoryID, 10),
			},
			Embedding: e.Vector,
		}
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("adding %d entries: %w", len(docs), err)
	}
	return nil
}

func deleteRepository(ctx context.Context, col *chromem.Collection, repoID int64) error {
	if col.Count() == 0 {
		return nil
	}
	where := map[string]string{metaRepoID: strconv.FormatInt(repoID, 10)}
	if err := col.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("deleting entries of repository %d: %w", repoID, err)
	}
	return nil
}

type chromemHandle struct {
	col *chromem.Collection
}

func (h *chromemHandle) Query(ctx context.Context, vector []float32, k int) ([]Hit, error) {
	n := min(k, h.col.Count())
	if n <= 0 {
		return []Hit{}, nil
	}
	res, err := h.col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	hits := make([]Hit, 0, len(res))
	for _, r := range res {
		sid, err := strconv.ParseInt(r.Metadata[metaSnippetID], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("index entry %s: bad snippet id: %w", r.ID, err)
		}
		rid, err := strconv.ParseInt(r.Metadata[metaRepoID], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("index entry %s: bad repository id: %w", r.ID, err)
		}
		hits = append(hits, Hit{SnippetID: sid, RepositoryID: rid, Distance: 1 - float64(r.Similarity)})
	}
	return hits, nil
}

func (h *chromemHandle) Count(context.Context) (int, error) {
	return h.col.Count(), nil
}
