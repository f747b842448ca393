// Package repository registers local source trees: it validates the root,
// inventories its files, asks the generative-text service for a short
// description and persists the repository record.
//
// Walk is shared with the index build so registration and indexing agree on
// which files belong to a repository.
package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
	"go.uber.org/zap"
)

// PlaceholderDescription is stored when no description could be generated.
const PlaceholderDescription = "No description available (LLM not configured)."

const (
	minDescriptionFiles = 30
	maxDescriptionFiles = 50
)

// Describer produces a short description of a repository from its name and a
// sample of its file paths.
type Describer interface {
	Describe(ctx context.Context, name string, files []string) (string, error)
}

// Store persists repositories.
type Store interface {
	CreateRepository(ctx context.Context, repo *codesearch.Repository) error
}

// Config configures the Ingestor.
type Config struct {
	SkipDirs         []string
	RespectGitignore bool

	// DescriptionFiles caps how many file paths are sent to the describer (30..50).
	DescriptionFiles int
}

// Ingestor registers repositories.
type Ingestor struct {
	store     Store
	describer Describer
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewIngestor creates an Ingestor. describer may be nil, in which case every
// repository gets PlaceholderDescription.
func NewIngestor(store Store, describer Describer, cfg Config, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DescriptionFiles < minDescriptionFiles {
		cfg.DescriptionFiles = minDescriptionFiles
	}
	if cfg.DescriptionFiles > maxDescriptionFiles {
		cfg.DescriptionFiles = maxDescriptionFiles
	}
	return &Ingestor{
		store:     store,
		describer: describer,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// WalkOptions returns the walk settings shared with the index build.
func (i *Ingestor) WalkOptions() WalkOptions {
	return WalkOptions{SkipDirs: i.cfg.SkipDirs, RespectGitignore: i.cfg.RespectGitignore}
}

// Ingest registers the directory at path under name. The stored repository
// is not indexed yet.
func (i *Ingestor) Ingest(ctx context.Context, name, path string) (*codesearch.Repository, error) {
	root, err := validatePath(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		name = filepath.Base(root)
	}

	files, err := Walk(ctx, root, i.WalkOptions())
	if err != nil {
		return nil, err
	}
	rel := RelPaths(files)

	branch, commit := gitHead(root)

	repo := &codesearch.Repository{
		Name:        name,
		Path:        root,
		Description: i.describe(ctx, name, rel),
		Files:       rel,
		FileCount:   len(rel),
		Indexed:     false,
		AnalyzedAt:  i.now().UTC(),
		Branch:      branch,
		Commit:      commit,
	}
	if err := i.store.CreateRepository(ctx, repo); err != nil {
		return nil, fmt.Errorf("saving repository: %w", err)
	}

	i.logger.Info("repository registered",
		zap.Int64("repository_id", repo.ID),
		zap.String("name", repo.Name),
		zap.Int("files", repo.FileCount),
		zap.String("branch", branch),
	)
	return repo, nil
}

// describe never fails: any describer problem degrades to the placeholder.
func (i *Ingestor) describe(ctx context.Context, name string, files []string) string {
	if i.describer == nil {
		return PlaceholderDescription
	}

	sample := files
	if len(sample) > i.cfg.DescriptionFiles {
		sample = sample[:i.cfg.DescriptionFiles]
	}

	desc, err := i.describer.Describe(ctx, name, sample)
	if err != nil {
		if !errors.Is(err, codesearch.ErrCollaboratorUnavailable) {
			i.logger.Warn("repository description failed", zap.String("name", name), zap.Error(err))
		} else {
			i.logger.Debug("repository description unavailable", zap.String("name", name), zap.Error(err))
		}
		return PlaceholderDescription
	}

	desc = strings.TrimSpace(desc)
	if desc == "" {
		return PlaceholderDescription
	}
	return desc
}
