package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codesearch/internal/chunker"
	"github.com/fyrsmithlabs/codesearch/internal/config"
	"github.com/fyrsmithlabs/codesearch/internal/embeddings"
	"github.com/fyrsmithlabs/codesearch/internal/indexer"
	"github.com/fyrsmithlabs/codesearch/internal/llm"
	"github.com/fyrsmithlabs/codesearch/internal/repository"
	"github.com/fyrsmithlabs/codesearch/internal/search"
	"github.com/fyrsmithlabs/codesearch/internal/secrets"
	"github.com/fyrsmithlabs/codesearch/internal/service"
	"github.com/fyrsmithlabs/codesearch/internal/store"
	"github.com/fyrsmithlabs/codesearch/internal/vectorstore"
)

// app holds the wired components and what must be closed on exit.
type app struct {
	svc      *service.Service
	store    *store.Store
	index    vectorstore.Store
	embedder embeddings.Provider
	llm      *llm.Client
	scrubber *secrets.Scrubber
	logger   *zap.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.store, err = store.Open(ctx, store.Options{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN.Value(),
	}, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	embedder, err := embeddings.NewProvider(ctx, embeddings.ProviderConfig{
		Provider:  cfg.Embeddings.Provider,
		Model:     cfg.Embeddings.Model,
		BaseURL:   cfg.Embeddings.BaseURL,
		APIKey:    cfg.Embeddings.APIKey.Value(),
		CacheDir:  cfg.Embeddings.CacheDir,
		BatchSize: cfg.Embeddings.BatchSize,
		Timeout:   cfg.Embeddings.Timeout.Duration(),
	}, logger.Named("embeddings"))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	a.embedder = embedder

	a.llm, err = llm.New(ctx, llm.Config{
		Provider:          cfg.LLM.Provider,
		Model:             cfg.LLM.Model,
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.LLM.APIKey.Value(),
		Timeout:           cfg.LLM.Timeout.Duration(),
		RequestsPerMinute: cfg.LLM.RequestsPerMinute,
		ScrubSecrets:      cfg.LLM.ScrubSecrets,
	}, logger.Named("llm"))
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}

	a.scrubber = secrets.New(secrets.WithLogger(logger.Named("secrets")))

	vectorSize := uint64(0)
	if d := a.embedder.Dimension(); d > 0 {
		vectorSize = uint64(d)
	}
	index, err := vectorstore.New(vectorstore.Config{
		Backend: cfg.Index.Backend,
		Chromem: vectorstore.ChromemConfig{
			Dir:           cfg.Index.Path,
			Compress:      cfg.Index.Compress,
			EncryptionKey: cfg.Index.EncryptionKey.Value(),
		},
		Qdrant: vectorstore.QdrantConfig{
			Host:       cfg.Index.Qdrant.Host,
			Port:       cfg.Index.Qdrant.Port,
			APIKey:     cfg.Index.Qdrant.APIKey.Value(),
			UseTLS:     cfg.Index.Qdrant.UseTLS,
			Collection: cfg.Index.Qdrant.Collection,
			VectorSize: vectorSize,
			MaxRetries: cfg.Index.Qdrant.MaxRetries,
		},
	}, logger.Named("vectorstore"))
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	a.index = index

	// The manifest lives beside the chromem file, and in the same directory
	// when the vectors are in Qdrant.
	if err := os.MkdirAll(cfg.Index.Path, 0700); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	ingestor := repository.NewIngestor(a.store, a.llm, repository.Config{
		SkipDirs:         cfg.Ingest.SkipDirs,
		RespectGitignore: cfg.Ingest.RespectGitignore,
		DescriptionFiles: cfg.Ingest.DescriptionFiles,
	}, logger.Named("repository"))

	mgr, err := indexer.NewManager(a.store, a.index, a.embedder, chunker.NewRegistry(logger.Named("chunker")), indexer.Config{
		Policy:       cfg.Index.RebuildPolicy,
		ManifestPath: indexer.ManifestPathIn(cfg.Index.Path),
		MaxFileSize:  cfg.Ingest.MaxFileSize,
		BatchSize:    cfg.Embeddings.BatchSize,
		Walk:         ingestor.WalkOptions(),
	}, logger.Named("indexer"))
	if err != nil {
		return nil, fmt.Errorf("failed to create index manager: %w", err)
	}

	engine := search.NewEngine(a.store, mgr, a.embedder, a.embedder.Model(), search.Config{
		TopK:           cfg.Search.TopK,
		MinQueryLength: cfg.Search.MinQueryLength,
		PreviewLength:  cfg.Search.PreviewLength,
	}, logger.Named("search"))

	a.svc, err = service.New(service.Options{
		Store:     a.store,
		Ingestor:  ingestor,
		Indexer:   mgr,
		Engine:    engine,
		Explainer: a.llm,
		Logger:    logger.Named("service"),
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Close releases the index backend, the embedding provider and the store.
func (a *app) Close() {
	var errs []error
	if a.index != nil {
		errs = append(errs, a.index.Close())
	}
	if a.embedder != nil {
		errs = append(errs, a.embedder.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("closing components", zap.Error(err))
	}
}
