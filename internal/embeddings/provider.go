package embeddings

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// Provider names.
const (
	ProviderFastEmbed = "fastembed"
	ProviderOpenAI    = "openai"
	ProviderGoogleAI  = "googleai"
	ProviderHash      = "hash"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Embedder embeds documents and queries into the same vector space.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Provider is an Embedder bound to one model.
type Provider interface {
	Embedder
	// Dimension returns the vector size, or 0 when not yet known.
	Dimension() int
	// Model returns the model identifier recorded in the index manifest.
	Model() string
	// Close releases resources held by the provider.
	Close() error
}

// ProviderConfig holds configuration for creating an embedding provider.
type ProviderConfig struct {
	Provider  string
	Model     string
	BaseURL   string
	APIKey    string
	CacheDir  string
	BatchSize int
	Timeout   time.Duration
}

var defaultModels = map[string]string{
	ProviderFastEmbed: "BAAI/bge-small-en-v1.5",
	ProviderOpenAI:    "text-embedding-3-small",
	ProviderGoogleAI:  "text-embedding-004",
	ProviderHash:      "hash-384",
}

var remoteModelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"text-embedding-004":     768,
	"embedding-001":          768,
	"gemini-embedding-001":   3072,
}

// NewProvider creates the configured embedding provider.
func NewProvider(ctx context.Context, cfg ProviderConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Provider == "" {
		cfg.Provider = ProviderFastEmbed
	}
	if cfg.Provider == ProviderFastEmbed && !fastEmbedAvailable {
		logger.Warn("fastembed is not available in this build, falling back to hash embeddings",
			zap.String("configured_model", cfg.Model))
		cfg.Provider = ProviderHash
		cfg.Model = ""
	}
	if cfg.Model == "" {
		cfg.Model = defaultModels[cfg.Provider]
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}

	var (
		inner Provider
		err   error
	)
	switch cfg.Provider {
	case ProviderFastEmbed:
		inner, err = NewFastEmbedProvider(FastEmbedConfig{Model: cfg.Model, CacheDir: cfg.CacheDir, BatchSize: cfg.BatchSize})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", codesearch.ErrCollaboratorUnavailable, err)
		}
	case ProviderOpenAI:
		inner, err = newOpenAIProvider(cfg)
	case ProviderGoogleAI:
		inner, err = newGoogleAIProvider(ctx, cfg)
	case ProviderHash:
		inner = NewHashProvider(DefaultHashDimension)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("embedding provider ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", inner.Model()),
		zap.Int("dimension", inner.Dimension()),
	)
	return WithTimeout(inner, cfg.Timeout), nil
}

func newOpenAIProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: openai embeddings need an API key", codesearch.ErrCollaboratorUnavailable)
	}
	opts := []openai.Option{openai.WithEmbeddingModel(cfg.Model)}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.APIKey))
	} else {
		// Local OpenAI-compatible servers usually ignore the token but the client requires one.
		opts = append(opts, openai.WithToken("unused"))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: creating openai client: %v", codesearch.ErrCollaboratorUnavailable, err)
	}
	return newClientProvider(client, cfg.Model, cfg.BatchSize, nil)
}

func newGoogleAIProvider(ctx context.Context, cfg ProviderConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: googleai embeddings need an API key", codesearch.ErrCollaboratorUnavailable)
	}
	client, err := googleai.New(ctx,
		googleai.WithAPIKey(cfg.APIKey),
		googleai.WithDefaultEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: creating googleai client: %v", codesearch.ErrCollaboratorUnavailable, err)
	}
	return newClientProvider(client, cfg.Model, cfg.BatchSize, client.Close)
}

// clientProvider adapts a langchaingo embedding client.
type clientProvider struct {
	embedder *lcembeddings.EmbedderImpl
	model    string
	dim      atomic.Int64
	closeFn  func() error
}

func newClientProvider(client lcembeddings.EmbedderClient, model string, batchSize int, closeFn func() error) (*clientProvider, error) {
	e, err := lcembeddings.NewEmbedder(client,
		lcembeddings.WithBatchSize(batchSize),
		lcembeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	p := &clientProvider{embedder: e, model: model, closeFn: closeFn}
	p.dim.Store(int64(remoteModelDimensions[model]))
	return p, nil
}

func (p *clientProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	vecs, err := p.embedder.EmbedDocuments(ctx, append([]string(nil), texts...))
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(vecs), len(texts))
	}
	if len(vecs) > 0 {
		p.dim.Store(int64(len(vecs[0])))
	}
	return vecs, nil
}

func (p *clientProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	return p.embedder.EmbedQuery(ctx, text)
}

func (p *clientProvider) Dimension() int { return int(p.dim.Load()) }

func (p *clientProvider) Model() string { return p.model }

func (p *clientProvider) Close() error {
	if p.closeFn != nil {
		return p.closeFn()
	}
	return nil
}
