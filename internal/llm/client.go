// Package llm calls the generative-text service used for repository
// descriptions and on-demand code explanations.
//
// The client is optional: without a credential every call fails with
// codesearch.ErrCollaboratorUnavailable, which ingestion turns into a
// placeholder description and the explain operation reports to the caller.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
	"github.com/fyrsmithlabs/codesearch/internal/secrets"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Provider names.
const (
	ProviderGoogleAI = "googleai"
	ProviderOpenAI   = "openai"
)

const (
	defaultTimeout           = 60 * time.Second
	defaultRequestsPerMinute = 30
	maxOutputTokens          = 1024
)

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config configures the client.
type Config struct {
	Provider          string
	Model             string
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerMinute int
	ScrubSecrets      bool
}

// Client is a rate-limited Completer over a langchaingo model.
type Client struct {
	model    llms.Model
	name     string
	timeout  time.Duration
	limiter  *rate.Limiter
	scrubber *secrets.Scrubber
	logger   *zap.Logger
	reason   string
}

// New creates a client for cfg. A missing credential is not an error: the
// returned client reports itself unavailable.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Provider == "" {
		cfg.Provider = ProviderGoogleAI
	}

	if cfg.APIKey == "" && !(cfg.Provider == ProviderOpenAI && cfg.BaseURL != "") {
		c := newClient(nil, cfg, logger)
		c.reason = "no API key configured for " + cfg.Provider
		c.logger.Info("generative text disabled", zap.String("reason", c.reason))
		return c, nil
	}

	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case ProviderGoogleAI:
		if cfg.Model == "" {
			cfg.Model = "gemini-2.5-flash"
		}
		model, err = googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey),
			googleai.WithDefaultModel(cfg.Model),
			googleai.WithDefaultMaxTokens(maxOutputTokens),
		)
	case ProviderOpenAI:
		if cfg.Model == "" {
			cfg.Model = "gpt-4o-mini"
		}
		opts := []openai.Option{openai.WithModel(cfg.Model), openai.WithToken(cfg.APIKey)}
		if cfg.APIKey == "" {
			opts[1] = openai.WithToken("unused")
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: creating %s client: %v", codesearch.ErrCollaboratorUnavailable, cfg.Provider, err)
	}

	return newClient(model, cfg, logger), nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(model llms.Model, cfg Config, logger *zap.Logger) *Client {
	return newClient(model, cfg, logger)
}

func newClient(model llms.Model, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = defaultRequestsPerMinute
	}

	c := &Client{
		model:   model,
		name:    cfg.Model,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), min(rpm, 5)),
		logger:  logger.Named("llm"),
	}
	if cfg.ScrubSecrets {
		c.scrubber = secrets.New(secrets.WithLogger(c.logger))
	}
	return c
}

// Available reports whether a model is configured.
func (c *Client) Available() bool {
	return c != nil && c.model != nil
}

// Complete sends prompt to the model under the client's timeout and rate limit.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if !c.Available() {
		reason := "generative text service not configured"
		if c != nil && c.reason != "" {
			reason = c.reason
		}
		return "", fmt.Errorf("%w: %s", codesearch.ErrCollaboratorUnavailable, reason)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %v", codesearch.ErrCollaboratorUnavailable, err)
	}

	start := time.Now()
	out, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt, llms.WithTemperature(0.2))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: completion timed out after %s", codesearch.ErrCollaboratorUnavailable, c.timeout)
		}
		return "", fmt.Errorf("%w: completion failed: %v", codesearch.ErrCollaboratorUnavailable, err)
	}

	c.logger.Debug("completion finished",
		zap.String("model", c.name),
		zap.Duration("duration", time.Since(start)),
		zap.Int("prompt_chars", len(prompt)),
	)
	return strings.TrimSpace(out), nil
}

func (c *Client) scrub(s string) string {
	if c.scrubber == nil {
		return s
	}
	return c.scrubber.ScrubString(s)
}
