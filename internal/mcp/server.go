package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
)

// Service is the subset of the service facade exposed as tools.
type Service interface {
	Search(ctx context.Context, query string, repositoryID *int64) ([]codesearch.SearchResult, error)
	GetSnippet(ctx context.Context, id int64) (*codesearch.Snippet, error)
	ListRepositories(ctx context.Context) ([]*codesearch.Repository, error)
	IndexRepository(ctx context.Context, id int64) (int, error)
}

// Scrubber redacts secrets from code before it leaves the process.
type Scrubber interface {
	ScrubString(content string) string
}

// Server exposes codesearch tools over MCP.
type Server struct {
	mcp      *mcp.Server
	svc      Service
	scrubber Scrubber
	metrics  *Metrics
	logger   *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "codesearch").
	Name string

	// Version is the server version (default: "1.0.0").
	Version string

	// Logger for structured logging.
	Logger *zap.Logger

	// Scrubber, when set, redacts code in tool output.
	Scrubber Scrubber
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "codesearch",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates an MCP server backed by svc.
func NewServer(cfg *Config, svc Service) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if svc == nil {
		return nil, fmt.Errorf("service is required")
	}
	if cfg.Name == "" {
		cfg.Name = "codesearch"
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		svc:      svc,
		scrubber: cfg.Scrubber,
		metrics:  NewMetrics(logger),
		logger:   logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves on the stdio transport until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session on transport. Used with in-memory
// transports.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, transport, nil)
}

// instrument wraps a tool handler with metrics and error coding.
func instrument[In, Out any](s *Server, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		done := s.metrics.start(ctx, name)
		res, out, err := h(ctx, req, in)
		done(err)
		if err != nil {
			code := codesearch.Code(err)
			if code == codesearch.CodeInternal {
				s.logger.Error("tool failed", zap.String("tool", name), zap.Error(err))
			}
			var zero Out
			return nil, zero, fmt.Errorf("%s: %w", code, err)
		}
		return res, out, nil
	}
}

func (s *Server) scrub(code string) string {
	if s.scrubber == nil {
		return code
	}
	return s.scrubber.ScrubString(code)
}
