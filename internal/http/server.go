// Package http serves the codesearch REST API.
//
// Routes mirror the web frontend: repositories, search, snippets and
// history under /api, plus /health and an optional Prometheus /metrics.
// Domain errors are mapped to status codes in one error handler.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
	"github.com/fyrsmithlabs/codesearch/internal/indexer"
	"github.com/fyrsmithlabs/codesearch/internal/logging"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Service is the set of operations the API exposes.
type Service interface {
	AddRepository(ctx context.Context, name, path string) (*codesearch.Repository, error)
	ListRepositories(ctx context.Context) ([]*codesearch.Repository, error)
	GetRepository(ctx context.Context, id int64) (*codesearch.Repository, error)
	GetRepositoryFile(ctx context.Context, id int64, relPath string) (string, error)
	IndexRepository(ctx context.Context, id int64) (int, error)
	DeleteRepository(ctx context.Context, id int64) error
	Search(ctx context.Context, query string, repositoryID *int64) ([]codesearch.SearchResult, error)
	ExportSearch(ctx context.Context, query string, repositoryID *int64) (string, error)
	GetSnippet(ctx context.Context, id int64) (*codesearch.Snippet, error)
	ExplainSnippet(ctx context.Context, id int64) (string, error)
	ListHistory(ctx context.Context) ([]codesearch.SearchHistoryEntry, error)
	DeleteHistoryEntry(ctx context.Context, id int64) error
	IndexStatus(ctx context.Context) (*indexer.IndexManifest, error)
	Ping(ctx context.Context) error
}

// Server provides the HTTP endpoints.
type Server struct {
	echo    *echo.Echo
	svc     Service
	logger  *zap.Logger
	config  *Config
	metrics *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host           string
	Port           int
	CORSOrigins    []string
	MetricsEnabled bool
}

// DefaultCORSOrigins are the frontend development servers.
var DefaultCORSOrigins = []string{"http://localhost:5173", "http://localhost:3000"}

// NewServer creates a new HTTP server.
func NewServer(svc Service, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8000,
		}
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = DefaultCORSOrigins
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		svc:     svc,
		logger:  logger,
		config:  cfg,
		metrics: defaultMetrics(),
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
		AllowCredentials: true,
	}))
	e.Use(s.metrics.Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(req.WithContext(ctx))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info("http request", append(logging.ContextFields(ctx),
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)...)
			return nil
		}
	})

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.config.MetricsEnabled {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	api := s.echo.Group("/api")

	api.POST("/repositories", s.handleAddRepository)
	api.GET("/repositories", s.handleListRepositories)
	api.GET("/repositories/:id", s.handleGetRepository)
	api.DELETE("/repositories/:id", s.handleDeleteRepository)
	api.POST("/repositories/:id/index", s.handleIndexRepository)
	api.GET("/repositories/:id/file", s.handleRepositoryFile)

	api.GET("/search", s.handleSearch)
	api.GET("/search/export", s.handleSearchExport)

	api.GET("/code/:id", s.handleGetSnippet)
	api.POST("/code/:id/explain", s.handleExplainSnippet)
	api.GET("/code/:id/export", s.handleSnippetExport)

	api.GET("/history", s.handleListHistory)
	api.DELETE("/history/:id", s.handleDeleteHistory)

	api.GET("/index", s.handleIndexStatus)
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	s.logger.Info("starting http server", zap.String("addr", addr))
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
