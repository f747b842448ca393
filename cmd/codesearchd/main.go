// Codesearchd is the codesearch daemon.
//
// It serves the REST API, or the MCP tools on stdio with -mcp, over one
// shared store and vector index. With -watch it also re-indexes the given
// repository whenever its files change.
//
// Usage:
//
//	# Serve the REST API on the configured host and port
//	codesearchd
//
//	# Serve MCP tools on stdio
//	codesearchd -mcp
//
//	# Serve the API and keep repository 3 indexed
//	codesearchd -watch 3
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/codesearch/internal/config"
	httpserver "github.com/fyrsmithlabs/codesearch/internal/http"
	"github.com/fyrsmithlabs/codesearch/internal/logging"
	"github.com/fyrsmithlabs/codesearch/internal/mcp"
	"github.com/fyrsmithlabs/codesearch/internal/telemetry"
	"github.com/fyrsmithlabs/codesearch/internal/watch"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

type options struct {
	configPath string
	mcp        bool
	watchID    int64
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to config.yaml (default ~/.config/codesearch/config.yaml)")
	flag.BoolVar(&opts.mcp, "mcp", false, "serve MCP tools on stdio instead of HTTP")
	flag.Int64Var(&opts.watchID, "watch", 0, "re-index this repository id when its files change")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  codesearchd [flags]   Start the daemon\n")
			fmt.Fprintf(os.Stderr, "  codesearchd version   Show version information\n")
			os.Exit(1)
		}
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatalf("codesearchd: %v", err)
	}
}

func printVersion() {
	fmt.Printf("codesearchd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run loads configuration, wires the components and serves until ctx is
// cancelled.
func run(ctx context.Context, opts options) error {
	cfg, err := config.LoadWithFile(opts.configPath)
	if err != nil {
		return err
	}
	if err := config.EnsureDataDirs(cfg); err != nil {
		return err
	}

	logger, err := newLogger(cfg, opts.mcp)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zl := logger.Underlying()

	tel, err := telemetry.New(ctx, telemetryConfig(cfg), zl)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	logger = logger.WithOTel(tel.LoggerProvider())
	zl = logger.Underlying()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn(shutdownCtx, "telemetry shutdown", zap.Error(err))
		}
	}()

	app, err := newApp(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer app.Close()

	logger.Info(ctx, "starting codesearchd",
		zap.String("version", version),
		zap.String("database", cfg.Database.Driver),
		zap.String("index_backend", cfg.Index.Backend),
		zap.String("embeddings", app.embedder.Model()),
		zap.Bool("llm_available", app.llm.Available()),
		logging.Secret("llm_api_key", cfg.LLM.APIKey),
	)

	if opts.watchID > 0 {
		w, err := newWatcher(ctx, cfg, app, opts.watchID, logger)
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error(ctx, "watcher stopped", zap.Error(err))
			}
		}()
	}

	if opts.mcp {
		srv, err := mcp.NewServer(&mcp.Config{
			Name:     "codesearch",
			Version:  version,
			Logger:   zl,
			Scrubber: app.scrubber,
		}, app.svc)
		if err != nil {
			return fmt.Errorf("failed to create MCP server: %w", err)
		}
		return srv.Run(ctx)
	}

	return serveHTTP(ctx, cfg, app, logger)
}

func serveHTTP(ctx context.Context, cfg *config.Config, app *app, logger *logging.Logger) error {
	srv, err := httpserver.NewServer(app.svc, logger.Underlying(), &httpserver.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		CORSOrigins:    cfg.Server.CORSOrigins,
		MetricsEnabled: cfg.Server.MetricsEnabled,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info(ctx, "shutdown signal received", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

func newWatcher(ctx context.Context, cfg *config.Config, app *app, id int64, logger *logging.Logger) (*watch.Watcher, error) {
	repo, err := app.svc.GetRepository(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	reindex := func(ctx context.Context) error {
		n, err := app.svc.IndexRepository(ctx, id)
		if err != nil {
			return err
		}
		logger.Info(logging.WithRepositoryID(ctx, id), "watch rebuild complete", zap.Int("snippets", n))
		return nil
	}
	return watch.New(watch.Config{
		Root:             repo.Path,
		Debounce:         cfg.Watch.Debounce,
		SkipDirs:         cfg.Ingest.SkipDirs,
		RespectGitignore: cfg.Ingest.RespectGitignore,
	}, reindex, logger.Named("watch").Underlying())
}

// newLogger builds the structured logger. In MCP mode stdout carries the
// protocol, so logs go to stderr.
func newLogger(cfg *config.Config, stdio bool) (*logging.Logger, error) {
	lc := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	lc.Level = level
	if cfg.Logging.Format != "" {
		lc.Format = cfg.Logging.Format
	}
	lc.Fields["version"] = version
	if stdio {
		return logging.NewStderrLogger(lc)
	}
	return logging.NewLogger(lc)
}

func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = cfg.Telemetry.Enabled
	tc.Endpoint = cfg.Telemetry.Endpoint
	tc.Protocol = cfg.Telemetry.Protocol
	tc.Insecure = cfg.Telemetry.Insecure
	tc.ServiceName = cfg.Telemetry.ServiceName
	tc.ServiceVersion = version
	tc.SampleRate = cfg.Telemetry.SampleRate
	tc.MetricsEnabled = cfg.Server.MetricsEnabled
	tc.LogsEnabled = cfg.Telemetry.LogsEnabled
	return tc
}
