// Package config provides configuration loading for codesearch.
//
// Configuration comes from an optional YAML file and CODESEARCH_* environment
// variables layered over the values returned by Default.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the complete codesearch configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Index      IndexConfig      `koanf:"index"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	LLM        LLMConfig        `koanf:"llm"`
	Ingest     IngestConfig     `koanf:"ingest"`
	Search     SearchConfig     `koanf:"search"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Watch      WatchConfig      `koanf:"watch"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"http_host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	MetricsEnabled  bool          `koanf:"metrics_enabled"`
}

// DatabaseConfig selects the relational store.
type DatabaseConfig struct {
	Driver string `koanf:"driver"` // sqlite or postgres
	Path   string `koanf:"path"`   // sqlite file
	DSN    Secret `koanf:"dsn"`    // postgres connection string
}

// IndexConfig controls where and how the vector index is persisted.
type IndexConfig struct {
	Backend       string       `koanf:"backend"` // chromem or qdrant
	Path          string       `koanf:"path"`
	Compress      bool         `koanf:"compress"`
	EncryptionKey Secret       `koanf:"encryption_key"`
	RebuildPolicy string       `koanf:"rebuild_policy"` // overwrite or scoped
	Qdrant        QdrantConfig `koanf:"qdrant"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	APIKey     Secret `koanf:"api_key"`
	UseTLS     bool   `koanf:"use_tls"`
	Collection string `koanf:"collection"`
	MaxRetries int    `koanf:"max_retries"`
}

// EmbeddingsConfig selects the embedding provider.
type EmbeddingsConfig struct {
	Provider  string   `koanf:"provider"` // fastembed, openai, googleai or hash
	Model     string   `koanf:"model"`    // empty selects the provider default
	BaseURL   string   `koanf:"base_url"`
	APIKey    Secret   `koanf:"api_key"`
	CacheDir  string   `koanf:"cache_dir"`
	BatchSize int      `koanf:"batch_size"`
	Timeout   Duration `koanf:"timeout"`
}

// LLMConfig selects the generative-text provider used for descriptions and explanations.
type LLMConfig struct {
	Provider          string   `koanf:"provider"` // googleai or openai
	Model             string   `koanf:"model"`
	BaseURL           string   `koanf:"base_url"`
	APIKey            Secret   `koanf:"api_key"`
	Timeout           Duration `koanf:"timeout"`
	RequestsPerMinute int      `koanf:"requests_per_minute"`
	ScrubSecrets      bool     `koanf:"scrub_secrets"`
}

// IngestConfig controls repository walking.
type IngestConfig struct {
	SkipDirs         []string `koanf:"skip_dirs"`
	DescriptionFiles int      `koanf:"description_files"`
	MaxFileSize      int64    `koanf:"max_file_size"`
	RespectGitignore bool     `koanf:"respect_gitignore"`
}

// SearchConfig controls retrieval.
type SearchConfig struct {
	TopK           int `koanf:"top_k"`
	MinQueryLength int `koanf:"min_query_length"`
	PreviewLength  int `koanf:"preview_length"`
}

// LoggingConfig is the user-facing subset of logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds OpenTelemetry exporter settings.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"` // grpc or http/protobuf
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
	LogsEnabled bool    `koanf:"logs_enabled"` // also ship zap entries over OTLP
}

// WatchConfig controls watch-mode re-indexing.
type WatchConfig struct {
	Debounce time.Duration `koanf:"debounce"`
}

// Rebuild policies for the vector index.
const (
	RebuildOverwrite = "overwrite"
	RebuildScoped    = "scoped"
)

// Default returns the configuration used when nothing is set.
func Default() *Config {
	base := defaultBaseDir()
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8000,
			ShutdownTimeout: 10 * time.Second,
			MetricsEnabled:  true,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(base, "data", "codesearch.db"),
		},
		Index: IndexConfig{
			Backend:       "chromem",
			Path:          filepath.Join(base, "data", "index"),
			Compress:      true,
			RebuildPolicy: RebuildOverwrite,
			Qdrant: QdrantConfig{
				Host:       "localhost",
				Port:       6334,
				Collection: "codesearch_snippets",
				MaxRetries: 3,
			},
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "fastembed",
			CacheDir:  filepath.Join(base, "models"),
			BatchSize: 32,
			Timeout:   Duration(60 * time.Second),
		},
		LLM: LLMConfig{
			Provider:          "googleai",
			Model:             "gemini-2.5-flash",
			Timeout:           Duration(60 * time.Second),
			RequestsPerMinute: 30,
			ScrubSecrets:      true,
		},
		Ingest: IngestConfig{
			DescriptionFiles: 40,
			MaxFileSize:      1 << 20,
		},
		Search: SearchConfig{
			TopK:           5,
			MinQueryLength: 3,
			PreviewLength:  300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			ServiceName: "codesearch",
			SampleRate:  1.0,
			LogsEnabled: true,
		},
		Watch: WatchConfig{
			Debounce: 2 * time.Second,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path required for sqlite"))
		}
	case "postgres":
		if !c.Database.DSN.IsSet() {
			errs = append(errs, errors.New("database.dsn required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}

	switch c.Index.Backend {
	case "chromem":
		if c.Index.Path == "" {
			errs = append(errs, errors.New("index.path required for chromem"))
		}
		if k := c.Index.EncryptionKey; k.IsSet() && len(k.Value()) != 32 {
			errs = append(errs, errors.New("index.encryption_key must be exactly 32 bytes"))
		}
	case "qdrant":
		if c.Index.Qdrant.Host == "" || c.Index.Qdrant.Collection == "" {
			errs = append(errs, errors.New("index.qdrant host and collection required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown index backend %q", c.Index.Backend))
	}
	if c.Index.RebuildPolicy != RebuildOverwrite && c.Index.RebuildPolicy != RebuildScoped {
		errs = append(errs, fmt.Errorf("index.rebuild_policy must be %q or %q", RebuildOverwrite, RebuildScoped))
	}

	switch c.Embeddings.Provider {
	case "fastembed", "openai", "googleai", "hash":
	default:
		errs = append(errs, fmt.Errorf("unknown embeddings provider %q", c.Embeddings.Provider))
	}
	if c.Embeddings.BatchSize < 1 {
		errs = append(errs, errors.New("embeddings.batch_size must be >= 1"))
	}

	switch c.LLM.Provider {
	case "googleai", "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}

	if c.Search.TopK < 1 {
		errs = append(errs, errors.New("search.top_k must be >= 1"))
	}
	if c.Search.MinQueryLength < 1 {
		errs = append(errs, errors.New("search.min_query_length must be >= 1"))
	}
	if c.Search.PreviewLength < 1 {
		errs = append(errs, errors.New("search.preview_length must be >= 1"))
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.ServiceName == "" {
			errs = append(errs, errors.New("service name required when telemetry is enabled"))
		}
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http/protobuf" {
			errs = append(errs, fmt.Errorf("telemetry.protocol must be grpc or http/protobuf, got %q", c.Telemetry.Protocol))
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			errs = append(errs, errors.New("telemetry.sample_rate must be within [0,1]"))
		}
	}

	return errors.Join(errs...)
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codesearch"
	}
	return filepath.Join(home, ".config", "codesearch")
}
