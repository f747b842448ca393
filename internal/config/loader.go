package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix is stripped from environment variables before mapping them to keys.
	EnvPrefix = "CODESEARCH_"
)

// LoadWithFile loads configuration from a YAML file, then overrides with environment variables.
//
// Precedence (highest to lowest):
//  1. CODESEARCH_* environment variables
//  2. YAML config file (~/.config/codesearch/config.yaml)
//  3. Default()
//
// Provider credentials fall back to GOOGLE_API_KEY / GEMINI_API_KEY (googleai)
// or OPENAI_API_KEY (openai) when not configured explicitly.
//
// The file must live under ~/.config/codesearch/ or /etc/codesearch/, must be
// 0600 or 0400, and may not exceed 1MB. A missing file is not an error.
//
// Environment keys split on the first underscore after the prefix:
//
//	CODESEARCH_SERVER_HTTP_PORT -> server.http_port
//	CODESEARCH_SEARCH_TOP_K     -> search.top_k
//	CODESEARCH_INDEX_QDRANT_HOST -> index.qdrant.host
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)
	applyCredentialFallbacks(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// DefaultPath returns ~/.config/codesearch/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "codesearch", "config.yaml"), nil
}

// EnsureDataDirs creates the directories the sqlite database and chromem index live in.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{}
	if cfg.Database.Driver == "sqlite" {
		dirs = append(dirs, filepath.Dir(cfg.Database.Path))
	}
	if cfg.Index.Backend == "chromem" {
		dirs = append(dirs, cfg.Index.Path)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create data directory %s: %w", dir, err)
		}
	}
	return nil
}

// envKey maps CODESEARCH_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	if section == "index" && strings.HasPrefix(field, "qdrant_") {
		return "index.qdrant." + strings.TrimPrefix(field, "qdrant_")
	}
	return section + "." + field
}

// readConfigFile validates and reads the file through a single descriptor.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// validateConfigPath checks the resolved path is inside an allowed directory.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolved = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	for _, dir := range []string{filepath.Join(home, ".config", "codesearch"), "/etc/codesearch"} {
		if resolved == dir || strings.HasPrefix(resolved, dir+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/codesearch/ or /etc/codesearch/")
}

func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults fills list defaults (kept out of Default so YAML lists replace
// them instead of merging element-wise) and expands ~ in paths.
func applyDefaults(cfg *Config) {
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	if cfg.Ingest.DescriptionFiles < 30 {
		cfg.Ingest.DescriptionFiles = 30
	}
	if cfg.Ingest.DescriptionFiles > 50 {
		cfg.Ingest.DescriptionFiles = 50
	}
	if cfg.Ingest.MaxFileSize <= 0 {
		cfg.Ingest.MaxFileSize = 1 << 20
	}
	if cfg.Index.Qdrant.MaxRetries < 0 {
		cfg.Index.Qdrant.MaxRetries = 0
	}

	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	cfg.Index.Path = ExpandPath(cfg.Index.Path)
	cfg.Embeddings.CacheDir = ExpandPath(cfg.Embeddings.CacheDir)
}

func applyCredentialFallbacks(cfg *Config) {
	if !cfg.LLM.APIKey.IsSet() {
		cfg.LLM.APIKey = providerKeyFromEnv(cfg.LLM.Provider)
	}
	if !cfg.Embeddings.APIKey.IsSet() && cfg.Embeddings.Provider != "fastembed" && cfg.Embeddings.Provider != "hash" {
		cfg.Embeddings.APIKey = providerKeyFromEnv(cfg.Embeddings.Provider)
	}
}

func providerKeyFromEnv(provider string) Secret {
	var names []string
	switch provider {
	case "googleai":
		names = []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"}
	case "openai":
		names = []string{"OPENAI_API_KEY"}
	}
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return Secret(v)
		}
	}
	return ""
}
