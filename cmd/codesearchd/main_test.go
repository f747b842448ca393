package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/codesearch/internal/config"
	"github.com/fyrsmithlabs/codesearch/internal/repository"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(dir, "data", "codesearch.db")
	cfg.Index.Path = filepath.Join(dir, "data", "index")
	cfg.Embeddings.Provider = "hash"
	cfg.LLM.APIKey = ""
	require.NoError(t, cfg.Validate())
	require.NoError(t, config.EnsureDataDirs(cfg))
	return cfg
}

func TestNewApp_EndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := newApp(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.llm.Available())

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "util.py"),
		[]byte("def parse_config(path):\n    return open(path).read()\n"), 0o644))

	repo, err := a.svc.AddRepository(ctx, "demo", src)
	require.NoError(t, err)
	assert.Equal(t, repository.PlaceholderDescription, repo.Description)

	n, err := a.svc.IndexRepository(ctx, repo.ID)
	require.NoError(t, err)
	assert.Positive(t, n)

	results, err := a.svc.Search(ctx, "parse config", nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "util.py", results[0].FilePath)

	_, err = os.Stat(filepath.Join(cfg.Index.Path, "manifest.json"))
	assert.NoError(t, err)
}

func TestNewApp_BadPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Index.RebuildPolicy = "sometimes"

	_, err := newApp(context.Background(), cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	l, err := newLogger(cfg, true)
	require.NoError(t, err)
	assert.NotNil(t, l.Underlying())

	cfg.Logging.Level = "loud"
	_, err = newLogger(cfg, false)
	assert.Error(t, err)
}

func TestTelemetryConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = "collector:4318"
	cfg.Telemetry.Protocol = "http/protobuf"
	cfg.Telemetry.SampleRate = 0.25
	cfg.Telemetry.Insecure = false

	tc := telemetryConfig(cfg)
	assert.True(t, tc.Enabled)
	assert.Equal(t, "collector:4318", tc.Endpoint)
	assert.Equal(t, "http/protobuf", tc.Protocol)
	assert.Equal(t, 0.25, tc.SampleRate)
	assert.Equal(t, version, tc.ServiceVersion)
	assert.NoError(t, tc.Validate())
}
