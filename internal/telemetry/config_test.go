package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, ProtocolGRPC, cfg.Protocol)
	assert.Equal(t, "codesearch", cfg.ServiceName)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
	assert.True(t, cfg.MetricsEnabled)
	assert.True(t, cfg.LogsEnabled)
	assert.Equal(t, 15*time.Second, cfg.ExportInterval)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	enabled := func(mut func(*Config)) *Config {
		cfg := NewDefaultConfig()
		cfg.Enabled = true
		mut(cfg)
		return cfg
	}

	tests := []struct {
		name   string
		config *Config
		errMsg string
	}{
		{"disabled skips validation", &Config{}, ""},
		{"enabled defaults", enabled(func(*Config) {}), ""},
		{"http protocol", enabled(func(c *Config) { c.Protocol = ProtocolHTTP; c.Endpoint = "http://localhost:4318" }), ""},
		{"missing endpoint", enabled(func(c *Config) { c.Endpoint = "" }), "endpoint is required"},
		{"missing service name", enabled(func(c *Config) { c.ServiceName = "" }), "service_name is required"},
		{"unknown protocol", enabled(func(c *Config) { c.Protocol = "thrift" }), "protocol must be"},
		{"insecure remote", enabled(func(c *Config) { c.Endpoint = "otel.example.com:4317" }), "insecure connections"},
		{"secure remote", enabled(func(c *Config) { c.Endpoint = "otel.example.com:4317"; c.Insecure = false }), ""},
		{"sample rate above one", enabled(func(c *Config) { c.SampleRate = 1.5 }), "sample_rate"},
		{"negative sample rate", enabled(func(c *Config) { c.SampleRate = -0.1 }), "sample_rate"},
		{"zero export interval", enabled(func(c *Config) { c.ExportInterval = 0 }), "export interval"},
		{"metrics off ignores interval", enabled(func(c *Config) { c.ExportInterval = 0; c.MetricsEnabled = false }), ""},
		{"zero shutdown timeout", enabled(func(c *Config) { c.ShutdownTimeout = 0 }), "shutdown timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_IsLocalEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		want     bool
	}{
		{"localhost:4317", true},
		{"127.0.0.1:4317", true},
		{"127.1.2.3", true},
		{"[::1]:4317", true},
		{"[::1]", true},
		{"::1", true},
		{"http://localhost:4318", true},
		{"otel.example.com:4317", false},
		{"10.0.0.5:4317", false},
		{"https://collector.internal", false},
	}
	for _, tt := range tests {
		cfg := &Config{Endpoint: tt.endpoint}
		assert.Equal(t, tt.want, cfg.isLocalEndpoint(), tt.endpoint)
	}
}
