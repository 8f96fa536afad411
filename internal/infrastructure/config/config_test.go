package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

	// Sandbox config
	assert.Equal(t, 5*time.Second, cfg.Sandbox.Timeout)
	assert.Equal(t, 4, cfg.Sandbox.PoolSize)
	assert.Equal(t, 1024, cfg.Sandbox.MaxCallStackSize)
	assert.True(t, cfg.Sandbox.EnableConsole)
	assert.True(t, cfg.Sandbox.EnableDOM)
	assert.Empty(t, cfg.Sandbox.PolicyFile)
	assert.True(t, cfg.Sandbox.WatchPolicy)
	assert.Equal(t, "**/*.js", cfg.Sandbox.HostScriptGlob)
	assert.Equal(t, 256, cfg.Sandbox.ProgramCacheSize)

	// Bridge config
	assert.Empty(t, cfg.Bridge.URL)
	assert.Equal(t, 10*time.Second, cfg.Bridge.Timeout)
	assert.Equal(t, 3, cfg.Bridge.MaxRetries)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)
}

// unsetenv clears keys for the duration of the test.
func unsetenv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadMatchesDefault(t *testing.T) {
	unsetenv(t, "PORT", "HOST", "SHUTDOWN_TIMEOUT", "LOG_LEVEL", "LOG_DEV", "API_KEY_HASH", "BRIDGE_URL", "BRIDGE_TOKEN")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                 "9000",
		"HOST":                 "127.0.0.1",
		"SHUTDOWN_TIMEOUT":     "3s",
		"SANDBOX_TIMEOUT":      "250ms",
		"SANDBOX_POOL_SIZE":    "8",
		"SANDBOX_STACK_SIZE":   "256",
		"SANDBOX_CONSOLE":      "false",
		"SANDBOX_DOM":          "false",
		"SANDBOX_POLICY_FILE":  "/etc/membrane/policy.yaml",
		"SANDBOX_HOST_SCRIPTS": "/etc/membrane/scripts",
		"BRIDGE_URL":           "http://localhost:9000",
		"BRIDGE_RATE_LIMIT":    "2.5",
		"MAX_BODY_BYTES":       "2048",
		"LOG_LEVEL":            "debug",
		"LOG_DEV":              "true",
		"RATE_LIMIT_RPS":       "500",
		"RATE_LIMIT_BURST":     "1000",
		"RATE_LIMIT_ENABLED":   "false",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, 250*time.Millisecond, cfg.Sandbox.Timeout)
	assert.Equal(t, 8, cfg.Sandbox.PoolSize)
	assert.Equal(t, 256, cfg.Sandbox.MaxCallStackSize)
	assert.False(t, cfg.Sandbox.EnableConsole)
	assert.False(t, cfg.Sandbox.EnableDOM)
	assert.Equal(t, "/etc/membrane/policy.yaml", cfg.Sandbox.PolicyFile)
	assert.Equal(t, "/etc/membrane/scripts", cfg.Sandbox.HostScriptDir)
	assert.Equal(t, "http://localhost:9000", cfg.Bridge.URL)
	assert.Equal(t, 2.5, cfg.Bridge.RateLimit)
	assert.Equal(t, int64(2048), cfg.Server.MaxBodyBytes)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)

	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "malformed duration", key: "SANDBOX_TIMEOUT", value: "soon"},
		{name: "malformed int", key: "SANDBOX_POOL_SIZE", value: "many"},
		{name: "zero pool", key: "SANDBOX_POOL_SIZE", value: "0"},
		{name: "malformed bool", key: "SANDBOX_DOM", value: "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)

			// LoadOrDefault falls back instead of failing.
			assert.Equal(t, Default(), LoadOrDefault())
		})
	}
}

func TestServerConfig(t *testing.T) {
	tests := []struct {
		name     string
		port     string
		host     string
		wantPort string
		wantHost string
	}{
		{name: "default values", wantPort: "8000", wantHost: "0.0.0.0"},
		{name: "custom port", port: "9000", wantPort: "9000", wantHost: "0.0.0.0"},
		{name: "custom host", host: "localhost", wantPort: "8000", wantHost: "localhost"},
		{name: "custom port and host", port: "3000", host: "127.0.0.1", wantPort: "3000", wantHost: "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unsetenv(t, "PORT", "HOST")
			if tt.port != "" {
				t.Setenv("PORT", tt.port)
			}
			if tt.host != "" {
				t.Setenv("HOST", tt.host)
			}

			cfg := LoadOrDefault()

			assert.Equal(t, tt.wantPort, cfg.Server.Port)
			assert.Equal(t, tt.wantHost, cfg.Server.Host)
		})
	}
}

func TestLoggingConfig(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		dev       string
		wantLevel string
		wantDev   bool
	}{
		{name: "default values", wantLevel: "info"},
		{name: "debug level", level: "debug", wantLevel: "debug"},
		{name: "development mode", dev: "true", wantLevel: "info", wantDev: true},
		{name: "error level production", level: "error", dev: "false", wantLevel: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unsetenv(t, "LOG_LEVEL", "LOG_DEV")
			if tt.level != "" {
				t.Setenv("LOG_LEVEL", tt.level)
			}
			if tt.dev != "" {
				t.Setenv("LOG_DEV", tt.dev)
			}

			cfg := LoadOrDefault()

			assert.Equal(t, tt.wantLevel, cfg.Logging.Level)
			assert.Equal(t, tt.wantDev, cfg.Logging.Development)
		})
	}
}

func TestRateLimitConfig(t *testing.T) {
	tests := []struct {
		name        string
		rps         string
		burst       string
		enabled     string
		wantRPS     int
		wantBurst   int
		wantEnabled bool
	}{
		{name: "default values", wantRPS: 100, wantBurst: 200, wantEnabled: true},
		{name: "high limits", rps: "1000", burst: "2000", wantRPS: 1000, wantBurst: 2000, wantEnabled: true},
		{name: "disabled", enabled: "false", wantRPS: 100, wantBurst: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unsetenv(t, "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "RATE_LIMIT_ENABLED")
			if tt.rps != "" {
				t.Setenv("RATE_LIMIT_RPS", tt.rps)
			}
			if tt.burst != "" {
				t.Setenv("RATE_LIMIT_BURST", tt.burst)
			}
			if tt.enabled != "" {
				t.Setenv("RATE_LIMIT_ENABLED", tt.enabled)
			}

			cfg := LoadOrDefault()

			assert.Equal(t, tt.wantRPS, cfg.RateLimit.RequestsPerSecond)
			assert.Equal(t, tt.wantBurst, cfg.RateLimit.Burst)
			assert.Equal(t, tt.wantEnabled, cfg.RateLimit.Enabled)
		})
	}
}
