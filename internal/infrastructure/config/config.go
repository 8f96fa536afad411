package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Sandbox   SandboxConfig
	Bridge    BridgeConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"1048576"`
	APIKeyHash      string        `envconfig:"API_KEY_HASH"` // bcrypt hash; empty disables auth
}

// SandboxConfig holds guest execution configuration.
type SandboxConfig struct {
	Timeout          time.Duration `envconfig:"SANDBOX_TIMEOUT" default:"5s"`
	PoolSize         int           `envconfig:"SANDBOX_POOL_SIZE" default:"4"`
	MaxCallStackSize int           `envconfig:"SANDBOX_STACK_SIZE" default:"1024"`
	EnableConsole    bool          `envconfig:"SANDBOX_CONSOLE" default:"true"`
	EnableDOM        bool          `envconfig:"SANDBOX_DOM" default:"true"`
	PolicyFile       string        `envconfig:"SANDBOX_POLICY_FILE"`
	WatchPolicy      bool          `envconfig:"SANDBOX_WATCH_POLICY" default:"true"`
	MaxScriptBytes   int           `envconfig:"SANDBOX_MAX_SCRIPT_BYTES" default:"65536"`
	HostScriptDir    string        `envconfig:"SANDBOX_HOST_SCRIPTS"`
	HostScriptGlob   string        `envconfig:"SANDBOX_HOST_SCRIPT_GLOB" default:"**/*.js"`
	ProgramCacheSize int           `envconfig:"SANDBOX_PROGRAM_CACHE" default:"256"`
}

// BridgeConfig holds the optional HTTP bridge endpoint.
type BridgeConfig struct {
	URL        string        `envconfig:"BRIDGE_URL"` // empty disables the bridge
	Timeout    time.Duration `envconfig:"BRIDGE_TIMEOUT" default:"10s"`
	MaxRetries int           `envconfig:"BRIDGE_MAX_RETRIES" default:"3"`
	RateLimit  float64       `envconfig:"BRIDGE_RATE_LIMIT" default:"0"`
	Token      string        `envconfig:"BRIDGE_TOKEN"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Sandbox.PoolSize <= 0 {
		return nil, fmt.Errorf("failed to load config: SANDBOX_POOL_SIZE must be positive, got %d", cfg.Sandbox.PoolSize)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
		},
		Sandbox: SandboxConfig{
			Timeout:          5 * time.Second,
			PoolSize:         4,
			MaxCallStackSize: 1024,
			EnableConsole:    true,
			EnableDOM:        true,
			WatchPolicy:      true,
			MaxScriptBytes:   65536,
			HostScriptGlob:   "**/*.js",
			ProgramCacheSize: 256,
		},
		Bridge: BridgeConfig{
			Timeout:    10 * time.Second,
			MaxRetries: 3,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
