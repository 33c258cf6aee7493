package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	Sync      SyncConfig
	Proxy     ProxyConfig
	RateLimit RateLimitConfig
	Page      PageConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        string   `envconfig:"PORT" default:"8000"`
	Host        string   `envconfig:"HOST" default:"0.0.0.0"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// SyncConfig tunes cross-window cookie synchronization.
type SyncConfig struct {
	MessageTimeout time.Duration `envconfig:"SYNC_MESSAGE_TIMEOUT" default:"500ms"`
	MaxAttempts    int           `envconfig:"SYNC_MAX_ATTEMPTS" default:"5"`
}

// ProxyConfig holds upstream settings of the XHR relay.
type ProxyConfig struct {
	UpstreamTimeout time.Duration `envconfig:"PROXY_UPSTREAM_TIMEOUT" default:"30s"`
	RetryMax        int           `envconfig:"PROXY_RETRY_MAX" default:"3"`
	RetryWaitMin    time.Duration `envconfig:"PROXY_RETRY_WAIT_MIN" default:"100ms"`
	RetryWaitMax    time.Duration `envconfig:"PROXY_RETRY_WAIT_MAX" default:"2s"`
	MaxBodyBytes    int64         `envconfig:"PROXY_MAX_BODY_BYTES" default:"10485760"`
	BreakerFailures uint32        `envconfig:"PROXY_BREAKER_FAILURES" default:"5"`
	BreakerTimeout  time.Duration `envconfig:"PROXY_BREAKER_TIMEOUT" default:"30s"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// PageConfig selects the page loaded at startup. An empty scenario path
// serves a single top window.
type PageConfig struct {
	Scenario string `envconfig:"PAGE_SCENARIO"`
	Origin   string `envconfig:"PAGE_ORIGIN" default:"http://localhost:8000"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
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

// Validate rejects settings the sync and proxy layers cannot run with.
func (c *Config) Validate() error {
	if c.Sync.MessageTimeout <= 0 {
		return fmt.Errorf("invalid config: SYNC_MESSAGE_TIMEOUT must be positive, got %s", c.Sync.MessageTimeout)
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("invalid config: SYNC_MAX_ATTEMPTS must be at least 1, got %d", c.Sync.MaxAttempts)
	}
	if c.Proxy.RetryMax < 0 {
		return fmt.Errorf("invalid config: PROXY_RETRY_MAX must not be negative, got %d", c.Proxy.RetryMax)
	}
	if c.Proxy.MaxBodyBytes <= 0 {
		return fmt.Errorf("invalid config: PROXY_MAX_BODY_BYTES must be positive, got %d", c.Proxy.MaxBodyBytes)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8000",
			Host:        "0.0.0.0",
			CORSOrigins: []string{"*"},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Sync: SyncConfig{
			MessageTimeout: 500 * time.Millisecond,
			MaxAttempts:    5,
		},
		Proxy: ProxyConfig{
			UpstreamTimeout: 30 * time.Second,
			RetryMax:        3,
			RetryWaitMin:    100 * time.Millisecond,
			RetryWaitMax:    2 * time.Second,
			MaxBodyBytes:    10 << 20,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Page: PageConfig{
			Origin: "http://localhost:8000",
		},
	}
}
