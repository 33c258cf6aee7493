package config

import (
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
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)

	// Sync config
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.MessageTimeout)
	assert.Equal(t, 5, cfg.Sync.MaxAttempts)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	assert.NoError(t, cfg.Validate())
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                   "9000",
		"HOST":                   "127.0.0.1",
		"CORS_ORIGINS":           "https://a.example,https://b.example",
		"LOG_LEVEL":              "debug",
		"LOG_DEV":                "true",
		"SYNC_MESSAGE_TIMEOUT":   "50ms",
		"SYNC_MAX_ATTEMPTS":      "2",
		"PROXY_UPSTREAM_TIMEOUT": "5s",
		"PROXY_RETRY_MAX":        "0",
		"PROXY_BREAKER_FAILURES": "9",
		"RATE_LIMIT_RPS":         "500",
		"RATE_LIMIT_BURST":       "1000",
		"RATE_LIMIT_ENABLED":     "false",
		"PAGE_SCENARIO":          "/tmp/page.yaml",
		"PAGE_ORIGIN":            "https://app.example",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)

	assert.Equal(t, 50*time.Millisecond, cfg.Sync.MessageTimeout)
	assert.Equal(t, 2, cfg.Sync.MaxAttempts)

	assert.Equal(t, 5*time.Second, cfg.Proxy.UpstreamTimeout)
	assert.Equal(t, 0, cfg.Proxy.RetryMax)
	assert.Equal(t, uint32(9), cfg.Proxy.BreakerFailures)

	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)

	assert.Equal(t, "/tmp/page.yaml", cfg.Page.Scenario)
	assert.Equal(t, "https://app.example", cfg.Page.Origin)
}

func TestLoadWithPartialEnvironmentVariables(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)

	assert.Equal(t, 5, cfg.Sync.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Proxy.UpstreamTimeout)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"malformed duration", "SYNC_MESSAGE_TIMEOUT", "soon"},
		{"zero timeout", "SYNC_MESSAGE_TIMEOUT", "0s"},
		{"zero attempts", "SYNC_MAX_ATTEMPTS", "0"},
		{"negative retries", "PROXY_RETRY_MAX", "-1"},
		{"zero body limit", "PROXY_MAX_BODY_BYTES", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)

			cfg := LoadOrDefault()
			assert.Equal(t, Default(), cfg)
		})
	}
}
