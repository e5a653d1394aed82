package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Host)
	assert.Equal(t, "text-embedding-3-small", cfg.Model)
	assert.Equal(t, 512, cfg.BatchSize)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.BaseDelay)
	assert.Equal(t, 3*time.Second, cfg.MaxDelay)
	assert.Zero(t, cfg.RequestsPerSecond)
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("with custom host and model", func(t *testing.T) {
		cfg := NewConfig(
			WithHost("http://localhost:11434/v1"),
			WithModel("nomic-embed-text"),
			WithAPIKey("secret"),
		)

		assert.Equal(t, "http://localhost:11434/v1", cfg.Host)
		assert.Equal(t, "nomic-embed-text", cfg.Model)
		assert.Equal(t, "secret", cfg.APIKey)
	})

	t.Run("with limits", func(t *testing.T) {
		cfg := NewConfig(
			WithDimensions(768),
			WithMaxTokens(2048),
			WithBatchSize(64),
			WithRetry(5, 2*time.Second, 10*time.Second),
			WithRateLimit(2.5),
		)

		assert.Equal(t, 768, cfg.Dimensions)
		assert.Equal(t, 2048, cfg.MaxTokens)
		assert.Equal(t, 64, cfg.BatchSize)
		assert.Equal(t, 5, cfg.MaxAttempts)
		assert.Equal(t, 2*time.Second, cfg.BaseDelay)
		assert.Equal(t, 10*time.Second, cfg.MaxDelay)
		assert.Equal(t, 2.5, cfg.RequestsPerSecond)
	})
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"adds v1 suffix", "http://localhost:11434", "http://localhost:11434/v1"},
		{"strips trailing slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"keeps existing suffix", "https://api.openai.com/v1", "https://api.openai.com/v1"},
		{"empty stays empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Host: tt.host}
			cfg.Normalize()
			assert.Equal(t, tt.want, cfg.Host)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		require.NoError(t, DefaultConfig().Validate())
	})

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing host", func(c *Config) { c.Host = "" }},
		{"missing model", func(c *Config) { c.Model = "" }},
		{"negative dimensions", func(c *Config) { c.Dimensions = -1 }},
		{"negative max tokens", func(c *Config) { c.MaxTokens = -1 }},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"zero base delay", func(c *Config) { c.BaseDelay = 0 }},
		{"max below base", func(c *Config) { c.MaxDelay = c.BaseDelay / 2 }},
		{"negative rate", func(c *Config) { c.RequestsPerSecond = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
