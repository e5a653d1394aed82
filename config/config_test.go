package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "badger", cfg.Store.Backend)
	assert.Equal(t, "openai", cfg.Embedder.Provider)
	assert.Equal(t, 5, cfg.Search.MaxTopK)
	assert.Equal(t, 60*time.Second, cfg.Ingest.EmbedTimeout.Std())
	assert.Equal(t, 30*time.Second, cfg.Ingest.StoreTimeout.Std())
	require.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "embedbase.yaml", `
log_level: debug
server:
  addr: ":9000"
  tenant_header: X-Tenant
store:
  backend: sqlite
  path: /tmp/embedbase.db
embedder:
  provider: mock
  dimensions: 32
ingest:
  embed_timeout: 90s
search:
  max_top_k: 20
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "X-Tenant", cfg.Server.TenantHeader)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "mock", cfg.Embedder.Provider)
	assert.Equal(t, 32, cfg.Embedder.Dimensions)
	assert.Equal(t, 90*time.Second, cfg.Ingest.EmbedTimeout.Std())
	assert.Equal(t, 20, cfg.Search.MaxTopK)

	// untouched values keep their defaults
	assert.Equal(t, 30*time.Second, cfg.Ingest.StoreTimeout.Std())
	assert.Equal(t, 100, cfg.Ingest.BatchSize)
	require.NoError(t, cfg.Validate())
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "embedbase.toml", `
[store]
backend = "postgres"
dsn = "postgres://localhost/embedbase"
table = "docs"

[embedder]
host = "http://localhost:11434"
model = "nomic-embed-text"
base_delay = "500ms"
max_delay = "2s"

[metrics]
enabled = true
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "docs", cfg.Store.Table)
	assert.Equal(t, "nomic-embed-text", cfg.Embedder.Model)
	assert.Equal(t, 500*time.Millisecond, cfg.Embedder.BaseDelay.Std())
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "embedbase", cfg.Metrics.Namespace)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "http://localhost:11434", cfg.Embedder.AIConfig().Host)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("unknown extension", func(t *testing.T) {
		_, err := Load(writeFile(t, "embedbase.json", `{}`))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := Load(writeFile(t, "embedbase.yaml", "ingest:\n  embed_timeout: soon\n"))
		assert.Error(t, err)
	})

	t.Run("malformed toml", func(t *testing.T) {
		_, err := Load(writeFile(t, "embedbase.toml", "[store\n"))
		assert.Error(t, err)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	for _, name := range []string{"out.yaml", "out.toml"} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.Store.Backend = "memory"
			cfg.Ingest.EmbedTimeout = Duration(45 * time.Second)

			path := filepath.Join(t.TempDir(), "nested", name)
			require.NoError(t, Save(path, cfg))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }},
		{"badger without path", func(c *Config) { c.Store.Path = "" }},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = "postgres" }},
		{"unknown provider", func(c *Config) { c.Embedder.Provider = "cohere" }},
		{"openai without model", func(c *Config) { c.Embedder.Model = "" }},
		{"zero batch size", func(c *Config) { c.Ingest.BatchSize = 0 }},
		{"negative timeout", func(c *Config) { c.Ingest.StoreTimeout = Duration(-time.Second) }},
		{"zero max topK", func(c *Config) { c.Search.MaxTopK = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	t.Run("memory store with mock embedder", func(t *testing.T) {
		cfg := Default()
		cfg.Store = StoreConfig{Backend: "memory"}
		cfg.Embedder = EmbedderConfig{Provider: "mock"}
		assert.NoError(t, cfg.Validate())
	})
}

func TestApplyEnv(t *testing.T) {
	t.Run("embedbase key wins", func(t *testing.T) {
		t.Setenv(EnvAPIKey, "eb-key")
		t.Setenv(EnvOpenAIAPIKey, "oa-key")
		cfg := Default()
		cfg.ApplyEnv()
		assert.Equal(t, "eb-key", cfg.Embedder.APIKey)
	})

	t.Run("openai key fallback", func(t *testing.T) {
		t.Setenv(EnvAPIKey, "")
		t.Setenv(EnvOpenAIAPIKey, "oa-key")
		cfg := Default()
		cfg.ApplyEnv()
		assert.Equal(t, "oa-key", cfg.Embedder.APIKey)
	})

	t.Run("file value kept", func(t *testing.T) {
		t.Setenv(EnvAPIKey, "eb-key")
		cfg := Default()
		cfg.Embedder.APIKey = "from-file"
		cfg.ApplyEnv()
		assert.Equal(t, "from-file", cfg.Embedder.APIKey)
	})
}

func TestLoadDotEnv(t *testing.T) {
	t.Setenv("EMBEDBASE_DOTENV_TEST", "")
	require.NoError(t, os.Unsetenv("EMBEDBASE_DOTENV_TEST"))

	path := writeFile(t, ".env", "EMBEDBASE_DOTENV_TEST=loaded\n")
	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("EMBEDBASE_DOTENV_TEST"))

	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestDuration(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Std())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("ninety")))
}
