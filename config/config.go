// Package config loads the service configuration from YAML or TOML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/poiesic/embedbase/ai"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnsupportedFormat is returned for config files that are neither YAML nor TOML.
	ErrUnsupportedFormat = errors.New("unsupported config format")

	// ErrInvalidConfig wraps every Validate failure.
	ErrInvalidConfig = errors.New("invalid config")
)

// Environment variables consulted for the embedder API key, in order.
const (
	EnvAPIKey       = "EMBEDBASE_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// Config is the root service configuration.
type Config struct {
	LogLevel string         `yaml:"log_level" toml:"log_level"`
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Store    StoreConfig    `yaml:"store" toml:"store"`
	Embedder EmbedderConfig `yaml:"embedder" toml:"embedder"`
	Ingest   IngestConfig   `yaml:"ingest" toml:"ingest"`
	Search   SearchConfig   `yaml:"search" toml:"search"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string   `yaml:"addr" toml:"addr"`
	TenantHeader    string   `yaml:"tenant_header" toml:"tenant_header"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	// Backend is one of badger, sqlite, postgres or memory.
	Backend string `yaml:"backend" toml:"backend"`
	// Path is the database directory (badger) or file (sqlite).
	Path  string `yaml:"path" toml:"path"`
	DSN   string `yaml:"dsn" toml:"dsn"`
	Table string `yaml:"table" toml:"table"`
}

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	// Provider is openai or mock.
	Provider          string   `yaml:"provider" toml:"provider"`
	Host              string   `yaml:"host" toml:"host"`
	APIKey            string   `yaml:"api_key" toml:"api_key"`
	Model             string   `yaml:"model" toml:"model"`
	Dimensions        int      `yaml:"dimensions" toml:"dimensions"`
	MaxTokens         int      `yaml:"max_tokens" toml:"max_tokens"`
	BatchSize         int      `yaml:"batch_size" toml:"batch_size"`
	MaxAttempts       int      `yaml:"max_attempts" toml:"max_attempts"`
	BaseDelay         Duration `yaml:"base_delay" toml:"base_delay"`
	MaxDelay          Duration `yaml:"max_delay" toml:"max_delay"`
	RequestsPerSecond float64  `yaml:"requests_per_second" toml:"requests_per_second"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	BatchSize    int      `yaml:"batch_size" toml:"batch_size"`
	EmbedTimeout Duration `yaml:"embed_timeout" toml:"embed_timeout"`
	StoreTimeout Duration `yaml:"store_timeout" toml:"store_timeout"`
}

// SearchConfig tunes the searcher.
type SearchConfig struct {
	MaxTopK int `yaml:"max_top_k" toml:"max_top_k"`
}

// MetricsConfig enables the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Namespace string `yaml:"namespace" toml:"namespace"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	provider := ai.DefaultConfig()
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Store: StoreConfig{
			Backend: "badger",
			Path:    "embedbase-data",
		},
		Embedder: EmbedderConfig{
			Provider:    "openai",
			Host:        provider.Host,
			Model:       provider.Model,
			BatchSize:   provider.BatchSize,
			MaxAttempts: provider.MaxAttempts,
			BaseDelay:   Duration(provider.BaseDelay),
			MaxDelay:    Duration(provider.MaxDelay),
		},
		Ingest: IngestConfig{
			BatchSize:    100,
			EmbedTimeout: Duration(60 * time.Second),
			StoreTimeout: Duration(30 * time.Second),
		},
		Search: SearchConfig{
			MaxTopK: 5,
		},
		Metrics: MetricsConfig{
			Namespace: "embedbase",
		},
	}
}

// Load reads path over the defaults. The format follows the file
// extension: .yaml and .yml for YAML, .toml for TOML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path in the format implied by its extension.
func Save(path string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	case ".toml":
		data, err = toml.Marshal(cfg)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadDotEnv loads environment variables from the given .env files,
// or ./.env when none are named. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv fills the embedder API key from the environment when the file
// leaves it empty.
func (c *Config) ApplyEnv() {
	if c.Embedder.APIKey != "" {
		return
	}
	for _, name := range []string{EnvAPIKey, EnvOpenAIAPIKey} {
		if v := os.Getenv(name); v != "" {
			c.Embedder.APIKey = v
			return
		}
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "badger", "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store.path is required for %s", ErrInvalidConfig, c.Store.Backend)
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store.dsn is required for postgres", ErrInvalidConfig)
		}
	case "memory":
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, c.Store.Backend)
	}

	switch c.Embedder.Provider {
	case "openai":
		if err := c.Embedder.AIConfig().Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	case "mock":
	default:
		return fmt.Errorf("%w: unknown embedder provider %q", ErrInvalidConfig, c.Embedder.Provider)
	}

	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("%w: ingest.batch_size must be at least 1", ErrInvalidConfig)
	}
	if c.Ingest.EmbedTimeout < 0 || c.Ingest.StoreTimeout < 0 {
		return fmt.Errorf("%w: ingest timeouts cannot be negative", ErrInvalidConfig)
	}
	if c.Search.MaxTopK < 1 {
		return fmt.Errorf("%w: search.max_top_k must be at least 1", ErrInvalidConfig)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: server.shutdown_timeout cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// AIConfig converts the embedder section to a provider configuration.
func (e EmbedderConfig) AIConfig() *ai.Config {
	return &ai.Config{
		Host:              e.Host,
		APIKey:            e.APIKey,
		Model:             e.Model,
		Dimensions:        e.Dimensions,
		MaxTokens:         e.MaxTokens,
		BatchSize:         e.BatchSize,
		MaxAttempts:       e.MaxAttempts,
		BaseDelay:         e.BaseDelay.Std(),
		MaxDelay:          e.MaxDelay.Std(),
		RequestsPerSecond: e.RequestsPerSecond,
	}
}
