// Package registry maps configuration names to store and embedder
// constructors. Lookups happen once at startup.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/poiesic/embedbase/ai"
	"github.com/poiesic/embedbase/ai/mock"
	"github.com/poiesic/embedbase/ai/openai"
	"github.com/poiesic/embedbase/config"
	"github.com/poiesic/embedbase/storage"
	"github.com/poiesic/embedbase/storage/badger"
	"github.com/poiesic/embedbase/storage/memory"
	"github.com/poiesic/embedbase/storage/postgres"
	"github.com/poiesic/embedbase/storage/sqlite"
)

var (
	// ErrUnknownBackend is returned for store backends with no factory.
	ErrUnknownBackend = errors.New("unknown store backend")

	// ErrUnknownProvider is returned for embedding providers with no factory.
	ErrUnknownProvider = errors.New("unknown embedding provider")
)

// StoreFactory opens a vector store from its configuration section.
type StoreFactory func(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (storage.VectorStore, error)

// EmbedderFactory builds an embedder from its configuration section.
type EmbedderFactory func(cfg config.EmbedderConfig) (ai.Embedder, error)

var (
	mu        sync.RWMutex
	stores    = map[string]StoreFactory{}
	embedders = map[string]EmbedderFactory{}
)

func init() {
	RegisterStore("badger", openBadger)
	RegisterStore("sqlite", openSQLite)
	RegisterStore("postgres", openPostgres)
	RegisterStore("memory", openMemory)

	RegisterEmbedder("openai", newOpenAI)
	RegisterEmbedder("mock", newMock)
}

// RegisterStore adds or replaces the factory for a backend name.
func RegisterStore(name string, factory StoreFactory) {
	mu.Lock()
	defer mu.Unlock()
	stores[name] = factory
}

// RegisterEmbedder adds or replaces the factory for a provider name.
func RegisterEmbedder(name string, factory EmbedderFactory) {
	mu.Lock()
	defer mu.Unlock()
	embedders[name] = factory
}

// StoreBackends lists registered backend names, sorted.
func StoreBackends() []string {
	mu.RLock()
	defer mu.RUnlock()
	return slices.Sorted(maps.Keys(stores))
}

// EmbedderProviders lists registered provider names, sorted.
func EmbedderProviders() []string {
	mu.RLock()
	defer mu.RUnlock()
	return slices.Sorted(maps.Keys(embedders))
}

// OpenStore opens the store named by cfg.Backend.
func OpenStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (storage.VectorStore, error) {
	mu.RLock()
	factory, ok := stores[cfg.Backend]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return factory(ctx, cfg, logger)
}

// NewEmbedder builds the embedder named by cfg.Provider.
func NewEmbedder(cfg config.EmbedderConfig) (ai.Embedder, error) {
	mu.RLock()
	factory, ok := embedders[cfg.Provider]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	return factory(cfg)
}

func openBadger(_ context.Context, cfg config.StoreConfig, logger *slog.Logger) (storage.VectorStore, error) {
	return badger.Open(cfg.Path, badger.WithLogger(logger))
}

func openSQLite(_ context.Context, cfg config.StoreConfig, logger *slog.Logger) (storage.VectorStore, error) {
	return sqlite.Open(cfg.Path, sqlite.WithLogger(logger))
}

func openPostgres(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (storage.VectorStore, error) {
	opts := []postgres.Option{postgres.WithLogger(logger)}
	if cfg.Table != "" {
		opts = append(opts, postgres.WithTable(cfg.Table))
	}
	return postgres.Open(ctx, cfg.DSN, opts...)
}

func openMemory(_ context.Context, _ config.StoreConfig, logger *slog.Logger) (storage.VectorStore, error) {
	return memory.NewStore(memory.WithLogger(logger))
}

func newOpenAI(cfg config.EmbedderConfig) (ai.Embedder, error) {
	return openai.NewEmbedder(cfg.AIConfig())
}

// newMock reads Dimensions as the vector length and MaxTokens as a word limit.
func newMock(cfg config.EmbedderConfig) (ai.Embedder, error) {
	var opts []mock.Option
	if cfg.Dimensions > 0 {
		opts = append(opts, mock.WithDimensions(cfg.Dimensions))
	}
	if cfg.MaxTokens > 0 {
		opts = append(opts, mock.WithMaxWords(cfg.MaxTokens))
	}
	return mock.NewMockEmbedder(opts...), nil
}
