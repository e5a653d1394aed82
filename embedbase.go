// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package embedbase assembles a document embedding and semantic search
// service from a configuration, a vector store and an embedder.
//
// Components not supplied with UseStore or UseEmbedder are resolved from
// the configuration through the registry package the first time they are
// needed.
package embedbase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/embedbase/ai"
	"github.com/poiesic/embedbase/config"
	"github.com/poiesic/embedbase/ingestion"
	"github.com/poiesic/embedbase/metrics"
	"github.com/poiesic/embedbase/registry"
	"github.com/poiesic/embedbase/search"
	"github.com/poiesic/embedbase/server"
	"github.com/poiesic/embedbase/storage"
)

// ErrAlreadyBuilt is returned by Use methods called after the service was
// assembled.
var ErrAlreadyBuilt = errors.New("app already built")

// App wires a store and an embedder into the ingestion pipeline, the
// searcher and the HTTP server.
type App struct {
	mu         sync.Mutex
	cfg        *config.Config
	store      storage.VectorStore
	ownsStore  bool
	embedder   ai.Embedder
	middleware []gin.HandlerFunc
	logger     *slog.Logger

	built    bool
	metrics  *metrics.Metrics
	pipeline *ingestion.Pipeline
	searcher *search.Searcher
	server   *server.Server
}

// Option configures an App.
type Option func(*App) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
		return nil
	}
}

// New creates an App from cfg. A nil cfg uses config.Default().
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Config returns the configuration the App was created with.
func (a *App) Config() *config.Config {
	return a.cfg
}

// UseEmbedder replaces the configured embedding provider.
func (a *App) UseEmbedder(embedder ai.Embedder) error {
	if embedder == nil {
		return ai.ErrEmbedderRequired
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.built {
		return ErrAlreadyBuilt
	}
	a.embedder = embedder
	return nil
}

// UseStore replaces the configured store. The caller keeps ownership and
// closes it after the App.
func (a *App) UseStore(store storage.VectorStore) error {
	if store == nil {
		return server.ErrStoreRequired
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.built {
		return ErrAlreadyBuilt
	}
	a.store = store
	a.ownsStore = false
	return nil
}

// UseMiddleware appends handlers that run before every /v1 route.
// Authentication and tenant resolution (server.SetTenantID) go here.
func (a *App) UseMiddleware(handlers ...gin.HandlerFunc) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.built {
		return ErrAlreadyBuilt
	}
	a.middleware = append(a.middleware, handlers...)
	return nil
}

func (a *App) build(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.built {
		return nil
	}

	if a.embedder == nil {
		embedder, err := registry.NewEmbedder(a.cfg.Embedder)
		if err != nil {
			return fmt.Errorf("create embedder: %w", err)
		}
		a.embedder = embedder
	}
	if a.store == nil {
		store, err := registry.OpenStore(ctx, a.cfg.Store, a.logger)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		a.store = store
		a.ownsStore = true
	}

	pipelineOpts := []ingestion.Option{
		ingestion.WithLogger(a.logger),
		ingestion.WithBatchSize(a.cfg.Ingest.BatchSize),
		ingestion.WithEmbedTimeout(a.cfg.Ingest.EmbedTimeout.Std()),
		ingestion.WithStoreTimeout(a.cfg.Ingest.StoreTimeout.Std()),
	}
	searchOpts := []search.Option{
		search.WithLogger(a.logger),
		search.WithMaxTopK(a.cfg.Search.MaxTopK),
		search.WithEmbedTimeout(a.cfg.Ingest.EmbedTimeout.Std()),
		search.WithStoreTimeout(a.cfg.Ingest.StoreTimeout.Std()),
	}
	serverOpts := []server.Option{
		server.WithLogger(a.logger),
		server.WithStoreTimeout(a.cfg.Ingest.StoreTimeout.Std()),
	}
	if a.cfg.Metrics.Enabled {
		a.metrics = metrics.New(a.cfg.Metrics.Namespace)
		pipelineOpts = append(pipelineOpts, ingestion.WithMetrics(a.metrics))
		searchOpts = append(searchOpts, search.WithMetrics(a.metrics))
		serverOpts = append(serverOpts, server.WithMetrics(a.metrics))
	}
	if header := a.cfg.Server.TenantHeader; header != "" {
		serverOpts = append(serverOpts, server.WithMiddleware(server.HeaderTenant(header)))
	}
	serverOpts = append(serverOpts, server.WithMiddleware(a.middleware...))

	pipeline, err := ingestion.NewPipeline(a.store, a.embedder, pipelineOpts...)
	if err != nil {
		return err
	}
	searcher, err := search.NewSearcher(a.store, a.embedder, searchOpts...)
	if err != nil {
		return err
	}
	srv, err := server.New(a.store, pipeline, searcher, serverOpts...)
	if err != nil {
		return err
	}

	a.pipeline = pipeline
	a.searcher = searcher
	a.server = srv
	a.built = true
	a.logger.Debug("app assembled",
		"store", fmt.Sprintf("%T", a.store),
		"embedder", fmt.Sprintf("%T", a.embedder),
		"dimensions", a.embedder.Dimensions())
	return nil
}

// Store returns the vector store, opening it if needed.
func (a *App) Store(ctx context.Context) (storage.VectorStore, error) {
	if err := a.build(ctx); err != nil {
		return nil, err
	}
	return a.store, nil
}

// Pipeline returns the ingestion pipeline.
func (a *App) Pipeline(ctx context.Context) (*ingestion.Pipeline, error) {
	if err := a.build(ctx); err != nil {
		return nil, err
	}
	return a.pipeline, nil
}

// Searcher returns the searcher.
func (a *App) Searcher(ctx context.Context) (*search.Searcher, error) {
	if err := a.build(ctx); err != nil {
		return nil, err
	}
	return a.searcher, nil
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler(ctx context.Context) (http.Handler, error) {
	if err := a.build(ctx); err != nil {
		return nil, err
	}
	return a.server, nil
}

// Run listens on the configured address and serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve serves the API on ln until ctx is done, then shuts down
// gracefully within the configured shutdown timeout.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	handler, err := a.Handler(ctx)
	if err != nil {
		ln.Close()
		return err
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	a.logger.Info("listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close releases the store when the App opened it.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store != nil && a.ownsStore {
		if err := a.store.Close(); err != nil {
			a.logger.Error("error closing store", "err", err)
			return err
		}
	}
	return nil
}
