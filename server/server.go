package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/embedbase/ingestion"
	"github.com/poiesic/embedbase/metrics"
	"github.com/poiesic/embedbase/search"
	"github.com/poiesic/embedbase/storage"
)

// Server routes HTTP requests to the pipeline, the searcher and the store.
type Server struct {
	engine       *gin.Engine
	store        storage.VectorStore
	pipeline     *ingestion.Pipeline
	searcher     *search.Searcher
	metrics      *metrics.Metrics
	middleware   []gin.HandlerFunc
	storeTimeout time.Duration
	logger       *slog.Logger
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMetrics records request metrics and serves them at /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) error {
		s.metrics = m
		return nil
	}
}

// WithMiddleware installs handlers that run before every route, in order.
// Authentication and tenant resolution belong here.
func WithMiddleware(handlers ...gin.HandlerFunc) Option {
	return func(s *Server) error {
		s.middleware = append(s.middleware, handlers...)
		return nil
	}
}

// WithStoreTimeout bounds the store calls made directly by handlers
// (delete, clear, datasets). Zero means no timeout.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Server) error {
		s.storeTimeout = d
		return nil
	}
}

// New creates a server and registers its routes.
func New(store storage.VectorStore, pipeline *ingestion.Pipeline, searcher *search.Searcher, opts ...Option) (*Server, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if pipeline == nil {
		return nil, ErrPipelineRequired
	}
	if searcher == nil {
		return nil, ErrSearcherRequired
	}

	s := &Server{
		store:        store,
		pipeline:     pipeline,
		searcher:     searcher,
		storeTimeout: 30 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "server")

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), requestID(), requestLogger(s.logger))
	if s.metrics != nil {
		s.engine.Use(s.metrics.Middleware())
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.health)
	if s.metrics != nil {
		s.engine.GET("/metrics", s.metrics.Handler())
	}

	v1 := s.engine.Group("/v1", s.middleware...)
	{
		v1.GET("/datasets", s.listDatasets)
		v1.POST("/:datasetId", s.addDocuments)
		v1.DELETE("/:datasetId", s.deleteDocuments)
		v1.POST("/:datasetId/search", s.search)
		v1.GET("/:datasetId/clear", s.clearDataset)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// Engine returns the underlying gin engine for additional routes.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

var _ http.Handler = (*Server)(nil)
