package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/poiesic/embedbase/ai"
	"github.com/poiesic/embedbase/core"
	"github.com/poiesic/embedbase/storage"
)

const (
	// DefaultTopK is used when a query asks for zero or fewer matches.
	DefaultTopK = 5

	// DefaultMaxTopK caps the matches returned per query regardless of
	// what the client asks for. The ceiling bounds the payload of every
	// response, which carries full embeddings, and the work a single
	// request can demand from the store. Override with WithMaxTopK.
	DefaultMaxTopK = 5
)

// Query is a semantic search request.
type Query struct {
	Text      string
	TopK      int
	DatasetID string
	TenantID  string
	Where     map[string]any
}

// Recorder receives per-query statistics.
type Recorder interface {
	RecordSearch(matches int)
}

// Searcher runs semantic queries against one store and one embedder.
type Searcher struct {
	store        storage.VectorStore
	embedder     ai.Embedder
	maxTopK      int
	embedTimeout time.Duration
	storeTimeout time.Duration
	recorder     Recorder
	logger       *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMaxTopK sets the result ceiling. Default is DefaultMaxTopK.
func WithMaxTopK(n int) Option {
	return func(s *Searcher) error {
		if n < 1 {
			return fmt.Errorf("max topK must be positive, got %d", n)
		}
		s.maxTopK = n
		return nil
	}
}

// WithEmbedTimeout bounds the query embedding call. Zero means no timeout.
func WithEmbedTimeout(d time.Duration) Option {
	return func(s *Searcher) error {
		s.embedTimeout = d
		return nil
	}
}

// WithStoreTimeout bounds the store search call. Zero means no timeout.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Searcher) error {
		s.storeTimeout = d
		return nil
	}
}

// WithMetrics sets a statistics recorder.
func WithMetrics(r Recorder) Option {
	return func(s *Searcher) error {
		s.recorder = r
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(store storage.VectorStore, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		store:        store,
		embedder:     embedder,
		maxTopK:      DefaultMaxTopK,
		embedTimeout: 30 * time.Second,
		storeTimeout: 30 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")
	return s, nil
}

// MaxTopK returns the configured result ceiling.
func (s *Searcher) MaxTopK() int {
	return s.maxTopK
}

// EffectiveTopK applies the default and the ceiling to a requested count.
func (s *Searcher) EffectiveTopK(requested int) int {
	if requested <= 0 {
		requested = DefaultTopK
	}
	return min(requested, s.maxTopK)
}

// Search returns the documents most similar to q.Text, best first.
// An empty query returns no matches without calling the embedder.
func (s *Searcher) Search(ctx context.Context, q Query) ([]core.SearchMatch, error) {
	return s.SearchWithMonitor(ctx, q, nil)
}

// SearchWithMonitor is Search with stage callbacks.
func (s *Searcher) SearchWithMonitor(ctx context.Context, q Query, monitor SearchMonitor) ([]core.SearchMatch, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if err := core.ValidateDatasetID(q.DatasetID); err != nil {
		return nil, err
	}
	if err := core.ValidateTenantID(q.TenantID); err != nil {
		return nil, err
	}

	monitor.Start(q)
	if q.Text == "" {
		monitor.Finish(nil)
		return []core.SearchMatch{}, nil
	}
	if s.embedder.IsTooBig(q.Text) {
		return nil, fmt.Errorf("%w: %w", core.ErrValidation, ErrQueryTooBig)
	}
	topK := s.EffectiveTopK(q.TopK)

	vector, err := s.embed(ctx, q.Text)
	if err != nil {
		return nil, err
	}
	monitor.AfterEmbedding(vector)

	storeCtx, cancel := callContext(ctx, s.storeTimeout)
	defer cancel()
	matches, err := s.store.Search(storeCtx, storage.SearchQuery{
		Vector:     vector,
		TopK:       topK,
		DatasetIDs: []string{q.DatasetID},
		TenantID:   q.TenantID,
		Where:      q.Where,
	})
	if err != nil {
		return nil, err
	}
	monitor.AfterStoreSearch(matches)

	for i := range matches {
		matches[i].ID = decodeID(matches[i].ID)
	}
	if matches == nil {
		matches = []core.SearchMatch{}
	}

	s.logger.Debug("search complete", "dataset", q.DatasetID, "tenant", q.TenantID, "topK", topK, "matches", len(matches))
	if s.recorder != nil {
		s.recorder.RecordSearch(len(matches))
	}
	monitor.Finish(matches)
	return matches, nil
}

func (s *Searcher) embed(ctx context.Context, text string) ([]float32, error) {
	embedCtx, cancel := callContext(ctx, s.embedTimeout)
	defer cancel()
	vector, err := s.embedder.EmbedText(embedCtx, text)
	if err != nil {
		return nil, ai.WrapProviderError(err)
	}
	if dims := s.embedder.Dimensions(); len(vector) != dims {
		return nil, fmt.Errorf("%w: %w: query embedding has %d dimensions, want %d",
			ai.ErrEmbeddingProvider, ai.ErrDimensionMismatch, len(vector), dims)
	}
	return vector, nil
}

// decodeID percent-decodes ids stored in URL-encoded form.
func decodeID(id string) string {
	if decoded, err := url.PathUnescape(id); err == nil {
		return decoded
	}
	return id
}

func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
