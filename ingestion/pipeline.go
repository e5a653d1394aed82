package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/embedbase/ai"
	"github.com/poiesic/embedbase/core"
	"github.com/poiesic/embedbase/storage"
)

// Candidate is a submitted document. A nil Data marks an absent document,
// which is dropped rather than rejected.
type Candidate struct {
	Data     *string
	Metadata map[string]any
}

// AddRequest is one batch of candidates for a dataset.
type AddRequest struct {
	DatasetID string
	TenantID  string
	Documents []Candidate

	// StoreData persists the raw text alongside the embedding.
	StoreData bool
}

// Stats summarizes one Add call.
type Stats struct {
	Submitted  int // Candidates with data
	Reused     int // Embeddings copied from stored documents
	Embedded   int // Texts sent to the embedder
	Duplicates int // Candidates already present in scope, or repeated in the batch
	Written    int // Documents passed to the store
}

// Recorder receives per-batch statistics.
type Recorder interface {
	RecordIngest(stats Stats)
}

// Pipeline orchestrates document ingestion against one store and one
// embedder. It holds no per-request state and is safe for concurrent use.
type Pipeline struct {
	store        storage.VectorStore
	embedder     ai.Embedder
	batchSize    int
	embedTimeout time.Duration
	storeTimeout time.Duration
	recorder     Recorder
	logger       *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithBatchSize sets the store write batch size.
// Default is storage.DefaultUpdateBatchSize.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		p.batchSize = size
		return nil
	}
}

// WithEmbedTimeout bounds each embedder call. Zero means no timeout.
func WithEmbedTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		p.embedTimeout = d
		return nil
	}
}

// WithStoreTimeout bounds each store call. Zero means no timeout.
func WithStoreTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		p.storeTimeout = d
		return nil
	}
}

// WithMetrics sets a statistics recorder.
func WithMetrics(r Recorder) Option {
	return func(p *Pipeline) error {
		p.recorder = r
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(store storage.VectorStore, embedder ai.Embedder, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	p := &Pipeline{
		store:        store,
		embedder:     embedder,
		batchSize:    storage.DefaultUpdateBatchSize,
		embedTimeout: 60 * time.Second,
		storeTimeout: 30 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "ingestion")
	return p, nil
}

// callContext derives a context for one outbound call. A client going
// away does not cancel work already underway.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// Add ingests req and returns one document per non-nil candidate, in
// submission order, including candidates skipped as duplicates.
func (p *Pipeline) Add(ctx context.Context, req AddRequest) ([]core.Document, error) {
	if err := core.ValidateDatasetID(req.DatasetID); err != nil {
		return nil, err
	}
	if err := core.ValidateTenantID(req.TenantID); err != nil {
		return nil, err
	}

	if err := p.checkSizes(req.Documents); err != nil {
		return nil, err
	}

	docs := make([]core.Document, 0, len(req.Documents))
	for _, c := range req.Documents {
		if c.Data == nil {
			continue
		}
		docs = append(docs, core.Document{
			Data:      *c.Data,
			Hash:      core.ContentHash(*c.Data),
			Metadata:  c.Metadata,
			DatasetID: req.DatasetID,
			TenantID:  req.TenantID,
		})
	}
	if len(docs) == 0 {
		return []core.Document{}, nil
	}
	stats := Stats{Submitted: len(docs)}

	hashes := make([]string, len(docs))
	for i := range docs {
		hashes[i] = docs[i].Hash
	}

	reused, err := p.reuseEmbeddings(ctx, docs, hashes)
	if err != nil {
		return nil, err
	}
	stats.Reused = reused

	for i := range docs {
		docs[i].ID = core.NewDocumentID()
	}

	embedded, err := p.embedMissing(ctx, docs)
	if err != nil {
		return nil, err
	}
	stats.Embedded = embedded

	pending, err := p.dropDuplicates(ctx, docs, hashes, req.DatasetID, req.TenantID)
	if err != nil {
		return nil, err
	}
	stats.Duplicates = len(docs) - len(pending)

	if len(pending) > 0 {
		storeCtx, cancel := callContext(ctx, p.storeTimeout)
		defer cancel()
		err := p.store.Update(storeCtx, pending, storage.UpdateOptions{
			DatasetID: req.DatasetID,
			TenantID:  req.TenantID,
			BatchSize: p.batchSize,
			StoreData: req.StoreData,
		})
		if err != nil {
			return nil, err
		}
	}
	stats.Written = len(pending)

	p.logger.Info("ingested documents",
		"dataset", req.DatasetID,
		"tenant", req.TenantID,
		"submitted", stats.Submitted,
		"reused", stats.Reused,
		"embedded", stats.Embedded,
		"duplicates", stats.Duplicates,
		"written", stats.Written)
	if p.recorder != nil {
		p.recorder.RecordIngest(stats)
	}
	return docs, nil
}

// checkSizes rejects the batch when any candidate is too big to embed.
func (p *Pipeline) checkSizes(candidates []Candidate) error {
	var indexes []int
	var texts []string
	for i, c := range candidates {
		if c.Data != nil && p.embedder.IsTooBig(*c.Data) {
			indexes = append(indexes, i)
			texts = append(texts, *c.Data)
		}
	}
	if len(indexes) > 0 {
		return newOversizedError(indexes, texts)
	}
	return nil
}

// reuseEmbeddings copies embeddings stored under the same hash in any
// dataset or tenant onto docs. Stored vectors of the wrong length are
// ignored.
func (p *Pipeline) reuseEmbeddings(ctx context.Context, docs []core.Document, hashes []string) (int, error) {
	storeCtx, cancel := callContext(ctx, p.storeTimeout)
	defer cancel()
	stored, err := p.store.Select(storeCtx, storage.SelectQuery{Hashes: hashes})
	if err != nil {
		return 0, err
	}

	dims := p.embedder.Dimensions()
	known := make(map[string][]float32, len(stored))
	for _, doc := range stored {
		if _, ok := known[doc.Hash]; ok || len(doc.Embedding) != dims {
			continue
		}
		known[doc.Hash] = doc.Embedding
	}

	reused := 0
	for i := range docs {
		if vec, ok := known[docs[i].Hash]; ok {
			docs[i].Embedding = vec
			reused++
		}
	}
	return reused, nil
}

// embedMissing embeds every doc still lacking a vector in one call.
func (p *Pipeline) embedMissing(ctx context.Context, docs []core.Document) (int, error) {
	var missing []int
	var texts []string
	for i := range docs {
		if len(docs[i].Embedding) == 0 {
			missing = append(missing, i)
			texts = append(texts, docs[i].Data)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}

	embedCtx, cancel := callContext(ctx, p.embedTimeout)
	defer cancel()
	vectors, err := p.embedder.EmbedTexts(embedCtx, texts)
	if err != nil {
		return 0, ai.WrapProviderError(err)
	}
	if len(vectors) != len(texts) {
		return 0, fmt.Errorf("%w: %w: got %d embeddings for %d texts",
			ai.ErrEmbeddingProvider, ai.ErrDimensionMismatch, len(vectors), len(texts))
	}

	dims := p.embedder.Dimensions()
	for j, idx := range missing {
		if len(vectors[j]) != dims {
			return 0, fmt.Errorf("%w: %w: embedding %d has %d dimensions, want %d",
				ai.ErrEmbeddingProvider, ai.ErrDimensionMismatch, j, len(vectors[j]), dims)
		}
		docs[idx].Embedding = vectors[j]
	}
	return len(missing), nil
}

// dropDuplicates returns the docs to write: those whose hash is not yet
// stored in the scope, keeping only the first of any repeated hash.
func (p *Pipeline) dropDuplicates(ctx context.Context, docs []core.Document, hashes []string, datasetID, tenantID string) ([]core.Document, error) {
	storeCtx, cancel := callContext(ctx, p.storeTimeout)
	defer cancel()
	existing, err := p.store.Select(storeCtx, storage.SelectQuery{
		Hashes:    hashes,
		DatasetID: datasetID,
		TenantID:  tenantID,
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(existing)+len(docs))
	for _, doc := range existing {
		// An empty tenant filter matches every tenant, so narrow to the
		// exact scope here.
		if doc.TenantID == tenantID {
			seen[doc.Hash] = struct{}{}
		}
	}

	pending := make([]core.Document, 0, len(docs))
	for _, doc := range docs {
		if _, ok := seen[doc.Hash]; ok {
			continue
		}
		seen[doc.Hash] = struct{}{}
		pending = append(pending, doc)
	}
	return pending, nil
}
