// Package memory implements storage.VectorStore on an in-process map.
// Contents are lost on Close. Useful for tests and throwaway runs.
package memory

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/poiesic/embedbase/core"
	"github.com/poiesic/embedbase/storage"
)

// Store is a map-backed vector store keyed by document id.
type Store struct {
	mu     sync.RWMutex
	docs   map[string]core.Document
	closed bool
	now    func() time.Time
	logger *slog.Logger
}

var _ storage.VectorStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithClock overrides the creation-time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) error {
		if now != nil {
			s.now = now
		}
		return nil
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) (*Store, error) {
	s := &Store{
		docs:   make(map[string]core.Document),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "memory-store")
	return s, nil
}

func clone(doc core.Document) core.Document {
	doc.Embedding = slices.Clone(doc.Embedding)
	doc.Metadata = maps.Clone(doc.Metadata)
	return doc
}

func (s *Store) checkOpen() error {
	if s.closed {
		return storage.ErrStorageClosed
	}
	return nil
}

// Select implements storage.VectorStore.
func (s *Store) Select(ctx context.Context, q storage.SelectQuery) ([]core.Document, error) {
	docs, err := storage.SelectChunked(ctx, nil, q, storage.DefaultSelectBatchSize,
		func(ctx context.Context, keys []string, byHash bool) ([]core.Document, error) {
			s.mu.RLock()
			defer s.mu.RUnlock()
			if err := s.checkOpen(); err != nil {
				return nil, err
			}
			if byHash {
				return s.selectByHash(keys, q.DatasetID, q.TenantID), nil
			}
			var out []core.Document
			for _, id := range keys {
				if doc, ok := s.docs[id]; ok && storage.InScope(doc, q.DatasetID, q.TenantID) {
					out = append(out, clone(doc))
				}
			}
			return out, nil
		})
	return docs, storage.Wrap("select", err)
}

func (s *Store) selectByHash(hashes []string, datasetID, tenantID string) []core.Document {
	var out []core.Document
	for _, hash := range hashes {
		var hits []core.Document
		for _, doc := range s.docs {
			if doc.Hash == hash && storage.InScope(doc, datasetID, tenantID) {
				hits = append(hits, clone(doc))
			}
		}
		slices.SortFunc(hits, func(a, b core.Document) int {
			return compareScope(a, b)
		})
		out = append(out, hits...)
	}
	return out
}

func compareScope(a, b core.Document) int {
	for _, pair := range [][2]string{{a.DatasetID, b.DatasetID}, {a.TenantID, b.TenantID}, {a.ID, b.ID}} {
		switch {
		case pair[0] < pair[1]:
			return -1
		case pair[0] > pair[1]:
			return 1
		}
	}
	return 0
}

// Update implements storage.VectorStore.
func (s *Store) Update(ctx context.Context, docs []core.Document, opts storage.UpdateOptions) error {
	err := storage.UpdateChunked(ctx, nil, docs, opts, func(ctx context.Context, chunk []core.Document) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.checkOpen(); err != nil {
			return err
		}
		now := s.now()
		for _, doc := range chunk {
			if prev, ok := s.docs[doc.ID]; ok && !prev.CreatedAt.IsZero() {
				doc.CreatedAt = prev.CreatedAt
			} else {
				doc.CreatedAt = now
			}
			s.docs[doc.ID] = clone(doc)
		}
		return nil
	})
	return storage.Wrap("update", err)
}

// Delete implements storage.VectorStore.
func (s *Store) Delete(ctx context.Context, ids []string, datasetID, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return storage.Wrap("delete", err)
	}
	for _, id := range ids {
		if doc, ok := s.docs[id]; ok && doc.DatasetID == datasetID && storage.InScope(doc, "", tenantID) {
			delete(s.docs, id)
		}
	}
	return nil
}

// Search implements storage.VectorStore with a linear scan.
func (s *Store) Search(ctx context.Context, q storage.SearchQuery) ([]core.SearchMatch, error) {
	if err := q.Validate(); err != nil {
		return nil, storage.Wrap("search", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, storage.Wrap("search", err)
	}
	var matches []core.SearchMatch
	for _, doc := range s.docs {
		if storage.MatchesSearch(doc, q) {
			matches = append(matches, storage.ScoreDocument(clone(doc), q.Vector))
		}
	}
	return storage.RankMatches(matches, q.TopK), nil
}

// Clear implements storage.VectorStore.
func (s *Store) Clear(ctx context.Context, datasetID, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return storage.Wrap("clear", err)
	}
	removed := 0
	for id, doc := range s.docs {
		if doc.DatasetID == datasetID && storage.InScope(doc, "", tenantID) {
			delete(s.docs, id)
			removed++
		}
	}
	s.logger.Debug("cleared dataset", "dataset", datasetID, "tenant", tenantID, "removed", removed)
	return nil
}

// Datasets implements storage.VectorStore.
func (s *Store) Datasets(ctx context.Context, tenantID string) ([]core.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, storage.Wrap("datasets", err)
	}
	var docs []core.Document
	for _, doc := range s.docs {
		if storage.InScope(doc, "", tenantID) {
			docs = append(docs, doc)
		}
	}
	return storage.SummarizeDatasets(docs), nil
}

// Close drops all contents. Further calls fail with storage.ErrStorageClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.docs = nil
	return nil
}
