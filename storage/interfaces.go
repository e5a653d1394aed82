package storage

import (
	"context"
	"fmt"

	"github.com/poiesic/embedbase/core"
)

const (
	// DefaultSelectBatchSize bounds the ids or hashes sent per lookup request.
	DefaultSelectBatchSize = 50

	// DefaultUpdateBatchSize bounds the documents written per write request.
	DefaultUpdateBatchSize = 100
)

// SelectQuery looks documents up by id or by content hash.
// Exactly one of IDs and Hashes must be non-empty. Empty DatasetID or
// TenantID mean no filter on that field.
type SelectQuery struct {
	IDs       []string
	Hashes    []string
	DatasetID string
	TenantID  string
}

// Validate checks that exactly one lookup key list is set.
func (q SelectQuery) Validate() error {
	switch {
	case len(q.IDs) == 0 && len(q.Hashes) == 0:
		return fmt.Errorf("%w: select needs ids or hashes", ErrInvalidQuery)
	case len(q.IDs) > 0 && len(q.Hashes) > 0:
		return fmt.Errorf("%w: select takes ids or hashes, not both", ErrInvalidQuery)
	}
	return nil
}

// UpdateOptions scopes an upsert.
type UpdateOptions struct {
	DatasetID string
	TenantID  string

	// BatchSize bounds documents per write; <= 0 means DefaultUpdateBatchSize.
	BatchSize int

	// StoreData persists the raw text when true. When false the text is
	// dropped while embedding, hash and metadata are kept.
	StoreData bool
}

// SearchQuery is a nearest-neighbor query.
type SearchQuery struct {
	Vector     []float32
	TopK       int
	DatasetIDs []string

	// TenantID restricts results to one tenant when non-empty.
	TenantID string

	// Where is a conjunctive equality filter over metadata keys.
	Where map[string]any
}

// Validate checks the query shape.
func (q SearchQuery) Validate() error {
	if len(q.Vector) == 0 {
		return fmt.Errorf("%w: search vector is empty", ErrInvalidQuery)
	}
	if q.TopK <= 0 {
		return fmt.Errorf("%w: topK must be positive", ErrInvalidQuery)
	}
	if len(q.DatasetIDs) == 0 {
		return fmt.Errorf("%w: search needs at least one dataset", ErrInvalidQuery)
	}
	return nil
}

// VectorStore persists, retrieves, searches and deletes document vectors
// scoped by dataset and tenant. Implementations must be safe for
// concurrent use. Every error returned wraps ErrStore.
type VectorStore interface {
	// Select returns stored documents matching the ids or hashes of q.
	// Large key lists are chunked and looked up concurrently.
	// Order is stable for a fixed store state.
	Select(ctx context.Context, q SelectQuery) ([]core.Document, error)

	// Update upserts documents by id into the scope given by opts.
	// The scope in opts overrides DatasetID and TenantID on the documents.
	Update(ctx context.Context, docs []core.Document, opts UpdateOptions) error

	// Delete removes ids from the dataset, and from the tenant when non-empty.
	// Deleting a missing id is not an error.
	Delete(ctx context.Context, ids []string, datasetID, tenantID string) error

	// Search returns up to q.TopK matches ordered by descending similarity.
	Search(ctx context.Context, q SearchQuery) ([]core.SearchMatch, error)

	// Clear removes every document of the dataset, scoped to the tenant
	// when non-empty. Clearing an empty dataset is not an error.
	Clear(ctx context.Context, datasetID, tenantID string) error

	// Datasets lists distinct datasets with their document counts, scoped
	// to the tenant when non-empty, ordered by dataset id.
	Datasets(ctx context.Context, tenantID string) ([]core.Dataset, error)

	// Close releases the store's resources.
	Close() error
}
