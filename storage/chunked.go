package storage

import (
	"context"
	"slices"

	"github.com/poiesic/embedbase/batch"
	"github.com/poiesic/embedbase/core"
)

// SelectFunc looks up one chunk of keys. byHash reports whether keys are
// content hashes rather than document ids.
type SelectFunc func(ctx context.Context, keys []string, byHash bool) ([]core.Document, error)

// SelectChunked validates q, deduplicates its keys, splits them into
// chunks of size and runs fn for each chunk on runner. Results keep chunk
// order. A nil runner runs chunks sequentially.
func SelectChunked(ctx context.Context, runner *batch.Runner, q SelectQuery, size int, fn SelectFunc) ([]core.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if size <= 0 {
		size = DefaultSelectBatchSize
	}
	keys, byHash := q.IDs, false
	if len(q.Hashes) > 0 {
		keys, byHash = q.Hashes, true
	}
	keys = UniqueStrings(keys)

	return batch.Map(ctx, runner, batch.Chunks(keys, size), func(ctx context.Context, chunk []string) ([]core.Document, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn(ctx, chunk, byHash)
	})
}

// UpdateChunked applies opts' scope to docs and writes them in chunks of
// opts.BatchSize via fn. The caller's slice is not modified.
func UpdateChunked(ctx context.Context, runner *batch.Runner, docs []core.Document, opts UpdateOptions, fn func(ctx context.Context, chunk []core.Document) error) error {
	if len(docs) == 0 {
		return nil
	}
	size := opts.BatchSize
	if size <= 0 {
		size = DefaultUpdateBatchSize
	}
	scoped := ScopeDocuments(docs, opts)
	return batch.Each(ctx, runner, batch.Chunks(scoped, size), func(ctx context.Context, chunk []core.Document) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(ctx, chunk)
	})
}

// ScopeDocuments returns copies of docs carrying opts' dataset and tenant.
// Data is blanked when opts.StoreData is false.
func ScopeDocuments(docs []core.Document, opts UpdateOptions) []core.Document {
	out := make([]core.Document, len(docs))
	for i, doc := range docs {
		doc.DatasetID = opts.DatasetID
		doc.TenantID = opts.TenantID
		if !opts.StoreData {
			doc.Data = ""
		}
		out[i] = doc
	}
	return out
}

// UniqueStrings returns values without duplicates, keeping first-seen order.
func UniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return slices.Clip(out)
}

// InScope reports whether doc belongs to the given dataset and tenant.
// Empty filters match everything.
func InScope(doc core.Document, datasetID, tenantID string) bool {
	if datasetID != "" && doc.DatasetID != datasetID {
		return false
	}
	if tenantID != "" && doc.TenantID != tenantID {
		return false
	}
	return true
}
