// Package storagetest provides a behavioral test suite shared by every
// storage.VectorStore backend.
package storagetest

import (
	"context"
	"fmt"
	"slices"
	"testing"

	"github.com/poiesic/embedbase/core"
	"github.com/poiesic/embedbase/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory opens an empty store. The suite closes it.
type Factory func(t *testing.T) storage.VectorStore

// Run exercises a backend against the VectorStore contract.
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.VectorStore)
	}{
		{"UpdateThenSelectByID", testUpdateThenSelectByID},
		{"SelectByHashScoped", testSelectByHashScoped},
		{"SelectMissing", testSelectMissing},
		{"SelectRejectsBadQuery", testSelectRejectsBadQuery},
		{"SelectManyKeys", testSelectManyKeys},
		{"UpdateUpserts", testUpdateUpserts},
		{"UpdateWithoutData", testUpdateWithoutData},
		{"Delete", testDelete},
		{"SearchRanksAndLimits", testSearchRanksAndLimits},
		{"SearchFilters", testSearchFilters},
		{"Clear", testClear},
		{"Datasets", testDatasets},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			tt.fn(t, s)
		})
	}
}

func doc(id, data string, vec []float32, md map[string]any) core.Document {
	return core.Document{
		ID:        id,
		Data:      data,
		Hash:      core.ContentHash(data),
		Embedding: vec,
		Metadata:  md,
	}
}

func update(t *testing.T, s storage.VectorStore, dataset, tenant string, docs ...core.Document) {
	t.Helper()
	err := s.Update(context.Background(), docs, storage.UpdateOptions{
		DatasetID: dataset,
		TenantID:  tenant,
		StoreData: true,
	})
	require.NoError(t, err)
}

func ids(docs []core.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	slices.Sort(out)
	return out
}

func testUpdateThenSelectByID(t *testing.T, s storage.VectorStore) {
	ctx := context.Background()
	in := doc("doc-1", "hello world", []float32{0.1, 0.2, 0.3}, map[string]any{"source": "wiki", "page": float64(2)})
	update(t, s, "ds", "", in)

	got, err := s.Select(ctx, storage.SelectQuery{IDs: []string{"doc-1"}})
	require.NoError(t, err)
	require.Len(t, got, 1)

	d := got[0]
	assert.Equal(t, "doc-1", d.ID)
	assert.Equal(t, "hello world", d.Data)
	assert.Equal(t, in.Hash, d.Hash)
	assert.Equal(t, "ds", d.DatasetID)
	assert.Empty(t, d.TenantID)
	assert.InDeltaSlice(t, in.Embedding, d.Embedding, 1e-6)
	assert.Equal(t, "wiki", d.Metadata["source"])
	assert.EqualValues(t, 2, d.Metadata["page"])
	assert.False(t, d.CreatedAt.IsZero(), "store stamps creation time")
}

func testSelectByHashScoped(t *testing.T, s storage.VectorStore) {
	ctx := context.Background()
	a := doc("a", "shared text", []float32{1, 0}, nil)
	b := doc("b", "shared text", []float32{1, 0}, nil)
	c := doc("c", "shared text", []float32{1, 0}, nil)
	update(t, s, "ds1", "", a)
	update(t, s, "ds2", "", b)
	update(t, s, "ds1", "tenant", c)

	all, err := s.Select(ctx, storage.SelectQuery{Hashes: []string{a.Hash}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(all))

	ds1, err := s.Select(ctx, storage.SelectQuery{Hashes: []string{a.Hash}, DatasetID: "ds1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(ds1))

	scoped, err := s.Select(ctx, storage.SelectQuery{Hashes: []string{a.Hash}, DatasetID: "ds1", TenantID: "tenant"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(scoped))

	byID, err := s.Select(ctx, storage.SelectQuery{IDs: []string{"a", "b"}, DatasetID: "ds2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(byID))
}

func testSelectMissing(t *testing.T, s storage.VectorStore) {
	got, err := s.Select(context.Background(), storage.SelectQuery{IDs: []string{"nope"}})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.Select(context.Background(), storage.SelectQuery{Hashes: []string{core.ContentHash("nope")}})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testSelectRejectsBadQuery(t *testing.T, s storage.VectorStore) {
	_, err := s.Select(context.Background(), storage.SelectQuery{})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	assert.ErrorIs(t, err, storage.ErrStore)

	_, err = s.Select(context.Background(), storage.SelectQuery{IDs: []string{"a"}, Hashes: []string{"h"}})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func testSelectManyKeys(t *testing.T, s storage.VectorStore) {
	const n = 137
	docs := make([]core.Document, n)
	hashes := make([]string, n)
	for i := range docs {
		docs[i] = doc(fmt.Sprintf("id-%03d", i), fmt.Sprintf("text %d", i), []float32{float32(i), 1}, nil)
		hashes[i] = docs[i].Hash
	}
	err := s.Update(context.Background(), docs, storage.UpdateOptions{DatasetID: "ds", BatchSize: 40, StoreData: true})
	require.NoError(t, err)

	got, err := s.Select(context.Background(), storage.SelectQuery{Hashes: hashes, DatasetID: "ds"})
	require.NoError(t, err)
	assert.Len(t, got, n)

	again, err := s.Select(context.Background(), storage.SelectQuery{Hashes: hashes, DatasetID: "ds"})
	require.NoError(t, err)
	assert.Equal(t, ids(got), ids(again))
}

func testUpdateUpserts(t *testing.T, s storage.VectorStore) {
	ctx := context.Background()
	update(t, s, "ds", "", doc("x", "first", []float32{1, 0}, map[string]any{"v": "1"}))
	update(t, s, "ds", "", doc("x", "second", []float32{0, 1}, map[string]any{"v": "2"}))

	got, err := s.Select(ctx, storage.SelectQuery{IDs: []string{"x"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].Data)
	assert.Equal(t, "2", got[0].Metadata["v"])

	// the old hash no longer resolves
	old, err := s.Select(ctx, storage.SelectQuery{Hashes: []string{core.ContentHash("first")}})
	require.NoError(t, err)
	assert.Empty(t, old)
}

func testUpdateWithoutData(t *testing.T, s storage.VectorStore) {
	ctx := context.Background()
	in := doc("x", "secret", []float32{1, 0}, map[string]any{"k": "v"})
	err := s.Update(ctx, []core.Document{in}, storage.UpdateOptions{DatasetID: "ds"})
	require.NoError(t, err)

	got, err := s.Select(ctx, storage.SelectQuery{Hashes: []string{in.Hash}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Data)
	assert.Equal(t, in.Hash, got[0].Hash)
	assert.Equal(t, "v", got[0].Metadata["k"])
	assert.NotEmpty(t, got[0].Embedding)
}

func testDelete(t *testing.T, s storage.VectorStore) {
	ctx := context.Background()
	update(t, s, "ds", "", doc("a", "a", []float32{1, 0}, nil), doc("b", "b", []float32{0, 1}, nil))
	update(t, s, "ds", "t1", doc("c", "c", []float32{1, 1}, nil))

	require.NoError(t, s.Delete(ctx, []string{"a", "missing"}, "ds", ""))
	// wrong tenant leaves c alone
	require.NoError(t, s.Delete(ctx, []string{"c"}, "ds", "t2"))
	// wrong dataset leaves b alone
	require.NoError(t, s.Delete(ctx, []string{"b"}, "other", ""))

	got, err := s.Select(ctx, storage.SelectQuery{IDs: []string{"a", "b", "c"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(got))

	gone, err := s.Select(ctx, storage.SelectQuery{Hashes: []string{core.ContentHash("a")}})
	require.NoError(t, err)
	assert.Empty(t, gone)
}

func testSearchRanksAndLimits(t *testing.T, s storage.VectorStore) {
	update(t, s, "ds", "",
		doc("far", "far", []float32{0, 1}, nil),
		doc("near", "near", []float32{1, 0.1}, nil),
		doc("mid", "mid", []float32{1, 1}, nil),
	)

	matches, err := s.Search(context.Background(), storage.SearchQuery{
		Vector:     []float32{1, 0},
		TopK:       2,
		DatasetIDs: []string{"ds"},
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "near", matches[0].ID)
	assert.Equal(t, "mid", matches[1].ID)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
	assert.InDelta(t, 0.995, matches[0].Score, 0.01)
	assert.Equal(t, "near", matches[0].Data)
	assert.Equal(t, core.ContentHash("near"), matches[0].Hash)
	assert.NotEmpty(t, matches[0].Embedding)
}

func testSearchFilters(t *testing.T, s storage.VectorStore) {
	ctx := context.Background()
	update(t, s, "ds1", "", doc("g", "global", []float32{1, 0}, map[string]any{"lang": "en"}))
	update(t, s, "ds1", "t1", doc("t", "tenant", []float32{1, 0}, map[string]any{"lang": "fr"}))
	update(t, s, "ds2", "", doc("o", "other", []float32{1, 0}, map[string]any{"lang": "en"}))

	q := storage.SearchQuery{Vector: []float32{1, 0}, TopK: 10, DatasetIDs: []string{"ds1"}}
	matches, err := s.Search(ctx, q)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"g", "t"}, matchIDs(matches))

	q.DatasetIDs = []string{"ds1", "ds2"}
	matches, err = s.Search(ctx, q)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"g", "t", "o"}, matchIDs(matches))

	q.TenantID = "t1"
	matches, err = s.Search(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []string{"t"}, matchIDs(matches))

	q.TenantID = ""
	q.Where = map[string]any{"lang": "en"}
	matches, err = s.Search(ctx, q)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"g", "o"}, matchIDs(matches))

	_, err = s.Search(ctx, storage.SearchQuery{Vector: []float32{1, 0}, TopK: 1})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func matchIDs(matches []core.SearchMatch) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.ID
	}
	return out
}

func testClear(t *testing.T, s storage.VectorStore) {
	ctx := context.Background()
	update(t, s, "ds", "", doc("a", "a", []float32{1, 0}, nil))
	update(t, s, "ds", "t1", doc("b", "b", []float32{1, 0}, nil))
	update(t, s, "keep", "", doc("c", "c", []float32{1, 0}, nil))

	require.NoError(t, s.Clear(ctx, "ds", "t1"))
	got, err := s.Select(ctx, storage.SelectQuery{IDs: []string{"a", "b", "c"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(got))

	require.NoError(t, s.Clear(ctx, "ds", ""))
	got, err = s.Select(ctx, storage.SelectQuery{IDs: []string{"a", "b", "c"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(got))

	require.NoError(t, s.Clear(ctx, "empty", ""))
}

func testDatasets(t *testing.T, s storage.VectorStore) {
	ctx := context.Background()
	empty, err := s.Datasets(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, empty)

	update(t, s, "beta", "", doc("1", "1", []float32{1}, nil), doc("2", "2", []float32{1}, nil))
	update(t, s, "alpha", "", doc("3", "3", []float32{1}, nil))
	update(t, s, "alpha", "t1", doc("4", "4", []float32{1}, nil))

	all, err := s.Datasets(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].DatasetID)
	assert.Equal(t, 2, all[0].DocumentsCount)
	assert.Equal(t, "beta", all[1].DatasetID)
	assert.Equal(t, 2, all[1].DocumentsCount)
	assert.False(t, all[0].CreatedAt.IsZero())

	tenant, err := s.Datasets(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, tenant, 1)
	assert.Equal(t, core.Dataset{DatasetID: "alpha", DocumentsCount: 1, CreatedAt: tenant[0].CreatedAt}, tenant[0])
}
