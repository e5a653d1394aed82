package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/poiesic/embedbase/batch"
	"github.com/poiesic/embedbase/core"
	"github.com/poiesic/embedbase/storage"
	"github.com/poiesic/embedbase/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.VectorStore {
		s, err := NewMemoryStore()
		require.NoError(t, err)
		return s
	})
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir)
	require.NoError(t, err)
	doc := core.Document{ID: "a", Data: "kept", Hash: core.ContentHash("kept"), Embedding: []float32{1, 2}}
	require.NoError(t, s.Update(ctx, []core.Document{doc}, storage.UpdateOptions{DatasetID: "ds", StoreData: true}))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Select(ctx, storage.SelectQuery{Hashes: []string{doc.Hash}, DatasetID: "ds"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0].Data)
}

func TestUpdateMovesDocumentBetweenScopes(t *testing.T) {
	s, err := NewMemoryStore()
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	doc := core.Document{ID: "a", Data: "x", Hash: core.ContentHash("x"), Embedding: []float32{1}}
	require.NoError(t, s.Update(ctx, []core.Document{doc}, storage.UpdateOptions{DatasetID: "one"}))
	require.NoError(t, s.Update(ctx, []core.Document{doc}, storage.UpdateOptions{DatasetID: "two"}))

	datasets, err := s.Datasets(ctx, "")
	require.NoError(t, err)
	require.Len(t, datasets, 1)
	assert.Equal(t, "two", datasets[0].DatasetID)

	stale, err := s.Select(ctx, storage.SelectQuery{Hashes: []string{doc.Hash}, DatasetID: "one"})
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestCreatedAtSurvivesUpsert(t *testing.T) {
	t0 := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := t0
	s, err := NewMemoryStore(WithClock(func() time.Time { return clock }))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	doc := core.Document{ID: "a", Hash: "h", Embedding: []float32{1}}
	require.NoError(t, s.Update(ctx, []core.Document{doc}, storage.UpdateOptions{DatasetID: "ds"}))
	clock = t0.Add(time.Hour)
	require.NoError(t, s.Update(ctx, []core.Document{doc}, storage.UpdateOptions{DatasetID: "ds"}))

	datasets, err := s.Datasets(ctx, "")
	require.NoError(t, err)
	require.Len(t, datasets, 1)
	assert.Equal(t, t0, datasets[0].CreatedAt)
}

func TestSharedRunner(t *testing.T) {
	runner, err := batch.NewRunner(batch.WithPoolSize(2))
	require.NoError(t, err)
	defer runner.Release()

	s, err := NewMemoryStore(WithRunner(runner))
	require.NoError(t, err)
	ctx := context.Background()

	docs := make([]core.Document, 250)
	ids := make([]string, len(docs))
	for i := range docs {
		data := fmt.Sprintf("doc %d", i)
		docs[i] = core.Document{ID: fmt.Sprintf("%04d", i), Data: data, Hash: core.ContentHash(data), Embedding: []float32{float32(i)}}
		ids[i] = docs[i].ID
	}
	require.NoError(t, s.Update(ctx, docs, storage.UpdateOptions{DatasetID: "ds", BatchSize: 30}))

	got, err := s.Select(ctx, storage.SelectQuery{IDs: ids})
	require.NoError(t, err)
	require.Len(t, got, 250)
	for i, doc := range got {
		assert.Equal(t, ids[i], doc.ID)
	}

	require.NoError(t, s.Close())
	// runner is still usable after the store closes
	_, err = batch.Map(ctx, runner, [][]int{{1}, {2}}, func(ctx context.Context, c []int) ([]int, error) { return c, nil })
	assert.NoError(t, err)
}

func TestClosedStoreFails(t *testing.T) {
	s, err := NewMemoryStore()
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Select(context.Background(), storage.SelectQuery{IDs: []string{"a"}})
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	assert.ErrorIs(t, err, storage.ErrStore)
}

func TestNewStoreRequiresBackend(t *testing.T) {
	_, err := NewStore(nil)
	assert.ErrorIs(t, err, ErrBackendRequired)
}
