package badger

import (
	"testing"
	"time"

	"github.com/poiesic/embedbase/core"
	"github.com/poiesic/embedbase/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentCodec(t *testing.T) {
	created := time.Date(2025, 6, 1, 10, 30, 0, 123000, time.UTC)
	tests := []struct {
		name string
		doc  core.Document
	}{
		{
			name: "full document",
			doc: core.Document{
				ID:        "0192-abc",
				Data:      "hello, world",
				Hash:      core.ContentHash("hello, world"),
				Embedding: []float32{0.25, -1.5, 3e-7},
				Metadata:  map[string]any{"source": "wiki", "page": float64(7), "nested": map[string]any{"a": true}},
				DatasetID: "ds",
				TenantID:  "tenant",
				CreatedAt: created,
			},
		},
		{
			name: "minimal document",
			doc:  core.Document{ID: "x", Hash: "h", DatasetID: "ds"},
		},
		{
			name: "unicode data",
			doc:  core.Document{ID: "u", Data: "héllo 世界 🎉", Hash: "h", DatasetID: "ds", Embedding: []float32{1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bs, err := encodeDocument(tt.doc)
			require.NoError(t, err)

			got, err := decodeDocument(bs)
			require.NoError(t, err)
			assert.Equal(t, tt.doc, got)
		})
	}
}

func TestDecodeRejectsBadInput(t *testing.T) {
	_, err := decodeDocument(nil)
	assert.ErrorIs(t, err, storage.ErrTruncatedData)

	_, err = decodeDocument([]byte{99})
	assert.ErrorIs(t, err, storage.ErrSerializationFailed)

	bs, err := encodeDocument(core.Document{ID: "x", Hash: "h", Embedding: []float32{1, 2, 3}})
	require.NoError(t, err)
	_, err = decodeDocument(bs[:len(bs)-5])
	assert.Error(t, err)
}

func TestEncodeRejectsUnencodableMetadata(t *testing.T) {
	_, err := encodeDocument(core.Document{ID: "x", Metadata: map[string]any{"ch": make(chan int)}})
	assert.ErrorIs(t, err, storage.ErrSerializationFailed)
}
