package badger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/embedbase/core"
	"github.com/poiesic/embedbase/storage"
)

const recordVersion byte = 1

// record is the on-disk form of a document. Metadata is kept as JSON
// because its values are untyped.
type record struct {
	ID        string
	DatasetID string
	TenantID  string
	Hash      string
	Data      string
	Metadata  string
	CreatedAt int64 // Unix microseconds, 0 when unset
	Embedding []float32
}

func toRecord(doc core.Document) (record, error) {
	r := record{
		ID:        doc.ID,
		DatasetID: doc.DatasetID,
		TenantID:  doc.TenantID,
		Hash:      doc.Hash,
		Data:      doc.Data,
		Embedding: doc.Embedding,
	}
	if !doc.CreatedAt.IsZero() {
		r.CreatedAt = doc.CreatedAt.UnixMicro()
	}
	if len(doc.Metadata) > 0 {
		md, err := json.Marshal(doc.Metadata)
		if err != nil {
			return record{}, fmt.Errorf("%w: metadata: %w", storage.ErrSerializationFailed, err)
		}
		r.Metadata = string(md)
	}
	return r, nil
}

func (r record) document() (core.Document, error) {
	doc := core.Document{
		ID:        r.ID,
		DatasetID: r.DatasetID,
		TenantID:  r.TenantID,
		Hash:      r.Hash,
		Data:      r.Data,
		Embedding: r.Embedding,
	}
	if r.CreatedAt != 0 {
		doc.CreatedAt = time.UnixMicro(r.CreatedAt).UTC()
	}
	if r.Metadata != "" {
		if err := json.Unmarshal([]byte(r.Metadata), &doc.Metadata); err != nil {
			return core.Document{}, fmt.Errorf("%w: metadata: %w", storage.ErrSerializationFailed, err)
		}
	}
	return doc, nil
}

func (r record) strings() []string {
	return []string{r.ID, r.DatasetID, r.TenantID, r.Hash, r.Data, r.Metadata}
}

func sizeRecord(r record) int {
	size := 1
	for _, s := range r.strings() {
		size += ord.String.Size(s)
	}
	size += varint.Int64.Size(r.CreatedAt)
	size += varint.Int.Size(len(r.Embedding))
	for _, f := range r.Embedding {
		size += raw.Float32.Size(f)
	}
	return size
}

func marshalRecord(r record) []byte {
	bs := make([]byte, sizeRecord(r))
	bs[0] = recordVersion
	n := 1
	for _, s := range r.strings() {
		n += ord.String.Marshal(s, bs[n:])
	}
	n += varint.Int64.Marshal(r.CreatedAt, bs[n:])
	n += varint.Int.Marshal(len(r.Embedding), bs[n:])
	for _, f := range r.Embedding {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return bs[:n]
}

func unmarshalRecord(bs []byte) (record, error) {
	var r record
	if len(bs) == 0 {
		return r, storage.ErrTruncatedData
	}
	if bs[0] != recordVersion {
		return r, fmt.Errorf("%w: unknown record version %d", storage.ErrSerializationFailed, bs[0])
	}
	n := 1

	fields := []*string{&r.ID, &r.DatasetID, &r.TenantID, &r.Hash, &r.Data, &r.Metadata}
	for _, field := range fields {
		s, m, err := ord.String.Unmarshal(bs[n:])
		if err != nil {
			return r, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
		}
		*field = s
		n += m
	}

	createdAt, m, err := varint.Int64.Unmarshal(bs[n:])
	if err != nil {
		return r, fmt.Errorf("%w: created at: %w", storage.ErrSerializationFailed, err)
	}
	r.CreatedAt = createdAt
	n += m

	count, m, err := varint.Int.Unmarshal(bs[n:])
	if err != nil {
		return r, fmt.Errorf("%w: embedding length: %w", storage.ErrSerializationFailed, err)
	}
	n += m
	if count < 0 || count > (len(bs)-n)/4 {
		return r, fmt.Errorf("%w: embedding length %d", storage.ErrTruncatedData, count)
	}
	if count > 0 {
		r.Embedding = make([]float32, count)
		for i := range r.Embedding {
			f, m, err := raw.Float32.Unmarshal(bs[n:])
			if err != nil {
				return r, fmt.Errorf("%w: embedding: %w", storage.ErrSerializationFailed, err)
			}
			r.Embedding[i] = f
			n += m
		}
	}
	return r, nil
}

// encodeDocument serializes doc for storage.
func encodeDocument(doc core.Document) ([]byte, error) {
	r, err := toRecord(doc)
	if err != nil {
		return nil, err
	}
	return marshalRecord(r), nil
}

// decodeDocument deserializes a stored value.
func decodeDocument(bs []byte) (core.Document, error) {
	r, err := unmarshalRecord(bs)
	if err != nil {
		return core.Document{}, err
	}
	return r.document()
}
