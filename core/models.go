package core

import "time"

// Document is a unit of content stored in a dataset.
// Hash is derived from Data and doubles as the dedup key within a
// (DatasetID, TenantID) scope. An empty TenantID is the global scope.
type Document struct {
	ID        string
	Data      string
	Hash      string
	Embedding []float32
	Metadata  map[string]any
	DatasetID string
	TenantID  string
	CreatedAt time.Time // Set by the store on first write
}

// Dataset summarizes a named collection of documents.
// DocumentsCount and CreatedAt are computed by the store.
type Dataset struct {
	DatasetID      string
	DocumentsCount int
	CreatedAt      time.Time // Earliest document creation time, zero if unknown
}

// SearchMatch is a nearest-neighbor hit. Higher scores are more similar.
type SearchMatch struct {
	ID        string
	Score     float32
	Data      string
	Hash      string
	Embedding []float32
	Metadata  map[string]any
}
