package storage

import (
	"cmp"
	"encoding/json"
	"math"
	"reflect"
	"slices"
	"time"

	"github.com/poiesic/embedbase/core"
)

// CosineSimilarity returns the cosine of the angle between a and b.
// Vectors of different length are compared over their common prefix.
// A zero vector has similarity 0 with everything.
func CosineSimilarity(a, b []float32) float32 {
	n := min(len(a), len(b))
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// ScoreDocument converts doc to a search match scored against vector.
func ScoreDocument(doc core.Document, vector []float32) core.SearchMatch {
	return core.SearchMatch{
		ID:        doc.ID,
		Score:     CosineSimilarity(vector, doc.Embedding),
		Data:      doc.Data,
		Hash:      doc.Hash,
		Embedding: doc.Embedding,
		Metadata:  doc.Metadata,
	}
}

// MatchesSearch reports whether doc passes q's dataset, tenant and
// metadata filters. Documents without an embedding never match.
func MatchesSearch(doc core.Document, q SearchQuery) bool {
	if len(doc.Embedding) == 0 {
		return false
	}
	if !slices.Contains(q.DatasetIDs, doc.DatasetID) {
		return false
	}
	if q.TenantID != "" && doc.TenantID != q.TenantID {
		return false
	}
	return MatchesWhere(doc.Metadata, q.Where)
}

// MatchesWhere reports whether metadata carries every key of where with an
// equal value. Numbers compare by value regardless of their Go type.
func MatchesWhere(metadata, where map[string]any) bool {
	for k, want := range where {
		got, ok := metadata[k]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if x, ok := toFloat(a); ok {
		y, ok := toFloat(b)
		return ok && x == y
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// RankMatches sorts matches by descending score, breaking ties by id, and
// keeps at most topK of them.
func RankMatches(matches []core.SearchMatch, topK int) []core.SearchMatch {
	slices.SortFunc(matches, func(a, b core.SearchMatch) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// SummarizeDatasets groups docs by dataset id, ordered by id.
func SummarizeDatasets(docs []core.Document) []core.Dataset {
	byID := make(map[string]*core.Dataset)
	for _, doc := range docs {
		ds, ok := byID[doc.DatasetID]
		if !ok {
			ds = &core.Dataset{DatasetID: doc.DatasetID}
			byID[doc.DatasetID] = ds
		}
		ds.DocumentsCount++
		ds.CreatedAt = earliest(ds.CreatedAt, doc.CreatedAt)
	}
	out := make([]core.Dataset, 0, len(byID))
	for _, ds := range byID {
		out = append(out, *ds)
	}
	slices.SortFunc(out, func(a, b core.Dataset) int {
		return cmp.Compare(a.DatasetID, b.DatasetID)
	})
	return out
}

func earliest(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case b.Before(a):
		return b
	}
	return a
}
