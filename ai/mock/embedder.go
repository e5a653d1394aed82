package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"

	"github.com/poiesic/embedbase/ai"
)

// DefaultDimensions is the vector length used when none is configured.
const DefaultDimensions = 384

// MockEmbedder is a test double for ai.Embedder.
// It allows custom behavior injection via function fields.
type MockEmbedder struct {
	// EmbedTextFunc is called by EmbedText if set.
	// If nil, uses default deterministic behavior.
	EmbedTextFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedTextsFunc is called by EmbedTexts if set.
	// If nil, uses default deterministic behavior.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	// IsTooBigFunc is called by IsTooBig if set.
	// If nil, texts with more than maxWords words are too big.
	IsTooBigFunc func(text string) bool

	dimensions int
	maxWords   int

	callCount atomic.Int64
	textCount atomic.Int64
}

var _ ai.Embedder = (*MockEmbedder)(nil)

// Option configures a MockEmbedder.
type Option func(*MockEmbedder)

// WithDimensions sets the vector length.
func WithDimensions(dims int) Option {
	return func(m *MockEmbedder) {
		if dims > 0 {
			m.dimensions = dims
		}
	}
}

// WithMaxWords sets the word limit enforced by IsTooBig. Zero means no limit.
func WithMaxWords(words int) Option {
	return func(m *MockEmbedder) {
		m.maxWords = words
	}
}

// NewMockEmbedder creates a mock embedder with default deterministic behavior.
// Note: Returns concrete type to allow test assertions.
func NewMockEmbedder(opts ...Option) *MockEmbedder {
	m := &MockEmbedder{dimensions: DefaultDimensions}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Dimensions returns the configured vector length.
func (m *MockEmbedder) Dimensions() int {
	return m.dimensions
}

// IsTooBig reports whether text exceeds the configured word limit.
func (m *MockEmbedder) IsTooBig(text string) bool {
	if m.IsTooBigFunc != nil {
		return m.IsTooBigFunc(text)
	}
	return m.maxWords > 0 && len(strings.Fields(text)) > m.maxWords
}

// EmbedText generates a deterministic embedding based on text hash.
func (m *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.callCount.Add(1)
	m.textCount.Add(1)

	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text)
	}

	return generateDeterministicVector(text, m.dimensions), nil
}

// EmbedTexts generates deterministic embeddings for multiple texts.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.callCount.Add(1)
	m.textCount.Add(int64(len(texts)))

	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = generateDeterministicVector(text, m.dimensions)
	}
	return embeddings, nil
}

// CallCount returns the number of times any embedding method was called.
func (m *MockEmbedder) CallCount() int {
	return int(m.callCount.Load())
}

// TextCount returns the total number of texts embedded.
func (m *MockEmbedder) TextCount() int {
	return int(m.textCount.Load())
}

// Reset clears the counters and injected behavior.
func (m *MockEmbedder) Reset() {
	m.callCount.Store(0)
	m.textCount.Store(0)
	m.EmbedTextFunc = nil
	m.EmbedTextsFunc = nil
	m.IsTooBigFunc = nil
}

// generateDeterministicVector creates a deterministic unit vector from text.
// It uses an FNV hash to ensure the same text always produces the same vector.
func generateDeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000)/1000.0 - 0.5
	}

	var sumSquares float64
	for _, v := range vector {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares > 0 {
		norm := float32(1.0 / math.Sqrt(sumSquares))
		for i := range vector {
			vector[i] *= norm
		}
	}
	return vector
}
