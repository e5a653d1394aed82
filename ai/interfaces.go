package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// Dimensions returns the fixed length of every vector this embedder produces.
	Dimensions() int

	// IsTooBig reports whether text exceeds the provider's maximum input size
	// under the provider's tokenization. It is local, cheap, and never fails.
	IsTooBig(text string) bool

	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts,
	// each of length Dimensions().
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
