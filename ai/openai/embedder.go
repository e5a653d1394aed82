package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/embedbase/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
// It makes a single attempt per call; NewEmbedder wraps it with retries.
type Embedder struct {
	embedder   embeddings.Embedder
	model      string
	dimensions int
	maxTokens  int
	tokens     *tokenCounter
	logger     *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// newEmbedder is an internal constructor that returns the concrete type.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	dims, maxTokens, ok := resolveModel(config.Model, config.Dimensions, config.MaxTokens)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDimensions, config.Model)
	}

	// Local OpenAI-compatible services accept any token
	token := config.APIKey
	if token == "" {
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(config.Host),
		openai.WithToken(token),
		openai.WithEmbeddingModel(config.Model),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(config.BatchSize),
	)
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("component", "openai-embedder", "model", config.Model)
	return &Embedder{
		embedder:   embedder,
		model:      config.Model,
		dimensions: dims,
		maxTokens:  maxTokens,
		tokens:     newTokenCounter(config.Model, logger),
		logger:     logger,
	}, nil
}

// NewEmbedder creates an embedder using the provided configuration, wrapped
// with the retry and throttling policy from the same configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	e, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}
	return ai.NewRetryingEmbedder(e, config)
}

// Dimensions returns the vector length of the configured model.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// IsTooBig reports whether text exceeds the model's token limit.
func (e *Embedder) IsTooBig(text string) bool {
	// Byte-level BPE never yields more tokens than bytes
	if len(text) <= e.maxTokens {
		return false
	}
	return e.tokens.count(text) > e.maxTokens
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("generating embedding for single text", "length", len(text))

	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Warn("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, classify(err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ai.ErrDimensionMismatch, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != e.dimensions {
			return nil, fmt.Errorf("%w: vector %d has length %d, want %d", ai.ErrDimensionMismatch, i, len(v), e.dimensions)
		}
	}
	return vectors, nil
}
