package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// RetryingEmbedder decorates an Embedder with throttling, retries and
// error classification. Every failure it returns wraps ErrEmbeddingProvider.
type RetryingEmbedder struct {
	inner       Embedder
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger
}

var _ Embedder = (*RetryingEmbedder)(nil)

// NewRetryingEmbedder wraps inner using the retry and rate settings of config.
// A nil config uses DefaultConfig.
func NewRetryingEmbedder(inner Embedder, config *Config) (*RetryingEmbedder, error) {
	if inner == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	r := &RetryingEmbedder{
		inner:       inner,
		maxAttempts: config.MaxAttempts,
		baseDelay:   config.BaseDelay,
		maxDelay:    config.MaxDelay,
		logger:      slog.Default().With("component", "retrying-embedder"),
	}
	if config.RequestsPerSecond > 0 {
		burst := max(int(config.RequestsPerSecond), 1)
		r.limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}
	return r, nil
}

// Dimensions returns the vector length of the wrapped embedder.
func (r *RetryingEmbedder) Dimensions() int {
	return r.inner.Dimensions()
}

// IsTooBig delegates to the wrapped embedder.
func (r *RetryingEmbedder) IsTooBig(text string) bool {
	return r.inner.IsTooBig(text)
}

// EmbedText embeds a single text.
func (r *RetryingEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := r.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts embeds texts, retrying transient failures.
func (r *RetryingEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var vectors [][]float32
	err := RetryWithBackoff(ctx, func() error {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		out, err := r.inner.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		if len(out) != len(texts) {
			return fmt.Errorf("%w: got %d vectors for %d texts", ErrDimensionMismatch, len(out), len(texts))
		}
		vectors = out
		return nil
	}, r.maxAttempts, r.baseDelay, r.maxDelay)

	if err != nil {
		r.logger.Error("embedding request failed", "count", len(texts), "err", err)
		return nil, WrapProviderError(err)
	}
	return vectors, nil
}
