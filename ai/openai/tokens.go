package openai

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const fallbackEncoding = "cl100k_base"

// tokenCounter counts tokens with the model's tiktoken encoding.
// The encoding is resolved on first use because loading it may download
// the BPE ranks.
type tokenCounter struct {
	model  string
	once   sync.Once
	enc    *tiktoken.Tiktoken
	logger *slog.Logger
}

func newTokenCounter(model string, logger *slog.Logger) *tokenCounter {
	return &tokenCounter{model: model, logger: logger}
}

func (tc *tokenCounter) load() {
	enc, err := tiktoken.EncodingForModel(tc.model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
	}
	if err != nil {
		tc.logger.Warn("tiktoken encoding unavailable, estimating token counts", "model", tc.model, "err", err)
		return
	}
	tc.enc = enc
}

// count returns the number of tokens in text, or an estimate of four
// bytes per token when no encoding could be loaded.
func (tc *tokenCounter) count(text string) int {
	tc.once.Do(tc.load)
	if tc.enc == nil {
		return estimateTokens(text)
	}
	return len(tc.enc.Encode(text, nil, nil))
}

func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
