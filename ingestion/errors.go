package ingestion

import (
	"errors"
	"fmt"
	"strings"

	"github.com/poiesic/embedbase/core"
)

var (
	// ErrStoreRequired is returned when a vector store is not provided.
	ErrStoreRequired = errors.New("vector store required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")
)

// excerptLength bounds the document text quoted in OversizedError.
const excerptLength = 40

// OversizedError reports the documents that exceed the embedder's input
// limit. Indexes refer to positions in the submitted batch.
type OversizedError struct {
	Indexes  []int
	Excerpts []string
}

func newOversizedError(indexes []int, texts []string) *OversizedError {
	e := &OversizedError{Indexes: indexes}
	for _, text := range texts {
		e.Excerpts = append(e.Excerpts, excerpt(text))
	}
	return e
}

func excerpt(text string) string {
	runes := []rune(text)
	if len(runes) <= excerptLength {
		return text
	}
	return string(runes[:excerptLength]) + "..."
}

func (e *OversizedError) Error() string {
	parts := make([]string, len(e.Indexes))
	for i, idx := range e.Indexes {
		parts[i] = fmt.Sprintf("#%d %q", idx, e.Excerpts[i])
	}
	return fmt.Sprintf("%d document(s) too big to embed: %s", len(e.Indexes), strings.Join(parts, ", "))
}

// Unwrap makes OversizedError match core.ErrValidation.
func (e *OversizedError) Unwrap() error {
	return core.ErrValidation
}
