package ai

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapProviderError(t *testing.T) {
	assert.Nil(t, WrapProviderError(nil))

	base := errors.New("connection reset")
	wrapped := WrapProviderError(base)
	assert.ErrorIs(t, wrapped, ErrEmbeddingProvider)
	assert.ErrorIs(t, wrapped, base)

	assert.Equal(t, wrapped, WrapProviderError(wrapped))
}
