package mock

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	m := NewMockEmbedder(WithDimensions(16))
	ctx := context.Background()

	a, err := m.EmbedText(ctx, "The lion is a large cat")
	require.NoError(t, err)
	b, err := m.EmbedText(ctx, "The lion is a large cat")
	require.NoError(t, err)
	c, err := m.EmbedText(ctx, "The lion is a carnivore")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestMockEmbedder_UnitVectors(t *testing.T) {
	m := NewMockEmbedder()
	vectors, err := m.EmbedTexts(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	for _, v := range vectors {
		assert.Len(t, v, DefaultDimensions)
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-4)
	}
}

func TestMockEmbedder_Counts(t *testing.T) {
	m := NewMockEmbedder()
	ctx := context.Background()

	_, _ = m.EmbedTexts(ctx, []string{"a", "b"})
	_, _ = m.EmbedText(ctx, "c")

	assert.Equal(t, 2, m.CallCount())
	assert.Equal(t, 3, m.TextCount())

	m.Reset()
	assert.Equal(t, 0, m.CallCount())
	assert.Equal(t, 0, m.TextCount())
}

func TestMockEmbedder_IsTooBig(t *testing.T) {
	m := NewMockEmbedder(WithMaxWords(3))
	assert.False(t, m.IsTooBig("one two three"))
	assert.True(t, m.IsTooBig("one two three four"))

	unlimited := NewMockEmbedder()
	assert.False(t, unlimited.IsTooBig("as many words as anyone would like to send"))

	m.IsTooBigFunc = func(string) bool { return true }
	assert.True(t, m.IsTooBig(""))
}

func TestMockEmbedder_FuncOverrides(t *testing.T) {
	m := NewMockEmbedder()
	boom := errors.New("provider down")
	m.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, boom
	}

	_, err := m.EmbedTexts(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, m.CallCount())
}
