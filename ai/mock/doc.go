// Package mock provides test double implementations of ai.Embedder.
//
// MockEmbedder produces deterministic unit vectors seeded from an FNV hash
// of each text, so identical texts always embed identically and no network
// is needed. It is safe for concurrent use.
//
// # Usage in Tests
//
//	// Default deterministic behavior, 384 dimensions
//	embedder := mock.NewMockEmbedder()
//
//	// Size limit and custom behavior
//	embedder := mock.NewMockEmbedder(mock.WithDimensions(8), mock.WithMaxWords(100))
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("provider down")
//	}
//
//	// Assertions
//	calls := embedder.CallCount()
//	texts := embedder.TextCount()
package mock
