package openai

// modelInfo describes the output size and input limit of a known model.
type modelInfo struct {
	dimensions int
	maxTokens  int
}

// defaultMaxTokens applies to models missing from knownModels.
const defaultMaxTokens = 8191

var knownModels = map[string]modelInfo{
	"text-embedding-3-small": {dimensions: 1536, maxTokens: 8191},
	"text-embedding-3-large": {dimensions: 3072, maxTokens: 8191},
	"text-embedding-ada-002": {dimensions: 1536, maxTokens: 8191},
	"nomic-embed-text":       {dimensions: 768, maxTokens: 8192},
	"embeddinggemma":         {dimensions: 768, maxTokens: 2048},
	"mxbai-embed-large":      {dimensions: 1024, maxTokens: 512},
	"all-minilm":             {dimensions: 384, maxTokens: 256},
}

// resolveModel returns the dimensions and token limit for model, letting
// non-zero overrides win. ok is false when the dimensions are unknown.
func resolveModel(model string, dimensions, maxTokens int) (dims, tokens int, ok bool) {
	info, known := knownModels[model]
	dims = dimensions
	if dims == 0 {
		dims = info.dimensions
	}
	tokens = maxTokens
	if tokens == 0 {
		tokens = info.maxTokens
	}
	if tokens == 0 {
		tokens = defaultMaxTokens
	}
	return dims, tokens, known || dimensions > 0
}
