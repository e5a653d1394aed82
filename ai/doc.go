// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ai provides the embedding abstraction used by embedbase.
//
// The pipeline and search layers depend only on the Embedder interface, so
// providers can be swapped without touching either. An Embedder declares its
// vector length (Dimensions), answers a local pre-flight size check
// (IsTooBig), and embeds batches of text preserving input order.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible embeddings endpoints (OpenAI, Ollama,
//     LocalAI, vLLM) through langchaingo, with tiktoken-based size checks
//   - ai/mock: deterministic test doubles that need no network
//
// # Retries
//
// RetryingEmbedder wraps any Embedder with capped exponential backoff
// (1s, 2s, capped at 3s, three attempts by default) and an optional
// requests-per-second throttle. Errors wrapping ErrRejected, ErrDimensionMismatch
// or a context error fail immediately. Every error it returns wraps
// ErrEmbeddingProvider.
//
//	config := ai.NewConfig(ai.WithModel("text-embedding-3-small"), ai.WithAPIKey(key))
//	embedder, err := openai.NewEmbedder(config) // already retrying
//	if err != nil {
//	    log.Fatal(err)
//	}
//	vectors, err := embedder.EmbedTexts(ctx, []string{"Hello world"})
//
// # Constructor Return Type Pattern
//
// Public provider constructors return the ai.Embedder interface. Test
// utility constructors (mock.NewMockEmbedder) return concrete types so
// tests can inject behavior and assert call counts.
package ai
