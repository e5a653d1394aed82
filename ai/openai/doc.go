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

// Package openai implements ai.Embedder for OpenAI-compatible embedding APIs.
//
// Requests go through the langchaingo OpenAI client, so any server exposing
// /v1/embeddings works (OpenAI, Ollama, LocalAI, vLLM). Input size checks
// count tokens locally with tiktoken; the encoding is loaded lazily on the
// first check and falls back to a byte-length estimate when unavailable.
//
// # Usage
//
//	config := ai.NewConfig(
//	    ai.WithHost("http://localhost:11434"), // /v1 added automatically
//	    ai.WithModel("nomic-embed-text"),
//	)
//
//	embedder, err := openai.NewEmbedder(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if embedder.IsTooBig(text) {
//	    // reject before calling the provider
//	}
//	vector, err := embedder.EmbedText(ctx, text)
package openai
