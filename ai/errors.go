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

package ai

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbeddingProvider marks failures of the embedding provider, either
	// after retries were exhausted or on a permanent rejection.
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrRejected marks a definitive rejection by the provider (malformed or
	// oversized input, bad credentials). Rejections are never retried.
	ErrRejected = errors.New("request rejected by provider")

	// ErrDimensionMismatch indicates the provider returned vectors of an
	// unexpected length or count.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrEmbedderRequired is returned when a nil embedder is wrapped.
	ErrEmbedderRequired = errors.New("embedder required")
)

// WrapProviderError marks err as an embedding provider failure unless it
// already is one.
func WrapProviderError(err error) error {
	if err == nil || errors.Is(err, ErrEmbeddingProvider) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrEmbeddingProvider, err)
}
