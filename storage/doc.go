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

// Package storage defines the vector store abstraction used by embedbase.
//
// A VectorStore persists documents together with their embeddings, content
// hashes and metadata, scoped by dataset and tenant. Backends live in
// subpackages:
//
//   - badger: embedded key-value store, the default
//   - sqlite: single-file relational store
//   - postgres: PostgreSQL with the pgvector extension
//   - memory: map-backed store for tests and throwaway runs
//
// # Scoping
//
// Every document belongs to exactly one (dataset, tenant) pair. An empty
// tenant id is the global scope. On reads, an empty dataset or tenant id
// means "no filter on that field".
//
// # Batching
//
// Select chunks id and hash lists into groups of DefaultSelectBatchSize and
// Update writes in groups of UpdateOptions.BatchSize. Chunks run
// concurrently on a batch.Runner; see SelectChunked and UpdateChunked.
//
// # Thread Safety
//
// All VectorStore implementations must be safe for concurrent use.
//
// # Errors
//
// Every error a store returns wraps ErrStore so callers can map store
// failures independently of the backend in use.
package storage
