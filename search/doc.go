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

// Package search answers nearest-neighbor queries over a dataset.
//
// The Searcher embeds the query text with the configured embedder and asks
// the vector store for the closest documents, optionally restricted to a
// tenant and filtered by metadata equality. Result counts are capped by a
// configurable ceiling; see DefaultMaxTopK.
package search
