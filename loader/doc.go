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

// Package loader bulk-loads documents from files into a dataset.
//
// Files are read into items (one per file, or one per non-blank line),
// split into batches and handed to the ingestion pipeline. Because the
// pipeline skips content already present in the dataset, a failed batch
// can be retried, and an interrupted load re-run, without creating
// duplicates.
package loader
