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

// Package server exposes the ingestion pipeline and searcher over HTTP.
//
// Routes:
//
//	POST   /v1/:datasetId          add documents
//	DELETE /v1/:datasetId          delete documents by id
//	POST   /v1/:datasetId/search   semantic search
//	GET    /v1/:datasetId/clear    remove every document in the dataset
//	GET    /v1/datasets            list datasets
//	GET    /health                 liveness
//	GET    /metrics                Prometheus metrics, when configured
//
// Request and response bodies are JSON with camelCase keys. Failures are
// reported as {"error": "..."} with status 400 for validation problems and
// 500 for everything else.
//
// Tenant identity is not authenticated here. Middleware installed ahead of
// the routes records it with SetTenantID; HeaderTenant is a ready-made
// middleware that reads it from a request header.
package server
