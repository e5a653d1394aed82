// Package ingestion adds documents to a dataset.
//
// Pipeline.Add validates a batch, hashes every document, reuses stored
// embeddings for content already seen in any dataset, embeds the rest in
// a single provider call, skips content already present in the target
// (dataset, tenant) scope and writes what remains.
//
// The whole batch is rejected when any document is too large for the
// embedder. Duplicates are not errors: every submitted document is
// reported back, in submission order, whether or not it was written.
package ingestion
