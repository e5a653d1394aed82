// Package sqlite implements storage.VectorStore on a single SQLite file
// using the pure-Go modernc.org/sqlite driver.
//
// Embeddings are stored as little-endian float32 BLOBs and metadata as
// JSON text. Search ranks rows with a cosine similarity SQL function
// registered with the driver; metadata filters are applied while the
// ranked rows stream back.
//
// The schema is managed through versioned migrations embedded from the
// migrations directory.
package sqlite
