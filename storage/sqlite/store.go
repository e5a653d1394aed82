package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/poiesic/embedbase/batch"
	"github.com/poiesic/embedbase/core"
	"github.com/poiesic/embedbase/storage"
	"github.com/poiesic/embedbase/storage/sqlite/migrations"
)

const documentColumns = "id, dataset_id, tenant_id, hash, data, embedding, metadata, created_at"

// Store is a SQLite-backed vector store.
type Store struct {
	db     *sql.DB
	path   string
	runner *batch.Runner
	now    func() time.Time
	logger *slog.Logger
}

var _ storage.VectorStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithClock overrides the creation-time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) error {
		if now != nil {
			s.now = now
		}
		return nil
	}
}

// Open opens (creating if needed) the database file at path and applies
// pending migrations.
func Open(path string, opts ...Option) (*Store, error) {
	if err := registerFunctions(); err != nil {
		return nil, storage.Wrap("open", fmt.Errorf("registering functions: %w", err))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, storage.Wrap("open", fmt.Errorf("creating data directory: %w", err))
	}

	// WAL plus immediate transactions lets concurrent chunk writers queue
	// on the busy timeout instead of failing
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate")
	if err != nil {
		return nil, storage.Wrap("open", fmt.Errorf("opening database: %w", err))
	}

	s := &Store{
		db:     db,
		path:   path,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			db.Close()
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "sqlite-store", "path", path)

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, storage.Wrap("open", fmt.Errorf("running migrations: %w", err))
	}

	runner, err := batch.NewRunner(batch.WithLogger(s.logger))
	if err != nil {
		db.Close()
		return nil, storage.Wrap("open", err)
	}
	s.runner = runner
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.runner.Release()
	return s.db.Close()
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_documents.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		s.logger.Debug("applied migration", "name", name)
	}

	return nil
}

// scopeClause appends dataset and tenant conditions for non-empty filters.
func scopeClause(where []string, args []any, datasetID, tenantID string) ([]string, []any) {
	if datasetID != "" {
		where = append(where, "dataset_id = ?")
		args = append(args, datasetID)
	}
	if tenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, tenantID)
	}
	return where, args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func appendStrings(args []any, values []string) []any {
	for _, v := range values {
		args = append(args, v)
	}
	return args
}

// Select implements storage.VectorStore.
func (s *Store) Select(ctx context.Context, q storage.SelectQuery) ([]core.Document, error) {
	docs, err := storage.SelectChunked(ctx, s.runner, q, storage.DefaultSelectBatchSize,
		func(ctx context.Context, keys []string, byHash bool) ([]core.Document, error) {
			column := "id"
			if byHash {
				column = "hash"
			}
			where := []string{column + " IN (" + placeholders(len(keys)) + ")"}
			args := appendStrings(nil, keys)
			where, args = scopeClause(where, args, q.DatasetID, q.TenantID)

			query := "SELECT " + documentColumns + " FROM documents WHERE " +
				strings.Join(where, " AND ") + " ORDER BY " + column + ", dataset_id, tenant_id, id"
			return s.queryDocuments(ctx, query, args...)
		})
	return docs, storage.Wrap("select", err)
}

func (s *Store) queryDocuments(ctx context.Context, query string, args ...any) ([]core.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []core.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner, extra ...any) (core.Document, error) {
	var (
		doc       core.Document
		embedding []byte
		metadata  sql.NullString
		createdAt int64
	)
	dest := append([]any{&doc.ID, &doc.DatasetID, &doc.TenantID, &doc.Hash, &doc.Data, &embedding, &metadata, &createdAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return core.Document{}, err
	}
	vec, err := decodeEmbedding(embedding)
	if err != nil {
		return core.Document{}, err
	}
	doc.Embedding = vec
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &doc.Metadata); err != nil {
			return core.Document{}, fmt.Errorf("%w: metadata: %w", storage.ErrSerializationFailed, err)
		}
	}
	if createdAt != 0 {
		doc.CreatedAt = time.UnixMicro(createdAt).UTC()
	}
	return doc, nil
}

// Update implements storage.VectorStore. Each chunk is one transaction.
func (s *Store) Update(ctx context.Context, docs []core.Document, opts storage.UpdateOptions) error {
	err := storage.UpdateChunked(ctx, s.runner, docs, opts, func(ctx context.Context, chunk []core.Document) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO documents (`+documentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				dataset_id = excluded.dataset_id,
				tenant_id = excluded.tenant_id,
				hash = excluded.hash,
				data = excluded.data,
				embedding = excluded.embedding,
				metadata = excluded.metadata
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := s.now().UnixMicro()
		for _, doc := range chunk {
			metadata, err := encodeMetadata(doc.Metadata)
			if err != nil {
				return err
			}
			_, err = stmt.ExecContext(ctx, doc.ID, doc.DatasetID, doc.TenantID, doc.Hash, doc.Data,
				encodeEmbedding(doc.Embedding), metadata, now)
			if err != nil {
				return fmt.Errorf("upserting %s: %w", doc.ID, err)
			}
		}
		return tx.Commit()
	})
	return storage.Wrap("update", err)
}

// Delete implements storage.VectorStore.
func (s *Store) Delete(ctx context.Context, ids []string, datasetID, tenantID string) error {
	chunks := batch.Chunks(storage.UniqueStrings(ids), storage.DefaultUpdateBatchSize)
	err := batch.Each(ctx, s.runner, chunks, func(ctx context.Context, chunk []string) error {
		where := []string{"id IN (" + placeholders(len(chunk)) + ")", "dataset_id = ?"}
		args := append(appendStrings(nil, chunk), datasetID)
		where, args = scopeClause(where, args, "", tenantID)
		_, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE "+strings.Join(where, " AND "), args...)
		return err
	})
	return storage.Wrap("delete", err)
}

// Search implements storage.VectorStore.
func (s *Store) Search(ctx context.Context, q storage.SearchQuery) ([]core.SearchMatch, error) {
	if err := q.Validate(); err != nil {
		return nil, storage.Wrap("search", err)
	}
	datasets := storage.UniqueStrings(q.DatasetIDs)
	where := []string{"embedding IS NOT NULL", "dataset_id IN (" + placeholders(len(datasets)) + ")"}
	args := []any{encodeEmbedding(q.Vector)}
	args = appendStrings(args, datasets)
	where, args = scopeClause(where, args, "", q.TenantID)

	query := "SELECT " + documentColumns + ", " + cosineFunction + "(embedding, ?) AS score FROM documents WHERE " +
		strings.Join(where, " AND ") + " ORDER BY score DESC, id"
	if len(q.Where) == 0 {
		query += fmt.Sprintf(" LIMIT %d", q.TopK)
	}

	// The vector placeholder comes first in the statement text.
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Wrap("search", err)
	}
	defer rows.Close()

	var matches []core.SearchMatch
	for rows.Next() && len(matches) < q.TopK {
		var score float64
		doc, err := scanDocument(rows, &score)
		if err != nil {
			return nil, storage.Wrap("search", err)
		}
		if !storage.MatchesWhere(doc.Metadata, q.Where) {
			continue
		}
		matches = append(matches, core.SearchMatch{
			ID:        doc.ID,
			Score:     float32(score),
			Data:      doc.Data,
			Hash:      doc.Hash,
			Embedding: doc.Embedding,
			Metadata:  doc.Metadata,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("search", err)
	}
	return matches, nil
}

// Clear implements storage.VectorStore.
func (s *Store) Clear(ctx context.Context, datasetID, tenantID string) error {
	if datasetID == "" {
		return storage.Wrap("clear", core.ErrEmptyDatasetID)
	}
	where, args := scopeClause(nil, nil, datasetID, tenantID)
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE "+strings.Join(where, " AND "), args...)
	if err != nil {
		return storage.Wrap("clear", err)
	}
	removed, _ := res.RowsAffected()
	s.logger.Info("cleared dataset", "dataset", datasetID, "tenant", tenantID, "removed", removed)
	return nil
}

// Datasets implements storage.VectorStore.
func (s *Store) Datasets(ctx context.Context, tenantID string) ([]core.Dataset, error) {
	query := "SELECT dataset_id, COUNT(*), MIN(created_at) FROM documents"
	var args []any
	if tenantID != "" {
		query += " WHERE tenant_id = ?"
		args = append(args, tenantID)
	}
	query += " GROUP BY dataset_id ORDER BY dataset_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.Wrap("datasets", err)
	}
	defer rows.Close()

	var datasets []core.Dataset
	for rows.Next() {
		var (
			ds        core.Dataset
			createdAt int64
		)
		if err := rows.Scan(&ds.DatasetID, &ds.DocumentsCount, &createdAt); err != nil {
			return nil, storage.Wrap("datasets", err)
		}
		if createdAt != 0 {
			ds.CreatedAt = time.UnixMicro(createdAt).UTC()
		}
		datasets = append(datasets, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("datasets", err)
	}
	return datasets, nil
}

func encodeMetadata(md map[string]any) (any, error) {
	if len(md) == 0 {
		return nil, nil
	}
	bs, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %w", storage.ErrSerializationFailed, err)
	}
	return string(bs), nil
}
