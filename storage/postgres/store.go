// Package postgres implements storage.VectorStore on PostgreSQL with the
// pgvector extension.
//
// Ranking uses pgvector's cosine distance operator and reports
// 1 - distance as the score. Metadata filters use JSONB containment.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/poiesic/embedbase/batch"
	"github.com/poiesic/embedbase/core"
	"github.com/poiesic/embedbase/storage"
)

// DefaultTable is the table documents are stored in.
const DefaultTable = "embedbase_documents"

// ErrDSNRequired indicates an Open call without a connection string.
var ErrDSNRequired = errors.New("postgres dsn is required")

// Store is a pgvector-backed vector store.
type Store struct {
	pool   *pgxpool.Pool
	table  string
	runner *batch.Runner
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

// WithTable overrides DefaultTable.
func WithTable(name string) Option {
	return func(s *Store) error {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("table name cannot be empty")
		}
		s.table = name
		return nil
	}
}

// Open connects to dsn and creates the extension, table and indexes when
// missing.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	if dsn == "" {
		return nil, storage.Wrap("open", ErrDSNRequired)
	}
	s := &Store{
		table:  DefaultTable,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "postgres-store", "table", s.table)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, storage.Wrap("open", fmt.Errorf("connect: %w", err))
	}
	s.pool = pool

	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, storage.Wrap("open", err)
	}

	runner, err := batch.NewRunner(batch.WithLogger(s.logger))
	if err != nil {
		pool.Close()
		return nil, storage.Wrap("open", err)
	}
	s.runner = runner
	return s, nil
}

func (s *Store) ident() string {
	return pgx.Identifier{s.table}.Sanitize()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	table := s.ident()
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
			id          TEXT PRIMARY KEY,
			dataset_id  TEXT NOT NULL,
			tenant_id   TEXT NOT NULL DEFAULT '',
			hash        TEXT NOT NULL,
			data        TEXT NOT NULL DEFAULT '',
			embedding   vector,
			metadata    JSONB,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{s.table + "_hash_idx"}.Sanitize() +
			` ON ` + table + ` (hash, dataset_id, tenant_id)`,
		`CREATE INDEX IF NOT EXISTS ` + pgx.Identifier{s.table + "_scope_idx"}.Sanitize() +
			` ON ` + table + ` (dataset_id, tenant_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.runner.Release()
	s.pool.Close()
	return nil
}

const selectColumns = "id, dataset_id, tenant_id, hash, data, embedding, metadata, created_at"

// filter accumulates WHERE conditions with numbered placeholders.
type filter struct {
	conds []string
	args  []any
}

func (f *filter) add(cond string, arg any) {
	f.args = append(f.args, arg)
	f.conds = append(f.conds, strings.ReplaceAll(cond, "$?", fmt.Sprintf("$%d", len(f.args))))
}

func (f *filter) scope(datasetID, tenantID string) {
	if datasetID != "" {
		f.add("dataset_id = $?", datasetID)
	}
	if tenantID != "" {
		f.add("tenant_id = $?", tenantID)
	}
}

func (f *filter) where() string {
	if len(f.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.conds, " AND ")
}

// Select implements storage.VectorStore.
func (s *Store) Select(ctx context.Context, q storage.SelectQuery) ([]core.Document, error) {
	docs, err := storage.SelectChunked(ctx, s.runner, q, storage.DefaultSelectBatchSize,
		func(ctx context.Context, keys []string, byHash bool) ([]core.Document, error) {
			column := "id"
			if byHash {
				column = "hash"
			}
			var f filter
			f.add(column+" = ANY($?)", keys)
			f.scope(q.DatasetID, q.TenantID)
			query := "SELECT " + selectColumns + " FROM " + s.ident() + f.where() +
				" ORDER BY " + column + ", dataset_id, tenant_id, id"

			rows, err := s.pool.Query(ctx, query, f.args...)
			if err != nil {
				return nil, err
			}
			defer rows.Close()

			var out []core.Document
			for rows.Next() {
				doc, err := scanDocument(rows)
				if err != nil {
					return nil, err
				}
				out = append(out, doc)
			}
			return out, rows.Err()
		})
	return docs, storage.Wrap("select", err)
}

func scanDocument(row pgx.Row, extra ...any) (core.Document, error) {
	var (
		doc       core.Document
		embedding *pgvector.Vector
		metadata  []byte
	)
	dest := append([]any{&doc.ID, &doc.DatasetID, &doc.TenantID, &doc.Hash, &doc.Data, &embedding, &metadata, &doc.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return core.Document{}, err
	}
	if embedding != nil {
		doc.Embedding = embedding.Slice()
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return core.Document{}, fmt.Errorf("%w: metadata: %w", storage.ErrSerializationFailed, err)
		}
	}
	doc.CreatedAt = doc.CreatedAt.UTC()
	return doc, nil
}

func embeddingParam(vec []float32) any {
	if len(vec) == 0 {
		return nil
	}
	return pgvector.NewVector(vec)
}

func metadataParam(md map[string]any) (any, error) {
	if len(md) == 0 {
		return nil, nil
	}
	bs, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %w", storage.ErrSerializationFailed, err)
	}
	return string(bs), nil
}

// Update implements storage.VectorStore. Each chunk is sent as one batch
// inside a transaction.
func (s *Store) Update(ctx context.Context, docs []core.Document, opts storage.UpdateOptions) error {
	query := `
		INSERT INTO ` + s.ident() + ` (id, dataset_id, tenant_id, hash, data, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		ON CONFLICT (id) DO UPDATE SET
			dataset_id = EXCLUDED.dataset_id,
			tenant_id = EXCLUDED.tenant_id,
			hash = EXCLUDED.hash,
			data = EXCLUDED.data,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`

	err := storage.UpdateChunked(ctx, s.runner, docs, opts, func(ctx context.Context, chunk []core.Document) error {
		b := &pgx.Batch{}
		for _, doc := range chunk {
			metadata, err := metadataParam(doc.Metadata)
			if err != nil {
				return err
			}
			b.Queue(query, doc.ID, doc.DatasetID, doc.TenantID, doc.Hash, doc.Data, embeddingParam(doc.Embedding), metadata)
		}
		return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			return tx.SendBatch(ctx, b).Close()
		})
	})
	return storage.Wrap("update", err)
}

// Delete implements storage.VectorStore.
func (s *Store) Delete(ctx context.Context, ids []string, datasetID, tenantID string) error {
	chunks := batch.Chunks(storage.UniqueStrings(ids), storage.DefaultUpdateBatchSize)
	err := batch.Each(ctx, s.runner, chunks, func(ctx context.Context, chunk []string) error {
		var f filter
		f.add("id = ANY($?)", chunk)
		f.add("dataset_id = $?", datasetID)
		f.scope("", tenantID)
		_, err := s.pool.Exec(ctx, "DELETE FROM "+s.ident()+f.where(), f.args...)
		return err
	})
	return storage.Wrap("delete", err)
}

// Search implements storage.VectorStore.
func (s *Store) Search(ctx context.Context, q storage.SearchQuery) ([]core.SearchMatch, error) {
	if err := q.Validate(); err != nil {
		return nil, storage.Wrap("search", err)
	}
	var f filter
	f.add("embedding IS NOT NULL AND dataset_id = ANY($?)", storage.UniqueStrings(q.DatasetIDs))
	f.scope("", q.TenantID)
	if len(q.Where) > 0 {
		where, err := json.Marshal(q.Where)
		if err != nil {
			return nil, storage.Wrap("search", fmt.Errorf("%w: where: %w", storage.ErrInvalidQuery, err))
		}
		f.add("metadata @> $?::jsonb", string(where))
	}
	f.args = append(f.args, pgvector.NewVector(q.Vector), q.TopK)
	vecArg, limitArg := len(f.args)-1, len(f.args)

	query := fmt.Sprintf("SELECT %s, embedding <=> $%d AS distance FROM %s%s ORDER BY distance, id LIMIT $%d",
		selectColumns, vecArg, s.ident(), f.where(), limitArg)

	rows, err := s.pool.Query(ctx, query, f.args...)
	if err != nil {
		return nil, storage.Wrap("search", err)
	}
	defer rows.Close()

	var matches []core.SearchMatch
	for rows.Next() {
		var distance float64
		doc, err := scanDocument(rows, &distance)
		if err != nil {
			return nil, storage.Wrap("search", err)
		}
		matches = append(matches, core.SearchMatch{
			ID:        doc.ID,
			Score:     float32(1 - distance),
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
	var f filter
	f.scope(datasetID, tenantID)
	tag, err := s.pool.Exec(ctx, "DELETE FROM "+s.ident()+f.where(), f.args...)
	if err != nil {
		return storage.Wrap("clear", err)
	}
	s.logger.Info("cleared dataset", "dataset", datasetID, "tenant", tenantID, "removed", tag.RowsAffected())
	return nil
}

// Datasets implements storage.VectorStore.
func (s *Store) Datasets(ctx context.Context, tenantID string) ([]core.Dataset, error) {
	var f filter
	f.scope("", tenantID)
	query := "SELECT dataset_id, COUNT(*), MIN(created_at) FROM " + s.ident() + f.where() +
		" GROUP BY dataset_id ORDER BY dataset_id"

	rows, err := s.pool.Query(ctx, query, f.args...)
	if err != nil {
		return nil, storage.Wrap("datasets", err)
	}
	defer rows.Close()

	var datasets []core.Dataset
	for rows.Next() {
		var (
			ds        core.Dataset
			count     int64
			createdAt time.Time
		)
		if err := rows.Scan(&ds.DatasetID, &count, &createdAt); err != nil {
			return nil, storage.Wrap("datasets", err)
		}
		ds.DocumentsCount = int(count)
		ds.CreatedAt = createdAt.UTC()
		datasets = append(datasets, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("datasets", err)
	}
	return datasets, nil
}
