package badger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/embedbase/batch"
	"github.com/poiesic/embedbase/core"
	"github.com/poiesic/embedbase/storage"
)

// Store is a storage.VectorStore on BadgerDB. Search is an exact scan
// over the requested datasets.
type Store struct {
	backend     *Backend
	ownsBackend bool
	runner      *batch.Runner
	ownsRunner  bool
	now         func() time.Time
	logger      *slog.Logger
}

var _ storage.VectorStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithRunner shares a chunk runner. The store does not release it.
func WithRunner(runner *batch.Runner) Option {
	return func(s *Store) error {
		s.runner = runner
		s.ownsRunner = false
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

// NewStore creates a store on an open backend. The caller keeps
// ownership of the backend.
func NewStore(backend *Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	s := &Store{
		backend: backend,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.runner == nil {
		runner, err := batch.NewRunner(batch.WithLogger(s.logger))
		if err != nil {
			return nil, err
		}
		s.runner = runner
		s.ownsRunner = true
	}
	s.logger = s.logger.With("component", "badger-store")
	return s, nil
}

// Open opens (creating if needed) an on-disk store at path.
func Open(path string, opts ...Option) (*Store, error) {
	return open(path, false, opts...)
}

func open(path string, inMemory bool, opts ...Option) (*Store, error) {
	probe := &Store{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(probe); err != nil {
			return nil, err
		}
	}
	backend, err := OpenBackend(path, inMemory, probe.logger)
	if err != nil {
		return nil, storage.Wrap("open", err)
	}
	s, err := NewStore(backend, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	s.ownsBackend = true
	return s, nil
}

func (s *Store) checkOpen() error {
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return nil
}

// Select implements storage.VectorStore.
func (s *Store) Select(ctx context.Context, q storage.SelectQuery) ([]core.Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, storage.Wrap("select", err)
	}
	docs, err := storage.SelectChunked(ctx, s.runner, q, storage.DefaultSelectBatchSize,
		func(ctx context.Context, keys []string, byHash bool) ([]core.Document, error) {
			if byHash {
				return s.selectByHash(keys, q.DatasetID, q.TenantID)
			}
			return s.selectByID(keys, q.DatasetID, q.TenantID)
		})
	return docs, storage.Wrap("select", err)
}

func (s *Store) selectByID(ids []string, datasetID, tenantID string) ([]core.Document, error) {
	var out []core.Document
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			doc, found, err := getByID(tx, id)
			if err != nil {
				return err
			}
			if found && storage.InScope(doc, datasetID, tenantID) {
				out = append(out, doc)
			}
		}
		return nil
	}, false)
	return out, err
}

func (s *Store) selectByHash(hashes []string, datasetID, tenantID string) ([]core.Document, error) {
	var out []core.Document
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		for _, hash := range hashes {
			var docKeys [][]byte
			err := scanTx(tx, makeHashScanPrefix(hash, datasetID, tenantID), func(key, value []byte) error {
				_, tenant, _, ok := parseScope(key)
				if ok && (tenantID == "" || tenant == tenantID) {
					docKeys = append(docKeys, bytes.Clone(value))
				}
				return nil
			})
			if err != nil {
				return err
			}
			for _, docKey := range docKeys {
				doc, found, err := getDocument(tx, docKey)
				if err != nil {
					return err
				}
				if found {
					out = append(out, doc)
				}
			}
		}
		return nil
	}, false)
	return out, err
}

// Update implements storage.VectorStore. Each chunk commits in its own
// transaction.
func (s *Store) Update(ctx context.Context, docs []core.Document, opts storage.UpdateOptions) error {
	if err := s.checkOpen(); err != nil {
		return storage.Wrap("update", err)
	}
	err := storage.UpdateChunked(ctx, s.runner, docs, opts, func(ctx context.Context, chunk []core.Document) error {
		return s.backend.Update(func(tx *badger.Txn) error {
			now := s.now().UTC()
			for _, doc := range chunk {
				if err := putDocument(tx, doc, now); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return storage.Wrap("update", err)
	}
	s.logger.Debug("updated documents", "dataset", opts.DatasetID, "tenant", opts.TenantID, "count", len(docs))
	return nil
}

func putDocument(tx *badger.Txn, doc core.Document, now time.Time) error {
	doc.CreatedAt = now
	prev, found, err := getByID(tx, doc.ID)
	if err != nil {
		return err
	}
	if found {
		if !prev.CreatedAt.IsZero() {
			doc.CreatedAt = prev.CreatedAt
		}
		if err := deleteDocument(tx, prev); err != nil {
			return err
		}
	}

	value, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	docKey := makeDocumentKey(doc.DatasetID, doc.TenantID, doc.ID)
	if err := tx.Set(docKey, value); err != nil {
		return err
	}
	if err := tx.Set(makeIDKey(doc.ID), docKey); err != nil {
		return err
	}
	return tx.Set(makeHashKey(doc.Hash, doc.DatasetID, doc.TenantID, doc.ID), docKey)
}

func deleteDocument(tx *badger.Txn, doc core.Document) error {
	keys := [][]byte{
		makeDocumentKey(doc.DatasetID, doc.TenantID, doc.ID),
		makeIDKey(doc.ID),
		makeHashKey(doc.Hash, doc.DatasetID, doc.TenantID, doc.ID),
	}
	for _, key := range keys {
		if err := tx.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// Delete implements storage.VectorStore.
func (s *Store) Delete(ctx context.Context, ids []string, datasetID, tenantID string) error {
	if err := s.checkOpen(); err != nil {
		return storage.Wrap("delete", err)
	}
	chunks := batch.Chunks(storage.UniqueStrings(ids), storage.DefaultUpdateBatchSize)
	err := batch.Each(ctx, s.runner, chunks, func(ctx context.Context, chunk []string) error {
		return s.backend.Update(func(tx *badger.Txn) error {
			for _, id := range chunk {
				doc, found, err := getByID(tx, id)
				if err != nil {
					return err
				}
				if !found || doc.DatasetID != datasetID || !storage.InScope(doc, "", tenantID) {
					continue
				}
				if err := deleteDocument(tx, doc); err != nil {
					return err
				}
			}
			return nil
		})
	})
	return storage.Wrap("delete", err)
}

// Search implements storage.VectorStore.
func (s *Store) Search(ctx context.Context, q storage.SearchQuery) ([]core.SearchMatch, error) {
	if err := q.Validate(); err != nil {
		return nil, storage.Wrap("search", err)
	}
	if err := s.checkOpen(); err != nil {
		return nil, storage.Wrap("search", err)
	}
	var matches []core.SearchMatch
	for _, datasetID := range storage.UniqueStrings(q.DatasetIDs) {
		err := s.backend.ScanPrefix(makeDocumentScanPrefix(datasetID, q.TenantID), func(key, value []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc, err := decodeDocument(value)
			if err != nil {
				return err
			}
			if storage.MatchesSearch(doc, q) {
				matches = append(matches, storage.ScoreDocument(doc, q.Vector))
			}
			return nil
		})
		if err != nil {
			return nil, storage.Wrap("search", err)
		}
	}
	return storage.RankMatches(matches, q.TopK), nil
}

// Clear implements storage.VectorStore.
func (s *Store) Clear(ctx context.Context, datasetID, tenantID string) error {
	if err := s.checkOpen(); err != nil {
		return storage.Wrap("clear", err)
	}
	if datasetID == "" {
		return storage.Wrap("clear", core.ErrEmptyDatasetID)
	}
	var keys [][]byte
	err := s.backend.ScanPrefix(makeDocumentScanPrefix(datasetID, tenantID), func(key, value []byte) error {
		doc, err := decodeDocument(value)
		if err != nil {
			return err
		}
		keys = append(keys,
			bytes.Clone(key),
			makeIDKey(doc.ID),
			makeHashKey(doc.Hash, doc.DatasetID, doc.TenantID, doc.ID))
		return nil
	})
	if err == nil {
		err = s.backend.DeleteKeys(keys)
	}
	if err != nil {
		return storage.Wrap("clear", err)
	}
	s.logger.Info("cleared dataset", "dataset", datasetID, "tenant", tenantID, "removed", len(keys)/3)
	return nil
}

// Datasets implements storage.VectorStore.
func (s *Store) Datasets(ctx context.Context, tenantID string) ([]core.Dataset, error) {
	if err := s.checkOpen(); err != nil {
		return nil, storage.Wrap("datasets", err)
	}
	var docs []core.Document
	err := s.backend.ScanPrefix(makeDocumentScanPrefix("", ""), func(key, value []byte) error {
		datasetID, tenant, _, ok := parseScope(key)
		if !ok || (tenantID != "" && tenant != tenantID) {
			return nil
		}
		r, err := unmarshalRecord(value)
		if err != nil {
			return err
		}
		doc := core.Document{DatasetID: datasetID}
		if r.CreatedAt != 0 {
			doc.CreatedAt = time.UnixMicro(r.CreatedAt).UTC()
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, storage.Wrap("datasets", err)
	}
	return storage.SummarizeDatasets(docs), nil
}

// Close releases the runner and the backend when the store owns them.
func (s *Store) Close() error {
	if s.ownsRunner {
		s.runner.Release()
	}
	if s.ownsBackend && !s.backend.IsClosed() {
		return s.backend.Close()
	}
	return nil
}

func getByID(tx *badger.Txn, id string) (core.Document, bool, error) {
	item, err := tx.Get(makeIDKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return core.Document{}, false, nil
	}
	if err != nil {
		return core.Document{}, false, err
	}
	docKey, err := item.ValueCopy(nil)
	if err != nil {
		return core.Document{}, false, err
	}
	return getDocument(tx, docKey)
}

func getDocument(tx *badger.Txn, docKey []byte) (core.Document, bool, error) {
	item, err := tx.Get(docKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return core.Document{}, false, nil
	}
	if err != nil {
		return core.Document{}, false, err
	}
	var doc core.Document
	err = item.Value(func(val []byte) error {
		doc, err = decodeDocument(val)
		return err
	})
	if err != nil {
		return core.Document{}, false, err
	}
	return doc, true, nil
}

func scanTx(tx *badger.Txn, prefix []byte, fn func(key, value []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		err := item.Value(func(val []byte) error {
			return fn(item.Key(), val)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
