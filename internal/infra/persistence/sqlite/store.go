// Package sqlite keeps the custody store in a single SQLite file, one row per
// bucket of the in-memory snapshot.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"gibiertrace/internal/infra/persistence/memory"
	"gibiertrace/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultPath = "gibiertrace.db"

	schema = `CREATE TABLE IF NOT EXISTS state (
		bucket  TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`
	upsert = `INSERT INTO state(bucket, payload) VALUES(?, ?)
		ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload`
)

// Store serves reads and transactions from memory and, after each committed
// transaction, rewrites the buckets that changed.
type Store struct {
	*memory.Store
	db    *sql.DB
	path  string
	mu    sync.Mutex
	cache *memory.BucketCache
}

// NewStore opens (or creates) the database at path and loads its state.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection serialises writers; modernc sqlite returns
	// SQLITE_BUSY otherwise.
	db.SetMaxOpenConns(1)
	s := &Store{Store: memory.NewStore(engine), db: db, path: path, cache: memory.NewBucketCache()}
	if err := s.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create state table: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var (
		snapshot memory.Snapshot
		loaded   []string
	)
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan state: %w", err)
		}
		if err := snapshot.DecodeBucket(bucket, payload); err != nil {
			return err
		}
		loaded = append(loaded, bucket)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if len(loaded) == 0 {
		return nil
	}
	s.ImportState(snapshot)
	encoded, err := s.ExportState().EncodeBuckets()
	if err != nil {
		return err
	}
	s.cache.Mark(encoded, loaded)
	return nil
}

// RunInTransaction commits in memory first; a failed write to disk is
// returned to the caller but the in-memory commit stands.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	return res, s.flush(context.WithoutCancel(ctx))
}

func (s *Store) flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	encoded, err := s.ExportState().EncodeBuckets()
	if err != nil {
		return err
	}
	dirty := s.cache.Dirty(encoded)
	if len(dirty) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sqlite tx: %w", err)
	}
	for _, bucket := range dirty {
		if _, err := tx.ExecContext(ctx, upsert, bucket, encoded[bucket]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("write %s bucket: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sqlite tx: %w", err)
	}
	s.cache.Mark(encoded, dirty)
	return nil
}

// DB returns the database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
