// Package postgres keeps the custody state in a Postgres state table, one row
// per snapshot bucket. The schema is managed with goose.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/pressly/goose/v3"

	"gibiertrace/internal/infra/persistence/memory"
	"gibiertrace/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/gibiertrace?sslmode=disable"

	selectState = `SELECT bucket, payload FROM state`
	upsertState = `INSERT INTO state(bucket,payload,updated_at) VALUES($1,$2,now()) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload, updated_at=EXCLUDED.updated_at`
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	sqlOpen         = sql.Open
	applyMigrations = Migrate
	openMu          sync.Mutex
	gooseMu         sync.Mutex
)

// Store serves the custody state from memory and mirrors each changed bucket
// into the state table.
type Store struct {
	*memory.Store
	db    *sql.DB
	mu    sync.Mutex
	cache *memory.BucketCache
}

// Open returns a database handle for dsn using the pgx driver.
func Open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// Migrate applies every pending embedded migration.
func Migrate(ctx context.Context, db *sql.DB) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// NewStore connects to dsn, applies pending migrations and loads the stored
// state into memory.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine) (*Store, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{Store: memory.NewStore(engine), db: db, cache: memory.NewBucketCache()}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	if err := applyMigrations(ctx, s.db); err != nil {
		return err
	}
	rows, err := s.db.QueryContext(ctx, selectState)
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
	s.ImportState(snapshot)
	encoded, err := s.ExportState().EncodeBuckets()
	if err != nil {
		return err
	}
	s.cache.Mark(encoded, loaded)
	return nil
}

// RunInTransaction commits in memory, then upserts the buckets the
// transaction changed.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	return res, s.flush(context.WithoutCancel(ctx))
}

// DB returns the database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) flush(ctx context.Context) (err error) {
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
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range dirty {
		if _, err := tx.ExecContext(ctx, upsertState, bucket, encoded[bucket]); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, classify(bucket, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", classify("state", err))
	}
	s.cache.Mark(encoded, dirty)
	return nil
}

const uniqueViolation = "23505"

// classify maps Postgres unique violations onto domain conflicts.
func classify(bucket string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ConflictError{Entity: domain.EntityType(bucket), Key: pgErr.ConstraintName, Reason: pgErr.Message}
	}
	return err
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
