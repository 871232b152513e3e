package core

import (
	"context"
	"fmt"

	"gibiertrace/internal/infra/persistence/memory"
	"gibiertrace/internal/infra/persistence/postgres"
	"gibiertrace/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// StorageOptions selects and configures the persistent backend.
type StorageOptions struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
}

// SnapshotStore is a persistent store whose full state can be exported.
type SnapshotStore interface {
	PersistentStore
	ExportState() memory.Snapshot
	ImportState(memory.Snapshot)
}

// OpenPersistentStore opens the configured backend. Defaults to sqlite when
// the driver is unset.
func OpenPersistentStore(ctx context.Context, opts StorageOptions, engine *RulesEngine) (SnapshotStore, error) {
	driver := opts.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(opts.SQLitePath, engine)
	case StoragePostgres:
		return postgres.NewStore(ctx, opts.PostgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
