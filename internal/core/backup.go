package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/oklog/ulid/v2"

	blobcore "gibiertrace/internal/blob/core"
	"gibiertrace/internal/infra/persistence/memory"
)

// Backup writes the store snapshot to blobs under prefix and returns the stored object info.
func Backup(ctx context.Context, store SnapshotStore, blobs blobcore.Store, prefix string, now time.Time) (blobcore.Info, error) {
	data, err := json.Marshal(store.ExportState())
	if err != nil {
		return blobcore.Info{}, fmt.Errorf("encode snapshot: %w", err)
	}
	if prefix == "" {
		prefix = "backups"
	}
	key := path.Join(prefix, now.UTC().Format("20060102T150405Z")+"-"+ulid.Make().String()+".json")
	info, err := blobs.Put(ctx, key, bytes.NewReader(data), blobcore.PutOptions{ContentType: "application/json"})
	if err != nil {
		return blobcore.Info{}, fmt.Errorf("store backup: %w", err)
	}
	return info, nil
}

// Restore replaces the store state with the snapshot stored at key.
func Restore(ctx context.Context, store SnapshotStore, blobs blobcore.Store, key string) error {
	_, rc, err := blobs.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read backup %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read backup %s: %w", key, err)
	}
	var snapshot memory.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("decode backup %s: %w", key, err)
	}
	store.ImportState(snapshot)
	// An empty transaction flushes the imported state to durable backends.
	if _, err := store.RunInTransaction(ctx, func(Transaction) error { return nil }); err != nil {
		return fmt.Errorf("persist restored state: %w", err)
	}
	return nil
}
