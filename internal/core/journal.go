package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	blobcore "gibiertrace/internal/blob/core"
)

// JournalEntry is a raw sync batch as received from a client.
type JournalEntry struct {
	BatchID    string          `json:"batch_id"`
	ActorID    string          `json:"actor_id"`
	ReceivedAt time.Time       `json:"received_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Journal archives sync batches before they are reconciled.
type Journal interface {
	Archive(ctx context.Context, entry JournalEntry) error
}

// BlobJournal stores journal entries as JSON objects in a blob store, one key
// per batch under <prefix>/YYYY/MM/DD/<batch id>.json.
type BlobJournal struct {
	Store  blobcore.Store
	Prefix string
}

// Key returns the blob key for entry.
func (j BlobJournal) Key(entry JournalEntry) string {
	prefix := j.Prefix
	if prefix == "" {
		prefix = "sync"
	}
	return path.Join(prefix, entry.ReceivedAt.UTC().Format("2006/01/02"), entry.BatchID+".json")
}

// Archive implements Journal.
func (j BlobJournal) Archive(ctx context.Context, entry JournalEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	_, err = j.Store.Put(ctx, j.Key(entry), bytes.NewReader(data), blobcore.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"actor_id": entry.ActorID},
	})
	if err != nil {
		return fmt.Errorf("archive batch %s: %w", entry.BatchID, err)
	}
	return nil
}
