package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Buckets lists the snapshot buckets in persistence order.
var Buckets = []string{"dossiers", "units", "hops", "logs", "relations", "users", "entities"}

func (s *Snapshot) bucketTarget(bucket string) (any, bool) {
	switch bucket {
	case "dossiers":
		return &s.Dossiers, true
	case "units":
		return &s.Units, true
	case "hops":
		return &s.Hops, true
	case "logs":
		return &s.Logs, true
	case "relations":
		return &s.Relations, true
	case "users":
		return &s.Users, true
	case "entities":
		return &s.Entities, true
	}
	return nil, false
}

// EncodeBuckets marshals each bucket of the snapshot to JSON.
func (s Snapshot) EncodeBuckets() (map[string][]byte, error) {
	out := make(map[string][]byte, len(Buckets))
	for _, bucket := range Buckets {
		target, _ := s.bucketTarget(bucket)
		data, err := json.Marshal(target)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", bucket, err)
		}
		out[bucket] = data
	}
	return out, nil
}

// DecodeBucket unmarshals one persisted bucket into the snapshot. Unknown
// buckets and empty payloads are ignored.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	target, ok := s.bucketTarget(bucket)
	if !ok {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

// BucketCache remembers the bucket encodings last written to a backing table.
// Snapshot stores consult it to rewrite only the buckets a transaction changed.
// It is not safe for concurrent use; callers hold their persist lock.
type BucketCache struct {
	written map[string][]byte
}

// NewBucketCache returns an empty cache: every bucket starts dirty.
func NewBucketCache() *BucketCache {
	return &BucketCache{written: make(map[string][]byte, len(Buckets))}
}

// Dirty lists, in persistence order, the buckets whose encoding differs from
// the last written one.
func (c *BucketCache) Dirty(encoded map[string][]byte) []string {
	var out []string
	for _, bucket := range Buckets {
		prev, ok := c.written[bucket]
		if !ok || !bytes.Equal(prev, encoded[bucket]) {
			out = append(out, bucket)
		}
	}
	return out
}

// Mark records the encodings of names as written.
func (c *BucketCache) Mark(encoded map[string][]byte, names []string) {
	for _, name := range names {
		c.written[name] = encoded[name]
	}
}
