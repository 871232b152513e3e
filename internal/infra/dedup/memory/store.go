// Package memory implements an in-process dispatch dedup store.
package memory

import (
	"context"
	"sync"
	"time"

	"gibiertrace/internal/core"
)

// Store remembers processed event keys in process memory. A zero TTL keeps
// keys forever.
type Store struct {
	mu    sync.Mutex
	keys  map[string]time.Time
	ttl   time.Duration
	nowFn func() time.Time
}

var _ core.DedupStore = (*Store)(nil)

// New returns an empty store whose keys expire after ttl.
func New(ttl time.Duration) *Store {
	return &Store{keys: make(map[string]time.Time), ttl: ttl, nowFn: time.Now}
}

// SetNowFunc overrides the clock used for expiry.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// Seen reports whether key was marked and has not expired.
func (s *Store) Seen(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	marked, ok := s.keys[key]
	if !ok {
		return false, nil
	}
	if s.ttl > 0 && s.nowFn().Sub(marked) >= s.ttl {
		delete(s.keys, key)
		return false, nil
	}
	return true, nil
}

// MarkProcessed records key as dispatched.
func (s *Store) MarkProcessed(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = s.nowFn()
	return nil
}
