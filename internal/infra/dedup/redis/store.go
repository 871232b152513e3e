// Package redis implements the dispatch dedup store on Redis so several
// instances share which events were already dispatched.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"gibiertrace/internal/core"
)

// DefaultPrefix namespaces dedup keys.
const DefaultPrefix = "gibiertrace:dispatch:"

// Connect initializes a Redis client from a redis:// URL or a host:port address.
func Connect(_ context.Context, redisURL string) (*goredis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := goredis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return goredis.NewClient(opt), nil
	}
	return goredis.NewClient(&goredis.Options{Addr: redisURL}), nil
}

// Store keeps processed event keys in Redis with a TTL.
type Store struct {
	client goredis.Cmdable
	prefix string
	ttl    time.Duration
}

var _ core.DedupStore = (*Store)(nil)

// New wraps client. An empty prefix falls back to DefaultPrefix; a zero ttl
// keeps keys forever.
func New(client goredis.Cmdable, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

func (s *Store) key(eventKey string) string {
	return s.prefix + eventKey
}

// Seen reports whether the event key was already dispatched.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

// MarkProcessed records the event key. An existing mark is left untouched.
func (s *Store) MarkProcessed(ctx context.Context, key string) error {
	if err := s.client.SetNX(ctx, s.key(key), time.Now().UTC().Format(time.RFC3339), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return nil
}
