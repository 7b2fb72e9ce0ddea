// Package viewcache caches canonical views in Redis and defines the
// invalidation-key protocol the reconciliation layer emits. The cache is
// only ever reached through these keys; nothing else inspects or sweeps it.
package viewcache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"trellis/api/internal/entity"
)

// Key is one invalidation tuple: the entity kind (or view kind), the parent
// identifier, and the child identifier. Empty segments are legal; a key with
// only a kind addresses that kind's list view.
type Key struct {
	Kind   string `json:"kind"`
	Parent string `json:"parent"`
	Child  string `json:"child"`
}

func (k Key) String() string {
	return k.Kind + ":" + k.Parent + ":" + k.Child
}

// KindCounts addresses the aggregate-counts view; it is a view kind, not an
// entity kind.
const KindCounts = "counts"

// EntityKey addresses one entity and the views derived from it alone.
func EntityKey(kind entity.Kind, id string) Key {
	return Key{Kind: string(kind), Parent: id}
}

// ListKey addresses the full-collection view of a kind.
func ListKey(kind entity.Kind) Key {
	return Key{Kind: string(kind)}
}

// ChildKey addresses a child view under a parent, such as a module's
// commitment view.
func ChildKey(kind entity.Kind, parent, child string) Key {
	return Key{Kind: string(kind), Parent: parent, Child: child}
}

// CountsKey addresses the aggregate-counts view.
func CountsKey() Key {
	return Key{Kind: KindCounts}
}

// Store is the Redis-backed cache.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewStore connects to Redis and verifies the connection.
func NewStore(redisURL string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewStoreWithClient(client, ttl), nil
}

// NewStoreWithClient wraps an existing Redis client.
func NewStoreWithClient(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{client: client, prefix: "view:", ttl: ttl}
}

func (s *Store) redisKey(k Key) string {
	return s.prefix + k.String()
}

// Get returns the cached payload for a key, or ok=false on a miss. Cache
// read failures count as misses; the caller recomputes either way.
func (s *Store) Get(ctx context.Context, key Key) ([]byte, bool) {
	payload, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return payload, true
}

// Set stores a payload under a key with the configured TTL.
func (s *Store) Set(ctx context.Context, key Key, payload []byte) error {
	if err := s.client.Set(ctx, s.redisKey(key), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("cache view %s: %w", key, err)
	}
	return nil
}

// Invalidate drops the views for every given key.
func (s *Store) Invalidate(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = s.redisKey(k)
	}
	if err := s.client.Del(ctx, redisKeys...).Err(); err != nil {
		return fmt.Errorf("invalidate views: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Disabled is the cache used when no Redis is configured: every read is a
// miss, every write a no-op. Invalidation keys are still reported to
// callers, who may consume them independently of this cache.
type Disabled struct{}

func (Disabled) Get(ctx context.Context, key Key) ([]byte, bool) { return nil, false }

func (Disabled) Set(ctx context.Context, key Key, payload []byte) error { return nil }

func (Disabled) Invalidate(ctx context.Context, keys ...Key) error { return nil }
