// Package session provides storage backends for draft editing sessions.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trellis/api/internal/draft"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the idle lifetime of a draft session. Saving the record
// restarts the clock, so a session expires only after this much inactivity.
const DefaultTTL = 2 * time.Hour

// ErrNotFound is returned when no live session exists for a module/owner
// pair, whether it never existed or already expired.
var ErrNotFound = errors.New("draft session not found")

// Record holds the data stored for each draft session
type Record struct {
	ID        string      `json:"id"`
	ModuleID  string      `json:"module_id"`
	Owner     string      `json:"owner"`
	Draft     draft.Draft `json:"draft"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// RedisStore implements draft session storage using Redis
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore dials Redis from a URL and verifies the connection before
// handing the store back.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
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
	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient wraps an already-dialed client. A non-positive ttl
// falls back to DefaultTTL.
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		prefix: "draft:",
		ttl:    ttl,
	}
}

// key generates the Redis key for a module/owner pair. One live session per
// pair; opening again overwrites.
func (s *RedisStore) key(moduleID, owner string) string {
	return s.prefix + moduleID + ":" + owner
}

// SaveDraftSession stores a session record and restarts its idle expiry
func (s *RedisStore) SaveDraftSession(ctx context.Context, rec Record) error {
	jsonData, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}

	key := s.key(rec.ModuleID, rec.Owner)
	if err := s.client.Set(ctx, key, jsonData, s.ttl).Err(); err != nil {
		return fmt.Errorf("save draft session: %w", err)
	}

	return nil
}

// LookupDraftSession retrieves the live session for a module/owner pair
func (s *RedisStore) LookupDraftSession(ctx context.Context, moduleID, owner string) (Record, error) {
	key := s.key(moduleID, owner)
	jsonData, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("lookup draft session: %w", err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(jsonData), &rec); err != nil {
		return Record{}, fmt.Errorf("unmarshal session record: %w", err)
	}

	return rec, nil
}

// RevokeDraftSession deletes a session; revoking an absent one is not an error
func (s *RedisStore) RevokeDraftSession(ctx context.Context, moduleID, owner string) error {
	if err := s.client.Del(ctx, s.key(moduleID, owner)).Err(); err != nil {
		return fmt.Errorf("revoke draft session: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping reports whether Redis currently answers.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
