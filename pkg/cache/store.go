package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the durable backing store each cache instance mirrors into.
// It exists for recovery after a restart, never for serving: the
// in-memory state stays authoritative. No cross-key transactional
// guarantees are required or assumed.
type Store interface {
	// Put mirrors an entry under the given namespace.
	Put(ctx context.Context, namespace string, entry *Entry) error

	// Get loads one mirrored entry. Returns ErrCacheMiss if absent.
	Get(ctx context.Context, namespace, canonicalKey string) (*Entry, error)

	// Delete removes a mirrored entry. Deleting an absent key is not
	// an error.
	Delete(ctx context.Context, namespace, canonicalKey string) error

	// List returns all mirrored entries in a namespace.
	List(ctx context.Context, namespace string) ([]*Entry, error)
}

// DefaultStoreTimeout bounds every durable store operation. A timed-out
// mirror write is treated identically to a failed one.
const DefaultStoreTimeout = 2 * time.Second

// RedisStore mirrors cache entries into Redis as JSON documents under
// semcache:<namespace>:<canonical_key>.
type RedisStore struct {
	redis   *redis.Client
	timeout time.Duration
}

// NewRedisStore creates a Redis-backed durable store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:   redisClient,
		timeout: DefaultStoreTimeout,
	}
}

func storeKey(namespace, canonicalKey string) string {
	return "semcache:" + namespace + ":" + canonicalKey
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, namespace string, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.redis.Set(ctx, storeKey(namespace, entry.CanonicalKey), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, namespace, canonicalKey string) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.redis.Get(ctx, storeKey(namespace, canonicalKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("unmarshal cache entry: %w", err)
	}
	return &entry, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, namespace, canonicalKey string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.redis.Del(ctx, storeKey(namespace, canonicalKey)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// List implements Store. Uses SCAN so it never blocks Redis the way
// KEYS would on a large keyspace.
func (s *RedisStore) List(ctx context.Context, namespace string) ([]*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var entries []*Entry
	iter := s.redis.Scan(ctx, 0, storeKey(namespace, "*"), 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.redis.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // deleted between scan and get
			}
			return nil, fmt.Errorf("redis get %s: %w", iter.Val(), err)
		}

		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			// Skip corrupt mirror documents rather than failing
			// recovery for the whole namespace.
			continue
		}
		entries = append(entries, &entry)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}

	return entries, nil
}
