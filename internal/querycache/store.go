package querycache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is the persisted part of a cache entry: the last good data and
// whether it has been invalidated since.
type Entry struct {
	Data        json.RawMessage `json:"data"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	Invalidated bool            `json:"invalidated"`
}

// Store persists entries by key.
type Store interface {
	Load(ctx context.Context, key Key) (Entry, bool, error)
	Save(ctx context.Context, key Key, e Entry) error
	Delete(ctx context.Context, key Key) error
}

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Key]Entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[Key]Entry{}}
}

// Load implements Store.
func (m *MemoryStore) Load(_ context.Context, key Key) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, key Key, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
	return nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// RedisStore shares entries between processes through Redis. Keys are
// prefixed so several users or environments can share one instance.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore constructs a RedisStore. A non-positive ttl keeps entries
// until they are deleted.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) redisKey(key Key) string {
	return r.prefix + "querycache:" + string(key)
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context, key Key) (Entry, bool, error) {
	if r == nil || r.client == nil {
		return Entry{}, false, nil
	}
	data, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Save implements Store.
func (r *RedisStore) Save(ctx context.Context, key Key, e Entry) error {
	if r == nil || r.client == nil {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	ttl := r.ttl
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, r.redisKey(key), data, ttl).Err()
}

// Delete implements Store.
func (r *RedisStore) Delete(ctx context.Context, key Key) error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Del(ctx, r.redisKey(key)).Err()
}
