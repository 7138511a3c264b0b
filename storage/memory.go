package storage

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore implements Store on an in-process TTL cache. It serves tests
// and single-node deployments; per-item expiry is handled by the cache's own
// janitor, mirroring the native TTL behavior of the Redis store.
type MemoryStore struct {
	mutex sync.Mutex
	cache *gocache.Cache
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func cacheTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	raw, ok := s.cache.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return toBytes(raw), nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.cache.Set(key, append([]byte(nil), value...), cacheTTL(ttl))
	return nil
}

func (s *MemoryStore) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.cache.Add(key, append([]byte(nil), value...), cacheTTL(ttl)); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var current int64
	if raw, ok := s.cache.Get(key); ok {
		if n, isInt := raw.(int64); isInt {
			current = n
		}
	}
	current += delta
	// Re-set rather than cache.Increment: the TTL must be refreshed on every
	// recorded hit, which the cache's increment primitives do not do.
	s.cache.Set(key, current, cacheTTL(ttl))
	return current, nil
}

func (s *MemoryStore) ListPrefix(ctx context.Context, prefix string, limit int) ([]Entry, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var keys []string
	items := s.cache.Items()
	for k := range items {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, Entry{Key: k, Value: toBytes(items[k].Object)})
	}
	return entries, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.cache.Delete(key)
	return nil
}

func toBytes(raw interface{}) []byte {
	switch v := raw.(type) {
	case []byte:
		return v
	case int64:
		return []byte(strconv.FormatInt(v, 10))
	default:
		return nil
	}
}
