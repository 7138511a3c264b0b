package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a Redis client. All keys live under a
// namespace so several deployments can share one instance.
type RedisStore struct {
	client    *redis.Client
	namespace string
}

func NewRedisStore(client *redis.Client, namespace string) *RedisStore {
	return &RedisStore{client: client, namespace: namespace}
}

func (s *RedisStore) key(key string) string {
	return fmt.Sprintf("%s:%s", s.namespace, key)
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(key), value, ttl).Err()
}

func (s *RedisStore) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.key(key), value, ttl).Result()
}

func (s *RedisStore) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	namespaced := s.key(key)

	pipe := s.client.TxPipeline()
	incr := pipe.IncrBy(ctx, namespaced, delta)
	if ttl > 0 {
		pipe.Expire(ctx, namespaced, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *RedisStore) ListPrefix(ctx context.Context, prefix string, limit int) ([]Entry, error) {
	match := s.key(prefix) + "*"

	var keys []string
	iter := s.client.Scan(ctx, 0, match, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	// SCAN gives no ordering; sort descending so the timestamped key suffix
	// puts the newest entry first.
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}

	entries := make([]Entry, 0, len(keys))
	strip := len(s.namespace) + 1
	for _, k := range keys {
		value, err := s.client.Get(ctx, k).Bytes()
		if err == redis.Nil {
			continue // expired between SCAN and GET
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: k[strip:], Value: value})
	}
	return entries, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}
