package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// redisScanCount is the COUNT hint passed to SCAN.
const redisScanCount = 256

// RedisBackend stores the registry under a key prefix in Redis.
// Apply uses MULTI/EXEC so a batch is applied atomically.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend wraps an existing client. Every key is stored as
// prefix + key, so several registries can share one database.
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

// OpenRedis parses a redis:// URL, connects and pings the server.
func OpenRedis(ctx context.Context, url, prefix string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisBackend(client, prefix), nil
}

// Get returns the value stored at key.
func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return v, nil
}

// Scan walks the keyspace with SCAN MATCH and fetches values with MGET.
// Keys are sorted after collection since SCAN order is unspecified.
func (r *RedisBackend) Scan(ctx context.Context, prefix string) ([]KV, error) {
	pattern := escapeGlob(r.prefix+prefix) + "*"

	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, redisScanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %q: %w", prefix, err)
	}
	if len(keys) == 0 {
		return []KV{}, nil
	}
	sort.Strings(keys)

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget %q: %w", prefix, err)
	}

	pairs := make([]KV, 0, len(keys))
	for i, k := range keys {
		s, ok := values[i].(string)
		if !ok {
			// Deleted between SCAN and MGET.
			continue
		}
		pairs = append(pairs, KV{Key: strings.TrimPrefix(k, r.prefix), Value: []byte(s)})
	}
	return pairs, nil
}

// Apply queues the batch inside MULTI/EXEC.
func (r *RedisBackend) Apply(ctx context.Context, batch []Mutation) error {
	if len(batch) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range batch {
			if m.Delete {
				pipe.Del(ctx, r.prefix+m.Key)
				continue
			}
			pipe.Set(ctx, r.prefix+m.Key, m.Value, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

// escapeGlob escapes SCAN MATCH metacharacters.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
