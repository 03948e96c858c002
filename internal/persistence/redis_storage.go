package persistence

import (
	"context"
	"errors"
	"time"

	pkgredis "github.com/angelmondragon/packfinderz-cart/pkg/redis"
)

type redisKV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CartKey(key string) string
}

// RedisStorage is the session-scoped fallback backend. Entries expire after ttl.
type RedisStorage struct {
	client redisKV
	ttl    time.Duration
}

func NewRedisStorage(client redisKV, ttl time.Duration) *RedisStorage {
	return &RedisStorage{client: client, ttl: ttl}
}

func (r *RedisStorage) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, r.client.CartKey(key))
	if errors.Is(err, pkgredis.ErrKeyMissing) {
		return "", ErrKeyNotFound
	}
	return value, err
}

func (r *RedisStorage) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.client.CartKey(key), value, r.ttl)
}

func (r *RedisStorage) Remove(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.client.CartKey(key))
}
