package kv

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// getDelWithTTLScript atomically reads the remaining TTL and value of
// a key and deletes it, in one round trip. Redis's native GETDEL does
// not report the TTL it destroyed, so get-and-destroy-with-restorable-
// TTL needs the small server-side script spec.md §9 anticipates.
const getDelWithTTLScript = `
local ttl = redis.call('PTTL', KEYS[1])
local val = redis.call('GET', KEYS[1])
redis.call('DEL', KEYS[1])
return {val, ttl}
`

// RedisStore implements Store against a *redis.Client. Create-only
// writes use Redis's native SETNX directly; get-and-destroy uses the
// script above so the remaining TTL survives the delete.
type RedisStore struct {
	client     *redis.Client
	getDelFunc *redis.Script
}

// NewRedisStore dials url (a redis:// connection string) and returns a
// Store backed by it.
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	return &RedisStore{client: client, getDelFunc: redis.NewScript(getDelWithTTLScript)}, nil
}

func (s *RedisStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrExists
	}
	return nil
}

func (s *RedisStore) GetDelWithTTL(ctx context.Context, key string) ([]byte, time.Duration, error) {
	res, err := s.getDelFunc.Run(ctx, s.client, []string{key}).Result()
	if err != nil {
		return nil, 0, err
	}

	parts, ok := res.([]interface{})
	if !ok || len(parts) != 2 {
		return nil, 0, ErrNotFound
	}

	valStr, ok := parts[0].(string)
	if !ok {
		return nil, 0, ErrNotFound
	}

	pttlMillis, _ := parts[1].(int64)
	var ttl time.Duration
	if pttlMillis > 0 {
		ttl = time.Duration(pttlMillis) * time.Millisecond
	}

	return []byte(valStr), ttl, nil
}

func (s *RedisStore) Restore(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
