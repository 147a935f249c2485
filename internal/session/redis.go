package session

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felixgeelhaar/practicedesk/internal/errors"
)

// DefaultRedisTTL bounds how long an idle session hash survives in Redis.
const DefaultRedisTTL = 30 * 24 * time.Hour

// RedisStore keeps the session in a single Redis hash so several proxy
// instances can share one login.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisStore creates a store using hash key prefix + ":" + namespace.
func NewRedisStore(client redis.UniversalClient, prefix, namespace string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "practicedesk:session"
	}
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisStore{
		client: client,
		key:    prefix + ":" + namespace,
		ttl:    ttl,
	}
}

// HashKey returns the Redis key holding the session.
func (r *RedisStore) HashKey() string {
	return r.key
}

// Get returns the value stored under key.
func (r *RedisStore) Get(ctx context.Context, key Key) (string, bool, error) {
	v, err := r.client.HGet(ctx, r.key, string(key)).Result()
	if stderrors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.NewStoreError("get", err)
	}
	return v, true, nil
}

// Set stores value under key and extends the session TTL.
func (r *RedisStore) Set(ctx context.Context, key Key, value string) error {
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.key, string(key), value)
	pipe.Expire(ctx, r.key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewStoreError("set", err)
	}
	return nil
}

// Remove deletes key.
func (r *RedisStore) Remove(ctx context.Context, key Key) error {
	if err := r.client.HDel(ctx, r.key, string(key)).Err(); err != nil {
		return errors.NewStoreError("remove", err)
	}
	return nil
}

// Clear deletes the whole session hash in one command.
func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return errors.NewStoreError("clear", err)
	}
	return nil
}

// Close releases the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
