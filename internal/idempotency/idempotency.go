package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Store claims Idempotency-Key values so a retried request is applied once.
type Store interface {
	// Claim reports true the first time (scope, key) is seen within the TTL.
	Claim(ctx context.Context, scope, key string) (bool, error)
	// Release gives a claimed key back so the request can be retried.
	Release(ctx context.Context, scope, key string) error
}

type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps claimed keys in Redis with a TTL.
type RedisStore struct {
	rdb redisClient
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Claim(ctx context.Context, scope, key string) (bool, error) {
	// requests without a key are never deduplicated
	if key == "" {
		return true, nil
	}
	ok, err := s.rdb.SetNX(ctx, redisKey(scope, key), "exists", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim idempotency key: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Release(ctx context.Context, scope, key string) error {
	if key == "" {
		return nil
	}
	if err := s.rdb.Del(ctx, redisKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func redisKey(scope, key string) string {
	return fmt.Sprintf("idempotent-key:%s:%s", scope, key)
}

// Nop accepts every request. It is used when Redis is not configured.
type Nop struct{}

func (Nop) Claim(context.Context, string, string) (bool, error) { return true, nil }

func (Nop) Release(context.Context, string, string) error { return nil }
