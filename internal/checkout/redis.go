package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/gateway-bridge/internal/observability"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "checkout:doc"

// RedisStore is a DocumentStore backed by redis, for multi-instance
// deployments where the purchase call and the checkout fetch may land on
// different nodes. Redis owns the eviction via key TTLs.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore wraps a redis client.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(token string) string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, token)
}

func (s *RedisStore) Put(ctx context.Context, token string, doc []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := s.client.Set(ctx, redisKey(token), doc, ttl).Err(); err != nil {
		return fmt.Errorf("store checkout document: %w", err)
	}
	observability.IncrementCheckoutDoc("stored")
	return nil
}

func (s *RedisStore) Get(ctx context.Context, token string) ([]byte, error) {
	doc, err := s.client.Get(ctx, redisKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkout document: %w", err)
	}
	return doc, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, redisKey(token)).Err(); err != nil {
		return fmt.Errorf("delete checkout document: %w", err)
	}
	return nil
}
