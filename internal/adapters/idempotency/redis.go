package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix      = "funding:idem:"
	inFlightMarker = "__in_flight__"
)

// Connect initializes a Redis client from URL or host:port input
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisStore implements ports.IdempotencyStore across service replicas
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed idempotency store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Acquire claims key with SETNX. A completed key returns its stored result.
func (s *RedisStore) Acquire(ctx context.Context, key string, ttl time.Duration) ([]byte, bool, error) {
	ok, err := s.client.SetNX(ctx, keyPrefix+key, inFlightMarker, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return nil, true, nil
	}

	raw, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET; the caller retries
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read idempotency key: %w", err)
	}
	if string(raw) == inFlightMarker {
		return nil, false, nil
	}
	return raw, false, nil
}

// Complete stores the result for key
func (s *RedisStore) Complete(ctx context.Context, key string, result []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, keyPrefix+key, result, ttl).Err(); err != nil {
		return fmt.Errorf("store idempotency result: %w", err)
	}
	return nil
}

// abandonScript deletes the key only while it still holds the in-flight marker
var abandonScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Abandon releases an in-flight claim so the key can be retried
func (s *RedisStore) Abandon(ctx context.Context, key string) error {
	if err := abandonScript.Run(ctx, s.client, []string{keyPrefix + key}, inFlightMarker).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("abandon idempotency key: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
