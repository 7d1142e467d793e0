package authgate

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisTokenStore is a [TokenStore] backed by Redis. It is the deployment
// choice for managed device fleets (kiosks, shared terminals) where session
// material must live off-device; single-user installs normally prefer
// [BoltTokenStore].
//
//	Docs: docs/token_store.md
type RedisTokenStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisTokenStore describes the newredistokenstore operation and its observable behavior.
//
// NewRedisTokenStore may return an error when input validation, dependency calls, or security checks fail.
func NewRedisTokenStore(client *redis.Client, prefix string) *RedisTokenStore {
	if prefix == "" {
		prefix = "ag"
	}
	return &RedisTokenStore{redis: client, prefix: prefix}
}

func (s *RedisTokenStore) key(name string) string {
	return s.prefix + ":" + name
}

// Get describes the get operation and its observable behavior.
//
// Get may return an error when input validation, dependency calls, or security checks fail.
func (s *RedisTokenStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.redis.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrKeyNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}
	return val, nil
}

// Set describes the set operation and its observable behavior.
//
// Set may return an error when input validation, dependency calls, or security checks fail.
func (s *RedisTokenStore) Set(ctx context.Context, key, value string) error {
	if err := s.redis.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}
	return nil
}

// Delete describes the delete operation and its observable behavior.
//
// Delete may return an error when input validation, dependency calls, or security checks fail.
func (s *RedisTokenStore) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrTokenStoreUnavailable, err)
	}
	return nil
}
