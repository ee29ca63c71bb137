package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	revocationKeyPrefix = "blacklist:"
	redisPingTimeout    = 2 * time.Second
)

var errEmptyRedisURL = errors.New("redis.empty_url")

// NewRedisClient parses a redis:// or rediss:// URL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("redis.open: %w", errEmptyRedisURL)
	}
	options, parseErr := redis.ParseURL(redisURL)
	if parseErr != nil {
		return nil, fmt.Errorf("redis.parse_url: %w", parseErr)
	}
	client := redis.NewClient(options)
	pingContext, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if pingErr := client.Ping(pingContext).Err(); pingErr != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.ping: %w", pingErr)
	}
	return client, nil
}

// RedisRevocationRegistry stores denial entries as expiring Redis keys.
type RedisRevocationRegistry struct {
	client redis.Cmdable
	clock  Clock
}

// NewRedisRevocationRegistry wraps a Redis client.
func NewRedisRevocationRegistry(client redis.Cmdable, clock Clock) *RedisRevocationRegistry {
	if clock == nil {
		clock = SystemClock{}
	}
	return &RedisRevocationRegistry{client: client, clock: clock}
}

func revocationKey(tokenID string) string {
	return revocationKeyPrefix + tokenID
}

func (registry *RedisRevocationRegistry) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(registry.clock.Now())
	if ttl <= 0 {
		return nil
	}
	if err := registry.client.Set(ctx, revocationKey(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revocation.revoke.redis: %w", errors.Join(ErrRevocationUnavailable, err))
	}
	return nil
}

func (registry *RedisRevocationRegistry) RevokeOnce(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(registry.clock.Now())
	if ttl <= 0 {
		return false, nil
	}
	stored, err := registry.client.SetNX(ctx, revocationKey(tokenID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("revocation.revoke_once.redis: %w", errors.Join(ErrRevocationUnavailable, err))
	}
	return stored, nil
}

func (registry *RedisRevocationRegistry) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	count, err := registry.client.Exists(ctx, revocationKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("revocation.lookup.redis: %w", errors.Join(ErrRevocationUnavailable, err))
	}
	return count > 0, nil
}
