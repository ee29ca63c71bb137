package authkit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the window counter and, on the first rejected
// attempt, stretches the key expiry to max(window remaining, block).
// Returns {allowed, remaining, retry_after_ms}.
var fixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local points = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local block_ms = tonumber(ARGV[3])

local consumed = redis.call('INCR', key)
if consumed == 1 then
    redis.call('PEXPIRE', key, window_ms)
end
local ttl = redis.call('PTTL', key)
if ttl < 0 then
    redis.call('PEXPIRE', key, window_ms)
    ttl = window_ms
end

if consumed <= points then
    return {1, points - consumed, 0}
end

if consumed == points + 1 and block_ms > ttl then
    redis.call('PEXPIRE', key, block_ms)
    ttl = block_ms
end
return {0, 0, ttl}
`)

// RedisRateLimiter evaluates fixed-window policies atomically inside Redis.
type RedisRateLimiter struct {
	client redis.Scripter
}

// NewRedisRateLimiter wraps a Redis client.
func NewRedisRateLimiter(client redis.Scripter) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

func (limiter *RedisRateLimiter) Consume(ctx context.Context, scopeKey string, policy RateLimitPolicy) (RateLimitDecision, error) {
	if err := policy.validate(); err != nil {
		return RateLimitDecision{}, err
	}
	arguments := []interface{}{
		policy.Points,
		policy.Window.Milliseconds(),
		policy.Block.Milliseconds(),
	}
	result, err := fixedWindowScript.Run(ctx, limiter.client, []string{rateLimitKey(policy, scopeKey)}, arguments...).Result()
	if err != nil {
		return RateLimitDecision{}, fmt.Errorf("ratelimit.consume.redis: %w", errors.Join(ErrRateLimiterUnavailable, err))
	}
	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return RateLimitDecision{}, fmt.Errorf("ratelimit.consume.redis: %w: unexpected script result %#v", ErrRateLimiterUnavailable, result)
	}
	return RateLimitDecision{
		Allowed:    asInt64(values[0]) == 1,
		Remaining:  asInt64(values[1]),
		RetryAfter: time.Duration(asInt64(values[2])) * time.Millisecond,
	}, nil
}

func asInt64(value interface{}) int64 {
	switch typed := value.(type) {
	case int64:
		return typed
	case int:
		return int64(typed)
	case string:
		parsed, err := strconv.ParseInt(typed, 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}
