package authkit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type limiterHarness struct {
	limiter RateLimiter
	advance func(duration time.Duration)
}

func limiterHarnesses() map[string]func(t *testing.T) limiterHarness {
	return map[string]func(t *testing.T) limiterHarness{
		"memory": func(t *testing.T) limiterHarness {
			clock := &controllableClock{current: time.Unix(1700000000, 0).UTC()}
			return limiterHarness{limiter: NewMemoryRateLimiter(clock), advance: clock.Advance}
		},
		"redis": func(t *testing.T) limiterHarness {
			server := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: server.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return limiterHarness{limiter: NewRedisRateLimiter(client), advance: server.FastForward}
		},
	}
}

func TestRateLimiterBlocksAfterQuotaUntilBlockElapses(t *testing.T) {
	for name, build := range limiterHarnesses() {
		t.Run(name, func(t *testing.T) {
			harness := build(t)
			ctx := context.Background()

			for attempt := int64(1); attempt <= PolicyAuth.Points; attempt++ {
				decision, err := harness.limiter.Consume(ctx, "10.0.0.1", PolicyAuth)
				if err != nil {
					t.Fatalf("consume %d: %v", attempt, err)
				}
				if !decision.Allowed {
					t.Fatalf("attempt %d should be allowed", attempt)
				}
				if decision.Remaining != PolicyAuth.Points-attempt {
					t.Fatalf("attempt %d: expected remaining %d, got %d", attempt, PolicyAuth.Points-attempt, decision.Remaining)
				}
			}

			rejected, err := harness.limiter.Consume(ctx, "10.0.0.1", PolicyAuth)
			if err != nil {
				t.Fatalf("consume: %v", err)
			}
			if rejected.Allowed {
				t.Fatalf("sixth attempt must be rejected")
			}
			if rejected.RetryAfterSeconds() != int(PolicyAuth.Block/time.Second) {
				t.Fatalf("expected retry after %d seconds, got %d", int(PolicyAuth.Block/time.Second), rejected.RetryAfterSeconds())
			}

			other, _ := harness.limiter.Consume(ctx, "10.0.0.2", PolicyAuth)
			if !other.Allowed {
				t.Fatalf("other scopes must be independent")
			}
			otherPolicy, _ := harness.limiter.Consume(ctx, "10.0.0.1", PolicyAPI)
			if !otherPolicy.Allowed {
				t.Fatalf("other policies must be independent")
			}

			harness.advance(PolicyAuth.Window + time.Second)
			stillBlocked, _ := harness.limiter.Consume(ctx, "10.0.0.1", PolicyAuth)
			if stillBlocked.Allowed {
				t.Fatalf("block must outlast the window reset")
			}

			harness.advance(PolicyAuth.Block - PolicyAuth.Window)
			reopened, err := harness.limiter.Consume(ctx, "10.0.0.1", PolicyAuth)
			if err != nil {
				t.Fatalf("consume: %v", err)
			}
			if !reopened.Allowed {
				t.Fatalf("expected quota to reopen once the block elapsed")
			}
		})
	}
}

func TestRateLimiterWithoutBlockWaitsForWindow(t *testing.T) {
	policy := RateLimitPolicy{Name: "burst", Points: 2, Window: time.Minute}
	for name, build := range limiterHarnesses() {
		t.Run(name, func(t *testing.T) {
			harness := build(t)
			ctx := context.Background()
			_, _ = harness.limiter.Consume(ctx, "scope", policy)
			harness.advance(20 * time.Second)
			_, _ = harness.limiter.Consume(ctx, "scope", policy)

			rejected, _ := harness.limiter.Consume(ctx, "scope", policy)
			if rejected.Allowed {
				t.Fatalf("third attempt must be rejected")
			}
			if rejected.RetryAfterSeconds() != 40 {
				t.Fatalf("expected 40 seconds of window remaining, got %d", rejected.RetryAfterSeconds())
			}

			harness.advance(40 * time.Second)
			reopened, _ := harness.limiter.Consume(ctx, "scope", policy)
			if !reopened.Allowed {
				t.Fatalf("expected a new window")
			}
		})
	}
}

func TestRateLimiterRejectsInvalidPolicy(t *testing.T) {
	limiter := NewMemoryRateLimiter(nil)
	if _, err := limiter.Consume(context.Background(), "scope", RateLimitPolicy{Name: "broken"}); !errors.Is(err, errInvalidRateLimitPolicy) {
		t.Fatalf("expected invalid policy error, got %v", err)
	}
}

func TestRedisRateLimiterReportsOutage(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	defer func() { _ = client.Close() }()
	server.Close()

	_, err := NewRedisRateLimiter(client).Consume(context.Background(), "scope", PolicyAPI)
	if !errors.Is(err, ErrRateLimiterUnavailable) {
		t.Fatalf("expected ErrRateLimiterUnavailable, got %v", err)
	}
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	if seconds := (RateLimitDecision{RetryAfter: 1500 * time.Millisecond}).RetryAfterSeconds(); seconds != 2 {
		t.Fatalf("expected 2, got %d", seconds)
	}
	if seconds := (RateLimitDecision{}).RetryAfterSeconds(); seconds != 1 {
		t.Fatalf("expected minimum of 1, got %d", seconds)
	}
}
