package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// RateLimitPolicy is a fixed-window quota with an optional block period.
type RateLimitPolicy struct {
	Name   string
	Points int64
	Window time.Duration
	Block  time.Duration
}

// Named policies per action class.
var (
	PolicyAuth     = RateLimitPolicy{Name: "auth", Points: 5, Window: 15 * time.Minute, Block: time.Hour}
	PolicyRegister = RateLimitPolicy{Name: "register", Points: 3, Window: time.Hour, Block: 24 * time.Hour}
	PolicyAPI      = RateLimitPolicy{Name: "api", Points: 100, Window: time.Minute}
	PolicyOAuth    = RateLimitPolicy{Name: "oauth", Points: 10, Window: time.Hour, Block: time.Hour}
)

var errInvalidRateLimitPolicy = errors.New("ratelimit.invalid_policy")

// RateLimitDecision is the outcome of one consumption.
type RateLimitDecision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds the retry hint up to whole seconds, minimum one.
func (decision RateLimitDecision) RetryAfterSeconds() int {
	return retryAfterSeconds(decision.RetryAfter)
}

func (policy RateLimitPolicy) validate() error {
	if strings.TrimSpace(policy.Name) == "" || policy.Points <= 0 || policy.Window <= 0 || policy.Block < 0 {
		return fmt.Errorf("%w: %q", errInvalidRateLimitPolicy, policy.Name)
	}
	return nil
}

func rateLimitKey(policy RateLimitPolicy, scopeKey string) string {
	scope := strings.TrimSpace(scopeKey)
	if scope == "" {
		scope = "unknown"
	}
	return "ratelimit:" + policy.Name + ":" + scope
}

type memoryRateWindow struct {
	consumed  int64
	expiresAt time.Time
}

// MemoryRateLimiter is an in-process RateLimiter for tests and single-node dev runs.
type MemoryRateLimiter struct {
	mutex   sync.Mutex
	windows map[string]*memoryRateWindow
	clock   Clock
}

// NewMemoryRateLimiter constructs an empty limiter.
func NewMemoryRateLimiter(clock Clock) *MemoryRateLimiter {
	if clock == nil {
		clock = SystemClock{}
	}
	return &MemoryRateLimiter{windows: make(map[string]*memoryRateWindow), clock: clock}
}

// Consume applies one attempt to the scope's window. Once the quota is exceeded the
// window is stretched to cover the block period, so every attempt is rejected until
// the later of window end and block end.
func (limiter *MemoryRateLimiter) Consume(ctx context.Context, scopeKey string, policy RateLimitPolicy) (RateLimitDecision, error) {
	if err := policy.validate(); err != nil {
		return RateLimitDecision{}, err
	}
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()

	now := limiter.clock.Now()
	key := rateLimitKey(policy, scopeKey)
	window, exists := limiter.windows[key]
	if !exists || !window.expiresAt.After(now) {
		window = &memoryRateWindow{expiresAt: now.Add(policy.Window)}
		limiter.windows[key] = window
	}
	window.consumed++

	if window.consumed <= policy.Points {
		return RateLimitDecision{Allowed: true, Remaining: policy.Points - window.consumed}, nil
	}
	if window.consumed == policy.Points+1 && policy.Block > 0 {
		if blockEnd := now.Add(policy.Block); blockEnd.After(window.expiresAt) {
			window.expiresAt = blockEnd
		}
	}
	return RateLimitDecision{Allowed: false, RetryAfter: window.expiresAt.Sub(now)}, nil
}

// Purge drops windows that have already ended.
func (limiter *MemoryRateLimiter) Purge() {
	limiter.mutex.Lock()
	defer limiter.mutex.Unlock()
	now := limiter.clock.Now()
	for key, window := range limiter.windows {
		if !window.expiresAt.After(now) {
			delete(limiter.windows, key)
		}
	}
}
