package authkit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type revocationHarness struct {
	registry RevocationRegistry
	advance  func(duration time.Duration)
}

func newRevocationHarnesses(t *testing.T) map[string]func(t *testing.T) revocationHarness {
	t.Helper()
	return map[string]func(t *testing.T) revocationHarness{
		"memory": func(t *testing.T) revocationHarness {
			clock := &controllableClock{current: time.Unix(1700000000, 0).UTC()}
			return revocationHarness{
				registry: NewMemoryRevocationRegistry(clock),
				advance:  clock.Advance,
			}
		},
		"redis": func(t *testing.T) revocationHarness {
			server := miniredis.RunT(t)
			clock := &controllableClock{current: time.Unix(1700000000, 0).UTC()}
			client := redis.NewClient(&redis.Options{Addr: server.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return revocationHarness{
				registry: NewRedisRevocationRegistry(client, clock),
				advance: func(duration time.Duration) {
					clock.Advance(duration)
					server.FastForward(duration)
				},
			}
		},
	}
}

func TestRevocationRegistriesShareSemantics(t *testing.T) {
	for name, build := range newRevocationHarnesses(t) {
		t.Run(name, func(t *testing.T) {
			harness := build(t)
			ctx := context.Background()
			start := time.Unix(1700000000, 0).UTC()

			revoked, err := harness.registry.IsRevoked(ctx, "jti-a")
			if err != nil || revoked {
				t.Fatalf("expected unknown jti to be absent, got %v %v", revoked, err)
			}

			if err := harness.registry.Revoke(ctx, "jti-a", start.Add(10*time.Minute)); err != nil {
				t.Fatalf("revoke: %v", err)
			}
			if revoked, _ := harness.registry.IsRevoked(ctx, "jti-a"); !revoked {
				t.Fatalf("expected jti-a to be revoked")
			}
			if err := harness.registry.Revoke(ctx, "jti-a", start.Add(10*time.Minute)); err != nil {
				t.Fatalf("second revoke should be idempotent: %v", err)
			}

			if err := harness.registry.Revoke(ctx, "jti-expired", start.Add(-time.Second)); err != nil {
				t.Fatalf("revoke expired: %v", err)
			}
			if revoked, _ := harness.registry.IsRevoked(ctx, "jti-expired"); revoked {
				t.Fatalf("expired token must not create an entry")
			}

			harness.advance(9 * time.Minute)
			if revoked, _ := harness.registry.IsRevoked(ctx, "jti-a"); !revoked {
				t.Fatalf("entry must live until the token expiry")
			}
			harness.advance(2 * time.Minute)
			if revoked, _ := harness.registry.IsRevoked(ctx, "jti-a"); revoked {
				t.Fatalf("entry must not outlive the token")
			}
		})
	}
}

func TestRevokeOnceIsConsumeOnce(t *testing.T) {
	for name, build := range newRevocationHarnesses(t) {
		t.Run(name, func(t *testing.T) {
			harness := build(t)
			ctx := context.Background()
			expiresAt := time.Unix(1700000000, 0).UTC().Add(time.Hour)

			first, err := harness.registry.RevokeOnce(ctx, "refresh-jti", expiresAt)
			if err != nil || !first {
				t.Fatalf("expected first consume to win, got %v %v", first, err)
			}
			second, err := harness.registry.RevokeOnce(ctx, "refresh-jti", expiresAt)
			if err != nil || second {
				t.Fatalf("expected second consume to lose, got %v %v", second, err)
			}
			expired, err := harness.registry.RevokeOnce(ctx, "old-jti", expiresAt.Add(-2*time.Hour))
			if err != nil || expired {
				t.Fatalf("expected expired token to be unconsumable, got %v %v", expired, err)
			}
		})
	}
}

func TestRedisRevocationRegistryReportsOutage(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	defer func() { _ = client.Close() }()
	registry := NewRedisRevocationRegistry(client, nil)
	server.Close()

	if _, err := registry.IsRevoked(context.Background(), "jti"); !errors.Is(err, ErrRevocationUnavailable) {
		t.Fatalf("expected ErrRevocationUnavailable, got %v", err)
	}
	if err := registry.Revoke(context.Background(), "jti", time.Now().Add(time.Minute)); !errors.Is(err, ErrRevocationUnavailable) {
		t.Fatalf("expected ErrRevocationUnavailable, got %v", err)
	}
}

func TestNewRedisClient(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), " "); !errors.Is(err, errEmptyRedisURL) {
		t.Fatalf("expected empty url error, got %v", err)
	}
	if _, err := NewRedisClient(context.Background(), "http://not-redis"); err == nil {
		t.Fatalf("expected parse error for non-redis scheme")
	}
	server := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+server.Addr()+"/0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = client.Close()
}
