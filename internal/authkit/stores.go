package authkit

import (
	"context"
	"time"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC timestamp.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// CredentialStore persists users and roles.
type CredentialStore interface {
	FindUserByEmail(ctx context.Context, email string) (User, error)
	FindUserByID(ctx context.Context, userID int64) (User, error)
	InsertUser(ctx context.Context, user NewUser) (User, error)
	UpdateUserRole(ctx context.Context, userID int64, roleID int64) error
	UpdateUserActive(ctx context.Context, userID int64, isActive bool) error
	DeleteUser(ctx context.Context, userID int64) error
	FindRoleByName(ctx context.Context, name RoleName) (Role, error)
	FindRoleByID(ctx context.Context, roleID int64) (Role, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]UserView, int64, error)
	// ListUserIDs returns every user id in ascending order.
	ListUserIDs(ctx context.Context) ([]int64, error)
}

// AuditLog is the append-only action log.
type AuditLog interface {
	Append(ctx context.Context, actorID *int64, action string, details map[string]any) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEntry, int64, error)
}

// RevocationRegistry is a time-bounded denylist of token identifiers.
type RevocationRegistry interface {
	// Revoke denies tokenID until expiresAt. Past expiries are a no-op.
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	// RevokeOnce denies tokenID and reports whether this call performed the revocation.
	RevokeOnce(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error)
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RateLimiter tracks per-scope quotas.
type RateLimiter interface {
	Consume(ctx context.Context, scopeKey string, policy RateLimitPolicy) (RateLimitDecision, error)
}

// Session is a server-side cookie session record.
type Session struct {
	UserID    int64
	Profile   Profile
	ExpiresAt time.Time
}

// SessionRegistry persists cookie sessions keyed by opaque session id.
type SessionRegistry interface {
	Create(ctx context.Context, sessionID string, profile Profile, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (Session, error)
	Destroy(ctx context.Context, sessionID string) error
	DestroyAllForUser(ctx context.Context, userID int64) (int64, error)
	OnlineStatuses(ctx context.Context, userIDs []int64) (map[int64]bool, error)
}

// PasswordHasher hashes and compares passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash string, password string) bool
}
