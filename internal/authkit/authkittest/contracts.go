// Package authkittest holds behaviour suites shared by every implementation of the authkit collaborator interfaces.
package authkittest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyemirov/dualauth/internal/authkit"
)

// ManualClock is a settable Clock.
type ManualClock struct {
	Current time.Time
}

// Now returns the current manual time.
func (clock *ManualClock) Now() time.Time {
	return clock.Current
}

// Advance moves the clock forward.
func (clock *ManualClock) Advance(duration time.Duration) {
	clock.Current = clock.Current.Add(duration)
}

// NewManualClock starts a clock at a fixed reference instant.
func NewManualClock() *ManualClock {
	return &ManualClock{Current: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)}
}

// RunSessionRegistryContract exercises create/get/destroy/bulk-destroy/online semantics.
func RunSessionRegistryContract(t *testing.T, build func(t *testing.T, clock authkit.Clock) authkit.SessionRegistry) {
	t.Helper()
	ctx := context.Background()

	t.Run("create and get snapshot", func(t *testing.T) {
		clock := NewManualClock()
		registry := build(t, clock)
		profile := authkit.Profile{ID: 11, Email: "snap@example.com", Role: authkit.RoleAdmin, IsActive: true}

		require.NoError(t, registry.Create(ctx, "session-one", profile, time.Hour))
		session, err := registry.Get(ctx, "session-one")
		require.NoError(t, err)
		assert.Equal(t, int64(11), session.UserID)
		assert.Equal(t, profile, session.Profile)
		assert.WithinDuration(t, clock.Now().Add(time.Hour), session.ExpiresAt, time.Second)

		_, err = registry.Get(ctx, "unknown-session")
		assert.ErrorIs(t, err, authkit.ErrSessionNotFound)
	})

	t.Run("expired sessions are invisible", func(t *testing.T) {
		clock := NewManualClock()
		registry := build(t, clock)
		require.NoError(t, registry.Create(ctx, "short", authkit.Profile{ID: 5, Email: "e@example.com", Role: authkit.RoleUser}, time.Minute))

		clock.Advance(2 * time.Minute)
		_, err := registry.Get(ctx, "short")
		assert.ErrorIs(t, err, authkit.ErrSessionNotFound)

		statuses, err := registry.OnlineStatuses(ctx, []int64{5})
		require.NoError(t, err)
		assert.False(t, statuses[5])
	})

	t.Run("destroy is idempotent", func(t *testing.T) {
		registry := build(t, NewManualClock())
		require.NoError(t, registry.Create(ctx, "bye", authkit.Profile{ID: 2, Email: "b@example.com", Role: authkit.RoleUser}, time.Hour))
		require.NoError(t, registry.Destroy(ctx, "bye"))
		require.NoError(t, registry.Destroy(ctx, "bye"))
		_, err := registry.Get(ctx, "bye")
		assert.ErrorIs(t, err, authkit.ErrSessionNotFound)
	})

	t.Run("destroy all for user and online statuses", func(t *testing.T) {
		registry := build(t, NewManualClock())
		target := authkit.Profile{ID: 21, Email: "target@example.com", Role: authkit.RoleUser}
		bystander := authkit.Profile{ID: 22, Email: "other@example.com", Role: authkit.RoleUser}
		require.NoError(t, registry.Create(ctx, "t-1", target, time.Hour))
		require.NoError(t, registry.Create(ctx, "t-2", target, time.Hour))
		require.NoError(t, registry.Create(ctx, "o-1", bystander, time.Hour))

		statuses, err := registry.OnlineStatuses(ctx, []int64{21, 22, 23})
		require.NoError(t, err)
		assert.Equal(t, map[int64]bool{21: true, 22: true, 23: false}, statuses)

		destroyed, err := registry.DestroyAllForUser(ctx, 21)
		require.NoError(t, err)
		assert.Equal(t, int64(2), destroyed)

		_, err = registry.Get(ctx, "t-1")
		assert.ErrorIs(t, err, authkit.ErrSessionNotFound)
		_, err = registry.Get(ctx, "o-1")
		assert.NoError(t, err)

		destroyed, err = registry.DestroyAllForUser(ctx, 21)
		require.NoError(t, err)
		assert.Zero(t, destroyed)

		statuses, err = registry.OnlineStatuses(ctx, []int64{21, 22})
		require.NoError(t, err)
		assert.Equal(t, map[int64]bool{21: false, 22: true}, statuses)
	})

	t.Run("destroy all counts only live sessions", func(t *testing.T) {
		clock := NewManualClock()
		registry := build(t, clock)
		target := authkit.Profile{ID: 31, Email: "stale@example.com", Role: authkit.RoleUser}
		require.NoError(t, registry.Create(ctx, "stale", target, time.Minute))
		clock.Advance(2 * time.Minute)
		require.NoError(t, registry.Create(ctx, "live", target, time.Hour))

		destroyed, err := registry.DestroyAllForUser(ctx, 31)
		require.NoError(t, err)
		assert.Equal(t, int64(1), destroyed)

		destroyed, err = registry.DestroyAllForUser(ctx, 31)
		require.NoError(t, err)
		assert.Zero(t, destroyed)
	})
}

// RunCredentialStoreContract exercises user and role persistence.
func RunCredentialStoreContract(t *testing.T, build func(t *testing.T) authkit.CredentialStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("roles are seeded", func(t *testing.T) {
		store := build(t)
		for _, name := range authkit.KnownRoles {
			role, err := store.FindRoleByName(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, name, role.Name)
			byID, err := store.FindRoleByID(ctx, role.ID)
			require.NoError(t, err)
			assert.Equal(t, role, byID)
		}
		_, err := store.FindRoleByName(ctx, "superuser")
		assert.ErrorIs(t, err, authkit.ErrRoleNotFound)
		_, err = store.FindRoleByID(ctx, 9999)
		assert.ErrorIs(t, err, authkit.ErrRoleNotFound)
	})

	t.Run("insert find update delete", func(t *testing.T) {
		store := build(t)
		userRole, err := store.FindRoleByName(ctx, authkit.RoleUser)
		require.NoError(t, err)
		adminRole, err := store.FindRoleByName(ctx, authkit.RoleAdmin)
		require.NoError(t, err)

		inserted, err := store.InsertUser(ctx, authkit.NewUser{
			Email:            "crud@example.com",
			PasswordHash:     "hash",
			RoleID:           userRole.ID,
			IsEmailConfirmed: true,
			IsActive:         true,
		})
		require.NoError(t, err)
		assert.Positive(t, inserted.ID)
		assert.False(t, inserted.CreatedAt.IsZero())

		_, err = store.InsertUser(ctx, authkit.NewUser{Email: "crud@example.com", RoleID: userRole.ID})
		assert.ErrorIs(t, err, authkit.ErrUserExists)

		byEmail, err := store.FindUserByEmail(ctx, "crud@example.com")
		require.NoError(t, err)
		assert.Equal(t, inserted.ID, byEmail.ID)
		assert.Equal(t, "hash", byEmail.PasswordHash)

		require.NoError(t, store.UpdateUserRole(ctx, inserted.ID, adminRole.ID))
		require.NoError(t, store.UpdateUserActive(ctx, inserted.ID, false))
		byID, err := store.FindUserByID(ctx, inserted.ID)
		require.NoError(t, err)
		assert.Equal(t, adminRole.ID, byID.RoleID)
		assert.False(t, byID.IsActive)

		require.NoError(t, store.DeleteUser(ctx, inserted.ID))
		_, err = store.FindUserByID(ctx, inserted.ID)
		assert.ErrorIs(t, err, authkit.ErrUserNotFound)
		_, err = store.FindUserByEmail(ctx, "crud@example.com")
		assert.ErrorIs(t, err, authkit.ErrUserNotFound)
		assert.ErrorIs(t, store.DeleteUser(ctx, inserted.ID), authkit.ErrUserNotFound)
		assert.ErrorIs(t, store.UpdateUserActive(ctx, inserted.ID, true), authkit.ErrUserNotFound)
		assert.ErrorIs(t, store.UpdateUserRole(ctx, inserted.ID, userRole.ID), authkit.ErrUserNotFound)

		first, err := store.InsertUser(ctx, authkit.NewUser{Email: "ids-1@example.com", RoleID: userRole.ID, IsActive: true})
		require.NoError(t, err)
		second, err := store.InsertUser(ctx, authkit.NewUser{Email: "ids-2@example.com", RoleID: userRole.ID, IsActive: true})
		require.NoError(t, err)
		userIDs, err := store.ListUserIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int64{first.ID, second.ID}, userIDs)
	})

	t.Run("list users with filters", func(t *testing.T) {
		store := build(t)
		userRole, _ := store.FindRoleByName(ctx, authkit.RoleUser)
		adminRole, _ := store.FindRoleByName(ctx, authkit.RoleAdmin)
		fixtures := []authkit.NewUser{
			{Email: "alice@example.com", RoleID: adminRole.ID, IsEmailConfirmed: true, IsActive: true},
			{Email: "bob@example.com", RoleID: userRole.ID, IsEmailConfirmed: true, IsActive: false},
			{Email: "carol@sample.org", RoleID: userRole.ID, IsEmailConfirmed: false, IsActive: true},
		}
		for _, fixture := range fixtures {
			_, err := store.InsertUser(ctx, fixture)
			require.NoError(t, err)
		}

		all, total, err := store.ListUsers(ctx, authkit.UserFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, all, 3)
		assert.Equal(t, "carol@sample.org", all[0].Email, "newest first")
		assert.Equal(t, authkit.RoleAdmin, all[2].Role)

		admins, total, err := store.ListUsers(ctx, authkit.UserFilter{Role: authkit.RoleAdmin})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, "alice@example.com", admins[0].Email)

		inactive := false
		deactivated, _, err := store.ListUsers(ctx, authkit.UserFilter{IsActive: &inactive})
		require.NoError(t, err)
		require.Len(t, deactivated, 1)
		assert.Equal(t, "bob@example.com", deactivated[0].Email)

		unconfirmed := false
		pending, _, err := store.ListUsers(ctx, authkit.UserFilter{IsEmailConfirmed: &unconfirmed})
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "carol@sample.org", pending[0].Email)

		searched, total, err := store.ListUsers(ctx, authkit.UserFilter{Search: "EXAMPLE"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, searched, 2)

		exact, _, err := store.ListUsers(ctx, authkit.UserFilter{Email: "bob@example.com"})
		require.NoError(t, err)
		require.Len(t, exact, 1)

		paged, total, err := store.ListUsers(ctx, authkit.UserFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, paged, 1)
		assert.Equal(t, "bob@example.com", paged[0].Email)
	})
}

// RunAuditLogContract exercises append and filtered listing.
func RunAuditLogContract(t *testing.T, build func(t *testing.T) (authkit.AuditLog, authkit.CredentialStore)) {
	t.Helper()
	ctx := context.Background()

	auditLog, users := build(t)
	userRole, err := users.FindRoleByName(ctx, authkit.RoleUser)
	require.NoError(t, err)
	actor, err := users.InsertUser(ctx, authkit.NewUser{Email: "actor@example.com", RoleID: userRole.ID, IsActive: true})
	require.NoError(t, err)

	require.NoError(t, auditLog.Append(ctx, &actor.ID, "login", map[string]any{"email": "actor@example.com", "method": "jwt"}))
	require.NoError(t, auditLog.Append(ctx, nil, "error", map[string]any{"action": "login", "error": "Invalid email or password"}))
	require.NoError(t, auditLog.Append(ctx, &actor.ID, "jwt_logout", map[string]any{"method": "jwt", "hasRefreshToken": true}))

	entries, total, err := auditLog.List(ctx, authkit.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, entries, 3)
	assert.Equal(t, "jwt_logout", entries[0].Action, "newest first")
	assert.Equal(t, true, entries[0].Details["hasRefreshToken"])
	assert.Nil(t, entries[1].UserID)
	assert.Equal(t, "actor@example.com", entries[2].UserEmail)

	mine, total, err := auditLog.List(ctx, authkit.AuditFilter{UserID: &actor.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, mine, 2)

	failures, _, err := auditLog.List(ctx, authkit.AuditFilter{Action: "error"})
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "login", failures[0].Details["action"])

	byEmail, _, err := auditLog.List(ctx, authkit.AuditFilter{Email: "actor@example.com"})
	require.NoError(t, err)
	assert.Len(t, byEmail, 2)

	searched, _, err := auditLog.List(ctx, authkit.AuditFilter{Search: "invalid email"})
	require.NoError(t, err)
	require.Len(t, searched, 1)

	future, _, err := auditLog.List(ctx, authkit.AuditFilter{DateFrom: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, future)

	past, _, err := auditLog.List(ctx, authkit.AuditFilter{DateTo: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, past)

	paged, total, err := auditLog.List(ctx, authkit.AuditFilter{Limit: 1, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, paged, 1)
	assert.Equal(t, "login", paged[0].Action)
}
