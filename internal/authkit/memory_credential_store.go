package authkit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryCredentialStore is an in-memory CredentialStore intended for tests and dev.
type MemoryCredentialStore struct {
	mutex      sync.Mutex
	users      map[int64]*User
	byEmail    map[string]int64
	roles      map[int64]Role
	sequenceID int64
	clock      Clock
}

// NewMemoryCredentialStore creates a store seeded with KnownRoles.
func NewMemoryCredentialStore(clock Clock) *MemoryCredentialStore {
	if clock == nil {
		clock = SystemClock{}
	}
	roles := make(map[int64]Role, len(KnownRoles))
	for index, name := range KnownRoles {
		roleID := int64(index + 1)
		roles[roleID] = Role{ID: roleID, Name: name}
	}
	return &MemoryCredentialStore{
		users:   make(map[int64]*User),
		byEmail: make(map[string]int64),
		roles:   roles,
		clock:   clock,
	}
}

func (store *MemoryCredentialStore) FindUserByEmail(ctx context.Context, email string) (User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	userID, ok := store.byEmail[email]
	if !ok {
		return User{}, fmt.Errorf("credential_store.find_by_email.memory: %w", ErrUserNotFound)
	}
	return *store.users[userID], nil
}

func (store *MemoryCredentialStore) FindUserByID(ctx context.Context, userID int64) (User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.users[userID]
	if !ok {
		return User{}, fmt.Errorf("credential_store.find_by_id.memory: %w", ErrUserNotFound)
	}
	return *record, nil
}

func (store *MemoryCredentialStore) InsertUser(ctx context.Context, user NewUser) (User, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	if _, exists := store.byEmail[user.Email]; exists {
		return User{}, fmt.Errorf("credential_store.insert.memory: %w", ErrUserExists)
	}
	if _, known := store.roles[user.RoleID]; !known {
		return User{}, fmt.Errorf("credential_store.insert.memory: %w", ErrRoleNotFound)
	}
	store.sequenceID++
	now := store.clock.Now().UTC()
	record := &User{
		ID:               store.sequenceID,
		Email:            user.Email,
		PasswordHash:     user.PasswordHash,
		RoleID:           user.RoleID,
		IsEmailConfirmed: user.IsEmailConfirmed,
		IsActive:         user.IsActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	store.users[record.ID] = record
	store.byEmail[record.Email] = record.ID
	return *record, nil
}

func (store *MemoryCredentialStore) UpdateUserRole(ctx context.Context, userID int64, roleID int64) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.users[userID]
	if !ok {
		return fmt.Errorf("credential_store.update_role.memory: %w", ErrUserNotFound)
	}
	if _, known := store.roles[roleID]; !known {
		return fmt.Errorf("credential_store.update_role.memory: %w", ErrRoleNotFound)
	}
	record.RoleID = roleID
	record.UpdatedAt = store.clock.Now().UTC()
	return nil
}

func (store *MemoryCredentialStore) UpdateUserActive(ctx context.Context, userID int64, isActive bool) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.users[userID]
	if !ok {
		return fmt.Errorf("credential_store.update_active.memory: %w", ErrUserNotFound)
	}
	record.IsActive = isActive
	record.UpdatedAt = store.clock.Now().UTC()
	return nil
}

func (store *MemoryCredentialStore) DeleteUser(ctx context.Context, userID int64) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.users[userID]
	if !ok {
		return fmt.Errorf("credential_store.delete.memory: %w", ErrUserNotFound)
	}
	delete(store.byEmail, record.Email)
	delete(store.users, userID)
	return nil
}

func (store *MemoryCredentialStore) FindRoleByName(ctx context.Context, name RoleName) (Role, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	for _, role := range store.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return Role{}, fmt.Errorf("credential_store.find_role.memory: %w", ErrRoleNotFound)
}

func (store *MemoryCredentialStore) FindRoleByID(ctx context.Context, roleID int64) (Role, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	role, ok := store.roles[roleID]
	if !ok {
		return Role{}, fmt.Errorf("credential_store.find_role.memory: %w", ErrRoleNotFound)
	}
	return role, nil
}

func (store *MemoryCredentialStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	userIDs := make([]int64, 0, len(store.users))
	for userID := range store.users {
		userIDs = append(userIDs, userID)
	}
	sort.Slice(userIDs, func(left, right int) bool { return userIDs[left] < userIDs[right] })
	return userIDs, nil
}

func (store *MemoryCredentialStore) ListUsers(ctx context.Context, filter UserFilter) ([]UserView, int64, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	matched := make([]UserView, 0, len(store.users))
	for _, record := range store.users {
		role := store.roles[record.RoleID]
		if filter.Email != "" && record.Email != filter.Email {
			continue
		}
		if filter.Role != "" && role.Name != filter.Role {
			continue
		}
		if filter.IsEmailConfirmed != nil && record.IsEmailConfirmed != *filter.IsEmailConfirmed {
			continue
		}
		if filter.IsActive != nil && record.IsActive != *filter.IsActive {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(record.Email), search) {
			continue
		}
		matched = append(matched, newUserView(*record, role.Name))
	}
	sort.Slice(matched, func(left, right int) bool { return matched[left].ID > matched[right].ID })
	return paginate(matched, filter.Limit, filter.Offset), int64(len(matched)), nil
}

func paginate[T any](items []T, limit int, offset int) []T {
	limit, offset = NormalizePage(limit, offset)
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// MemoryAuditLog is an in-memory AuditLog intended for tests and dev.
type MemoryAuditLog struct {
	mutex      sync.Mutex
	entries    []AuditEntry
	users      CredentialStore
	sequenceID int64
	clock      Clock
}

// NewMemoryAuditLog creates an empty log. users resolves actor emails and may be nil.
func NewMemoryAuditLog(users CredentialStore, clock Clock) *MemoryAuditLog {
	if clock == nil {
		clock = SystemClock{}
	}
	return &MemoryAuditLog{users: users, clock: clock}
}

func (auditLog *MemoryAuditLog) Append(ctx context.Context, actorID *int64, action string, details map[string]any) error {
	encoded, encodeErr := json.Marshal(details)
	if encodeErr != nil {
		return fmt.Errorf("audit_log.append.memory: %w", encodeErr)
	}
	var normalized map[string]any
	if err := json.Unmarshal(encoded, &normalized); err != nil {
		return fmt.Errorf("audit_log.append.memory: %w", err)
	}
	var storedActor *int64
	if actorID != nil {
		actorCopy := *actorID
		storedActor = &actorCopy
	}
	auditLog.mutex.Lock()
	defer auditLog.mutex.Unlock()
	auditLog.sequenceID++
	auditLog.entries = append(auditLog.entries, AuditEntry{
		ID:        auditLog.sequenceID,
		UserID:    storedActor,
		Action:    action,
		Details:   normalized,
		CreatedAt: auditLog.clock.Now().UTC(),
	})
	return nil
}

func (auditLog *MemoryAuditLog) List(ctx context.Context, filter AuditFilter) ([]AuditEntry, int64, error) {
	auditLog.mutex.Lock()
	snapshot := make([]AuditEntry, len(auditLog.entries))
	copy(snapshot, auditLog.entries)
	auditLog.mutex.Unlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	matched := make([]AuditEntry, 0, len(snapshot))
	for index := len(snapshot) - 1; index >= 0; index-- {
		entry := snapshot[index]
		entry.UserEmail = auditLog.actorEmail(ctx, entry.UserID)
		if filter.UserID != nil && (entry.UserID == nil || *entry.UserID != *filter.UserID) {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if filter.Email != "" && !strings.EqualFold(entry.UserEmail, filter.Email) {
			continue
		}
		if !filter.DateFrom.IsZero() && entry.CreatedAt.Before(filter.DateFrom) {
			continue
		}
		if !filter.DateTo.IsZero() && entry.CreatedAt.After(filter.DateTo) {
			continue
		}
		if search != "" {
			encodedDetails, _ := json.Marshal(entry.Details)
			haystack := strings.ToLower(entry.Action + " " + string(encodedDetails) + " " + entry.UserEmail)
			if !strings.Contains(haystack, search) {
				continue
			}
		}
		matched = append(matched, entry)
	}
	return paginate(matched, filter.Limit, filter.Offset), int64(len(matched)), nil
}

func (auditLog *MemoryAuditLog) actorEmail(ctx context.Context, actorID *int64) string {
	if actorID == nil || auditLog.users == nil {
		return ""
	}
	user, err := auditLog.users.FindUserByID(ctx, *actorID)
	if err != nil {
		return ""
	}
	return user.Email
}
