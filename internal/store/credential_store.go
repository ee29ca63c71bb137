package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tyemirov/dualauth/internal/authkit"
	"gorm.io/gorm"
)

// CredentialStore implements authkit.CredentialStore on the users and roles tables.
type CredentialStore struct {
	db          *gorm.DB
	driverLabel string
	clock       authkit.Clock
}

// NewCredentialStore wraps database. A nil clock reads the wall clock.
func NewCredentialStore(database *Database, clock authkit.Clock) *CredentialStore {
	if clock == nil {
		clock = authkit.SystemClock{}
	}
	return &CredentialStore{db: database.db, driverLabel: database.driverLabel, clock: clock}
}

type userRow struct {
	ID               int64
	Email            string
	PasswordHash     string
	RoleID           int64
	IsEmailConfirmed bool
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	RoleName         string
}

func (store *CredentialStore) FindUserByEmail(ctx context.Context, email string) (authkit.User, error) {
	var record userRecord
	err := store.db.WithContext(ctx).Where("email = ?", email).Take(&record).Error
	if err != nil {
		return authkit.User{}, store.lookupError("find_by_email", err)
	}
	return record.toUser(), nil
}

func (store *CredentialStore) FindUserByID(ctx context.Context, userID int64) (authkit.User, error) {
	var record userRecord
	err := store.db.WithContext(ctx).Where("id = ?", userID).Take(&record).Error
	if err != nil {
		return authkit.User{}, store.lookupError("find_by_id", err)
	}
	return record.toUser(), nil
}

func (store *CredentialStore) InsertUser(ctx context.Context, user authkit.NewUser) (authkit.User, error) {
	if _, roleErr := store.FindRoleByID(ctx, user.RoleID); roleErr != nil {
		return authkit.User{}, roleErr
	}
	now := store.clock.Now().UTC()
	record := userRecord{
		Email:            user.Email,
		PasswordHash:     user.PasswordHash,
		RoleID:           user.RoleID,
		IsEmailConfirmed: user.IsEmailConfirmed,
		IsActive:         user.IsActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		if isDuplicateKey(err) {
			return authkit.User{}, fmt.Errorf("credential_store.insert.%s: %w", store.driverLabel, authkit.ErrUserExists)
		}
		return authkit.User{}, fmt.Errorf("credential_store.insert.%s: %w", store.driverLabel, err)
	}
	return record.toUser(), nil
}

func (store *CredentialStore) UpdateUserRole(ctx context.Context, userID int64, roleID int64) error {
	if _, roleErr := store.FindRoleByID(ctx, roleID); roleErr != nil {
		return roleErr
	}
	return store.updateUser(ctx, "update_role", userID, map[string]any{"role_id": roleID})
}

func (store *CredentialStore) UpdateUserActive(ctx context.Context, userID int64, isActive bool) error {
	return store.updateUser(ctx, "update_active", userID, map[string]any{"is_active": isActive})
}

func (store *CredentialStore) updateUser(ctx context.Context, operation string, userID int64, changes map[string]any) error {
	changes["updated_at"] = store.clock.Now().UTC()
	result := store.db.WithContext(ctx).Model(&userRecord{}).Where("id = ?", userID).Updates(changes)
	if result.Error != nil {
		return fmt.Errorf("credential_store.%s.%s: %w", operation, store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("credential_store.%s.%s: %w", operation, store.driverLabel, authkit.ErrUserNotFound)
	}
	return nil
}

func (store *CredentialStore) DeleteUser(ctx context.Context, userID int64) error {
	result := store.db.WithContext(ctx).Where("id = ?", userID).Delete(&userRecord{})
	if result.Error != nil {
		return fmt.Errorf("credential_store.delete.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("credential_store.delete.%s: %w", store.driverLabel, authkit.ErrUserNotFound)
	}
	return nil
}

func (store *CredentialStore) FindRoleByName(ctx context.Context, name authkit.RoleName) (authkit.Role, error) {
	var record roleRecord
	err := store.db.WithContext(ctx).Where("name = ?", string(name)).Take(&record).Error
	if err != nil {
		return authkit.Role{}, store.roleError(err)
	}
	return record.toRole(), nil
}

func (store *CredentialStore) FindRoleByID(ctx context.Context, roleID int64) (authkit.Role, error) {
	var record roleRecord
	err := store.db.WithContext(ctx).Where("id = ?", roleID).Take(&record).Error
	if err != nil {
		return authkit.Role{}, store.roleError(err)
	}
	return record.toRole(), nil
}

func (store *CredentialStore) ListUsers(ctx context.Context, filter authkit.UserFilter) ([]authkit.UserView, int64, error) {
	limit, offset := authkit.NormalizePage(filter.Limit, filter.Offset)

	var total int64
	if err := store.filteredUsers(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("credential_store.list.%s: %w", store.driverLabel, err)
	}
	var rows []userRow
	err := store.filteredUsers(ctx, filter).
		Select("users.id, users.email, users.password_hash, users.role_id, users.is_email_confirmed, users.is_active, users.created_at, users.updated_at, roles.name AS role_name").
		Order("users.id DESC").
		Limit(limit).
		Offset(offset).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("credential_store.list.%s: %w", store.driverLabel, err)
	}
	views := make([]authkit.UserView, 0, len(rows))
	for _, row := range rows {
		views = append(views, authkit.UserView{
			ID:               row.ID,
			Email:            row.Email,
			Role:             authkit.RoleName(row.RoleName),
			IsEmailConfirmed: row.IsEmailConfirmed,
			IsActive:         row.IsActive,
			CreatedAt:        row.CreatedAt.UTC(),
			UpdatedAt:        row.UpdatedAt.UTC(),
		})
	}
	return views, total, nil
}

func (store *CredentialStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	var userIDs []int64
	if err := store.db.WithContext(ctx).Model(&userRecord{}).Order("id").Pluck("id", &userIDs).Error; err != nil {
		return nil, fmt.Errorf("credential_store.list_ids.%s: %w", store.driverLabel, err)
	}
	return userIDs, nil
}

func (store *CredentialStore) filteredUsers(ctx context.Context, filter authkit.UserFilter) *gorm.DB {
	query := store.db.WithContext(ctx).Table("users").Joins("JOIN roles ON roles.id = users.role_id")
	if filter.Email != "" {
		query = query.Where("users.email = ?", filter.Email)
	}
	if filter.Role != "" {
		query = query.Where("roles.name = ?", string(filter.Role))
	}
	if filter.IsEmailConfirmed != nil {
		query = query.Where("users.is_email_confirmed = ?", *filter.IsEmailConfirmed)
	}
	if filter.IsActive != nil {
		query = query.Where("users.is_active = ?", *filter.IsActive)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		query = query.Where("LOWER(users.email) LIKE ?", "%"+search+"%")
	}
	return query
}

func (store *CredentialStore) lookupError(operation string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("credential_store.%s.%s: %w", operation, store.driverLabel, authkit.ErrUserNotFound)
	}
	return fmt.Errorf("credential_store.%s.%s: %w", operation, store.driverLabel, err)
}

func (store *CredentialStore) roleError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("credential_store.find_role.%s: %w", store.driverLabel, authkit.ErrRoleNotFound)
	}
	return fmt.Errorf("credential_store.find_role.%s: %w", store.driverLabel, err)
}

func (record userRecord) toUser() authkit.User {
	return authkit.User{
		ID:               record.ID,
		Email:            record.Email,
		PasswordHash:     record.PasswordHash,
		RoleID:           record.RoleID,
		IsEmailConfirmed: record.IsEmailConfirmed,
		IsActive:         record.IsActive,
		CreatedAt:        record.CreatedAt.UTC(),
		UpdatedAt:        record.UpdatedAt.UTC(),
	}
}

func (record roleRecord) toRole() authkit.Role {
	return authkit.Role{ID: record.ID, Name: authkit.RoleName(record.Name)}
}
