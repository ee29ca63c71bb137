package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tyemirov/dualauth/internal/authkit"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errNonPositiveSessionTTL = errors.New("session_registry.non_positive_ttl")

// SessionRegistry implements authkit.SessionRegistry on the sessions table.
type SessionRegistry struct {
	db          *gorm.DB
	driverLabel string
	clock       authkit.Clock
}

// NewSessionRegistry wraps database. A nil clock reads the wall clock.
func NewSessionRegistry(database *Database, clock authkit.Clock) *SessionRegistry {
	if clock == nil {
		clock = authkit.SystemClock{}
	}
	return &SessionRegistry{db: database.db, driverLabel: database.driverLabel, clock: clock}
}

func (registry *SessionRegistry) Create(ctx context.Context, sessionID string, profile authkit.Profile, ttl time.Duration) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session_registry.create.%s: %w", registry.driverLabel, authkit.ErrSessionNotFound)
	}
	if ttl <= 0 {
		return fmt.Errorf("session_registry.create.%s: %w", registry.driverLabel, errNonPositiveSessionTTL)
	}
	encoded, encodeErr := json.Marshal(profile)
	if encodeErr != nil {
		return fmt.Errorf("session_registry.create.%s: %w", registry.driverLabel, encodeErr)
	}
	record := sessionRecord{
		SIDHash:   authkit.HashSessionID(sessionID),
		UserID:    profile.ID,
		Profile:   string(encoded),
		ExpiresAt: registry.clock.Now().UTC().Add(ttl),
	}
	err := registry.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "sid_hash"}}, UpdateAll: true}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("session_registry.create.%s: %w", registry.driverLabel, err)
	}
	return nil
}

func (registry *SessionRegistry) Get(ctx context.Context, sessionID string) (authkit.Session, error) {
	var record sessionRecord
	err := registry.db.WithContext(ctx).
		Where("sid_hash = ? AND expires_at > ?", authkit.HashSessionID(sessionID), registry.clock.Now().UTC()).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return authkit.Session{}, fmt.Errorf("session_registry.get.%s: %w", registry.driverLabel, authkit.ErrSessionNotFound)
		}
		return authkit.Session{}, fmt.Errorf("session_registry.get.%s: %w", registry.driverLabel, err)
	}
	var profile authkit.Profile
	if err := json.Unmarshal([]byte(record.Profile), &profile); err != nil {
		return authkit.Session{}, fmt.Errorf("session_registry.decode.%s: %w", registry.driverLabel, err)
	}
	return authkit.Session{UserID: record.UserID, Profile: profile, ExpiresAt: record.ExpiresAt.UTC()}, nil
}

func (registry *SessionRegistry) Destroy(ctx context.Context, sessionID string) error {
	err := registry.db.WithContext(ctx).Where("sid_hash = ?", authkit.HashSessionID(sessionID)).Delete(&sessionRecord{}).Error
	if err != nil {
		return fmt.Errorf("session_registry.destroy.%s: %w", registry.driverLabel, err)
	}
	return nil
}

func (registry *SessionRegistry) DestroyAllForUser(ctx context.Context, userID int64) (int64, error) {
	now := registry.clock.Now().UTC()
	db := registry.db.WithContext(ctx)
	if err := db.Where("user_id = ? AND expires_at <= ?", userID, now).Delete(&sessionRecord{}).Error; err != nil {
		return 0, fmt.Errorf("session_registry.destroy_all.%s: %w", registry.driverLabel, err)
	}
	// Only live sessions count as destroyed.
	result := db.Where("user_id = ?", userID).Delete(&sessionRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("session_registry.destroy_all.%s: %w", registry.driverLabel, result.Error)
	}
	return result.RowsAffected, nil
}

func (registry *SessionRegistry) OnlineStatuses(ctx context.Context, userIDs []int64) (map[int64]bool, error) {
	statuses := make(map[int64]bool, len(userIDs))
	if len(userIDs) == 0 {
		return statuses, nil
	}
	var onlineIDs []int64
	err := registry.db.WithContext(ctx).Model(&sessionRecord{}).
		Distinct("user_id").
		Where("user_id IN ? AND expires_at > ?", userIDs, registry.clock.Now().UTC()).
		Pluck("user_id", &onlineIDs).Error
	if err != nil {
		return nil, fmt.Errorf("session_registry.online.%s: %w", registry.driverLabel, err)
	}
	for _, userID := range userIDs {
		statuses[userID] = false
	}
	for _, userID := range onlineIDs {
		statuses[userID] = true
	}
	return statuses, nil
}

// PurgeExpired deletes sessions past their expiry and reports how many were removed.
func (registry *SessionRegistry) PurgeExpired(ctx context.Context) (int64, error) {
	result := registry.db.WithContext(ctx).Where("expires_at <= ?", registry.clock.Now().UTC()).Delete(&sessionRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("session_registry.purge.%s: %w", registry.driverLabel, result.Error)
	}
	return result.RowsAffected, nil
}
