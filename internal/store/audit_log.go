package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tyemirov/dualauth/internal/authkit"
	"gorm.io/gorm"
)

// AuditLog implements authkit.AuditLog on the logs table.
type AuditLog struct {
	db          *gorm.DB
	driverLabel string
	clock       authkit.Clock
}

// NewAuditLog wraps database. A nil clock reads the wall clock.
func NewAuditLog(database *Database, clock authkit.Clock) *AuditLog {
	if clock == nil {
		clock = authkit.SystemClock{}
	}
	return &AuditLog{db: database.db, driverLabel: database.driverLabel, clock: clock}
}

type auditRow struct {
	ID        int64
	UserID    sql.NullInt64
	Action    string
	Details   string
	CreatedAt time.Time
	UserEmail sql.NullString
}

func (auditLog *AuditLog) Append(ctx context.Context, actorID *int64, action string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	encoded, encodeErr := json.Marshal(details)
	if encodeErr != nil {
		return fmt.Errorf("audit_log.append.%s: %w", auditLog.driverLabel, encodeErr)
	}
	record := auditRecord{
		UserID:    actorID,
		Action:    action,
		Details:   string(encoded),
		CreatedAt: auditLog.clock.Now().UTC(),
	}
	if err := auditLog.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("audit_log.append.%s: %w", auditLog.driverLabel, err)
	}
	return nil
}

func (auditLog *AuditLog) List(ctx context.Context, filter authkit.AuditFilter) ([]authkit.AuditEntry, int64, error) {
	limit, offset := authkit.NormalizePage(filter.Limit, filter.Offset)

	var total int64
	if err := auditLog.filteredEntries(ctx, filter).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit_log.list.%s: %w", auditLog.driverLabel, err)
	}
	var rows []auditRow
	err := auditLog.filteredEntries(ctx, filter).
		Select("logs.id, logs.user_id, logs.action, logs.details, logs.created_at, users.email AS user_email").
		Order("logs.created_at DESC").
		Order("logs.id DESC").
		Limit(limit).
		Offset(offset).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("audit_log.list.%s: %w", auditLog.driverLabel, err)
	}
	entries := make([]authkit.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entry := authkit.AuditEntry{
			ID:        row.ID,
			Action:    row.Action,
			UserEmail: row.UserEmail.String,
			CreatedAt: row.CreatedAt.UTC(),
		}
		if row.UserID.Valid {
			actorID := row.UserID.Int64
			entry.UserID = &actorID
		}
		if err := json.Unmarshal([]byte(row.Details), &entry.Details); err != nil {
			return nil, 0, fmt.Errorf("audit_log.decode.%s: %w", auditLog.driverLabel, err)
		}
		entries = append(entries, entry)
	}
	return entries, total, nil
}

func (auditLog *AuditLog) filteredEntries(ctx context.Context, filter authkit.AuditFilter) *gorm.DB {
	query := auditLog.db.WithContext(ctx).Table("logs").Joins("LEFT JOIN users ON users.id = logs.user_id")
	if filter.UserID != nil {
		query = query.Where("logs.user_id = ?", *filter.UserID)
	}
	if filter.Action != "" {
		query = query.Where("logs.action = ?", filter.Action)
	}
	if filter.Email != "" {
		query = query.Where("LOWER(users.email) = ?", strings.ToLower(filter.Email))
	}
	if !filter.DateFrom.IsZero() {
		query = query.Where("logs.created_at >= ?", filter.DateFrom.UTC())
	}
	if !filter.DateTo.IsZero() {
		query = query.Where("logs.created_at <= ?", filter.DateTo.UTC())
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		pattern := "%" + search + "%"
		query = query.Where("(LOWER(logs.action) LIKE ? OR LOWER(logs.details) LIKE ? OR LOWER(COALESCE(users.email, '')) LIKE ?)", pattern, pattern, pattern)
	}
	return query
}
