package store

import "time"

type roleRecord struct {
	ID   int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name string `gorm:"column:name;size:32;uniqueIndex;not null"`
}

func (roleRecord) TableName() string {
	return "roles"
}

type userRecord struct {
	ID               int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Email            string    `gorm:"column:email;size:255;uniqueIndex;not null"`
	PasswordHash     string    `gorm:"column:password_hash;size:255;not null"`
	RoleID           int64     `gorm:"column:role_id;index;not null"`
	IsEmailConfirmed bool      `gorm:"column:is_email_confirmed;not null"`
	IsActive         bool      `gorm:"column:is_active;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;not null"`
	UpdatedAt        time.Time `gorm:"column:updated_at;not null"`
}

func (userRecord) TableName() string {
	return "users"
}

type auditRecord struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    *int64    `gorm:"column:user_id;index"`
	Action    string    `gorm:"column:action;size:64;index;not null"`
	Details   string    `gorm:"column:details;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;index;not null"`
}

func (auditRecord) TableName() string {
	return "logs"
}

type sessionRecord struct {
	SIDHash   string    `gorm:"column:sid_hash;primaryKey;size:64"`
	UserID    int64     `gorm:"column:user_id;index;not null"`
	Profile   string    `gorm:"column:profile;type:text;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;index;not null"`
}

func (sessionRecord) TableName() string {
	return "sessions"
}
