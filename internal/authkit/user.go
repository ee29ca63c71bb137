package authkit

import (
	"strings"
	"time"
)

// User is a credential store row.
type User struct {
	ID               int64
	Email            string
	PasswordHash     string
	RoleID           int64
	IsEmailConfirmed bool
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Role is a role row referenced by users.
type Role struct {
	ID   int64
	Name RoleName
}

// NewUser carries the fields required to insert a user.
type NewUser struct {
	Email            string
	PasswordHash     string
	RoleID           int64
	IsEmailConfirmed bool
	IsActive         bool
}

// Profile is the identity snapshot embedded in tokens and cookie sessions.
type Profile struct {
	ID               int64    `json:"id"`
	Email            string   `json:"email"`
	Role             RoleName `json:"role"`
	IsEmailConfirmed bool     `json:"is_email_confirmed"`
	IsActive         bool     `json:"is_active"`
}

// UserView is the user representation returned to callers.
type UserView struct {
	ID               int64     `json:"id"`
	Email            string    `json:"email"`
	Role             RoleName  `json:"role"`
	IsEmailConfirmed bool      `json:"is_email_confirmed"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Profile returns the snapshot form of the view.
func (view UserView) Profile() Profile {
	return Profile{
		ID:               view.ID,
		Email:            view.Email,
		Role:             view.Role,
		IsEmailConfirmed: view.IsEmailConfirmed,
		IsActive:         view.IsActive,
	}
}

func newUserView(user User, role RoleName) UserView {
	return UserView{
		ID:               user.ID,
		Email:            user.Email,
		Role:             role,
		IsEmailConfirmed: user.IsEmailConfirmed,
		IsActive:         user.IsActive,
		CreatedAt:        user.CreatedAt,
		UpdatedAt:        user.UpdatedAt,
	}
}

// UserFilter narrows user listings. Nil pointers leave a field unfiltered.
type UserFilter struct {
	Email            string
	Role             RoleName
	IsEmailConfirmed *bool
	IsActive         *bool
	Search           string
	Limit            int
	Offset           int
}

// AuditEntry is an append-only audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	UserID    *int64         `json:"user_id"`
	UserEmail string         `json:"email,omitempty"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditFilter narrows audit listings.
type AuditFilter struct {
	UserID   *int64
	Action   string
	Email    string
	Search   string
	DateFrom time.Time
	DateTo   time.Time
	Limit    int
	Offset   int
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// NormalizePage clamps limit and offset to sane bounds.
func NormalizePage(limit int, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
