package authkit

import "strings"

// RoleName is the closed set of roles a user can hold.
type RoleName string

const (
	RoleUser  RoleName = "user"
	RoleAdmin RoleName = "admin"
)

// KnownRoles lists every role seeded into the credential store.
var KnownRoles = []RoleName{RoleUser, RoleAdmin}

// ParseRoleName resolves a loosely typed role string. Empty input yields RoleUser.
func ParseRoleName(value string) (RoleName, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return RoleUser, nil
	}
	for _, known := range KnownRoles {
		if string(known) == normalized {
			return known, nil
		}
	}
	return "", NewValidationError("Role not found", ErrRoleNotFound)
}

// String implements fmt.Stringer.
func (role RoleName) String() string {
	return string(role)
}
