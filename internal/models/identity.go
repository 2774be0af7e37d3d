package models

import "strings"

// Role distinguishes shoppers from the admin operator.
type Role string

// Known roles.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole maps a claim value onto a Role. Anything that is not admin is a user.
func ParseRole(value string) Role {
	if strings.EqualFold(strings.TrimSpace(value), string(RoleAdmin)) {
		return RoleAdmin
	}
	return RoleUser
}

// Identity is the authenticated principal behind a request or realtime connection.
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// IsZero reports whether the identity carries no user.
func (i Identity) IsZero() bool {
	return strings.TrimSpace(i.UserID) == ""
}

// IsAdmin reports whether the identity acts as the admin operator.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
