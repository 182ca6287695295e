// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is one of the two fixed dashboard roles.
type Role string

const (
	RoleManufacturer Role = "manufacturer"
	RoleVendor       Role = "vendor"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleManufacturer || r == RoleVendor
}

// User represents an account stored in the active backend. The password is never stored in plaintext.
type User struct {
	ID           uuid.UUID // immutable, generated at creation
	Username     string    // unique, case-sensitive
	PasswordHash string    // bcrypt(password)
	Role         Role
	DisplayName  string // optional
	CreatedAt    time.Time
}

// Identity returns the public identity fields of u.
func (u User) Identity() Identity {
	return Identity{
		ID:          u.ID.String(),
		Username:    u.Username,
		Role:        u.Role,
		DisplayName: u.DisplayName,
	}
}

// Identity is what the dashboard is allowed to see about an authenticated user.
type Identity struct {
	ID          string
	Username    string
	Role        Role
	DisplayName string // empty when restored from a token
}

// Tokens collects an issued access token and its expiry.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}
