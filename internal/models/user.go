package models

import "time"

// Roles. Admins register assets and manage users, technicians record
// sanitize/recycle transitions, viewers are read-only.
const (
	RoleAdmin      = "admin"
	RoleTechnician = "technician"
	RoleViewer     = "viewer"
)

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleTechnician || role == RoleViewer
}

type User struct {
	ID            int       `json:"id"`
	Username      string    `json:"username"`
	PasswordHash  string    `json:"-"`
	Role          string    `json:"role"`
	WalletAddress string    `json:"wallet_address"`
	CreatedAt     time.Time `json:"created_at"`
}

// Actor is the authenticated identity attributed to a ledger operation.
// Address is the wallet address recorded on transitions.
type Actor struct {
	Address  string `json:"address"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// IsAdmin reports whether the actor holds the administrative role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// CanTransition reports whether the actor may record sanitize/recycle
// transitions (technicians and admins).
func (a Actor) CanTransition() bool {
	return a.Role == RoleTechnician || a.Role == RoleAdmin
}
