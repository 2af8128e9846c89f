// Package model defines the data structures used throughout the application.
package model

import "time"

// Role controls what an account may do outside the normal customer API.
// Only the maintenance tooling creates admins; registration always yields RoleUser.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User represents a registered account. Every customer and report is owned by
// exactly one User.
//
// WHY PasswordHash HAS json:"-"?
// The struct is handed to handlers that encode it straight to JSON. The tag
// guarantees the bcrypt hash can never leak into a response body, even by accident.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Username     string    `json:"username"  db:"username"` // unique across all users
	PasswordHash string    `json:"-"         db:"password_hash"`
	Name         string    `json:"name"      db:"name"` // display name, may be empty
	Role         Role      `json:"role"      db:"role"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
