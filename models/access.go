package models

import "time"

// Role is a user's position in the access list
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// AccessEntry is one allow-listed user
type AccessEntry struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Role      Role      `json:"role" db:"role"`
	GrantedBy string    `json:"granted_by,omitempty" db:"granted_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the AccessEntry model
func (AccessEntry) TableName() string {
	return "access_list"
}

// IsAdmin reports whether the entry carries the admin role
func (a *AccessEntry) IsAdmin() bool {
	return a.Role == RoleAdmin
}
