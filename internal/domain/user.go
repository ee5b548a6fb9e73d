package domain

import "time"

// UserStatus represents lifecycle states for an account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// User is the directory record backing an Identity. The auth core reads only
// the email, password hash and status; roles and profile data live elsewhere.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity returns the subject reference for the user.
func (u *User) Identity() Identity {
	return Identity{ID: u.ID}
}
