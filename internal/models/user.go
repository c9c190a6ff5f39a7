package models

import "time"

// User is a registered account. PasswordHash never leaves the service.
type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Bio          *string   `json:"bio"`
	CreatedAt    time.Time `json:"created_at"`
	IsActive     bool      `json:"is_active"`
}

// UserPatch is the self-service profile update. Absent fields are left untouched.
type UserPatch struct {
	Username Optional[string] `json:"username"`
	Email    Optional[string] `json:"email"`
	Bio      Optional[string] `json:"bio"`
}
