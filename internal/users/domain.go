package users

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the user does not exist in the caller's agency.
	ErrNotFound = errors.New("users: not found")
	// ErrEmailTaken is returned when the email is already registered.
	ErrEmailTaken = errors.New("users: email already registered")
)

// User represents a staff account managed by an agency.
type User struct {
	ID          string     `json:"id"`
	AgencyID    string     `json:"agencyId"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone,omitempty"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"isActive"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// CreateInput captures the payload for a new staff account.
type CreateInput struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"omitempty,len=10,numeric"`
	Role     string `json:"role" validate:"required,oneof=agency teamlead telecaller"`
	Password string `json:"password" validate:"required,min=8"`
}

// ResetInput identifies the account whose password is reissued.
type ResetInput struct {
	UserID string `json:"userId" validate:"required"`
}

// Credentials is returned once after a password reset.
type Credentials struct {
	User              User   `json:"user"`
	TemporaryPassword string `json:"temporaryPassword"`
}

// MaskSecret keeps the first and last two characters of s.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	masked := make([]byte, len(s))
	for i := range masked {
		masked[i] = '*'
	}
	copy(masked, s[:2])
	copy(masked[len(s)-2:], s[len(s)-2:])
	return string(masked)
}
