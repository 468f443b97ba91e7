package users

import (
	"time"

	"github.com/parceltrack/parceltrack/internal/authz"
)

// User represents a platform account. Permissions is an optional explicit
// override; when set it fully replaces the role-derived permission set.
type User struct {
	ID           int64              `json:"id"`
	Name         string             `json:"name"`
	Email        string             `json:"email"`
	PasswordHash string             `json:"-"`
	Role         string             `json:"role"`
	Permissions  []authz.Permission `json:"permissions,omitempty"`
	Status       string             `json:"status"`
	LastLogin    *time.Time         `json:"last_login,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// Subject converts the record into the authorization subject evaluated by
// the guard.
func (u User) Subject() authz.Subject {
	return authz.Subject{
		ID:          u.ID,
		Email:       u.Email,
		Role:        u.Role,
		Permissions: u.Permissions,
		Status:      u.Status,
	}
}

// RegisterRequest is the payload for account registration.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role,omitempty" validate:"omitempty,oneof=owner driver"`
}

// UpdateProfileRequest mutates the caller's own profile.
type UpdateProfileRequest struct {
	Name *string `json:"name,omitempty" validate:"omitempty,min=2,max=200"`
}

// SetStatusRequest changes an account's status (admin operation).
type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive suspended"`
}

// SetRoleRequest reassigns an account's role (admin operation).
type SetRoleRequest struct {
	Role string `json:"role" validate:"required,min=2,max=100"`
}

// SetPermissionsRequest replaces an account's explicit permission override
// (admin operation). An empty list clears the override so role-derived
// permissions apply again.
type SetPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}
