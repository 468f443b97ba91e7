package roles

import (
	"time"

	"github.com/parceltrack/parceltrack/internal/authz"
)

// Role is a named bundle of catalog permissions assignable to users.
type Role struct {
	ID          int64              `json:"id"`
	Name        string             `json:"name"`
	DisplayName string             `json:"display_name"`
	Description string             `json:"description"`
	Permissions []authz.Permission `json:"permissions"`
	IsActive    bool               `json:"is_active"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// CreateRoleRequest is the payload for creating a role.
type CreateRoleRequest struct {
	Name        string   `json:"name" validate:"required,min=2,max=100"`
	Description string   `json:"description" validate:"required,max=500"`
	Permissions []string `json:"permissions" validate:"required,min=1"`
}

// UpdateRoleRequest is the payload for partially updating a role. Only
// supplied fields are mutated.
type UpdateRoleRequest struct {
	Description *string   `json:"description,omitempty" validate:"omitempty,max=500"`
	Permissions *[]string `json:"permissions,omitempty" validate:"omitempty,min=1"`
	IsActive    *bool     `json:"is_active,omitempty"`
}
