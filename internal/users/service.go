package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/parceltrack/parceltrack/internal/authz"
	"github.com/parceltrack/parceltrack/internal/platform/db"
	"github.com/parceltrack/parceltrack/internal/platform/httpx"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	Create(ctx context.Context, user User) (User, error)
	GetByID(ctx context.Context, id int64) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	List(ctx context.Context) ([]User, error)
	UpdateName(ctx context.Context, id int64, name string) (User, error)
	SetStatus(ctx context.Context, id int64, status string) (User, error)
	SetRole(ctx context.Context, id int64, role string) (User, error)
	SetPermissions(ctx context.Context, id int64, perms []authz.Permission) (User, error)
	TouchLastLogin(ctx context.Context, id int64) error
	CountByRole(ctx context.Context, role string) (int64, error)
}

// Service handles user account business logic.
type Service struct {
	repo   RepositoryPort
	roles  authz.RoleLookup
	logger *slog.Logger
}

// NewService builds Service instance. roles validates role assignments
// against the registry and may be nil in tests.
func NewService(repo RepositoryPort, roles authz.RoleLookup, logger *slog.Logger) *Service {
	return &Service{repo: repo, roles: roles, logger: logger}
}

// Register creates a new account with a bcrypt password hash. Accounts
// default to the owner role and active status; drivers self-select at
// registration, admin accounts are only created by role reassignment.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	role := req.Role
	if role == "" {
		role = authz.RoleOwner
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Status:       authz.StatusActive,
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, fmt.Errorf("%w: email already registered", httpx.ErrConflict)
		}
		return User{}, err
	}
	return user, nil
}

// Authenticate validates email/password credentials and stamps last_login.
// Credential failures are indistinguishable between unknown email and wrong
// password.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return User{}, fmt.Errorf("%w: invalid credentials", httpx.ErrUnauthorized)
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, fmt.Errorf("%w: invalid credentials", httpx.ErrUnauthorized)
	}
	if err := s.repo.TouchLastLogin(ctx, user.ID); err != nil && s.logger != nil {
		s.logger.Warn("stamp last login", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
	return user, nil
}

// GetUser fetches an account by ID.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetByID(ctx, id)
}

// ListUsers returns all accounts.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// UpdateProfile mutates the supplied profile fields.
func (s *Service) UpdateProfile(ctx context.Context, id int64, req UpdateProfileRequest) (User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if req.Name == nil {
		return user, nil
	}
	return s.repo.UpdateName(ctx, id, strings.TrimSpace(*req.Name))
}

// SetStatus changes the account status.
func (s *Service) SetStatus(ctx context.Context, id int64, status string) (User, error) {
	switch status {
	case authz.StatusActive, authz.StatusInactive, authz.StatusSuspended:
	default:
		return User{}, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, status)
	}
	return s.repo.SetStatus(ctx, id, status)
}

// SetRole reassigns the account role. The role must exist in the registry
// or in the built-in defaults table; assigning a dangling role name would
// leave the account with no resolvable permissions.
func (s *Service) SetRole(ctx context.Context, id int64, role string) (User, error) {
	role = strings.ToLower(strings.TrimSpace(role))
	known := false
	if s.roles != nil {
		_, ok, err := s.roles.PermissionsByRole(ctx, role)
		if err != nil {
			return User{}, err
		}
		known = ok
	}
	if !known {
		if _, ok := authz.DefaultPermissions(role); !ok {
			return User{}, fmt.Errorf("%w: unknown role %q", httpx.ErrValidation, role)
		}
	}
	return s.repo.SetRole(ctx, id, role)
}

// SetPermissions replaces the explicit permission override. An empty list
// clears the override.
func (s *Service) SetPermissions(ctx context.Context, id int64, raw []string) (User, error) {
	var perms []authz.Permission
	for _, entry := range raw {
		p := authz.Permission(strings.ToLower(strings.TrimSpace(entry)))
		if !authz.IsValid(p) {
			return User{}, fmt.Errorf("%w: unknown permission %q", httpx.ErrValidation, entry)
		}
		perms = append(perms, p)
	}
	return s.repo.SetPermissions(ctx, id, perms)
}

// CountByRole implements the role registry's referential check.
func (s *Service) CountByRole(ctx context.Context, role string) (int64, error) {
	return s.repo.CountByRole(ctx, role)
}
