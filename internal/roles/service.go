package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/parceltrack/parceltrack/internal/authz"
	"github.com/parceltrack/parceltrack/internal/platform/db"
	"github.com/parceltrack/parceltrack/internal/platform/httpx"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	Create(ctx context.Context, role Role) (Role, error)
	GetByID(ctx context.Context, id int64) (Role, error)
	GetByName(ctx context.Context, name string) (Role, error)
	List(ctx context.Context) ([]Role, error)
	Update(ctx context.Context, role Role) (Role, error)
	Delete(ctx context.Context, id int64) error
}

// UserCounter reports how many users still reference a role name. Role
// deletion is hard-blocked while any reference exists.
type UserCounter interface {
	CountByRole(ctx context.Context, role string) (int64, error)
}

// CacheInvalidator drops cached permission sets after role mutations.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, name string)
}

var titleCaser = cases.Title(language.English)

// Service handles role registry business logic.
type Service struct {
	repo   RepositoryPort
	users  UserCounter
	cache  CacheInvalidator
	logger *slog.Logger
}

// NewService builds a Service instance. cache may be nil.
func NewService(repo RepositoryPort, users UserCounter, cache CacheInvalidator, logger *slog.Logger) *Service {
	return &Service{repo: repo, users: users, cache: cache, logger: logger}
}

// SetCacheInvalidator attaches the lookup cache after construction. The
// cache wraps this service as its lookup source, so it cannot exist before
// the service does.
func (s *Service) SetCacheInvalidator(cache CacheInvalidator) {
	s.cache = cache
}

// CreateRole validates and inserts a new role. Duplicate names fail with a
// conflict, unknown catalog permissions with a validation error.
func (s *Service) CreateRole(ctx context.Context, req CreateRoleRequest) (Role, error) {
	name := normalizeName(req.Name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", httpx.ErrValidation)
	}
	if strings.TrimSpace(req.Description) == "" {
		return Role{}, fmt.Errorf("%w: role description required", httpx.ErrValidation)
	}
	perms, err := parsePermissions(req.Permissions)
	if err != nil {
		return Role{}, err
	}

	role, err := s.repo.Create(ctx, Role{
		Name:        name,
		DisplayName: titleCaser.String(strings.ReplaceAll(name, "_", " ")),
		Description: strings.TrimSpace(req.Description),
		Permissions: perms,
		IsActive:    true,
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Role{}, fmt.Errorf("%w: role %q already exists", httpx.ErrConflict, name)
		}
		return Role{}, err
	}
	s.invalidate(ctx, role.Name)
	return role, nil
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetByID(ctx, id)
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.List(ctx)
}

// UpdateRole mutates only the supplied fields. Supplied permissions are
// re-validated against the catalog.
func (s *Service) UpdateRole(ctx context.Context, id int64, req UpdateRoleRequest) (Role, error) {
	role, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if req.Description != nil {
		if strings.TrimSpace(*req.Description) == "" {
			return Role{}, fmt.Errorf("%w: role description required", httpx.ErrValidation)
		}
		role.Description = strings.TrimSpace(*req.Description)
	}
	if req.Permissions != nil {
		perms, err := parsePermissions(*req.Permissions)
		if err != nil {
			return Role{}, err
		}
		role.Permissions = perms
	}
	if req.IsActive != nil {
		role.IsActive = *req.IsActive
	}

	updated, err := s.repo.Update(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.invalidate(ctx, updated.Name)
	return updated, nil
}

// DeleteRole removes a role. Deletion is rejected with a conflict while any
// user still references the role name; affected users are never silently
// reassigned.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	role, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	count, err := s.users.CountByRole(ctx, role.Name)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: role %q is still assigned to %d user(s)", httpx.ErrConflict, role.Name, count)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, role.Name)
	return nil
}

// PermissionsByRole implements authz.RoleLookup against the registry.
// Inactive and unknown roles report no answer so that resolution falls
// through to the static defaults table.
func (s *Service) PermissionsByRole(ctx context.Context, name string) ([]authz.Permission, bool, error) {
	role, err := s.repo.GetByName(ctx, normalizeName(name))
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if !role.IsActive {
		return nil, false, nil
	}
	return role.Permissions, true, nil
}

func (s *Service) invalidate(ctx context.Context, name string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, name)
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func parsePermissions(raw []string) ([]authz.Permission, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: permissions required", httpx.ErrValidation)
	}
	seen := make(map[authz.Permission]struct{}, len(raw))
	perms := make([]authz.Permission, 0, len(raw))
	for _, entry := range raw {
		p := authz.Permission(strings.ToLower(strings.TrimSpace(entry)))
		if !authz.IsValid(p) {
			return nil, fmt.Errorf("%w: unknown permission %q", httpx.ErrValidation, entry)
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		perms = append(perms, p)
	}
	return perms, nil
}

var _ authz.RoleLookup = (*Service)(nil)
