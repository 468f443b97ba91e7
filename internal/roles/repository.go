package roles

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parceltrack/parceltrack/internal/authz"
	"github.com/parceltrack/parceltrack/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence for roles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, name, display_name, description, permissions, is_active, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	var perms []string
	err := row.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Description, &perms, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, err
	}
	role.Permissions = make([]authz.Permission, len(perms))
	for i, p := range perms {
		role.Permissions[i] = authz.Permission(p)
	}
	return role, nil
}

func permStrings(perms []authz.Permission) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}

// Create inserts a new role.
func (r *Repository) Create(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO roles (name, display_name, description, permissions, is_active)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+roleColumns,
		role.Name, role.DisplayName, role.Description, permStrings(role.Permissions), role.IsActive)
	return scanRole(row)
}

// GetByID fetches a role by primary key.
func (r *Repository) GetByID(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, httpx.ErrNotFound
	}
	return role, err
}

// GetByName fetches a role by its unique name.
func (r *Repository) GetByName(ctx context.Context, name string) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name)
	role, err := scanRole(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, httpx.ErrNotFound
	}
	return role, err
}

// List returns all roles ordered by name.
func (r *Repository) List(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// Update persists all mutable fields of a role.
func (r *Repository) Update(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE roles
		 SET description = $2, permissions = $3, is_active = $4, updated_at = now()
		 WHERE id = $1
		 RETURNING `+roleColumns,
		role.ID, role.Description, permStrings(role.Permissions), role.IsActive)
	updated, err := scanRole(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, httpx.ErrNotFound
	}
	return updated, err
}

// Delete removes a role by ID. Returns httpx.ErrNotFound when nothing was
// deleted.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httpx.ErrNotFound
	}
	return nil
}
