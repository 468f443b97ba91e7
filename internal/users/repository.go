package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parceltrack/parceltrack/internal/authz"
	"github.com/parceltrack/parceltrack/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence for user accounts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, name, email, password_hash, role, permissions, status, last_login, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var user User
	var perms []string
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &perms, &user.Status, &user.LastLogin, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	if len(perms) > 0 {
		user.Permissions = make([]authz.Permission, len(perms))
		for i, p := range perms {
			user.Permissions[i] = authz.Permission(p)
		}
	}
	return user, nil
}

// Create inserts a new user account.
func (r *Repository) Create(ctx context.Context, user User) (User, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash, role, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+userColumns,
		user.Name, user.Email, user.PasswordHash, user.Role, user.Status)
	return scanUser(row)
}

// GetByID fetches a user by primary key.
func (r *Repository) GetByID(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, httpx.ErrNotFound
	}
	return user, err
}

// GetByEmail fetches a user by unique email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, httpx.ErrNotFound
	}
	return user, err
}

// List returns all users ordered by id.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, user)
	}
	return out, rows.Err()
}

// UpdateName updates the profile name.
func (r *Repository) UpdateName(ctx context.Context, id int64, name string) (User, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE users SET name = $2, updated_at = now() WHERE id = $1 RETURNING `+userColumns,
		id, name)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, httpx.ErrNotFound
	}
	return user, err
}

// SetStatus updates the account status.
func (r *Repository) SetStatus(ctx context.Context, id int64, status string) (User, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE users SET status = $2, updated_at = now() WHERE id = $1 RETURNING `+userColumns,
		id, status)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, httpx.ErrNotFound
	}
	return user, err
}

// SetRole reassigns the account role.
func (r *Repository) SetRole(ctx context.Context, id int64, role string) (User, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE users SET role = $2, updated_at = now() WHERE id = $1 RETURNING `+userColumns,
		id, role)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, httpx.ErrNotFound
	}
	return user, err
}

// SetPermissions replaces the explicit permission override. A nil slice
// clears the override.
func (r *Repository) SetPermissions(ctx context.Context, id int64, perms []authz.Permission) (User, error) {
	var values []string
	if len(perms) > 0 {
		values = make([]string, len(perms))
		for i, p := range perms {
			values[i] = string(p)
		}
	}
	row := r.pool.QueryRow(ctx,
		`UPDATE users SET permissions = $2, updated_at = now() WHERE id = $1 RETURNING `+userColumns,
		id, values)
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, httpx.ErrNotFound
	}
	return user, err
}

// TouchLastLogin stamps the login timestamp.
func (r *Repository) TouchLastLogin(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_login = now() WHERE id = $1`, id)
	return err
}

// CountByRole reports how many users reference a role name.
func (r *Repository) CountByRole(ctx context.Context, role string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM users WHERE role = $1`, role).Scan(&count)
	return count, err
}
