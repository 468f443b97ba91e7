package packages

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parceltrack/parceltrack/internal/platform/db"
	"github.com/parceltrack/parceltrack/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence for packages.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const packageColumns = `id, tracking_number, owner_id, description, weight_kg, origin, destination, status, delivered_at, created_at, updated_at`

func scanPackage(row pgx.Row) (Package, error) {
	var p Package
	err := row.Scan(&p.ID, &p.TrackingNumber, &p.OwnerID, &p.Description, &p.WeightKg, &p.Origin, &p.Destination, &p.Status, &p.DeliveredAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// Create inserts a new package.
func (r *Repository) Create(ctx context.Context, p Package) (Package, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO packages (tracking_number, owner_id, description, weight_kg, origin, destination, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+packageColumns,
		p.TrackingNumber, p.OwnerID, p.Description, p.WeightKg, p.Origin, p.Destination, p.Status)
	return scanPackage(row)
}

// GetByID fetches a package by primary key.
func (r *Repository) GetByID(ctx context.Context, id int64) (Package, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+packageColumns+` FROM packages WHERE id = $1`, id)
	p, err := scanPackage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Package{}, httpx.ErrNotFound
	}
	return p, err
}

// GetByTrackingNumber fetches a package by its public tracking number.
func (r *Repository) GetByTrackingNumber(ctx context.Context, number string) (Package, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+packageColumns+` FROM packages WHERE tracking_number = $1`, number)
	p, err := scanPackage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Package{}, httpx.ErrNotFound
	}
	return p, err
}

// ListByOwner returns the owner's packages, newest first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID int64) ([]Package, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+packageColumns+` FROM packages WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Update persists the mutable fields of a package.
func (r *Repository) Update(ctx context.Context, p Package) (Package, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE packages
		 SET description = $2, weight_kg = $3, origin = $4, destination = $5, updated_at = now()
		 WHERE id = $1
		 RETURNING `+packageColumns,
		p.ID, p.Description, p.WeightKg, p.Origin, p.Destination)
	updated, err := scanPackage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Package{}, httpx.ErrNotFound
	}
	return updated, err
}

// Transition updates the package status and appends the tracking event in a
// single transaction. The current status is checked optimistically so a
// concurrent writer cannot move the package out of a terminal state.
func (r *Repository) Transition(ctx context.Context, id int64, from, to Status, note string) (Package, error) {
	query := `UPDATE packages SET status = $3, updated_at = now() WHERE id = $1 AND status = $2 RETURNING ` + packageColumns
	if to == StatusDelivered {
		query = `UPDATE packages SET status = $3, delivered_at = now(), updated_at = now() WHERE id = $1 AND status = $2 RETURNING ` + packageColumns
	}
	var p Package
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		p, err = scanPackage(tx.QueryRow(ctx, query, id, from, to))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				if _, getErr := r.GetByID(ctx, id); errors.Is(getErr, httpx.ErrNotFound) {
					return httpx.ErrNotFound
				}
				return httpx.ErrConflict
			}
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO package_events (package_id, status, note) VALUES ($1, $2, $3)`,
			id, to, note)
		return err
	})
	return p, err
}

// AppendEvent records a tracking timeline entry.
func (r *Repository) AppendEvent(ctx context.Context, packageID int64, status Status, note string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO package_events (package_id, status, note) VALUES ($1, $2, $3)`,
		packageID, status, note)
	return err
}

// ListEvents returns the tracking timeline for a package, oldest first.
func (r *Repository) ListEvents(ctx context.Context, packageID int64) ([]TrackingEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, note, occurred_at FROM package_events WHERE package_id = $1 ORDER BY occurred_at`, packageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TrackingEvent
	for rows.Next() {
		var ev TrackingEvent
		if err := rows.Scan(&ev.Status, &ev.Note, &ev.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
