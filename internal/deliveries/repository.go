package deliveries

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parceltrack/parceltrack/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence for deliveries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const deliveryColumns = `id, code, package_id, driver_id, status, notes, claimed_at, delivered_at, created_at, updated_at`

func scanDelivery(row pgx.Row) (Delivery, error) {
	var d Delivery
	err := row.Scan(&d.ID, &d.Code, &d.PackageID, &d.DriverID, &d.Status, &d.Notes, &d.ClaimedAt, &d.DeliveredAt, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// Create inserts a new open delivery.
func (r *Repository) Create(ctx context.Context, d Delivery) (Delivery, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO deliveries (code, package_id, status, notes)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+deliveryColumns,
		d.Code, d.PackageID, d.Status, d.Notes)
	return scanDelivery(row)
}

// GetByID fetches a delivery by primary key.
func (r *Repository) GetByID(ctx context.Context, id int64) (Delivery, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`, id)
	d, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Delivery{}, httpx.ErrNotFound
	}
	return d, err
}

// GetActiveByPackage returns the package's delivery that is still waiting
// for pickup, open or claimed.
func (r *Repository) GetActiveByPackage(ctx context.Context, packageID int64) (Delivery, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries
		 WHERE package_id = $1 AND status IN ('OPEN', 'CLAIMED')
		 ORDER BY created_at DESC LIMIT 1`, packageID)
	d, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Delivery{}, httpx.ErrNotFound
	}
	return d, err
}

// ListOpen returns unclaimed deliveries, oldest first so long-waiting
// parcels surface to drivers.
func (r *Repository) ListOpen(ctx context.Context) ([]Delivery, error) {
	return r.list(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE status = 'OPEN' ORDER BY created_at`)
}

// ListByDriver returns the driver's deliveries, newest first.
func (r *Repository) ListByDriver(ctx context.Context, driverID int64) ([]Delivery, error) {
	return r.list(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE driver_id = $1 ORDER BY created_at DESC`, driverID)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Delivery, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Claim atomically assigns an open delivery to a driver. Returns
// httpx.ErrConflict when the delivery was already claimed.
func (r *Repository) Claim(ctx context.Context, id, driverID int64) (Delivery, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE deliveries
		 SET driver_id = $2, status = 'CLAIMED', claimed_at = now(), updated_at = now()
		 WHERE id = $1 AND status = 'OPEN'
		 RETURNING `+deliveryColumns,
		id, driverID)
	d, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either missing or no longer open; disambiguate for the caller.
		if _, getErr := r.GetByID(ctx, id); errors.Is(getErr, httpx.ErrNotFound) {
			return Delivery{}, httpx.ErrNotFound
		}
		return Delivery{}, httpx.ErrConflict
	}
	return d, err
}

// Transition moves a delivery from one status to another with an optimistic
// status check, so concurrent updates cannot skip lifecycle states.
func (r *Repository) Transition(ctx context.Context, id int64, from, to Status, notes string) (Delivery, error) {
	query := `UPDATE deliveries
		 SET status = $3, notes = $4, updated_at = now()
		 WHERE id = $1 AND status = $2
		 RETURNING ` + deliveryColumns
	if to == StatusDelivered {
		query = `UPDATE deliveries
		 SET status = $3, notes = $4, delivered_at = now(), updated_at = now()
		 WHERE id = $1 AND status = $2
		 RETURNING ` + deliveryColumns
	}
	row := r.pool.QueryRow(ctx, query, id, from, to, notes)
	d, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, id); errors.Is(getErr, httpx.ErrNotFound) {
			return Delivery{}, httpx.ErrNotFound
		}
		return Delivery{}, httpx.ErrConflict
	}
	return d, err
}

// ReleaseStale reopens claimed deliveries whose claim is older than the
// cutoff and have not been picked up. Returns the released deliveries.
func (r *Repository) ReleaseStale(ctx context.Context, olderThanMinutes int) ([]Delivery, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE deliveries
		 SET driver_id = NULL, status = 'OPEN', claimed_at = NULL, updated_at = now()
		 WHERE status = 'CLAIMED' AND claimed_at < now() - make_interval(mins => $1)
		 RETURNING `+deliveryColumns,
		olderThanMinutes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
