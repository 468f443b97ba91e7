package deliveries

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/parceltrack/parceltrack/internal/packages"
	"github.com/parceltrack/parceltrack/internal/platform/httpx"
)

// RepositoryPort defines data access methods for deliveries.
type RepositoryPort interface {
	Create(ctx context.Context, d Delivery) (Delivery, error)
	GetByID(ctx context.Context, id int64) (Delivery, error)
	GetActiveByPackage(ctx context.Context, packageID int64) (Delivery, error)
	ListOpen(ctx context.Context) ([]Delivery, error)
	ListByDriver(ctx context.Context, driverID int64) ([]Delivery, error)
	Claim(ctx context.Context, id, driverID int64) (Delivery, error)
	Transition(ctx context.Context, id int64, from, to Status, notes string) (Delivery, error)
	ReleaseStale(ctx context.Context, olderThanMinutes int) ([]Delivery, error)
}

// PackagePort is the slice of the packages service the delivery lifecycle
// needs: dispatch validation and status synchronization.
type PackagePort interface {
	GetPackage(ctx context.Context, id, callerID int64, readAny bool) (packages.Package, error)
	MarkStatus(ctx context.Context, id int64, status packages.Status, note string) (packages.Package, error)
}

// Notifier enqueues delivery status notifications for the package owner.
type Notifier interface {
	NotifyStatusChange(ctx context.Context, d Delivery, ownerID int64) error
}

// Service provides business logic for the delivery lifecycle.
type Service struct {
	repo     RepositoryPort
	pkgs     PackagePort
	notifier Notifier
	logger   *slog.Logger
}

// NewService constructs a delivery service. notifier may be nil.
func NewService(repo RepositoryPort, pkgs PackagePort, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{repo: repo, pkgs: pkgs, notifier: notifier, logger: logger}
}

// Dispatch creates an open delivery for a pending package owned by the
// caller, and marks the package assigned.
func (s *Service) Dispatch(ctx context.Context, callerID int64, req DispatchRequest) (Delivery, error) {
	pkg, err := s.pkgs.GetPackage(ctx, req.PackageID, callerID, false)
	if err != nil {
		return Delivery{}, err
	}
	if !pkg.Status.CanDispatch() {
		return Delivery{}, fmt.Errorf("%w: package is %s and cannot be dispatched", httpx.ErrConflict, pkg.Status)
	}

	d, err := s.repo.Create(ctx, Delivery{
		Code:      newDeliveryCode(),
		PackageID: pkg.ID,
		Status:    StatusOpen,
		Notes:     strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return Delivery{}, err
	}
	if _, err := s.pkgs.MarkStatus(ctx, pkg.ID, packages.StatusAssigned, "dispatched for delivery"); err != nil {
		return Delivery{}, fmt.Errorf("mark package assigned: %w", err)
	}
	s.notify(ctx, d, pkg.OwnerID)
	return d, nil
}

// GetDelivery fetches a delivery visible to the caller: the assigned
// driver, the package owner, or anyone with admin read access.
func (s *Service) GetDelivery(ctx context.Context, id, callerID int64, readAny bool) (Delivery, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Delivery{}, err
	}
	if readAny {
		return d, nil
	}
	if d.DriverID != nil && *d.DriverID == callerID {
		return d, nil
	}
	pkg, err := s.pkgs.GetPackage(ctx, d.PackageID, callerID, true)
	if err != nil {
		return Delivery{}, err
	}
	if pkg.OwnerID != callerID {
		return Delivery{}, fmt.Errorf("%w: not your delivery", httpx.ErrForbidden)
	}
	return d, nil
}

// ListOpen returns unclaimed deliveries for drivers to pick from.
func (s *Service) ListOpen(ctx context.Context) ([]Delivery, error) {
	return s.repo.ListOpen(ctx)
}

// ListMine returns the caller's claimed deliveries.
func (s *Service) ListMine(ctx context.Context, driverID int64) ([]Delivery, error) {
	return s.repo.ListByDriver(ctx, driverID)
}

// Claim assigns an open delivery to the calling driver. Losing a claim race
// surfaces as a conflict, not an error.
func (s *Service) Claim(ctx context.Context, id, driverID int64) (Delivery, error) {
	d, err := s.repo.Claim(ctx, id, driverID)
	if err != nil {
		return Delivery{}, err
	}
	s.notifyOwner(ctx, d)
	return d, nil
}

// UpdateStatus moves the delivery through its lifecycle. Only the assigned
// driver may transition, and the package status follows terminal and
// pickup transitions.
func (s *Service) UpdateStatus(ctx context.Context, id, driverID int64, req UpdateStatusRequest) (Delivery, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Delivery{}, err
	}
	if current.DriverID == nil || *current.DriverID != driverID {
		return Delivery{}, fmt.Errorf("%w: delivery is not assigned to you", httpx.ErrForbidden)
	}
	if current.Status.Terminal() {
		return Delivery{}, fmt.Errorf("%w: delivery is already %s", httpx.ErrConflict, current.Status)
	}
	if !current.Status.CanTransition(req.Status) {
		return Delivery{}, fmt.Errorf("%w: cannot move delivery from %s to %s", httpx.ErrConflict, current.Status, req.Status)
	}

	d, err := s.repo.Transition(ctx, id, current.Status, req.Status, strings.TrimSpace(req.Notes))
	if err != nil {
		return Delivery{}, err
	}

	if pkgStatus, note, ok := packageStatusFor(d.Status); ok {
		if _, err := s.pkgs.MarkStatus(ctx, d.PackageID, pkgStatus, note); err != nil {
			return Delivery{}, fmt.Errorf("sync package status: %w", err)
		}
	}
	s.notifyOwner(ctx, d)
	return d, nil
}

// CancelForPackage abandons the package's delivery when the owner cancels
// the parcel. Deliveries still waiting for pickup move to FAILED; a delivery
// already picked up cannot be abandoned and surfaces as a conflict, losing
// the race against the driver.
func (s *Service) CancelForPackage(ctx context.Context, packageID int64) error {
	d, err := s.repo.GetActiveByPackage(ctx, packageID)
	if errors.Is(err, httpx.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := s.repo.Transition(ctx, d.ID, d.Status, StatusFailed, "package cancelled by owner"); err != nil {
		return err
	}
	return nil
}

// ReleaseStaleClaims reopens deliveries claimed but never picked up within
// the window. Run periodically by the worker.
func (s *Service) ReleaseStaleClaims(ctx context.Context, olderThanMinutes int) (int, error) {
	released, err := s.repo.ReleaseStale(ctx, olderThanMinutes)
	if err != nil {
		return 0, err
	}
	for _, d := range released {
		if s.logger != nil {
			s.logger.Info("released stale claim", slog.Int64("delivery_id", d.ID))
		}
	}
	return len(released), nil
}

func packageStatusFor(s Status) (packages.Status, string, bool) {
	switch s {
	case StatusPickedUp:
		return packages.StatusInTransit, "picked up by driver", true
	case StatusDelivered:
		return packages.StatusDelivered, "delivered", true
	case StatusFailed:
		// A failed delivery returns the package to the dispatch queue.
		return packages.StatusPending, "delivery failed", true
	default:
		return "", "", false
	}
}

func (s *Service) notifyOwner(ctx context.Context, d Delivery) {
	pkg, err := s.pkgs.GetPackage(ctx, d.PackageID, 0, true)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("load package for notification", slog.Int64("delivery_id", d.ID), slog.Any("error", err))
		}
		return
	}
	s.notify(ctx, d, pkg.OwnerID)
}

func (s *Service) notify(ctx context.Context, d Delivery, ownerID int64) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyStatusChange(ctx, d, ownerID); err != nil && s.logger != nil {
		s.logger.Warn("enqueue status notification", slog.Int64("delivery_id", d.ID), slog.Any("error", err))
	}
}

func newDeliveryCode() string {
	return "DLV-" + strings.ToUpper(uuid.NewString()[:8])
}
