package packages

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/parceltrack/parceltrack/internal/platform/httpx"
)

// RepositoryPort defines data access methods for packages.
type RepositoryPort interface {
	Create(ctx context.Context, p Package) (Package, error)
	GetByID(ctx context.Context, id int64) (Package, error)
	GetByTrackingNumber(ctx context.Context, number string) (Package, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]Package, error)
	Update(ctx context.Context, p Package) (Package, error)
	Transition(ctx context.Context, id int64, from, to Status, note string) (Package, error)
	AppendEvent(ctx context.Context, packageID int64, status Status, note string) error
	ListEvents(ctx context.Context, packageID int64) ([]TrackingEvent, error)
}

// DeliveryCloser abandons the in-flight delivery of a package, if one
// exists. Implemented by the deliveries service.
type DeliveryCloser interface {
	CancelForPackage(ctx context.Context, packageID int64) error
}

// Service handles package business logic.
type Service struct {
	repo       RepositoryPort
	deliveries DeliveryCloser
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// SetDeliveryCloser attaches the delivery cascade after construction. The
// deliveries service wraps this service for status sync, so it cannot exist
// before the service does.
func (s *Service) SetDeliveryCloser(closer DeliveryCloser) {
	s.deliveries = closer
}

// CreatePackage registers a parcel for the owner and opens its tracking
// timeline.
func (s *Service) CreatePackage(ctx context.Context, ownerID int64, req CreatePackageRequest) (Package, error) {
	p, err := s.repo.Create(ctx, Package{
		TrackingNumber: newTrackingNumber(),
		OwnerID:        ownerID,
		Description:    strings.TrimSpace(req.Description),
		WeightKg:       req.WeightKg,
		Origin:         strings.TrimSpace(req.Origin),
		Destination:    strings.TrimSpace(req.Destination),
		Status:         StatusPending,
	})
	if err != nil {
		return Package{}, err
	}
	if err := s.repo.AppendEvent(ctx, p.ID, StatusPending, "package registered"); err != nil {
		return Package{}, err
	}
	return p, nil
}

// GetPackage fetches a package, enforcing ownership unless the caller may
// read any package.
func (s *Service) GetPackage(ctx context.Context, id, callerID int64, readAny bool) (Package, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Package{}, err
	}
	if !readAny && p.OwnerID != callerID {
		return Package{}, fmt.Errorf("%w: not your package", httpx.ErrForbidden)
	}
	return p, nil
}

// ListPackages returns the caller's packages.
func (s *Service) ListPackages(ctx context.Context, ownerID int64) ([]Package, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// Track resolves the public tracking view by tracking number.
func (s *Service) Track(ctx context.Context, trackingNumber string) (TrackingResponse, error) {
	p, err := s.repo.GetByTrackingNumber(ctx, strings.TrimSpace(trackingNumber))
	if err != nil {
		return TrackingResponse{}, err
	}
	events, err := s.repo.ListEvents(ctx, p.ID)
	if err != nil {
		return TrackingResponse{}, err
	}
	return TrackingResponse{
		TrackingNumber: p.TrackingNumber,
		Status:         p.Status,
		Origin:         p.Origin,
		Destination:    p.Destination,
		Events:         events,
	}, nil
}

// UpdatePackage mutates a pending parcel.
func (s *Service) UpdatePackage(ctx context.Context, id, callerID int64, req UpdatePackageRequest) (Package, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Package{}, err
	}
	if p.OwnerID != callerID {
		return Package{}, fmt.Errorf("%w: not your package", httpx.ErrForbidden)
	}
	if !p.Status.CanEdit() {
		return Package{}, fmt.Errorf("%w: package is %s and can no longer be edited", httpx.ErrConflict, p.Status)
	}
	if req.Description != nil {
		p.Description = strings.TrimSpace(*req.Description)
	}
	if req.WeightKg != nil {
		p.WeightKg = *req.WeightKg
	}
	if req.Origin != nil {
		p.Origin = strings.TrimSpace(*req.Origin)
	}
	if req.Destination != nil {
		p.Destination = strings.TrimSpace(*req.Destination)
	}
	return s.repo.Update(ctx, p)
}

// CancelPackage cancels a parcel that has not entered transit. A dispatched
// parcel's open delivery is abandoned first, so a driver cannot claim or
// complete a cancelled parcel. If the delivery was already picked up, the
// cancellation fails with a conflict.
func (s *Service) CancelPackage(ctx context.Context, id, callerID int64) (Package, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Package{}, err
	}
	if p.OwnerID != callerID {
		return Package{}, fmt.Errorf("%w: not your package", httpx.ErrForbidden)
	}
	if !p.Status.CanCancel() {
		return Package{}, fmt.Errorf("%w: package is %s and can no longer be cancelled", httpx.ErrConflict, p.Status)
	}
	if p.Status == StatusAssigned && s.deliveries != nil {
		if err := s.deliveries.CancelForPackage(ctx, id); err != nil {
			return Package{}, fmt.Errorf("abandon delivery: %w", err)
		}
	}
	return s.repo.Transition(ctx, id, p.Status, StatusCancelled, "cancelled by owner")
}

// MarkStatus transitions a package as part of the delivery lifecycle and
// records the tracking event. Used by the deliveries module. Transitions out
// of DELIVERED or CANCELLED are rejected.
func (s *Service) MarkStatus(ctx context.Context, id int64, status Status, note string) (Package, error) {
	if !status.IsValid() {
		return Package{}, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, status)
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Package{}, err
	}
	if !p.Status.CanTransition(status) {
		return Package{}, fmt.Errorf("%w: cannot move package from %s to %s", httpx.ErrConflict, p.Status, status)
	}
	return s.repo.Transition(ctx, id, p.Status, status, note)
}

func newTrackingNumber() string {
	// Short, URL-safe tracking codes; uppercase for label printing.
	return "PT-" + strings.ToUpper(uuid.NewString()[:13])
}
