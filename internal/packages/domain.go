// Package packages manages parcels registered by owners for delivery.
package packages

import "time"

// Status represents the parcel lifecycle.
type Status string

const (
	StatusPending   Status = "PENDING"    // Registered, editable, not yet dispatched
	StatusAssigned  Status = "ASSIGNED"   // A delivery exists for the parcel
	StatusInTransit Status = "IN_TRANSIT" // Picked up by a driver
	StatusDelivered Status = "DELIVERED"  // Received at destination
	StatusCancelled Status = "CANCELLED"  // Cancelled by the owner
)

// IsValid checks if the status is a known lifecycle state.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInTransit, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanEdit checks if the parcel can still be edited.
func (s Status) CanEdit() bool {
	return s == StatusPending
}

// CanCancel checks if the parcel can still be cancelled.
func (s Status) CanCancel() bool {
	return s == StatusPending || s == StatusAssigned
}

// CanDispatch checks if a delivery can be created for the parcel.
func (s Status) CanDispatch() bool {
	return s == StatusPending
}

// CanTransition checks whether the parcel may move from s to next. DELIVERED
// and CANCELLED are terminal.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusAssigned || next == StatusCancelled
	case StatusAssigned:
		return next == StatusInTransit || next == StatusPending || next == StatusCancelled
	case StatusInTransit:
		return next == StatusDelivered || next == StatusPending
	default:
		return false
	}
}

// Package represents a parcel registered for delivery.
type Package struct {
	ID             int64      `json:"id"`
	TrackingNumber string     `json:"tracking_number"`
	OwnerID        int64      `json:"owner_id"`
	Description    string     `json:"description"`
	WeightKg       float64    `json:"weight_kg"`
	Origin         string     `json:"origin"`
	Destination    string     `json:"destination"`
	Status         Status     `json:"status"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// CreatePackageRequest registers a new parcel.
type CreatePackageRequest struct {
	Description string  `json:"description" validate:"required,max=500"`
	WeightKg    float64 `json:"weight_kg" validate:"required,gt=0,lte=1000"`
	Origin      string  `json:"origin" validate:"required,max=300"`
	Destination string  `json:"destination" validate:"required,max=300"`
}

// UpdatePackageRequest mutates a pending parcel. Only supplied fields change.
type UpdatePackageRequest struct {
	Description *string  `json:"description,omitempty" validate:"omitempty,max=500"`
	WeightKg    *float64 `json:"weight_kg,omitempty" validate:"omitempty,gt=0,lte=1000"`
	Origin      *string  `json:"origin,omitempty" validate:"omitempty,max=300"`
	Destination *string  `json:"destination,omitempty" validate:"omitempty,max=300"`
}

// TrackingEvent is one step of the public tracking timeline.
type TrackingEvent struct {
	Status     Status    `json:"status"`
	Note       string    `json:"note,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TrackingResponse is the public tracking view: no owner or pricing data.
type TrackingResponse struct {
	TrackingNumber string          `json:"tracking_number"`
	Status         Status          `json:"status"`
	Origin         string          `json:"origin"`
	Destination    string          `json:"destination"`
	Events         []TrackingEvent `json:"events"`
}
