// Package deliveries manages the driver-facing delivery lifecycle.
package deliveries

import "time"

// Status represents the delivery lifecycle.
type Status string

const (
	StatusOpen      Status = "OPEN"       // Dispatched, waiting for a driver
	StatusClaimed   Status = "CLAIMED"    // Claimed by a driver
	StatusPickedUp  Status = "PICKED_UP"  // Parcel collected from origin
	StatusInTransit Status = "IN_TRANSIT" // On the way to destination
	StatusDelivered Status = "DELIVERED"  // Handed over at destination
	StatusFailed    Status = "FAILED"     // Delivery attempt abandoned
)

// IsValid checks if the status is a known lifecycle state.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusClaimed, StatusPickedUp, StatusInTransit, StatusDelivered, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransition checks whether a driver may move the delivery from s to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusClaimed:
		return next == StatusPickedUp || next == StatusFailed
	case StatusPickedUp:
		return next == StatusInTransit || next == StatusFailed
	case StatusInTransit:
		return next == StatusDelivered || next == StatusFailed
	default:
		return false
	}
}

// Terminal reports whether the delivery has reached a final state.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// Delivery represents one dispatch of a package to a driver.
type Delivery struct {
	ID          int64      `json:"id"`
	Code        string     `json:"code"`
	PackageID   int64      `json:"package_id"`
	DriverID    *int64     `json:"driver_id,omitempty"`
	Status      Status     `json:"status"`
	Notes       string     `json:"notes,omitempty"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// DispatchRequest creates a delivery for a pending package.
type DispatchRequest struct {
	PackageID int64  `json:"package_id" validate:"required,gt=0"`
	Notes     string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

// UpdateStatusRequest moves a claimed delivery through its lifecycle.
type UpdateStatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=PICKED_UP IN_TRANSIT DELIVERED FAILED"`
	Notes  string `json:"notes,omitempty" validate:"omitempty,max=500"`
}
