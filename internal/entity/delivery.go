package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusAssigned  DeliveryStatus = "assigned"
	DeliveryStatusPickedUp  DeliveryStatus = "picked_up"
	DeliveryStatusInTransit DeliveryStatus = "in_transit"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// Valid reports whether s is one of the known delivery statuses.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusAssigned, DeliveryStatusPickedUp,
		DeliveryStatusInTransit, DeliveryStatusDelivered, DeliveryStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusFailed
}

// CanTransitionTo reports whether a delivery may move from s to next.
// Any non-terminal delivery may fail; otherwise the path is strictly forward.
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == DeliveryStatusFailed {
		return true
	}
	switch s {
	case DeliveryStatusPending:
		return next == DeliveryStatusAssigned
	case DeliveryStatusAssigned:
		return next == DeliveryStatusPickedUp
	case DeliveryStatusPickedUp:
		return next == DeliveryStatusInTransit
	case DeliveryStatusInTransit:
		return next == DeliveryStatusDelivered
	}
	return false
}

const UnknownDeliveryAddress = "To be provided"

// Delivery is the fulfillment record of a confirmed order. There is at most one per order.
type Delivery struct {
	ID               int64           `json:"id"`
	Reference        string          `json:"delivery_reference"`
	OrderID          int64           `json:"order_id"`
	DeliveryPersonID *int64          `json:"delivery_person_id,omitempty"`
	Status           DeliveryStatus  `json:"status"`
	Fee              decimal.Decimal `json:"fee"`
	PickupAddress    string          `json:"pickup_address"`
	DeliveryAddress  string          `json:"delivery_address"`
	Notes            string          `json:"notes,omitempty"`
	CustomerRating   *int            `json:"customer_rating,omitempty"`
	CustomerFeedback string          `json:"customer_feedback,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	AssignedAt       *time.Time      `json:"assigned_at,omitempty"`
	PickedUpAt       *time.Time      `json:"picked_up_at,omitempty"`
	DeliveredAt      *time.Time      `json:"delivered_at,omitempty"`
}
