package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusReady          OrderStatus = "ready"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// Valid reports whether s is one of the known order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing, OrderStatusReady,
		OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Order is a pooled purchase funded by contributions until CurrentAmount reaches TargetAmount.
type Order struct {
	ID                   int64           `json:"id"`
	OrderNumber          string          `json:"order_number"`
	CustomerID           int64           `json:"customer_id"`
	RestaurantID         int64           `json:"restaurant_id"`
	MealID               int64           `json:"meal_id"`
	Status               OrderStatus     `json:"status"`
	TargetAmount         decimal.Decimal `json:"target_amount"`
	CurrentAmount        decimal.Decimal `json:"current_amount"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	DeliveryAddress      string          `json:"delivery_address"`
	DeliveryPhone        string          `json:"delivery_phone,omitempty"`
	DeliveryInstructions string          `json:"delivery_instructions,omitempty"`
	DeadlineAt           *time.Time      `json:"deadline_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`

	Contributions []Contribution `json:"contributions,omitempty"`
}

// Remaining is the amount still needed to fully fund the order. It is never negative.
func (o *Order) Remaining() decimal.Decimal {
	r := o.TargetAmount.Sub(o.CurrentAmount)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

// FullyFunded reports whether the running total has reached the target.
func (o *Order) FullyFunded() bool {
	return o.CurrentAmount.GreaterThanOrEqual(o.TargetAmount)
}

// Expired reports whether the funding deadline has passed at now.
func (o *Order) Expired(now time.Time) bool {
	return o.DeadlineAt != nil && now.After(*o.DeadlineAt)
}

