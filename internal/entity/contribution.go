package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type ContributionStatus string

const (
	ContributionStatusPledged    ContributionStatus = "pledged"
	ContributionStatusProcessing ContributionStatus = "processing"
	ContributionStatusPaid       ContributionStatus = "paid"
	ContributionStatusFailed     ContributionStatus = "failed"
	ContributionStatusCancelled  ContributionStatus = "cancelled"
)

// Contribution is one user's share toward an order's target amount.
type Contribution struct {
	ID               int64              `json:"id"`
	OrderID          int64              `json:"order_id"`
	UserID           int64              `json:"user_id"`
	Amount           decimal.Decimal    `json:"amount"`
	Status           ContributionStatus `json:"status"`
	PaymentReference string             `json:"payment_reference,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}
