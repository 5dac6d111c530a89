package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// Active reports whether the payment has not reached a terminal status yet.
func (s PaymentStatus) Active() bool {
	return s == PaymentStatusPending || s == PaymentStatusProcessing
}

type PaymentMethod string

const (
	PaymentMethodMpesa PaymentMethod = "mpesa"
	PaymentMethodCash  PaymentMethod = "cash"
	PaymentMethodCard  PaymentMethod = "card"
)

const DefaultCurrency = "KES"

// Payment shadows a transaction held by an external payment provider.
// ProviderRequestID is the provider's handle for the transaction and the only
// key used to match incoming callbacks.
type Payment struct {
	ID                    int64           `json:"id"`
	Reference             string          `json:"payment_reference"`
	OrderID               int64           `json:"order_id"`
	UserID                int64           `json:"user_id"`
	ContributionID        *int64          `json:"contribution_id,omitempty"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	Method                PaymentMethod   `json:"method"`
	Status                PaymentStatus   `json:"status"`
	ProviderRequestID     string          `json:"provider_request_id,omitempty"`
	ReceiptNumber         string          `json:"receipt_number,omitempty"`
	ProviderTransactionID string          `json:"provider_transaction_id,omitempty"`
	PhoneNumber           string          `json:"phone_number,omitempty"`
	FailureReason         string          `json:"failure_reason,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
}
