package provider

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/shiramwangi/gawa/internal/entity"
)

var ErrMalformedCallback = errors.New("malformed callback payload")

// InitiateRequest is what a provider needs to start collecting a payment.
type InitiateRequest struct {
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	Phone       string
	Description string
}

// CallbackResult is the provider-neutral reading of a callback payload.
type CallbackResult struct {
	RequestID     string
	Success       bool
	ResultCode    int
	ReceiptNumber string
	TransactionID string
	FailureReason string
}

// PaymentProvider starts payments with an external provider and reads its callbacks.
type PaymentProvider interface {
	Method() entity.PaymentMethod
	// Initiate returns the provider's handle for the new transaction.
	Initiate(ctx context.Context, req InitiateRequest) (string, error)
	ParseCallback(payload []byte) (*CallbackResult, error)
}

// Registry resolves providers by payment method. Webhook paths use the method name.
type Registry struct {
	providers map[entity.PaymentMethod]PaymentProvider
}

func NewRegistry(providers ...PaymentProvider) *Registry {
	r := &Registry{providers: make(map[entity.PaymentMethod]PaymentProvider, len(providers))}
	for _, p := range providers {
		r.providers[p.Method()] = p
	}
	return r
}

func (r *Registry) Get(method entity.PaymentMethod) (PaymentProvider, bool) {
	p, ok := r.providers[method]
	return p, ok
}
