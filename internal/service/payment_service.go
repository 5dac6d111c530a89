package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shiramwangi/gawa/internal/entity"
	"github.com/shiramwangi/gawa/internal/events"
	"github.com/shiramwangi/gawa/internal/metrics"
	"github.com/shiramwangi/gawa/internal/provider"
	"github.com/shiramwangi/gawa/internal/repository"
)

// Reconciliation outcomes reported back to the provider.
const (
	ReconcileCompleted = "completed"
	ReconcileFailed    = "failed"
	ReconcileDuplicate = "duplicate"
	ReconcileNoMatch   = "no_match"
	ReconcileError     = "error"
)

type ReconciliationResult struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
	Message       string `json:"message,omitempty"`
}

type InitPaymentRequest struct {
	UserID  int64                `json:"user_id"`
	OrderID int64                `json:"order_id"`
	Amount  decimal.Decimal      `json:"amount"`
	Method  entity.PaymentMethod `json:"method,omitempty"`
	Phone   string               `json:"phone,omitempty"`
}

// PaymentService initiates payments with providers and reconciles their callbacks.
type PaymentService struct {
	repo      *repository.Repository
	providers *provider.Registry
	publisher events.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewPaymentService(repo *repository.Repository, providers *provider.Registry, publisher events.Publisher, m *metrics.Metrics) *PaymentService {
	return &PaymentService{
		repo:      repo,
		providers: providers,
		publisher: publisher,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// InitPayment starts a payment for an order. A request matching an active
// payment on (order, amount, method) returns that payment instead of a new one.
func (s *PaymentService) InitPayment(ctx context.Context, req InitPaymentRequest) (*entity.Payment, error) {
	if err := validateAmount("amount", req.Amount); err != nil {
		return nil, err
	}
	if req.Method == "" {
		req.Method = entity.PaymentMethodMpesa
	}
	prov, ok := s.providers.Get(req.Method)
	if !ok {
		return nil, &ValidationError{Msg: fmt.Sprintf("unsupported payment method %q", req.Method)}
	}

	var payment *entity.Payment
	var reused bool
	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		order, err := tx.LockOrder(ctx, req.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return &NotFoundError{Resource: "order", ID: req.OrderID}
		}
		if order.Status == entity.OrderStatusCancelled {
			return &InvalidStateError{Msg: "order is cancelled"}
		}

		payment, err = tx.FindActivePayment(ctx, order.ID, req.Amount, req.Method)
		if err != nil {
			return err
		}
		if payment != nil {
			reused = true
			return nil
		}

		contribution, err := tx.FindUnlinkedContribution(ctx, order.ID, req.UserID, req.Amount)
		if err != nil {
			return err
		}
		draft := &entity.Payment{
			OrderID:     order.ID,
			UserID:      req.UserID,
			Amount:      req.Amount,
			Currency:    entity.DefaultCurrency,
			Method:      req.Method,
			Status:      entity.PaymentStatusPending,
			PhoneNumber: req.Phone,
		}
		if contribution != nil {
			draft.ContributionID = &contribution.ID
		}
		payment, err = withReference("PAY", func(ref string) (*entity.Payment, error) {
			draft.Reference = ref
			return tx.CreatePayment(ctx, draft)
		})
		if err != nil {
			return err
		}
		if contribution != nil {
			return tx.LinkContribution(ctx, contribution.ID, payment.Reference)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reused {
		s.metrics.PaymentInitiated(string(req.Method), "reused")
		logger.Info().Str("payment_reference", payment.Reference).Msg("returning active payment")
		return payment, nil
	}

	requestID, err := prov.Initiate(ctx, provider.InitiateRequest{
		Reference:   payment.Reference,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		Phone:       payment.PhoneNumber,
		Description: fmt.Sprintf("Order %d", payment.OrderID),
	})
	if err != nil {
		logger.Warn().Err(err).Str("payment_reference", payment.Reference).Msg("payment initiation refused")
		if _, ferr := s.repo.FailPayment(ctx, payment.ID, entity.PaymentStatusPending, err.Error()); ferr != nil {
			return nil, ferr
		}
		s.metrics.PaymentInitiated(string(req.Method), "failed")
		payment.Status = entity.PaymentStatusFailed
		payment.FailureReason = err.Error()
		return payment, nil
	}

	ok, err = s.repo.MarkPaymentProcessing(ctx, payment.ID, requestID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.GetPayment(ctx, payment.Reference)
	}
	s.metrics.PaymentInitiated(string(req.Method), "created")
	payment.Status = entity.PaymentStatusProcessing
	payment.ProviderRequestID = requestID
	return payment, nil
}

// GetPayment looks a payment up by its reference.
func (s *PaymentService) GetPayment(ctx context.Context, reference string) (*entity.Payment, error) {
	p, err := s.repo.GetPaymentByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, &NotFoundError{Resource: "payment", ID: reference}
	}
	return p, nil
}

// HandleCallback reconciles a provider callback with the payment it concludes.
// It never returns an error: the outcome, including internal failures, is
// reported in the result so the provider always gets an acknowledgment.
// Callbacks are matched only on the provider handle stored at initiation.
func (s *PaymentService) HandleCallback(ctx context.Context, providerName string, payload []byte) (res ReconciliationResult) {
	defer func() { s.metrics.PaymentCallback(providerName, res.Status) }()

	prov, ok := s.providers.Get(entity.PaymentMethod(providerName))
	if !ok {
		logger.Warn().Str("provider", providerName).Msg("callback from unknown provider")
		return ReconciliationResult{Status: ReconcileError, Message: "unknown provider"}
	}
	cb, err := prov.ParseCallback(payload)
	if err != nil {
		logger.Warn().Err(err).Str("provider", providerName).Msg("unreadable callback")
		return ReconciliationResult{Status: ReconcileError, Message: "unreadable payload"}
	}

	var payment *entity.Payment
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		var err error
		payment, err = tx.FindPaymentByProviderRequest(ctx, prov.Method(), cb.RequestID)
		if err != nil {
			return err
		}
		if payment == nil {
			res = ReconciliationResult{Status: ReconcileNoMatch}
			return nil
		}
		res.TransactionID = payment.Reference
		if payment.Status != entity.PaymentStatusProcessing {
			res.Status = ReconcileDuplicate
			return nil
		}
		if cb.Success {
			return s.complete(ctx, tx, payment, cb, &res)
		}
		return s.fail(ctx, tx, payment, cb, &res)
	})
	if err != nil {
		logger.Error().Err(err).Str("provider", providerName).Str("request_id", cb.RequestID).Msg("Error reconciling callback")
		return ReconciliationResult{Status: ReconcileError, TransactionID: res.TransactionID, Message: "callback could not be processed"}
	}

	switch res.Status {
	case ReconcileNoMatch:
		logger.Warn().Str("provider", providerName).Str("request_id", cb.RequestID).Msg("no matching payment for callback")
	case ReconcileDuplicate:
		logger.Info().Str("payment_reference", payment.Reference).Msg("callback already reconciled")
	case ReconcileCompleted:
		s.publish(ctx, events.PaymentCompleted, payment)
	case ReconcileFailed:
		s.publish(ctx, events.PaymentFailed, payment)
	}
	return res
}

func (s *PaymentService) complete(ctx context.Context, tx *repository.Repository, p *entity.Payment, cb *provider.CallbackResult, res *ReconciliationResult) error {
	at := s.now()
	ok, err := tx.CompletePayment(ctx, p.ID, cb.ReceiptNumber, cb.TransactionID, at)
	if err != nil {
		return err
	}
	if !ok {
		res.Status = ReconcileDuplicate
		return nil
	}
	p.Status = entity.PaymentStatusCompleted
	p.ReceiptNumber = cb.ReceiptNumber
	p.ProviderTransactionID = cb.TransactionID
	p.CompletedAt = &at
	res.Status = ReconcileCompleted

	c, err := tx.FindContributionForPayment(ctx, p)
	if err != nil {
		return err
	}
	switch {
	case c == nil:
		logger.Warn().Str("payment_reference", p.Reference).Msg("completed payment has no contribution")
	case c.Status == entity.ContributionStatusPledged || c.Status == entity.ContributionStatusProcessing:
		return tx.UpdateContributionStatus(ctx, c.ID, entity.ContributionStatusPaid)
	case c.Status != entity.ContributionStatusPaid:
		logger.Warn().Str("payment_reference", p.Reference).Int64("contribution_id", c.ID).
			Str("contribution_status", string(c.Status)).Msg("payment completed for a closed contribution")
	}
	return nil
}

// fail marks the payment failed. A provisional contribution linked to this
// payment on a still pending order is failed too and taken back off the
// running total; once the order is confirmed the contribution is left for
// manual follow-up.
func (s *PaymentService) fail(ctx context.Context, tx *repository.Repository, p *entity.Payment, cb *provider.CallbackResult, res *ReconciliationResult) error {
	order, err := tx.LockOrder(ctx, p.OrderID)
	if err != nil {
		return err
	}
	ok, err := tx.FailPayment(ctx, p.ID, entity.PaymentStatusProcessing, cb.FailureReason)
	if err != nil {
		return err
	}
	if !ok {
		res.Status = ReconcileDuplicate
		return nil
	}
	p.Status = entity.PaymentStatusFailed
	p.FailureReason = cb.FailureReason
	res.Status = ReconcileFailed

	c, err := tx.FindContributionForPayment(ctx, p)
	if err != nil || c == nil {
		return err
	}
	// only the contribution this payment was made for is touched
	if c.PaymentReference != p.Reference {
		logger.Warn().Str("payment_reference", p.Reference).Int64("contribution_id", c.ID).
			Msg("failed payment is not linked to a contribution, funding left unchanged")
		return nil
	}
	switch c.Status {
	case entity.ContributionStatusPledged, entity.ContributionStatusProcessing:
		return tx.UpdateContributionStatus(ctx, c.ID, entity.ContributionStatusFailed)
	case entity.ContributionStatusPaid:
		if order == nil || order.Status != entity.OrderStatusPending {
			logger.Warn().Str("payment_reference", p.Reference).Int64("contribution_id", c.ID).
				Msg("payment failed after order confirmation, contribution needs manual review")
			return nil
		}
		if err := tx.UpdateContributionStatus(ctx, c.ID, entity.ContributionStatusFailed); err != nil {
			return err
		}
		order.CurrentAmount = order.CurrentAmount.Sub(c.Amount)
		if order.CurrentAmount.IsNegative() {
			order.CurrentAmount = decimal.Zero
		}
		return tx.UpdateOrderFunding(ctx, order)
	}
	return nil
}

func (s *PaymentService) publish(ctx context.Context, eventType string, p *entity.Payment) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, p.OrderID, p); err != nil {
		logger.Error().Err(err).Str("type", eventType).Str("payment_reference", p.Reference).Msg("Error publishing payment event")
	}
}
