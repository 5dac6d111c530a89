package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shiramwangi/gawa/internal/entity"
)

const paymentColumns = `id, payment_reference, order_id, user_id, contribution_id, amount, currency, method, status,
	provider_request_id, receipt_number, provider_transaction_id, phone_number, failure_reason,
	created_at, updated_at, completed_at`

func scanPayment(s rowScanner) (*entity.Payment, error) {
	var p entity.Payment
	var method, status string
	var contributionID sql.NullInt64
	var requestID, receipt, txID, phone, reason sql.NullString
	var completed sql.NullTime
	err := s.Scan(&p.ID, &p.Reference, &p.OrderID, &p.UserID, &contributionID, &p.Amount, &p.Currency, &method, &status,
		&requestID, &receipt, &txID, &phone, &reason, &p.CreatedAt, &p.UpdatedAt, &completed)
	if err != nil {
		return nil, err
	}
	p.Method = entity.PaymentMethod(method)
	p.Status = entity.PaymentStatus(status)
	p.ContributionID = int64Ptr(contributionID)
	p.ProviderRequestID = requestID.String
	p.ReceiptNumber = receipt.String
	p.ProviderTransactionID = txID.String
	p.PhoneNumber = phone.String
	p.FailureReason = reason.String
	p.CompletedAt = timePtr(completed)
	return &p, nil
}

func (r *Repository) CreatePayment(ctx context.Context, p *entity.Payment) (*entity.Payment, error) {
	if p.Status == "" {
		p.Status = entity.PaymentStatusPending
	}
	if p.Currency == "" {
		p.Currency = entity.DefaultCurrency
	}
	ts := now()
	p.CreatedAt, p.UpdatedAt = ts, ts

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (payment_reference, order_id, user_id, contribution_id, amount, currency, method, status,
		provider_request_id, phone_number, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Reference, p.OrderID, p.UserID, nullInt64(p.ContributionID), p.Amount, p.Currency, string(p.Method), string(p.Status),
		nullString(p.ProviderRequestID), nullString(p.PhoneNumber), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "payment_reference") {
			return nil, fmt.Errorf("insert payment: %w", ErrDuplicateReference)
		}
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	p.ID = id
	return p, nil
}

// GetPaymentByReference returns nil, nil when no payment has that reference.
func (r *Repository) GetPaymentByReference(ctx context.Context, reference string) (*entity.Payment, error) {
	return r.queryPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE payment_reference = ?`, reference)
}

// FindActivePayment returns the pending or processing payment for
// (order, amount, method), if any.
func (r *Repository) FindActivePayment(ctx context.Context, orderID int64, amount decimal.Decimal, method entity.PaymentMethod) (*entity.Payment, error) {
	return r.queryPayment(ctx,
		`SELECT `+paymentColumns+` FROM payments
		WHERE order_id = ? AND amount = ? AND method = ? AND status IN (?, ?)
		ORDER BY id LIMIT 1`,
		orderID, amount, string(method), string(entity.PaymentStatusPending), string(entity.PaymentStatusProcessing))
}

// FindPaymentByProviderRequest looks a payment up by the handle its provider
// returned at initiation.
func (r *Repository) FindPaymentByProviderRequest(ctx context.Context, method entity.PaymentMethod, requestID string) (*entity.Payment, error) {
	if requestID == "" {
		return nil, nil
	}
	return r.queryPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE method = ? AND provider_request_id = ?`,
		string(method), requestID)
}

func (r *Repository) queryPayment(ctx context.Context, query string, args ...any) (*entity.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	p, err := scanPayment(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// MarkPaymentProcessing moves a pending payment to processing and stores the
// provider handle. It reports false when the payment was no longer pending.
func (r *Repository) MarkPaymentProcessing(ctx context.Context, id int64, requestID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = ?, provider_request_id = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(entity.PaymentStatusProcessing), requestID, now(), id, string(entity.PaymentStatusPending))
	if err != nil {
		return false, fmt.Errorf("mark payment %d processing: %w", id, err)
	}
	return affected(res)
}

// CompletePayment moves a processing payment to completed. It reports false
// when the payment was not processing, which makes repeated callbacks no-ops.
func (r *Repository) CompletePayment(ctx context.Context, id int64, receipt, transactionID string, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	at = at.UTC().Truncate(time.Microsecond)
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = ?, receipt_number = ?, provider_transaction_id = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(entity.PaymentStatusCompleted), nullString(receipt), nullString(transactionID), at, now(),
		id, string(entity.PaymentStatusProcessing))
	if err != nil {
		return false, fmt.Errorf("complete payment %d: %w", id, err)
	}
	return affected(res)
}

// FailPayment moves a payment from status from to failed.
func (r *Repository) FailPayment(ctx context.Context, id int64, from entity.PaymentStatus, reason string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = ?, failure_reason = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(entity.PaymentStatusFailed), nullString(reason), now(), id, string(from))
	if err != nil {
		return false, fmt.Errorf("fail payment %d: %w", id, err)
	}
	return affected(res)
}
