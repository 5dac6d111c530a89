package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/shiramwangi/gawa/internal/entity"
)

const contributionColumns = `id, order_id, user_id, amount, status, payment_reference, created_at, updated_at`

func scanContribution(s rowScanner) (*entity.Contribution, error) {
	var c entity.Contribution
	var status string
	var ref sql.NullString
	if err := s.Scan(&c.ID, &c.OrderID, &c.UserID, &c.Amount, &status, &ref, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = entity.ContributionStatus(status)
	c.PaymentReference = ref.String
	return &c, nil
}

func (r *Repository) CreateContribution(ctx context.Context, c *entity.Contribution) (*entity.Contribution, error) {
	ts := now()
	c.CreatedAt, c.UpdatedAt = ts, ts

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO contributions (order_id, user_id, amount, status, payment_reference, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.OrderID, c.UserID, c.Amount, string(c.Status), nullString(c.PaymentReference), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert contribution: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	c.ID = id
	return c, nil
}

// ContributionsForOrder returns every contribution of an order, oldest first.
func (r *Repository) ContributionsForOrder(ctx context.Context, orderID int64) ([]entity.Contribution, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+contributionColumns+` FROM contributions WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list contributions for order %d: %w", orderID, err)
	}
	defer rows.Close()

	var out []entity.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *Repository) GetContributionByID(ctx context.Context, id int64) (*entity.Contribution, error) {
	return r.queryContribution(ctx, `SELECT `+contributionColumns+` FROM contributions WHERE id = ?`, id)
}

// FindUnlinkedContribution returns the newest paid contribution of userID to
// orderID for amount that no payment references yet.
func (r *Repository) FindUnlinkedContribution(ctx context.Context, orderID, userID int64, amount decimal.Decimal) (*entity.Contribution, error) {
	return r.queryContribution(ctx,
		`SELECT `+contributionColumns+` FROM contributions
		WHERE order_id = ? AND user_id = ? AND amount = ? AND status = ? AND payment_reference IS NULL
		ORDER BY id DESC LIMIT 1`,
		orderID, userID, amount, string(entity.ContributionStatusPaid))
}

// FindContributionForPayment resolves the contribution a payment settles: the
// linked one when present, otherwise the oldest open contribution with the
// same order and amount that no other payment has claimed.
func (r *Repository) FindContributionForPayment(ctx context.Context, p *entity.Payment) (*entity.Contribution, error) {
	if p.ContributionID != nil {
		return r.GetContributionByID(ctx, *p.ContributionID)
	}
	return r.queryContribution(ctx,
		`SELECT `+contributionColumns+` FROM contributions
		WHERE order_id = ? AND amount = ? AND status IN (?, ?, ?)
		AND (payment_reference IS NULL OR payment_reference = ?)
		ORDER BY id LIMIT 1`,
		p.OrderID, p.Amount, string(entity.ContributionStatusPledged),
		string(entity.ContributionStatusProcessing), string(entity.ContributionStatusPaid), p.Reference)
}

func (r *Repository) queryContribution(ctx context.Context, query string, args ...any) (*entity.Contribution, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	c, err := scanContribution(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get contribution: %w", err)
	}
	return c, nil
}

func (r *Repository) UpdateContributionStatus(ctx context.Context, id int64, status entity.ContributionStatus) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE contributions SET status = ?, updated_at = ? WHERE id = ?`, string(status), now(), id)
	if err != nil {
		return fmt.Errorf("update contribution %d: %w", id, err)
	}
	return nil
}

// LinkContribution stamps the payment reference on a contribution.
func (r *Repository) LinkContribution(ctx context.Context, id int64, reference string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE contributions SET payment_reference = ?, updated_at = ? WHERE id = ?`, reference, now(), id)
	if err != nil {
		return fmt.Errorf("link contribution %d: %w", id, err)
	}
	return nil
}

// CancelPaidContributions moves every paid contribution of an order to cancelled.
func (r *Repository) CancelPaidContributions(ctx context.Context, orderID int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE contributions SET status = ?, updated_at = ? WHERE order_id = ? AND status = ?`,
		string(entity.ContributionStatusCancelled), now(), orderID, string(entity.ContributionStatusPaid))
	if err != nil {
		return 0, fmt.Errorf("cancel contributions for order %d: %w", orderID, err)
	}
	return res.RowsAffected()
}

// SumPaidContributions totals the paid contributions of an order.
func (r *Repository) SumPaidContributions(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	var sum decimal.Decimal
	err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount), 0) FROM contributions WHERE order_id = ? AND status = ?`,
		orderID, string(entity.ContributionStatusPaid)).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum contributions for order %d: %w", orderID, err)
	}
	return sum.Round(2), nil
}
