package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shiramwangi/gawa/internal/entity"
)

const orderColumns = `id, order_number, customer_id, restaurant_id, meal_id, status, target_amount, current_amount, total_amount,
	delivery_address, delivery_phone, delivery_instructions, deadline_at, created_at, updated_at`

func scanOrder(s rowScanner) (*entity.Order, error) {
	var o entity.Order
	var status string
	var phone, instructions sql.NullString
	var deadline sql.NullTime
	err := s.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.RestaurantID, &o.MealID, &status,
		&o.TargetAmount, &o.CurrentAmount, &o.TotalAmount,
		&o.DeliveryAddress, &phone, &instructions, &deadline, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = entity.OrderStatus(status)
	o.DeliveryPhone = phone.String
	o.DeliveryInstructions = instructions.String
	o.DeadlineAt = timePtr(deadline)
	return &o, nil
}

// CreateOrder inserts a new order. Status defaults to pending.
func (r *Repository) CreateOrder(ctx context.Context, o *entity.Order) (*entity.Order, error) {
	if o == nil {
		return nil, errors.New("order is nil")
	}
	if o.Status == "" {
		o.Status = entity.OrderStatusPending
	}
	ts := now()
	o.CreatedAt, o.UpdatedAt = ts, ts

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `INSERT INTO orders (order_number, customer_id, restaurant_id, meal_id, status, target_amount, current_amount, total_amount,
		delivery_address, delivery_phone, delivery_instructions, deadline_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, o.OrderNumber, o.CustomerID, o.RestaurantID, o.MealID, string(o.Status),
		o.TargetAmount, o.CurrentAmount, o.TotalAmount, o.DeliveryAddress, nullString(o.DeliveryPhone),
		nullString(o.DeliveryInstructions), nullTime(o.DeadlineAt), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "order_number") {
			return nil, fmt.Errorf("insert order: %w", ErrDuplicateReference)
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	o.ID = id
	return o, nil
}

// GetOrderByID returns nil, nil when the order does not exist.
func (r *Repository) GetOrderByID(ctx context.Context, id int64) (*entity.Order, error) {
	return r.getOrder(ctx, id, "")
}

// LockOrder reads the order and holds an exclusive lock on its row until the
// surrounding transaction ends. It must be called on a transaction-bound Repository.
func (r *Repository) LockOrder(ctx context.Context, id int64) (*entity.Order, error) {
	if !r.InTx() {
		return nil, errors.New("LockOrder requires a transaction")
	}
	return r.getOrder(ctx, id, r.dialect.LockClause())
}

func (r *Repository) getOrder(ctx context.Context, id int64, suffix string) (*entity.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`+suffix, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	return o, nil
}

// UpdateOrderFunding writes the running totals and status of an order.
func (r *Repository) UpdateOrderFunding(ctx context.Context, o *entity.Order) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	o.UpdatedAt = now()
	_, err := r.db.ExecContext(ctx, `UPDATE orders SET status = ?, current_amount = ?, total_amount = ?, updated_at = ? WHERE id = ?`,
		string(o.Status), o.CurrentAmount, o.TotalAmount, o.UpdatedAt, o.ID)
	if err != nil {
		return fmt.Errorf("update order %d funding: %w", o.ID, err)
	}
	return nil
}

func (r *Repository) UpdateOrderStatus(ctx context.Context, id int64, status entity.OrderStatus) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`, string(status), now(), id)
	if err != nil {
		return fmt.Errorf("update order %d status: %w", id, err)
	}
	return nil
}

// ListOrdersParams contains filters and pagination for ListOrders.
type ListOrdersParams struct {
	Status     *entity.OrderStatus
	CustomerID *int64
	Limit      int
	Offset     int
}

// ListOrders returns orders matching filters, newest first.
func (r *Repository) ListOrders(ctx context.Context, p ListOrdersParams) ([]entity.Order, error) {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1 = 1`
	var args []any
	if p.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*p.Status))
	}
	if p.CustomerID != nil {
		query += ` AND customer_id = ?`
		args = append(args, *p.CustomerID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, p.Limit, p.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []entity.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
