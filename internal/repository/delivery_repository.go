package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shiramwangi/gawa/internal/entity"
)

const deliveryColumns = `id, delivery_reference, order_id, delivery_person_id, status, fee, pickup_address, delivery_address,
	notes, customer_rating, customer_feedback, created_at, assigned_at, picked_up_at, delivered_at`

func scanDelivery(s rowScanner) (*entity.Delivery, error) {
	var d entity.Delivery
	var status string
	var person, rating sql.NullInt64
	var notes, feedback sql.NullString
	var assigned, pickedUp, delivered sql.NullTime
	err := s.Scan(&d.ID, &d.Reference, &d.OrderID, &person, &status, &d.Fee, &d.PickupAddress, &d.DeliveryAddress,
		&notes, &rating, &feedback, &d.CreatedAt, &assigned, &pickedUp, &delivered)
	if err != nil {
		return nil, err
	}
	d.Status = entity.DeliveryStatus(status)
	d.DeliveryPersonID = int64Ptr(person)
	if rating.Valid {
		v := int(rating.Int64)
		d.CustomerRating = &v
	}
	d.Notes = notes.String
	d.CustomerFeedback = feedback.String
	d.AssignedAt = timePtr(assigned)
	d.PickedUpAt = timePtr(pickedUp)
	d.DeliveredAt = timePtr(delivered)
	return &d, nil
}

func (r *Repository) CreateDelivery(ctx context.Context, d *entity.Delivery) (*entity.Delivery, error) {
	if d.Status == "" {
		d.Status = entity.DeliveryStatusPending
	}
	d.CreatedAt = now()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO deliveries (delivery_reference, order_id, status, fee, pickup_address, delivery_address, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Reference, d.OrderID, string(d.Status), d.Fee, d.PickupAddress, d.DeliveryAddress, nullString(d.Notes), d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "delivery_reference") {
			return nil, fmt.Errorf("insert delivery: %w", ErrDuplicateReference)
		}
		return nil, fmt.Errorf("insert delivery: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	d.ID = id
	return d, nil
}

// GetDeliveryByOrderID returns nil, nil when the order has no delivery.
func (r *Repository) GetDeliveryByOrderID(ctx context.Context, orderID int64) (*entity.Delivery, error) {
	return r.queryDelivery(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE order_id = ?`, orderID)
}

func (r *Repository) GetDeliveryByID(ctx context.Context, id int64) (*entity.Delivery, error) {
	return r.queryDelivery(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id = ?`, id)
}

func (r *Repository) queryDelivery(ctx context.Context, query string, args ...any) (*entity.Delivery, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	d, err := scanDelivery(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	return d, nil
}

// UpdateDeliveryStatus writes the status, courier and timestamps of d, provided
// the stored status is still from. It reports false when another writer got there first.
func (r *Repository) UpdateDeliveryStatus(ctx context.Context, d *entity.Delivery, from entity.DeliveryStatus) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx,
		`UPDATE deliveries SET status = ?, delivery_person_id = ?, notes = ?, assigned_at = ?, picked_up_at = ?, delivered_at = ?
		WHERE id = ? AND status = ?`,
		string(d.Status), nullInt64(d.DeliveryPersonID), nullString(d.Notes),
		nullTime(d.AssignedAt), nullTime(d.PickedUpAt), nullTime(d.DeliveredAt), d.ID, string(from))
	if err != nil {
		return false, fmt.Errorf("update delivery %d: %w", d.ID, err)
	}
	return affected(res)
}

// RateDelivery stores the customer's rating on a delivered, not yet rated delivery.
func (r *Repository) RateDelivery(ctx context.Context, id int64, rating int, feedback string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx,
		`UPDATE deliveries SET customer_rating = ?, customer_feedback = ?
		WHERE id = ? AND status = ? AND customer_rating IS NULL`,
		rating, nullString(feedback), id, string(entity.DeliveryStatusDelivered))
	if err != nil {
		return false, fmt.Errorf("rate delivery %d: %w", id, err)
	}
	return affected(res)
}
