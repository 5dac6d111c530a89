package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shiramwangi/gawa/internal/entity"
	"github.com/shiramwangi/gawa/internal/events"
	"github.com/shiramwangi/gawa/internal/metrics"
	"github.com/shiramwangi/gawa/internal/repository"
)

// FeeCalculator prices the delivery of a confirmed order.
type FeeCalculator interface {
	Fee(ctx context.Context, o *entity.Order) (decimal.Decimal, error)
}

// FlatFee charges the same fee for every delivery.
type FlatFee struct {
	Amount decimal.Decimal
}

func (f FlatFee) Fee(context.Context, *entity.Order) (decimal.Decimal, error) {
	return f.Amount, nil
}

// DeliveryService spawns deliveries for confirmed orders and moves them
// through their lifecycle.
type DeliveryService struct {
	repo       *repository.Repository
	fees       FeeCalculator
	dispatcher events.DeliveryDispatcher
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewDeliveryService(repo *repository.Repository, fees FeeCalculator, dispatcher events.DeliveryDispatcher, m *metrics.Metrics) *DeliveryService {
	if fees == nil {
		fees = FlatFee{Amount: decimal.Zero}
	}
	return &DeliveryService{
		repo:       repo,
		fees:       fees,
		dispatcher: dispatcher,
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SpawnForOrder creates the delivery of a just-confirmed order inside the
// confirmation transaction tx. When the order already has a delivery it is
// returned unchanged and created is false.
func (s *DeliveryService) SpawnForOrder(ctx context.Context, tx *repository.Repository, o *entity.Order) (d *entity.Delivery, created bool, err error) {
	if !tx.InTx() {
		return nil, false, errors.New("deliveries are spawned inside the confirmation transaction")
	}

	existing, err := tx.GetDeliveryByOrderID(ctx, o.ID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		logger.Info().Int64("order_id", o.ID).Str("delivery_reference", existing.Reference).Msg("delivery already exists for order")
		return existing, false, nil
	}

	fee, err := s.fees.Fee(ctx, o)
	if err != nil || fee.IsNegative() {
		logger.Warn().Err(err).Int64("order_id", o.ID).Msg("fee calculation failed, charging no delivery fee")
		fee = decimal.Zero
	}

	address := o.DeliveryAddress
	if address == "" {
		address = entity.UnknownDeliveryAddress
	}

	d, err = withReference("DEL", func(ref string) (*entity.Delivery, error) {
		return tx.CreateDelivery(ctx, &entity.Delivery{
			Reference:       ref,
			OrderID:         o.ID,
			Status:          entity.DeliveryStatusPending,
			Fee:             fee,
			PickupAddress:   fmt.Sprintf("Restaurant #%d", o.RestaurantID),
			DeliveryAddress: address,
			Notes:           o.DeliveryInstructions,
		})
	})
	if err != nil {
		return nil, false, err
	}
	return d, true, nil
}

// Dispatch hands a committed delivery to the dispatcher. Failures are logged.
func (s *DeliveryService) Dispatch(ctx context.Context, d *entity.Delivery) {
	s.metrics.DeliverySpawned()
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, d); err != nil {
		logger.Error().Err(err).Int64("delivery_id", d.ID).Msg("Error dispatching delivery")
	}
}

// GetForOrder returns the delivery of an order.
func (s *DeliveryService) GetForOrder(ctx context.Context, orderID int64) (*entity.Delivery, error) {
	o, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, &NotFoundError{Resource: "order", ID: orderID}
	}
	d, err := s.repo.GetDeliveryByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, &NotFoundError{Resource: "delivery for order", ID: orderID}
	}
	return d, nil
}

// orderStatusFor is the order status implied by a delivery reaching a status.
var orderStatusFor = map[entity.DeliveryStatus]entity.OrderStatus{
	entity.DeliveryStatusPickedUp:  entity.OrderStatusOutForDelivery,
	entity.DeliveryStatusDelivered: entity.OrderStatusDelivered,
}

// AdvanceStatus moves a delivery one step along its lifecycle. Assigning
// requires a delivery person.
func (s *DeliveryService) AdvanceStatus(ctx context.Context, deliveryID int64, next entity.DeliveryStatus, personID *int64) (*entity.Delivery, error) {
	if !next.Valid() {
		return nil, &ValidationError{Msg: fmt.Sprintf("unknown delivery status %q", next)}
	}
	if next == entity.DeliveryStatusAssigned && personID == nil {
		return nil, &ValidationError{Msg: "delivery_person_id is required to assign a delivery"}
	}

	var d *entity.Delivery
	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		var err error
		d, err = tx.GetDeliveryByID(ctx, deliveryID)
		if err != nil {
			return err
		}
		if d == nil {
			return &NotFoundError{Resource: "delivery", ID: deliveryID}
		}
		from := d.Status
		if !from.CanTransitionTo(next) {
			return &InvalidStateError{Msg: fmt.Sprintf("cannot move delivery from %s to %s", from, next)}
		}

		at := s.now()
		d.Status = next
		switch next {
		case entity.DeliveryStatusAssigned:
			d.DeliveryPersonID = personID
			d.AssignedAt = &at
		case entity.DeliveryStatusPickedUp:
			d.PickedUpAt = &at
		case entity.DeliveryStatusDelivered:
			d.DeliveredAt = &at
		}

		ok, err := tx.UpdateDeliveryStatus(ctx, d, from)
		if err != nil {
			return err
		}
		if !ok {
			return &InvalidStateError{Msg: "delivery was updated concurrently"}
		}
		if status, ok := orderStatusFor[next]; ok {
			return tx.UpdateOrderStatus(ctx, d.OrderID, status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Int64("delivery_id", d.ID).Str("status", string(d.Status)).Msg("delivery status updated")
	return d, nil
}

// Rate records the customer's 1..5 rating of a delivered order. A delivery is rated once.
func (s *DeliveryService) Rate(ctx context.Context, deliveryID, userID int64, rating int, feedback string) (*entity.Delivery, error) {
	if rating < 1 || rating > 5 {
		return nil, &ValidationError{Msg: "rating must be between 1 and 5"}
	}
	d, err := s.repo.GetDeliveryByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, &NotFoundError{Resource: "delivery", ID: deliveryID}
	}
	o, err := s.repo.GetOrderByID(ctx, d.OrderID)
	if err != nil {
		return nil, err
	}
	if o == nil || o.CustomerID != userID {
		return nil, &ForbiddenError{Msg: "only the order's customer can rate its delivery"}
	}
	if d.Status != entity.DeliveryStatusDelivered {
		return nil, &InvalidStateError{Msg: "only delivered orders can be rated"}
	}

	ok, err := s.repo.RateDelivery(ctx, deliveryID, rating, feedback)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &InvalidStateError{Msg: "delivery has already been rated"}
	}
	d.CustomerRating = &rating
	d.CustomerFeedback = feedback
	return d, nil
}
