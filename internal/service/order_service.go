package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/shiramwangi/gawa/internal/entity"
	"github.com/shiramwangi/gawa/internal/events"
	"github.com/shiramwangi/gawa/internal/idempotency"
	"github.com/shiramwangi/gawa/internal/metrics"
	"github.com/shiramwangi/gawa/internal/repository"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

const defaultDeadlineMinutes = 60

// OrderService is the funding engine for pooled orders.
type OrderService struct {
	repo       *repository.Repository
	catalog    MealCatalog
	deliveries *DeliveryService
	publisher  events.Publisher
	idem       idempotency.Store
	metrics    *metrics.Metrics
	now        func() time.Time
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(repo *repository.Repository, catalog MealCatalog, deliveries *DeliveryService,
	publisher events.Publisher, idem idempotency.Store, m *metrics.Metrics) *OrderService {
	if idem == nil {
		idem = idempotency.Nop{}
	}
	return &OrderService{
		repo:       repo,
		catalog:    catalog,
		deliveries: deliveries,
		publisher:  publisher,
		idem:       idem,
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

type CreateOrderRequest struct {
	MealID               int64           `json:"meal_id"`
	TargetAmount         decimal.Decimal `json:"target_amount"`
	DeadlineMinutes      *int            `json:"deadline_minutes,omitempty"`
	DeliveryAddress      string          `json:"delivery_address,omitempty"`
	DeliveryPhone        string          `json:"delivery_phone,omitempty"`
	DeliveryInstructions string          `json:"delivery_instructions,omitempty"`

	IdempotencyKey string `json:"-"`
}

func validateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &ValidationError{Msg: fmt.Sprintf("non-positive %s", field)}
	}
	if !amount.Equal(amount.Round(2)) {
		return &ValidationError{Msg: fmt.Sprintf("%s has more than two decimal places", field)}
	}
	return nil
}

// CreateOrder opens a pending pooled order for a meal.
func (s *OrderService) CreateOrder(ctx context.Context, customerID int64, req CreateOrderRequest) (*entity.Order, error) {
	if err := validateAmount("target_amount", req.TargetAmount); err != nil {
		return nil, err
	}
	minutes := defaultDeadlineMinutes
	if req.DeadlineMinutes != nil {
		minutes = *req.DeadlineMinutes
	}
	if minutes <= 0 {
		return nil, &ValidationError{Msg: "deadline_minutes must be positive"}
	}

	meal, err := s.catalog.Meal(ctx, req.MealID)
	if err != nil {
		logger.Error().Err(err).Msgf("Error getting meal %d", req.MealID)
		return nil, err
	}

	scope := fmt.Sprintf("orders:%d", customerID)
	claimed, err := s.idem.Claim(ctx, scope, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrDuplicateRequest
	}

	deadline := s.now().Add(time.Duration(minutes) * time.Minute).Truncate(time.Second)
	order, err := withReference("ORD", func(ref string) (*entity.Order, error) {
		return s.repo.CreateOrder(ctx, &entity.Order{
			OrderNumber:          ref,
			CustomerID:           customerID,
			RestaurantID:         meal.RestaurantID,
			MealID:               meal.ID,
			Status:               entity.OrderStatusPending,
			TargetAmount:         req.TargetAmount,
			CurrentAmount:        decimal.Zero,
			TotalAmount:          decimal.Zero,
			DeliveryAddress:      req.DeliveryAddress,
			DeliveryPhone:        req.DeliveryPhone,
			DeliveryInstructions: req.DeliveryInstructions,
			DeadlineAt:           &deadline,
		})
	})
	if err != nil {
		logger.Error().Err(err).Msg("Error creating order")
		s.releaseKey(ctx, scope, req.IdempotencyKey, err)
		return nil, err
	}

	s.publish(ctx, events.OrderCreated, order.ID, order)
	return order, nil
}

// GetOrder returns an order together with its contributions.
func (s *OrderService) GetOrder(ctx context.Context, id int64) (*entity.Order, error) {
	order, err := s.repo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, &NotFoundError{Resource: "order", ID: id}
	}
	order.Contributions, err = s.repo.ContributionsForOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders returns orders newest first, optionally filtered by status.
func (s *OrderService) ListOrders(ctx context.Context, status string, limit, offset int) ([]entity.Order, error) {
	params := repository.ListOrdersParams{Limit: limit, Offset: offset}
	if status != "" {
		st := entity.OrderStatus(status)
		if !st.Valid() {
			return nil, &ValidationError{Msg: "invalid status filter"}
		}
		params.Status = &st
	}
	orders, err := s.repo.ListOrders(ctx, params)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []entity.Order{}
	}
	return orders, nil
}

// ApplyContribution records userID's contribution of amount toward an order.
// The order row stays locked for the whole unit, so concurrent contributions
// are serialized and each one sees the remaining amount left by the previous.
// The contribution that completes the target confirms the order and spawns its
// delivery in the same transaction.
func (s *OrderService) ApplyContribution(ctx context.Context, orderID, userID int64, amount decimal.Decimal, idempotencyKey string) (contribution *entity.Contribution, err error) {
	defer func() {
		switch {
		case err == nil:
			s.metrics.Contribution("accepted")
		case isClientError(err):
			s.metrics.Contribution("rejected")
		default:
			s.metrics.Contribution("error")
		}
	}()

	if err := validateAmount("amount", amount); err != nil {
		return nil, err
	}

	scope := fmt.Sprintf("contributions:%d:%d", orderID, userID)
	claimed, err := s.idem.Claim(ctx, scope, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrDuplicateRequest
	}

	var order *entity.Order
	var delivery *entity.Delivery
	var spawned bool
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		var err error
		order, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return &NotFoundError{Resource: "order", ID: orderID}
		}

		remaining := order.Remaining()
		switch order.Status {
		case entity.OrderStatusCancelled:
			return &InvalidStateError{Msg: "order is cancelled"}
		case entity.OrderStatusPending:
			if order.Expired(s.now()) {
				return &ValidationError{Msg: "funding deadline passed"}
			}
		default:
			remaining = decimal.Zero
		}
		if amount.GreaterThan(remaining) {
			return &ValidationError{Msg: "exceeds remaining target"}
		}

		contribution, err = tx.CreateContribution(ctx, &entity.Contribution{
			OrderID: order.ID,
			UserID:  userID,
			Amount:  amount,
			Status:  entity.ContributionStatusPaid,
		})
		if err != nil {
			return err
		}

		order.CurrentAmount = order.CurrentAmount.Add(amount)
		if order.FullyFunded() {
			order.Status = entity.OrderStatusConfirmed
			order.TotalAmount = order.TargetAmount
			delivery, spawned, err = s.deliveries.SpawnForOrder(ctx, tx, order)
			if err != nil {
				return err
			}
		}
		return tx.UpdateOrderFunding(ctx, order)
	})
	if err != nil {
		if !isClientError(err) {
			logger.Error().Err(err).Int64("order_id", orderID).Msg("Error applying contribution")
		}
		s.releaseKey(ctx, scope, idempotencyKey, err)
		return nil, err
	}

	logger.Info().Int64("order_id", order.ID).Int64("user_id", userID).Str("amount", amount.String()).
		Str("current_amount", order.CurrentAmount.String()).Msg("contribution applied")
	s.publish(ctx, events.ContributionApplied, order.ID, contribution)

	if order.Status == entity.OrderStatusConfirmed {
		s.metrics.OrderConfirmed()
		s.publish(ctx, events.OrderConfirmed, order.ID, order)
		if spawned {
			s.deliveries.Dispatch(ctx, delivery)
		}
	}
	return contribution, nil
}

// CancelOrder cancels a pending order on behalf of its customer. Paid
// contributions are cancelled with it and the running total is reset.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, userID int64) (*entity.Order, error) {
	var order *entity.Order
	err := s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		var err error
		order, err = tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return &NotFoundError{Resource: "order", ID: orderID}
		}
		if order.CustomerID != userID {
			return &ForbiddenError{Msg: "only the order's customer can cancel it"}
		}
		if order.Status != entity.OrderStatusPending {
			return &InvalidStateError{Msg: fmt.Sprintf("cannot cancel a %s order", order.Status)}
		}

		if _, err := tx.CancelPaidContributions(ctx, order.ID); err != nil {
			return err
		}
		order.Status = entity.OrderStatusCancelled
		order.CurrentAmount = decimal.Zero
		return tx.UpdateOrderFunding(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderCancelled()
	s.publish(ctx, events.OrderCancelled, order.ID, order)
	return order, nil
}

func (s *OrderService) publish(ctx context.Context, eventType string, orderID int64, data any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventType, orderID, data); err != nil {
		logger.Error().Err(err).Str("type", eventType).Int64("order_id", orderID).Msg("Error publishing order event")
	}
}

// releaseKey hands a claimed Idempotency-Key back after a server-side failure
// so the client can retry with it. Rejected requests keep their claim.
func (s *OrderService) releaseKey(ctx context.Context, scope, key string, err error) {
	if key == "" || isClientError(err) {
		return
	}
	if rerr := s.idem.Release(context.WithoutCancel(ctx), scope, key); rerr != nil {
		logger.Error().Err(rerr).Str("scope", scope).Msg("Error releasing idempotency key")
	}
}

func isClientError(err error) bool {
	var ve *ValidationError
	var nf *NotFoundError
	var is *InvalidStateError
	var fb *ForbiddenError
	return errors.As(err, &ve) || errors.As(err, &nf) || errors.As(err, &is) || errors.As(err, &fb) ||
		errors.Is(err, ErrDuplicateRequest)
}
