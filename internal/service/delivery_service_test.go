package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiramwangi/gawa/internal/entity"
	"github.com/shiramwangi/gawa/internal/repository"
)

func (h *harness) confirmedOrder(t *testing.T) (*entity.Order, *entity.Delivery) {
	t.Helper()
	o := h.newOrder(t, "100")
	_, err := h.orders.ApplyContribution(context.Background(), o.ID, 2, amt("100"), "")
	require.NoError(t, err)
	d, err := h.deliveries.GetForOrder(context.Background(), o.ID)
	require.NoError(t, err)
	return o, d
}

func TestSpawnForOrder_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o, existing := h.confirmedOrder(t)

	for i := 0; i < 3; i++ {
		err := h.repo.WithTx(ctx, func(tx *repository.Repository) error {
			d, created, err := h.deliveries.SpawnForOrder(ctx, tx, o)
			require.NoError(t, err)
			assert.False(t, created)
			assert.Equal(t, existing.ID, d.ID)
			return nil
		})
		require.NoError(t, err)
	}

	_, _, err := h.deliveries.SpawnForOrder(ctx, h.repo, o)
	assert.Error(t, err, "spawning outside a transaction is refused")
}

func TestSpawnForOrder_Defaults(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.deliveries.fees = failingFee{}

	o, err := h.orders.CreateOrder(ctx, customerID, CreateOrderRequest{MealID: mealID, TargetAmount: amt("50")})
	require.NoError(t, err)
	_, err = h.orders.ApplyContribution(ctx, o.ID, 2, amt("50"), "")
	require.NoError(t, err)

	d, err := h.deliveries.GetForOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.UnknownDeliveryAddress, d.DeliveryAddress)
	assertAmount(t, "0", d.Fee)
	assert.Regexp(t, `^DEL-[0-9A-F]{8}$`, d.Reference)
}

type failingFee struct{}

func (failingFee) Fee(context.Context, *entity.Order) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("pricing unavailable")
}

func TestGetForOrder_NotFound(t *testing.T) {
	h := newHarness(t)
	o := h.newOrder(t, "100")

	var nf *NotFoundError
	_, err := h.deliveries.GetForOrder(context.Background(), o.ID)
	assert.ErrorAs(t, err, &nf)
	_, err = h.deliveries.GetForOrder(context.Background(), 404)
	assert.ErrorAs(t, err, &nf)
}

func TestAdvanceStatus_Lifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o, d := h.confirmedOrder(t)

	var ve *ValidationError
	_, err := h.deliveries.AdvanceStatus(ctx, d.ID, entity.DeliveryStatusAssigned, nil)
	require.ErrorAs(t, err, &ve)

	var is *InvalidStateError
	_, err = h.deliveries.AdvanceStatus(ctx, d.ID, entity.DeliveryStatusDelivered, nil)
	require.ErrorAs(t, err, &is)

	courier := int64(42)
	d, err = h.deliveries.AdvanceStatus(ctx, d.ID, entity.DeliveryStatusAssigned, &courier)
	require.NoError(t, err)
	assert.NotNil(t, d.AssignedAt)
	assert.EqualValues(t, 42, *d.DeliveryPersonID)

	d, err = h.deliveries.AdvanceStatus(ctx, d.ID, entity.DeliveryStatusPickedUp, nil)
	require.NoError(t, err)
	assert.NotNil(t, d.PickedUpAt)
	assert.Equal(t, entity.OrderStatusOutForDelivery, h.reload(t, o.ID).Status)

	_, err = h.deliveries.AdvanceStatus(ctx, d.ID, entity.DeliveryStatusInTransit, nil)
	require.NoError(t, err)
	d, err = h.deliveries.AdvanceStatus(ctx, d.ID, entity.DeliveryStatusDelivered, nil)
	require.NoError(t, err)
	assert.NotNil(t, d.DeliveredAt)
	assert.Equal(t, entity.OrderStatusDelivered, h.reload(t, o.ID).Status)

	_, err = h.deliveries.AdvanceStatus(ctx, d.ID, entity.DeliveryStatusFailed, nil)
	assert.ErrorAs(t, err, &is, "delivered is terminal")

	_, err = h.deliveries.AdvanceStatus(ctx, d.ID, "teleported", nil)
	assert.ErrorAs(t, err, &ve)
}

func TestRate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, d := h.confirmedOrder(t)

	var is *InvalidStateError
	_, err := h.deliveries.Rate(ctx, d.ID, customerID, 5, "")
	require.ErrorAs(t, err, &is, "not delivered yet")

	courier := int64(7)
	for _, st := range []entity.DeliveryStatus{entity.DeliveryStatusAssigned, entity.DeliveryStatusPickedUp, entity.DeliveryStatusInTransit, entity.DeliveryStatusDelivered} {
		_, err = h.deliveries.AdvanceStatus(ctx, d.ID, st, &courier)
		require.NoError(t, err)
	}

	var ve *ValidationError
	_, err = h.deliveries.Rate(ctx, d.ID, customerID, 6, "")
	require.ErrorAs(t, err, &ve)

	var fb *ForbiddenError
	_, err = h.deliveries.Rate(ctx, d.ID, 99, 4, "")
	require.ErrorAs(t, err, &fb)

	rated, err := h.deliveries.Rate(ctx, d.ID, customerID, 4, "hot and on time")
	require.NoError(t, err)
	assert.Equal(t, 4, *rated.CustomerRating)

	_, err = h.deliveries.Rate(ctx, d.ID, customerID, 5, "")
	assert.ErrorAs(t, err, &is, "rated once")
}

func TestHTTPMealCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/meals/10":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":10,"restaurant_id":7,"name":"Pilau","price":"450.00"}`))
		case "/meals/11":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewHTTPMealCatalog(srv.URL, time.Second)
	meal, err := c.Meal(context.Background(), 10)
	require.NoError(t, err)
	assert.EqualValues(t, 7, meal.RestaurantID)
	assertAmount(t, "450", meal.Price)

	_, err = c.Meal(context.Background(), 99)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)

	_, err = c.Meal(context.Background(), 11)
	assert.Error(t, err)
}
