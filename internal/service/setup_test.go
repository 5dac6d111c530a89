package service

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiramwangi/gawa/internal/db"
	"github.com/shiramwangi/gawa/internal/entity"
	"github.com/shiramwangi/gawa/internal/metrics"
	"github.com/shiramwangi/gawa/internal/provider"
	"github.com/shiramwangi/gawa/internal/repository"
	"github.com/shiramwangi/gawa/internal/testutil"
)

type fakeCatalog map[int64]*Meal

func (f fakeCatalog) Meal(_ context.Context, id int64) (*Meal, error) {
	m, ok := f[id]
	if !ok {
		return nil, &NotFoundError{Resource: "meal", ID: id}
	}
	return m, nil
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, _ int64, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, eventType)
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.types {
		if t == eventType {
			n++
		}
	}
	return n
}

type recordingDispatcher struct {
	mu         sync.Mutex
	deliveries []*entity.Delivery
}

func (d *recordingDispatcher) Dispatch(_ context.Context, delivery *entity.Delivery) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deliveries = append(d.deliveries, delivery)
	return nil
}

type memIdempotency struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *memIdempotency) Claim(_ context.Context, scope, key string) (bool, error) {
	if key == "" {
		return true, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[scope+key] {
		return false, nil
	}
	m.seen[scope+key] = true
	return true, nil
}

func (m *memIdempotency) Release(_ context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, scope+key)
	return nil
}

type harness struct {
	repo       *repository.Repository
	orders     *OrderService
	deliveries *DeliveryService
	payments   *PaymentService
	publisher  *recordingPublisher
	dispatcher *recordingDispatcher
	metrics    *metrics.Metrics
}

const (
	customerID = int64(1)
	mealID     = int64(10)
)

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := repository.NewRepository(testutil.OpenTestDB(t), db.SQLite)
	h := &harness{
		repo:       repo,
		publisher:  &recordingPublisher{},
		dispatcher: &recordingDispatcher{},
		metrics:    metrics.New(),
	}
	h.deliveries = NewDeliveryService(repo, FlatFee{Amount: decimal.NewFromInt(150)}, h.dispatcher, h.metrics)
	catalog := fakeCatalog{mealID: {ID: mealID, RestaurantID: 7, Name: "Pilau", Price: decimal.NewFromInt(1000)}}
	h.orders = NewOrderService(repo, catalog, h.deliveries, h.publisher, &memIdempotency{seen: map[string]bool{}}, h.metrics)
	h.payments = NewPaymentService(repo, provider.NewRegistry(provider.NewMpesa()), h.publisher, h.metrics)
	return h
}

func (h *harness) newOrder(t *testing.T, target string) *entity.Order {
	t.Helper()
	o, err := h.orders.CreateOrder(context.Background(), customerID, CreateOrderRequest{
		MealID:          mealID,
		TargetAmount:    decimal.RequireFromString(target),
		DeliveryAddress: "Moi Avenue 12",
	})
	require.NoError(t, err)
	return o
}

func (h *harness) reload(t *testing.T, id int64) *entity.Order {
	t.Helper()
	o, err := h.orders.GetOrder(context.Background(), id)
	require.NoError(t, err)
	return o
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, got.Equal(amt(want)), "want %s, got %s", want, got)
}
