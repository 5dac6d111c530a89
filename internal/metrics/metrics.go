package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gawa"

// Metrics groups the funding and payment counters on a private registry.
// All methods are safe on a nil *Metrics.
type Metrics struct {
	Registry *prometheus.Registry

	Contributions     *prometheus.CounterVec
	OrdersConfirmed   prometheus.Counter
	OrdersCancelled   prometheus.Counter
	PaymentsInitiated *prometheus.CounterVec
	PaymentCallbacks  *prometheus.CounterVec
	DeliveriesSpawned prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Contributions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contributions_total",
			Help:      "Contribution attempts by result.",
		}, []string{"result"}),
		OrdersConfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_confirmed_total",
			Help:      "Orders that reached their target amount.",
		}),
		OrdersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_cancelled_total",
			Help:      "Pending orders cancelled by their customer.",
		}),
		PaymentsInitiated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_initiated_total",
			Help:      "Payment initiation requests by method and result.",
		}, []string{"method", "result"}),
		PaymentCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_callbacks_total",
			Help:      "Provider callbacks by provider and reconciliation result.",
		}, []string{"provider", "result"}),
		DeliveriesSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_spawned_total",
			Help:      "Delivery records created on order confirmation.",
		}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Contributions,
		m.OrdersConfirmed,
		m.OrdersCancelled,
		m.PaymentsInitiated,
		m.PaymentCallbacks,
		m.DeliveriesSpawned,
	)
	return m
}

func (m *Metrics) Contribution(result string) {
	if m != nil {
		m.Contributions.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) OrderConfirmed() {
	if m != nil {
		m.OrdersConfirmed.Inc()
	}
}

func (m *Metrics) OrderCancelled() {
	if m != nil {
		m.OrdersCancelled.Inc()
	}
}

func (m *Metrics) PaymentInitiated(method, result string) {
	if m != nil {
		m.PaymentsInitiated.WithLabelValues(method, result).Inc()
	}
}

func (m *Metrics) PaymentCallback(provider, result string) {
	if m != nil {
		m.PaymentCallbacks.WithLabelValues(provider, result).Inc()
	}
}

func (m *Metrics) DeliverySpawned() {
	if m != nil {
		m.DeliveriesSpawned.Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
