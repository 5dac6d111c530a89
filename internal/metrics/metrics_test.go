package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Contribution("accepted")
	m.Contribution("accepted")
	m.Contribution("rejected")
	m.PaymentCallback("mpesa", "duplicate")
	m.OrderConfirmed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Contributions.WithLabelValues("accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Contributions.WithLabelValues("rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentCallbacks.WithLabelValues("mpesa", "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersConfirmed))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Contribution("accepted")
		m.OrderConfirmed()
		m.OrderCancelled()
		m.PaymentInitiated("mpesa", "created")
		m.PaymentCallback("mpesa", "completed")
		m.DeliverySpawned()
	})
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.DeliverySpawned()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "gawa_deliveries_spawned_total 1")
}
