package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiramwangi/gawa/internal/entity"
	"github.com/shiramwangi/gawa/internal/events"
)

func successCallback(requestID string) []byte {
	return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{
		"MerchantRequestID":"m-1","CheckoutRequestID":%q,"ResultCode":0,"ResultDesc":"ok",
		"CallbackMetadata":{"Item":[{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},{"Name":"TransactionDate","Value":20191219102115}]}}}}`,
		requestID))
}

func failureCallback(requestID string) []byte {
	return []byte(fmt.Sprintf(`{"Body":{"stkCallback":{
		"MerchantRequestID":"m-1","CheckoutRequestID":%q,"ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`,
		requestID))
}

func (h *harness) contributeAndPay(t *testing.T, orderID, userID int64, amount string) *entity.Payment {
	t.Helper()
	ctx := context.Background()
	_, err := h.orders.ApplyContribution(ctx, orderID, userID, amt(amount), "")
	require.NoError(t, err)
	p, err := h.payments.InitPayment(ctx, InitPaymentRequest{UserID: userID, OrderID: orderID, Amount: amt(amount), Phone: "254700000000"})
	require.NoError(t, err)
	require.Equal(t, entity.PaymentStatusProcessing, p.Status)
	return p
}

func TestInitPayment_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.newOrder(t, "1000")
	req := InitPaymentRequest{UserID: 2, OrderID: o.ID, Amount: amt("400"), Phone: "254700000000"}

	first, err := h.payments.InitPayment(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusProcessing, first.Status)
	assert.Equal(t, entity.PaymentMethodMpesa, first.Method)
	assert.Regexp(t, `^PAY-[0-9A-F]{8}$`, first.Reference)
	assert.NotEmpty(t, first.ProviderRequestID)

	second, err := h.payments.InitPayment(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Reference, second.Reference)

	// a different amount is a different payment
	third, err := h.payments.InitPayment(ctx, InitPaymentRequest{UserID: 2, OrderID: o.ID, Amount: amt("300"), Phone: "254700000000"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PaymentsInitiated.WithLabelValues("mpesa", "reused")))
}

func TestInitPayment_RetriesReferenceCollision(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.newOrder(t, "1000")

	first, err := h.payments.InitPayment(ctx, InitPaymentRequest{UserID: 2, OrderID: o.ID, Amount: amt("100"), Phone: "254700000000"})
	require.NoError(t, err)

	generate := newReference
	t.Cleanup(func() { newReference = generate })
	calls := 0
	newReference = func(prefix string) string {
		calls++
		if calls == 1 {
			return first.Reference
		}
		return generate(prefix)
	}

	second, err := h.payments.InitPayment(ctx, InitPaymentRequest{UserID: 3, OrderID: o.ID, Amount: amt("200"), Phone: "254700000000"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NotEqual(t, first.Reference, second.Reference)
	assert.Equal(t, entity.PaymentStatusProcessing, second.Status)
}

func TestInitPayment_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.newOrder(t, "1000")

	_, err := h.payments.InitPayment(ctx, InitPaymentRequest{UserID: 2, OrderID: o.ID, Amount: amt("0")})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = h.payments.InitPayment(ctx, InitPaymentRequest{UserID: 2, OrderID: o.ID, Amount: amt("10"), Method: entity.PaymentMethodCard})
	assert.ErrorAs(t, err, &ve)

	_, err = h.payments.InitPayment(ctx, InitPaymentRequest{UserID: 2, OrderID: 404, Amount: amt("10")})
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestInitPayment_ProviderRefusalFailsPayment(t *testing.T) {
	h := newHarness(t)
	o := h.newOrder(t, "1000")

	// no phone number: the STK push cannot be sent
	p, err := h.payments.InitPayment(context.Background(), InitPaymentRequest{UserID: 2, OrderID: o.ID, Amount: amt("10")})
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusFailed, p.Status)
	assert.NotEmpty(t, p.FailureReason)

	stored, err := h.payments.GetPayment(context.Background(), p.Reference)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusFailed, stored.Status)
}

func TestInitPayment_LinksContribution(t *testing.T) {
	h := newHarness(t)
	o := h.newOrder(t, "1000")
	p := h.contributeAndPay(t, o.ID, 2, "400")

	require.NotNil(t, p.ContributionID)
	got := h.reload(t, o.ID)
	require.Len(t, got.Contributions, 1)
	assert.Equal(t, p.Reference, got.Contributions[0].PaymentReference)
}

func TestHandleCallback_SuccessIsAppliedOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.newOrder(t, "1000")
	p := h.contributeAndPay(t, o.ID, 2, "400")

	res := h.payments.HandleCallback(ctx, "mpesa", successCallback(p.ProviderRequestID))
	assert.Equal(t, ReconcileCompleted, res.Status)
	assert.Equal(t, p.Reference, res.TransactionID)

	res = h.payments.HandleCallback(ctx, "mpesa", successCallback(p.ProviderRequestID))
	assert.Equal(t, ReconcileDuplicate, res.Status)
	assert.Equal(t, p.Reference, res.TransactionID)

	stored, err := h.payments.GetPayment(ctx, p.Reference)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusCompleted, stored.Status)
	assert.Equal(t, "NLJ7RT61SV", stored.ReceiptNumber)
	assert.Equal(t, "20191219102115", stored.ProviderTransactionID)
	assert.NotNil(t, stored.CompletedAt)

	got := h.reload(t, o.ID)
	assertAmount(t, "400", got.CurrentAmount)
	assert.Equal(t, entity.ContributionStatusPaid, got.Contributions[0].Status)
	assert.Equal(t, 1, h.publisher.count(events.PaymentCompleted))
}

func TestHandleCallback_FailureRevertsPendingFunding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.newOrder(t, "1000")
	h.contributeAndPay(t, o.ID, 2, "300")
	p := h.contributeAndPay(t, o.ID, 3, "400")

	res := h.payments.HandleCallback(ctx, "mpesa", failureCallback(p.ProviderRequestID))
	assert.Equal(t, ReconcileFailed, res.Status)

	stored, err := h.payments.GetPayment(ctx, p.Reference)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusFailed, stored.Status)
	assert.Equal(t, "Request cancelled by user", stored.FailureReason)

	got := h.reload(t, o.ID)
	assertAmount(t, "300", got.CurrentAmount)
	assert.Equal(t, entity.ContributionStatusPaid, got.Contributions[0].Status)
	assert.Equal(t, entity.ContributionStatusFailed, got.Contributions[1].Status)

	sum, err := h.repo.SumPaidContributions(ctx, o.ID)
	require.NoError(t, err)
	assert.True(t, sum.Equal(got.CurrentAmount))

	// a retried failure callback changes nothing
	res = h.payments.HandleCallback(ctx, "mpesa", failureCallback(p.ProviderRequestID))
	assert.Equal(t, ReconcileDuplicate, res.Status)
	assertAmount(t, "300", h.reload(t, o.ID).CurrentAmount)
}

func TestHandleCallback_FailureAfterConfirmationKeepsFunding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.newOrder(t, "1000")
	h.contributeAndPay(t, o.ID, 2, "400")
	p := h.contributeAndPay(t, o.ID, 3, "600")

	res := h.payments.HandleCallback(ctx, "mpesa", failureCallback(p.ProviderRequestID))
	assert.Equal(t, ReconcileFailed, res.Status)

	got := h.reload(t, o.ID)
	assert.Equal(t, entity.OrderStatusConfirmed, got.Status)
	assertAmount(t, "1000", got.CurrentAmount)
	assert.Equal(t, entity.ContributionStatusPaid, got.Contributions[1].Status)
}

func TestHandleCallback_FailureLeavesOtherUsersContribution(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.newOrder(t, "1000")
	settled := h.contributeAndPay(t, o.ID, 2, "100")
	require.Equal(t, ReconcileCompleted, h.payments.HandleCallback(ctx, "mpesa", successCallback(settled.ProviderRequestID)).Status)

	// user 5 never contributed, so their payment links to nothing
	stray, err := h.payments.InitPayment(ctx, InitPaymentRequest{UserID: 5, OrderID: o.ID, Amount: amt("100"), Phone: "254711111111"})
	require.NoError(t, err)
	require.Equal(t, entity.PaymentStatusProcessing, stray.Status)
	require.Nil(t, stray.ContributionID)

	res := h.payments.HandleCallback(ctx, "mpesa", failureCallback(stray.ProviderRequestID))
	assert.Equal(t, ReconcileFailed, res.Status)

	got := h.reload(t, o.ID)
	assertAmount(t, "100", got.CurrentAmount)
	require.Len(t, got.Contributions, 1)
	assert.Equal(t, entity.ContributionStatusPaid, got.Contributions[0].Status)
	assert.Equal(t, settled.Reference, got.Contributions[0].PaymentReference)
}

func TestHandleCallback_NoMatchAndBadInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res := h.payments.HandleCallback(ctx, "mpesa", successCallback("ws_CO_unknown"))
	assert.Equal(t, ReconcileNoMatch, res.Status)

	res = h.payments.HandleCallback(ctx, "mpesa", []byte(`{"garbage":true}`))
	assert.Equal(t, ReconcileError, res.Status)

	res = h.payments.HandleCallback(ctx, "paypal", successCallback("x"))
	assert.Equal(t, ReconcileError, res.Status)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PaymentCallbacks.WithLabelValues("mpesa", ReconcileNoMatch)))
}

func TestHandleCallback_MatchesOnlyByProviderHandle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	o := h.newOrder(t, "1000")
	first := h.contributeAndPay(t, o.ID, 2, "100")
	second := h.contributeAndPay(t, o.ID, 3, "200")

	res := h.payments.HandleCallback(ctx, "mpesa", successCallback(second.ProviderRequestID))
	require.Equal(t, ReconcileCompleted, res.Status)
	assert.Equal(t, second.Reference, res.TransactionID)

	stored, err := h.payments.GetPayment(ctx, first.Reference)
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentStatusProcessing, stored.Status)
}

func TestGetPayment_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.payments.GetPayment(context.Background(), "PAY-NOPE")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}
