package service

import (
	"context"
	"fmt"
	"testing"

	"payment-service/internal/apperr"
	"payment-service/internal/gateway"
	"payment-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rejectingGateway struct {
	gateway.Gateway
}

func (rejectingGateway) VerifyWebhook(payload []byte, signature string) (*gateway.Event, error) {
	return nil, apperr.Signaturef("invalid webhook signature")
}

func newTestReconciler(st *fakeStore, gw gateway.Gateway) (*Reconciler, *fakeSink, *fakeCache) {
	sink := &fakeSink{}
	cache := newFakeCache()
	return NewReconciler(st, cache, selectorFor(gw), sink), sink, cache
}

func succeededPayload(eventID, intentID string, orderID int64, amount string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"type":"payment_intent.succeeded","payment_intent":%q,"order_id":"%d","amount":%q,"currency":"USD"}`,
		eventID, intentID, orderID, amount))
}

func TestWebhookSucceededAppliedOnce(t *testing.T) {
	st := newFakeStore()
	seedOrder(st, true)
	r, sink, _ := newTestReconciler(st, gateway.NewTestGateway())
	ctx := context.Background()

	payload := succeededPayload("evt_1", "pi_test_abc", 1, "50.00")

	require.NoError(t, r.HandleEvent(ctx, 7, payload, "sig"))

	payments, _ := st.ListPayments(ctx, 1)
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentStatusPaid, payments[0].Status)
	assert.Equal(t, "pi_test_abc", payments[0].PaymentID)
	assert.Equal(t, models.OrderStatusPaid, st.orders[1].Status)
	assert.Equal(t, models.PaymentStatusPaid, st.orders[1].PaymentStatus)
	assert.Len(t, sink.captured, 1)

	// Second delivery of the same event is a no-op.
	require.NoError(t, r.HandleEvent(ctx, 7, payload, "sig"))
	payments, _ = st.ListPayments(ctx, 1)
	assert.Len(t, payments, 1, "duplicate delivery must not double-count the ledger")
	assert.Len(t, sink.captured, 1)
}

func TestWebhookSucceededReappliedIdentifierIsNoOp(t *testing.T) {
	st := newFakeStore()
	seedOrder(st, true)
	r, sink, _ := newTestReconciler(st, gateway.NewTestGateway())
	ctx := context.Background()

	// Same intent delivered under two distinct event ids, as processors do
	// on retries with regenerated events.
	require.NoError(t, r.HandleEvent(ctx, 7, succeededPayload("evt_1", "pi_test_abc", 1, "50.00"), "sig"))
	require.NoError(t, r.HandleEvent(ctx, 7, succeededPayload("evt_2", "pi_test_abc", 1, "50.00"), "sig"))

	payments, _ := st.ListPayments(ctx, 1)
	assert.Len(t, payments, 1)
	assert.Len(t, sink.captured, 1, "a settled payment is announced once")
}

func TestWebhookSucceededSettlesPendingPayment(t *testing.T) {
	st := newFakeStore()
	seedOrder(st, true)
	st.addPayment(1, &models.Payment{
		Type: models.PaymentTypeAdditional, Amount: dec("13"),
		Status: models.PaymentStatusPending, PaymentID: "pi_test_abc",
	})
	r, _, _ := newTestReconciler(st, gateway.NewTestGateway())
	ctx := context.Background()

	require.NoError(t, r.HandleEvent(ctx, 7, succeededPayload("evt_1", "pi_test_abc", 1, "13.00"), "sig"))

	payments, _ := st.ListPayments(ctx, 1)
	require.Len(t, payments, 1, "pending entry is settled, not duplicated")
	assert.Equal(t, models.PaymentStatusPaid, payments[0].Status)
}

func TestWebhookFailedRecordsErrorWithoutTouchingOrderStatus(t *testing.T) {
	st := newFakeStore()
	seedOrder(st, true)
	r, sink, _ := newTestReconciler(st, gateway.NewTestGateway())
	ctx := context.Background()

	payload := []byte(`{"id":"evt_9","type":"payment_intent.payment_failed","payment_intent":"pi_test_x","order_id":"1","amount":"50.00","failure_message":"card declined"}`)
	require.NoError(t, r.HandleEvent(ctx, 7, payload, "sig"))

	assert.Equal(t, models.OrderStatusPending, st.orders[1].Status, "order status stays with the merchant")
	assert.Equal(t, models.PaymentStatusFailed, st.orders[1].PaymentStatus)

	payments, _ := st.ListPayments(ctx, 1)
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentStatusFailed, payments[0].Status)
	assert.Equal(t, "card declined", payments[0].Details["error"])
	assert.Len(t, sink.failed, 1)
}

func TestWebhookSignatureFailureMutatesNothing(t *testing.T) {
	st := newFakeStore()
	seedOrder(st, true)
	r, sink, _ := newTestReconciler(st, rejectingGateway{gateway.NewTestGateway()})
	ctx := context.Background()

	err := r.HandleEvent(ctx, 7, succeededPayload("evt_1", "pi_test_abc", 1, "50.00"), "bad")
	assert.True(t, apperr.IsKind(err, apperr.Signature))

	payments, _ := st.ListPayments(ctx, 1)
	assert.Empty(t, payments)
	assert.Equal(t, models.OrderStatusPending, st.orders[1].Status)
	assert.Empty(t, sink.captured)
}

func TestWebhookUnknownTypeIgnored(t *testing.T) {
	st := newFakeStore()
	seedOrder(st, true)
	r, _, _ := newTestReconciler(st, gateway.NewTestGateway())
	ctx := context.Background()

	payload := []byte(`{"id":"evt_5","type":"customer.created","order_id":"1"}`)
	require.NoError(t, r.HandleEvent(ctx, 7, payload, "sig"))

	payments, _ := st.ListPayments(ctx, 1)
	assert.Empty(t, payments)
}

func TestWebhookLocatesOrderByIntentWhenMetadataMissing(t *testing.T) {
	st := newFakeStore()
	seedOrder(st, true)
	st.addPayment(1, &models.Payment{
		Type: models.PaymentTypeInitial, Amount: dec("50"),
		Status: models.PaymentStatusPending, PaymentID: "pi_test_abc",
	})
	r, _, _ := newTestReconciler(st, gateway.NewTestGateway())
	ctx := context.Background()

	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","payment_intent":"pi_test_abc","amount":"50.00"}`)
	require.NoError(t, r.HandleEvent(ctx, 7, payload, "sig"))

	assert.Equal(t, models.OrderStatusPaid, st.orders[1].Status)
}

func TestWebhookMissingTenantConfig(t *testing.T) {
	st := newFakeStore()
	r, _, _ := newTestReconciler(st, gateway.NewTestGateway())

	err := r.HandleEvent(context.Background(), 42, succeededPayload("evt_1", "pi_test_abc", 1, "50.00"), "sig")
	assert.True(t, apperr.IsKind(err, apperr.Configuration))
}
