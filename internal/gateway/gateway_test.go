package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"payment-service/internal/apperr"
	"payment-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForTenant(t *testing.T) {
	timeout := 5 * time.Second

	t.Run("missing config", func(t *testing.T) {
		_, err := ForTenant(nil, timeout)
		assert.True(t, apperr.IsKind(err, apperr.Configuration))
	})

	t.Run("test mode wins over processor", func(t *testing.T) {
		g, err := ForTenant(&models.TenantGatewayConfig{Processor: models.ProcessorStripe, TestMode: true}, timeout)
		require.NoError(t, err)
		assert.Equal(t, models.ProcessorTest, g.Name())
	})

	t.Run("stripe requires secret key", func(t *testing.T) {
		_, err := ForTenant(&models.TenantGatewayConfig{Processor: models.ProcessorStripe}, timeout)
		assert.True(t, apperr.IsKind(err, apperr.Configuration))
	})

	t.Run("stripe", func(t *testing.T) {
		g, err := ForTenant(&models.TenantGatewayConfig{Processor: models.ProcessorStripe, SecretKey: "sk_test_abc", Currency: "USD"}, timeout)
		require.NoError(t, err)
		assert.Equal(t, models.ProcessorStripe, g.Name())
	})

	t.Run("paypal requires client credentials", func(t *testing.T) {
		_, err := ForTenant(&models.TenantGatewayConfig{Processor: models.ProcessorPayPal, ClientID: "id"}, timeout)
		assert.True(t, apperr.IsKind(err, apperr.Configuration))
	})

	t.Run("paypal", func(t *testing.T) {
		g, err := ForTenant(&models.TenantGatewayConfig{Processor: models.ProcessorPayPal, ClientID: "id", ClientSecret: "secret"}, timeout)
		require.NoError(t, err)
		assert.Equal(t, models.ProcessorPayPal, g.Name())
	})

	t.Run("unknown processor", func(t *testing.T) {
		_, err := ForTenant(&models.TenantGatewayConfig{Processor: "square", SecretKey: "sk"}, timeout)
		assert.True(t, apperr.IsKind(err, apperr.Configuration))
	})
}

func TestTestGatewayCreateIntent(t *testing.T) {
	g := NewTestGateway()

	intent, err := g.CreateIntent(context.Background(), decimal.NewFromFloat(12.50), "USD", map[string]string{"order_id": "ord-1"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(intent.ID, "pi_test_"))
	assert.Contains(t, intent.ClientSecret, "_secret_")
	assert.False(t, intent.FreeOrder)
	assert.False(t, intent.SmallOrder)

	again, err := g.CreateIntent(context.Background(), decimal.NewFromFloat(12.50), "USD", nil)
	require.NoError(t, err)
	assert.NotEqual(t, intent.ID, again.ID, "consecutive intents get distinct identifiers")

	free, err := g.CreateIntent(context.Background(), decimal.Zero, "USD", nil)
	require.NoError(t, err)
	assert.True(t, free.FreeOrder)
	assert.True(t, strings.HasPrefix(free.ID, "free_"))
}

func TestTestGatewayAlwaysSucceeds(t *testing.T) {
	g := NewTestGateway()
	ctx := context.Background()

	capture, err := g.Capture(ctx, "pi_test_deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "pi_test_deadbeef", capture.TransactionID)
	assert.Equal(t, "succeeded", capture.Status)
	assert.Equal(t, true, capture.Details["test_mode"])

	fabricated, err := g.Capture(ctx, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(fabricated.TransactionID, "pi_test_"))

	refund, err := g.Refund(ctx, "pi_test_deadbeef", decimal.NewFromInt(5), "customer changed mind")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(refund.RefundID, "test_refund_"))
	assert.Equal(t, "succeeded", refund.Status)
	assert.Equal(t, "requested_by_customer", refund.Details["reason"])

	link, err := g.CreatePaymentLink(ctx, decimal.NewFromInt(20), nil, "https://s", "https://c", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link.URL, "https://example.com/test-payment/"))
}

func TestTestGatewayVerifyWebhook(t *testing.T) {
	g := NewTestGateway()

	event, err := g.VerifyWebhook([]byte(`{"id":"evt_1","type":"payment_intent.succeeded","payment_intent":"pi_test_1","order_id":"ord-1","amount":"10.00","currency":"USD"}`), "anything")
	require.NoError(t, err)
	assert.Equal(t, EventPaymentSucceeded, event.Type)
	assert.Equal(t, "ord-1", event.OrderID)
	assert.True(t, event.Amount.Equal(decimal.NewFromInt(10)))

	_, err = g.VerifyWebhook([]byte("not json"), "anything")
	assert.True(t, apperr.IsKind(err, apperr.Signature))
}

func TestCardGatewayRejectsMalformedIdentifiers(t *testing.T) {
	g := NewCardGateway("sk_test_abc", "whsec_abc", "USD", time.Second)
	ctx := context.Background()

	_, err := g.Refund(ctx, "ch_not_an_intent", decimal.NewFromInt(5), "duplicate")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Gateway))

	_, err = g.Capture(ctx, "")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Gateway))
}

func TestCardGatewayFreeAndSmallOrders(t *testing.T) {
	g := NewCardGateway("sk_test_abc", "whsec_abc", "USD", time.Second)
	ctx := context.Background()

	free, err := g.CreateIntent(ctx, decimal.NewFromInt(-3), "USD", nil)
	require.NoError(t, err)
	assert.True(t, free.FreeOrder)

	small, err := g.CreateIntent(ctx, decimal.NewFromFloat(0.25), "USD", nil)
	require.NoError(t, err)
	assert.True(t, small.SmallOrder)
	assert.True(t, strings.HasPrefix(small.ID, "small_"))

	// JPY has no decimals; 49 is below the 50 minimum.
	smallJPY, err := g.CreateIntent(ctx, decimal.NewFromInt(49), "JPY", nil)
	require.NoError(t, err)
	assert.True(t, smallJPY.SmallOrder)
}

func TestNormalizeRefundReason(t *testing.T) {
	assert.Equal(t, "duplicate", normalizeRefundReason("duplicate"))
	assert.Equal(t, "fraudulent", normalizeRefundReason("fraudulent"))
	assert.Equal(t, "requested_by_customer", normalizeRefundReason("requested_by_customer"))
	assert.Equal(t, "requested_by_customer", normalizeRefundReason("buyer remorse"))
	assert.Equal(t, "requested_by_customer", normalizeRefundReason(""))
}

func TestRedirectGatewayVerifyWebhook(t *testing.T) {
	g := NewRedirectGateway("id", "secret", "whsec", "USD", time.Second)

	payload := []byte(`{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED","resource":{"id":"CAP-1","custom_id":"ord-9","amount":{"currency_code":"usd","value":"42.00"}}}`)
	mac := hmac.New(sha256.New, []byte("whsec"))
	mac.Write(payload)
	sig := hex.EncodeToString(mac.Sum(nil))

	event, err := g.VerifyWebhook(payload, sig)
	require.NoError(t, err)
	assert.Equal(t, EventPaymentSucceeded, event.Type)
	assert.Equal(t, "ord-9", event.OrderID)
	assert.Equal(t, "CAP-1", event.PaymentIntent)
	assert.Equal(t, "USD", event.Currency)
	assert.True(t, event.Amount.Equal(decimal.NewFromInt(42)))

	_, err = g.VerifyWebhook(payload, "deadbeef")
	assert.True(t, apperr.IsKind(err, apperr.Signature))

	denied := []byte(`{"id":"WH-2","event_type":"PAYMENT.CAPTURE.DENIED","resource":{"id":"CAP-2","custom_id":"ord-9","status":"DENIED","amount":{"currency_code":"USD","value":"42.00"}}}`)
	mac = hmac.New(sha256.New, []byte("whsec"))
	mac.Write(denied)
	event, err = g.VerifyWebhook(denied, hex.EncodeToString(mac.Sum(nil)))
	require.NoError(t, err)
	assert.Equal(t, EventPaymentFailed, event.Type)
}
