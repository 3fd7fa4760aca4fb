package gateway

import (
	"context"
	"encoding/json"
	"time"

	"payment-service/internal/apperr"
	"payment-service/internal/models"

	"github.com/shopspring/decimal"
)

// TestGateway is the processor used by tenants running in test mode. It
// never performs network calls: every operation succeeds immediately with
// fabricated identifiers shaped like real ones.
type TestGateway struct{}

func NewTestGateway() *TestGateway { return &TestGateway{} }

func (g *TestGateway) Name() string { return models.ProcessorTest }

func (g *TestGateway) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*Intent, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return &Intent{ID: "free_" + randomHex(8), FreeOrder: true}, nil
	}
	id := "pi_test_" + randomHex(16)
	return &Intent{ID: id, ClientSecret: id + "_secret_" + randomHex(8)}, nil
}

func (g *TestGateway) Capture(ctx context.Context, identifier string) (*CaptureResult, error) {
	if identifier == "" {
		identifier = "pi_test_" + randomHex(16)
	}
	return &CaptureResult{
		TransactionID: identifier,
		PaymentID:     identifier,
		Status:        "succeeded",
		Details:       map[string]interface{}{"test_mode": true, "captured_at": time.Now().UTC().Format(time.RFC3339)},
	}, nil
}

func (g *TestGateway) Refund(ctx context.Context, identifier string, amount decimal.Decimal, reason string) (*RefundResult, error) {
	return &RefundResult{
		RefundID:      "test_refund_" + randomHex(8),
		TransactionID: identifier,
		Status:        "succeeded",
		Details:       map[string]interface{}{"test_mode": true, "reason": normalizeRefundReason(reason)},
	}, nil
}

func (g *TestGateway) CreatePaymentLink(ctx context.Context, amount decimal.Decimal, items []models.OrderItem, successURL, cancelURL string, metadata map[string]string) (*PaymentLink, error) {
	return &PaymentLink{URL: "https://example.com/test-payment/" + randomHex(8)}, nil
}

// VerifyWebhook accepts any signature in test mode. The event type passes
// through untouched so unknown types are still ignored downstream.
func (g *TestGateway) VerifyWebhook(payload []byte, signature string) (*Event, error) {
	var raw struct {
		ID             string `json:"id"`
		Type           string `json:"type"`
		PaymentIntent  string `json:"payment_intent"`
		OrderID        string `json:"order_id"`
		Amount         string `json:"amount"`
		Currency       string `json:"currency"`
		FailureMessage string `json:"failure_message"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, apperr.Signaturef("invalid webhook payload: %v", err)
	}

	out := &Event{
		ID:             raw.ID,
		Type:           raw.Type,
		PaymentIntent:  raw.PaymentIntent,
		OrderID:        raw.OrderID,
		Currency:       raw.Currency,
		FailureMessage: raw.FailureMessage,
	}
	if raw.Amount != "" {
		if amount, err := decimal.NewFromString(raw.Amount); err == nil {
			out.Amount = amount
		}
	}
	return out, nil
}
