// Package gateway abstracts the external payment processors behind a single
// capability interface. Each adapter instance is constructed with one
// tenant's credentials; there is no process-global key.
package gateway

import (
	"context"
	"time"

	"payment-service/internal/apperr"
	"payment-service/internal/models"
	"payment-service/internal/util"

	"github.com/shopspring/decimal"
)

// Intent is the result of CreateIntent. FreeOrder and SmallOrder mark
// amounts the processor cannot charge (zero, or below its per-currency
// minimum); no gateway object exists for those, the identifier is
// fabricated so the caller still has a reference.
type Intent struct {
	ID           string
	ClientSecret string
	FreeOrder    bool
	SmallOrder   bool
}

// CaptureResult reports a finalized charge.
type CaptureResult struct {
	TransactionID string
	PaymentID     string
	Status        string
	Details       map[string]interface{}
}

// RefundResult reports a processor-side refund.
type RefundResult struct {
	RefundID      string
	TransactionID string
	Status        string
	Details       map[string]interface{}
}

// PaymentLink is a hosted checkout URL for out-of-band collection.
type PaymentLink struct {
	URL string
}

// Canonical webhook event types. Adapters translate processor-specific
// names into these; anything else passes through verbatim and is ignored
// by the reconciler.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// Event is a verified, parsed webhook notification.
type Event struct {
	ID             string
	Type           string
	PaymentIntent  string
	OrderID        string // from intent metadata when present
	Amount         decimal.Decimal
	Currency       string
	FailureMessage string
}

// Gateway is the capability contract every processor variant satisfies.
// Methods are safe to retry: on error the caller holds no partial state.
// Calls run under the bounded timeout the adapter was constructed with.
type Gateway interface {
	Name() string
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*Intent, error)
	Capture(ctx context.Context, identifier string) (*CaptureResult, error)
	Refund(ctx context.Context, identifier string, amount decimal.Decimal, reason string) (*RefundResult, error)
	CreatePaymentLink(ctx context.Context, amount decimal.Decimal, items []models.OrderItem, successURL, cancelURL string, metadata map[string]string) (*PaymentLink, error)
	VerifyWebhook(payload []byte, signature string) (*Event, error)
}

// ForTenant selects the adapter variant for a tenant. Test mode always gets
// the TestGateway so the orchestrator never branches on mode; a live tenant
// with missing credentials is a configuration error, never a silent
// fallback.
func ForTenant(cfg *models.TenantGatewayConfig, timeout time.Duration) (Gateway, error) {
	if cfg == nil {
		return nil, apperr.Configurationf("payment gateway is not configured for this tenant")
	}
	if cfg.TestMode {
		return NewTestGateway(), nil
	}

	switch cfg.Processor {
	case models.ProcessorPayPal:
		if cfg.ClientID == "" || cfg.ClientSecret == "" {
			return nil, apperr.Configurationf("paypal credentials are not configured for tenant %d", cfg.TenantID)
		}
		return NewRedirectGateway(cfg.ClientID, cfg.ClientSecret, cfg.WebhookSecret, cfg.Currency, timeout), nil
	case models.ProcessorStripe, "":
		if cfg.SecretKey == "" {
			return nil, apperr.Configurationf("stripe is not properly configured for tenant %d", cfg.TenantID)
		}
		return NewCardGateway(cfg.SecretKey, cfg.WebhookSecret, cfg.Currency, timeout), nil
	default:
		return nil, apperr.Configurationf("unsupported payment processor: %s", cfg.Processor)
	}
}

// toCents converts a decimal amount to the minor-unit integer processors
// expect.
func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// fromCents converts a minor-unit integer back to a decimal amount.
func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// observe records latency and error metrics for one gateway call.
func observe(gateway, operation string, start time.Time, err error) {
	util.GatewayRequestDuration.WithLabelValues(gateway, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		util.GatewayErrorsTotal.WithLabelValues(gateway, operation).Inc()
	}
}
