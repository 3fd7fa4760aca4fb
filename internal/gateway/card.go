package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"payment-service/internal/apperr"
	"payment-service/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// minChargeAmounts lists the processor's minimum charge per currency.
// Amounts below these cannot be sent to the card network at all.
var minChargeAmounts = map[string]decimal.Decimal{
	"USD": decimal.NewFromFloat(0.50),
	"EUR": decimal.NewFromFloat(0.50),
	"GBP": decimal.NewFromFloat(0.30),
	"CAD": decimal.NewFromFloat(0.50),
	"AUD": decimal.NewFromFloat(0.50),
	"JPY": decimal.NewFromInt(50),
}

// validRefundReasons are the only reason values the card network accepts.
var validRefundReasons = map[string]bool{
	"duplicate":             true,
	"fraudulent":            true,
	"requested_by_customer": true,
}

// CardGateway wraps the Stripe payment-intent flow for one tenant. The
// client is initialized with the tenant's own secret key; the SDK's global
// key is never touched.
type CardGateway struct {
	api           *client.API
	webhookSecret string
	currency      string
	timeout       time.Duration
}

func NewCardGateway(secretKey, webhookSecret, currency string, timeout time.Duration) *CardGateway {
	api := &client.API{}
	api.Init(secretKey, nil)

	if currency == "" {
		currency = "USD"
	}

	return &CardGateway{
		api:           api,
		webhookSecret: webhookSecret,
		currency:      currency,
		timeout:       timeout,
	}
}

func (g *CardGateway) Name() string { return models.ProcessorStripe }

// CreateIntent creates a payment intent. Zero amounts and amounts below the
// per-currency minimum never reach the processor; they come back flagged so
// the caller can settle them without a charge.
func (g *CardGateway) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*Intent, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return &Intent{ID: "free_" + randomHex(8), FreeOrder: true}, nil
	}

	min, ok := minChargeAmounts[strings.ToUpper(currency)]
	if !ok {
		min = minChargeAmounts["USD"]
	}
	if amount.LessThan(min) {
		return &Intent{ID: "small_" + randomHex(8), SmallOrder: true}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(toCents(amount)),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	observe(g.Name(), "create_intent", start, err)
	if err != nil {
		return nil, stripeErr(err)
	}

	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// Capture verifies that an intent has been confirmed. The intent flow
// captures automatically on confirmation, so this retrieves and checks
// rather than issuing a separate capture call.
func (g *CardGateway) Capture(ctx context.Context, identifier string) (*CaptureResult, error) {
	if !strings.HasPrefix(identifier, "pi_") {
		return nil, apperr.GatewayErr("invalid_payment_intent", "malformed payment intent identifier: "+identifier, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	pi, err := g.api.PaymentIntents.Get(identifier, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	observe(g.Name(), "capture", start, err)
	if err != nil {
		return nil, stripeErr(err)
	}

	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, apperr.GatewayErr("payment_incomplete", "payment not completed, status: "+string(pi.Status), nil)
	}

	return &CaptureResult{
		TransactionID: pi.ID,
		PaymentID:     pi.ID,
		Status:        string(pi.Status),
		Details:       map[string]interface{}{"status": string(pi.Status)},
	}, nil
}

// Refund refunds part or all of a confirmed intent. A missing or malformed
// identifier is a hard error here; only the TestGateway fabricates refunds.
func (g *CardGateway) Refund(ctx context.Context, identifier string, amount decimal.Decimal, reason string) (*RefundResult, error) {
	if !strings.HasPrefix(identifier, "pi_") {
		return nil, apperr.GatewayErr("invalid_payment_intent", "malformed payment intent identifier: "+identifier, nil)
	}

	reason = normalizeRefundReason(reason)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	params := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(identifier),
		Amount:        stripe.Int64(toCents(amount)),
		Reason:        stripe.String(reason),
	}

	r, err := g.api.Refunds.New(params)
	observe(g.Name(), "refund", start, err)
	if err != nil {
		return nil, stripeErr(err)
	}

	return &RefundResult{
		RefundID:      r.ID,
		TransactionID: r.ID,
		Status:        string(r.Status),
		Details:       map[string]interface{}{"status": string(r.Status)},
	}, nil
}

// CreatePaymentLink creates a hosted checkout session and returns its URL.
func (g *CardGateway) CreatePaymentLink(ctx context.Context, amount decimal.Decimal, items []models.OrderItem, successURL, cancelURL string, metadata map[string]string) (*PaymentLink, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(items))
	for _, item := range items {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(int64(item.Quantity)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(g.currency)),
				UnitAmount: stripe.Int64(toCents(item.Price)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(item.Name),
				},
			},
		})
	}

	start := time.Now()
	params := &stripe.CheckoutSessionParams{
		Params:     stripe.Params{Context: ctx},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		LineItems:  lineItems,
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	sess, err := g.api.CheckoutSessions.New(params)
	observe(g.Name(), "create_payment_link", start, err)
	if err != nil {
		return nil, stripeErr(err)
	}

	return &PaymentLink{URL: sess.URL}, nil
}

// VerifyWebhook checks the signature against this tenant's webhook secret
// and translates the event into the canonical shape.
func (g *CardGateway) VerifyWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, g.webhookSecret)
	if err != nil {
		return nil, apperr.Signaturef("invalid webhook signature: %v", err)
	}

	out := &Event{ID: event.ID, Type: string(event.Type)}

	switch out.Type {
	case EventPaymentSucceeded, EventPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, apperr.Signaturef("invalid webhook payload: %v", err)
		}
		out.PaymentIntent = pi.ID
		out.Amount = fromCents(pi.Amount)
		out.Currency = strings.ToUpper(string(pi.Currency))
		out.OrderID = pi.Metadata["order_id"]
		if pi.LastPaymentError != nil {
			out.FailureMessage = pi.LastPaymentError.Msg
		}
	}

	return out, nil
}

func stripeErr(err error) error {
	var sErr *stripe.Error
	if errors.As(err, &sErr) {
		return apperr.GatewayErr(string(sErr.Code), sErr.Msg, err)
	}
	return apperr.GatewayErr("", err.Error(), err)
}

// normalizeRefundReason coerces free-form reasons onto the values the card
// network accepts, falling back to requested_by_customer.
func normalizeRefundReason(reason string) string {
	if validRefundReasons[reason] {
		return reason
	}
	return "requested_by_customer"
}

// randomHex returns n bytes of randomness, hex encoded. Identifiers only,
// not secrets.
func randomHex(n int) string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:n*2]
}
