package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"payment-service/internal/apperr"
	"payment-service/internal/models"

	"github.com/shopspring/decimal"
)

// PayPalBaseURL is the REST endpoint the redirect gateway talks to. It is
// set once at startup; tests and sandbox tenants point it elsewhere.
var PayPalBaseURL = "https://api-m.paypal.com"

// RedirectGateway wraps a PayPal-style order/capture flow: the processor
// creates an order, the customer approves it on a hosted page, and the
// platform captures afterwards. Credentials are per-instance.
type RedirectGateway struct {
	clientID      string
	clientSecret  string
	webhookSecret string
	currency      string
	baseURL       string
	httpClient    *http.Client
}

func NewRedirectGateway(clientID, clientSecret, webhookSecret, currency string, timeout time.Duration) *RedirectGateway {
	if currency == "" {
		currency = "USD"
	}
	return &RedirectGateway{
		clientID:      clientID,
		clientSecret:  clientSecret,
		webhookSecret: webhookSecret,
		currency:      currency,
		baseURL:       PayPalBaseURL,
		httpClient:    &http.Client{Timeout: timeout},
	}
}

func (g *RedirectGateway) Name() string { return models.ProcessorPayPal }

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalOrder struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string       `json:"id"`
				Status string       `json:"status"`
				Amount paypalAmount `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CreateIntent creates a processor-side order in CAPTURE intent. The order
// identifier plays the role of the intent identifier; there is no client
// secret in the redirect flow.
func (g *RedirectGateway) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*Intent, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return &Intent{ID: "free_" + randomHex(8), FreeOrder: true}, nil
	}

	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{{
			"amount":    paypalAmount{CurrencyCode: strings.ToUpper(currency), Value: amount.StringFixed(2)},
			"custom_id": metadata["order_id"],
		}},
	}

	var order paypalOrder
	start := time.Now()
	err := g.post(ctx, "/v2/checkout/orders", body, &order)
	observe(g.Name(), "create_intent", start, err)
	if err != nil {
		return nil, err
	}

	return &Intent{ID: order.ID}, nil
}

// Capture captures an approved processor order.
func (g *RedirectGateway) Capture(ctx context.Context, identifier string) (*CaptureResult, error) {
	if identifier == "" {
		return nil, apperr.GatewayErr("invalid_order", "missing processor order identifier", nil)
	}

	var order paypalOrder
	start := time.Now()
	err := g.post(ctx, "/v2/checkout/orders/"+identifier+"/capture", map[string]interface{}{}, &order)
	observe(g.Name(), "capture", start, err)
	if err != nil {
		return nil, err
	}

	if order.Status != "COMPLETED" {
		return nil, apperr.GatewayErr("capture_incomplete", "capture not completed, status: "+order.Status, nil)
	}

	txID := order.ID
	if len(order.PurchaseUnits) > 0 && len(order.PurchaseUnits[0].Payments.Captures) > 0 {
		txID = order.PurchaseUnits[0].Payments.Captures[0].ID
	}

	return &CaptureResult{
		TransactionID: txID,
		PaymentID:     order.ID,
		Status:        order.Status,
		Details:       map[string]interface{}{"status": order.Status},
	}, nil
}

// Refund refunds a captured transaction. The identifier is the capture
// transaction id recorded at capture time.
func (g *RedirectGateway) Refund(ctx context.Context, identifier string, amount decimal.Decimal, reason string) (*RefundResult, error) {
	if identifier == "" {
		return nil, apperr.GatewayErr("invalid_capture", "missing capture identifier", nil)
	}

	body := map[string]interface{}{
		"amount":        paypalAmount{CurrencyCode: strings.ToUpper(g.currency), Value: amount.StringFixed(2)},
		"note_to_payer": reason,
	}

	var refund struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	start := time.Now()
	err := g.post(ctx, "/v2/payments/captures/"+identifier+"/refund", body, &refund)
	observe(g.Name(), "refund", start, err)
	if err != nil {
		return nil, err
	}

	return &RefundResult{
		RefundID:      refund.ID,
		TransactionID: refund.ID,
		Status:        refund.Status,
		Details:       map[string]interface{}{"status": refund.Status},
	}, nil
}

// CreatePaymentLink creates a processor order with a hosted approval page
// and returns its approve URL.
func (g *RedirectGateway) CreatePaymentLink(ctx context.Context, amount decimal.Decimal, items []models.OrderItem, successURL, cancelURL string, metadata map[string]string) (*PaymentLink, error) {
	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{{
			"amount":    paypalAmount{CurrencyCode: strings.ToUpper(g.currency), Value: amount.StringFixed(2)},
			"custom_id": metadata["order_id"],
		}},
		"application_context": map[string]string{
			"return_url": successURL,
			"cancel_url": cancelURL,
		},
	}

	var order paypalOrder
	start := time.Now()
	err := g.post(ctx, "/v2/checkout/orders", body, &order)
	observe(g.Name(), "create_payment_link", start, err)
	if err != nil {
		return nil, err
	}

	for _, link := range order.Links {
		if link.Rel == "approve" {
			return &PaymentLink{URL: link.Href}, nil
		}
	}
	return nil, apperr.GatewayErr("no_approve_link", "processor order carries no approval link", nil)
}

// VerifyWebhook authenticates the payload with an HMAC-SHA256 of the raw
// bytes under this tenant's webhook secret, then maps the processor event
// names onto the canonical ones.
func (g *RedirectGateway) VerifyWebhook(payload []byte, signature string) (*Event, error) {
	mac := hmac.New(sha256.New, []byte(g.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, apperr.Signaturef("invalid webhook signature")
	}

	var raw struct {
		ID        string `json:"id"`
		EventType string `json:"event_type"`
		Resource  struct {
			ID       string       `json:"id"`
			CustomID string       `json:"custom_id"`
			Amount   paypalAmount `json:"amount"`
			Status   string       `json:"status"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, apperr.Signaturef("invalid webhook payload: %v", err)
	}

	out := &Event{
		ID:            raw.ID,
		Type:          raw.EventType,
		PaymentIntent: raw.Resource.ID,
		OrderID:       raw.Resource.CustomID,
		Currency:      strings.ToUpper(raw.Resource.Amount.CurrencyCode),
	}
	if raw.Resource.Amount.Value != "" {
		if amount, err := decimal.NewFromString(raw.Resource.Amount.Value); err == nil {
			out.Amount = amount
		}
	}

	switch raw.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		out.Type = EventPaymentSucceeded
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		out.Type = EventPaymentFailed
		out.FailureMessage = "capture " + strings.ToLower(raw.Resource.Status)
	}

	return out, nil
}

// post issues an authenticated JSON request and decodes the response.
func (g *RedirectGateway) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	token, err := g.accessToken(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return apperr.Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return apperr.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return apperr.GatewayErr("request_failed", err.Error(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperr.GatewayErr("response_unreadable", err.Error(), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperr.GatewayErr(
			fmt.Sprintf("http_%d", resp.StatusCode),
			fmt.Sprintf("processor returned %d: %s", resp.StatusCode, string(respBody)),
			nil,
		)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return apperr.GatewayErr("response_invalid", err.Error(), err)
		}
	}
	return nil
}

// accessToken exchanges the client credentials for a bearer token.
func (g *RedirectGateway) accessToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.baseURL+"/v1/oauth2/token", strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", apperr.Wrap(err)
	}
	req.SetBasicAuth(g.clientID, g.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", apperr.GatewayErr("auth_failed", err.Error(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperr.GatewayErr(fmt.Sprintf("auth_http_%d", resp.StatusCode), "processor authentication failed", nil)
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", apperr.GatewayErr("auth_response_invalid", err.Error(), err)
	}
	return token.AccessToken, nil
}
