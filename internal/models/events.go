package models

import "time"

// Event types
const (
	EventTypePaymentCaptured       = "payment.captured"
	EventTypePaymentFailed         = "payment.failed"
	EventTypeRefundCompleted       = "payment.refunded"
	EventTypePaymentLinkCreated    = "payment.link_created"
	EventTypeNotificationRequested = "notification.requested"
)

// BaseEvent contains common event fields
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentCapturedEvent is published after a payment reaches a paid state,
// both on the synchronous capture path and the webhook path.
type PaymentCapturedEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	TenantID  int64  `json:"tenant_id"`
	PaymentID int64  `json:"payment_id"`
	Amount    string `json:"amount"`
	Method    string `json:"method"`
	TxID      string `json:"tx_id,omitempty"`
}

// PaymentFailedEvent is published when a gateway reports a failed payment.
type PaymentFailedEvent struct {
	BaseEvent
	OrderID  int64  `json:"order_id"`
	TenantID int64  `json:"tenant_id"`
	Reason   string `json:"reason"`
}

// RefundCompletedEvent is published after a refund-typed ledger entry commits.
type RefundCompletedEvent struct {
	BaseEvent
	OrderID   int64  `json:"order_id"`
	TenantID  int64  `json:"tenant_id"`
	PaymentID int64  `json:"payment_id"`
	Amount    string `json:"amount"`
	NetAmount string `json:"net_amount"`
	Method    string `json:"method"`
}

// PaymentLinkCreatedEvent is published after a payment link record commits.
type PaymentLinkCreatedEvent struct {
	BaseEvent
	OrderID  int64  `json:"order_id"`
	TenantID int64  `json:"tenant_id"`
	URL      string `json:"url"`
}

// NotificationEvent requests delivery of a customer notification. Delivery
// is handled outside the payment engine; failures never affect payment state.
type NotificationEvent struct {
	BaseEvent
	Channel   string            `json:"channel"`
	Template  string            `json:"template"`
	Recipient string            `json:"recipient"`
	Context   map[string]string `json:"context,omitempty"`
}
