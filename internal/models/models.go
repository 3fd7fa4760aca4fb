package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Order represents a customer order as seen by the payment engine.
// Menu composition, scheduling and the rest of the order lifecycle are
// owned by the order-management subsystem; payments only mutate the
// monetary total, the item snapshot and the status fields.
type Order struct {
	ID            int64           `db:"id" json:"id"`
	TenantID      int64           `db:"tenant_id" json:"tenant_id"`
	Total         decimal.Decimal `db:"total" json:"total"`
	Status        string          `db:"status" json:"status"`
	PaymentStatus string          `db:"payment_status" json:"payment_status"`
	PaymentID     string          `db:"payment_id" json:"payment_id,omitempty"`
	ContactEmail  string          `db:"contact_email" json:"contact_email,omitempty"`
	ContactPhone  string          `db:"contact_phone" json:"contact_phone,omitempty"`
	Items         OrderItems      `db:"items" json:"items"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderItem is a line item snapshot. IDs are compared as strings because
// upstream clients send both numeric and opaque identifiers.
type OrderItem struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// OrderItems is stored as a JSONB column.
type OrderItems []OrderItem

// Value implements driver.Valuer.
func (oi OrderItems) Value() (driver.Value, error) {
	if oi == nil {
		return nil, nil
	}
	return json.Marshal(oi)
}

// Scan implements sql.Scanner.
func (oi *OrderItems) Scan(src interface{}) error {
	if src == nil {
		*oi = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unsupported type for OrderItems: %T", src)
	}
	return json.Unmarshal(b, oi)
}

// Details is an opaque structured payload attached to a payment record,
// typically the raw gateway response. Stored as JSONB.
type Details map[string]interface{}

// Value implements driver.Valuer.
func (d Details) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner.
func (d *Details) Scan(src interface{}) error {
	if src == nil {
		*d = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("unsupported type for Details: %T", src)
	}
	return json.Unmarshal(b, d)
}

// Payment is an append-only ledger entry belonging to exactly one order.
// Entries are never deleted; the only permitted update is attaching a
// late-arriving gateway identifier or status from a webhook.
type Payment struct {
	ID            int64           `db:"id" json:"id"`
	OrderID       int64           `db:"order_id" json:"order_id"`
	Type          string          `db:"payment_type" json:"payment_type"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Method        string          `db:"payment_method" json:"payment_method"`
	Status        string          `db:"status" json:"status"`
	TransactionID string          `db:"transaction_id" json:"transaction_id,omitempty"`
	PaymentID     string          `db:"payment_id" json:"payment_id,omitempty"`
	Description   string          `db:"description" json:"description,omitempty"`
	Details       Details         `db:"details" json:"details,omitempty"`
	RefundedItems OrderItems      `db:"refunded_items" json:"refunded_items,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// StoreCredit is issued alongside a refund-typed payment entry. Redemption
// has its own lifecycle outside the payment engine.
type StoreCredit struct {
	ID            int64           `db:"id" json:"id"`
	CustomerEmail string          `db:"customer_email" json:"customer_email"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Reason        string          `db:"reason" json:"reason"`
	OrderID       int64           `db:"order_id" json:"order_id"`
	Status        string          `db:"status" json:"status"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// TenantGatewayConfig carries a tenant's payment processor selection and
// credentials. The payment engine treats it as opaque read-only
// configuration; each adapter instance is constructed from exactly one of
// these, so credentials never leak across tenants.
type TenantGatewayConfig struct {
	TenantID      int64  `db:"tenant_id" json:"tenant_id"`
	Processor     string `db:"processor" json:"processor"`
	Currency      string `db:"currency" json:"currency"`
	TestMode      bool   `db:"test_mode" json:"test_mode"`
	SecretKey     string `db:"secret_key" json:"-"`
	ClientID      string `db:"client_id" json:"-"`
	ClientSecret  string `db:"client_secret" json:"-"`
	WebhookSecret string `db:"webhook_secret" json:"-"`
	SuccessURL    string `db:"success_url" json:"success_url,omitempty"`
	CancelURL     string `db:"cancel_url" json:"cancel_url,omitempty"`
}

// Order statuses
const (
	OrderStatusPending           = "pending"
	OrderStatusPreparing         = "preparing"
	OrderStatusReady             = "ready"
	OrderStatusPaid              = "paid"
	OrderStatusPartiallyRefunded = "partially_refunded"
	OrderStatusRefunded          = "refunded"
	OrderStatusCancelled         = "cancelled"
)

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusPaid      = "paid"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// Payment types
const (
	PaymentTypeInitial    = "initial"
	PaymentTypeAdditional = "additional"
	PaymentTypeRefund     = "refund"
)

// Payment methods that are not a processor name
const (
	PaymentMethodStoreCredit = "store_credit"
	PaymentMethodAdjustment  = "adjustment"
	PaymentMethodPaymentLink = "payment_link"
)

// Processors
const (
	ProcessorStripe = "stripe"
	ProcessorPayPal = "paypal"
	ProcessorTest   = "test"
)

// Store credit statuses
const (
	StoreCreditStatusActive = "active"
)
