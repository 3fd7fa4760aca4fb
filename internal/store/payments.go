package store

import (
	"context"
	"database/sql"
	"fmt"

	"payment-service/internal/apperr"
	"payment-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// OrderTx is the unit of work for ledger mutations. The order row is locked
// FOR UPDATE for the lifetime of the transaction, so all writes to one
// order's ledger are serialized.
type OrderTx interface {
	Order() *models.Order
	Payments(ctx context.Context) ([]models.Payment, error)
	GetPayment(ctx context.Context, paymentID int64) (*models.Payment, error)
	FindPaymentByIdentifier(ctx context.Context, paymentIntentID string) (*models.Payment, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	UpdatePaymentStatus(ctx context.Context, paymentID int64, status string, details models.Details) error
	SetPaymentIdentifier(ctx context.Context, paymentID int64, transactionID, gatewayPaymentID string) error
	UpdateOrderStatus(ctx context.Context, status, paymentStatus string) error
	UpdateOrderTotal(ctx context.Context, total decimal.Decimal) error
	ReplaceOrderItems(ctx context.Context, items models.OrderItems) error
	SetOrderPaymentIntent(ctx context.Context, paymentIntentID string) error
	CreateStoreCredit(ctx context.Context, credit *models.StoreCredit) error
}

type orderTx struct {
	tx    *sqlx.Tx
	order *models.Order
}

// InOrderTx runs fn inside a transaction holding a row lock on the order.
// The transaction commits only if fn returns nil.
func (s *Store) InOrderTx(ctx context.Context, orderID int64, fn func(OrderTx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var order models.Order
	err = tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		return apperr.NotFoundf("order not found: %d", orderID)
	}
	if err != nil {
		return fmt.Errorf("failed to lock order %d: %w", orderID, err)
	}

	if err := fn(&orderTx{tx: tx, order: &order}); err != nil {
		return err
	}

	return tx.Commit()
}

// Order returns the locked order row as read at transaction start
func (t *orderTx) Order() *models.Order {
	return t.order
}

// Payments retrieves the order's ledger entries in insertion order
func (t *orderTx) Payments(ctx context.Context) ([]models.Payment, error) {
	var payments []models.Payment
	err := t.tx.SelectContext(ctx, &payments,
		"SELECT * FROM order_payments WHERE order_id = $1 ORDER BY id", t.order.ID)
	return payments, err
}

// GetPayment retrieves a single ledger entry belonging to this order
func (t *orderTx) GetPayment(ctx context.Context, paymentID int64) (*models.Payment, error) {
	var payment models.Payment
	err := t.tx.GetContext(ctx, &payment,
		"SELECT * FROM order_payments WHERE id = $1 AND order_id = $2", paymentID, t.order.ID)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("payment not found: %d", paymentID)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindPaymentByIdentifier retrieves the entry carrying a processor
// identifier, or nil if none does
func (t *orderTx) FindPaymentByIdentifier(ctx context.Context, paymentIntentID string) (*models.Payment, error) {
	var payment models.Payment
	err := t.tx.GetContext(ctx, &payment,
		"SELECT * FROM order_payments WHERE order_id = $1 AND payment_id = $2 ORDER BY id LIMIT 1",
		t.order.ID, paymentIntentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// CreatePayment appends a ledger entry
func (t *orderTx) CreatePayment(ctx context.Context, payment *models.Payment) error {
	payment.OrderID = t.order.ID
	query := `
		INSERT INTO order_payments
			(order_id, payment_type, amount, payment_method, status,
			 transaction_id, payment_id, description, details, refunded_items)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	return t.tx.GetContext(ctx, payment, query,
		payment.OrderID, payment.Type, payment.Amount, payment.Method, payment.Status,
		payment.TransactionID, payment.PaymentID, payment.Description,
		payment.Details, payment.RefundedItems)
}

// UpdatePaymentStatus updates a ledger entry's status and optionally merges
// its details. Entries are otherwise immutable.
func (t *orderTx) UpdatePaymentStatus(ctx context.Context, paymentID int64, status string, details models.Details) error {
	if details == nil {
		_, err := t.tx.ExecContext(ctx,
			"UPDATE order_payments SET status = $1, updated_at = NOW() WHERE id = $2 AND order_id = $3",
			status, paymentID, t.order.ID)
		return err
	}
	_, err := t.tx.ExecContext(ctx,
		"UPDATE order_payments SET status = $1, details = COALESCE(details, '{}'::jsonb) || $2, updated_at = NOW() WHERE id = $3 AND order_id = $4",
		status, details, paymentID, t.order.ID)
	return err
}

// SetPaymentIdentifier attaches a late-arriving processor identifier
func (t *orderTx) SetPaymentIdentifier(ctx context.Context, paymentID int64, transactionID, gatewayPaymentID string) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE order_payments SET transaction_id = $1, payment_id = $2, updated_at = NOW() WHERE id = $3 AND order_id = $4",
		transactionID, gatewayPaymentID, paymentID, t.order.ID)
	return err
}

// UpdateOrderStatus updates the order's status pair
func (t *orderTx) UpdateOrderStatus(ctx context.Context, status, paymentStatus string) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, payment_status = $2, updated_at = NOW() WHERE id = $3",
		status, paymentStatus, t.order.ID)
	if err == nil {
		t.order.Status = status
		t.order.PaymentStatus = paymentStatus
	}
	return err
}

// UpdateOrderTotal updates the order's monetary total
func (t *orderTx) UpdateOrderTotal(ctx context.Context, total decimal.Decimal) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE orders SET total = $1, updated_at = NOW() WHERE id = $2", total, t.order.ID)
	if err == nil {
		t.order.Total = total
	}
	return err
}

// ReplaceOrderItems replaces the order's item snapshot
func (t *orderTx) ReplaceOrderItems(ctx context.Context, items models.OrderItems) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE orders SET items = $1, updated_at = NOW() WHERE id = $2", items, t.order.ID)
	if err == nil {
		t.order.Items = items
	}
	return err
}

// SetOrderPaymentIntent records the processor intent currently attached to
// the order
func (t *orderTx) SetOrderPaymentIntent(ctx context.Context, paymentIntentID string) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE orders SET payment_id = $1, updated_at = NOW() WHERE id = $2", paymentIntentID, t.order.ID)
	if err == nil {
		t.order.PaymentID = paymentIntentID
	}
	return err
}

// CreateStoreCredit records a store credit issued to a customer
func (t *orderTx) CreateStoreCredit(ctx context.Context, credit *models.StoreCredit) error {
	credit.OrderID = t.order.ID
	if credit.Status == "" {
		credit.Status = models.StoreCreditStatusActive
	}
	query := `
		INSERT INTO store_credits (customer_email, amount, reason, order_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return t.tx.GetContext(ctx, credit, query,
		credit.CustomerEmail, credit.Amount, credit.Reason, credit.OrderID, credit.Status)
}
