package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"payment-service/internal/apperr"
	"payment-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetOrder retrieves an order by ID
func (s *Store) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("order not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListPayments retrieves all payment entries for an order in insertion order
func (s *Store) ListPayments(ctx context.Context, orderID int64) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.SelectContext(ctx, &payments,
		"SELECT * FROM order_payments WHERE order_id = $1 ORDER BY id", orderID)
	return payments, err
}

// GetTenantConfig retrieves a tenant's gateway configuration. A missing row
// is a configuration error: no payment operation can proceed without one.
func (s *Store) GetTenantConfig(ctx context.Context, tenantID int64) (*models.TenantGatewayConfig, error) {
	var cfg models.TenantGatewayConfig
	err := s.db.GetContext(ctx, &cfg,
		"SELECT * FROM tenant_gateway_configs WHERE tenant_id = $1", tenantID)
	if err == sql.ErrNoRows {
		return nil, apperr.Configurationf("no gateway configuration for tenant %d", tenantID)
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FindOrderByPaymentIntent locates the order a processor identifier belongs
// to, checking the order's own intent first and the payment ledger second.
func (s *Store) FindOrderByPaymentIntent(ctx context.Context, tenantID int64, paymentIntentID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE tenant_id = $1 AND payment_id = $2", tenantID, paymentIntentID)
	if err == nil {
		return &order, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	err = s.db.GetContext(ctx, &order, `
		SELECT o.* FROM orders o
		JOIN order_payments p ON p.order_id = o.id
		WHERE o.tenant_id = $1 AND p.payment_id = $2
		ORDER BY p.id LIMIT 1`, tenantID, paymentIntentID)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("no order for payment intent %s", paymentIntentID)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// IsEventProcessed checks if a webhook event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks a webhook event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
