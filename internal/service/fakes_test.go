package service

import (
	"context"
	"time"

	"payment-service/internal/apperr"
	"payment-service/internal/gateway"
	"payment-service/internal/models"
	"payment-service/internal/store"

	"github.com/shopspring/decimal"
)

type fakeStore struct {
	orders        map[int64]*models.Order
	payments      map[int64][]*models.Payment
	configs       map[int64]*models.TenantGatewayConfig
	credits       []*models.StoreCredit
	processed     map[string]bool
	nextPaymentID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:    map[int64]*models.Order{},
		payments:  map[int64][]*models.Payment{},
		configs:   map[int64]*models.TenantGatewayConfig{},
		processed: map[string]bool{},
	}
}

func (s *fakeStore) addOrder(order *models.Order) *models.Order {
	s.orders[order.ID] = order
	return order
}

func (s *fakeStore) addPayment(orderID int64, payment *models.Payment) *models.Payment {
	s.nextPaymentID++
	payment.ID = s.nextPaymentID
	payment.OrderID = orderID
	s.payments[orderID] = append(s.payments[orderID], payment)
	return payment
}

func (s *fakeStore) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, apperr.NotFoundf("order not found: %d", id)
	}
	copied := *order
	return &copied, nil
}

func (s *fakeStore) ListPayments(ctx context.Context, orderID int64) ([]models.Payment, error) {
	out := make([]models.Payment, 0, len(s.payments[orderID]))
	for _, p := range s.payments[orderID] {
		out = append(out, *p)
	}
	return out, nil
}

func (s *fakeStore) GetTenantConfig(ctx context.Context, tenantID int64) (*models.TenantGatewayConfig, error) {
	cfg, ok := s.configs[tenantID]
	if !ok {
		return nil, apperr.Configurationf("no gateway configuration for tenant %d", tenantID)
	}
	return cfg, nil
}

func (s *fakeStore) FindOrderByPaymentIntent(ctx context.Context, tenantID int64, paymentIntentID string) (*models.Order, error) {
	for _, order := range s.orders {
		if order.TenantID != tenantID {
			continue
		}
		if order.PaymentID == paymentIntentID {
			copied := *order
			return &copied, nil
		}
		for _, p := range s.payments[order.ID] {
			if p.PaymentID == paymentIntentID {
				copied := *order
				return &copied, nil
			}
		}
	}
	return nil, apperr.NotFoundf("no order for payment intent %s", paymentIntentID)
}

func (s *fakeStore) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	return s.processed[eventID], nil
}

func (s *fakeStore) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	s.processed[eventID] = true
	return nil
}

func (s *fakeStore) InOrderTx(ctx context.Context, orderID int64, fn func(store.OrderTx) error) error {
	order, ok := s.orders[orderID]
	if !ok {
		return apperr.NotFoundf("order not found: %d", orderID)
	}
	return fn(&fakeTx{store: s, order: order})
}

type fakeTx struct {
	store *fakeStore
	order *models.Order
}

func (t *fakeTx) Order() *models.Order { return t.order }

func (t *fakeTx) Payments(ctx context.Context) ([]models.Payment, error) {
	return t.store.ListPayments(ctx, t.order.ID)
}

func (t *fakeTx) GetPayment(ctx context.Context, paymentID int64) (*models.Payment, error) {
	for _, p := range t.store.payments[t.order.ID] {
		if p.ID == paymentID {
			return p, nil
		}
	}
	return nil, apperr.NotFoundf("payment not found: %d", paymentID)
}

func (t *fakeTx) FindPaymentByIdentifier(ctx context.Context, paymentIntentID string) (*models.Payment, error) {
	for _, p := range t.store.payments[t.order.ID] {
		if p.PaymentID == paymentIntentID {
			return p, nil
		}
	}
	return nil, nil
}

func (t *fakeTx) CreatePayment(ctx context.Context, payment *models.Payment) error {
	payment.CreatedAt = time.Now()
	payment.UpdatedAt = payment.CreatedAt
	t.store.addPayment(t.order.ID, payment)
	return nil
}

func (t *fakeTx) UpdatePaymentStatus(ctx context.Context, paymentID int64, status string, details models.Details) error {
	p, err := t.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	p.Status = status
	if details != nil {
		if p.Details == nil {
			p.Details = models.Details{}
		}
		for k, v := range details {
			p.Details[k] = v
		}
	}
	return nil
}

func (t *fakeTx) SetPaymentIdentifier(ctx context.Context, paymentID int64, transactionID, gatewayPaymentID string) error {
	p, err := t.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	p.TransactionID = transactionID
	p.PaymentID = gatewayPaymentID
	return nil
}

func (t *fakeTx) UpdateOrderStatus(ctx context.Context, status, paymentStatus string) error {
	t.order.Status = status
	t.order.PaymentStatus = paymentStatus
	return nil
}

func (t *fakeTx) UpdateOrderTotal(ctx context.Context, total decimal.Decimal) error {
	t.order.Total = total
	return nil
}

func (t *fakeTx) ReplaceOrderItems(ctx context.Context, items models.OrderItems) error {
	t.order.Items = items
	return nil
}

func (t *fakeTx) SetOrderPaymentIntent(ctx context.Context, paymentIntentID string) error {
	t.order.PaymentID = paymentIntentID
	return nil
}

func (t *fakeTx) CreateStoreCredit(ctx context.Context, credit *models.StoreCredit) error {
	credit.ID = int64(len(t.store.credits) + 1)
	credit.OrderID = t.order.ID
	if credit.Status == "" {
		credit.Status = models.StoreCreditStatusActive
	}
	t.store.credits = append(t.store.credits, credit)
	return nil
}

type fakeLocker struct {
	held map[string]bool
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: map[string]bool{}} }

func (l *fakeLocker) AcquireOrderLock(ctx context.Context, orderID string, ttl time.Duration) (bool, error) {
	if l.held[orderID] {
		return false, nil
	}
	l.held[orderID] = true
	return true, nil
}

func (l *fakeLocker) ReleaseOrderLock(ctx context.Context, orderID string) error {
	delete(l.held, orderID)
	return nil
}

type fakeLinkCache struct {
	links map[string]string
}

func newFakeLinkCache() *fakeLinkCache { return &fakeLinkCache{links: map[string]string{}} }

func (c *fakeLinkCache) CachePaymentLink(ctx context.Context, orderID, url string, ttl time.Duration) error {
	c.links[orderID] = url
	return nil
}

func (c *fakeLinkCache) GetCachedPaymentLink(ctx context.Context, orderID string) (string, error) {
	return c.links[orderID], nil
}

type fakeCache struct {
	seen map[string]bool
}

func newFakeCache() *fakeCache { return &fakeCache{seen: map[string]bool{}} }

func (c *fakeCache) IsEventSeen(ctx context.Context, eventID string) (bool, error) {
	return c.seen[eventID], nil
}

func (c *fakeCache) MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) error {
	c.seen[eventID] = true
	return nil
}

type fakeSink struct {
	captured []*models.PaymentCapturedEvent
	failed   []*models.PaymentFailedEvent
	refunds  []*models.RefundCompletedEvent
	links    []*models.PaymentLinkCreatedEvent
}

func (s *fakeSink) PublishPaymentCaptured(ctx context.Context, e *models.PaymentCapturedEvent) error {
	s.captured = append(s.captured, e)
	return nil
}

func (s *fakeSink) PublishPaymentFailed(ctx context.Context, e *models.PaymentFailedEvent) error {
	s.failed = append(s.failed, e)
	return nil
}

func (s *fakeSink) PublishRefundCompleted(ctx context.Context, e *models.RefundCompletedEvent) error {
	s.refunds = append(s.refunds, e)
	return nil
}

func (s *fakeSink) PublishPaymentLinkCreated(ctx context.Context, e *models.PaymentLinkCreatedEvent) error {
	s.links = append(s.links, e)
	return nil
}

type notification struct {
	channel, template, recipient string
	data                         map[string]string
}

type fakeNotifier struct {
	sent []notification
}

func (n *fakeNotifier) Notify(ctx context.Context, channel, template, recipient string, data map[string]string) {
	n.sent = append(n.sent, notification{channel, template, recipient, data})
}

// countingGateway wraps another gateway and fails on demand, counting calls
// and recording the refund identifiers it was handed.
type countingGateway struct {
	gateway.Gateway
	intentCalls       int
	captureCalls      int
	refundCalls       int
	linkCalls         int
	refundIdentifiers []string
	failCapture       bool
	failRefund        bool
}

func (g *countingGateway) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string, metadata map[string]string) (*gateway.Intent, error) {
	g.intentCalls++
	return g.Gateway.CreateIntent(ctx, amount, currency, metadata)
}

func (g *countingGateway) Capture(ctx context.Context, identifier string) (*gateway.CaptureResult, error) {
	g.captureCalls++
	if g.failCapture {
		return nil, apperr.GatewayErr("card_declined", "the card was declined", nil)
	}
	return g.Gateway.Capture(ctx, identifier)
}

func (g *countingGateway) Refund(ctx context.Context, identifier string, amount decimal.Decimal, reason string) (*gateway.RefundResult, error) {
	g.refundCalls++
	g.refundIdentifiers = append(g.refundIdentifiers, identifier)
	if g.failRefund {
		return nil, apperr.GatewayErr("refund_failed", "processor rejected the refund", nil)
	}
	return g.Gateway.Refund(ctx, identifier, amount, reason)
}

func (g *countingGateway) CreatePaymentLink(ctx context.Context, amount decimal.Decimal, items []models.OrderItem, successURL, cancelURL string, metadata map[string]string) (*gateway.PaymentLink, error) {
	g.linkCalls++
	return g.Gateway.CreatePaymentLink(ctx, amount, items, successURL, cancelURL, metadata)
}

func selectorFor(gw gateway.Gateway) GatewaySelector {
	return func(cfg *models.TenantGatewayConfig) (gateway.Gateway, error) {
		return gw, nil
	}
}
