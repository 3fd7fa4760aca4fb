package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"payment-service/internal/apperr"
	"payment-service/internal/gateway"
	"payment-service/internal/ledger"
	"payment-service/internal/models"
	"payment-service/internal/store"
	"payment-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the persistence surface the payment engine needs.
type Store interface {
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	ListPayments(ctx context.Context, orderID int64) ([]models.Payment, error)
	GetTenantConfig(ctx context.Context, tenantID int64) (*models.TenantGatewayConfig, error)
	FindOrderByPaymentIntent(ctx context.Context, tenantID int64, paymentIntentID string) (*models.Order, error)
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
	InOrderTx(ctx context.Context, orderID int64, fn func(store.OrderTx) error) error
}

// Locker serializes refund processing per order across instances.
type Locker interface {
	AcquireOrderLock(ctx context.Context, orderID string, ttl time.Duration) (bool, error)
	ReleaseOrderLock(ctx context.Context, orderID string) error
}

// LinkCache keeps the most recently issued hosted payment page per order so
// a repeated request re-sends it instead of minting a new one.
type LinkCache interface {
	CachePaymentLink(ctx context.Context, orderID, url string, ttl time.Duration) error
	GetCachedPaymentLink(ctx context.Context, orderID string) (string, error)
}

// EventSink publishes payment domain events after the ledger commits.
type EventSink interface {
	PublishPaymentCaptured(ctx context.Context, event *models.PaymentCapturedEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
	PublishRefundCompleted(ctx context.Context, event *models.RefundCompletedEvent) error
	PublishPaymentLinkCreated(ctx context.Context, event *models.PaymentLinkCreatedEvent) error
}

// GatewaySelector builds the gateway adapter for one tenant configuration.
type GatewaySelector func(cfg *models.TenantGatewayConfig) (gateway.Gateway, error)

const (
	refundLockTTL  = 30 * time.Second
	paymentLinkTTL = 24 * time.Hour
)

// Orchestrator runs the payment commands against an order. All ledger
// mutations happen inside a row-locked transaction; gateway calls run
// before the transaction so a gateway failure leaves no partial state.
type Orchestrator struct {
	store    Store
	locker   Locker
	links    LinkCache
	gateways GatewaySelector
	events   EventSink
	notifier Notifier
	logger   *zap.Logger
}

func NewOrchestrator(st Store, locker Locker, links LinkCache, gateways GatewaySelector, events EventSink, notifier Notifier) *Orchestrator {
	return &Orchestrator{
		store:    st,
		locker:   locker,
		links:    links,
		gateways: gateways,
		events:   events,
		notifier: notifier,
		logger:   util.GetLogger(),
	}
}

// LedgerView is the ledger query result for one order.
type LedgerView struct {
	Payments []models.Payment `json:"payments"`
	ledger.Totals
}

// PaymentResult is the success envelope for a ledger-mutating command.
type PaymentResult struct {
	Payment      *models.Payment `json:"payment"`
	Amount       decimal.Decimal `json:"amount"`
	ClientSecret string          `json:"client_secret,omitempty"`
	PaymentURL   string          `json:"payment_url,omitempty"`
	FreeOrder    bool            `json:"free_order,omitempty"`
	SmallOrder   bool            `json:"small_order,omitempty"`
}

// Payments returns the order's full ledger with recomputed totals.
func (o *Orchestrator) Payments(ctx context.Context, orderID int64) (*LedgerView, error) {
	ctx, span := util.StartSpan(ctx, "orchestrator.Payments")
	defer span.End()

	if _, err := o.store.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	payments, err := o.store.ListPayments(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	return &LedgerView{Payments: payments, Totals: ledger.Recompute(payments)}, nil
}

// AdditionalAmount computes the amount owed for requested items against the
// order's existing item snapshot. Unmatched items bill at full price times
// quantity; matched items bill only the quantity increase, at the requested
// item's price when it carries one and the snapshot price otherwise; equal
// or reduced quantities contribute nothing.
func AdditionalAmount(existing models.OrderItems, requested []models.OrderItem) decimal.Decimal {
	byID := make(map[string]models.OrderItem, len(existing))
	for _, item := range existing {
		byID[item.ID] = item
	}

	total := decimal.Zero
	for _, req := range requested {
		current, ok := byID[req.ID]
		if !ok {
			total = total.Add(req.Price.Mul(decimal.NewFromInt(int64(req.Quantity))))
			continue
		}
		if delta := req.Quantity - current.Quantity; delta > 0 {
			price := req.Price
			if price.IsZero() {
				price = current.Price
			}
			total = total.Add(price.Mul(decimal.NewFromInt(int64(delta))))
		}
	}
	return total
}

// CreateAdditionalPayment opens a pending additional payment for newly
// requested items. The computed amount must be positive before any gateway
// contact happens.
func (o *Orchestrator) CreateAdditionalPayment(ctx context.Context, orderID int64, items []models.OrderItem) (*PaymentResult, error) {
	ctx, span := util.StartSpan(ctx, "orchestrator.CreateAdditionalPayment")
	defer span.End()
	util.PaymentCommandsTotal.WithLabelValues("create_additional_payment").Inc()

	order, cfg, gw, err := o.resolve(ctx, orderID)
	if err != nil {
		return nil, o.fail("create_additional_payment", err)
	}

	amount := AdditionalAmount(order.Items, items)
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, o.fail("create_additional_payment",
			apperr.Validationf("no additional amount due for the requested items"))
	}

	intent, err := gw.CreateIntent(ctx, amount, cfg.Currency, map[string]string{
		"order_id":  strconv.FormatInt(orderID, 10),
		"tenant_id": strconv.FormatInt(order.TenantID, 10),
	})
	if err != nil {
		return nil, o.fail("create_additional_payment", err)
	}

	payment := &models.Payment{
		Type:      models.PaymentTypeAdditional,
		Amount:    amount,
		Method:    gw.Name(),
		Status:    models.PaymentStatusPending,
		PaymentID: intent.ID,
		Details:   models.Details{"requested_items": items},
	}
	err = o.store.InOrderTx(ctx, orderID, func(tx store.OrderTx) error {
		return tx.CreatePayment(ctx, payment)
	})
	if err != nil {
		return nil, o.fail("create_additional_payment", err)
	}

	o.logger.Info("additional payment created",
		zap.Int64("order_id", orderID),
		zap.Int64("payment_id", payment.ID),
		zap.String("amount", amount.String()))

	return &PaymentResult{
		Payment:      payment,
		Amount:       amount,
		ClientSecret: intent.ClientSecret,
		FreeOrder:    intent.FreeOrder,
		SmallOrder:   intent.SmallOrder,
	}, nil
}

// CaptureAdditionalPayment finalizes a pending additional payment. On
// success the payment turns paid, the order total grows by the captured
// amount, and the order's item snapshot is replaced by the captured set.
// On gateway failure the payment stays pending and the error surfaces.
func (o *Orchestrator) CaptureAdditionalPayment(ctx context.Context, orderID, paymentID int64, items []models.OrderItem) (*PaymentResult, error) {
	ctx, span := util.StartSpan(ctx, "orchestrator.CaptureAdditionalPayment")
	defer span.End()
	util.PaymentCommandsTotal.WithLabelValues("capture_additional_payment").Inc()

	order, _, gw, err := o.resolve(ctx, orderID)
	if err != nil {
		return nil, o.fail("capture_additional_payment", err)
	}

	payments, err := o.store.ListPayments(ctx, orderID)
	if err != nil {
		return nil, o.fail("capture_additional_payment", err)
	}
	var pending *models.Payment
	for i := range payments {
		if payments[i].ID == paymentID {
			pending = &payments[i]
			break
		}
	}
	if pending == nil {
		return nil, o.fail("capture_additional_payment", apperr.NotFoundf("payment not found: %d", paymentID))
	}
	if pending.Status != models.PaymentStatusPending {
		return nil, o.fail("capture_additional_payment",
			apperr.Validationf("payment %d is not pending", paymentID))
	}

	capture, err := gw.Capture(ctx, pending.PaymentID)
	if err != nil {
		return nil, o.fail("capture_additional_payment", err)
	}

	var captured *models.Payment
	err = o.store.InOrderTx(ctx, orderID, func(tx store.OrderTx) error {
		p, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.Status != models.PaymentStatusPending {
			captured = p
			return nil
		}
		details := models.Details{"status": capture.Status}
		for k, v := range capture.Details {
			details[k] = v
		}
		if err := tx.UpdatePaymentStatus(ctx, paymentID, models.PaymentStatusPaid, details); err != nil {
			return err
		}
		if err := tx.SetPaymentIdentifier(ctx, paymentID, capture.TransactionID, capture.PaymentID); err != nil {
			return err
		}
		if err := tx.UpdateOrderTotal(ctx, tx.Order().Total.Add(p.Amount)); err != nil {
			return err
		}
		if len(items) > 0 {
			if err := tx.ReplaceOrderItems(ctx, items); err != nil {
				return err
			}
		}
		if err := tx.UpdateOrderStatus(ctx, tx.Order().Status, models.PaymentStatusPaid); err != nil {
			return err
		}
		p.Status = models.PaymentStatusPaid
		p.TransactionID = capture.TransactionID
		p.PaymentID = capture.PaymentID
		captured = p
		return nil
	})
	if err != nil {
		return nil, o.fail("capture_additional_payment", err)
	}

	util.PaymentsCapturedTotal.Inc()
	o.publishCaptured(ctx, order, captured)

	return &PaymentResult{Payment: captured, Amount: captured.Amount}, nil
}

// CreateRefund refunds part or all of an order's net amount. The whole
// command runs under a per-order distributed lock so two concurrent refunds
// cannot both validate against the same balance.
func (o *Orchestrator) CreateRefund(ctx context.Context, orderID int64, amount decimal.Decimal, reason string, refundedItems []models.OrderItem) (*PaymentResult, error) {
	ctx, span := util.StartSpan(ctx, "orchestrator.CreateRefund")
	defer span.End()
	util.PaymentCommandsTotal.WithLabelValues("create_refund").Inc()

	lockKey := strconv.FormatInt(orderID, 10)
	acquired, err := o.locker.AcquireOrderLock(ctx, lockKey, refundLockTTL)
	if err != nil {
		return nil, o.fail("create_refund", err)
	}
	if !acquired {
		return nil, o.fail("create_refund", apperr.Conflictf("another refund for order %d is in progress", orderID))
	}
	defer func() {
		if err := o.locker.ReleaseOrderLock(context.Background(), lockKey); err != nil {
			o.logger.Warn("failed to release order lock", zap.Int64("order_id", orderID), zap.Error(err))
		}
	}()

	order, cfg, gw, err := o.resolve(ctx, orderID)
	if err != nil {
		return nil, o.fail("create_refund", err)
	}

	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, o.fail("create_refund", apperr.Validationf("refund amount must be positive"))
	}

	payments, err := o.store.ListPayments(ctx, orderID)
	if err != nil {
		return nil, o.fail("create_refund", err)
	}
	totals := ledger.Recompute(payments)
	if !cfg.TestMode && amount.GreaterThan(totals.Refundable()) {
		return nil, o.fail("create_refund",
			apperr.Validationf("refund amount %s exceeds refundable balance %s",
				amount.StringFixed(2), totals.Refundable().StringFixed(2)))
	}

	// The refund is issued against the settled initial payment's processor
	// identifier. The ledger may also hold unsettled initial entries; those
	// carry no usable identifier and must not shadow the real payment.
	initial := initialForRefund(payments)
	identifier := ""
	if initial != nil {
		identifier = initial.PaymentID
	}
	if identifier == "" {
		identifier = order.PaymentID
	}

	// Backfill an identifier or a whole initial payment when the ledger has
	// neither. Test tenants get a synthetic one covering twice the refund;
	// live tenants must have real payment history.
	var synthesized *models.Payment
	switch {
	case identifier != "":
	case cfg.TestMode && initial != nil:
		identifier = "pi_test_" + lockKey + "_backfill"
	case cfg.TestMode:
		identifier = "pi_test_" + lockKey + "_synth"
		synthesized = &models.Payment{
			Type:          models.PaymentTypeInitial,
			Amount:        amount.Mul(decimal.NewFromInt(2)),
			Method:        gw.Name(),
			Status:        models.PaymentStatusPaid,
			PaymentID:     identifier,
			TransactionID: identifier,
			Description:   "test-mode initial payment",
		}
	default:
		return nil, o.fail("create_refund",
			apperr.NotFoundf("order %d has no initial payment with a gateway identifier", orderID))
	}

	refund, err := gw.Refund(ctx, identifier, amount, reason)
	if err != nil {
		return nil, o.fail("create_refund", err)
	}

	entry := &models.Payment{
		Type:          models.PaymentTypeRefund,
		Amount:        amount,
		Method:        gw.Name(),
		Status:        models.PaymentStatusCompleted,
		TransactionID: refund.RefundID,
		PaymentID:     identifier,
		Description:   reason,
		Details:       refund.Details,
		RefundedItems: refundedItems,
	}

	var after ledger.Totals
	err = o.store.InOrderTx(ctx, orderID, func(tx store.OrderTx) error {
		if synthesized != nil {
			if err := tx.CreatePayment(ctx, synthesized); err != nil {
				return err
			}
		} else if initial != nil && initial.PaymentID == "" {
			if err := tx.SetPaymentIdentifier(ctx, initial.ID, identifier, identifier); err != nil {
				return err
			}
		}

		current, err := tx.Payments(ctx)
		if err != nil {
			return err
		}
		// Adjustments write refund-typed entries without taking the refund
		// lock, so the bound is checked again on the locked ledger.
		locked := ledger.Recompute(current)
		if !cfg.TestMode && amount.GreaterThan(locked.Refundable()) {
			return apperr.Validationf("refund amount %s exceeds refundable balance %s",
				amount.StringFixed(2), locked.Refundable().StringFixed(2))
		}
		if err := tx.CreatePayment(ctx, entry); err != nil {
			return err
		}
		after = ledger.Recompute(append(current, *entry))

		status := models.OrderStatusPartiallyRefunded
		if after.FullyRefunded() {
			status = models.OrderStatusRefunded
		}
		return tx.UpdateOrderStatus(ctx, status, status)
	})
	if err != nil {
		return nil, o.fail("create_refund", err)
	}

	util.RefundsCompletedTotal.Inc()
	o.publishRefund(ctx, order, entry, after)

	return &PaymentResult{Payment: entry, Amount: amount}, nil
}

// initialForRefund picks the initial payment a refund is issued against. A
// settled entry carrying a processor identifier wins over an unsettled one
// with an identifier, which wins over any identifierless entry.
func initialForRefund(payments []models.Payment) *models.Payment {
	var withIdentifier, first *models.Payment
	for i := range payments {
		p := &payments[i]
		if p.Type != models.PaymentTypeInitial {
			continue
		}
		if first == nil {
			first = p
		}
		if p.PaymentID == "" {
			continue
		}
		if p.Status == models.PaymentStatusPaid || p.Status == models.PaymentStatusCompleted {
			return p
		}
		if withIdentifier == nil {
			withIdentifier = p
		}
	}
	if withIdentifier != nil {
		return withIdentifier
	}
	return first
}

// AddStoreCredit issues store credit in place of a gateway refund. The
// credit is recorded next to a completed refund-typed ledger entry; order
// status is left untouched.
func (o *Orchestrator) AddStoreCredit(ctx context.Context, orderID int64, amount decimal.Decimal, reason string) (*PaymentResult, error) {
	ctx, span := util.StartSpan(ctx, "orchestrator.AddStoreCredit")
	defer span.End()
	util.PaymentCommandsTotal.WithLabelValues("add_store_credit").Inc()

	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, o.fail("add_store_credit", apperr.Validationf("store credit amount must be positive"))
	}

	order, err := o.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, o.fail("add_store_credit", err)
	}

	entry := &models.Payment{
		Type:        models.PaymentTypeRefund,
		Amount:      amount,
		Method:      models.PaymentMethodStoreCredit,
		Status:      models.PaymentStatusCompleted,
		Description: reason,
	}
	var after ledger.Totals
	err = o.store.InOrderTx(ctx, orderID, func(tx store.OrderTx) error {
		credit := &models.StoreCredit{
			CustomerEmail: tx.Order().ContactEmail,
			Amount:        amount,
			Reason:        reason,
		}
		if err := tx.CreateStoreCredit(ctx, credit); err != nil {
			return err
		}
		if err := tx.CreatePayment(ctx, entry); err != nil {
			return err
		}
		current, err := tx.Payments(ctx)
		if err != nil {
			return err
		}
		after = ledger.Recompute(current)
		return nil
	})
	if err != nil {
		return nil, o.fail("add_store_credit", err)
	}

	util.StoreCreditsIssuedTotal.Inc()
	o.publishRefund(ctx, order, entry, after)

	return &PaymentResult{Payment: entry, Amount: amount}, nil
}

// AdjustTotal sets a new order total and books the difference as a
// completed adjustment entry: refund-typed when the total shrinks,
// additional-typed when it grows. A zero delta still leaves an audit entry.
func (o *Orchestrator) AdjustTotal(ctx context.Context, orderID int64, newTotal decimal.Decimal) (*PaymentResult, error) {
	ctx, span := util.StartSpan(ctx, "orchestrator.AdjustTotal")
	defer span.End()
	util.PaymentCommandsTotal.WithLabelValues("adjust_total").Inc()

	if newTotal.LessThan(decimal.Zero) {
		return nil, o.fail("adjust_total", apperr.Validationf("order total cannot be negative"))
	}

	var entry *models.Payment
	err := o.store.InOrderTx(ctx, orderID, func(tx store.OrderTx) error {
		oldTotal := tx.Order().Total
		delta := newTotal.Sub(oldTotal)

		paymentType := models.PaymentTypeAdditional
		if delta.LessThan(decimal.Zero) {
			paymentType = models.PaymentTypeRefund
		}

		entry = &models.Payment{
			Type:        paymentType,
			Amount:      delta.Abs(),
			Method:      models.PaymentMethodAdjustment,
			Status:      models.PaymentStatusCompleted,
			Description: "total adjusted from " + oldTotal.StringFixed(2) + " to " + newTotal.StringFixed(2),
		}
		if err := tx.UpdateOrderTotal(ctx, newTotal); err != nil {
			return err
		}
		return tx.CreatePayment(ctx, entry)
	})
	if err != nil {
		return nil, o.fail("adjust_total", err)
	}

	o.logger.Info("order total adjusted",
		zap.Int64("order_id", orderID),
		zap.String("new_total", newTotal.StringFixed(2)),
		zap.String("entry_type", entry.Type))

	return &PaymentResult{Payment: entry, Amount: entry.Amount}, nil
}

// CreatePaymentLink creates a hosted payment page for the requested items
// and dispatches it to the customer. Contact details fall back to the ones
// on the order; without an items payload the order's outstanding balance is
// charged. Notification failures never affect the recorded payment.
func (o *Orchestrator) CreatePaymentLink(ctx context.Context, orderID int64, items []models.OrderItem, email, phone string) (*PaymentResult, error) {
	ctx, span := util.StartSpan(ctx, "orchestrator.CreatePaymentLink")
	defer span.End()
	util.PaymentCommandsTotal.WithLabelValues("create_payment_link").Inc()

	order, cfg, gw, err := o.resolve(ctx, orderID)
	if err != nil {
		return nil, o.fail("create_payment_link", err)
	}

	if email == "" {
		email = order.ContactEmail
	}
	if phone == "" {
		phone = order.ContactPhone
	}
	if email == "" && phone == "" {
		return nil, o.fail("create_payment_link",
			apperr.Validationf("email or phone number is required"))
	}

	payments, err := o.store.ListPayments(ctx, orderID)
	if err != nil {
		return nil, o.fail("create_payment_link", err)
	}

	amount := decimal.Zero
	lineItems := models.OrderItems(items)
	if len(items) > 0 {
		for _, item := range items {
			amount = amount.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
	} else {
		amount = order.Total.Sub(ledger.Recompute(payments).NetAmount)
		lineItems = order.Items
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, o.fail("create_payment_link",
			apperr.Validationf("invalid payment link amount %s", amount.StringFixed(2)))
	}

	cacheKey := strconv.FormatInt(orderID, 10)
	if cached, err := o.links.GetCachedPaymentLink(ctx, cacheKey); err == nil && cached != "" {
		if entry := pendingLinkEntry(payments, cached, amount); entry != nil {
			o.sendPaymentLink(ctx, orderID, email, phone, cached, amount)
			return &PaymentResult{Payment: entry, Amount: amount, PaymentURL: cached}, nil
		}
	}

	link, err := gw.CreatePaymentLink(ctx, amount, lineItems, cfg.SuccessURL, cfg.CancelURL, map[string]string{
		"order_id":  strconv.FormatInt(orderID, 10),
		"tenant_id": strconv.FormatInt(order.TenantID, 10),
	})
	if err != nil {
		return nil, o.fail("create_payment_link", err)
	}

	entry := &models.Payment{
		Type:        models.PaymentTypeAdditional,
		Amount:      amount,
		Method:      models.PaymentMethodPaymentLink,
		Status:      models.PaymentStatusPending,
		Description: linkDescription(items),
		Details:     models.Details{"url": link.URL, "email": email, "phone": phone},
	}
	if len(items) > 0 {
		entry.Details["items"] = items
	}
	err = o.store.InOrderTx(ctx, orderID, func(tx store.OrderTx) error {
		return tx.CreatePayment(ctx, entry)
	})
	if err != nil {
		return nil, o.fail("create_payment_link", err)
	}

	util.PaymentLinksCreatedTotal.Inc()
	if err := o.links.CachePaymentLink(ctx, cacheKey, link.URL, paymentLinkTTL); err != nil {
		o.logger.Warn("failed to cache payment link", zap.Int64("order_id", orderID), zap.Error(err))
	}

	o.sendPaymentLink(ctx, orderID, email, phone, link.URL, amount)

	if err := o.events.PublishPaymentLinkCreated(ctx, &models.PaymentLinkCreatedEvent{
		OrderID:  orderID,
		TenantID: order.TenantID,
		URL:      link.URL,
	}); err != nil {
		o.logger.Warn("failed to publish payment link event", zap.Int64("order_id", orderID), zap.Error(err))
	}

	return &PaymentResult{Payment: entry, Amount: amount, PaymentURL: link.URL}, nil
}

// pendingLinkEntry finds the open ledger entry for an already-issued link.
func pendingLinkEntry(payments []models.Payment, url string, amount decimal.Decimal) *models.Payment {
	for i := range payments {
		p := &payments[i]
		if p.Method != models.PaymentMethodPaymentLink || p.Status != models.PaymentStatusPending {
			continue
		}
		if !p.Amount.Equal(amount) || p.Details == nil {
			continue
		}
		if u, ok := p.Details["url"].(string); ok && u == url {
			return p
		}
	}
	return nil
}

func linkDescription(items []models.OrderItem) string {
	if len(items) == 0 {
		return "Payment link for outstanding balance"
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%dx %s", item.Quantity, item.Name))
	}
	return "Payment link: " + strings.Join(parts, ", ")
}

func (o *Orchestrator) sendPaymentLink(ctx context.Context, orderID int64, email, phone, url string, amount decimal.Decimal) {
	data := map[string]string{
		"order_id": strconv.FormatInt(orderID, 10),
		"url":      url,
		"amount":   amount.StringFixed(2),
	}
	if email != "" {
		o.notifier.Notify(ctx, "email", "payment_link", email, data)
	}
	if phone != "" {
		o.notifier.Notify(ctx, "sms", "payment_link", phone, data)
	}
}

// resolve loads the order, its tenant's gateway configuration, and the
// gateway adapter for that configuration.
func (o *Orchestrator) resolve(ctx context.Context, orderID int64) (*models.Order, *models.TenantGatewayConfig, gateway.Gateway, error) {
	order, err := o.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, nil, err
	}
	cfg, err := o.store.GetTenantConfig(ctx, order.TenantID)
	if err != nil {
		return nil, nil, nil, err
	}
	gw, err := o.gateways(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return order, cfg, gw, nil
}

func (o *Orchestrator) fail(command string, err error) error {
	reason := "internal"
	if ae, ok := apperr.As(err); ok {
		reason = string(ae.Kind)
	}
	util.PaymentCommandFailuresTotal.WithLabelValues(command, reason).Inc()
	return err
}

func (o *Orchestrator) publishCaptured(ctx context.Context, order *models.Order, payment *models.Payment) {
	err := o.events.PublishPaymentCaptured(ctx, &models.PaymentCapturedEvent{
		OrderID:   order.ID,
		TenantID:  order.TenantID,
		PaymentID: payment.ID,
		Amount:    payment.Amount.StringFixed(2),
		Method:    payment.Method,
		TxID:      payment.TransactionID,
	})
	if err != nil {
		o.logger.Warn("failed to publish payment captured event",
			zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

func (o *Orchestrator) publishRefund(ctx context.Context, order *models.Order, payment *models.Payment, totals ledger.Totals) {
	err := o.events.PublishRefundCompleted(ctx, &models.RefundCompletedEvent{
		OrderID:   order.ID,
		TenantID:  order.TenantID,
		PaymentID: payment.ID,
		Amount:    payment.Amount.StringFixed(2),
		NetAmount: totals.NetAmount.StringFixed(2),
		Method:    payment.Method,
	})
	if err != nil {
		o.logger.Warn("failed to publish refund completed event",
			zap.Int64("order_id", order.ID), zap.Error(err))
	}
}
