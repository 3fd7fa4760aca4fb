package service

import (
	"context"
	"strconv"
	"time"

	"payment-service/internal/apperr"
	"payment-service/internal/gateway"
	"payment-service/internal/ledger"
	"payment-service/internal/models"
	"payment-service/internal/store"
	"payment-service/internal/util"

	"go.uber.org/zap"
)

// EventCache is the fast-path webhook dedup cache. The processed_events
// table stays authoritative; the cache only short-circuits repeat
// deliveries.
type EventCache interface {
	IsEventSeen(ctx context.Context, eventID string) (bool, error)
	MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) error
}

const eventSeenTTL = 24 * time.Hour

// Reconciler applies asynchronous gateway events to the ledger. Every
// payload is verified against the originating tenant's webhook secret, and
// applying the same event twice never double-counts.
type Reconciler struct {
	store    Store
	cache    EventCache
	gateways GatewaySelector
	events   EventSink
	logger   *zap.Logger
}

func NewReconciler(st Store, cache EventCache, gateways GatewaySelector, events EventSink) *Reconciler {
	return &Reconciler{
		store:    st,
		cache:    cache,
		gateways: gateways,
		events:   events,
		logger:   util.GetLogger(),
	}
}

// HandleEvent verifies and applies one webhook delivery for a tenant.
// Unknown event types are accepted and ignored.
func (r *Reconciler) HandleEvent(ctx context.Context, tenantID int64, payload []byte, signature string) error {
	ctx, span := util.StartSpan(ctx, "reconciler.HandleEvent")
	defer span.End()

	cfg, err := r.store.GetTenantConfig(ctx, tenantID)
	if err != nil {
		return err
	}
	gw, err := r.gateways(cfg)
	if err != nil {
		return err
	}

	event, err := gw.VerifyWebhook(payload, signature)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("unverified", "rejected").Inc()
		return err
	}

	switch event.Type {
	case gateway.EventPaymentSucceeded, gateway.EventPaymentFailed:
	default:
		util.WebhookEventsTotal.WithLabelValues(event.Type, "ignored").Inc()
		r.logger.Debug("ignoring webhook event", zap.String("type", event.Type), zap.String("event_id", event.ID))
		return nil
	}

	if event.ID != "" {
		if seen, err := r.cache.IsEventSeen(ctx, event.ID); err == nil && seen {
			util.WebhookDuplicatesTotal.Inc()
			return nil
		}
		processed, err := r.store.IsEventProcessed(ctx, event.ID)
		if err != nil {
			return err
		}
		if processed {
			util.WebhookDuplicatesTotal.Inc()
			return nil
		}
	}

	order, err := r.locateOrder(ctx, tenantID, event)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues(event.Type, "orphaned").Inc()
		return err
	}

	switch event.Type {
	case gateway.EventPaymentSucceeded:
		err = r.applySucceeded(ctx, order, gw.Name(), event)
	case gateway.EventPaymentFailed:
		err = r.applyFailed(ctx, order, gw.Name(), event)
	}
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues(event.Type, "failed").Inc()
		return err
	}

	if event.ID != "" {
		if err := r.store.MarkEventProcessed(ctx, event.ID, event.Type); err != nil {
			r.logger.Warn("failed to mark event processed", zap.String("event_id", event.ID), zap.Error(err))
		}
		if err := r.cache.MarkEventSeen(ctx, event.ID, eventSeenTTL); err != nil {
			r.logger.Warn("failed to cache event id", zap.String("event_id", event.ID), zap.Error(err))
		}
	}

	util.WebhookEventsTotal.WithLabelValues(event.Type, "applied").Inc()
	return nil
}

// locateOrder resolves the order from the event's metadata order id when
// present, falling back to a ledger lookup by processor identifier.
func (r *Reconciler) locateOrder(ctx context.Context, tenantID int64, event *gateway.Event) (*models.Order, error) {
	if event.OrderID != "" {
		orderID, err := strconv.ParseInt(event.OrderID, 10, 64)
		if err != nil {
			return nil, apperr.Validationf("malformed order id in event metadata: %s", event.OrderID)
		}
		return r.store.GetOrder(ctx, orderID)
	}
	if event.PaymentIntent == "" {
		return nil, apperr.NotFoundf("event %s carries no order reference", event.ID)
	}
	return r.store.FindOrderByPaymentIntent(ctx, tenantID, event.PaymentIntent)
}

func (r *Reconciler) applySucceeded(ctx context.Context, order *models.Order, method string, event *gateway.Event) error {
	var payment *models.Payment
	applied := false
	err := r.store.InOrderTx(ctx, order.ID, func(tx store.OrderTx) error {
		existing, err := tx.FindPaymentByIdentifier(ctx, event.PaymentIntent)
		if err != nil {
			return err
		}
		switch {
		case existing == nil:
			amount := event.Amount
			if amount.IsZero() {
				amount = tx.Order().Total
			}
			paymentType := models.PaymentTypeInitial
			current, err := tx.Payments(ctx)
			if err != nil {
				return err
			}
			if ledger.Recompute(current).TotalPaid.IsPositive() {
				paymentType = models.PaymentTypeAdditional
			}
			payment = &models.Payment{
				Type:          paymentType,
				Amount:        amount,
				Method:        method,
				Status:        models.PaymentStatusPaid,
				TransactionID: event.PaymentIntent,
				PaymentID:     event.PaymentIntent,
				Details:       models.Details{"event_id": event.ID},
			}
			if err := tx.CreatePayment(ctx, payment); err != nil {
				return err
			}
			applied = true

		case existing.Status == models.PaymentStatusPaid || existing.Status == models.PaymentStatusCompleted:
			// Same identifier already settled; re-application is a no-op.
			payment = existing
			return nil

		default:
			if err := tx.UpdatePaymentStatus(ctx, existing.ID, models.PaymentStatusPaid,
				models.Details{"event_id": event.ID}); err != nil {
				return err
			}
			existing.Status = models.PaymentStatusPaid
			payment = existing
			applied = true
		}

		if tx.Order().PaymentID == "" {
			if err := tx.SetOrderPaymentIntent(ctx, event.PaymentIntent); err != nil {
				return err
			}
		}
		return tx.UpdateOrderStatus(ctx, models.OrderStatusPaid, models.PaymentStatusPaid)
	})
	if err != nil {
		return err
	}
	if !applied {
		// A settled payment re-delivered under a fresh event id is not
		// announced again.
		return nil
	}

	util.PaymentsCapturedTotal.Inc()
	if publishErr := r.events.PublishPaymentCaptured(ctx, &models.PaymentCapturedEvent{
		OrderID:   order.ID,
		TenantID:  order.TenantID,
		PaymentID: payment.ID,
		Amount:    payment.Amount.StringFixed(2),
		Method:    payment.Method,
		TxID:      payment.TransactionID,
	}); publishErr != nil {
		r.logger.Warn("failed to publish payment captured event",
			zap.Int64("order_id", order.ID), zap.Error(publishErr))
	}
	return nil
}

// applyFailed records the failure on the matching payment and flips the
// order's payment_status only; order status is left for the merchant.
func (r *Reconciler) applyFailed(ctx context.Context, order *models.Order, method string, event *gateway.Event) error {
	err := r.store.InOrderTx(ctx, order.ID, func(tx store.OrderTx) error {
		details := models.Details{"event_id": event.ID}
		if event.FailureMessage != "" {
			details["error"] = event.FailureMessage
		}

		existing, err := tx.FindPaymentByIdentifier(ctx, event.PaymentIntent)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Status == models.PaymentStatusFailed {
				return nil
			}
			if err := tx.UpdatePaymentStatus(ctx, existing.ID, models.PaymentStatusFailed, details); err != nil {
				return err
			}
		} else {
			payment := &models.Payment{
				Type:          models.PaymentTypeInitial,
				Amount:        event.Amount,
				Method:        method,
				Status:        models.PaymentStatusFailed,
				TransactionID: event.PaymentIntent,
				PaymentID:     event.PaymentIntent,
				Details:       details,
			}
			if err := tx.CreatePayment(ctx, payment); err != nil {
				return err
			}
		}
		return tx.UpdateOrderStatus(ctx, tx.Order().Status, models.PaymentStatusFailed)
	})
	if err != nil {
		return err
	}

	if publishErr := r.events.PublishPaymentFailed(ctx, &models.PaymentFailedEvent{
		OrderID:  order.ID,
		TenantID: order.TenantID,
		Reason:   event.FailureMessage,
	}); publishErr != nil {
		r.logger.Warn("failed to publish payment failed event",
			zap.Int64("order_id", order.ID), zap.Error(publishErr))
	}
	return nil
}
