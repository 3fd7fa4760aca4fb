package broker

import (
	"context"
	"fmt"
	"time"

	"payment-service/internal/models"

	"github.com/google/uuid"
)

// EventPublisher handles publishing payment domain events. Events are keyed
// by order so consumers see a single order's events in commit order.
type EventPublisher struct {
	payments      *Producer
	notifications *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(payments, notifications *Producer) *EventPublisher {
	return &EventPublisher{payments: payments, notifications: notifications}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// PublishPaymentCaptured publishes a PaymentCaptured event
func (ep *EventPublisher) PublishPaymentCaptured(ctx context.Context, event *models.PaymentCapturedEvent) error {
	event.BaseEvent = newBaseEvent(models.EventTypePaymentCaptured)
	return ep.payments.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishPaymentFailed publishes a PaymentFailed event
func (ep *EventPublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	event.BaseEvent = newBaseEvent(models.EventTypePaymentFailed)
	return ep.payments.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishRefundCompleted publishes a RefundCompleted event
func (ep *EventPublisher) PublishRefundCompleted(ctx context.Context, event *models.RefundCompletedEvent) error {
	event.BaseEvent = newBaseEvent(models.EventTypeRefundCompleted)
	return ep.payments.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishPaymentLinkCreated publishes a PaymentLinkCreated event
func (ep *EventPublisher) PublishPaymentLinkCreated(ctx context.Context, event *models.PaymentLinkCreatedEvent) error {
	event.BaseEvent = newBaseEvent(models.EventTypePaymentLinkCreated)
	return ep.payments.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishNotification publishes a notification request on the notifications
// topic, keyed by recipient
func (ep *EventPublisher) PublishNotification(ctx context.Context, event *models.NotificationEvent) error {
	event.BaseEvent = newBaseEvent(models.EventTypeNotificationRequested)
	return ep.notifications.PublishEvent(ctx, event.Recipient, event)
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}
