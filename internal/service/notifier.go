package service

import (
	"context"

	"payment-service/internal/models"
	"payment-service/internal/util"

	"go.uber.org/zap"
)

// Notifier is the fire-and-forget notification boundary. Implementations
// must never let a delivery failure reach the caller; the payment state has
// already committed by the time Notify runs.
type Notifier interface {
	Notify(ctx context.Context, channel, template, recipient string, data map[string]string)
}

// NotificationPublisher publishes notification requests, typically onto the
// notifications topic.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, event *models.NotificationEvent) error
}

// KafkaNotifier hands notification requests to the broker for the
// notification worker to deliver.
type KafkaNotifier struct {
	publisher NotificationPublisher
	logger    *zap.Logger
}

func NewKafkaNotifier(publisher NotificationPublisher) *KafkaNotifier {
	return &KafkaNotifier{publisher: publisher, logger: util.GetLogger()}
}

func (n *KafkaNotifier) Notify(ctx context.Context, channel, template, recipient string, data map[string]string) {
	err := n.publisher.PublishNotification(ctx, &models.NotificationEvent{
		Channel:   channel,
		Template:  template,
		Recipient: recipient,
		Context:   data,
	})
	if err != nil {
		n.logger.Warn("notification dispatch failed",
			zap.String("channel", channel),
			zap.String("template", template),
			zap.Error(err))
		return
	}
	util.NotificationsDispatchedTotal.WithLabelValues(channel).Inc()
}
