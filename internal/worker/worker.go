package worker

import (
	"context"
	"encoding/json"

	"payment-service/internal/broker"
	"payment-service/internal/models"
	"payment-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Sender delivers one notification over a single channel. Implementations
// wrap the actual email or SMS provider.
type Sender interface {
	Send(ctx context.Context, event *models.NotificationEvent) error
}

// LogSender is the default sender: it records the notification and does
// nothing else. Real providers are plugged in per deployment.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, event *models.NotificationEvent) error {
	util.GetLogger().Info("notification delivered",
		zap.String("channel", event.Channel),
		zap.String("template", event.Template),
		zap.String("recipient", event.Recipient))
	return nil
}

// NotificationWorker consumes notification requests and hands them to the
// channel senders. Delivery failures are logged and the message is dropped;
// payment state never depends on delivery.
type NotificationWorker struct {
	consumer *broker.Consumer
	senders  map[string]Sender
	logger   *zap.Logger
}

// NewNotificationWorker creates a notification worker with senders keyed by
// channel name
func NewNotificationWorker(consumer *broker.Consumer, senders map[string]Sender) *NotificationWorker {
	if senders == nil {
		senders = map[string]Sender{
			"email": LogSender{},
			"sms":   LogSender{},
		}
	}
	return &NotificationWorker{
		consumer: consumer,
		senders:  senders,
		logger:   util.GetLogger(),
	}
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("starting notification worker")
	return w.consumer.StartConsuming(ctx, w.handleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("stopping notification worker")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleMessage(ctx context.Context, msg kafka.Message) error {
	var event models.NotificationEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		w.logger.Error("failed to unmarshal notification event", zap.Error(err))
		// Malformed messages are committed, not retried forever.
		return nil
	}

	if event.EventType != models.EventTypeNotificationRequested {
		return nil
	}

	sender, ok := w.senders[event.Channel]
	if !ok {
		w.logger.Warn("no sender for channel", zap.String("channel", event.Channel))
		return nil
	}

	if err := sender.Send(ctx, &event); err != nil {
		w.logger.Error("notification delivery failed",
			zap.String("channel", event.Channel),
			zap.String("recipient", event.Recipient),
			zap.Error(err))
	}
	return nil
}
