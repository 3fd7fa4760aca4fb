package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_commands_total",
		Help: "Total number of payment commands received",
	}, []string{"command"})

	PaymentCommandFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_command_failures_total",
		Help: "Total number of rejected or failed payment commands",
	}, []string{"command", "reason"})

	PaymentsCapturedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_captured_total",
		Help: "Total number of payments reaching a paid state",
	})

	RefundsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refunds_completed_total",
		Help: "Total number of completed refunds",
	})

	StoreCreditsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "store_credits_issued_total",
		Help: "Total number of store credits issued",
	})

	PaymentLinksCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_links_created_total",
		Help: "Total number of payment links created",
	})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total number of gateway webhook events received",
	}, []string{"type", "result"})

	WebhookDuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_duplicates_total",
		Help: "Total number of duplicate webhook deliveries suppressed",
	})

	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Latency of outbound payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"gateway", "operation"})

	GatewayErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_errors_total",
		Help: "Total number of failed payment gateway calls",
	}, []string{"gateway", "operation"})

	NotificationsDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_dispatched_total",
		Help: "Total number of fire-and-forget notifications dispatched",
	}, []string{"channel"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
