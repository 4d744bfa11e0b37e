package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of rejected order creations",
	}, []string{"reason"})

	OrderStatusChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_changes_total",
		Help: "Order status transitions applied by admins",
	}, []string{"status"})

	PaymentsConfirmedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_confirmed_total",
		Help: "Total number of orders marked paid",
	}, []string{"method"})

	PaymentsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_rejected_total",
		Help: "Total number of failed or rejected payments",
	}, []string{"method"})

	PaymentProofsUploadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_proofs_uploaded_total",
		Help: "Total number of bank-transfer proofs uploaded",
	})

	StockShortagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_shortages_total",
		Help: "Payment confirmations refused for insufficient stock",
	})

	PaymentConfirmLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_confirm_latency_seconds",
		Help:    "Latency of the stock-decrement-and-mark-paid transaction",
		Buckets: prometheus.DefBuckets,
	})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_events_total",
		Help: "Provider webhook deliveries by type and outcome",
	}, []string{"type", "outcome"})

	NotificationsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Realtime notifications emitted by event type",
	}, []string{"event"})

	RealtimeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connections",
		Help: "Currently connected websocket clients",
	})

	RateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limited_requests_total",
		Help: "Requests refused by the per-IP rate limiter",
	}, []string{"limiter"})

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
