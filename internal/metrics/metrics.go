package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhooksReceived counts inbound webhook requests by terminal status
	WebhooksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_webhooks_received_total",
			Help: "Total number of inbound webhook requests",
		},
		[]string{"status"}, // ok, unauthorized, malformed
	)

	// EventsNormalized counts transfer events extracted from payloads
	EventsNormalized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_events_normalized_total",
			Help: "Total number of transfer events normalized from webhook payloads",
		},
	)

	// DuplicatesSkipped counts events suppressed by the idempotency guard
	DuplicatesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_duplicates_skipped_total",
			Help: "Total number of duplicate events skipped",
		},
	)

	// DedupErrors counts seen-store failures (the gateway fails open)
	DedupErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_dedup_errors_total",
			Help: "Total number of idempotency store errors",
		},
	)

	// SinkDeliveries counts delivery outcomes per sink
	SinkDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_sink_deliveries_total",
			Help: "Total number of sink delivery outcomes",
		},
		[]string{"sink", "outcome"}, // delivered, failed
	)

	// DeliveryDuration tracks end-to-end delivery time per sink including retries
	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_sink_delivery_duration_seconds",
			Help:    "Sink delivery duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"sink"},
	)
)
