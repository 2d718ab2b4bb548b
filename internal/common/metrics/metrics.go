// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of notifications accepted by a provider",
		},
		[]string{"channel", "provider"},
	)

	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_failed_total",
			Help: "Total number of notification send attempts that failed",
		},
		[]string{"channel", "provider", "error_code"},
	)

	SendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_send_duration_seconds",
			Help:    "Duration of a single provider send in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel", "provider"},
	)

	BulkBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_bulk_batches_total",
			Help: "Total number of bulk batches dispatched",
		},
		[]string{"channel"},
	)

	EventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_consumed_total",
			Help: "Total number of broker events consumed by outcome",
		},
		[]string{"topic", "outcome"},
	)

	ConsumerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "event_consumer_state",
			Help: "1 for the consumer's current lifecycle state, 0 otherwise",
		},
		[]string{"state"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Total number of events published by topic and outcome",
		},
		[]string{"topic", "outcome"},
	)
)
