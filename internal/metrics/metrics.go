package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_requests_total",
			Help: "Total number of notification requests processed.",
		},
		[]string{"event_type"},
	)

	RecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_records_total",
			Help: "Total number of delivery records created by channel and status.",
		},
		[]string{"channel", "status"},
	)

	RetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_retries_total",
			Help: "Total number of record retries by outcome.",
		},
		[]string{"outcome"}, // sent, error, malformed_snapshot, invalid_state, not_found
	)

	ResolvedRecipientsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notify_resolved_recipients_total",
			Help: "Total number of recipients produced by each resolution strategy.",
		},
		[]string{"strategy"},
	)

	SendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notify_send_duration_seconds",
			Help:    "Channel send latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"channel"},
	)

	QueueBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notify_queue_backlog",
			Help: "Current depth of the notifications queue channel.",
		},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(RequestsTotal, RecordsTotal, RetriesTotal, ResolvedRecipientsTotal, SendDuration, QueueBacklog)
}

// RecordRequest increments the processed-request counter.
func RecordRequest(eventType string) {
	RequestsTotal.WithLabelValues(eventType).Inc()
}

// RecordDelivery counts one delivery record outcome and its send latency.
func RecordDelivery(channel, status string, latency time.Duration) {
	RecordsTotal.WithLabelValues(channel, status).Inc()
	if latency > 0 {
		SendDuration.WithLabelValues(channel).Observe(latency.Seconds())
	}
}

// RecordRetry counts one retry attempt outcome.
func RecordRetry(outcome string) {
	RetriesTotal.WithLabelValues(outcome).Inc()
}

// RecordResolved counts recipients produced by a strategy.
func RecordResolved(strategy string, n int) {
	ResolvedRecipientsTotal.WithLabelValues(strategy).Add(float64(n))
}

// UpdateQueueBacklog sets the current queue depth gauge.
func UpdateQueueBacklog(depth float64) {
	QueueBacklog.Set(depth)
}
