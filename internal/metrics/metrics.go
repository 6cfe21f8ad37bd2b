package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chris-hendrix/tripful-sub006/internal/jobqueue"
	"github.com/chris-hendrix/tripful-sub006/internal/notify"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	JobsCompleted    *prometheus.CounterVec
	JobsFailed       *prometheus.CounterVec
	JobsDeadLettered *prometheus.CounterVec
	JobLatency       *prometheus.HistogramVec
	FanOutRecipients *prometheus.CounterVec
	FanOutDeliveries *prometheus.CounterVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_jobs_completed_total",
			Help: "Total number of jobs acknowledged successfully.",
		}, []string{"queue"}),

		JobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_jobs_failed_total",
			Help: "Total number of failed job attempts (including retried ones).",
		}, []string{"queue"}),

		JobsDeadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_jobs_dead_lettered_total",
			Help: "Total number of jobs routed to a dead-letter queue.",
		}, []string{"queue"}),

		JobLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "queue_job_processing_seconds",
			Help:    "Processing latency from lease to acknowledgement.",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue"}),

		FanOutRecipients: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_fanout_recipients_total",
			Help: "Total notification rows created by the batch worker.",
		}, []string{"type"}),

		FanOutDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_fanout_deliveries_total",
			Help: "Total delivery jobs enqueued by the batch worker.",
		}, []string{"type"}),
	}

	reg.MustRegister(
		m.JobsCompleted,
		m.JobsFailed,
		m.JobsDeadLettered,
		m.JobLatency,
		m.FanOutRecipients,
		m.FanOutDeliveries,
	)

	return m
}

// QueueHooks bridges the instruments to the queue client's callback struct,
// so jobqueue stays free of prometheus imports.
func (m *Metrics) QueueHooks() jobqueue.Hooks {
	return jobqueue.Hooks{
		OnCompleted: func(queue string, latency time.Duration) {
			m.JobsCompleted.WithLabelValues(queue).Inc()
			m.JobLatency.WithLabelValues(queue).Observe(latency.Seconds())
		},
		OnFailed: func(queue string) {
			m.JobsFailed.WithLabelValues(queue).Inc()
		},
		OnDeadLettered: func(queue string) {
			m.JobsDeadLettered.WithLabelValues(queue).Inc()
		},
	}
}

// FanOutHooks feeds the batch worker's counters.
func (m *Metrics) FanOutHooks() notify.Metrics {
	return notify.Metrics{
		OnFanOut: func(notifType string, notifications, deliveries int) {
			m.FanOutRecipients.WithLabelValues(notifType).Add(float64(notifications))
			m.FanOutDeliveries.WithLabelValues(notifType).Add(float64(deliveries))
		},
	}
}
