package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	BatchesSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bulkmail_batches_submitted_total",
			Help: "Total number of batches accepted for dispatch.",
		},
	)

	TasksEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bulkmail_tasks_enqueued_total",
			Help: "Total number of delivery tasks enqueued.",
		},
	)

	SendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkmail_sends_total",
			Help: "Total number of completed delivery tasks by terminal status.",
		},
		[]string{"status"},
	)

	SendRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkmail_send_retries_total",
			Help: "Total number of send retries by reason.",
		},
		[]string{"reason"}, // e.g. timeout, connection_refused, provider_reject
	)

	DLQTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkmail_dlq_total",
			Help: "Total number of messages routed to the dead-letter topic by reason.",
		},
		[]string{"reason"},
	)

	ResultConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bulkmail_result_conflicts_total",
			Help: "Total number of refused conflicting terminal result writes. Always a bug.",
		},
	)

	SendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bulkmail_send_duration_seconds",
			Help:    "Wall time of one delivery task, retries included.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)

	QueueBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bulkmail_queue_backlog",
			Help: "Depth of the delivery topic's worker channel.",
		},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		BatchesSubmittedTotal,
		TasksEnqueuedTotal,
		SendsTotal,
		SendRetriesTotal,
		DLQTotal,
		ResultConflictsTotal,
		SendDuration,
		QueueBacklog,
	)
}

// RecordBatchSubmitted counts an accepted batch and its fanout.
func RecordBatchSubmitted(tasks int) {
	BatchesSubmittedTotal.Inc()
	TasksEnqueuedTotal.Add(float64(tasks))
}

// RecordSend counts one finished delivery task.
func RecordSend(status string, elapsed time.Duration) {
	SendsTotal.WithLabelValues(status).Inc()
	SendDuration.Observe(elapsed.Seconds())
}

// RecordRetry counts one retried send attempt.
func RecordRetry(reason string) {
	SendRetriesTotal.WithLabelValues(reason).Inc()
}

// RecordDLQ counts one message routed to the dead-letter topic.
func RecordDLQ(reason string) {
	DLQTotal.WithLabelValues(reason).Inc()
}

// RecordConflict counts one refused conflicting terminal write.
func RecordConflict() {
	ResultConflictsTotal.Inc()
}

// UpdateBacklog sets the observed worker channel depth.
func UpdateBacklog(depth float64) {
	QueueBacklog.Set(depth)
}
