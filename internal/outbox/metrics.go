package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tracking_service",
		Subsystem: "outbox",
		Name:      "delivered_total",
		Help:      "Number of outbox events delivered to Kafka.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tracking_service",
		Subsystem: "outbox",
		Name:      "delivery_failures_total",
		Help:      "Number of outbox events that failed delivery and were diverted to the DLQ.",
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracking_service",
		Subsystem: "outbox",
		Name:      "dlq_total",
		Help:      "Number of events written to the dead letter queue, by topic.",
	}, []string{"topic"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tracking_service",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent processing one outbox batch.",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, dlqCounter, batchDuration)
}
