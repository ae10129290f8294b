package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	dlqRedeliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracking_service",
		Subsystem: "dlq",
		Name:      "redelivered_total",
		Help:      "DLQ entries successfully redelivered to Kafka, by topic.",
	}, []string{"topic"})

	dlqRetryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracking_service",
		Subsystem: "dlq",
		Name:      "retries_total",
		Help:      "DLQ redelivery attempts that failed and were rescheduled, by topic.",
	}, []string{"topic"})

	dlqQuarantinedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracking_service",
		Subsystem: "dlq",
		Name:      "quarantined_total",
		Help:      "DLQ entries quarantined after exhausting retries, by topic.",
	}, []string{"topic"})

	dlqBacklogGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tracking_service",
		Subsystem: "dlq",
		Name:      "backlog",
		Help:      "Current non-quarantined DLQ entries awaiting retry, by topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(dlqRedeliveredCounter, dlqRetryCounter, dlqQuarantinedCounter, dlqBacklogGauge)
}

func recordDLQRedelivered(topic string) {
	dlqRedeliveredCounter.WithLabelValues(topic).Inc()
}

func recordDLQRetry(topic string) {
	dlqRetryCounter.WithLabelValues(topic).Inc()
}

func recordDLQQuarantined(topic string) {
	dlqQuarantinedCounter.WithLabelValues(topic).Inc()
}

func setDLQBacklog(counts map[string]int64) {
	dlqBacklogGauge.Reset()
	for topic, count := range counts {
		dlqBacklogGauge.WithLabelValues(topic).Set(float64(count))
	}
}
