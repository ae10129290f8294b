package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityStartedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracking_service",
		Subsystem: "activities",
		Name:      "last_activity_started_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity accepted for tracking.",
	})
	activityFinalizedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tracking_service",
		Subsystem: "activities",
		Name:      "last_activity_finalized_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity finalized with metrics.",
	})
	activityFinalizedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracking_service",
		Subsystem: "activities",
		Name:      "finalized_total",
		Help:      "Number of activities finalized, labeled by activity type.",
	}, []string{"activity_type"})
)

func init() {
	prometheus.MustRegister(activityStartedGauge, activityFinalizedGauge, activityFinalizedCounter)
}

// RecordActivityStarted updates the start watermark gauge.
func RecordActivityStarted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityStartedGauge.Set(float64(ts.Unix()))
}

// RecordActivityFinalized updates the finalization watermark and counter.
func RecordActivityFinalized(activityType string, ts time.Time) {
	activityFinalizedCounter.WithLabelValues(activityType).Inc()
	if ts.IsZero() {
		return
	}
	activityFinalizedGauge.Set(float64(ts.Unix()))
}
