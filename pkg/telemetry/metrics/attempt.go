package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AttemptMetrics tracks model adapter calls.
//
// Metrics:
//   - wagf_broker_attempts_total: attempts by event (proposed, parse_error,
//     timeout, unknown_skill)
//   - wagf_broker_propose_duration_seconds: adapter call latency by event
type AttemptMetrics struct {
	attemptsTotal   *prometheus.CounterVec
	proposeDuration *prometheus.HistogramVec
}

// NewAttemptMetrics creates and registers attempt metrics with the provided registry.
func NewAttemptMetrics(cfg Config, registry *prometheus.Registry) *AttemptMetrics {
	am := &AttemptMetrics{
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "attempts_total",
				Help:      "Total number of propose attempts by event",
			},
			[]string{"event"},
		),

		proposeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "propose_duration_seconds",
				Help:      "Duration of model adapter calls in seconds",
				Buckets:   cfg.DurationBuckets,
			},
			[]string{"event"},
		),
	}

	registry.MustRegister(am.attemptsTotal, am.proposeDuration)
	return am
}

// RecordAttempt records one adapter call and how it ended.
func (am *AttemptMetrics) RecordAttempt(event string, duration time.Duration) {
	am.attemptsTotal.WithLabelValues(event).Inc()
	am.proposeDuration.WithLabelValues(event).Observe(duration.Seconds())
}
