package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DecisionMetrics tracks governed agent-steps.
//
// Metrics:
//   - wagf_broker_decisions_total: decisions by agent type and outcome
//   - wagf_broker_decision_attempts: attempts used per decision
//   - wagf_broker_decision_duration_seconds: end-to-end decision latency
//   - wagf_broker_commands_total: committed skills, split by fallback
//   - wagf_broker_execution_failures_total: rejected commands by agent type
type DecisionMetrics struct {
	decisionsTotal    *prometheus.CounterVec
	attempts          *prometheus.HistogramVec
	decisionDuration  prometheus.Histogram
	commandsTotal     *prometheus.CounterVec
	executionFailures *prometheus.CounterVec
}

// NewDecisionMetrics creates and registers decision metrics with the provided registry.
func NewDecisionMetrics(cfg Config, registry *prometheus.Registry) *DecisionMetrics {
	dm := &DecisionMetrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decisions_total",
				Help:      "Total number of governed decisions by outcome",
			},
			[]string{"agent_type", "outcome"},
		),

		attempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decision_attempts",
				Help:      "Number of propose attempts per decision",
				Buckets:   prometheus.LinearBuckets(1, 1, 10),
			},
			[]string{"outcome"},
		),

		decisionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "decision_duration_seconds",
				Help:      "Duration of governed decisions in seconds",
				Buckets:   cfg.DurationBuckets,
			},
		),

		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "commands_total",
				Help:      "Total number of committed commands by skill",
			},
			[]string{"skill", "fallback"},
		),

		executionFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "execution_failures_total",
				Help:      "Total number of commands the environment rejected",
			},
			[]string{"agent_type"},
		),
	}

	registry.MustRegister(
		dm.decisionsTotal,
		dm.attempts,
		dm.decisionDuration,
		dm.commandsTotal,
		dm.executionFailures,
	)

	return dm
}

// RecordDecision records a finished decision.
func (dm *DecisionMetrics) RecordDecision(agentType, outcome string, attempts int, duration time.Duration) {
	dm.decisionsTotal.WithLabelValues(agentType, outcome).Inc()
	dm.attempts.WithLabelValues(outcome).Observe(float64(attempts))
	dm.decisionDuration.Observe(duration.Seconds())
}

// RecordCommand records the committed skill.
func (dm *DecisionMetrics) RecordCommand(skill string, fallback bool) {
	if skill == "" {
		return
	}
	dm.commandsTotal.WithLabelValues(skill, strconv.FormatBool(fallback)).Inc()
}

// RecordExecutionFailure records a command the environment rejected.
func (dm *DecisionMetrics) RecordExecutionFailure(agentType string) {
	dm.executionFailures.WithLabelValues(agentType).Inc()
}
