package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RuleMetrics tracks validation rule results.
//
// Metrics:
//   - wagf_broker_rule_failures_total: failed rules by rule id and severity
//   - wagf_broker_rule_skips_total: rules skipped after a required-fields failure
type RuleMetrics struct {
	failuresTotal *prometheus.CounterVec
	skipsTotal    *prometheus.CounterVec
}

// NewRuleMetrics creates and registers rule metrics with the provided registry.
func NewRuleMetrics(cfg Config, registry *prometheus.Registry) *RuleMetrics {
	rm := &RuleMetrics{
		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rule_failures_total",
				Help:      "Total number of failed validation rules",
			},
			[]string{"rule_id", "severity"},
		),

		skipsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "rule_skips_total",
				Help:      "Total number of validation rules skipped",
			},
			[]string{"rule_id"},
		),
	}

	registry.MustRegister(rm.failuresTotal, rm.skipsTotal)
	return rm
}

// RecordFailure records a rule that ran and did not pass.
//
// Example:
//
//	rm.RecordFailure("elevation_threat", "blocking")
func (rm *RuleMetrics) RecordFailure(ruleID, severity string) {
	rm.failuresTotal.WithLabelValues(ruleID, severity).Inc()
}

// RecordSkip records a rule that did not run.
func (rm *RuleMetrics) RecordSkip(ruleID string) {
	rm.skipsTotal.WithLabelValues(ruleID).Inc()
}
