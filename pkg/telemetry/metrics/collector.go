package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
	"github.com/WenyuChiou/WAGF-sub003/pkg/trace"
)

// Config contains metric naming and bucket settings.
type Config struct {
	// Namespace prefixes every metric name.
	// Default: "wagf"
	Namespace string

	// Subsystem follows the namespace.
	// Default: "broker"
	Subsystem string

	// DurationBuckets are used for propose and decision latency histograms.
	// Default: 10ms to 60s
	DurationBuckets []float64
}

// Collector exports governance metrics to Prometheus. It implements the
// broker's Observer interface and is safe for concurrent use.
//
// All label values come from configuration (skill ids, rule ids, agent
// types) or closed enumerations (outcomes, attempt events), so cardinality
// is bounded by the loaded rule set.
type Collector struct {
	config   Config
	registry *prometheus.Registry

	decisionMetrics *DecisionMetrics
	attemptMetrics  *AttemptMetrics
	ruleMetrics     *RuleMetrics
}

// NewCollector creates a collector registered on registry. If registry is
// nil a fresh registry is created, never the global default.
//
// Example:
//
//	collector := metrics.NewCollector(metrics.Config{}, nil)
//	b, _ := broker.New(cfg, reg, pipeline, proposer, env, broker.WithObserver(collector))
func NewCollector(cfg Config, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "wagf"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "broker"
	}
	if len(cfg.DurationBuckets) == 0 {
		// Scripted adapters answer in microseconds, hosted models in seconds.
		cfg.DurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	}

	return &Collector{
		config:          cfg,
		registry:        registry,
		decisionMetrics: NewDecisionMetrics(cfg, registry),
		attemptMetrics:  NewAttemptMetrics(cfg, registry),
		ruleMetrics:     NewRuleMetrics(cfg, registry),
	}
}

// ObserveAttempt records one propose-validate pass.
func (c *Collector) ObserveAttempt(agentType string, attempt *governance.RetryAttempt) {
	if attempt == nil {
		return
	}
	c.attemptMetrics.RecordAttempt(string(attempt.Event), attempt.Duration)
	for _, r := range attempt.Results {
		switch {
		case r.Skipped:
			c.ruleMetrics.RecordSkip(r.RuleID)
		case !r.Passed:
			c.ruleMetrics.RecordFailure(r.RuleID, string(r.Severity))
		}
	}
}

// ObserveDecision records a finished agent-step.
func (c *Collector) ObserveDecision(record *trace.Record) {
	if record == nil {
		return
	}
	skill := ""
	fallback := false
	if record.Command != nil {
		skill = record.Command.SkillID
		fallback = record.Command.Fallback
	}
	c.decisionMetrics.RecordDecision(record.AgentType, string(record.Outcome), len(record.Attempts), record.Duration)
	c.decisionMetrics.RecordCommand(skill, fallback)
	if record.Outcome == governance.OutcomeExecutionFailed {
		c.decisionMetrics.RecordExecutionFailure(record.AgentType)
	}
}

// Registry returns the registry the collector's metrics live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
