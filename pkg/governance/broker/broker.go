// Package broker implements the governed decision loop: it asks the model
// adapter for a skill proposal, validates it against the rule pipeline,
// retries with corrective feedback, resolves the outcome, executes the
// admissible command and records the trace.
//
// # Decision Flow
//
//  1. Snapshot the agent's state from the environment
//  2. Propose (with feedback from the previous attempt, if any)
//  3. Look the skill up in the registry; an unknown skill ends the loop
//  4. Validate; a valid proposal is accepted
//  5. Otherwise synthesize feedback and repeat, up to MaxRetries attempts
//  6. Resolve the outcome; non-accepted outcomes commit the fallback skill
//  7. Apply the command; a rejection downgrades to EXECUTION_FAILED
//  8. Record one trace record for the step
//
// Only ErrAdapterUnavailable and context cancellation abort a decision.
// Unknown skills and execution failures are reported on the Decision and
// in the trace; the caller moves on to the next agent.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
	"github.com/WenyuChiou/WAGF-sub003/pkg/governance/rules"
	"github.com/WenyuChiou/WAGF-sub003/pkg/skills"
	"github.com/WenyuChiou/WAGF-sub003/pkg/telemetry/tracing"
	"github.com/WenyuChiou/WAGF-sub003/pkg/trace"
)

var tracer = otel.Tracer("wagf/governance/broker")

// Recorder receives the trace record of every decision.
type Recorder interface {
	Record(ctx context.Context, record *trace.Record) error
}

// Observer is notified of attempts and decisions, e.g. to export metrics.
type Observer interface {
	ObserveAttempt(agentType string, attempt *governance.RetryAttempt)
	ObserveDecision(record *trace.Record)
}

// Decision is the result of governing one agent-step.
type Decision struct {
	Outcome   governance.Outcome
	Command   *governance.AdmissibleCommand
	Execution *governance.ExecutionResult

	// Record is the trace record that was handed to the recorder.
	Record *trace.Record

	// Err is the unknown-skill or execution error surfaced for this step,
	// if any. It never aborts the run.
	Err error
}

// Broker governs agent decisions. It holds no per-step state and is safe
// for concurrent use when its proposer and environment are.
type Broker struct {
	config   *Config
	registry *skills.Registry
	pipeline *rules.Pipeline
	proposer governance.Proposer
	env      governance.Environment
	recorder Recorder
	observer Observer
	limiter  *rate.Limiter
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures optional broker collaborators.
type Option func(*Broker)

// WithRecorder sets the trace recorder.
func WithRecorder(r Recorder) Option {
	return func(b *Broker) { b.recorder = r }
}

// WithObserver sets the attempt and decision observer.
func WithObserver(o Observer) Option {
	return func(b *Broker) { b.observer = o }
}

// WithClock overrides the clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) { b.now = now }
}

// New creates a broker. The configuration is validated against the
// registry.
func New(config *Config, registry *skills.Registry, pipeline *rules.Pipeline, proposer governance.Proposer, env governance.Environment, opts ...Option) (*Broker, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if registry == nil || pipeline == nil || proposer == nil || env == nil {
		return nil, fmt.Errorf("broker requires a registry, pipeline, proposer and environment")
	}
	if err := config.Validate(registry); err != nil {
		return nil, fmt.Errorf("invalid broker config: %w", err)
	}

	b := &Broker{
		config:   config,
		registry: registry,
		pipeline: pipeline,
		proposer: proposer,
		env:      env,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   slog.Default().With("component", "governance.broker"),
	}
	if config.RateLimit > 0 {
		b.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), config.Burst)
	}
	for _, opt := range opts {
		opt(b)
	}

	b.logger.Info("broker initialized",
		"max_retries", config.MaxRetries,
		"propose_timeout", config.ProposeTimeout,
		"rate_limit", config.RateLimit,
		"rules", len(pipeline.Rules()),
		"skills", registry.Len(),
	)
	return b, nil
}

// Decide governs one agent-step. The returned error is non-nil only when
// the run must abort.
func (b *Broker) Decide(ctx context.Context, dc *governance.DecisionContext) (*Decision, error) {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "governance.Decide",
		tracing.DecisionAttributes(dc.RunID, dc.AgentID, dc.AgentType, dc.Step))
	defer span.End()

	state, err := b.env.Snapshot(ctx, dc.AgentID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot failed")
		return nil, fmt.Errorf("snapshot %s: %w", dc.AgentID, err)
	}
	// The caller's context is left untouched.
	local := *dc
	dc = &local
	if dc.AgentType == "" {
		dc.AgentType = state.AgentType
	}
	if len(dc.Options) == 0 {
		dc.Options = b.registry.Options(dc.AgentType)
	}

	res, err := b.propose(ctx, dc, state)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decision aborted")
		b.logger.ErrorContext(ctx, "decision aborted",
			"agent_id", dc.AgentID,
			"step", dc.Step,
			"error", err,
		)
		return nil, err
	}
	for i := range res.attempts {
		tracing.AddAttempt(span, i, describe(&res.attempts[i]))
	}

	outcome := resolveOutcome(res)
	cmd := commandFor(outcome, res, b.config.fallbackFor(b.registry, dc.AgentType))

	d := &Decision{Outcome: outcome, Command: cmd, Err: res.unknown}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	exec, err := b.env.Apply(ctx, dc.AgentID, cmd)
	if err != nil {
		d.Outcome = governance.OutcomeExecutionFailed
		d.Err = err
	} else {
		d.Execution = exec
	}

	d.Record = b.buildRecord(dc, res, d, time.Since(start))
	b.logDecision(ctx, d)

	tracing.SetOutcome(span, string(d.Outcome), len(res.attempts), cmd.SkillID)
	if d.Err != nil {
		span.RecordError(d.Err)
	}

	if b.observer != nil {
		b.observer.ObserveDecision(d.Record)
	}
	if b.recorder != nil {
		if err := b.recorder.Record(ctx, d.Record); err != nil {
			b.logger.ErrorContext(ctx, "failed to record trace",
				"record_id", d.Record.ID,
				"agent_id", dc.AgentID,
				"step", dc.Step,
				"error", err,
			)
		}
	}
	return d, nil
}

func (b *Broker) buildRecord(dc *governance.DecisionContext, res *loopResult, d *Decision, elapsed time.Duration) *trace.Record {
	rec := &trace.Record{
		ID:             uuid.New().String(),
		RunID:          dc.RunID,
		Step:           dc.Step,
		AgentID:        dc.AgentID,
		AgentType:      dc.AgentType,
		Attempts:       res.attempts,
		Outcome:        d.Outcome,
		Command:        d.Command.Clone(),
		Execution:      d.Execution.Clone(),
		RuleSetVersion: b.config.RuleSetVersion,
		RecordedAt:     b.now(),
		Duration:       elapsed,
	}
	if d.Err != nil {
		rec.Error = d.Err.Error()
		if d.Outcome == governance.OutcomeExecutionFailed {
			rec.ErrorKind = trace.ErrorKindExecution
		} else {
			rec.ErrorKind = trace.ErrorKindUnknownSkill
		}
	}
	return rec
}

func (b *Broker) logDecision(ctx context.Context, d *Decision) {
	r := d.Record
	attrs := []any{
		"agent_id", r.AgentID,
		"step", r.Step,
		"outcome", r.Outcome,
		"skill", r.Command.SkillID,
		"attempts", len(r.Attempts),
	}
	switch {
	case d.Outcome == governance.OutcomeExecutionFailed:
		b.logger.ErrorContext(ctx, "execution failed", append(attrs, "error", d.Err)...)
	case d.Outcome.UsesFallback():
		if d.Err != nil {
			attrs = append(attrs, "error", d.Err)
		}
		b.logger.WarnContext(ctx, "fallback applied", attrs...)
	default:
		b.logger.DebugContext(ctx, "decision", attrs...)
	}
}
