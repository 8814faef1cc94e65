// Package simulation drives governed decisions across agents and steps.
//
// Agents are processed in agent-list order, and each agent's command is
// committed before the next agent is validated. When the environment
// reports that agents share no mutable state, a bounded worker pool may
// decide several agents of the same step at once; results are still
// reported in agent-list order.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/WenyuChiou/WAGF-sub003/pkg/environment"
	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
	"github.com/WenyuChiou/WAGF-sub003/pkg/governance/broker"
	"github.com/WenyuChiou/WAGF-sub003/pkg/telemetry/logging"
	"github.com/WenyuChiou/WAGF-sub003/pkg/trace"
)

// Environment is the state a run advances.
type Environment interface {
	governance.Environment

	// Agents lists the agents in decision order.
	Agents(ctx context.Context) ([]environment.Agent, error)

	// Isolated reports whether agents share no mutable resources.
	Isolated() bool

	// SetStep sets the step reported in snapshots.
	SetStep(step int)
}

// Decider governs one agent-step. *broker.Broker implements it.
type Decider interface {
	Decide(ctx context.Context, dc *governance.DecisionContext) (*broker.Decision, error)
}

// ContextBuilder assembles the opaque payload handed to the model adapter.
type ContextBuilder interface {
	Build(ctx context.Context, agent environment.Agent, step int) (any, error)
}

// ContextBuilderFunc adapts a function to ContextBuilder.
type ContextBuilderFunc func(ctx context.Context, agent environment.Agent, step int) (any, error)

// Build calls f.
func (f ContextBuilderFunc) Build(ctx context.Context, agent environment.Agent, step int) (any, error) {
	return f(ctx, agent, step)
}

// StepFunc is called after every completed step with that step's decisions
// in agent order.
type StepFunc func(step int, decisions []*broker.Decision)

// Config controls a run.
type Config struct {
	// RunID identifies the run in trace records. Generated when empty.
	RunID string

	// Steps is the number of simulation steps.
	// Default: 1
	Steps int

	// Workers bounds concurrent decisions within a step. Values above 1
	// only take effect when the environment is isolated.
	// Default: 1
	Workers int
}

// DefaultConfig returns a single-step sequential run.
func DefaultConfig() *Config {
	return &Config{Steps: 1, Workers: 1}
}

// RunSummary describes a finished or interrupted run.
type RunSummary struct {
	RunID string `json:"run_id"`

	// Steps is the number of fully completed steps.
	Steps int `json:"steps"`

	Decisions int `json:"decisions"`

	// Errors counts decisions that surfaced an unknown-skill or execution
	// error. They do not stop the run.
	Errors int `json:"errors"`

	Parallel  bool           `json:"parallel"`
	Cancelled bool           `json:"cancelled"`
	Duration  time.Duration  `json:"duration"`
	Outcomes  *trace.Summary `json:"outcomes"`
}

// Runner runs one simulation. A runner owns its environment and is not
// reusable across runs.
type Runner struct {
	config  *Config
	decider Decider
	env     Environment
	builder ContextBuilder
	onStep  StepFunc
	logger  *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithContextBuilder sets the payload builder. Without one, the payload is
// nil.
func WithContextBuilder(b ContextBuilder) Option {
	return func(r *Runner) { r.builder = b }
}

// WithStepFunc sets a callback invoked after each step.
func WithStepFunc(fn StepFunc) Option {
	return func(r *Runner) { r.onStep = fn }
}

// NewRunner creates a runner.
func NewRunner(cfg *Config, decider Decider, env Environment, opts ...Option) (*Runner, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if decider == nil || env == nil {
		return nil, errors.New("runner requires a decider and an environment")
	}
	if cfg.Steps < 1 {
		return nil, fmt.Errorf("steps must be at least 1, got %d", cfg.Steps)
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("workers must be at least 1, got %d", cfg.Workers)
	}

	c := *cfg
	if c.RunID == "" {
		c.RunID = uuid.New().String()
	}

	r := &Runner{
		config:  &c,
		decider: decider,
		env:     env,
		logger:  slog.Default().With("component", "simulation"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RunID returns the run's id.
func (r *Runner) RunID() string {
	return r.config.RunID
}

// Run executes every step. It stops early on cancellation or when a
// decision aborts; the summary then covers the completed decisions and the
// error is returned alongside it.
func (r *Runner) Run(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	parallel := r.config.Workers > 1 && r.env.Isolated()
	ctx = logging.WithRunID(ctx, r.config.RunID)

	sum := &RunSummary{
		RunID:    r.config.RunID,
		Parallel: parallel,
		Outcomes: trace.NewSummary(),
	}

	r.logger.Info("run started",
		"run_id", r.config.RunID,
		"steps", r.config.Steps,
		"workers", r.config.Workers,
		"parallel", parallel,
	)

	var runErr error
	for step := 0; step < r.config.Steps; step++ {
		decisions, err := r.runStep(ctx, step, parallel)
		for _, d := range decisions {
			if d == nil {
				continue
			}
			sum.Decisions++
			sum.Outcomes.Add(d.Record)
			if d.Err != nil {
				sum.Errors++
			}
		}
		if err != nil {
			runErr = err
			break
		}
		sum.Steps++
		if r.onStep != nil {
			r.onStep(step, decisions)
		}
	}

	sum.Duration = time.Since(start)
	if runErr != nil && ctx.Err() != nil {
		sum.Cancelled = true
	}

	attrs := []any{
		"run_id", sum.RunID,
		"steps", sum.Steps,
		"decisions", sum.Decisions,
		"errors", sum.Errors,
		"duration_ms", sum.Duration.Milliseconds(),
	}
	switch {
	case sum.Cancelled:
		r.logger.Warn("run cancelled", attrs...)
	case runErr != nil:
		r.logger.Error("run aborted", append(attrs, "error", runErr)...)
	default:
		r.logger.Info("run complete", attrs...)
	}
	return sum, runErr
}

// runStep decides every agent for one step. The returned slice is indexed
// by agent position; entries for agents that were not decided are nil.
func (r *Runner) runStep(ctx context.Context, step int, parallel bool) ([]*broker.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.env.SetStep(step)

	agents, err := r.env.Agents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	decisions := make([]*broker.Decision, len(agents))

	if !parallel {
		for i, a := range agents {
			d, err := r.decide(ctx, a, step)
			if err != nil {
				return decisions, err
			}
			decisions[i] = d
		}
		return decisions, nil
	}

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Workers)
	for i, a := range agents {
		i, a := i, a
		g.Go(func() error {
			d, err := r.decide(gCtx, a, step)
			if err != nil {
				return err
			}
			mu.Lock()
			decisions[i] = d
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	if err != nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return decisions, err
}

func (r *Runner) decide(ctx context.Context, a environment.Agent, step int) (*broker.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dc := &governance.DecisionContext{
		RunID:     r.config.RunID,
		AgentID:   a.ID,
		AgentType: a.Type,
		Step:      step,
	}
	if r.builder != nil {
		payload, err := r.builder.Build(ctx, a, step)
		if err != nil {
			return nil, fmt.Errorf("build context for %s at step %d: %w", a.ID, step, err)
		}
		dc.Payload = payload
	}

	d, err := r.decider.Decide(ctx, dc)
	if err != nil {
		return nil, fmt.Errorf("agent %s step %d: %w", a.ID, step, err)
	}
	return d, nil
}
