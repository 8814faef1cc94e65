package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
)

// propose runs the propose-validate loop for one agent-step. It returns an
// error only when the run must abort: adapter unavailable or ctx done.
func (b *Broker) propose(ctx context.Context, dc *governance.DecisionContext, state *governance.AgentState) (*loopResult, error) {
	res := &loopResult{accepted: -1}
	var fb *governance.Feedback

	for i := 0; i < b.config.MaxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		attempt := governance.RetryAttempt{Index: i}
		start := time.Now()
		p, err := b.callAdapter(ctx, dc, fb)
		attempt.Duration = time.Since(start)

		if err == nil && p == nil {
			err = governance.NewParseError("empty proposal", "", nil)
		}
		if err != nil {
			switch {
			case errors.Is(err, governance.ErrAdapterUnavailable):
				return nil, err
			case ctx.Err() != nil:
				return nil, ctx.Err()
			case errors.Is(err, context.DeadlineExceeded):
				attempt.Event = governance.EventTimeout
			default:
				attempt.Event = governance.EventParseError
			}
			attempt.Error = err.Error()
			fb = b.next(&attempt, dc, err)
			b.finish(ctx, dc, &attempt)
			res.attempts = append(res.attempts, attempt)
			continue
		}

		attempt.Proposal = p.Clone()

		def, err := b.registry.Lookup(p.SkillID)
		if err != nil {
			attempt.Event = governance.EventUnknownSkill
			attempt.Error = err.Error()
			b.finish(ctx, dc, &attempt)
			res.attempts = append(res.attempts, attempt)
			res.unknown = err
			return res, nil
		}

		attempt.Event = governance.EventProposed
		attempt.Results = b.pipeline.Validate(p, state, def)
		attempt.Valid = governance.IsValid(attempt.Results)

		if attempt.Valid {
			b.finish(ctx, dc, &attempt)
			res.attempts = append(res.attempts, attempt)
			res.accepted = i
			res.command = &governance.AdmissibleCommand{
				SkillID:    def.ID,
				Parameters: attempt.Proposal.Clone().Parameters,
			}
			return res, nil
		}

		fb = b.next(&attempt, dc, nil)
		b.finish(ctx, dc, &attempt)
		res.attempts = append(res.attempts, attempt)
	}

	return res, nil
}

// errProposeTimeout marks an attempt cut off by the propose timeout.
var errProposeTimeout = fmt.Errorf("propose timeout: %w", context.DeadlineExceeded)

type proposeResult struct {
	p   *governance.SkillProposal
	err error
}

// callAdapter invokes the proposer under the propose timeout. The broker
// stops waiting at the deadline even if the proposer ignores ctx; a late
// result is discarded.
func (b *Broker) callAdapter(ctx context.Context, dc *governance.DecisionContext, fb *governance.Feedback) (*governance.SkillProposal, error) {
	if b.config.ProposeTimeout <= 0 {
		return b.proposer.Propose(ctx, dc, fb)
	}

	tctx, cancel := context.WithTimeout(ctx, b.config.ProposeTimeout)
	defer cancel()

	done := make(chan proposeResult, 1)
	go func() {
		p, err := b.proposer.Propose(tctx, dc, fb)
		done <- proposeResult{p: p, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
			return nil, errProposeTimeout
		}
		return r.p, r.err
	case <-tctx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, errProposeTimeout
	}
}

// next builds the feedback for the attempt after a. The text is recorded
// on a only when another attempt follows.
func (b *Broker) next(a *governance.RetryAttempt, dc *governance.DecisionContext, cause error) *governance.Feedback {
	fb := buildFeedback(a, dc.Options, b.config.ProposeTimeout.String(), cause)
	if fb != nil && a.Index < b.config.MaxRetries-1 {
		a.Feedback = fb.Text
	}
	return fb
}

// finish logs and reports a completed attempt.
func (b *Broker) finish(ctx context.Context, dc *governance.DecisionContext, a *governance.RetryAttempt) {
	attrs := []any{
		"agent_id", dc.AgentID,
		"step", dc.Step,
		"attempt", a.Index,
		"event", a.Event,
		"valid", a.Valid,
		"duration_ms", a.Duration.Milliseconds(),
	}
	if f, ok := governance.PrimaryFailure(a.Results); ok {
		attrs = append(attrs, "primary_failure", f.RuleID)
	}
	if a.Error != "" {
		attrs = append(attrs, "error", a.Error)
	}
	b.logger.DebugContext(ctx, "attempt complete", attrs...)

	if b.observer != nil {
		b.observer.ObserveAttempt(dc.AgentType, a)
	}
}

// describe is used in span events.
func describe(a *governance.RetryAttempt) string {
	if f, ok := governance.PrimaryFailure(a.Results); ok {
		return fmt.Sprintf("%s: %s", a.Event, f.RuleID)
	}
	return string(a.Event)
}
