package governance

import "context"

// Proposer is the model-call adapter. It turns a decision context, and the
// feedback from a rejected attempt if any, into a structured proposal.
//
// Implementations return a *ParseError when the model answered but the
// answer cannot be structured, ErrAdapterUnavailable (wrapped or not) when
// no request can succeed, and the context error when ctx expires.
type Proposer interface {
	Propose(ctx context.Context, dc *DecisionContext, feedback *Feedback) (*SkillProposal, error)
}

// ProposerFunc adapts a function to the Proposer interface.
type ProposerFunc func(ctx context.Context, dc *DecisionContext, feedback *Feedback) (*SkillProposal, error)

// Propose calls f.
func (f ProposerFunc) Propose(ctx context.Context, dc *DecisionContext, feedback *Feedback) (*SkillProposal, error) {
	return f(ctx, dc, feedback)
}

// StateReader provides the snapshot validators evaluate against.
type StateReader interface {
	Snapshot(ctx context.Context, agentID string) (*AgentState, error)
}

// Executor applies admissible commands to simulation state. Apply must be
// atomic: on error the agent and shared state are left unchanged.
type Executor interface {
	Apply(ctx context.Context, agentID string, cmd *AdmissibleCommand) (*ExecutionResult, error)
}

// Environment is the simulation state the broker reads and mutates.
type Environment interface {
	StateReader
	Executor
}
