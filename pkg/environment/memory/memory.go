// Package memory provides an in-memory simulation environment.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/WenyuChiou/WAGF-sub003/pkg/environment"
	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
	"github.com/WenyuChiou/WAGF-sub003/pkg/skills"
)

type agentState struct {
	agentType string
	attrs     map[string]any
}

// Environment keeps agent attributes and shared resources in memory. Apply
// holds the write lock for the whole plan-and-commit, so commands are atomic
// and serialised.
type Environment struct {
	registry *skills.Registry
	logger   *slog.Logger

	mu     sync.RWMutex
	order  []string
	agents map[string]*agentState
	shared map[string]float64
	step   int
}

// New creates an environment seeded with agents and shared resources.
func New(registry *skills.Registry, agents []environment.Agent, shared map[string]float64) (*Environment, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if err := environment.Validate(agents); err != nil {
		return nil, err
	}

	e := &Environment{
		registry: registry,
		logger:   slog.Default().With("component", "environment.memory"),
		agents:   make(map[string]*agentState, len(agents)),
		shared:   make(map[string]float64, len(shared)),
	}
	for _, a := range agents {
		attrs := make(map[string]any, len(a.Attrs))
		for k, v := range a.Attrs {
			attrs[k] = v
		}
		e.agents[a.ID] = &agentState{agentType: a.Type, attrs: attrs}
		e.order = append(e.order, a.ID)
	}
	for k, v := range shared {
		e.shared[k] = v
	}
	return e, nil
}

// SetStep sets the step reported in snapshots.
func (e *Environment) SetStep(step int) {
	e.mu.Lock()
	e.step = step
	e.mu.Unlock()
}

// Isolated reports whether agents share no mutable resources, in which case
// commands for different agents commute.
func (e *Environment) Isolated() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.shared) == 0
}

// Agents returns the agents in seed order.
func (e *Environment) Agents(ctx context.Context) ([]environment.Agent, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]environment.Agent, 0, len(e.order))
	for _, id := range e.order {
		a := e.agents[id]
		out = append(out, environment.Agent{ID: id, Type: a.agentType, Attrs: copyAttrs(a.attrs)})
	}
	return out, nil
}

// Snapshot returns a copy of the agent's state and the shared resources.
func (e *Environment) Snapshot(ctx context.Context, agentID string) (*governance.AgentState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, ok := e.agents[agentID]
	if !ok {
		return nil, &governance.AgentNotFoundError{AgentID: agentID}
	}
	return &governance.AgentState{
		AgentID:   agentID,
		AgentType: a.agentType,
		Step:      e.step,
		Attrs:     copyAttrs(a.attrs),
		Shared:    copyShared(e.shared),
	}, nil
}

// Apply executes cmd for the agent. On error nothing changes.
func (e *Environment) Apply(ctx context.Context, agentID string, cmd *governance.AdmissibleCommand) (*governance.ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.agents[agentID]
	if !ok {
		skill := ""
		if cmd != nil {
			skill = cmd.SkillID
		}
		return nil, governance.NewExecutionError(agentID, skill, "agent not found", &governance.AgentNotFoundError{AgentID: agentID})
	}

	plan, err := environment.PlanCommand(e.registry, agentID, cmd, e.shared)
	if err != nil {
		return nil, err
	}

	for k, v := range plan.StateDelta {
		a.attrs[k] = v
	}
	for k, d := range plan.SharedDelta {
		e.shared[k] += d
	}

	e.logger.Debug("command applied",
		"agent_id", agentID,
		"skill", cmd.SkillID,
		"fallback", cmd.Fallback,
		"state_delta", len(plan.StateDelta),
	)

	return &governance.ExecutionResult{
		Success:     true,
		StateDelta:  plan.StateDelta,
		SharedDelta: plan.SharedDelta,
		AppliedAt:   time.Now().UTC(),
	}, nil
}

// Shared returns a copy of the shared resources.
func (e *Environment) Shared() map[string]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return copyShared(e.shared)
}

func copyAttrs(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyShared(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
