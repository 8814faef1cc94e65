// Package environment holds what the simulation state backends share: the
// agent seed type and the planner that turns an admissible command into
// attribute and shared-resource deltas.
//
// Backends (memory, sqlitestate) compute a plan against a consistent view of
// state, then commit it in one step, so a rejected command leaves nothing
// behind.
package environment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
	"github.com/WenyuChiou/WAGF-sub003/pkg/skills"
)

// Agent seeds one simulated agent.
type Agent struct {
	ID    string         `yaml:"id" json:"id"`
	Type  string         `yaml:"type" json:"type"`
	Attrs map[string]any `yaml:"attributes" json:"attributes,omitempty"`
}

// Validate checks that a set of agents has unique, non-empty ids and types.
func Validate(agents []Agent) error {
	seen := make(map[string]bool, len(agents))
	for i, a := range agents {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("agent %d: id is required", i)
		}
		if strings.TrimSpace(a.Type) == "" {
			return fmt.Errorf("agent %s: type is required", a.ID)
		}
		if seen[a.ID] {
			return fmt.Errorf("agent %s: duplicate id", a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

// Plan is the set of changes one command makes.
type Plan struct {
	StateDelta  map[string]any
	SharedDelta map[string]float64
}

// PlanCommand computes the deltas of applying cmd for an agent with the given
// shared resources. Effects whose value is a string starting with "$" take the
// named command parameter. Costs are drawn from shared resources and must not
// overdraw them.
func PlanCommand(registry *skills.Registry, agentID string, cmd *governance.AdmissibleCommand, shared map[string]float64) (*Plan, error) {
	if cmd == nil {
		return nil, governance.NewExecutionError(agentID, "", "nil command", nil)
	}
	def, err := registry.Lookup(cmd.SkillID)
	if err != nil {
		return nil, governance.NewExecutionError(agentID, cmd.SkillID, "skill not executable", err)
	}

	plan := &Plan{}

	if len(def.Effects) > 0 {
		plan.StateDelta = make(map[string]any, len(def.Effects))
		for _, attr := range governance.SortedKeys(def.Effects) {
			v := def.Effects[attr]
			if ref, ok := v.(string); ok && strings.HasPrefix(ref, "$") {
				p, ok := cmd.Parameters[strings.TrimPrefix(ref, "$")]
				if !ok {
					return nil, governance.NewExecutionError(agentID, def.ID,
						fmt.Sprintf("effect %s needs parameter %s", attr, strings.TrimPrefix(ref, "$")), nil)
				}
				v = p
			}
			plan.StateDelta[attr] = v
		}
	}

	if len(def.Costs) > 0 {
		plan.SharedDelta = make(map[string]float64, len(def.Costs))
		names := make([]string, 0, len(def.Costs))
		for name := range def.Costs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			cost := def.Costs[name]
			if cost == 0 {
				continue
			}
			have, ok := shared[name]
			if !ok {
				return nil, governance.NewExecutionError(agentID, def.ID,
					fmt.Sprintf("shared resource %s does not exist", name), nil)
			}
			if have < cost {
				return nil, governance.NewExecutionError(agentID, def.ID,
					fmt.Sprintf("insufficient %s: need %g, have %g", name, cost, have), nil)
			}
			plan.SharedDelta[name] = -cost
		}
	}

	return plan, nil
}
