package simulation

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/WenyuChiou/WAGF-sub003/pkg/environment"
	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
)

// AgentView is what the snapshot builder exposes to templates and, without
// a template, hands to the adapter as the payload.
type AgentView struct {
	AgentID    string             `json:"agent_id"`
	AgentType  string             `json:"agent_type"`
	Step       int                `json:"step"`
	Attributes map[string]any     `json:"attributes,omitempty"`
	Shared     map[string]float64 `json:"shared,omitempty"`
}

// SnapshotBuilder builds the payload from the agent's current state.
type SnapshotBuilder struct {
	reader governance.StateReader
	tmpl   *template.Template
}

// NewSnapshotBuilder creates a builder. When prompt is non-empty it is
// parsed as a text/template executed against an AgentView, and the payload
// is the rendered string.
func NewSnapshotBuilder(reader governance.StateReader, prompt string) (*SnapshotBuilder, error) {
	b := &SnapshotBuilder{reader: reader}
	if strings.TrimSpace(prompt) != "" {
		t, err := template.New("prompt").Option("missingkey=zero").Parse(prompt)
		if err != nil {
			return nil, fmt.Errorf("parse prompt template: %w", err)
		}
		b.tmpl = t
	}
	return b, nil
}

// Build implements ContextBuilder.
func (b *SnapshotBuilder) Build(ctx context.Context, agent environment.Agent, step int) (any, error) {
	s, err := b.reader.Snapshot(ctx, agent.ID)
	if err != nil {
		return nil, err
	}
	view := AgentView{
		AgentID:    s.AgentID,
		AgentType:  s.AgentType,
		Step:       step,
		Attributes: s.Attrs,
		Shared:     s.Shared,
	}
	if b.tmpl == nil {
		return view, nil
	}

	var out strings.Builder
	if err := b.tmpl.Execute(&out, view); err != nil {
		return nil, fmt.Errorf("render prompt for %s: %w", agent.ID, err)
	}
	return out.String(), nil
}
