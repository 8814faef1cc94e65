// Package skills provides the static catalogue of admissible actions
// ("skills"), their required reasoning fields, parameter schemas and
// per-agent-type eligibility.
//
// A Registry is built once at process start and is read-only afterwards, so
// it is safe for unrestricted concurrent use.
package skills

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
)

// Definition describes one skill. Definitions are shared by every agent and
// step and must not be modified after the registry is built.
type Definition struct {
	// ID is the canonical skill identifier.
	ID string

	// Description is shown to the model when options are rendered.
	Description string

	// RequiredFields lists the reasoning constructs a proposal for this skill
	// must carry, in the order they are checked.
	RequiredFields []string

	// EligibleAgentTypes restricts the skill to these agent types. Empty
	// means every agent type may use it.
	EligibleAgentTypes []string

	// Aliases are alternative names a model may use for the skill.
	Aliases []string

	// ParameterSchema is an optional JSON Schema for proposal parameters.
	ParameterSchema map[string]any

	// Effects are agent attributes set when the skill executes.
	Effects map[string]any

	// Costs are amounts drawn from shared resources when the skill executes.
	Costs map[string]float64

	schema *jsonschema.Schema
}

// HasSchema reports whether the skill declares a parameter schema.
func (d *Definition) HasSchema() bool {
	return d.schema != nil
}

// ValidateParameters checks params against the skill's parameter schema. A
// skill without a schema accepts anything.
func (d *Definition) ValidateParameters(params map[string]any) error {
	if d.schema == nil {
		return nil
	}
	var v any = params
	if params == nil {
		v = map[string]any{}
	}
	return d.schema.Validate(v)
}

// EligibleFor reports whether agentType may use the skill.
func (d *Definition) EligibleFor(agentType string) bool {
	if len(d.EligibleAgentTypes) == 0 {
		return true
	}
	for _, t := range d.EligibleAgentTypes {
		if t == agentType {
			return true
		}
	}
	return false
}

// Registry is the immutable skill catalogue.
type Registry struct {
	defs  []*Definition
	byKey map[string]*Definition
}

// NewRegistry builds a registry from definitions, preserving their order.
// It compiles parameter schemas and rejects duplicate ids or aliases.
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{
		byKey: make(map[string]*Definition, len(defs)),
	}

	for i := range defs {
		d := defs[i]
		if strings.TrimSpace(d.ID) == "" {
			return nil, fmt.Errorf("skill %d: id is required", i)
		}
		if d.ParameterSchema != nil {
			schema, err := compileSchema(d.ID, d.ParameterSchema)
			if err != nil {
				return nil, err
			}
			d.schema = schema
		}

		def := &d
		for _, name := range append([]string{d.ID}, d.Aliases...) {
			key := normalize(name)
			if key == "" {
				continue
			}
			if existing, ok := r.byKey[key]; ok {
				return nil, fmt.Errorf("skill %q: name %q already used by skill %q", d.ID, name, existing.ID)
			}
			r.byKey[key] = def
		}
		r.defs = append(r.defs, def)
	}

	return r, nil
}

func compileSchema(id string, schema map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("skill %q: parameter schema: %w", id, err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://wagf.schemas.local/skills/%s.schema.json", id)
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("skill %q: parameter schema load failed: %w", id, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("skill %q: parameter schema compile failed: %w", id, err)
	}
	return compiled, nil
}

// normalize folds case and separators so "Elevate House", "elevate-house"
// and "elevate_house" resolve to the same key.
func normalize(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// Resolve maps a raw skill name (any case, alias) to its canonical id.
func (r *Registry) Resolve(name string) (string, bool) {
	d, ok := r.byKey[normalize(name)]
	if !ok {
		return "", false
	}
	return d.ID, true
}

// Lookup returns the definition for a skill id or alias. A miss returns a
// *governance.UnknownSkillError; the registry never substitutes a default.
func (r *Registry) Lookup(id string) (*Definition, error) {
	d, ok := r.byKey[normalize(id)]
	if !ok {
		return nil, &governance.UnknownSkillError{SkillID: id}
	}
	return d, nil
}

// IsEligible reports whether agentType may use the skill. Unknown skills are
// never eligible.
func (r *Registry) IsEligible(id, agentType string) bool {
	d, ok := r.byKey[normalize(id)]
	if !ok {
		return false
	}
	return d.EligibleFor(agentType)
}

// Options returns the canonical ids of skills eligible for agentType, in
// catalogue order.
func (r *Registry) Options(agentType string) []string {
	var out []string
	for _, d := range r.defs {
		if d.EligibleFor(agentType) {
			out = append(out, d.ID)
		}
	}
	return out
}

// Definitions returns all definitions in catalogue order.
func (r *Registry) Definitions() []*Definition {
	return append([]*Definition(nil), r.defs...)
}

// IDs returns the canonical ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.defs))
	for i, d := range r.defs {
		ids[i] = d.ID
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of skills.
func (r *Registry) Len() int {
	return len(r.defs)
}
