// Package theory implements construct-action coherence theories. A theory
// names the reasoning dimensions a model must report, reads them from a
// proposal and says which skills are coherent with the reported levels.
//
// The set of theories is closed and chosen by configuration:
//
//   - "pmt": protection motivation (threat and coping appraisal) for
//     household flood adaptation.
//   - "water_appraisal": water scarcity and adaptive capacity appraisal for
//     irrigation demand decisions.
package theory

import (
	"fmt"
	"sort"
	"strings"
)

// Theory is a pluggable construct-action coherence model.
type Theory interface {
	// Name returns the configuration name of the theory.
	Name() string

	// Dimensions returns the construct names the theory reads, in order.
	Dimensions() []string

	// AgentTypes returns the agent types the theory governs.
	AgentTypes() []string

	// ExtractConstructs reads every dimension from a reasoning map. Keys are
	// matched case-insensitively against dimension names and their aliases.
	ExtractConstructs(reasoning map[string]string) (map[string]Level, error)

	// CoherentActions returns the skills coherent with the given levels,
	// sorted.
	CoherentActions(constructs map[string]Level) []string

	// IsSensibleAction reports whether skillID is coherent with the levels.
	// Skills the theory does not know about are always sensible. When not
	// sensible, the returned string explains why.
	IsSensibleAction(constructs map[string]Level, skillID string) (bool, string)
}

// Names lists the available theories.
var Names = []string{"pmt", "water_appraisal"}

// New returns the theory registered under name. agentTypes overrides the
// theory's default agent types when non-empty.
func New(name string, agentTypes []string) (Theory, error) {
	var base *tableTheory
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "pmt", "protection_motivation":
		base = newPMT()
	case "water_appraisal", "wa":
		base = newWaterAppraisal()
	default:
		return nil, fmt.Errorf("unknown theory %q (available: %s)", name, strings.Join(Names, ", "))
	}
	if len(agentTypes) > 0 {
		base.agentTypes = append([]string(nil), agentTypes...)
	}
	return base, nil
}

// Applies reports whether t governs agentType.
func Applies(t Theory, agentType string) bool {
	for _, at := range t.AgentTypes() {
		if at == agentType {
			return true
		}
	}
	return false
}

// dimension is a construct name plus the keys a model may use for it.
type dimension struct {
	name    string
	aliases []string
}

// tableTheory evaluates coherence with an ordered list of level bands. The
// first band whose predicate matches decides the coherent set.
type tableTheory struct {
	name       string
	dimensions []dimension
	agentTypes []string
	bands      []band
	universe   map[string]bool
}

type band struct {
	match   func(c map[string]Level) bool
	actions []string
}

func newTableTheory(name string, dims []dimension, agentTypes []string, bands []band) *tableTheory {
	t := &tableTheory{
		name:       name,
		dimensions: dims,
		agentTypes: agentTypes,
		bands:      bands,
		universe:   make(map[string]bool),
	}
	for _, b := range bands {
		for _, a := range b.actions {
			t.universe[a] = true
		}
	}
	return t
}

func (t *tableTheory) Name() string { return t.name }

func (t *tableTheory) Dimensions() []string {
	out := make([]string, len(t.dimensions))
	for i, d := range t.dimensions {
		out[i] = d.name
	}
	return out
}

func (t *tableTheory) AgentTypes() []string {
	return append([]string(nil), t.agentTypes...)
}

func (t *tableTheory) ExtractConstructs(reasoning map[string]string) (map[string]Level, error) {
	lowered := make(map[string]string, len(reasoning))
	for k, v := range reasoning {
		lowered[strings.ToLower(strings.TrimSpace(k))] = v
	}

	out := make(map[string]Level, len(t.dimensions))
	for _, d := range t.dimensions {
		raw, ok := lookupDimension(lowered, d)
		if !ok {
			return nil, fmt.Errorf("missing construct %q", d.name)
		}
		lvl, err := ParseLevel(raw)
		if err != nil {
			return nil, fmt.Errorf("construct %q: %w", d.name, err)
		}
		out[d.name] = lvl
	}
	return out, nil
}

func lookupDimension(lowered map[string]string, d dimension) (string, bool) {
	if v, ok := lowered[d.name]; ok && strings.TrimSpace(v) != "" {
		return v, true
	}
	for _, a := range d.aliases {
		if v, ok := lowered[a]; ok && strings.TrimSpace(v) != "" {
			return v, true
		}
	}
	return "", false
}

func (t *tableTheory) CoherentActions(constructs map[string]Level) []string {
	for _, b := range t.bands {
		if b.match(constructs) {
			out := append([]string(nil), b.actions...)
			sort.Strings(out)
			return out
		}
	}
	return nil
}

func (t *tableTheory) IsSensibleAction(constructs map[string]Level, skillID string) (bool, string) {
	if !t.universe[skillID] {
		return true, ""
	}
	coherent := t.CoherentActions(constructs)
	for _, a := range coherent {
		if a == skillID {
			return true, ""
		}
	}

	parts := make([]string, 0, len(t.dimensions))
	for _, d := range t.dimensions {
		parts = append(parts, fmt.Sprintf("%s=%s", d.name, constructs[d.name]))
	}
	return false, fmt.Sprintf("%s is inconsistent with %q under %s; coherent choices: %s",
		strings.Join(parts, " "), skillID, t.name, strings.Join(coherent, ", "))
}
