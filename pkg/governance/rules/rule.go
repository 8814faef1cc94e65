// Package rules implements the validator pipeline: an explicit, ordered
// table of stateless rules built once from configuration.
//
// Every rule belongs to one of a closed set of kinds. Rules never mutate
// their inputs and never depend on the results of earlier rules, only on
// earlier rules having confirmed that the fields they read are present and
// well formed. The pipeline enforces that ordering by always running the
// required_fields rule first and skipping rules whose fields failed earlier.
package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
	"github.com/WenyuChiou/WAGF-sub003/pkg/skills"
)

// Kind identifies a rule variant.
type Kind string

const (
	KindRequiredFields  Kind = "required_fields"
	KindConstructLabels Kind = "construct_labels"
	KindEligibility     Kind = "eligibility"
	KindParameters      Kind = "parameters"
	KindConfidence      Kind = "confidence"
	KindThreshold       Kind = "threshold"
	KindState           Kind = "state"
	KindResource        Kind = "resource"
	KindCoherence       Kind = "coherence"
	KindExpression      Kind = "expression"
)

// Kinds lists every rule kind.
var Kinds = []Kind{
	KindRequiredFields,
	KindConstructLabels,
	KindEligibility,
	KindParameters,
	KindConfidence,
	KindThreshold,
	KindState,
	KindResource,
	KindCoherence,
	KindExpression,
}

// Input is what a rule evaluates. Rules must treat it as read-only.
type Input struct {
	Proposal *governance.SkillProposal
	State    *governance.AgentState
	Skill    *skills.Definition
}

func (in *Input) agentType() string {
	if in.State == nil {
		return ""
	}
	return in.State.AgentType
}

func (in *Input) skillID() string {
	if in.Skill != nil {
		return in.Skill.ID
	}
	if in.Proposal != nil {
		return in.Proposal.SkillID
	}
	return ""
}

// Verdict is the outcome of one rule check.
type Verdict struct {
	Passed      bool
	Explanation string
	Hint        string

	// Fields names the reasoning constructs found missing or malformed. Later
	// rules reading any of them are skipped.
	Fields []string
}

// Rule is one validator.
type Rule interface {
	ID() string
	Kind() Kind
	Severity() governance.Severity

	// Applies reports whether the rule is relevant for the skill and agent
	// type in the input. Rules that do not apply pass.
	Applies(in *Input) bool

	// Check evaluates the rule. It is only called when Applies is true.
	Check(in *Input) Verdict
}

// fieldReader is implemented by rules that read specific reasoning
// constructs.
type fieldReader interface {
	Reads(in *Input) []string
}

// base carries the attributes every rule kind shares.
type base struct {
	id         string
	kind       Kind
	severity   governance.Severity
	skills     map[string]bool
	agentTypes map[string]bool
	message    string
	hint       string
}

func (b *base) ID() string                    { return b.id }
func (b *base) Kind() Kind                    { return b.kind }
func (b *base) Severity() governance.Severity { return b.severity }

func (b *base) Applies(in *Input) bool {
	if len(b.skills) > 0 && !b.skills[in.skillID()] {
		return false
	}
	if len(b.agentTypes) > 0 && !b.agentTypes[in.agentType()] {
		return false
	}
	return true
}

func (b *base) pass() Verdict {
	return Verdict{Passed: true}
}

// fail renders the rule's message and hint templates.
func (b *base) fail(vars map[string]string, fields ...string) Verdict {
	return Verdict{
		Explanation: render(b.message, vars),
		Hint:        render(b.hint, vars),
		Fields:      fields,
	}
}

// render substitutes {name} placeholders. Keys are applied in sorted order
// so the output depends only on the template and the values.
func render(tmpl string, vars map[string]string) string {
	if tmpl == "" || len(vars) == 0 {
		return tmpl
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, "{"+k+"}", vars[k])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// label returns a reasoning value, matching the construct name without regard
// to case.
func label(p *governance.SkillProposal, construct string) (string, bool) {
	if v, ok := p.Label(construct); ok {
		return v, true
	}
	if p == nil {
		return "", false
	}
	for _, k := range governance.SortedKeys(p.Reasoning) {
		if strings.EqualFold(strings.TrimSpace(k), construct) && strings.TrimSpace(p.Reasoning[k]) != "" {
			return p.Reasoning[k], true
		}
	}
	return "", false
}

// RuleError reports an invalid rule definition.
type RuleError struct {
	RuleID  string
	Index   int
	Message string
	Cause   error
}

// Error returns the error message.
func (e *RuleError) Error() string {
	name := e.RuleID
	if name == "" {
		name = fmt.Sprintf("#%d", e.Index)
	}
	if e.Cause != nil {
		return fmt.Sprintf("rule %s: %s: %v", name, e.Message, e.Cause)
	}
	return fmt.Sprintf("rule %s: %s", name, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RuleError) Unwrap() error {
	return e.Cause
}
