package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
	"github.com/WenyuChiou/WAGF-sub003/pkg/governance/theory"
	"github.com/WenyuChiou/WAGF-sub003/pkg/skills"
)

// ErrInvalidRuleSet indicates a rule table that cannot be built.
var ErrInvalidRuleSet = errors.New("invalid rule set")

// Spec is the declarative form of one rule. Only the fields relevant to Kind
// are read.
type Spec struct {
	ID       string
	Kind     Kind
	Severity string

	// Skills and AgentTypes scope the rule. Empty means all.
	Skills     []string
	AgentTypes []string

	// Message and Hint override the kind's default templates. Placeholders
	// such as {skill} and {construct} are substituted at check time.
	Message string
	Hint    string

	// Fields lists extra required fields (required_fields) or the constructs
	// to check (construct_labels).
	Fields []string

	// Construct, MinLevel and MaxLevel configure threshold rules.
	Construct string
	MinLevel  string
	MaxLevel  string

	// Attribute, Equals, NotEquals, Min and Max configure state rules. Min
	// and Max also bound confidence rules.
	Attribute string
	Equals    any
	NotEquals any
	Min       *float64
	Max       *float64

	// Required makes a confidence rule fail when no confidence is reported.
	Required bool

	// Resource and Amount configure resource rules. Without Amount the
	// skill's cost for Resource is used; without Resource every cost of the
	// skill is checked.
	Resource string
	Amount   float64

	// Expression is a CEL boolean expression for expression rules.
	Expression string
}

// defaultTemplates holds the message and hint used when a spec sets none.
var defaultTemplates = map[Kind][2]string{
	KindRequiredFields: {
		"{skill} is missing required reasoning fields: {missing}",
		"Report every required field ({required}) with a label such as low, medium or high.",
	},
	KindConstructLabels: {
		"invalid construct labels: {value}",
		"Use one of the labels {labels} for {construct}.",
	},
	KindEligibility: {
		"skill {skill} is not available to agent type {agent_type}",
		"Choose one of the skills available to you: {options}.",
	},
	KindParameters: {
		"parameters for {skill} are invalid: {error}",
		"Provide parameters for {skill} that match its parameter schema.",
	},
	KindConfidence: {
		"confidence {value} is outside [{min}, {max}]",
		"Report a confidence between {min} and {max}.",
	},
	KindThreshold: {
		"{skill} requires {construct} {bound}, reported {value}",
		"Only choose {skill} when your {construct} assessment is {bound}; otherwise pick a different skill.",
	},
	KindState: {
		"{skill} requires {attribute} to be {expected}, current value {value}",
		"{skill} is not possible in your current situation ({attribute}={value}); choose another skill.",
	},
	KindResource: {
		"{skill} needs {required} of {resource} but only {available} is available",
		"Choose a skill that does not draw on {resource}.",
	},
	KindCoherence: {
		"{reason}",
		"Under {theory}, your reasoning supports: {coherent}. Choose a skill consistent with your reasoning or revise your assessment.",
	},
	KindExpression: {
		"{skill} violates constraint {expression}",
		"Choose a skill that satisfies the constraint {expression}.",
	},
}

// Build constructs the rule table in spec order. A required_fields rule is
// inserted at the front when none is declared; declaring it anywhere but
// first is an error. th may be nil when no coherence rule is configured.
func Build(specs []Spec, registry *skills.Registry, th theory.Theory) (*Pipeline, error) {
	env, err := newExpressionEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create expression environment: %w", err)
	}

	built := make([]Rule, 0, len(specs)+1)
	seen := make(map[string]bool, len(specs))

	for i, s := range specs {
		r, err := buildRule(i, s, registry, th, env)
		if err != nil {
			return nil, err
		}
		if seen[r.ID()] {
			return nil, &RuleError{RuleID: r.ID(), Index: i, Message: "duplicate rule id", Cause: ErrInvalidRuleSet}
		}
		seen[r.ID()] = true
		built = append(built, r)
	}

	return NewPipeline(built...)
}

func buildRule(i int, s Spec, registry *skills.Registry, th theory.Theory, env *cel.Env) (Rule, error) {
	ruleErr := func(msg string, cause error) error {
		if cause == nil {
			cause = ErrInvalidRuleSet
		}
		return &RuleError{RuleID: s.ID, Index: i, Message: msg, Cause: cause}
	}

	kind := Kind(strings.ToLower(strings.TrimSpace(string(s.Kind))))
	if !knownKind(kind) {
		return nil, ruleErr(fmt.Sprintf("unknown kind %q", s.Kind), nil)
	}
	severity, err := governance.ParseSeverity(s.Severity)
	if err != nil {
		return nil, ruleErr("invalid severity", err)
	}

	id := s.ID
	if id == "" {
		id = fmt.Sprintf("%s_%d", kind, i)
	}

	tmpl := defaultTemplates[kind]
	b := base{
		id:       id,
		kind:     kind,
		severity: severity,
		message:  firstNonEmpty(s.Message, tmpl[0]),
		hint:     firstNonEmpty(s.Hint, tmpl[1]),
	}

	if len(s.Skills) > 0 {
		b.skills = make(map[string]bool, len(s.Skills))
		for _, name := range s.Skills {
			canonical := name
			if registry != nil {
				c, ok := registry.Resolve(name)
				if !ok {
					return nil, ruleErr(fmt.Sprintf("unknown skill %q", name), governance.ErrUnknownSkill)
				}
				canonical = c
			}
			b.skills[canonical] = true
		}
	}
	if len(s.AgentTypes) > 0 {
		b.agentTypes = make(map[string]bool, len(s.AgentTypes))
		for _, t := range s.AgentTypes {
			b.agentTypes[t] = true
		}
	}

	switch kind {
	case KindRequiredFields:
		return &requiredFieldsRule{base: b, extra: s.Fields}, nil

	case KindConstructLabels:
		return &constructLabelsRule{base: b, constructs: s.Fields}, nil

	case KindEligibility:
		return &eligibilityRule{base: b, registry: registry}, nil

	case KindParameters:
		return &parametersRule{base: b}, nil

	case KindConfidence:
		r := &confidenceRule{base: b, min: 0, max: 1, required: s.Required}
		if s.Min != nil {
			r.min = *s.Min
		}
		if s.Max != nil {
			r.max = *s.Max
		}
		if r.min > r.max {
			return nil, ruleErr("min exceeds max", nil)
		}
		return r, nil

	case KindThreshold:
		if s.Construct == "" {
			return nil, ruleErr("threshold rule requires a construct", nil)
		}
		r := &thresholdRule{base: b, construct: s.Construct}
		if s.MinLevel != "" {
			if r.min, err = theory.ParseLevel(s.MinLevel); err != nil {
				return nil, ruleErr("invalid min_level", err)
			}
		}
		if s.MaxLevel != "" {
			if r.max, err = theory.ParseLevel(s.MaxLevel); err != nil {
				return nil, ruleErr("invalid max_level", err)
			}
		}
		if r.min == theory.LevelUnknown && r.max == theory.LevelUnknown {
			return nil, ruleErr("threshold rule requires min_level or max_level", nil)
		}
		if r.max != theory.LevelUnknown && r.min > r.max {
			return nil, ruleErr("min_level exceeds max_level", nil)
		}
		return r, nil

	case KindState:
		if s.Attribute == "" {
			return nil, ruleErr("state rule requires an attribute", nil)
		}
		if s.Equals == nil && s.NotEquals == nil && s.Min == nil && s.Max == nil {
			return nil, ruleErr("state rule requires equals, not_equals, min or max", nil)
		}
		return &stateRule{
			base:      b,
			attribute: s.Attribute,
			equals:    s.Equals,
			notEquals: s.NotEquals,
			min:       s.Min,
			max:       s.Max,
		}, nil

	case KindResource:
		if s.Amount < 0 {
			return nil, ruleErr("amount must not be negative", nil)
		}
		return &resourceRule{base: b, resource: s.Resource, amount: s.Amount}, nil

	case KindCoherence:
		if th == nil {
			return nil, ruleErr("coherence rule requires a configured theory", nil)
		}
		return &coherenceRule{base: b, theory: th}, nil

	case KindExpression:
		if strings.TrimSpace(s.Expression) == "" {
			return nil, ruleErr("expression rule requires an expression", nil)
		}
		prg, err := compileExpression(env, s.Expression)
		if err != nil {
			return nil, ruleErr("invalid expression", err)
		}
		return &expressionRule{base: b, expr: s.Expression, program: prg}, nil
	}

	return nil, ruleErr(fmt.Sprintf("unhandled kind %q", kind), nil)
}

func knownKind(k Kind) bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Pipeline is an ordered, immutable rule table. It is safe for concurrent
// use.
type Pipeline struct {
	rules []Rule
}

// NewPipeline builds a pipeline from rules in order. The first rule must be
// the required_fields rule; one with default templates is prepended when no
// rule of that kind is present.
func NewPipeline(rules ...Rule) (*Pipeline, error) {
	for i, r := range rules {
		if r.Kind() == KindRequiredFields && i > 0 {
			return nil, &RuleError{RuleID: r.ID(), Index: i, Message: "required_fields must be the first rule", Cause: ErrInvalidRuleSet}
		}
	}

	if len(rules) == 0 || rules[0].Kind() != KindRequiredFields {
		tmpl := defaultTemplates[KindRequiredFields]
		first := &requiredFieldsRule{base: base{
			id:       "required_fields",
			kind:     KindRequiredFields,
			severity: governance.SeverityBlocking,
			message:  tmpl[0],
			hint:     tmpl[1],
		}}
		rules = append([]Rule{first}, rules...)
	}

	return &Pipeline{rules: rules}, nil
}

// Rules returns the rules in evaluation order.
func (p *Pipeline) Rules() []Rule {
	return append([]Rule(nil), p.rules...)
}

// IDs returns the rule ids in evaluation order.
func (p *Pipeline) IDs() []string {
	ids := make([]string, len(p.rules))
	for i, r := range p.rules {
		ids[i] = r.ID()
	}
	return ids
}

// Validate runs every rule in order and returns one result per rule.
//
// When the leading required_fields rule fails, every later rule is recorded
// as skipped. Otherwise a rule that reads a construct an earlier rule found
// missing or malformed is skipped too.
func (p *Pipeline) Validate(proposal *governance.SkillProposal, state *governance.AgentState, def *skills.Definition) []governance.ValidationResult {
	in := &Input{Proposal: proposal, State: state, Skill: def}
	results := make([]governance.ValidationResult, 0, len(p.rules))

	incomplete := false
	badFields := make(map[string]bool)

	for i, r := range p.rules {
		res := governance.ValidationResult{
			RuleID:   r.ID(),
			Kind:     string(r.Kind()),
			Severity: r.Severity(),
		}

		switch {
		case incomplete:
			res.Skipped = true
			res.Explanation = "skipped: required fields missing"

		case readsAny(r, in, badFields):
			res.Skipped = true
			res.Explanation = "skipped: depends on a field that failed an earlier rule"

		case !r.Applies(in):
			res.Passed = true

		default:
			v := r.Check(in)
			res.Passed = v.Passed
			if !v.Passed {
				res.Explanation = v.Explanation
				res.Hint = v.Hint
				for _, f := range v.Fields {
					badFields[strings.ToLower(f)] = true
				}
				if i == 0 && r.Kind() == KindRequiredFields {
					incomplete = true
				}
			}
		}

		results = append(results, res)
	}

	return results
}

func readsAny(r Rule, in *Input, bad map[string]bool) bool {
	if len(bad) == 0 {
		return false
	}
	fr, ok := r.(fieldReader)
	if !ok {
		return false
	}
	for _, f := range fr.Reads(in) {
		if bad[strings.ToLower(f)] {
			return true
		}
	}
	return false
}
