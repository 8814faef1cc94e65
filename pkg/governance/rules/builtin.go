package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
	"github.com/WenyuChiou/WAGF-sub003/pkg/governance/theory"
	"github.com/WenyuChiou/WAGF-sub003/pkg/skills"
)

// requiredFieldsRule checks that every reasoning field the skill requires is
// present and non-blank. Extra lists fields required for every skill.
type requiredFieldsRule struct {
	base
	extra []string
}

func (r *requiredFieldsRule) required(in *Input) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(fields []string) {
		for _, f := range fields {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	if in.Skill != nil {
		add(in.Skill.RequiredFields)
	}
	add(r.extra)
	return out
}

func (r *requiredFieldsRule) Check(in *Input) Verdict {
	required := r.required(in)
	var missing []string
	for _, f := range required {
		if _, ok := label(in.Proposal, f); !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return r.pass()
	}
	return r.fail(map[string]string{
		"skill":    in.skillID(),
		"missing":  strings.Join(missing, ", "),
		"required": strings.Join(required, ", "),
	}, missing...)
}

// constructLabelsRule checks that reasoning labels use the ordinal vocabulary.
type constructLabelsRule struct {
	base
	constructs []string
}

func (r *constructLabelsRule) Reads(in *Input) []string {
	return r.targets(in)
}

func (r *constructLabelsRule) targets(in *Input) []string {
	if len(r.constructs) > 0 {
		return r.constructs
	}
	if in.Skill != nil {
		return in.Skill.RequiredFields
	}
	return nil
}

func (r *constructLabelsRule) Check(in *Input) Verdict {
	var bad []string
	var values []string
	for _, c := range r.targets(in) {
		v, ok := label(in.Proposal, c)
		if !ok {
			continue
		}
		if _, err := theory.ParseLevel(v); err != nil {
			bad = append(bad, c)
			values = append(values, fmt.Sprintf("%s=%q", c, v))
		}
	}
	if len(bad) == 0 {
		return r.pass()
	}
	return r.fail(map[string]string{
		"skill":     in.skillID(),
		"construct": strings.Join(bad, ", "),
		"value":     strings.Join(values, ", "),
		"labels":    "VL, L, M, H, VH",
	}, bad...)
}

// eligibilityRule checks that the agent type may use the skill.
type eligibilityRule struct {
	base
	registry *skills.Registry
}

func (r *eligibilityRule) Check(in *Input) Verdict {
	if in.Skill != nil && in.Skill.EligibleFor(in.agentType()) {
		return r.pass()
	}
	options := []string(nil)
	if r.registry != nil {
		options = r.registry.Options(in.agentType())
	}
	return r.fail(map[string]string{
		"skill":      in.skillID(),
		"agent_type": in.agentType(),
		"options":    strings.Join(options, ", "),
	})
}

// parametersRule validates proposal parameters against the skill's schema.
type parametersRule struct {
	base
}

func (r *parametersRule) Check(in *Input) Verdict {
	if in.Skill == nil {
		return r.pass()
	}
	var params map[string]any
	if in.Proposal != nil {
		params = in.Proposal.Parameters
	}
	if err := in.Skill.ValidateParameters(params); err != nil {
		return r.fail(map[string]string{
			"skill": in.skillID(),
			"error": strings.TrimSpace(err.Error()),
		})
	}
	return r.pass()
}

// confidenceRule bounds the self-reported confidence.
type confidenceRule struct {
	base
	min      float64
	max      float64
	required bool
}

func (r *confidenceRule) Check(in *Input) Verdict {
	vars := map[string]string{
		"skill": in.skillID(),
		"min":   formatFloat(r.min),
		"max":   formatFloat(r.max),
	}
	if in.Proposal == nil || in.Proposal.Confidence == nil {
		if r.required {
			vars["value"] = "none"
			return r.fail(vars)
		}
		return r.pass()
	}
	c := *in.Proposal.Confidence
	if c < r.min || c > r.max {
		vars["value"] = formatFloat(c)
		return r.fail(vars)
	}
	return r.pass()
}

// thresholdRule requires a construct level within [min, max] for the skills
// it is scoped to, e.g. elevation requires threat >= M.
type thresholdRule struct {
	base
	construct string
	min       theory.Level
	max       theory.Level
}

func (r *thresholdRule) Reads(*Input) []string {
	return []string{r.construct}
}

func (r *thresholdRule) Check(in *Input) Verdict {
	vars := map[string]string{
		"skill":     in.skillID(),
		"construct": r.construct,
		"min":       r.min.String(),
		"max":       r.max.String(),
		"bound":     r.bound(),
	}
	raw, ok := label(in.Proposal, r.construct)
	if !ok {
		vars["value"] = "missing"
		return r.fail(vars, r.construct)
	}
	lvl, err := theory.ParseLevel(raw)
	if err != nil {
		vars["value"] = raw
		return r.fail(vars, r.construct)
	}
	vars["value"] = lvl.String()
	if r.min != theory.LevelUnknown && lvl < r.min {
		return r.fail(vars)
	}
	if r.max != theory.LevelUnknown && lvl > r.max {
		return r.fail(vars)
	}
	return r.pass()
}

func (r *thresholdRule) bound() string {
	switch {
	case r.min != theory.LevelUnknown && r.max != theory.LevelUnknown:
		return fmt.Sprintf("between %s and %s", r.min, r.max)
	case r.min != theory.LevelUnknown:
		return fmt.Sprintf(">= %s", r.min)
	default:
		return fmt.Sprintf("<= %s", r.max)
	}
}

// stateRule is a precondition on one agent attribute.
type stateRule struct {
	base
	attribute string
	equals    any
	notEquals any
	min       *float64
	max       *float64
}

func (r *stateRule) Check(in *Input) Verdict {
	v, ok := in.State.Attr(r.attribute)
	vars := map[string]string{
		"skill":     in.skillID(),
		"attribute": r.attribute,
		"value":     formatValue(v, ok),
	}
	if r.equals != nil && (!ok || !sameValue(v, r.equals)) {
		vars["expected"] = fmt.Sprint(r.equals)
		return r.fail(vars)
	}
	if r.notEquals != nil && ok && sameValue(v, r.notEquals) {
		vars["expected"] = "not " + fmt.Sprint(r.notEquals)
		return r.fail(vars)
	}
	if r.min != nil || r.max != nil {
		n, isNum := toFloat(v)
		if !ok || !isNum {
			vars["expected"] = "a number"
			return r.fail(vars)
		}
		if r.min != nil && n < *r.min {
			vars["expected"] = ">= " + formatFloat(*r.min)
			return r.fail(vars)
		}
		if r.max != nil && n > *r.max {
			vars["expected"] = "<= " + formatFloat(*r.max)
			return r.fail(vars)
		}
	}
	return r.pass()
}

// resourceRule checks that shared resources cover the skill's cost.
type resourceRule struct {
	base
	resource string
	amount   float64
}

func (r *resourceRule) Check(in *Input) Verdict {
	needs := make(map[string]float64)
	switch {
	case r.resource != "" && r.amount > 0:
		needs[r.resource] = r.amount
	case r.resource != "":
		if in.Skill != nil {
			needs[r.resource] = in.Skill.Costs[r.resource]
		}
	case in.Skill != nil:
		for k, v := range in.Skill.Costs {
			needs[k] = v
		}
	}

	for _, name := range governance.SortedKeys(needs) {
		need := needs[name]
		if need <= 0 {
			continue
		}
		have, _ := in.State.SharedAmount(name)
		if have < need {
			return r.fail(map[string]string{
				"skill":     in.skillID(),
				"resource":  name,
				"required":  formatFloat(need),
				"available": formatFloat(have),
			})
		}
	}
	return r.pass()
}

// coherenceRule checks construct-action coherence under a theory. It only
// applies to the agent types the theory governs.
type coherenceRule struct {
	base
	theory theory.Theory
}

func (r *coherenceRule) Reads(*Input) []string {
	return r.theory.Dimensions()
}

func (r *coherenceRule) Applies(in *Input) bool {
	return r.base.Applies(in) && theory.Applies(r.theory, in.agentType())
}

func (r *coherenceRule) Check(in *Input) Verdict {
	vars := map[string]string{
		"skill":  in.skillID(),
		"theory": r.theory.Name(),
	}
	var reasoning map[string]string
	if in.Proposal != nil {
		reasoning = in.Proposal.Reasoning
	}
	constructs, err := r.theory.ExtractConstructs(reasoning)
	if err != nil {
		vars["reason"] = err.Error()
		vars["coherent"] = ""
		return r.fail(vars)
	}
	ok, reason := r.theory.IsSensibleAction(constructs, in.skillID())
	if ok {
		return r.pass()
	}
	vars["reason"] = reason
	vars["coherent"] = strings.Join(r.theory.CoherentActions(constructs), ", ")
	return r.fail(vars)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func formatValue(v any, ok bool) string {
	if !ok {
		return "unset"
	}
	return fmt.Sprint(v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// sameValue compares numbers numerically and everything else by its printed
// form, so YAML ints and JSON floats compare equal.
func sameValue(a, b any) bool {
	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			return x == y
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
