package rules

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/WenyuChiou/WAGF-sub003/pkg/governance/theory"
)

// expressionCostLimit bounds the evaluation cost of a single expression.
const expressionCostLimit = 10000

// expressionRule evaluates a CEL boolean expression. The rule passes when the
// expression yields true. Available variables:
//
//	skill       string                canonical skill id
//	agent_type  string
//	step        int
//	reasoning   map(string, string)   raw labels, keys lower-cased
//	levels      map(string, int)      parsed labels (1=VL ... 5=VH)
//	parameters  map(string, dyn)
//	confidence  double                -1 when not reported
//	attrs       map(string, dyn)      agent attributes
//	shared      map(string, double)   shared resources
//	costs       map(string, double)   costs of the proposed skill
type expressionRule struct {
	base
	expr    string
	program cel.Program
}

func newExpressionEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("skill", cel.StringType),
		cel.Variable("agent_type", cel.StringType),
		cel.Variable("step", cel.IntType),
		cel.Variable("reasoning", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("levels", cel.MapType(cel.StringType, cel.IntType)),
		cel.Variable("parameters", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("attrs", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("shared", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("costs", cel.MapType(cel.StringType, cel.DoubleType)),
	)
}

// compileExpression type-checks expr and prepares a program for it.
func compileExpression(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must evaluate to bool, got %s", t)
	}
	prg, err := env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(expressionCostLimit),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	return prg, nil
}

func (r *expressionRule) Check(in *Input) Verdict {
	vars := map[string]string{
		"skill":      in.skillID(),
		"agent_type": in.agentType(),
		"expression": r.expr,
	}

	out, _, err := r.program.Eval(activation(in))
	if err != nil {
		// Fail closed.
		vars["error"] = err.Error()
		v := r.fail(vars)
		v.Explanation = fmt.Sprintf("expression %s could not be evaluated: %v", r.id, err)
		return v
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		v := r.fail(vars)
		v.Explanation = fmt.Sprintf("expression %s returned %T, not bool", r.id, out.Value())
		return v
	}
	if ok {
		return r.pass()
	}
	return r.fail(vars)
}

func activation(in *Input) map[string]any {
	reasoning := map[string]string{}
	levels := map[string]int64{}
	parameters := map[string]any{}
	confidence := -1.0
	skillID := in.skillID()

	if p := in.Proposal; p != nil {
		for k, v := range p.Reasoning {
			key := strings.ToLower(strings.TrimSpace(k))
			reasoning[key] = v
			if lvl, err := theory.ParseLevel(v); err == nil {
				levels[key] = int64(lvl)
			}
		}
		for k, v := range p.Parameters {
			parameters[k] = v
		}
		if p.Confidence != nil {
			confidence = *p.Confidence
		}
	}

	attrs := map[string]any{}
	shared := map[string]float64{}
	step := int64(0)
	if s := in.State; s != nil {
		for k, v := range s.Attrs {
			attrs[k] = v
		}
		for k, v := range s.Shared {
			shared[k] = v
		}
		step = int64(s.Step)
	}

	costs := map[string]float64{}
	if in.Skill != nil {
		for k, v := range in.Skill.Costs {
			costs[k] = v
		}
	}

	return map[string]any{
		"skill":      skillID,
		"agent_type": in.agentType(),
		"step":       step,
		"reasoning":  reasoning,
		"levels":     levels,
		"parameters": parameters,
		"confidence": confidence,
		"attrs":      attrs,
		"shared":     shared,
		"costs":      costs,
	}
}
