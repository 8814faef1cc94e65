// Package scripted provides a deterministic model adapter that replays raw
// responses from a script. It is used for reproducible runs and tests.
//
// A script lists, per agent, one entry per step and within it one raw
// response per attempt:
//
//	default:
//	  - '{"skill": "do_nothing", "threat": "L", "coping": "L"}'
//	agents:
//	  h1:
//	    - ['{"skill": "elevate", "threat": "L", "coping": "H"}', '{"skill": "do_nothing", "threat": "L", "coping": "H"}']
//	    - ["!timeout"]
//
// The last attempt of a step repeats when more attempts are requested, and
// the last step repeats for later steps. Agents without an entry use
// default. Three directives stand in for adapter failures:
//
//	!timeout      block until the propose deadline expires
//	!unavailable  fail with governance.ErrAdapterUnavailable
//	!garbage      answer with text that contains no JSON
package scripted

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
	"github.com/WenyuChiou/WAGF-sub003/pkg/proposal"
)

// Directives recognised in place of a raw response.
const (
	DirectiveTimeout     = "!timeout"
	DirectiveUnavailable = "!unavailable"
	DirectiveGarbage     = "!garbage"
)

const garbageText = "I am not sure what to do this year, the river looks fine."

// Script is the replay table.
type Script struct {
	Default []string              `yaml:"default"`
	Agents  map[string][][]string `yaml:"agents"`
}

// Call records one propose call.
type Call struct {
	AgentID  string
	Step     int
	Attempt  int
	Feedback string
	Response string
}

// Adapter replays a Script. It implements governance.Proposer and is safe
// for concurrent use.
type Adapter struct {
	script *Script
	parser *proposal.Parser
	logger *slog.Logger

	mu    sync.Mutex
	calls []Call
}

// New creates an adapter. A nil parser uses the zero Parser.
func New(script *Script, parser *proposal.Parser) *Adapter {
	if script == nil {
		script = &Script{}
	}
	if parser == nil {
		parser = &proposal.Parser{}
	}
	return &Adapter{
		script: script,
		parser: parser,
		logger: slog.Default().With("component", "adapters.scripted"),
	}
}

// Load reads a script from a YAML file.
func Load(path string, parser *proposal.Parser) (*Adapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script %s: %w", path, err)
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse script %s: %w", path, err)
	}
	return New(&s, parser), nil
}

// Propose returns the scripted response for the agent, step and attempt.
// The attempt index is derived from the feedback so replays are independent
// of call history.
func (a *Adapter) Propose(ctx context.Context, dc *governance.DecisionContext, fb *governance.Feedback) (*governance.SkillProposal, error) {
	attempt := 0
	feedback := ""
	if fb != nil {
		attempt = fb.Attempt + 1
		feedback = fb.Text
	}

	raw := a.response(dc.AgentID, dc.Step, attempt)

	a.mu.Lock()
	a.calls = append(a.calls, Call{
		AgentID:  dc.AgentID,
		Step:     dc.Step,
		Attempt:  attempt,
		Feedback: feedback,
		Response: raw,
	})
	a.mu.Unlock()

	a.logger.Debug("scripted response",
		"agent_id", dc.AgentID,
		"step", dc.Step,
		"attempt", attempt,
	)

	switch raw {
	case DirectiveTimeout:
		<-ctx.Done()
		return nil, ctx.Err()
	case DirectiveUnavailable:
		return nil, fmt.Errorf("scripted adapter: %w", governance.ErrAdapterUnavailable)
	case DirectiveGarbage:
		raw = garbageText
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.parser.Parse(raw, dc.Options)
}

func (a *Adapter) response(agentID string, step, attempt int) string {
	steps, ok := a.script.Agents[agentID]
	var attempts []string
	if ok && len(steps) > 0 {
		if step >= len(steps) {
			step = len(steps) - 1
		}
		attempts = steps[step]
	}
	if len(attempts) == 0 {
		attempts = a.script.Default
	}
	if len(attempts) == 0 {
		return ""
	}
	if attempt >= len(attempts) {
		attempt = len(attempts) - 1
	}
	return attempts[attempt]
}

// Calls returns every propose call made so far, in call order.
func (a *Adapter) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Call(nil), a.calls...)
}
