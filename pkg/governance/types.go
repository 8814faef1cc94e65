package governance

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SkillProposal is a candidate skill plus the reasoning constructs the model
// reported alongside it. One proposal is created per adapter call and is owned
// by the validation attempt that consumes it.
type SkillProposal struct {
	// SkillID is the skill the model chose, as returned by the adapter.
	SkillID string `json:"skill_id"`

	// Reasoning maps construct names (e.g. "threat", "coping") to the labels
	// the model reported (e.g. "high", "VL").
	Reasoning map[string]string `json:"reasoning,omitempty"`

	// Parameters carries optional skill parameters.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Confidence is the model's self-reported confidence in [0,1], if any.
	Confidence *float64 `json:"confidence,omitempty"`

	// RawText is the unparsed model output, kept for audit.
	RawText string `json:"raw_text,omitempty"`
}

// Label returns the reasoning label for a construct and whether it is present
// and non-blank.
func (p *SkillProposal) Label(construct string) (string, bool) {
	if p == nil || p.Reasoning == nil {
		return "", false
	}
	v, ok := p.Reasoning[construct]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// Clone returns a deep copy of the proposal.
func (p *SkillProposal) Clone() *SkillProposal {
	if p == nil {
		return nil
	}
	c := &SkillProposal{
		SkillID: p.SkillID,
		RawText: p.RawText,
	}
	if p.Reasoning != nil {
		c.Reasoning = make(map[string]string, len(p.Reasoning))
		for k, v := range p.Reasoning {
			c.Reasoning[k] = v
		}
	}
	c.Parameters = cloneAnyMap(p.Parameters)
	if p.Confidence != nil {
		v := *p.Confidence
		c.Confidence = &v
	}
	return c
}

// AgentState is the read-only view of one agent and the shared environment
// that validators evaluate against. It is a snapshot: later mutations of the
// environment are not visible through it.
type AgentState struct {
	AgentID   string         `json:"agent_id"`
	AgentType string         `json:"agent_type"`
	Step      int            `json:"step"`
	Attrs     map[string]any `json:"attributes,omitempty"`

	// Shared holds environment-wide resources (e.g. a subsidy pool) visible
	// to every agent in the run.
	Shared map[string]float64 `json:"shared,omitempty"`
}

// Attr returns an agent attribute.
func (s *AgentState) Attr(name string) (any, bool) {
	if s == nil || s.Attrs == nil {
		return nil, false
	}
	v, ok := s.Attrs[name]
	return v, ok
}

// SharedAmount returns the available amount of a shared resource.
func (s *AgentState) SharedAmount(name string) (float64, bool) {
	if s == nil || s.Shared == nil {
		return 0, false
	}
	v, ok := s.Shared[name]
	return v, ok
}

// Severity classifies a validation rule.
type Severity string

const (
	// SeverityBlocking rules prevent execution when they fail.
	SeverityBlocking Severity = "blocking"

	// SeverityAdvisory rules are recorded but never block.
	SeverityAdvisory Severity = "advisory"
)

// ParseSeverity parses a severity name. An empty string yields blocking.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case "", SeverityBlocking:
		return SeverityBlocking, nil
	case SeverityAdvisory, "warning", "warn":
		return SeverityAdvisory, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// ValidationResult is the verdict of one rule on one proposal.
type ValidationResult struct {
	RuleID      string   `json:"rule_id"`
	Kind        string   `json:"kind"`
	Severity    Severity `json:"severity"`
	Passed      bool     `json:"passed"`
	Skipped     bool     `json:"skipped,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
	Hint        string   `json:"hint,omitempty"`
}

// Failed reports whether the rule ran and did not pass.
func (r ValidationResult) Failed() bool {
	return !r.Passed && !r.Skipped
}

// Blocking reports whether the result is a failed blocking rule.
func (r ValidationResult) Blocking() bool {
	return r.Failed() && r.Severity == SeverityBlocking
}

// IsValid reports whether no blocking rule failed.
func IsValid(results []ValidationResult) bool {
	for _, r := range results {
		if r.Blocking() {
			return false
		}
	}
	return true
}

// PrimaryFailure returns the first failing blocking rule in pipeline order.
func PrimaryFailure(results []ValidationResult) (ValidationResult, bool) {
	for _, r := range results {
		if r.Blocking() {
			return r, true
		}
	}
	return ValidationResult{}, false
}

// BlockingFailures returns every failing blocking rule in pipeline order.
func BlockingFailures(results []ValidationResult) []ValidationResult {
	var out []ValidationResult
	for _, r := range results {
		if r.Blocking() {
			out = append(out, r)
		}
	}
	return out
}

// AttemptEvent describes what happened when a proposal was requested.
type AttemptEvent string

const (
	// EventProposed means a structured proposal was obtained and validated.
	EventProposed AttemptEvent = "proposed"

	// EventParseError means the adapter output could not be structured.
	EventParseError AttemptEvent = "parse_error"

	// EventTimeout means the adapter did not answer within the propose timeout.
	EventTimeout AttemptEvent = "timeout"

	// EventUnknownSkill means the proposal named a skill the registry lacks.
	EventUnknownSkill AttemptEvent = "unknown_skill"
)

// Malformed reports whether the event produced no usable proposal.
func (e AttemptEvent) Malformed() bool {
	return e == EventParseError || e == EventTimeout
}

// RetryAttempt records one pass through propose and validate.
type RetryAttempt struct {
	// Index is zero-based.
	Index    int                `json:"index"`
	Event    AttemptEvent       `json:"event"`
	Proposal *SkillProposal     `json:"proposal,omitempty"`
	Results  []ValidationResult `json:"results,omitempty"`
	Valid    bool               `json:"valid"`
	Error    string             `json:"error,omitempty"`

	// Feedback is the corrective text sent to the next attempt, empty when
	// no further attempt followed.
	Feedback string        `json:"feedback,omitempty"`
	Duration time.Duration `json:"duration"`
}

// AdmissibleCommand is a skill invocation that passed every blocking rule, or
// the designated fallback skill.
type AdmissibleCommand struct {
	SkillID    string         `json:"skill_id"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Fallback   bool           `json:"fallback,omitempty"`
}

// Clone returns a deep copy of the command.
func (c *AdmissibleCommand) Clone() *AdmissibleCommand {
	if c == nil {
		return nil
	}
	return &AdmissibleCommand{
		SkillID:    c.SkillID,
		Parameters: cloneAnyMap(c.Parameters),
		Fallback:   c.Fallback,
	}
}

// ExecutionResult is what the environment reports after applying a command.
type ExecutionResult struct {
	Success     bool               `json:"success"`
	StateDelta  map[string]any     `json:"state_delta,omitempty"`
	SharedDelta map[string]float64 `json:"shared_delta,omitempty"`
	AppliedAt   time.Time          `json:"applied_at"`
}

// Clone returns a deep copy of the result.
func (r *ExecutionResult) Clone() *ExecutionResult {
	if r == nil {
		return nil
	}
	c := &ExecutionResult{
		Success:    r.Success,
		StateDelta: cloneAnyMap(r.StateDelta),
		AppliedAt:  r.AppliedAt,
	}
	if r.SharedDelta != nil {
		c.SharedDelta = make(map[string]float64, len(r.SharedDelta))
		for k, v := range r.SharedDelta {
			c.SharedDelta[k] = v
		}
	}
	return c
}

// DecisionContext identifies the agent-step being governed and carries the
// opaque context assembled by the memory subsystem for the model adapter.
type DecisionContext struct {
	RunID     string
	AgentID   string
	AgentType string
	Step      int

	// Options lists the skills eligible for this agent type in catalogue
	// order. Adapters use it to render choices and map numeric decisions.
	Options []string

	// Payload is produced by the context builder and never inspected by the
	// broker.
	Payload any
}

// Feedback is the corrective message passed to the next propose call.
type Feedback struct {
	// Attempt is the zero-based index of the attempt that failed.
	Attempt int

	// RuleID is the primary failing rule, empty for parse errors and timeouts.
	RuleID string

	// Event is the event of the failed attempt.
	Event AttemptEvent

	// Text is the deterministic message shown to the model.
	Text string
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneAny(v)
	}
	return out
}

func cloneAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneAnyMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneAny(t[i])
		}
		return out
	default:
		return v
	}
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
