// Package trace defines the audit record emitted for every governed
// agent-step, the query model over recorded traces and the storage contract
// the backends implement.
//
// A Record is immutable once stored: backends keep a deep copy and readers
// receive copies, so nothing downstream can alter history.
package trace

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
)

// Record is the full audit record of one agent-step.
type Record struct {
	// ID is a UUID assigned by the broker.
	ID string `json:"id"`

	RunID     string `json:"run_id"`
	Step      int    `json:"step"`
	AgentID   string `json:"agent_id"`
	AgentType string `json:"agent_type"`

	// Attempts holds every propose-validate pass in order.
	Attempts []governance.RetryAttempt `json:"attempts"`

	Outcome governance.Outcome `json:"outcome"`

	// Command is what was executed: the accepted proposal or the fallback.
	Command *governance.AdmissibleCommand `json:"command,omitempty"`

	// Execution is nil when execution failed.
	Execution *governance.ExecutionResult `json:"execution,omitempty"`

	// Error and ErrorKind describe the unknown-skill or execution failure
	// surfaced for this step, if any.
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`

	// RuleSetVersion identifies the configuration revision the step was
	// governed under.
	RuleSetVersion string `json:"rule_set_version,omitempty"`

	RecordedAt time.Time     `json:"recorded_at"`
	Duration   time.Duration `json:"duration"`
}

// Error kinds.
const (
	ErrorKindUnknownSkill = "unknown_skill"
	ErrorKindExecution    = "execution"
)

// AttemptCount returns the number of attempts.
func (r *Record) AttemptCount() int {
	return len(r.Attempts)
}

// ValidProposals returns how many attempts produced a proposal that passed
// every blocking rule.
func (r *Record) ValidProposals() int {
	n := 0
	for _, a := range r.Attempts {
		if a.Valid {
			n++
		}
	}
	return n
}

// EventCount returns how many attempts ended with the given event.
func (r *Record) EventCount(event governance.AttemptEvent) int {
	n := 0
	for _, a := range r.Attempts {
		if a.Event == event {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Attempts != nil {
		c.Attempts = make([]governance.RetryAttempt, len(r.Attempts))
		for i, a := range r.Attempts {
			c.Attempts[i] = cloneAttempt(a)
		}
	}
	c.Command = r.Command.Clone()
	c.Execution = r.Execution.Clone()
	return &c
}

func cloneAttempt(a governance.RetryAttempt) governance.RetryAttempt {
	c := a
	c.Proposal = a.Proposal.Clone()
	if a.Results != nil {
		c.Results = append([]governance.ValidationResult(nil), a.Results...)
	}
	return c
}

// SortOrder orders query results by recording sequence.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Query filters trace records. Zero-valued fields do not filter.
type Query struct {
	RunID     string
	AgentID   string
	AgentType string
	Outcomes  []governance.Outcome

	// StepFrom and StepTo bound the step, inclusive.
	StepFrom *int
	StepTo   *int

	Since time.Time
	Until time.Time

	Limit  int
	Offset int
	Order  SortOrder
}

// Validate checks the query for contradictory or invalid filters.
func (q *Query) Validate() error {
	if q == nil {
		return nil
	}
	if q.Limit < 0 {
		return NewQueryError(q, errors.New("limit must not be negative"))
	}
	if q.Offset < 0 {
		return NewQueryError(q, errors.New("offset must not be negative"))
	}
	if q.StepFrom != nil && q.StepTo != nil && *q.StepFrom > *q.StepTo {
		return NewQueryError(q, errors.New("step_from exceeds step_to"))
	}
	if !q.Since.IsZero() && !q.Until.IsZero() && q.Since.After(q.Until) {
		return NewQueryError(q, errors.New("since is after until"))
	}
	switch q.Order {
	case "", SortAsc, SortDesc:
	default:
		return NewQueryError(q, errors.New("order must be asc or desc"))
	}
	for _, o := range q.Outcomes {
		if _, err := governance.ParseOutcome(string(o)); err != nil {
			return NewQueryError(q, err)
		}
	}
	return nil
}

// Matches reports whether r satisfies every filter except Limit and Offset.
func (q *Query) Matches(r *Record) bool {
	if q == nil {
		return true
	}
	if q.RunID != "" && r.RunID != q.RunID {
		return false
	}
	if q.AgentID != "" && r.AgentID != q.AgentID {
		return false
	}
	if q.AgentType != "" && r.AgentType != q.AgentType {
		return false
	}
	if len(q.Outcomes) > 0 {
		found := false
		for _, o := range q.Outcomes {
			if r.Outcome == o {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.StepFrom != nil && r.Step < *q.StepFrom {
		return false
	}
	if q.StepTo != nil && r.Step > *q.StepTo {
		return false
	}
	if !q.Since.IsZero() && r.RecordedAt.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && r.RecordedAt.After(q.Until) {
		return false
	}
	return true
}

// Page applies Order, Offset and Limit to records already in ascending
// recording order.
func (q *Query) Page(records []*Record) []*Record {
	if q == nil {
		return records
	}
	if q.Order == SortDesc {
		rev := make([]*Record, len(records))
		for i, r := range records {
			rev[len(records)-1-i] = r
		}
		records = rev
	}
	if q.Offset > 0 {
		if q.Offset >= len(records) {
			return nil
		}
		records = records[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(records) {
		records = records[:q.Limit]
	}
	return records
}

// Storage persists trace records. Implementations must be safe for
// concurrent use and must never modify a stored record.
type Storage interface {
	// Store appends a record. Storing an id twice is an error.
	Store(ctx context.Context, record *Record) error

	// Query returns matching records in recording order.
	Query(ctx context.Context, query *Query) ([]*Record, error)

	// QueryStream delivers matching records over a channel. Both channels
	// are closed when the query completes; errCh carries at most one error.
	QueryStream(ctx context.Context, query *Query) (<-chan *Record, <-chan error, error)

	// Count returns the number of matching records, ignoring Limit and
	// Offset.
	Count(ctx context.Context, query *Query) (int64, error)

	Close() error
}

// Exporter writes records in some format.
type Exporter interface {
	Export(ctx context.Context, records []*Record, w io.Writer) error
}
