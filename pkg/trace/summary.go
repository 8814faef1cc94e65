package trace

import (
	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
)

// Summary aggregates a set of records.
type Summary struct {
	Records   int                        `json:"records"`
	ByOutcome map[governance.Outcome]int `json:"by_outcome"`
	Attempts  int                        `json:"attempts"`

	// RuleFailures counts blocking failures per rule over all attempts.
	RuleFailures map[string]int `json:"rule_failures"`

	// PrimaryFailures counts, per rule, how often it was the primary
	// failure that drove a retry or exhaustion.
	PrimaryFailures map[string]int `json:"primary_failures"`

	ParseErrors   int `json:"parse_errors"`
	Timeouts      int `json:"timeouts"`
	UnknownSkills int `json:"unknown_skills"`
}

// NewSummary returns an empty summary.
func NewSummary() *Summary {
	return &Summary{
		ByOutcome:       make(map[governance.Outcome]int),
		RuleFailures:    make(map[string]int),
		PrimaryFailures: make(map[string]int),
	}
}

// Summarize aggregates records.
func Summarize(records []*Record) *Summary {
	s := NewSummary()
	for _, r := range records {
		s.Add(r)
	}
	return s
}

// Add folds one record into the summary.
func (s *Summary) Add(r *Record) {
	s.Records++
	s.ByOutcome[r.Outcome]++
	s.Attempts += len(r.Attempts)

	for _, a := range r.Attempts {
		switch a.Event {
		case governance.EventParseError:
			s.ParseErrors++
		case governance.EventTimeout:
			s.Timeouts++
		case governance.EventUnknownSkill:
			s.UnknownSkills++
		}
		for _, res := range a.Results {
			if res.Blocking() {
				s.RuleFailures[res.RuleID]++
			}
		}
		if p, ok := governance.PrimaryFailure(a.Results); ok {
			s.PrimaryFailures[p.RuleID]++
		}
	}
}

// MeanAttempts returns the average number of attempts per record.
func (s *Summary) MeanAttempts() float64 {
	if s.Records == 0 {
		return 0
	}
	return float64(s.Attempts) / float64(s.Records)
}

// FallbackRate returns the share of records that committed the fallback.
func (s *Summary) FallbackRate() float64 {
	if s.Records == 0 {
		return 0
	}
	n := 0
	for o, c := range s.ByOutcome {
		if o.UsesFallback() {
			n += c
		}
	}
	return float64(n) / float64(s.Records)
}

// ApprovalRate returns the share of records whose first attempt passed.
func (s *Summary) ApprovalRate() float64 {
	if s.Records == 0 {
		return 0
	}
	return float64(s.ByOutcome[governance.OutcomeApproved]) / float64(s.Records)
}
