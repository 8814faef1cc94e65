package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
	"github.com/WenyuChiou/WAGF-sub003/pkg/trace"
)

func record(i int, outcome governance.Outcome) *trace.Record {
	return &trace.Record{
		ID:        fmt.Sprintf("rec-%02d", i),
		RunID:     "run-1",
		Step:      i / 2,
		AgentID:   fmt.Sprintf("h%d", i%2),
		AgentType: "household_owner",
		Attempts: []governance.RetryAttempt{{
			Index:    0,
			Event:    governance.EventProposed,
			Proposal: &governance.SkillProposal{SkillID: "do_nothing", Reasoning: map[string]string{"threat": "L", "coping": "L"}},
			Results:  []governance.ValidationResult{{RuleID: "required_fields", Kind: "required_fields", Severity: governance.SeverityBlocking, Passed: true}},
			Valid:    true,
		}},
		Outcome:    outcome,
		Command:    &governance.AdmissibleCommand{SkillID: "do_nothing"},
		Execution:  &governance.ExecutionResult{Success: true, AppliedAt: time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC)},
		RecordedAt: time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
	}
}

type backend struct {
	name string
	open func(t *testing.T) trace.Storage
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) trace.Storage { return NewMemoryStorage() }},
		{"jsonl", func(t *testing.T) trace.Storage {
			s, err := NewJSONLStorage(JSONLConfig{Path: filepath.Join(t.TempDir(), "traces", "run.jsonl")})
			if err != nil {
				t.Fatalf("NewJSONLStorage() error = %v", err)
			}
			return s
		}},
		{"sqlite", func(t *testing.T) trace.Storage {
			s, err := NewSQLiteStorage(&SQLiteConfig{Path: filepath.Join(t.TempDir(), "trace.db"), WALMode: true})
			if err != nil {
				t.Fatalf("NewSQLiteStorage() error = %v", err)
			}
			return s
		}},
	}
}

func TestStorage_StoreAndQuery(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()

			var stored []*trace.Record
			for i := 0; i < 6; i++ {
				outcome := governance.OutcomeApproved
				if i == 3 {
					outcome = governance.OutcomeRetryExhaustedFallback
				}
				r := record(i, outcome)
				stored = append(stored, r)
				if err := s.Store(ctx, r); err != nil {
					t.Fatalf("Store() error = %v", err)
				}
			}

			all, err := s.Query(ctx, &trace.Query{})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if diff := cmp.Diff(stored, all, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("Query() mismatch (-want +got):\n%s", diff)
			}

			fallback, _ := s.Query(ctx, &trace.Query{Outcomes: []governance.Outcome{governance.OutcomeRetryExhaustedFallback}})
			if len(fallback) != 1 || fallback[0].ID != "rec-03" {
				t.Errorf("outcome filter returned %d records", len(fallback))
			}

			agent, _ := s.Query(ctx, &trace.Query{AgentID: "h1", Order: trace.SortDesc, Limit: 2})
			if len(agent) != 2 || agent[0].ID != "rec-05" || agent[1].ID != "rec-03" {
				t.Errorf("agent query returned %v", ids(agent))
			}

			from, to := 1, 1
			n, err := s.Count(ctx, &trace.Query{StepFrom: &from, StepTo: &to})
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if n != 2 {
				t.Errorf("Count(step=1) = %d, want 2", n)
			}

			paged, _ := s.Query(ctx, &trace.Query{Offset: 4})
			if len(paged) != 2 || paged[0].ID != "rec-04" {
				t.Errorf("offset query returned %v", ids(paged))
			}
		})
	}
}

func TestStorage_RejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()

			if err := s.Store(ctx, record(1, governance.OutcomeApproved)); err != nil {
				t.Fatalf("Store() error = %v", err)
			}
			err := s.Store(ctx, record(1, governance.OutcomeApproved))
			if !errors.Is(err, trace.ErrDuplicateRecord) {
				t.Errorf("second Store() error = %v, want ErrDuplicateRecord", err)
			}
		})
	}
}

func TestStorage_StoredRecordIsImmutable(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()

			r := record(1, governance.OutcomeApproved)
			if err := s.Store(ctx, r); err != nil {
				t.Fatalf("Store() error = %v", err)
			}
			r.Outcome = governance.OutcomeExecutionFailed
			r.Attempts[0].Proposal.SkillID = "relocate"

			got, _ := s.Query(ctx, nil)
			got[0].Command.SkillID = "relocate"

			again, _ := s.Query(ctx, nil)
			if again[0].Outcome != governance.OutcomeApproved ||
				again[0].Attempts[0].Proposal.SkillID != "do_nothing" ||
				again[0].Command.SkillID != "do_nothing" {
				t.Errorf("stored record changed: %+v", again[0])
			}
		})
	}
}

func TestStorage_QueryStream(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()

			for i := 0; i < 3; i++ {
				if err := s.Store(ctx, record(i, governance.OutcomeApproved)); err != nil {
					t.Fatalf("Store() error = %v", err)
				}
			}

			recordsCh, errCh, err := s.QueryStream(ctx, &trace.Query{RunID: "run-1"})
			if err != nil {
				t.Fatalf("QueryStream() error = %v", err)
			}
			count := 0
			for range recordsCh {
				count++
			}
			if err := <-errCh; err != nil {
				t.Fatalf("stream error = %v", err)
			}
			if count != 3 {
				t.Errorf("streamed %d records, want 3", count)
			}
		})
	}
}

func TestStorage_InvalidQuery(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()

			_, err := s.Query(context.Background(), &trace.Query{Limit: -1})
			var qe *trace.QueryError
			if !errors.As(err, &qe) {
				t.Errorf("Query() error = %v, want *QueryError", err)
			}
		})
	}
}

func TestJSONLStorage_AppendsOneLinePerRecord(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "run.jsonl")

	s, err := NewJSONLStorage(JSONLConfig{Path: path, Sync: true})
	if err != nil {
		t.Fatalf("NewJSONLStorage() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.Store(ctx, record(i, governance.OutcomeApproved)); err != nil {
			t.Fatalf("Store() error = %v", err)
		}
	}
	s.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}

	// Reopening keeps known ids and appends.
	s, err = NewJSONLStorage(JSONLConfig{Path: path})
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()
	if err := s.Store(ctx, record(0, governance.OutcomeApproved)); !errors.Is(err, trace.ErrDuplicateRecord) {
		t.Errorf("Store() after reopen error = %v, want ErrDuplicateRecord", err)
	}
	if err := s.Store(ctx, record(3, governance.OutcomeApproved)); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	f, _ := os.Open(path)
	defer f.Close()
	all, err := ReadJSONL(f)
	if err != nil {
		t.Fatalf("ReadJSONL() error = %v", err)
	}
	if len(all) != 4 {
		t.Errorf("ReadJSONL() = %d records, want 4", len(all))
	}
}

func TestReadJSONL_BadLine(t *testing.T) {
	_, err := ReadJSONL(strings.NewReader("{\"id\": \"a\"}\nnot json\n"))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("ReadJSONL() error = %v, want line 2 failure", err)
	}
}

func ids(records []*trace.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
