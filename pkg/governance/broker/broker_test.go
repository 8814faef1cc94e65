package broker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/WenyuChiou/WAGF-sub003/pkg/adapters/scripted"
	"github.com/WenyuChiou/WAGF-sub003/pkg/environment"
	"github.com/WenyuChiou/WAGF-sub003/pkg/environment/memory"
	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
	"github.com/WenyuChiou/WAGF-sub003/pkg/governance/rules"
	"github.com/WenyuChiou/WAGF-sub003/pkg/governance/theory"
	"github.com/WenyuChiou/WAGF-sub003/pkg/proposal"
	"github.com/WenyuChiou/WAGF-sub003/pkg/skills"
	"github.com/WenyuChiou/WAGF-sub003/pkg/trace"
	"github.com/WenyuChiou/WAGF-sub003/pkg/trace/recorder"
	"github.com/WenyuChiou/WAGF-sub003/pkg/trace/storage"
)

const (
	elevateLow    = `{"skill": "elevate", "threat": "low", "coping": "high"}`
	elevateHigh   = `{"skill": "elevate", "threat": "H", "coping": "H"}`
	nothingLow    = `{"skill": "do_nothing", "threat": "low", "coping": "high"}`
	insureHigh    = `{"skill": "buy_insurance", "threat": "H", "coping": "H"}`
	missingThreat = `{"skill": "do_nothing", "coping": "H"}`
)

type fixture struct {
	broker  *Broker
	adapter *scripted.Adapter
	env     *memory.Environment
	store   *storage.MemoryStorage
}

type options struct {
	shared map[string]float64
	config func(*Config)
}

func testRegistry(t testing.TB) *skills.Registry {
	t.Helper()
	fields := []string{"threat", "coping"}
	reg, err := skills.NewRegistry([]skills.Definition{
		{ID: "do_nothing", RequiredFields: fields},
		{ID: "buy_insurance", RequiredFields: fields, Effects: map[string]any{"insured": true}},
		{
			ID:                 "elevate_house",
			RequiredFields:     fields,
			Aliases:            []string{"elevate"},
			EligibleAgentTypes: []string{"household_owner"},
			Effects:            map[string]any{"elevated": true},
			Costs:              map[string]float64{"subsidy_pool": 1},
		},
		{ID: "relocate", RequiredFields: fields, Effects: map[string]any{"relocated": true}},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

func newFixture(t testing.TB, script *scripted.Script, opts options) *fixture {
	t.Helper()
	reg := testRegistry(t)

	th, err := theory.New("pmt", nil)
	if err != nil {
		t.Fatalf("theory.New() error = %v", err)
	}
	pipeline, err := rules.Build([]rules.Spec{
		{ID: "labels", Kind: rules.KindConstructLabels},
		{ID: "eligible", Kind: rules.KindEligibility},
		{ID: "elevation_threat", Kind: rules.KindThreshold, Skills: []string{"elevate"}, Construct: "threat", MinLevel: "M"},
		{ID: "coherence", Kind: rules.KindCoherence, Severity: "advisory"},
	}, reg, th)
	if err != nil {
		t.Fatalf("rules.Build() error = %v", err)
	}

	shared := opts.shared
	if shared == nil {
		shared = map[string]float64{"subsidy_pool": 5}
	}
	env, err := memory.New(reg, []environment.Agent{
		{ID: "h1", Type: "household_owner"},
		{ID: "h2", Type: "household_owner"},
	}, shared)
	if err != nil {
		t.Fatalf("memory.New() error = %v", err)
	}

	adapter := scripted.New(script, proposal.NewParser(nil))
	store := storage.NewMemoryStorage()

	cfg := DefaultConfig()
	cfg.ProposeTimeout = 50 * time.Millisecond
	cfg.RuleSetVersion = "test"
	if opts.config != nil {
		opts.config(cfg)
	}

	b, err := New(cfg, reg, pipeline, adapter, env,
		WithRecorder(recorder.NewRecorder(store, &recorder.Config{Async: false})),
		WithClock(func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &fixture{broker: b, adapter: adapter, env: env, store: store}
}

func script(attempts ...string) *scripted.Script {
	return &scripted.Script{Agents: map[string][][]string{"h1": {attempts}}}
}

func decide(t testing.TB, f *fixture) *Decision {
	t.Helper()
	d, err := f.broker.Decide(context.Background(), &governance.DecisionContext{RunID: "run", AgentID: "h1", Step: 0})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	return d
}

func TestDecide_Approved(t *testing.T) {
	f := newFixture(t, script(insureHigh), options{})
	d := decide(t, f)

	if d.Outcome != governance.OutcomeApproved {
		t.Fatalf("Outcome = %s, want APPROVED", d.Outcome)
	}
	if d.Command.SkillID != "buy_insurance" || d.Command.Fallback {
		t.Errorf("Command = %+v, want buy_insurance", d.Command)
	}
	if len(d.Record.Attempts) != 1 || d.Record.Attempts[0].Feedback != "" {
		t.Errorf("attempts = %+v", d.Record.Attempts)
	}
	if d.Err != nil || d.Execution == nil || !d.Execution.Success {
		t.Errorf("Err=%v Execution=%+v", d.Err, d.Execution)
	}

	s, _ := f.env.Snapshot(context.Background(), "h1")
	if s.Attrs["insured"] != true {
		t.Error("approved command was not applied")
	}

	stored, _ := f.store.Query(context.Background(), nil)
	if len(stored) != 1 || stored[0].ID != d.Record.ID || stored[0].RuleSetVersion != "test" {
		t.Errorf("trace not recorded: %+v", stored)
	}
}

func TestDecide_RetrySuccess(t *testing.T) {
	f := newFixture(t, script(elevateLow, nothingLow), options{})
	d := decide(t, f)

	if d.Outcome != governance.OutcomeRetrySuccess {
		t.Fatalf("Outcome = %s, want RETRY_SUCCESS", d.Outcome)
	}
	if d.Command.SkillID != "do_nothing" || d.Command.Fallback {
		t.Errorf("Command = %+v, want the second proposal", d.Command)
	}

	first := d.Record.Attempts[0]
	if first.Valid || first.Event != governance.EventProposed {
		t.Errorf("first attempt = %+v", first)
	}
	if p, ok := governance.PrimaryFailure(first.Results); !ok || p.RuleID != "elevation_threat" {
		t.Errorf("primary failure = %+v", p)
	}
	if !strings.Contains(first.Feedback, "elevation_threat") {
		t.Errorf("feedback does not reference the failing rule: %q", first.Feedback)
	}

	calls := f.adapter.Calls()
	if len(calls) != 2 || calls[1].Feedback != first.Feedback {
		t.Errorf("second call did not carry the recorded feedback: %+v", calls)
	}

	s, _ := f.env.Snapshot(context.Background(), "h1")
	if _, ok := s.Attrs["elevated"]; ok {
		t.Error("rejected proposal was executed")
	}
}

func TestDecide_ExhaustedCommitsFallback(t *testing.T) {
	f := newFixture(t, script(elevateLow), options{})
	d := decide(t, f)

	if d.Outcome != governance.OutcomeRetryExhaustedFallback {
		t.Fatalf("Outcome = %s, want RETRY_EXHAUSTED_FALLBACK", d.Outcome)
	}
	if d.Command.SkillID != "do_nothing" || !d.Command.Fallback || d.Command.Parameters != nil {
		t.Errorf("Command = %+v, want bare do_nothing fallback", d.Command)
	}

	a := d.Record.Attempts
	if len(a) != 3 {
		t.Fatalf("got %d attempts, want 3", len(a))
	}
	if a[0].Feedback == "" || a[0].Feedback != a[1].Feedback {
		t.Errorf("feedback not reproducible: %q vs %q", a[0].Feedback, a[1].Feedback)
	}
	if a[2].Feedback != "" {
		t.Errorf("last attempt carries feedback %q", a[2].Feedback)
	}
	if d.Record.ValidProposals() != 0 {
		t.Errorf("ValidProposals() = %d", d.Record.ValidProposals())
	}
}

func TestDecide_PerAgentTypeFallback(t *testing.T) {
	f := newFixture(t, script(elevateLow), options{config: func(c *Config) {
		c.MaxRetries = 2
		c.Fallbacks = map[string]string{"household_owner": "buy insurance"}
	}})
	d := decide(t, f)

	if d.Command.SkillID != "buy_insurance" || !d.Command.Fallback {
		t.Errorf("Command = %+v, want buy_insurance fallback", d.Command)
	}
	if len(d.Record.Attempts) != 2 {
		t.Errorf("got %d attempts, want 2", len(d.Record.Attempts))
	}
}

func TestDecide_MissingFieldSkipsDownstream(t *testing.T) {
	f := newFixture(t, script(missingThreat), options{config: func(c *Config) { c.MaxRetries = 1 }})
	d := decide(t, f)

	results := d.Record.Attempts[0].Results
	failures := 0
	for _, r := range results {
		if r.Failed() {
			failures++
		}
	}
	if failures != 1 || results[0].RuleID != "required_fields" || results[0].Passed {
		t.Errorf("results = %+v, want only required_fields failing", results)
	}
	for _, r := range results[1:] {
		if !r.Skipped {
			t.Errorf("rule %s not skipped", r.RuleID)
		}
	}
	if d.Outcome != governance.OutcomeRetryExhaustedFallback {
		t.Errorf("Outcome = %s", d.Outcome)
	}
}

func TestDecide_TimeoutsAreMalformed(t *testing.T) {
	f := newFixture(t, script(scripted.DirectiveTimeout), options{})
	d := decide(t, f)

	if d.Outcome != governance.OutcomeMalformedInput {
		t.Fatalf("Outcome = %s, want MALFORMED_INPUT", d.Outcome)
	}
	if !d.Command.Fallback || d.Command.SkillID != "do_nothing" {
		t.Errorf("Command = %+v", d.Command)
	}
	if n := d.Record.EventCount(governance.EventTimeout); n != 3 {
		t.Errorf("timeout events = %d, want 3", n)
	}
	if d.Record.ValidProposals() != 0 {
		t.Errorf("ValidProposals() = %d, want 0", d.Record.ValidProposals())
	}
	if !strings.Contains(d.Record.Attempts[0].Feedback, "time limit") {
		t.Errorf("timeout feedback = %q", d.Record.Attempts[0].Feedback)
	}
}

func TestDecide_MixedMalformedAndInvalidIsExhaustion(t *testing.T) {
	f := newFixture(t, script(scripted.DirectiveGarbage, elevateLow, scripted.DirectiveGarbage), options{})
	d := decide(t, f)

	if d.Outcome != governance.OutcomeRetryExhaustedFallback {
		t.Errorf("Outcome = %s, want RETRY_EXHAUSTED_FALLBACK", d.Outcome)
	}
	if d.Record.EventCount(governance.EventParseError) != 2 {
		t.Errorf("parse errors = %d, want 2", d.Record.EventCount(governance.EventParseError))
	}
	if !strings.Contains(d.Record.Attempts[0].Feedback, proposal.ReasonNoJSON) {
		t.Errorf("parse feedback = %q", d.Record.Attempts[0].Feedback)
	}
}

func TestDecide_UnknownSkill(t *testing.T) {
	f := newFixture(t, script(`{"skill": "fly_away", "threat": "H", "coping": "H"}`, insureHigh), options{})
	d := decide(t, f)

	if d.Outcome != governance.OutcomeUnknownSkill {
		t.Fatalf("Outcome = %s, want UNKNOWN_SKILL", d.Outcome)
	}
	if !errors.Is(d.Err, governance.ErrUnknownSkill) {
		t.Errorf("Err = %v, want ErrUnknownSkill", d.Err)
	}
	if len(f.adapter.Calls()) != 1 {
		t.Errorf("unknown skill was retried: %d calls", len(f.adapter.Calls()))
	}
	a := d.Record.Attempts
	if len(a) != 1 || a[0].Event != governance.EventUnknownSkill || len(a[0].Results) != 0 {
		t.Errorf("attempts = %+v, want one unknown_skill attempt with no results", a)
	}
	if !d.Command.Fallback || d.Execution == nil {
		t.Errorf("fallback not applied: %+v", d)
	}
	if d.Record.ErrorKind != trace.ErrorKindUnknownSkill {
		t.Errorf("ErrorKind = %q", d.Record.ErrorKind)
	}
}

func TestDecide_ExecutionFailure(t *testing.T) {
	f := newFixture(t, script(elevateHigh), options{shared: map[string]float64{"subsidy_pool": 0}})
	d := decide(t, f)

	if d.Outcome != governance.OutcomeExecutionFailed {
		t.Fatalf("Outcome = %s, want EXECUTION_FAILED", d.Outcome)
	}
	if !errors.Is(d.Err, governance.ErrExecution) {
		t.Errorf("Err = %v, want ErrExecution", d.Err)
	}
	if d.Execution != nil || d.Record.Execution != nil {
		t.Error("failed execution carries a result")
	}
	if d.Command.SkillID != "elevate_house" {
		t.Errorf("Command = %+v, want canonical elevate_house", d.Command)
	}

	s, _ := f.env.Snapshot(context.Background(), "h1")
	if _, ok := s.Attrs["elevated"]; ok {
		t.Error("failed execution changed state")
	}
	if d.Record.ErrorKind != trace.ErrorKindExecution {
		t.Errorf("ErrorKind = %q", d.Record.ErrorKind)
	}
}

func TestDecide_Aborts(t *testing.T) {
	t.Run("adapter unavailable", func(t *testing.T) {
		f := newFixture(t, script(scripted.DirectiveUnavailable), options{})
		_, err := f.broker.Decide(context.Background(), &governance.DecisionContext{AgentID: "h1"})
		if !errors.Is(err, governance.ErrAdapterUnavailable) {
			t.Errorf("Decide() error = %v, want ErrAdapterUnavailable", err)
		}
		if n, _ := f.store.Count(context.Background(), nil); n != 0 {
			t.Errorf("aborted decision recorded %d traces", n)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		f := newFixture(t, script(insureHigh), options{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := f.broker.Decide(ctx, &governance.DecisionContext{AgentID: "h1"})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Decide() error = %v, want context.Canceled", err)
		}
		if len(f.adapter.Calls()) != 0 {
			t.Error("adapter called after cancellation")
		}
	})

	t.Run("unknown agent", func(t *testing.T) {
		f := newFixture(t, script(insureHigh), options{})
		if _, err := f.broker.Decide(context.Background(), &governance.DecisionContext{AgentID: "nobody"}); err == nil {
			t.Error("Decide() succeeded for an unknown agent")
		}
	})
}

func TestDecide_FillsContextFromState(t *testing.T) {
	var seen governance.DecisionContext
	proposer := governance.ProposerFunc(func(ctx context.Context, dc *governance.DecisionContext, _ *governance.Feedback) (*governance.SkillProposal, error) {
		seen = *dc
		return proposal.NewParser(nil).Parse(insureHigh, dc.Options)
	})
	f := newFixture(t, script(insureHigh), options{})
	b, err := New(f.broker.config, f.broker.registry, f.broker.pipeline, proposer, f.env)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	dc := &governance.DecisionContext{AgentID: "h1"}
	d, err := b.Decide(context.Background(), dc)
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}

	if seen.AgentType != "household_owner" {
		t.Errorf("proposer AgentType = %q", seen.AgentType)
	}
	want := []string{"do_nothing", "buy_insurance", "elevate_house", "relocate"}
	if strings.Join(seen.Options, ",") != strings.Join(want, ",") {
		t.Errorf("proposer Options = %v, want %v", seen.Options, want)
	}
	if d.Record.AgentType != "household_owner" {
		t.Errorf("Record.AgentType = %q", d.Record.AgentType)
	}
	if dc.AgentType != "" || dc.Options != nil {
		t.Errorf("caller context modified: %+v", dc)
	}
}

func TestDecide_EnforcesProposeTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slow := governance.ProposerFunc(func(ctx context.Context, dc *governance.DecisionContext, _ *governance.Feedback) (*governance.SkillProposal, error) {
		<-release
		return nil, errors.New("late garbage")
	})
	f := newFixture(t, script(insureHigh), options{})
	b, err := New(f.broker.config, f.broker.registry, f.broker.pipeline, slow, f.env)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	start := time.Now()
	d, err := b.Decide(context.Background(), &governance.DecisionContext{AgentID: "h1"})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Decide took %s with a 50ms propose timeout", elapsed)
	}
	if d.Outcome != governance.OutcomeMalformedInput {
		t.Errorf("Outcome = %s, want MALFORMED_INPUT", d.Outcome)
	}
	if n := d.Record.EventCount(governance.EventTimeout); n != 3 {
		t.Errorf("timeout events = %d, want 3", n)
	}
	if !d.Command.Fallback {
		t.Errorf("Command = %+v, want fallback", d.Command)
	}
}

func TestDecide_LateErrorAfterDeadlineIsTimeout(t *testing.T) {
	sleepy := governance.ProposerFunc(func(ctx context.Context, dc *governance.DecisionContext, _ *governance.Feedback) (*governance.SkillProposal, error) {
		<-ctx.Done()
		return nil, governance.NewParseError("empty response", "", nil)
	})
	f := newFixture(t, script(insureHigh), options{})
	b, err := New(f.broker.config, f.broker.registry, f.broker.pipeline, sleepy, f.env)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	d, err := b.Decide(context.Background(), &governance.DecisionContext{AgentID: "h1"})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if n := d.Record.EventCount(governance.EventParseError); n != 0 {
		t.Errorf("parse_error events = %d, want 0", n)
	}
	if n := d.Record.EventCount(governance.EventTimeout); n != 3 {
		t.Errorf("timeout events = %d, want 3", n)
	}
}

func TestConfig_Validate(t *testing.T) {
	reg := testRegistry(t)
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }, true},
		{"negative timeout", func(c *Config) { c.ProposeTimeout = -1 }, true},
		{"rate without burst", func(c *Config) { c.RateLimit = 5; c.Burst = 0 }, true},
		{"unknown default fallback", func(c *Config) { c.DefaultFallback = "panic" }, true},
		{"empty default fallback", func(c *Config) { c.DefaultFallback = "" }, true},
		{"ineligible type fallback", func(c *Config) { c.Fallbacks = map[string]string{"renter": "elevate_house"} }, true},
		{"alias type fallback", func(c *Config) { c.Fallbacks = map[string]string{"household_owner": "elevate"} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			if err := c.Validate(reg); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
