package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
	"github.com/WenyuChiou/WAGF-sub003/pkg/trace"
)

func newTestCollector() *Collector {
	return NewCollector(Config{Namespace: "test", Subsystem: "broker"}, prometheus.NewRegistry())
}

func TestNewCollector_Defaults(t *testing.T) {
	c := NewCollector(Config{}, nil)
	if c.registry == nil {
		t.Fatal("expected a registry")
	}
	if c.config.Namespace != "wagf" || c.config.Subsystem != "broker" || len(c.config.DurationBuckets) == 0 {
		t.Errorf("defaults not applied: %+v", c.config)
	}
	if c.Registry() != c.registry {
		t.Error("Registry() returned a different registry")
	}
}

func TestCollector_ObserveAttempt(t *testing.T) {
	c := newTestCollector()

	c.ObserveAttempt("household_owner", &governance.RetryAttempt{
		Event:    governance.EventProposed,
		Duration: 20 * time.Millisecond,
		Results: []governance.ValidationResult{
			{RuleID: "required_fields", Severity: governance.SeverityBlocking, Passed: true},
			{RuleID: "elevation_threat", Severity: governance.SeverityBlocking},
			{RuleID: "coherence", Severity: governance.SeverityAdvisory},
		},
	})
	c.ObserveAttempt("household_owner", &governance.RetryAttempt{
		Event: governance.EventProposed,
		Results: []governance.ValidationResult{
			{RuleID: "required_fields", Severity: governance.SeverityBlocking},
			{RuleID: "elevation_threat", Severity: governance.SeverityBlocking, Skipped: true},
		},
	})
	c.ObserveAttempt("household_owner", &governance.RetryAttempt{Event: governance.EventTimeout})
	c.ObserveAttempt("household_owner", nil)

	am, rm := c.attemptMetrics, c.ruleMetrics
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"proposed attempts", testutil.ToFloat64(am.attemptsTotal.WithLabelValues("proposed")), 2},
		{"timeouts", testutil.ToFloat64(am.attemptsTotal.WithLabelValues("timeout")), 1},
		{"blocking failure", testutil.ToFloat64(rm.failuresTotal.WithLabelValues("elevation_threat", "blocking")), 1},
		{"advisory failure", testutil.ToFloat64(rm.failuresTotal.WithLabelValues("coherence", "advisory")), 1},
		{"required fields failure", testutil.ToFloat64(rm.failuresTotal.WithLabelValues("required_fields", "blocking")), 1},
		{"skip", testutil.ToFloat64(rm.skipsTotal.WithLabelValues("elevation_threat")), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if n := testutil.CollectAndCount(am.proposeDuration); n != 2 {
		t.Errorf("propose duration series = %d, want 2", n)
	}
}

func TestCollector_ObserveDecision(t *testing.T) {
	c := newTestCollector()

	records := []*trace.Record{
		{
			AgentType: "household_owner",
			Outcome:   governance.OutcomeApproved,
			Attempts:  make([]governance.RetryAttempt, 1),
			Command:   &governance.AdmissibleCommand{SkillID: "elevate_house"},
		},
		{
			AgentType: "household_owner",
			Outcome:   governance.OutcomeRetryExhaustedFallback,
			Attempts:  make([]governance.RetryAttempt, 3),
			Command:   &governance.AdmissibleCommand{SkillID: "do_nothing", Fallback: true},
		},
		{
			AgentType: "renter",
			Outcome:   governance.OutcomeExecutionFailed,
			Attempts:  make([]governance.RetryAttempt, 1),
			Command:   &governance.AdmissibleCommand{SkillID: "relocate"},
		},
		nil,
	}
	for _, r := range records {
		c.ObserveDecision(r)
	}

	dm := c.decisionMetrics
	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"approved", testutil.ToFloat64(dm.decisionsTotal.WithLabelValues("household_owner", "APPROVED")), 1},
		{"exhausted", testutil.ToFloat64(dm.decisionsTotal.WithLabelValues("household_owner", "RETRY_EXHAUSTED_FALLBACK")), 1},
		{"fallback command", testutil.ToFloat64(dm.commandsTotal.WithLabelValues("do_nothing", "true")), 1},
		{"accepted command", testutil.ToFloat64(dm.commandsTotal.WithLabelValues("elevate_house", "false")), 1},
		{"execution failure", testutil.ToFloat64(dm.executionFailures.WithLabelValues("renter")), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	expected := `
# HELP test_broker_decision_attempts Number of propose attempts per decision
# TYPE test_broker_decision_attempts histogram
test_broker_decision_attempts_bucket{outcome="RETRY_EXHAUSTED_FALLBACK",le="1"} 0
test_broker_decision_attempts_bucket{outcome="RETRY_EXHAUSTED_FALLBACK",le="2"} 0
test_broker_decision_attempts_bucket{outcome="RETRY_EXHAUSTED_FALLBACK",le="3"} 1
test_broker_decision_attempts_bucket{outcome="RETRY_EXHAUSTED_FALLBACK",le="4"} 1
test_broker_decision_attempts_bucket{outcome="RETRY_EXHAUSTED_FALLBACK",le="5"} 1
test_broker_decision_attempts_bucket{outcome="RETRY_EXHAUSTED_FALLBACK",le="6"} 1
test_broker_decision_attempts_bucket{outcome="RETRY_EXHAUSTED_FALLBACK",le="7"} 1
test_broker_decision_attempts_bucket{outcome="RETRY_EXHAUSTED_FALLBACK",le="8"} 1
test_broker_decision_attempts_bucket{outcome="RETRY_EXHAUSTED_FALLBACK",le="9"} 1
test_broker_decision_attempts_bucket{outcome="RETRY_EXHAUSTED_FALLBACK",le="10"} 1
test_broker_decision_attempts_bucket{outcome="RETRY_EXHAUSTED_FALLBACK",le="+Inf"} 1
test_broker_decision_attempts_sum{outcome="RETRY_EXHAUSTED_FALLBACK"} 3
test_broker_decision_attempts_count{outcome="RETRY_EXHAUSTED_FALLBACK"} 1
`
	dm.attempts.DeleteLabelValues("APPROVED")
	dm.attempts.DeleteLabelValues("EXECUTION_FAILED")
	if err := testutil.CollectAndCompare(dm.attempts, strings.NewReader(expected)); err != nil {
		t.Errorf("attempts histogram mismatch: %v", err)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := newTestCollector()
	c.ObserveDecision(&trace.Record{
		AgentType: "household_owner",
		Outcome:   governance.OutcomeApproved,
		Attempts:  make([]governance.RetryAttempt, 1),
		Command:   &governance.AdmissibleCommand{SkillID: "do_nothing"},
	})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `test_broker_decisions_total{agent_type="household_owner",outcome="APPROVED"} 1`) {
		t.Errorf("decision counter missing from exposition:\n%s", rec.Body.String())
	}
}

func TestCollector_Serve(t *testing.T) {
	if _, err := newTestCollector().Serve("not-an-address", "/metrics"); err == nil {
		t.Error("Serve() should fail on a bad address")
	}

	c := newTestCollector()
	srv, err := c.Serve("127.0.0.1:0", "/metrics")
	if err != nil {
		t.Fatalf("Serve() error = %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "test_broker") {
		t.Errorf("unexpected response %d: %s", resp.StatusCode, body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}

	if _, err := http.Get("http://" + srv.Addr() + "/metrics"); err == nil {
		t.Error("server still accepting scrapes after Shutdown")
	}
}
