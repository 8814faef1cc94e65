package follow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
	"github.com/WenyuChiou/WAGF-sub003/pkg/trace"
	"github.com/WenyuChiou/WAGF-sub003/pkg/trace/storage"
)

func rec(i int, agent string) *trace.Record {
	return &trace.Record{ID: fmt.Sprintf("r%d", i), RunID: "run", Step: i, AgentID: agent, Outcome: governance.OutcomeApproved}
}

func collect(t *testing.T, f *Follower) (<-chan *trace.Record, context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan *trace.Record, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- f.Follow(ctx, func(r *trace.Record) error {
			out <- r
			return nil
		})
	}()
	return out, cancel, errCh
}

func next(t *testing.T, ch <-chan *trace.Record) *trace.Record {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a followed record")
		return nil
	}
}

func TestFollower_EmitsExistingAndAppended(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")
	store, err := storage.NewJSONLStorage(storage.JSONLConfig{Path: path})
	if err != nil {
		t.Fatalf("NewJSONLStorage() error = %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	store.Store(ctx, rec(0, "h1"))

	out, cancel, errCh := collect(t, New(path, &Config{FromStart: true, PollInterval: 50 * time.Millisecond}))

	if got := next(t, out); got.ID != "r0" {
		t.Errorf("first record = %s, want r0", got.ID)
	}
	store.Store(ctx, rec(1, "h1"))
	store.Store(ctx, rec(2, "h2"))
	if got := next(t, out); got.ID != "r1" {
		t.Errorf("second record = %s, want r1", got.ID)
	}
	if got := next(t, out); got.ID != "r2" {
		t.Errorf("third record = %s, want r2", got.ID)
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Errorf("Follow() error = %v", err)
	}
}

func TestFollower_FromEndWithFilterAndPartialLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")
	if err := os.WriteFile(path, []byte(`{"id":"old","agent_id":"h1"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, cancel, errCh := collect(t, New(path, &Config{
		PollInterval: 50 * time.Millisecond,
		Query:        &trace.Query{AgentID: "h1"},
	}))
	defer func() {
		cancel()
		<-errCh
	}()

	// Give the follower time to record the starting offset.
	time.Sleep(100 * time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	f.WriteString(`{"id":"skip","agent_id":"h2"}` + "\n")
	f.WriteString(`{"id":"new","agent_`)
	time.Sleep(120 * time.Millisecond)
	f.WriteString(`id":"h1"}` + "\n")

	if got := next(t, out); got.ID != "new" {
		t.Errorf("record = %s, want new", got.ID)
	}
	select {
	case r := <-out:
		t.Errorf("unexpected extra record %s", r.ID)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestFollower_WaitsForMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "later.jsonl")
	out, cancel, errCh := collect(t, New(path, &Config{FromStart: true, PollInterval: 50 * time.Millisecond}))
	defer func() {
		cancel()
		<-errCh
	}()

	if err := os.WriteFile(path, []byte(`{"id":"first"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := next(t, out); got.ID != "first" {
		t.Errorf("record = %s, want first", got.ID)
	}
}
