package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/WenyuChiou/WAGF-sub003/pkg/environment"
	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
	"github.com/WenyuChiou/WAGF-sub003/pkg/skills"
)

func newEnv(t *testing.T, shared map[string]float64) *Environment {
	t.Helper()
	reg, err := skills.NewRegistry([]skills.Definition{
		{ID: "do_nothing"},
		{ID: "elevate_house", Effects: map[string]any{"elevated": true}, Costs: map[string]float64{"subsidy_pool": 1}},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	env, err := New(reg, []environment.Agent{
		{ID: "h1", Type: "household_owner", Attrs: map[string]any{"income": 50000}},
		{ID: "h2", Type: "household_owner"},
	}, shared)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return env
}

func TestEnvironment_ApplyAndSnapshot(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t, map[string]float64{"subsidy_pool": 1})
	env.SetStep(3)

	res, err := env.Apply(ctx, "h1", &governance.AdmissibleCommand{SkillID: "elevate_house"})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !res.Success || res.StateDelta["elevated"] != true || res.SharedDelta["subsidy_pool"] != -1 {
		t.Errorf("unexpected result %+v", res)
	}

	s, err := env.Snapshot(ctx, "h1")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if s.Step != 3 || s.Attrs["elevated"] != true || s.Shared["subsidy_pool"] != 0 {
		t.Errorf("unexpected snapshot %+v", s)
	}
}

func TestEnvironment_FailedApplyLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t, map[string]float64{"subsidy_pool": 0})

	_, err := env.Apply(ctx, "h2", &governance.AdmissibleCommand{SkillID: "elevate_house"})
	if !errors.Is(err, governance.ErrExecution) {
		t.Fatalf("Apply() error = %v, want ErrExecution", err)
	}

	s, _ := env.Snapshot(ctx, "h2")
	if _, ok := s.Attrs["elevated"]; ok {
		t.Error("failed apply changed agent attributes")
	}
	if env.Shared()["subsidy_pool"] != 0 {
		t.Error("failed apply changed shared resources")
	}
}

func TestEnvironment_SnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t, nil)

	s, _ := env.Snapshot(ctx, "h1")
	s.Attrs["income"] = 0

	again, _ := env.Snapshot(ctx, "h1")
	if again.Attrs["income"] != 50000 {
		t.Error("mutating a snapshot changed the environment")
	}
}

func TestEnvironment_Isolated(t *testing.T) {
	if !newEnv(t, nil).Isolated() {
		t.Error("environment without shared resources should be isolated")
	}
	if newEnv(t, map[string]float64{"subsidy_pool": 3}).Isolated() {
		t.Error("environment with shared resources should not be isolated")
	}
}

func TestEnvironment_UnknownAgent(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t, nil)

	if _, err := env.Snapshot(ctx, "ghost"); err == nil {
		t.Error("expected error for unknown agent snapshot")
	}
	if _, err := env.Apply(ctx, "ghost", &governance.AdmissibleCommand{SkillID: "do_nothing"}); !errors.Is(err, governance.ErrExecution) {
		t.Errorf("Apply() error = %v, want ErrExecution", err)
	}

	agents, _ := env.Agents(ctx)
	if len(agents) != 2 || agents[0].ID != "h1" || agents[1].ID != "h2" {
		t.Errorf("Agents() = %+v, want h1, h2 in order", agents)
	}
}
