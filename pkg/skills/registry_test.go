package skills

import (
	"errors"
	"reflect"
	"testing"

	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
)

func testDefinitions() []Definition {
	return []Definition{
		{
			ID:             "do_nothing",
			Description:    "Take no protective action",
			RequiredFields: []string{"threat", "coping"},
		},
		{
			ID:                 "elevate_house",
			Description:        "Raise the house above flood level",
			RequiredFields:     []string{"threat", "coping"},
			EligibleAgentTypes: []string{"household_owner"},
			Aliases:            []string{"elevate", "Elevation"},
			ParameterSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"feet": map[string]any{"type": "number", "minimum": 1, "maximum": 10},
				},
			},
			Effects: map[string]any{"elevated": true},
			Costs:   map[string]float64{"subsidy_pool": 1},
		},
		{
			ID:             "relocate",
			RequiredFields: []string{"threat", "coping"},
		},
	}
}

func TestNewRegistry_Lookup(t *testing.T) {
	r, err := NewRegistry(testDefinitions())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	tests := []struct {
		name   string
		input  string
		wantID string
	}{
		{"canonical", "elevate_house", "elevate_house"},
		{"alias", "elevate", "elevate_house"},
		{"alias any case", "ELEVATION", "elevate_house"},
		{"spaces", "Elevate House", "elevate_house"},
		{"dashes", "do-nothing", "do_nothing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := r.Lookup(tt.input)
			if err != nil {
				t.Fatalf("Lookup(%q) error = %v", tt.input, err)
			}
			if def.ID != tt.wantID {
				t.Errorf("Lookup(%q) = %q, want %q", tt.input, def.ID, tt.wantID)
			}
		})
	}
}

func TestRegistry_LookupUnknown(t *testing.T) {
	r, _ := NewRegistry(testDefinitions())

	_, err := r.Lookup("build_levee")
	if err == nil {
		t.Fatal("expected error for unknown skill")
	}
	if !errors.Is(err, governance.ErrUnknownSkill) {
		t.Errorf("error %v does not match ErrUnknownSkill", err)
	}
	var use *governance.UnknownSkillError
	if !errors.As(err, &use) || use.SkillID != "build_levee" {
		t.Errorf("expected UnknownSkillError for build_levee, got %v", err)
	}
}

func TestRegistry_Eligibility(t *testing.T) {
	r, _ := NewRegistry(testDefinitions())

	if !r.IsEligible("elevate_house", "household_owner") {
		t.Error("owner should be eligible to elevate")
	}
	if r.IsEligible("elevate_house", "household_renter") {
		t.Error("renter should not be eligible to elevate")
	}
	if !r.IsEligible("do_nothing", "household_renter") {
		t.Error("unrestricted skill should be eligible for every type")
	}
	if r.IsEligible("build_levee", "household_owner") {
		t.Error("unknown skill should never be eligible")
	}

	got := r.Options("household_renter")
	want := []string{"do_nothing", "relocate"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Options(renter) = %v, want %v", got, want)
	}
}

func TestRegistry_DuplicateNames(t *testing.T) {
	defs := testDefinitions()
	defs[2].Aliases = []string{"elevate"}

	if _, err := NewRegistry(defs); err == nil {
		t.Fatal("expected error for duplicate alias")
	}
}

func TestRegistry_MissingID(t *testing.T) {
	if _, err := NewRegistry([]Definition{{Description: "nameless"}}); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestDefinition_ValidateParameters(t *testing.T) {
	r, _ := NewRegistry(testDefinitions())
	def, _ := r.Lookup("elevate_house")

	if !def.HasSchema() {
		t.Fatal("expected compiled schema")
	}
	if err := def.ValidateParameters(map[string]any{"feet": 3.0}); err != nil {
		t.Errorf("valid parameters rejected: %v", err)
	}
	if err := def.ValidateParameters(nil); err != nil {
		t.Errorf("empty parameters rejected: %v", err)
	}
	if err := def.ValidateParameters(map[string]any{"feet": 40.0}); err == nil {
		t.Error("expected schema violation for feet=40")
	}

	plain, _ := r.Lookup("relocate")
	if err := plain.ValidateParameters(map[string]any{"anything": "goes"}); err != nil {
		t.Errorf("schema-less skill rejected parameters: %v", err)
	}
}

func TestRegistry_BadSchema(t *testing.T) {
	defs := []Definition{{
		ID:              "broken",
		ParameterSchema: map[string]any{"type": 12},
	}}
	if _, err := NewRegistry(defs); err == nil {
		t.Fatal("expected schema compile error")
	}
}
