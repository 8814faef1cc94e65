package theory

// Irrigation demand skills.
const (
	SkillIncreaseDemand  = "increase_demand"
	SkillMaintainDemand  = "maintain_demand"
	SkillDecreaseDemand  = "decrease_demand"
	SkillAdoptEfficiency = "adopt_efficiency"
)

// Water appraisal dimensions.
const (
	DimWaterScarcity    = "water_scarcity"
	DimAdaptiveCapacity = "adaptive_capacity"
)

func newWaterAppraisal() *tableTheory {
	dims := []dimension{
		{name: DimWaterScarcity, aliases: []string{"wsa", "wsa_label", "scarcity", "water_scarcity_appraisal"}},
		{name: DimAdaptiveCapacity, aliases: []string{"aca", "aca_label", "capacity", "adaptive_capacity_appraisal"}},
	}
	bands := []band{
		{
			match: func(c map[string]Level) bool {
				return c[DimWaterScarcity] >= LevelHigh && c[DimAdaptiveCapacity] >= LevelMedium
			},
			actions: []string{SkillDecreaseDemand, SkillAdoptEfficiency},
		},
		{
			match:   func(c map[string]Level) bool { return c[DimWaterScarcity] >= LevelHigh },
			actions: []string{SkillDecreaseDemand, SkillMaintainDemand},
		},
		{
			match:   func(c map[string]Level) bool { return c[DimWaterScarcity] == LevelMedium },
			actions: []string{SkillMaintainDemand, SkillDecreaseDemand, SkillAdoptEfficiency},
		},
		{
			match:   func(c map[string]Level) bool { return true },
			actions: []string{SkillIncreaseDemand, SkillMaintainDemand},
		},
	}
	return newTableTheory("water_appraisal", dims, []string{"farmer"}, bands)
}
