package theory

// Protection motivation skills.
const (
	SkillDoNothing    = "do_nothing"
	SkillBuyInsurance = "buy_insurance"
	SkillElevateHouse = "elevate_house"
	SkillRelocate     = "relocate"
)

// PMT dimensions.
const (
	DimThreat = "threat"
	DimCoping = "coping"
)

func newPMT() *tableTheory {
	dims := []dimension{
		{name: DimThreat, aliases: []string{"threat_appraisal", "tp", "tp_label", "threat_level"}},
		{name: DimCoping, aliases: []string{"coping_appraisal", "cp", "cp_label", "coping_level"}},
	}
	bands := []band{
		{
			// Low perceived threat: protective investment is not motivated.
			match:   func(c map[string]Level) bool { return c[DimThreat] <= LevelLow },
			actions: []string{SkillDoNothing, SkillBuyInsurance},
		},
		{
			match:   func(c map[string]Level) bool { return c[DimThreat] == LevelMedium },
			actions: []string{SkillDoNothing, SkillBuyInsurance, SkillElevateHouse},
		},
		{
			// High threat with capacity to act: a protective response is expected.
			match:   func(c map[string]Level) bool { return c[DimCoping] >= LevelMedium },
			actions: []string{SkillBuyInsurance, SkillElevateHouse, SkillRelocate},
		},
		{
			// High threat, low coping: costly structural measures are out of reach.
			match:   func(c map[string]Level) bool { return true },
			actions: []string{SkillDoNothing, SkillBuyInsurance},
		},
	}
	return newTableTheory("pmt", dims, []string{"household_owner", "household_renter"}, bands)
}
