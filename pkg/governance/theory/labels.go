package theory

import (
	"fmt"
	"strconv"
	"strings"
)

// Level is an ordinal construct rating on a five point scale.
type Level int

const (
	LevelUnknown  Level = 0
	LevelVeryLow  Level = 1
	LevelLow      Level = 2
	LevelMedium   Level = 3
	LevelHigh     Level = 4
	LevelVeryHigh Level = 5
)

var levelNames = map[Level]string{
	LevelVeryLow:  "VL",
	LevelLow:      "L",
	LevelMedium:   "M",
	LevelHigh:     "H",
	LevelVeryHigh: "VH",
}

// String returns the short label (VL, L, M, H, VH).
func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return "?"
}

// Valid reports whether l is on the scale.
func (l Level) Valid() bool {
	return l >= LevelVeryLow && l <= LevelVeryHigh
}

var labelAliases = map[string]Level{
	"vl":        LevelVeryLow,
	"verylow":   LevelVeryLow,
	"l":         LevelLow,
	"low":       LevelLow,
	"m":         LevelMedium,
	"med":       LevelMedium,
	"medium":    LevelMedium,
	"moderate":  LevelMedium,
	"h":         LevelHigh,
	"high":      LevelHigh,
	"vh":        LevelVeryHigh,
	"veryhigh":  LevelVeryHigh,
	"extreme":   LevelVeryHigh,
	"extremely": LevelVeryHigh,
}

// ParseLevel parses a construct label. It accepts the short forms (VL..VH),
// spelled-out forms in any case with spaces, dashes or underscores
// ("very-high", "Very High") and the digits 1-5.
func ParseLevel(label string) (Level, error) {
	s := strings.ToLower(strings.TrimSpace(label))
	if s == "" {
		return LevelUnknown, fmt.Errorf("empty label")
	}
	if n, err := strconv.Atoi(s); err == nil {
		l := Level(n)
		if !l.Valid() {
			return LevelUnknown, fmt.Errorf("label %q out of range 1-5", label)
		}
		return l, nil
	}
	key := strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)
	if l, ok := labelAliases[key]; ok {
		return l, nil
	}
	return LevelUnknown, fmt.Errorf("unrecognized label %q", label)
}

// MustParseLevel is ParseLevel for constants in configuration and tests.
func MustParseLevel(label string) Level {
	l, err := ParseLevel(label)
	if err != nil {
		panic(err)
	}
	return l
}
