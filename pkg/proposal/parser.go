// Package proposal turns raw model output into a structured SkillProposal.
//
// Models rarely answer with bare JSON. The parser finds the first balanced
// JSON object in the text (inside code fences or surrounded by prose), then
// reads the skill, reasoning constructs, confidence and parameters from it
// with a tolerant set of key names. Anything it cannot structure becomes a
// *governance.ParseError with a short, stable reason.
package proposal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
)

// Stable parse failure reasons. They appear verbatim in retry feedback.
const (
	ReasonEmpty         = "empty response"
	ReasonNoJSON        = "no JSON object found"
	ReasonInvalidJSON   = "invalid JSON"
	ReasonNoSkill       = "no skill or decision field"
	ReasonBadDecision   = "decision is not a valid option"
	ReasonBadConfidence = "confidence is not a number"
	ReasonConfidence    = "confidence is outside 0..1"
)

var (
	skillKeys      = []string{"skill", "skill_id", "skill_name", "decision", "action", "choice"}
	reasoningKeys  = []string{"reasoning", "constructs", "appraisal", "appraisals", "assessment"}
	parameterKeys  = []string{"parameters", "params", "args", "arguments"}
	confidenceKeys = []string{"confidence", "certainty"}

	// labelKeys are read from nested construct objects such as
	// {"threat": {"label": "H", "reason": "..."}}.
	labelKeys = []string{"label", "level", "rating", "value"}

	// constructSuffixes are stripped from reasoning keys so "threat_label"
	// and "threat_appraisal" both read as "threat".
	constructSuffixes = []string{"_label", "_appraisal", "_level"}
)

// Parser extracts proposals. The zero value is usable.
type Parser struct {
	// Aliases maps normalised construct keys to canonical construct names,
	// e.g. "tp" to "threat".
	Aliases map[string]string
}

// NewParser returns a parser with the given construct aliases. Alias keys
// are normalised the same way reasoning keys are.
func NewParser(aliases map[string]string) *Parser {
	p := &Parser{Aliases: make(map[string]string, len(aliases))}
	for k, v := range aliases {
		p.Aliases[normalizeKey(k)] = v
	}
	return p
}

// Parse structures raw model output. options is the agent's ordered skill
// list; a numeric decision n selects options[n-1].
func (p *Parser) Parse(raw string, options []string) (*governance.SkillProposal, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, governance.NewParseError(ReasonEmpty, raw, nil)
	}

	obj, err := extractObject(raw)
	if err != nil {
		return nil, err
	}

	// Keys differing only in case or separators keep the first in sorted order.
	fields := make(map[string]any, len(obj))
	for _, k := range governance.SortedKeys(obj) {
		nk := normalizeKey(k)
		if _, dup := fields[nk]; !dup {
			fields[nk] = obj[k]
		}
	}

	prop := &governance.SkillProposal{RawText: raw}

	skill, err := readSkill(fields, options, raw)
	if err != nil {
		return nil, err
	}
	prop.SkillID = skill

	prop.Reasoning = p.readReasoning(fields)

	if v, ok := first(fields, confidenceKeys); ok {
		c, ok := toNumber(v)
		if !ok {
			return nil, governance.NewParseError(ReasonBadConfidence, raw, nil)
		}
		if c < 0 || c > 1 {
			return nil, governance.NewParseError(ReasonConfidence, raw, fmt.Errorf("confidence %v", c))
		}
		prop.Confidence = &c
	}

	if v, ok := first(fields, parameterKeys); ok {
		if m, ok := v.(map[string]any); ok && len(m) > 0 {
			prop.Parameters = m
		}
	}

	return prop, nil
}

// extractObject finds and decodes the first balanced JSON object in raw.
func extractObject(raw string) (map[string]any, error) {
	text := stripFences(raw)

	start := strings.IndexByte(text, '{')
	for start >= 0 {
		end := matchBrace(text, start)
		if end < 0 {
			return nil, governance.NewParseError(ReasonInvalidJSON, raw, errors.New("unbalanced braces"))
		}
		var obj map[string]any
		err := json.Unmarshal([]byte(text[start:end+1]), &obj)
		if err == nil {
			return obj, nil
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			return nil, governance.NewParseError(ReasonInvalidJSON, raw, err)
		}
		start += next + 1
	}
	return nil, governance.NewParseError(ReasonNoJSON, raw, nil)
}

// stripFences returns the body of the first ``` fenced block, or s unchanged.
func stripFences(s string) string {
	open := strings.Index(s, "```")
	if open < 0 {
		return s
	}
	body := s[open+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && !strings.Contains(body[:nl], "{") {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		return body[:end]
	}
	return body
}

// matchBrace returns the index of the brace closing the one at start,
// ignoring braces inside JSON strings.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func readSkill(fields map[string]any, options []string, raw string) (string, error) {
	v, ok := first(fields, skillKeys)
	if !ok {
		return "", governance.NewParseError(ReasonNoSkill, raw, nil)
	}

	switch s := v.(type) {
	case string:
		s = strings.TrimSpace(s)
		if s == "" {
			return "", governance.NewParseError(ReasonNoSkill, raw, nil)
		}
		if n, err := strconv.Atoi(s); err == nil {
			return option(n, options, raw)
		}
		return s, nil
	case float64:
		if s != float64(int(s)) {
			return "", governance.NewParseError(ReasonBadDecision, raw, fmt.Errorf("decision %v is not an integer", s))
		}
		return option(int(s), options, raw)
	default:
		return "", governance.NewParseError(ReasonNoSkill, raw, fmt.Errorf("skill has type %T", v))
	}
}

func option(n int, options []string, raw string) (string, error) {
	if n < 1 || n > len(options) {
		return "", governance.NewParseError(ReasonBadDecision, raw, fmt.Errorf("decision %d outside 1..%d", n, len(options)))
	}
	return options[n-1], nil
}

// readReasoning collects construct labels from a nested reasoning object and
// from flat top-level keys. Nested values win.
func (p *Parser) readReasoning(fields map[string]any) map[string]string {
	reserved := make(map[string]bool)
	for _, group := range [][]string{skillKeys, reasoningKeys, parameterKeys, confidenceKeys} {
		for _, k := range group {
			reserved[k] = true
		}
	}
	out := p.labels(fields, reserved)

	if v, ok := first(fields, reasoningKeys); ok {
		if m, ok := v.(map[string]any); ok {
			for c, s := range p.labels(m, nil) {
				out[c] = s
			}
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// labels maps the keys of m to constructs. When several keys name the same
// construct, a key that is the construct name itself beats a suffixed or
// aliased one, and otherwise the first key in sorted order wins.
func (p *Parser) labels(m map[string]any, reserved map[string]bool) map[string]string {
	out := make(map[string]string)
	exact := make(map[string]bool)
	for _, raw := range governance.SortedKeys(m) {
		k := normalizeKey(raw)
		if reserved[k] {
			continue
		}
		s, ok := labelOf(m[raw])
		if !ok {
			continue
		}
		c := p.construct(k)
		direct := c == k
		if _, seen := out[c]; seen && (exact[c] || !direct) {
			continue
		}
		out[c] = s
		exact[c] = direct
	}
	return out
}

func (p *Parser) construct(key string) string {
	if c, ok := p.Aliases[key]; ok {
		return c
	}
	for _, suffix := range constructSuffixes {
		if trimmed := strings.TrimSuffix(key, suffix); trimmed != key && trimmed != "" {
			if c, ok := p.Aliases[trimmed]; ok {
				return c
			}
			return trimmed
		}
	}
	return key
}

// labelOf reads a label from a string, a number or a nested object carrying
// one of labelKeys.
func labelOf(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), true
	case map[string]any:
		keys := governance.SortedKeys(t)
		for _, k := range labelKeys {
			for _, mk := range keys {
				if normalizeKey(mk) == k {
					if s, ok := t[mk].(string); ok && strings.TrimSpace(s) != "" {
						return strings.TrimSpace(s), true
					}
				}
			}
		}
	}
	return "", false
}

func first(fields map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func normalizeKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(k)
}
