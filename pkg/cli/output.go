package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
	"github.com/WenyuChiou/WAGF-sub003/pkg/trace"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText renders terminal tables (default).
	FormatText OutputFormat = "text"
	// FormatMarkdown renders GitHub-flavoured Markdown tables.
	FormatMarkdown OutputFormat = "markdown"
	// FormatJSON is indented JSON output.
	FormatJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case FormatText, FormatMarkdown, FormatJSON:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, markdown or json)", s)
	}
}

// WriteJSON writes data as indented JSON.
func WriteJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

func render(w io.Writer, t table.Writer, format OutputFormat) error {
	var out string
	if format == FormatMarkdown {
		out = t.RenderMarkdown()
	} else {
		out = t.Render()
	}
	_, err := fmt.Fprintln(w, out)
	return err
}

func percent(n, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(n)/float64(total)*100)
}

// RenderSummary writes an outcome table followed by a rule failure table.
func RenderSummary(w io.Writer, s *trace.Summary, format OutputFormat) error {
	if format == FormatJSON {
		return WriteJSON(w, s)
	}

	outcomes := newTable("Outcomes")
	outcomes.AppendHeader(table.Row{"Outcome", "Decisions", "Share"})
	for _, o := range governance.Outcomes {
		n := s.ByOutcome[o]
		if n == 0 {
			continue
		}
		outcomes.AppendRow(table.Row{o, n, percent(n, s.Records)})
	}
	outcomes.AppendFooter(table.Row{"Total", s.Records, fmt.Sprintf("%.2f attempts/decision", s.MeanAttempts())})
	outcomes.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	if err := render(w, outcomes, format); err != nil {
		return err
	}

	if len(s.RuleFailures) == 0 && s.ParseErrors+s.Timeouts+s.UnknownSkills == 0 {
		return nil
	}

	failures := newTable("Failures")
	failures.AppendHeader(table.Row{"Cause", "Failures", "Primary"})
	rules := make([]string, 0, len(s.RuleFailures))
	for id := range s.RuleFailures {
		rules = append(rules, id)
	}
	sort.Slice(rules, func(i, j int) bool {
		if s.RuleFailures[rules[i]] != s.RuleFailures[rules[j]] {
			return s.RuleFailures[rules[i]] > s.RuleFailures[rules[j]]
		}
		return rules[i] < rules[j]
	})
	for _, id := range rules {
		failures.AppendRow(table.Row{id, s.RuleFailures[id], s.PrimaryFailures[id]})
	}
	for _, ev := range []struct {
		name string
		n    int
	}{
		{string(governance.EventParseError), s.ParseErrors},
		{string(governance.EventTimeout), s.Timeouts},
		{string(governance.EventUnknownSkill), s.UnknownSkills},
	} {
		if ev.n > 0 {
			failures.AppendRow(table.Row{ev.name, ev.n, "-"})
		}
	}
	failures.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	return render(w, failures, format)
}

// RenderRecords writes one row per trace record.
func RenderRecords(w io.Writer, records []*trace.Record, format OutputFormat) error {
	if format == FormatJSON {
		return WriteJSON(w, records)
	}

	t := newTable("")
	t.AppendHeader(table.Row{"Step", "Agent", "Outcome", "Skill", "Attempts", "Primary failure", "Error"})
	for _, r := range records {
		skill := ""
		if r.Command != nil {
			skill = r.Command.SkillID
			if r.Command.Fallback {
				skill += " (fallback)"
			}
		}
		primary := ""
		for i := len(r.Attempts) - 1; i >= 0; i-- {
			if p, ok := governance.PrimaryFailure(r.Attempts[i].Results); ok {
				primary = p.RuleID
				break
			}
		}
		t.AppendRow(table.Row{r.Step, r.AgentID, r.Outcome, skill, len(r.Attempts), primary, r.Error})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 7, WidthMax: 48},
	})
	return render(w, t, format)
}
