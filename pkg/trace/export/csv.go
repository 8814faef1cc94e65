package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
	"github.com/WenyuChiou/WAGF-sub003/pkg/trace"
)

// CSVExporter flattens each record into one row. Attempts collapse into
// counts plus the ordered list of primary failing rules.
type CSVExporter struct {
	// IncludeHeader writes a header row first.
	IncludeHeader bool
}

// NewCSVExporter creates a CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// Header returns the column names.
func (e *CSVExporter) Header() []string {
	return []string{
		"id", "run_id", "step", "agent_id", "agent_type",
		"outcome", "attempts", "parse_errors", "timeouts",
		"proposed_skills", "primary_failures",
		"command_skill", "fallback", "executed",
		"error_kind", "error", "rule_set_version",
		"recorded_at", "duration_ms",
	}
}

// Export writes records as CSV.
func (e *CSVExporter) Export(ctx context.Context, records []*trace.Record, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(e.Header()); err != nil {
			return trace.NewExportError("csv", len(records), err)
		}
	}
	for _, record := range records {
		if err := writer.Write(e.Row(record)); err != nil {
			return trace.NewExportError("csv", len(records), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return trace.NewExportError("csv", len(records), err)
	}
	return nil
}

// ExportStream writes records from a channel as CSV, flushing every 100
// rows.
func (e *CSVExporter) ExportStream(ctx context.Context, recordsCh <-chan *trace.Record, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(e.Header()); err != nil {
			return trace.NewExportError("csv", 0, err)
		}
	}

	recordCount := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case record, ok := <-recordsCh:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return trace.NewExportError("csv", recordCount, err)
				}
				return nil
			}
			if err := writer.Write(e.Row(record)); err != nil {
				return trace.NewExportError("csv", recordCount, err)
			}
			recordCount++

			if recordCount%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return trace.NewExportError("csv", recordCount, err)
				}
			}
		}
	}
}

// Row flattens one record.
func (e *CSVExporter) Row(r *trace.Record) []string {
	var proposed, primary []string
	for _, a := range r.Attempts {
		if a.Proposal != nil {
			proposed = append(proposed, a.Proposal.SkillID)
		}
		if f, ok := governance.PrimaryFailure(a.Results); ok {
			primary = append(primary, f.RuleID)
		}
	}

	var commandSkill, fallback string
	if r.Command != nil {
		commandSkill = r.Command.SkillID
		fallback = strconv.FormatBool(r.Command.Fallback)
	}
	executed := strconv.FormatBool(r.Execution != nil && r.Execution.Success)

	recordedAt := ""
	if !r.RecordedAt.IsZero() {
		recordedAt = r.RecordedAt.Format(time.RFC3339Nano)
	}

	return []string{
		r.ID,
		r.RunID,
		strconv.Itoa(r.Step),
		r.AgentID,
		r.AgentType,
		string(r.Outcome),
		strconv.Itoa(r.AttemptCount()),
		strconv.Itoa(r.EventCount(governance.EventParseError)),
		strconv.Itoa(r.EventCount(governance.EventTimeout)),
		strings.Join(proposed, ";"),
		strings.Join(primary, ";"),
		commandSkill,
		fallback,
		executed,
		r.ErrorKind,
		r.Error,
		r.RuleSetVersion,
		recordedAt,
		strconv.FormatInt(r.Duration.Milliseconds(), 10),
	}
}
