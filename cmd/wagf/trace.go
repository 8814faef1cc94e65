package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/WenyuChiou/WAGF-sub003/pkg/cli"
	"github.com/WenyuChiou/WAGF-sub003/pkg/config"
	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
	"github.com/WenyuChiou/WAGF-sub003/pkg/trace"
	"github.com/WenyuChiou/WAGF-sub003/pkg/trace/export"
	"github.com/WenyuChiou/WAGF-sub003/pkg/trace/follow"
)

var traceFlags struct {
	backend   string
	path      string
	runID     string
	agentID   string
	agentType string
	outcomes  []string
	stepFrom  int
	stepTo    int
	timeRange string
	limit     int
	offset    int
	order     string
	output    string

	// per-command output formats
	queryFormat   string
	summaryFormat string
	exportFormat  string
	fromStart bool
}

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Inspect recorded decision traces",
	Long: `Query, summarize, export and follow the trace records of governed runs.

The store is read from --path when given (".db" and ".sqlite" files are
opened as SQLite, anything else as JSONL), otherwise from the trace section
of the configuration.

Subcommands:
  query    - list records matching filters
  summary  - outcome distribution and rule failures
  export   - write records as json, jsonl or csv
  follow   - stream records as a running simulation appends them`,
}

var traceQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "List trace records",
	Long: `List trace records matching the given filters.

Time Range Format:
  RFC3339 interval format: "start/end"
  Example: "2026-03-01T00:00:00Z/2026-03-02T00:00:00Z"

Examples:
  # Fallbacks of one run
  wagf trace query --run-id r1 --outcome RETRY_EXHAUSTED_FALLBACK

  # Steps 3 to 5 of one agent, newest first
  wagf trace query --agent h7 --step-from 3 --step-to 5 --order desc`,
	RunE: queryTraces,
}

var traceSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize trace outcomes",
	Long:  `Print the outcome distribution, mean attempts and the most frequent rule failures of the matching records.`,
	RunE:  summarizeTraces,
}

var traceExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export trace records",
	Long: `Export matching trace records.

Examples:
  # CSV of one run
  wagf trace export --run-id r1 --format csv -o r1.csv

  # Copy a SQLite store to JSONL
  wagf trace export --path data/traces.db --format jsonl > traces.jsonl`,
	RunE: exportTraces,
}

var traceFollowCmd = &cobra.Command{
	Use:   "follow",
	Short: "Stream trace records from a JSONL file",
	Long: `Print each record appended to a JSONL trace file until interrupted.

Examples:
  # Watch a run in another terminal
  wagf trace follow --path data/traces.jsonl --outcome RETRY_EXHAUSTED_FALLBACK`,
	RunE: followTraces,
}

func init() {
	rootCmd.AddCommand(traceCmd)
	traceCmd.AddCommand(traceQueryCmd, traceSummaryCmd, traceExportCmd, traceFollowCmd)

	pf := traceCmd.PersistentFlags()
	pf.StringVar(&traceFlags.backend, "backend", "", "backend: jsonl, sqlite (inferred from --path when not specified)")
	pf.StringVar(&traceFlags.path, "path", "", "trace file or database (uses config if not specified)")
	pf.StringVar(&traceFlags.runID, "run-id", "", "filter by run ID")
	pf.StringVar(&traceFlags.agentID, "agent", "", "filter by agent ID")
	pf.StringVar(&traceFlags.agentType, "agent-type", "", "filter by agent type")
	pf.StringSliceVar(&traceFlags.outcomes, "outcome", nil, "filter by outcome (repeatable)")
	pf.IntVar(&traceFlags.stepFrom, "step-from", -1, "first step, inclusive")
	pf.IntVar(&traceFlags.stepTo, "step-to", -1, "last step, inclusive")
	pf.StringVar(&traceFlags.timeRange, "time-range", "", "time range (RFC3339 interval: start/end)")

	traceQueryCmd.Flags().IntVar(&traceFlags.limit, "limit", 100, "max results")
	traceQueryCmd.Flags().IntVar(&traceFlags.offset, "offset", 0, "pagination offset")
	traceQueryCmd.Flags().StringVar(&traceFlags.order, "order", "asc", "sort order: asc, desc")
	traceQueryCmd.Flags().StringVar(&traceFlags.queryFormat, "format", "text", "output format: text, markdown, json")

	traceSummaryCmd.Flags().StringVar(&traceFlags.summaryFormat, "format", "text", "output format: text, markdown, json")

	traceExportCmd.Flags().StringVar(&traceFlags.exportFormat, "format", "jsonl", "export format: json, jsonl, csv")
	traceExportCmd.Flags().StringVarP(&traceFlags.output, "output", "o", "", "output file (default: stdout)")

	traceFollowCmd.Flags().BoolVar(&traceFlags.fromStart, "from-start", false, "print records already in the file first")
}

// buildTraceQuery turns the filter flags into a query.
func buildTraceQuery() (*trace.Query, error) {
	query := &trace.Query{
		RunID:     traceFlags.runID,
		AgentID:   traceFlags.agentID,
		AgentType: traceFlags.agentType,
	}
	for _, o := range traceFlags.outcomes {
		outcome, err := governance.ParseOutcome(strings.ToUpper(o))
		if err != nil {
			return nil, err
		}
		query.Outcomes = append(query.Outcomes, outcome)
	}
	if traceFlags.stepFrom >= 0 {
		from := traceFlags.stepFrom
		query.StepFrom = &from
	}
	if traceFlags.stepTo >= 0 {
		to := traceFlags.stepTo
		query.StepTo = &to
	}

	if traceFlags.timeRange != "" {
		parts := strings.Split(traceFlags.timeRange, "/")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid time range format (expected: start/end)")
		}
		since, err := time.Parse(time.RFC3339, parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid start time: %w", err)
		}
		until, err := time.Parse(time.RFC3339, parts[1])
		if err != nil {
			return nil, fmt.Errorf("invalid end time: %w", err)
		}
		query.Since, query.Until = since, until
	}

	if err := query.Validate(); err != nil {
		return nil, err
	}
	return query, nil
}

// traceLocation returns the backend and path to read traces from.
func traceLocation() (backend, path string, err error) {
	backend, path = traceFlags.backend, traceFlags.path
	if path == "" {
		cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
		if err != nil {
			return "", "", err
		}
		path = cfg.ResolvePath(cfg.Trace.Path)
		if backend == "" {
			backend = cfg.Trace.Backend
		}
	}
	if backend == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".db", ".sqlite", ".sqlite3":
			backend = "sqlite"
		default:
			backend = "jsonl"
		}
	}
	if backend == "memory" {
		return "", "", errors.New("memory traces are not persisted; pass --path to read a trace file")
	}
	if _, err := os.Stat(path); err != nil {
		return "", "", fmt.Errorf("trace store %s: %w", path, err)
	}
	return backend, path, nil
}

func openTraceReader() (trace.Storage, error) {
	backend, path, err := traceLocation()
	if err != nil {
		return nil, err
	}
	return openTraceStorage(backend, path, nil)
}

func queryTraces(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(traceFlags.queryFormat)
	if err != nil {
		return err
	}
	query, err := buildTraceQuery()
	if err != nil {
		return err
	}
	query.Limit = traceFlags.limit
	query.Offset = traceFlags.offset
	query.Order = trace.SortOrder(traceFlags.order)
	if err := query.Validate(); err != nil {
		return err
	}

	store, err := openTraceReader()
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Query(cmd.Context(), query)
	if err != nil {
		return cli.NewCommandError("trace query", err)
	}
	out := cmd.OutOrStdout()
	if format != cli.FormatJSON {
		fmt.Fprintf(out, "Total records: %d\n", len(records))
		if len(records) == 0 {
			fmt.Fprintln(out, "No records found.")
			return nil
		}
	}
	return cli.RenderRecords(out, records, format)
}

func summarizeTraces(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(traceFlags.summaryFormat)
	if err != nil {
		return err
	}
	query, err := buildTraceQuery()
	if err != nil {
		return err
	}
	store, err := openTraceReader()
	if err != nil {
		return err
	}
	defer store.Close()

	recordsCh, errCh, err := store.QueryStream(cmd.Context(), query)
	if err != nil {
		return cli.NewCommandError("trace summary", err)
	}
	summary := trace.NewSummary()
	for r := range recordsCh {
		summary.Add(r)
	}
	if err := <-errCh; err != nil {
		return cli.NewCommandError("trace summary", err)
	}
	return cli.RenderSummary(cmd.OutOrStdout(), summary, format)
}

func exportTraces(cmd *cobra.Command, args []string) error {
	exporter, err := export.New(traceFlags.exportFormat)
	if err != nil {
		return err
	}
	query, err := buildTraceQuery()
	if err != nil {
		return err
	}
	store, err := openTraceReader()
	if err != nil {
		return err
	}
	defer store.Close()

	var out io.Writer = cmd.OutOrStdout()
	if traceFlags.output != "" {
		f, err := os.Create(traceFlags.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	// Cancelling releases the producer if the exporter stops early.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	recordsCh, errCh, err := store.QueryStream(ctx, query)
	if err != nil {
		return cli.NewCommandError("trace export", err)
	}
	if err := exporter.ExportStream(ctx, recordsCh, out); err != nil {
		return cli.NewCommandError("trace export", err)
	}
	if err := <-errCh; err != nil {
		return cli.NewCommandError("trace export", err)
	}
	return nil
}

func followTraces(cmd *cobra.Command, args []string) error {
	query, err := buildTraceQuery()
	if err != nil {
		return err
	}
	path := traceFlags.path
	if path == "" {
		cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
		if err != nil {
			return err
		}
		if cfg.Trace.Backend != "jsonl" {
			return fmt.Errorf("follow needs a jsonl trace store, config uses %s", cfg.Trace.Backend)
		}
		path = cfg.ResolvePath(cfg.Trace.Path)
	}

	ctx, cancel := cli.SetupSignalHandler(cmd.Context())
	defer cancel()

	out := cmd.OutOrStdout()
	f := follow.New(path, &follow.Config{
		FromStart:    traceFlags.fromStart,
		PollInterval: time.Second,
		Query:        query,
	})
	return f.Follow(ctx, func(r *trace.Record) error {
		_, err := fmt.Fprintln(out, formatFollowLine(r))
		return err
	})
}

// formatFollowLine renders one record as a single line.
func formatFollowLine(r *trace.Record) string {
	skill := "-"
	if r.Command != nil {
		skill = r.Command.SkillID
		if r.Command.Fallback {
			skill += "*"
		}
	}
	line := fmt.Sprintf("%s step=%d agent=%s outcome=%s skill=%s attempts=%d",
		r.RecordedAt.Format(time.RFC3339), r.Step, r.AgentID, r.Outcome, skill, r.AttemptCount())
	if r.Error != "" {
		line += " error=" + fmt.Sprintf("%q", r.Error)
	}
	return line
}
