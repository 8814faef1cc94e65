package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/WenyuChiou/WAGF-sub003/pkg/adapters/openai"
	"github.com/WenyuChiou/WAGF-sub003/pkg/adapters/scripted"
	"github.com/WenyuChiou/WAGF-sub003/pkg/cli"
	"github.com/WenyuChiou/WAGF-sub003/pkg/config"
	"github.com/WenyuChiou/WAGF-sub003/pkg/environment/memory"
	"github.com/WenyuChiou/WAGF-sub003/pkg/environment/sqlitestate"
	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
	"github.com/WenyuChiou/WAGF-sub003/pkg/governance/broker"
	"github.com/WenyuChiou/WAGF-sub003/pkg/simulation"
	"github.com/WenyuChiou/WAGF-sub003/pkg/skills"
	"github.com/WenyuChiou/WAGF-sub003/pkg/telemetry/logging"
	"github.com/WenyuChiou/WAGF-sub003/pkg/telemetry/metrics"
	"github.com/WenyuChiou/WAGF-sub003/pkg/telemetry/tracing"
	"github.com/WenyuChiou/WAGF-sub003/pkg/trace"
	"github.com/WenyuChiou/WAGF-sub003/pkg/trace/audit"
	"github.com/WenyuChiou/WAGF-sub003/pkg/trace/recorder"
	"github.com/WenyuChiou/WAGF-sub003/pkg/trace/storage"
)

var runFlags struct {
	runID      string
	steps      int
	workers    int
	logLevel   string
	output     string
	dryRun     bool
	noProgress bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a governed simulation",
	Long: `Run the simulation described by the configuration.

Each step asks the model adapter for every agent's decision, governs it
through the broker, applies the admissible command to the environment and
records one trace record per agent-step.

Examples:
  # Run with default config
  wagf run

  # Run a custom config for ten steps with four workers
  wagf run --config examples/flood/wagf.yaml --steps 10 --workers 4

  # Validate config and build the rule pipeline without running
  wagf run --dry-run`,
	RunE: runSimulation,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.runID, "run-id", "", "run id stamped into traces (default: random UUID)")
	runCmd.Flags().IntVar(&runFlags.steps, "steps", 0, "override simulation.steps")
	runCmd.Flags().IntVar(&runFlags.workers, "workers", 0, "override simulation.workers")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().StringVarP(&runFlags.output, "output", "o", "text", "summary format (text, markdown, json)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config and build the pipeline without running")
	runCmd.Flags().BoolVar(&runFlags.noProgress, "no-progress", false, "do not draw the step progress bar")
}

func runSimulation(cmd *cobra.Command, args []string) error {
	ctx, cancel := cli.SetupSignalHandler(cmd.Context())
	defer cancel()

	format, err := cli.ParseOutputFormat(runFlags.output)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	// Apply flag overrides
	if runFlags.steps > 0 {
		cfg.Simulation.Steps = runFlags.steps
	}
	if runFlags.workers > 0 {
		cfg.Simulation.Workers = runFlags.workers
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Config{
		Level:         cfg.Telemetry.Logging.Level,
		Format:        cfg.Telemetry.Logging.Format,
		AddSource:     cfg.Telemetry.Logging.AddSource,
		RedactSecrets: cfg.Telemetry.Logging.RedactAPIKeys == nil || *cfg.Telemetry.Logging.RedactAPIKeys,
		Writer:        cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	slog.SetDefault(logger)

	out := cmd.OutOrStdout()

	registry, err := cfg.BuildRegistry()
	if err != nil {
		return err
	}
	th, err := cfg.BuildTheory()
	if err != nil {
		return err
	}
	pipeline, err := cfg.BuildPipeline(registry, th)
	if err != nil {
		return err
	}

	if runFlags.dryRun {
		fmt.Fprintf(out, "✓ Configuration valid (%d skills, %d rules, %d agents, rule set %s)\n",
			len(registry.IDs()), len(pipeline.IDs()), len(cfg.Agents), cfg.RuleSetVersion)
		return nil
	}

	tp, err := tracing.New(ctx, tracing.Config{
		Enabled:     cfg.Telemetry.Tracing.Enabled,
		Exporter:    cfg.Telemetry.Tracing.Exporter,
		Endpoint:    cfg.Telemetry.Tracing.Endpoint,
		Insecure:    cfg.Telemetry.Tracing.Insecure,
		SampleRatio: cfg.Telemetry.Tracing.SampleRatio,
		Writer:      cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			slog.Warn("failed to flush spans", "error", err)
		}
	}()

	env, closeEnv, err := openEnvironment(ctx, cfg, registry)
	if err != nil {
		return err
	}
	defer closeEnv()

	store, err := openTraceStorage(cfg.Trace.Backend, cfg.ResolvePath(cfg.Trace.Path), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	rec := recorder.NewRecorder(store, cfg.RecorderConfig())
	defer rec.Close()

	runID := runFlags.runID
	if runID == "" {
		runID = uuid.New().String()
	}

	var auditor *audit.Auditor
	if cfg.Trace.AuditSchedule != "" {
		auditor = audit.New(store, audit.Config{Schedule: cfg.Trace.AuditSchedule, RunID: runID}, nil)
		if err := auditor.Start(ctx); err != nil {
			return err
		}
		defer auditor.Stop()
	}

	proposer, err := newProposer(cfg)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector(metrics.Config{}, nil)
	if cfg.Telemetry.Metrics.Enabled {
		srv, err := collector.Serve(cfg.Telemetry.Metrics.ListenAddress, cfg.Telemetry.Metrics.Path)
		if err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer srv.Shutdown(context.Background())
		slog.Info("serving metrics", "addr", srv.Addr(), "path", cfg.Telemetry.Metrics.Path)
	}

	b, err := broker.New(cfg.BrokerConfig(), registry, pipeline, proposer, env,
		broker.WithRecorder(rec),
		broker.WithObserver(collector),
	)
	if err != nil {
		return err
	}

	builder, err := simulation.NewSnapshotBuilder(env, cfg.Simulation.PromptTemplate)
	if err != nil {
		return err
	}

	var progress *cli.StepProgress
	running := trace.NewSummary()
	if !runFlags.noProgress && format == cli.FormatText {
		progress = cli.NewStepProgress(cmd.ErrOrStderr())
	}

	runner, err := simulation.NewRunner(cfg.SimulationConfig(runID), b, env,
		simulation.WithContextBuilder(builder),
		simulation.WithStepFunc(func(step int, decisions []*broker.Decision) {
			if progress == nil {
				return
			}
			for _, d := range decisions {
				if d != nil && d.Record != nil {
					running.Add(d.Record)
				}
			}
			progress.Step(running)
		}),
	)
	if err != nil {
		return err
	}

	if progress != nil {
		progress.Start(cfg.Simulation.Steps)
	}
	summary, runErr := runner.Run(ctx)
	if progress != nil {
		progress.Finish()
	}

	// Drain queued records before reporting.
	if err := rec.Close(); err != nil {
		slog.Warn("failed to close trace recorder", "error", err)
	}
	if auditor != nil {
		auditor.Stop()
		if _, err := auditor.RunOnce(context.Background()); err != nil {
			slog.Warn("final audit failed", "error", err)
		}
	}

	if err := printRunSummary(out, summary, cfg, format); err != nil {
		return err
	}
	if _, dropped, failed := rec.Stats(); dropped > 0 || failed > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d trace records dropped, %d failed\n", dropped, failed)
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return fmt.Errorf("run %s interrupted after %d steps: %w", runID, summary.Steps, runErr)
		}
		return cli.NewCommandError("run", runErr)
	}
	return nil
}

func printRunSummary(w io.Writer, s *simulation.RunSummary, cfg *config.Config, format cli.OutputFormat) error {
	if format == cli.FormatJSON {
		return cli.WriteJSON(w, s)
	}
	status := "complete"
	if s.Cancelled {
		status = "cancelled"
	}
	fmt.Fprintf(w, "Run %s %s: %d/%d steps, %d decisions, %d errors in %s (rule set %s)\n",
		s.RunID, status, s.Steps, cfg.Simulation.Steps, s.Decisions, s.Errors,
		s.Duration.Round(time.Millisecond), cfg.RuleSetVersion)
	return cli.RenderSummary(w, s.Outcomes, format)
}

// openEnvironment returns the configured environment and a function that
// releases it.
func openEnvironment(ctx context.Context, cfg *config.Config, registry *skills.Registry) (envBackend, func(), error) {
	agents := cfg.EnvironmentAgents()
	switch cfg.Environment.Backend {
	case "sqlite":
		env, err := sqlitestate.Open(ctx, sqlitestate.Config{
			Path:        cfg.ResolvePath(cfg.Environment.Path),
			BusyTimeout: cfg.Environment.BusyTimeout,
		}, registry, agents, cfg.Environment.Resources)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite environment: %w", err)
		}
		return env, func() {
			if err := env.Close(); err != nil {
				slog.Warn("failed to close environment", "error", err)
			}
		}, nil
	case "memory", "":
		env, err := memory.New(registry, agents, cfg.Environment.Resources)
		if err != nil {
			return nil, nil, err
		}
		return env, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported environment backend: %s", cfg.Environment.Backend)
	}
}

// envBackend is an environment the runner can advance and the snapshot
// builder can read.
type envBackend interface {
	simulation.Environment
	governance.StateReader
}

// openTraceStorage opens a trace backend. cfg supplies backend tuning and
// may be nil.
func openTraceStorage(backend, path string, cfg *config.Config) (trace.Storage, error) {
	switch backend {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "jsonl", "":
		sync := cfg != nil && cfg.Trace.SyncWrites
		s, err := storage.NewJSONLStorage(storage.JSONLConfig{Path: path, Sync: sync})
		if err != nil {
			return nil, fmt.Errorf("failed to create JSONL storage: %w", err)
		}
		return s, nil
	case "sqlite":
		sc := storage.DefaultSQLiteConfig()
		sc.Path = path
		if cfg != nil && cfg.Trace.WriteTimeout > 0 {
			sc.BusyTimeout = cfg.Trace.WriteTimeout
		}
		s, err := storage.NewSQLiteStorage(sc)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storage: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported trace backend: %s", backend)
	}
}

func newProposer(cfg *config.Config) (governance.Proposer, error) {
	switch cfg.Model.Adapter {
	case "openai":
		return openai.New(cfg.OpenAIConfig(), cfg.Parser())
	case "scripted", "":
		if cfg.Model.Script == "" {
			return nil, errors.New("model.script is required for the scripted adapter")
		}
		return scripted.Load(cfg.ResolvePath(cfg.Model.Script), cfg.Parser())
	default:
		return nil, fmt.Errorf("unsupported model adapter: %s", cfg.Model.Adapter)
	}
}
