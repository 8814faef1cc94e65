// Package audit produces periodic outcome summaries over a trace store while
// a run is in progress.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/WenyuChiou/WAGF-sub003/pkg/trace"
)

// Config configures the auditor.
type Config struct {
	// Schedule is a standard cron expression or a descriptor such as
	// "@every 30s". Empty disables scheduling; RunOnce still works.
	Schedule string

	// RunID limits the audit to one run. Empty audits every record.
	RunID string
}

// Report is one audit pass.
type Report struct {
	At      time.Time      `json:"at"`
	RunID   string         `json:"run_id,omitempty"`
	Summary *trace.Summary `json:"summary"`

	// NewRecords is the number of records stored since the previous pass.
	NewRecords int64 `json:"new_records"`
}

// Sink receives each report.
type Sink func(*Report)

// Auditor summarizes a trace store on a cron schedule.
type Auditor struct {
	storage trace.Storage
	config  Config
	sink    Sink
	cron    *cron.Cron
	logger  *slog.Logger

	mu       sync.Mutex
	running  bool
	lastSeen int64
	last     *Report
}

// New creates an auditor. sink may be nil; reports are logged either way.
func New(storage trace.Storage, config Config, sink Sink) *Auditor {
	return &Auditor{
		storage: storage,
		config:  config,
		sink:    sink,
		cron:    cron.New(),
		logger:  slog.Default().With("component", "trace.audit"),
	}
}

// Start schedules audit passes until ctx is done or Stop is called.
func (a *Auditor) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.config.Schedule == "" {
		a.logger.Info("audit schedule not configured, skipping scheduler")
		return nil
	}
	if _, err := cron.ParseStandard(a.config.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", a.config.Schedule, err)
	}
	if _, err := a.cron.AddFunc(a.config.Schedule, func() {
		if _, err := a.RunOnce(ctx); err != nil {
			a.logger.Error("scheduled audit failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule audit: %w", err)
	}

	a.cron.Start()
	a.running = true
	a.logger.Info("trace auditor started", "schedule", a.config.Schedule, "run_id", a.config.RunID)

	go func() {
		<-ctx.Done()
		a.Stop()
	}()
	return nil
}

// RunOnce performs one audit pass and hands the report to the sink.
func (a *Auditor) RunOnce(ctx context.Context) (*Report, error) {
	query := &trace.Query{RunID: a.config.RunID}

	recordsCh, errCh, err := a.storage.QueryStream(ctx, query)
	if err != nil {
		return nil, err
	}
	summary := trace.NewSummary()
	for r := range recordsCh {
		summary.Add(r)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}

	a.mu.Lock()
	total := int64(summary.Records)
	report := &Report{
		At:         time.Now().UTC(),
		RunID:      a.config.RunID,
		Summary:    summary,
		NewRecords: total - a.lastSeen,
	}
	a.lastSeen = total
	a.last = report
	a.mu.Unlock()

	a.logger.Info("trace audit",
		"run_id", a.config.RunID,
		"records", summary.Records,
		"new_records", report.NewRecords,
		"approval_rate", summary.ApprovalRate(),
		"fallback_rate", summary.FallbackRate(),
		"mean_attempts", summary.MeanAttempts(),
	)
	if a.sink != nil {
		a.sink(report)
	}
	return report, nil
}

// Last returns the most recent report, or nil.
func (a *Auditor) Last() *Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Stop stops the scheduler and waits for a running pass to finish.
func (a *Auditor) Stop() {
	a.mu.Lock()
	running := a.running
	a.running = false
	a.mu.Unlock()

	// A pass in flight takes mu, so wait outside it.
	if running {
		<-a.cron.Stop().Done()
		a.logger.Info("trace auditor stopped")
	}
}

// IsRunning reports whether passes are scheduled.
func (a *Auditor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// NextRun returns the next scheduled pass, or nil.
func (a *Auditor) NextRun() *time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries := a.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
