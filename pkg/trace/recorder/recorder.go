// Package recorder writes trace records to a storage backend.
//
// In async mode (the default) Record copies the record, queues it on a
// buffered channel and returns; a single worker drains the channel into
// storage. Close drains whatever is still queued before returning. Sync mode
// writes inline and is what deterministic test runs use.
//
//	rec := recorder.NewRecorder(store, recorder.DefaultConfig())
//	defer rec.Close()
//
//	if err := rec.Record(ctx, record); err != nil {
//	    // dropped: the buffer stayed full for WriteTimeout
//	}
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/WenyuChiou/WAGF-sub003/pkg/trace"
)

// Config contains configuration for the trace recorder.
type Config struct {
	// Async queues records for a background writer.
	// Default: true
	Async bool

	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds both a single storage write and how long Record
	// waits for buffer space.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// MaxRawText truncates each attempt's raw model text. Zero keeps it
	// whole.
	// Default: 4096
	MaxRawText int

	// RedactSecrets masks API-key-looking tokens in raw model text.
	// Default: true
	RedactSecrets bool
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Async:         true,
		AsyncBuffer:   1000,
		WriteTimeout:  5 * time.Second,
		MaxRawText:    4096,
		RedactSecrets: true,
	}
}

// Recorder records one trace record per governed agent-step.
type Recorder struct {
	storage    trace.Storage
	config     *Config
	recordChan chan *trace.Record
	wg         sync.WaitGroup
	done       chan struct{}
	logger     *slog.Logger

	// mu guards closed against in-flight enqueues.
	mu     sync.RWMutex
	closed bool

	summaryMu sync.Mutex
	summary   *trace.Summary

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewRecorder creates a recorder over storage.
func NewRecorder(storage trace.Storage, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = 1000
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	r := &Recorder{
		storage: storage,
		config:  config,
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "trace.recorder"),
		summary: trace.NewSummary(),
	}

	if config.Async {
		r.recordChan = make(chan *trace.Record, config.AsyncBuffer)
		r.wg.Add(1)
		go r.worker()
	}

	r.logger.Info("trace recorder initialized",
		"async", config.Async,
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
	)
	return r
}

// Record stores a deep copy of record. A missing ID is filled with a new
// UUID on the copy. In async mode the call returns once the record is queued.
func (r *Recorder) Record(ctx context.Context, record *trace.Record) error {
	if record == nil {
		return trace.NewRecorderError("", errNilRecord)
	}

	rec := record.Clone()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	r.sanitize(rec)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.dropped.Add(1)
		return trace.NewRecorderError(rec.ID, context.Canceled)
	}

	if !r.config.Async {
		return r.writeRecord(ctx, rec)
	}

	timer := time.NewTimer(r.config.WriteTimeout)
	defer timer.Stop()

	select {
	case r.recordChan <- rec:
		r.logger.Debug("trace record enqueued",
			"record_id", rec.ID,
			"agent_id", rec.AgentID,
			"step", rec.Step,
		)
		return nil
	case <-timer.C:
		r.dropped.Add(1)
		r.logger.Error("trace record channel full, dropping record",
			"record_id", rec.ID,
			"channel_capacity", r.config.AsyncBuffer,
		)
		return trace.NewRecorderError(rec.ID, context.DeadlineExceeded)
	case <-ctx.Done():
		r.dropped.Add(1)
		return trace.NewRecorderError(rec.ID, ctx.Err())
	}
}

// Summary returns a snapshot of the outcome summary over every record
// written so far.
func (r *Recorder) Summary() *trace.Summary {
	r.summaryMu.Lock()
	defer r.summaryMu.Unlock()

	s := trace.NewSummary()
	s.Records = r.summary.Records
	s.Attempts = r.summary.Attempts
	s.ParseErrors = r.summary.ParseErrors
	s.Timeouts = r.summary.Timeouts
	s.UnknownSkills = r.summary.UnknownSkills
	for k, v := range r.summary.ByOutcome {
		s.ByOutcome[k] = v
	}
	for k, v := range r.summary.RuleFailures {
		s.RuleFailures[k] = v
	}
	for k, v := range r.summary.PrimaryFailures {
		s.PrimaryFailures[k] = v
	}
	return s
}

// Stats reports written, dropped and failed record counts.
func (r *Recorder) Stats() (written, dropped, failed int64) {
	return r.written.Load(), r.dropped.Load(), r.failed.Load()
}

// Close stops accepting records, drains the queue and waits for the worker.
// The storage backend is left open. Close is idempotent.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.logger.Info("shutting down trace recorder")
	close(r.done)
	r.wg.Wait()

	written, dropped, failed := r.Stats()
	r.logger.Info("trace recorder shut down complete",
		"written", written,
		"dropped", dropped,
		"failed", failed,
	)
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case rec := <-r.recordChan:
			r.writeRecord(context.Background(), rec)

		case <-r.done:
			r.logger.Info("draining trace channel before shutdown",
				"pending_count", len(r.recordChan),
			)
			for {
				select {
				case rec := <-r.recordChan:
					r.writeRecord(context.Background(), rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) writeRecord(ctx context.Context, rec *trace.Record) error {
	ctx, cancel := context.WithTimeout(ctx, r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Store(ctx, rec); err != nil {
		r.failed.Add(1)
		r.logger.Error("failed to store trace record",
			"record_id", rec.ID,
			"agent_id", rec.AgentID,
			"step", rec.Step,
			"error", err,
		)
		return trace.NewRecorderError(rec.ID, err)
	}
	duration := time.Since(start)

	r.written.Add(1)
	r.summaryMu.Lock()
	r.summary.Add(rec)
	r.summaryMu.Unlock()

	r.logger.Debug("trace recorded",
		"record_id", rec.ID,
		"outcome", rec.Outcome,
		"attempts", len(rec.Attempts),
		"duration_ms", duration.Milliseconds(),
	)
	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow trace write",
			"record_id", rec.ID,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
	return nil
}

func (r *Recorder) sanitize(rec *trace.Record) {
	for i := range rec.Attempts {
		p := rec.Attempts[i].Proposal
		if p == nil || p.RawText == "" {
			continue
		}
		if r.config.RedactSecrets {
			p.RawText = RedactSecrets(p.RawText)
		}
		if r.config.MaxRawText > 0 {
			p.RawText = TruncateString(p.RawText, r.config.MaxRawText)
		}
	}
}
