package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/WenyuChiou/WAGF-sub003/pkg/trace"
)

// maxLineSize bounds a single JSONL record. Records carry raw model text for
// every attempt, so lines can be large.
const maxLineSize = 16 * 1024 * 1024

// JSONLConfig configures the JSONL backend.
type JSONLConfig struct {
	// Path is the trace file. It is created if missing and appended to
	// otherwise.
	Path string

	// Sync flushes the file to disk after every record.
	// Default: false
	Sync bool
}

// JSONLStorage appends one JSON object per line. Every Store is a single
// write, so the file can be read (or followed) while a run is in progress.
type JSONLStorage struct {
	path   string
	sync   bool
	logger *slog.Logger

	mu     sync.Mutex
	file   *os.File
	ids    map[string]bool
	closed bool
}

// NewJSONLStorage opens path for appending. Ids already in the file are
// loaded so duplicates are rejected across restarts.
func NewJSONLStorage(cfg JSONLConfig) (*JSONLStorage, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("jsonl path cannot be empty")
	}
	if dir := filepath.Dir(cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, trace.NewStorageError("jsonl", "open", err)
		}
	}

	ids := make(map[string]bool)
	if f, err := os.Open(cfg.Path); err == nil {
		scanErr := ScanJSONL(f, func(r *trace.Record) error {
			ids[r.ID] = true
			return nil
		})
		f.Close()
		if scanErr != nil {
			return nil, trace.NewStorageError("jsonl", "open", scanErr)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, trace.NewStorageError("jsonl", "open", err)
	}

	file, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, trace.NewStorageError("jsonl", "open", err)
	}

	s := &JSONLStorage{
		path:   cfg.Path,
		sync:   cfg.Sync,
		logger: slog.Default().With("component", "trace.storage.jsonl"),
		file:   file,
		ids:    ids,
	}
	s.logger.Info("jsonl trace storage opened", "path", cfg.Path, "existing_records", len(ids))
	return s, nil
}

// Path returns the trace file path.
func (s *JSONLStorage) Path() string {
	return s.path
}

// Store appends record as one line.
func (s *JSONLStorage) Store(ctx context.Context, record *trace.Record) error {
	if record == nil {
		return trace.NewStorageError("jsonl", "store", fmt.Errorf("nil record"))
	}
	line, err := json.Marshal(record)
	if err != nil {
		return trace.NewStorageError("jsonl", "store", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return trace.NewStorageError("jsonl", "store", fmt.Errorf("storage closed"))
	}
	if record.ID != "" && s.ids[record.ID] {
		return trace.NewStorageError("jsonl", "store", fmt.Errorf("%w: %s", trace.ErrDuplicateRecord, record.ID))
	}
	if _, err := s.file.Write(line); err != nil {
		return trace.NewStorageError("jsonl", "store", err)
	}
	if s.sync {
		if err := s.file.Sync(); err != nil {
			return trace.NewStorageError("jsonl", "sync", err)
		}
	}
	if record.ID != "" {
		s.ids[record.ID] = true
	}
	return nil
}

// Query reads the file and returns matching records.
func (s *JSONLStorage) Query(ctx context.Context, query *trace.Query) ([]*trace.Record, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	matched, err := s.scan(ctx, query)
	if err != nil {
		return nil, err
	}
	return query.Page(matched), nil
}

// QueryStream streams matching records.
func (s *JSONLStorage) QueryStream(ctx context.Context, query *trace.Query) (<-chan *trace.Record, <-chan error, error) {
	records, err := s.Query(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	return streamSlice(ctx, records)
}

// Count returns the number of matching records.
func (s *JSONLStorage) Count(ctx context.Context, query *trace.Query) (int64, error) {
	if err := query.Validate(); err != nil {
		return 0, err
	}
	matched, err := s.scan(ctx, query)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (s *JSONLStorage) scan(ctx context.Context, query *trace.Query) ([]*trace.Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, trace.NewStorageError("jsonl", "query", err)
	}
	defer f.Close()

	var out []*trace.Record
	err = ScanJSONL(f, func(r *trace.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if query.Matches(r) {
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, trace.NewStorageError("jsonl", "query", err)
	}
	return out, nil
}

// Close closes the file.
func (s *JSONLStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

// ScanJSONL decodes one record per non-empty line and calls fn for each.
func ScanJSONL(r io.Reader, fn func(*trace.Record) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var rec trace.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(&rec); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// ReadJSONL decodes every record from r.
func ReadJSONL(r io.Reader) ([]*trace.Record, error) {
	var out []*trace.Record
	err := ScanJSONL(r, func(rec *trace.Record) error {
		out = append(out, rec)
		return nil
	})
	return out, err
}
