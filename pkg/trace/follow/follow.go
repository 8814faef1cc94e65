// Package follow tails a JSONL trace file as a run appends to it.
package follow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/WenyuChiou/WAGF-sub003/pkg/trace"
)

// Config configures a follower.
type Config struct {
	// FromStart emits records already in the file before following.
	// Default: true
	FromStart bool

	// PollInterval re-reads the file even without a change event, covering
	// filesystems where notifications are lost.
	// Default: 1 second
	PollInterval time.Duration

	// Query filters emitted records. Limit, Offset and Order are ignored.
	Query *trace.Query
}

// DefaultConfig returns the default follower configuration.
func DefaultConfig() *Config {
	return &Config{FromStart: true, PollInterval: time.Second}
}

// Follower emits each complete record line appended to a JSONL file.
type Follower struct {
	path   string
	config *Config
	logger *slog.Logger

	offset  int64
	partial []byte
}

// New creates a follower for path. The file need not exist yet.
func New(path string, config *Config) *Follower {
	if config == nil {
		config = DefaultConfig()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	return &Follower{
		path:   filepath.Clean(path),
		config: config,
		logger: slog.Default().With("component", "trace.follow"),
	}
}

// Follow calls fn for every matching record until ctx is done or fn returns
// an error. It returns nil on cancellation.
func (f *Follower) Follow(ctx context.Context, fn func(*trace.Record) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so creation and rotation of the file are seen.
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(f.path), err)
	}

	if !f.config.FromStart {
		if info, err := os.Stat(f.path); err == nil {
			f.offset = info.Size()
		}
	}
	if err := f.drain(fn); err != nil {
		return err
	}

	f.logger.Info("following trace file", "path", f.path, "offset", f.offset)

	ticker := time.NewTicker(f.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				f.logger.Debug("trace file moved, restarting at zero", "op", event.Op.String())
				f.offset, f.partial = 0, nil
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if err := f.drain(fn); err != nil {
					return err
				}
			}

		case <-ticker.C:
			if err := f.drain(fn); err != nil {
				return err
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			f.logger.Error("trace file watcher error", "error", err)
		}
	}
}

// drain reads from the saved offset to EOF and emits complete lines.
func (f *Follower) drain(fn func(*trace.Record) error) error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < f.offset {
		f.logger.Warn("trace file truncated, restarting at zero", "path", f.path)
		f.offset, f.partial = 0, nil
	}
	if _, err := file.Seek(f.offset, io.SeekStart); err != nil {
		return err
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	f.offset += int64(len(data))

	buf := append(f.partial, data...)
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSpace(buf[:i])
		buf = buf[i+1:]
		if len(line) == 0 {
			continue
		}

		var rec trace.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			f.logger.Warn("skipping undecodable trace line", "error", err)
			continue
		}
		if !f.config.Query.Matches(&rec) {
			continue
		}
		if err := fn(&rec); err != nil {
			return err
		}
	}
	f.partial = append([]byte(nil), buf...)
	return nil
}
