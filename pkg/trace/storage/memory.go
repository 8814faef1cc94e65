// Package storage provides trace storage backends: in-memory for tests and
// short runs, append-only JSONL for streaming audit files, and SQLite for
// queryable archives.
package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/WenyuChiou/WAGF-sub003/pkg/trace"
)

// MemoryStorage keeps records in memory in recording order.
type MemoryStorage struct {
	mu      sync.RWMutex
	records []*trace.Record
	ids     map[string]bool
	closed  bool
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{ids: make(map[string]bool)}
}

// Store appends a deep copy of record.
func (s *MemoryStorage) Store(ctx context.Context, record *trace.Record) error {
	if record == nil {
		return trace.NewStorageError("memory", "store", fmt.Errorf("nil record"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return trace.NewStorageError("memory", "store", fmt.Errorf("storage closed"))
	}
	if record.ID != "" && s.ids[record.ID] {
		return trace.NewStorageError("memory", "store", fmt.Errorf("%w: %s", trace.ErrDuplicateRecord, record.ID))
	}
	if record.ID != "" {
		s.ids[record.ID] = true
	}
	s.records = append(s.records, record.Clone())
	return nil
}

func (s *MemoryStorage) matching(query *trace.Query) []*trace.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*trace.Record
	for _, r := range s.records {
		if query.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// Query returns copies of the matching records.
func (s *MemoryStorage) Query(ctx context.Context, query *trace.Query) ([]*trace.Record, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	page := query.Page(s.matching(query))
	out := make([]*trace.Record, len(page))
	for i, r := range page {
		out[i] = r.Clone()
	}
	return out, nil
}

// QueryStream streams copies of the matching records.
func (s *MemoryStorage) QueryStream(ctx context.Context, query *trace.Query) (<-chan *trace.Record, <-chan error, error) {
	records, err := s.Query(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	return streamSlice(ctx, records)
}

// Count returns the number of matching records.
func (s *MemoryStorage) Count(ctx context.Context, query *trace.Query) (int64, error) {
	if err := query.Validate(); err != nil {
		return 0, err
	}
	return int64(len(s.matching(query))), nil
}

// Close marks the store closed. Stored records stay readable.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// streamSlice feeds records into a buffered channel from a goroutine.
func streamSlice(ctx context.Context, records []*trace.Record) (<-chan *trace.Record, <-chan error, error) {
	recordsCh := make(chan *trace.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(recordsCh)
		defer close(errCh)
		for _, r := range records {
			select {
			case recordsCh <- r:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return recordsCh, errCh, nil
}
