package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/WenyuChiou/WAGF-sub003/pkg/trace"
)

// SQLiteConfig contains configuration for the SQLite trace backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 4
	MaxOpenConns int

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/trace.db",
		MaxOpenConns: 4,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// schema stores the full record as JSON next to the columns queries filter
// on.
const schema = `
CREATE TABLE IF NOT EXISTS trace_records (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	run_id TEXT NOT NULL,
	step INTEGER NOT NULL,
	agent_id TEXT NOT NULL,
	agent_type TEXT NOT NULL,
	outcome TEXT NOT NULL,
	attempts INTEGER NOT NULL,
	rule_set_version TEXT,
	recorded_at INTEGER NOT NULL,
	body TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trace_run_step ON trace_records(run_id, step);
CREATE INDEX IF NOT EXISTS idx_trace_agent ON trace_records(agent_id);
CREATE INDEX IF NOT EXISTS idx_trace_outcome ON trace_records(outcome);
`

// SQLiteStorage implements trace.Storage on SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage opens the database and creates the schema.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	if config.Path == "" {
		return nil, trace.NewStorageError("sqlite", "open", fmt.Errorf("path cannot be empty"))
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 4
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5 * time.Second
	}

	logger := slog.Default().With("component", "trace.storage.sqlite")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, trace.NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)

	s := &SQLiteStorage{db: db, config: config, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite trace storage initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
	)
	return s, nil
}

func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return trace.NewStorageError("sqlite", "enable_wal", err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return trace.NewStorageError("sqlite", "set_busy_timeout", err)
	}
	if _, err := s.db.Exec(schema); err != nil {
		return trace.NewStorageError("sqlite", "create_schema", err)
	}
	return nil
}

// Store inserts a record.
func (s *SQLiteStorage) Store(ctx context.Context, record *trace.Record) error {
	if record == nil {
		return trace.NewStorageError("sqlite", "store", fmt.Errorf("nil record"))
	}
	body, err := json.Marshal(record)
	if err != nil {
		return trace.NewStorageError("sqlite", "store", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trace_records
			(id, run_id, step, agent_id, agent_type, outcome, attempts, rule_set_version, recorded_at, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.RunID,
		record.Step,
		record.AgentID,
		record.AgentType,
		string(record.Outcome),
		len(record.Attempts),
		record.RuleSetVersion,
		record.RecordedAt.UnixNano(),
		string(body),
	)
	if err != nil {
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			err = fmt.Errorf("%w: %s", trace.ErrDuplicateRecord, record.ID)
		}
		return trace.NewStorageError("sqlite", "store", err)
	}
	return nil
}

// Query returns matching records.
func (s *SQLiteStorage) Query(ctx context.Context, query *trace.Query) ([]*trace.Record, error) {
	recordsCh, errCh, err := s.QueryStream(ctx, query)
	if err != nil {
		return nil, err
	}
	var out []*trace.Record
	for r := range recordsCh {
		out = append(out, r)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return out, nil
}

// QueryStream streams matching records straight from the result set.
func (s *SQLiteStorage) QueryStream(ctx context.Context, query *trace.Query) (<-chan *trace.Record, <-chan error, error) {
	if err := query.Validate(); err != nil {
		return nil, nil, err
	}

	whereClause, args := buildWhereClause(query)
	sqlQuery := "SELECT body FROM trace_records"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	order := "ASC"
	if query != nil && query.Order == trace.SortDesc {
		order = "DESC"
	}
	sqlQuery += " ORDER BY seq " + order

	if query != nil && (query.Limit > 0 || query.Offset > 0) {
		limit := -1
		if query.Limit > 0 {
			limit = query.Limit
		}
		sqlQuery += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, query.Offset)
	}

	recordsCh := make(chan *trace.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(recordsCh)
		defer close(errCh)

		rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
		if err != nil {
			errCh <- trace.NewStorageError("sqlite", "query", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var body string
			if err := rows.Scan(&body); err != nil {
				errCh <- trace.NewStorageError("sqlite", "scan", err)
				return
			}
			var rec trace.Record
			if err := json.Unmarshal([]byte(body), &rec); err != nil {
				errCh <- trace.NewStorageError("sqlite", "decode", err)
				return
			}

			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case recordsCh <- &rec:
			}
		}
		if err := rows.Err(); err != nil {
			errCh <- trace.NewStorageError("sqlite", "query", err)
		}
	}()

	return recordsCh, errCh, nil
}

// Count returns the number of matching records.
func (s *SQLiteStorage) Count(ctx context.Context, query *trace.Query) (int64, error) {
	if err := query.Validate(); err != nil {
		return 0, err
	}
	whereClause, args := buildWhereClause(query)
	sqlQuery := "SELECT COUNT(*) FROM trace_records"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	var n int64
	if err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&n); err != nil {
		return 0, trace.NewStorageError("sqlite", "count", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	s.logger.Info("closing sqlite trace storage")
	if err := s.db.Close(); err != nil {
		return trace.NewStorageError("sqlite", "close", err)
	}
	return nil
}

// buildWhereClause builds a WHERE clause (without the keyword) and its
// arguments from the query filters.
func buildWhereClause(query *trace.Query) (string, []any) {
	if query == nil {
		return "", nil
	}

	var conditions []string
	var args []any

	if query.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, query.RunID)
	}
	if query.AgentID != "" {
		conditions = append(conditions, "agent_id = ?")
		args = append(args, query.AgentID)
	}
	if query.AgentType != "" {
		conditions = append(conditions, "agent_type = ?")
		args = append(args, query.AgentType)
	}
	if len(query.Outcomes) > 0 {
		placeholders := make([]string, len(query.Outcomes))
		for i, o := range query.Outcomes {
			placeholders[i] = "?"
			args = append(args, string(o))
		}
		conditions = append(conditions, "outcome IN ("+strings.Join(placeholders, ", ")+")")
	}
	if query.StepFrom != nil {
		conditions = append(conditions, "step >= ?")
		args = append(args, *query.StepFrom)
	}
	if query.StepTo != nil {
		conditions = append(conditions, "step <= ?")
		args = append(args, *query.StepTo)
	}
	if !query.Since.IsZero() {
		conditions = append(conditions, "recorded_at >= ?")
		args = append(args, query.Since.UnixNano())
	}
	if !query.Until.IsZero() {
		conditions = append(conditions, "recorded_at <= ?")
		args = append(args, query.Until.UnixNano())
	}

	return strings.Join(conditions, " AND "), args
}
