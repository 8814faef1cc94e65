// Package sqlitestate provides a simulation environment persisted in SQLite.
// Each Apply runs in one transaction, so a rejected command leaves the
// database untouched and a crashed run can be inspected afterwards.
package sqlitestate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/WenyuChiou/WAGF-sub003/pkg/environment"
	"github.com/WenyuChiou/WAGF-sub003/pkg/governance"
	"github.com/WenyuChiou/WAGF-sub003/pkg/skills"
)

// Config configures the SQLite environment.
type Config struct {
	// Path is the database file. ":memory:" keeps it in memory.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// Environment implements governance.Environment on SQLite.
type Environment struct {
	db       *sql.DB
	registry *skills.Registry
	logger   *slog.Logger

	mu   sync.RWMutex
	step int

	closeOnce sync.Once
}

// Open opens (or creates) the database and seeds it. Agents and shared
// resources are inserted only when absent, so reopening an existing run's
// database keeps its state.
func Open(ctx context.Context, cfg Config, registry *skills.Registry, agents []environment.Agent, shared map[string]float64) (*Environment, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if err := environment.Validate(agents); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	e := &Environment{
		db:       db,
		registry: registry,
		logger:   slog.Default().With("component", "environment.sqlite"),
	}

	if err := e.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := e.seed(ctx, agents, shared); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed state: %w", err)
	}

	e.logger.Info("sqlite environment opened", "path", cfg.Path, "agents", len(agents))
	return e, nil
}

func (e *Environment) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		agent_type TEXT NOT NULL,
		attrs TEXT NOT NULL DEFAULT '{}',
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS shared_resources (
		name TEXT PRIMARY KEY,
		amount REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_agents_seq ON agents(seq);
	`
	_, err := e.db.ExecContext(ctx, schema)
	return err
}

func (e *Environment) seed(ctx context.Context, agents []environment.Agent, shared map[string]float64) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UnixNano()
	for i, a := range agents {
		attrs := a.Attrs
		if attrs == nil {
			attrs = map[string]any{}
		}
		data, err := json.Marshal(attrs)
		if err != nil {
			return fmt.Errorf("agent %s attributes: %w", a.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO agents (id, seq, agent_type, attrs, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO NOTHING`,
			a.ID, i, a.Type, string(data), now); err != nil {
			return err
		}
	}
	for _, name := range governance.SortedKeys(shared) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO shared_resources (name, amount) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`,
			name, shared[name]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetStep sets the step reported in snapshots.
func (e *Environment) SetStep(step int) {
	e.mu.Lock()
	e.step = step
	e.mu.Unlock()
}

func (e *Environment) currentStep() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.step
}

// Isolated reports whether no shared resources exist.
func (e *Environment) Isolated() bool {
	var n int
	if err := e.db.QueryRow(`SELECT COUNT(*) FROM shared_resources`).Scan(&n); err != nil {
		return false
	}
	return n == 0
}

// Agents returns the agents in seed order.
func (e *Environment) Agents(ctx context.Context) ([]environment.Agent, error) {
	rows, err := e.db.QueryContext(ctx, `SELECT id, agent_type, attrs FROM agents ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var out []environment.Agent
	for rows.Next() {
		var a environment.Agent
		var attrs string
		if err := rows.Scan(&a.ID, &a.Type, &attrs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attrs), &a.Attrs); err != nil {
			return nil, fmt.Errorf("agent %s attributes: %w", a.ID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadAgent(ctx context.Context, q querier, agentID string) (string, map[string]any, error) {
	var agentType, attrs string
	err := q.QueryRowContext(ctx, `SELECT agent_type, attrs FROM agents WHERE id = ?`, agentID).Scan(&agentType, &attrs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, &governance.AgentNotFoundError{AgentID: agentID}
	}
	if err != nil {
		return "", nil, err
	}
	m := map[string]any{}
	if err := json.Unmarshal([]byte(attrs), &m); err != nil {
		return "", nil, fmt.Errorf("agent %s attributes: %w", agentID, err)
	}
	return agentType, m, nil
}

func loadShared(ctx context.Context, q querier) (map[string]float64, error) {
	rows, err := q.QueryContext(ctx, `SELECT name, amount FROM shared_resources`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var name string
		var amount float64
		if err := rows.Scan(&name, &amount); err != nil {
			return nil, err
		}
		out[name] = amount
	}
	return out, rows.Err()
}

// Snapshot reads the agent and shared resources.
func (e *Environment) Snapshot(ctx context.Context, agentID string) (*governance.AgentState, error) {
	agentType, attrs, err := loadAgent(ctx, e.db, agentID)
	if err != nil {
		return nil, err
	}
	shared, err := loadShared(ctx, e.db)
	if err != nil {
		return nil, fmt.Errorf("failed to read shared resources: %w", err)
	}
	return &governance.AgentState{
		AgentID:   agentID,
		AgentType: agentType,
		Step:      e.currentStep(),
		Attrs:     attrs,
		Shared:    shared,
	}, nil
}

// Apply executes cmd in one transaction.
func (e *Environment) Apply(ctx context.Context, agentID string, cmd *governance.AdmissibleCommand) (*governance.ExecutionResult, error) {
	skill := ""
	if cmd != nil {
		skill = cmd.SkillID
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, governance.NewExecutionError(agentID, skill, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, attrs, err := loadAgent(ctx, tx, agentID)
	if err != nil {
		return nil, governance.NewExecutionError(agentID, skill, "failed to load agent", err)
	}
	shared, err := loadShared(ctx, tx)
	if err != nil {
		return nil, governance.NewExecutionError(agentID, skill, "failed to load shared resources", err)
	}

	plan, err := environment.PlanCommand(e.registry, agentID, cmd, shared)
	if err != nil {
		return nil, err
	}

	if len(plan.StateDelta) > 0 {
		for k, v := range plan.StateDelta {
			attrs[k] = v
		}
		data, err := json.Marshal(attrs)
		if err != nil {
			return nil, governance.NewExecutionError(agentID, skill, "failed to encode attributes", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE agents SET attrs = ?, updated_at = ? WHERE id = ?`,
			string(data), time.Now().UnixNano(), agentID); err != nil {
			return nil, governance.NewExecutionError(agentID, skill, "failed to update agent", err)
		}
	}
	for _, name := range governance.SortedKeys(plan.SharedDelta) {
		if _, err := tx.ExecContext(ctx,
			`UPDATE shared_resources SET amount = amount + ? WHERE name = ?`,
			plan.SharedDelta[name], name); err != nil {
			return nil, governance.NewExecutionError(agentID, skill, "failed to update shared resource", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, governance.NewExecutionError(agentID, skill, "failed to commit", err)
	}

	return &governance.ExecutionResult{
		Success:     true,
		StateDelta:  plan.StateDelta,
		SharedDelta: plan.SharedDelta,
		AppliedAt:   time.Now().UTC(),
	}, nil
}

// Close closes the database.
func (e *Environment) Close() error {
	var err error
	e.closeOnce.Do(func() {
		err = e.db.Close()
	})
	return err
}
