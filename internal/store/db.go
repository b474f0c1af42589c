package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"go-etl-pipeline/internal/model"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("store: run not found")

// RunSummary is one row of the runs table.
type RunSummary struct {
	ID          string          `json:"id"`
	LogicalDate string          `json:"logical_date"`
	Status      model.RunStatus `json:"status"`
	FailedStage string          `json:"failed_stage,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// StageTransition is one state change of one stage. The table is append-only.
type StageTransition struct {
	RunID     string           `json:"run_id"`
	Stage     model.StageID    `json:"stage"`
	Task      string           `json:"task"`
	State     model.StageState `json:"state"`
	Attempt   int              `json:"attempt"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// RunError is one recorded failure.
type RunError struct {
	RunID     string    `json:"run_id"`
	Stage     string    `json:"stage"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// DB is the run history.
type DB struct {
	db *sql.DB
}

// Open opens the history database and creates its tables if absent.
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	runTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		logical_date TEXT,
		status TEXT,
		failed_stage TEXT,
		created_at DATETIME,
		updated_at DATETIME
	);
	`
	transitionTable := `
	CREATE TABLE IF NOT EXISTS stage_transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		stage TEXT,
		task TEXT,
		state TEXT,
		attempt INTEGER,
		error_message TEXT,
		created_at DATETIME
	);
	`
	errorTable := `
	CREATE TABLE IF NOT EXISTS run_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT,
		stage TEXT,
		error_message TEXT,
		created_at DATETIME
	);
	`

	for _, ddl := range []string{runTable, transitionTable, errorTable} {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: create tables: %w", err)
		}
	}

	return &DB{db: db}, nil
}

func (s *DB) Close() error {
	return s.db.Close()
}

// SaveRun stores a new run in running state.
func (s *DB) SaveRun(ctx context.Context, runID string, date model.LogicalDate) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, logical_date, status, failed_stage, created_at, updated_at) VALUES (?, ?, ?, '', ?, ?)`,
		runID, date.String(), string(model.RunRunning), now, now)
	return err
}

// UpdateRunStatus records the final status of a run.
func (s *DB) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, failedStage model.StageID) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, failed_stage = ?, updated_at = ? WHERE id = ?`,
		string(status), string(failedStage), now, runID)
	return err
}

// SaveStageTransition appends one state change.
func (s *DB) SaveStageTransition(ctx context.Context, tr StageTransition) error {
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_transitions (run_id, stage, task, state, attempt, error_message, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tr.RunID, string(tr.Stage), tr.Task, string(tr.State), tr.Attempt, tr.Error, tr.CreatedAt)
	return err
}

// SaveRunError records an error for a run
func (s *DB) SaveRunError(ctx context.Context, runID string, stage model.StageID, err error) error {
	if err == nil {
		return nil
	}
	now := time.Now().UTC()
	_, e := s.db.ExecContext(ctx,
		`INSERT INTO run_errors (run_id, stage, error_message, created_at) VALUES (?, ?, ?, ?)`,
		runID, string(stage), err.Error(), now)
	return e
}

// ListRuns returns all runs, newest first.
func (s *DB) ListRuns(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, logical_date, status, failed_stage, created_at, updated_at FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.LogicalDate, &r.Status, &r.FailedStage, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun fetches one run.
func (s *DB) GetRun(ctx context.Context, runID string) (*RunSummary, error) {
	var r RunSummary
	err := s.db.QueryRowContext(ctx,
		`SELECT id, logical_date, status, failed_stage, created_at, updated_at FROM runs WHERE id = ?`, runID).
		Scan(&r.ID, &r.LogicalDate, &r.Status, &r.FailedStage, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListStageTransitions returns the transitions of one run in write order.
func (s *DB) ListStageTransitions(ctx context.Context, runID string) ([]StageTransition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, stage, task, state, attempt, error_message, created_at FROM stage_transitions WHERE run_id = ? ORDER BY id`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []StageTransition{}
	for rows.Next() {
		var tr StageTransition
		if err := rows.Scan(&tr.RunID, &tr.Stage, &tr.Task, &tr.State, &tr.Attempt, &tr.Error, &tr.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// ListRunErrors returns the errors recorded for one run.
func (s *DB) ListRunErrors(ctx context.Context, runID string) ([]RunError, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, stage, error_message, created_at FROM run_errors WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []RunError{}
	for rows.Next() {
		var e RunError
		if err := rows.Scan(&e.RunID, &e.Stage, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
