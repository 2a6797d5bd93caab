package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Pipeline run statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// PipelineRun represents one execution of the agent chain
type PipelineRun struct {
	ID         uuid.UUID  `json:"id"`
	AccountID  uuid.UUID  `json:"account_id"`
	Symbol     string     `json:"symbol"`
	Timeframe  string     `json:"timeframe"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// PipelineStep represents one agent evaluation within a run
type PipelineStep struct {
	ID         uuid.UUID `json:"id"`
	RunID      uuid.UUID `json:"run_id"`
	AgentName  string    `json:"agent_name"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Score      float64   `json:"score"`
	Confidence float64   `json:"confidence"`
	Payload    []byte    `json:"payload,omitempty"` // JSONB, includes optional error field
}

// InsertPipelineRun creates a run row with status=running
func (db *DB) InsertPipelineRun(ctx context.Context, run *PipelineRun) error {
	query := `
		INSERT INTO pipeline_runs (id, account_id, symbol, timeframe, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := db.pool.Exec(ctx, query,
		run.ID,
		run.AccountID,
		run.Symbol,
		run.Timeframe,
		run.Status,
		run.CreatedAt,
	)
	return err
}

// FinishPipelineRun transitions a running run to a terminal status. The WHERE
// clause keeps the transition monotonic: a completed or failed run never moves
// again.
func (db *DB) FinishPipelineRun(ctx context.Context, id uuid.UUID, status string) error {
	query := `
		UPDATE pipeline_runs
		SET status = $2, finished_at = $3
		WHERE id = $1 AND status = $4
	`

	tag, err := db.pool.Exec(ctx, query, id, status, time.Now().UTC(), RunStatusRunning)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertPipelineStep records a single agent step
func (db *DB) InsertPipelineStep(ctx context.Context, step *PipelineStep) error {
	query := `
		INSERT INTO pipeline_steps (id, run_id, agent_name, started_at, finished_at, score, confidence, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := db.pool.Exec(ctx, query,
		step.ID,
		step.RunID,
		step.AgentName,
		step.StartedAt,
		step.FinishedAt,
		step.Score,
		step.Confidence,
		step.Payload,
	)
	return err
}

// GetPipelineRun loads a run by id
func (db *DB) GetPipelineRun(ctx context.Context, id uuid.UUID) (*PipelineRun, error) {
	query := `
		SELECT id, account_id, symbol, timeframe, status, created_at, finished_at
		FROM pipeline_runs
		WHERE id = $1
	`

	var r PipelineRun
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&r.ID, &r.AccountID, &r.Symbol, &r.Timeframe, &r.Status, &r.CreatedAt, &r.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

// ListPipelineRuns returns the most recent runs, newest first
func (db *DB) ListPipelineRuns(ctx context.Context, limit int) ([]*PipelineRun, error) {
	query := `
		SELECT id, account_id, symbol, timeframe, status, created_at, finished_at
		FROM pipeline_runs
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*PipelineRun
	for rows.Next() {
		var r PipelineRun
		if err := rows.Scan(
			&r.ID, &r.AccountID, &r.Symbol, &r.Timeframe, &r.Status, &r.CreatedAt, &r.FinishedAt,
		); err != nil {
			return nil, err
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}

// ListPipelineSteps returns the steps of a run ordered by start time
func (db *DB) ListPipelineSteps(ctx context.Context, runID uuid.UUID) ([]*PipelineStep, error) {
	query := `
		SELECT id, run_id, agent_name, started_at, finished_at, score, confidence, payload
		FROM pipeline_steps
		WHERE run_id = $1
		ORDER BY started_at
	`

	rows, err := db.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*PipelineStep
	for rows.Next() {
		var s PipelineStep
		if err := rows.Scan(
			&s.ID, &s.RunID, &s.AgentName, &s.StartedAt, &s.FinishedAt, &s.Score, &s.Confidence, &s.Payload,
		); err != nil {
			return nil, err
		}
		steps = append(steps, &s)
	}
	return steps, rows.Err()
}
