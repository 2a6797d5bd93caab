package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BrainDecision is the append-only log of every final decision the engine
// makes, including "wait", so the UI can explain inaction.
type BrainDecision struct {
	ID                    uuid.UUID `json:"id"`
	AccountID             uuid.UUID `json:"account_id"`
	Symbol                string    `json:"symbol"`
	Action                string    `json:"action"`
	Reasoning             string    `json:"reasoning"`
	Metadata              []byte    `json:"metadata,omitempty"`
	ProfessionalReasoning []byte    `json:"professional_reasoning,omitempty"`
	DailyPnL              float64   `json:"daily_pnl"`
	CreatedAt             time.Time `json:"created_at"`
}

// InsertBrainDecision appends a decision log row
func (db *DB) InsertBrainDecision(ctx context.Context, d *BrainDecision) error {
	query := `
		INSERT INTO brain_decisions (
			id, account_id, symbol, action, reasoning, metadata,
			professional_reasoning, daily_pnl, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := db.pool.Exec(ctx, query,
		d.ID,
		d.AccountID,
		d.Symbol,
		d.Action,
		d.Reasoning,
		d.Metadata,
		d.ProfessionalReasoning,
		d.DailyPnL,
		d.CreatedAt,
	)
	return err
}

// ListBrainDecisions returns recent decisions, newest first
func (db *DB) ListBrainDecisions(ctx context.Context, limit int) ([]*BrainDecision, error) {
	query := `
		SELECT id, account_id, symbol, action, reasoning, metadata,
		       professional_reasoning, daily_pnl, created_at
		FROM brain_decisions
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []*BrainDecision
	for rows.Next() {
		var d BrainDecision
		if err := rows.Scan(
			&d.ID, &d.AccountID, &d.Symbol, &d.Action, &d.Reasoning, &d.Metadata,
			&d.ProfessionalReasoning, &d.DailyPnL, &d.CreatedAt,
		); err != nil {
			return nil, err
		}
		decisions = append(decisions, &d)
	}
	return decisions, rows.Err()
}
