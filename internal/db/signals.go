package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Trade signal directions
const (
	DirectionBuy  = "buy"
	DirectionSell = "sell"
	DirectionHold = "hold"
)

// Trade signal statuses
const (
	SignalStatusPending  = "pending"
	SignalStatusExecuted = "executed"
	SignalStatusRejected = "rejected"
)

// TradeSignal represents a trade emitted by the decision engine, waiting for
// or past execution. Once executed or rejected the row is immutable.
type TradeSignal struct {
	ID              uuid.UUID  `json:"id"`
	AccountID       uuid.UUID  `json:"account_id"`
	Symbol          string     `json:"symbol"`
	Timeframe       string     `json:"timeframe"`
	Direction       string     `json:"direction"` // buy, sell
	Confidence      float64    `json:"confidence"`
	Leverage        int        `json:"leverage"`
	EntryPrice      *float64   `json:"entry_price,omitempty"`
	StopLoss        *float64   `json:"stop_loss,omitempty"`
	TakeProfit      *float64   `json:"take_profit,omitempty"`
	PositionSizeUSD *float64   `json:"position_size_usd,omitempty"`
	Status          string     `json:"status"`
	CreatedByAgent  string     `json:"created_by_agent"`
	AIReasoning     []byte     `json:"ai_reasoning,omitempty"` // serialized ProfessionalReasoning
	ExchangeTxID    *string    `json:"exchange_tx_id,omitempty"`
	RejectReason    *string    `json:"reject_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ExecutedAt      *time.Time `json:"executed_at,omitempty"`
}

// AgentSignal is the persisted output of one agent evaluation, kept separately
// from pipeline steps so the UI can chart per-agent signal history.
type AgentSignal struct {
	ID         uuid.UUID `json:"id"`
	RunID      uuid.UUID `json:"run_id"`
	AgentName  string    `json:"agent_name"`
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Score      float64   `json:"score"`
	Confidence float64   `json:"confidence"`
	Payload    []byte    `json:"payload,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// InsertTradeSignal creates a pending trade signal
func (db *DB) InsertTradeSignal(ctx context.Context, s *TradeSignal) error {
	query := `
		INSERT INTO trade_signals (
			id, account_id, symbol, timeframe, direction, confidence, leverage,
			entry_price, stop_loss, take_profit, position_size_usd,
			status, created_by_agent, ai_reasoning, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15
		)
	`

	_, err := db.pool.Exec(ctx, query,
		s.ID,
		s.AccountID,
		s.Symbol,
		s.Timeframe,
		s.Direction,
		s.Confidence,
		s.Leverage,
		s.EntryPrice,
		s.StopLoss,
		s.TakeProfit,
		s.PositionSizeUSD,
		s.Status,
		s.CreatedByAgent,
		s.AIReasoning,
		s.CreatedAt,
	)
	return err
}

// GetTradeSignal loads a trade signal by id
func (db *DB) GetTradeSignal(ctx context.Context, id uuid.UUID) (*TradeSignal, error) {
	query := `
		SELECT id, account_id, symbol, timeframe, direction, confidence, leverage,
		       entry_price, stop_loss, take_profit, position_size_usd,
		       status, created_by_agent, ai_reasoning, exchange_tx_id, reject_reason,
		       created_at, executed_at
		FROM trade_signals
		WHERE id = $1
	`

	var s TradeSignal
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.AccountID, &s.Symbol, &s.Timeframe, &s.Direction, &s.Confidence, &s.Leverage,
		&s.EntryPrice, &s.StopLoss, &s.TakeProfit, &s.PositionSizeUSD,
		&s.Status, &s.CreatedByAgent, &s.AIReasoning, &s.ExchangeTxID, &s.RejectReason,
		&s.CreatedAt, &s.ExecutedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// MarkSignalExecuted transitions pending -> executed. Returns ErrNotPending if
// the signal already left the pending state.
func (db *DB) MarkSignalExecuted(ctx context.Context, id uuid.UUID, exchangeTxID string) error {
	query := `
		UPDATE trade_signals
		SET status = $2, exchange_tx_id = $3, executed_at = $4
		WHERE id = $1 AND status = $5
	`

	tag, err := db.pool.Exec(ctx, query, id, SignalStatusExecuted, exchangeTxID, time.Now().UTC(), SignalStatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

// MarkSignalRejected transitions pending -> rejected with a reason
func (db *DB) MarkSignalRejected(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE trade_signals
		SET status = $2, reject_reason = $3
		WHERE id = $1 AND status = $4
	`

	tag, err := db.pool.Exec(ctx, query, id, SignalStatusRejected, reason, SignalStatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPending
	}
	return nil
}

// ListTradeSignals returns recent trade signals, newest first
func (db *DB) ListTradeSignals(ctx context.Context, limit int) ([]*TradeSignal, error) {
	query := `
		SELECT id, account_id, symbol, timeframe, direction, confidence, leverage,
		       entry_price, stop_loss, take_profit, position_size_usd,
		       status, created_by_agent, ai_reasoning, exchange_tx_id, reject_reason,
		       created_at, executed_at
		FROM trade_signals
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []*TradeSignal
	for rows.Next() {
		var s TradeSignal
		if err := rows.Scan(
			&s.ID, &s.AccountID, &s.Symbol, &s.Timeframe, &s.Direction, &s.Confidence, &s.Leverage,
			&s.EntryPrice, &s.StopLoss, &s.TakeProfit, &s.PositionSizeUSD,
			&s.Status, &s.CreatedByAgent, &s.AIReasoning, &s.ExchangeTxID, &s.RejectReason,
			&s.CreatedAt, &s.ExecutedAt,
		); err != nil {
			return nil, err
		}
		signals = append(signals, &s)
	}
	return signals, rows.Err()
}

// InsertAgentSignal records one agent's output for history queries
func (db *DB) InsertAgentSignal(ctx context.Context, s *AgentSignal) error {
	query := `
		INSERT INTO agent_signals (id, run_id, agent_name, symbol, timeframe, score, confidence, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := db.pool.Exec(ctx, query,
		s.ID, s.RunID, s.AgentName, s.Symbol, s.Timeframe, s.Score, s.Confidence, s.Payload, s.CreatedAt,
	)
	return err
}
