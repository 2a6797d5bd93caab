package db

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TradeHistory records the outcome of a dispatched trade signal
type TradeHistory struct {
	ID           uuid.UUID `json:"id"`
	SignalID     uuid.UUID `json:"signal_id"`
	AccountID    uuid.UUID `json:"account_id"`
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"`
	Quantity     float64   `json:"quantity"`
	Price        float64   `json:"price"`
	ExchangeTxID string    `json:"exchange_tx_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// InsertTradeHistory appends an execution record
func (db *DB) InsertTradeHistory(ctx context.Context, h *TradeHistory) error {
	query := `
		INSERT INTO trade_history (id, signal_id, account_id, symbol, side, quantity, price, exchange_tx_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := db.pool.Exec(ctx, query,
		h.ID, h.SignalID, h.AccountID, h.Symbol, h.Side, h.Quantity, h.Price, h.ExchangeTxID, h.CreatedAt,
	)
	return err
}

// ListTradeHistory returns recent executions for an account, newest first
func (db *DB) ListTradeHistory(ctx context.Context, accountID uuid.UUID, limit int) ([]*TradeHistory, error) {
	query := `
		SELECT id, signal_id, account_id, symbol, side, quantity, price, exchange_tx_id, created_at
		FROM trade_history
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := db.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*TradeHistory
	for rows.Next() {
		var h TradeHistory
		if err := rows.Scan(
			&h.ID, &h.SignalID, &h.AccountID, &h.Symbol, &h.Side, &h.Quantity, &h.Price, &h.ExchangeTxID, &h.CreatedAt,
		); err != nil {
			return nil, err
		}
		history = append(history, &h)
	}
	return history, rows.Err()
}
