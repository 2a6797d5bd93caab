package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Account represents a trading account. Accounts are created externally and
// are read-only to the engine.
type Account struct {
	ID              uuid.UUID `json:"id"`
	StartingBalance float64   `json:"starting_balance"`
	CurrentBalance  float64   `json:"current_balance"`
	MaxLeverage     int       `json:"max_leverage"`
	MaxRiskPerTrade float64   `json:"max_risk_per_trade"` // percent
	CreatedAt       time.Time `json:"created_at"`
}

// GetAccount loads a trading account by id
func (db *DB) GetAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	query := `
		SELECT id, starting_balance, current_balance, max_leverage, max_risk_per_trade, created_at
		FROM trading_accounts
		WHERE id = $1
	`

	var a Account
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&a.ID,
		&a.StartingBalance,
		&a.CurrentBalance,
		&a.MaxLeverage,
		&a.MaxRiskPerTrade,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &a, nil
}

// ListAccounts returns all trading accounts
func (db *DB) ListAccounts(ctx context.Context) ([]*Account, error) {
	query := `
		SELECT id, starting_balance, current_balance, max_leverage, max_risk_per_trade, created_at
		FROM trading_accounts
		ORDER BY created_at
	`

	rows, err := db.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(
			&a.ID,
			&a.StartingBalance,
			&a.CurrentBalance,
			&a.MaxLeverage,
			&a.MaxRiskPerTrade,
			&a.CreatedAt,
		); err != nil {
			return nil, err
		}
		accounts = append(accounts, &a)
	}

	return accounts, rows.Err()
}
