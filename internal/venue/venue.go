// Package venue contains exchange adapters for order placement
package venue

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quantbrain/quantbrain/internal/config"
)

// Sides accepted by both venue families
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order is a market order request
type Order struct {
	Symbol   string
	Side     string // BUY or SELL
	Quantity float64
}

// PlaceResult is the adapter-level outcome of an order placement
type PlaceResult struct {
	Success bool
	TxID    string
	Error   string
}

// Adapter places orders on one exchange. Implementations must not panic on
// missing credentials; they return Success=false instead.
type Adapter interface {
	Name() string
	Place(ctx context.Context, order Order) PlaceResult
}

// ForConfig builds the adapter selected by the execution configuration
func ForConfig(name string, venues map[string]config.VenueConfig, log zerolog.Logger) (Adapter, error) {
	cfg, ok := venues[name]
	if !ok {
		return nil, fmt.Errorf("venue %q is not configured", name)
	}

	switch name {
	case "bybit":
		return NewBybit(cfg, log), nil
	case "binance-futures":
		return NewBinanceFutures(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown venue %q", name)
	}
}
