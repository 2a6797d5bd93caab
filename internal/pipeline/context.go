// Package pipeline drives one decision cycle through the fixed agent chain
package pipeline

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/quantbrain/quantbrain/internal/market"
)

// AgentOrder is the fixed agent chain. No agent is started until the previous
// agent's result is committed, because agents down the chain read their
// predecessors' outputs.
var AgentOrder = []string{
	"market-structure",
	"order-flow",
	"momentum",
	"volatility-regime",
	"news-sentiment",
	"multi-timeframe",
	"pattern-recognition",
	"statistical-edge",
	"risk-manager",
}

// Mode selects how agents are resolved for a run
type Mode string

// Agent resolution modes
const (
	ModeInProcess Mode = "in-process"
	ModeRemote    Mode = "remote"
)

// AgentResult is the uniform output of every agent
type AgentResult struct {
	Score      float64        `json:"score"`      // [-1, +1]
	Confidence float64        `json:"confidence"` // [0, 100]
	Payload    map[string]any `json:"payload,omitempty"`
}

// Clamp normalizes a result into the contract bounds. NaN and infinite values
// are mapped to zero rather than propagated.
func (r AgentResult) Clamp() AgentResult {
	r.Score = clamp(r.Score, -1, 1)
	r.Confidence = clamp(r.Confidence, 0, 100)
	return r
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AccountSnapshot is the read-only view of the account taken at run start
type AccountSnapshot struct {
	ID              uuid.UUID `json:"id"`
	Balance         float64   `json:"balance"`
	MaxLeverage     int       `json:"max_leverage"`
	MaxRiskPerTrade float64   `json:"max_risk_per_trade"`
}

// Context carries the state of one pipeline run. It is owned exclusively by
// the orchestrator; agents receive a borrow and must not mutate prior entries
// in AgentResults.
type Context struct {
	AccountID    uuid.UUID                  `json:"account_id"`
	Symbol       string                     `json:"symbol"`
	Timeframe    string                     `json:"timeframe"`
	Account      AccountSnapshot            `json:"account"`
	MarketData   map[string][]market.Candle `json:"market_data"`   // interval label -> ascending candles
	AgentResults map[string]AgentResult     `json:"agent_results"` // populated in AgentOrder sequence
}

// Candles returns the candle sequence for an interval label, or nil
func (c *Context) Candles(interval string) []market.Candle {
	return c.MarketData[interval]
}

// Result returns a predecessor's result, if it ran already
func (c *Context) Result(agentName string) (AgentResult, bool) {
	r, ok := c.AgentResults[agentName]
	return r, ok
}

// LastClose returns the most recent close on the run timeframe, falling back
// to 1h, or 0 when no market data survived context assembly.
func (c *Context) LastClose() float64 {
	for _, interval := range []string{c.Timeframe, "1h", "15m", "4h", "1d"} {
		if candles := c.MarketData[interval]; len(candles) > 0 {
			return candles[len(candles)-1].Close
		}
	}
	return 0
}

// Agent evaluates market state for one step of the chain
type Agent interface {
	Name() string
	Evaluate(ctx context.Context, pctx *Context) (AgentResult, error)
}

// AgentResolver maps an agent name to an implementation for the given mode
type AgentResolver interface {
	Resolve(name string, mode Mode) (Agent, error)
}
