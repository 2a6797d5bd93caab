package builtin

import (
	"context"

	"github.com/quantbrain/quantbrain/internal/market"
	"github.com/quantbrain/quantbrain/internal/pipeline"
)

// VolatilityRegime classifies the current regime from Bollinger band width on
// the 1h closes. It is informational: the score stays near zero and the
// payload carries the regime label for downstream agents.
type VolatilityRegime struct{}

// Name returns the agent name
func (a *VolatilityRegime) Name() string { return "volatility-regime" }

// Evaluate classifies band width into low/medium/high
func (a *VolatilityRegime) Evaluate(_ context.Context, pctx *pipeline.Context) (pipeline.AgentResult, error) {
	candles := pctx.Candles("1h")
	if len(candles) < 20 {
		return insufficientData("fewer than 20 1h candles"), nil
	}

	closes := market.Closes(candles)
	lower, middle, upper, ok := bollingerLast(closes, 20)
	if !ok || middle == 0 {
		return insufficientData("bollinger computation failed"), nil
	}

	widthPct := (upper - lower) / middle * 100

	regime := "medium"
	score := 0.0
	switch {
	case widthPct < 2:
		regime = "low"
		score = 0.1 // squeeze often precedes expansion
	case widthPct > 6:
		regime = "high"
		score = -0.1
	}

	price := closes[len(closes)-1]
	position := "inside"
	if price >= upper {
		position = "above_upper"
	} else if price <= lower {
		position = "below_lower"
	}

	return pipeline.AgentResult{
		Score:      score,
		Confidence: 60,
		Payload: map[string]any{
			"regime":        regime,
			"band_width":    widthPct,
			"band_position": position,
		},
	}, nil
}
