package builtin

import (
	"context"
	"math"

	"github.com/quantbrain/quantbrain/internal/pipeline"
)

// OrderFlow estimates buy/sell pressure from candle direction-weighted volume
// on the 1h interval. Its confidence doubles as the smart-money input of the
// decision checklist.
type OrderFlow struct{}

// Name returns the agent name
func (a *OrderFlow) Name() string { return "order-flow" }

// Evaluate scores net volume pressure over the last 20 candles
func (a *OrderFlow) Evaluate(_ context.Context, pctx *pipeline.Context) (pipeline.AgentResult, error) {
	candles := pctx.Candles("1h")
	if len(candles) < 20 {
		return insufficientData("fewer than 20 1h candles"), nil
	}

	window := candles[len(candles)-20:]
	var buyVolume, sellVolume float64
	for _, c := range window {
		if c.Close >= c.Open {
			buyVolume += c.Volume
		} else {
			sellVolume += c.Volume
		}
	}

	total := buyVolume + sellVolume
	if total == 0 {
		return insufficientData("no volume in window"), nil
	}

	// Net pressure in [-1,1]
	score := clampScore((buyVolume - sellVolume) / total)

	// Pressure strength maps to confidence: a 60/40 split reads ~60
	confidence := 50 + math.Abs(score)*50

	smartMoney := "neutral"
	if score > 0.2 {
		smartMoney = "accumulating"
	} else if score < -0.2 {
		smartMoney = "distributing"
	}

	return pipeline.AgentResult{
		Score:      score,
		Confidence: confidence,
		Payload: map[string]any{
			"buy_volume":  buyVolume,
			"sell_volume": sellVolume,
			"smart_money": smartMoney,
		},
	}, nil
}
