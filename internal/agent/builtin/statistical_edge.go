package builtin

import (
	"context"
	"math"

	"github.com/quantbrain/quantbrain/internal/market"
	"github.com/quantbrain/quantbrain/internal/pipeline"
)

// StatisticalEdge measures how stretched price is from its SMA20 in standard
// deviations and leans mean-reversion at extremes, trend-following otherwise.
type StatisticalEdge struct{}

// Name returns the agent name
func (a *StatisticalEdge) Name() string { return "statistical-edge" }

// Evaluate scores the z-score of the last close
func (a *StatisticalEdge) Evaluate(_ context.Context, pctx *pipeline.Context) (pipeline.AgentResult, error) {
	candles := pctx.Candles("1h")
	if len(candles) < 21 {
		return insufficientData("fewer than 21 1h candles"), nil
	}

	closes := market.Closes(candles)
	window := closes[len(closes)-20:]

	sma, ok := smaLast(closes, 20)
	if !ok {
		return insufficientData("sma computation failed"), nil
	}

	var variance float64
	for _, c := range window {
		variance += (c - sma) * (c - sma)
	}
	stdev := math.Sqrt(variance / float64(len(window)))
	if stdev == 0 {
		return insufficientData("zero variance in window"), nil
	}

	price := closes[len(closes)-1]
	z := (price - sma) / stdev

	// Inside two sigmas the deviation is treated as trend pressure; beyond,
	// the edge flips to mean reversion.
	var score float64
	edge := "trend"
	if math.Abs(z) <= 2 {
		score = z / 2 * 0.6
	} else {
		edge = "mean_reversion"
		score = -sign(z) * 0.4
	}

	confidence := 45 + math.Min(math.Abs(z)*15, 40)

	return pipeline.AgentResult{
		Score:      clampScore(score),
		Confidence: confidence,
		Payload: map[string]any{
			"z_score": z,
			"sma20":   sma,
			"edge":    edge,
		},
	}, nil
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
