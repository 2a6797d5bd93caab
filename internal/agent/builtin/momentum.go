package builtin

import (
	"context"

	"github.com/quantbrain/quantbrain/internal/market"
	"github.com/quantbrain/quantbrain/internal/pipeline"
)

// Momentum combines RSI(14) and MACD(12,26,9) on the 1h closes
type Momentum struct{}

// Name returns the agent name
func (a *Momentum) Name() string { return "momentum" }

// Evaluate scores momentum from RSI displacement and MACD histogram sign
func (a *Momentum) Evaluate(_ context.Context, pctx *pipeline.Context) (pipeline.AgentResult, error) {
	candles := pctx.Candles("1h")
	if len(candles) < 40 {
		return insufficientData("fewer than 40 1h candles"), nil
	}

	closes := market.Closes(candles)

	rsi, ok := rsiLast(closes, 14)
	if !ok {
		return insufficientData("rsi computation failed"), nil
	}

	macd, signal, ok := macdLast(closes, 12, 26, 9)
	if !ok {
		return insufficientData("macd computation failed"), nil
	}

	// RSI centered at 50, saturating at 30/70
	rsiScore := clampScore((rsi - 50) / 20)

	histogram := macd - signal
	macdScore := 0.0
	if histogram > 0 {
		macdScore = 0.5
	} else if histogram < 0 {
		macdScore = -0.5
	}

	score := clampScore(rsiScore*0.6 + macdScore*0.8)

	confidence := 50.0
	if (rsiScore > 0 && macdScore > 0) || (rsiScore < 0 && macdScore < 0) {
		confidence = 80
	}

	return pipeline.AgentResult{
		Score:      score,
		Confidence: confidence,
		Payload: map[string]any{
			"rsi":            rsi,
			"macd":           macd,
			"macd_signal":    signal,
			"macd_histogram": histogram,
		},
	}, nil
}
