package builtin

import (
	"context"

	"github.com/quantbrain/quantbrain/internal/market"
	"github.com/quantbrain/quantbrain/internal/pipeline"
)

// MarketStructure reads the higher-timeframe trend from the EMA20/EMA50
// relationship and recent swing highs/lows on the 4h candles.
type MarketStructure struct{}

// Name returns the agent name
func (a *MarketStructure) Name() string { return "market-structure" }

// Evaluate scores the 4h structure
func (a *MarketStructure) Evaluate(_ context.Context, pctx *pipeline.Context) (pipeline.AgentResult, error) {
	candles := pctx.Candles("4h")
	if len(candles) < 50 {
		return insufficientData("fewer than 50 4h candles"), nil
	}

	closes := market.Closes(candles)
	price := closes[len(closes)-1]

	ema20, ok1 := emaLast(closes, 20)
	ema50, ok2 := emaLast(closes, 50)
	if !ok1 || !ok2 || ema50 == 0 {
		return insufficientData("ema computation failed"), nil
	}

	// EMA spread relative to price, scaled so a 2% spread saturates
	spread := (ema20 - ema50) / ema50
	score := clampScore(spread * 50)

	structure := "ranging"
	if higherHighs(candles, 10) {
		structure = "uptrend"
		if score < 0.2 {
			score = clampScore(score + 0.2)
		}
	} else if lowerLows(candles, 10) {
		structure = "downtrend"
		if score > -0.2 {
			score = clampScore(score - 0.2)
		}
	}

	confidence := 50.0
	if (score > 0 && structure == "uptrend") || (score < 0 && structure == "downtrend") {
		confidence = 75
	}

	return pipeline.AgentResult{
		Score:      score,
		Confidence: confidence,
		Payload: map[string]any{
			"structure":      structure,
			"ema20":          ema20,
			"ema50":          ema50,
			"price_vs_ema20": price / ema20,
		},
	}, nil
}

func higherHighs(candles []market.Candle, window int) bool {
	if len(candles) < window*2 {
		return false
	}
	recent := maxHigh(candles[len(candles)-window:])
	prior := maxHigh(candles[len(candles)-window*2 : len(candles)-window])
	return recent > prior
}

func lowerLows(candles []market.Candle, window int) bool {
	if len(candles) < window*2 {
		return false
	}
	recent := minLow(candles[len(candles)-window:])
	prior := minLow(candles[len(candles)-window*2 : len(candles)-window])
	return recent < prior
}

func maxHigh(candles []market.Candle) float64 {
	m := candles[0].High
	for _, c := range candles[1:] {
		if c.High > m {
			m = c.High
		}
	}
	return m
}

func minLow(candles []market.Candle) float64 {
	m := candles[0].Low
	for _, c := range candles[1:] {
		if c.Low < m {
			m = c.Low
		}
	}
	return m
}
