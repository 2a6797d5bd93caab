package builtin

import (
	"context"
	"math"

	"github.com/quantbrain/quantbrain/internal/market"
	"github.com/quantbrain/quantbrain/internal/pipeline"
)

// PatternRecognition scans the last 1h candles for simple reversal and
// continuation candle patterns.
type PatternRecognition struct{}

// Name returns the agent name
func (a *PatternRecognition) Name() string { return "pattern-recognition" }

// Evaluate scores the most recent detected pattern
func (a *PatternRecognition) Evaluate(_ context.Context, pctx *pipeline.Context) (pipeline.AgentResult, error) {
	candles := pctx.Candles("1h")
	if len(candles) < 3 {
		return insufficientData("fewer than 3 1h candles"), nil
	}

	prev := candles[len(candles)-2]
	last := candles[len(candles)-1]

	var patterns []string
	score := 0.0

	if isBullishEngulfing(prev, last) {
		patterns = append(patterns, "bullish_engulfing")
		score += 0.5
	}
	if isBearishEngulfing(prev, last) {
		patterns = append(patterns, "bearish_engulfing")
		score -= 0.5
	}
	if isHammer(last) {
		patterns = append(patterns, "hammer")
		score += 0.3
	}
	if isShootingStar(last) {
		patterns = append(patterns, "shooting_star")
		score -= 0.3
	}
	if isDoji(last) {
		patterns = append(patterns, "doji")
	}

	confidence := 40.0
	if len(patterns) > 0 {
		confidence = 65
	}

	return pipeline.AgentResult{
		Score:      clampScore(score),
		Confidence: confidence,
		Payload:    map[string]any{"patterns": patterns},
	}, nil
}

func body(c market.Candle) float64 {
	return math.Abs(c.Close - c.Open)
}

func isBullishEngulfing(prev, last market.Candle) bool {
	return prev.Close < prev.Open &&
		last.Close > last.Open &&
		last.Close > prev.Open &&
		last.Open < prev.Close
}

func isBearishEngulfing(prev, last market.Candle) bool {
	return prev.Close > prev.Open &&
		last.Close < last.Open &&
		last.Close < prev.Open &&
		last.Open > prev.Close
}

func isHammer(c market.Candle) bool {
	b := body(c)
	lowerWick := math.Min(c.Open, c.Close) - c.Low
	upperWick := c.High - math.Max(c.Open, c.Close)
	return b > 0 && lowerWick > 2*b && upperWick < b
}

func isShootingStar(c market.Candle) bool {
	b := body(c)
	lowerWick := math.Min(c.Open, c.Close) - c.Low
	upperWick := c.High - math.Max(c.Open, c.Close)
	return b > 0 && upperWick > 2*b && lowerWick < b
}

func isDoji(c market.Candle) bool {
	span := c.High - c.Low
	return span > 0 && body(c)/span < 0.1
}
