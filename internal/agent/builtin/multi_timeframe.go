package builtin

import (
	"context"

	"github.com/quantbrain/quantbrain/internal/market"
	"github.com/quantbrain/quantbrain/internal/pipeline"
)

// MultiTimeframe measures trend agreement across 15m, 1h, and 4h by comparing
// each interval's last close against its SMA20.
type MultiTimeframe struct{}

// Name returns the agent name
func (a *MultiTimeframe) Name() string { return "multi-timeframe" }

// Evaluate averages per-interval trend direction
func (a *MultiTimeframe) Evaluate(_ context.Context, pctx *pipeline.Context) (pipeline.AgentResult, error) {
	intervals := []string{"15m", "1h", "4h"}
	directions := make(map[string]string, len(intervals))

	var sum float64
	var counted int
	for _, interval := range intervals {
		candles := pctx.Candles(interval)
		if len(candles) < 20 {
			directions[interval] = "unknown"
			continue
		}

		closes := market.Closes(candles)
		sma, ok := smaLast(closes, 20)
		if !ok || sma == 0 {
			directions[interval] = "unknown"
			continue
		}

		price := closes[len(closes)-1]
		dev := (price - sma) / sma
		switch {
		case dev > 0.002:
			directions[interval] = "up"
			sum++
		case dev < -0.002:
			directions[interval] = "down"
			sum--
		default:
			directions[interval] = "flat"
		}
		counted++
	}

	if counted == 0 {
		return insufficientData("no interval had enough candles"), nil
	}

	score := clampScore(sum / float64(len(intervals)))

	// Full agreement across all three intervals is a strong read
	confidence := 40 + 20*absF(sum)/float64(len(intervals))*3
	if confidence > 100 {
		confidence = 100
	}

	return pipeline.AgentResult{
		Score:      score,
		Confidence: confidence,
		Payload: map[string]any{
			"directions": directions,
			"agreement":  sum,
		},
	}, nil
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
