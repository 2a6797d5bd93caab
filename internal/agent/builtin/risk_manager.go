package builtin

import (
	"context"
	"math"

	"github.com/quantbrain/quantbrain/internal/pipeline"
)

// RiskManager runs last in the chain and reads every predecessor. It scores
// negatively when predecessors disagree strongly or the volatility regime is
// hostile, acting as the veto input of the decision engine.
type RiskManager struct{}

// Name returns the agent name
func (a *RiskManager) Name() string { return "risk-manager" }

// Evaluate aggregates predecessor scores into a risk verdict
func (a *RiskManager) Evaluate(_ context.Context, pctx *pipeline.Context) (pipeline.AgentResult, error) {
	var scores []float64
	failed := 0
	for _, name := range pipeline.AgentOrder {
		if name == a.Name() {
			continue
		}
		r, ok := pctx.Result(name)
		if !ok {
			continue
		}
		if _, hasErr := r.Payload["error"]; hasErr {
			failed++
			continue
		}
		scores = append(scores, r.Score)
	}

	if len(scores) == 0 {
		return insufficientData("no predecessor results"), nil
	}

	avg := 0.0
	for _, s := range scores {
		avg += s
	}
	avg /= float64(len(scores))

	var variance float64
	for _, s := range scores {
		variance += (s - avg) * (s - avg)
	}
	dispersion := math.Sqrt(variance / float64(len(scores)))

	score := avg * 0.5
	var flags []string

	if dispersion > 0.5 {
		score -= 0.4
		flags = append(flags, "high_dispersion")
	}
	if failed >= 2 {
		score -= 0.3
		flags = append(flags, "degraded_chain")
	}
	if vr, ok := pctx.Result("volatility-regime"); ok {
		if regime, _ := vr.Payload["regime"].(string); regime == "high" {
			score -= 0.2
			flags = append(flags, "high_volatility")
		}
	}

	confidence := 60 + 20*(1-math.Min(dispersion*2, 1))

	return pipeline.AgentResult{
		Score:      clampScore(score),
		Confidence: confidence,
		Payload: map[string]any{
			"avg_score":     avg,
			"dispersion":    dispersion,
			"failed_agents": failed,
			"flags":         flags,
		},
	}, nil
}
