package builtin

import (
	"context"

	"github.com/quantbrain/quantbrain/internal/pipeline"
)

// NewsSentiment scores external news flow. Without a configured feed it
// reports a neutral parse-failure result rather than guessing: score zero,
// confidence 30, reason in the payload.
type NewsSentiment struct {
	// Feed returns a sentiment in [-1,1] with a confidence, or ok=false when
	// no usable headline data is available.
	Feed func(ctx context.Context, symbol string) (score, confidence float64, ok bool)
}

// Name returns the agent name
func (a *NewsSentiment) Name() string { return "news-sentiment" }

// Evaluate consults the feed when one is wired
func (a *NewsSentiment) Evaluate(ctx context.Context, pctx *pipeline.Context) (pipeline.AgentResult, error) {
	if a.Feed == nil {
		return pipeline.AgentResult{
			Score:      0,
			Confidence: 30,
			Payload:    map[string]any{"reason": "no news feed configured"},
		}, nil
	}

	score, confidence, ok := a.Feed(ctx, pctx.Symbol)
	if !ok {
		return pipeline.AgentResult{
			Score:      0,
			Confidence: 30,
			Payload:    map[string]any{"reason": "news feed returned no parseable sentiment"},
		}, nil
	}

	return pipeline.AgentResult{
		Score:      clampScore(score),
		Confidence: confidence,
		Payload:    map[string]any{"source": "feed"},
	}, nil
}
