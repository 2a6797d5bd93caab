// Package builtin contains the in-process agent implementations. Each agent
// reads the pipeline context and returns a score in [-1,1] with a confidence
// in [0,100]; indicator math is delegated to cinar/indicator.
package builtin

import (
	"github.com/quantbrain/quantbrain/internal/pipeline"
)

// All returns the full in-process agent set, one per name in the fixed chain
func All() []pipeline.Agent {
	return []pipeline.Agent{
		&MarketStructure{},
		&OrderFlow{},
		&Momentum{},
		&VolatilityRegime{},
		&NewsSentiment{},
		&MultiTimeframe{},
		&PatternRecognition{},
		&StatisticalEdge{},
		&RiskManager{},
	}
}
