package builtin

import (
	"math"

	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"

	"github.com/quantbrain/quantbrain/internal/pipeline"
)

func toChan(values []float64) chan float64 {
	ch := make(chan float64, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)
	return ch
}

func lastValue(ch <-chan float64) (float64, bool) {
	var last float64
	ok := false
	for v := range ch {
		last = v
		ok = true
	}
	return last, ok
}

func smaLast(values []float64, period int) (float64, bool) {
	if len(values) < period {
		return 0, false
	}
	return lastValue(trend.NewSmaWithPeriod[float64](period).Compute(toChan(values)))
}

func emaLast(values []float64, period int) (float64, bool) {
	if len(values) < period {
		return 0, false
	}
	return lastValue(trend.NewEmaWithPeriod[float64](period).Compute(toChan(values)))
}

func rsiLast(values []float64, period int) (float64, bool) {
	if len(values) <= period {
		return 0, false
	}
	return lastValue(momentum.NewRsiWithPeriod[float64](period).Compute(toChan(values)))
}

func macdLast(values []float64, fast, slow, signal int) (macd, sig float64, ok bool) {
	if len(values) < slow+signal {
		return 0, 0, false
	}

	macdChan, signalChan := trend.NewMacdWithPeriod[float64](fast, slow, signal).Compute(toChan(values))
	for {
		m, mok := <-macdChan
		s, sok := <-signalChan
		if !mok || !sok {
			break
		}
		macd, sig, ok = m, s, true
	}
	return macd, sig, ok
}

func bollingerLast(values []float64, period int) (lower, middle, upper float64, ok bool) {
	if len(values) < period {
		return 0, 0, 0, false
	}

	// Compute returns the bands as (upper, middle, lower).
	upperChan, middleChan, lowerChan := volatility.NewBollingerBandsWithPeriod[float64](period).Compute(toChan(values))
	for {
		u, uok := <-upperChan
		m, mok := <-middleChan
		l, lok := <-lowerChan
		if !uok || !mok || !lok {
			break
		}
		lower, middle, upper, ok = l, m, u, true
	}
	return lower, middle, upper, ok
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Min(math.Max(v, -1), 1)
}

func insufficientData(reason string) pipeline.AgentResult {
	return pipeline.AgentResult{
		Score:      0,
		Confidence: 20,
		Payload:    map[string]any{"reason": reason},
	}
}
