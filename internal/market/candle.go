// Package market fetches OHLC candle data from the public market endpoint
package market

import (
	"fmt"
	"math"
	"time"
)

// Candle is an immutable OHLCV snapshot
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Intervals fetched for every pipeline run, lowest first
var Intervals = []string{"15m", "1h", "4h", "1d"}

// Validate rejects candles with non-finite fields or zero timestamps
func (c Candle) Validate() error {
	for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("candle at %s has non-finite field", c.OpenTime)
		}
	}
	if c.OpenTime.IsZero() {
		return fmt.Errorf("candle has zero open time")
	}
	return nil
}

// Closes extracts the close series from a candle sequence
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Volumes extracts the volume series from a candle sequence
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}
