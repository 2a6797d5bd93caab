package market

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/rs/zerolog"

	"github.com/quantbrain/quantbrain/internal/retry"
)

// Gateway fetches candle sequences from the public market endpoint. Stateless.
type Gateway struct {
	client      *binance.Client
	retryConfig retry.Config
	log         zerolog.Logger
}

// GatewayConfig contains market gateway configuration
type GatewayConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	RetryConfig    retry.Config
}

// NewGateway creates a market data gateway
func NewGateway(cfg GatewayConfig, log zerolog.Logger) *Gateway {
	client := binance.NewClient("", "")
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}
	if cfg.RequestTimeout > 0 {
		client.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &Gateway{
		client:      client,
		retryConfig: cfg.RetryConfig,
		log:         log.With().Str("component", "market_gateway").Logger(),
	}
}

// Candles fetches up to limit candles for (symbol, interval), ordered by open
// time ascending. All numeric fields are validated finite.
func (g *Gateway) Candles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	var klines []*binance.Kline

	err := retry.Do(ctx, g.retryConfig, func() error {
		var callErr error
		klines, callErr = g.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			Limit(limit).
			Do(ctx)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch klines for %s %s: %w", symbol, interval, err)
	}

	candles := make([]Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := parseKline(k)
		if err != nil {
			return nil, fmt.Errorf("invalid kline for %s %s: %w", symbol, interval, err)
		}
		candles = append(candles, candle)
	}

	// The endpoint returns ascending open times, but the ordering invariant is
	// ours to guarantee.
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].OpenTime.Before(candles[j].OpenTime)
	})

	g.log.Debug().
		Str("symbol", symbol).
		Str("interval", interval).
		Int("count", len(candles)).
		Msg("Fetched candles")

	return candles, nil
}

func parseKline(k *binance.Kline) (Candle, error) {
	candle := Candle{
		OpenTime: time.UnixMilli(k.OpenTime),
	}

	fields := []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"open", k.Open, &candle.Open},
		{"high", k.High, &candle.High},
		{"low", k.Low, &candle.Low},
		{"close", k.Close, &candle.Close},
		{"volume", k.Volume, &candle.Volume},
	}

	for _, f := range fields {
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return Candle{}, fmt.Errorf("failed to parse %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = v
	}

	if err := candle.Validate(); err != nil {
		return Candle{}, err
	}

	return candle, nil
}
