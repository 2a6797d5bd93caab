package venue

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbrain/quantbrain/internal/config"
)

func TestBinanceFuturesPlaceSignsQuery(t *testing.T) {
	const (
		apiKey    = "fut-key"
		secretKey = "fut-secret"
	)

	var capturedQuery url.Values
	var capturedHeader http.Header

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/fapi/v1/order", r.URL.Path)
		capturedQuery = r.URL.Query()
		capturedHeader = r.Header.Clone()

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"orderId":987654,"clientOrderId":"x-1","symbol":"BTCUSDT","status":"FILLED"}`))
	}))
	defer server.Close()

	adapter := NewBinanceFutures(config.VenueConfig{
		APIKey:    apiKey,
		SecretKey: secretKey,
		BaseURL:   server.URL,
	}, zerolog.Nop())

	result := adapter.Place(context.Background(), Order{Symbol: "BTCUSDT", Side: SideSell, Quantity: 0.5})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "987654", result.TxID)

	assert.Equal(t, apiKey, capturedHeader.Get("X-MBX-APIKEY"))
	assert.Equal(t, "BTCUSDT", capturedQuery.Get("symbol"))
	assert.Equal(t, "SELL", capturedQuery.Get("side"))
	assert.Equal(t, "MARKET", capturedQuery.Get("type"))
	assert.Equal(t, "0.5", capturedQuery.Get("quantity"))
	require.NotEmpty(t, capturedQuery.Get("timestamp"))

	// Recompute the signature over the canonical query
	signed := url.Values{}
	for _, k := range []string{"symbol", "side", "type", "quantity", "timestamp"} {
		signed.Set(k, capturedQuery.Get(k))
	}
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(signed.Encode()))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), capturedQuery.Get("signature"))
}

func TestBinanceFuturesNon2xxFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2019,"msg":"Margin is insufficient."}`))
	}))
	defer server.Close()

	adapter := NewBinanceFutures(config.VenueConfig{APIKey: "k", SecretKey: "s", BaseURL: server.URL}, zerolog.Nop())
	result := adapter.Place(context.Background(), Order{Symbol: "BTCUSDT", Side: SideBuy, Quantity: 1})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Margin is insufficient")
}

func TestBinanceFuturesRetriesTransientRejection(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"code":-1003,"msg":"Way too many requests."}`))
			return
		}
		w.Write([]byte(`{"orderId":42,"clientOrderId":"x-2","symbol":"BTCUSDT","status":"FILLED"}`))
	}))
	defer server.Close()

	adapter := NewBinanceFutures(config.VenueConfig{APIKey: "k", SecretKey: "s", BaseURL: server.URL}, zerolog.Nop())
	result := adapter.Place(context.Background(), Order{Symbol: "BTCUSDT", Side: SideBuy, Quantity: 1})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "42", result.TxID)
	assert.Equal(t, 2, calls)
}

func TestBinanceFuturesMissingCredentialsFails(t *testing.T) {
	adapter := NewBinanceFutures(config.VenueConfig{BaseURL: "https://fapi.binance.com"}, zerolog.Nop())
	result := adapter.Place(context.Background(), Order{Symbol: "BTCUSDT", Side: SideBuy, Quantity: 1})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "credentials")
}

func TestForConfigSelectsAdapter(t *testing.T) {
	venues := map[string]config.VenueConfig{
		"bybit":           {BaseURL: "https://api.bybit.com"},
		"binance-futures": {BaseURL: "https://fapi.binance.com"},
	}

	a, err := ForConfig("bybit", venues, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "bybit", a.Name())

	a, err = ForConfig("binance-futures", venues, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "binance-futures", a.Name())

	_, err = ForConfig("kraken", venues, zerolog.Nop())
	assert.Error(t, err)
}
