package venue

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantbrain/quantbrain/internal/config"
	"github.com/quantbrain/quantbrain/internal/retry"
)

// BinanceFutures places USD-M futures market orders. The request is a signed
// URL-encoded query; success is any 2xx response.
type BinanceFutures struct {
	apiKey      string
	secretKey   string
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config
	log         zerolog.Logger
}

type binanceOrderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
}

// NewBinanceFutures creates the Binance futures adapter
func NewBinanceFutures(cfg config.VenueConfig, log zerolog.Logger) *BinanceFutures {
	return &BinanceFutures{
		apiKey:      strings.TrimSpace(cfg.APIKey),
		secretKey:   strings.TrimSpace(cfg.SecretKey),
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		retryConfig: retry.DefaultConfig(),
		log:         log.With().Str("component", "venue_binance_futures").Logger(),
	}
}

// Name returns the venue name
func (b *BinanceFutures) Name() string { return "binance-futures" }

// Place submits a market order
func (b *BinanceFutures) Place(ctx context.Context, order Order) PlaceResult {
	if b.apiKey == "" || b.secretKey == "" {
		return PlaceResult{Success: false, Error: "binance futures credentials not configured"}
	}

	side := strings.ToUpper(order.Side)

	// Transport failures retry with backoff; the query is rebuilt and re-signed
	// each attempt so the timestamp stays inside the server's receive window.
	var parsed binanceOrderResponse
	err := retry.Do(ctx, b.retryConfig, func() error {
		params := url.Values{}
		params.Set("symbol", order.Symbol)
		params.Set("side", side)
		params.Set("type", "MARKET")
		params.Set("quantity", strconv.FormatFloat(order.Quantity, 'f', -1, 64))
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))

		query := params.Encode()
		query += "&signature=" + b.sign(query)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/fapi/v1/order?"+query, nil)
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("X-MBX-APIKEY", b.apiKey)

		resp, err := b.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("binance request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read binance response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			b.log.Warn().Int("status", resp.StatusCode).Str("body", string(respBody)).Msg("Binance rejected order")
			return fmt.Errorf("binance status %d: %s", resp.StatusCode, string(respBody))
		}

		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("failed to parse binance response: %w", err)
		}
		return nil
	})
	if err != nil {
		return PlaceResult{Success: false, Error: err.Error()}
	}

	txID := strconv.FormatInt(parsed.OrderID, 10)
	if parsed.OrderID == 0 {
		txID = parsed.ClientOrderID
	}

	b.log.Info().
		Str("symbol", order.Symbol).
		Str("side", side).
		Str("order_id", txID).
		Msg("Binance futures order placed")

	return PlaceResult{Success: true, TxID: txID}
}

func (b *BinanceFutures) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(b.secretKey))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}
