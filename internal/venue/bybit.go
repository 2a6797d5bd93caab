package venue

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantbrain/quantbrain/internal/config"
	"github.com/quantbrain/quantbrain/internal/retry"
)

// Bybit places linear perpetual market orders on the Bybit v5 API.
// Requests are HMAC-SHA256 signed across timestamp|apiKey|recvWindow|body.
type Bybit struct {
	apiKey      string
	secretKey   string
	baseURL     string
	recvWindow  int
	httpClient  *http.Client
	retryConfig retry.Config
	log         zerolog.Logger
}

type bybitOrderRequest struct {
	Category    string `json:"category"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	OrderType   string `json:"orderType"`
	Qty         string `json:"qty"`
	TimeInForce string `json:"timeInForce"`
}

type bybitOrderResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	} `json:"result"`
}

// NewBybit creates the Bybit adapter. Keys are trimmed because stray
// whitespace breaks signature generation.
func NewBybit(cfg config.VenueConfig, log zerolog.Logger) *Bybit {
	recvWindow := cfg.RecvWindow
	if recvWindow <= 0 {
		recvWindow = 5000
	}
	return &Bybit{
		apiKey:      strings.TrimSpace(cfg.APIKey),
		secretKey:   strings.TrimSpace(cfg.SecretKey),
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		recvWindow:  recvWindow,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		retryConfig: retry.DefaultConfig(),
		log:         log.With().Str("component", "venue_bybit").Logger(),
	}
}

// Name returns the venue name
func (b *Bybit) Name() string { return "bybit" }

// Place submits an IOC market order
func (b *Bybit) Place(ctx context.Context, order Order) PlaceResult {
	if b.apiKey == "" || b.secretKey == "" {
		return PlaceResult{Success: false, Error: "bybit credentials not configured"}
	}

	reqBody := bybitOrderRequest{
		Category:    "linear",
		Symbol:      order.Symbol,
		Side:        canonicalSide(order.Side),
		OrderType:   "Market",
		Qty:         strconv.FormatFloat(order.Quantity, 'f', -1, 64),
		TimeInForce: "IOC",
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return PlaceResult{Success: false, Error: fmt.Sprintf("failed to encode order: %v", err)}
	}

	// Transport failures retry with backoff; each attempt is re-signed with a
	// fresh timestamp so recvWindow checks still hold. A venue rejection is
	// terminal and never retried.
	var parsed bybitOrderResponse
	err = retry.Do(ctx, b.retryConfig, func() error {
		timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
		recvWindow := strconv.Itoa(b.recvWindow)
		signature := b.sign(timestamp + b.apiKey + recvWindow + string(body))

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v5/order/create", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-BAPI-API-KEY", b.apiKey)
		req.Header.Set("X-BAPI-SIGN", signature)
		req.Header.Set("X-BAPI-TIMESTAMP", timestamp)
		req.Header.Set("X-BAPI-RECV-WINDOW", recvWindow)

		resp, err := b.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("bybit request failed: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read bybit response: %w", err)
		}

		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("failed to parse bybit response: %w", err)
		}
		return nil
	})
	if err != nil {
		return PlaceResult{Success: false, Error: err.Error()}
	}

	if parsed.RetCode != 0 {
		b.log.Warn().Int("ret_code", parsed.RetCode).Str("ret_msg", parsed.RetMsg).Msg("Bybit rejected order")
		return PlaceResult{Success: false, Error: fmt.Sprintf("bybit retCode=%d: %s", parsed.RetCode, parsed.RetMsg)}
	}

	b.log.Info().
		Str("symbol", order.Symbol).
		Str("side", reqBody.Side).
		Str("order_id", parsed.Result.OrderID).
		Msg("Bybit order placed")

	return PlaceResult{Success: true, TxID: parsed.Result.OrderID}
}

func (b *Bybit) sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(b.secretKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func canonicalSide(side string) string {
	if strings.EqualFold(side, SideSell) {
		return "Sell"
	}
	return "Buy"
}
