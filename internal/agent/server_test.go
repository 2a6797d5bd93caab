package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbrain/quantbrain/internal/pipeline"
)

func postRun(t *testing.T, handler http.Handler, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/run", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServerRunEvaluatesAgent(t *testing.T) {
	agent := &staticAgent{name: "momentum", result: pipeline.AgentResult{Score: 0.3, Confidence: 65}}
	srv := NewServer(agent, 0, zerolog.Nop())

	body, err := json.Marshal(&pipeline.Context{Symbol: "BTCUSDT", Timeframe: "1h"})
	require.NoError(t, err)

	rec := postRun(t, srv.Handler(), body)
	require.Equal(t, http.StatusOK, rec.Code)

	var result pipeline.AgentResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.InDelta(t, 0.3, result.Score, 1e-9)
	assert.InDelta(t, 65, result.Confidence, 1e-9)
}

func TestServerClampsOutOfRangeResult(t *testing.T) {
	agent := &staticAgent{name: "momentum", result: pipeline.AgentResult{Score: 4.2, Confidence: 180}}
	srv := NewServer(agent, 0, zerolog.Nop())

	body, _ := json.Marshal(&pipeline.Context{Symbol: "BTCUSDT"})
	rec := postRun(t, srv.Handler(), body)
	require.Equal(t, http.StatusOK, rec.Code)

	var result pipeline.AgentResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1.0, result.Score)
	assert.Equal(t, 100.0, result.Confidence)
}

func TestServerRejectsMalformedContext(t *testing.T) {
	srv := NewServer(&staticAgent{name: "momentum"}, 0, zerolog.Nop())

	rec := postRun(t, srv.Handler(), []byte(`{"symbol":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerAgentErrorIs500(t *testing.T) {
	agent := &staticAgent{name: "momentum", err: errors.New("feed unavailable")}
	srv := NewServer(agent, 0, zerolog.Nop())

	body, _ := json.Marshal(&pipeline.Context{Symbol: "BTCUSDT"})
	rec := postRun(t, srv.Handler(), body)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "feed unavailable")
}

func TestServerHealth(t *testing.T) {
	srv := NewServer(&staticAgent{name: "momentum"}, 0, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/health", strings.NewReader(""))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
