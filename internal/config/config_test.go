package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: quantbrain\n"))
	require.NoError(t, err)

	assert.Equal(t, "quantbrain", cfg.App.Name)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "in-process", cfg.Agents.Mode)
	assert.Equal(t, "BTCUSDT", cfg.Pipeline.DefaultSymbol)
	assert.Equal(t, 200, cfg.Pipeline.CandleLimit)
	assert.False(t, cfg.Execution.LiveExecution)
	assert.InDelta(t, 0.05, cfg.Execution.RiskFraction, 1e-9)
	assert.InDelta(t, 50000.0, cfg.Execution.ReferencePrice, 1e-9)
	assert.Equal(t, "https://api.bybit.com", cfg.Venues["bybit"].BaseURL)
	assert.Equal(t, 5000, cfg.Venues["bybit"].RecvWindow)
	assert.Equal(t, "https://fapi.binance.com", cfg.Venues["binance-futures"].BaseURL)
	assert.Equal(t, 8081, cfg.API.Port)
}

func TestLoadOverridesFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
app:
  log_level: debug
agents:
  mode: remote
  base_url: http://agents.internal
  ports:
    momentum: 9103
pipeline:
  interval: 5m
  candle_limit: 500
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "remote", cfg.Agents.Mode)
	assert.Equal(t, 500, cfg.Pipeline.CandleLimit)
	assert.Equal(t, "5m0s", cfg.Pipeline.Interval.String())
	assert.Equal(t, "http://agents.internal:9103", cfg.Agents.AgentURL("momentum"))
	assert.Equal(t, "http://agents.internal:9200", cfg.Agents.AgentURL("order-flow"))
}

func TestValidateRejectsBadMode(t *testing.T) {
	_, err := Load(writeConfig(t, "agents:\n  mode: sidecar\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agents.mode")
}

func TestValidateRejectsBadRiskFraction(t *testing.T) {
	_, err := Load(writeConfig(t, "execution:\n  risk_fraction: 1.5\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "risk_fraction")
}

func TestValidateRejectsLiveExecutionWithoutCredentials(t *testing.T) {
	_, err := Load(writeConfig(t, "execution:\n  live_execution: true\n  venue: bybit\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials")
}

func TestValidateRejectsBadCandleLimit(t *testing.T) {
	_, err := Load(writeConfig(t, "pipeline:\n  candle_limit: 5000\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "candle_limit")
}

func TestConnectionHelpers(t *testing.T) {
	db := DatabaseConfig{
		Host: "db.internal", Port: 5433, User: "qb", Password: "pw",
		Database: "quantbrain", SSLMode: "require", PoolSize: 20,
	}
	assert.Equal(t,
		"host=db.internal port=5433 user=qb password=pw dbname=quantbrain sslmode=require pool_max_conns=20",
		db.GetDSN())

	redis := RedisConfig{Host: "cache.internal", Port: 6380}
	assert.Equal(t, "cache.internal:6380", redis.GetRedisAddr())

	api := APIConfig{Host: "127.0.0.1", Port: 8081}
	assert.Equal(t, "127.0.0.1:8081", api.GetAPIAddr())
}
