// Package config loads application configuration from file and environment
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig              `mapstructure:"app"`
	Database   DatabaseConfig         `mapstructure:"database"`
	Redis      RedisConfig            `mapstructure:"redis"`
	NATS       NATSConfig             `mapstructure:"nats"`
	Market     MarketConfig           `mapstructure:"market"`
	Pipeline   PipelineConfig         `mapstructure:"pipeline"`
	Agents     AgentsConfig           `mapstructure:"agents"`
	Execution  ExecutionConfig        `mapstructure:"execution"`
	Venues     map[string]VenueConfig `mapstructure:"venues"`
	API        APIConfig              `mapstructure:"api"`
	Monitoring MonitoringConfig       `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// DatabaseConfig contains PostgreSQL settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains settings for the queue and lock store
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig contains settings for the optional decision event bus
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	Enabled       bool   `mapstructure:"enabled"`
	DecisionTopic string `mapstructure:"decision_topic"`
}

// MarketConfig contains market-data gateway settings
type MarketConfig struct {
	BaseURL          string `mapstructure:"base_url"` // public market endpoint base
	MaxRetries       int    `mapstructure:"max_retries"`
	RetryDelayMS     int    `mapstructure:"retry_delay_ms"`
	RequestTimeoutMS int    `mapstructure:"request_timeout_ms"`
}

// PipelineConfig contains orchestrator and scheduler settings
type PipelineConfig struct {
	DefaultAccountID string        `mapstructure:"default_account_id"`
	DefaultSymbol    string        `mapstructure:"default_symbol"`
	DefaultTimeframe string        `mapstructure:"default_timeframe"`
	Interval         time.Duration `mapstructure:"interval"` // scheduler period
	CandleLimit      int           `mapstructure:"candle_limit"`
}

// AgentsConfig contains agent host settings
type AgentsConfig struct {
	Mode        string         `mapstructure:"mode"`     // "in-process" or "remote"
	BaseURL     string         `mapstructure:"base_url"` // remote agent base, e.g. http://localhost
	Ports       map[string]int `mapstructure:"ports"`    // agent name -> port
	CallTimeout time.Duration  `mapstructure:"call_timeout"`
	ServerPort  int            `mapstructure:"server_port"` // agent-server listen port
}

// ExecutionConfig contains execution worker settings
type ExecutionConfig struct {
	LiveExecution  bool          `mapstructure:"live_execution"` // master switch for venue dispatch
	Venue          string        `mapstructure:"venue"`          // "bybit" or "binance-futures"
	RiskFraction   float64       `mapstructure:"risk_fraction"`  // fraction of balance per trade
	ReferencePrice float64       `mapstructure:"reference_price"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	DequeueTimeout time.Duration `mapstructure:"dequeue_timeout"`
	Workers        int           `mapstructure:"workers"`
}

// VenueConfig contains credentials and endpoint for one venue
type VenueConfig struct {
	APIKey     string `mapstructure:"api_key"`
	SecretKey  string `mapstructure:"secret_key"`
	BaseURL    string `mapstructure:"base_url"`
	RecvWindow int    `mapstructure:"recv_window"` // ms, venue A only
	Testnet    bool   `mapstructure:"testnet"`
}

// APIConfig contains control-plane HTTP settings
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MonitoringConfig contains metrics settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("QUANTBRAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "quantbrain")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "quantbrain")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.decision_topic", "quantbrain.brain.decisions")

	v.SetDefault("market.base_url", "https://api.binance.com")
	v.SetDefault("market.max_retries", 3)
	v.SetDefault("market.retry_delay_ms", 250)
	v.SetDefault("market.request_timeout_ms", 10000)

	v.SetDefault("pipeline.default_symbol", "BTCUSDT")
	v.SetDefault("pipeline.default_timeframe", "1h")
	v.SetDefault("pipeline.interval", "15m")
	v.SetDefault("pipeline.candle_limit", 200)

	v.SetDefault("agents.mode", "in-process")
	v.SetDefault("agents.base_url", "http://localhost")
	v.SetDefault("agents.call_timeout", "30s")
	v.SetDefault("agents.server_port", 9200)

	v.SetDefault("execution.live_execution", false)
	v.SetDefault("execution.venue", "bybit")
	v.SetDefault("execution.risk_fraction", 0.05)
	v.SetDefault("execution.reference_price", 50000.0)
	v.SetDefault("execution.lock_ttl", "60s")
	v.SetDefault("execution.dequeue_timeout", "5s")
	v.SetDefault("execution.workers", 1)

	v.SetDefault("venues.bybit.base_url", "https://api.bybit.com")
	v.SetDefault("venues.bybit.recv_window", 5000)
	v.SetDefault("venues.binance-futures.base_url", "https://fapi.binance.com")

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8081)

	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if c.Agents.Mode != "in-process" && c.Agents.Mode != "remote" {
		return fmt.Errorf("invalid agents.mode: %q (must be in-process or remote)", c.Agents.Mode)
	}

	if c.Execution.RiskFraction <= 0 || c.Execution.RiskFraction > 1 {
		return fmt.Errorf("invalid execution.risk_fraction: %f (must be in (0,1])", c.Execution.RiskFraction)
	}

	if c.Execution.LiveExecution {
		venue, ok := c.Venues[c.Execution.Venue]
		if !ok {
			return fmt.Errorf("live execution enabled but venue %q is not configured", c.Execution.Venue)
		}
		if venue.APIKey == "" || venue.SecretKey == "" {
			return fmt.Errorf("live execution enabled but venue %q has no credentials", c.Execution.Venue)
		}
	}

	if c.Pipeline.CandleLimit <= 0 || c.Pipeline.CandleLimit > 1000 {
		return fmt.Errorf("invalid pipeline.candle_limit: %d", c.Pipeline.CandleLimit)
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode, c.PoolSize,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAPIAddr returns the control-plane server address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AgentURL returns the endpoint for a remote agent by name
func (c *AgentsConfig) AgentURL(name string) string {
	if port, ok := c.Ports[name]; ok {
		return fmt.Sprintf("%s:%d", c.BaseURL, port)
	}
	return fmt.Sprintf("%s:%d", c.BaseURL, c.ServerPort)
}
