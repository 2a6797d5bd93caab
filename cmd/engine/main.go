package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantbrain/quantbrain/internal/agent"
	"github.com/quantbrain/quantbrain/internal/agent/builtin"
	"github.com/quantbrain/quantbrain/internal/api"
	"github.com/quantbrain/quantbrain/internal/brain"
	"github.com/quantbrain/quantbrain/internal/config"
	"github.com/quantbrain/quantbrain/internal/db"
	"github.com/quantbrain/quantbrain/internal/events"
	"github.com/quantbrain/quantbrain/internal/executor"
	"github.com/quantbrain/quantbrain/internal/market"
	"github.com/quantbrain/quantbrain/internal/metrics"
	"github.com/quantbrain/quantbrain/internal/pipeline"
	"github.com/quantbrain/quantbrain/internal/queue"
	"github.com/quantbrain/quantbrain/internal/retry"
	"github.com/quantbrain/quantbrain/internal/venue"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	logger := config.NewLogger("engine")
	logger.Info().Str("environment", cfg.App.Environment).Msg("Starting quantbrain engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	database, err := db.New(ctx, cfg.Database.GetDSN())
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	signalQueue := queue.New(cfg.Redis.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB, logger)
	defer signalQueue.Close()
	if err := signalQueue.Ping(ctx); err != nil {
		logger.Warn().Err(err).Msg("Queue store unreachable at startup, locks will degrade")
	}

	var publisher brain.Publisher
	if cfg.NATS.Enabled {
		natsPub, err := events.Connect(cfg.NATS.URL, cfg.NATS.DecisionTopic, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("NATS unavailable, decisions will not be published")
		} else {
			publisher = natsPub
			defer natsPub.Close()
		}
	}

	gateway := market.NewGateway(market.GatewayConfig{
		BaseURL:        cfg.Market.BaseURL,
		RequestTimeout: time.Duration(cfg.Market.RequestTimeoutMS) * time.Millisecond,
		RetryConfig: retry.Config{
			MaxRetries:     cfg.Market.MaxRetries,
			InitialBackoff: time.Duration(cfg.Market.RetryDelayMS) * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			BackoffFactor:  2.0,
		},
	}, logger)

	registry := agent.NewRegistry(builtin.All(), agent.RemoteConfig{
		URLs:        remoteURLs(cfg.Agents),
		CallTimeout: cfg.Agents.CallTimeout,
	}, logger)

	engine := brain.New(database, signalQueue, publisher, logger)
	orchestrator := pipeline.NewOrchestrator(database, gateway, registry, engine, cfg.Pipeline.CandleLimit, logger)

	var adapter venue.Adapter
	if cfg.Execution.LiveExecution {
		adapter, err = venue.ForConfig(cfg.Execution.Venue, cfg.Venues, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to configure venue adapter")
		}
	}

	workers := make([]*executor.Worker, 0, cfg.Execution.Workers)
	for i := 0; i < cfg.Execution.Workers; i++ {
		worker := executor.New(database, signalQueue, adapter, executor.Config{
			LiveExecution:  cfg.Execution.LiveExecution,
			RiskFraction:   cfg.Execution.RiskFraction,
			ReferencePrice: cfg.Execution.ReferencePrice,
			LockTTL:        cfg.Execution.LockTTL,
			DequeueTimeout: cfg.Execution.DequeueTimeout,
		}, logger)
		worker.Start(ctx)
		workers = append(workers, worker)
	}

	scheduler := newScheduler(cfg, orchestrator, logger)

	server := api.NewServer(api.Config{
		Host:      cfg.API.Host,
		Port:      cfg.API.Port,
		Store:     database,
		Runner:    orchestrator,
		Scheduler: scheduler,
	})

	serverErrors := make(chan error, 2)
	go func() {
		serverErrors <- server.Start()
	}()

	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Monitoring.PrometheusPort, logger)
		go func() {
			serverErrors <- metricsServer.Start()
		}()
	}

	select {
	case err := <-serverErrors:
		logger.Error().Err(err).Msg("Server error")
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	logger.Info().Msg("Shutting down...")
	cancel()
	for _, worker := range workers {
		worker.Wait()
	}
	if scheduler.Status().Running {
		if err := scheduler.Stop(); err != nil {
			logger.Warn().Err(err).Msg("Scheduler stop failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop API server gracefully")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Failed to stop metrics server gracefully")
		}
	}

	logger.Info().Msg("Engine stopped")
}

func newScheduler(cfg *config.Config, orchestrator *pipeline.Orchestrator, logger zerolog.Logger) *pipeline.Scheduler {
	accountID := uuid.Nil
	if cfg.Pipeline.DefaultAccountID != "" {
		parsed, err := uuid.Parse(cfg.Pipeline.DefaultAccountID)
		if err != nil {
			logger.Warn().Str("account_id", cfg.Pipeline.DefaultAccountID).Msg("Invalid default account id, scheduler disabled until started with a valid account")
		} else {
			accountID = parsed
		}
	}

	mode := pipeline.ModeInProcess
	if cfg.Agents.Mode == "remote" {
		mode = pipeline.ModeRemote
	}

	return pipeline.NewScheduler(orchestrator, pipeline.SchedulerConfig{
		AccountID: accountID,
		Symbol:    cfg.Pipeline.DefaultSymbol,
		Timeframe: cfg.Pipeline.DefaultTimeframe,
		Mode:      mode,
		Interval:  cfg.Pipeline.Interval,
	}, logger)
}

func remoteURLs(cfg config.AgentsConfig) map[string]string {
	urls := make(map[string]string, len(pipeline.AgentOrder))
	for _, name := range pipeline.AgentOrder {
		urls[name] = cfg.AgentURL(name)
	}
	return urls
}
