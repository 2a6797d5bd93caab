package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantbrain/quantbrain/internal/agent"
	"github.com/quantbrain/quantbrain/internal/agent/builtin"
	"github.com/quantbrain/quantbrain/internal/config"
	"github.com/quantbrain/quantbrain/internal/pipeline"
)

// agent-server hosts a single pipeline agent as an HTTP microservice, one
// process per agent name, for remote-mode deployments.
func main() {
	configPath := flag.String("config", "", "path to config file")
	agentName := flag.String("agent", "", "agent name to serve")
	port := flag.Int("port", 0, "listen port (defaults to the configured port map)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	logger := config.NewAgentLogger(*agentName)

	var hosted pipeline.Agent
	for _, a := range builtin.All() {
		if a.Name() == *agentName {
			hosted = a
			break
		}
	}
	if hosted == nil {
		logger.Fatal().Str("agent", *agentName).Msg("Unknown agent name")
	}

	listenPort := *port
	if listenPort == 0 {
		if p, ok := cfg.Agents.Ports[*agentName]; ok {
			listenPort = p
		} else {
			listenPort = cfg.Agents.ServerPort
		}
	}

	server := agent.NewServer(hosted, listenPort, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	select {
	case err := <-serverErrors:
		logger.Error().Err(err).Msg("Server error")
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop agent server gracefully")
		os.Exit(1)
	}

	logger.Info().Msg("Agent server stopped")
}
