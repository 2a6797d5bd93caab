// Package api is the UI-facing control plane for the decision engine
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quantbrain/quantbrain/internal/db"
	"github.com/quantbrain/quantbrain/internal/pipeline"
)

// ReadStore is the projection surface the control plane serves
type ReadStore interface {
	ListAccounts(ctx context.Context) ([]*db.Account, error)
	ListPipelineRuns(ctx context.Context, limit int) ([]*db.PipelineRun, error)
	ListPipelineSteps(ctx context.Context, runID uuid.UUID) ([]*db.PipelineStep, error)
	ListTradeSignals(ctx context.Context, limit int) ([]*db.TradeSignal, error)
	ListBrainDecisions(ctx context.Context, limit int) ([]*db.BrainDecision, error)
	Health(ctx context.Context) error
}

// SchedulerControl exposes the scheduler to the control plane
type SchedulerControl interface {
	Start(ctx context.Context) error
	Stop() error
	Status() pipeline.SchedulerStatus
}

// Server is the REST control plane
type Server struct {
	router    *gin.Engine
	store     ReadStore
	runner    pipeline.Runner
	scheduler SchedulerControl
	addr      string
	server    *http.Server
}

// Config contains server configuration
type Config struct {
	Host      string
	Port      int
	Store     ReadStore
	Runner    pipeline.Runner
	Scheduler SchedulerControl
}

// NewServer creates the control-plane server
func NewServer(config Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	server := &Server{
		router:    router,
		store:     config.Store,
		runner:    config.Runner,
		scheduler: config.Scheduler,
		addr:      fmt.Sprintf("%s:%d", config.Host, config.Port),
	}

	server.setupRoutes()

	return server
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
	}

	return nil
}

// Router exposes the gin engine for handler tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// LoggerMiddleware is a custom logging middleware for Gin
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method

		logEvent := log.Info().
			Str("method", method).
			Str("path", path).
			Str("query", query).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("client_ip", clientIP)

		if len(c.Errors) > 0 {
			logEvent.Str("errors", c.Errors.String())
		}

		logEvent.Msg("API request")
	}
}
