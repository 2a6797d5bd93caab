package agent

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/quantbrain/quantbrain/internal/pipeline"
)

// Server exposes one agent as a microservice: POST /run evaluates the posted
// pipeline context, GET /health reports liveness.
type Server struct {
	agent  pipeline.Agent
	addr   string
	server *http.Server
	log    zerolog.Logger
}

// NewServer creates an agent server for a single agent
func NewServer(agent pipeline.Agent, port int, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		agent: agent,
		addr:  fmt.Sprintf(":%d", port),
		log:   log.With().Str("component", "agent_server").Str("agent", agent.Name()).Logger(),
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/run", s.handleRun)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the agent server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.addr).Msg("Starting agent server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start agent server: %w", err)
	}
	return nil
}

// Handler exposes the HTTP handler for tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Stop gracefully stops the agent server
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info().Msg("Stopping agent server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleRun(c *gin.Context) {
	var pctx pipeline.Context
	if err := c.ShouldBindJSON(&pctx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid pipeline context: %v", err)})
		return
	}

	result, err := s.agent.Evaluate(c.Request.Context(), &pctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Agent evaluation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result.Clamp())
}
