package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/quantbrain/quantbrain/internal/db"
	"github.com/quantbrain/quantbrain/internal/pipeline"
)

const defaultListLimit = 50

type runRequest struct {
	AccountID     string `json:"account_id" binding:"required"`
	Symbol        string `json:"symbol" binding:"required"`
	Timeframe     string `json:"timeframe" binding:"required"`
	UseHTTPAgents bool   `json:"use_http_agents"`
}

type runWithSteps struct {
	Run   *db.PipelineRun    `json:"run"`
	Steps []*db.PipelineStep `json:"steps"`
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Health(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleRunPipeline(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	accountID, err := uuid.Parse(req.AccountID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account_id"})
		return
	}

	mode := pipeline.ModeInProcess
	if req.UseHTTPAgents {
		mode = pipeline.ModeRemote
	}

	runID, err := s.runner.RunOnce(c.Request.Context(), accountID, req.Symbol, req.Timeframe, mode)
	if err != nil {
		status := http.StatusInternalServerError
		body := gin.H{"error": err.Error()}
		if runID != uuid.Nil {
			body["run_id"] = runID
			body["status"] = db.RunStatusFailed
		}
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{"run_id": runID, "status": db.RunStatusCompleted})
}

func (s *Server) handleListRuns(c *gin.Context) {
	limit := queryLimit(c)

	runs, err := s.store.ListPipelineRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]runWithSteps, 0, len(runs))
	for _, run := range runs {
		steps, err := s.store.ListPipelineSteps(c.Request.Context(), run.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out = append(out, runWithSteps{Run: run, Steps: steps})
	}

	c.JSON(http.StatusOK, gin.H{"runs": out})
}

func (s *Server) handleSchedulerStart(c *gin.Context) {
	if err := s.scheduler.Start(c.Request.Context()); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.scheduler.Status())
}

func (s *Server) handleSchedulerStop(c *gin.Context) {
	if err := s.scheduler.Stop(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.scheduler.Status())
}

func (s *Server) handleSchedulerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.scheduler.Status())
}

func (s *Server) handleListAccounts(c *gin.Context) {
	accounts, err := s.store.ListAccounts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

func (s *Server) handleListSignals(c *gin.Context) {
	signals, err := s.store.ListTradeSignals(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

func (s *Server) handleListDecisions(c *gin.Context) {
	decisions, err := s.store.ListBrainDecisions(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": decisions})
}

func queryLimit(c *gin.Context) int {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}
	return limit
}
