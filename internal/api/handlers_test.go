package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbrain/quantbrain/internal/db"
	"github.com/quantbrain/quantbrain/internal/pipeline"
)

type fakeStore struct {
	accounts  []*db.Account
	runs      []*db.PipelineRun
	steps     map[uuid.UUID][]*db.PipelineStep
	signals   []*db.TradeSignal
	decisions []*db.BrainDecision
	healthErr error
	lastLimit int
}

func (s *fakeStore) ListAccounts(context.Context) ([]*db.Account, error) { return s.accounts, nil }

func (s *fakeStore) ListPipelineRuns(_ context.Context, limit int) ([]*db.PipelineRun, error) {
	s.lastLimit = limit
	return s.runs, nil
}

func (s *fakeStore) ListPipelineSteps(_ context.Context, runID uuid.UUID) ([]*db.PipelineStep, error) {
	return s.steps[runID], nil
}

func (s *fakeStore) ListTradeSignals(_ context.Context, limit int) ([]*db.TradeSignal, error) {
	s.lastLimit = limit
	return s.signals, nil
}

func (s *fakeStore) ListBrainDecisions(_ context.Context, limit int) ([]*db.BrainDecision, error) {
	s.lastLimit = limit
	return s.decisions, nil
}

func (s *fakeStore) Health(context.Context) error { return s.healthErr }

type fakeRunner struct {
	runID    uuid.UUID
	err      error
	lastMode pipeline.Mode
}

func (r *fakeRunner) RunOnce(_ context.Context, _ uuid.UUID, _, _ string, mode pipeline.Mode) (uuid.UUID, error) {
	r.lastMode = mode
	return r.runID, r.err
}

type fakeScheduler struct {
	startErr error
	stopErr  error
	status   pipeline.SchedulerStatus
}

func (s *fakeScheduler) Start(context.Context) error      { return s.startErr }
func (s *fakeScheduler) Stop() error                      { return s.stopErr }
func (s *fakeScheduler) Status() pipeline.SchedulerStatus { return s.status }

type reqBody = map[string]any

func newTestServer(store *fakeStore, runner *fakeRunner, sched *fakeScheduler) *Server {
	return NewServer(Config{
		Host:      "127.0.0.1",
		Port:      0,
		Store:     store,
		Runner:    runner,
		Scheduler: sched,
	})
}

func doJSON(srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthReflectsStore(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(store, &fakeRunner{}, &fakeScheduler{})

	rec := doJSON(srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	store.healthErr = errors.New("db down")
	rec = doJSON(srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

func TestRunPipelineTriggersRun(t *testing.T) {
	runner := &fakeRunner{runID: uuid.New()}
	srv := newTestServer(&fakeStore{}, runner, &fakeScheduler{})

	rec := doJSON(srv, http.MethodPost, "/pipeline/run", reqBody{
		"account_id": uuid.NewString(),
		"symbol":     "BTCUSDT",
		"timeframe":  "1h",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, runner.runID.String(), resp["run_id"])
	assert.Equal(t, db.RunStatusCompleted, resp["status"])
	assert.Equal(t, pipeline.ModeInProcess, runner.lastMode)
}

func TestRunPipelineRemoteMode(t *testing.T) {
	runner := &fakeRunner{runID: uuid.New()}
	srv := newTestServer(&fakeStore{}, runner, &fakeScheduler{})

	rec := doJSON(srv, http.MethodPost, "/pipeline/run", reqBody{
		"account_id":      uuid.NewString(),
		"symbol":          "BTCUSDT",
		"timeframe":       "1h",
		"use_http_agents": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pipeline.ModeRemote, runner.lastMode)
}

func TestRunPipelineValidation(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeRunner{}, &fakeScheduler{})

	// Missing required fields
	rec := doJSON(srv, http.MethodPost, "/pipeline/run", reqBody{"symbol": "BTCUSDT"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Malformed account id
	rec = doJSON(srv, http.MethodPost, "/pipeline/run", reqBody{
		"account_id": "not-a-uuid",
		"symbol":     "BTCUSDT",
		"timeframe":  "1h",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid account_id")
}

func TestRunPipelineFailureReportsRunID(t *testing.T) {
	runner := &fakeRunner{runID: uuid.New(), err: errors.New("decider failed")}
	srv := newTestServer(&fakeStore{}, runner, &fakeScheduler{})

	rec := doJSON(srv, http.MethodPost, "/pipeline/run", reqBody{
		"account_id": uuid.NewString(),
		"symbol":     "BTCUSDT",
		"timeframe":  "1h",
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, runner.runID.String(), resp["run_id"])
	assert.Equal(t, db.RunStatusFailed, resp["status"])
}

func TestListRunsIncludesSteps(t *testing.T) {
	runID := uuid.New()
	store := &fakeStore{
		runs: []*db.PipelineRun{{ID: runID, Symbol: "BTCUSDT", Status: db.RunStatusCompleted}},
		steps: map[uuid.UUID][]*db.PipelineStep{
			runID: {{RunID: runID, AgentName: "momentum", Score: 0.4}},
		},
	}
	srv := newTestServer(store, &fakeRunner{}, &fakeScheduler{})

	rec := doJSON(srv, http.MethodGet, "/pipeline/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "momentum")
	assert.Equal(t, defaultListLimit, store.lastLimit)
}

func TestSchedulerEndpoints(t *testing.T) {
	sched := &fakeScheduler{status: pipeline.SchedulerStatus{Running: true, Interval: "15m0s"}}
	srv := newTestServer(&fakeStore{}, &fakeRunner{}, sched)

	rec := doJSON(srv, http.MethodPost, "/scheduler/start", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(srv, http.MethodGet, "/scheduler/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "15m0s")

	sched.startErr = errors.New("scheduler is already running")
	rec = doJSON(srv, http.MethodPost, "/scheduler/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	sched.stopErr = errors.New("scheduler is not running")
	rec = doJSON(srv, http.MethodPost, "/scheduler/stop", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListEndpointsRespectLimit(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(store, &fakeRunner{}, &fakeScheduler{})

	doJSON(srv, http.MethodGet, "/signals?limit=25", nil)
	assert.Equal(t, 25, store.lastLimit)

	// Out-of-range limits fall back to the default
	doJSON(srv, http.MethodGet, "/decisions?limit=9999", nil)
	assert.Equal(t, defaultListLimit, store.lastLimit)

	rec := doJSON(srv, http.MethodGet, "/accounts", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
