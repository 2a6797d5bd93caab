package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbrain/quantbrain/internal/db"
	"github.com/quantbrain/quantbrain/internal/market"
)

type fakeStore struct {
	mu           sync.Mutex
	account      *db.Account
	accountErr   error
	stepErr      error
	runs         map[uuid.UUID]*db.PipelineRun
	steps        []*db.PipelineStep
	agentSignals []*db.AgentSignal
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		account: &db.Account{
			ID:              uuid.New(),
			StartingBalance: 10000,
			CurrentBalance:  10000,
			MaxLeverage:     3,
			MaxRiskPerTrade: 2.0,
		},
		runs: make(map[uuid.UUID]*db.PipelineRun),
	}
}

func (s *fakeStore) GetAccount(_ context.Context, id uuid.UUID) (*db.Account, error) {
	if s.accountErr != nil {
		return nil, s.accountErr
	}
	return s.account, nil
}

func (s *fakeStore) InsertPipelineRun(_ context.Context, run *db.PipelineRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

func (s *fakeStore) FinishPipelineRun(_ context.Context, id uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok || run.Status != db.RunStatusRunning {
		return db.ErrNotFound
	}
	run.Status = status
	return nil
}

func (s *fakeStore) InsertPipelineStep(_ context.Context, step *db.PipelineStep) error {
	if s.stepErr != nil {
		return s.stepErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *step
	s.steps = append(s.steps, &copied)
	return nil
}

func (s *fakeStore) InsertAgentSignal(_ context.Context, sig *db.AgentSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *sig
	s.agentSignals = append(s.agentSignals, &copied)
	return nil
}

type fakeCandles struct {
	err error
}

func (f *fakeCandles) Candles(_ context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	return makeCandles(60, 100, 0.5), nil
}

func makeCandles(n int, start, step float64) []market.Candle {
	candles := make([]market.Candle, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	price := start
	for i := range candles {
		candles[i] = market.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Open:     price,
			High:     price + step,
			Low:      price - step,
			Close:    price + step/2,
			Volume:   1000,
		}
		price += step
	}
	return candles
}

type scriptedAgent struct {
	name string
	fn   func(pctx *Context) (AgentResult, error)
}

func (a *scriptedAgent) Name() string { return a.name }

func (a *scriptedAgent) Evaluate(_ context.Context, pctx *Context) (AgentResult, error) {
	return a.fn(pctx)
}

type mapResolver struct {
	agents map[string]Agent
}

func (r *mapResolver) Resolve(name string, _ Mode) (Agent, error) {
	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("no agent %q", name)
	}
	return a, nil
}

func uniformResolver(score, confidence float64) *mapResolver {
	agents := make(map[string]Agent, len(AgentOrder))
	for _, name := range AgentOrder {
		agents[name] = &scriptedAgent{name: name, fn: func(*Context) (AgentResult, error) {
			return AgentResult{Score: score, Confidence: confidence}, nil
		}}
	}
	return &mapResolver{agents: agents}
}

type fakeDecider struct {
	mu    sync.Mutex
	calls []*Context
	err   error
}

func (d *fakeDecider) Process(_ context.Context, pctx *Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, pctx)
	return d.err
}

func newTestOrchestrator(store *fakeStore, candles CandleSource, resolver AgentResolver, decider Decider) *Orchestrator {
	return NewOrchestrator(store, candles, resolver, decider, 200, zerolog.Nop())
}

func TestRunOnceCompletesWithOrderedSteps(t *testing.T) {
	store := newFakeStore()
	decider := &fakeDecider{}
	o := newTestOrchestrator(store, &fakeCandles{}, uniformResolver(0.5, 70), decider)

	runID, err := o.RunOnce(context.Background(), store.account.ID, "BTCUSDT", "1h", ModeInProcess)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, runID)

	run := store.runs[runID]
	require.NotNil(t, run)
	assert.Equal(t, db.RunStatusCompleted, run.Status)

	require.Len(t, store.steps, len(AgentOrder))
	for i, step := range store.steps {
		assert.Equal(t, AgentOrder[i], step.AgentName)
		assert.Equal(t, runID, step.RunID)
		assert.False(t, step.FinishedAt.Before(step.StartedAt))
		if i > 0 {
			assert.False(t, step.StartedAt.Before(store.steps[i-1].StartedAt))
		}
	}

	require.Len(t, decider.calls, 1)
	assert.Len(t, decider.calls[0].AgentResults, len(AgentOrder))
	assert.Len(t, store.agentSignals, len(AgentOrder))
}

func TestAgentFailureIsIsolated(t *testing.T) {
	store := newFakeStore()
	decider := &fakeDecider{}
	resolver := uniformResolver(0.5, 70)

	// Fifth agent in the chain raises
	failing := AgentOrder[4]
	resolver.agents[failing] = &scriptedAgent{name: failing, fn: func(*Context) (AgentResult, error) {
		return AgentResult{}, errors.New("upstream feed unavailable")
	}}

	var successorSawZero bool
	successor := AgentOrder[5]
	resolver.agents[successor] = &scriptedAgent{name: successor, fn: func(pctx *Context) (AgentResult, error) {
		if r, ok := pctx.Result(failing); ok && r.Score == 0 && r.Confidence == 0 {
			successorSawZero = true
		}
		return AgentResult{Score: 0.3, Confidence: 60}, nil
	}}

	o := newTestOrchestrator(store, &fakeCandles{}, resolver, decider)

	runID, err := o.RunOnce(context.Background(), store.account.ID, "BTCUSDT", "1h", ModeInProcess)
	require.NoError(t, err)

	assert.Equal(t, db.RunStatusCompleted, store.runs[runID].Status)
	require.Len(t, store.steps, len(AgentOrder))

	failedStep := store.steps[4]
	assert.Equal(t, failing, failedStep.AgentName)
	assert.Zero(t, failedStep.Score)
	assert.Zero(t, failedStep.Confidence)
	assert.Contains(t, string(failedStep.Payload), "upstream feed unavailable")

	assert.True(t, successorSawZero, "successor should observe the zero result of the failed agent")
}

func TestAccountLoadFailureAbortsBeforeRunRow(t *testing.T) {
	store := newFakeStore()
	store.accountErr = errors.New("connection refused")
	o := newTestOrchestrator(store, &fakeCandles{}, uniformResolver(0.5, 70), &fakeDecider{})

	runID, err := o.RunOnce(context.Background(), uuid.New(), "BTCUSDT", "1h", ModeInProcess)
	require.Error(t, err)
	assert.Equal(t, uuid.Nil, runID)
	assert.Empty(t, store.runs)
	assert.Empty(t, store.steps)
}

func TestDeciderFailureMarksRunFailed(t *testing.T) {
	store := newFakeStore()
	decider := &fakeDecider{err: errors.New("store unavailable")}
	o := newTestOrchestrator(store, &fakeCandles{}, uniformResolver(0.5, 70), decider)

	runID, err := o.RunOnce(context.Background(), store.account.ID, "BTCUSDT", "1h", ModeInProcess)
	require.Error(t, err)
	require.NotEqual(t, uuid.Nil, runID)
	assert.Equal(t, db.RunStatusFailed, store.runs[runID].Status)
}

func TestStepPersistenceFailureMarksRunFailed(t *testing.T) {
	store := newFakeStore()
	store.stepErr = errors.New("disk full")
	o := newTestOrchestrator(store, &fakeCandles{}, uniformResolver(0.5, 70), &fakeDecider{})

	runID, err := o.RunOnce(context.Background(), store.account.ID, "BTCUSDT", "1h", ModeInProcess)
	require.Error(t, err)
	assert.Equal(t, db.RunStatusFailed, store.runs[runID].Status)
}

func TestResultsAreClampedBeforePersisting(t *testing.T) {
	store := newFakeStore()
	resolver := uniformResolver(0.5, 70)
	resolver.agents[AgentOrder[0]] = &scriptedAgent{name: AgentOrder[0], fn: func(*Context) (AgentResult, error) {
		return AgentResult{Score: math.NaN(), Confidence: 150}, nil
	}}
	resolver.agents[AgentOrder[1]] = &scriptedAgent{name: AgentOrder[1], fn: func(*Context) (AgentResult, error) {
		return AgentResult{Score: -3, Confidence: math.Inf(1)}, nil
	}}

	o := newTestOrchestrator(store, &fakeCandles{}, resolver, &fakeDecider{})

	_, err := o.RunOnce(context.Background(), store.account.ID, "BTCUSDT", "1h", ModeInProcess)
	require.NoError(t, err)

	assert.Zero(t, store.steps[0].Score)
	assert.Equal(t, 100.0, store.steps[0].Confidence)
	assert.Equal(t, -1.0, store.steps[1].Score)
	assert.Zero(t, store.steps[1].Confidence)
}

func TestCandleFetchFailureDegradesToEmptySequences(t *testing.T) {
	store := newFakeStore()
	decider := &fakeDecider{}
	o := newTestOrchestrator(store, &fakeCandles{err: errors.New("rate limit")}, uniformResolver(0.5, 70), decider)

	runID, err := o.RunOnce(context.Background(), store.account.ID, "BTCUSDT", "1h", ModeInProcess)
	require.NoError(t, err)
	assert.Equal(t, db.RunStatusCompleted, store.runs[runID].Status)

	require.Len(t, decider.calls, 1)
	for _, interval := range market.Intervals {
		assert.Empty(t, decider.calls[0].MarketData[interval])
	}
}
