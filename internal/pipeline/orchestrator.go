package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quantbrain/quantbrain/internal/db"
	"github.com/quantbrain/quantbrain/internal/market"
	"github.com/quantbrain/quantbrain/internal/metrics"
)

// Store is the persistence surface the orchestrator needs. *db.DB satisfies
// it; tests substitute fakes.
type Store interface {
	GetAccount(ctx context.Context, id uuid.UUID) (*db.Account, error)
	InsertPipelineRun(ctx context.Context, run *db.PipelineRun) error
	FinishPipelineRun(ctx context.Context, id uuid.UUID, status string) error
	InsertPipelineStep(ctx context.Context, step *db.PipelineStep) error
	InsertAgentSignal(ctx context.Context, s *db.AgentSignal) error
}

// CandleSource fetches candle sequences for context assembly
type CandleSource interface {
	Candles(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error)
}

// Decider consumes the populated context and produces the final decision,
// including any trade signal side effects.
type Decider interface {
	Process(ctx context.Context, pctx *Context) error
}

// Orchestrator drives one decision cycle per RunOnce call
type Orchestrator struct {
	store       Store
	candles     CandleSource
	resolver    AgentResolver
	decider     Decider
	candleLimit int
	log         zerolog.Logger
	metrics     *metrics.EngineMetrics
}

// NewOrchestrator creates an orchestrator with explicit collaborators
func NewOrchestrator(store Store, candles CandleSource, resolver AgentResolver, decider Decider, candleLimit int, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:       store,
		candles:     candles,
		resolver:    resolver,
		decider:     decider,
		candleLimit: candleLimit,
		log:         log.With().Str("component", "orchestrator").Logger(),
		metrics:     metrics.Engine(),
	}
}

// RunOnce executes the full agent chain and decision for one
// (account, symbol, timeframe) triple. Runs are independent and retriable.
func (o *Orchestrator) RunOnce(ctx context.Context, accountID uuid.UUID, symbol, timeframe string, mode Mode) (uuid.UUID, error) {
	start := time.Now()
	defer func() {
		o.metrics.RunDuration.Observe(time.Since(start).Seconds())
	}()

	pctx, err := o.buildContext(ctx, accountID, symbol, timeframe)
	if err != nil {
		// No run row exists yet; nothing to mark failed.
		return uuid.Nil, fmt.Errorf("failed to build pipeline context: %w", err)
	}

	run := &db.PipelineRun{
		ID:        uuid.New(),
		AccountID: accountID,
		Symbol:    symbol,
		Timeframe: timeframe,
		Status:    db.RunStatusRunning,
		CreatedAt: time.Now().UTC(),
	}
	if err := o.store.InsertPipelineRun(ctx, run); err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert pipeline run: %w", err)
	}

	o.log.Info().
		Str("run_id", run.ID.String()).
		Str("symbol", symbol).
		Str("timeframe", timeframe).
		Str("mode", string(mode)).
		Msg("Pipeline run started")

	if err := o.runSteps(ctx, run.ID, pctx, mode); err != nil {
		o.failRun(ctx, run.ID)
		return run.ID, err
	}

	if err := o.decider.Process(ctx, pctx); err != nil {
		o.failRun(ctx, run.ID)
		return run.ID, fmt.Errorf("decision engine failed: %w", err)
	}

	if err := o.store.FinishPipelineRun(ctx, run.ID, db.RunStatusCompleted); err != nil {
		return run.ID, fmt.Errorf("failed to complete pipeline run: %w", err)
	}

	o.metrics.RunsTotal.WithLabelValues(db.RunStatusCompleted).Inc()
	o.log.Info().
		Str("run_id", run.ID.String()).
		Dur("duration", time.Since(start)).
		Msg("Pipeline run completed")

	return run.ID, nil
}

// buildContext loads the account and fetches candle sequences for all
// intervals concurrently. Individual fetch failures degrade to empty
// sequences; an account-load failure aborts the run.
func (o *Orchestrator) buildContext(ctx context.Context, accountID uuid.UUID, symbol, timeframe string) (*Context, error) {
	account, err := o.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", accountID, err)
	}

	marketData := make(map[string][]market.Candle, len(market.Intervals))
	sequences := make([][]market.Candle, len(market.Intervals))

	g, gctx := errgroup.WithContext(ctx)
	for i, interval := range market.Intervals {
		g.Go(func() error {
			candles, err := o.candles.Candles(gctx, symbol, interval, o.candleLimit)
			if err != nil {
				o.log.Warn().
					Err(err).
					Str("symbol", symbol).
					Str("interval", interval).
					Msg("Candle fetch failed, degrading to empty sequence")
				return nil
			}
			sequences[i] = candles
			return nil
		})
	}
	// Fetch errors are swallowed above; Wait only reports ctx cancellation.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, interval := range market.Intervals {
		marketData[interval] = sequences[i]
	}

	return &Context{
		AccountID: accountID,
		Symbol:    symbol,
		Timeframe: timeframe,
		Account: AccountSnapshot{
			ID:              account.ID,
			Balance:         account.CurrentBalance,
			MaxLeverage:     account.MaxLeverage,
			MaxRiskPerTrade: account.MaxRiskPerTrade,
		},
		MarketData:   marketData,
		AgentResults: make(map[string]AgentResult, len(AgentOrder)),
	}, nil
}

// runSteps evaluates every agent in the fixed order. Agent failures are
// isolated: the step records a zero result with the error in its payload and
// the chain continues. Persistence failures are fatal.
func (o *Orchestrator) runSteps(ctx context.Context, runID uuid.UUID, pctx *Context, mode Mode) error {
	for _, name := range AgentOrder {
		startedAt := time.Now().UTC()
		result, evalErr := o.evaluateAgent(ctx, name, pctx, mode)
		finishedAt := time.Now().UTC()

		result = result.Clamp()
		if evalErr != nil {
			if result.Payload == nil {
				result.Payload = make(map[string]any, 1)
			}
			result.Payload["error"] = evalErr.Error()
			result.Score = 0
			result.Confidence = 0
			o.metrics.StepErrorsTotal.WithLabelValues(name).Inc()
			o.log.Warn().
				Err(evalErr).
				Str("run_id", runID.String()).
				Str("agent", name).
				Msg("Agent evaluation failed, recording zero result")
		}

		// Commit before the next agent starts: successors read this entry.
		pctx.AgentResults[name] = result

		payload, err := json.Marshal(result.Payload)
		if err != nil {
			payload = []byte(`{}`)
		}

		step := &db.PipelineStep{
			ID:         uuid.New(),
			RunID:      runID,
			AgentName:  name,
			StartedAt:  startedAt,
			FinishedAt: finishedAt,
			Score:      result.Score,
			Confidence: result.Confidence,
			Payload:    payload,
		}
		if err := o.store.InsertPipelineStep(ctx, step); err != nil {
			return fmt.Errorf("failed to persist step %s: %w", name, err)
		}

		signal := &db.AgentSignal{
			ID:         uuid.New(),
			RunID:      runID,
			AgentName:  name,
			Symbol:     pctx.Symbol,
			Timeframe:  pctx.Timeframe,
			Score:      result.Score,
			Confidence: result.Confidence,
			Payload:    payload,
			CreatedAt:  finishedAt,
		}
		if err := o.store.InsertAgentSignal(ctx, signal); err != nil {
			return fmt.Errorf("failed to persist agent signal %s: %w", name, err)
		}

		o.metrics.StepDuration.WithLabelValues(name).Observe(finishedAt.Sub(startedAt).Seconds())

		o.log.Debug().
			Str("run_id", runID.String()).
			Str("agent", name).
			Float64("score", result.Score).
			Float64("confidence", result.Confidence).
			Msg("Agent step committed")
	}

	return nil
}

func (o *Orchestrator) evaluateAgent(ctx context.Context, name string, pctx *Context, mode Mode) (AgentResult, error) {
	agent, err := o.resolver.Resolve(name, mode)
	if err != nil {
		return AgentResult{}, fmt.Errorf("failed to resolve agent %s: %w", name, err)
	}
	return agent.Evaluate(ctx, pctx)
}

func (o *Orchestrator) failRun(ctx context.Context, runID uuid.UUID) {
	o.metrics.RunsTotal.WithLabelValues(db.RunStatusFailed).Inc()
	if err := o.store.FinishPipelineRun(ctx, runID, db.RunStatusFailed); err != nil {
		o.log.Error().
			Err(err).
			Str("run_id", runID.String()).
			Msg("Failed to mark run as failed")
	}
}
