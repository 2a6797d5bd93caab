package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantbrain/quantbrain/internal/db"
	"github.com/quantbrain/quantbrain/internal/metrics"
	"github.com/quantbrain/quantbrain/internal/pipeline"
)

// CreatedByAgent marks signals emitted by this engine
const CreatedByAgent = "professional-decision"

// Store is the persistence surface the engine needs
type Store interface {
	InsertTradeSignal(ctx context.Context, s *db.TradeSignal) error
	InsertBrainDecision(ctx context.Context, d *db.BrainDecision) error
}

// Enqueuer pushes a pending trade signal id onto the execution queue
type Enqueuer interface {
	Enqueue(ctx context.Context, signalID uuid.UUID) error
}

// Publisher broadcasts decisions to interested subscribers. Optional.
type Publisher interface {
	PublishDecision(ctx context.Context, d *db.BrainDecision) error
}

// Engine is the professional decision engine. It implements the orchestrator's
// Decider: every invocation appends a BrainDecision row, and enter decisions
// additionally persist and enqueue a pending TradeSignal.
type Engine struct {
	store     Store
	queue     Enqueuer
	publisher Publisher
	log       zerolog.Logger
	metrics   *metrics.EngineMetrics
}

// New creates the engine. publisher may be nil.
func New(store Store, queue Enqueuer, publisher Publisher, log zerolog.Logger) *Engine {
	return &Engine{
		store:     store,
		queue:     queue,
		publisher: publisher,
		log:       log.With().Str("component", "decision_engine").Logger(),
		metrics:   metrics.Engine(),
	}
}

// Process reasons over the populated context and applies side effects
func (e *Engine) Process(ctx context.Context, pctx *pipeline.Context) error {
	reasoning := Reason(pctx)
	action := reasoning.Decision.Action

	reasoningJSON, err := json.Marshal(reasoning)
	if err != nil {
		return fmt.Errorf("failed to serialize reasoning: %w", err)
	}

	metadata, err := json.Marshal(map[string]any{
		"timeframe":  pctx.Timeframe,
		"alignment":  reasoning.MTFAnalysis.Alignment,
		"confidence": reasoning.Decision.Confidence,
	})
	if err != nil {
		metadata = []byte(`{}`)
	}

	now := time.Now().UTC()
	decisionRow := &db.BrainDecision{
		ID:                    uuid.New(),
		AccountID:             pctx.AccountID,
		Symbol:                pctx.Symbol,
		Action:                action,
		Reasoning:             summarize(reasoning),
		Metadata:              metadata,
		ProfessionalReasoning: reasoningJSON,
		CreatedAt:             now,
	}

	if action == ActionEnterLong || action == ActionEnterShort {
		if err := e.emitSignal(ctx, pctx, reasoning, reasoningJSON, now); err != nil {
			return err
		}
	}

	if err := e.store.InsertBrainDecision(ctx, decisionRow); err != nil {
		return fmt.Errorf("failed to insert brain decision: %w", err)
	}

	if e.publisher != nil {
		if err := e.publisher.PublishDecision(ctx, decisionRow); err != nil {
			e.log.Warn().Err(err).Msg("Failed to publish decision event")
		}
	}

	e.metrics.DecisionsTotal.WithLabelValues(action).Inc()
	e.log.Info().
		Str("symbol", pctx.Symbol).
		Str("action", action).
		Float64("confidence", reasoning.Decision.Confidence).
		Msg("Decision recorded")

	return nil
}

func (e *Engine) emitSignal(ctx context.Context, pctx *pipeline.Context, reasoning *ProfessionalReasoning, reasoningJSON []byte, now time.Time) error {
	plan := reasoning.TradePlan
	rr := reasoning.RiskReward
	if plan == nil || rr == nil {
		return fmt.Errorf("enter decision without a trade plan")
	}

	direction := db.DirectionBuy
	if reasoning.Decision.Action == ActionEnterShort {
		direction = db.DirectionSell
	}

	entry := rr.Entry
	stop := rr.Stop
	takeProfit := rr.Targets[len(rr.Targets)-1].Price
	positionSize := plan.Sizing.USDValue

	signal := &db.TradeSignal{
		ID:              uuid.New(),
		AccountID:       pctx.AccountID,
		Symbol:          pctx.Symbol,
		Timeframe:       pctx.Timeframe,
		Direction:       direction,
		Confidence:      reasoning.Decision.Confidence,
		Leverage:        plan.Sizing.Leverage,
		EntryPrice:      &entry,
		StopLoss:        &stop,
		TakeProfit:      &takeProfit,
		PositionSizeUSD: &positionSize,
		Status:          db.SignalStatusPending,
		CreatedByAgent:  CreatedByAgent,
		AIReasoning:     reasoningJSON,
		CreatedAt:       now,
	}

	if err := e.store.InsertTradeSignal(ctx, signal); err != nil {
		return fmt.Errorf("failed to insert trade signal: %w", err)
	}

	if err := e.queue.Enqueue(ctx, signal.ID); err != nil {
		// The signal stays pending; an operator can requeue it.
		e.log.Error().Err(err).Str("signal_id", signal.ID.String()).Msg("Failed to enqueue trade signal")
		return fmt.Errorf("failed to enqueue trade signal: %w", err)
	}

	e.log.Info().
		Str("signal_id", signal.ID.String()).
		Str("direction", direction).
		Int("leverage", signal.Leverage).
		Float64("entry", entry).
		Msg("Trade signal enqueued")

	return nil
}

// summarize renders a one-line human-readable reason for the decision log
func summarize(r *ProfessionalReasoning) string {
	if r.Decision.Action == ActionWait {
		reason := "checklist gate not met"
		if len(r.Decision.Reasons) > 0 {
			reason = r.Decision.Reasons[0]
		}
		return fmt.Sprintf("wait: %s (alignment=%.0f, confidence=%.0f)", reason, r.MTFAnalysis.Alignment, r.Decision.Confidence)
	}

	return fmt.Sprintf("%s: %s setup quality=%.0f rr=%.2f winProb=%.0f",
		r.Decision.Action, r.TradeSetup.Type, r.TradeSetup.Quality, r.RiskReward.Ratio, r.RiskReward.WinProbability)
}
