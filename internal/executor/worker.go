// Package executor consumes the execution queue and places orders on a venue
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantbrain/quantbrain/internal/db"
	"github.com/quantbrain/quantbrain/internal/metrics"
	"github.com/quantbrain/quantbrain/internal/venue"
)

// Store is the persistence surface the worker needs
type Store interface {
	GetTradeSignal(ctx context.Context, id uuid.UUID) (*db.TradeSignal, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*db.Account, error)
	MarkSignalExecuted(ctx context.Context, id uuid.UUID, exchangeTxID string) error
	MarkSignalRejected(ctx context.Context, id uuid.UUID, reason string) error
	InsertTradeHistory(ctx context.Context, h *db.TradeHistory) error
}

// SignalQueue is the queue surface the worker needs
type SignalQueue interface {
	DequeueBlocking(ctx context.Context, timeout time.Duration) (uuid.UUID, error)
	TryAcquireLock(ctx context.Context, key string, ttl time.Duration) bool
	ReleaseLock(ctx context.Context, key string)
}

// Config tunes one worker
type Config struct {
	LiveExecution  bool
	RiskFraction   float64
	ReferencePrice float64
	LockTTL        time.Duration
	DequeueTimeout time.Duration
}

// Worker is the long-running queue consumer. Multiple workers may run against
// the same queue; the per-signal lock plus the pending-status transition give
// at-most-once execution while the lock store is healthy.
type Worker struct {
	store   Store
	queue   SignalQueue
	adapter venue.Adapter
	config  Config
	log     zerolog.Logger
	metrics *metrics.EngineMetrics
	wg      sync.WaitGroup
}

// New creates a worker. adapter may be nil when live execution is disabled.
func New(store Store, queue SignalQueue, adapter venue.Adapter, config Config, log zerolog.Logger) *Worker {
	if config.LockTTL <= 0 {
		config.LockTTL = 60 * time.Second
	}
	if config.DequeueTimeout <= 0 {
		config.DequeueTimeout = 5 * time.Second
	}
	return &Worker{
		store:   store,
		queue:   queue,
		adapter: adapter,
		config:  config,
		log:     log.With().Str("component", "execution_worker").Logger(),
		metrics: metrics.Engine(),
	}
}

// Start launches the consume loop in a goroutine
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Wait blocks until the loop has exited after context cancellation
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	w.log.Info().
		Bool("live_execution", w.config.LiveExecution).
		Msg("Execution worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Execution worker stopped")
			return
		default:
		}

		signalID, err := w.queue.DequeueBlocking(ctx, w.config.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				w.log.Info().Msg("Execution worker stopped")
				return
			}
			w.log.Warn().Err(err).Msg("Dequeue failed, backing off")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if signalID == uuid.Nil {
			continue
		}

		w.ProcessSignal(ctx, signalID)
	}
}

// ProcessSignal handles one dequeued id under the per-signal lock. Exported
// so tests can drive the worker without the loop.
func (w *Worker) ProcessSignal(ctx context.Context, signalID uuid.UUID) {
	lockKey := "signal:" + signalID.String()
	if !w.queue.TryAcquireLock(ctx, lockKey, w.config.LockTTL) {
		w.log.Debug().Str("signal_id", signalID.String()).Msg("Signal locked by another worker, skipping")
		return
	}
	defer w.queue.ReleaseLock(ctx, lockKey)

	signal, err := w.store.GetTradeSignal(ctx, signalID)
	if err != nil {
		w.log.Error().Err(err).Str("signal_id", signalID.String()).Msg("Failed to load trade signal")
		return
	}

	if signal.Status != db.SignalStatusPending {
		w.log.Debug().
			Str("signal_id", signalID.String()).
			Str("status", signal.Status).
			Msg("Signal no longer pending, skipping")
		return
	}

	account, err := w.store.GetAccount(ctx, signal.AccountID)
	if err != nil {
		w.reject(ctx, signalID, fmt.Sprintf("account %s not found: %v", signal.AccountID, err))
		return
	}

	qty := account.CurrentBalance * w.config.RiskFraction * float64(signal.Leverage) / w.config.ReferencePrice
	if qty <= 0 {
		w.reject(ctx, signalID, fmt.Sprintf("computed quantity %.8f is not positive", qty))
		return
	}

	if !w.config.LiveExecution {
		w.log.Info().
			Str("signal_id", signalID.String()).
			Float64("qty", qty).
			Msg("Live execution disabled, leaving signal pending")
		return
	}
	if w.adapter == nil {
		w.reject(ctx, signalID, "no venue adapter configured")
		return
	}

	side := venue.SideBuy
	if signal.Direction == db.DirectionSell {
		side = venue.SideSell
	}

	result := w.adapter.Place(ctx, venue.Order{
		Symbol:   signal.Symbol,
		Side:     side,
		Quantity: qty,
	})

	if !result.Success {
		w.reject(ctx, signalID, result.Error)
		return
	}

	if err := w.store.MarkSignalExecuted(ctx, signalID, result.TxID); err != nil {
		if errors.Is(err, db.ErrNotPending) {
			w.log.Warn().Str("signal_id", signalID.String()).Msg("Signal executed elsewhere during placement")
			return
		}
		w.log.Error().Err(err).Str("signal_id", signalID.String()).Msg("Failed to mark signal executed")
		return
	}

	history := &db.TradeHistory{
		ID:           uuid.New(),
		SignalID:     signalID,
		AccountID:    signal.AccountID,
		Symbol:       signal.Symbol,
		Side:         side,
		Quantity:     qty,
		Price:        w.config.ReferencePrice,
		ExchangeTxID: result.TxID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := w.store.InsertTradeHistory(ctx, history); err != nil {
		w.log.Error().Err(err).Str("signal_id", signalID.String()).Msg("Failed to record trade history")
	}

	w.metrics.OrdersPlaced.WithLabelValues(db.SignalStatusExecuted).Inc()
	w.log.Info().
		Str("signal_id", signalID.String()).
		Str("tx_id", result.TxID).
		Float64("qty", qty).
		Msg("Signal executed")
}

func (w *Worker) reject(ctx context.Context, signalID uuid.UUID, reason string) {
	if err := w.store.MarkSignalRejected(ctx, signalID, reason); err != nil {
		if errors.Is(err, db.ErrNotPending) {
			return
		}
		w.log.Error().Err(err).Str("signal_id", signalID.String()).Msg("Failed to mark signal rejected")
		return
	}

	w.metrics.OrdersPlaced.WithLabelValues(db.SignalStatusRejected).Inc()
	w.log.Warn().
		Str("signal_id", signalID.String()).
		Str("reason", reason).
		Msg("Signal rejected")
}
