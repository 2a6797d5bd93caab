package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Runner abstracts the orchestrator for the scheduler
type Runner interface {
	RunOnce(ctx context.Context, accountID uuid.UUID, symbol, timeframe string, mode Mode) (uuid.UUID, error)
}

// SchedulerConfig describes the periodic run target
type SchedulerConfig struct {
	AccountID uuid.UUID
	Symbol    string
	Timeframe string
	Mode      Mode
	Interval  time.Duration
}

// SchedulerStatus is the queryable state of the scheduler
type SchedulerStatus struct {
	Running   bool       `json:"running"`
	Interval  string     `json:"interval"`
	LastRunID *uuid.UUID `json:"last_run_id,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// Scheduler is a supervised worker that fires RunOnce on a fixed period.
// Start and Stop are explicit; state is reachable only through Status.
type Scheduler struct {
	runner Runner
	config SchedulerConfig
	log    zerolog.Logger

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastRunID *uuid.UUID
	lastRunAt *time.Time
	lastError string
}

// NewScheduler creates a stopped scheduler
func NewScheduler(runner Runner, config SchedulerConfig, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		runner: runner,
		config: config,
		log:    log.With().Str("component", "scheduler").Logger(),
	}
}

// Start launches the periodic loop. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.loop(loopCtx)

	s.log.Info().
		Dur("interval", s.config.Interval).
		Str("symbol", s.config.Symbol).
		Str("timeframe", s.config.Timeframe).
		Msg("Scheduler started")

	return nil
}

// Stop halts the loop and waits for an in-flight run to finish
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.log.Info().Msg("Scheduler stopped")
	return nil
}

// Status reports the scheduler state for the control plane
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SchedulerStatus{
		Running:   s.running,
		Interval:  s.config.Interval.String(),
		LastRunID: s.lastRunID,
		LastRunAt: s.lastRunAt,
		LastError: s.lastError,
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Scheduler loop stopped by context")
			return
		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	runID, err := s.runner.RunOnce(ctx, s.config.AccountID, s.config.Symbol, s.config.Timeframe, s.config.Mode)
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastRunAt = &now
	if err != nil {
		s.lastError = err.Error()
		s.log.Error().Err(err).Msg("Scheduled pipeline run failed")
		// Keep running: runs are independent and retriable.
		return
	}

	s.lastRunID = &runID
	s.lastError = ""
}
