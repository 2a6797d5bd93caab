package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	calls atomic.Int64
	err   error
}

func (r *countingRunner) RunOnce(context.Context, uuid.UUID, string, string, Mode) (uuid.UUID, error) {
	r.calls.Add(1)
	if r.err != nil {
		return uuid.Nil, r.err
	}
	return uuid.New(), nil
}

func newTestScheduler(runner Runner) *Scheduler {
	return NewScheduler(runner, SchedulerConfig{
		AccountID: uuid.New(),
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		Mode:      ModeInProcess,
		Interval:  10 * time.Millisecond,
	}, zerolog.Nop())
}

func TestSchedulerFiresPeriodically(t *testing.T) {
	runner := &countingRunner{}
	s := newTestScheduler(runner)

	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return runner.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())

	status := s.Status()
	assert.False(t, status.Running)
	require.NotNil(t, status.LastRunID)
	assert.Empty(t, status.LastError)
}

func TestSchedulerDoubleStartFails(t *testing.T) {
	s := newTestScheduler(&countingRunner{})

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
}

func TestSchedulerStopWhenStoppedFails(t *testing.T) {
	s := newTestScheduler(&countingRunner{})
	assert.Error(t, s.Stop())
}

func TestSchedulerKeepsRunningAfterRunError(t *testing.T) {
	runner := &countingRunner{err: errors.New("store unavailable")}
	s := newTestScheduler(runner)

	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return runner.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	status := s.Status()
	assert.True(t, status.Running)
	assert.Equal(t, "store unavailable", status.LastError)

	require.NoError(t, s.Stop())
}
