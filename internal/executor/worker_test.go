package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbrain/quantbrain/internal/db"
	"github.com/quantbrain/quantbrain/internal/venue"
)

type memStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*db.Account
	signals  map[uuid.UUID]*db.TradeSignal
	history  []*db.TradeHistory
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[uuid.UUID]*db.Account),
		signals:  make(map[uuid.UUID]*db.TradeSignal),
	}
}

func (s *memStore) GetTradeSignal(_ context.Context, id uuid.UUID) (*db.TradeSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.signals[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *sig
	return &copied, nil
}

func (s *memStore) GetAccount(_ context.Context, id uuid.UUID) (*db.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return acct, nil
}

func (s *memStore) MarkSignalExecuted(_ context.Context, id uuid.UUID, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.signals[id]
	if !ok || sig.Status != db.SignalStatusPending {
		return db.ErrNotPending
	}
	sig.Status = db.SignalStatusExecuted
	sig.ExchangeTxID = &txID
	return nil
}

func (s *memStore) MarkSignalRejected(_ context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sig, ok := s.signals[id]
	if !ok || sig.Status != db.SignalStatusPending {
		return db.ErrNotPending
	}
	sig.Status = db.SignalStatusRejected
	sig.RejectReason = &reason
	return nil
}

func (s *memStore) InsertTradeHistory(_ context.Context, h *db.TradeHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *h
	s.history = append(s.history, &copied)
	return nil
}

type memLocks struct {
	mu    sync.Mutex
	held  map[string]bool
	queue []uuid.UUID
}

func newMemLocks() *memLocks {
	return &memLocks{held: make(map[string]bool)}
}

func (l *memLocks) DequeueBlocking(_ context.Context, _ time.Duration) (uuid.UUID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return uuid.Nil, nil
	}
	id := l.queue[0]
	l.queue = l.queue[1:]
	return id, nil
}

func (l *memLocks) TryAcquireLock(_ context.Context, key string, _ time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false
	}
	l.held[key] = true
	return true
}

func (l *memLocks) ReleaseLock(_ context.Context, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}

type stubAdapter struct {
	mu     sync.Mutex
	calls  int
	result venue.PlaceResult
	block  chan struct{} // when set, Place waits until closed
}

func (a *stubAdapter) Name() string { return "stub" }

func (a *stubAdapter) Place(_ context.Context, _ venue.Order) venue.PlaceResult {
	a.mu.Lock()
	a.calls++
	block := a.block
	a.mu.Unlock()
	if block != nil {
		<-block
	}
	return a.result
}

func (a *stubAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func seedSignal(store *memStore, leverage int) *db.TradeSignal {
	account := &db.Account{
		ID:             uuid.New(),
		CurrentBalance: 10000,
		MaxLeverage:    3,
	}
	store.accounts[account.ID] = account

	signal := &db.TradeSignal{
		ID:        uuid.New(),
		AccountID: account.ID,
		Symbol:    "BTCUSDT",
		Timeframe: "1h",
		Direction: db.DirectionBuy,
		Leverage:  leverage,
		Status:    db.SignalStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	store.signals[signal.ID] = signal
	return signal
}

func liveConfig() Config {
	return Config{
		LiveExecution:  true,
		RiskFraction:   0.05,
		ReferencePrice: 50000,
		LockTTL:        time.Minute,
		DequeueTimeout: 50 * time.Millisecond,
	}
}

func TestProcessSignalExecutes(t *testing.T) {
	store := newMemStore()
	locks := newMemLocks()
	adapter := &stubAdapter{result: venue.PlaceResult{Success: true, TxID: "tx-1"}}
	signal := seedSignal(store, 2)

	w := New(store, locks, adapter, liveConfig(), zerolog.Nop())
	w.ProcessSignal(context.Background(), signal.ID)

	got := store.signals[signal.ID]
	assert.Equal(t, db.SignalStatusExecuted, got.Status)
	require.NotNil(t, got.ExchangeTxID)
	assert.Equal(t, "tx-1", *got.ExchangeTxID)
	assert.Equal(t, 1, adapter.callCount())

	require.Len(t, store.history, 1)
	// qty = 10000 * 0.05 * 2 / 50000
	assert.InDelta(t, 0.02, store.history[0].Quantity, 1e-9)

	// Lock released after processing
	assert.True(t, locks.TryAcquireLock(context.Background(), "signal:"+signal.ID.String(), time.Minute))
}

func TestVenueFailureRejectsSignal(t *testing.T) {
	store := newMemStore()
	adapter := &stubAdapter{result: venue.PlaceResult{Success: false, Error: "insufficient margin"}}
	signal := seedSignal(store, 2)

	w := New(store, newMemLocks(), adapter, liveConfig(), zerolog.Nop())
	w.ProcessSignal(context.Background(), signal.ID)

	got := store.signals[signal.ID]
	assert.Equal(t, db.SignalStatusRejected, got.Status)
	require.NotNil(t, got.RejectReason)
	assert.Equal(t, "insufficient margin", *got.RejectReason)
	assert.Empty(t, store.history)
}

func TestMissingAccountRejectsSignal(t *testing.T) {
	store := newMemStore()
	signal := seedSignal(store, 2)
	delete(store.accounts, signal.AccountID)

	adapter := &stubAdapter{result: venue.PlaceResult{Success: true, TxID: "tx"}}
	w := New(store, newMemLocks(), adapter, liveConfig(), zerolog.Nop())
	w.ProcessSignal(context.Background(), signal.ID)

	assert.Equal(t, db.SignalStatusRejected, store.signals[signal.ID].Status)
	assert.Zero(t, adapter.callCount())
}

func TestZeroQuantityRejectsSignal(t *testing.T) {
	store := newMemStore()
	signal := seedSignal(store, 0)

	adapter := &stubAdapter{result: venue.PlaceResult{Success: true, TxID: "tx"}}
	w := New(store, newMemLocks(), adapter, liveConfig(), zerolog.Nop())
	w.ProcessSignal(context.Background(), signal.ID)

	assert.Equal(t, db.SignalStatusRejected, store.signals[signal.ID].Status)
	assert.Zero(t, adapter.callCount())
}

func TestNonPendingSignalIsSkipped(t *testing.T) {
	store := newMemStore()
	signal := seedSignal(store, 2)
	store.signals[signal.ID].Status = db.SignalStatusExecuted

	adapter := &stubAdapter{result: venue.PlaceResult{Success: true, TxID: "tx"}}
	w := New(store, newMemLocks(), adapter, liveConfig(), zerolog.Nop())
	w.ProcessSignal(context.Background(), signal.ID)

	assert.Equal(t, db.SignalStatusExecuted, store.signals[signal.ID].Status)
	assert.Zero(t, adapter.callCount())
}

func TestLiveExecutionOffMakesNoVenueCall(t *testing.T) {
	store := newMemStore()
	signal := seedSignal(store, 2)
	adapter := &stubAdapter{result: venue.PlaceResult{Success: true, TxID: "tx"}}

	cfg := liveConfig()
	cfg.LiveExecution = false
	w := New(store, newMemLocks(), adapter, cfg, zerolog.Nop())
	w.ProcessSignal(context.Background(), signal.ID)

	assert.Zero(t, adapter.callCount())
	assert.Equal(t, db.SignalStatusPending, store.signals[signal.ID].Status)
}

func TestConcurrentWorkersExecuteAtMostOnce(t *testing.T) {
	store := newMemStore()
	locks := newMemLocks()
	signal := seedSignal(store, 2)

	block := make(chan struct{})
	adapter := &stubAdapter{result: venue.PlaceResult{Success: true, TxID: "tx"}, block: block}

	w1 := New(store, locks, adapter, liveConfig(), zerolog.Nop())
	w2 := New(store, locks, adapter, liveConfig(), zerolog.Nop())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w1.ProcessSignal(context.Background(), signal.ID)
	}()
	go func() {
		defer wg.Done()
		// Give the first worker time to take the lock, then race
		time.Sleep(10 * time.Millisecond)
		w2.ProcessSignal(context.Background(), signal.ID)
		close(block)
	}()
	wg.Wait()

	assert.Equal(t, db.SignalStatusExecuted, store.signals[signal.ID].Status)
	assert.Equal(t, 1, adapter.callCount())
}

func TestWorkerLoopConsumesQueue(t *testing.T) {
	store := newMemStore()
	locks := newMemLocks()
	signal := seedSignal(store, 2)
	locks.queue = append(locks.queue, signal.ID)

	adapter := &stubAdapter{result: venue.PlaceResult{Success: true, TxID: "tx"}}
	w := New(store, locks, adapter, liveConfig(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.signals[signal.ID].Status == db.SignalStatusExecuted
	}, time.Second, 10*time.Millisecond)

	cancel()
	w.Wait()
}
