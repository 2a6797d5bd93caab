// Package queue provides the Redis-backed execution queue and per-signal locks
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/quantbrain/quantbrain/internal/metrics"
)

const (
	// SignalQueueKey is the Redis list holding pending trade signal ids
	SignalQueueKey = "quantbrain:execution:signals"

	opTimeout = 5 * time.Second
)

// Queue is a FIFO of trade-signal ids plus per-key TTL locks, backed by a
// shared Redis instance so multiple worker processes consume the same stream.
type Queue struct {
	client  *redis.Client
	log     zerolog.Logger
	metrics *metrics.EngineMetrics
}

// New creates a queue client. The connection is verified lazily; queue
// operations report errors per call.
func New(addr, password string, dbNum int, log zerolog.Logger) *Queue {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           dbNum,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	return &Queue{
		client:  client,
		log:     log.With().Str("component", "execution_queue").Logger(),
		metrics: metrics.Engine(),
	}
}

// NewFromClient wraps an existing Redis client. Used by tests with miniredis.
func NewFromClient(client *redis.Client, log zerolog.Logger) *Queue {
	return &Queue{
		client:  client,
		log:     log.With().Str("component", "execution_queue").Logger(),
		metrics: metrics.Engine(),
	}
}

// Ping verifies connectivity
func (q *Queue) Ping(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := q.client.Ping(opCtx).Err(); err != nil {
		return fmt.Errorf("failed to ping queue store: %w", err)
	}
	return nil
}

// Enqueue pushes a trade signal id to the queue tail
func (q *Queue) Enqueue(ctx context.Context, signalID uuid.UUID) error {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := q.client.LPush(opCtx, SignalQueueKey, signalID.String()).Err(); err != nil {
		return fmt.Errorf("failed to enqueue signal %s: %w", signalID, err)
	}

	q.metrics.SignalsEnqueued.Inc()
	if depth, err := q.client.LLen(opCtx, SignalQueueKey).Result(); err == nil {
		q.metrics.QueueDepth.Set(float64(depth))
	}

	q.log.Debug().Str("signal_id", signalID.String()).Msg("Signal enqueued")
	return nil
}

// DequeueBlocking pops the head of the queue, blocking up to timeout.
// Returns uuid.Nil with a nil error when the timeout elapses with no entry.
func (q *Queue) DequeueBlocking(ctx context.Context, timeout time.Duration) (uuid.UUID, error) {
	res, err := q.client.BRPop(ctx, timeout, SignalQueueKey).Result()
	if err == redis.Nil {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to dequeue signal: %w", err)
	}

	// BRPop returns [key, value]
	if len(res) != 2 {
		return uuid.Nil, fmt.Errorf("unexpected BRPOP reply length %d", len(res))
	}

	id, err := uuid.Parse(res[1])
	if err != nil {
		return uuid.Nil, fmt.Errorf("malformed signal id %q in queue: %w", res[1], err)
	}
	return id, nil
}

// Depth returns the current queue length
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	depth, err := q.client.LLen(opCtx, SignalQueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	return depth, nil
}

// TryAcquireLock atomically sets a sentinel under key with an expiry, only if
// absent. If the store is unreachable it returns true: availability is
// preferred over strict mutual exclusion, and duplicate execution is the
// documented failure mode.
func (q *Queue) TryAcquireLock(ctx context.Context, key string, ttl time.Duration) bool {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	ok, err := q.client.SetNX(opCtx, key, "1", ttl).Result()
	if err != nil {
		q.metrics.LockDegradations.Inc()
		q.log.Warn().Err(err).Str("key", key).Msg("Lock store unreachable, degrading to no-op lock")
		return true
	}
	return ok
}

// ReleaseLock deletes the sentinel. A store error is logged and swallowed;
// the TTL reclaims the lock either way.
func (q *Queue) ReleaseLock(ctx context.Context, key string) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := q.client.Del(opCtx, key).Err(); err != nil {
		q.log.Warn().Err(err).Str("key", key).Msg("Failed to release lock")
	}
}

// Close closes the underlying client
func (q *Queue) Close() error {
	return q.client.Close()
}
