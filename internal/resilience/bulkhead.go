package resilience

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/LavishGent/kairos/internal/types"
)

const (
	defaultMaxConcurrent  = 10
	defaultAcquireTimeout = 5 * time.Second
)

// Bulkhead caps concurrent calls to one dependency so a slow upstream cannot
// absorb every goroutine serving the dashboard. Callers beyond the cap wait
// in a bounded queue for at most the acquire timeout.
type Bulkhead struct {
	slots          chan struct{}
	maxQueue       int32
	acquireTimeout time.Duration

	active    atomic.Int32
	queued    atomic.Int32
	executed  atomic.Int64
	full      atomic.Int64
	timedOut  atomic.Int64
	cancelled atomic.Int64
}

// NewBulkhead sizes a bulkhead. A non-positive maxConcurrent or
// acquireTimeout takes the default; a negative maxQueue means no queue.
func NewBulkhead(maxConcurrent, maxQueue int, acquireTimeout time.Duration) *Bulkhead {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	if acquireTimeout <= 0 {
		acquireTimeout = defaultAcquireTimeout
	}
	return &Bulkhead{
		slots:          make(chan struct{}, maxConcurrent),
		maxQueue:       int32(max(maxQueue, 0)),
		acquireTimeout: acquireTimeout,
	}
}

// ExecuteCtx runs fn once a slot is free. Rejections return ErrBulkheadFull,
// ErrBulkheadTimeout or the context error; fn is not run in those cases.
func (b *Bulkhead) ExecuteCtx(ctx context.Context, fn func(context.Context) error) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	b.active.Add(1)
	defer func() {
		b.active.Add(-1)
		b.executed.Add(1)
		<-b.slots
	}()

	return fn(ctx)
}

func (b *Bulkhead) acquire(ctx context.Context) error {
	select {
	case b.slots <- struct{}{}:
		return nil
	default:
	}

	if b.queued.Add(1) > b.maxQueue {
		b.queued.Add(-1)
		b.full.Add(1)
		return ErrBulkheadFull
	}
	defer b.queued.Add(-1)

	timer := time.NewTimer(b.acquireTimeout)
	defer timer.Stop()

	select {
	case b.slots <- struct{}{}:
		return nil
	case <-timer.C:
		b.timedOut.Add(1)
		return ErrBulkheadTimeout
	case <-ctx.Done():
		b.cancelled.Add(1)
		return ctx.Err()
	}
}

func (b *Bulkhead) ActiveCount() int     { return int(b.active.Load()) }
func (b *Bulkhead) QueuedCount() int     { return int(b.queued.Load()) }
func (b *Bulkhead) TotalExecuted() int64 { return b.executed.Load() }

// RejectedCount counts calls turned away for any reason.
func (b *Bulkhead) RejectedCount() int64 {
	return b.full.Load() + b.timedOut.Load() + b.cancelled.Load()
}

// AvailableSlots returns the number of free execution slots.
func (b *Bulkhead) AvailableSlots() int {
	return cap(b.slots) - len(b.slots)
}

func (b *Bulkhead) Stats() types.BulkheadStats {
	return types.BulkheadStats{
		MaxConcurrent:     cap(b.slots),
		MaxQueue:          int(b.maxQueue),
		Active:            b.ActiveCount(),
		Queued:            b.QueuedCount(),
		Available:         b.AvailableSlots(),
		TotalExecuted:     b.executed.Load(),
		RejectedFull:      b.full.Load(),
		RejectedTimeout:   b.timedOut.Load(),
		RejectedCancelled: b.cancelled.Load(),
	}
}
