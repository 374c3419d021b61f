package metrics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LavishGent/kairos/internal/types"
)

// BackgroundPublisher hands a health batch to a publisher on a fixed
// interval and once more when stopped. Between batches it watches the
// overall system health and per-cache analysis status and raises an event
// when either changes.
type BackgroundPublisher struct {
	publisher types.Publisher
	logger    *slog.Logger
	collect   func() *types.PublisherHealthMetrics
	interval  time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once

	// mu serializes publishes so change detection sees batches in order.
	mu         sync.Mutex
	haveSystem bool
	lastSystem types.HealthStatus
	lastCaches map[string]types.CacheStatus
	published  atomic.Int64
}

// NewBackgroundPublisher creates a new background publisher.
// collect is called on each tick to build the batch.
func NewBackgroundPublisher(
	publisher types.Publisher,
	interval time.Duration,
	collect func() *types.PublisherHealthMetrics,
	logger *slog.Logger,
) *BackgroundPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}

	return &BackgroundPublisher{
		publisher:  publisher,
		interval:   interval,
		logger:     logger.With("component", "metrics-background"),
		collect:    collect,
		stop:       make(chan struct{}),
		lastCaches: make(map[string]types.CacheStatus),
	}
}

// Start runs the publishing loop until ctx is done or Stop is called.
func (b *BackgroundPublisher) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.run(ctx)
	b.logger.Info("Background metrics publisher started", "interval", b.interval)
}

// Stop ends the loop and waits for the final publish. Safe to call twice.
func (b *BackgroundPublisher) Stop() {
	b.once.Do(func() { close(b.stop) })
	b.wg.Wait()
	b.logger.Info("Background metrics publisher stopped", "published", b.published.Load())
}

func (b *BackgroundPublisher) run(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.publish()
		case <-ctx.Done():
			b.publish()
			return
		case <-b.stop:
			b.publish()
			return
		}
	}
}

func (b *BackgroundPublisher) publish() {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in metrics publisher", "panic", r)
		}
	}()

	if b.collect == nil {
		return
	}
	batch := b.collect()
	if batch == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.publisher.PublishHealthMetrics(batch)
	b.published.Add(1)
	b.detectChanges(batch)
}

// detectChanges compares a batch with the previous one. The first batch
// only records a baseline. Must be called with b.mu held.
func (b *BackgroundPublisher) detectChanges(batch *types.PublisherHealthMetrics) {
	if sys := batch.System; sys != nil {
		prev, seen := b.lastSystem, b.haveSystem
		b.lastSystem, b.haveSystem = sys.Overall, true
		if seen && prev != sys.Overall {
			alert := "info"
			if sys.Overall != types.HealthStatusHealthy {
				alert = "warning"
			}
			tag := StatusTag(sys.Overall.String())
			b.publisher.Incr("system.health_changes", tag)
			b.publisher.Event("System "+sys.Overall.String(),
				"system health "+prev.String()+" -> "+sys.Overall.String(), alert, tag)
		}
	}

	if a := batch.Analysis; a != nil {
		for _, name := range sortedKeys(a.Caches) {
			status := a.Caches[name].Status
			prev, seen := b.lastCaches[name]
			b.lastCaches[name] = status
			if !seen || prev == status {
				continue
			}
			alert := "info"
			if status == types.CacheStatusWarning {
				alert = "warning"
			}
			b.publisher.Event("Cache "+name+" "+status.String(),
				"cache "+name+": "+prev.String()+" -> "+status.String(), alert, CacheTag(name))
		}
	}
}

// PublishNow triggers an immediate metrics publish.
func (b *BackgroundPublisher) PublishNow() {
	b.publish()
}

// Published returns how many batches were handed to the publisher.
func (b *BackgroundPublisher) Published() int64 {
	return b.published.Load()
}

// BreakerEvent reports a circuit breaker transition as an event and bumps
// the transition counter. It matches the resilience state-change hook.
func BreakerEvent(p types.Publisher) func(dep, from, to string) {
	return func(dep, from, to string) {
		alert := "info"
		if to == "open" {
			alert = "warning"
		}
		tags := []string{DependencyTag(dep), CircuitStateTag(to)}
		p.Incr("breaker.transitions", tags...)
		p.Event("Circuit "+to, dep+": "+from+" -> "+to, alert, tags...)
	}
}
