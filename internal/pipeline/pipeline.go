// Package pipeline serves dashboard data through the tiered caches, falling
// back to protected upstream calls on a miss.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/LavishGent/kairos/internal/cache"
	"github.com/LavishGent/kairos/internal/logging"
	"github.com/LavishGent/kairos/internal/metrics"
	"github.com/LavishGent/kairos/internal/resilience"
	"github.com/LavishGent/kairos/internal/types"
)

// DefaultFallbackTTL is how long a fallback value stays cached. It is kept
// short so that a recovered upstream is asked again soon.
const DefaultFallbackTTL = 30 * time.Second

// DefaultMaxConcurrency bounds FetchAll.
const DefaultMaxConcurrency = 8

// Source names where a value came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceUpstream Source = "upstream"
	SourceFallback Source = "fallback"
)

// Request describes one cached upstream read.
type Request struct {
	// Cache and Key locate the value.
	Cache string
	Key   string

	// Dependency names the upstream. Defaults to Cache.
	Dependency string

	// TTL overrides the cache's default TTL for the written value.
	TTL time.Duration

	// Fetch calls the upstream.
	Fetch resilience.Operation

	// Fallback is used when Fetch cannot produce a value. Defaults to the
	// dependency's last-known-good snapshot for Key.
	Fallback resilience.Fallback
}

func (r Request) dependency() string {
	if r.Dependency != "" {
		return r.Dependency
	}
	return r.Cache
}

// Result is the outcome of one request. Value can be set together with Err
// when a fallback covered a permanent upstream failure.
type Result struct {
	Value  []byte
	Source Source
	Err    error
}

// Options configures a Pipeline. All fields are optional.
type Options struct {
	Logger    types.Logger
	Recorder  metrics.Recorder
	Publisher types.Publisher

	// FallbackTTL is how long fallback values are cached. Negative disables
	// caching them.
	FallbackTTL time.Duration

	// MaxConcurrency bounds the requests FetchAll runs at once.
	MaxConcurrency int
}

// Pipeline composes the cache manager and the resilience manager.
type Pipeline struct {
	caches     *cache.Manager
	resilience *resilience.Manager
	logger     *slog.Logger
	recorder   metrics.Recorder
	publisher  types.Publisher

	fallbackTTL    time.Duration
	maxConcurrency int

	sfGroup singleflight.Group
}

// New creates a pipeline over the given managers.
func New(caches *cache.Manager, res *resilience.Manager, opts *Options) *Pipeline {
	if opts == nil {
		opts = &Options{}
	}

	p := &Pipeline{
		caches:         caches,
		resilience:     res,
		logger:         logging.New(opts.Logger, "pipeline"),
		recorder:       opts.Recorder,
		publisher:      opts.Publisher,
		fallbackTTL:    opts.FallbackTTL,
		maxConcurrency: opts.MaxConcurrency,
	}
	if p.recorder == nil {
		p.recorder = metrics.NewNoOpRecorder()
	}
	if p.publisher == nil {
		p.publisher = metrics.NewNoOpPublisher()
	}
	if p.fallbackTTL == 0 {
		p.fallbackTTL = DefaultFallbackTTL
	}
	if p.maxConcurrency <= 0 {
		p.maxConcurrency = DefaultMaxConcurrency
	}
	return p
}

// Fetch returns the cached value for req or loads it from the upstream.
// Concurrent misses for the same cache and key share one upstream call.
// When a fallback exists the result carries a value even if the upstream
// failed.
func (p *Pipeline) Fetch(ctx context.Context, req Request) (Result, error) {
	if req.Cache == "" || req.Key == "" {
		return Result{Err: types.ErrInvalidKey}, types.ErrInvalidKey
	}
	if req.Fetch == nil {
		err := fmt.Errorf("pipeline: no fetch function for %s/%s", req.Cache, req.Key)
		return Result{Err: err}, err
	}

	timer := metrics.NewTimer(p.publisher, "fetch.duration", metrics.CacheTag(req.Cache))
	res := p.fetch(ctx, req)
	latency := timer.Stop(metrics.SourceTag(string(res.Source)))

	p.recorder.RecordFetch(string(res.Source), latency, res.Err)
	return res, res.Err
}

func (p *Pipeline) fetch(ctx context.Context, req Request) Result {
	value, err := p.caches.Get(req.Cache, req.Key)
	if err == nil {
		return Result{Value: value, Source: SourceCache}
	}
	if !types.IsCacheMiss(err) {
		return Result{Err: err}
	}

	// The shared load outlives any single caller; CallTimeout bounds it.
	loadCtx := context.WithoutCancel(ctx)
	ch := p.sfGroup.DoChan(req.Cache+"\x00"+req.Key, func() (any, error) {
		return p.load(loadCtx, req), nil
	})

	select {
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	case r := <-ch:
		res := r.Val.(Result)
		if r.Shared && res.Value != nil {
			res.Value = bytes.Clone(res.Value)
		}
		return res
	}
}

// load runs inside the singleflight group.
func (p *Pipeline) load(ctx context.Context, req Request) Result {
	if value, err := p.caches.Get(req.Cache, req.Key); err == nil {
		return Result{Value: value, Source: SourceCache}
	}

	dep := req.dependency()
	fallback := req.Fallback
	if fallback == nil {
		fallback = p.resilience.LastKnownGood(dep, req.Key)
	}

	var usedFallback atomic.Bool
	value, err := p.resilience.CallProtectedKey(ctx, dep, req.Key, req.Fetch,
		func(ctx context.Context, cause error) ([]byte, error) {
			usedFallback.Store(true)
			return fallback(ctx, cause)
		})

	source := SourceUpstream
	if usedFallback.Load() {
		source = SourceFallback
	}
	if err != nil && value == nil {
		return Result{Source: source, Err: err}
	}

	ttl := req.TTL
	if source == SourceFallback {
		ttl = p.fallbackTTL
	}
	if source == SourceUpstream || ttl > 0 {
		if serr := p.caches.Set(req.Cache, req.Key, value, types.WithTTL(ttl)); serr != nil {
			p.logger.Debug("Failed to cache fetched value", "cache", req.Cache, "key", req.Key, "error", serr)
		}
	}

	if source == SourceFallback {
		p.logger.Debug("Served fallback", "cache", req.Cache, "key", req.Key, "dependency", dep)
	}
	return Result{Value: value, Source: source, Err: err}
}

// FetchAll runs the requests concurrently and returns their results in
// request order. The error joins the errors of every failed request; other
// results are still usable.
func (p *Pipeline) FetchAll(ctx context.Context, reqs []Request) ([]Result, error) {
	results := make([]Result, len(reqs))

	var g errgroup.Group
	g.SetLimit(p.maxConcurrency)
	for i, req := range reqs {
		g.Go(func() error {
			results[i], _ = p.Fetch(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for i, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s/%s: %w", reqs[i].Cache, reqs[i].Key, r.Err))
		}
	}
	return results, errors.Join(errs...)
}
