// Package prefetch warms the image cache with pages near the one being viewed.
//
// Work is best effort: each candidate is rendered at most once at a time,
// started renders run to completion even when the caller goes away, and
// failures are logged, never returned.
package prefetch

import (
	"context"
	"sync"
	"time"

	"github.com/bnrm/pdfview/observability"
	"github.com/bnrm/pdfview/recovery"
	"github.com/bnrm/pdfview/render"
)

const (
	DefaultInitialDelay = 50 * time.Millisecond
	DefaultStagger      = 100 * time.Millisecond
	DefaultRadius       = 2
)

// Renderer rasterizes a page without caching it.
type Renderer interface {
	RenderPage(ctx context.Context, req render.Request) (render.Image, error)
}

// Cache is the part of the image cache the prefetcher needs.
type Cache interface {
	Contains(key render.Key) bool
	PutImage(img render.Image)
}

type Option func(*Prefetcher)

// WithDelays sets the batch delay and the gap between candidates.
func WithDelays(initial, stagger time.Duration) Option {
	return func(p *Prefetcher) {
		if initial >= 0 {
			p.initial = initial
		}
		if stagger >= 0 {
			p.stagger = stagger
		}
	}
}

func WithRadius(n int) Option {
	return func(p *Prefetcher) {
		if n > 0 {
			p.radius = n
		}
	}
}

func WithLogger(l observability.Logger) Option {
	return func(p *Prefetcher) {
		if l != nil {
			p.log = l
		}
	}
}

func WithMetrics(m observability.Metrics) Option {
	return func(p *Prefetcher) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithStrategy replaces the failure policy. The default swallows everything.
func WithStrategy(s recovery.Strategy) Option {
	return func(p *Prefetcher) {
		if s != nil {
			p.strategy = s
		}
	}
}

// Prefetcher schedules background renders. It is safe for concurrent use.
type Prefetcher struct {
	renderer Renderer
	cache    Cache
	initial  time.Duration
	stagger  time.Duration
	radius   int
	log      observability.Logger
	metrics  observability.Metrics
	strategy recovery.Strategy

	mu       sync.Mutex
	inFlight map[render.Key]struct{}
	pending  map[*time.Timer]struct{}
	wg       sync.WaitGroup
}

func New(renderer Renderer, cache Cache, opts ...Option) *Prefetcher {
	p := &Prefetcher{
		renderer: renderer,
		cache:    cache,
		initial:  DefaultInitialDelay,
		stagger:  DefaultStagger,
		radius:   DefaultRadius,
		log:      observability.NopLogger{},
		metrics:  observability.NopMetrics{},
		inFlight: make(map[render.Key]struct{}),
		pending:  make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.strategy == nil {
		p.strategy = recovery.NewBackgroundStrategy(p.log)
	}
	return p
}

// Radius is the neighbourhood Schedule uses when no pages are given.
func (p *Prefetcher) Radius() int { return p.radius }

// Candidates returns the default neighbourhood of current: current±1 then
// current±2 and so on up to radius, inside [1, pageCount].
func Candidates(current, pageCount, radius int) []int {
	var out []int
	for d := 1; d <= radius; d++ {
		for _, page := range [2]int{current + d, current - d} {
			if page >= 1 && page <= pageCount {
				out = append(out, page)
			}
		}
	}
	return out
}

// Schedule queues renders of pages around current. When pages is empty the
// default candidates are used; otherwise the explicit list is taken as is,
// minus out-of-range entries and the current page. It returns the pages that
// were queued.
//
// Cancelling ctx drops candidates that have not started yet.
func (p *Prefetcher) Schedule(ctx context.Context, current render.Request, pageCount int, pages ...int) []int {
	if len(pages) == 0 {
		pages = Candidates(current.Page, pageCount, p.radius)
	}
	var queued []int
	seen := make(map[int]bool, len(pages))
	for _, page := range pages {
		if page < 1 || page == current.Page || seen[page] || (pageCount > 0 && page > pageCount) {
			continue
		}
		seen[page] = true
		queued = append(queued, page)
	}

	for i, page := range queued {
		req := current.WithPage(page)
		delay := p.initial + time.Duration(i)*p.stagger
		p.wg.Add(1)
		p.mu.Lock()
		var t *time.Timer
		t = time.AfterFunc(delay, func() {
			p.mu.Lock()
			delete(p.pending, t)
			p.mu.Unlock()
			defer p.wg.Done()
			p.run(ctx, req)
		})
		p.pending[t] = struct{}{}
		p.mu.Unlock()
	}
	p.metrics.Count(observability.MetricPrefetchQueued, int64(len(queued)))
	return queued
}

func (p *Prefetcher) run(ctx context.Context, req render.Request) {
	if ctx.Err() != nil {
		p.metrics.Count(observability.MetricPrefetchSkipped, 1)
		return
	}
	key := req.Key()
	if p.cache.Contains(key) || !p.acquire(key) {
		p.metrics.Count(observability.MetricPrefetchSkipped, 1)
		return
	}
	defer p.releaseKey(key)

	img, err := p.renderer.RenderPage(context.WithoutCancel(ctx), req)
	if err != nil {
		loc := recovery.Location{Source: req.Source, Page: req.Page, Component: "prefetch"}
		if p.strategy.OnError(ctx, err, loc) == recovery.ActionSkip {
			p.metrics.Count(observability.MetricPrefetchSkipped, 1)
		} else {
			p.metrics.Count(observability.MetricPrefetchFailed, 1)
		}
		return
	}
	p.cache.PutImage(img)
	p.log.Debug("page prefetched", observability.String("source", req.Source), observability.Int("page", req.Page))
}

func (p *Prefetcher) acquire(key render.Key) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inFlight[key]; busy {
		return false
	}
	p.inFlight[key] = struct{}{}
	return true
}

func (p *Prefetcher) releaseKey(key render.Key) {
	p.mu.Lock()
	delete(p.inFlight, key)
	p.mu.Unlock()
}

// InFlight reports whether key is being rendered right now.
func (p *Prefetcher) InFlight(key render.Key) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.inFlight[key]
	return ok
}

// Stop drops every candidate that has not fired yet. Renders already running
// are left alone.
func (p *Prefetcher) Stop() {
	p.mu.Lock()
	timers := make([]*time.Timer, 0, len(p.pending))
	for t := range p.pending {
		timers = append(timers, t)
		delete(p.pending, t)
	}
	p.mu.Unlock()
	for _, t := range timers {
		if t.Stop() {
			p.wg.Done()
		}
	}
}

// Wait blocks until every scheduled candidate has either run or been dropped.
func (p *Prefetcher) Wait() {
	p.wg.Wait()
}
