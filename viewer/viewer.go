// Package viewer is the host-facing entry point of the rendering core. It wires
// the document cache, the rasterizer, the prefetcher and the overlay resolver
// into one service object.
package viewer

import (
	"context"
	"errors"
	"sync"

	"github.com/bnrm/pdfview/cache"
	"github.com/bnrm/pdfview/observability"
	"github.com/bnrm/pdfview/ocr"
	"github.com/bnrm/pdfview/overlay"
	"github.com/bnrm/pdfview/pageturn"
	"github.com/bnrm/pdfview/prefetch"
	"github.com/bnrm/pdfview/rasterizer"
	"github.com/bnrm/pdfview/recovery"
	"github.com/bnrm/pdfview/render"
)

// PageRequest is what a host asks for: a page at a scale and rotation, with a
// priority. High priority is the page on screen; low priority is speculative.
type PageRequest struct {
	Source   string
	Page     int
	Scale    float64
	Rotation render.Rotation
	Priority render.Priority
}

func (r PageRequest) request() render.Request {
	return render.Request{Source: r.Source, Page: r.Page, Scale: r.Scale, Rotation: r.Rotation}
}

// Callback receives the outcome of RenderPage.
type Callback func(img render.Image, err error)

type Option func(*Viewer)

func WithLogger(l observability.Logger) Option {
	return func(v *Viewer) {
		if l != nil {
			v.log = l
		}
	}
}

func WithMetrics(m observability.Metrics) Option {
	return func(v *Viewer) {
		if m != nil {
			v.metrics = m
		}
	}
}

func WithTracer(t observability.Tracer) Option {
	return func(v *Viewer) {
		if t != nil {
			v.tracer = t
		}
	}
}

func WithLimits(l rasterizer.Limits) Option {
	return func(v *Viewer) { v.limits = &l }
}

// WithPrefetchOptions forwards options to the prefetcher.
func WithPrefetchOptions(opts ...prefetch.Option) Option {
	return func(v *Viewer) { v.prefetchOpts = append(v.prefetchOpts, opts...) }
}

// WithOverlayOptions forwards options to the overlay resolver.
func WithOverlayOptions(opts ...overlay.Option) Option {
	return func(v *Viewer) { v.overlayOpts = append(v.overlayOpts, opts...) }
}

// PageFilter reports whether page of source may be rendered speculatively.
// Pages it refuses are never prefetched or preloaded.
type PageFilter func(ctx context.Context, source string, page int) bool

// WithPageFilter restricts background renders to pages f accepts.
func WithPageFilter(f PageFilter) Option {
	return func(v *Viewer) { v.filter = f }
}

// Viewer is safe for concurrent use.
type Viewer struct {
	store      *cache.Store
	rasterizer *rasterizer.Rasterizer
	prefetcher *prefetch.Prefetcher
	resolver   *overlay.Resolver
	foreground recovery.Strategy
	background recovery.Strategy

	log          observability.Logger
	metrics      observability.Metrics
	tracer       observability.Tracer
	limits       *rasterizer.Limits
	prefetchOpts []prefetch.Option
	overlayOpts  []overlay.Option
	filter       PageFilter

	mu        sync.Mutex
	loaded    map[string]int
	listeners []func(source string, totalPages int)
}

// New builds a viewer over store. ocrStore may be nil, in which case every
// document uses its native text layer.
func New(store *cache.Store, ocrStore ocr.Store, opts ...Option) *Viewer {
	v := &Viewer{
		store:   store,
		log:     observability.NopLogger{},
		metrics: observability.NopMetrics{},
		tracer:  observability.NopTracer(),
		loaded:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(v)
	}
	if ocrStore == nil {
		ocrStore = ocr.NewMemoryStore()
	}
	rOpts := []rasterizer.Option{
		rasterizer.WithLogger(v.log),
		rasterizer.WithMetrics(v.metrics),
		rasterizer.WithTracer(v.tracer),
	}
	if v.limits != nil {
		rOpts = append(rOpts, rasterizer.WithLimits(*v.limits))
	}
	v.rasterizer = rasterizer.New(store, rOpts...)
	v.prefetcher = prefetch.New(v.rasterizer, store,
		append([]prefetch.Option{prefetch.WithLogger(v.log), prefetch.WithMetrics(v.metrics)}, v.prefetchOpts...)...)
	v.resolver = overlay.NewResolver(store, ocrStore,
		append([]overlay.Option{overlay.WithLogger(v.log), overlay.WithMetrics(v.metrics), overlay.WithTracer(v.tracer)}, v.overlayOpts...)...)
	v.foreground = recovery.NewStrictStrategy()
	v.background = recovery.NewBackgroundStrategy(v.log)
	return v
}

func (v *Viewer) Store() *cache.Store                 { return v.store }
func (v *Viewer) Rasterizer() *rasterizer.Rasterizer { return v.rasterizer }
func (v *Viewer) Resolver() *overlay.Resolver         { return v.resolver }

// Render renders a page through the cache. A successful high priority render
// schedules prefetch of its neighbours.
func (v *Viewer) Render(ctx context.Context, req PageRequest) (render.Image, error) {
	r := req.request()
	img, err := v.rasterizer.Render(ctx, r)
	if err != nil {
		// Low priority failures are logged here; the caller still sees err.
		strategy := v.foreground
		if req.Priority == render.PriorityLow {
			strategy = v.background
		}
		strategy.OnError(ctx, err, recovery.Location{Source: r.Source, Page: r.Page, Component: "viewer"})
		return render.Image{}, err
	}
	total := v.noteLoaded(ctx, r.Source)
	if req.Priority == render.PriorityHigh {
		// Neighbours outlive the request that asked for them.
		bg := context.WithoutCancel(ctx)
		if pages := v.allowed(bg, r.Source, prefetch.Candidates(r.Page, total, v.prefetcher.Radius())); len(pages) > 0 {
			v.prefetcher.Schedule(bg, r, total, pages...)
		}
	}
	return img, nil
}

// allowed keeps the pages the filter accepts, in order.
func (v *Viewer) allowed(ctx context.Context, source string, pages []int) []int {
	if v.filter == nil {
		return pages
	}
	out := pages[:0:0]
	for _, p := range pages {
		if v.filter(ctx, source, p) {
			out = append(out, p)
		} else {
			v.log.Debug("background render refused",
				observability.String("source", source), observability.Int("page", p))
		}
	}
	return out
}

// RenderPage renders asynchronously and reports through done, which may be nil.
func (v *Viewer) RenderPage(ctx context.Context, req PageRequest, done Callback) {
	go func() {
		img, err := v.Render(ctx, req)
		if done != nil {
			done(img, err)
		}
	}()
}

// PreloadPages schedules pages of source in the background. It returns the
// pages that were queued; pages refused by the page filter are skipped.
func (v *Viewer) PreloadPages(ctx context.Context, source string, pages []int, scale float64, rot render.Rotation) ([]int, error) {
	if len(pages) == 0 {
		return nil, nil
	}
	doc, err := v.store.GetOrOpenDocument(ctx, source)
	if err != nil {
		return nil, err
	}
	v.noteLoaded(ctx, source)
	if pages = v.allowed(ctx, source, pages); len(pages) == 0 {
		return nil, nil
	}
	anchor := render.Request{Source: source, Scale: scale, Rotation: rot}
	return v.prefetcher.Schedule(ctx, anchor, doc.PageCount(), pages...), nil
}

// ClearCache drops cached images, the document handle and the overlay mode of
// source. An empty source clears everything.
func (v *Viewer) ClearCache(source string) {
	v.store.Clear(source)
	v.mu.Lock()
	if source == "" {
		clear(v.loaded)
	} else {
		delete(v.loaded, source)
	}
	v.mu.Unlock()
	if source == "" {
		v.resolver.Reset()
	} else {
		v.resolver.Forget(source)
	}
}

// OnPageLoad registers fn to learn the authoritative page count of a document
// the first time it is opened.
func (v *Viewer) OnPageLoad(fn func(source string, totalPages int)) {
	v.mu.Lock()
	v.listeners = append(v.listeners, fn)
	v.mu.Unlock()
}

// PageCount opens source if needed and returns its page count.
func (v *Viewer) PageCount(ctx context.Context, source string) (int, error) {
	doc, err := v.store.GetOrOpenDocument(ctx, source)
	if err != nil {
		return 0, err
	}
	v.noteLoaded(ctx, source)
	return doc.PageCount(), nil
}

func (v *Viewer) noteLoaded(ctx context.Context, source string) int {
	v.mu.Lock()
	if n, ok := v.loaded[source]; ok {
		v.mu.Unlock()
		return n
	}
	v.mu.Unlock()
	doc, err := v.store.GetOrOpenDocument(ctx, source)
	if err != nil {
		return 0
	}
	total := doc.PageCount()
	v.mu.Lock()
	if _, ok := v.loaded[source]; ok {
		v.mu.Unlock()
		return total
	}
	v.loaded[source] = total
	listeners := append([]func(string, int){}, v.listeners...)
	v.mu.Unlock()
	for _, fn := range listeners {
		fn(source, total)
	}
	return total
}

// Overlay resolves the text layer for a page.
func (v *Viewer) Overlay(ctx context.Context, p overlay.Params) (overlay.Layer, error) {
	return v.resolver.Resolve(ctx, p)
}

// ReadingDirection guesses the reading direction of source from the native
// text of its first page. Documents without text read left to right.
func (v *Viewer) ReadingDirection(ctx context.Context, source string) (pageturn.Direction, error) {
	doc, done, err := v.store.AcquireDocument(ctx, source)
	if err != nil {
		return pageturn.LTR, err
	}
	defer done()
	if doc.PageCount() < 1 {
		return pageturn.LTR, nil
	}
	spans, err := doc.TextSpans(ctx, 1)
	if err != nil {
		return pageturn.LTR, &render.OverlayFailure{Source: source, Page: 1, Err: err}
	}
	var rtl, ltr int
	for _, s := range spans {
		if overlay.IsRTL(s.Text) {
			rtl++
		} else {
			ltr++
		}
	}
	if rtl > ltr {
		return pageturn.RTL, nil
	}
	return pageturn.LTR, nil
}

// Wait blocks until scheduled prefetch work has settled.
func (v *Viewer) Wait() { v.prefetcher.Wait() }

// Close drops pending prefetch work and waits for running renders.
func (v *Viewer) Close() {
	v.prefetcher.Stop()
	v.prefetcher.Wait()
}

// IsSuperseded reports whether err marks a discarded result.
func IsSuperseded(err error) bool { return errors.Is(err, render.ErrSuperseded) }
