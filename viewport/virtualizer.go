package viewport

import (
	"sync"
	"time"

	"github.com/bnrm/pdfview/access"
	"github.com/bnrm/pdfview/observability"
	"github.com/bnrm/pdfview/schedule"
)

const (
	DefaultPrefetchAhead    = 3
	DefaultPrefetchDebounce = 150 * time.Millisecond
	DefaultFrameInterval    = 16 * time.Millisecond
)

// Item is one mounted page.
type Item struct {
	Page     int
	Top      float64
	Height   float64
	Decision access.Decision
}

// Layout is what the host mounts: a spacer, the items, another spacer.
type Layout struct {
	Range   Range
	Current int
	Before  float64
	After   float64
	Items   []Item
}

// Pages returns the mounted page numbers.
func (l Layout) Pages() []int {
	out := make([]int, len(l.Items))
	for i, it := range l.Items {
		out[i] = it.Page
	}
	return out
}

// Config holds the tunables of a Virtualizer. Zero fields take defaults.
type Config struct {
	EstimatedPageHeight float64
	BufferPages         int
	PrefetchAhead       int
	PrefetchDebounce    time.Duration
	FrameInterval       time.Duration
	Rules               access.Rules
}

func (c Config) withDefaults() Config {
	if c.EstimatedPageHeight <= 0 {
		c.EstimatedPageHeight = DefaultEstimatedPageHeight
	}
	if c.BufferPages <= 0 {
		c.BufferPages = DefaultBufferPages
	}
	if c.PrefetchAhead <= 0 {
		c.PrefetchAhead = DefaultPrefetchAhead
	}
	if c.PrefetchDebounce <= 0 {
		c.PrefetchDebounce = DefaultPrefetchDebounce
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = DefaultFrameInterval
	}
	return c
}

// Hooks receive the Virtualizer's output. Any of them may be nil. They are
// called without internal locks held.
type Hooks struct {
	OnLayout      func(Layout)
	OnCurrentPage func(page int)
	// Prefetch receives up to PrefetchAhead pages after the mounted range.
	Prefetch func(pages []int)
}

type Option func(*Virtualizer)

// WithAfterFunc replaces the clock driving frames and debounces.
func WithAfterFunc(f schedule.AfterFunc) Option {
	return func(v *Virtualizer) {
		if f != nil {
			v.after = f
		}
	}
}

func WithLogger(l observability.Logger) Option {
	return func(v *Virtualizer) {
		if l != nil {
			v.log = l
		}
	}
}

// Virtualizer turns scroll, zoom and resize events into layouts. Events are
// coalesced: at most one layout is computed per frame.
type Virtualizer struct {
	cfg   Config
	hooks Hooks
	after schedule.AfterFunc
	log   observability.Logger

	mu       sync.Mutex
	geo      Geometry
	frame    schedule.Timer
	prefetch schedule.Timer
	current  int
	last     Layout
	closed   bool
}

func New(totalPages int, cfg Config, hooks Hooks, opts ...Option) *Virtualizer {
	cfg = cfg.withDefaults()
	v := &Virtualizer{
		cfg:   cfg,
		hooks: hooks,
		after: schedule.Real,
		log:   observability.NopLogger{},
		geo: Geometry{
			EstimatedPageHeight: cfg.EstimatedPageHeight,
			Zoom:                DefaultZoom,
			BufferPages:         cfg.BufferPages,
			TotalPages:          totalPages,
		},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// OnScroll records a new scroll offset.
func (v *Virtualizer) OnScroll(offset float64) {
	v.update(func(g *Geometry) { g.ScrollOffset = offset })
}

// OnZoom records a new zoom percentage.
func (v *Virtualizer) OnZoom(zoom float64) {
	v.update(func(g *Geometry) { g.Zoom = zoom })
}

// OnResize records a new viewport height.
func (v *Virtualizer) OnResize(viewportHeight float64) {
	v.update(func(g *Geometry) { g.ViewportHeight = viewportHeight })
}

// SetTotalPages corrects the page count once the document is open.
func (v *Virtualizer) SetTotalPages(n int) {
	v.update(func(g *Geometry) { g.TotalPages = n })
}

// SetRules replaces the access rules, e.g. after the reader signs in.
func (v *Virtualizer) SetRules(r access.Rules) {
	v.mu.Lock()
	v.cfg.Rules = r
	v.mu.Unlock()
	v.requestFrame()
}

func (v *Virtualizer) update(fn func(*Geometry)) {
	v.mu.Lock()
	fn(&v.geo)
	v.mu.Unlock()
	v.requestFrame()
}

func (v *Virtualizer) requestFrame() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || v.frame != nil {
		return
	}
	v.frame = v.after(v.cfg.FrameInterval, v.runFrame)
}

func (v *Virtualizer) runFrame() {
	v.mu.Lock()
	v.frame = nil
	v.mu.Unlock()
	v.Flush()
}

// Flush computes the layout now and notifies the hooks.
func (v *Virtualizer) Flush() Layout {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return Layout{}
	}
	layout := v.layout()
	changed := layout.Current != v.current
	v.current = layout.Current
	v.last = layout
	v.schedulePrefetch(layout)
	v.mu.Unlock()

	if v.hooks.OnLayout != nil {
		v.hooks.OnLayout(layout)
	}
	if changed && layout.Current > 0 && v.hooks.OnCurrentPage != nil {
		v.hooks.OnCurrentPage(layout.Current)
	}
	return layout
}

// Layout returns the last computed layout.
func (v *Virtualizer) Layout() Layout {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.last
}

// Close cancels pending frames and prefetches.
func (v *Virtualizer) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	if v.frame != nil {
		v.frame.Stop()
		v.frame = nil
	}
	if v.prefetch != nil {
		v.prefetch.Stop()
		v.prefetch = nil
	}
}

// layout is called with mu held.
func (v *Virtualizer) layout() Layout {
	r, current := ComputeRange(v.geo)
	l := Layout{Range: r, Current: current}
	if r.Empty() {
		return l
	}
	pageH := v.geo.PageHeight()
	l.Before = float64(r.Start-1) * pageH
	l.After = float64(v.geo.TotalPages-r.End) * pageH
	top := l.Before
	for page := r.Start; page <= r.End; page++ {
		d := v.cfg.Rules.Decide(page)
		if !d.Mount {
			continue
		}
		l.Items = append(l.Items, Item{Page: page, Top: top, Height: pageH, Decision: d})
		top += pageH
	}
	return l
}

// schedulePrefetch restarts the debounce for the pages after the range.
// Called with mu held.
func (v *Virtualizer) schedulePrefetch(l Layout) {
	if v.hooks.Prefetch == nil || l.Range.Empty() {
		return
	}
	var pages []int
	for page := l.Range.End + 1; page <= l.Range.End+v.cfg.PrefetchAhead && page <= v.geo.TotalPages; page++ {
		if v.cfg.Rules.Decide(page).FetchRaster {
			pages = append(pages, page)
		}
	}
	if v.prefetch != nil {
		v.prefetch.Stop()
		v.prefetch = nil
	}
	if len(pages) == 0 {
		return
	}
	hook := v.hooks.Prefetch
	v.prefetch = v.after(v.cfg.PrefetchDebounce, func() {
		v.mu.Lock()
		closed := v.closed
		v.mu.Unlock()
		if closed {
			return
		}
		v.log.Debug("prefetching ahead", observability.Int("from", pages[0]), observability.Int("count", len(pages)))
		hook(pages)
	})
}
