package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bnrm/pdfview/access"
	"github.com/bnrm/pdfview/cache"
	"github.com/bnrm/pdfview/config"
	"github.com/bnrm/pdfview/observability"
	"github.com/bnrm/pdfview/ocr"
	"github.com/bnrm/pdfview/overlay"
	"github.com/bnrm/pdfview/prefetch"
	"github.com/bnrm/pdfview/rasterizer"
	"github.com/bnrm/pdfview/render"
	"github.com/bnrm/pdfview/schedule"
	"github.com/bnrm/pdfview/scripting"
	"github.com/bnrm/pdfview/sqlstore"
	"github.com/bnrm/pdfview/viewer"
	"github.com/bnrm/pdfview/viewport"
)

// app is everything a subcommand needs, built from one Config.
type app struct {
	cfg     config.Config
	log     observability.Logger
	metrics *observability.CounterMetrics
	store   *cache.Store
	viewer  *viewer.Viewer
	ocr     ocr.Store
	db      *sqlstore.DB
	display access.Display
	format  overlay.TranscriptFormat

	mu       sync.Mutex
	policies map[string]*scripting.ScriptPolicy
}

func newLogger(cfg config.Config, out io.Writer) (observability.Logger, error) {
	level, err := observability.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	return observability.NewLogrus(l), nil
}

func newApp(cfg config.Config, opener render.Opener, log observability.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	display, err := access.ParseDisplay(cfg.Access.Display)
	if err != nil {
		return nil, err
	}
	format, _ := overlay.ParseTranscriptFormat(cfg.Overlay.TranscriptFormat)
	a := &app{
		cfg:      cfg,
		log:      log,
		metrics:  observability.NewCounterMetrics(),
		display:  display,
		format:   format,
		policies: make(map[string]*scripting.ScriptPolicy),
	}
	if cfg.Storage.SQLitePath != "" {
		db, err := sqlstore.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.db = db
		a.ocr = db
	} else {
		a.ocr = ocr.NewMemoryStore()
	}

	a.store = cache.New(opener,
		cache.WithMaxImages(cfg.Cache.MaxImages),
		cache.WithLogger(log),
		cache.WithMetrics(a.metrics))
	a.viewer = viewer.New(a.store, a.ocr,
		viewer.WithLogger(log),
		viewer.WithMetrics(a.metrics),
		viewer.WithLimits(rasterizer.Limits{
			MaxDimension: cfg.Render.MaxDimension,
			MaxPixels:    cfg.Render.MaxPixels,
		}),
		viewer.WithPrefetchOptions(
			prefetch.WithDelays(cfg.Prefetch.InitialDelay.Std(), cfg.Prefetch.Stagger.Std()),
			prefetch.WithRadius(cfg.Prefetch.Radius)),
		viewer.WithOverlayOptions(
			overlay.WithMinSearchLength(cfg.Overlay.MinSearchLen),
			overlay.WithTranscriptFormat(format)),
		viewer.WithPageFilter(a.fetchable))
	return a, nil
}

func (a *app) Close() error {
	a.viewer.Close()
	a.store.Clear("")
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// rules builds the access rules for source, a document of total pages. A
// configured script takes precedence over free_pages and is compiled once per
// source.
func (a *app) rules(source string, total int) (access.Rules, error) {
	r := access.Rules{Display: a.display, Message: a.cfg.Access.Message}
	switch {
	case a.cfg.Access.Script != "":
		p, err := a.policy(source, total)
		if err != nil {
			return r, err
		}
		r.Policy = p
	case a.cfg.Access.FreePages > 0:
		r.Policy = access.FreePages(a.cfg.Access.FreePages)
	}
	return r, nil
}

func (a *app) policy(source string, total int) (*scripting.ScriptPolicy, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p, ok := a.policies[source]; ok {
		p.SetTotalPages(total)
		return p, nil
	}
	p, err := scripting.CompilePolicy(a.cfg.Access.Script, total, scripting.WithPolicyLogger(a.log))
	if err != nil {
		return nil, err
	}
	a.policies[source] = p
	return p, nil
}

// windowResult is the JSON shape of a virtual window.
type windowResult struct {
	Start   int          `json:"start"`
	End     int          `json:"end"`
	Current int          `json:"current"`
	Before  float64      `json:"spacer_before"`
	After   float64      `json:"spacer_after"`
	Pages   []windowPage `json:"pages"`
}

type windowPage struct {
	Page        int     `json:"page"`
	Top         float64 `json:"top"`
	Height      float64 `json:"height"`
	Accessible  bool    `json:"accessible"`
	FetchRaster bool    `json:"fetch_raster"`
	Blur        bool    `json:"blur,omitempty"`
	Message     string  `json:"message,omitempty"`
}

// window lays out the pages of source for one scroll position and warms the
// cache with the pages just below the window at scale.
func (a *app) window(ctx context.Context, source string, scroll, height, zoom, scale float64) (windowResult, error) {
	total, err := a.viewer.PageCount(ctx, source)
	if err != nil {
		return windowResult{}, err
	}
	rules, err := a.rules(source, total)
	if err != nil {
		return windowResult{}, err
	}
	if height <= 0 {
		return windowResult{}, errors.New("viewport height must be positive")
	}
	// One request is one frame: a fake clock lets the debounced prefetch
	// fire before returning.
	clock := &schedule.Fake{}
	hooks := viewport.Hooks{
		Prefetch: func(pages []int) {
			if scale <= 0 {
				return
			}
			if _, err := a.viewer.PreloadPages(context.WithoutCancel(ctx), source, pages, scale, 0); err != nil {
				a.log.Warn("window prefetch failed", observability.String("source", source), observability.Error("error", err))
			}
		},
	}
	debounce := a.cfg.Viewport.PrefetchDebounce.Std()
	if debounce <= 0 {
		debounce = viewport.DefaultPrefetchDebounce
	}
	v := viewport.New(total, viewport.Config{
		EstimatedPageHeight: a.cfg.Viewport.EstimatedPageHeight,
		BufferPages:         a.cfg.Viewport.BufferPages,
		PrefetchAhead:       a.cfg.Viewport.PrefetchAhead,
		PrefetchDebounce:    debounce,
		FrameInterval:       viewport.DefaultFrameInterval,
		Rules:               rules,
	}, hooks, viewport.WithAfterFunc(clock.AfterFunc), viewport.WithLogger(a.log))
	defer v.Close()
	v.OnResize(height)
	v.OnZoom(zoom)
	v.OnScroll(scroll)
	l := v.Flush()
	// The pending frame re-arms the debounce once more.
	clock.Advance(viewport.DefaultFrameInterval + debounce)

	out := windowResult{
		Start:   l.Range.Start,
		End:     l.Range.End,
		Current: l.Current,
		Before:  l.Before,
		After:   l.After,
	}
	for _, it := range l.Items {
		out.Pages = append(out.Pages, windowPage{
			Page:        it.Page,
			Top:         it.Top,
			Height:      it.Height,
			Accessible:  it.Decision.Accessible,
			FetchRaster: it.Decision.FetchRaster,
			Blur:        it.Decision.Blur,
			Message:     it.Decision.Message,
		})
	}
	return out, nil
}

// pageAllowed checks the access rules before a raster is served.
func (a *app) pageAllowed(ctx context.Context, source string, page int) (access.Decision, error) {
	total, err := a.viewer.PageCount(ctx, source)
	if err != nil {
		return access.Decision{}, err
	}
	rules, err := a.rules(source, total)
	if err != nil {
		return access.Decision{}, fmt.Errorf("access rules: %w", err)
	}
	return rules.Decide(page), nil
}

// fetchable is the viewer's page filter: background renders only fetch pages
// whose raster a reader would be shown.
func (a *app) fetchable(ctx context.Context, source string, page int) bool {
	d, err := a.pageAllowed(ctx, source, page)
	if err != nil {
		a.log.Warn("access check failed", observability.String("source", source), observability.Int("page", page), observability.Error("error", err))
		return false
	}
	return d.FetchRaster
}
