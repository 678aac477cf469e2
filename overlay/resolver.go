// Package overlay resolves the selectable text layer drawn over a page
// raster. A document shows either its native text, positioned to match the
// raster, or its OCR transcript as flowing text. The choice is made once per
// document and never revisited; pages without native text fall back to OCR on
// their own.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bnrm/pdfview/coords"
	"github.com/bnrm/pdfview/measure"
	"github.com/bnrm/pdfview/observability"
	"github.com/bnrm/pdfview/ocr"
	"github.com/bnrm/pdfview/render"
)

// ErrNotMeasured is returned for native pages while the container has no
// usable size yet. Callers render nothing and wait for the next size.
var ErrNotMeasured = errors.New("overlay: container not measured")

const (
	ascent  = 0.8
	descent = 0.2
)

// DocumentSource leases shared document handles. The handle stays open until
// done is called.
type DocumentSource interface {
	AcquireDocument(ctx context.Context, source string) (doc render.Document, done func(), err error)
}

// Params describes one overlay request.
type Params struct {
	Request render.Request
	// DocumentID keys the OCR store. Defaults to Request.Source.
	DocumentID string
	Container  measure.Size
	Search     string
}

func (p Params) documentID() string {
	if p.DocumentID != "" {
		return p.DocumentID
	}
	return p.Request.Source
}

type Option func(*Resolver)

func WithLogger(l observability.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.log = l
		}
	}
}

func WithMetrics(m observability.Metrics) Option {
	return func(r *Resolver) {
		if m != nil {
			r.metrics = m
		}
	}
}

func WithTracer(t observability.Tracer) Option {
	return func(r *Resolver) {
		if t != nil {
			r.tracer = t
		}
	}
}

func WithMinSearchLength(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.minSearch = n
		}
	}
}

func WithTranscriptFormat(f TranscriptFormat) Option {
	return func(r *Resolver) { r.format = f }
}

type modeEntry struct {
	ready chan struct{}
	mode  Mode
	err   error
}

// Resolver decides and builds page overlays. One Resolver is shared by the
// whole process so the per-document decision is made once.
type Resolver struct {
	docs      DocumentSource
	store     ocr.Store
	minSearch int
	format    TranscriptFormat
	log       observability.Logger
	metrics   observability.Metrics
	tracer    observability.Tracer

	mu    sync.Mutex
	modes map[string]*modeEntry
}

func NewResolver(docs DocumentSource, store ocr.Store, opts ...Option) *Resolver {
	r := &Resolver{
		docs:      docs,
		store:     store,
		minSearch: DefaultMinSearchLength,
		log:       observability.NopLogger{},
		metrics:   observability.NopMetrics{},
		tracer:    observability.NopTracer(),
		modes:     make(map[string]*modeEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ModeFor returns the document's mode, checking the OCR store on first use.
// A failed check is not remembered.
func (r *Resolver) ModeFor(ctx context.Context, documentID string) (Mode, error) {
	r.mu.Lock()
	e, ok := r.modes[documentID]
	if !ok {
		e = &modeEntry{ready: make(chan struct{})}
		r.modes[documentID] = e
	}
	r.mu.Unlock()

	if ok {
		select {
		case <-e.ready:
			return e.mode, e.err
		case <-ctx.Done():
			return Unresolved, ctx.Err()
		}
	}

	has, err := r.store.HasOcrForDocument(ctx, documentID)
	if err != nil {
		e.err = err
		r.mu.Lock()
		if r.modes[documentID] == e {
			delete(r.modes, documentID)
		}
		r.mu.Unlock()
	} else {
		e.mode = Transition(Unresolved, has)
		r.log.Debug("overlay mode resolved",
			observability.String("document", documentID),
			observability.String("mode", e.mode.String()),
		)
	}
	close(e.ready)
	return e.mode, e.err
}

// Forget drops the remembered mode of one document.
func (r *Resolver) Forget(documentID string) {
	r.mu.Lock()
	delete(r.modes, documentID)
	r.mu.Unlock()
}

// Reset drops every remembered mode.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.modes = make(map[string]*modeEntry)
	r.mu.Unlock()
}

// Resolve builds the overlay for one page. Failures to read text are returned
// as *render.OverlayFailure; the page raster is unaffected by them.
func (r *Resolver) Resolve(ctx context.Context, p Params) (layer Layer, err error) {
	if err := p.Request.Validate(); err != nil {
		return Layer{}, err
	}
	ctx, span := r.tracer.StartSpan(ctx, "overlay.Resolve")
	start := time.Now()
	defer func() {
		if err != nil && !errors.Is(err, ErrNotMeasured) {
			span.SetError(err)
		}
		span.Finish()
		r.metrics.Observe(observability.MetricOverlayTime, float64(time.Since(start).Milliseconds()))
	}()

	docID := p.documentID()
	mode, err := r.ModeFor(ctx, docID)
	if err != nil {
		return Layer{}, r.failure(p, fmt.Errorf("ocr lookup: %w", err))
	}
	span.SetTag("mode", mode.String())
	if mode == OcrFallback {
		return r.transcript(ctx, p)
	}

	if !p.Container.Measured() {
		return Layer{}, ErrNotMeasured
	}
	layer, err = r.native(ctx, p)
	if err != nil {
		return Layer{}, r.failure(p, err)
	}
	if !hasText(layer.Runs) {
		r.log.Debug("no native text, using ocr for page",
			observability.String("document", docID),
			observability.Int("page", p.Request.Page),
		)
		return r.transcript(ctx, p)
	}
	layer.highlight(newHighlighter(p.Search, r.minSearch))
	return layer, nil
}

func (r *Resolver) native(ctx context.Context, p Params) (Layer, error) {
	req := p.Request
	doc, done, err := r.docs.AcquireDocument(ctx, req.Source)
	if err != nil {
		return Layer{}, err
	}
	defer done()
	if n := doc.PageCount(); req.Page > n {
		return Layer{}, &render.PageOutOfRangeError{Source: req.Source, Page: req.Page, PageCount: n}
	}
	size, err := doc.PageSize(req.Page)
	if err != nil {
		return Layer{}, fmt.Errorf("page size: %w", err)
	}
	spans, err := doc.TextSpans(ctx, req.Page)
	if err != nil {
		return Layer{}, fmt.Errorf("extract text: %w", err)
	}

	rot := int(req.Rotation)
	rotatedWidth, _ := coords.RotatedSize(rot, size.Width, size.Height)
	fit := p.Container.Width / rotatedWidth
	m, dw, dh := coords.PageTransform(size.Width, size.Height, fit, rot)

	layer := Layer{
		Source: req.Source,
		Page:   req.Page,
		Mode:   NativeText,
		Width:  dw,
		Height: dh,
		Scale:  fit,
	}
	for _, s := range spans {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		corner := m.Transform(coords.Point{X: s.X, Y: s.Y + ascent*s.FontSize})
		layer.Runs = append(layer.Runs, Run{
			Text:     s.Text,
			Left:     corner.X,
			Top:      corner.Y,
			Width:    s.Width * fit,
			Height:   (ascent + descent) * s.FontSize * fit,
			FontSize: s.FontSize * fit,
			Angle:    rot,
			Dir:      direction(s.Text),
		})
	}
	return layer, nil
}

func (r *Resolver) transcript(ctx context.Context, p Params) (Layer, error) {
	text, ok, err := r.store.OcrText(ctx, p.documentID(), p.Request.Page)
	if err != nil {
		return Layer{}, r.failure(p, fmt.Errorf("ocr text: %w", err))
	}
	layer := Layer{
		Source: p.Request.Source,
		Page:   p.Request.Page,
		Mode:   OcrFallback,
		Width:  p.Container.Width,
		Height: p.Container.Height,
	}
	if ok {
		layer.Blocks = parseTranscript(text, r.format)
	}
	layer.highlight(newHighlighter(p.Search, r.minSearch))
	return layer, nil
}

func (r *Resolver) failure(p Params, err error) error {
	r.log.Warn("overlay unavailable",
		observability.String("source", p.Request.Source),
		observability.Int("page", p.Request.Page),
		observability.Error("error", err),
	)
	return &render.OverlayFailure{Source: p.Request.Source, Page: p.Request.Page, Err: err}
}

func hasText(runs []Run) bool {
	for _, r := range runs {
		if strings.TrimSpace(r.Text) != "" {
			return true
		}
	}
	return false
}
