// Package rasterizer turns render requests into compressed page images.
package rasterizer

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"math"
	"time"

	"github.com/bnrm/pdfview/coords"
	"github.com/bnrm/pdfview/observability"
	"github.com/bnrm/pdfview/render"
)

// DocumentSource leases shared document handles. The handle stays open until
// done is called.
type DocumentSource interface {
	AcquireDocument(ctx context.Context, source string) (doc render.Document, done func(), err error)
}

// ImageCache stores rendered images by fingerprint.
type ImageCache interface {
	CachedImage(key render.Key) (render.Image, bool)
	PutImage(img render.Image)
}

// Store is what the cache package provides; both halves in one value.
type Store interface {
	DocumentSource
	ImageCache
}

type Option func(*Rasterizer)

func WithLimits(l Limits) Option {
	return func(r *Rasterizer) { r.limits = l }
}

func WithLogger(l observability.Logger) Option {
	return func(r *Rasterizer) {
		if l != nil {
			r.log = l
		}
	}
}

func WithMetrics(m observability.Metrics) Option {
	return func(r *Rasterizer) {
		if m != nil {
			r.metrics = m
		}
	}
}

func WithTracer(t observability.Tracer) Option {
	return func(r *Rasterizer) {
		if t != nil {
			r.tracer = t
		}
	}
}

// Rasterizer renders pages of documents held by a Store.
type Rasterizer struct {
	store   Store
	limits  Limits
	log     observability.Logger
	metrics observability.Metrics
	tracer  observability.Tracer
	encoder png.Encoder
}

func New(store Store, opts ...Option) *Rasterizer {
	r := &Rasterizer{
		store:   store,
		limits:  DefaultLimits(),
		log:     observability.NopLogger{},
		metrics: observability.NopMetrics{},
		tracer:  observability.NopTracer(),
		encoder: png.Encoder{CompressionLevel: png.BestSpeed},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render is the cache-through entry point: it returns the cached image for
// req or renders it and caches the result on success.
func (r *Rasterizer) Render(ctx context.Context, req render.Request) (render.Image, error) {
	if err := req.Validate(); err != nil {
		return render.Image{}, err
	}
	if img, ok := r.store.CachedImage(req.Key()); ok {
		return img, nil
	}
	img, err := r.RenderPage(ctx, req)
	if err != nil {
		return render.Image{}, err
	}
	r.store.PutImage(img)
	return img, nil
}

// RenderPage rasterizes one page. It has no caching side effect and is
// deterministic: the same request yields byte-identical output.
func (r *Rasterizer) RenderPage(ctx context.Context, req render.Request) (img render.Image, err error) {
	if err := req.Validate(); err != nil {
		return render.Image{}, err
	}
	ctx, span := r.tracer.StartSpan(ctx, "rasterizer.RenderPage")
	span.SetTag("request", req.String())
	start := time.Now()
	defer func() {
		if err != nil {
			span.SetError(err)
			r.metrics.Count(observability.MetricRenderFailures, 1)
		} else {
			r.metrics.Count(observability.MetricRenderCount, 1)
			r.metrics.Observe(observability.MetricRenderTime, float64(time.Since(start).Milliseconds()))
		}
		span.Finish()
	}()

	doc, done, err := r.store.AcquireDocument(ctx, req.Source)
	if err != nil {
		return render.Image{}, err
	}
	defer done()
	if n := doc.PageCount(); req.Page > n {
		return render.Image{}, &render.PageOutOfRangeError{Source: req.Source, Page: req.Page, PageCount: n}
	}
	size, err := doc.PageSize(req.Page)
	if err != nil {
		return render.Image{}, &render.RenderFailure{Request: req, Err: fmt.Errorf("page size: %w", err)}
	}
	_, dw, dh := coords.PageTransform(size.Width, size.Height, req.Scale, int(req.Rotation))
	if err := r.limits.check(int(math.Ceil(dw)), int(math.Ceil(dh))); err != nil {
		return render.Image{}, &render.RenderFailure{Request: req, Err: err}
	}

	raw, err := doc.Rasterize(ctx, req.Page, 72*req.Scale)
	if err != nil {
		return render.Image{}, &render.RenderFailure{Request: req, Err: err}
	}
	surface := raw
	if req.Rotation != render.Rotate0 {
		surface = rotate(raw, req.Rotation)
		defer release(surface)
	}

	var buf bytes.Buffer
	if err := r.encoder.Encode(&buf, surface); err != nil {
		return render.Image{}, &render.RenderFailure{Request: req, Err: fmt.Errorf("encode: %w", err)}
	}
	b := surface.Bounds()
	r.log.Debug("page rendered",
		observability.String("source", req.Source),
		observability.Int("page", req.Page),
		observability.Int("width", b.Dx()),
		observability.Int("height", b.Dy()),
	)
	return render.Image{
		Request: req,
		Data:    buf.Bytes(),
		Format:  render.FormatPNG,
		Width:   b.Dx(),
		Height:  b.Dy(),
	}, nil
}
