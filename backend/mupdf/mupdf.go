// Package mupdf opens documents with MuPDF (through go-fitz) for raster output
// and with ledongthuc/pdf for positioned native text.
package mupdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
	"golang.org/x/image/draw"

	"github.com/bnrm/pdfview/render"
	"github.com/bnrm/pdfview/source"
)

// ErrClosed is returned by a Document used after Close.
var ErrClosed = errors.New("mupdf: document closed")

// Opener loads sources through a Loader and parses them with MuPDF.
type Opener struct {
	Loader source.Loader
}

func NewOpener(loader source.Loader) *Opener {
	if loader == nil {
		loader = source.NewFetcher()
	}
	return &Opener{Loader: loader}
}

func (o *Opener) Open(ctx context.Context, src string) (render.Document, error) {
	data, err := o.Loader.Load(ctx, src)
	if err != nil {
		return nil, err
	}
	return OpenBytes(data)
}

// OpenBytes parses an in-memory PDF.
func OpenBytes(data []byte) (*Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("mupdf: %w", err)
	}
	return &Document{doc: doc, data: data, pages: doc.NumPage()}, nil
}

// Document is safe for concurrent use; MuPDF calls are serialized.
type Document struct {
	mu     sync.Mutex
	doc    *fitz.Document
	closed bool
	data   []byte
	pages  int

	textOnce sync.Once
	text     *pdf.Reader
	textErr  error
}

func (d *Document) PageCount() int { return d.pages }

func (d *Document) check(page int) error {
	if page < 1 || page > d.pages {
		return &render.PageOutOfRangeError{Page: page, PageCount: d.pages}
	}
	return nil
}

func (d *Document) PageSize(page int) (render.Size, error) {
	if err := d.check(page); err != nil {
		return render.Size{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return render.Size{}, ErrClosed
	}
	b, err := d.doc.Bound(page - 1)
	if err != nil {
		return render.Size{}, err
	}
	return render.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}, nil
}

func (d *Document) Rasterize(ctx context.Context, page int, dpi float64) (*image.RGBA, error) {
	if err := d.check(page); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	img, err := d.doc.ImageDPI(page-1, dpi)
	if err != nil {
		return nil, err
	}
	return toRGBA(img), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

func (d *Document) reader() (*pdf.Reader, error) {
	d.textOnce.Do(func() {
		d.text, d.textErr = pdf.NewReader(bytes.NewReader(d.data), int64(len(d.data)))
	})
	return d.text, d.textErr
}

func (d *Document) TextSpans(ctx context.Context, page int) (spans []render.Span, err error) {
	if err := d.check(page); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	r, err := d.reader()
	if err != nil {
		return nil, fmt.Errorf("text reader: %w", err)
	}
	// The content parser panics on malformed streams.
	defer func() {
		if rec := recover(); rec != nil {
			spans, err = nil, fmt.Errorf("text page %d: %v", page, rec)
		}
	}()
	p := r.Page(page)
	if p.V.IsNull() {
		return nil, nil
	}
	return groupGlyphs(p.Content().Text), nil
}

// Close releases the MuPDF handle. Later calls are no-ops; every other method
// returns ErrClosed afterwards.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.doc.Close()
}
