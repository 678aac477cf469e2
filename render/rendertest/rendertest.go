// Package rendertest provides an in-memory render.Opener for tests.
package rendertest

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"
	"sync/atomic"

	"github.com/bnrm/pdfview/render"
)

// ErrUnknownSource is returned by Opener for sources it does not know.
var ErrUnknownSource = errors.New("unknown source")

// ErrClosed is returned by a Document used after Close.
var ErrClosed = errors.New("document closed")

// Doc describes a fake document.
type Doc struct {
	Pages int
	// Size applies to every page unless overridden in PageSizes.
	Size      render.Size
	PageSizes map[int]render.Size
	// Spans holds native text per page.
	Spans map[int][]render.Span
	// FailPages makes Rasterize fail for the listed pages.
	FailPages map[int]error
	// TextErr makes TextSpans fail for every page.
	TextErr error
	// Block, when set, is awaited by Rasterize before drawing.
	Block <-chan struct{}
	// TextBlock, when set, is awaited by TextSpans.
	TextBlock <-chan struct{}
}

// Opener serves fake documents by source name and counts calls.
type Opener struct {
	mu      sync.Mutex
	docs    map[string]Doc
	fail    map[string]error
	opened  map[string]*Document
	opens   atomic.Int64
	OnOpen  func(source string)
	closing atomic.Int64
}

func NewOpener() *Opener {
	return &Opener{
		docs:   make(map[string]Doc),
		fail:   make(map[string]error),
		opened: make(map[string]*Document),
	}
}

// Add registers a document under source.
func (o *Opener) Add(source string, d Doc) *Opener {
	o.mu.Lock()
	defer o.mu.Unlock()
	if d.Size == (render.Size{}) {
		d.Size = render.Size{Width: 100, Height: 150}
	}
	o.docs[source] = d
	return o
}

// Fail makes opening source return err.
func (o *Opener) Fail(source string, err error) *Opener {
	o.mu.Lock()
	o.fail[source] = err
	o.mu.Unlock()
	return o
}

func (o *Opener) Open(ctx context.Context, source string) (render.Document, error) {
	o.opens.Add(1)
	if o.OnOpen != nil {
		o.OnOpen(source)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err, ok := o.fail[source]; ok {
		return nil, err
	}
	d, ok := o.docs[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	doc := &Document{doc: d, closer: &o.closing}
	o.opened[source] = doc
	return doc, nil
}

// Opens reports how many times Open was called.
func (o *Opener) Opens() int64 { return o.opens.Load() }

// Closes reports how many documents were closed.
func (o *Opener) Closes() int64 { return o.closing.Load() }

// Document returns the most recently opened handle for source.
func (o *Opener) Document(source string) *Document {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opened[source]
}

// Document is the fake render.Document.
type Document struct {
	doc        Doc
	closer     *atomic.Int64
	rasterized atomic.Int64
	texts      atomic.Int64
	mu         sync.Mutex
	perPage    map[int]int
	closed     atomic.Bool
}

func (d *Document) PageCount() int { return d.doc.Pages }

func (d *Document) PageSize(page int) (render.Size, error) {
	if page < 1 || page > d.doc.Pages {
		return render.Size{}, fmt.Errorf("no page %d", page)
	}
	if s, ok := d.doc.PageSizes[page]; ok {
		return s, nil
	}
	return d.doc.Size, nil
}

// Rasterize draws a solid page whose colour encodes the page number, with a
// marker pixel in the top-left corner so rotations are observable.
func (d *Document) Rasterize(ctx context.Context, page int, dpi float64) (*image.RGBA, error) {
	d.rasterized.Add(1)
	d.mu.Lock()
	if d.perPage == nil {
		d.perPage = make(map[int]int)
	}
	d.perPage[page]++
	d.mu.Unlock()
	if d.doc.Block != nil {
		select {
		case <-d.doc.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if err, ok := d.doc.FailPages[page]; ok {
		return nil, err
	}
	size, err := d.PageSize(page)
	if err != nil {
		return nil, err
	}
	w := int(math.Round(size.Width * dpi / 72))
	h := int(math.Round(size.Height * dpi / 72))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill := PageColor(page)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	img.SetRGBA(0, 0, Marker)
	return img, nil
}

func (d *Document) TextSpans(ctx context.Context, page int) ([]render.Span, error) {
	d.texts.Add(1)
	if d.doc.TextBlock != nil {
		select {
		case <-d.doc.TextBlock:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.closed.Load() {
		return nil, ErrClosed
	}
	if d.doc.TextErr != nil {
		return nil, d.doc.TextErr
	}
	return append([]render.Span(nil), d.doc.Spans[page]...), nil
}

func (d *Document) Close() error {
	if d.closed.CompareAndSwap(false, true) {
		d.closer.Add(1)
	}
	return nil
}

// Rasterizations reports the total number of Rasterize calls.
func (d *Document) Rasterizations() int64 { return d.rasterized.Load() }

// PageRasterizations reports Rasterize calls for one page.
func (d *Document) PageRasterizations(page int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.perPage[page]
}

// TextCalls reports the number of TextSpans calls.
func (d *Document) TextCalls() int64 { return d.texts.Load() }

// Closed reports whether Close was called.
func (d *Document) Closed() bool { return d.closed.Load() }

// Marker is the colour of the top-left pixel of every unrotated page.
var Marker = color.RGBA{R: 255, A: 255}

// PageColor is the fill colour of a page.
func PageColor(page int) color.RGBA {
	return color.RGBA{R: 0, G: uint8(page), B: uint8(page >> 8), A: 255}
}
