package render

import (
	"context"
	"image"
)

// FormatPNG is the encoding used for rendered pages.
const FormatPNG = "image/png"

// Image is a rendered, compressed page raster. It is owned by the document
// cache; holders must treat Data as read-only.
type Image struct {
	Request Request
	Data    []byte
	Format  string
	Width   int
	Height  int
}

// Size is a page extent in PDF points at scale 1 and rotation 0.
type Size struct {
	Width  float64
	Height float64
}

// Span is a run of native text in PDF user space (origin bottom-left).
// X, Y locate the baseline start; Width is the advance of the whole run.
type Span struct {
	Text     string
	X        float64
	Y        float64
	Width    float64
	FontSize float64
	Font     string
}

// Document is an opened, parsed document. One handle exists per source and is
// shared by every request for that source.
type Document interface {
	PageCount() int
	// PageSize reports the unrotated size of a 1-based page in points.
	PageSize(page int) (Size, error)
	// Rasterize renders a 1-based page without rotation at the given dpi.
	Rasterize(ctx context.Context, page int, dpi float64) (*image.RGBA, error)
	// TextSpans extracts positioned native text of a 1-based page.
	TextSpans(ctx context.Context, page int) ([]Span, error)
	Close() error
}

// Opener turns a document source (URL or path) into a Document.
type Opener interface {
	Open(ctx context.Context, source string) (Document, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, source string) (Document, error)

func (f OpenerFunc) Open(ctx context.Context, source string) (Document, error) {
	return f(ctx, source)
}
