package ocr

import (
	"testing"

	"github.com/bnrm/pdfview/render"
)

func TestInputFromPageOptions(t *testing.T) {
	page := render.Image{
		Request: render.Request{Source: "scan.pdf", Page: 3, Scale: 2},
		Data:    []byte{1},
		Format:  render.FormatPNG,
	}
	in, err := InputFromPage("ms-2", page,
		WithSegmentation(6),
		WithCharset("0123456789"),
		WithSegmentation(0),
		WithCharset(""),
		WithRegion(Region{Width: 0, Height: 5}))
	if err != nil {
		t.Fatalf("input: %v", err)
	}
	if got := in.Metadata[VarSegmentation]; got != "6" {
		t.Fatalf("segmentation = %q, want 6", got)
	}
	if got := in.Metadata[VarCharset]; got != "0123456789" {
		t.Fatalf("charset = %q", got)
	}
	if in.Region != nil {
		t.Fatalf("empty region must clear the crop")
	}
	if in.DPI != 144 || in.ID != "ms-2-page-3" {
		t.Fatalf("unexpected input %+v", in)
	}

	page.Format = "image/webp"
	if _, err := InputFromPage("ms-2", page); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}
