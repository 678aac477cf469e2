package ocr

import (
	"fmt"
	"strconv"

	"github.com/bnrm/pdfview/render"
)

// InputOption mutates an OCR input generated from a rendered page.
type InputOption func(*Input)

// WithLanguages sets language hints on the OCR input.
func WithLanguages(langs ...string) InputOption {
	return func(in *Input) { in.Languages = append([]string(nil), langs...) }
}

// WithRegion sets the recognition region on the OCR input.
func WithRegion(region Region) InputOption {
	return func(in *Input) {
		if region.IsEmpty() {
			in.Region = nil
			return
		}
		in.Region = &region
	}
}

// WithDPI overrides the DPI value on the OCR input.
func WithDPI(dpi int) InputOption {
	return func(in *Input) { in.DPI = dpi }
}

// WithMetadata sets provider-specific metadata for the input.
func WithMetadata(metadata map[string]string) InputOption {
	return func(in *Input) {
		if len(metadata) == 0 {
			in.Metadata = nil
			return
		}
		in.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			in.Metadata[k] = v
		}
	}
}

// Engine variables understood by the Tesseract engine.
const (
	VarSegmentation = "tessedit_pageseg_mode"
	VarCharset      = "tessedit_char_whitelist"
)

// WithVariable sets one engine variable and keeps the others.
func WithVariable(name, value string) InputOption {
	return func(in *Input) {
		if in.Metadata == nil {
			in.Metadata = make(map[string]string)
		}
		in.Metadata[name] = value
	}
}

// WithSegmentation picks the layout analysis mode: 3 is automatic, 4 a single
// column of text, 6 one uniform block. Zero keeps the engine default.
func WithSegmentation(mode int) InputOption {
	if mode <= 0 {
		return func(*Input) {}
	}
	return WithVariable(VarSegmentation, strconv.Itoa(mode))
}

// WithCharset limits recognition to chars. Empty keeps every character.
func WithCharset(chars string) InputOption {
	if chars == "" {
		return func(*Input) {}
	}
	return WithVariable(VarCharset, chars)
}

// InputFromPage converts a rendered page into an OCR input. The DPI follows
// from the render scale; the ID is stable for a document page.
func InputFromPage(documentID string, img render.Image, opts ...InputOption) (Input, error) {
	if len(img.Data) == 0 {
		return Input{}, fmt.Errorf("page %d: empty image", img.Request.Page)
	}
	if img.Format != render.FormatPNG {
		return Input{}, fmt.Errorf("page %d: unsupported format %q", img.Request.Page, img.Format)
	}
	in := Input{
		ID:         fmt.Sprintf("%s-page-%d", documentID, img.Request.Page),
		Image:      img.Data,
		Format:     ImageFormatPNG,
		DocumentID: documentID,
		Page:       img.Request.Page,
		DPI:        int(72*img.Request.Scale + 0.5),
	}
	for _, opt := range opts {
		opt(&in)
	}
	return in, nil
}
