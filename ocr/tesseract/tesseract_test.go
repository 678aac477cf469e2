package tesseract

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os/exec"
	"strings"
	"testing"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/bnrm/pdfview/ocr"
	"github.com/bnrm/pdfview/render"
)

func ensureTesseractAvailable(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
}

func TestTesseractEngineRecognize(t *testing.T) {
	ensureTesseractAvailable(t)

	img := image.NewRGBA(image.Rect(0, 0, 200, 80))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.Black,
		Face: basicfont.Face7x13,
		Dot:  fixed.P(10, 50),
	}
	d.DrawString("Hello PDF")

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	page := render.Image{
		Request: render.Request{Source: "scan.pdf", Page: 4, Scale: 300.0 / 72},
		Data:    buf.Bytes(),
		Format:  render.FormatPNG,
	}
	in, err := ocr.InputFromPage("ms-1", page, ocr.WithLanguages("eng"))
	if err != nil {
		t.Fatalf("input: %v", err)
	}
	if ocr.DefaultEngine().Name() != "tesseract" {
		t.Fatalf("default engine not registered")
	}
	results, errs := ocr.Recognize(context.Background(), New(), []ocr.Input{in})
	if errs[0] != nil {
		t.Fatalf("Recognize() error = %v", errs[0])
	}
	res := results[0]
	got := strings.ToLower(res.PlainText)
	if !strings.Contains(got, "hello") || !strings.Contains(got, "pdf") {
		t.Fatalf("unexpected OCR output: %q", res.PlainText)
	}
	if len(res.Blocks) == 0 || len(res.Blocks[0].Lines) == 0 {
		t.Fatalf("expected structured blocks")
	}
	if res.InputID != "ms-1-page-4" || res.Page != 4 {
		t.Fatalf("unexpected result ids: %s %d", res.InputID, res.Page)
	}
}

func TestCropImageOutsideBounds(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 10, 10))); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := cropImage(buf.Bytes(), &ocr.Region{X: 50, Y: 50, Width: 5, Height: 5}); err == nil {
		t.Fatalf("expected error for region outside image")
	}
	data, err := cropImage(buf.Bytes(), nil)
	if err != nil || !bytes.Equal(data, buf.Bytes()) {
		t.Fatalf("nil region must pass the image through")
	}
}

func TestLayoutGroupsLines(t *testing.T) {
	boxes := []gosseract.BoundingBox{
		{Word: "Kitab", Box: image.Rect(10, 10, 50, 22), Confidence: 90, BlockNum: 1, ParNum: 1, LineNum: 1},
		{Word: "al-Manazir", Box: image.Rect(55, 10, 120, 22), Confidence: 70, BlockNum: 1, ParNum: 1, LineNum: 1},
		{Word: "folio", Box: image.Rect(10, 30, 40, 42), Confidence: 80, BlockNum: 1, ParNum: 1, LineNum: 2},
		{Word: " ", Box: image.Rect(0, 0, 1, 1), BlockNum: 1, ParNum: 1, LineNum: 2},
		{Word: "12r", Box: image.Rect(200, 300, 220, 310), Confidence: 60, BlockNum: 2, ParNum: 1, LineNum: 1},
	}
	blocks := layout(boxes, image.Pt(100, 0))
	if len(blocks) != 2 {
		t.Fatalf("blocks = %+v", blocks)
	}
	first := blocks[0]
	if len(first.Lines) != 2 || first.Text != "Kitab al-Manazir\nfolio" {
		t.Fatalf("first block = %q with %d lines", first.Text, len(first.Lines))
	}
	line := first.Lines[0]
	if line.Bounds != (ocr.Region{X: 110, Y: 10, Width: 110, Height: 12}) {
		t.Fatalf("line bounds = %+v", line.Bounds)
	}
	if math.Abs(line.Confidence-0.8) > 1e-9 {
		t.Fatalf("line confidence = %v", line.Confidence)
	}
	if blocks[1].Text != "12r" {
		t.Fatalf("second block = %q", blocks[1].Text)
	}
}

func TestSettingsKey(t *testing.T) {
	a := ocr.Input{Languages: []string{"ara", "fra"}, DPI: 216}
	ocr.WithSegmentation(6)(&a)
	ocr.WithCharset("abc")(&a)
	b := a
	b.Metadata = map[string]string{ocr.VarCharset: "abc", ocr.VarSegmentation: "6"}
	if settings(a) != settings(b) {
		t.Fatalf("metadata order changed the key")
	}
	b.DPI = 300
	if settings(a) == settings(b) {
		t.Fatalf("dpi must change the key")
	}
}
