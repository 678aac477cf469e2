// Package tesseract recognizes scanned pages with the Tesseract engine through
// gosseract. Importing it registers Tesseract as the default ocr engine.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/image/draw"

	"github.com/bnrm/pdfview/ocr"
)

func init() {
	ocr.SetDefaultEngine(New())
}

// Engine implements ocr.BatchEngine.
type Engine struct {
	newClient func() *gosseract.Client
}

func New() *Engine {
	return &Engine{newClient: gosseract.NewClient}
}

func (e *Engine) Name() string { return "tesseract" }

func (e *Engine) Recognize(ctx context.Context, in ocr.Input) (ocr.Result, error) {
	c := e.newClient()
	defer c.Close()
	if err := configure(c, in); err != nil {
		return ocr.Result{}, err
	}
	return recognize(ctx, c, in)
}

// RecognizeBatch shares one client between consecutive inputs with the same
// languages, dpi and variables; a change of settings starts a new client.
func (e *Engine) RecognizeBatch(ctx context.Context, inputs []ocr.Input) ([]ocr.Result, error) {
	results := make([]ocr.Result, 0, len(inputs))
	var (
		c       *gosseract.Client
		current string
	)
	defer func() {
		if c != nil {
			c.Close()
		}
	}()
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if key := settings(in); c == nil || key != current {
			if c != nil {
				c.Close()
			}
			c, current = e.newClient(), key
			if err := configure(c, in); err != nil {
				return nil, fmt.Errorf("%s: %w", in.ID, err)
			}
		}
		res, err := recognize(ctx, c, in)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", in.ID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// settings fingerprints everything configure applies to a client.
func settings(in ocr.Input) string {
	var b strings.Builder
	b.WriteString(strings.Join(in.Languages, "+"))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(in.DPI))
	for _, k := range slices.Sorted(maps.Keys(in.Metadata)) {
		fmt.Fprintf(&b, "|%s=%s", k, in.Metadata[k])
	}
	return b.String()
}

func configure(c *gosseract.Client, in ocr.Input) error {
	if len(in.Languages) > 0 {
		if err := c.SetLanguage(in.Languages...); err != nil {
			return fmt.Errorf("languages: %w", err)
		}
	}
	if in.DPI > 0 {
		if err := c.SetVariable("user_defined_dpi", strconv.Itoa(in.DPI)); err != nil {
			return fmt.Errorf("dpi: %w", err)
		}
	}
	for name, value := range in.Metadata {
		var err error
		switch name {
		case ocr.VarSegmentation:
			var mode int
			if mode, err = strconv.Atoi(value); err == nil {
				err = c.SetPageSegMode(gosseract.PageSegMode(mode))
			}
		case ocr.VarCharset:
			err = c.SetWhitelist(value)
		default:
			err = c.SetVariable(gosseract.SettableVariable(name), value)
		}
		if err != nil {
			return fmt.Errorf("variable %s: %w", name, err)
		}
	}
	return nil
}

func recognize(ctx context.Context, c *gosseract.Client, in ocr.Input) (ocr.Result, error) {
	data, err := cropImage(in.Image, in.Region)
	if err != nil {
		return ocr.Result{}, err
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return ocr.Result{}, fmt.Errorf("image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return ocr.Result{}, err
	}
	text, err := c.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("text: %w", err)
	}
	res := ocr.Result{
		InputID:   in.ID,
		Page:      in.Page,
		PlainText: strings.TrimSpace(text),
	}
	if len(in.Languages) > 0 {
		res.Language = in.Languages[0]
	}
	// Layout is best effort; the plain text is what gets stored.
	if boxes, err := c.GetBoundingBoxesVerbose(); err == nil {
		res.Blocks = layout(boxes, offset(in.Region))
	}
	if len(res.Blocks) == 0 && res.PlainText != "" {
		res.Blocks = []ocr.TextBlock{{
			Text:  res.PlainText,
			Lines: []ocr.TextLine{{Text: res.PlainText}},
		}}
	}
	return res, nil
}

func offset(r *ocr.Region) image.Point {
	if r == nil || r.IsEmpty() {
		return image.Point{}
	}
	return image.Pt(max(0, int(math.Round(r.X))), max(0, int(math.Round(r.Y))))
}

type lineKey struct{ block, para, line int }

// layout groups word boxes into lines and blocks by the numbering Tesseract
// assigns, in reading order. Boxes are shifted by at so they are relative to
// the full page rather than the crop.
func layout(boxes []gosseract.BoundingBox, at image.Point) []ocr.TextBlock {
	var (
		blocks []ocr.TextBlock
		lines  map[lineKey]int
	)
	lastBlock := -1
	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" {
			continue
		}
		if b.BlockNum != lastBlock || len(blocks) == 0 {
			blocks = append(blocks, ocr.TextBlock{})
			lines = make(map[lineKey]int)
			lastBlock = b.BlockNum
		}
		blk := &blocks[len(blocks)-1]
		key := lineKey{b.BlockNum, b.ParNum, b.LineNum}
		i, ok := lines[key]
		if !ok {
			i = len(blk.Lines)
			lines[key] = i
			blk.Lines = append(blk.Lines, ocr.TextLine{})
		}
		r := b.Box.Add(at)
		blk.Lines[i].Words = append(blk.Lines[i].Words, ocr.TextWord{
			Text:       word,
			Bounds:     ocr.Region{X: float64(r.Min.X), Y: float64(r.Min.Y), Width: float64(r.Dx()), Height: float64(r.Dy())},
			Confidence: b.Confidence / 100,
		})
	}
	for bi := range blocks {
		blk := &blocks[bi]
		texts := make([]string, 0, len(blk.Lines))
		var conf float64
		for li := range blk.Lines {
			ln := &blk.Lines[li]
			ln.Text, ln.Bounds, ln.Confidence = summarize(ln.Words)
			texts = append(texts, ln.Text)
			blk.Bounds = union(blk.Bounds, ln.Bounds)
			conf += ln.Confidence
		}
		blk.Text = strings.Join(texts, "\n")
		if len(blk.Lines) > 0 {
			blk.Confidence = conf / float64(len(blk.Lines))
		}
	}
	return blocks
}

func summarize(words []ocr.TextWord) (string, ocr.Region, float64) {
	parts := make([]string, len(words))
	var (
		bounds ocr.Region
		conf   float64
	)
	for i, w := range words {
		parts[i] = w.Text
		bounds = union(bounds, w.Bounds)
		conf += w.Confidence
	}
	return strings.Join(parts, " "), bounds, conf / float64(max(len(words), 1))
}

func union(a, b ocr.Region) ocr.Region {
	if a.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return a
	}
	x0, y0 := math.Min(a.X, b.X), math.Min(a.Y, b.Y)
	x1 := math.Max(a.X+a.Width, b.X+b.Width)
	y1 := math.Max(a.Y+a.Height, b.Y+b.Height)
	return ocr.Region{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// cropImage returns the PNG of region, or data itself when region is nil.
func cropImage(data []byte, region *ocr.Region) ([]byte, error) {
	if region == nil || region.IsEmpty() {
		return data, nil
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode for crop: %w", err)
	}
	rect := image.Rectangle{
		Min: offset(region),
		Max: image.Pt(int(math.Round(region.X+region.Width)), int(math.Round(region.Y+region.Height))),
	}.Intersect(src.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("crop %v outside image %v", rect, src.Bounds())
	}
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), src, rect.Min, draw.Src)
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	return buf.Bytes(), nil
}
