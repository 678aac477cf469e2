package rasterizer

import (
	"image"
	"sync"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/bnrm/pdfview/coords"
	"github.com/bnrm/pdfview/render"
)

var surfaces = sync.Pool{New: func() interface{} { return new([]byte) }}

// acquire returns a cleared RGBA surface backed by a pooled buffer.
func acquire(w, h int) *image.RGBA {
	buf := surfaces.Get().(*[]byte)
	n := 4 * w * h
	if cap(*buf) < n {
		*buf = make([]byte, n)
	}
	pix := (*buf)[:n]
	clear(pix)
	return &image.RGBA{Pix: pix, Stride: 4 * w, Rect: image.Rect(0, 0, w, h)}
}

// release hands the surface buffer back to the pool. The image must not be
// used afterwards.
func release(img *image.RGBA) {
	if img == nil {
		return
	}
	pix := img.Pix[:0]
	img.Pix = nil
	surfaces.Put(&pix)
}

// rotate draws src rotated clockwise by rot onto a pooled surface. Right-angle
// rotations with nearest-neighbour sampling map pixels one to one, so the
// output is exact and deterministic.
func rotate(src *image.RGBA, rot render.Rotation) *image.RGBA {
	b := src.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	dw, dh := coords.RotatedSize(int(rot), w, h)
	dst := acquire(int(dw), int(dh))
	m := coords.Translate(-float64(b.Min.X), -float64(b.Min.Y)).Multiply(coords.DeviceRotation(int(rot), w, h))
	s2d := f64.Aff3{m[0], m[2], m[4], m[1], m[3], m[5]}
	draw.NearestNeighbor.Transform(dst, s2d, src, b, draw.Src, nil)
	return dst
}
