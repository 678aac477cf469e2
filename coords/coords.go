package coords

import (
	"errors"
	"math"
)

// Matrix is an affine transform [a b c d e f] in PDF order:
// x' = a*x + c*y + e, y' = b*x + d*y + f.
type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

// Multiply returns the transform that applies m first, then o.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

type Point struct{ X, Y float64 }

func (m Matrix) Transform(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}

func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, errors.New("matrix singular")
	}
	return Matrix{
		m[3] / det, -m[1] / det,
		-m[2] / det, m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det, (m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }
func Scale(sx, sy float64) Matrix     { return Matrix{sx, 0, 0, sy, 0, 0} }

// Rect is an axis-aligned rectangle; Min is the corner with the smallest coordinates.
type Rect struct {
	Min, Max Point
}

func (r Rect) Width() float64  { return r.Max.X - r.Min.X }
func (r Rect) Height() float64 { return r.Max.Y - r.Min.Y }

// TransformRect maps all four corners and returns their bounding box.
func (m Matrix) TransformRect(r Rect) Rect {
	corners := [4]Point{
		m.Transform(r.Min),
		m.Transform(Point{r.Max.X, r.Min.Y}),
		m.Transform(r.Max),
		m.Transform(Point{r.Min.X, r.Max.Y}),
	}
	out := Rect{Min: corners[0], Max: corners[0]}
	for _, c := range corners[1:] {
		out.Min.X = math.Min(out.Min.X, c.X)
		out.Min.Y = math.Min(out.Min.Y, c.Y)
		out.Max.X = math.Max(out.Max.X, c.X)
		out.Max.Y = math.Max(out.Max.Y, c.Y)
	}
	return out
}

// DeviceRotation rotates a w x h device surface (y down) clockwise by a
// multiple of 90 degrees and translates the result back to the origin.
func DeviceRotation(degrees int, w, h float64) Matrix {
	switch degrees {
	case 90:
		return Matrix{0, 1, -1, 0, h, 0}
	case 180:
		return Matrix{-1, 0, 0, -1, w, h}
	case 270:
		return Matrix{0, -1, 1, 0, 0, w}
	default:
		return Identity()
	}
}

// RotatedSize returns the extent of a w x h surface after rotation.
func RotatedSize(degrees int, w, h float64) (float64, float64) {
	if degrees == 90 || degrees == 270 {
		return h, w
	}
	return w, h
}

// PageTransform maps PDF user space of a page (origin bottom-left, y up, in
// points) to device pixels (origin top-left, y down) for the given scale and
// clockwise rotation. It also returns the device size.
func PageTransform(pageWidth, pageHeight, scale float64, degrees int) (Matrix, float64, float64) {
	w, h := pageWidth*scale, pageHeight*scale
	flip := Matrix{scale, 0, 0, -scale, 0, h}
	m := flip.Multiply(DeviceRotation(degrees, w, h))
	dw, dh := RotatedSize(degrees, w, h)
	return m, dw, dh
}
