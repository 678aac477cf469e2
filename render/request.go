// Package render defines the shared vocabulary of the viewer core: render
// requests and their cache keys, rendered images, document handles, the
// error taxonomy and supersession tokens.
package render

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Rotation is a clockwise page rotation in degrees.
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// Valid reports whether r is one of 0, 90, 180, 270.
func (r Rotation) Valid() bool {
	switch r {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return true
	}
	return false
}

func (r Rotation) String() string { return strconv.Itoa(int(r)) }

// NormalizeRotation folds any multiple of 90 (including negatives) into
// [0, 360). Other values are returned unchanged and fail Valid.
func NormalizeRotation(degrees int) Rotation {
	if degrees%90 != 0 {
		return Rotation(degrees)
	}
	d := degrees % 360
	if d < 0 {
		d += 360
	}
	return Rotation(d)
}

// Priority distinguishes the page the user is looking at from speculative work.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityLow
)

func (p Priority) String() string {
	if p == PriorityLow {
		return "low"
	}
	return "high"
}

// Request identifies one renderable unit: a page of a document at a scale and
// rotation. It is a value type and never mutated after creation.
type Request struct {
	Source   string
	Page     int
	Scale    float64
	Rotation Rotation
}

// Key is the cache fingerprint of a Request.
type Key string

// Key returns the fingerprint of r. Equal requests yield equal keys and the
// source is length-prefixed so distinct requests never collide.
func (r Request) Key() Key {
	var b strings.Builder
	b.Grow(len(r.Source) + 32)
	b.WriteString(strconv.Itoa(len(r.Source)))
	b.WriteByte(':')
	b.WriteString(r.Source)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(r.Page))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(r.Scale, 'g', -1, 64))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(int(r.Rotation)))
	return Key(b.String())
}

// Validate checks the request invariants: page >= 1, finite scale > 0 and a
// right-angle rotation.
func (r Request) Validate() error {
	if r.Source == "" {
		return fmt.Errorf("%w: empty source", ErrInvalidRequest)
	}
	if r.Page < 1 {
		return fmt.Errorf("%w: page %d < 1", ErrInvalidRequest, r.Page)
	}
	if !(r.Scale > 0) || math.IsInf(r.Scale, 0) {
		return fmt.Errorf("%w: scale %v", ErrInvalidRequest, r.Scale)
	}
	if !r.Rotation.Valid() {
		return fmt.Errorf("%w: rotation %d", ErrInvalidRequest, r.Rotation)
	}
	return nil
}

// WithPage returns a copy of r for another page.
func (r Request) WithPage(page int) Request {
	r.Page = page
	return r
}

func (r Request) String() string {
	return fmt.Sprintf("%s#%d@%gx/%d", r.Source, r.Page, r.Scale, r.Rotation)
}
