// Package viewport decides which pages of a long scroll container are
// mounted. Only the pages near the visible area are built; two spacers stand
// in for the rest so the scroll position stays continuous.
package viewport

import "math"

const (
	DefaultBufferPages         = 3
	DefaultEstimatedPageHeight = 800.0
	DefaultZoom                = 100.0
)

// Geometry is the scroll state a range is computed from. Zoom is a
// percentage: 100 shows pages at their estimated height.
type Geometry struct {
	ScrollOffset        float64
	ViewportHeight      float64
	EstimatedPageHeight float64
	Zoom                float64
	BufferPages         int
	TotalPages          int
}

// PageHeight is the estimated height of one page at the current zoom.
func (g Geometry) PageHeight() float64 {
	h := g.EstimatedPageHeight
	if h <= 0 {
		h = DefaultEstimatedPageHeight
	}
	z := g.Zoom
	if z <= 0 {
		z = DefaultZoom
	}
	return h * z / 100
}

// Range is an inclusive span of 1-based pages. The zero Range is empty.
type Range struct {
	Start int
	End   int
}

func (r Range) Empty() bool { return r.Start == 0 || r.End < r.Start }

func (r Range) Contains(page int) bool { return !r.Empty() && page >= r.Start && page <= r.End }

func (r Range) Len() int {
	if r.Empty() {
		return 0
	}
	return r.End - r.Start + 1
}

// ComputeRange returns the mounted range and the current page, both clamped
// to the document. An empty document yields an empty range and page 0.
func ComputeRange(g Geometry) (Range, int) {
	if g.TotalPages <= 0 {
		return Range{}, 0
	}
	pageH := g.PageHeight()
	buffer := g.BufferPages
	if buffer < 0 {
		buffer = 0
	}
	scroll := math.Max(0, g.ScrollOffset)
	estimated := int(math.Floor(scroll/pageH)) + 1
	fitting := int(math.Ceil(math.Max(0, g.ViewportHeight) / pageH))

	current := clamp(estimated, 1, g.TotalPages)
	start := clamp(estimated-buffer, 1, g.TotalPages)
	end := clamp(estimated+fitting+buffer, start, g.TotalPages)
	return Range{Start: start, End: end}, current
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
