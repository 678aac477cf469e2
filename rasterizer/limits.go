package rasterizer

import "fmt"

// Limits bounds the surface allocated for one page. They keep a hostile or
// absurd scale from allocating gigabytes.
type Limits struct {
	// Maximum width or height in pixels. Default: 16384.
	MaxDimension int
	// Maximum pixel count. Default: 64M (256 MB of RGBA).
	MaxPixels int64
}

// DefaultLimits returns a Limits struct with safe default values.
func DefaultLimits() Limits {
	return Limits{
		MaxDimension: 16384,
		MaxPixels:    64 * 1024 * 1024,
	}
}

func (l Limits) check(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("surface bounds invalid (%d x %d)", width, height)
	}
	if l.MaxDimension > 0 && (width > l.MaxDimension || height > l.MaxDimension) {
		return fmt.Errorf("surface dimension exceeds limit (%d x %d > %d)", width, height, l.MaxDimension)
	}
	if pixels := int64(width) * int64(height); l.MaxPixels > 0 && pixels > l.MaxPixels {
		return fmt.Errorf("surface pixel count %d exceeds limit %d", pixels, l.MaxPixels)
	}
	return nil
}
