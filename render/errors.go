package render

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest    = errors.New("invalid render request")
	ErrDocumentLoad      = errors.New("unable to load document")
	ErrPageOutOfRange    = errors.New("page out of range")
	ErrRenderFailure     = errors.New("render failure")
	ErrOverlayResolution = errors.New("overlay resolution failure")
	// ErrSuperseded marks a result that was discarded because a newer request
	// for the same view started after it.
	ErrSuperseded = errors.New("superseded")
)

// DocumentLoadError reports an unreachable or unparsable source.
type DocumentLoadError struct {
	Source string
	Err    error
}

func (e *DocumentLoadError) Error() string {
	return fmt.Sprintf("unable to load document %q: %v", e.Source, e.Err)
}

func (e *DocumentLoadError) Unwrap() error        { return e.Err }
func (e *DocumentLoadError) Is(target error) bool { return target == ErrDocumentLoad }

// PageOutOfRangeError reports a page outside [1, PageCount].
type PageOutOfRangeError struct {
	Source    string
	Page      int
	PageCount int
}

func (e *PageOutOfRangeError) Error() string {
	return fmt.Sprintf("page %d out of range [1, %d] for %q", e.Page, e.PageCount, e.Source)
}

func (e *PageOutOfRangeError) Is(target error) bool { return target == ErrPageOutOfRange }

// RenderFailure wraps any failure while rasterizing a valid page.
type RenderFailure struct {
	Request Request
	Err     error
}

func (e *RenderFailure) Error() string {
	return fmt.Sprintf("render %s: %v", e.Request, e.Err)
}

func (e *RenderFailure) Unwrap() error        { return e.Err }
func (e *RenderFailure) Is(target error) bool { return target == ErrRenderFailure }

// OverlayFailure wraps text extraction or OCR lookup failures. Callers degrade
// to "no overlay".
type OverlayFailure struct {
	Source string
	Page   int
	Err    error
}

func (e *OverlayFailure) Error() string {
	return fmt.Sprintf("overlay %q page %d: %v", e.Source, e.Page, e.Err)
}

func (e *OverlayFailure) Unwrap() error        { return e.Err }
func (e *OverlayFailure) Is(target error) bool { return target == ErrOverlayResolution }
