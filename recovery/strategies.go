package recovery

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bnrm/pdfview/observability"
	"github.com/bnrm/pdfview/render"
)

// StrictStrategy surfaces every failure. Used for foreground renders.
type StrictStrategy struct{}

func NewStrictStrategy() *StrictStrategy {
	return &StrictStrategy{}
}

func (s *StrictStrategy) OnError(ctx context.Context, err error, location Location) Action {
	return ActionFail
}

// BackgroundStrategy swallows failures of speculative work. Out-of-range
// pages and cancellations are skipped silently, anything else is logged.
type BackgroundStrategy struct {
	Logger observability.Logger
}

func NewBackgroundStrategy(log observability.Logger) *BackgroundStrategy {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &BackgroundStrategy{Logger: log}
}

func (s *BackgroundStrategy) OnError(ctx context.Context, err error, location Location) Action {
	if errors.Is(err, render.ErrPageOutOfRange) || errors.Is(err, context.Canceled) {
		return ActionSkip
	}
	s.Logger.Warn("background "+location.Component+" failed",
		observability.String("source", location.Source),
		observability.Int("page", location.Page),
		observability.Error("error", err),
	)
	return ActionWarn
}

// LenientStrategy collects failures and continues. Used by batch jobs.
type LenientStrategy struct {
	mu     sync.Mutex
	errs   []error
	Logger observability.Logger
}

func NewLenientStrategy() *LenientStrategy {
	return &LenientStrategy{Logger: observability.NopLogger{}}
}

func (s *LenientStrategy) OnError(ctx context.Context, err error, location Location) Action {
	s.mu.Lock()
	s.errs = append(s.errs, fmt.Errorf("[%s] %s page %d: %w", location.Component, location.Source, location.Page, err))
	s.mu.Unlock()
	s.Logger.Warn(location.Component+" failed", observability.Int("page", location.Page), observability.Error("error", err))
	return ActionWarn
}

// Errors returns the collected failures.
func (s *LenientStrategy) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}
