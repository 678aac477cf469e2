// Package pageturn turns horizontal drags over a two-page spread into page
// turns.
//
// The controller is a small state machine: Idle, Dragging while a pointer is
// down, Animating while a turn plays out. Moves and releases are accepted
// from anywhere once a drag started, so a pointer leaving the spread cannot
// leave the controller stuck in Dragging.
package pageturn

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/bnrm/pdfview/schedule"
)

const (
	DefaultThreshold    = 60.0
	DefaultTransition   = 250 * time.Millisecond
	DefaultMaxTranslate = 200.0
	DefaultMaxRotate    = 8.0
	DefaultStep         = 2
)

type State int

const (
	Idle State = iota
	Dragging
	Animating
)

func (s State) String() string {
	switch s {
	case Dragging:
		return "dragging"
	case Animating:
		return "animating"
	}
	return "idle"
}

// Direction is the reading direction of the document.
type Direction int

const (
	LTR Direction = iota
	RTL
)

func (d Direction) String() string {
	if d == RTL {
		return "rtl"
	}
	return "ltr"
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ltr":
		return LTR, nil
	case "rtl":
		return RTL, nil
	}
	return LTR, fmt.Errorf("pageturn: unknown direction %q", s)
}

// Config holds the tunables. Zero fields take defaults.
type Config struct {
	Threshold    float64
	Transition   time.Duration
	MaxTranslate float64
	MaxRotate    float64
	Step         int
	Direction    Direction
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Transition <= 0 {
		c.Transition = DefaultTransition
	}
	if c.MaxTranslate <= 0 {
		c.MaxTranslate = DefaultMaxTranslate
	}
	if c.MaxRotate <= 0 {
		c.MaxRotate = DefaultMaxRotate
	}
	if c.Step <= 0 {
		c.Step = DefaultStep
	}
	return c
}

// Feedback is the live transform of the spread while dragging.
type Feedback struct {
	Translate float64
	Rotate    float64
}

type Option func(*Controller)

func WithAfterFunc(f schedule.AfterFunc) Option {
	return func(c *Controller) {
		if f != nil {
			c.after = f
		}
	}
}

// OnChange is called with the new first page once a turn completes.
func OnChange(f func(page int)) Option {
	return func(c *Controller) { c.onChange = f }
}

// Controller is safe for concurrent use.
type Controller struct {
	cfg      Config
	after    schedule.AfterFunc
	onChange func(page int)

	mu     sync.Mutex
	state  State
	page   int
	total  int
	startX float64
	delta  float64
}

// New returns an idle controller showing the spread that starts at page.
func New(page, total int, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		cfg:   cfg.withDefaults(),
		after: schedule.Real,
		page:  page,
		total: total,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Page() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// SetTotal corrects the page count.
func (c *Controller) SetTotal(n int) {
	c.mu.Lock()
	c.total = n
	c.mu.Unlock()
}

// SetPage jumps without animation. Ignored while animating.
func (c *Controller) SetPage(page int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Animating {
		return
	}
	c.page = clamp(page, 1, max(c.total, 1))
}

// SetDirection switches the reading direction.
func (c *Controller) SetDirection(d Direction) {
	c.mu.Lock()
	c.cfg.Direction = d
	c.mu.Unlock()
}

// PointerDown starts a drag at x. It reports false when the controller is not
// idle.
func (c *Controller) PointerDown(x float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return false
	}
	c.state = Dragging
	c.startX = x
	c.delta = 0
	return true
}

// PointerMove updates the drag and returns the feedback transform.
func (c *Controller) PointerMove(x float64) Feedback {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Dragging {
		return Feedback{}
	}
	c.delta = x - c.startX
	return c.feedback()
}

// PointerUp ends the drag. It reports whether a turn was started.
func (c *Controller) PointerUp(x float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Dragging {
		return false
	}
	c.delta = x - c.startX
	delta := c.delta
	c.state = Idle
	c.delta = 0
	if math.Abs(delta) <= c.cfg.Threshold {
		return false
	}
	// Dragging towards the left reveals the next page of an LTR book.
	forward := delta < 0
	if c.cfg.Direction == RTL {
		forward = !forward
	}
	return c.turn(forward)
}

// PointerCancel abandons the drag without turning.
func (c *Controller) PointerCancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Dragging {
		c.state = Idle
		c.delta = 0
	}
}

// Next turns forward, as a button or key would.
func (c *Controller) Next() bool { return c.step(true) }

// Prev turns backward.
func (c *Controller) Prev() bool { return c.step(false) }

func (c *Controller) step(forward bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return false
	}
	return c.turn(forward)
}

// turn starts the animation towards the next or previous spread. Called with
// mu held and the controller idle.
func (c *Controller) turn(forward bool) bool {
	target, ok := c.target(forward)
	if !ok {
		return false
	}
	c.state = Animating
	c.after(c.cfg.Transition, func() {
		c.mu.Lock()
		c.page = target
		c.state = Idle
		cb := c.onChange
		c.mu.Unlock()
		if cb != nil {
			cb(target)
		}
	})
	return true
}

// target returns the first page of the adjacent spread. A next spread exists
// only when pages remain after the current one.
func (c *Controller) target(forward bool) (int, bool) {
	step := c.cfg.Step
	if forward {
		if c.page+step-1 >= c.total {
			return c.page, false
		}
		return min(c.page+step, c.total), true
	}
	if c.page <= 1 {
		return c.page, false
	}
	return max(c.page-step, 1), true
}

func (c *Controller) feedback() Feedback {
	t := math.Max(-c.cfg.MaxTranslate, math.Min(c.cfg.MaxTranslate, c.delta))
	return Feedback{Translate: t, Rotate: t / c.cfg.MaxTranslate * c.cfg.MaxRotate}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
