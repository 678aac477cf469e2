package pageturn

import (
	"testing"

	"github.com/bnrm/pdfview/schedule"
)

func newController(page, total int, dir Direction) (*Controller, *schedule.Fake, *[]int) {
	clock := &schedule.Fake{}
	var changes []int
	c := New(page, total, Config{Direction: dir},
		WithAfterFunc(clock.AfterFunc),
		OnChange(func(p int) { changes = append(changes, p) }))
	return c, clock, &changes
}

func drag(c *Controller, dx float64) bool {
	c.PointerDown(500)
	c.PointerMove(500 + dx/2)
	return c.PointerUp(500 + dx)
}

func TestDragThreshold(t *testing.T) {
	c, clock, changes := newController(5, 20, LTR)
	if drag(c, -59) {
		t.Fatalf("59px drag turned the page")
	}
	if c.State() != Idle || c.Page() != 5 {
		t.Fatalf("state %v page %d", c.State(), c.Page())
	}

	if !drag(c, -61) {
		t.Fatalf("61px drag did not turn")
	}
	if c.State() != Animating || c.Page() != 5 {
		t.Fatalf("page must change only after the transition: %v %d", c.State(), c.Page())
	}
	clock.Advance(DefaultTransition - 1)
	if c.Page() != 5 {
		t.Fatalf("turned early")
	}
	clock.Advance(1)
	if c.State() != Idle || c.Page() != 7 || len(*changes) != 1 || (*changes)[0] != 7 {
		t.Fatalf("after transition: %v page %d changes %v", c.State(), c.Page(), *changes)
	}

	if !drag(c, 61) {
		t.Fatalf("backward drag did not turn")
	}
	clock.Advance(DefaultTransition)
	if c.Page() != 5 {
		t.Fatalf("page = %d, want 5", c.Page())
	}
}

func TestRightToLeft(t *testing.T) {
	c, clock, _ := newController(5, 20, RTL)
	drag(c, 61)
	clock.Advance(DefaultTransition)
	if c.Page() != 7 {
		t.Fatalf("rtl drag right should advance, page = %d", c.Page())
	}
	drag(c, -61)
	clock.Advance(DefaultTransition)
	if c.Page() != 5 {
		t.Fatalf("rtl drag left should go back, page = %d", c.Page())
	}
}

func TestBounds(t *testing.T) {
	c, clock, _ := newController(19, 20, LTR)
	if drag(c, -100) || c.State() != Idle {
		t.Fatalf("turned past the last spread")
	}
	c.SetPage(1)
	if drag(c, 100) {
		t.Fatalf("turned before the first page")
	}
	c.SetPage(18)
	if !c.Next() {
		t.Fatalf("Next refused")
	}
	clock.Advance(DefaultTransition)
	if c.Page() != 20 {
		t.Fatalf("page = %d, want 20", c.Page())
	}
	c.SetPage(2)
	c.Prev()
	clock.Advance(DefaultTransition)
	if c.Page() != 1 {
		t.Fatalf("page = %d, want 1", c.Page())
	}
}

func TestInputIgnoredWhileAnimating(t *testing.T) {
	c, clock, _ := newController(1, 20, LTR)
	c.Next()
	if c.PointerDown(10) || c.Next() {
		t.Fatalf("input accepted while animating")
	}
	if c.PointerUp(500) {
		t.Fatalf("release without drag turned")
	}
	clock.Advance(DefaultTransition)
	if c.Page() != 3 || c.State() != Idle {
		t.Fatalf("page %d state %v", c.Page(), c.State())
	}
}

func TestFeedbackClamped(t *testing.T) {
	c, _, _ := newController(1, 20, LTR)
	c.PointerDown(0)
	fb := c.PointerMove(-1000)
	if fb.Translate != -DefaultMaxTranslate || fb.Rotate != -DefaultMaxRotate {
		t.Fatalf("feedback %+v", fb)
	}
	fb = c.PointerMove(100)
	if fb.Translate != 100 || fb.Rotate != DefaultMaxRotate/2 {
		t.Fatalf("feedback %+v", fb)
	}
	c.PointerCancel()
	if c.State() != Idle || c.Page() != 1 {
		t.Fatalf("cancel left %v", c.State())
	}
}

func TestParseDirection(t *testing.T) {
	if d, err := ParseDirection("RTL"); err != nil || d != RTL {
		t.Fatalf("got %v, %v", d, err)
	}
	if _, err := ParseDirection("ttb"); err == nil {
		t.Fatalf("expected error")
	}
}
