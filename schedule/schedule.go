// Package schedule abstracts delayed callbacks so frame throttling, debounces
// and animations can be driven by a fake clock in tests.
package schedule

import (
	"sort"
	"sync"
	"time"
)

// Timer is a pending callback.
type Timer interface {
	// Stop cancels the callback and reports whether it was still pending.
	Stop() bool
}

// AfterFunc runs f once d has elapsed.
type AfterFunc func(d time.Duration, f func()) Timer

// Real is backed by time.AfterFunc.
func Real(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Fake is a manual clock. Callbacks run synchronously inside Advance, in due
// order, without holding the clock's lock.
type Fake struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	queue []*fakeTimer
}

type fakeTimer struct {
	clock *Fake
	due   time.Duration
	seq   int
	f     func()
	done  bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// AfterFunc registers f to run when the clock has advanced by d.
func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, due: c.now + d, seq: c.seq, f: f}
	c.queue = append(c.queue, t)
	return t
}

// Advance moves the clock forward and fires every callback that became due,
// including ones scheduled by callbacks within the window.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()
	for {
		c.mu.Lock()
		t := c.nextDue(target)
		if t == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = t.due
		t.done = true
		c.mu.Unlock()
		t.f()
	}
}

// Pending reports how many callbacks are waiting.
func (c *Fake) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.queue {
		if !t.done {
			n++
		}
	}
	return n
}

func (c *Fake) nextDue(target time.Duration) *fakeTimer {
	live := c.queue[:0]
	for _, t := range c.queue {
		if !t.done {
			live = append(live, t)
		}
	}
	c.queue = live
	sort.SliceStable(c.queue, func(i, j int) bool {
		if c.queue[i].due != c.queue[j].due {
			return c.queue[i].due < c.queue[j].due
		}
		return c.queue[i].seq < c.queue[j].seq
	})
	if len(c.queue) == 0 || c.queue[0].due > target {
		return nil
	}
	return c.queue[0]
}
