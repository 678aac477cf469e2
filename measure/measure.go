// Package measure tracks container sizes reported by the host.
//
// A size with either side at or below MinMeasured has not been measured yet;
// consumers treat it as a sentinel rather than as a zero-sized box.
package measure

import "sync"

// MinMeasured is the side length, in pixels, a container must exceed to count
// as measured.
const MinMeasured = 10.0

type Size struct {
	Width  float64
	Height float64
}

// Measured reports whether both sides exceed MinMeasured.
func (s Size) Measured() bool {
	return s.Width > MinMeasured && s.Height > MinMeasured
}

// Observer publishes size changes to subscribers. Slow subscribers only ever
// see the latest size.
type Observer struct {
	mu      sync.Mutex
	current Size
	subs    map[*Subscription]struct{}
}

func NewObserver() *Observer {
	return &Observer{subs: make(map[*Subscription]struct{})}
}

// Current returns the last published size.
func (o *Observer) Current() Size {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Set publishes s if it differs from the current size. It never blocks.
func (o *Observer) Set(s Size) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s == o.current {
		return
	}
	o.current = s
	for sub := range o.subs {
		sub.offer(s)
	}
}

// Subscribe returns a subscription primed with the current size.
func (o *Observer) Subscribe() *Subscription {
	sub := &Subscription{ch: make(chan Size, 1), owner: o}
	o.mu.Lock()
	o.subs[sub] = struct{}{}
	sub.offer(o.current)
	o.mu.Unlock()
	return sub
}

type Subscription struct {
	ch     chan Size
	owner  *Observer
	closed bool
}

// Sizes delivers size changes. It is closed by Close.
func (s *Subscription) Sizes() <-chan Size { return s.ch }

// offer replaces any undelivered size with v. Called with owner.mu held.
func (s *Subscription) offer(v Size) {
	if s.closed {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- v
}

func (s *Subscription) Close() {
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(s.owner.subs, s)
	close(s.ch)
}
