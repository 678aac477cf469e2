// Package bookmark keeps a reader's bookmarked pages. Persistence belongs to
// the host; the set only calls back.
package bookmark

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// PersistFunc stores the new state of one page.
type PersistFunc func(ctx context.Context, page int, bookmarked bool) error

// Set is a set of bookmarked pages. It is safe for concurrent use.
type Set struct {
	persist PersistFunc

	mu    sync.Mutex
	pages map[int]bool
}

// New returns a set holding pages. persist may be nil.
func New(persist PersistFunc, pages ...int) *Set {
	s := &Set{persist: persist, pages: make(map[int]bool, len(pages))}
	for _, p := range pages {
		s.pages[p] = true
	}
	return s
}

func (s *Set) Has(page int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages[page]
}

// Pages returns the bookmarked pages in ascending order.
func (s *Set) Pages() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.pages))
	for p := range s.pages {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// Toggle flips page and persists the change. The set shows the new state at
// once; if persisting fails the change is rolled back and the error returned.
func (s *Set) Toggle(ctx context.Context, page int) (bool, error) {
	if page < 1 {
		return false, fmt.Errorf("bookmark: invalid page %d", page)
	}
	s.mu.Lock()
	now := !s.pages[page]
	s.apply(page, now)
	s.mu.Unlock()

	if s.persist == nil {
		return now, nil
	}
	if err := s.persist(ctx, page, now); err != nil {
		s.mu.Lock()
		// Only roll back if nobody toggled the page in the meantime.
		if s.pages[page] == now {
			s.apply(page, !now)
		}
		s.mu.Unlock()
		return !now, fmt.Errorf("bookmark page %d: %w", page, err)
	}
	return now, nil
}

func (s *Set) apply(page int, on bool) {
	if on {
		s.pages[page] = true
	} else {
		delete(s.pages, page)
	}
}
