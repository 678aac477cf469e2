package cache

import (
	"sync"

	"github.com/bnrm/pdfview/render"
)

var (
	defaultMu    sync.RWMutex
	defaultStore *Store
)

// Init installs the process-wide store, replacing and clearing any previous one.
func Init(opener render.Opener, opts ...Option) *Store {
	s := New(opener, opts...)
	defaultMu.Lock()
	prev := defaultStore
	defaultStore = s
	defaultMu.Unlock()
	if prev != nil {
		prev.Clear("")
	}
	return s
}

// Default returns the process-wide store, or nil before Init.
func Default() *Store {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultStore
}

// Reset clears and removes the process-wide store.
func Reset() {
	defaultMu.Lock()
	prev := defaultStore
	defaultStore = nil
	defaultMu.Unlock()
	if prev != nil {
		prev.Clear("")
	}
}
