// Package cache holds the process-wide document cache: opened document
// handles keyed by source, and rendered page images keyed by request
// fingerprint.
//
// Handles are kept for the life of the session (one per distinct source).
// Images are bounded: after an insert pushes the count above the capacity,
// the oldest third is evicted in insertion order. Reads never refresh an
// entry's position.
package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"

	"github.com/bnrm/pdfview/observability"
	"github.com/bnrm/pdfview/render"
)

// DefaultMaxImages is the default image capacity.
const DefaultMaxImages = 30

// Option configures a Store.
type Option func(*Store)

func WithMaxImages(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.max = n
		}
	}
}

func WithLogger(l observability.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m observability.Metrics) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Images    int
	Documents int
	Hits      int64
	Misses    int64
	Evictions int64
}

type docEntry struct {
	ready chan struct{}
	doc   render.Document
	err   error

	// Guarded by Store.mu. A dropped entry is out of the map and its handle
	// is closed once refs reaches zero.
	refs    int
	dropped bool
}

type imageEntry struct {
	source string
	img    render.Image
}

// Store is the document cache. It is safe for concurrent use.
type Store struct {
	opener  render.Opener
	max     int
	log     observability.Logger
	metrics observability.Metrics

	mu        sync.Mutex
	docs      map[string]*docEntry
	images    *simplelru.LRU
	hits      int64
	misses    int64
	evictions int64
}

// New creates an empty cache that opens documents with opener.
func New(opener render.Opener, opts ...Option) *Store {
	s := &Store{
		opener:  opener,
		max:     DefaultMaxImages,
		log:     observability.NopLogger{},
		metrics: observability.NopMetrics{},
		docs:    make(map[string]*docEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.images = newImageList(s.max)
	return s
}

func newImageList(max int) *simplelru.LRU {
	// One slot of headroom: the list never evicts on its own, PutImage does
	// the batch eviction once the bound is exceeded.
	l, err := simplelru.NewLRU(max+1, nil)
	if err != nil {
		panic(fmt.Sprintf("cache: %v", err))
	}
	return l
}

// Capacity returns the image bound.
func (s *Store) Capacity() int { return s.max }

// GetOrOpenDocument returns the cached handle for source, opening it on first
// use. Concurrent callers for the same source share a single open. Failed
// opens are not cached.
//
// The handle is only valid until the source is cleared. Callers that work
// with it for longer than a metadata lookup should use AcquireDocument.
func (s *Store) GetOrOpenDocument(ctx context.Context, source string) (render.Document, error) {
	e, err := s.entry(ctx, source)
	if err != nil {
		return nil, err
	}
	return e.doc, nil
}

// AcquireDocument is GetOrOpenDocument with a lease: the handle stays open
// until release is called, even if the source is cleared meanwhile. A cleared
// handle is closed by the last release. release is safe to call twice.
func (s *Store) AcquireDocument(ctx context.Context, source string) (render.Document, func(), error) {
	for {
		e, err := s.entry(ctx, source)
		if err != nil {
			return nil, nil, err
		}
		s.mu.Lock()
		if e.dropped {
			// Cleared and closed between the open and the lease.
			s.mu.Unlock()
			continue
		}
		e.refs++
		s.mu.Unlock()
		var once sync.Once
		return e.doc, func() { once.Do(func() { s.release(e) }) }, nil
	}
}

func (s *Store) release(e *docEntry) {
	s.mu.Lock()
	e.refs--
	last := e.dropped && e.refs == 0
	s.mu.Unlock()
	if last {
		s.closeDoc(e.doc)
	}
}

func (s *Store) closeDoc(doc render.Document) {
	if err := doc.Close(); err != nil {
		s.log.Warn("document close failed", observability.Error("error", err))
	}
}

func (s *Store) entry(ctx context.Context, source string) (*docEntry, error) {
	s.mu.Lock()
	if e, ok := s.docs[source]; ok {
		s.mu.Unlock()
		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e.err != nil {
			return nil, e.err
		}
		return e, nil
	}
	e := &docEntry{ready: make(chan struct{})}
	s.docs[source] = e
	s.mu.Unlock()

	doc, err := s.opener.Open(ctx, source)
	if err != nil {
		e.err = &render.DocumentLoadError{Source: source, Err: err}
	} else if doc.PageCount() < 1 {
		doc.Close()
		e.err = &render.DocumentLoadError{Source: source, Err: fmt.Errorf("document has no pages")}
	} else {
		e.doc = doc
	}

	s.mu.Lock()
	other, present := s.docs[source]
	switch {
	case e.err != nil:
		if other == e {
			delete(s.docs, source)
		}
	case !present:
		// Cleared while opening: the cache adopts the handle again so it
		// stays the only owner.
		s.docs[source] = e
	}
	s.mu.Unlock()
	close(e.ready)

	if e.err != nil {
		s.log.Warn("document open failed", observability.String("source", source), observability.Error("error", e.err))
		return nil, e.err
	}
	if present && other != e {
		// A newer open for the same source won the slot.
		s.closeDoc(e.doc)
		return s.entry(ctx, source)
	}
	s.log.Debug("document opened", observability.String("source", source), observability.Int("pages", e.doc.PageCount()))
	return e, nil
}

// CachedImage looks up a rendered image without side effects on ordering.
func (s *Store) CachedImage(key render.Key) (render.Image, bool) {
	s.mu.Lock()
	v, ok := s.images.Peek(key)
	if ok {
		s.hits++
	} else {
		s.misses++
	}
	s.mu.Unlock()
	if !ok {
		s.metrics.Count(observability.MetricCacheMisses, 1)
		return render.Image{}, false
	}
	s.metrics.Count(observability.MetricCacheHits, 1)
	return v.(imageEntry).img, true
}

// Contains reports whether key is cached.
func (s *Store) Contains(key render.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.images.Contains(key)
}

// PutImage inserts img under its request fingerprint. When the insert pushes
// the count above the capacity, the oldest third of the entries is evicted.
// The entry just inserted is never part of that batch. A key that is already
// cached keeps its first image and its place in the eviction order.
func (s *Store) PutImage(img render.Image) {
	key := img.Request.Key()
	s.mu.Lock()
	if s.images.Contains(key) {
		s.mu.Unlock()
		return
	}
	s.images.Add(key, imageEntry{source: img.Request.Source, img: img})
	evicted := 0
	if s.images.Len() > s.max {
		n := s.max / 3
		if over := s.images.Len() - s.max; n < over {
			n = over
		}
		for i := 0; i < n; i++ {
			if _, _, ok := s.images.RemoveOldest(); !ok {
				break
			}
			evicted++
		}
		s.evictions += int64(evicted)
	}
	s.mu.Unlock()
	if evicted > 0 {
		s.metrics.Count(observability.MetricCacheEvictions, int64(evicted))
		s.log.Debug("image cache evicted", observability.Int("count", evicted), observability.Int("capacity", s.max))
	}
}

// Clear drops cached state. An empty source clears everything; otherwise only
// images of that source and its document handle are removed. Removed handles
// are closed, or by their last release when leased. Clearing an unknown source
// is a no-op.
func (s *Store) Clear(source string) {
	var closing []render.Document
	s.mu.Lock()
	if source == "" {
		for _, e := range s.docs {
			closing = drop(closing, e)
		}
		s.docs = make(map[string]*docEntry)
		s.images.Purge()
	} else {
		if e, ok := s.docs[source]; ok {
			closing = drop(closing, e)
			delete(s.docs, source)
		}
		for _, k := range s.images.Keys() {
			if v, ok := s.images.Peek(k); ok && v.(imageEntry).source == source {
				s.images.Remove(k)
			}
		}
	}
	s.mu.Unlock()
	for _, doc := range closing {
		s.closeDoc(doc)
	}
}

// drop marks a ready entry as removed and returns the handles that can be
// closed right away. Entries still opening are adopted again by their opener.
// Caller holds Store.mu.
func drop(list []render.Document, e *docEntry) []render.Document {
	select {
	case <-e.ready:
		if e.doc != nil {
			e.dropped = true
			if e.refs == 0 {
				list = append(list, e.doc)
			}
		}
	default:
	}
	return list
}

// Len returns the number of cached images.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.images.Len()
}

// Keys returns cached image keys from oldest to newest.
func (s *Store) Keys() []render.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw := s.images.Keys()
	keys := make([]render.Key, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, k.(render.Key))
	}
	return keys
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Images:    s.images.Len(),
		Documents: len(s.docs),
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
	}
}
