package cache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bnrm/pdfview/render"
	"github.com/bnrm/pdfview/render/rendertest"
)

func img(source string, page int) render.Image {
	return render.Image{
		Request: render.Request{Source: source, Page: page, Scale: 1, Rotation: render.Rotate0},
		Data:    []byte{byte(page)},
		Format:  render.FormatPNG,
	}
}

func TestPutImageKeepsBound(t *testing.T) {
	s := New(rendertest.NewOpener())
	for page := 1; page <= 100; page++ {
		s.PutImage(img("doc", page))
		if s.Len() > DefaultMaxImages {
			t.Fatalf("after page %d: len %d exceeds %d", page, s.Len(), DefaultMaxImages)
		}
		if _, ok := s.CachedImage(img("doc", page).Request.Key()); !ok {
			t.Fatalf("page %d evicted by its own insert", page)
		}
	}
}

func TestPutImageEvictsOldestThird(t *testing.T) {
	s := New(rendertest.NewOpener())
	for page := 1; page <= 30; page++ {
		s.PutImage(img("doc", page))
	}
	if s.Len() != 30 {
		t.Fatalf("len = %d, want 30", s.Len())
	}
	// Reads must not protect an entry from eviction.
	if _, ok := s.CachedImage(img("doc", 1).Request.Key()); !ok {
		t.Fatalf("page 1 should be cached")
	}
	s.PutImage(img("doc", 31))
	if s.Len() != 21 {
		t.Fatalf("len = %d, want 21 after evicting 10", s.Len())
	}
	for page := 1; page <= 10; page++ {
		if s.Contains(img("doc", page).Request.Key()) {
			t.Fatalf("page %d should have been evicted", page)
		}
	}
	for page := 11; page <= 31; page++ {
		if !s.Contains(img("doc", page).Request.Key()) {
			t.Fatalf("page %d should still be cached", page)
		}
	}
	if got := s.Stats().Evictions; got != 10 {
		t.Fatalf("evictions = %d, want 10", got)
	}
}

func TestSmallCapacityStillBounded(t *testing.T) {
	s := New(rendertest.NewOpener(), WithMaxImages(2))
	for page := 1; page <= 5; page++ {
		s.PutImage(img("doc", page))
		if s.Len() > 2 {
			t.Fatalf("len %d exceeds 2", s.Len())
		}
	}
	if !s.Contains(img("doc", 5).Request.Key()) {
		t.Fatalf("newest entry must survive")
	}
}

func TestPutImageExistingKeyKeepsPlace(t *testing.T) {
	s := New(rendertest.NewOpener(), WithMaxImages(3))
	for page := 1; page <= 3; page++ {
		s.PutImage(img("doc", page))
	}
	again := img("doc", 1)
	again.Data = []byte{0xff}
	s.PutImage(again)
	if s.Len() != 3 {
		t.Fatalf("len = %d, want 3", s.Len())
	}
	got, _ := s.CachedImage(again.Request.Key())
	if got.Data[0] != 1 {
		t.Fatalf("re-put replaced the cached image")
	}

	s.PutImage(img("doc", 4))
	if s.Contains(img("doc", 1).Request.Key()) {
		t.Fatalf("page 1 is still the oldest entry and should be evicted first")
	}
	if !s.Contains(img("doc", 2).Request.Key()) {
		t.Fatalf("page 2 must survive")
	}
}

func TestClearWaitsForLeases(t *testing.T) {
	op := rendertest.NewOpener().Add("a", rendertest.Doc{Pages: 3})
	s := New(op)
	ctx := context.Background()
	doc, release, err := s.AcquireDocument(ctx, "a")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	s.PutImage(img("a", 1))

	s.Clear("a")
	if op.Document("a").Closed() {
		t.Fatalf("leased handle closed by Clear")
	}
	if s.Len() != 0 || s.Stats().Documents != 0 {
		t.Fatalf("clear left state behind: %+v", s.Stats())
	}
	if _, err := doc.Rasterize(ctx, 1, 72); err != nil {
		t.Fatalf("leased handle unusable after Clear: %v", err)
	}

	fresh, err := s.GetOrOpenDocument(ctx, "a")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if fresh == doc || op.Opens() != 2 {
		t.Fatalf("cleared source should reopen, opens = %d", op.Opens())
	}

	release()
	release()
	if !doc.(*rendertest.Document).Closed() {
		t.Fatalf("last release must close the cleared handle")
	}
	if op.Closes() != 1 || fresh.(*rendertest.Document).Closed() {
		t.Fatalf("closes = %d, want only the cleared handle", op.Closes())
	}
}

func TestReleaseWithoutClearKeepsHandle(t *testing.T) {
	op := rendertest.NewOpener().Add("a", rendertest.Doc{Pages: 3})
	s := New(op)
	_, release, err := s.AcquireDocument(context.Background(), "a")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()
	if op.Document("a").Closed() {
		t.Fatalf("cached handle closed on release")
	}
	s.Clear("")
	if !op.Document("a").Closed() {
		t.Fatalf("unleased handle should close on Clear")
	}
}

func TestClearBySource(t *testing.T) {
	op := rendertest.NewOpener().
		Add("a", rendertest.Doc{Pages: 3}).
		Add("b", rendertest.Doc{Pages: 3})
	s := New(op)
	ctx := context.Background()
	if _, err := s.GetOrOpenDocument(ctx, "a"); err != nil {
		t.Fatalf("open a: %v", err)
	}
	if _, err := s.GetOrOpenDocument(ctx, "b"); err != nil {
		t.Fatalf("open b: %v", err)
	}
	s.PutImage(img("a", 1))
	s.PutImage(img("b", 1))
	s.PutImage(img("a", 2))

	s.Clear("a")
	if s.Contains(img("a", 1).Request.Key()) || s.Contains(img("a", 2).Request.Key()) {
		t.Fatalf("images of a should be gone")
	}
	if !s.Contains(img("b", 1).Request.Key()) {
		t.Fatalf("images of b must survive")
	}
	if !op.Document("a").Closed() || op.Document("b").Closed() {
		t.Fatalf("only a's handle should be closed")
	}
	if got := s.Stats().Documents; got != 1 {
		t.Fatalf("documents = %d, want 1", got)
	}

	s.Clear("missing")
	s.Clear("")
	if s.Len() != 0 || s.Stats().Documents != 0 {
		t.Fatalf("Clear(\"\") should empty the cache: %+v", s.Stats())
	}
}

func TestGetOrOpenDocumentOpensOnce(t *testing.T) {
	op := rendertest.NewOpener().Add("doc", rendertest.Doc{Pages: 5})
	s := New(op)
	var wg sync.WaitGroup
	docs := make([]render.Document, 16)
	for i := range docs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := s.GetOrOpenDocument(context.Background(), "doc")
			if err != nil {
				t.Errorf("open: %v", err)
				return
			}
			docs[i] = d
		}(i)
	}
	wg.Wait()
	if op.Opens() != 1 {
		t.Fatalf("opens = %d, want 1", op.Opens())
	}
	for _, d := range docs[1:] {
		if d != docs[0] {
			t.Fatalf("handles must be shared")
		}
	}
}

func TestGetOrOpenDocumentLoadError(t *testing.T) {
	cause := errors.New("connection refused")
	op := rendertest.NewOpener().Fail("bad", cause)
	s := New(op)
	_, err := s.GetOrOpenDocument(context.Background(), "bad")
	if !errors.Is(err, render.ErrDocumentLoad) || !errors.Is(err, cause) {
		t.Fatalf("expected DocumentLoadError wrapping cause, got %v", err)
	}
	if s.Stats().Documents != 0 {
		t.Fatalf("failed opens must not be cached")
	}
	if _, err := s.GetOrOpenDocument(context.Background(), "bad"); err == nil {
		t.Fatalf("expected error on retry")
	}
	if op.Opens() != 2 {
		t.Fatalf("explicit retry should reopen, opens = %d", op.Opens())
	}
}

func TestDefaultLifecycle(t *testing.T) {
	defer Reset()
	if Default() != nil {
		Reset()
	}
	s := Init(rendertest.NewOpener())
	if Default() != s {
		t.Fatalf("Default should return the initialised store")
	}
	s.PutImage(img("doc", 1))
	Init(rendertest.NewOpener())
	if s.Len() != 0 {
		t.Fatalf("re-Init should clear the previous store")
	}
	Reset()
	if Default() != nil {
		t.Fatalf("Reset should remove the store")
	}
}
