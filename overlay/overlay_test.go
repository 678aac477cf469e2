package overlay

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bnrm/pdfview/cache"
	"github.com/bnrm/pdfview/measure"
	"github.com/bnrm/pdfview/ocr"
	"github.com/bnrm/pdfview/render"
	"github.com/bnrm/pdfview/render/rendertest"
)

type stubStore struct {
	mu     sync.Mutex
	has    bool
	texts  map[int]string
	err    error
	checks int
}

func (s *stubStore) HasOcrForDocument(ctx context.Context, documentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks++
	return s.has, s.err
}

func (s *stubStore) OcrText(ctx context.Context, documentID string, page int) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.texts[page]
	return text, ok, nil
}

func (s *stubStore) PutOcrText(ctx context.Context, documentID string, page int, text string) error {
	return errors.New("read only")
}

func (s *stubStore) Checks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checks
}

var helloSpans = map[int][]render.Span{
	1: {{Text: "Hello", X: 10, Y: 100, Width: 30, FontSize: 10}},
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func newResolver(t *testing.T, doc rendertest.Doc, store ocr.Store) (*Resolver, *rendertest.Opener) {
	t.Helper()
	opener := rendertest.NewOpener().Add("doc.pdf", doc)
	return NewResolver(cache.New(opener), store), opener
}

func params(page int, rot render.Rotation, w, h float64) Params {
	return Params{
		Request:   render.Request{Source: "doc.pdf", Page: page, Scale: 1.5, Rotation: rot},
		Container: measure.Size{Width: w, Height: h},
	}
}

func TestTransition(t *testing.T) {
	tests := []struct {
		from Mode
		has  bool
		want Mode
	}{
		{Unresolved, true, OcrFallback},
		{Unresolved, false, NativeText},
		{NativeText, true, NativeText},
		{OcrFallback, false, OcrFallback},
	}
	for _, tc := range tests {
		if got := Transition(tc.from, tc.has); got != tc.want {
			t.Fatalf("Transition(%v, %v) = %v, want %v", tc.from, tc.has, got, tc.want)
		}
	}
}

func TestNativeLayerAlignsWithRaster(t *testing.T) {
	r, _ := newResolver(t, rendertest.Doc{Pages: 1, Spans: helloSpans}, ocr.NewMemoryStore())
	ctx := context.Background()

	t.Run("upright", func(t *testing.T) {
		layer, err := r.Resolve(ctx, params(1, render.Rotate0, 200, 300))
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if layer.Mode != NativeText || len(layer.Runs) != 1 {
			t.Fatalf("unexpected layer %+v", layer)
		}
		run := layer.Runs[0]
		if !near(layer.Scale, 2) || !near(run.Left, 20) || !near(run.Top, 84) || !near(run.Width, 60) || !near(run.FontSize, 20) {
			t.Fatalf("run misplaced: %+v", run)
		}
		if !near(layer.Width, 200) || !near(layer.Height, 300) {
			t.Fatalf("layer size %vx%v", layer.Width, layer.Height)
		}
	})

	t.Run("rotated", func(t *testing.T) {
		layer, err := r.Resolve(ctx, params(1, render.Rotate90, 300, 200))
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		run := layer.Runs[0]
		if !near(layer.Scale, 2) || !near(run.Left, 216) || !near(run.Top, 20) || run.Angle != 90 {
			t.Fatalf("run misplaced: %+v", run)
		}
		if !near(layer.Width, 300) || !near(layer.Height, 200) {
			t.Fatalf("layer size %vx%v", layer.Width, layer.Height)
		}
	})

	t.Run("not measured", func(t *testing.T) {
		if _, err := r.Resolve(ctx, params(1, render.Rotate0, 10, 400)); !errors.Is(err, ErrNotMeasured) {
			t.Fatalf("want ErrNotMeasured, got %v", err)
		}
	})
}

func TestOcrDocumentStaysOcr(t *testing.T) {
	store := ocr.NewMemoryStore()
	ctx := context.Background()
	if err := store.PutOcrText(ctx, "doc.pdf", 1, "Scanned page one"); err != nil {
		t.Fatal(err)
	}
	r, opener := newResolver(t, rendertest.Doc{Pages: 3, Spans: map[int][]render.Span{
		2: {{Text: "native words", X: 1, Y: 1, Width: 10, FontSize: 10}},
	}}, store)

	for _, page := range []int{1, 2, 3} {
		layer, err := r.Resolve(ctx, params(page, render.Rotate0, 5, 5))
		if err != nil {
			t.Fatalf("page %d: %v", page, err)
		}
		if layer.Mode != OcrFallback {
			t.Fatalf("page %d mode = %v", page, layer.Mode)
		}
	}
	if doc := opener.Document("doc.pdf"); doc != nil && doc.TextCalls() != 0 {
		t.Fatalf("native text extracted for an OCR document")
	}
	if m, _ := r.ModeFor(ctx, "doc.pdf"); m != OcrFallback {
		t.Fatalf("mode = %v", m)
	}
}

func TestPerPageFallback(t *testing.T) {
	store := &stubStore{texts: map[int]string{2: "# Titre\n\nLe texte de la page"}}
	r, _ := newResolver(t, rendertest.Doc{Pages: 2, Spans: map[int][]render.Span{
		1: helloSpans[1],
		2: {{Text: "   ", X: 1, Y: 1, FontSize: 10}},
	}}, store)
	ctx := context.Background()

	layer, err := r.Resolve(ctx, params(2, render.Rotate0, 200, 300))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if layer.Mode != OcrFallback || len(layer.Blocks) != 2 || layer.Blocks[0].Kind != BlockHeading {
		t.Fatalf("unexpected fallback layer %+v", layer)
	}
	layer, err = r.Resolve(ctx, params(1, render.Rotate0, 200, 300))
	if err != nil || layer.Mode != NativeText {
		t.Fatalf("page 1 should stay native: %+v, %v", layer, err)
	}
	if store.Checks() != 1 {
		t.Fatalf("ocr checked %d times, want 1", store.Checks())
	}
}

func TestOverlayFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("extraction", func(t *testing.T) {
		r, _ := newResolver(t, rendertest.Doc{Pages: 1, TextErr: errors.New("broken font")}, ocr.NewMemoryStore())
		_, err := r.Resolve(ctx, params(1, render.Rotate0, 200, 300))
		var failure *render.OverlayFailure
		if !errors.As(err, &failure) || !errors.Is(err, render.ErrOverlayResolution) {
			t.Fatalf("want OverlayFailure, got %v", err)
		}
	})

	t.Run("store not memoized on error", func(t *testing.T) {
		store := &stubStore{err: errors.New("db down")}
		r, _ := newResolver(t, rendertest.Doc{Pages: 1, Spans: helloSpans}, store)
		if _, err := r.Resolve(ctx, params(1, render.Rotate0, 200, 300)); !errors.Is(err, render.ErrOverlayResolution) {
			t.Fatalf("want overlay failure, got %v", err)
		}
		store.mu.Lock()
		store.err = nil
		store.mu.Unlock()
		if _, err := r.Resolve(ctx, params(1, render.Rotate0, 200, 300)); err != nil {
			t.Fatalf("retry: %v", err)
		}
		if store.Checks() != 2 {
			t.Fatalf("checks = %d, want 2", store.Checks())
		}
	})
}

func TestSearchHighlight(t *testing.T) {
	spans := map[int][]render.Span{1: {
		{Text: "Hello hello HELLO", X: 10, Y: 100, Width: 90, FontSize: 10},
		{Text: "مخطوط الرباط", X: 10, Y: 80, Width: 60, FontSize: 10},
	}}
	r, _ := newResolver(t, rendertest.Doc{Pages: 1, Spans: spans}, ocr.NewMemoryStore())
	p := params(1, render.Rotate0, 200, 300)
	p.Search = "hello"
	layer, err := r.Resolve(context.Background(), p)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if layer.Matches != 3 {
		t.Fatalf("matches = %d, want 3", layer.Matches)
	}
	html, err := layer.HTML()
	if err != nil {
		t.Fatalf("html: %v", err)
	}
	if strings.Count(html, `<mark class="highlight">`) != 3 || !strings.Contains(html, `<mark class="highlight">HELLO</mark>`) {
		t.Fatalf("highlights missing: %s", html)
	}
	if !strings.Contains(html, `dir="rtl"`) {
		t.Fatalf("arabic run not marked rtl: %s", html)
	}

	p.Search = "h"
	layer, _ = r.Resolve(context.Background(), p)
	if layer.Matches != 0 {
		t.Fatalf("single character term highlighted")
	}
}

func TestHighlight(t *testing.T) {
	segs := Highlight("abcABCabc", "bc")
	var got []string
	for _, s := range segs {
		if s.Highlight {
			got = append(got, s.Text)
		}
	}
	if strings.Join(got, ",") != "bc,BC,bc" {
		t.Fatalf("got %v", segs)
	}
	if segs := Highlight("abc", " "); len(segs) != 1 || segs[0].Highlight {
		t.Fatalf("blank term must not highlight: %v", segs)
	}
}

func TestParseTranscript(t *testing.T) {
	md := "# Kitab\n\nPremier paragraphe\nsur deux lignes.\n\n- un\n- deux\n\n```\nf. 12r\n```\n"
	blocks := parseTranscript(md, FormatMarkdown)
	kinds := []BlockKind{BlockHeading, BlockParagraph, BlockListItem, BlockListItem, BlockCode}
	if len(blocks) != len(kinds) {
		t.Fatalf("got %d blocks: %+v", len(blocks), blocks)
	}
	for i, k := range kinds {
		if blocks[i].Kind != k {
			t.Fatalf("block %d kind = %v, want %v", i, blocks[i].Kind, k)
		}
	}
	if blocks[1].Text != "Premier paragraphe sur deux lignes." {
		t.Fatalf("paragraph = %q", blocks[1].Text)
	}

	plain := parseTranscript("line one\nline two\n\n\nبسم الله", FormatPlain)
	if len(plain) != 2 || plain[0].Text != "line one line two" || plain[1].Dir != "rtl" {
		t.Fatalf("plain = %+v", plain)
	}

	layer := Layer{Mode: OcrFallback, Page: 4, Blocks: blocks}
	html, err := layer.HTML()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, "<h1>Kitab</h1>") || !strings.Contains(html, "<ul><li>un</li><li>deux</li></ul>") {
		t.Fatalf("html = %s", html)
	}
}

func TestViewDiscardsSupersededResults(t *testing.T) {
	block := make(chan struct{})
	opener := rendertest.NewOpener().
		Add("slow.pdf", rendertest.Doc{Pages: 1, Spans: helloSpans, TextBlock: block}).
		Add("fast.pdf", rendertest.Doc{Pages: 1, Spans: helloSpans})
	v := NewView(NewResolver(cache.New(opener), ocr.NewMemoryStore()))
	ctx := context.Background()
	size := measure.Size{Width: 200, Height: 300}

	done := make(chan error, 1)
	go func() {
		_, err := v.Update(ctx, Params{Request: render.Request{Source: "slow.pdf", Page: 1, Scale: 1}, Container: size})
		done <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if d := opener.Document("slow.pdf"); d != nil && d.TextCalls() > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("slow update never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := v.Update(ctx, Params{Request: render.Request{Source: "fast.pdf", Page: 1, Scale: 1}, Container: size}); err != nil {
		t.Fatalf("fast update: %v", err)
	}
	close(block)
	if err := <-done; !errors.Is(err, render.ErrSuperseded) {
		t.Fatalf("slow update: want ErrSuperseded, got %v", err)
	}
	cur, ok := v.Current()
	if !ok || cur.Source != "fast.pdf" {
		t.Fatalf("current layer = %+v, %v", cur, ok)
	}

	v.Unmount()
	if _, ok := v.Current(); ok {
		t.Fatalf("layer kept after unmount")
	}
}
