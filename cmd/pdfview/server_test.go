package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/bnrm/pdfview/config"
	"github.com/bnrm/pdfview/observability"
	"github.com/bnrm/pdfview/render"
	"github.com/bnrm/pdfview/render/rendertest"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) (*httptest.Server, *app) {
	t.Helper()
	cfg := config.Default()
	cfg.Prefetch.InitialDelay = 0
	cfg.Prefetch.Stagger = 0
	if mutate != nil {
		mutate(&cfg)
	}
	opener := rendertest.NewOpener().Add("ms.pdf", rendertest.Doc{
		Pages: 12,
		Spans: map[int][]render.Span{
			1: {{Text: "Kitab al-Manazir", X: 10, Y: 120, Width: 60, FontSize: 10}},
		},
	})
	a, err := newApp(cfg, opener, observability.NopLogger{})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	srv := httptest.NewServer(newServer(a))
	t.Cleanup(func() {
		srv.Close()
		a.Close()
	})
	return srv, a
}

func get(t *testing.T, url string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPageETag(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp := get(t, srv.URL+"/page?src=ms.pdf&page=2&scale=1", nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != render.FormatPNG {
		t.Fatalf("status %d type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	tag := resp.Header.Get("ETag")
	if tag == "" || resp.Header.Get("X-Page-Width") != "100" {
		t.Fatalf("headers = %v", resp.Header)
	}
	again := get(t, srv.URL+"/page?src=ms.pdf&page=2&scale=1", http.Header{"If-None-Match": {tag}})
	if again.StatusCode != http.StatusNotModified {
		t.Fatalf("revalidation status %d", again.StatusCode)
	}
	for url, want := range map[string]int{
		"/page?src=ms.pdf&page=13": http.StatusBadRequest,
		"/page?page=1":             http.StatusBadRequest,
		"/page?src=nope.pdf":       http.StatusBadGateway,
		"/page?src=ms.pdf&scale=x": http.StatusBadRequest,
	} {
		if got := get(t, srv.URL+url, nil).StatusCode; got != want {
			t.Fatalf("%s: status %d, want %d", url, got, want)
		}
	}
}

func TestRestrictedPages(t *testing.T) {
	srv, _ := newTestServer(t, func(c *config.Config) {
		c.Access.Display = "empty"
		c.Access.Script = "page <= 2 || page === totalPages"
	})
	for page, want := range map[string]int{"1": 200, "3": 403, "12": 200} {
		if got := get(t, srv.URL+"/page?src=ms.pdf&page="+page, nil).StatusCode; got != want {
			t.Fatalf("page %s: status %d, want %d", page, got, want)
		}
	}
	resp := get(t, srv.URL+"/window?src=ms.pdf&height=1600", nil)
	var w windowResult
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if w.Start != 1 || w.Current != 1 || len(w.Pages) == 0 {
		t.Fatalf("window = %+v", w)
	}
	for _, p := range w.Pages {
		if want := p.Page <= 2; p.Accessible != want || p.FetchRaster != want {
			t.Fatalf("page %d decision %+v", p.Page, p)
		}
		if !p.Accessible && p.Message == "" {
			t.Fatalf("page %d has no message", p.Page)
		}
	}
}

func TestPagePrefetchesNeighbours(t *testing.T) {
	srv, a := newTestServer(t, nil)
	if resp := get(t, srv.URL+"/page?src=ms.pdf&page=5&scale=1", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	a.viewer.Wait()
	for _, page := range []int{3, 4, 6, 7} {
		key := render.Request{Source: "ms.pdf", Page: page, Scale: 1}.Key()
		if !a.store.Contains(key) {
			t.Fatalf("neighbour %d not prefetched", page)
		}
	}
}

func TestRestrictedPagesAreNotPrefetched(t *testing.T) {
	srv, a := newTestServer(t, func(c *config.Config) {
		c.Access.Display = "empty"
		c.Access.Script = "page !== 7"
	})
	if resp := get(t, srv.URL+"/page?src=ms.pdf&page=5&scale=1", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	a.viewer.Wait()
	key := func(page int) render.Key { return render.Request{Source: "ms.pdf", Page: page, Scale: 1}.Key() }
	for _, page := range []int{3, 4, 6} {
		if !a.store.Contains(key(page)) {
			t.Fatalf("neighbour %d not prefetched", page)
		}
	}
	if a.store.Contains(key(7)) {
		t.Fatalf("restricted page 7 was prefetched")
	}

	resp, err := http.Post(srv.URL+"/preload?src=ms.pdf&scale=1&pages=7,8", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out struct{ Queued, Denied []int }
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(out.Queued, []int{8}) || !reflect.DeepEqual(out.Denied, []int{7}) {
		t.Fatalf("preload = %+v", out)
	}
	a.viewer.Wait()
	if a.store.Contains(key(7)) {
		t.Fatalf("restricted page 7 was preloaded")
	}
}

func TestAccessPolicyCompiledOncePerSource(t *testing.T) {
	_, a := newTestServer(t, func(c *config.Config) {
		c.Access.Display = "empty"
		c.Access.Script = "page === totalPages"
	})
	first, err := a.rules("ms.pdf", 12)
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	if !first.Decide(12).Accessible || first.Decide(11).Accessible {
		t.Fatalf("policy should only open the last page")
	}
	second, err := a.rules("ms.pdf", 13)
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	if second.Policy != first.Policy {
		t.Fatalf("policy recompiled for the same source")
	}
	if !second.Decide(13).Accessible || second.Decide(12).Accessible {
		t.Fatalf("page count update not applied")
	}
	other, err := a.rules("other.pdf", 5)
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	if other.Policy == first.Policy {
		t.Fatalf("sources must not share a policy")
	}
}

func TestWindowPrefetchesAhead(t *testing.T) {
	srv, a := newTestServer(t, nil)
	resp := get(t, srv.URL+"/window?src=ms.pdf&height=800&scroll=0&scale=1", nil)
	var w windowResult
	if err := json.NewDecoder(resp.Body).Decode(&w); err != nil {
		t.Fatalf("decode: %v", err)
	}
	// One visible page plus three buffer pages.
	if w.Start != 1 || w.End != 5 {
		t.Fatalf("range = %d-%d", w.Start, w.End)
	}
	a.viewer.Wait()
	for page := 6; page <= 8; page++ {
		key := render.Request{Source: "ms.pdf", Page: page, Scale: 1}.Key()
		if !a.store.Contains(key) {
			t.Fatalf("page %d not prefetched", page)
		}
	}
}

func TestOverlayEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp := get(t, srv.URL+"/overlay?src=ms.pdf&page=1&scale=1&width=100&height=150&q=manazir", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body bytes.Buffer
	body.ReadFrom(resp.Body)
	if !strings.Contains(body.String(), `<mark class="highlight">Manazir</mark>`) {
		t.Fatalf("markup = %s", body.String())
	}
	if resp.Header.Get("X-Overlay-Mode") != "native" || resp.Header.Get("X-Search-Matches") != "1" {
		t.Fatalf("headers = %v", resp.Header)
	}
	if got := get(t, srv.URL+"/overlay?src=ms.pdf&page=1&width=5&height=5", nil).StatusCode; got != http.StatusNoContent {
		t.Fatalf("unmeasured container: status %d", got)
	}
}

func TestPreloadClearAndStats(t *testing.T) {
	srv, a := newTestServer(t, nil)
	resp, err := http.Post(srv.URL+"/preload?src=ms.pdf&scale=1&pages=3,4,40", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var queued struct{ Queued []int }
	if err := json.NewDecoder(resp.Body).Decode(&queued); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(queued.Queued, []int{3, 4}) {
		t.Fatalf("queued = %v", queued.Queued)
	}
	a.viewer.Wait()

	var stats struct {
		Cache    struct{ Images int }
		Counters map[string]int64
	}
	if err := json.NewDecoder(get(t, srv.URL+"/stats", nil).Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Cache.Images != 2 || stats.Counters[observability.MetricPrefetchQueued] != 2 {
		t.Fatalf("stats = %+v", stats)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/cache?src=ms.pdf", nil)
	del, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	del.Body.Close()
	if del.StatusCode != http.StatusNoContent || a.store.Len() != 0 {
		t.Fatalf("clear: status %d len %d", del.StatusCode, a.store.Len())
	}
}

func TestBookmarkEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, err := http.Post(srv.URL+"/bookmark?user=u1&doc=ms&page=3", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("without storage: status %d", resp.StatusCode)
	}

	dbPath := filepath.Join(t.TempDir(), "viewer.db")
	srv, _ = newTestServer(t, func(c *config.Config) { c.Storage.SQLitePath = dbPath })
	for _, want := range []bool{true, false} {
		resp, err := http.Post(srv.URL+"/bookmark?user=u1&doc=ms&page=3", "", nil)
		if err != nil {
			t.Fatal(err)
		}
		var out struct {
			Bookmarked bool
			Pages      []int
		}
		err = json.NewDecoder(resp.Body).Decode(&out)
		resp.Body.Close()
		if err != nil || out.Bookmarked != want {
			t.Fatalf("toggle = %+v, %v; want %v", out, err, want)
		}
	}
}

func TestParsePages(t *testing.T) {
	got, err := parsePages("1-3, 7", 10)
	if err != nil || !reflect.DeepEqual(got, []int{1, 2, 3, 7}) {
		t.Fatalf("parsePages = %v, %v", got, err)
	}
	if all, _ := parsePages("", 3); !reflect.DeepEqual(all, []int{1, 2, 3}) {
		t.Fatalf("all pages = %v", all)
	}
	for _, bad := range []string{"x", "3-1", "2-y"} {
		if _, err := parsePages(bad, 10); err == nil {
			t.Fatalf("%q accepted", bad)
		}
	}
}
