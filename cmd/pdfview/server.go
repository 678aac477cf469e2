package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/bnrm/pdfview/measure"
	"github.com/bnrm/pdfview/observability"
	"github.com/bnrm/pdfview/overlay"
	"github.com/bnrm/pdfview/render"
	"github.com/bnrm/pdfview/viewer"
)

type server struct {
	app *app
	mux *http.ServeMux
}

func newServer(a *app) *server {
	s := &server{app: a, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /page", s.handlePage)
	s.mux.HandleFunc("GET /overlay", s.handleOverlay)
	s.mux.HandleFunc("GET /window", s.handleWindow)
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.HandleFunc("POST /preload", s.handlePreload)
	s.mux.HandleFunc("DELETE /cache", s.handleClear)
	s.mux.HandleFunc("POST /bookmark", s.handleBookmark)
	return s
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type query struct {
	r   *http.Request
	err error
}

func (q *query) str(name string, required bool) string {
	v := q.r.URL.Query().Get(name)
	if v == "" && required && q.err == nil {
		q.err = errors.New("missing " + name)
	}
	return v
}

func (q *query) int(name string, def int) int {
	v := q.r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil && q.err == nil {
		q.err = errors.New("bad " + name)
	}
	return n
}

func (q *query) float(name string, def float64) float64 {
	v := q.r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil && q.err == nil {
		q.err = errors.New("bad " + name)
	}
	return f
}

func (q *query) pages(name string) []int {
	var out []int
	for _, part := range strings.Split(q.r.URL.Query().Get(name), ",") {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			if q.err == nil {
				q.err = errors.New("bad " + name)
			}
			return nil
		}
		out = append(out, n)
	}
	return out
}

func (s *server) pageRequest(q *query) viewer.PageRequest {
	return viewer.PageRequest{
		Source:   q.str("src", true),
		Page:     q.int("page", 1),
		Scale:    q.float("scale", s.app.cfg.Render.DefaultScale),
		Rotation: render.NormalizeRotation(q.int("rotate", 0)),
	}
}

// etag hashes the encoded raster, so equal pixels share a tag across scales
// and sources.
func etag(data []byte) string {
	sum := blake2b.Sum256(data)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

func (s *server) handlePage(w http.ResponseWriter, r *http.Request) {
	q := &query{r: r}
	req := s.pageRequest(q)
	if q.err != nil {
		http.Error(w, q.err.Error(), http.StatusBadRequest)
		return
	}
	decision, err := s.app.pageAllowed(r.Context(), req.Source, req.Page)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !decision.FetchRaster {
		http.Error(w, decision.Message, http.StatusForbidden)
		return
	}
	img, err := s.app.viewer.Render(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	tag := etag(img.Data)
	w.Header().Set("ETag", tag)
	w.Header().Set("Cache-Control", "private, max-age=300")
	if decision.Blur {
		w.Header().Set("X-Page-Restricted", "blur")
	}
	if match := r.Header.Get("If-None-Match"); match != "" && match == tag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", img.Format)
	w.Header().Set("X-Page-Width", strconv.Itoa(img.Width))
	w.Header().Set("X-Page-Height", strconv.Itoa(img.Height))
	w.Write(img.Data)
}

func (s *server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	q := &query{r: r}
	req := s.pageRequest(q)
	container := measure.Size{Width: q.float("width", 0), Height: q.float("height", 0)}
	search := q.str("q", false)
	doc := q.str("doc", false)
	if q.err != nil {
		http.Error(w, q.err.Error(), http.StatusBadRequest)
		return
	}
	decision, err := s.app.pageAllowed(r.Context(), req.Source, req.Page)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !decision.Accessible {
		http.Error(w, decision.Message, http.StatusForbidden)
		return
	}
	layer, err := s.app.viewer.Overlay(r.Context(), overlay.Params{
		Request:    render.Request{Source: req.Source, Page: req.Page, Scale: req.Scale, Rotation: req.Rotation},
		DocumentID: doc,
		Container:  container,
		Search:     search,
	})
	if errors.Is(err, overlay.ErrNotMeasured) {
		// The host retries once its container has a size.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	markup, err := layer.HTML()
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Overlay-Mode", layer.Mode.String())
	w.Header().Set("X-Search-Matches", strconv.Itoa(layer.Matches))
	w.Write([]byte(markup))
}

func (s *server) handleWindow(w http.ResponseWriter, r *http.Request) {
	q := &query{r: r}
	source := q.str("src", true)
	scroll := q.float("scroll", 0)
	height := q.float("height", 0)
	zoom := q.float("zoom", 100)
	scale := q.float("scale", s.app.cfg.Render.DefaultScale)
	if q.err != nil {
		http.Error(w, q.err.Error(), http.StatusBadRequest)
		return
	}
	out, err := s.app.window(r.Context(), source, scroll, height, zoom, scale)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, out)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"cache":    s.app.store.Stats(),
		"counters": s.app.metrics.Snapshot(),
	})
}

func (s *server) handlePreload(w http.ResponseWriter, r *http.Request) {
	q := &query{r: r}
	req := s.pageRequest(q)
	pages := q.pages("pages")
	if q.err != nil {
		http.Error(w, q.err.Error(), http.StatusBadRequest)
		return
	}
	allowed := pages[:0:0]
	denied := []int{}
	for _, page := range pages {
		d, err := s.app.pageAllowed(r.Context(), req.Source, page)
		if err != nil {
			s.fail(w, err)
			return
		}
		if d.FetchRaster {
			allowed = append(allowed, page)
		} else {
			denied = append(denied, page)
		}
	}
	queued, err := s.app.viewer.PreloadPages(context.WithoutCancel(r.Context()), req.Source, allowed, req.Scale, req.Rotation)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, map[string]any{"queued": queued, "denied": denied})
}

func (s *server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.app.viewer.ClearCache(r.URL.Query().Get("src"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleBookmark(w http.ResponseWriter, r *http.Request) {
	if s.app.db == nil {
		http.Error(w, "bookmarks need storage.sqlite_path", http.StatusNotImplemented)
		return
	}
	q := &query{r: r}
	user := q.str("user", true)
	doc := q.str("doc", true)
	page := q.int("page", 0)
	if q.err != nil {
		http.Error(w, q.err.Error(), http.StatusBadRequest)
		return
	}
	set, err := s.app.db.BookmarkSet(r.Context(), user, doc)
	if err != nil {
		s.fail(w, err)
		return
	}
	on, err := set.Toggle(r.Context(), page)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, map[string]any{"page": page, "bookmarked": on, "pages": set.Pages()})
}

func (s *server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, render.ErrInvalidRequest), errors.Is(err, render.ErrPageOutOfRange):
		status = http.StatusBadRequest
	case errors.Is(err, render.ErrDocumentLoad):
		status = http.StatusBadGateway
	}
	if status >= 500 {
		s.app.log.Error("request failed", observability.Error("error", err))
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	writeJSONTo(w, v)
}

func writeJSONTo(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
