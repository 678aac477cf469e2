package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bnrm/pdfview/bookmark"
	"github.com/bnrm/pdfview/pageturn"
	"github.com/bnrm/pdfview/render"
	"github.com/bnrm/pdfview/schedule"
)

// Layout selects how many pages the reader shows at once.
type Layout int

const (
	SinglePage Layout = iota
	DoublePage
)

func (l Layout) String() string {
	if l == DoublePage {
		return "double"
	}
	return "single"
}

// ReaderConfig configures a Reader. Zero values take defaults.
type ReaderConfig struct {
	Layout    Layout
	Scale     float64
	Rotation  render.Rotation
	PageTurn  pageturn.Config
	Bookmarks *bookmark.Set
	// OnPage is told the visible pages after every navigation.
	OnPage func(pages []int)
	// AfterFunc drives page-turn animations. Defaults to real timers.
	AfterFunc schedule.AfterFunc
}

// Reader pages through one document in single or double page layout.
type Reader struct {
	viewer    *Viewer
	source    string
	cfg       ReaderConfig
	turn      *pageturn.Controller
	bookmarks *bookmark.Set
	views     [2]*PageView

	mu    sync.Mutex
	page  int
	total int
}

// NewReader opens source and positions the reader on page 1.
func (v *Viewer) NewReader(ctx context.Context, source string, cfg ReaderConfig) (*Reader, error) {
	total, err := v.PageCount(ctx, source)
	if err != nil {
		return nil, err
	}
	if cfg.Scale <= 0 {
		cfg.Scale = 1
	}
	r := &Reader{
		viewer:    v,
		source:    source,
		cfg:       cfg,
		bookmarks: cfg.Bookmarks,
		page:      1,
		total:     total,
		views:     [2]*PageView{v.NewPageView(), v.NewPageView()},
	}
	if r.bookmarks == nil {
		r.bookmarks = bookmark.New(nil)
	}
	if cfg.Layout == DoublePage {
		opts := []pageturn.Option{pageturn.OnChange(r.turned)}
		if cfg.AfterFunc != nil {
			opts = append(opts, pageturn.WithAfterFunc(cfg.AfterFunc))
		}
		r.turn = pageturn.New(1, total, cfg.PageTurn, opts...)
	}
	return r, nil
}

// PageTurn returns the drag controller in double page layout, nil otherwise.
func (r *Reader) PageTurn() *pageturn.Controller { return r.turn }

func (r *Reader) Page() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.page
}

// Visible returns the pages on screen.
func (r *Reader) Visible() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.visible()
}

func (r *Reader) visible() []int {
	if r.cfg.Layout == DoublePage && r.page+1 <= r.total {
		return []int{r.page, r.page + 1}
	}
	return []int{r.page}
}

// SetTotal applies a corrected page count.
func (r *Reader) SetTotal(n int) {
	r.mu.Lock()
	r.total = max(n, 1)
	r.page = min(r.page, r.total)
	r.mu.Unlock()
	if r.turn != nil {
		r.turn.SetTotal(n)
	}
}

// GoTo jumps to page, clamped to the document. It is refused while a page
// turn is animating.
func (r *Reader) GoTo(page int) bool {
	r.mu.Lock()
	page = min(max(page, 1), r.total)
	r.mu.Unlock()
	if r.turn != nil {
		if r.turn.State() == pageturn.Animating {
			return false
		}
		r.turn.SetPage(page)
	}
	r.turned(page)
	return true
}

// Next moves forward by one page, or one spread in double layout. It reports
// whether a move started.
func (r *Reader) Next() bool {
	if r.turn != nil {
		return r.turn.Next()
	}
	r.mu.Lock()
	page := r.page + 1
	ok := page <= r.total
	r.mu.Unlock()
	if ok {
		r.turned(page)
	}
	return ok
}

func (r *Reader) Prev() bool {
	if r.turn != nil {
		return r.turn.Prev()
	}
	r.mu.Lock()
	page := r.page - 1
	r.mu.Unlock()
	if page < 1 {
		return false
	}
	r.turned(page)
	return true
}

func (r *Reader) turned(page int) {
	r.mu.Lock()
	r.page = page
	pages := r.visible()
	r.mu.Unlock()
	if r.cfg.OnPage != nil {
		r.cfg.OnPage(pages)
	}
}

// Render renders the visible pages. Results superseded by a later navigation
// are reported as render.ErrSuperseded.
func (r *Reader) Render(ctx context.Context) ([]render.Image, error) {
	pages := r.Visible()
	imgs := make([]render.Image, len(pages))
	errs := make([]error, len(pages))
	var wg sync.WaitGroup
	for i, page := range pages {
		wg.Add(1)
		go func() {
			defer wg.Done()
			imgs[i], errs[i] = r.views[i].Show(ctx, PageRequest{
				Source:   r.source,
				Page:     page,
				Scale:    r.cfg.Scale,
				Rotation: r.cfg.Rotation,
				Priority: render.PriorityHigh,
			})
		}()
	}
	wg.Wait()
	if len(pages) == 1 {
		r.views[1].Unmount()
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return imgs, nil
}

// ToggleBookmark flips the bookmark on the first visible page.
func (r *Reader) ToggleBookmark(ctx context.Context) (bool, error) {
	page := r.Page()
	on, err := r.bookmarks.Toggle(ctx, page)
	if err != nil {
		return on, fmt.Errorf("bookmark page %d: %w", page, err)
	}
	return on, nil
}

// Bookmarked reports whether the first visible page is bookmarked.
func (r *Reader) Bookmarked() bool { return r.bookmarks.Has(r.Page()) }

// Bookmarks returns the underlying set.
func (r *Reader) Bookmarks() *bookmark.Set { return r.bookmarks }

func (r *Reader) Close() {
	for _, v := range r.views {
		v.Unmount()
	}
}
