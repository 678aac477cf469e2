package viewer

import (
	"context"
	"sync"

	"github.com/bnrm/pdfview/overlay"
	"github.com/bnrm/pdfview/render"
)

// PageView is one mounted page slot. Only the most recent Show may set its
// image; results of earlier calls are discarded with render.ErrSuperseded.
type PageView struct {
	viewer  *Viewer
	guard   render.Guard
	overlay *overlay.View

	mu      sync.Mutex
	current render.Image
	ok      bool
}

func (v *Viewer) NewPageView() *PageView {
	return &PageView{viewer: v, overlay: overlay.NewView(v.resolver)}
}

// Show renders req and makes it the displayed image unless a newer Show or
// Unmount happened in the meantime.
func (p *PageView) Show(ctx context.Context, req PageRequest) (render.Image, error) {
	token := p.guard.Next()
	img, err := p.viewer.Render(ctx, req)

	p.mu.Lock()
	defer p.mu.Unlock()
	if !token.Current() {
		return render.Image{}, render.ErrSuperseded
	}
	if err != nil {
		p.current, p.ok = render.Image{}, false
		return render.Image{}, err
	}
	p.current, p.ok = img, true
	return img, nil
}

// Current returns the displayed image.
func (p *PageView) Current() (render.Image, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.ok
}

// Overlay resolves the text layer of the slot with the same supersession rule.
func (p *PageView) Overlay(ctx context.Context, params overlay.Params) (overlay.Layer, error) {
	return p.overlay.Update(ctx, params)
}

func (p *PageView) Unmount() {
	p.guard.Invalidate()
	p.overlay.Unmount()
	p.mu.Lock()
	p.current, p.ok = render.Image{}, false
	p.mu.Unlock()
}
