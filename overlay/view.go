package overlay

import (
	"context"
	"sync"

	"github.com/bnrm/pdfview/render"
)

// View is the overlay of one mounted page. Every Update supersedes the
// previous one: a result is applied only if no newer Update started and the
// view is still mounted.
type View struct {
	resolver *Resolver
	guard    render.Guard

	mu      sync.Mutex
	current *Layer
}

func NewView(r *Resolver) *View {
	return &View{resolver: r}
}

// Update resolves p and makes it the current layer. It returns
// render.ErrSuperseded when a newer Update or Unmount won. On an overlay
// failure the current layer is cleared so the page shows no overlay.
func (v *View) Update(ctx context.Context, p Params) (Layer, error) {
	token := v.guard.Next()
	layer, err := v.resolver.Resolve(ctx, p)

	v.mu.Lock()
	defer v.mu.Unlock()
	if !token.Current() {
		return Layer{}, render.ErrSuperseded
	}
	if err != nil {
		v.current = nil
		return Layer{}, err
	}
	v.current = &layer
	return layer, nil
}

// Current returns the applied layer, if any.
func (v *View) Current() (Layer, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.current == nil {
		return Layer{}, false
	}
	return *v.current, true
}

// Unmount discards the current layer and any Update still running.
func (v *View) Unmount() {
	v.guard.Invalidate()
	v.mu.Lock()
	v.current = nil
	v.mu.Unlock()
}
