package render

import "sync/atomic"

// Guard hands out generation tokens. Starting a new operation supersedes all
// tokens issued before it; results must only be applied while their token is
// still current.
type Guard struct {
	gen atomic.Uint64
}

// Token identifies one operation started from a Guard.
type Token struct {
	g   *Guard
	gen uint64
}

// Next supersedes every outstanding token and returns a fresh one.
func (g *Guard) Next() Token {
	return Token{g: g, gen: g.gen.Add(1)}
}

// Invalidate supersedes every outstanding token without starting a new
// operation, e.g. when a view is unmounted.
func (g *Guard) Invalidate() {
	g.gen.Add(1)
}

// Current reports whether t is the most recent token of its guard. The zero
// Token is never current.
func (t Token) Current() bool {
	return t.g != nil && t.g.gen.Load() == t.gen
}

// Generation exposes the token's sequence number for logging.
func (t Token) Generation() uint64 { return t.gen }
