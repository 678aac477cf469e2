// Package access decides how pages a reader may not see are presented.
package access

import (
	"fmt"
	"strings"
)

// Display is the presentation of an inaccessible page.
type Display int

const (
	// Blur fetches the raster and shows it blurred under the denial message.
	Blur Display = iota
	// Empty shows only the denial message. The raster is never fetched.
	Empty
	// Hidden leaves the page out entirely.
	Hidden
)

func (d Display) String() string {
	switch d {
	case Empty:
		return "empty"
	case Hidden:
		return "hidden"
	}
	return "blur"
}

// ParseDisplay maps "blur", "empty" or "hidden" to a Display.
func ParseDisplay(s string) (Display, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "blur":
		return Blur, nil
	case "empty":
		return Empty, nil
	case "hidden":
		return Hidden, nil
	}
	return Blur, fmt.Errorf("access: unknown display %q", s)
}

// Policy reports whether a 1-based page may be shown.
type Policy interface {
	Accessible(page int) bool
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(page int) bool

func (f PolicyFunc) Accessible(page int) bool { return f(page) }

// AllowAll grants every page.
var AllowAll Policy = PolicyFunc(func(int) bool { return true })

// FreePages grants the first n pages, the usual preview of a restricted work.
func FreePages(n int) Policy {
	return PolicyFunc(func(page int) bool { return page >= 1 && page <= n })
}

// PageSet grants exactly the listed pages.
type PageSet map[int]bool

func NewPageSet(pages ...int) PageSet {
	s := make(PageSet, len(pages))
	for _, p := range pages {
		s[p] = true
	}
	return s
}

func (s PageSet) Accessible(page int) bool { return s[page] }

// Except grants every page but the listed ones.
func Except(pages ...int) Policy {
	denied := NewPageSet(pages...)
	return PolicyFunc(func(page int) bool { return !denied[page] })
}

// DefaultMessage is shown on restricted pages when none is configured.
const DefaultMessage = "Cette page n'est pas accessible."

// Rules combine a policy with the presentation of denied pages.
type Rules struct {
	Policy  Policy
	Display Display
	Message string
}

// Decision is the outcome for one page.
type Decision struct {
	Page       int
	Accessible bool
	// Mount is false when the page must not appear at all.
	Mount bool
	// FetchRaster is false when the page image must not be requested.
	FetchRaster bool
	Blur        bool
	Message     string
}

// Decide applies the rules to page. Zero Rules grant everything.
func (r Rules) Decide(page int) Decision {
	if r.Policy == nil || r.Policy.Accessible(page) {
		return Decision{Page: page, Accessible: true, Mount: true, FetchRaster: true}
	}
	msg := r.Message
	if msg == "" {
		msg = DefaultMessage
	}
	switch r.Display {
	case Hidden:
		return Decision{Page: page}
	case Empty:
		return Decision{Page: page, Mount: true, Message: msg}
	default:
		return Decision{Page: page, Mount: true, FetchRaster: true, Blur: true, Message: msg}
	}
}
