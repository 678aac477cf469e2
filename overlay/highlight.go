package overlay

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/search"
)

// DefaultMinSearchLength is the shortest term that is highlighted.
const DefaultMinSearchLength = 2

// Segment is a piece of a text unit, highlighted when it matches the search
// term.
type Segment struct {
	Text      string
	Highlight bool
}

// highlighter finds case-insensitive occurrences of one term.
type highlighter struct {
	pattern *search.Pattern
}

// newHighlighter returns nil when term is too short to highlight.
func newHighlighter(term string, minLen int) *highlighter {
	term = strings.TrimSpace(term)
	if utf8.RuneCountInString(term) < minLen || term == "" {
		return nil
	}
	m := search.New(language.Und, search.IgnoreCase)
	return &highlighter{pattern: m.CompileString(term)}
}

// split cuts text into segments, marking every match. The second result is
// the number of matches.
func (h *highlighter) split(text string) ([]Segment, int) {
	if h == nil || text == "" {
		return []Segment{{Text: text}}, 0
	}
	var segs []Segment
	matches := 0
	rest := text
	for rest != "" {
		start, end := h.pattern.IndexString(rest)
		if start < 0 || end <= start {
			break
		}
		if start > 0 {
			segs = append(segs, Segment{Text: rest[:start]})
		}
		segs = append(segs, Segment{Text: rest[start:end], Highlight: true})
		matches++
		rest = rest[end:]
	}
	if rest != "" {
		segs = append(segs, Segment{Text: rest})
	}
	return segs, matches
}

// Highlight splits text on case-insensitive matches of term. Terms shorter
// than two characters leave text untouched.
func Highlight(text, term string) []Segment {
	segs, _ := newHighlighter(term, DefaultMinSearchLength).split(text)
	return segs
}
