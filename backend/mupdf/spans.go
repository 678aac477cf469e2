package mupdf

import (
	"math"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/bnrm/pdfview/render"
)

// Glyphs closer than this fraction of the font size are joined without a
// space; gaps wider than maxGap start a new span.
const (
	spaceGap = 0.15
	maxGap   = 1.5
)

// groupGlyphs merges consecutive glyphs on one baseline with one font size
// into spans.
func groupGlyphs(glyphs []pdf.Text) []render.Span {
	var (
		out []render.Span
		cur *render.Span
		sb  strings.Builder
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = strings.TrimSpace(sb.String())
		if cur.Text != "" {
			out = append(out, *cur)
		}
		cur = nil
		sb.Reset()
	}
	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		if cur != nil {
			end := cur.X + cur.Width
			gap := g.X - end
			sameLine := math.Abs(g.Y-cur.Y) < 0.5 && math.Abs(g.FontSize-cur.FontSize) < 0.01
			if !sameLine || gap < -cur.FontSize*spaceGap || gap > cur.FontSize*maxGap {
				flush()
			} else if gap > cur.FontSize*spaceGap && !strings.HasSuffix(sb.String(), " ") {
				sb.WriteByte(' ')
			}
		}
		if cur == nil {
			cur = &render.Span{X: g.X, Y: g.Y, FontSize: g.FontSize, Font: g.Font}
		}
		sb.WriteString(g.S)
		cur.Width = g.X + g.W - cur.X
	}
	flush()
	return out
}
