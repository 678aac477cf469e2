package overlay

import (
	"bytes"
	"fmt"
	"strconv"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTML renders the layer as a fragment: a positioned text layer for native
// pages, flowing transcript markup for OCR pages. Matches are wrapped in
// <mark class="highlight">.
func (l Layer) HTML() (string, error) {
	root := element(atom.Div)
	root.Attr = append(root.Attr, html.Attribute{Key: "data-page", Val: strconv.Itoa(l.Page)})
	if l.Mode == OcrFallback {
		setAttr(root, "class", "ocrLayer")
		appendBlocks(root, l.Blocks)
	} else {
		setAttr(root, "class", "textLayer")
		setAttr(root, "style", fmt.Sprintf("width:%spx;height:%spx", px(l.Width), px(l.Height)))
		for _, r := range l.Runs {
			root.AppendChild(runNode(r))
		}
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return "", fmt.Errorf("render overlay: %w", err)
	}
	return buf.String(), nil
}

func runNode(r Run) *html.Node {
	span := element(atom.Span)
	style := fmt.Sprintf("left:%spx;top:%spx;width:%spx;height:%spx;font-size:%spx",
		px(r.Left), px(r.Top), px(r.Width), px(r.Height), px(r.FontSize))
	if r.Angle != 0 {
		style += fmt.Sprintf(";transform-origin:0 0;transform:rotate(%ddeg)", r.Angle)
	}
	setAttr(span, "style", style)
	if r.Dir != "" {
		setAttr(span, "dir", r.Dir)
	}
	appendSegments(span, r.Text, r.Segments)
	return span
}

func appendBlocks(root *html.Node, blocks []Block) {
	var list *html.Node
	for _, b := range blocks {
		var n *html.Node
		switch b.Kind {
		case BlockHeading:
			n = element(headingAtom(b.Level))
		case BlockListItem:
			n = element(atom.Li)
		case BlockCode:
			n = element(atom.Pre)
		default:
			n = element(atom.P)
		}
		if b.Dir != "" {
			setAttr(n, "dir", b.Dir)
		}
		appendSegments(n, b.Text, b.Segments)
		if b.Kind != BlockListItem {
			list = nil
			root.AppendChild(n)
			continue
		}
		if list == nil {
			list = element(atom.Ul)
			root.AppendChild(list)
		}
		list.AppendChild(n)
	}
}

func appendSegments(parent *html.Node, text string, segs []Segment) {
	if len(segs) == 0 {
		parent.AppendChild(&html.Node{Type: html.TextNode, Data: text})
		return
	}
	for _, s := range segs {
		t := &html.Node{Type: html.TextNode, Data: s.Text}
		if !s.Highlight {
			parent.AppendChild(t)
			continue
		}
		mark := element(atom.Mark)
		setAttr(mark, "class", "highlight")
		mark.AppendChild(t)
		parent.AppendChild(mark)
	}
}

func headingAtom(level int) atom.Atom {
	switch level {
	case 1:
		return atom.H1
	case 2:
		return atom.H2
	case 3:
		return atom.H3
	case 4:
		return atom.H4
	case 5:
		return atom.H5
	}
	return atom.H6
}

func element(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}

func setAttr(n *html.Node, key, val string) {
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func px(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
