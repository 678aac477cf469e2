package overlay

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// TranscriptFormat tells how stored OCR text is structured.
type TranscriptFormat int

const (
	// FormatMarkdown transcripts use headings, paragraphs and lists.
	FormatMarkdown TranscriptFormat = iota
	// FormatPlain transcripts are paragraphs separated by blank lines.
	FormatPlain
)

// ParseTranscriptFormat maps "markdown" or "plain" to a format.
func ParseTranscriptFormat(s string) (TranscriptFormat, bool) {
	switch strings.ToLower(s) {
	case "", "markdown", "md":
		return FormatMarkdown, true
	case "plain", "text":
		return FormatPlain, true
	}
	return FormatMarkdown, false
}

func parseTranscript(src string, format TranscriptFormat) []Block {
	if format == FormatPlain {
		return plainBlocks(src)
	}
	source := []byte(src)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))
	var blocks []Block
	walkTranscript(doc, source, &blocks)
	return blocks
}

func walkTranscript(node ast.Node, source []byte, blocks *[]Block) {
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch n := child.(type) {
		case *ast.Heading:
			appendBlock(blocks, Block{Kind: BlockHeading, Level: n.Level, Text: inlineText(n, source)})
		case *ast.Paragraph, *ast.TextBlock:
			appendBlock(blocks, Block{Kind: BlockParagraph, Text: inlineText(n, source)})
		case *ast.ListItem:
			appendBlock(blocks, Block{Kind: BlockListItem, Text: inlineText(n, source)})
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			appendBlock(blocks, Block{Kind: BlockCode, Text: lineText(n, source)})
		case *ast.List, *ast.Blockquote:
			walkTranscript(n, source, blocks)
		}
	}
}

func appendBlock(blocks *[]Block, b Block) {
	b.Text = strings.TrimSpace(b.Text)
	if b.Text == "" {
		return
	}
	b.Dir = direction(b.Text)
	*blocks = append(*blocks, b)
}

// inlineText concatenates the text leaves under n. Soft breaks become spaces.
func inlineText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		case *ast.Paragraph, *ast.TextBlock:
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(sb.String()), " ")
}

func lineText(n ast.Node, source []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
	return sb.String()
}

func plainBlocks(src string) []Block {
	var blocks []Block
	var para []string
	flush := func() {
		if len(para) > 0 {
			appendBlock(&blocks, Block{Kind: BlockParagraph, Text: strings.Join(para, " ")})
			para = para[:0]
		}
	}
	for _, line := range strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		para = append(para, line)
	}
	flush()
	return blocks
}
