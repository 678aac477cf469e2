package overlay

import "strings"

// Run is one positioned piece of native text, in container pixels. Left and
// Top locate the run's top-left corner in reading orientation; the run is
// turned by Angle around that corner.
type Run struct {
	Text     string
	Left     float64
	Top      float64
	Width    float64
	Height   float64
	FontSize float64
	// Angle is the clockwise rotation of the run, matching the page rotation.
	Angle    int
	Dir      string
	Segments []Segment
}

type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockHeading
	BlockListItem
	BlockCode
)

// Block is one unpositioned unit of an OCR transcript.
type Block struct {
	Kind     BlockKind
	Level    int
	Text     string
	Dir      string
	Segments []Segment
}

// Layer is the resolved overlay of one page. Native layers carry Runs sized
// for Width x Height; transcript layers carry Blocks.
type Layer struct {
	Source string
	Page   int
	Mode   Mode
	Width  float64
	Height float64
	// Scale maps page points to container pixels for native layers.
	Scale   float64
	Runs    []Run
	Blocks  []Block
	Matches int
}

// Empty reports whether the layer has nothing to show.
func (l Layer) Empty() bool { return len(l.Runs) == 0 && len(l.Blocks) == 0 }

// Text returns the layer's plain text, one line per run or block.
func (l Layer) Text() string {
	var sb strings.Builder
	for _, r := range l.Runs {
		sb.WriteString(r.Text)
		sb.WriteByte('\n')
	}
	for _, b := range l.Blocks {
		sb.WriteString(b.Text)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (l *Layer) highlight(h *highlighter) {
	l.Matches = 0
	for i := range l.Runs {
		var n int
		l.Runs[i].Segments, n = h.split(l.Runs[i].Text)
		l.Matches += n
	}
	for i := range l.Blocks {
		var n int
		l.Blocks[i].Segments, n = h.split(l.Blocks[i].Text)
		l.Matches += n
	}
}
