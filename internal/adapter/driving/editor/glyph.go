package editor

import "github.com/ericfisherdev/commentsync/internal/domain/model"

var glyphStyle = DecorationStyle{ClassName: "comment-range-glyph comment-thread", WholeLine: true}

// GlyphMarker owns the single gutter decoration marking a thread's line.
type GlyphMarker struct {
	surface    Surface
	decoration string
	line       int
	disposed   bool
}

// NewGlyphMarker places a glyph on line.
func NewGlyphMarker(surface Surface, line int) *GlyphMarker {
	g := &GlyphMarker{surface: surface}
	g.SetLine(line)
	return g
}

// SetLine moves the glyph to line.
func (g *GlyphMarker) SetLine(line int) {
	if g.disposed {
		return
	}
	g.line = line
	g.decoration = g.surface.AddOrUpdateLineDecoration(g.decoration, model.LineRange(line), glyphStyle)
}

// Line returns the glyph's current line. The decoration's live range wins
// over the cached line because edits move decorations.
func (g *GlyphMarker) Line() int {
	if !g.disposed && g.decoration != "" {
		if r, ok := g.surface.DecorationRange(g.decoration); ok {
			return r.StartLine
		}
	}
	return g.line
}

// Dispose removes the decoration. Later calls are no-ops.
func (g *GlyphMarker) Dispose() {
	if g.disposed {
		return
	}
	g.disposed = true
	if g.decoration != "" {
		g.surface.RemoveDecoration(g.decoration)
		g.decoration = ""
	}
}
