// Package editor keeps an editor's comment decorations and zone widgets in
// step with the threads published by the comment registry.
package editor

import (
	"context"

	"github.com/a-h/templ"

	"github.com/ericfisherdev/commentsync/internal/domain/model"
)

// MouseTargetType classifies what a mouse event hit in the editor.
type MouseTargetType int

const (
	TargetUnknown MouseTargetType = iota
	TargetGutterGlyphMargin
	TargetGutterLineNumbers
	TargetGutterLineDecorations
	TargetContentText
)

// GutterMouseEvent is a mouse-down in the editor gutter. Widths are in pixels
// and describe the gutter layout at the time of the click.
type GutterMouseEvent struct {
	Target           MouseTargetType `json:"target"`
	Line             int             `json:"line"`
	LeftButton       bool            `json:"leftButton"`
	OffsetX          int             `json:"offsetX"`
	GlyphMarginLeft  int             `json:"glyphMarginLeft"`
	GlyphMarginWidth int             `json:"glyphMarginWidth"`
	LineNumbersWidth int             `json:"lineNumbersWidth"`
}

// DecorationStyle describes how a line decoration is drawn.
type DecorationStyle struct {
	ClassName string `json:"className"`
	WholeLine bool   `json:"isWholeLine"`
}

// Surface is the editor capability the coordinator drives. Implementations
// are only called from the coordinator's loop goroutine.
type Surface interface {
	// URI returns the resource of the document shown in the editor.
	URI() string

	// AddOrUpdateLineDecoration places a decoration at rng. An empty handle
	// adds a new decoration; otherwise the existing one is moved. The
	// returned handle identifies the decoration from then on.
	AddOrUpdateLineDecoration(handle string, rng model.Range, style DecorationStyle) string
	RemoveDecoration(handle string)
	// DecorationRange returns the live range of a decoration, which follows
	// edits to the document.
	DecorationRange(handle string) (model.Range, bool)

	OnGutterMouseDown(fn func(GutterMouseEvent)) model.Disposable
	LineHeight() int
	CreateZone() Zone
}

// Zone is an expandable region inserted between editor lines.
type Zone interface {
	Show(afterLine, heightInLines int)
	Hide()
	// SetContent replaces the zone's body and returns the rendered body
	// height in pixels.
	SetContent(c templ.Component) int
	Dispose()
}

// PickOption is one controller offered when several can start a thread on a line.
type PickOption struct {
	Owner string `json:"owner"`
	Label string `json:"label"`
}

// Picker asks the user to choose between controllers. ok is false when the
// user cancelled.
type Picker interface {
	Pick(ctx context.Context, line int, options []PickOption) (owner string, ok bool, err error)
}
