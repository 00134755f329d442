package editor

import (
	"math"

	"github.com/ericfisherdev/commentsync/internal/domain/model"
)

// Fixed geometry of the review widget, in pixels.
const (
	headHeightFactor = 1.2
	zonePadding      = 8
)

// HeightInLines converts a rendered body height into the number of editor
// lines the zone needs. The head, arrow and frame are derived from the line
// height. The result is always rounded up so content is never clipped.
func HeightInLines(lineHeight, bodyHeight int) int {
	if lineHeight <= 0 {
		return 1
	}
	lh := float64(lineHeight)
	head := math.Ceil(lh * headHeightFactor)
	arrow := math.Round(lh / 3)
	frame := math.Round(lh/9) * 2

	total := head + float64(bodyHeight) + arrow + frame + zonePadding
	return int(math.Ceil(total / lh))
}

// ThreadViewport is the zone widget showing one thread in one editor. It owns
// its zone and glyph; the coordinator owns the viewport. All methods must be
// called on the coordinator's loop.
type ThreadViewport struct {
	owner    string
	thread   *model.CommentThread
	surface  Surface
	renderer Renderer
	zone     Zone
	glyph    *GlyphMarker

	pending  string
	expanded bool
	height   int
	disposed bool

	// discard is called when collapsing leaves an empty thread behind.
	discard func(*ThreadViewport)
	subs    model.Disposables
}

// NewThreadViewport creates a collapsed viewport with its glyph on the
// thread's start line. Thread notifications are delivered through post so
// they run on the coordinator's loop.
func NewThreadViewport(
	owner string,
	thread *model.CommentThread,
	surface Surface,
	renderer Renderer,
	post func(func()),
	discard func(*ThreadViewport),
) *ThreadViewport {
	v := &ThreadViewport{
		owner:    owner,
		thread:   thread,
		surface:  surface,
		renderer: renderer,
		zone:     surface.CreateZone(),
		glyph:    NewGlyphMarker(surface, thread.Range().StartLine),
		discard:  discard,
	}

	v.subs.Add(thread.OnDidChangeComments(func([]model.Comment) { post(v.Update) }))
	v.subs.Add(thread.OnDidChangeLabel(func(string) { post(v.Update) }))
	v.subs.Add(thread.OnDidChangeRange(func(model.Range) { post(v.Update) }))
	v.subs.Add(thread.OnDidChangeCollapsibleState(func(model.CollapsibleState) { post(v.Update) }))
	v.subs.Add(thread.OnDidChangeInput(func(in *model.CommentInput) {
		post(func() {
			if in != nil {
				v.pending = in.Value
			}
		})
	}))
	return v
}

func (v *ThreadViewport) Owner() string                { return v.owner }
func (v *ThreadViewport) Thread() *model.CommentThread { return v.thread }
func (v *ThreadViewport) IsExpanded() bool             { return v.expanded }
func (v *ThreadViewport) IsDisposed() bool             { return v.disposed }
func (v *ThreadViewport) HeightInLines() int           { return v.height }

// GlyphLine returns the line the viewport's glyph currently sits on.
func (v *ThreadViewport) GlyphLine() int { return v.glyph.Line() }

// Pending returns the unsent draft held by the viewport.
func (v *ThreadViewport) Pending() string {
	if in := v.thread.Input(); in != nil && in.Value != "" {
		return in.Value
	}
	return v.pending
}

// SetPending seeds the viewport with a restored draft.
func (v *ThreadViewport) SetPending(text string) {
	v.pending = text
}

// Display expands the viewport at line. It is a no-op when already expanded
// or when the thread itself asks to stay collapsed.
func (v *ThreadViewport) Display(line int) {
	if v.disposed || v.expanded || v.thread.CollapsibleState() != model.Expanded {
		return
	}
	if v.glyph.Line() != line {
		v.glyph.SetLine(line)
	}
	v.height = v.render()
	v.expanded = true
	v.zone.Show(line, v.height)
}

// Update re-renders from the thread's current state, moving the glyph when
// the thread's anchor moved and following the thread's collapse state.
func (v *ThreadViewport) Update() {
	if v.disposed || v.thread.IsDisposed() {
		return
	}

	line := v.thread.Range().StartLine
	moved := v.glyph.Line() != line
	if moved {
		v.glyph.SetLine(line)
	}

	height := v.render()
	resized := height != v.height
	v.height = height

	switch {
	case v.thread.CollapsibleState() == model.Expanded:
		if !v.expanded || moved || resized {
			v.expanded = true
			v.zone.Show(line, v.height)
		}
	case v.expanded:
		v.expanded = false
		v.zone.Hide()
	}
}

// ToggleExpand collapses an expanded viewport, or expands a collapsed one at
// its glyph line.
func (v *ThreadViewport) ToggleExpand() {
	if v.disposed {
		return
	}
	if v.expanded {
		v.Collapse()
		return
	}
	v.thread.SetCollapsibleState(model.Expanded)
	v.Display(v.glyph.Line())
}

// Collapse hides the viewport. A thread without comments is discarded instead.
func (v *ThreadViewport) Collapse() {
	if v.disposed {
		return
	}
	if v.thread.CommentCount() == 0 {
		if v.discard != nil {
			v.discard(v)
		}
		return
	}
	v.Hide()
}

// Hide collapses the viewport and records the state on the thread. The glyph
// stays in place.
func (v *ThreadViewport) Hide() {
	if v.disposed {
		return
	}
	v.thread.SetCollapsibleState(model.Collapsed)
	if v.expanded {
		v.expanded = false
		v.zone.Hide()
	}
}

// Dispose tears the viewport down: zone first, then glyph, then thread
// listeners. Later calls are no-ops.
func (v *ThreadViewport) Dispose() {
	if v.disposed {
		return
	}
	v.disposed = true
	v.expanded = false
	v.zone.Dispose()
	v.glyph.Dispose()
	v.subs.Dispose()
}

func (v *ThreadViewport) render() int {
	body := v.zone.SetContent(v.renderer.Render(ThreadView{
		Label:    model.ThreadLabel(v.thread),
		Comments: v.thread.Comments(),
		Pending:  v.Pending(),
	}))
	return HeightInLines(v.surface.LineHeight(), body)
}
