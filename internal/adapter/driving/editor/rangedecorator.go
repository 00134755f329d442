package editor

import "github.com/ericfisherdev/commentsync/internal/domain/model"

var commentingRangeStyle = DecorationStyle{ClassName: "comment-diff-added", WholeLine: true}

// CommentAction is a controller able to start a thread at a given line.
type CommentAction struct {
	Owner string
	Label string
	Range model.Range
}

// CommentingRangeDecorator marks the ranges on which controllers accept new
// threads and answers which controllers match a line.
type CommentingRangeDecorator struct {
	surface     Surface
	decorations []string
	actions     []CommentAction
}

// Update replaces the decorations on surface with the commenting ranges of
// infos. A nil surface only clears.
func (d *CommentingRangeDecorator) Update(surface Surface, infos []model.CommentInfo) {
	d.clear()
	d.surface = surface
	if surface == nil {
		return
	}

	for _, info := range infos {
		for _, r := range info.CommentingRanges.Ranges {
			d.actions = append(d.actions, CommentAction{Owner: info.Owner, Label: info.Label, Range: r})
			d.decorations = append(d.decorations, surface.AddOrUpdateLineDecoration("", r, commentingRangeStyle))
		}
	}
}

// Matched returns one action per controller whose commenting ranges contain
// line, in the order the controllers were reported.
func (d *CommentingRangeDecorator) Matched(line int) []CommentAction {
	var out []CommentAction
	seen := make(map[string]struct{})
	for _, a := range d.actions {
		if !a.Range.ContainsLine(line) {
			continue
		}
		if _, ok := seen[a.Owner]; ok {
			continue
		}
		seen[a.Owner] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Dispose removes every decoration.
func (d *CommentingRangeDecorator) Dispose() {
	d.clear()
	d.surface = nil
}

func (d *CommentingRangeDecorator) clear() {
	if d.surface != nil {
		for _, h := range d.decorations {
			d.surface.RemoveDecoration(h)
		}
	}
	d.decorations = nil
	d.actions = nil
}
