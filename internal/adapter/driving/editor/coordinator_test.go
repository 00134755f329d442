package editor

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/commentsync/internal/domain/model"
)

const docA = "file:///a.ts"

func ptr[T any](v T) *T { return &v }

func byLine(vs []ViewportState) map[int]ViewportState {
	out := make(map[int]ViewportState, len(vs))
	for _, v := range vs {
		out[v.Line] = v
	}
	return out
}

func TestCoordinator_ShowsThreadCollapsedThenExpands(t *testing.T) {
	h := newHarness(t, nil, nil)
	p := &echoProvider{ranges: map[string][]model.Range{docA: everywhere}}
	handle := h.register(p, "acme")

	s := newFakeSurface(docA)
	h.coord.SetEditor(s)
	waitRanges(t, s, 1)

	_, err := h.host.CreateCommentThread(handle, 1, "t-1", docA, model.Range{StartLine: 3, StartColumn: 1, EndLine: 3, EndColumn: 1}, "test.ext")
	require.NoError(t, err)

	vs := h.waitViewports(t, 1)
	assert.Equal(t, h.owner(t, handle), vs[0].Owner)
	assert.Equal(t, "t-1", vs[0].ThreadID)
	assert.Equal(t, 3, vs[0].Line)
	assert.False(t, vs[0].Expanded)
	assert.Equal(t, []int{3}, s.glyphLines())

	require.NoError(t, h.host.UpdateCommentThread(handle, 1, "t-1", docA, model.ThreadPatch{
		Comments:      &[]model.Comment{{UniqueIDInThread: 1, Author: "ana", Body: "why?"}},
		CollapseState: ptr(model.Expanded),
	}))

	require.Eventually(t, func() bool {
		vs := h.snapshot()
		return len(vs) == 1 && vs[0].Expanded && vs[0].HeightInLines > 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCoordinator_AddThenRemoveIsNetZero(t *testing.T) {
	h := newHarness(t, nil, nil)
	p := &echoProvider{ranges: map[string][]model.Range{docA: everywhere}}
	handle := h.register(p, "acme")
	owner := h.owner(t, handle)

	s := newFakeSurface(docA)
	h.coord.SetEditor(s)
	waitRanges(t, s, 1)
	_, err := h.host.CreateCommentThread(handle, 1, "t-1", docA, model.LineRange(2), "test.ext")
	require.NoError(t, err)
	before := h.waitViewports(t, 1)
	glyphsBefore := s.glyphLines()

	th := model.NewCommentThread(handle, 77, "t-77", "test.ext", docA, model.LineRange(9))
	h.registry.UpdateComments(owner, model.ThreadChangedEvent{Added: []*model.CommentThread{th}})
	h.registry.UpdateComments(owner, model.ThreadChangedEvent{Removed: []*model.CommentThread{th}})
	h.flush(t)

	assert.Equal(t, before, h.viewports(t))
	assert.ElementsMatch(t, glyphsBefore, s.glyphLines())
}

func TestCoordinator_RemovedUnknownThreadIsIgnored(t *testing.T) {
	h := newHarness(t, nil, nil)
	p := &echoProvider{ranges: map[string][]model.Range{docA: everywhere}}
	handle := h.register(p, "acme")

	s := newFakeSurface(docA)
	h.coord.SetEditor(s)
	waitRanges(t, s, 1)

	th := model.NewCommentThread(handle, 5, "t-5", "test.ext", docA, model.LineRange(4))
	h.registry.UpdateComments(h.owner(t, handle), model.ThreadChangedEvent{Removed: []*model.CommentThread{th}})
	h.flush(t)

	assert.Empty(t, h.viewports(t))
	assert.Empty(t, s.log)
}

func TestCoordinator_ChangedThreadWithoutViewportIsDropped(t *testing.T) {
	h := newHarness(t, nil, nil)
	p := &echoProvider{ranges: map[string][]model.Range{docA: everywhere}}
	handle := h.register(p, "acme")

	s := newFakeSurface(docA)
	h.coord.SetEditor(s)
	waitRanges(t, s, 1)

	th := model.NewCommentThread(handle, 8, "t-8", "test.ext", docA, model.LineRange(6))
	h.registry.UpdateComments(h.owner(t, handle), model.ThreadChangedEvent{Changed: []*model.CommentThread{th}})
	h.flush(t)

	assert.Empty(t, h.viewports(t))
	assert.Empty(t, s.glyphLines())
	assert.Empty(t, s.zones)
}

func TestCoordinator_RemoveAndAddInOneBatchReplacesViewport(t *testing.T) {
	h := newHarness(t, nil, nil)
	p := &echoProvider{ranges: map[string][]model.Range{docA: everywhere}}
	handle := h.register(p, "acme")
	owner := h.owner(t, handle)

	s := newFakeSurface(docA)
	h.coord.SetEditor(s)
	waitRanges(t, s, 1)
	old, err := h.host.CreateCommentThread(handle, 1, "t-1", docA, model.LineRange(2), "test.ext")
	require.NoError(t, err)
	h.waitViewports(t, 1)
	require.Equal(t, []int{2}, s.glyphLines())

	replacement := model.NewCommentThread(handle, 2, "t-1", "test.ext", docA, model.LineRange(8))
	h.registry.UpdateComments(owner, model.ThreadChangedEvent{
		Removed: []*model.CommentThread{old},
		Added:   []*model.CommentThread{replacement},
	})
	h.flush(t)

	vs := h.viewports(t)
	require.Len(t, vs, 1)
	assert.Equal(t, "t-1", vs[0].ThreadID)
	assert.Equal(t, 8, vs[0].Line)
	assert.Equal(t, []int{8}, s.glyphLines())
	assert.Equal(t, []string{"zone-dispose", "remove-decoration"}, s.log)
}

func TestCoordinator_DeleteRemovesViewport(t *testing.T) {
	h := newHarness(t, nil, nil)
	p := &echoProvider{ranges: map[string][]model.Range{docA: everywhere}}
	handle := h.register(p, "acme")

	s := newFakeSurface(docA)
	h.coord.SetEditor(s)
	waitRanges(t, s, 1)
	_, err := h.host.CreateCommentThread(handle, 1, "t-1", docA, model.LineRange(2), "test.ext")
	require.NoError(t, err)
	h.waitViewports(t, 1)

	require.NoError(t, h.host.DeleteCommentThread(handle, 1))

	h.waitViewports(t, 0)
	assert.Empty(t, s.glyphLines())
	assert.Equal(t, []string{"zone-dispose", "remove-decoration"}, s.log)
}

func TestCoordinator_ThreadsOnOtherDocumentsAreSkipped(t *testing.T) {
	h := newHarness(t, nil, nil)
	p := &echoProvider{ranges: map[string][]model.Range{docA: everywhere}}
	handle := h.register(p, "acme")

	_, err := h.host.CreateCommentThread(handle, 1, "t-1", "file:///other.ts", model.LineRange(2), "test.ext")
	require.NoError(t, err)

	s := newFakeSurface(docA)
	h.coord.SetEditor(s)
	waitRanges(t, s, 1)

	_, err = h.host.CreateCommentThread(handle, 2, "t-2", "file:///other.ts", model.LineRange(4), "test.ext")
	require.NoError(t, err)
	h.flush(t)

	assert.Empty(t, h.viewports(t))
}

func TestCoordinator_AddRequestsAreSerialized(t *testing.T) {
	h := newHarness(t, nil, nil)
	p := &echoProvider{ranges: map[string][]model.Range{docA: everywhere}}
	h.register(p, "acme")

	s := newFakeSurface(docA)
	h.coord.SetEditor(s)
	waitRanges(t, s, 1)

	const l1, l2 = 4, 9
	h.coord.AddOrToggleCommentAtLine(l1, nil)
	h.coord.AddOrToggleCommentAtLine(l2, nil)
	h.coord.AddOrToggleCommentAtLine(l1, nil)

	require.Eventually(t, func() bool {
		vs := byLine(h.snapshot())
		return len(vs) == 2 && vs[l1].Expanded
	}, 2*time.Second, 5*time.Millisecond)
	h.flush(t)

	assert.Equal(t, []int{l1, l2}, p.createdLines(), "one thread per distinct line, in arrival order")
	vs := byLine(h.viewports(t))
	require.Len(t, vs, 2)
	assert.True(t, vs[l1].Expanded, "the repeated request toggles the thread it created")
	assert.False(t, vs[l2].Expanded)
}

func TestCoordinator_AddFromPreviousEditorLeavesQueueAlone(t *testing.T) {
	const docB = "file:///b.ts"
	h := newHarness(t, nil, nil)
	releaseA := make(chan struct{})
	releaseB := make(chan struct{})
	p := &echoProvider{
		ranges:      map[string][]model.Range{docA: everywhere, docB: everywhere},
		createBlock: map[string]chan struct{}{docA: releaseA, docB: releaseB},
	}
	h.register(p, "acme")

	sa := newFakeSurface(docA)
	h.coord.SetEditor(sa)
	waitRanges(t, sa, 1)
	h.coord.AddOrToggleCommentAtLine(5, nil)
	require.Eventually(t, func() bool { return p.createCalls() == 1 }, 2*time.Second, 5*time.Millisecond)

	sb := newFakeSurface(docB)
	h.coord.SetEditor(sb)
	waitRanges(t, sb, 1)
	h.coord.AddOrToggleCommentAtLine(7, nil)
	h.coord.AddOrToggleCommentAtLine(7, nil)
	require.Eventually(t, func() bool { return p.createCalls() == 2 }, 2*time.Second, 5*time.Millisecond)

	staleBefore := testutil.ToFloat64(addRequestsTotal.WithLabelValues("stale"))
	close(releaseA)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(addRequestsTotal.WithLabelValues("stale")) >= staleBefore+1
	}, 2*time.Second, 5*time.Millisecond)
	h.flush(t)
	assert.Equal(t, 2, p.createCalls(), "the queued request waits for the add on the current editor")

	close(releaseB)
	require.Eventually(t, func() bool {
		vs := h.snapshot()
		return len(vs) == 1 && vs[0].Expanded
	}, 2*time.Second, 5*time.Millisecond)
	h.flush(t)

	assert.Equal(t, []string{docA + ":5", docB + ":7"}, p.createdAt())
	vs := h.viewports(t)
	require.Len(t, vs, 1)
	assert.Equal(t, 7, vs[0].Line)
	assert.Equal(t, []int{7}, sb.glyphLines())
}

func TestCoordinator_PickResolvedAfterSwitchIsDropped(t *testing.T) {
	const docB = "file:///b.ts"
	release := make(chan struct{})
	picker := &scriptedPicker{choose: func(opts []PickOption) (string, bool) {
		<-release
		return opts[0].Owner, true
	}}
	h := newHarness(t, nil, picker)
	pa := &echoProvider{ranges: map[string][]model.Range{docA: everywhere, docB: everywhere}}
	pb := &echoProvider{ranges: map[string][]model.Range{docA: everywhere, docB: everywhere}}
	h.register(pa, "acme")
	h.register(pb, "beta")

	sa := newFakeSurface(docA)
	h.coord.SetEditor(sa)
	waitRanges(t, sa, 2)
	h.coord.AddOrToggleCommentAtLine(4, nil)
	require.Eventually(t, func() bool {
		picker.mu.Lock()
		defer picker.mu.Unlock()
		return len(picker.offered) == 1
	}, 2*time.Second, 5*time.Millisecond)

	sb := newFakeSurface(docB)
	h.coord.SetEditor(sb)
	waitRanges(t, sb, 2)

	staleBefore := testutil.ToFloat64(addRequestsTotal.WithLabelValues("stale"))
	close(release)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(addRequestsTotal.WithLabelValues("stale")) >= staleBefore+1
	}, 2*time.Second, 5*time.Millisecond)
	h.flush(t)

	assert.Empty(t, pa.createdAt())
	assert.Empty(t, pb.createdAt())
	assert.Empty(t, h.viewports(t))
}

func TestCoordinator_AddOutsideCommentingRangeIsNoop(t *testing.T) {
	h := newHarness(t, nil, nil)
	p := &echoProvider{ranges: map[string][]model.Range{docA: {{StartLine: 1, StartColumn: 1, EndLine: 5, EndColumn: 1}}}}
	h.register(p, "acme")

	s := newFakeSurface(docA)
	h.coord.SetEditor(s)
	waitRanges(t, s, 1)

	h.coord.AddOrToggleCommentAtLine(20, nil)
	h.coord.AddOrToggleCommentAtLine(3, nil)

	h.waitViewports(t, 1)
	assert.Equal(t, []int{3}, p.createdLines())
}

func TestCoordinator_GutterClick(t *testing.T) {
	h := newHarness(t, nil, nil)
	p := &echoProvider{ranges: map[string][]model.Range{docA: everywhere}}
	handle := h.register(p, "acme")

	s := newFakeSurface(docA)
	h.coord.SetEditor(s)
	waitRanges(t, s, 1)
	_, err := h.host.CreateCommentThread(handle, 1, "t-1", docA, model.LineRange(3), "test.ext")
	require.NoError(t, err)
	require.NoError(t, h.host.UpdateCommentThread(handle, 1, "t-1", docA, model.ThreadPatch{
		Comments: &[]model.Comment{{UniqueIDInThread: 1, Author: "ana", Body: "hi"}},
	}))
	h.waitViewports(t, 1)

	click := func(offsetX int, left bool, target MouseTargetType) {
		s.click(GutterMouseEvent{
			Target:           target,
			Line:             3,
			LeftButton:       left,
			OffsetX:          offsetX + 40,
			GlyphMarginLeft:  0,
			GlyphMarginWidth: 18,
			LineNumbersWidth: 22,
		})
		h.flush(t)
	}

	click(20, true, TargetGutterLineDecorations)
	assert.False(t, h.viewports(t)[0].Expanded, "offset beyond the margin is ignored")

	click(10, false, TargetGutterLineDecorations)
	assert.False(t, h.viewports(t)[0].Expanded, "only the left button counts")

	click(10, true, TargetContentText)
	assert.False(t, h.viewports(t)[0].Expanded, "only the decoration gutter counts")

	click(10, true, TargetGutterLineDecorations)
	assert.True(t, h.viewports(t)[0].Expanded)

	click(10, true, TargetGutterLineDecorations)
	assert.False(t, h.viewports(t)[0].Expanded)
	assert.Len(t, h.viewports(t), 1, "a thread with comments is hidden, not discarded")
	assert.Empty(t, p.createdLines())
}

func TestCoordinator_CollapsingEmptyThreadDeletesIt(t *testing.T) {
	h := newHarness(t, nil, nil)
	p := &echoProvider{ranges: map[string][]model.Range{docA: everywhere}}
	handle := h.register(p, "acme")
	ctrl, err := h.host.Controller(handle)
	require.NoError(t, err)

	s := newFakeSurface(docA)
	h.coord.SetEditor(s)
	waitRanges(t, s, 1)

	h.coord.AddOrToggleCommentAtLine(5, nil)
	h.waitViewports(t, 1)
	require.Equal(t, 1, ctrl.ThreadCount())

	h.coord.AddOrToggleCommentAtLine(5, nil)
	require.Eventually(t, func() bool {
		vs := h.snapshot()
		return len(vs) == 1 && vs[0].Expanded
	}, 2*time.Second, 5*time.Millisecond)

	h.coord.AddOrToggleCommentAtLine(5, nil)
	h.waitViewports(t, 0)

	require.Eventually(t, func() bool { return ctrl.ThreadCount() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, s.glyphLines())
	assert.Equal(t, []int{5}, p.createdLines())
}

func TestCoordinator_StaleFetchIsDiscarded(t *testing.T) {
	h := newHarness(t, nil, nil)
	release := make(chan struct{})
	defer close(release)
	p := &echoProvider{
		ranges: map[string][]model.Range{
			docA:           {model.LineRange(1), model.LineRange(2)},
			"file:///b.ts": {model.LineRange(7)},
		},
		block: map[string]chan struct{}{docA: release},
	}
	h.register(p, "acme")

	staleBefore := testutil.ToFloat64(staleComputesTotal)

	sa := newFakeSurface(docA)
	sb := newFakeSurface("file:///b.ts")
	h.coord.SetEditor(sa)
	h.coord.SetEditor(sb)

	waitRanges(t, sb, 1)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(staleComputesTotal) >= staleBefore+1
	}, 2*time.Second, 5*time.Millisecond)
	h.flush(t)

	assert.Equal(t, 1, sb.countStyle(commentingRangeStyle.ClassName))
	assert.Equal(t, 0, sa.countStyle(commentingRangeStyle.ClassName))
}

func TestCoordinator_CloseEditorCancelsFetch(t *testing.T) {
	h := newHarness(t, nil, nil)
	release := make(chan struct{})
	p := &echoProvider{
		ranges: map[string][]model.Range{docA: everywhere},
		block:  map[string]chan struct{}{docA: release},
	}
	h.register(p, "acme")

	s := newFakeSurface(docA)
	h.coord.SetEditor(s)
	h.flush(t)
	h.coord.CloseEditor()
	close(release)
	h.flush(t)

	// Give a late reply every chance to land.
	time.Sleep(20 * time.Millisecond)
	h.flush(t)
	assert.Equal(t, 0, s.countStyle(commentingRangeStyle.ClassName))
}

func TestCoordinator_PickerChoosesController(t *testing.T) {
	picker := &scriptedPicker{choose: func(opts []PickOption) (string, bool) {
		return opts[1].Owner, true
	}}
	h := newHarness(t, nil, picker)
	pa := &echoProvider{ranges: map[string][]model.Range{docA: everywhere}}
	pb := &echoProvider{ranges: map[string][]model.Range{docA: everywhere}}
	h.register(pa, "acme")
	hb := h.register(pb, "beta")

	s := newFakeSurface(docA)
	h.coord.SetEditor(s)
	waitRanges(t, s, 2)

	h.coord.AddOrToggleCommentAtLine(4, nil)
	vs := h.waitViewports(t, 1)

	assert.Equal(t, h.owner(t, hb), vs[0].Owner)
	assert.Empty(t, pa.createdLines())
	assert.Equal(t, []int{4}, pb.createdLines())

	picker.mu.Lock()
	defer picker.mu.Unlock()
	require.Len(t, picker.offered, 1)
	assert.Equal(t, []string{"acme label", "beta label"}, []string{picker.offered[0][0].Label, picker.offered[0][1].Label})
}

func TestCoordinator_CancelledPickDrainsQueue(t *testing.T) {
	picker := &scriptedPicker{choose: func([]PickOption) (string, bool) { return "", false }}
	h := newHarness(t, nil, picker)
	pa := &echoProvider{ranges: map[string][]model.Range{docA: everywhere}}
	pb := &echoProvider{ranges: map[string][]model.Range{docA: everywhere}}
	h.register(pa, "acme")
	h.register(pb, "beta")

	s := newFakeSurface(docA)
	h.coord.SetEditor(s)
	waitRanges(t, s, 2)

	h.coord.AddOrToggleCommentAtLine(4, nil)
	h.coord.AddOrToggleCommentAtLine(6, nil)

	require.Eventually(t, func() bool {
		picker.mu.Lock()
		defer picker.mu.Unlock()
		return len(picker.offered) == 2
	}, 2*time.Second, 5*time.Millisecond)
	h.flush(t)

	assert.Empty(t, h.viewports(t))
	assert.Empty(t, pa.createdLines())
	assert.Empty(t, pb.createdLines())
}

func TestCoordinator_UnregisterRemovesViewportsAndRanges(t *testing.T) {
	h := newHarness(t, nil, nil)
	p := &echoProvider{ranges: map[string][]model.Range{docA: everywhere}}
	handle := h.register(p, "acme")

	s := newFakeSurface(docA)
	h.coord.SetEditor(s)
	waitRanges(t, s, 1)
	_, err := h.host.CreateCommentThread(handle, 1, "t-1", docA, model.LineRange(2), "test.ext")
	require.NoError(t, err)
	h.waitViewports(t, 1)

	require.NoError(t, h.host.UnregisterController(handle))

	h.waitViewports(t, 0)
	waitRanges(t, s, 0)
}

func TestCoordinator_RestoresPersistedDraft(t *testing.T) {
	drafts := newMemoryDrafts()
	require.NoError(t, drafts.Save(context.Background(), model.Draft{
		ControllerID: "acme",
		ThreadID:     "t-1",
		Resource:     docA,
		Body:         "half a thought",
	}))
	require.NoError(t, drafts.Save(context.Background(), model.Draft{
		ControllerID: "acme",
		ThreadID:     "t-9",
		Resource:     "file:///other.ts",
		Body:         "elsewhere",
	}))

	h := newHarness(t, drafts, nil)
	p := &echoProvider{ranges: map[string][]model.Range{docA: everywhere}}
	handle := h.register(p, "acme")
	_, err := h.host.CreateCommentThread(handle, 1, "t-1", docA, model.LineRange(3), "test.ext")
	require.NoError(t, err)

	s := newFakeSurface(docA)
	h.coord.SetEditor(s)

	vs := h.waitViewports(t, 1)
	assert.Equal(t, "half a thought", vs[0].Pending)
	assert.True(t, vs[0].Expanded, "a restored draft opens its thread")

	_, _, content, _ := s.zones[0].state()
	assert.Contains(t, content, "half a thought")

	require.Eventually(t, func() bool {
		d, _ := drafts.Get(context.Background(), "acme", "t-1")
		return d == nil
	}, 2*time.Second, 5*time.Millisecond, "restored drafts are consumed")
	d, err := drafts.Get(context.Background(), "acme", "t-9")
	require.NoError(t, err)
	assert.NotNil(t, d)
}

func TestCoordinator_DraftSurvivesEditorSwitch(t *testing.T) {
	drafts := newMemoryDrafts()
	h := newHarness(t, drafts, nil)
	p := &echoProvider{ranges: map[string][]model.Range{docA: everywhere, "file:///b.ts": everywhere}}
	handle := h.register(p, "acme")
	owner := h.owner(t, handle)
	_, err := h.host.CreateCommentThread(handle, 1, "t-1", docA, model.LineRange(3), "test.ext")
	require.NoError(t, err)

	s := newFakeSurface(docA)
	h.coord.SetEditor(s)
	h.waitViewports(t, 1)

	h.coord.SaveDraft(owner, "t-1", "wip")
	require.Eventually(t, func() bool {
		d, _ := drafts.Get(context.Background(), "acme", "t-1")
		return d != nil && d.Body == "wip"
	}, 2*time.Second, 5*time.Millisecond)

	sb := newFakeSurface("file:///b.ts")
	h.coord.SetEditor(sb)
	waitRanges(t, sb, 1)
	assert.Empty(t, h.viewports(t))
	assert.Empty(t, s.glyphLines())

	s2 := newFakeSurface(docA)
	h.coord.SetEditor(s2)
	vs := h.waitViewports(t, 1)
	assert.Equal(t, "wip", vs[0].Pending)
	assert.True(t, vs[0].Expanded)
}

func TestCoordinator_DiffEditor(t *testing.T) {
	const base = "git:///a.ts?base"
	h := newHarness(t, nil, nil)
	p := &echoProvider{ranges: map[string][]model.Range{docA: everywhere, base: everywhere}}
	handle := h.register(p, "acme")
	_, err := h.host.CreateCommentThread(handle, 1, "t-base", base, model.LineRange(2), "test.ext")
	require.NoError(t, err)
	_, err = h.host.CreateCommentThread(handle, 2, "t-head", docA, model.LineRange(6), "test.ext")
	require.NoError(t, err)

	original := newFakeSurface(base)
	modified := newFakeSurface(docA)
	h.coord.SetDiffEditor(original, modified)

	waitRanges(t, modified, 1)
	waitRanges(t, original, 1)
	vs := h.waitViewports(t, 1)
	assert.Equal(t, "t-head", vs[0].ThreadID)
	assert.Empty(t, original.glyphLines())
	assert.Equal(t, []int{6}, modified.glyphLines())

	h.coord.CloseEditor()
	waitRanges(t, original, 0)
	waitRanges(t, modified, 0)
}

func TestCoordinator_ShutdownReleasesEverything(t *testing.T) {
	h := newHarness(t, nil, nil)
	p := &echoProvider{ranges: map[string][]model.Range{docA: everywhere}}
	handle := h.register(p, "acme")

	ctx, cancel := context.WithCancel(context.Background())
	c := NewCoordinator(h.registry, nil, nil, nil)
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	s := newFakeSurface(docA)
	c.SetEditor(s)
	waitRanges(t, s, 1)
	_, err := h.host.CreateCommentThread(handle, 1, "t-1", docA, model.LineRange(2), "test.ext")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(s.glyphLines()) == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done

	assert.Empty(t, s.glyphLines())
	assert.Equal(t, 0, s.countStyle(commentingRangeStyle.ClassName))
}
