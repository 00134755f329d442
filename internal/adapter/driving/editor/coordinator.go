package editor

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ericfisherdev/commentsync/internal/domain/model"
	"github.com/ericfisherdev/commentsync/internal/domain/port/driven"
)

// gutterClickMargin is how far right of the line numbers, in pixels, a gutter
// click may land and still count as a click on the comment glyph column.
const gutterClickMargin = 14

// draftTimeout bounds background draft store calls.
const draftTimeout = 5 * time.Second

// Registry is what the coordinator needs from the comment registry.
type Registry interface {
	GetComments(ctx context.Context, resource string) []model.CommentInfo
	CreateCommentThreadTemplate(ctx context.Context, owner, resource string, rng model.Range) error
	DisposeCommentThread(ctx context.Context, owner, threadID string) error
	ControllerID(owner string) (string, bool)

	OnDidUpdateCommentThreads(fn func(model.ThreadChangedEvent)) model.Disposable
	OnDidSetResourceCommentInfos(fn func(model.DocumentComments)) model.Disposable
	OnDidSetDataProvider(fn func(owner string)) model.Disposable
	OnDidDeleteDataProvider(fn func(owner string)) model.Disposable
}

// ViewportState is a snapshot of one live viewport.
type ViewportState struct {
	Owner         string `json:"owner"`
	ThreadID      string `json:"threadId"`
	Line          int    `json:"line"`
	Expanded      bool   `json:"expanded"`
	HeightInLines int    `json:"heightInLines"`
	Pending       string `json:"pending,omitempty"`
}

type addRequest struct {
	line    int
	trigger *GutterMouseEvent
}

// Coordinator keeps the viewports of one editor in step with the registry.
//
// All coordinator and viewport state is owned by the loop started with Run.
// Registry events, editor mouse events and provider replies arrive on other
// goroutines and are posted to the loop as tasks, so the state is never
// touched concurrently.
type Coordinator struct {
	registry Registry
	drafts   driven.DraftStore
	picker   Picker
	renderer Renderer

	qmu    sync.Mutex
	queue  []func()
	signal chan struct{}

	subs model.Disposables

	// Loop-owned state below.
	ctx        context.Context
	original   Surface
	editor     Surface
	editorSubs model.Disposables
	viewports  []*ThreadViewport
	infos      []model.CommentInfo
	pending    map[string]map[string]string

	originalRanges CommentingRangeDecorator
	ranges         CommentingRangeDecorator

	computeToken  uint64
	computeCancel context.CancelFunc

	// addEpoch changes with every editor switch. Add flows started for an
	// earlier editor finish without touching the current queue.
	addEpoch      uint64
	addInProgress bool
	addQueue      []addRequest
}

// NewCoordinator creates a coordinator and subscribes it to registry. drafts
// and picker may be nil: drafts then live in memory only, and lines offered
// by several controllers are skipped.
func NewCoordinator(registry Registry, drafts driven.DraftStore, picker Picker, renderer Renderer) *Coordinator {
	if renderer == nil {
		renderer = HTMLRenderer{}
	}
	c := &Coordinator{
		registry: registry,
		drafts:   drafts,
		picker:   picker,
		renderer: renderer,
		signal:   make(chan struct{}, 1),
		ctx:      context.Background(),
		pending:  make(map[string]map[string]string),
	}

	c.subs.Add(registry.OnDidUpdateCommentThreads(func(ev model.ThreadChangedEvent) {
		c.post(func() { c.onThreadsChanged(ev) })
	}))
	c.subs.Add(registry.OnDidSetResourceCommentInfos(func(ev model.DocumentComments) {
		c.post(func() {
			if c.editor != nil && c.editor.URI() == ev.Resource {
				c.setComments(ev.Infos)
			}
		})
	}))
	c.subs.Add(registry.OnDidSetDataProvider(func(string) { c.post(c.beginCompute) }))
	c.subs.Add(registry.OnDidDeleteDataProvider(func(string) { c.post(c.beginCompute) }))
	return c
}

// Run processes posted tasks until ctx is cancelled, then tears down every
// viewport and subscription.
func (c *Coordinator) Run(ctx context.Context) {
	c.ctx = ctx
	defer c.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.signal:
			for _, task := range c.drain() {
				task()
			}
		}
	}
}

// SetEditor makes surface the active editor. A nil surface closes it.
func (c *Coordinator) SetEditor(surface Surface) {
	c.post(func() { c.setEditor(nil, surface) })
}

// SetDiffEditor makes a diff editor active. Viewports live on the modified
// side; commenting ranges are shown on both.
func (c *Coordinator) SetDiffEditor(original, modified Surface) {
	c.post(func() { c.setEditor(original, modified) })
}

// CloseEditor detaches the active editor, caching drafts of open viewports.
func (c *Coordinator) CloseEditor() {
	c.post(func() { c.setEditor(nil, nil) })
}

// AddOrToggleCommentAtLine toggles the viewport whose glyph sits on line, or
// starts a new thread there. Requests are served one at a time in arrival
// order.
func (c *Coordinator) AddOrToggleCommentAtLine(line int, trigger *GutterMouseEvent) {
	c.post(func() { c.addOrToggle(line, trigger) })
}

// SaveDraft records unsent text for a thread so it survives editor switches.
func (c *Coordinator) SaveDraft(owner, threadID, text string) {
	c.post(func() {
		c.cacheDraft(owner, threadID, text)
		for _, v := range c.viewports {
			if v.Owner() == owner && v.Thread().ThreadID() == threadID {
				v.SetPending(text)
				v.Update()
			}
		}
		if c.editor != nil {
			c.persistDraft(owner, threadID, c.editor.URI(), text)
		}
	})
}

// Viewports returns a snapshot of the live viewports.
func (c *Coordinator) Viewports(ctx context.Context) ([]ViewportState, error) {
	var out []ViewportState
	err := c.do(ctx, func() {
		out = make([]ViewportState, 0, len(c.viewports))
		for _, v := range c.viewports {
			out = append(out, ViewportState{
				Owner:         v.Owner(),
				ThreadID:      v.Thread().ThreadID(),
				Line:          v.GlyphLine(),
				Expanded:      v.IsExpanded(),
				HeightInLines: v.HeightInLines(),
				Pending:       v.Pending(),
			})
		}
	})
	return out, err
}

// Flush waits until every task posted before the call has run.
func (c *Coordinator) Flush(ctx context.Context) error {
	return c.do(ctx, func() {})
}

func (c *Coordinator) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	c.post(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn for the loop. It never blocks, so it is safe from any
// goroutine, including from within a task.
func (c *Coordinator) post(fn func()) {
	c.qmu.Lock()
	c.queue = append(c.queue, fn)
	c.qmu.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *Coordinator) drain() []func() {
	c.qmu.Lock()
	defer c.qmu.Unlock()
	tasks := c.queue
	c.queue = nil
	return tasks
}

func (c *Coordinator) shutdown() {
	c.subs.Dispose()
	c.setEditor(nil, nil)
}

func (c *Coordinator) setEditor(original, modified Surface) {
	if c.editor != nil {
		c.removeViewportsAndStoreCache()
		c.editorSubs.Dispose()
		c.ranges.Dispose()
		c.originalRanges.Dispose()
		c.infos = nil
	}
	if c.computeCancel != nil {
		c.computeCancel()
		c.computeCancel = nil
	}
	c.computeToken++
	c.addEpoch++
	c.addQueue = nil
	c.addInProgress = false

	c.original = original
	c.editor = modified
	if modified == nil {
		return
	}

	c.editorSubs.Add(modified.OnGutterMouseDown(func(e GutterMouseEvent) {
		c.post(func() { c.onGutterMouseDown(e) })
	}))
	c.beginCompute()
}

// beginCompute fetches the comments of the active editor's document. Only the
// newest fetch is applied; an older one finishing later is dropped.
func (c *Coordinator) beginCompute() {
	if c.editor == nil {
		return
	}
	if c.computeCancel != nil {
		c.computeCancel()
	}
	c.computeToken++
	token := c.computeToken

	ctx, cancel := context.WithCancel(c.ctx)
	c.computeCancel = cancel

	resource := c.editor.URI()
	var originalResource string
	if c.original != nil {
		originalResource = c.original.URI()
	}

	go func() {
		infos := c.registry.GetComments(ctx, resource)
		var originalInfos []model.CommentInfo
		if originalResource != "" {
			originalInfos = c.registry.GetComments(ctx, originalResource)
		}
		drafts := c.loadDrafts(ctx, resource, infos)

		c.post(func() {
			if token != c.computeToken || ctx.Err() != nil {
				staleComputesTotal.Inc()
				return
			}
			cancel()
			c.computeCancel = nil

			for owner, byThread := range drafts {
				for threadID, text := range byThread {
					c.cacheDraft(owner, threadID, text)
				}
			}
			c.setComments(infos)
			if c.original != nil {
				c.originalRanges.Update(c.original, originalInfos)
			}
		})
	}()
}

// setComments reconciles the viewports with a full set of infos: viewports of
// disposed threads go away and threads without a viewport get one.
func (c *Coordinator) setComments(infos []model.CommentInfo) {
	if c.editor == nil {
		return
	}
	uri := c.editor.URI()

	c.infos = make([]model.CommentInfo, 0, len(infos))
	for _, info := range infos {
		info.Threads = slices.DeleteFunc(slices.Clone(info.Threads), func(th *model.CommentThread) bool {
			return th.IsDisposed()
		})
		c.infos = append(c.infos, info)
	}

	for _, v := range slices.Clone(c.viewports) {
		if v.Thread().IsDisposed() {
			c.removeViewport(v)
		}
	}

	for _, info := range c.infos {
		for _, th := range info.Threads {
			if th.Resource() != uri || c.findViewport(info.Owner, th.ThreadID()) != nil {
				continue
			}
			pending := c.takeDraft(info.Owner, th.ThreadID())
			if pending != "" {
				th.SetCollapsibleState(model.Expanded)
			}
			c.displayThread(info.Owner, th, pending)
		}
	}

	c.ranges.Update(c.editor, c.infos)
}

// onThreadsChanged applies one change batch. Removals run first, then
// changes, then additions, so a thread removed and re-added in one batch
// never shows twice.
func (c *Coordinator) onThreadsChanged(ev model.ThreadChangedEvent) {
	if c.editor == nil {
		return
	}
	uri := c.editor.URI()
	onEditor := func(threads []*model.CommentThread) []*model.CommentThread {
		var out []*model.CommentThread
		for _, th := range threads {
			if th.Resource() == uri {
				out = append(out, th)
			}
		}
		return out
	}

	info := c.infoFor(ev.Owner)

	for _, th := range onEditor(ev.Removed) {
		info.Threads = slices.DeleteFunc(info.Threads, func(t *model.CommentThread) bool {
			return t.ThreadID() == th.ThreadID()
		})
		if v := c.findViewport(ev.Owner, th.ThreadID()); v != nil {
			c.removeViewport(v)
		}
	}

	for _, th := range onEditor(ev.Changed) {
		if v := c.findViewport(ev.Owner, th.ThreadID()); v != nil {
			v.Update()
		}
	}

	for _, th := range onEditor(ev.Added) {
		if c.findViewport(ev.Owner, th.ThreadID()) != nil {
			continue
		}
		pending := c.takeDraft(ev.Owner, th.ThreadID())
		c.displayThread(ev.Owner, th, pending)
		info.Threads = append(info.Threads, th)
	}
}

func (c *Coordinator) displayThread(owner string, th *model.CommentThread, pending string) {
	v := NewThreadViewport(owner, th, c.editor, c.renderer, c.post, c.discardViewport)
	if pending != "" {
		v.SetPending(pending)
		th.SetCollapsibleState(model.Expanded)
	}
	c.viewports = append(c.viewports, v)
	liveViewports.Inc()
	v.Display(th.Range().StartLine)
}

// discardViewport drops a viewport whose empty thread the user collapsed and
// asks the provider to delete the thread.
func (c *Coordinator) discardViewport(v *ThreadViewport) {
	owner, threadID := v.Owner(), v.Thread().ThreadID()
	c.removeViewport(v)

	ctx := c.ctx
	go func() {
		if err := c.registry.DisposeCommentThread(ctx, owner, threadID); err != nil {
			slog.Warn("discard empty thread failed", "owner", owner, "thread_id", threadID, "error", err)
		}
	}()
}

func (c *Coordinator) removeViewport(v *ThreadViewport) {
	idx := slices.Index(c.viewports, v)
	if idx < 0 {
		return
	}
	c.viewports = slices.Delete(c.viewports, idx, idx+1)
	v.Dispose()
	liveViewports.Dec()
}

func (c *Coordinator) removeViewportsAndStoreCache() {
	uri := c.editor.URI()
	for _, v := range c.viewports {
		if text := v.Pending(); text != "" {
			c.cacheDraft(v.Owner(), v.Thread().ThreadID(), text)
			c.persistDraft(v.Owner(), v.Thread().ThreadID(), uri, text)
		}
		v.Dispose()
		liveViewports.Dec()
	}
	c.viewports = nil
}

func (c *Coordinator) onGutterMouseDown(e GutterMouseEvent) {
	if c.editor == nil || !e.LeftButton || e.Target != TargetGutterLineDecorations || e.Line <= 0 {
		return
	}
	gutterOffsetX := e.OffsetX - e.GlyphMarginWidth - e.LineNumbersWidth - e.GlyphMarginLeft
	if gutterOffsetX > gutterClickMargin {
		return
	}
	c.addOrToggle(e.Line, &e)
}

func (c *Coordinator) addOrToggle(line int, trigger *GutterMouseEvent) {
	if c.addInProgress {
		c.addQueue = append(c.addQueue, addRequest{line: line, trigger: trigger})
		addRequestsTotal.WithLabelValues("queued").Inc()
		return
	}
	c.addInProgress = true

	// Glyph position, not zone geometry, decides: a viewport that has never
	// been shown has no geometry yet.
	var existing []*ThreadViewport
	for _, v := range c.viewports {
		if v.GlyphLine() == line {
			existing = append(existing, v)
		}
	}
	if len(existing) > 0 {
		for _, v := range existing {
			v.ToggleExpand()
		}
		addRequestsTotal.WithLabelValues("toggled").Inc()
		c.processNextThreadToAdd()
		return
	}

	c.addCommentAtLine(line)
}

func (c *Coordinator) addCommentAtLine(line int) {
	if c.editor == nil {
		c.processNextThreadToAdd()
		return
	}

	resource := c.editor.URI()
	matches := c.ranges.Matched(line)
	switch len(matches) {
	case 0:
		addRequestsTotal.WithLabelValues("no_range").Inc()
		c.processNextThreadToAdd()
	case 1:
		c.createThreadAt(c.addEpoch, line, matches[0].Owner, resource)
	default:
		c.pickAndCreate(line, matches, resource)
	}
}

// createThreadAt asks owner's provider for a template thread. The provider
// creates the thread through the host before replying, so the resulting
// added event is queued ahead of the next add request.
func (c *Coordinator) createThreadAt(epoch uint64, line int, owner, resource string) {
	ctx := c.ctx
	addRequestsTotal.WithLabelValues("created").Inc()

	go func() {
		if err := c.registry.CreateCommentThreadTemplate(ctx, owner, resource, model.LineRange(line)); err != nil {
			slog.Warn("create comment thread failed", "owner", owner, "resource", resource, "line", line, "error", err)
		}
		c.post(func() { c.finishAdd(epoch) })
	}()
}

// pickAndCreate lets the user choose between several controllers. The queue
// stays blocked until the choice resolves or is cancelled.
func (c *Coordinator) pickAndCreate(line int, matches []CommentAction, resource string) {
	if c.picker == nil {
		addRequestsTotal.WithLabelValues("ambiguous").Inc()
		c.processNextThreadToAdd()
		return
	}

	options := make([]PickOption, 0, len(matches))
	for _, m := range matches {
		options = append(options, PickOption{Owner: m.Owner, Label: m.Label})
	}
	ctx := c.ctx
	epoch := c.addEpoch

	go func() {
		owner, ok, err := c.picker.Pick(ctx, line, options)
		if err != nil {
			slog.Warn("comment provider pick failed", "line", line, "error", err)
		}
		if err != nil || !ok {
			addRequestsTotal.WithLabelValues("cancelled").Inc()
			c.post(func() { c.finishAdd(epoch) })
			return
		}
		c.post(func() {
			if epoch != c.addEpoch {
				addRequestsTotal.WithLabelValues("stale").Inc()
				return
			}
			c.createThreadAt(epoch, line, owner, resource)
		})
	}()
}

// finishAdd releases the add queue for the flow started in epoch. A flow
// that outlived its editor leaves the current one alone.
func (c *Coordinator) finishAdd(epoch uint64) {
	if epoch != c.addEpoch {
		addRequestsTotal.WithLabelValues("stale").Inc()
		return
	}
	c.processNextThreadToAdd()
}

func (c *Coordinator) processNextThreadToAdd() {
	c.addInProgress = false
	if len(c.addQueue) == 0 {
		return
	}
	next := c.addQueue[0]
	c.addQueue = c.addQueue[1:]
	c.addOrToggle(next.line, next.trigger)
}

func (c *Coordinator) findViewport(owner, threadID string) *ThreadViewport {
	for _, v := range c.viewports {
		if v.Owner() == owner && v.Thread().ThreadID() == threadID {
			return v
		}
	}
	return nil
}

// infoFor returns the bookkeeping entry for owner, creating it when a
// controller reports threads before any fetch has included it.
func (c *Coordinator) infoFor(owner string) *model.CommentInfo {
	for i := range c.infos {
		if c.infos[i].Owner == owner {
			return &c.infos[i]
		}
	}
	c.infos = append(c.infos, model.CommentInfo{Owner: owner})
	return &c.infos[len(c.infos)-1]
}

func (c *Coordinator) cacheDraft(owner, threadID, text string) {
	byThread, ok := c.pending[owner]
	if !ok {
		byThread = make(map[string]string)
		c.pending[owner] = byThread
	}
	byThread[threadID] = text
}

// takeDraft returns and forgets the cached draft for a thread.
func (c *Coordinator) takeDraft(owner, threadID string) string {
	byThread := c.pending[owner]
	text, ok := byThread[threadID]
	if !ok {
		return ""
	}
	delete(byThread, threadID)
	c.forgetDraft(owner, threadID)
	return text
}

func (c *Coordinator) persistDraft(owner, threadID, resource, text string) {
	if c.drafts == nil {
		return
	}
	controllerID, ok := c.registry.ControllerID(owner)
	if !ok {
		return
	}
	draft := model.Draft{
		ControllerID: controllerID,
		ThreadID:     threadID,
		Resource:     resource,
		Body:         text,
		UpdatedAt:    time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), draftTimeout)
		defer cancel()
		if err := c.drafts.Save(ctx, draft); err != nil {
			slog.Error("failed to save draft", "controller_id", controllerID, "thread_id", threadID, "error", err)
		}
	}()
}

func (c *Coordinator) forgetDraft(owner, threadID string) {
	if c.drafts == nil {
		return
	}
	controllerID, ok := c.registry.ControllerID(owner)
	if !ok {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), draftTimeout)
		defer cancel()
		if err := c.drafts.Delete(ctx, controllerID, threadID); err != nil {
			slog.Error("failed to delete draft", "controller_id", controllerID, "thread_id", threadID, "error", err)
		}
	}()
}

// loadDrafts reads persisted drafts for resource from every reporting
// controller. It runs off the loop.
func (c *Coordinator) loadDrafts(ctx context.Context, resource string, infos []model.CommentInfo) map[string]map[string]string {
	if c.drafts == nil {
		return nil
	}
	out := make(map[string]map[string]string)
	for _, info := range infos {
		controllerID, ok := c.registry.ControllerID(info.Owner)
		if !ok {
			continue
		}
		drafts, err := c.drafts.ListByController(ctx, controllerID)
		if err != nil {
			slog.Warn("failed to load drafts", "controller_id", controllerID, "error", err)
			continue
		}
		for _, d := range drafts {
			if d.Resource != resource {
				continue
			}
			if out[info.Owner] == nil {
				out[info.Owner] = make(map[string]string)
			}
			out[info.Owner][d.ThreadID] = d.Body
		}
	}
	return out
}
