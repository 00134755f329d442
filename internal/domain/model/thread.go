package model

import (
	"slices"
	"sync"
)

// ThreadKey identifies a thread from the UI side: the registry owner id of the
// controller plus the provider's stable thread id.
type ThreadKey struct {
	Owner    string
	ThreadID string
}

// ThreadPatch is a sparse update. Only non-nil fields are applied.
type ThreadPatch struct {
	Range         *Range            `json:"range,omitempty"`
	Label         *string           `json:"label,omitempty"`
	ContextValue  *string           `json:"contextValue,omitempty"`
	Comments      *[]Comment        `json:"comments,omitempty"`
	CollapseState *CollapsibleState `json:"collapseState,omitempty"`
}

// IsEmpty reports whether the patch carries no fields.
func (p ThreadPatch) IsEmpty() bool {
	return p.Range == nil && p.Label == nil && p.ContextValue == nil &&
		p.Comments == nil && p.CollapseState == nil
}

// CommentThread is one anchored discussion. Identity fields are fixed at
// construction; mutable fields each publish on their own Emitter. Once
// disposed, setters are ignored and no emitter fires again.
type CommentThread struct {
	controllerHandle int
	threadHandle     int
	threadID         string
	extensionID      string
	resource         string

	mu            sync.RWMutex
	rng           Range
	label         string
	contextValue  string
	comments      []Comment
	collapseState CollapsibleState
	input         *CommentInput
	disposed      bool

	onDidChangeRange         Emitter[Range]
	onDidChangeLabel         Emitter[string]
	onDidChangeContextValue  Emitter[string]
	onDidChangeComments      Emitter[[]Comment]
	onDidChangeCollapseState Emitter[CollapsibleState]
	onDidChangeInput         Emitter[*CommentInput]
}

// NewCommentThread constructs a live thread anchored at rng.
func NewCommentThread(controllerHandle, threadHandle int, threadID, extensionID, resource string, rng Range) *CommentThread {
	return &CommentThread{
		controllerHandle: controllerHandle,
		threadHandle:     threadHandle,
		threadID:         threadID,
		extensionID:      extensionID,
		resource:         resource,
		rng:              rng,
	}
}

// ControllerHandle returns the provider-side handle of the owning controller.
func (t *CommentThread) ControllerHandle() int { return t.controllerHandle }

// ThreadHandle returns the provider-side handle, unique within the controller.
func (t *CommentThread) ThreadHandle() int { return t.threadHandle }

// ThreadID returns the provider's stable thread id.
func (t *CommentThread) ThreadID() string { return t.threadID }

// ExtensionID returns the id of the extension that created the thread.
func (t *CommentThread) ExtensionID() string { return t.extensionID }

// Resource returns the URI of the document the thread is anchored in.
func (t *CommentThread) Resource() string { return t.resource }

// Range returns the anchor range.
func (t *CommentThread) Range() Range {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rng
}

// SetRange moves the anchor and notifies if it changed.
func (t *CommentThread) SetRange(r Range) {
	t.mu.Lock()
	if t.disposed || t.rng == r {
		t.mu.Unlock()
		return
	}
	t.rng = r
	t.mu.Unlock()
	t.onDidChangeRange.Fire(r)
}

// Label returns the explicit label, or "" when the provider set none.
func (t *CommentThread) Label() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.label
}

// SetLabel replaces the label and notifies if it changed.
func (t *CommentThread) SetLabel(label string) {
	t.mu.Lock()
	if t.disposed || t.label == label {
		t.mu.Unlock()
		return
	}
	t.label = label
	t.mu.Unlock()
	t.onDidChangeLabel.Fire(label)
}

// ContextValue returns the free-form context tag.
func (t *CommentThread) ContextValue() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.contextValue
}

// SetContextValue replaces the context tag and notifies if it changed.
func (t *CommentThread) SetContextValue(v string) {
	t.mu.Lock()
	if t.disposed || t.contextValue == v {
		t.mu.Unlock()
		return
	}
	t.contextValue = v
	t.mu.Unlock()
	t.onDidChangeContextValue.Fire(v)
}

// Comments returns a copy of the ordered comment list.
func (t *CommentThread) Comments() []Comment {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.comments)
}

// CommentCount returns the number of comments without copying them.
func (t *CommentThread) CommentCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.comments)
}

// SetComments replaces the comment list and always notifies.
func (t *CommentThread) SetComments(comments []Comment) {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.comments = slices.Clone(comments)
	out := slices.Clone(t.comments)
	t.mu.Unlock()
	t.onDidChangeComments.Fire(out)
}

// CollapsibleState returns the state the thread requests for its viewport.
func (t *CommentThread) CollapsibleState() CollapsibleState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.collapseState
}

// SetCollapsibleState updates the requested state and notifies if it changed.
func (t *CommentThread) SetCollapsibleState(s CollapsibleState) {
	t.mu.Lock()
	if t.disposed || t.collapseState == s {
		t.mu.Unlock()
		return
	}
	t.collapseState = s
	t.mu.Unlock()
	t.onDidChangeCollapseState.Fire(s)
}

// Input returns a copy of the pending input, or nil.
func (t *CommentThread) Input() *CommentInput {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.input == nil {
		return nil
	}
	in := *t.input
	return &in
}

// SetInput replaces the pending input and always notifies.
func (t *CommentThread) SetInput(in *CommentInput) {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	var stored *CommentInput
	if in != nil {
		cp := *in
		stored = &cp
	}
	t.input = stored
	t.mu.Unlock()
	t.onDidChangeInput.Fire(in)
}

// BatchUpdate applies each present field of p through its setter, so every
// applied field fires its own notification and absent fields fire nothing.
func (t *CommentThread) BatchUpdate(p ThreadPatch) {
	if p.Range != nil {
		t.SetRange(*p.Range)
	}
	if p.Label != nil {
		t.SetLabel(*p.Label)
	}
	if p.ContextValue != nil {
		t.SetContextValue(*p.ContextValue)
	}
	if p.Comments != nil {
		t.SetComments(*p.Comments)
	}
	if p.CollapseState != nil {
		t.SetCollapsibleState(*p.CollapseState)
	}
}

// OnDidChangeRange subscribes fn to range changes.
func (t *CommentThread) OnDidChangeRange(fn func(Range)) Disposable {
	return t.onDidChangeRange.Subscribe(fn)
}

// OnDidChangeLabel subscribes fn to label changes.
func (t *CommentThread) OnDidChangeLabel(fn func(string)) Disposable {
	return t.onDidChangeLabel.Subscribe(fn)
}

// OnDidChangeContextValue subscribes fn to context value changes.
func (t *CommentThread) OnDidChangeContextValue(fn func(string)) Disposable {
	return t.onDidChangeContextValue.Subscribe(fn)
}

// OnDidChangeComments subscribes fn to comments changes.
func (t *CommentThread) OnDidChangeComments(fn func([]Comment)) Disposable {
	return t.onDidChangeComments.Subscribe(fn)
}

// OnDidChangeCollapsibleState subscribes fn to collapsible state changes.
func (t *CommentThread) OnDidChangeCollapsibleState(fn func(CollapsibleState)) Disposable {
	return t.onDidChangeCollapseState.Subscribe(fn)
}

// OnDidChangeInput subscribes fn to input changes.
func (t *CommentThread) OnDidChangeInput(fn func(*CommentInput)) Disposable {
	return t.onDidChangeInput.Subscribe(fn)
}

// IsDisposed reports whether the thread has been disposed.
func (t *CommentThread) IsDisposed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.disposed
}

// Dispose marks the thread dead and closes every notification channel.
// Repeat calls are no-ops.
func (t *CommentThread) Dispose() {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.disposed = true
	t.mu.Unlock()

	t.onDidChangeCollapseState.Dispose()
	t.onDidChangeComments.Dispose()
	t.onDidChangeInput.Dispose()
	t.onDidChangeLabel.Dispose()
	t.onDidChangeContextValue.Dispose()
	t.onDidChangeRange.Dispose()
}
