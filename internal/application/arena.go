package application

import (
	"slices"

	"github.com/ericfisherdev/commentsync/internal/domain/model"
)

// threadArena is the single owner of a controller's threads, indexed both by
// the provider's numeric handle and by the stable thread id. Both indices
// always point at the same records: a handle maps to exactly one thread, and a
// thread id maps to exactly one handle. The arena is not safe for concurrent
// use; the controller guards it.
type threadArena struct {
	byHandle map[int]*model.CommentThread
	byID     map[string]int
}

func newThreadArena() *threadArena {
	return &threadArena{
		byHandle: make(map[int]*model.CommentThread),
		byID:     make(map[string]int),
	}
}

// put stores th and returns any threads it displaced, either because they held
// the same handle or the same thread id.
func (a *threadArena) put(th *model.CommentThread) []*model.CommentThread {
	var displaced []*model.CommentThread

	if old, ok := a.byHandle[th.ThreadHandle()]; ok {
		a.remove(old.ThreadHandle())
		displaced = append(displaced, old)
	}
	if h, ok := a.byID[th.ThreadID()]; ok {
		if old := a.remove(h); old != nil {
			displaced = append(displaced, old)
		}
	}

	a.byHandle[th.ThreadHandle()] = th
	a.byID[th.ThreadID()] = th.ThreadHandle()
	return displaced
}

func (a *threadArena) get(handle int) (*model.CommentThread, bool) {
	th, ok := a.byHandle[handle]
	return th, ok
}

func (a *threadArena) getByID(threadID string) (*model.CommentThread, bool) {
	h, ok := a.byID[threadID]
	if !ok {
		return nil, false
	}
	return a.get(h)
}

// remove drops the record for handle from both indices and returns it.
func (a *threadArena) remove(handle int) *model.CommentThread {
	th, ok := a.byHandle[handle]
	if !ok {
		return nil
	}
	delete(a.byHandle, handle)
	if a.byID[th.ThreadID()] == handle {
		delete(a.byID, th.ThreadID())
	}
	return th
}

// all returns every thread ordered by handle.
func (a *threadArena) all() []*model.CommentThread {
	handles := make([]int, 0, len(a.byHandle))
	for h := range a.byHandle {
		handles = append(handles, h)
	}
	slices.Sort(handles)

	out := make([]*model.CommentThread, 0, len(handles))
	for _, h := range handles {
		out = append(out, a.byHandle[h])
	}
	return out
}

// drain empties the arena and returns what it held, ordered by handle.
func (a *threadArena) drain() []*model.CommentThread {
	out := a.all()
	clear(a.byHandle)
	clear(a.byID)
	return out
}

func (a *threadArena) size() int { return len(a.byHandle) }
