package application

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/commentsync/internal/domain/model"
	"github.com/ericfisherdev/commentsync/internal/domain/port/driven"
)

// CommentsHost is the provider-registration layer. Providers address their
// controllers by the numeric handle the host issues; the registry addresses
// them by a UUID owner id minted at registration.
type CommentsHost struct {
	registry *CommentRegistry
	timeout  time.Duration

	mu          sync.RWMutex
	nextHandle  int
	controllers map[int]*CommentController
	active      *model.CommentThread

	subs model.Disposables
}

// NewCommentsHost creates a host that registers controllers with registry.
// timeout bounds every call a controller makes to its provider.
func NewCommentsHost(registry *CommentRegistry, timeout time.Duration) *CommentsHost {
	h := &CommentsHost{
		registry:    registry,
		timeout:     timeout,
		controllers: make(map[int]*CommentController),
	}
	h.subs.Add(registry.OnDidChangeActiveCommentThread(h.activeThreadChanged))
	return h
}

// RegisterController creates a controller for provider and returns its handle.
// Handles increase monotonically and are never reissued by this host.
func (h *CommentsHost) RegisterController(provider driven.CommentProvider, id, label string) int {
	owner := uuid.NewString()

	h.mu.Lock()
	h.nextHandle++
	handle := h.nextHandle
	c := NewCommentController(provider, h.registry, handle, owner, id, label, h.timeout)
	h.controllers[handle] = c
	h.mu.Unlock()

	h.registry.RegisterCommentController(owner, c)
	h.registry.SetWorkspaceComments(owner, []*model.CommentThread{})

	slog.Info("comment controller registered", "controller_handle", handle, "owner", owner, "id", id, "label", label)
	return handle
}

// UnregisterController publishes the controller's threads as removed, disposes
// them, and drops the controller from the registry.
func (h *CommentsHost) UnregisterController(handle int) error {
	h.mu.Lock()
	c, ok := h.controllers[handle]
	if ok {
		delete(h.controllers, handle)
		if h.active != nil && h.active.ControllerHandle() == handle {
			h.active = nil
		}
	}
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("unregister controller %d: %w", handle, ErrControllerNotFound)
	}

	c.Dispose()
	h.registry.UnregisterCommentController(c.Owner())
	h.registry.RemoveWorkspaceComments(c.Owner())

	slog.Info("comment controller unregistered", "controller_handle", handle, "owner", c.Owner())
	return nil
}

// UpdateControllerFeatures replaces the capabilities of a controller.
func (h *CommentsHost) UpdateControllerFeatures(handle int, features model.ProviderFeatures) error {
	c, err := h.Controller(handle)
	if err != nil {
		return err
	}
	c.UpdateFeatures(features)
	return nil
}

// CreateCommentThread creates a thread on the controller with the given handle.
func (h *CommentsHost) CreateCommentThread(handle, threadHandle int, threadID, resource string, rng model.Range, extensionID string) (*model.CommentThread, error) {
	c, err := h.Controller(handle)
	if err != nil {
		return nil, err
	}
	th := c.CreateCommentThread(extensionID, threadHandle, threadID, resource, rng)
	if th.IsDisposed() {
		return nil, fmt.Errorf("controller handle %d: %w", handle, ErrControllerNotFound)
	}
	return th, nil
}

// UpdateCommentThread applies patch to a thread of the given controller.
func (h *CommentsHost) UpdateCommentThread(handle, threadHandle int, threadID, resource string, patch model.ThreadPatch) error {
	c, err := h.Controller(handle)
	if err != nil {
		return err
	}
	return c.UpdateCommentThread(threadHandle, threadID, resource, patch)
}

// DeleteCommentThread deletes a thread of the given controller.
func (h *CommentsHost) DeleteCommentThread(handle, threadHandle int) error {
	c, err := h.Controller(handle)
	if err != nil {
		return err
	}
	return c.DeleteCommentThread(threadHandle)
}

// OnDidCommentThreadsChange forwards a provider-authored batch, given as
// thread handles, to the registry stream.
func (h *CommentsHost) OnDidCommentThreadsChange(handle int, added, removed, changed []int) error {
	c, err := h.Controller(handle)
	if err != nil {
		return err
	}
	ev := c.Events(added, removed, changed)
	if ev.IsEmpty() {
		return nil
	}
	h.registry.UpdateComments(c.Owner(), ev)
	return nil
}

// ActiveControllerHandle returns the handle of the controller owning the
// focused thread.
func (h *CommentsHost) ActiveControllerHandle() (int, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.active == nil {
		return 0, false
	}
	return h.active.ControllerHandle(), true
}

// UpdateInput writes text into the pending input of the focused thread when
// that thread belongs to the controller with the given handle. It reports
// whether the input was written.
func (h *CommentsHost) UpdateInput(handle int, text string) bool {
	h.mu.RLock()
	active := h.active
	var c *CommentController
	if active != nil && active.ControllerHandle() == handle {
		c = h.controllers[handle]
	}
	h.mu.RUnlock()

	if c == nil {
		return false
	}
	c.UpdateInput(text)
	return true
}

// Controller returns the controller with the given handle.
func (h *CommentsHost) Controller(handle int) (*CommentController, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.controllers[handle]
	if !ok {
		return nil, fmt.Errorf("controller handle %d: %w", handle, ErrControllerNotFound)
	}
	return c, nil
}

// Controllers returns every registered controller ordered by handle.
func (h *CommentsHost) Controllers() []*CommentController {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*CommentController, 0, len(h.controllers))
	for _, c := range h.controllers {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *CommentController) int { return a.Handle() - b.Handle() })
	return out
}

// Close stops listening to the registry.
func (h *CommentsHost) Close() {
	h.subs.Dispose()
}

func (h *CommentsHost) activeThreadChanged(th *model.CommentThread) {
	if th == nil {
		return
	}

	h.mu.Lock()
	c, ok := h.controllers[th.ControllerHandle()]
	if ok {
		h.active = th
	}
	h.mu.Unlock()

	if ok {
		c.SetActiveCommentThread(th)
	}
}
