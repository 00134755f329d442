package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/commentsync/internal/domain/model"
	"github.com/ericfisherdev/commentsync/internal/domain/port/driven"
)

// ThreadEventSink receives a controller's change batches. The registry
// implements it and stamps each batch with the controller's owner id.
type ThreadEventSink interface {
	UpdateComments(owner string, ev model.ThreadChangedEvent)
}

// CommentController is the host-side proxy for one provider. It owns the
// provider's threads and mediates every request between the provider and
// them.
type CommentController struct {
	handle   int
	id       string
	owner    string
	label    string
	provider driven.CommentProvider
	sink     ThreadEventSink
	timeout  time.Duration

	// seq serializes mutations together with their publication so batches
	// reach the sink in the order the provider issued them.
	seq sync.Mutex

	mu       sync.RWMutex
	features model.ProviderFeatures
	threads  *threadArena
	active   *model.CommentThread
	disposed bool
}

// NewCommentController creates a controller. handle is the provider-side
// handle, id the provider's own controller id, and owner the registry id.
func NewCommentController(
	provider driven.CommentProvider,
	sink ThreadEventSink,
	handle int,
	owner string,
	id string,
	label string,
	timeout time.Duration,
) *CommentController {
	return &CommentController{
		handle:   handle,
		id:       id,
		owner:    owner,
		label:    label,
		provider: provider,
		sink:     sink,
		timeout:  timeout,
		threads:  newThreadArena(),
	}
}

// Handle returns the provider-side controller handle.
func (c *CommentController) Handle() int { return c.handle }

// ID returns the provider's own controller id.
func (c *CommentController) ID() string { return c.id }

// Owner returns the registry id the controller is known by.
func (c *CommentController) Owner() string { return c.owner }

// Label returns the display label.
func (c *CommentController) Label() string { return c.label }

// Features returns the capabilities last declared by the provider.
func (c *CommentController) Features() model.ProviderFeatures {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.features
}

// UpdateFeatures replaces the declared capabilities.
func (c *CommentController) UpdateFeatures(f model.ProviderFeatures) {
	c.mu.Lock()
	c.features = f
	c.mu.Unlock()
}

// ThreadCount returns the number of live threads.
func (c *CommentController) ThreadCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threads.size()
}

// CreateCommentThread constructs and registers a thread, then publishes it as
// added. A thread already holding the same handle or thread id is replaced and
// published as removed in the same batch. Once the controller is disposed the
// thread comes back already disposed and nothing is published.
func (c *CommentController) CreateCommentThread(extensionID string, threadHandle int, threadID, resource string, rng model.Range) *model.CommentThread {
	c.seq.Lock()
	defer c.seq.Unlock()

	th := model.NewCommentThread(c.handle, threadHandle, threadID, extensionID, resource, rng)

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		th.Dispose()
		return th
	}
	displaced := c.threads.put(th)
	c.mu.Unlock()

	if len(displaced) > 0 {
		slog.Warn("thread replaced on create",
			"owner", c.owner, "thread_handle", threadHandle, "thread_id", threadID, "replaced", len(displaced))
	}

	c.publish(model.ThreadChangedEvent{Added: []*model.CommentThread{th}, Removed: displaced})
	for _, old := range displaced {
		old.Dispose()
	}
	return th
}

// UpdateCommentThread applies patch to a known thread and publishes it as
// changed.
func (c *CommentController) UpdateCommentThread(threadHandle int, threadID, resource string, patch model.ThreadPatch) error {
	c.seq.Lock()
	defer c.seq.Unlock()

	th, err := c.knownThread(threadHandle)
	if err != nil {
		return err
	}

	th.BatchUpdate(patch)
	c.publish(model.ThreadChangedEvent{Changed: []*model.CommentThread{th}})
	return nil
}

// DeleteCommentThread removes a known thread, publishes it as removed while it
// is still live, then disposes it.
func (c *CommentController) DeleteCommentThread(threadHandle int) error {
	c.seq.Lock()
	defer c.seq.Unlock()

	c.mu.Lock()
	th := c.threads.remove(threadHandle)
	if th != nil && c.active == th {
		c.active = nil
	}
	c.mu.Unlock()

	if th == nil {
		return fmt.Errorf("delete thread %d on controller %s: %w", threadHandle, c.id, ErrThreadNotFound)
	}

	c.publish(model.ThreadChangedEvent{Removed: []*model.CommentThread{th}})
	th.Dispose()
	return nil
}

// DeleteCommentThreadMain asks the provider to delete the thread with the
// given stable id. Local state is untouched; the provider echoes the deletion
// back through DeleteCommentThread.
func (c *CommentController) DeleteCommentThreadMain(ctx context.Context, threadID string) error {
	c.mu.RLock()
	th, ok := c.threads.getByID(threadID)
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("delete thread %q on controller %s: %w", threadID, c.id, ErrThreadNotFound)
	}

	return c.call(ctx, "delete_thread", func(ctx context.Context) error {
		return c.provider.DeleteCommentThread(ctx, c.handle, th.ThreadHandle())
	})
}

// Thread returns the live thread with the given handle.
func (c *CommentController) Thread(threadHandle int) (*model.CommentThread, error) {
	return c.knownThread(threadHandle)
}

// ThreadByID returns the live thread with the given stable id.
func (c *CommentController) ThreadByID(threadID string) (*model.CommentThread, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threads.getByID(threadID)
}

// GetAllComments returns every live thread ordered by handle.
func (c *CommentController) GetAllComments() []*model.CommentThread {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threads.all()
}

// GetDocumentComments returns the threads known for resource together with
// the provider's commenting ranges. A failed ranges query is logged and yields
// empty ranges; the threads are returned regardless. Only cancellation of ctx
// itself is reported as an error.
func (c *CommentController) GetDocumentComments(ctx context.Context, resource string) (model.CommentInfo, error) {
	info := model.CommentInfo{
		Owner:            c.owner,
		Label:            c.label,
		Threads:          c.threadsFor(resource),
		CommentingRanges: model.CommentingRanges{Resource: resource, Ranges: []model.Range{}},
	}

	ranges, err := c.GetCommentingRanges(ctx, resource)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.CommentInfo{}, ctxErr
		}
		slog.Warn("commenting ranges unavailable", "owner", c.owner, "resource", resource, "error", err)
		return info, nil
	}

	info.CommentingRanges.Ranges = ranges
	return info, nil
}

// GetCommentingRanges queries the provider for the ranges of resource on which
// new threads may be started.
func (c *CommentController) GetCommentingRanges(ctx context.Context, resource string) ([]model.Range, error) {
	var ranges []model.Range
	err := c.call(ctx, "commenting_ranges", func(ctx context.Context) error {
		var err error
		ranges, err = c.provider.ProvideCommentingRanges(ctx, c.handle, resource)
		return err
	})
	if err != nil {
		return nil, err
	}
	if ranges == nil {
		ranges = []model.Range{}
	}
	return ranges, nil
}

// ToggleReaction delegates to the provider. It fails with ErrUnsupported when
// the provider declared no reaction handler.
func (c *CommentController) ToggleReaction(ctx context.Context, threadHandle int, resource string, comment model.Comment, reaction model.Reaction) error {
	if !c.Features().ReactionHandler {
		return fmt.Errorf("toggle reaction on controller %s: %w", c.id, ErrUnsupported)
	}
	if _, err := c.knownThread(threadHandle); err != nil {
		return err
	}

	return c.call(ctx, "toggle_reaction", func(ctx context.Context) error {
		return c.provider.ToggleReaction(ctx, c.handle, threadHandle, resource, comment, reaction)
	})
}

// CreateCommentThreadTemplate asks the provider for an empty thread at rng.
func (c *CommentController) CreateCommentThreadTemplate(ctx context.Context, resource string, rng model.Range) error {
	return c.call(ctx, "create_template", func(ctx context.Context) error {
		return c.provider.CreateCommentThreadTemplate(ctx, c.handle, resource, rng)
	})
}

// UpdateCommentThreadTemplate asks the provider to move a template thread.
func (c *CommentController) UpdateCommentThreadTemplate(ctx context.Context, threadHandle int, rng model.Range) error {
	return c.call(ctx, "update_template", func(ctx context.Context) error {
		return c.provider.UpdateCommentThreadTemplate(ctx, c.handle, threadHandle, rng)
	})
}

// SetActiveCommentThread records the thread that currently has focus.
func (c *CommentController) SetActiveCommentThread(th *model.CommentThread) {
	c.mu.Lock()
	c.active = th
	c.mu.Unlock()
}

// ActiveCommentThread returns the focused thread, or nil.
func (c *CommentController) ActiveCommentThread() *model.CommentThread {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// UpdateInput writes text into the active thread's pending input. Threads
// without an input are left alone.
func (c *CommentController) UpdateInput(text string) {
	th := c.ActiveCommentThread()
	if th == nil {
		return
	}
	in := th.Input()
	if in == nil {
		return
	}
	in.Value = text
	th.SetInput(in)
}

// Events resolves provider thread handles into a change batch. Unknown handles
// are skipped.
func (c *CommentController) Events(added, removed, changed []int) model.ThreadChangedEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	resolve := func(handles []int) []*model.CommentThread {
		var out []*model.CommentThread
		for _, h := range handles {
			if th, ok := c.threads.get(h); ok {
				out = append(out, th)
			} else {
				slog.Warn("change event references unknown thread", "owner", c.owner, "thread_handle", h)
			}
		}
		return out
	}

	return model.ThreadChangedEvent{
		Owner:   c.owner,
		Added:   resolve(added),
		Removed: resolve(removed),
		Changed: resolve(changed),
	}
}

// Dispose publishes every remaining thread as removed in one batch and then
// disposes them. Later calls are no-ops.
func (c *CommentController) Dispose() {
	c.seq.Lock()
	defer c.seq.Unlock()

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.active = nil
	threads := c.threads.drain()
	c.mu.Unlock()

	if len(threads) > 0 {
		c.publish(model.ThreadChangedEvent{Removed: threads})
	}
	for _, th := range threads {
		th.Dispose()
	}
}

func (c *CommentController) threadsFor(resource string) []*model.CommentThread {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*model.CommentThread
	for _, th := range c.threads.all() {
		if th.Resource() == resource {
			out = append(out, th)
		}
	}
	return out
}

func (c *CommentController) knownThread(threadHandle int) (*model.CommentThread, error) {
	c.mu.RLock()
	th, ok := c.threads.get(threadHandle)
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("thread handle %d on controller %s: %w", threadHandle, c.id, ErrThreadNotFound)
	}
	return th, nil
}

func (c *CommentController) publish(ev model.ThreadChangedEvent) {
	if c.sink == nil || ev.IsEmpty() {
		return
	}
	c.sink.UpdateComments(c.owner, ev)
}

// call runs one provider request under the controller's timeout. Failures are
// counted and reported as ErrProviderUnavailable.
func (c *CommentController) call(ctx context.Context, op string, fn func(context.Context) error) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	err := fn(ctx)
	if err == nil {
		return nil
	}

	providerErrorsTotal.WithLabelValues(op).Inc()
	if errors.Is(err, driven.ErrProviderUnavailable) {
		return fmt.Errorf("%s on controller %s: %w", op, c.id, err)
	}
	return fmt.Errorf("%s on controller %s: %w: %w", op, c.id, driven.ErrProviderUnavailable, err)
}
