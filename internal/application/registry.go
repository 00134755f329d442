package application

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/commentsync/internal/domain/model"
)

// DefaultFanoutLimit bounds concurrent controller queries when no limit is set.
const DefaultFanoutLimit = 8

// CommentRegistry is the directory of registered controllers. It fans
// resource queries out to every controller and republishes each controller's
// change batches on one unified, owner-attributed stream. It holds controllers
// by reference only; their lifetime belongs to the host.
type CommentRegistry struct {
	fanoutLimit int

	mu          sync.RWMutex
	controllers map[string]*CommentController
	order       []string

	onDidSetDataProvider           model.Emitter[string]
	onDidDeleteDataProvider        model.Emitter[string]
	onDidUpdateCommentThreads      model.Emitter[model.ThreadChangedEvent]
	onDidChangeActiveCommentThread model.Emitter[*model.CommentThread]
	onDidSetResourceCommentInfos   model.Emitter[model.DocumentComments]
	onDidSetAllCommentThreads      model.Emitter[model.WorkspaceComments]
}

// NewCommentRegistry creates an empty registry. fanoutLimit caps the number of
// controllers queried at once; values below one select DefaultFanoutLimit.
func NewCommentRegistry(fanoutLimit int) *CommentRegistry {
	if fanoutLimit < 1 {
		fanoutLimit = DefaultFanoutLimit
	}
	return &CommentRegistry{
		fanoutLimit: fanoutLimit,
		controllers: make(map[string]*CommentController),
	}
}

var _ ThreadEventSink = (*CommentRegistry)(nil)

// RegisterCommentController adds c under owner and announces it.
func (r *CommentRegistry) RegisterCommentController(owner string, c *CommentController) {
	r.mu.Lock()
	if _, exists := r.controllers[owner]; !exists {
		r.order = append(r.order, owner)
	}
	r.controllers[owner] = c
	r.mu.Unlock()

	registeredControllers.Inc()
	r.onDidSetDataProvider.Fire(owner)
}

// UnregisterCommentController removes owner and announces the removal.
// Unknown owners are ignored.
func (r *CommentRegistry) UnregisterCommentController(owner string) {
	r.mu.Lock()
	_, ok := r.controllers[owner]
	if ok {
		delete(r.controllers, owner)
		r.order = slices.DeleteFunc(r.order, func(o string) bool { return o == owner })
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	registeredControllers.Dec()
	r.onDidDeleteDataProvider.Fire(owner)
}

// GetCommentController returns the controller registered under owner.
func (r *CommentRegistry) GetCommentController(owner string) (*CommentController, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.controllers[owner]
	return c, ok
}

// ControllerID returns the provider-supplied id of owner's controller. Unlike
// the owner id it stays the same when a provider registers again.
func (r *CommentRegistry) ControllerID(owner string) (string, bool) {
	c, ok := r.GetCommentController(owner)
	if !ok {
		return "", false
	}
	return c.ID(), true
}

// Controllers returns the registered controllers in registration order.
func (r *CommentRegistry) Controllers() []*CommentController {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*CommentController, 0, len(r.order))
	for _, owner := range r.order {
		out = append(out, r.controllers[owner])
	}
	return out
}

// UpdateComments stamps ev with owner and publishes it on the unified stream.
func (r *CommentRegistry) UpdateComments(owner string, ev model.ThreadChangedEvent) {
	ev.Owner = owner

	threadEventsTotal.WithLabelValues(string(model.ChangeAdded)).Add(float64(len(ev.Added)))
	threadEventsTotal.WithLabelValues(string(model.ChangeRemoved)).Add(float64(len(ev.Removed)))
	threadEventsTotal.WithLabelValues(string(model.ChangeChanged)).Add(float64(len(ev.Changed)))

	r.onDidUpdateCommentThreads.Fire(ev)
}

// GetComments asks every controller for the threads and commenting ranges of
// resource. Controllers that fail are logged and left out; the result keeps
// registration order.
func (r *CommentRegistry) GetComments(ctx context.Context, resource string) []model.CommentInfo {
	start := time.Now()
	defer func() { fanoutDuration.WithLabelValues("get_comments").Observe(time.Since(start).Seconds()) }()

	controllers := r.Controllers()
	results := make([]*model.CommentInfo, len(controllers))

	var g errgroup.Group
	g.SetLimit(r.fanoutLimit)
	for i, c := range controllers {
		g.Go(func() error {
			info, err := c.GetDocumentComments(ctx, resource)
			if err != nil {
				slog.Warn("controller comments unavailable",
					"owner", c.Owner(), "resource", resource, "error", err)
				return nil
			}
			results[i] = &info
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.CommentInfo, 0, len(results))
	for _, info := range results {
		if info != nil {
			out = append(out, *info)
		}
	}
	return out
}

// GetCommentingRanges concatenates the commenting ranges every controller
// offers for resource. Failing controllers contribute nothing.
func (r *CommentRegistry) GetCommentingRanges(ctx context.Context, resource string) []model.Range {
	start := time.Now()
	defer func() { fanoutDuration.WithLabelValues("commenting_ranges").Observe(time.Since(start).Seconds()) }()

	controllers := r.Controllers()
	results := make([][]model.Range, len(controllers))

	var g errgroup.Group
	g.SetLimit(r.fanoutLimit)
	for i, c := range controllers {
		g.Go(func() error {
			ranges, err := c.GetCommentingRanges(ctx, resource)
			if err != nil {
				slog.Warn("controller commenting ranges unavailable",
					"owner", c.Owner(), "resource", resource, "error", err)
				return nil
			}
			results[i] = ranges
			return nil
		})
	}
	_ = g.Wait()

	out := []model.Range{}
	for _, rs := range results {
		out = append(out, rs...)
	}
	return out
}

// CreateCommentThreadTemplate asks owner's provider for a new empty thread.
func (r *CommentRegistry) CreateCommentThreadTemplate(ctx context.Context, owner, resource string, rng model.Range) error {
	c, err := r.controller(owner)
	if err != nil {
		return err
	}
	return c.CreateCommentThreadTemplate(ctx, resource, rng)
}

// UpdateCommentThreadTemplate asks owner's provider to move a template thread.
func (r *CommentRegistry) UpdateCommentThreadTemplate(ctx context.Context, owner string, threadHandle int, rng model.Range) error {
	c, err := r.controller(owner)
	if err != nil {
		return err
	}
	return c.UpdateCommentThreadTemplate(ctx, threadHandle, rng)
}

// DisposeCommentThread asks owner's provider to delete the thread with the
// given stable id.
func (r *CommentRegistry) DisposeCommentThread(ctx context.Context, owner, threadID string) error {
	c, err := r.controller(owner)
	if err != nil {
		return err
	}
	return c.DeleteCommentThreadMain(ctx, threadID)
}

// HasReactionHandler reports whether owner's provider handles reactions.
func (r *CommentRegistry) HasReactionHandler(owner string) bool {
	c, ok := r.GetCommentController(owner)
	return ok && c.Features().ReactionHandler
}

// ToggleReaction routes a reaction toggle to owner's controller.
func (r *CommentRegistry) ToggleReaction(ctx context.Context, owner, resource string, threadHandle int, comment model.Comment, reaction model.Reaction) error {
	c, ok := r.GetCommentController(owner)
	if !ok {
		return fmt.Errorf("toggle reaction for owner %q: %w", owner, ErrUnsupported)
	}
	return c.ToggleReaction(ctx, threadHandle, resource, comment, reaction)
}

// SetActiveCommentThread announces the focused thread; nil clears focus.
func (r *CommentRegistry) SetActiveCommentThread(th *model.CommentThread) {
	r.onDidChangeActiveCommentThread.Fire(th)
}

// SetDocumentComments publishes a wholesale replacement of resource's infos.
func (r *CommentRegistry) SetDocumentComments(resource string, infos []model.CommentInfo) {
	r.onDidSetResourceCommentInfos.Fire(model.DocumentComments{Resource: resource, Infos: infos})
}

// SetWorkspaceComments publishes owner's workspace-wide threads.
func (r *CommentRegistry) SetWorkspaceComments(owner string, threads []*model.CommentThread) {
	r.onDidSetAllCommentThreads.Fire(model.WorkspaceComments{Owner: owner, Threads: threads})
}

// RemoveWorkspaceComments clears owner's workspace-wide threads.
func (r *CommentRegistry) RemoveWorkspaceComments(owner string) {
	r.onDidSetAllCommentThreads.Fire(model.WorkspaceComments{Owner: owner, Threads: []*model.CommentThread{}})
}

func (r *CommentRegistry) OnDidSetDataProvider(fn func(owner string)) model.Disposable {
	return r.onDidSetDataProvider.Subscribe(fn)
}

func (r *CommentRegistry) OnDidDeleteDataProvider(fn func(owner string)) model.Disposable {
	return r.onDidDeleteDataProvider.Subscribe(fn)
}

// OnDidUpdateCommentThreads subscribes to the unified change stream.
func (r *CommentRegistry) OnDidUpdateCommentThreads(fn func(model.ThreadChangedEvent)) model.Disposable {
	return r.onDidUpdateCommentThreads.Subscribe(fn)
}

func (r *CommentRegistry) OnDidChangeActiveCommentThread(fn func(*model.CommentThread)) model.Disposable {
	return r.onDidChangeActiveCommentThread.Subscribe(fn)
}

func (r *CommentRegistry) OnDidSetResourceCommentInfos(fn func(model.DocumentComments)) model.Disposable {
	return r.onDidSetResourceCommentInfos.Subscribe(fn)
}

func (r *CommentRegistry) OnDidSetAllCommentThreads(fn func(model.WorkspaceComments)) model.Disposable {
	return r.onDidSetAllCommentThreads.Subscribe(fn)
}

func (r *CommentRegistry) controller(owner string) (*CommentController, error) {
	c, ok := r.GetCommentController(owner)
	if !ok {
		return nil, fmt.Errorf("owner %q: %w", owner, ErrControllerNotFound)
	}
	return c, nil
}
