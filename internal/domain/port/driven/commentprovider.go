package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/commentsync/internal/domain/model"
)

// ErrProviderUnavailable is returned when the remote provider errors, times out,
// or has gone away.
var ErrProviderUnavailable = errors.New("comment provider unavailable")

// CommentProvider is the remote extension behind one controller. Every call is
// asynchronous from the host's point of view and may fail or be slow; callers
// bound them with a context deadline.
type CommentProvider interface {
	// ProvideCommentingRanges returns the ranges of resource on which a new
	// thread may be started.
	ProvideCommentingRanges(ctx context.Context, controllerHandle int, resource string) ([]model.Range, error)

	ToggleReaction(ctx context.Context, controllerHandle, threadHandle int, resource string, comment model.Comment, reaction model.Reaction) error

	// DeleteCommentThread asks the provider to delete a thread. The provider
	// echoes the deletion back through the host when it has done so.
	DeleteCommentThread(ctx context.Context, controllerHandle, threadHandle int) error

	// CreateCommentThreadTemplate asks the provider to create an empty thread
	// at rng. The provider answers by creating the thread through the host.
	CreateCommentThreadTemplate(ctx context.Context, controllerHandle int, resource string, rng model.Range) error

	UpdateCommentThreadTemplate(ctx context.Context, controllerHandle, threadHandle int, rng model.Range) error
}
