package driven

import (
	"context"

	"github.com/ericfisherdev/commentsync/internal/domain/model"
)

// DraftStore defines the driven port for pending-comment persistence. Get
// returns nil, nil when no draft exists.
type DraftStore interface {
	Save(ctx context.Context, draft model.Draft) error
	Get(ctx context.Context, controllerID, threadID string) (*model.Draft, error)
	Delete(ctx context.Context, controllerID, threadID string) error
	ListByController(ctx context.Context, controllerID string) ([]model.Draft, error)
}
