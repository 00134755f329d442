package application

import (
	"context"
	"sync"

	"github.com/ericfisherdev/commentsync/internal/domain/model"
	"github.com/ericfisherdev/commentsync/internal/domain/port/driven"
)

// mockProvider is a hand-written driven.CommentProvider.
type mockProvider struct {
	mu sync.Mutex

	ranges    []model.Range
	rangesErr error
	block     chan struct{}

	reactionErr error
	reactions   []model.Reaction

	deleted   []int
	templates []model.Range
	moved     map[int]model.Range
}

var _ driven.CommentProvider = (*mockProvider)(nil)

func (m *mockProvider) ProvideCommentingRanges(ctx context.Context, _ int, _ string) ([]model.Range, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rangesErr != nil {
		return nil, m.rangesErr
	}
	return m.ranges, nil
}

func (m *mockProvider) ToggleReaction(_ context.Context, _, _ int, _ string, _ model.Comment, reaction model.Reaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reactionErr != nil {
		return m.reactionErr
	}
	m.reactions = append(m.reactions, reaction)
	return nil
}

func (m *mockProvider) DeleteCommentThread(_ context.Context, _, threadHandle int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, threadHandle)
	return nil
}

func (m *mockProvider) CreateCommentThreadTemplate(_ context.Context, _ int, _ string, rng model.Range) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates = append(m.templates, rng)
	return nil
}

func (m *mockProvider) UpdateCommentThreadTemplate(_ context.Context, _, threadHandle int, rng model.Range) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.moved == nil {
		m.moved = make(map[int]model.Range)
	}
	m.moved[threadHandle] = rng
	return nil
}

// recordingSink captures every published batch.
type recordingSink struct {
	mu     sync.Mutex
	events []model.ThreadChangedEvent
}

func (s *recordingSink) UpdateComments(owner string, ev model.ThreadChangedEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev.Owner = owner
	s.events = append(s.events, ev)
}

func (s *recordingSink) all() []model.ThreadChangedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ThreadChangedEvent, len(s.events))
	copy(out, s.events)
	return out
}

func threadIDs(threads []*model.CommentThread) []string {
	out := make([]string, 0, len(threads))
	for _, th := range threads {
		out = append(out, th.ThreadID())
	}
	return out
}
