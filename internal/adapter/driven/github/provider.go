package github

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/commentsync/internal/domain/model"
	"github.com/ericfisherdev/commentsync/internal/domain/port/driven"
)

// ControllerID is the stable id the provider registers its controller under.
const ControllerID = "github-pr"

const extensionID = "commentsync.github"

// Thread context values exposed to editors.
const (
	ContextResolved   = "resolved"
	ContextUnresolved = "unresolved"
	ContextDraft      = "draft"
)

var (
	// ErrNotAttached is returned when the provider is used before Attach.
	ErrNotAttached = errors.New("github provider not attached")
	// ErrUnknownThread is returned for thread handles the provider never issued.
	ErrUnknownThread = errors.New("unknown thread")
)

// Host is the part of the comments host the provider drives.
type Host interface {
	RegisterController(provider driven.CommentProvider, id, label string) int
	UpdateControllerFeatures(handle int, features model.ProviderFeatures) error
	CreateCommentThread(handle, threadHandle int, threadID, resource string, rng model.Range, extensionID string) (*model.CommentThread, error)
	UpdateCommentThread(handle, threadHandle int, threadID, resource string, patch model.ThreadPatch) error
	DeleteCommentThread(handle, threadHandle int) error
}

// API is the GitHub access the provider needs.
type API interface {
	FetchReviewComments(ctx context.Context, repoFullName string, prNumber int) ([]ReviewComment, error)
	FetchChangedFiles(ctx context.Context, repoFullName string, prNumber int) ([]ChangedFile, error)
	FetchThreadResolution(ctx context.Context, repoFullName string, prNumber int) map[int64]bool
	ToggleCommentReaction(ctx context.Context, repoFullName string, commentID int64, content string) (bool, error)
	DeleteReviewComment(ctx context.Context, repoFullName string, commentID int64) error
}

var (
	_ API                    = (*Client)(nil)
	_ driven.CommentProvider = (*Provider)(nil)
)

// remoteThread is the provider's record of a thread it created on the host.
// rootID is zero for local draft threads that do not exist on GitHub yet.
type remoteThread struct {
	handle   int
	id       string
	resource string
	rootID   int64
	comments []model.Comment
}

// Provider mirrors the review threads of one pull request into a comments
// host and serves the host's provider requests.
type Provider struct {
	api    API
	repo   string
	number int
	root   string

	syncMu sync.Mutex

	mu         sync.Mutex
	host       Host
	handle     int
	nextThread int
	threads    map[int]*remoteThread
	byRoot     map[int64]int
	ranges     map[string][]model.Range
}

// NewProvider creates a provider for pull request number of repo. Paths in the
// pull request are mapped to resources under workspaceRoot.
func NewProvider(api API, repo string, number int, workspaceRoot string) *Provider {
	return &Provider{
		api:     api,
		repo:    repo,
		number:  number,
		root:    strings.TrimSuffix(workspaceRoot, "/"),
		threads: make(map[int]*remoteThread),
		byRoot:  make(map[int64]int),
	}
}

// Label is the controller label shown to users.
func (p *Provider) Label() string { return fmt.Sprintf("%s#%d", p.repo, p.number) }

// Resource maps a repository path to the head-side resource URI.
func (p *Provider) Resource(path string) string {
	return p.root + "/" + strings.TrimPrefix(path, "/")
}

// BaseResource maps a repository path to the base-side resource URI, as shown
// on the original side of a diff editor.
func (p *Provider) BaseResource(path string) string {
	return p.Resource(path) + "?side=base"
}

// Attach registers the provider's controller with host, declares reaction
// support and runs a first sync. The handle is returned even when the sync
// fails so the caller can retry later.
func (p *Provider) Attach(ctx context.Context, host Host) (int, error) {
	handle := host.RegisterController(p, ControllerID, p.Label())
	if err := host.UpdateControllerFeatures(handle, model.ProviderFeatures{ReactionHandler: true}); err != nil {
		return handle, fmt.Errorf("declare provider features: %w", err)
	}

	p.mu.Lock()
	p.host = host
	p.handle = handle
	p.mu.Unlock()

	slog.Info("github provider attached", "controller_handle", handle, "repo", p.repo, "pr", p.number)

	if _, err := p.Sync(ctx); err != nil {
		return handle, err
	}
	return handle, nil
}

// Sync fetches the pull request's files and review comments and brings the
// host's threads in line: new threads are created, known ones patched and
// vanished ones deleted. Local draft threads are left alone. It returns the
// time of the newest comment.
func (p *Provider) Sync(ctx context.Context) (time.Time, error) {
	p.syncMu.Lock()
	defer p.syncMu.Unlock()

	host, handle := p.attachment()
	if host == nil {
		return time.Time{}, ErrNotAttached
	}

	files, err := p.api.FetchChangedFiles(ctx, p.repo, p.number)
	if err != nil {
		return time.Time{}, fmt.Errorf("sync %s: %w", p.Label(), err)
	}
	comments, err := p.api.FetchReviewComments(ctx, p.repo, p.number)
	if err != nil {
		return time.Time{}, fmt.Errorf("sync %s: %w", p.Label(), err)
	}
	resolved := p.api.FetchThreadResolution(ctx, p.repo, p.number)

	ranges := p.rangesFor(files)
	p.mu.Lock()
	p.ranges = ranges
	p.mu.Unlock()

	var newest time.Time
	seen := make(map[int64]struct{})
	for _, g := range groupThreads(comments) {
		for _, c := range g {
			if c.CreatedAt.After(newest) {
				newest = c.CreatedAt
			}
		}
		root := g[0]
		if root.Line == 0 {
			slog.Debug("skipping outdated review thread", "root_id", root.ID, "path", root.Path)
			continue
		}
		seen[root.ID] = struct{}{}
		p.syncThread(host, handle, g, resolved[root.ID])
	}

	p.mu.Lock()
	var gone []*remoteThread
	for rootID, th := range p.byRoot {
		if _, ok := seen[rootID]; !ok {
			gone = append(gone, p.threads[th])
			delete(p.byRoot, rootID)
			delete(p.threads, th)
		}
	}
	p.mu.Unlock()

	for _, t := range gone {
		if err := host.DeleteCommentThread(handle, t.handle); err != nil {
			slog.Warn("delete vanished thread failed", "thread_handle", t.handle, "thread_id", t.id, "error", err)
		}
	}

	slog.Info("github provider synced", "repo", p.repo, "pr", p.number,
		"files", len(files), "comments", len(comments), "removed", len(gone))
	return newest, nil
}

func (p *Provider) syncThread(host Host, handle int, group []ReviewComment, isResolved bool) {
	root := group[0]
	resource := p.Resource(root.Path)
	if strings.EqualFold(root.Side, "LEFT") {
		resource = p.BaseResource(root.Path)
	}
	rng := commentRange(root)
	comments := mapComments(group)
	contextValue := ContextUnresolved
	if isResolved {
		contextValue = ContextResolved
	}

	p.mu.Lock()
	th, known := p.byRoot[root.ID]
	if !known {
		p.nextThread++
		th = p.nextThread
		p.byRoot[root.ID] = th
	}
	t, ok := p.threads[th]
	if !ok {
		t = &remoteThread{handle: th, id: fmt.Sprintf("gh-%d", root.ID), resource: resource, rootID: root.ID}
		p.threads[th] = t
	}
	t.comments = comments
	p.mu.Unlock()

	patch := model.ThreadPatch{Range: &rng, Comments: &comments, ContextValue: &contextValue}
	if !known {
		if _, err := host.CreateCommentThread(handle, th, t.id, resource, rng, extensionID); err != nil {
			slog.Warn("create synced thread failed", "thread_id", t.id, "resource", resource, "error", err)
			p.forget(th)
			return
		}
		state := model.Expanded
		if isResolved {
			state = model.Collapsed
		}
		patch.CollapseState = &state
	}

	if err := host.UpdateCommentThread(handle, th, t.id, t.resource, patch); err != nil {
		slog.Warn("update synced thread failed", "thread_handle", th, "thread_id", t.id, "error", err)
	}
}

// ProvideCommentingRanges returns the patch hunks of resource. Files are
// fetched on first use when no sync has run yet.
func (p *Provider) ProvideCommentingRanges(ctx context.Context, _ int, resource string) ([]model.Range, error) {
	p.mu.Lock()
	loaded := p.ranges != nil
	p.mu.Unlock()

	if !loaded {
		files, err := p.api.FetchChangedFiles(ctx, p.repo, p.number)
		if err != nil {
			return nil, fmt.Errorf("commenting ranges for %s: %w", resource, err)
		}
		ranges := p.rangesFor(files)
		p.mu.Lock()
		if p.ranges == nil {
			p.ranges = ranges
		}
		p.mu.Unlock()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	out := slices.Clone(p.ranges[resource])
	if out == nil {
		out = []model.Range{}
	}
	return out, nil
}

// ToggleReaction adds or removes the user's reaction on a GitHub comment and
// updates the thread's reaction counts.
func (p *Provider) ToggleReaction(ctx context.Context, _, threadHandle int, _ string, comment model.Comment, reaction model.Reaction) error {
	host, handle := p.attachment()
	if host == nil {
		return ErrNotAttached
	}

	p.mu.Lock()
	t, ok := p.threads[threadHandle]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("toggle reaction on thread %d: %w", threadHandle, ErrUnknownThread)
	}
	if comment.RemoteID == 0 {
		return fmt.Errorf("toggle reaction on thread %s: comment %d is not on GitHub", t.id, comment.UniqueIDInThread)
	}

	present, err := p.api.ToggleCommentReaction(ctx, p.repo, comment.RemoteID, reaction.Label)
	if err != nil {
		return fmt.Errorf("toggle reaction on thread %s: %w", t.id, err)
	}

	p.mu.Lock()
	t.comments = applyReaction(t.comments, comment.RemoteID, reaction.Label, present)
	comments := slices.Clone(t.comments)
	p.mu.Unlock()

	return host.UpdateCommentThread(handle, threadHandle, t.id, t.resource, model.ThreadPatch{Comments: &comments})
}

// DeleteCommentThread deletes every comment of the thread on GitHub, replies
// first, then removes the thread from the host.
func (p *Provider) DeleteCommentThread(ctx context.Context, _, threadHandle int) error {
	host, handle := p.attachment()
	if host == nil {
		return ErrNotAttached
	}

	p.mu.Lock()
	t, ok := p.threads[threadHandle]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("delete thread %d: %w", threadHandle, ErrUnknownThread)
	}

	for i := len(t.comments) - 1; i >= 0; i-- {
		id := t.comments[i].RemoteID
		if id == 0 {
			continue
		}
		if err := p.api.DeleteReviewComment(ctx, p.repo, id); err != nil {
			return fmt.Errorf("delete thread %s: %w", t.id, err)
		}
	}

	p.forget(threadHandle)
	return host.DeleteCommentThread(handle, threadHandle)
}

// CreateCommentThreadTemplate creates an empty, expanded draft thread at rng.
func (p *Provider) CreateCommentThreadTemplate(_ context.Context, _ int, resource string, rng model.Range) error {
	host, handle := p.attachment()
	if host == nil {
		return ErrNotAttached
	}

	p.mu.Lock()
	p.nextThread++
	t := &remoteThread{handle: p.nextThread, id: "draft-" + uuid.NewString(), resource: resource}
	p.threads[t.handle] = t
	p.mu.Unlock()

	if _, err := host.CreateCommentThread(handle, t.handle, t.id, resource, rng, extensionID); err != nil {
		p.forget(t.handle)
		return fmt.Errorf("create draft thread: %w", err)
	}

	expanded := model.Expanded
	contextValue := ContextDraft
	return host.UpdateCommentThread(handle, t.handle, t.id, resource, model.ThreadPatch{
		CollapseState: &expanded,
		ContextValue:  &contextValue,
	})
}

// UpdateCommentThreadTemplate moves a draft thread to rng.
func (p *Provider) UpdateCommentThreadTemplate(_ context.Context, _, threadHandle int, rng model.Range) error {
	host, handle := p.attachment()
	if host == nil {
		return ErrNotAttached
	}

	p.mu.Lock()
	t, ok := p.threads[threadHandle]
	p.mu.Unlock()
	if !ok || t.rootID != 0 {
		return fmt.Errorf("update draft thread %d: %w", threadHandle, ErrUnknownThread)
	}

	return host.UpdateCommentThread(handle, threadHandle, t.id, t.resource, model.ThreadPatch{Range: &rng})
}

func (p *Provider) attachment() (Host, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.host, p.handle
}

func (p *Provider) forget(threadHandle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.threads[threadHandle]; ok && t.rootID != 0 {
		delete(p.byRoot, t.rootID)
	}
	delete(p.threads, threadHandle)
}

func (p *Provider) rangesFor(files []ChangedFile) map[string][]model.Range {
	out := make(map[string][]model.Range, len(files))
	for _, f := range files {
		hr, err := patchRanges(f.Patch)
		if err != nil {
			slog.Warn("unreadable patch", "path", f.Path, "error", err)
			continue
		}
		out[p.Resource(f.Path)] = hr.Head
		out[p.BaseResource(f.Path)] = hr.Base
	}
	return out
}

// groupThreads groups review comments into threads. GitHub points every reply
// at the thread's first comment, so a thread is a root plus the comments
// replying to it, oldest first. Replies whose root is missing are dropped.
func groupThreads(comments []ReviewComment) [][]ReviewComment {
	byRoot := make(map[int64][]ReviewComment)
	var roots []ReviewComment
	for _, c := range comments {
		if c.InReplyTo == 0 {
			roots = append(roots, c)
		} else {
			byRoot[c.InReplyTo] = append(byRoot[c.InReplyTo], c)
		}
	}

	byCreated := func(a, b ReviewComment) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	}
	slices.SortFunc(roots, byCreated)

	out := make([][]ReviewComment, 0, len(roots))
	for _, root := range roots {
		replies := byRoot[root.ID]
		slices.SortFunc(replies, byCreated)
		out = append(out, append([]ReviewComment{root}, replies...))
	}
	return out
}

// commentRange anchors a thread on its root comment's lines.
func commentRange(root ReviewComment) model.Range {
	start := root.StartLine
	if start <= 0 || start > root.Line {
		start = root.Line
	}
	return model.Range{StartLine: start, StartColumn: 1, EndLine: root.Line, EndColumn: 1}
}

func mapComments(group []ReviewComment) []model.Comment {
	out := make([]model.Comment, 0, len(group))
	for i, c := range group {
		comment := model.Comment{
			UniqueIDInThread: i + 1,
			RemoteID:         c.ID,
			Author:           c.Author,
			AuthorIconURL:    c.AvatarURL,
			Body:             c.Body,
			Timestamp:        c.CreatedAt,
			Mode:             model.CommentModePreview,
		}
		for _, entry := range reactionContents {
			if n := c.Reactions[entry.content]; n > 0 {
				comment.Reactions = append(comment.Reactions, model.Reaction{Label: entry.content, Count: n})
			}
		}
		out = append(out, comment)
	}
	return out
}

// applyReaction returns comments with the reaction on remoteID adjusted to
// present. Counts never drop below zero and empty reactions are removed.
func applyReaction(comments []model.Comment, remoteID int64, label string, present bool) []model.Comment {
	out := slices.Clone(comments)
	for i := range out {
		if out[i].RemoteID != remoteID {
			continue
		}
		reactions := slices.Clone(out[i].Reactions)
		idx := slices.IndexFunc(reactions, func(r model.Reaction) bool { return r.Label == label })
		switch {
		case idx < 0 && present:
			reactions = append(reactions, model.Reaction{Label: label, Count: 1, HasReacted: true})
		case idx >= 0 && present:
			if !reactions[idx].HasReacted {
				reactions[idx].Count++
			}
			reactions[idx].HasReacted = true
		case idx >= 0:
			if reactions[idx].HasReacted || reactions[idx].Count > 0 {
				reactions[idx].Count--
			}
			reactions[idx].HasReacted = false
			if reactions[idx].Count <= 0 {
				reactions = slices.Delete(reactions, idx, idx+1)
			}
		}
		out[i].Reactions = reactions
	}
	return out
}
