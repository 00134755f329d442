package httphandler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ericfisherdev/commentsync/internal/application"
	"github.com/ericfisherdev/commentsync/internal/domain/model"
	"github.com/ericfisherdev/commentsync/internal/domain/port/driven"
)

// Host is the provider-registration layer extension sessions drive.
type Host interface {
	RegisterController(provider driven.CommentProvider, id, label string) int
	UnregisterController(handle int) error
	UpdateControllerFeatures(handle int, features model.ProviderFeatures) error
	CreateCommentThread(handle, threadHandle int, threadID, resource string, rng model.Range, extensionID string) (*model.CommentThread, error)
	UpdateCommentThread(handle, threadHandle int, threadID, resource string, patch model.ThreadPatch) error
	DeleteCommentThread(handle, threadHandle int) error
	OnDidCommentThreadsChange(handle int, added, removed, changed []int) error
	ActiveControllerHandle() (int, bool)
	UpdateInput(handle int, text string) bool
}

var _ Host = (*application.CommentsHost)(nil)

// Parameter shapes of the extension protocol.
type (
	registerParams struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	}
	handleParams struct {
		Handle int `json:"handle"`
	}
	featuresParams struct {
		Handle   int                    `json:"handle"`
		Features model.ProviderFeatures `json:"features"`
	}
	createThreadParams struct {
		Handle       int         `json:"handle"`
		ThreadHandle int         `json:"threadHandle"`
		ThreadID     string      `json:"threadId"`
		Resource     string      `json:"resource"`
		Range        model.Range `json:"range"`
		ExtensionID  string      `json:"extensionId"`
	}
	updateThreadParams struct {
		Handle       int               `json:"handle"`
		ThreadHandle int               `json:"threadHandle"`
		ThreadID     string            `json:"threadId"`
		Resource     string            `json:"resource"`
		Patch        model.ThreadPatch `json:"patch"`
	}
	deleteThreadParams struct {
		Handle       int `json:"handle"`
		ThreadHandle int `json:"threadHandle"`
	}
	threadsChangedParams struct {
		Handle  int   `json:"handle"`
		Added   []int `json:"added"`
		Removed []int `json:"removed"`
		Changed []int `json:"changed"`
	}
	updateInputParams struct {
		Text string `json:"text"`
	}

	rangesRequest struct {
		ControllerHandle int    `json:"controllerHandle"`
		Resource         string `json:"resource"`
	}
	reactionRequest struct {
		ControllerHandle int            `json:"controllerHandle"`
		ThreadHandle     int            `json:"threadHandle"`
		Resource         string         `json:"resource"`
		Comment          model.Comment  `json:"comment"`
		Reaction         model.Reaction `json:"reaction"`
	}
	threadRequest struct {
		ControllerHandle int `json:"controllerHandle"`
		ThreadHandle     int `json:"threadHandle"`
	}
	templateRequest struct {
		ControllerHandle int         `json:"controllerHandle"`
		ThreadHandle     int         `json:"threadHandle,omitempty"`
		Resource         string      `json:"resource,omitempty"`
		Range            model.Range `json:"range"`
	}
)

// extensionSession is one connected extension process. It serves the host
// entry points to the extension and is the CommentProvider of every
// controller the extension registers.
type extensionSession struct {
	peer   *peer
	host   Host
	logger *slog.Logger

	mu      sync.Mutex
	handles []int
}

var _ driven.CommentProvider = (*extensionSession)(nil)

func newExtensionSession(p *peer, host Host, logger *slog.Logger) *extensionSession {
	return &extensionSession{peer: p, host: host, logger: logger}
}

// serve runs the session until the connection drops, then unregisters every
// controller the extension left behind.
func (s *extensionSession) serve(ctx context.Context) {
	s.peer.run(ctx, s.handle)

	s.mu.Lock()
	handles := slices.Clone(s.handles)
	s.handles = nil
	s.mu.Unlock()

	for _, h := range handles {
		if err := s.host.UnregisterController(h); err != nil {
			s.logger.Warn("unregister on disconnect failed", "controller_handle", h, "error", err)
		}
	}
	s.logger.Info("extension session closed", "controllers", len(handles))
}

func (s *extensionSession) handle(m message) {
	result, err := s.dispatch(m)
	if err != nil {
		s.logger.Warn("extension request failed", "method", m.Method, "error", err)
	}
	s.peer.reply(m.ID, result, err)
}

func (s *extensionSession) dispatch(m message) (any, error) {
	switch m.Method {
	case "registerController":
		var p registerParams
		if err := decodeParams(m, &p); err != nil {
			return nil, err
		}
		h := s.host.RegisterController(s, p.ID, p.Label)
		s.mu.Lock()
		s.handles = append(s.handles, h)
		s.mu.Unlock()
		return handleParams{Handle: h}, nil

	case "unregisterController":
		var p handleParams
		if err := decodeParams(m, &p); err != nil {
			return nil, err
		}
		if err := s.owns(p.Handle); err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.handles = slices.DeleteFunc(s.handles, func(h int) bool { return h == p.Handle })
		s.mu.Unlock()
		return nil, s.host.UnregisterController(p.Handle)

	case "updateControllerFeatures":
		var p featuresParams
		if err := decodeParams(m, &p); err != nil {
			return nil, err
		}
		if err := s.owns(p.Handle); err != nil {
			return nil, err
		}
		return nil, s.host.UpdateControllerFeatures(p.Handle, p.Features)

	case "createCommentThread":
		var p createThreadParams
		if err := decodeParams(m, &p); err != nil {
			return nil, err
		}
		if err := s.owns(p.Handle); err != nil {
			return nil, err
		}
		_, err := s.host.CreateCommentThread(p.Handle, p.ThreadHandle, p.ThreadID, p.Resource, p.Range, p.ExtensionID)
		return nil, err

	case "updateCommentThread":
		var p updateThreadParams
		if err := decodeParams(m, &p); err != nil {
			return nil, err
		}
		if err := s.owns(p.Handle); err != nil {
			return nil, err
		}
		return nil, s.host.UpdateCommentThread(p.Handle, p.ThreadHandle, p.ThreadID, p.Resource, p.Patch)

	case "deleteCommentThread":
		var p deleteThreadParams
		if err := decodeParams(m, &p); err != nil {
			return nil, err
		}
		if err := s.owns(p.Handle); err != nil {
			return nil, err
		}
		return nil, s.host.DeleteCommentThread(p.Handle, p.ThreadHandle)

	case "commentThreadsChanged":
		var p threadsChangedParams
		if err := decodeParams(m, &p); err != nil {
			return nil, err
		}
		if err := s.owns(p.Handle); err != nil {
			return nil, err
		}
		return nil, s.host.OnDidCommentThreadsChange(p.Handle, p.Added, p.Removed, p.Changed)

	case "updateInput":
		var p updateInputParams
		if err := decodeParams(m, &p); err != nil {
			return nil, err
		}
		handle, ok := s.host.ActiveControllerHandle()
		if !ok {
			return nil, nil
		}
		if err := s.owns(handle); err != nil {
			return nil, err
		}
		s.host.UpdateInput(handle, p.Text)
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown method %q", m.Method)
	}
}

// owns rejects handles registered by other sessions.
func (s *extensionSession) owns(handle int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.handles, handle) {
		return fmt.Errorf("controller %d: %w", handle, application.ErrControllerNotFound)
	}
	return nil
}

func (s *extensionSession) ProvideCommentingRanges(ctx context.Context, controllerHandle int, resource string) ([]model.Range, error) {
	var ranges []model.Range
	err := s.peer.call(ctx, "provideCommentingRanges", rangesRequest{ControllerHandle: controllerHandle, Resource: resource}, &ranges)
	if err != nil {
		return nil, err
	}
	return ranges, nil
}

func (s *extensionSession) ToggleReaction(ctx context.Context, controllerHandle, threadHandle int, resource string, comment model.Comment, reaction model.Reaction) error {
	return s.peer.call(ctx, "toggleReaction", reactionRequest{
		ControllerHandle: controllerHandle,
		ThreadHandle:     threadHandle,
		Resource:         resource,
		Comment:          comment,
		Reaction:         reaction,
	}, nil)
}

func (s *extensionSession) DeleteCommentThread(ctx context.Context, controllerHandle, threadHandle int) error {
	return s.peer.call(ctx, "deleteCommentThread", threadRequest{ControllerHandle: controllerHandle, ThreadHandle: threadHandle}, nil)
}

func (s *extensionSession) CreateCommentThreadTemplate(ctx context.Context, controllerHandle int, resource string, rng model.Range) error {
	return s.peer.call(ctx, "createCommentThreadTemplate", templateRequest{ControllerHandle: controllerHandle, Resource: resource, Range: rng}, nil)
}

func (s *extensionSession) UpdateCommentThreadTemplate(ctx context.Context, controllerHandle, threadHandle int, rng model.Range) error {
	return s.peer.call(ctx, "updateCommentThreadTemplate", templateRequest{ControllerHandle: controllerHandle, ThreadHandle: threadHandle, Range: rng}, nil)
}
