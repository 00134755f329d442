// Package httphandler serves the REST API, the extension and editor websocket
// sessions, and the metrics endpoint.
package httphandler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ericfisherdev/commentsync/internal/adapter/driving/editor"
	"github.com/ericfisherdev/commentsync/internal/application"
	"github.com/ericfisherdev/commentsync/internal/domain/model"
	"github.com/ericfisherdev/commentsync/internal/domain/port/driven"
)

// Handler is the HTTP driving adapter.
type Handler struct {
	host     *application.CommentsHost
	registry *application.CommentRegistry
	drafts   driven.DraftStore
	syncSvc  *application.SyncService
	renderer editor.Renderer
	logger   *slog.Logger

	// sessionCtx outlives individual requests; websocket sessions end when it
	// is cancelled.
	sessionCtx context.Context
}

// NewHandler creates a Handler. drafts and syncSvc may be nil when draft
// persistence or the GitHub provider are disabled.
func NewHandler(
	ctx context.Context,
	host *application.CommentsHost,
	registry *application.CommentRegistry,
	drafts driven.DraftStore,
	syncSvc *application.SyncService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		host:       host,
		registry:   registry,
		drafts:     drafts,
		syncSvc:    syncSvc,
		renderer:   editor.HTMLRenderer{},
		logger:     logger,
		sessionCtx: ctx,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/controllers", h.ListControllers)
	mux.HandleFunc("GET /api/v1/comments", h.GetComments)
	mux.HandleFunc("GET /api/v1/commenting-ranges", h.GetCommentingRanges)
	mux.HandleFunc("POST /api/v1/threads/{owner}/{threadId}/delete", h.DeleteThread)
	mux.HandleFunc("POST /api/v1/threads/{owner}/{threadHandle}/reactions", h.ToggleReaction)
	mux.HandleFunc("GET /api/v1/drafts/{controllerId}", h.ListDrafts)
	mux.HandleFunc("GET /api/v1/sync", h.SyncStatus)
	mux.HandleFunc("POST /api/v1/sync", h.Refresh)
	mux.HandleFunc("GET /api/v1/extensions/ws", h.ExtensionSession)
	mux.HandleFunc("GET /api/v1/editor/ws", h.EditorSession)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// ListControllers returns every registered comment controller.
func (h *Handler) ListControllers(w http.ResponseWriter, _ *http.Request) {
	controllers := h.host.Controllers()

	resp := make([]ControllerResponse, 0, len(controllers))
	for _, c := range controllers {
		resp = append(resp, toControllerResponse(c))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetComments returns each controller's threads and commenting ranges for a
// resource. Controllers that fail to answer are left out.
func (h *Handler) GetComments(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		writeError(w, http.StatusBadRequest, "resource query parameter is required")
		return
	}

	infos := h.registry.GetComments(r.Context(), resource)

	resp := make([]CommentInfoResponse, 0, len(infos))
	for _, info := range infos {
		resp = append(resp, toCommentInfoResponse(info))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetCommentingRanges returns the union of every controller's commenting
// ranges for a resource.
func (h *Handler) GetCommentingRanges(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		writeError(w, http.StatusBadRequest, "resource query parameter is required")
		return
	}

	ranges := h.registry.GetCommentingRanges(r.Context(), resource)
	if ranges == nil {
		ranges = []model.Range{}
	}

	writeJSON(w, http.StatusOK, ranges)
}

// DeleteThread asks the owning provider to delete a thread. The deletion
// takes effect when the provider echoes it back.
func (h *Handler) DeleteThread(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	threadID := r.PathValue("threadId")

	if err := h.registry.DisposeCommentThread(r.Context(), owner, threadID); err != nil {
		h.logger.Warn("failed to delete thread", "owner", owner, "thread_id", threadID, "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// ToggleReactionRequest is the JSON body for the toggle reaction endpoint.
type ToggleReactionRequest struct {
	Resource  string `json:"resource"`
	CommentID int    `json:"comment_id"`
	Reaction  string `json:"reaction"`
}

// ToggleReaction toggles the user's reaction on one comment of a thread.
func (h *Handler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	threadHandle, err := strconv.Atoi(r.PathValue("threadHandle"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid thread handle")
		return
	}

	var req ToggleReactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reaction == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	controller, ok := h.registry.GetCommentController(owner)
	if !ok {
		writeError(w, http.StatusNotFound, "controller not found")
		return
	}
	thread, err := controller.Thread(threadHandle)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	var comment *model.Comment
	for _, c := range thread.Comments() {
		if c.UniqueIDInThread == req.CommentID {
			comment = &c
			break
		}
	}
	if comment == nil {
		writeError(w, http.StatusNotFound, "comment not found")
		return
	}

	reaction := model.Reaction{Label: req.Reaction}
	for _, existing := range comment.Reactions {
		if existing.Label == req.Reaction {
			reaction = existing
		}
	}

	resource := req.Resource
	if resource == "" {
		resource = thread.Resource()
	}

	if err := h.registry.ToggleReaction(r.Context(), owner, resource, threadHandle, *comment, reaction); err != nil {
		h.logger.Warn("failed to toggle reaction", "owner", owner, "thread_handle", threadHandle, "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListDrafts returns the persisted drafts of a controller id.
func (h *Handler) ListDrafts(w http.ResponseWriter, r *http.Request) {
	if h.drafts == nil {
		writeJSON(w, http.StatusOK, []DraftResponse{})
		return
	}

	controllerID := r.PathValue("controllerId")
	drafts, err := h.drafts.ListByController(r.Context(), controllerID)
	if err != nil {
		h.logger.Error("failed to list drafts", "controller_id", controllerID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]DraftResponse, 0, len(drafts))
	for _, d := range drafts {
		resp = append(resp, toDraftResponse(d))
	}

	writeJSON(w, http.StatusOK, resp)
}

// SyncStatus returns the adaptive schedule of every syncer.
func (h *Handler) SyncStatus(w http.ResponseWriter, _ *http.Request) {
	if h.syncSvc == nil {
		writeJSON(w, http.StatusOK, []application.ScheduleInfo{})
		return
	}
	writeJSON(w, http.StatusOK, h.syncSvc.Schedules())
}

// Refresh syncs the syncer named by the name query parameter, or all of them,
// and waits for the result.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.syncSvc == nil {
		writeError(w, http.StatusNotImplemented, "no syncers configured")
		return
	}

	name := r.URL.Query().Get("name")
	if err := h.syncSvc.Refresh(r.Context(), name); err != nil {
		h.logger.Warn("manual sync failed", "syncer", name, "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.syncSvc.Schedules())
}

// ExtensionSession upgrades to a websocket over which an extension registers
// controllers and answers provider calls.
func (h *Handler) ExtensionSession(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("extension websocket upgrade failed", "error", err)
		return
	}

	logger := h.logger.With("session", "extension", "remote", r.RemoteAddr)
	logger.Info("extension session opened")
	newExtensionSession(newPeer(conn, logger), h.host, logger).serve(h.sessionCtx)
}

// EditorSession upgrades to a websocket that drives one editor's comment
// decorations and zones.
func (h *Handler) EditorSession(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("editor websocket upgrade failed", "error", err)
		return
	}

	logger := h.logger.With("session", "editor", "remote", r.RemoteAddr)
	logger.Info("editor session opened")

	session := newEditorSession(newPeer(conn, logger), logger)
	coord := editor.NewCoordinator(h.registry, h.drafts, session, h.renderer)
	session.serve(h.sessionCtx, coord)
}
