package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ericfisherdev/commentsync/internal/application"
	"github.com/ericfisherdev/commentsync/internal/domain/model"
	"github.com/ericfisherdev/commentsync/internal/domain/port/driven"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps a service error onto its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, application.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, application.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, driven.ErrProviderUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// ControllerResponse is the JSON representation of a registered controller.
type ControllerResponse struct {
	Handle      int                    `json:"handle"`
	Owner       string                 `json:"owner"`
	ID          string                 `json:"id"`
	Label       string                 `json:"label"`
	ThreadCount int                    `json:"thread_count"`
	Features    model.ProviderFeatures `json:"features"`
}

// ThreadResponse is the JSON representation of a comment thread.
type ThreadResponse struct {
	Handle        int             `json:"handle"`
	ThreadID      string          `json:"thread_id"`
	ExtensionID   string          `json:"extension_id,omitempty"`
	Resource      string          `json:"resource"`
	Range         model.Range     `json:"range"`
	Label         string          `json:"label"`
	ContextValue  string          `json:"context_value,omitempty"`
	CollapseState string          `json:"collapse_state"`
	Comments      []model.Comment `json:"comments"`
}

// CommentInfoResponse is one controller's threads and commenting ranges for a
// resource.
type CommentInfoResponse struct {
	Owner            string           `json:"owner"`
	Label            string           `json:"label"`
	Threads          []ThreadResponse `json:"threads"`
	CommentingRanges []model.Range    `json:"commenting_ranges"`
}

// DraftResponse is the JSON representation of a persisted draft.
type DraftResponse struct {
	ThreadID  string `json:"thread_id"`
	Resource  string `json:"resource"`
	Body      string `json:"body"`
	UpdatedAt string `json:"updated_at"`
}

// toControllerResponse converts a controller to its JSON representation.
func toControllerResponse(c *application.CommentController) ControllerResponse {
	return ControllerResponse{
		Handle:      c.Handle(),
		Owner:       c.Owner(),
		ID:          c.ID(),
		Label:       c.Label(),
		ThreadCount: c.ThreadCount(),
		Features:    c.Features(),
	}
}

// toThreadResponse converts a live thread to its JSON representation.
func toThreadResponse(t *model.CommentThread) ThreadResponse {
	comments := t.Comments()
	if comments == nil {
		comments = []model.Comment{}
	}

	return ThreadResponse{
		Handle:        t.ThreadHandle(),
		ThreadID:      t.ThreadID(),
		ExtensionID:   t.ExtensionID(),
		Resource:      t.Resource(),
		Range:         t.Range(),
		Label:         model.ThreadLabel(t),
		ContextValue:  t.ContextValue(),
		CollapseState: t.CollapsibleState().String(),
		Comments:      comments,
	}
}

// toCommentInfoResponse converts a controller's comment info to its JSON
// representation.
func toCommentInfoResponse(info model.CommentInfo) CommentInfoResponse {
	threads := make([]ThreadResponse, 0, len(info.Threads))
	for _, t := range info.Threads {
		threads = append(threads, toThreadResponse(t))
	}

	ranges := info.CommentingRanges.Ranges
	if ranges == nil {
		ranges = []model.Range{}
	}

	return CommentInfoResponse{
		Owner:            info.Owner,
		Label:            info.Label,
		Threads:          threads,
		CommentingRanges: ranges,
	}
}

// toDraftResponse converts a draft to its JSON representation.
func toDraftResponse(d model.Draft) DraftResponse {
	return DraftResponse{
		ThreadID:  d.ThreadID,
		Resource:  d.Resource,
		Body:      d.Body,
		UpdatedAt: d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
