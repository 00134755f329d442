package model

import "time"

// CommentMode is the presentation mode of a single comment.
type CommentMode string

const (
	CommentModePreview CommentMode = "preview"
	CommentModeEditing CommentMode = "editing"
)

// Comment is one entry in a thread. It has no identity outside its thread;
// UniqueIDInThread only distinguishes siblings, and RemoteID carries the
// provider's own identifier when it has one.
type Comment struct {
	UniqueIDInThread int         `json:"uniqueIdInThread"`
	RemoteID         int64       `json:"remoteId,omitempty"`
	Author           string      `json:"userName"`
	AuthorIconURL    string      `json:"userIconPath,omitempty"`
	Body             string      `json:"body"`
	Timestamp        time.Time   `json:"timestamp"`
	Mode             CommentMode `json:"mode"`
	ContextValue     string      `json:"contextValue,omitempty"`
	Reactions        []Reaction  `json:"commentReactions,omitempty"`
}

// Reaction is an emoji-style reaction aggregated over a comment.
type Reaction struct {
	Label      string `json:"label"`
	Count      int    `json:"count"`
	HasReacted bool   `json:"hasReacted"`
}

// CommentInput is the unsent text a user is composing in a thread.
type CommentInput struct {
	Value string `json:"value"`
	URI   string `json:"uri"`
}

// Draft is a persisted pending comment, keyed by the stable controller id and
// thread id so it survives controller re-registration.
type Draft struct {
	ControllerID string
	ThreadID     string
	Resource     string
	Body         string
	UpdatedAt    time.Time
}
