package model

// ThreadChangedEvent is one batch of thread changes from a single controller.
// Owner is the controller's registry id; the registry stamps it before the
// event is published.
type ThreadChangedEvent struct {
	Owner   string
	Added   []*CommentThread
	Removed []*CommentThread
	Changed []*CommentThread
}

// IsEmpty reports whether the event carries no threads at all.
func (e ThreadChangedEvent) IsEmpty() bool {
	return len(e.Added) == 0 && len(e.Removed) == 0 && len(e.Changed) == 0
}

// CommentingRanges lists where a new thread may be started in one resource.
type CommentingRanges struct {
	Resource string  `json:"resource"`
	Ranges   []Range `json:"ranges"`
}

// CommentInfo is one controller's answer for a resource: its known threads
// plus the ranges it accepts new threads on.
type CommentInfo struct {
	Owner            string
	Label            string
	Threads          []*CommentThread
	CommentingRanges CommentingRanges
}

// CommentOptions customizes the reply box of new threads.
type CommentOptions struct {
	Prompt      string `json:"prompt,omitempty"`
	PlaceHolder string `json:"placeHolder,omitempty"`
}

// ProviderFeatures are the capabilities a controller's provider declares.
type ProviderFeatures struct {
	ReactionHandler bool            `json:"reactionHandler"`
	Options         *CommentOptions `json:"options,omitempty"`
}

// WorkspaceComments is the set of threads a controller publishes for the
// whole workspace rather than a single document.
type WorkspaceComments struct {
	Owner   string
	Threads []*CommentThread
}

// DocumentComments is a wholesale replacement of the infos shown for a resource.
type DocumentComments struct {
	Resource string
	Infos    []CommentInfo
}
