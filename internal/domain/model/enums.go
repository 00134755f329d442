package model

// CollapsibleState is the display state a thread requests for its viewport.
// The zero value is Collapsed.
type CollapsibleState int

const (
	Collapsed CollapsibleState = iota
	Expanded
)

// String returns a human-readable name for the state.
func (s CollapsibleState) String() string {
	switch s {
	case Collapsed:
		return "collapsed"
	case Expanded:
		return "expanded"
	default:
		return "unknown"
	}
}

// ChangeKind labels the three buckets of a ThreadChangedEvent.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
	ChangeChanged ChangeKind = "changed"
)
