package application

import (
	"errors"
	"fmt"
)

// ErrNotFound is the class of errors raised when a caller references a
// controller or thread handle the host does not know. It signals a desync
// between provider and host and is never swallowed.
var ErrNotFound = errors.New("not found")

var (
	// ErrControllerNotFound is returned for an unknown controller handle or owner.
	ErrControllerNotFound = fmt.Errorf("controller %w", ErrNotFound)
	// ErrThreadNotFound is returned for an unknown thread handle or id.
	ErrThreadNotFound = fmt.Errorf("thread %w", ErrNotFound)
	// ErrSyncerNotFound is returned when a refresh names an unknown syncer.
	ErrSyncerNotFound = fmt.Errorf("syncer %w", ErrNotFound)
)

// ErrUnsupported is returned when a provider did not declare the capability an
// operation needs.
var ErrUnsupported = errors.New("unsupported by provider")
