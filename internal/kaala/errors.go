package kaala

import "errors"

// Sentinel errors. Wrap with fmt.Errorf("...: %w", ErrX) for context;
// callers should compare with errors.Is.
var (
	// ErrDisposed is returned by any operation called after Dispose.
	ErrDisposed = errors.New("kaala: manager disposed")
	// ErrMaxDepth is returned by RegisterAgent when depth would exceed the ceiling.
	ErrMaxDepth = errors.New("kaala: max agent depth exceeded")
	// ErrUnknownParent is returned by RegisterAgent for an unknown parentId.
	ErrUnknownParent = errors.New("kaala: unknown parent agent")
	// ErrParentTerminal is returned by RegisterAgent when the parent is in a terminal state.
	ErrParentTerminal = errors.New("kaala: parent agent is in a terminal state")
	// ErrUnknownAgent is returned when an operation names an agent that doesn't exist.
	ErrUnknownAgent = errors.New("kaala: unknown agent")
	// ErrAlreadyRegistered is returned by RegisterAgent for a duplicate ID.
	ErrAlreadyRegistered = errors.New("kaala: agent already registered")
)
