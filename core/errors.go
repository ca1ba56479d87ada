package core

import (
	"errors"
	"fmt"
)

// ErrTurnInFlight is returned when a second turn is submitted for a thread
// whose previous turn has not finished. Turns for one thread are never
// interleaved against the same checkpoint.
var ErrTurnInFlight = errors.New("turn already in flight for thread")

// ErrEmptyMessage is returned when a submitted turn carries no content.
var ErrEmptyMessage = errors.New("message content is required")

// ErrMissingThreadID is returned when a turn or clear request omits the
// thread identifier.
var ErrMissingThreadID = errors.New("thread_id is required")

// RoutingError indicates the supervisor produced no parseable decision or a
// node name outside the declared set. Fatal for the current turn: the turn
// aborts and the last-saved checkpoint is left untouched.
type RoutingError struct {
	Decision string // raw decision text, possibly empty
	Reason   string
}

func (e *RoutingError) Error() string {
	if e.Decision == "" {
		return fmt.Sprintf("routing error: %s", e.Reason)
	}
	return fmt.Sprintf("routing error: %s (decision %q)", e.Reason, e.Decision)
}

// RoutingLoopError indicates a turn exceeded the executor's step ceiling,
// guarding against a supervisor oscillating indefinitely. Fatal, handled
// like RoutingError.
type RoutingLoopError struct {
	Steps int
}

func (e *RoutingLoopError) Error() string {
	return fmt.Sprintf("routing loop: exceeded %d steps without reaching a terminal state", e.Steps)
}

// NodeError wraps an unrecoverable failure inside a node's own model call.
// Fatal for the turn.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string { return fmt.Sprintf("node %s failed: %v", e.Node, e.Err) }

func (e *NodeError) Unwrap() error { return e.Err }
