package gc

import (
	"errors"
	"fmt"
)

// Standard GC errors. Runtimes should check these with errors.Is and map
// them to their own access errors.
var (
	// ErrNotInitialized indicates CollectGarbage or Summarize was called
	// before InitializeBaseState.
	ErrNotInitialized = errors.New("gc base state not initialized")

	// ErrRunInProgress indicates a CollectGarbage or Summarize call would
	// overlap a prior one on the same collector.
	ErrRunInProgress = errors.New("gc run already in progress")

	// ErrClosed indicates the collector was closed.
	ErrClosed = errors.New("collector is closed")

	// ErrNodeTombstoned indicates access to a node past the sweep
	// timeout. Surfaced only when tombstone enforcement is enabled.
	ErrNodeTombstoned = errors.New("node is tombstoned")

	// ErrNodeDeleted indicates access to a swept node. Always surfaced.
	ErrNodeDeleted = errors.New("node is deleted")

	// ErrInactiveNodeUsed indicates access to an inactive node. Surfaced
	// only under the strict inactive-usage policy, otherwise logged.
	ErrInactiveNodeUsed = errors.New("inactive node used")
)

// NodeError wraps a standard GC error with the node path it concerns.
type NodeError struct {
	Path string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// nodeErr builds a NodeError for path wrapping sentinel err.
func nodeErr(path string, err error) error {
	return &NodeError{Path: path, Err: err}
}
