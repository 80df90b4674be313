package engine

import (
	"errors"
	"fmt"

	"github.com/loomworks/loom/graph"
)

// ErrNotPaused is returned by Resume when the run has no pending interrupt,
// typically because it already completed or was already resumed.
var ErrNotPaused = errors.New("engine: run is not paused")

// ErrStepLimit is returned when a run exceeds the configured step budget.
var ErrStepLimit = errors.New("engine: step limit exceeded")

// TaskError surfaces a task or router failure with the failing node and run.
// The engine never retries; retry is the task function's own responsibility.
type TaskError struct {
	RunID string
	Node  graph.NodeID
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("engine: run %s: node %s: %v", e.RunID, e.Node, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }
