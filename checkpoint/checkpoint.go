// Package checkpoint persists workflow run snapshots. A checkpoint is the
// sole source of truth for what a run executes next: indefinite pauses
// survive process restarts because resuming loads from the Store, never from
// engine memory.
package checkpoint

import (
	"errors"
	"time"

	"github.com/loomworks/loom/graph"
)

// ErrNotFound is returned when no checkpoint exists for a run id. It is
// recoverable: callers may start the run fresh.
var ErrNotFound = errors.New("checkpoint: not found")

// Checkpoint is the durable snapshot of one run. Exactly one exists per run
// id; every step boundary overwrites it with a strictly larger Step.
type Checkpoint struct {
	RunID  string       `json:"run_id"`
	Step   int          `json:"step"`
	Values graph.Values `json:"values"`
	// Pending lists the nodes scheduled for the next step. Empty means the
	// run completed.
	Pending []graph.NodeID `json:"pending,omitempty"`
	// Joins records which sources of each barrier target have completed, so
	// partially satisfied barriers survive a restart.
	Joins     map[graph.NodeID][]graph.NodeID `json:"joins,omitempty"`
	UpdatedAt time.Time                       `json:"updated_at"`
}

// Clone deep-copies the checkpoint so stored and live state never alias.
func (c Checkpoint) Clone() Checkpoint {
	out := Checkpoint{
		RunID:     c.RunID,
		Step:      c.Step,
		Values:    c.Values.Clone(),
		UpdatedAt: c.UpdatedAt,
	}
	if len(c.Pending) > 0 {
		out.Pending = append([]graph.NodeID(nil), c.Pending...)
	}
	if len(c.Joins) > 0 {
		out.Joins = make(map[graph.NodeID][]graph.NodeID, len(c.Joins))
		for target, sources := range c.Joins {
			out.Joins[target] = append([]graph.NodeID(nil), sources...)
		}
	}
	return out
}

// Store persists checkpoints keyed by run id.
//
// Save must be atomic: either the new snapshot becomes fully durable or the
// prior one remains authoritative. A half-written snapshot must never be
// observable. Load returns ErrNotFound when the run id has no checkpoint.
type Store interface {
	Load(runID string) (Checkpoint, error)
	Save(Checkpoint) error
}
