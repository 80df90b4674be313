// Package graph defines executable workflow graphs: nodes bound to task
// functions, direct and conditional edges, join barriers, state merge
// policies, and compile-time validation. A compiled Graph is immutable and is
// driven by the engine package.
package graph

import "context"

// NodeID identifies a node within a graph.
type NodeID string

// End is the terminal sentinel. Routers return it (and edges may point at it)
// to finish a run or branch. It is never a real node.
const End NodeID = "__end__"

// Task is the unit of work bound to a node. It reads a snapshot of run state
// and returns a fragment to merge back; it must not retain or mutate the
// view. A failing task aborts the step and the run.
type Task func(ctx context.Context, view Values) (Values, error)

// Router inspects state after its node ran and decides the next frontier.
type Router func(ctx context.Context, view Values) (Decision, error)

// Decision is a router's verdict: one or more next nodes, a fan-out into
// isolated sub-graph branches, or terminal (no next nodes).
type Decision struct {
	// Next lists successor nodes. End entries terminate that path.
	Next []NodeID
	// Target names the sub-graph node each fan-out branch invokes.
	Target NodeID
	// Branches holds one isolated initial-state slice per branch.
	Branches []Branch
}

// Branch describes one fan-out invocation of a sub-graph node.
type Branch struct {
	// Input is overlaid on the parent's projected input keys to form the
	// branch-local initial state. Branches share nothing else.
	Input Values
}

// Goto routes to a single next node (or End).
func Goto(id NodeID) Decision {
	return Decision{Next: []NodeID{id}}
}

// GotoEach routes to several nodes that run in parallel next step.
func GotoEach(ids ...NodeID) Decision {
	return Decision{Next: append([]NodeID(nil), ids...)}
}

// Fanout schedules one isolated sub-graph invocation of target per branch.
// Zero branches is valid: the target completes immediately with an empty
// contribution.
func Fanout(target NodeID, branches ...Branch) Decision {
	return Decision{Target: target, Branches: append([]Branch(nil), branches...)}
}

// Stop returns the terminal decision.
func Stop() Decision {
	return Goto(End)
}

// IsFanout reports whether the decision dispatches branches.
func (d Decision) IsFanout() bool {
	return d.Target != ""
}
