package engine

import (
	"context"
	"fmt"

	"github.com/loomworks/loom/graph"
)

// runFanout dispatches one isolated sub-graph invocation per branch and
// returns the combined fragment for the parent's append keys. Branches share
// nothing beyond their injected input slice; every branch must complete
// before the fragment is surfaced, and a single branch failure fails the
// containing step. Callers needing partial-success semantics convert errors
// to normal output values inside the branch.
func (e *Engine) runFanout(ctx context.Context, runID string, target *graph.Node, branches []graph.Branch, parent graph.Values) (graph.Values, error) {
	if target.Sub == nil {
		return nil, &TaskError{RunID: runID, Node: target.ID, Err: fmt.Errorf("fan-out target is not a sub-graph node")}
	}
	fragment := graph.Values{}
	if len(branches) == 0 {
		// Zero branches is not an error: the join proceeds immediately with
		// an empty contribution.
		return fragment, nil
	}
	type branchResult struct {
		index  int
		values graph.Values
		err    error
	}
	base := parent.Project(target.Inputs)
	results := make(chan branchResult, len(branches))
	for i, branch := range branches {
		input := base.Clone()
		for key, value := range branch.Input.Clone() {
			input[key] = value
		}
		go func(index int, input graph.Values) {
			subRunID := fmt.Sprintf("%s:%s:%d", runID, target.ID, index)
			values, err := e.invokeSub(ctx, subRunID, target, input)
			results <- branchResult{index: index, values: values, err: err}
		}(i, input)
	}
	schema := e.graph.Schema()
	var firstErr error
	for range branches {
		res := <-results
		if res.err != nil {
			if firstErr == nil {
				firstErr = &TaskError{
					RunID: runID,
					Node:  target.ID,
					Err:   fmt.Errorf("branch %d: %w", res.index, res.err),
				}
			}
			continue
		}
		// Branch contributions land in completion order, a deliberate
		// throughput-over-determinism choice.
		fragment = schema.Merge(fragment, res.values)
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return fragment, nil
}
