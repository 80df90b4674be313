package engine

import (
	"context"
	"fmt"

	"github.com/loomworks/loom/checkpoint"
	"github.com/loomworks/loom/graph"
)

// outcome is one frontier node's contribution to a step.
type outcome struct {
	node     *graph.Node
	fragment graph.Values
	err      error
}

// executeStep invokes every frontier node concurrently and collects outcomes
// in completion order. Nodes in satisfied were answered by a resume patch and
// contribute no fragment of their own. The first failure aborts the step
// after the remaining invocations drain.
func (e *Engine) executeStep(ctx context.Context, runID string, st runState, satisfied map[graph.NodeID]bool) ([]outcome, error) {
	outcomes := make([]outcome, 0, len(st.frontier))
	results := make(chan outcome, len(st.frontier))
	inFlight := 0
	for _, id := range st.frontier {
		node, ok := e.graph.Node(id)
		if !ok {
			return nil, fmt.Errorf("engine: run %s: checkpoint names unknown node %s", runID, id)
		}
		if satisfied[id] {
			outcomes = append(outcomes, outcome{node: node})
			continue
		}
		inFlight++
		view := st.values.Clone()
		go func(node *graph.Node) {
			fragment, err := e.invokeNode(ctx, runID, st.step, node, view)
			results <- outcome{node: node, fragment: fragment, err: err}
		}(node)
	}
	var firstErr error
	for i := 0; i < inFlight; i++ {
		out := <-results
		if out.err != nil {
			if firstErr == nil {
				firstErr = &TaskError{RunID: runID, Node: out.node.ID, Err: out.err}
			}
			continue
		}
		outcomes = append(outcomes, out)
	}
	if firstErr != nil {
		e.logger.Error("step failed", "run", runID, "step", st.step, "error", firstErr)
		return nil, firstErr
	}
	return outcomes, nil
}

// invokeNode runs one node: its task function, or a single invocation of its
// embedded sub-graph with projected state.
func (e *Engine) invokeNode(ctx context.Context, runID string, step int, node *graph.Node, view graph.Values) (graph.Values, error) {
	if node.Sub != nil {
		subRunID := fmt.Sprintf("%s:%s", runID, node.ID)
		return e.invokeSub(ctx, subRunID, node, view.Project(node.Inputs))
	}
	taskCtx := ContextWithCapability(ctx, e.capability)
	taskCtx = withRunInfo(taskCtx, RunInfo{RunID: runID, Node: node.ID, Step: step})
	return node.Task(taskCtx, view)
}

// invokeSub drives an embedded sub-graph to completion on its own in-memory
// checkpoints and projects the final state back through the declared output
// keys. Interrupts are not allowed inside embedded runs.
func (e *Engine) invokeSub(ctx context.Context, subRunID string, node *graph.Node, input graph.Values) (graph.Values, error) {
	sub, err := New(node.Sub, checkpoint.NewMemoryStore(),
		WithLogger(e.logger),
		WithClock(e.clock),
		WithCapability(e.capability),
		WithMaxSteps(e.maxSteps),
	)
	if err != nil {
		return nil, err
	}
	result, err := sub.Invoke(ctx, subRunID, input)
	if err != nil {
		return nil, err
	}
	if result.Status == StatusPaused {
		return nil, fmt.Errorf("engine: sub-graph run %s paused; interrupts are only supported on the parent graph", subRunID)
	}
	return result.Values.Project(node.Outputs), nil
}

// routeStep computes the next frontier from the step's outcomes: conditional
// routers decide for their nodes, everything else follows direct edges, and
// join barriers release once every source has arrived. Fan-out decisions are
// dispatched here so the parent step only finishes after every branch did.
func (e *Engine) routeStep(ctx context.Context, runID string, outcomes []outcome, st *runState, schema graph.Schema) ([]graph.NodeID, error) {
	var next []graph.NodeID
	seen := map[graph.NodeID]bool{}
	enqueue := func(id graph.NodeID) {
		if id == graph.End || seen[id] {
			return
		}
		seen[id] = true
		next = append(next, id)
	}
	completed := func(id graph.NodeID) {
		for _, join := range e.graph.JoinsFrom(id) {
			arrived := appendUnique(st.joins[join.Target], id)
			st.joins[join.Target] = arrived
			if containsAll(arrived, join.Sources) {
				delete(st.joins, join.Target)
				enqueue(join.Target)
			}
		}
		for _, succ := range e.graph.Successors(id) {
			enqueue(succ)
		}
	}
	for _, out := range outcomes {
		id := out.node.ID
		route, ok := e.graph.Route(id)
		if !ok {
			completed(id)
			continue
		}
		routerCtx := withRunInfo(ContextWithCapability(ctx, e.capability), RunInfo{RunID: runID, Node: id, Step: st.step})
		decision, err := route.Router(routerCtx, st.values.Clone())
		if err != nil {
			return nil, &TaskError{RunID: runID, Node: id, Err: fmt.Errorf("router: %w", err)}
		}
		if decision.IsFanout() {
			if decision.Target == graph.End || !route.Allows(decision.Target) {
				return nil, &TaskError{RunID: runID, Node: id, Err: fmt.Errorf("router returned undeclared fan-out target %s", decision.Target)}
			}
			target, _ := e.graph.Node(decision.Target)
			fragment, err := e.runFanout(ctx, runID, target, decision.Branches, st.values)
			if err != nil {
				return nil, err
			}
			st.values = schema.Merge(st.values, fragment)
			completed(target.ID)
			continue
		}
		for _, nxt := range decision.Next {
			if nxt == graph.End {
				continue
			}
			if !route.Allows(nxt) {
				return nil, &TaskError{RunID: runID, Node: id, Err: fmt.Errorf("router returned undeclared target %s", nxt)}
			}
			enqueue(nxt)
		}
	}
	return next, nil
}

func appendUnique(ids []graph.NodeID, id graph.NodeID) []graph.NodeID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func containsAll(have []graph.NodeID, want []graph.NodeID) bool {
	set := make(map[graph.NodeID]struct{}, len(have))
	for _, id := range have {
		set[id] = struct{}{}
	}
	for _, id := range want {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
