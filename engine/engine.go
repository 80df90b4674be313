// Package engine drives compiled graphs step by step: it schedules frontier
// nodes, invokes their task functions concurrently, merges returned fragments
// per key policy, evaluates routers, persists a checkpoint at every step
// boundary, and pauses indefinitely at interrupt-before nodes.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/loom/checkpoint"
	"github.com/loomworks/loom/graph"
)

// Status reports how a run ended.
type Status string

const (
	// StatusCompleted means the frontier emptied: every live path reached End.
	StatusCompleted Status = "completed"
	// StatusPaused means the run reached an interrupt-before node and is
	// waiting for an explicit Resume. Pausing is not an error.
	StatusPaused Status = "paused"
)

// Result is the outcome of Invoke or Resume.
type Result struct {
	RunID  string
	Status Status
	Values graph.Values
}

// Engine executes one compiled graph against a checkpoint store. It is the
// sole mutator of run state: tasks only return fragments, so they need no
// locking of their own.
type Engine struct {
	graph      *graph.Graph
	store      checkpoint.Store
	logger     *slog.Logger
	clock      func() time.Time
	capability any
	maxSteps   int
}

// Option customizes the engine instance.
type Option func(*Engine)

// WithLogger routes engine logs to the given structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithCapability attaches a shared capability object (model handle, search
// client, and the like) that the engine threads into every task context.
func WithCapability(capability any) Option {
	return func(e *Engine) {
		e.capability = capability
	}
}

// WithMaxSteps bounds how many steps a run may take. Zero disables the limit.
func WithMaxSteps(limit int) Option {
	return func(e *Engine) {
		if limit > 0 {
			e.maxSteps = limit
		}
	}
}

// New wires an engine to a compiled graph and a checkpoint store.
func New(g *graph.Graph, store checkpoint.Store, opts ...Option) (*Engine, error) {
	if g == nil {
		return nil, fmt.Errorf("engine: compiled graph is required")
	}
	if store == nil {
		return nil, fmt.Errorf("engine: checkpoint store is required")
	}
	e := &Engine{
		graph:  g,
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// runState is the engine's per-run working set between step boundaries.
type runState struct {
	values   graph.Values
	frontier []graph.NodeID
	joins    map[graph.NodeID][]graph.NodeID
	step     int
}

// Invoke starts a fresh run. An empty runID gets a generated one; a prior
// checkpoint under the same id is overwritten. It returns StatusCompleted
// with the final state, or StatusPaused after persisting the pending
// interrupt node.
func (e *Engine) Invoke(ctx context.Context, runID string, initial graph.Values) (Result, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	st := runState{
		values:   e.graph.Schema().Normalize(initial),
		frontier: []graph.NodeID{e.graph.Entry()},
		joins:    map[graph.NodeID][]graph.NodeID{},
	}
	return e.run(ctx, runID, st, nil)
}

// Resume continues a paused run. The patch is merged into the stored state
// per each key's policy; the pending interrupt node's pause is satisfied
// without re-invoking its task function, so the patch substitutes for that
// node's output. Resuming a run with no pending interrupt returns
// ErrNotPaused; a duplicate resume is rejected rather than double-applied.
func (e *Engine) Resume(ctx context.Context, runID string, patch graph.Values) (Result, error) {
	if runID == "" {
		return Result{}, fmt.Errorf("engine: run id is required")
	}
	cp, err := e.store.Load(runID)
	if err != nil {
		return Result{}, fmt.Errorf("engine: resume run %s: %w", runID, err)
	}
	satisfied := map[graph.NodeID]bool{}
	for _, id := range cp.Pending {
		if e.graph.Interrupt(id) {
			satisfied[id] = true
		}
	}
	if len(satisfied) == 0 {
		return Result{}, fmt.Errorf("engine: resume run %s: %w", runID, ErrNotPaused)
	}
	schema := e.graph.Schema()
	st := runState{
		values:   schema.Merge(cp.Values, schema.Normalize(patch)),
		frontier: cp.Pending,
		joins:    cp.Joins,
		step:     cp.Step,
	}
	if st.joins == nil {
		st.joins = map[graph.NodeID][]graph.NodeID{}
	}
	return e.run(ctx, runID, st, satisfied)
}

// Pending returns the nodes a run is waiting on. checkpoint.ErrNotFound
// passes through for unknown run ids.
func (e *Engine) Pending(runID string) ([]graph.NodeID, error) {
	cp, err := e.store.Load(runID)
	if err != nil {
		return nil, fmt.Errorf("engine: pending nodes for run %s: %w", runID, err)
	}
	return append([]graph.NodeID(nil), cp.Pending...), nil
}

// run drives the step loop until the frontier empties or an interrupt-before
// node is reached. satisfied marks pending nodes whose pause an external
// resume just answered; it applies to the first step only.
func (e *Engine) run(ctx context.Context, runID string, st runState, satisfied map[graph.NodeID]bool) (Result, error) {
	schema := e.graph.Schema()
	// dirty tracks whether the working state diverged from the stored
	// checkpoint (fresh invoke, resume patch) so pausing never skips a write
	// it needs nor repeats one it doesn't.
	dirty := true
	for {
		if len(st.frontier) == 0 {
			e.logger.Info("run completed", "run", runID, "steps", st.step)
			return Result{RunID: runID, Status: StatusCompleted, Values: st.values}, nil
		}
		if e.shouldPause(st.frontier, satisfied) {
			if dirty {
				if err := e.persist(runID, st); err != nil {
					return Result{}, err
				}
			}
			e.logger.Info("run paused", "run", runID, "step", st.step, "pending", st.frontier)
			return Result{RunID: runID, Status: StatusPaused, Values: st.values}, nil
		}
		st.step++
		if e.maxSteps > 0 && st.step > e.maxSteps {
			return Result{}, fmt.Errorf("engine: run %s after %d steps: %w", runID, e.maxSteps, ErrStepLimit)
		}
		outcomes, err := e.executeStep(ctx, runID, st, satisfied)
		satisfied = nil
		if err != nil {
			return Result{}, err
		}
		// Fragments merge in completion order; sibling order within one step
		// is deliberately unspecified.
		for _, out := range outcomes {
			st.values = schema.Merge(st.values, out.fragment)
		}
		next, err := e.routeStep(ctx, runID, outcomes, &st, schema)
		if err != nil {
			return Result{}, err
		}
		st.frontier = next
		if err := e.persist(runID, st); err != nil {
			return Result{}, err
		}
		dirty = false
		e.logger.Debug("step persisted", "run", runID, "step", st.step, "frontier", st.frontier)
	}
}

// shouldPause reports whether the frontier holds an interrupt-before node
// whose pause has not been satisfied by a resume.
func (e *Engine) shouldPause(frontier []graph.NodeID, satisfied map[graph.NodeID]bool) bool {
	for _, id := range frontier {
		if e.graph.Interrupt(id) && !satisfied[id] {
			return true
		}
	}
	return false
}

// persist is the step-boundary checkpoint write. A write failure is fatal to
// the run; atomicity is the store's contract.
func (e *Engine) persist(runID string, st runState) error {
	cp := checkpoint.Checkpoint{
		RunID:     runID,
		Step:      st.step,
		Values:    st.values.Clone(),
		Pending:   append([]graph.NodeID(nil), st.frontier...),
		Joins:     cloneJoins(st.joins),
		UpdatedAt: e.clock(),
	}
	if err := e.store.Save(cp); err != nil {
		return fmt.Errorf("engine: persist checkpoint for run %s: %w", runID, err)
	}
	return nil
}

func cloneJoins(joins map[graph.NodeID][]graph.NodeID) map[graph.NodeID][]graph.NodeID {
	if len(joins) == 0 {
		return nil
	}
	out := make(map[graph.NodeID][]graph.NodeID, len(joins))
	for target, sources := range joins {
		out[target] = append([]graph.NodeID(nil), sources...)
	}
	return out
}
