package engine

import (
	"context"

	"github.com/loomworks/loom/graph"
)

type capabilityKey struct{}

type runInfoKey struct{}

// ContextWithCapability embeds the engine's capability object in a context.
// Task functions retrieve it with CapabilityFrom instead of reaching through
// package-level state.
func ContextWithCapability(ctx context.Context, capability any) context.Context {
	if capability == nil {
		return ctx
	}
	return context.WithValue(ctx, capabilityKey{}, capability)
}

// CapabilityFrom returns the capability object threaded into a task
// invocation, or nil when none was configured.
func CapabilityFrom(ctx context.Context) any {
	return ctx.Value(capabilityKey{})
}

// RunInfo identifies the invocation a task is serving.
type RunInfo struct {
	RunID string
	Node  graph.NodeID
	Step  int
}

func withRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, runInfoKey{}, info)
}

// RunInfoFrom returns the invocation metadata the engine attached to a task
// context.
func RunInfoFrom(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)
	return info, ok
}
