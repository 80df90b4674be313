package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/loomworks/loom/checkpoint"
	"github.com/loomworks/loom/graph"
)

// interviewSubgraph writes one section per invocation, derived from the
// branch-local analyst value and the projected topic.
func interviewSubgraph(t *testing.T) *graph.Graph {
	t.Helper()
	spec := graph.NewSpec("interview", graph.Schema{
		"topic":    graph.Replace,
		"analyst":  graph.Replace,
		"sections": graph.Append,
	}).
		AddNode("work", func(_ context.Context, view graph.Values) (graph.Values, error) {
			analyst := view.String("analyst")
			if analyst == "boom" {
				return nil, errors.New("interview collapsed")
			}
			// Branch isolation: nothing beyond the projected inputs and the
			// branch slice may be visible here.
			if _, leaked := view["analysts"]; leaked {
				return nil, errors.New("parent state leaked into branch")
			}
			section := fmt.Sprintf("%s on %s", analyst, view.String("topic"))
			return graph.Values{"sections": []any{section}}, nil
		}).
		AddEdge("work", graph.End).
		SetEntry("work")
	return mustCompile(t, spec)
}

// fanoutGraph plans a set of analysts, fans out one interview per analyst,
// then reports over the gathered sections.
func fanoutGraph(t *testing.T, reportRuns *atomic.Int64) *graph.Graph {
	t.Helper()
	spec := graph.NewSpec("research", graph.Schema{
		"topic":    graph.Replace,
		"analysts": graph.Replace,
		"sections": graph.Append,
		"report":   graph.Replace,
	}).
		AddNode("plan", func(_ context.Context, view graph.Values) (graph.Values, error) {
			return nil, nil
		}).
		AddSubgraph("conduct", interviewSubgraph(t), []string{"topic"}, []string{"sections"}).
		AddNode("write", func(_ context.Context, view graph.Values) (graph.Values, error) {
			reportRuns.Add(1)
			return graph.Values{"report": strings.Join(view.Strings("sections"), "\n")}, nil
		}).
		AddConditional("plan", func(_ context.Context, view graph.Values) (graph.Decision, error) {
			branches := make([]graph.Branch, 0)
			for _, analyst := range view.Strings("analysts") {
				branches = append(branches, graph.Branch{Input: graph.Values{"analyst": analyst}})
			}
			return graph.Fanout("conduct", branches...), nil
		}, "conduct").
		AddEdge("conduct", "write").
		AddEdge("write", graph.End).
		SetEntry("plan")
	return mustCompile(t, spec)
}

func TestFanoutRunsIsolatedBranches(t *testing.T) {
	var reportRuns atomic.Int64
	eng := mustEngine(t, fanoutGraph(t, &reportRuns), checkpoint.NewMemoryStore())
	result, err := eng.Invoke(context.Background(), "run-1", graph.Values{
		"topic":    "transit",
		"analysts": []any{"ada", "grace", "linus"},
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	sections := result.Values.Strings("sections")
	sort.Strings(sections)
	want := []string{"ada on transit", "grace on transit", "linus on transit"}
	if diff := cmp.Diff(want, sections); diff != "" {
		t.Fatalf("section multiset mismatch (-want +got):\n%s", diff)
	}
	if reportRuns.Load() != 1 {
		t.Fatalf("expected one report after all branches, got %d", reportRuns.Load())
	}
	if !strings.Contains(result.Values.String("report"), "on transit") {
		t.Fatalf("report did not see branch output: %q", result.Values.String("report"))
	}
}

func TestFanoutWithNoBranchesProceeds(t *testing.T) {
	var reportRuns atomic.Int64
	eng := mustEngine(t, fanoutGraph(t, &reportRuns), checkpoint.NewMemoryStore())
	result, err := eng.Invoke(context.Background(), "run-1", graph.Values{"topic": "transit"})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if got := result.Values.Strings("sections"); len(got) != 0 {
		t.Fatalf("expected no sections, got %v", got)
	}
	if reportRuns.Load() != 1 {
		t.Fatalf("downstream node did not run after empty fan-out: %d", reportRuns.Load())
	}
}

func TestFanoutBranchFailureFailsRun(t *testing.T) {
	var reportRuns atomic.Int64
	eng := mustEngine(t, fanoutGraph(t, &reportRuns), checkpoint.NewMemoryStore())
	_, err := eng.Invoke(context.Background(), "run-1", graph.Values{
		"topic":    "transit",
		"analysts": []any{"ada", "boom"},
	})
	var taskErr *TaskError
	if !errors.As(err, &taskErr) {
		t.Fatalf("expected TaskError, got %v", err)
	}
	if taskErr.Node != "conduct" {
		t.Fatalf("expected failure attributed to the fan-out node, got %s", taskErr.Node)
	}
	if !strings.Contains(err.Error(), "branch") {
		t.Fatalf("expected branch context in error: %v", err)
	}
	if reportRuns.Load() != 0 {
		t.Fatalf("downstream node ran despite branch failure")
	}
}

func TestFanoutTargetMustBeSubgraph(t *testing.T) {
	spec := graph.NewSpec("bad-target", graph.Schema{"log": graph.Append}).
		AddNode("plan", appendTask("log")).
		AddNode("plain", appendTask("log")).
		AddConditional("plan", func(context.Context, graph.Values) (graph.Decision, error) {
			return graph.Fanout("plain", graph.Branch{}), nil
		}, "plain").
		AddEdge("plain", graph.End).
		SetEntry("plan")
	eng := mustEngine(t, mustCompile(t, spec), checkpoint.NewMemoryStore())
	_, err := eng.Invoke(context.Background(), "run-1", nil)
	var taskErr *TaskError
	if !errors.As(err, &taskErr) || taskErr.Node != "plain" {
		t.Fatalf("expected fan-out target error, got %v", err)
	}
}

func TestFanoutTargetMustBeDeclared(t *testing.T) {
	spec := graph.NewSpec("undeclared", graph.Schema{"log": graph.Append}).
		AddNode("plan", appendTask("log")).
		AddNode("a", appendTask("log")).
		AddSubgraph("hidden", interviewSubgraph(t), nil, nil).
		AddConditional("plan", func(context.Context, graph.Values) (graph.Decision, error) {
			return graph.Fanout("hidden", graph.Branch{}), nil
		}, "a").
		AddEdge("a", "hidden").
		AddEdge("hidden", graph.End).
		SetEntry("plan")
	eng := mustEngine(t, mustCompile(t, spec), checkpoint.NewMemoryStore())
	_, err := eng.Invoke(context.Background(), "run-1", nil)
	var taskErr *TaskError
	if !errors.As(err, &taskErr) || taskErr.Node != "plan" {
		t.Fatalf("expected undeclared fan-out target error, got %v", err)
	}
}
