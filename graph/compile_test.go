package graph

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func noopTask(context.Context, Values) (Values, error) {
	return nil, nil
}

func stopRouter(context.Context, Values) (Decision, error) {
	return Stop(), nil
}

func TestCompileValidGraph(t *testing.T) {
	spec := NewSpec("valid", Schema{"log": Append}).
		AddNode("first", noopTask).
		AddNode("second", noopTask).
		AddEdge("first", "second").
		AddConditional("second", stopRouter, "first").
		SetEntry("first")
	g, err := Compile(spec)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if g.Entry() != "first" {
		t.Fatalf("unexpected entry: %s", g.Entry())
	}
	if got := g.Successors("first"); len(got) != 1 || got[0] != "second" {
		t.Fatalf("unexpected successors: %v", got)
	}
	if _, ok := g.Route("second"); !ok {
		t.Fatalf("expected conditional edge on second")
	}
}

func TestCompileRejectsStructuralProblems(t *testing.T) {
	cases := []struct {
		name string
		spec *Spec
		want string
	}{
		{
			name: "dangling edge target",
			spec: NewSpec("t", nil).
				AddNode("a", noopTask).
				AddEdge("a", "ghost").
				SetEntry("a"),
			want: "target is not declared",
		},
		{
			name: "missing entry",
			spec: NewSpec("t", nil).
				AddNode("a", noopTask).
				AddEdge("a", End),
			want: "entry node is required",
		},
		{
			name: "undeclared entry",
			spec: NewSpec("t", nil).
				AddNode("a", noopTask).
				AddEdge("a", End).
				SetEntry("ghost"),
			want: "entry node ghost is not declared",
		},
		{
			name: "node without outgoing edge",
			spec: NewSpec("t", nil).
				AddNode("a", noopTask).
				AddNode("b", noopTask).
				AddEdge("a", "b").
				SetEntry("a"),
			want: "has no outgoing edge",
		},
		{
			name: "conditional target undeclared",
			spec: NewSpec("t", nil).
				AddNode("a", noopTask).
				AddConditional("a", stopRouter, "ghost").
				SetEntry("a"),
			want: "target ghost is not declared",
		},
		{
			name: "conditional mixed with direct edge",
			spec: NewSpec("t", nil).
				AddNode("a", noopTask).
				AddNode("b", noopTask).
				AddEdge("a", "b").
				AddEdge("b", End).
				AddConditional("a", stopRouter, "b").
				SetEntry("a"),
			want: "mixes a conditional edge",
		},
		{
			name: "unknown interrupt node",
			spec: NewSpec("t", nil).
				AddNode("a", noopTask).
				AddEdge("a", End).
				SetEntry("a").
				InterruptBefore("ghost"),
			want: "interrupt-before node ghost is not declared",
		},
		{
			name: "duplicate node id",
			spec: NewSpec("t", nil).
				AddNode("a", noopTask).
				AddNode("a", noopTask).
				AddEdge("a", End).
				SetEntry("a"),
			want: "duplicate node id a",
		},
		{
			name: "unreachable node",
			spec: NewSpec("t", nil).
				AddNode("a", noopTask).
				AddNode("island", noopTask).
				AddEdge("a", End).
				AddEdge("island", End).
				SetEntry("a"),
			want: "not reachable from entry",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.spec)
			if err == nil {
				t.Fatalf("expected compile failure")
			}
			var defErr *DefinitionError
			if !errors.As(err, &defErr) {
				t.Fatalf("expected DefinitionError, got %T: %v", err, err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err.Error(), tc.want)
			}
		})
	}
}

func TestCompileValidatesSubgraphProjections(t *testing.T) {
	sub, err := Compile(NewSpec("sub", Schema{"in": Replace, "out": Append}).
		AddNode("work", noopTask).
		AddEdge("work", End).
		SetEntry("work"))
	if err != nil {
		t.Fatalf("compile sub: %v", err)
	}

	spec := NewSpec("parent", Schema{"out": Replace}).
		AddSubgraph("child", sub, []string{"in"}, []string{"out"}).
		AddEdge("child", End).
		SetEntry("child")
	_, err = Compile(spec)
	if err == nil || !strings.Contains(err.Error(), "must be an append key in the parent schema") {
		t.Fatalf("expected append-policy violation, got %v", err)
	}

	spec = NewSpec("parent", Schema{"out": Append}).
		AddSubgraph("child", sub, []string{"missing"}, []string{"out"}).
		AddEdge("child", End).
		SetEntry("child")
	_, err = Compile(spec)
	if err == nil || !strings.Contains(err.Error(), "input key missing is not declared") {
		t.Fatalf("expected input projection violation, got %v", err)
	}
}

func TestCompileJoinBookkeeping(t *testing.T) {
	spec := NewSpec("joins", nil).
		AddNode("a", noopTask).
		AddNode("b", noopTask).
		AddNode("c", noopTask).
		AddNode("after", noopTask).
		AddEdge("a", "b").
		AddEdge("a", "c").
		AddJoin([]NodeID{"b", "c"}, "after").
		AddEdge("after", End).
		SetEntry("a")
	g, err := Compile(spec)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got := g.JoinSources("after"); len(got) != 2 {
		t.Fatalf("unexpected join sources: %v", got)
	}
	if got := g.JoinsFrom("b"); len(got) != 1 || got[0].Target != "after" {
		t.Fatalf("unexpected joins from b: %+v", got)
	}
}
