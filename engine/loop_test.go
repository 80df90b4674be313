package engine

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/loomworks/loom/checkpoint"
	"github.com/loomworks/loom/graph"
)

// loopGraph wires ask -> answer with a router that loops back to ask
// until either max_turns answers accumulated or the latest answer
// carries the stop phrase.
func loopGraph(t *testing.T, asks *atomic.Int64, answerFor func(turn int64) string) *graph.Graph {
	t.Helper()
	var answers atomic.Int64
	spec := graph.NewSpec("interview", graph.Schema{
		"questions": graph.Append,
		"answers":   graph.Append,
		"max_turns": graph.Replace,
		"summary":   graph.Replace,
	}).
		AddNode("ask", func(context.Context, graph.Values) (graph.Values, error) {
			n := asks.Add(1)
			return graph.Values{"questions": []any{fmt.Sprintf("question %d", n)}}, nil
		}).
		AddNode("answer", func(context.Context, graph.Values) (graph.Values, error) {
			n := answers.Add(1)
			return graph.Values{"answers": []any{answerFor(n)}}, nil
		}).
		AddNode("save", func(_ context.Context, view graph.Values) (graph.Values, error) {
			return graph.Values{"summary": strings.Join(view.Strings("answers"), "; ")}, nil
		}).
		AddEdge("ask", "answer").
		AddConditional("answer", routeAnswers, "ask", "save").
		AddEdge("save", graph.End).
		SetEntry("ask")
	return mustCompile(t, spec)
}

func routeAnswers(_ context.Context, view graph.Values) (graph.Decision, error) {
	maxTurns := view.Int("max_turns")
	if maxTurns <= 0 {
		maxTurns = 2
	}
	answers := view.Strings("answers")
	if len(answers) >= maxTurns {
		return graph.Goto("save"), nil
	}
	if len(answers) > 0 && strings.Contains(answers[len(answers)-1], "DONE") {
		return graph.Goto("save"), nil
	}
	return graph.Goto("ask"), nil
}

func TestLoopExitsAtMaxTurns(t *testing.T) {
	var asks atomic.Int64
	g := loopGraph(t, &asks, func(turn int64) string {
		return fmt.Sprintf("answer %d", turn)
	})
	eng := mustEngine(t, g, checkpoint.NewMemoryStore())
	result, err := eng.Invoke(context.Background(), "run-1", graph.Values{"max_turns": 2})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", result.Status)
	}
	if got := asks.Load(); got != 2 {
		t.Fatalf("expected 2 turns, asked %d", got)
	}
	if got := result.Values.Strings("answers"); len(got) != 2 {
		t.Fatalf("expected 2 answers, got %v", got)
	}
	if result.Values.String("summary") != "answer 1; answer 2" {
		t.Fatalf("unexpected summary: %q", result.Values.String("summary"))
	}
}

func TestLoopExitsOnStopPhrase(t *testing.T) {
	var asks atomic.Int64
	g := loopGraph(t, &asks, func(int64) string {
		return "DONE, nothing more to add"
	})
	eng := mustEngine(t, g, checkpoint.NewMemoryStore())
	result, err := eng.Invoke(context.Background(), "run-1", graph.Values{"max_turns": 5})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if got := asks.Load(); got != 1 {
		t.Fatalf("expected a single turn, asked %d", got)
	}
	if got := result.Values.Strings("answers"); len(got) != 1 {
		t.Fatalf("expected 1 answer, got %v", got)
	}
}

func TestLoopAccumulatesHistoryAcrossTurns(t *testing.T) {
	var asks atomic.Int64
	g := loopGraph(t, &asks, func(turn int64) string {
		return fmt.Sprintf("answer %d", turn)
	})
	eng := mustEngine(t, g, checkpoint.NewMemoryStore())
	result, err := eng.Invoke(context.Background(), "run-1", graph.Values{"max_turns": 3})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	questions := result.Values.Strings("questions")
	answers := result.Values.Strings("answers")
	if len(questions) != 3 || len(answers) != 3 {
		t.Fatalf("expected full history, got %d questions and %d answers", len(questions), len(answers))
	}
	for i := range answers {
		if answers[i] != fmt.Sprintf("answer %d", i+1) {
			t.Fatalf("history out of order: %v", answers)
		}
	}
}
