package graph

import "fmt"

// Spec accumulates a graph definition before compilation. Structural problems
// are collected and reported together by Compile, never mid-run.
type Spec struct {
	name       string
	schema     Schema
	entry      NodeID
	nodes      map[NodeID]*nodeSpec
	order      []NodeID
	edges      []edgeSpec
	joins      []Join
	routes     map[NodeID]Route
	interrupts []NodeID
	problems   []string
}

type nodeSpec struct {
	id      NodeID
	task    Task
	sub     *Graph
	inputs  []string
	outputs []string
}

type edgeSpec struct {
	from NodeID
	to   NodeID
}

// NewSpec starts a definition over the given state schema.
func NewSpec(name string, schema Schema) *Spec {
	return &Spec{
		name:   name,
		schema: schema.Clone(),
		nodes:  map[NodeID]*nodeSpec{},
		routes: map[NodeID]Route{},
	}
}

// AddNode binds a task function to a node id.
func (s *Spec) AddNode(id NodeID, task Task) *Spec {
	if task == nil {
		s.addProblem(fmt.Sprintf("node %s: task is required", id))
		return s
	}
	return s.addNode(&nodeSpec{id: id, task: task})
}

// AddSubgraph embeds a compiled graph as a single node. The node's initial
// state is the parent state projected onto inputs; on completion the
// sub-graph's final state is projected back through outputs.
func (s *Spec) AddSubgraph(id NodeID, sub *Graph, inputs, outputs []string) *Spec {
	if sub == nil {
		s.addProblem(fmt.Sprintf("node %s: sub-graph is required", id))
		return s
	}
	return s.addNode(&nodeSpec{
		id:      id,
		sub:     sub,
		inputs:  append([]string(nil), inputs...),
		outputs: append([]string(nil), outputs...),
	})
}

// AddEdge declares a direct edge. Edges to End mark from as terminal.
func (s *Spec) AddEdge(from, to NodeID) *Spec {
	s.edges = append(s.edges, edgeSpec{from: from, to: to})
	return s
}

// AddJoin declares a barrier edge: to becomes ready only after every source
// has completed since the barrier last fired.
func (s *Spec) AddJoin(froms []NodeID, to NodeID) *Spec {
	s.joins = append(s.joins, Join{
		Sources: append([]NodeID(nil), froms...),
		Target:  to,
	})
	return s
}

// AddConditional attaches a router to from. The router runs after the node's
// task and must route only to the declared targets (or End).
func (s *Spec) AddConditional(from NodeID, router Router, targets ...NodeID) *Spec {
	if router == nil {
		s.addProblem(fmt.Sprintf("conditional edge from %s: router is required", from))
		return s
	}
	if _, exists := s.routes[from]; exists {
		s.addProblem(fmt.Sprintf("conditional edge from %s declared twice", from))
		return s
	}
	s.routes[from] = Route{
		Router:  router,
		Targets: append([]NodeID(nil), targets...),
	}
	return s
}

// SetEntry names the node the engine schedules first.
func (s *Spec) SetEntry(id NodeID) *Spec {
	s.entry = id
	return s
}

// InterruptBefore marks nodes the engine must never auto-execute. Reaching
// one pauses the run until an explicit resume.
func (s *Spec) InterruptBefore(ids ...NodeID) *Spec {
	s.interrupts = append(s.interrupts, ids...)
	return s
}

func (s *Spec) addNode(node *nodeSpec) *Spec {
	if node.id == "" {
		s.addProblem("node id is required")
		return s
	}
	if node.id == End {
		s.addProblem(fmt.Sprintf("node id %s is reserved", End))
		return s
	}
	if _, exists := s.nodes[node.id]; exists {
		s.addProblem(fmt.Sprintf("duplicate node id %s", node.id))
		return s
	}
	s.nodes[node.id] = node
	s.order = append(s.order, node.id)
	return s
}

func (s *Spec) addProblem(problem string) {
	s.problems = append(s.problems, problem)
}
