package graph

import (
	"fmt"
	"strings"
)

// DefinitionError reports every structural problem found at compile time.
// Definition problems are always fatal and never surface mid-run.
type DefinitionError struct {
	Graph    string
	Problems []string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("graph %s: invalid definition: %s", e.Graph, strings.Join(e.Problems, "; "))
}

// Node is a compiled graph node: either a task function or an embedded
// sub-graph with its state projections.
type Node struct {
	ID      NodeID
	Task    Task
	Sub     *Graph
	Inputs  []string
	Outputs []string
}

// Route pairs a node's router with its declared possible targets.
type Route struct {
	Router  Router
	Targets []NodeID
}

// Allows reports whether id is a declared target of the route.
func (r Route) Allows(id NodeID) bool {
	if id == End {
		return true
	}
	for _, target := range r.Targets {
		if target == id {
			return true
		}
	}
	return false
}

// Join is a compiled barrier edge.
type Join struct {
	Sources []NodeID `json:"sources"`
	Target  NodeID   `json:"target"`
}

// Graph is an immutable compiled workflow graph.
type Graph struct {
	name        string
	schema      Schema
	entry       NodeID
	nodes       map[NodeID]*Node
	order       []NodeID
	successors  map[NodeID][]NodeID
	routes      map[NodeID]Route
	joinsFrom   map[NodeID][]Join
	joinSources map[NodeID][]NodeID
	interrupts  map[NodeID]struct{}
}

// Compile validates the spec and freezes it into an executable Graph.
// Violations are returned together as a *DefinitionError.
func Compile(spec *Spec) (*Graph, error) {
	if spec == nil {
		return nil, &DefinitionError{Problems: []string{"spec is required"}}
	}
	problems := append([]string(nil), spec.problems...)
	if err := spec.schema.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(spec.nodes) == 0 {
		problems = append(problems, "at least one node is required")
	}
	exists := func(id NodeID) bool {
		_, ok := spec.nodes[id]
		return ok
	}
	if spec.entry == "" {
		problems = append(problems, "entry node is required")
	} else if !exists(spec.entry) {
		problems = append(problems, fmt.Sprintf("entry node %s is not declared", spec.entry))
	}
	for _, edge := range spec.edges {
		if !exists(edge.from) {
			problems = append(problems, fmt.Sprintf("edge %s -> %s: source is not declared", edge.from, edge.to))
		}
		if edge.to != End && !exists(edge.to) {
			problems = append(problems, fmt.Sprintf("edge %s -> %s: target is not declared", edge.from, edge.to))
		}
	}
	for _, join := range spec.joins {
		if len(join.Sources) == 0 {
			problems = append(problems, fmt.Sprintf("join into %s: at least one source is required", join.Target))
		}
		for _, src := range join.Sources {
			if !exists(src) {
				problems = append(problems, fmt.Sprintf("join into %s: source %s is not declared", join.Target, src))
			}
		}
		if !exists(join.Target) {
			problems = append(problems, fmt.Sprintf("join target %s is not declared", join.Target))
		}
	}
	for from, route := range spec.routes {
		if !exists(from) {
			problems = append(problems, fmt.Sprintf("conditional edge from %s: source is not declared", from))
		}
		if len(route.Targets) == 0 {
			problems = append(problems, fmt.Sprintf("conditional edge from %s: declared targets are required", from))
		}
		for _, target := range route.Targets {
			if target != End && !exists(target) {
				problems = append(problems, fmt.Sprintf("conditional edge from %s: target %s is not declared", from, target))
			}
		}
	}
	for _, id := range spec.interrupts {
		if !exists(id) {
			problems = append(problems, fmt.Sprintf("interrupt-before node %s is not declared", id))
		}
	}
	problems = append(problems, validateSubgraphs(spec)...)
	problems = append(problems, validateOutgoing(spec)...)
	problems = append(problems, validateReachable(spec)...)
	if len(problems) > 0 {
		return nil, &DefinitionError{Graph: spec.name, Problems: problems}
	}

	g := &Graph{
		name:        spec.name,
		schema:      spec.schema.Clone(),
		entry:       spec.entry,
		nodes:       make(map[NodeID]*Node, len(spec.nodes)),
		order:       append([]NodeID(nil), spec.order...),
		successors:  map[NodeID][]NodeID{},
		routes:      map[NodeID]Route{},
		joinsFrom:   map[NodeID][]Join{},
		joinSources: map[NodeID][]NodeID{},
		interrupts:  map[NodeID]struct{}{},
	}
	for id, node := range spec.nodes {
		g.nodes[id] = &Node{
			ID:      id,
			Task:    node.task,
			Sub:     node.sub,
			Inputs:  append([]string(nil), node.inputs...),
			Outputs: append([]string(nil), node.outputs...),
		}
	}
	for _, edge := range spec.edges {
		if edge.to == End {
			continue
		}
		g.successors[edge.from] = append(g.successors[edge.from], edge.to)
	}
	for _, join := range spec.joins {
		sources := append([]NodeID(nil), join.Sources...)
		compiled := Join{Sources: sources, Target: join.Target}
		for _, src := range sources {
			g.joinsFrom[src] = append(g.joinsFrom[src], compiled)
		}
		g.joinSources[join.Target] = sources
	}
	for from, route := range spec.routes {
		g.routes[from] = Route{
			Router:  route.Router,
			Targets: append([]NodeID(nil), route.Targets...),
		}
	}
	for _, id := range spec.interrupts {
		g.interrupts[id] = struct{}{}
	}
	return g, nil
}

func validateSubgraphs(spec *Spec) []string {
	var problems []string
	for _, id := range spec.order {
		node := spec.nodes[id]
		if node.sub == nil {
			continue
		}
		for _, key := range node.inputs {
			if _, ok := node.sub.schema[key]; !ok {
				problems = append(problems, fmt.Sprintf("sub-graph node %s: input key %s is not declared by the sub-graph schema", id, key))
			}
		}
		for _, key := range node.outputs {
			if _, ok := node.sub.schema[key]; !ok {
				problems = append(problems, fmt.Sprintf("sub-graph node %s: output key %s is not declared by the sub-graph schema", id, key))
			}
			if spec.schema[key] != Append {
				problems = append(problems, fmt.Sprintf("sub-graph node %s: output key %s must be an append key in the parent schema", id, key))
			}
		}
	}
	return problems
}

// validateOutgoing enforces that every node either terminates explicitly or
// has at least one outgoing edge, and that conditional routing is the sole
// routing source for its node.
func validateOutgoing(spec *Spec) []string {
	outgoing := map[NodeID]int{}
	for _, edge := range spec.edges {
		outgoing[edge.from]++
	}
	for _, join := range spec.joins {
		for _, src := range join.Sources {
			outgoing[src]++
		}
	}
	var problems []string
	for _, id := range spec.order {
		_, routed := spec.routes[id]
		if routed && outgoing[id] > 0 {
			problems = append(problems, fmt.Sprintf("node %s mixes a conditional edge with direct edges", id))
		}
		if !routed && outgoing[id] == 0 {
			problems = append(problems, fmt.Sprintf("node %s has no outgoing edge; route it to %s to terminate", id, End))
		}
	}
	return problems
}

func validateReachable(spec *Spec) []string {
	if spec.entry == "" || spec.nodes[spec.entry] == nil {
		return nil
	}
	seen := map[NodeID]struct{}{spec.entry: {}}
	frontier := []NodeID{spec.entry}
	visit := func(id NodeID, frontierOut []NodeID) []NodeID {
		if id == End {
			return frontierOut
		}
		if _, ok := seen[id]; ok {
			return frontierOut
		}
		seen[id] = struct{}{}
		return append(frontierOut, id)
	}
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		for _, edge := range spec.edges {
			if edge.from == id {
				frontier = visit(edge.to, frontier)
			}
		}
		for _, join := range spec.joins {
			for _, src := range join.Sources {
				if src == id {
					frontier = visit(join.Target, frontier)
				}
			}
		}
		if route, ok := spec.routes[id]; ok {
			for _, target := range route.Targets {
				frontier = visit(target, frontier)
			}
		}
	}
	var problems []string
	for _, id := range spec.order {
		if _, ok := seen[id]; !ok {
			problems = append(problems, fmt.Sprintf("node %s is not reachable from entry %s", id, spec.entry))
		}
	}
	return problems
}

// Name returns the graph's name.
func (g *Graph) Name() string { return g.name }

// Schema returns a copy of the graph's state schema.
func (g *Graph) Schema() Schema { return g.schema.Clone() }

// Entry returns the entry node id.
func (g *Graph) Entry() NodeID { return g.entry }

// NodeIDs returns node ids in declaration order.
func (g *Graph) NodeIDs() []NodeID {
	return append([]NodeID(nil), g.order...)
}

// Node looks up a compiled node.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	node, ok := g.nodes[id]
	return node, ok
}

// Successors returns the direct-edge targets of a node.
func (g *Graph) Successors(id NodeID) []NodeID {
	return append([]NodeID(nil), g.successors[id]...)
}

// Route returns the conditional edge attached to a node, if any.
func (g *Graph) Route(id NodeID) (Route, bool) {
	route, ok := g.routes[id]
	return route, ok
}

// JoinsFrom returns the barrier edges a node feeds.
func (g *Graph) JoinsFrom(id NodeID) []Join {
	return append([]Join(nil), g.joinsFrom[id]...)
}

// JoinSources returns the required sources of a barrier target.
func (g *Graph) JoinSources(target NodeID) []NodeID {
	return append([]NodeID(nil), g.joinSources[target]...)
}

// Interrupt reports whether the engine must pause before executing the node.
func (g *Graph) Interrupt(id NodeID) bool {
	_, ok := g.interrupts[id]
	return ok
}
