package graph

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition is the serializable form of a graph: topology plus the names of
// the task and router functions to bind through a Registry. The same shape is
// produced by the YAML and HCL loaders.
type Definition struct {
	Name            string            `yaml:"name"`
	Entry           string            `yaml:"entry"`
	State           map[string]string `yaml:"state"`
	Nodes           []NodeDef         `yaml:"nodes"`
	Edges           []EdgeDef         `yaml:"edges,omitempty"`
	Joins           []JoinDef         `yaml:"joins,omitempty"`
	Conditionals    []ConditionalDef  `yaml:"conditional,omitempty"`
	InterruptBefore []string          `yaml:"interrupt_before,omitempty"`
	// Defaults seed the initial state when the caller supplies none.
	Defaults Values `yaml:"defaults,omitempty"`
}

// NodeDef names either a registered task or a registered sub-graph.
type NodeDef struct {
	ID       string   `yaml:"id"`
	Task     string   `yaml:"task,omitempty"`
	Subgraph string   `yaml:"subgraph,omitempty"`
	Inputs   []string `yaml:"inputs,omitempty"`
	Outputs  []string `yaml:"outputs,omitempty"`
}

// EdgeDef is a direct edge. To may be the End sentinel.
type EdgeDef struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// JoinDef is a barrier edge with several sources.
type JoinDef struct {
	From []string `yaml:"from"`
	To   string   `yaml:"to"`
}

// ConditionalDef binds a named router and its declared possible targets.
type ConditionalDef struct {
	From    string   `yaml:"from"`
	Router  string   `yaml:"router"`
	Targets []string `yaml:"targets"`
}

// ParseDefinitionYAML decodes a graph definition from YAML/JSON bytes.
func ParseDefinitionYAML(data []byte) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, fmt.Errorf("graph: definition payload is empty")
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("graph: decode definition: %w", err)
	}
	return def, nil
}

// LoadDefinitionReader reads a definition from an io.Reader.
func LoadDefinitionReader(r io.Reader) (Definition, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return Definition{}, fmt.Errorf("graph: read definition: %w", err)
	}
	return ParseDefinitionYAML(content)
}

// LoadDefinitionFile loads a definition from a YAML file path.
func LoadDefinitionFile(path string) (Definition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("graph: read %s: %w", path, err)
	}
	def, parseErr := ParseDefinitionYAML(content)
	if parseErr != nil {
		return Definition{}, fmt.Errorf("graph: %s: %w", path, parseErr)
	}
	return def, nil
}

// TaskNames returns the task and router names the definition references, in
// order of appearance.
func (def Definition) TaskNames() (tasks, routers []string) {
	for _, node := range def.Nodes {
		if node.Task != "" {
			tasks = append(tasks, node.Task)
		}
	}
	for _, cond := range def.Conditionals {
		routers = append(routers, cond.Router)
	}
	return tasks, routers
}

// Bind resolves every referenced name through the registry and produces a
// Spec ready for Compile.
func (def Definition) Bind(reg *Registry) (*Spec, error) {
	if reg == nil {
		return nil, fmt.Errorf("graph: registry is required")
	}
	schema := make(Schema, len(def.State))
	for key, policy := range def.State {
		schema[key] = Policy(policy)
	}
	spec := NewSpec(def.Name, schema)
	spec.SetEntry(NodeID(def.Entry))
	for _, node := range def.Nodes {
		switch {
		case node.Subgraph != "":
			sub, err := reg.Graph(node.Subgraph)
			if err != nil {
				return nil, fmt.Errorf("graph: node %s: %w", node.ID, err)
			}
			spec.AddSubgraph(NodeID(node.ID), sub, node.Inputs, node.Outputs)
		case node.Task != "":
			task, err := reg.Task(node.Task)
			if err != nil {
				return nil, fmt.Errorf("graph: node %s: %w", node.ID, err)
			}
			spec.AddNode(NodeID(node.ID), task)
		default:
			return nil, fmt.Errorf("graph: node %s names neither a task nor a sub-graph", node.ID)
		}
	}
	for _, edge := range def.Edges {
		spec.AddEdge(NodeID(edge.From), NodeID(edge.To))
	}
	for _, join := range def.Joins {
		froms := make([]NodeID, len(join.From))
		for i, from := range join.From {
			froms[i] = NodeID(from)
		}
		spec.AddJoin(froms, NodeID(join.To))
	}
	for _, cond := range def.Conditionals {
		router, err := reg.Router(cond.Router)
		if err != nil {
			return nil, fmt.Errorf("graph: conditional edge from %s: %w", cond.From, err)
		}
		targets := make([]NodeID, len(cond.Targets))
		for i, target := range cond.Targets {
			targets[i] = NodeID(target)
		}
		spec.AddConditional(NodeID(cond.From), router, targets...)
	}
	for _, id := range def.InterruptBefore {
		spec.InterruptBefore(NodeID(id))
	}
	return spec, nil
}

// CompileWith binds the definition against the registry and compiles it.
func (def Definition) CompileWith(reg *Registry) (*Graph, error) {
	spec, err := def.Bind(reg)
	if err != nil {
		return nil, err
	}
	return Compile(spec)
}
