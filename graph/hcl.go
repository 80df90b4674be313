package graph

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// hclRoot decodes every top-level block of a graph definition file.
type hclRoot struct {
	Workflow   *hclWorkflow    `hcl:"workflow,block"`
	States     []*hclState     `hcl:"state,block"`
	Nodes      []*hclNode      `hcl:"node,block"`
	Edges      []*hclEdge      `hcl:"edge,block"`
	Joins      []*hclJoin      `hcl:"join,block"`
	Routes     []*hclRoute     `hcl:"route,block"`
	Interrupts []*hclInterrupt `hcl:"interrupt,block"`
	Defaults   *hclDefaults    `hcl:"defaults,block"`
}

type hclWorkflow struct {
	Name  string `hcl:"name"`
	Entry string `hcl:"entry"`
}

type hclState struct {
	Key    string `hcl:"key,label"`
	Policy string `hcl:"policy"`
}

type hclNode struct {
	ID       string    `hcl:"id,label"`
	Task     *string   `hcl:"task,optional"`
	Subgraph *string   `hcl:"subgraph,optional"`
	Inputs   *[]string `hcl:"inputs,optional"`
	Outputs  *[]string `hcl:"outputs,optional"`
}

type hclEdge struct {
	From string `hcl:"from"`
	To   string `hcl:"to"`
}

type hclJoin struct {
	From []string `hcl:"from"`
	To   string   `hcl:"to"`
}

type hclRoute struct {
	From    string   `hcl:"from,label"`
	Router  string   `hcl:"router"`
	Targets []string `hcl:"targets"`
}

type hclInterrupt struct {
	Before []string `hcl:"before"`
}

// hclDefaults keeps its body undecoded so arbitrary attribute types can be
// converted to native Go values.
type hclDefaults struct {
	Body hcl.Body `hcl:",remain"`
}

// ParseDefinitionHCL decodes a graph definition from HCL source. The filename
// only labels diagnostics.
func ParseDefinitionHCL(filename string, src []byte) (Definition, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return Definition{}, fmt.Errorf("graph: parse %s: %w", filename, diags)
	}
	var root hclRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return Definition{}, fmt.Errorf("graph: decode %s: %w", filename, diags)
	}
	if root.Workflow == nil {
		return Definition{}, fmt.Errorf("graph: %s: a workflow block is required", filename)
	}
	def := Definition{
		Name:  root.Workflow.Name,
		Entry: root.Workflow.Entry,
		State: map[string]string{},
	}
	for _, state := range root.States {
		def.State[state.Key] = state.Policy
	}
	for _, node := range root.Nodes {
		nd := NodeDef{ID: node.ID}
		if node.Task != nil {
			nd.Task = *node.Task
		}
		if node.Subgraph != nil {
			nd.Subgraph = *node.Subgraph
		}
		if node.Inputs != nil {
			nd.Inputs = *node.Inputs
		}
		if node.Outputs != nil {
			nd.Outputs = *node.Outputs
		}
		def.Nodes = append(def.Nodes, nd)
	}
	for _, edge := range root.Edges {
		def.Edges = append(def.Edges, EdgeDef{From: edge.From, To: edge.To})
	}
	for _, join := range root.Joins {
		def.Joins = append(def.Joins, JoinDef{From: join.From, To: join.To})
	}
	for _, route := range root.Routes {
		def.Conditionals = append(def.Conditionals, ConditionalDef{
			From:    route.From,
			Router:  route.Router,
			Targets: route.Targets,
		})
	}
	for _, interrupt := range root.Interrupts {
		def.InterruptBefore = append(def.InterruptBefore, interrupt.Before...)
	}
	if root.Defaults != nil {
		defaults, err := decodeDefaults(root.Defaults.Body)
		if err != nil {
			return Definition{}, fmt.Errorf("graph: %s: %w", filename, err)
		}
		def.Defaults = defaults
	}
	return def, nil
}

// LoadDefinitionHCLFile loads a definition from an HCL file path.
func LoadDefinitionHCLFile(path string) (Definition, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("graph: read %s: %w", path, err)
	}
	return ParseDefinitionHCL(path, src)
}

func decodeDefaults(body hcl.Body) (Values, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("defaults block: %w", diags)
	}
	values := make(Values, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("defaults attribute %s: %w", name, diags)
		}
		native, err := ctyToNative(val)
		if err != nil {
			return nil, fmt.Errorf("defaults attribute %s: %w", name, err)
		}
		values[name] = native
	}
	return values, nil
}

// ctyToNative recursively converts a cty.Value into its most natural Go
// counterpart so default state values round-trip through Values untouched.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Number:
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, fmt.Errorf("convert number: %w", err)
		}
		return f, nil
	case ty == cty.Bool:
		var b bool
		if err := gocty.FromCtyValue(v, &b); err != nil {
			return nil, fmt.Errorf("convert bool: %w", err)
		}
		return b, nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		slice := make([]any, 0, v.LengthInt())
		it := v.ElementIterator()
		for it.Next() {
			_, item := it.Element()
			native, err := ctyToNative(item)
			if err != nil {
				return nil, err
			}
			slice = append(slice, native)
		}
		return slice, nil
	case ty.IsObjectType() || ty.IsMapType():
		out := map[string]any{}
		it := v.ElementIterator()
		for it.Next() {
			key, item := it.Element()
			native, err := ctyToNative(item)
			if err != nil {
				return nil, fmt.Errorf("in attribute %s: %w", key.AsString(), err)
			}
			out[key.AsString()] = native
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
