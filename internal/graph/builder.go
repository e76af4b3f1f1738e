package graph

import "fmt"

// Builder assembles a Graph in topological order. The first error (duplicate
// node name) sticks and is reported by Build, so call sites can chain freely.
type Builder struct {
	inputs  []Input
	index   map[string]int
	nodes   []*Node
	names   map[string]bool
	outputs []Output
	err     error
}

func NewBuilder() *Builder {
	return &Builder{
		index: make(map[string]int),
		names: make(map[string]bool),
	}
}

// Input registers a media file and returns its engine input index. The same
// path always maps to the same index.
func (b *Builder) Input(path string) int {
	if i, ok := b.index[path]; ok {
		return i
	}
	i := len(b.inputs)
	b.inputs = append(b.inputs, Input{Index: i, Path: path})
	b.index[path] = i
	return i
}

// Add appends a node. Its output pads default to the node name.
func (b *Builder) Add(n *Node) error {
	if b.err != nil {
		return b.err
	}
	if b.names[n.Name] {
		b.err = fmt.Errorf("%w: duplicate node name %q", ErrInvalidGraph, n.Name)
		return b.err
	}
	if len(n.Out) == 0 {
		n.Out = []string{n.Name}
	}
	b.names[n.Name] = true
	b.nodes = append(b.nodes, n)
	return nil
}

// Filter adds a single-output filter node and returns its output pad.
func (b *Builder) Filter(name, filter string, in []string, args ...Arg) string {
	b.Add(&Node{Name: name, Filter: filter, Args: args, In: in})
	return name
}

// Chain adds an opaque filter chain fed by one pad and returns its output pad.
func (b *Builder) Chain(name, chain, in string) string {
	b.Add(&Node{Name: name, Chain: chain, In: []string{in}})
	return name
}

// Split adds a split node with n named outputs and returns them.
func (b *Builder) Split(name, filter, in string, outs ...string) []string {
	b.Add(&Node{
		Name:   name,
		Filter: filter,
		Args:   []Arg{{Value: fmt.Sprint(len(outs))}},
		In:     []string{in},
		Out:    outs,
	})
	return outs
}

// Output binds a named graph output to a pad.
func (b *Builder) Output(name, pad string) {
	b.outputs = append(b.outputs, Output{Name: name, Pad: pad})
}

// Build validates and returns the graph.
func (b *Builder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	g := &Graph{Inputs: b.inputs, Nodes: b.nodes, Outputs: b.outputs}
	if err := Validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

// KV is shorthand for a keyed Arg.
func KV(key, value string) Arg {
	return Arg{Key: key, Value: value}
}
