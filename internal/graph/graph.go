// Package graph models an engine operation graph as a typed DAG of filter
// nodes connected through named pads, independent of its textual form.
//
// A Graph is produced by a Builder, checked by Validate and rendered to the
// engine's filter_complex syntax by Serialize.
package graph

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidGraph = errors.New("invalid operation graph")

const (
	StreamVideo = "v"
	StreamAudio = "a"

	OutputVideo = "video"
	OutputAudio = "audio"
)

// Input is one media file fed to the engine, addressed by Index.
type Input struct {
	Index int    `json:"index"`
	Path  string `json:"path"`
}

// Arg is one filter option. Order is preserved in the serialized form.
type Arg struct {
	Key   string `json:"key,omitempty"`
	Value string `json:"value"`
}

// Node is a single filter invocation. When Chain is set the node is an opaque
// comma-separated filter chain (effect fragments) and Filter/Args are unused.
type Node struct {
	Name   string   `json:"name"`
	Filter string   `json:"filter,omitempty"`
	Args   []Arg    `json:"args,omitempty"`
	Chain  string   `json:"chain,omitempty"`
	In     []string `json:"in"`
	Out    []string `json:"out"`
}

// Output binds a named graph output (video, audio) to the pad carrying it.
type Output struct {
	Name string `json:"name"`
	Pad  string `json:"pad"`
}

type Graph struct {
	Inputs  []Input  `json:"inputs"`
	Nodes   []*Node  `json:"nodes"`
	Outputs []Output `json:"outputs"`
}

// InputPaths returns the input files in index order.
func (g *Graph) InputPaths() []string {
	paths := make([]string, len(g.Inputs))
	for i, in := range g.Inputs {
		paths[i] = in.Path
	}
	return paths
}

// Output returns the pad bound to the named output.
func (g *Graph) Output(name string) (string, bool) {
	for _, o := range g.Outputs {
		if o.Name == name {
			return o.Pad, true
		}
	}
	return "", false
}

// NodesByFilter returns nodes whose filter name matches, in graph order.
func (g *Graph) NodesByFilter(filter string) []*Node {
	var out []*Node
	for _, n := range g.Nodes {
		if n.Filter == filter {
			out = append(out, n)
		}
	}
	return out
}

// Node returns the node with the given name.
func (g *Graph) Node(name string) *Node {
	for _, n := range g.Nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// Arg returns the value of the named option.
func (n *Node) Arg(key string) (string, bool) {
	for _, a := range n.Args {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// StreamPad names stream kind of input index, e.g. "0:v".
func StreamPad(index int, kind string) string {
	return strconv.Itoa(index) + ":" + kind
}

func parseStreamPad(pad string) (int, bool) {
	i := strings.IndexByte(pad, ':')
	if i <= 0 {
		return 0, false
	}
	kind := pad[i+1:]
	if kind != StreamVideo && kind != StreamAudio {
		return 0, false
	}
	n, err := strconv.Atoi(pad[:i])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Validate checks the structural rules the engine relies on: node names are
// unique, each pad is produced once, every consumed pad exists upstream, and
// every produced pad is consumed exactly once by a node or a graph output.
func Validate(g *Graph) error {
	if g == nil {
		return fmt.Errorf("%w: nil graph", ErrInvalidGraph)
	}

	names := make(map[string]bool, len(g.Nodes))
	produced := make(map[string]string)
	consumed := make(map[string]int)

	for _, n := range g.Nodes {
		if n.Name == "" {
			return fmt.Errorf("%w: node without name", ErrInvalidGraph)
		}
		if names[n.Name] {
			return fmt.Errorf("%w: duplicate node name %q", ErrInvalidGraph, n.Name)
		}
		names[n.Name] = true

		if n.Filter == "" && n.Chain == "" {
			return fmt.Errorf("%w: node %q has no operation", ErrInvalidGraph, n.Name)
		}
		if len(n.Out) == 0 {
			return fmt.Errorf("%w: node %q has no outputs", ErrInvalidGraph, n.Name)
		}

		for _, in := range n.In {
			if idx, ok := parseStreamPad(in); ok {
				if idx >= len(g.Inputs) {
					return fmt.Errorf("%w: node %q reads input %d, only %d inputs", ErrInvalidGraph, n.Name, idx, len(g.Inputs))
				}
				continue
			}
			if _, ok := produced[in]; !ok {
				return fmt.Errorf("%w: node %q consumes unknown pad %q", ErrInvalidGraph, n.Name, in)
			}
			consumed[in]++
		}

		for _, out := range n.Out {
			if owner, ok := produced[out]; ok {
				return fmt.Errorf("%w: pad %q produced by both %q and %q", ErrInvalidGraph, out, owner, n.Name)
			}
			produced[out] = n.Name
		}
	}

	seen := make(map[string]bool)
	for _, o := range g.Outputs {
		if seen[o.Name] {
			return fmt.Errorf("%w: duplicate output %q", ErrInvalidGraph, o.Name)
		}
		seen[o.Name] = true
		if _, ok := produced[o.Pad]; !ok {
			return fmt.Errorf("%w: output %q bound to unknown pad %q", ErrInvalidGraph, o.Name, o.Pad)
		}
		consumed[o.Pad]++
	}

	for _, n := range g.Nodes {
		for _, pad := range n.Out {
			switch consumed[pad] {
			case 1:
			case 0:
				return fmt.Errorf("%w: pad %q of node %q is never consumed", ErrInvalidGraph, pad, n.Name)
			default:
				return fmt.Errorf("%w: pad %q of node %q consumed %d times", ErrInvalidGraph, pad, n.Name, consumed[pad])
			}
		}
	}

	for i, in := range g.Inputs {
		if in.Index != i {
			return fmt.Errorf("%w: input %q has index %d at position %d", ErrInvalidGraph, in.Path, in.Index, i)
		}
	}
	return nil
}
