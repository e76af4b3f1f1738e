package graph

import "strings"

// Serialize renders the graph as an ffmpeg filter_complex description.
// Nodes appear in graph order, separated by ';'.
func Serialize(g *Graph) string {
	parts := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		parts = append(parts, serializeNode(n))
	}
	return strings.Join(parts, ";")
}

func serializeNode(n *Node) string {
	var b strings.Builder
	for _, in := range n.In {
		b.WriteString("[" + in + "]")
	}

	if n.Chain != "" {
		b.WriteString(n.Chain)
	} else {
		b.WriteString(n.Filter)
		for i, a := range n.Args {
			if i == 0 {
				b.WriteByte('=')
			} else {
				b.WriteByte(':')
			}
			if a.Key != "" {
				b.WriteString(a.Key + "=")
			}
			b.WriteString(QuoteValue(a.Value))
		}
	}

	for _, out := range n.Out {
		b.WriteString("[" + out + "]")
	}
	return b.String()
}

// QuoteValue escapes an option value for both parsing levels of a filtergraph:
// the option level (':' separators) and the graph level (',', ';', '[', ']').
func QuoteValue(v string) string {
	v = escapeOption(v)
	if !strings.ContainsAny(v, "[],;'\\ ") {
		return v
	}
	if !strings.ContainsRune(v, '\'') {
		return "'" + v + "'"
	}
	return escapeGraph(v)
}

var optionEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)

func escapeOption(v string) string {
	return optionEscaper.Replace(v)
}

var graphEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`, ` `, `\ `)

func escapeGraph(v string) string {
	return graphEscaper.Replace(v)
}

// Description is a JSON-friendly summary of a graph for dry runs and logging.
type Description struct {
	FilterComplex string   `json:"filter_complex"`
	Inputs        []string `json:"inputs"`
	Outputs       []Output `json:"outputs"`
	NodeCount     int      `json:"node_count"`
}

func Describe(g *Graph) Description {
	return Description{
		FilterComplex: Serialize(g),
		Inputs:        g.InputPaths(),
		Outputs:       g.Outputs,
		NodeCount:     len(g.Nodes),
	}
}
