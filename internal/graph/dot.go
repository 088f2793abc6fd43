package graph

import (
	"strings"

	"github.com/emicklei/dot"
)

// DOT renders the graph in Graphviz format. Chains are boxes listing their
// owning module and processors; exception edges are dashed.
func (g *Graph) DOT() string {
	d := dot.NewGraph(dot.Directed)
	d.Attr("rankdir", "LR")

	nodes := make(map[string]dot.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		dn := d.Node(n.ID).Attr("style", "filled").Attr("fillcolor", n.Color)
		if n.Kind == KindTerminal {
			dn = dn.Attr("shape", "doublecircle").Label(n.Label)
		} else {
			dn = dn.Attr("shape", "box").Label(nodeLabel(n))
		}
		nodes[n.ID] = dn
	}

	for _, e := range g.Edges {
		from, ok := nodes[e.From]
		if !ok {
			continue
		}
		to, ok := nodes[e.To]
		if !ok {
			// the registry guarantees targets exist; tolerate hand-built graphs
			to = d.Node(e.To)
			nodes[e.To] = to
		}
		de := d.Edge(from, to, e.Label)
		switch e.Kind {
		case EdgeException:
			de.Attr("style", "dashed").Attr("color", "red")
		case EdgeDefault:
			de.Attr("style", "bold")
		}
	}
	return d.String()
}

func nodeLabel(n Node) string {
	var b strings.Builder
	b.WriteString(n.Label)
	if n.Module != "" {
		b.WriteString("\n[")
		b.WriteString(n.Module)
		b.WriteString("]")
	}
	for _, p := range n.Processors {
		b.WriteString("\n- ")
		b.WriteString(p)
	}
	return b.String()
}
