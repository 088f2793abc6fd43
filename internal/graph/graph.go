// Package graph projects a built chain registry into nodes and edges for
// inspection. Export never mutates the registry.
package graph

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/keithlinneman/reqchain/internal/chain"
)

// ConsumeNode is the synthetic terminal every Consume edge points at.
const ConsumeNode = "CONSUME"

type NodeKind string

const (
	KindChain    NodeKind = "chain"
	KindTerminal NodeKind = "terminal"
)

type EdgeKind string

const (
	EdgeDefault   EdgeKind = "default"
	EdgeRule      EdgeKind = "rule"
	EdgeException EdgeKind = "exception"
)

type Node struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Module     string   `json:"module,omitempty"`
	Processors []string `json:"processors,omitempty"`
	Color      string   `json:"color"`
	Kind       NodeKind `json:"kind"`
}

type Edge struct {
	From  string   `json:"from"`
	To    string   `json:"to"`
	Label string   `json:"label"`
	Kind  EdgeKind `json:"kind"`
}

type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

type Options struct {
	// IncludeExceptions adds an edge for every chain's exception action.
	IncludeExceptions bool
}

// palette holds fill colours assigned to modules by hash.
var palette = []string{
	"#8dd3c7", "#ffffb3", "#bebada", "#fb8072", "#80b1d3", "#fdb462",
	"#b3de69", "#fccde5", "#d9d9d9", "#bc80bd", "#ccebc5", "#ffed6f",
}

const terminalColor = "#ffffff"

// ModuleColor returns a stable colour for a module id.
func ModuleColor(module chain.ModuleID) string {
	return palette[xxhash.Sum64String(string(module))%uint64(len(palette))]
}

// Export walks reg in chain creation order. For each chain it emits the
// default edge first, then one edge per rule, then the exception edge when
// requested. Drop actions produce no edge.
func Export(reg *chain.Registry, opts Options) *Graph {
	g := &Graph{}
	hasConsume := false

	edge := func(from chain.Name, a chain.Action, label string, kind EdgeKind) {
		switch a := a.(type) {
		case chain.Jump:
			g.Edges = append(g.Edges, Edge{From: string(from), To: string(a.Target), Label: label, Kind: kind})
		case chain.Consume:
			hasConsume = true
			g.Edges = append(g.Edges, Edge{From: string(from), To: ConsumeNode, Label: label, Kind: kind})
		}
	}

	for _, c := range reg.Chains() {
		var procs []string
		for _, p := range c.Processors() {
			procs = append(procs, p.Name)
		}
		g.Nodes = append(g.Nodes, Node{
			ID:         string(c.Name()),
			Label:      string(c.Name()),
			Module:     string(c.Owner()),
			Processors: procs,
			Color:      ModuleColor(c.Owner()),
			Kind:       KindChain,
		})

		edge(c.Name(), c.DefaultAction(), "default", EdgeDefault)
		for _, r := range c.Rules() {
			edge(c.Name(), r.Action, r.Description, EdgeRule)
		}
		if opts.IncludeExceptions {
			edge(c.Name(), c.ExceptionAction(), "exception", EdgeException)
		}
	}

	if hasConsume {
		g.Nodes = append(g.Nodes, Node{ID: ConsumeNode, Label: ConsumeNode, Color: terminalColor, Kind: KindTerminal})
	}
	return g
}

// JSON renders the graph as indented JSON.
func (g *Graph) JSON() ([]byte, error) {
	b, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("graph: marshal: %w", err)
	}
	return b, nil
}
