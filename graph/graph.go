package graph

import (
	"fmt"

	"github.com/hupe1980/chatgraph/agent"
	"github.com/hupe1980/chatgraph/core"
)

// Graph is the static topology of the conversation engine: named nodes,
// fixed successor edges, and one router node whose merged Next decision
// replaces its static edge. Build it once, Validate it, then share it across
// turns; it is immutable during execution.
type Graph struct {
	nodes  map[string]agent.Node
	edges  map[string]string
	router string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]agent.Node),
		edges: make(map[string]string),
	}
}

// AddNode registers a node under its declared name.
func (g *Graph) AddNode(n agent.Node) *Graph {
	g.nodes[n.Name()] = n
	return g
}

// AddEdge declares the fixed successor for a node. The Start sentinel may
// appear as from (the entry edge) and End as to (a terminal edge).
func (g *Graph) AddEdge(from, to string) *Graph {
	g.edges[from] = to
	return g
}

// SetRouter marks the node whose Next decision selects its successor
// dynamically instead of a static edge.
func (g *Graph) SetRouter(name string) *Graph {
	g.router = name
	return g
}

// Validate checks the topology: an entry edge from Start must exist, every
// edge endpoint must be a declared node (or sentinel), every non-router node
// must have a successor, and the router must be declared.
func (g *Graph) Validate() error {
	if _, ok := g.edges[core.Start]; !ok {
		return fmt.Errorf("graph has no entry edge from %s", core.Start)
	}
	if g.router != "" {
		if _, ok := g.nodes[g.router]; !ok {
			return fmt.Errorf("router %q is not a declared node", g.router)
		}
	}

	for from, to := range g.edges {
		if from != core.Start {
			if _, ok := g.nodes[from]; !ok {
				return fmt.Errorf("edge from undeclared node %q", from)
			}
		}
		if to != core.End {
			if _, ok := g.nodes[to]; !ok {
				return fmt.Errorf("edge to undeclared node %q", to)
			}
		}
	}

	for name := range g.nodes {
		if name == g.router {
			continue
		}
		if _, ok := g.edges[name]; !ok {
			return fmt.Errorf("node %q has no successor edge", name)
		}
	}

	return nil
}

// Node looks up a declared node by name.
func (g *Graph) Node(name string) (agent.Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Successor returns the static successor for a node.
func (g *Graph) Successor(name string) (string, bool) {
	to, ok := g.edges[name]
	return to, ok
}

// IsRouter reports whether the named node routes dynamically.
func (g *Graph) IsRouter(name string) bool {
	return g.router != "" && name == g.router
}

// NewConversationGraph assembles the standard topology: the supervisor as
// router with the two reporters cycling back to it, and the persona handing
// off to the summarizer before the turn ends.
func NewConversationGraph(supervisor, weather, news, persona, summarizer agent.Node) (*Graph, error) {
	g := NewGraph().
		AddNode(supervisor).
		AddNode(weather).
		AddNode(news).
		AddNode(persona).
		AddNode(summarizer).
		SetRouter(supervisor.Name()).
		AddEdge(core.Start, supervisor.Name()).
		AddEdge(weather.Name(), supervisor.Name()).
		AddEdge(news.Name(), supervisor.Name()).
		AddEdge(persona.Name(), summarizer.Name()).
		AddEdge(summarizer.Name(), core.End)

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
