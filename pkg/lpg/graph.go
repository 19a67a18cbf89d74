package lpg

import (
	"fmt"
	"sort"

	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/model"
)

// ReversedSuffix marks the label of an edge whose direction was flipped.
const ReversedSuffix = "^-1"

// Node is one non-relationship element.
type Node struct {
	Index    int            `json:"index"`
	ID       string         `json:"id"`
	Label    string         `json:"label"`
	Metatype model.Metatype `json:"-"`
	Attrs    map[string]any `json:"attrs,omitempty"`
}

// Name returns the declared name of the node, or its id.
func (n *Node) Name() string {
	for _, k := range []string{"declaredName", "name"} {
		if s, ok := n.Attrs[k].(string); ok && s != "" {
			return s
		}
	}
	return n.ID
}

// Edge is one relationship between two nodes of the same graph.
type Edge struct {
	Index    int            `json:"index"`
	ID       string         `json:"id,omitempty"`
	Key      string         `json:"key"`
	Source   int            `json:"source"`
	Target   int            `json:"target"`
	Label    string         `json:"label"`
	Metatype model.Metatype `json:"-"`
	Reversed bool           `json:"reversed,omitempty"`
	Implied  bool           `json:"implied,omitempty"`
	Attrs    map[string]any `json:"attrs,omitempty"`
}

// BaseLabel returns the label without the reversal suffix.
func (e *Edge) BaseLabel() string {
	if e.Reversed {
		return e.Label[:len(e.Label)-len(ReversedSuffix)]
	}
	return e.Label
}

// Graph is an arena of nodes and edges addressed by small integer indices.
// Graphs returned by Build, Adapt and Subgraph are immutable.
type Graph struct {
	dict  *Dictionary
	nodes []Node
	edges []Edge
	out   [][]int
	in    [][]int
	keys  map[string]int

	// warnings raised by Adapt while deriving this graph
	warnings []errors.Diagnostic
}

func newGraph(sizeHint int) *Graph {
	return &Graph{
		dict: newDictionary(sizeHint),
		keys: make(map[string]int),
	}
}

// Diagnostics returns the LookupMiss warnings raised while the graph was
// adapted. Cached projections keep them, so every consumer sees them.
func (g *Graph) Diagnostics() []errors.Diagnostic {
	return append([]errors.Diagnostic(nil), g.warnings...)
}

// Empty returns a graph with no nodes.
func Empty() *Graph {
	return newGraph(0)
}

func (g *Graph) addNode(n Node) int {
	if idx, ok := g.dict.GetID(n.ID); ok {
		return idx
	}
	idx := g.dict.GetOrCreateID(n.ID)
	n.Index = idx
	g.nodes = append(g.nodes, n)
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	return idx
}

// addEdge appends e unless an edge with the same key exists.
func (g *Graph) addEdge(e Edge) (int, bool) {
	if e.Key == "" {
		e.Key = fmt.Sprintf("%d|%d|%s", e.Source, e.Target, e.Label)
	}
	if idx, dup := g.keys[e.Key]; dup {
		return idx, false
	}
	e.Index = len(g.edges)
	g.edges = append(g.edges, e)
	g.keys[e.Key] = e.Index
	g.out[e.Source] = append(g.out[e.Source], e.Index)
	g.in[e.Target] = append(g.in[e.Target], e.Index)
	return e.Index, true
}

// NewGraph returns an empty graph to be filled with AddNode and AddEdge
// before it is shared.
func NewGraph() *Graph {
	return newGraph(16)
}

// AddNode adds a node for id, or returns the index of the existing one.
func (g *Graph) AddNode(id string, mt model.Metatype) int {
	return g.addNode(Node{ID: id, Label: mt.String(), Metatype: mt})
}

// AddEdge connects two existing nodes. Repeated (source, target, label)
// triples are stored once.
func (g *Graph) AddEdge(src, tgt int, label string) int {
	idx, _ := g.addEdge(Edge{Source: src, Target: tgt, Label: label})
	return idx
}

func (g *Graph) NodeCount() int { return len(g.nodes) }
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Node returns the node at index i.
func (g *Graph) Node(i int) *Node {
	return &g.nodes[i]
}

// Edge returns the edge at index i.
func (g *Graph) Edge(i int) *Edge {
	return &g.edges[i]
}

// Nodes returns the nodes in index order.
func (g *Graph) Nodes() []Node {
	return g.nodes
}

// Edges returns the edges in index order.
func (g *Graph) Edges() []Edge {
	return g.edges
}

// Lookup returns the index of the node with the given id.
func (g *Graph) Lookup(id string) (int, bool) {
	return g.dict.GetID(id)
}

// NodeByID returns the node with the given id.
func (g *Graph) NodeByID(id string) (*Node, bool) {
	i, ok := g.dict.GetID(id)
	if !ok {
		return nil, false
	}
	return &g.nodes[i], true
}

// ID returns the element id of node i.
func (g *Graph) ID(i int) string {
	return g.nodes[i].ID
}

// OutEdges returns the edges leaving node i in edge order.
func (g *Graph) OutEdges(i int) []*Edge {
	out := make([]*Edge, len(g.out[i]))
	for k, e := range g.out[i] {
		out[k] = &g.edges[e]
	}
	return out
}

// InEdges returns the edges entering node i in edge order.
func (g *Graph) InEdges(i int) []*Edge {
	in := make([]*Edge, len(g.in[i]))
	for k, e := range g.in[i] {
		in[k] = &g.edges[e]
	}
	return in
}

func (g *Graph) OutDegree(i int) int { return len(g.out[i]) }
func (g *Graph) InDegree(i int) int  { return len(g.in[i]) }

// Successors returns distinct targets of node i in edge order.
func (g *Graph) Successors(i int) []int {
	return g.distinct(g.out[i], func(e *Edge) int { return e.Target })
}

// Predecessors returns distinct sources of node i in edge order.
func (g *Graph) Predecessors(i int) []int {
	return g.distinct(g.in[i], func(e *Edge) int { return e.Source })
}

// Neighbors returns distinct nodes adjacent to i in either direction.
func (g *Graph) Neighbors(i int) []int {
	seen := map[int]bool{}
	var out []int
	for _, n := range append(g.Successors(i), g.Predecessors(i)...) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func (g *Graph) distinct(edges []int, end func(*Edge) int) []int {
	seen := make(map[int]bool, len(edges))
	out := make([]int, 0, len(edges))
	for _, ei := range edges {
		n := end(&g.edges[ei])
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// HasEdge reports whether an edge labeled label runs from one id to another.
func (g *Graph) HasEdge(from, to, label string) bool {
	s, ok := g.Lookup(from)
	if !ok {
		return false
	}
	for _, ei := range g.out[s] {
		e := &g.edges[ei]
		if g.nodes[e.Target].ID == to && (label == "" || e.Label == label) {
			return true
		}
	}
	return false
}

// NodeIDs returns the sorted node ids.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		ids[i] = n.ID
	}
	sort.Strings(ids)
	return ids
}

// EdgeTriples returns sorted "source -label-> target" strings.
func (g *Graph) EdgeTriples() []string {
	out := make([]string, len(g.edges))
	for i, e := range g.edges {
		out[i] = fmt.Sprintf("%s -%s-> %s", g.nodes[e.Source].ID, e.Label, g.nodes[e.Target].ID)
	}
	sort.Strings(out)
	return out
}

// Labels returns the node and edge labels present in the graph.
func (g *Graph) Labels() (nodeLabels, edgeLabels map[string]int) {
	nodeLabels = make(map[string]int)
	edgeLabels = make(map[string]int)
	for _, n := range g.nodes {
		nodeLabels[n.Label]++
	}
	for _, e := range g.edges {
		edgeLabels[e.Label]++
	}
	return nodeLabels, edgeLabels
}

// Subgraph returns the graph induced by the given node indices, keeping
// only edges accepted by keep (all edges when keep is nil).
func (g *Graph) Subgraph(nodes []int, keep func(*Edge) bool) *Graph {
	sorted := append([]int(nil), nodes...)
	sort.Ints(sorted)
	sub := newGraph(len(sorted))
	remap := make(map[int]int, len(sorted))
	for _, i := range sorted {
		if _, dup := remap[i]; dup {
			continue
		}
		remap[i] = sub.addNode(g.nodes[i])
	}
	for _, e := range g.edges {
		s, okS := remap[e.Source]
		t, okT := remap[e.Target]
		if !okS || !okT || (keep != nil && !keep(&e)) {
			continue
		}
		e.Source, e.Target = s, t
		sub.addEdge(e)
	}
	return sub
}
