package lpg

import (
	"log/slog"
)

// PathGraph returns the union of all shortest paths from one node to
// another. When no directed path exists it retries ignoring direction.
// It never fails: unknown ids or unreachable targets yield an empty graph.
func PathGraph(g *Graph, from, to string) *Graph {
	src, okS := g.Lookup(from)
	dst, okD := g.Lookup(to)
	if !okS || !okD {
		slog.Debug("path endpoints not in graph", "from", from, "to", to)
		return Empty()
	}

	for _, directed := range []bool{true, false} {
		paths := g.AllShortestPaths(src, dst, directed)
		if len(paths) == 0 {
			continue
		}
		nodes := map[int]bool{}
		steps := map[[2]int]bool{}
		for _, p := range paths {
			for i, n := range p {
				nodes[n] = true
				if i > 0 {
					steps[[2]int{p[i-1], n}] = true
				}
			}
		}
		keep := func(e *Edge) bool {
			if steps[[2]int{e.Source, e.Target}] {
				return true
			}
			return !directed && steps[[2]int{e.Target, e.Source}]
		}
		return g.subgraphOf(nodes, keep)
	}

	slog.Debug("no path found", "from", from, "to", to)
	return Empty()
}

// SpanningGraph returns the subgraph induced by the nodes within radius
// hops of center. When nothing is reachable along edge direction it
// retries ignoring direction.
func SpanningGraph(g *Graph, center string, radius int) *Graph {
	src, ok := g.Lookup(center)
	if !ok {
		return Empty()
	}
	order, _ := g.BFS(src, radius, true)
	if len(order) <= 1 {
		order, _ = g.BFS(src, radius, false)
	}
	nodes := make(map[int]bool, len(order))
	for _, n := range order {
		nodes[n] = true
	}
	return g.subgraphOf(nodes, nil)
}

// subgraphOf remaps the selected original indices keeping edges between
// them that pass keep. keep sees edges with original indices.
func (g *Graph) subgraphOf(nodes map[int]bool, keep func(*Edge) bool) *Graph {
	list := make([]int, 0, len(nodes))
	for n := range nodes {
		list = append(list, n)
	}
	return g.Subgraph(list, keep)
}
