package lpg

import (
	"fmt"
	"sort"

	"github.com/duynguyendang/mbe/pkg/common/errors"
)

// Roots returns the nodes with no incoming edges, in index order.
func (g *Graph) Roots() []int {
	var out []int
	for i := range g.nodes {
		if len(g.in[i]) == 0 {
			out = append(out, i)
		}
	}
	return out
}

// Leaves returns the nodes with no outgoing edges, in index order.
func (g *Graph) Leaves() []int {
	var out []int
	for i := range g.nodes {
		if len(g.out[i]) == 0 {
			out = append(out, i)
		}
	}
	return out
}

// TopologicalSort orders the nodes so that every edge runs forward. Ties
// are broken by node index. A cycle fails with ErrStructuralViolation.
func (g *Graph) TopologicalSort() ([]int, error) {
	indeg := make([]int, len(g.nodes))
	for _, e := range g.edges {
		if e.Source != e.Target {
			indeg[e.Target]++
		}
	}
	var ready []int
	for i, d := range indeg {
		if d == 0 {
			ready = append(ready, i)
		}
	}
	order := make([]int, 0, len(g.nodes))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)
		for _, ei := range g.out[n] {
			t := g.edges[ei].Target
			if t == n {
				continue
			}
			indeg[t]--
			if indeg[t] == 0 {
				k := sort.SearchInts(ready, t)
				ready = append(ready, 0)
				copy(ready[k+1:], ready[k:])
				ready[k] = t
			}
		}
	}
	if len(order) < len(g.nodes) {
		return order, fmt.Errorf("%w: cycle through %d nodes", errors.ErrStructuralViolation, len(g.nodes)-len(order))
	}
	return order, nil
}

// WeaklyConnectedComponents returns the components ignoring direction.
// Components are ordered by their smallest node index; members are sorted.
func (g *Graph) WeaklyConnectedComponents() [][]int {
	comp := make([]int, len(g.nodes))
	for i := range comp {
		comp[i] = -1
	}
	var out [][]int
	for start := range g.nodes {
		if comp[start] >= 0 {
			continue
		}
		id := len(out)
		members := []int{start}
		comp[start] = id
		for q := 0; q < len(members); q++ {
			for _, n := range g.Neighbors(members[q]) {
				if comp[n] < 0 {
					comp[n] = id
					members = append(members, n)
				}
			}
		}
		sort.Ints(members)
		out = append(out, members)
	}
	return out
}

// AllSimplePaths returns every simple path from src to any node in targets,
// in depth-first order. A path of a single node is returned when src itself
// is a target.
func (g *Graph) AllSimplePaths(src int, targets map[int]bool) [][]int {
	var out [][]int
	onPath := make([]bool, len(g.nodes))
	path := []int{src}
	onPath[src] = true

	var walk func(n int)
	walk = func(n int) {
		if targets[n] {
			out = append(out, append([]int(nil), path...))
		}
		for _, next := range g.Successors(n) {
			if onPath[next] {
				continue
			}
			onPath[next] = true
			path = append(path, next)
			walk(next)
			path = path[:len(path)-1]
			onPath[next] = false
		}
	}
	walk(src)
	return out
}

// AllShortestPaths returns every shortest path from src to dst. When
// directed is false edges are traversed both ways.
func (g *Graph) AllShortestPaths(src, dst int, directed bool) [][]int {
	next := g.Successors
	if !directed {
		next = g.Neighbors
	}
	dist := map[int]int{src: 0}
	parents := map[int][]int{}
	queue := []int{src}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n == dst {
			continue
		}
		for _, m := range next(n) {
			d, seen := dist[m]
			switch {
			case !seen:
				dist[m] = dist[n] + 1
				parents[m] = []int{n}
				queue = append(queue, m)
			case d == dist[n]+1:
				parents[m] = append(parents[m], n)
			}
		}
	}
	if _, ok := dist[dst]; !ok {
		return nil
	}

	var out [][]int
	var back func(n int, suffix []int)
	back = func(n int, suffix []int) {
		suffix = append([]int{n}, suffix...)
		if n == src {
			out = append(out, suffix)
			return
		}
		for _, p := range parents[n] {
			back(p, suffix)
		}
	}
	back(dst, nil)
	return out
}

// BFS returns the nodes reachable from src within radius hops, in visit
// order, together with their distance.
func (g *Graph) BFS(src, radius int, directed bool) ([]int, map[int]int) {
	next := g.Successors
	if !directed {
		next = g.Neighbors
	}
	dist := map[int]int{src: 0}
	order := []int{src}
	for q := 0; q < len(order); q++ {
		n := order[q]
		if radius >= 0 && dist[n] >= radius {
			continue
		}
		for _, m := range next(n) {
			if _, seen := dist[m]; !seen {
				dist[m] = dist[n] + 1
				order = append(order, m)
			}
		}
	}
	return order, dist
}
