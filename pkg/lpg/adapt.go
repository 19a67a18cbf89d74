package lpg

import (
	"log/slog"
	"slices"
	"sort"
	"strings"

	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/model"
)

// Params parameterizes Adapt. Type names are node or edge labels, normally
// metatype names.
type Params struct {
	ExcludedNodeTypes []string `yaml:"excluded_node_types" json:"excluded_node_types,omitempty"`
	ExcludedEdgeTypes []string `yaml:"excluded_edge_types" json:"excluded_edge_types,omitempty"`
	// EdgeTypes, when non-empty, excludes every edge label not listed here
	// or in ImpliedEdgeTypes.
	EdgeTypes         []string `yaml:"edge_types" json:"edge_types,omitempty"`
	ReversedEdgeTypes []string `yaml:"reversed_edge_types" json:"reversed_edge_types,omitempty"`
	ImpliedEdgeTypes  []string `yaml:"implied_edge_types" json:"implied_edge_types,omitempty"`
	IncludedPackages  []string `yaml:"included_packages" json:"included_packages,omitempty"`
}

func sortedSet(in []string) []string {
	out := slices.Clone(in)
	sort.Strings(out)
	return slices.Compact(out)
}

// Normalized returns a copy with every list sorted and deduplicated.
func (p Params) Normalized() Params {
	return Params{
		ExcludedNodeTypes: sortedSet(p.ExcludedNodeTypes),
		ExcludedEdgeTypes: sortedSet(p.ExcludedEdgeTypes),
		EdgeTypes:         sortedSet(p.EdgeTypes),
		ReversedEdgeTypes: sortedSet(p.ReversedEdgeTypes),
		ImpliedEdgeTypes:  sortedSet(p.ImpliedEdgeTypes),
		IncludedPackages:  sortedSet(p.IncludedPackages),
	}
}

// Key is the cache key of the normalized parameter tuple.
func (p Params) Key() string {
	n := p.Normalized()
	parts := [][]string{n.ExcludedNodeTypes, n.ExcludedEdgeTypes, n.EdgeTypes, n.ReversedEdgeTypes, n.ImpliedEdgeTypes, n.IncludedPackages}
	var b strings.Builder
	for i, part := range parts {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(strings.Join(part, ","))
	}
	return b.String()
}

// WithPackages returns a copy restricted to the given packages.
func (p Params) WithPackages(pkgs ...string) Params {
	p.IncludedPackages = append(slices.Clone(p.IncludedPackages), pkgs...)
	return p
}

func toSet(in []string) map[string]bool {
	s := make(map[string]bool, len(in))
	for _, v := range in {
		s[v] = true
	}
	return s
}

// Adapt derives a graph from base: implied edges are computed and spliced
// in first, then excluded node and edge types are dropped, nodes are
// restricted to the included packages, and reversed edge types are flipped
// and relabeled "Type^-1". Unknown generators and type names absent from
// base are recorded as LookupMiss warnings on the returned graph.
func Adapt(base *Graph, p Params, m model.Store) *Graph {
	diag := &errors.Diagnostics{}
	p = p.Normalized()

	candidates := slices.Clone(base.edges)
	for _, name := range p.ImpliedEdgeTypes {
		gen, ok := generators[name]
		if !ok {
			diag.Warn(errors.KindLookupMiss, name, "unknown implied edge generator %q", name)
			continue
		}
		candidates = append(candidates, gen(base)...)
	}

	warnUnknownTypes(base, p, diag)

	excludedNodes := toSet(p.ExcludedNodeTypes)
	excludedEdges := toSet(p.ExcludedEdgeTypes)
	keptEdges := toSet(p.EdgeTypes)
	reversed := toSet(p.ReversedEdgeTypes)
	impliedNames := toSet(p.ImpliedEdgeTypes)

	scoped := len(p.IncludedPackages) > 0
	if scoped && m == nil {
		diag.Warn(errors.KindLookupMiss, "included_packages", "package scope requested without a model store")
		scoped = false
	}

	out := newGraph(base.NodeCount())
	remap := make(map[int]int, base.NodeCount())
	for _, n := range base.nodes {
		if excludedNodes[n.Label] {
			continue
		}
		if scoped && !inAnyPackage(m, n.ID, p.IncludedPackages) {
			continue
		}
		remap[n.Index] = out.addNode(n)
	}

	for _, e := range candidates {
		s, okS := remap[e.Source]
		t, okT := remap[e.Target]
		if !okS || !okT || excludedEdges[e.Label] {
			continue
		}
		if len(keptEdges) > 0 && !keptEdges[e.Label] && !(e.Implied && impliedNames[e.Label]) {
			continue
		}
		e.Source, e.Target = s, t
		if reversed[e.Label] {
			e.Source, e.Target = e.Target, e.Source
			e.Label += ReversedSuffix
			e.Key += ReversedSuffix
			e.Reversed = true
		}
		out.addEdge(e)
	}
	out.warnings = diag.Items()

	slog.Debug("adapted graph", "key", p.Key(), "nodes", out.NodeCount(), "edges", out.EdgeCount())
	return out
}

func inAnyPackage(m model.Store, id string, pkgs []string) bool {
	for _, pkg := range pkgs {
		if m.IsInPackage(id, pkg) {
			return true
		}
	}
	return false
}

// warnUnknownTypes flags filter types with no node or edge of that label
// in base. Generator names count as present edge types.
func warnUnknownTypes(base *Graph, p Params, diag *errors.Diagnostics) {
	nodeLabels, edgeLabels := base.Labels()
	absent := func(names []string, present map[string]int, edges bool) []string {
		var out []string
		for _, name := range names {
			if _, ok := present[name]; ok {
				continue
			}
			if _, ok := generators[name]; ok && edges {
				continue
			}
			out = append(out, name)
		}
		return out
	}
	if miss := absent(p.ExcludedNodeTypes, nodeLabels, false); len(miss) > 0 {
		diag.Warn(errors.KindLookupMiss, strings.Join(miss, ","), "excluded node types absent from the graph: %s", strings.Join(miss, ", "))
	}
	var edges []string
	for _, list := range [][]string{p.ExcludedEdgeTypes, p.EdgeTypes, p.ReversedEdgeTypes} {
		edges = append(edges, list...)
	}
	if miss := absent(sortedSet(edges), edgeLabels, true); len(miss) > 0 {
		diag.Warn(errors.KindLookupMiss, strings.Join(miss, ","), "edge types absent from the graph: %s", strings.Join(miss, ", "))
	}
}
