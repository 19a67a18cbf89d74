package lpg

import (
	"sort"

	"github.com/duynguyendang/mbe/pkg/model"
)

// Implied edge generator names. Each is also the label of the edges it
// produces.
const (
	ImpliedReferentFeed = "ImpliedReferentFeed"
	ImpliedResultFeed   = "ImpliedResultFeed"
	ImpliedReturnFeed   = "ImpliedReturnFeed"
)

// Generator computes synthetic edges over a base graph. Source and Target of
// the returned edges index into g.
type Generator func(g *Graph) []Edge

var generators = map[string]Generator{
	ImpliedReferentFeed: referentFeed,
	ImpliedResultFeed:   resultFeed,
	ImpliedReturnFeed:   returnFeed,
}

// Generators returns the registered generator names, sorted.
func Generators() []string {
	names := make([]string, 0, len(generators))
	for n := range generators {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func implied(g *Graph, name string, src, tgt int) Edge {
	return Edge{
		Key:     g.ID(src) + "|" + g.ID(tgt) + "|" + name,
		Source:  src,
		Target:  tgt,
		Label:   name,
		Implied: true,
	}
}

// targetsByLabel returns the targets of edges leaving i with the given label.
func (g *Graph) targetsByLabel(i int, lbl string) []int {
	var out []int
	for _, ei := range g.out[i] {
		if g.edges[ei].Label == lbl {
			out = append(out, g.edges[ei].Target)
		}
	}
	return out
}

// referentFeed: the referent feature flows into each feature reference
// expression naming it.
func referentFeed(g *Graph) []Edge {
	var out []Edge
	for i := range g.nodes {
		n := &g.nodes[i]
		if n.Metatype != model.FeatureReferenceExpression {
			continue
		}
		ref, _ := n.Attrs["referent"].(string)
		if r, ok := g.Lookup(ref); ok {
			out = append(out, implied(g, ImpliedReferentFeed, r, i))
		}
	}
	return out
}

// resultFeed: the result parameter of a value expression flows into the
// feature the expression is the value of.
func resultFeed(g *Graph) []Edge {
	fv := model.FeatureValue.String()
	rpm := model.ReturnParameterMembership.String()
	var out []Edge
	for _, e := range g.edges {
		if e.Label != fv {
			continue
		}
		for _, res := range g.targetsByLabel(e.Target, rpm) {
			out = append(out, implied(g, ImpliedResultFeed, res, e.Source))
		}
	}
	return out
}

// returnFeed: a result expression flows into its owner's return parameter.
func returnFeed(g *Graph) []Edge {
	rem := model.ResultExpressionMembership.String()
	rpm := model.ReturnParameterMembership.String()
	var out []Edge
	for _, e := range g.edges {
		if e.Label != rem {
			continue
		}
		for _, ret := range g.targetsByLabel(e.Source, rpm) {
			out = append(out, implied(g, ImpliedReturnFeed, e.Target, ret))
		}
	}
	return out
}
