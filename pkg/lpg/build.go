package lpg

import (
	"fmt"
	"log/slog"
	"maps"

	"github.com/duynguyendang/mbe/pkg/model"
)

// Build constructs the base graph. Non-relationship elements become nodes;
// relationship elements become one edge per (source, target) pair. Edges
// of an abstract relationship metatype are kept as typed edges keyed by
// element and endpoint position. Edges with a missing endpoint are dropped.
func Build(elems []*model.Element) *Graph {
	g := newGraph(len(elems))

	for _, e := range elems {
		if isRelationship(e) {
			continue
		}
		g.addNode(Node{
			ID:       e.ID,
			Label:    label(e),
			Metatype: e.Metatype,
			Attrs:    maps.Clone(e.Attributes),
		})
	}

	dropped := 0
	for _, e := range elems {
		if !isRelationship(e) {
			continue
		}
		lbl := label(e)
		for i, src := range e.Source {
			for j, tgt := range e.Target {
				s, okS := g.Lookup(src)
				t, okT := g.Lookup(tgt)
				if !okS || !okT {
					dropped++
					slog.Debug("dropping edge with missing endpoint", "relationship", e.ID, "type", lbl, "source", src, "target", tgt)
					continue
				}
				var key string
				if e.Metatype.IsAbstractRelationship() {
					key = fmt.Sprintf("%s#%s.%d.%d", lbl, e.ID, i, j)
				} else {
					key = src + "|" + tgt + "|" + lbl
				}
				g.addEdge(Edge{
					ID:       e.ID,
					Key:      key,
					Source:   s,
					Target:   t,
					Label:    lbl,
					Metatype: e.Metatype,
					Attrs:    maps.Clone(e.Attributes),
				})
			}
		}
	}

	slog.Debug("built base graph", "nodes", g.NodeCount(), "edges", g.EdgeCount(), "dropped", dropped)
	return g
}

func isRelationship(e *model.Element) bool {
	if e.Metatype.IsRelationship() {
		return true
	}
	return e.Metatype == model.MetatypeUnknown && (len(e.Source) > 0 || len(e.Target) > 0)
}

func label(e *model.Element) string {
	if e.Metatype == model.MetatypeUnknown && e.Type != "" {
		return e.Type
	}
	return e.Metatype.String()
}
