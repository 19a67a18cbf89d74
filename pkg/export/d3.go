package export

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/datalog"
	"github.com/duynguyendang/mbe/pkg/interpret"
	"github.com/duynguyendang/mbe/pkg/lpg"
	"github.com/duynguyendang/mbe/pkg/model"
)

// D3Node represents a node in the D3 force-directed graph.
type D3Node struct {
	ID       string            `json:"id"`                 // Element id, or instance key for populations
	Name     string            `json:"name"`               // Display name
	Kind     string            `json:"kind,omitempty"`     // Metatype, e.g. "PartDefinition"
	Group    string            `json:"group,omitempty"`    // Owning package, used for coloring
	ParentID string            `json:"parentId,omitempty"` // Owner element or containing instance
	Abstract *bool             `json:"abstract,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"` // Multiplicity, values, labels
}

// D3Link represents a link/edge in the D3 force-directed graph.
type D3Link struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Relation   string  `json:"relation"`
	Weight     float64 `json:"weight,omitempty"`
	Type       string  `json:"type"`                 // "declared", "reversed" or "implied"
	Provenance string  `json:"provenance,omitempty"` // Relationship element id
}

// D3Graph represents the full graph structure for D3.js.
type D3Graph struct {
	Nodes []D3Node `json:"nodes"`
	Links []D3Link `json:"links"`
}

// D3Transformer converts projections, query results and populations to D3
// graphs, enriching nodes from the model.
type D3Transformer struct {
	IgnoredRelations map[string]bool
	Model            model.Store
	ExcludeLiterals  bool
}

// NewD3Transformer creates a transformer. m may be nil.
func NewD3Transformer(m model.Store) *D3Transformer {
	return &D3Transformer{
		IgnoredRelations: map[string]bool{},
		Model:            m,
	}
}

// FromGraph converts every node and edge of g.
func (t *D3Transformer) FromGraph(g *lpg.Graph) *D3Graph {
	out := &D3Graph{Nodes: []D3Node{}, Links: []D3Link{}}
	keep := map[int]bool{}
	for _, n := range g.Nodes() {
		if t.ExcludeLiterals && n.Metatype.IsLiteral() {
			continue
		}
		keep[n.Index] = true
		out.Nodes = append(out.Nodes, t.createNode(n.ID, n.Name(), n.Label))
	}
	for _, e := range g.Edges() {
		if !keep[e.Source] || !keep[e.Target] || t.IgnoredRelations[e.BaseLabel()] {
			continue
		}
		out.Links = append(out.Links, link(g.ID(e.Source), g.ID(e.Target), &e))
	}
	sortGraph(out)
	return out
}

func link(src, tgt string, e *lpg.Edge) D3Link {
	typ := "declared"
	switch {
	case e.Implied:
		typ = "implied"
	case e.Reversed:
		typ = "reversed"
	}
	return D3Link{Source: src, Target: tgt, Relation: e.Label, Weight: 1, Type: typ, Provenance: e.ID}
}

// Transform converts the rows of a query into a D3Graph. The first edge or
// triples atom of the query names the source, relation and target of each
// link.
func (t *D3Transformer) Transform(query string, res *datalog.Result) (*D3Graph, error) {
	if res == nil || len(res.Rows) == 0 {
		return &D3Graph{Nodes: []D3Node{}, Links: []D3Link{}}, nil
	}

	atoms, err := datalog.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse query for export: %w", err)
	}
	var edgeAtom *datalog.Atom
	for i := range atoms {
		if atoms[i].Predicate == "edge" || atoms[i].Predicate == "triples" {
			edgeAtom = &atoms[i]
			break
		}
	}
	if edgeAtom == nil || len(edgeAtom.Args) != 3 {
		return nil, fmt.Errorf("%w: query must contain an edge predicate with 3 arguments to be exported", errors.ErrInvalidInput)
	}

	col := map[string]int{}
	for i, v := range res.Vars {
		col[v] = i
	}
	resolve := func(term datalog.Term, row []string) string {
		if !term.Var {
			return term.Value
		}
		if i, ok := col[term.Value]; ok {
			return row[i]
		}
		return ""
	}

	nodes := map[string]D3Node{}
	out := &D3Graph{Nodes: []D3Node{}, Links: []D3Link{}}
	for _, row := range res.Rows {
		s := resolve(edgeAtom.Args[0], row)
		p := resolve(edgeAtom.Args[1], row)
		o := resolve(edgeAtom.Args[2], row)
		if s == "" || o == "" || t.IgnoredRelations[strings.TrimSuffix(p, lpg.ReversedSuffix)] {
			continue
		}
		for _, id := range []string{s, o} {
			if _, ok := nodes[id]; !ok {
				nodes[id] = t.createNode(id, "", "")
			}
		}
		out.Links = append(out.Links, D3Link{Source: s, Target: o, Relation: p, Weight: 1, Type: "declared"})
	}
	for _, n := range nodes {
		out.Nodes = append(out.Nodes, n)
	}
	sortGraph(out)
	return out, nil
}

// FromPopulation renders the instances of dict as a containment tree: one
// node per distinct instance and one link per sequence, from the next to last
// item to the last, labelled with the feature the sequence belongs to.
func (t *D3Transformer) FromPopulation(dict interpret.InstanceDict) *D3Graph {
	out := &D3Graph{Nodes: []D3Node{}, Links: []D3Link{}}
	index := map[string]int{}
	seenLink := map[string]bool{}

	for _, key := range dict.Keys() {
		for _, seq := range dict[key] {
			for _, item := range seq {
				id := instanceKey(item)
				if _, ok := index[id]; !ok {
					index[id] = len(out.Nodes)
					out.Nodes = append(out.Nodes, t.instanceNode(id, item))
				}
			}
			if len(seq) < 2 {
				continue
			}
			parent := instanceKey(seq[len(seq)-2])
			child := instanceKey(seq.Last())
			if n := &out.Nodes[index[child]]; n.ParentID == "" {
				n.ParentID = parent
			}
			lk := parent + "|" + child + "|" + key
			if seenLink[lk] {
				continue
			}
			seenLink[lk] = true
			out.Links = append(out.Links, D3Link{Source: parent, Target: child, Relation: key, Weight: 1, Type: "declared"})
		}
	}
	sortGraph(out)
	return out
}

func instanceKey(item interpret.Item) string {
	b := item.Base()
	if b.Element == nil {
		return b.Name
	}
	return b.ElementID() + "#" + strconv.Itoa(b.Index)
}

func (t *D3Transformer) instanceNode(id string, item interpret.Item) D3Node {
	b := item.Base()
	n := D3Node{ID: id, Name: b.Name, Group: b.ElementID()}
	if b.Element != nil {
		n.Kind = b.Element.Metatype.String()
		if b.Element.Metatype == model.MetatypeUnknown {
			n.Kind = b.Element.Type
		}
	}
	switch x := item.(type) {
	case *interpret.LiveExpressionNode:
		n.Metadata = map[string]string{"label": x.Label}
		if x.Value != nil {
			n.Metadata["value"] = interpret.FormatValue(x.Value)
		}
	case *interpret.ValueHolder:
		if x.Value != nil {
			n.Metadata = map[string]string{"value": interpret.FormatValue(x.Value)}
		}
	}
	return n
}

// createNode builds a D3Node enriched from the model.
func (t *D3Transformer) createNode(id, name, kind string) D3Node {
	n := D3Node{ID: id, Name: name, Kind: kind}
	if t.Model == nil {
		if n.Name == "" {
			n.Name = id
		}
		return n
	}
	e, ok := t.Model.Element(id)
	if !ok {
		if n.Name == "" {
			n.Name = id
		}
		return n
	}
	if n.Name == "" {
		n.Name = e.Name()
	}
	if n.Kind == "" {
		n.Kind = e.Metatype.String()
	}
	if owner, ok := t.Model.Owner(id); ok {
		n.ParentID = owner
		n.Group = t.group(owner)
	}
	if e.Metatype.IsClassifier() {
		abstract := t.Model.IsAbstract(id)
		n.Abstract = &abstract
	}
	if e.Metatype.IsFeature() {
		lo := t.Model.MultiplicityBound(id, model.Lower)
		hi := t.Model.MultiplicityBound(id, model.Upper)
		n.Metadata = map[string]string{"multiplicity": formatRange(lo, hi)}
	}
	if e.Metatype.IsLiteral() {
		if n.Metadata == nil {
			n.Metadata = map[string]string{}
		}
		n.Metadata["value"] = interpret.FormatValue(e.Value())
	}
	return n
}

// group returns the nearest namespace owning id.
func (t *D3Transformer) group(id string) string {
	seen := map[string]bool{}
	for cur := id; cur != "" && !seen[cur]; {
		seen[cur] = true
		if t.Model.Metatype(cur).IsNamespace() {
			return cur
		}
		next, ok := t.Model.Owner(cur)
		if !ok {
			break
		}
		cur = next
	}
	return ""
}

func formatRange(lo, hi int) string {
	h := strconv.Itoa(hi)
	if hi == model.Unbounded {
		h = "*"
	}
	if lo == hi {
		return "[" + h + "]"
	}
	return "[" + strconv.Itoa(lo) + ".." + h + "]"
}

func sortGraph(g *D3Graph) {
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
	sort.SliceStable(g.Links, func(i, j int) bool {
		a, b := g.Links[i], g.Links[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		return a.Relation < b.Relation
	})
}

// SaveD3Graph writes the graph to a JSON file.
func SaveD3Graph(graph *D3Graph, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(graph)
}
