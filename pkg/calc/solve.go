package calc

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/interpret"
	"github.com/duynguyendang/mbe/pkg/lpg"
	"github.com/duynguyendang/mbe/pkg/model"
)

// ComponentReport describes the evaluation of one weakly connected
// component of the dependency graph.
type ComponentReport struct {
	Nodes  []string `json:"nodes"`
	Order  []string `json:"order"`
	Solved bool     `json:"solved"`
}

// Report is the outcome of Solve.
type Report struct {
	Components  []ComponentReport   `json:"components"`
	Diagnostics []errors.Diagnostic `json:"diagnostics"`
}

// Solved returns the number of fully evaluated components.
func (r *Report) Solved() int {
	n := 0
	for _, c := range r.Components {
		if c.Solved {
			n++
		}
	}
	return n
}

// errPartial stops a component without failing the run.
var errPartial = stderrors.New("component left partially solved")

// Solve evaluates every component of the dependency graph described by
// order and writes the results into the value holders of dict. A failing
// component does not stop the others; the returned error joins the fatal
// diagnostics.
func (e *Engine) Solve(dict interpret.InstanceDict, order []ExecutionEdge) (*Report, error) {
	s := &solver{model: e.graphs.Model(), base: e.graphs.Base(), dict: dict, diag: &errors.Diagnostics{}}
	dep := s.dependencies(order)

	rep := &Report{}
	for _, comp := range dep.WeaklyConnectedComponents() {
		if len(comp) < 2 {
			continue
		}
		rep.Components = append(rep.Components, s.component(dep.Subgraph(comp, nil)))
	}
	if g, err := e.graphs.GetProjection(lpg.ProjectionExpressionInferred); err == nil {
		s.diag.Append(g.Diagnostics()...)
	}
	rep.Diagnostics = s.diag.Items()
	slog.Info("expressions solved", "components", len(rep.Components), "solved", rep.Solved())
	return rep, s.diag.Err()
}

type solver struct {
	model model.Store
	base  *lpg.Graph
	dict  interpret.InstanceDict
	diag  *errors.Diagnostics
}

func (s *solver) dependencies(order []ExecutionEdge) *lpg.Graph {
	g := lpg.NewGraph()
	for _, e := range order {
		src := g.AddNode(e.Producer, s.model.Metatype(e.Producer))
		tgt := g.AddNode(e.Consumer, s.model.Metatype(e.Consumer))
		g.AddEdge(src, tgt, e.Kind.String())
	}
	return g
}

func (s *solver) component(g *lpg.Graph) ComponentReport {
	cr := ComponentReport{Nodes: g.NodeIDs()}

	if g.NodeCount() == 2 {
		edge := g.Edge(0)
		if producer := g.Node(edge.Source); producer.Metatype.IsLiteral() {
			consumer := g.ID(edge.Target)
			v := s.literal(producer.ID)
			s.setAll(producer.ID, v)
			s.setAll(consumer, v)
			cr.Order = []string{producer.ID, consumer}
			cr.Solved = true
			return cr
		}
	}

	order, err := g.TopologicalSort()
	if err != nil {
		s.diag.Fail(errors.KindStructuralViolation, cr.Nodes[0], fmt.Errorf("expression component: %w", err))
		return cr
	}
	if !startsWell(g, order[0]) {
		first := g.Node(order[0])
		s.diag.Fail(errors.KindStructuralViolation, first.ID,
			fmt.Errorf("%w: expression component starts at %s %s", errors.ErrStructuralViolation, first.Metatype, first.ID))
		return cr
	}

	for _, n := range order {
		id := g.ID(n)
		if err := s.evaluate(g, n); err != nil {
			switch {
			case stderrors.Is(err, errPartial):
				s.diag.Warn(errors.KindConvergenceWarning, id, "%v", err)
			case stderrors.Is(err, errors.ErrOperatorUnsupported):
				s.diag.Fail(errors.KindOperatorUnsupported, id, err)
			default:
				s.diag.Fail(errors.KindStructuralViolation, id, err)
			}
			return cr
		}
		cr.Order = append(cr.Order, id)
	}
	cr.Solved = true
	return cr
}

// startsWell reports whether n may open an evaluation: a literal, a feature
// reference, or a feature whose only use is being referenced.
func startsWell(g *lpg.Graph, n int) bool {
	node := g.Node(n)
	switch {
	case node.Metatype.IsLiteral(), node.Metatype == model.FeatureReferenceExpression:
		return true
	case node.Metatype.IsExpression():
		return false
	}
	for _, e := range g.OutEdges(n) {
		if e.Label != ValueBinding.String() || g.Node(e.Target).Metatype != model.FeatureReferenceExpression {
			return false
		}
	}
	return g.OutDegree(n) > 0
}

func (s *solver) evaluate(g *lpg.Graph, n int) error {
	node := g.Node(n)
	mt := node.Metatype
	switch {
	case mt.IsLiteral():
		s.setAll(node.ID, s.literal(node.ID))
		return nil
	case mt == model.FeatureReferenceExpression:
		s.reference(g, n)
		return nil
	case mt.IsExpression():
		return s.operator(g, n)
	case mt.IsFeature():
		s.forward(g, n)
		return nil
	}
	// Classifiers and namespaces carry no values.
	return nil
}

// slot is one sequence of an element paired with its value holder.
type slot struct {
	seq    interpret.Sequence
	holder interpret.Holder
}

func (s *solver) slots(id string) []slot {
	var out []slot
	for _, seq := range s.dict[id] {
		if h, ok := seq.Last().(interpret.Holder); ok {
			out = append(out, slot{seq: seq, holder: h})
		}
	}
	return out
}

// corresponds reports whether producer sequence p feeds consumer sequence
// c: p without its last item is a prefix of c, or c without its last item
// is a prefix of p.
func corresponds(p, c interpret.Sequence) bool {
	if len(p) > 0 && c.HasPrefix(p[:len(p)-1]) {
		return true
	}
	return len(c) > 0 && p.HasPrefix(c[:len(c)-1])
}

func (s *solver) literal(id string) any {
	if e, ok := s.model.Element(id); ok {
		return e.Value()
	}
	for _, sl := range s.slots(id) {
		if e := sl.holder.Base().Element; e != nil {
			return e.Value()
		}
	}
	return nil
}

func (s *solver) setAll(id string, v any) {
	for _, sl := range s.slots(id) {
		sl.holder.Set(v)
	}
}

// reference sets every holder of a feature reference expression to the
// referent's corresponding sequences, or to all of them when none
// corresponds.
func (s *solver) reference(g *lpg.Graph, n int) {
	id := g.ID(n)
	referent := ""
	if e, ok := s.model.Element(id); ok {
		referent = e.StringAttr("referent")
	}
	if referent == "" {
		if preds := g.Predecessors(n); len(preds) > 0 {
			referent = g.ID(preds[0])
		}
	}
	produced := s.dict[referent]
	for _, c := range s.slots(id) {
		var matched []interpret.Sequence
		for _, p := range produced {
			if corresponds(p, c.seq) {
				matched = append(matched, p)
			}
		}
		if len(matched) == 0 {
			matched = append(matched, produced...)
		}
		c.holder.Set(matched)
	}
}

// forward copies into each holder of a feature the value of the first
// corresponding, already valued holder among its predecessors.
func (s *solver) forward(g *lpg.Graph, n int) {
	preds := g.Predecessors(n)
	for _, c := range s.slots(g.ID(n)) {
		if v, ok := s.upstream(preds, g, c.seq); ok {
			c.holder.Set(v)
		}
	}
}

func (s *solver) upstream(preds []int, g *lpg.Graph, seq interpret.Sequence) (any, bool) {
	for _, p := range preds {
		valued := s.valued(g.ID(p))
		for _, sl := range valued {
			if corresponds(sl.seq, seq) {
				return sl.holder.Get(), true
			}
		}
		if len(valued) == 1 {
			return valued[0].holder.Get(), true
		}
	}
	return nil, false
}

// declared returns the declaration position of id, or -1 when unknown.
func (s *solver) declared(id string) int {
	if i, ok := s.base.Lookup(id); ok {
		return i
	}
	return -1
}

func (s *solver) valued(id string) []slot {
	var out []slot
	for _, sl := range s.slots(id) {
		if sl.holder.Get() != nil {
			out = append(out, sl)
		}
	}
	return out
}

// operator evaluates an operator expression for each of its holders. The
// operands are its Input predecessors in declaration order.
func (s *solver) operator(g *lpg.Graph, n int) error {
	id := g.ID(n)
	op := ""
	if e, ok := s.model.Element(id); ok {
		op = e.StringAttr("operator")
		if op == "" {
			op = e.StringAttr("function")
		}
		if op == "" && e.Metatype == model.CollectExpression {
			op = "collect"
		}
	}

	var params []string
	for _, e := range g.InEdges(n) {
		if e.Label == Input.String() {
			params = append(params, g.ID(e.Source))
		}
	}
	sort.SliceStable(params, func(i, j int) bool {
		return s.declared(params[i]) < s.declared(params[j])
	})

	for _, c := range s.slots(id) {
		args := make([]any, len(params))
		for i, p := range params {
			for _, sl := range s.slots(p) {
				if corresponds(sl.seq, c.seq) {
					args[i] = sl.holder.Get()
					break
				}
			}
		}
		v, err := Apply(op, args)
		if err != nil {
			return fmt.Errorf("expression %s: %w", id, err)
		}
		c.holder.Set(v)
	}
	return nil
}
