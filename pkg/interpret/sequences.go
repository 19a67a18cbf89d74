package interpret

import (
	"log/slog"

	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/lpg"
	"github.com/duynguyendang/mbe/pkg/model"
)

// phase3 expands feature sequences along every root-to-leaf path of the
// part featuring projection.
func (r *run) phase3() FixedPoint {
	pf, err := r.projection(lpg.ProjectionPartFeaturing)
	if err != nil {
		r.diag.Fail(errors.KindLookupMiss, lpg.ProjectionPartFeaturing, err)
		return FixedPoint{}
	}
	fp := FixedPoint{}
	for _, template := range r.templates(pf, nil) {
		fp.Iterations++
		r.expand(template, r.extendFeature)
	}
	fp.Converged = len(r.exhausted) == 0
	return fp
}

// phase4 extends sequences along expression featuring paths that touch an
// expression or literal, appending live expression nodes and value holders.
func (r *run) phase4() FixedPoint {
	ef, err := r.projection(lpg.ProjectionExpressionFeaturing)
	if err != nil {
		r.diag.Fail(errors.KindLookupMiss, lpg.ProjectionExpressionFeaturing, err)
		return FixedPoint{}
	}
	touches := func(path []int) bool {
		for _, n := range path {
			mt := ef.Node(n).Metatype
			if mt.IsExpression() || mt.IsLiteral() {
				return true
			}
		}
		return false
	}
	fp := FixedPoint{Converged: true}
	for _, template := range r.templates(ef, touches) {
		fp.Iterations++
		r.expand(template, r.extendExpression)
	}
	return fp
}

// templates enumerates the root-to-leaf paths of every weakly connected
// component of g and strips every non-root node that is not a feature,
// expression or literal. Single-node components of top-level features are
// kept as one-element templates.
func (r *run) templates(g *lpg.Graph, keep func([]int) bool) [][]string {
	var out [][]string
	for _, comp := range g.WeaklyConnectedComponents() {
		if len(comp) == 1 {
			n := g.Node(comp[0])
			if n.Metatype.IsFeature() && r.topLevel(n.ID) && (keep == nil || keep(comp)) {
				out = append(out, []string{n.ID})
			}
			continue
		}
		leaves := map[int]bool{}
		var roots []int
		for _, n := range comp {
			if g.OutDegree(n) == 0 {
				leaves[n] = true
			}
			if g.InDegree(n) == 0 {
				roots = append(roots, n)
			}
		}
		for _, root := range roots {
			for _, path := range g.AllSimplePaths(root, leaves) {
				if keep != nil && !keep(path) {
					continue
				}
				template := []string{g.ID(path[0])}
				for _, n := range path[1:] {
					mt := g.Node(n).Metatype
					if mt.IsFeature() || mt.IsExpression() || mt.IsLiteral() {
						template = append(template, g.ID(n))
					}
				}
				out = append(out, template)
			}
		}
	}
	return out
}

// topLevel reports whether id is owned by a namespace or by nothing.
func (r *run) topLevel(id string) bool {
	owner, ok := r.model.Owner(id)
	return !ok || r.model.Metatype(owner).IsNamespace()
}

type extender func(parents []Sequence, id string) []Sequence

// expand walks template from its deepest memoized prefix, extending one
// element at a time. Every newly computed prefix is memoized and its
// sequences are appended to the entry of its last element.
func (r *run) expand(template []string, extend extender) {
	for k := 1; k <= len(template); k++ {
		key := memoKey(template[:k])
		if _, done := r.memo[key]; done {
			continue
		}
		id := template[k-1]
		var seqs []Sequence
		if k == 1 {
			seqs = r.rootSequences(id, extend)
		} else {
			seqs = extend(r.memo[memoKey(template[:k-1])], id)
		}
		r.memo[key] = seqs
		if k > 1 || !r.model.Metatype(id).IsClassifier() {
			if _, ok := r.dict[id]; !ok {
				r.dict[id] = []Sequence{}
			}
			r.dict.Add(id, seqs...)
		}
	}
}

// rootSequences returns the starting sequences of a template. Classifier
// roots start from their own instances; other roots are extended from the
// instances of their owner, or from a context instance when the owner has
// none.
func (r *run) rootSequences(id string, extend extender) []Sequence {
	if r.model.Metatype(id).IsClassifier() {
		return append([]Sequence(nil), r.dict[id]...)
	}
	return extend(r.ownerSequences(id), id)
}

func (r *run) ownerSequences(id string) []Sequence {
	owner, ok := r.model.Owner(id)
	if !ok {
		owner = ""
	}
	if seqs, ok := r.dict[owner]; ok && len(seqs) > 0 && owner != "" {
		return seqs
	}
	ctx, ok := r.contexts[owner]
	if !ok {
		e := model.NewElement("", "Namespace", map[string]any{"declaredName": "Root"})
		if owner != "" {
			e = r.element(owner)
		}
		inst := r.nextInstance(e)
		ctx = &inst
		r.contexts[owner] = ctx
		if owner != "" {
			r.dict.Add(owner, Sequence{ctx})
		}
	}
	return []Sequence{{ctx}}
}

// extendFeature draws a multiplicity in [lower, upper] per parent sequence
// and appends that many items: fresh value holders for value-like
// features, otherwise instances sampled from the type's pool.
func (r *run) extendFeature(parents []Sequence, id string) []Sequence {
	lower, upper := r.resolver.Range(id)
	pool, valued := r.pool(id)
	var out []Sequence
	for _, parent := range parents {
		n := lower
		if upper > lower {
			n += r.rand.Intn(upper - lower + 1)
		}
		for range n {
			var item Item
			if valued {
				item = r.newValueHolder(id)
			} else {
				item = r.sample(id, pool)
			}
			out = append(out, parent.Extend(item))
		}
	}
	return out
}

// extendExpression appends one live expression node or value holder per
// parent sequence.
func (r *run) extendExpression(parents []Sequence, id string) []Sequence {
	mt := r.model.Metatype(id)
	out := make([]Sequence, 0, len(parents))
	for _, parent := range parents {
		var item Item
		if mt.IsExpression() || mt.IsLiteral() {
			item = r.newExpressionNode(id)
		} else {
			item = r.newValueHolder(id)
		}
		out = append(out, parent.Extend(item))
	}
	return out
}

// pool returns the instances of the single type of feature id. valued is
// true when the feature holds values instead of occurrences.
func (r *run) pool(id string) (pool []*Instance, valued bool) {
	if r.model.Metatype(id).IsAttributeLike() {
		return nil, true
	}
	types := r.typesOf(id)
	if len(types) != 1 {
		return nil, true
	}
	typ := types[0]
	mt := r.model.Metatype(typ)
	if !mt.IsClassifier() || mt.IsDataClassifier() {
		return nil, true
	}
	for _, seq := range r.dict[typ] {
		if last := seq.Last(); last != nil {
			pool = append(pool, last.Base())
		}
	}
	return pool, false
}

// sample draws an instance for feature id that no sibling sequence has
// used yet. After SampleRetries failed draws the last candidate is
// accepted. An empty pool yields a fresh instance of the feature's type.
func (r *run) sample(id string, pool []*Instance) Item {
	used, ok := r.used[id]
	if !ok {
		used = map[*Instance]bool{}
		r.used[id] = used
	}
	if len(pool) == 0 {
		typ := id
		if types := r.typesOf(id); len(types) == 1 {
			typ = types[0]
		}
		slog.Debug("empty instance pool, creating instance", "feature", id, "type", typ)
		inst := r.newInstance(typ)
		used[inst] = true
		return inst
	}

	var pick *Instance
	for range r.cfg.SampleRetries {
		pick = pool[r.rand.Intn(len(pool))]
		if !used[pick] {
			used[pick] = true
			return pick
		}
	}
	if !r.exhausted[id] {
		r.exhausted[id] = true
		r.diag.Warn(errors.KindConvergenceWarning, id,
			"no unused instance after %d draws, accepting repeat %s", r.cfg.SampleRetries, pick)
	}
	return pick
}
