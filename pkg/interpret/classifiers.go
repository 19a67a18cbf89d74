package interpret

import (
	"fmt"

	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/model"
)

// phase1 materializes classifier instances from the rolled-up upper
// multiplicity of every singly typed feature. Abstract types are
// partitioned across their direct concrete specializations.
func (r *run) phase1() FixedPoint {
	fp := FixedPoint{Converged: true}
	for _, n := range r.base.Nodes() {
		if !n.Metatype.IsFeature() {
			continue
		}
		fp.Iterations++

		types := r.typesOf(n.ID)
		switch {
		case len(types) > 1:
			r.diag.Fail(errors.KindStructuralViolation, n.ID,
				fmt.Errorf("%w: feature %s has %d types", errors.ErrStructuralViolation, n.ID, len(types)))
			continue
		case len(types) == 0:
			if !r.untypedAllowed(n.ID) {
				r.diag.Fail(errors.KindStructuralViolation, n.ID,
					fmt.Errorf("%w: feature %s is untyped", errors.ErrStructuralViolation, n.ID))
			}
			continue
		}

		typ := types[0]
		if !r.model.Metatype(typ).IsClassifier() {
			continue
		}
		quantity, err := r.resolver.Rollup(n.ID, model.Upper)
		if err != nil {
			r.diag.Fail(errors.KindLookupMiss, n.ID, err)
			continue
		}

		if !r.model.IsAbstract(typ) {
			r.materialize(typ, quantity)
			continue
		}
		shares, order, err := r.partition(typ, quantity)
		if err != nil {
			r.diag.Fail(errors.KindStructuralViolation, n.ID, err)
			continue
		}
		r.partitions = append(r.partitions, Partition{Feature: n.ID, Type: typ, Total: quantity, Shares: shares, Order: order})
		for _, s := range order {
			r.materialize(s, shares[s])
		}
	}
	return fp
}

// untypedAllowed reports whether a feature may lack a type: value-like
// features, expression parameters and redefining features.
func (r *run) untypedAllowed(id string) bool {
	mt := r.model.Metatype(id)
	if mt.IsAttributeLike() || mt.IsLiteral() {
		return true
	}
	if owner, ok := r.model.Owner(id); ok {
		if r.model.Metatype(owner).IsExpression() {
			return true
		}
	}
	if i, ok := r.base.Lookup(id); ok {
		for _, e := range r.base.OutEdges(i) {
			if e.Metatype == model.Redefinition {
				return true
			}
		}
	}
	return false
}

// partition splits quantity across the direct concrete specializations of
// an abstract type. Each share is drawn from [0, remaining]; the last one
// absorbs the remainder.
func (r *run) partition(typ string, quantity int) (map[string]int, []string, error) {
	var concrete []string
	if t, ok := r.gen.Lookup(typ); ok {
		for _, s := range r.gen.Predecessors(t) {
			id := r.gen.ID(s)
			if r.model.Metatype(id).IsClassifier() && !r.model.IsAbstract(id) {
				concrete = append(concrete, id)
			}
		}
	}
	if len(concrete) == 0 {
		return nil, nil, fmt.Errorf("%w: abstract type %s has no concrete specialization", errors.ErrStructuralViolation, typ)
	}

	shares := make(map[string]int, len(concrete))
	remaining := quantity
	for i, s := range concrete {
		share := remaining
		if i < len(concrete)-1 {
			share = r.rand.Intn(remaining + 1)
		}
		shares[s] = share
		remaining -= share
	}
	return shares, concrete, nil
}

// materialize appends quantity singleton sequences of fresh instances of
// typ. A zero quantity still creates the entry.
func (r *run) materialize(typ string, quantity int) {
	if _, ok := r.dict[typ]; !ok {
		r.dict[typ] = []Sequence{}
	}
	for range quantity {
		r.dict.Add(typ, Sequence{r.newInstance(typ)})
	}
}

// phase2 propagates instance sets from specializations to generalizations
// until every classifier of the generalization graph is covered or the
// budget runs out. Entries present before the phase are never modified.
func (r *run) phase2() FixedPoint {
	var pending []int
	for _, n := range r.gen.Nodes() {
		if !n.Metatype.IsClassifier() {
			continue
		}
		if r.gen.InDegree(n.Index)+r.gen.OutDegree(n.Index) == 0 {
			continue
		}
		if _, fixed := r.dict[n.ID]; !fixed {
			pending = append(pending, n.Index)
		}
	}

	fp := FixedPoint{}
	for fp.Iterations < r.cfg.FixedPointBudget && len(pending) > 0 {
		fp.Iterations++
		var next []int
		for _, c := range pending {
			specs := r.gen.Predecessors(c)
			if !r.covered(specs) {
				next = append(next, c)
				continue
			}
			r.dict[r.gen.ID(c)] = r.concat(specs)
		}
		if len(next) == len(pending) {
			pending = next
			break
		}
		pending = next
	}
	fp.Converged = len(pending) == 0
	if !fp.Converged {
		ids := make([]string, len(pending))
		for i, c := range pending {
			ids[i] = r.gen.ID(c)
		}
		r.diag.Warn(errors.KindConvergenceWarning, "generalization",
			"%d classifiers left uncovered after %d iterations: %v", len(ids), fp.Iterations, ids)
	}

	for _, n := range r.base.Nodes() {
		if !n.Metatype.IsClassifier() || r.model.IsAbstract(n.ID) {
			continue
		}
		if _, ok := r.dict[n.ID]; !ok {
			r.dict.Add(n.ID, Sequence{r.newInstance(n.ID)})
		}
	}
	return fp
}

func (r *run) covered(specs []int) bool {
	for _, s := range specs {
		if _, ok := r.dict[r.gen.ID(s)]; !ok {
			return false
		}
	}
	return true
}

// concat joins the instance sets of specs, dropping repeated instances.
func (r *run) concat(specs []int) []Sequence {
	seen := map[*Instance]bool{}
	out := []Sequence{}
	for _, s := range specs {
		for _, seq := range r.dict[r.gen.ID(s)] {
			last := seq.Last()
			if last == nil || seen[last.Base()] {
				continue
			}
			seen[last.Base()] = true
			out = append(out, seq)
		}
	}
	return out
}
