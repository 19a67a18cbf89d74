// Package multiplicity computes effective multiplicity bounds by composing
// declared bounds along the banded projection of a model graph.
package multiplicity

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/lpg"
	"github.com/duynguyendang/mbe/pkg/model"
)

// Config holds resolver settings.
type Config struct {
	// MaxMultiplicity substitutes for unbounded upper bounds and caps every
	// per-node bound and path product.
	MaxMultiplicity int

	// Bias is added once for every root reached by a summed rollup.
	Bias int
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig() Config {
	return Config{MaxMultiplicity: 100}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxMultiplicity <= 0 {
		return fmt.Errorf("%w: MaxMultiplicity must be positive, got %d", errors.ErrInvalidInput, c.MaxMultiplicity)
	}
	if c.Bias < 0 {
		return fmt.Errorf("%w: Bias must be non-negative, got %d", errors.ErrInvalidInput, c.Bias)
	}
	return nil
}

type memoKey struct {
	id    string
	bound model.Bound
	typ   bool
}

// Resolver answers rollup queries against a graph store. Results are
// memoized per graph version.
type Resolver struct {
	graphs *lpg.Store
	cfg    Config

	mu      sync.Mutex
	version uint64
	memo    map[memoKey]int
}

// NewResolver creates a resolver over graphs.
func NewResolver(graphs *lpg.Store, cfg Config) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Resolver{graphs: graphs, cfg: cfg, memo: make(map[memoKey]int)}, nil
}

// Config returns the resolver configuration.
func (r *Resolver) Config() Config {
	return r.cfg
}

// Declared returns the declared bound of id with Unbounded and oversized
// values replaced by the configured maximum.
func (r *Resolver) Declared(id string, b model.Bound) int {
	v := r.graphs.Model().MultiplicityBound(id, b)
	if v == model.Unbounded || v > r.cfg.MaxMultiplicity {
		return r.cfg.MaxMultiplicity
	}
	return v
}

// Range returns the capped declared lower and upper bounds of id.
func (r *Resolver) Range(id string) (lower, upper int) {
	lower, upper = r.Declared(id, model.Lower), r.Declared(id, model.Upper)
	if lower > upper {
		lower = upper
	}
	return lower, upper
}

func (r *Resolver) cached(k memoKey, compute func() (int, error)) (int, error) {
	v := r.graphs.Version()
	r.mu.Lock()
	if r.version != v {
		r.version = v
		r.memo = make(map[memoKey]int)
	}
	if n, ok := r.memo[k]; ok {
		r.mu.Unlock()
		return n, nil
	}
	r.mu.Unlock()

	n, err := compute()
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	if r.version == v {
		r.memo[k] = n
	}
	r.mu.Unlock()
	return n, nil
}

// Projections names the catalog projections rollups are computed over.
func (r *Resolver) Projections() []string {
	return []string{lpg.ProjectionBanded, lpg.ProjectionFeatureTyping, lpg.ProjectionRedefinition}
}

// Rollup returns the effective bound of a feature or type: the sum over all
// simple paths in the banded projection from id to a root (a node without
// outgoing edges) of the product of the per-node bounds on the path, plus
// the configured bias for every distinct root reached. Classifiers contribute 1 to a product. When no such
// path exists the declared bound is returned.
func (r *Resolver) Rollup(id string, b model.Bound) (int, error) {
	return r.cached(memoKey{id: id, bound: b}, func() (int, error) {
		return r.rollup(id, b)
	})
}

func (r *Resolver) rollup(id string, b model.Bound) (int, error) {
	banded, err := r.graphs.GetProjection(lpg.ProjectionBanded)
	if err != nil {
		return 0, err
	}
	src, ok := banded.Lookup(id)
	if !ok {
		return r.Declared(id, b), nil
	}
	roots := make(map[int]bool)
	for _, leaf := range banded.Leaves() {
		if leaf != src {
			roots[leaf] = true
		}
	}
	paths := banded.AllSimplePaths(src, roots)
	if len(paths) == 0 {
		return r.Declared(id, b), nil
	}

	limit := satMul(r.cfg.MaxMultiplicity, len(paths), math.MaxInt)
	total := 0
	reached := make(map[int]bool)
	for _, path := range paths {
		reached[path[len(path)-1]] = true
		product := 1
		for _, n := range path {
			product = satMul(product, r.step(banded.Node(n), b), r.cfg.MaxMultiplicity)
		}
		total = satAdd(total, product, limit)
	}
	total = satAdd(total, satMul(r.cfg.Bias, len(reached), math.MaxInt), math.MaxInt)

	slog.Debug("rolled up multiplicity", "id", id, "bound", b, "paths", len(paths), "roots", len(reached), "value", total)
	return total, nil
}

func (r *Resolver) step(n *lpg.Node, b model.Bound) int {
	if n.Metatype.IsFeature() {
		return r.Declared(n.ID, b)
	}
	return 1
}

// RollupForType sums Rollup over every feature typed by typeID, directly or
// through the redefinition cluster of such a feature.
func (r *Resolver) RollupForType(typeID string, b model.Bound) (int, error) {
	return r.cached(memoKey{id: typeID, bound: b, typ: true}, func() (int, error) {
		features, err := r.TypedFeatures(typeID)
		if err != nil {
			return 0, err
		}
		total := 0
		for _, f := range features {
			n, err := r.Rollup(f, b)
			if err != nil {
				return 0, err
			}
			total = satAdd(total, n, math.MaxInt)
		}
		return total, nil
	})
}

// TypedFeatures returns the features typed by typeID together with the
// members of their redefinition clusters, in graph order.
func (r *Resolver) TypedFeatures(typeID string) ([]string, error) {
	typing, err := r.graphs.GetProjection(lpg.ProjectionFeatureTyping)
	if err != nil {
		return nil, err
	}
	redef, err := r.graphs.GetProjection(lpg.ProjectionRedefinition)
	if err != nil {
		return nil, err
	}
	t, ok := typing.Lookup(typeID)
	if !ok {
		return nil, nil
	}

	seen := map[string]bool{}
	var out []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, f := range typing.Predecessors(t) {
		fid := typing.ID(f)
		add(fid)
		if start, ok := redef.Lookup(fid); ok {
			members, _ := redef.BFS(start, -1, false)
			for _, m := range members {
				add(redef.ID(m))
			}
		}
	}
	return out, nil
}

func satMul(a, b, limit int) int {
	if a == 0 || b == 0 {
		return 0
	}
	if a > limit/b {
		return limit
	}
	return min(a*b, limit)
}

func satAdd(a, b, limit int) int {
	if a > limit-b {
		return limit
	}
	return a + b
}
