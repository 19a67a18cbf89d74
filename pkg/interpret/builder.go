// Package interpret generates an M0 instance population for a model: one
// set of sequences per classifier, feature and expression node.
package interpret

import (
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/lpg"
	"github.com/duynguyendang/mbe/pkg/model"
	"github.com/duynguyendang/mbe/pkg/multiplicity"
)

// Rand is the random source used for every draw.
type Rand interface {
	Intn(n int) int
}

// NewRand returns a seeded source. A zero seed uses the current time.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// Config holds PopulationBuilder settings.
type Config struct {
	// SampleRetries bounds the attempts to draw an instance not yet used
	// by the same feature.
	SampleRetries int

	// FixedPointBudget bounds the generalization rollup iterations.
	FixedPointBudget int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{SampleRetries: 100, FixedPointBudget: 100}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.SampleRetries <= 0 {
		return fmt.Errorf("%w: SampleRetries must be positive, got %d", errors.ErrInvalidInput, c.SampleRetries)
	}
	if c.FixedPointBudget <= 0 {
		return fmt.Errorf("%w: FixedPointBudget must be positive, got %d", errors.ErrInvalidInput, c.FixedPointBudget)
	}
	return nil
}

// FixedPoint reports how a phase terminated.
type FixedPoint struct {
	Converged  bool `json:"converged"`
	Iterations int  `json:"iterations"`
}

// Phase is the outcome of one interpretation phase.
type Phase struct {
	Name string `json:"name"`
	FixedPoint
}

// Partition records how an abstract type's quantity was split.
type Partition struct {
	Feature string         `json:"feature"`
	Type    string         `json:"type"`
	Total   int            `json:"total"`
	Shares  map[string]int `json:"shares"`
	Order   []string       `json:"order"`
}

// Result is the output of one interpretation run. Instances is always
// populated, possibly partially; Diagnostics tells why.
type Result struct {
	Instances   InstanceDict        `json:"-"`
	Diagnostics []errors.Diagnostic `json:"diagnostics"`
	Phases      []Phase             `json:"phases"`
	Partitions  []Partition         `json:"partitions,omitempty"`
}

// Builder runs the four interpretation phases.
type Builder struct {
	graphs   *lpg.Store
	resolver *multiplicity.Resolver
	rand     Rand
	cfg      Config
}

// NewBuilder creates a builder. rng must not be shared with concurrent runs.
func NewBuilder(graphs *lpg.Store, resolver *multiplicity.Resolver, rng Rand, cfg Config) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: nil random source", errors.ErrInvalidInput)
	}
	return &Builder{graphs: graphs, resolver: resolver, rand: rng, cfg: cfg}, nil
}

// Interpret generates the population. nameHints overrides the display name
// used for instances of the given element ids. The returned error joins
// the fatal diagnostics; the Result is returned in every case.
func (b *Builder) Interpret(nameHints map[string]string) (*Result, error) {
	r, err := b.newRun(nameHints)
	if err != nil {
		return nil, err
	}

	phases := []struct {
		name string
		fn   func() FixedPoint
	}{
		{"classifier multiplicities", r.phase1},
		{"generalization rollup", r.phase2},
		{"feature sequences", r.phase3},
		{"expression sequences", r.phase4},
	}
	res := &Result{Instances: r.dict}
	for _, p := range phases {
		fp := p.fn()
		slog.Debug("interpretation phase done", "phase", p.name, "converged", fp.Converged, "iterations", fp.Iterations)
		res.Phases = append(res.Phases, Phase{Name: p.name, FixedPoint: fp})
	}
	for _, name := range r.resolver.Projections() {
		if _, err := r.projection(name); err != nil {
			r.diag.Fail(errors.KindLookupMiss, name, err)
		}
	}
	res.Diagnostics = r.diag.Items()
	res.Partitions = r.partitions

	slog.Info("interpretation finished", "keys", len(r.dict), "diagnostics", len(res.Diagnostics))
	return res, r.diag.Err()
}

// run is the state of a single Interpret call.
type run struct {
	*Builder
	model  model.Store
	base   *lpg.Graph
	typing *lpg.Graph
	gen    *lpg.Graph

	dict       InstanceDict
	diag       *errors.Diagnostics
	hints      map[string]string
	counters   map[string]int
	memo       map[string][]Sequence
	used       map[string]map[*Instance]bool
	contexts   map[string]*Instance
	partitions []Partition
	exhausted  map[string]bool
	adapted    map[string]bool
}

func (b *Builder) newRun(hints map[string]string) (*run, error) {
	r := &run{
		Builder:   b,
		model:     b.graphs.Model(),
		base:      b.graphs.Base(),
		dict:      InstanceDict{},
		diag:      &errors.Diagnostics{},
		hints:     hints,
		counters:  map[string]int{},
		memo:      map[string][]Sequence{},
		used:      map[string]map[*Instance]bool{},
		contexts:  map[string]*Instance{},
		exhausted: map[string]bool{},
		adapted:   map[string]bool{},
	}
	var err error
	if r.typing, err = r.projection(lpg.ProjectionFeatureTyping); err != nil {
		return nil, err
	}
	if r.gen, err = r.projection(lpg.ProjectionGeneralization); err != nil {
		return nil, err
	}
	return r, nil
}

// projection fetches a catalog projection and records its LookupMiss
// warnings the first time the run uses it.
func (r *run) projection(name string) (*lpg.Graph, error) {
	g, err := r.graphs.GetProjection(name)
	if err != nil {
		return nil, err
	}
	if !r.adapted[name] {
		r.adapted[name] = true
		r.diag.Append(g.Diagnostics()...)
	}
	return g, nil
}

func (r *run) element(id string) *model.Element {
	if e, ok := r.model.Element(id); ok {
		return e
	}
	return model.NewElement(id, "", nil)
}

func (r *run) nextInstance(e *model.Element) Instance {
	r.counters[e.ID]++
	name := e.ShortName()
	if h, ok := r.hints[e.ID]; ok && h != "" {
		name = h
	}
	idx := r.counters[e.ID]
	return Instance{Name: fmt.Sprintf("%s#%d", name, idx), Index: idx, Element: e}
}

func (r *run) newInstance(id string) *Instance {
	inst := r.nextInstance(r.element(id))
	return &inst
}

func (r *run) newValueHolder(id string) *ValueHolder {
	return &ValueHolder{Instance: r.nextInstance(r.element(id))}
}

func (r *run) newExpressionNode(id string) *LiveExpressionNode {
	e := r.element(id)
	return &LiveExpressionNode{
		ValueHolder: ValueHolder{Instance: r.nextInstance(e)},
		Label:       expressionLabel(e),
	}
}

func expressionLabel(e *model.Element) string {
	switch {
	case e.Metatype.IsLiteral():
		return FormatValue(e.Value())
	case e.Metatype == model.FeatureReferenceExpression:
		return "ref " + e.StringAttr("referent")
	}
	if op := e.StringAttr("operator"); op != "" {
		return op
	}
	return e.ShortName()
}

// typesOf returns the types of feature id.
func (r *run) typesOf(id string) []string {
	i, ok := r.typing.Lookup(id)
	if !ok {
		return nil
	}
	var out []string
	for _, t := range r.typing.Successors(i) {
		out = append(out, r.typing.ID(t))
	}
	return out
}

func memoKey(template []string) string {
	return strings.Join(template, "\x00")
}
