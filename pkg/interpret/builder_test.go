package interpret

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/lpg"
	"github.com/duynguyendang/mbe/pkg/model"
	"github.com/duynguyendang/mbe/pkg/model/modeltest"
	"github.com/duynguyendang/mbe/pkg/multiplicity"
)

type fixture struct {
	resolver *multiplicity.Resolver
	builder  *Builder
}

func newFixture(t *testing.T, m model.Store, rng Rand) fixture {
	t.Helper()
	graphs, err := lpg.NewStore(m, lpg.DefaultConfig())
	require.NoError(t, err)
	resolver, err := multiplicity.NewResolver(graphs, multiplicity.DefaultConfig())
	require.NoError(t, err)
	b, err := NewBuilder(graphs, resolver, rng, DefaultConfig())
	require.NoError(t, err)
	return fixture{resolver: resolver, builder: b}
}

func interpret(t *testing.T, m model.Store, seed int64) *Result {
	t.Helper()
	res, err := newFixture(t, m, NewRand(seed)).builder.Interpret(nil)
	require.NoError(t, err)
	return res
}

func units(res *Result, kind errors.Kind) []string {
	var out []string
	for _, d := range res.Diagnostics {
		if d.Kind == kind {
			out = append(out, d.Unit)
		}
	}
	return out
}

// constRand always draws zero.
type constRand struct{}

func (constRand) Intn(int) int { return 0 }

func TestInterpret_ScenarioA(t *testing.T) {
	for seed := int64(1); seed <= 10; seed++ {
		res := interpret(t, modeltest.Tanks().Memory(), seed)

		tanks := res.Instances["Tank"]
		assert.GreaterOrEqual(t, len(tanks), 1)
		assert.LessOrEqual(t, len(tanks), 3)

		seqs := res.Instances["tanks"]
		require.GreaterOrEqual(t, len(seqs), 1)
		require.LessOrEqual(t, len(seqs), 3)
		for _, s := range seqs {
			require.Len(t, s, 2)
			assert.Equal(t, "P#1", s[0].String())
			assert.Equal(t, "Tank", s[1].Base().ElementID())
		}
	}
}

func TestInterpret_ScenarioD_PartitionExactness(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		res := interpret(t, modeltest.Engines().Memory(), seed)

		liquid := len(res.Instances["LiquidEngine"])
		solid := len(res.Instances["SolidEngine"])
		assert.Equal(t, 10, liquid+solid)
		assert.Len(t, res.Instances["Engine"], 10, "abstract type covers its specializations")

		require.Len(t, res.Partitions, 1)
		p := res.Partitions[0]
		assert.Equal(t, 10, p.Total)
		assert.Equal(t, 10, p.Shares["LiquidEngine"]+p.Shares["SolidEngine"])
	}
}

func TestInterpret_AbstractTypeGetsNoDirectInstances(t *testing.T) {
	res := interpret(t, modeltest.Engines().Memory(), 7)
	for _, s := range res.Instances["Engine"] {
		assert.NotEqual(t, "Engine", s.Last().Base().ElementID())
	}
}

func TestInterpret_MultiplicityContainment(t *testing.T) {
	m := modeltest.New().
		Package("P").
		Definition("P", "Rocket", "PartDefinition", false).
		Definition("P", "Stage", "PartDefinition", false).
		Definition("P", "Engine", "PartDefinition", false).
		Usage("Rocket", "stages", "PartUsage", "Stage", 1, 2).
		Usage("Stage", "engines", "PartUsage", "Engine", 1, 3).
		Usage("P", "rocket", "PartUsage", "Rocket", 1, 1).
		Memory()

	for seed := int64(1); seed <= 20; seed++ {
		f := newFixture(t, m, NewRand(seed))
		res, err := f.builder.Interpret(nil)
		require.NoError(t, err)

		for _, feature := range []string{"rocket", "stages", "engines"} {
			lower, err := f.resolver.Rollup(feature, model.Lower)
			require.NoError(t, err)
			upper, err := f.resolver.Rollup(feature, model.Upper)
			require.NoError(t, err)

			n := len(res.Instances[feature])
			assert.GreaterOrEqual(t, n, lower, feature)
			assert.LessOrEqual(t, n, upper, feature)
		}
	}
}

func TestInterpret_NestedSequences(t *testing.T) {
	res := interpret(t, modeltest.Rocket().Memory(), 3)

	engines := res.Instances["engines"]
	require.Len(t, engines, 6)
	for _, s := range engines {
		require.Len(t, s, 4)
		assert.Equal(t, "Rocket", s[1].Base().ElementID())
		assert.Equal(t, "Stage", s[2].Base().ElementID())
		assert.Equal(t, "Engine", s[3].Base().ElementID())
	}
	assert.Len(t, res.Instances["Engine"], 6)
}

func TestInterpret_DistinctPrefixesAccumulate(t *testing.T) {
	m := modeltest.Rocket().
		Usage("Rocket", "boosters", "PartUsage", "Stage", 1, 1).
		Memory()
	res := interpret(t, m, 5)

	assert.Len(t, res.Instances["engines"], 2*3+1*3)
	assert.Len(t, res.Instances["boosters"], 1)
}

func TestInterpret_Reproducible(t *testing.T) {
	render := func(res *Result) map[string][]string {
		out := map[string][]string{}
		for _, k := range res.Instances.Keys() {
			for _, s := range res.Instances[k] {
				out[k] = append(out[k], s.String())
			}
		}
		return out
	}
	a := interpret(t, modeltest.Engines().Memory(), 42)
	b := interpret(t, modeltest.Engines().Memory(), 42)
	assert.Equal(t, render(a), render(b))
}

func TestInterpret_NameHints(t *testing.T) {
	f := newFixture(t, modeltest.Tanks().Memory(), NewRand(1))
	res, err := f.builder.Interpret(map[string]string{"Tank": "T"})
	require.NoError(t, err)
	assert.Equal(t, "T#1", res.Instances["Tank"][0][0].String())
}

func TestInterpret_StructuralViolations(t *testing.T) {
	tests := []struct {
		name  string
		model *modeltest.Builder
		unit  string
	}{
		{
			"multi-typed feature",
			modeltest.Tanks().Definition("P", "Valve", "PartDefinition", false).Rel("FeatureTyping", "tanks", "Valve"),
			"tanks",
		},
		{
			"untyped part",
			modeltest.Tanks().Usage("P", "loose", "PartUsage", "", 1, 1),
			"loose",
		},
		{
			"abstract type without concrete specialization",
			modeltest.Tanks().Definition("P", "Thing", "PartDefinition", true).Usage("P", "things", "PartUsage", "Thing", 1, 1),
			"things",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newFixture(t, tt.model.Memory(), NewRand(1)).builder.Interpret(nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrStructuralViolation)
			require.NotNil(t, res, "partial result is still returned")

			var units []string
			for _, d := range res.Diagnostics {
				if d.Fatal {
					units = append(units, d.Unit)
				}
			}
			assert.Equal(t, []string{tt.unit}, units)
			assert.NotEmpty(t, res.Instances["Tank"])
		})
	}
}

func TestInterpret_UntypedValueFeaturesAllowed(t *testing.T) {
	res := interpret(t, modeltest.Sum().Memory(), 1)
	assert.Len(t, res.Instances["total"], 1)
}

func TestInterpret_GeneralizationCycleWarns(t *testing.T) {
	m := modeltest.New().
		Package("P").
		Definition("P", "A", "PartDefinition", false).
		Definition("P", "B", "PartDefinition", false).
		Specializes("A", "B").
		Specializes("B", "A").
		Memory()

	res, err := newFixture(t, m, NewRand(1)).builder.Interpret(nil)
	require.NoError(t, err)

	assert.False(t, res.Phases[1].Converged)
	assert.Contains(t, units(res, errors.KindConvergenceWarning), "generalization")
	assert.Len(t, res.Instances["A"], 1)
	assert.Len(t, res.Instances["B"], 1)
}

func TestInterpret_GeneralizationLeafDefaultsEmpty(t *testing.T) {
	m := modeltest.New().
		Package("P").
		Definition("P", "Vehicle", "PartDefinition", false).
		Definition("P", "Car", "PartDefinition", false).
		Specializes("Car", "Vehicle").
		Memory()
	res := interpret(t, m, 1)

	assert.True(t, res.Phases[1].Converged)
	assert.Empty(t, res.Instances["Car"])
	assert.Empty(t, res.Instances["Vehicle"])
}

func TestInterpret_SamplingRetriesExhausted(t *testing.T) {
	res, err := newFixture(t, modeltest.Rocket().Memory(), constRand{}).builder.Interpret(nil)
	require.NoError(t, err)

	assert.False(t, res.Phases[2].Converged)
	assert.Contains(t, units(res, errors.KindConvergenceWarning), "stages")
	assert.Len(t, res.Instances["stages"], 2, "draw proceeds with the repeated instance")
}

func TestInterpret_ExpressionSequences(t *testing.T) {
	res := interpret(t, modeltest.Impulse().Memory(), 1)

	lits := res.Instances["isp.value"]
	require.Len(t, lits, 2)
	for _, s := range lits {
		require.Len(t, s, 4)
		node, ok := s.Last().(*LiveExpressionNode)
		require.True(t, ok)
		assert.Equal(t, "170", node.Label)
		_, ok = s[2].(*ValueHolder)
		assert.True(t, ok)
		assert.Equal(t, "Specific Impulse", s[2].Base().Element.Name())
	}
	assert.Len(t, res.Instances["isp"], 2)
	assert.True(t, res.Phases[3].Converged)
}

func TestInterpret_OperatorSequences(t *testing.T) {
	res := interpret(t, modeltest.Sum().Memory(), 1)

	require.Len(t, res.Instances["plus"], 1)
	assert.Len(t, res.Instances["plus"][0], 3)
	require.Len(t, res.Instances["ref.a"], 1)
	assert.Len(t, res.Instances["ref.a"][0], 5)
	require.Len(t, res.Instances["plus.result"], 1)
	assert.True(t, res.Instances["plus"][0].HasPrefix(res.Instances["total"][0]))
}

func TestInterpret_ProjectionWarningsReported(t *testing.T) {
	custom, err := lpg.LoadCatalog([]byte(`projections:
  - name: Generalization
    edge_types: [Subclassification, BogusEdge]
  - name: Feature Typing
    edge_types: [FeatureTyping]
  - name: Banded
    edge_types: [FeatureTyping, FeatureMembership]
    reversed_edge_types: [FeatureTyping, FeatureMembership]
  - name: Part Featuring
    edge_types: [FeatureMembership, FeatureTyping]
  - name: Expression Featuring
    edge_types: [FeatureMembership, FeatureTyping]
  - name: Redefinition
    edge_types: [Redefinition]
`))
	require.NoError(t, err)
	graphs, err := lpg.NewStore(modeltest.Tanks().Memory(), lpg.DefaultConfig())
	require.NoError(t, err)
	graphs.WithCatalog(custom)
	resolver, err := multiplicity.NewResolver(graphs, multiplicity.DefaultConfig())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		b, err := NewBuilder(graphs, resolver, NewRand(1), DefaultConfig())
		require.NoError(t, err)
		res, err := b.Interpret(nil)
		require.NoError(t, err, "lookup misses never abort the run")
		assert.NotEmpty(t, res.Instances["tanks"])

		var bogus int
		for _, d := range res.Diagnostics {
			if d.Kind == errors.KindLookupMiss {
				assert.False(t, d.Fatal)
				if strings.Contains(d.Unit, "BogusEdge") {
					bogus++
				}
			}
		}
		assert.Equal(t, 1, bogus, "reported once per run, also from cached projections")
	}
}
