package lpg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/model"
	"github.com/duynguyendang/mbe/pkg/model/modeltest"
)

func newStore(t *testing.T, m model.Store) *Store {
	t.Helper()
	s, err := NewStore(m, DefaultConfig())
	require.NoError(t, err)
	return s
}

func TestGetProjection_Banded(t *testing.T) {
	s := newStore(t, modeltest.Rocket().Memory())
	g, err := s.GetProjection(ProjectionBanded)
	require.NoError(t, err)

	assert.True(t, g.HasEdge("stages", "Rocket", "FeatureMembership^-1"))
	assert.True(t, g.HasEdge("Stage", "stages", "FeatureTyping^-1"))
	assert.True(t, g.HasEdge("engines", "Stage", "FeatureMembership^-1"))
	assert.True(t, g.HasEdge("Rocket", "rocket", "FeatureTyping^-1"))
	assert.False(t, g.HasEdge("P", "rocket", ""), "package ownership is not banded")
}

func TestGetProjection_ExpressionInferred(t *testing.T) {
	s := newStore(t, modeltest.Sum().Memory())
	g, err := s.GetProjection(ProjectionExpressionInferred)
	require.NoError(t, err)

	assert.True(t, g.HasEdge("a.value", "a", "FeatureValue^-1"))
	assert.True(t, g.HasEdge("a", "ref.a", ImpliedReferentFeed))
	assert.True(t, g.HasEdge("ref.a", "plus.p1", "FeatureValue^-1"))
	assert.True(t, g.HasEdge("plus.p1", "plus", "ParameterMembership^-1"))
	assert.True(t, g.HasEdge("plus", "plus.result", "ReturnParameterMembership"))
	assert.True(t, g.HasEdge("plus.result", "total", ImpliedResultFeed))
	assert.False(t, g.HasEdge("Calc", "a", ""))
}

func TestGetProjection_PartFeaturingExcludesExpressions(t *testing.T) {
	s := newStore(t, modeltest.Sum().Memory())
	g, err := s.GetProjection(ProjectionPartFeaturing)
	require.NoError(t, err)

	_, ok := g.NodeByID("plus")
	assert.False(t, ok)
	_, ok = g.NodeByID("a.value")
	assert.False(t, ok)
	assert.True(t, g.HasEdge("Calc", "total", "FeatureMembership"))
}

func TestGetProjection_UnknownName(t *testing.T) {
	s := newStore(t, modeltest.Tanks().Memory())
	_, err := s.GetProjection("Bandd")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.True(t, strings.Contains(err.Error(), "available: Banded,"), err.Error())
}

func TestGetProjection_ReferentiallyTransparent(t *testing.T) {
	s := newStore(t, modeltest.Rocket().Memory())
	first, err := s.GetProjection(ProjectionPartFeaturing)
	require.NoError(t, err)
	second, err := s.GetProjection(ProjectionPartFeaturing)
	require.NoError(t, err)

	assert.Same(t, first, second)

	fresh := Adapt(s.Base(), mustRecipe(t, s, ProjectionPartFeaturing).Params, s.Model())
	assert.Equal(t, first.NodeIDs(), fresh.NodeIDs())
	assert.Equal(t, first.EdgeTriples(), fresh.EdgeTriples())
}

func mustRecipe(t *testing.T, s *Store, name string) Recipe {
	t.Helper()
	r, err := s.Catalog().Get(name)
	require.NoError(t, err)
	return r
}

func TestStore_AttachInvalidatesCache(t *testing.T) {
	mem := modeltest.Tanks().Memory()
	s := newStore(t, mem)
	s.Attach(mem)

	before, err := s.GetProjection(ProjectionFeatureTyping)
	require.NoError(t, err)
	v := s.Version()

	mem.Put(model.NewElement("Valve", "PartDefinition", nil))

	assert.Equal(t, v+1, s.Version())
	after, err := s.GetProjection(ProjectionFeatureTyping)
	require.NoError(t, err)
	assert.NotSame(t, before, after)
	_, ok := after.NodeByID("Valve")
	assert.True(t, ok)
}

func TestAdapt_PackageScope(t *testing.T) {
	m := modeltest.New().
		Package("P1").
		Package("P2").
		Definition("P1", "A", "PartDefinition", false).
		Definition("P2", "B", "PartDefinition", false).
		Memory()
	s := newStore(t, m)

	g := s.Adapt(Params{IncludedPackages: []string{"P1"}})
	assert.Equal(t, []string{"A", "P1"}, g.NodeIDs())

	byName, err := s.GetProjection(ProjectionPackageContainment, "P2")
	require.NoError(t, err)
	assert.Equal(t, []string{"P2 -OwningMembership-> B"}, byName.EdgeTriples())
}

func TestAdapt_UnknownTypeIsWarning(t *testing.T) {
	mem := modeltest.Tanks().Memory()

	g := Adapt(Build(mem.Elements()), Params{ExcludedNodeTypes: []string{"Bogus", "PortUsage"}}, mem)

	assert.Equal(t, 3, g.NodeCount())
	items := g.Diagnostics()
	require.Len(t, items, 1)
	assert.Equal(t, errors.KindLookupMiss, items[0].Kind)
	assert.Equal(t, "Bogus,PortUsage", items[0].Unit)
	assert.False(t, items[0].Fatal)
}

func TestAdapt_AbsentTypesWarn(t *testing.T) {
	mem := modeltest.New().Package("P").Memory()

	g := Adapt(Build(mem.Elements()), Params{
		ExcludedNodeTypes: []string{"PartDefinition", "Package"},
		EdgeTypes:         []string{"FeatureTyping", ImpliedReferentFeed},
	}, mem)

	units := map[string]bool{}
	for _, d := range g.Diagnostics() {
		assert.Equal(t, errors.KindLookupMiss, d.Kind)
		units[d.Unit] = true
	}
	assert.Equal(t, map[string]bool{"PartDefinition": true, "FeatureTyping": true}, units)
}

func TestStore_CachedProjectionKeepsWarnings(t *testing.T) {
	custom, err := LoadCatalog([]byte("projections:\n  - name: Odd\n    edge_types: [FeatureTyping, BogusEdge]\n"))
	require.NoError(t, err)
	s := newStore(t, modeltest.Tanks().Memory()).WithCatalog(custom)

	for i := 0; i < 2; i++ {
		g, err := s.GetProjection("Odd")
		require.NoError(t, err)
		require.Len(t, g.Diagnostics(), 1)
		assert.Equal(t, "BogusEdge", g.Diagnostics()[0].Unit)
	}
}

func TestParams_KeyIsOrderInsensitive(t *testing.T) {
	a := Params{ExcludedEdgeTypes: []string{"B", "A", "A"}}
	b := Params{ExcludedEdgeTypes: []string{"A", "B"}}
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), Params{ReversedEdgeTypes: []string{"A", "B"}}.Key())
}

func TestCatalog(t *testing.T) {
	c := DefaultCatalog()
	assert.Len(t, c.Names(), 8)
	assert.Equal(t, "Feature Typing", c.Suggest("feature typing")[0])

	_, err := LoadCatalog([]byte("projections:\n  - name: A\n  - name: A\n"))
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	custom, err := LoadCatalog([]byte("projections:\n  - name: Typing only\n    edge_types: [FeatureTyping]\n"))
	require.NoError(t, err)
	s := newStore(t, modeltest.Tanks().Memory()).WithCatalog(custom)
	g, err := s.GetProjection("Typing only")
	require.NoError(t, err)
	assert.Equal(t, []string{"tanks -FeatureTyping-> Tank"}, g.EdgeTriples())
}
