package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynguyendang/mbe/pkg/datalog"
	"github.com/duynguyendang/mbe/pkg/interpret"
	"github.com/duynguyendang/mbe/pkg/lpg"
	"github.com/duynguyendang/mbe/pkg/model/modeltest"
	"github.com/duynguyendang/mbe/pkg/multiplicity"
)

func findNode(g *D3Graph, id string) (D3Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return D3Node{}, false
}

func TestFromGraph(t *testing.T) {
	m := modeltest.Rocket().Memory()
	store, err := lpg.NewStore(m, lpg.DefaultConfig())
	require.NoError(t, err)
	g, err := store.GetProjection(lpg.ProjectionPartFeaturing)
	require.NoError(t, err)

	out := NewD3Transformer(m).FromGraph(g)
	assert.Len(t, out.Nodes, g.NodeCount())
	assert.Len(t, out.Links, g.EdgeCount())

	stages, ok := findNode(out, "stages")
	require.True(t, ok)
	assert.Equal(t, "PartUsage", stages.Kind)
	assert.Equal(t, "Rocket", stages.ParentID)
	assert.Equal(t, "P", stages.Group)
	assert.Equal(t, "[2]", stages.Metadata["multiplicity"])

	rocket, ok := findNode(out, "Rocket")
	require.True(t, ok)
	require.NotNil(t, rocket.Abstract)
	assert.False(t, *rocket.Abstract)

	assert.Contains(t, out.Links, D3Link{
		Source: "stages", Target: "Stage", Relation: "FeatureTyping", Weight: 1, Type: "declared", Provenance: linkID(g, "stages", "Stage"),
	})
}

func linkID(g *lpg.Graph, src, tgt string) string {
	for _, e := range g.Edges() {
		if g.ID(e.Source) == src && g.ID(e.Target) == tgt {
			return e.ID
		}
	}
	return ""
}

func TestFromGraph_IgnoredRelations(t *testing.T) {
	m := modeltest.Rocket().Memory()
	store, err := lpg.NewStore(m, lpg.DefaultConfig())
	require.NoError(t, err)
	g, err := store.GetProjection(lpg.ProjectionPartFeaturing)
	require.NoError(t, err)

	tr := NewD3Transformer(nil)
	tr.IgnoredRelations["FeatureTyping"] = true
	out := tr.FromGraph(g)
	for _, l := range out.Links {
		assert.NotEqual(t, "FeatureTyping", l.Relation)
	}
	n, ok := findNode(out, "stages")
	require.True(t, ok)
	assert.Empty(t, n.ParentID, "no model means no enrichment")
}

func TestTransform(t *testing.T) {
	m := modeltest.Rocket().Memory()
	store, err := lpg.NewStore(m, lpg.DefaultConfig())
	require.NoError(t, err)
	g, err := store.GetProjection(lpg.ProjectionPartFeaturing)
	require.NoError(t, err)

	query := `edge(F, "FeatureTyping", T)`
	res, err := datalog.Query(g, query, 0)
	require.NoError(t, err)

	out, err := NewD3Transformer(m).Transform(query, res)
	require.NoError(t, err)
	assert.Len(t, out.Links, 3)
	assert.Len(t, out.Nodes, 6)
	for _, l := range out.Links {
		assert.Equal(t, "FeatureTyping", l.Relation)
	}

	_, err = NewD3Transformer(m).Transform(`node(A, T)`, &datalog.Result{Vars: []string{"A", "T"}, Rows: [][]string{{"x", "y"}}})
	assert.Error(t, err)

	empty, err := NewD3Transformer(m).Transform(query, &datalog.Result{})
	require.NoError(t, err)
	assert.Empty(t, empty.Nodes)
}

func TestFromPopulation(t *testing.T) {
	m := modeltest.Rocket().Memory()
	store, err := lpg.NewStore(m, lpg.DefaultConfig())
	require.NoError(t, err)
	resolver, err := multiplicity.NewResolver(store, multiplicity.DefaultConfig())
	require.NoError(t, err)
	b, err := interpret.NewBuilder(store, resolver, interpret.NewRand(1), interpret.DefaultConfig())
	require.NoError(t, err)
	res, err := b.Interpret(nil)
	require.NoError(t, err)

	out := NewD3Transformer(m).FromPopulation(res.Instances)
	require.NotEmpty(t, out.Nodes)

	ids := map[string]bool{}
	for _, n := range out.Nodes {
		assert.False(t, ids[n.ID], "duplicate node %s", n.ID)
		ids[n.ID] = true
	}
	for _, l := range out.Links {
		assert.True(t, ids[l.Source], l.Source)
		assert.True(t, ids[l.Target], l.Target)
	}

	nodes := map[string]D3Node{}
	for _, n := range out.Nodes {
		nodes[n.ID] = n
	}
	engines := 0
	for _, l := range out.Links {
		if l.Relation != "engines" {
			continue
		}
		engines++
		assert.Equal(t, "Engine", nodes[l.Target].Group)
		assert.Equal(t, "PartDefinition", nodes[l.Target].Kind)
		assert.Equal(t, "Stage", nodes[l.Source].Group)
	}
	assert.Equal(t, 6, engines)
}

func TestSaveD3Graph(t *testing.T) {
	g := &D3Graph{
		Nodes: []D3Node{{ID: "a", Name: "a"}},
		Links: []D3Link{{Source: "a", Target: "a", Relation: "self", Type: "declared"}},
	}
	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, SaveD3Graph(g, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var back D3Graph
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, *g, back)
}
