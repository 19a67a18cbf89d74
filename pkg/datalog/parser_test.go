package datalog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/lpg"
	"github.com/duynguyendang/mbe/pkg/model/modeltest"
)

func v(name string) Term { return Term{Value: name, Var: true} }
func c(value string) Term { return Term{Value: value} }

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    []Atom
		wantErr bool
	}{
		{
			name:  "Simple Edge",
			query: `edge(A, "FeatureTyping", B)`,
			want: []Atom{
				{Predicate: "edge", Args: []Term{v("A"), c("FeatureTyping"), v("B")}},
			},
		},
		{
			name:  "Multiple Edges",
			query: `edge(A, "FeatureMembership", B), edge(B, "FeatureTyping", C)`,
			want: []Atom{
				{Predicate: "edge", Args: []Term{v("A"), c("FeatureMembership"), v("B")}},
				{Predicate: "edge", Args: []Term{v("B"), c("FeatureTyping"), v("C")}},
			},
		},
		{
			name:  "Inequality Sugar",
			query: `edge(A, L, B), A != B`,
			want: []Atom{
				{Predicate: "edge", Args: []Term{v("A"), v("L"), v("B")}},
				{Predicate: "neq", Args: []Term{v("A"), v("B")}},
			},
		},
		{
			name:  "Regex Constraint",
			query: `node(A, T), regex(T, ".*Definition")`,
			want: []Atom{
				{Predicate: "node", Args: []Term{v("A"), v("T")}},
				{Predicate: "regex", Args: []Term{v("T"), c(".*Definition")}},
			},
		},
		{
			name:  "Rule Head And Trailing Dot",
			query: `?q(A) :- node(A, 'PartUsage').`,
			want: []Atom{
				{Predicate: "node", Args: []Term{v("A"), c("PartUsage")}},
			},
		},
		{
			name:  "Lower Case Constant",
			query: `edge(tanks, L, _)`,
			want: []Atom{
				{Predicate: "edge", Args: []Term{c("tanks"), v("L"), v("_")}},
			},
		},
		{
			name:  "Quoted Upper Case Is Constant",
			query: `edge("Tank", L, 'X')`,
			want: []Atom{
				{Predicate: "edge", Args: []Term{c("Tank"), v("L"), c("X")}},
			},
		},
		{
			name:    "Invalid Syntax",
			query:   `edge(A, B`,
			wantErr: true,
		},
		{
			name:    "Empty Query",
			query:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.query)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSmartSplit(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{`a, "b,c", d`, []string{"a", "\"b,c\"", "d"}},
		{`fn(a,b), c`, []string{"fn(a,b)", "c"}},
		{`edge(A, "L", B), A != B`, []string{`edge(A, "L", B)`, `A != B`}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, SmartSplit(tt.input))
		})
	}
}

func rocketGraph(t *testing.T) *lpg.Graph {
	t.Helper()
	store, err := lpg.NewStore(modeltest.Rocket().Memory(), lpg.DefaultConfig())
	require.NoError(t, err)
	g, err := store.GetProjection(lpg.ProjectionPartFeaturing)
	require.NoError(t, err)
	return g
}

func TestQuery(t *testing.T) {
	g := rocketGraph(t)

	tests := []struct {
		name  string
		query string
		vars  []string
		rows  [][]string
	}{
		{
			name:  "typing edges",
			query: `edge(F, "FeatureTyping", T)`,
			vars:  []string{"F", "T"},
			rows:  [][]string{{"engines", "Engine"}, {"rocket", "Rocket"}, {"stages", "Stage"}},
		},
		{
			name:  "join owner to feature type",
			query: `edge(O, "FeatureMembership", F), edge(F, "FeatureTyping", T)`,
			vars:  []string{"O", "F", "T"},
			rows:  [][]string{{"Rocket", "stages", "Stage"}, {"Stage", "engines", "Engine"}},
		},
		{
			name:  "constant source",
			query: `edge(stages, L, _)`,
			vars:  []string{"L"},
			rows:  [][]string{{"FeatureTyping"}},
		},
		{
			name:  "node filter with regex",
			query: `node(N, T), regex(N, "^[a-z]")`,
			vars:  []string{"N", "T"},
			rows:  [][]string{{"engines", "PartUsage"}, {"rocket", "PartUsage"}, {"stages", "PartUsage"}},
		},
		{
			name:  "inequality",
			query: `edge(A, "FeatureTyping", B), edge(C, "FeatureTyping", B), A != C`,
			vars:  []string{"A", "B", "C"},
			rows:  [][]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Query(g, tt.query, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.vars, res.Vars)
			assert.Equal(t, tt.rows, res.Rows)
		})
	}
}

func TestQuery_Limit(t *testing.T) {
	res, err := Query(rocketGraph(t), `edge(A, L, B)`, 2)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
}

func TestQuery_Errors(t *testing.T) {
	g := rocketGraph(t)

	_, err := Query(g, `edges(A, L, B)`, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	assert.Contains(t, err.Error(), `did you mean "edge"`)

	_, err = Query(g, `edge(A, B)`, 0)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = Query(g, `A != B`, 0)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = Query(g, `node(A, T), regex(X, "a")`, 0)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = Query(g, `node(A, T), regex(A, "(")`, 0)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestMatches_CacheIsBounded(t *testing.T) {
	for i := 0; i < regexCacheSize+50; i++ {
		ok, err := matches([]string{"a1", fmt.Sprintf("^a%d$", i%10)})
		require.NoError(t, err)
		assert.Equal(t, i%10 == 1, ok)
		_, err = matches([]string{"x", fmt.Sprintf("^p%d$", i)})
		require.NoError(t, err)
	}
	assert.Equal(t, regexCacheSize, regexCache.Len())
}
