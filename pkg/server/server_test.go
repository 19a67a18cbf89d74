package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynguyendang/mbe/internal/manager"
	"github.com/duynguyendang/mbe/pkg/datalog"
	"github.com/duynguyendang/mbe/pkg/export"
	"github.com/duynguyendang/mbe/pkg/interpret"
	"github.com/duynguyendang/mbe/pkg/lpg"
	"github.com/duynguyendang/mbe/pkg/model/modeltest"
	"github.com/duynguyendang/mbe/pkg/service"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mm := manager.NewModelManager("", nil, manager.DefaultOptions())
	_, err := mm.Register("rocket", modeltest.Rocket().Memory(), nil)
	require.NoError(t, err)
	_, err = mm.Register("sum", modeltest.Sum().Memory(), nil)
	require.NoError(t, err)
	return NewServer(service.NewGraphService(mm), service.NewInterpretationService(mm, interpret.DefaultConfig(), 1))
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	require.NoError(t, err)
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	w := do(t, setupTestServer(t), "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProjects(t *testing.T) {
	w := do(t, setupTestServer(t), "GET", "/v1/projects", "")
	require.Equal(t, http.StatusOK, w.Code)

	var projects []manager.ProjectMetadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &projects))
	require.Len(t, projects, 2)
	assert.Equal(t, "rocket", projects[0].ID)
}

func TestProjections(t *testing.T) {
	srv := setupTestServer(t)

	w := do(t, srv, "GET", "/v1/projections?project=rocket", "")
	require.Equal(t, http.StatusOK, w.Code)
	var recipes []lpg.Recipe
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recipes))
	assert.Len(t, recipes, len(lpg.DefaultCatalog().Names()))

	w = do(t, srv, "GET", "/v1/projection?project=rocket&name=Feature+Typing", "")
	require.Equal(t, http.StatusOK, w.Code)
	var graph export.D3Graph
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &graph))
	assert.Len(t, graph.Links, 3)

	w = do(t, srv, "GET", "/v1/projection?project=rocket&name=Bandid", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), lpg.ProjectionBanded)

	w = do(t, srv, "GET", "/v1/projection?name=Banded", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuery(t *testing.T) {
	srv := setupTestServer(t)
	body := `{"query": "edge(F, \"FeatureTyping\", T)", "projection": "Part Featuring"}`

	w := do(t, srv, "POST", "/v1/query?project=rocket", body)
	require.Equal(t, http.StatusOK, w.Code)
	var graph export.D3Graph
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &graph))
	assert.Len(t, graph.Links, 3)
	assert.Len(t, graph.Nodes, 6)

	w = do(t, srv, "POST", "/v1/query?project=rocket&raw=true", body)
	require.Equal(t, http.StatusOK, w.Code)
	var res datalog.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, []string{"F", "T"}, res.Vars)
	assert.Len(t, res.Rows, 3)

	w = do(t, srv, "POST", "/v1/query?project=rocket", `{"query": ""}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"nodes": [], "links": []}`, w.Body.String())

	w = do(t, srv, "POST", "/v1/query?project=rocket", `{"query": "edge(A, B"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, "POST", "/v1/query?project=rocket", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInterpret(t *testing.T) {
	srv := setupTestServer(t)

	w := do(t, srv, "POST", "/v1/interpret", `{"project": "sum", "seed": 5, "solve": true}`)
	require.Equal(t, http.StatusOK, w.Code)

	var run struct {
		ID          string              `json:"id"`
		Seed        int64               `json:"seed"`
		Instances   map[string][]string `json:"instances"`
		Calculation struct {
			Components []struct {
				Solved bool `json:"solved"`
			} `json:"components"`
		} `json:"calculation"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, int64(5), run.Seed)
	require.Len(t, run.Instances["total"], 1)
	assert.Contains(t, run.Instances["total"][0], "5")
	require.Len(t, run.Calculation.Components, 1)
	assert.True(t, run.Calculation.Components[0].Solved)

	w = do(t, srv, "POST", "/v1/interpret", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, "POST", "/v1/interpret", `{"project": "ghost"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPathAndRollup(t *testing.T) {
	srv := setupTestServer(t)

	w := do(t, srv, "GET", "/v1/path?project=rocket&projection=Part+Featuring&source=Rocket&target=Engine", "")
	require.Equal(t, http.StatusOK, w.Code)
	var graph export.D3Graph
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &graph))
	assert.Len(t, graph.Nodes, 5)

	w = do(t, srv, "GET", "/v1/path?project=rocket&source=Rocket", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, "GET", "/v1/rollup?project=rocket&feature=engines", "")
	require.Equal(t, http.StatusOK, w.Code)
	var r service.RollupResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
	assert.Equal(t, 6, r.Upper)
	assert.Equal(t, 3, r.DeclaredUpper)

	w = do(t, srv, "GET", "/v1/rollup?project=rocket&feature=ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSummary(t *testing.T) {
	srv := setupTestServer(t)

	w := do(t, srv, "GET", "/v1/summary?project=rocket", "")
	require.Equal(t, http.StatusOK, w.Code)
	var sum service.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, "rocket", sum.Project)
	assert.Equal(t, []string{"P"}, sum.Roots)

	w = do(t, srv, "GET", "/v1/summary?project=rocket&center=stages&radius=x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
