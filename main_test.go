package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynguyendang/mbe/pkg/export"
	"github.com/duynguyendang/mbe/pkg/model/modeltest"
)

func writeModel(t *testing.T, name string, b *modeltest.Builder) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".json")
	data, err := json.Marshal(b.Elements())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRollupCommand(t *testing.T) {
	model := writeModel(t, "rocket", modeltest.Rocket())

	out, err := execute(t, "rollup", model, "engines")
	require.NoError(t, err)
	assert.Equal(t, "engines\tdeclared [3..3]\teffective [6..6]\n", out)

	_, err = execute(t, "rollup", model, "ghost")
	assert.Error(t, err)

	_, err = execute(t, "rollup", model)
	assert.ErrorContains(t, err, "usage: rollup")
}

func TestQueryCommand(t *testing.T) {
	model := writeModel(t, "rocket", modeltest.Rocket())

	out, err := execute(t, "query", model, `edge(O, "FeatureMembership", F)`, "-p", "Part Featuring")
	require.NoError(t, err)
	assert.Equal(t, "O\tF\nRocket\tstages\nStage\tengines\n", out)
}

func TestInterpretCommand(t *testing.T) {
	model := writeModel(t, "sum", modeltest.Sum())
	graph := filepath.Join(t.TempDir(), "population.json")

	out, err := execute(t, "interpret", model, "--seed", "1", "-f", "total", "--graph", graph)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "total:\n"))
	assert.Contains(t, out, "total = 5")
	assert.FileExists(t, graph)

	out, err = execute(t, "interpret", model, "--seed", "1", "-o", "json", "--solve=false")
	require.NoError(t, err)
	var run struct {
		Seed      int64               `json:"seed"`
		Instances map[string][]string `json:"instances"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &run))
	assert.Equal(t, int64(1), run.Seed)
	assert.NotContains(t, run.Instances["total"][0], "= 5")
}

func TestImportAndInterpretFromStore(t *testing.T) {
	model := writeModel(t, "rocket", modeltest.Rocket())
	data := t.TempDir()

	out, err := execute(t, "import", model, data)
	require.NoError(t, err)
	assert.Contains(t, out, `as "rocket"`)

	out, err = execute(t, "interpret", "rocket", "--store", data, "--seed", "2", "-f", "engines")
	require.NoError(t, err)
	assert.Equal(t, 7, strings.Count(out, "\n"), "header plus six engine sequences")

	_, err = execute(t, "interpret", "ghost", "--store", data)
	assert.Error(t, err)
}

func TestProjectionCommand(t *testing.T) {
	model := writeModel(t, "rocket", modeltest.Rocket())
	file := filepath.Join(t.TempDir(), "typing.json")

	_, err := execute(t, "projection", model, "Feature Typing", "-o", file)
	require.NoError(t, err)

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	var g export.D3Graph
	require.NoError(t, json.Unmarshal(data, &g))
	assert.Len(t, g.Links, 3)

	_, err = execute(t, "projection", model, "Nope")
	assert.Error(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	model := writeModel(t, "rocket", modeltest.Rocket())
	_, err := execute(t, "--log-level", "loud", "rollup", model, "engines")
	assert.Error(t, err)
}
