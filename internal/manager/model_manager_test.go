package manager

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/model"
	"github.com/duynguyendang/mbe/pkg/model/modeltest"
	"github.com/duynguyendang/mbe/pkg/store"
)

func writeProject(t *testing.T, dir, id string, elems []*model.Element) {
	t.Helper()
	pDir := filepath.Join(dir, id)
	require.NoError(t, os.MkdirAll(pDir, 0o755))
	data, err := json.Marshal(elems)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(pDir, "model.json"), data, 0o644))
}

func TestModelManager_LRU(t *testing.T) {
	tmpDir := t.TempDir()
	writeProject(t, tmpDir, "p1", modeltest.Tanks().Elements())

	mm := NewModelManager(tmpDir, nil, DefaultOptions())
	defer mm.CloseAll()

	p1, err := mm.GetProject(context.Background(), "p1")
	require.NoError(t, err)
	require.NotNil(t, p1)
	assert.Equal(t, 3, p1.Model.MultiplicityBound("tanks", model.Upper))

	again, err := mm.GetProject(context.Background(), "p1")
	require.NoError(t, err)
	assert.Same(t, p1, again, "second lookup hits the cache")

	_, err = mm.GetProject(context.Background(), "nope")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = mm.GetProject(context.Background(), "")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestModelManager_Eviction(t *testing.T) {
	tmpDir := t.TempDir()
	for i := 0; i <= MaxOpenModels; i++ {
		writeProject(t, tmpDir, string(rune('a'+i)), modeltest.Tanks().Elements())
	}
	mm := NewModelManager(tmpDir, nil, DefaultOptions())

	first, err := mm.GetProject(context.Background(), "a")
	require.NoError(t, err)
	for i := 1; i <= MaxOpenModels; i++ {
		_, err := mm.GetProject(context.Background(), string(rune('a'+i)))
		require.NoError(t, err)
	}
	reloaded, err := mm.GetProject(context.Background(), "a")
	require.NoError(t, err)
	assert.NotSame(t, first, reloaded, "least recently used project was evicted")
}

func TestModelManager_Sources(t *testing.T) {
	tmpDir := t.TempDir()
	writeProject(t, tmpDir, "dir", modeltest.Tanks().Elements())
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "dir", "project.yaml"), []byte("name: Tanks\ndescription: fuel\n"), 0o644))

	cfg := store.DefaultConfig("")
	cfg.InMemory = true
	snaps, err := store.Open(cfg)
	require.NoError(t, err)
	defer snaps.Close()
	require.NoError(t, snaps.PutElements("snap", modeltest.Rocket().Elements()))

	mm := NewModelManager(tmpDir, snaps, DefaultOptions())
	_, err = mm.Register("mem", modeltest.Sum().Memory(), nil)
	require.NoError(t, err)

	projects, err := mm.ListProjects()
	require.NoError(t, err)
	assert.Equal(t, []ProjectMetadata{
		{ID: "dir", Name: "Tanks", Description: "fuel", Source: "directory"},
		{ID: "mem", Name: "mem", Source: "memory"},
		{ID: "snap", Name: "snap", Source: "snapshot"},
	}, projects)

	p, err := mm.GetProject(context.Background(), "snap")
	require.NoError(t, err)
	_, ok := p.Model.Element("engines")
	assert.True(t, ok)

	p, err = mm.GetProject(context.Background(), "mem")
	require.NoError(t, err)
	_, ok = p.Model.Element("plus")
	assert.True(t, ok)
}

func TestModelManager_ListProjects_Caching(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "p1"), 0o755))

	mm := NewModelManager(tmpDir, nil, DefaultOptions())

	projects, err := mm.ListProjects()
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "p1", projects[0].ID)

	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "p2"), 0o755))

	projects, err = mm.ListProjects()
	require.NoError(t, err)
	assert.Len(t, projects, 1, "list is cached")

	mm.mu.Lock()
	mm.lastListBuild = time.Now().Add(-2 * ProjectListTTL)
	mm.mu.Unlock()

	projects, err = mm.ListProjects()
	require.NoError(t, err)
	assert.Len(t, projects, 2)
}

func TestModelManager_RebuildOnChange(t *testing.T) {
	mm := NewModelManager("", nil, DefaultOptions())
	mem := modeltest.Tanks().Memory()
	p, err := mm.Register("t", mem, nil)
	require.NoError(t, err)

	before := p.Graphs.Version()
	mem.Put(model.NewElement("Extra", "PartDefinition", nil))
	assert.Greater(t, p.Graphs.Version(), before)
}
