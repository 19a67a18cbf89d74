package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynguyendang/mbe/pkg/common/errors"
	"github.com/duynguyendang/mbe/pkg/model"
	"github.com/duynguyendang/mbe/pkg/model/modeltest"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	cfg := DefaultConfig("")
	cfg.InMemory = true
	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func ids(elems []*model.Element) []string {
	out := make([]string, len(elems))
	for i, e := range elems {
		out[i] = e.ID
	}
	return out
}

func TestPutLoadElements(t *testing.T) {
	s := openMemory(t)
	elems := modeltest.Rocket().Elements()

	require.NoError(t, s.PutElements("rocket", elems))

	got, err := s.LoadElements("rocket")
	require.NoError(t, err)
	assert.Equal(t, ids(elems), ids(got), "declaration order is preserved")

	byID := map[string]*model.Element{}
	for _, e := range got {
		byID[e.ID] = e
	}
	stages := byID["stages"]
	require.NotNil(t, stages)
	assert.Equal(t, model.PartUsage, stages.Metatype)
	assert.Equal(t, 2.0, stages.Attributes["lowerBound"])

	m := model.NewMemory(got...)
	assert.Equal(t, 2, m.MultiplicityBound("stages", model.Upper))
}

func TestPutElements_Replaces(t *testing.T) {
	s := openMemory(t)
	require.NoError(t, s.PutElements("p", modeltest.Rocket().Elements()))
	require.NoError(t, s.PutElements("p", modeltest.Tanks().Elements()))

	got, err := s.LoadElements("p")
	require.NoError(t, err)
	assert.Equal(t, ids(modeltest.Tanks().Elements()), ids(got))

	snap, err := s.Snapshot("p")
	require.NoError(t, err)
	assert.Equal(t, len(got), snap.Elements)
	assert.Positive(t, snap.Bytes)
}

func TestProjects(t *testing.T) {
	s := openMemory(t)
	require.NoError(t, s.PutElements("tanks", modeltest.Tanks().Elements()))
	require.NoError(t, s.PutElements("rocket", modeltest.Rocket().Elements()))
	require.NoError(t, s.PutElements("rocket2", modeltest.Sum().Elements()))

	projects, err := s.Projects()
	require.NoError(t, err)
	var names []string
	for _, p := range projects {
		names = append(names, p.Project)
	}
	assert.Equal(t, []string{"rocket", "rocket2", "tanks"}, names)

	require.NoError(t, s.DeleteProject("rocket"))
	_, err = s.LoadElements("rocket")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	got, err := s.LoadElements("rocket2")
	require.NoError(t, err)
	assert.Equal(t, ids(modeltest.Sum().Elements()), ids(got), "prefix siblings survive")
}

func TestErrors(t *testing.T) {
	s := openMemory(t)

	_, err := s.LoadElements("missing")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	assert.ErrorIs(t, s.PutElements("", nil), errors.ErrInvalidInput)
	assert.ErrorIs(t, s.DeleteProject("missing"), errors.ErrNotFound)

	_, err = Open(&Config{})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestElementKey(t *testing.T) {
	key := encodeElementKey("rocket", 258)
	project, seq, ok := decodeElementKey(key)
	require.True(t, ok)
	assert.Equal(t, "rocket", project)
	assert.Equal(t, uint64(258), seq)

	assert.Less(t, string(encodeElementKey("p", 1)), string(encodeElementKey("p", 256)))

	_, _, ok = decodeElementKey(encodeMetaKey("rocket"))
	assert.False(t, ok)
}
