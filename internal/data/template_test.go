package data_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapworld/server/internal/data"
	"github.com/snapworld/server/internal/world"
)

func writeTemplate(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "world.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadWorldTemplate(t *testing.T) {
	path := writeTemplate(t, `
components:
  - name: pos
    id: 1
    fields: [x, y]
  - name: boss
    id: 9
global:
  - name: tick
    value: 0
  - name: motd
    value: hello
  - name: spawn_points
    value: [1, 2.5, true, null]
entities: 3
`)
	tpl, err := data.LoadWorldTemplate(path)
	require.NoError(t, err)

	w, err := tpl.Build()
	require.NoError(t, err)

	assert.Equal(t, []uint16{1, 9}, w.ComponentIDs())
	boss, ok := w.ComponentByName("boss")
	require.True(t, ok)
	assert.True(t, boss.IsMarker())

	motd, ok := w.Global().Record().Field("motd")
	require.True(t, ok)
	assert.Equal(t, world.Bytes("hello"), motd)

	points, ok := w.Global().Record().Field("spawn_points")
	require.True(t, ok)
	assert.Equal(t, world.Array{
		world.Int(1), world.Float(2.5), world.Bool(true), world.Maybe{},
	}, points)

	assert.Equal(t, 3, w.Entities().Len())
}

func TestLoadWorldTemplateMissingFile(t *testing.T) {
	_, err := data.LoadWorldTemplate(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestBuildRejectsDuplicateComponents(t *testing.T) {
	tpl := &data.WorldTemplate{
		Components: []data.ComponentTemplate{
			{Name: "a", ID: 1},
			{Name: "a", ID: 2},
		},
	}
	_, err := tpl.Build()
	assert.Error(t, err)
}

func TestBuildRejectsDuplicateGlobalFields(t *testing.T) {
	tpl := &data.WorldTemplate{
		Global: []data.GlobalField{
			{Name: "tick", Value: 0},
			{Name: "tick", Value: 1},
		},
	}
	_, err := tpl.Build()
	assert.Error(t, err)
}

func TestBuildRejectsNegativeEntities(t *testing.T) {
	tpl := &data.WorldTemplate{Entities: -1}
	_, err := tpl.Build()
	assert.Error(t, err)
}

func TestBuildEmptyTemplate(t *testing.T) {
	w, err := (&data.WorldTemplate{}).Build()
	require.NoError(t, err)
	assert.Empty(t, w.ComponentIDs())
	assert.Equal(t, 0, w.Entities().Len())
}
