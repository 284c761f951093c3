package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pcdfusion/internal/fsutil"
	"github.com/banshee-data/pcdfusion/internal/geometry"
	"github.com/banshee-data/pcdfusion/internal/pcd"
	"github.com/banshee-data/pcdfusion/internal/testutil"
)

const yamlManifest = `
mode: transform_filter
output: out/fused.pcd
encoding: binary
skip_failed: true
sources:
  - name: front
    path: front.pcd
    transform:
      - [1, 0, 0, 1]
      - [0, 1, 0, 0]
      - [0, 0, 1, 0]
      - [0, 0, 0, 1]
    ignore_areas:
      - {x: 1.5, y: 1, z: 2, length: 0.2, width: 0.2, height: 0.2, yaw: 0}
  - path: /abs/rear.pcd
`

func TestLoadManifest_YAML(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.MkdirAll("/runs/day1", 0o755))
	require.NoError(t, fsys.MkdirAll("/abs", 0o755))
	require.NoError(t, fsys.WriteFile("/runs/day1/fusion.yaml", []byte(yamlManifest), 0o644))

	a, b := twoSources(t)
	require.NoError(t, fsys.WriteFile("/runs/day1/front.pcd", a, 0o644))
	require.NoError(t, fsys.WriteFile("/abs/rear.pcd", b, 0o644))

	m, err := LoadManifest(fsys, "/runs/day1/fusion.yaml")
	require.NoError(t, err)

	mode, err := m.FusionMode()
	require.NoError(t, err)
	assert.Equal(t, ModeTransformFilter, mode)
	assert.Equal(t, "/runs/day1/out/fused.pcd", m.OutputPath())
	assert.Equal(t, "/runs/day1", m.Dir())
	assert.Equal(t, []string{"/runs/day1/front.pcd", "/abs/rear.pcd"}, m.SourcePaths())

	opts := m.Options(Options{})
	assert.True(t, opts.SkipFailed)
	assert.Equal(t, pcd.Binary, opts.Encoding)

	sources, err := m.Load(fsys)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "front", sources[0].Name)
	assert.Equal(t, "/abs/rear.pcd", sources[1].Name, "unnamed sources use their path")
	require.NotNil(t, sources[0].Transform)
	assert.Equal(t, geometry.Translation(1, 0, 0), *sources[0].Transform)
	assert.Nil(t, sources[1].Transform)

	res, err := Fuse(mode, sources, opts)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Points())
	assert.Equal(t, pcd.Binary, res.Cloud.Encoding())
}

func TestParseManifest_JSON(t *testing.T) {
	data := []byte(`{"sources": [{"name": "s", "path": "s.pcd", "ignore_areas": [{"x": 1, "length": 2, "width": 2, "height": 2}]}]}`)
	m, err := ParseManifest("fusion.json", data)
	require.NoError(t, err)

	mode, err := m.FusionMode()
	require.NoError(t, err)
	assert.Equal(t, ModeTransform, mode, "mode defaults to transform")
	assert.Equal(t, "", m.OutputPath())
	require.Len(t, m.Sources[0].IgnoreAreas, 1)
	assert.Equal(t, geometry.OrientedBox{X: 1, Length: 2, Width: 2, Height: 2}, m.Sources[0].IgnoreAreas[0])

	base := Options{SkipFailed: true, Encoding: pcd.ASCII}
	assert.Equal(t, base, m.Options(base), "unset manifest fields keep the base options")
}

func TestParseManifest_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
		code string
	}{
		{"no sources", "mode: filter\n", pcd.CodeEmptyInput},
		{"no path", "sources:\n  - name: a\n", pcd.CodeEmptyInput},
		{"bad mode", "mode: blend\nsources:\n  - path: a.pcd\n", pcd.CodeUnknownMode},
		{"bad encoding", "encoding: zip\nsources:\n  - path: a.pcd\n", pcd.CodeUnknownEncoding},
		{"bad matrix", "sources:\n  - path: a.pcd\n    transform: [[1, 0, 0], [0, 1, 0], [0, 0, 1]]\n", pcd.CodeBadMatrix},
		{"bad box", "sources:\n  - path: a.pcd\n    ignore_areas: [{length: -1}]\n", pcd.CodeBadBox},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest("m.yaml", []byte(tt.text))
			testutil.AssertErrorCode(t, err, tt.code)
		})
	}

	_, err := ParseManifest("m.yaml", []byte("sources: [unterminated"))
	assert.Error(t, err)
}

func TestLoadManifest_MissingSource(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("/m.yaml", []byte("sources:\n  - path: gone.pcd\n"), 0o644))
	m, err := LoadManifest(fsys, "/m.yaml")
	require.NoError(t, err)

	_, err = m.Load(fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gone.pcd")

	_, err = LoadManifest(fsys, "/none.yaml")
	assert.Error(t, err)
}
