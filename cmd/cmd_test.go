package cmd

import (
	"bytes"
	"image/png"
	"os"
	"strings"
	"testing"

	"github.com/achilleasa/batchrender/asset/scene/reader"
	"github.com/achilleasa/batchrender/log"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quadObj = `
v -1 -1 0
v 1 -1 0
v 1 1 0
v -1 1 0
f 1 2 3 4
`

const quadFbx = `; FBX 7.4.0 project file
Objects:  {
	Geometry: 100, "Geometry::Quad", "Mesh" {
		Vertices: *12 {
			a: -1,-1,0,1,-1,0,1,1,0,-1,1,0
		}
		PolygonVertexIndex: *4 {
			a: 0,1,2,-4
		}
	}
	Model: 200, "Model::Quad", "Mesh" {
	}
}
Connections:  {
	C: "OO",100,200
}
`

func withMemFs(t *testing.T) afero.Fs {
	fs := afero.NewMemMapFs()
	orig := appFs
	appFs = fs
	t.Cleanup(func() { appFs = orig })
	return fs
}

func captureLog(t *testing.T) *bytes.Buffer {
	var buf bytes.Buffer
	log.SetSink(&buf)
	t.Cleanup(func() { log.SetSink(os.Stdout) })
	return &buf
}

func run(args ...string) error {
	return NewApp().Run(append([]string{"batchrender"}, args...))
}

func TestRenderCommand(t *testing.T) {
	fs := withMemFs(t)
	logBuf := captureLog(t)
	require.NoError(t, afero.WriteFile(fs, "/models/quad.obj", []byte(quadObj), 0644))
	require.NoError(t, afero.WriteFile(fs, "/models/notes.txt", []byte("ignored"), 0644))

	err := run("render", "--dir", "/models", "--project", "/proj", "--width", "8", "--height", "6", "--spp", "1", "--workers", "2")
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, "/proj/output/quad.png")
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 6, img.Bounds().Dy())

	exists, err := afero.Exists(fs, "/proj/output/notes.png")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Contains(t, logBuf.String(), "batch summary")
}

func TestRenderCommandPartialFailure(t *testing.T) {
	fs := withMemFs(t)
	logBuf := captureLog(t)
	require.NoError(t, afero.WriteFile(fs, "/models/a.obj", []byte(quadObj), 0644))
	require.NoError(t, afero.WriteFile(fs, "/models/b.fbx", []byte(quadFbx), 0644))

	err := run("render", "--dir", "/models", "--project", "/proj", "--width", "4", "--height", "4", "--spp", "1", "--workers", "1", "--format", "bmp", "a.obj", "b.fbx", "c.xyz")
	assert.ErrorIs(t, err, ErrPartialFailure)
	assert.Contains(t, err.Error(), "c.xyz")
	assert.NotContains(t, err.Error(), "b.fbx")

	for _, name := range []string{"a", "b", "c"} {
		exists, err := afero.Exists(fs, "/proj/output/"+name+".bmp")
		require.NoError(t, err)
		assert.True(t, exists, name)
	}
	assert.Equal(t, 1, strings.Count(logBuf.String(), "Unknown Extension!"))
	assert.Contains(t, logBuf.String(), "Unknown Extension! c.xyz")
}

func TestRenderCommandUsesConfig(t *testing.T) {
	fs := withMemFs(t)
	captureLog(t)
	require.NoError(t, afero.WriteFile(fs, "/models/a.obj", []byte(quadObj), 0644))
	require.NoError(t, afero.WriteFile(fs, "/proj/batch.yaml", []byte(`
output_dir: stills
material: gold
material_library: materials.yaml
render:
  width: 4
  height: 4
  samples_per_pixel: 1
  workers: 1
  format: jpg
`), 0644))
	require.NoError(t, afero.WriteFile(fs, "/proj/materials.yaml", []byte(`
materials:
  - {name: gold, kind: conductor, albedo: [1, 0.8, 0.3], roughness: 0.1}
`), 0644))

	err := run("render", "--dir", "/models", "--project", "/proj", "--config", "/proj/batch.yaml", "--height", "2")
	require.NoError(t, err)

	exists, err := afero.Exists(fs, "/proj/stills/a.jpg")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRenderCommandErrors(t *testing.T) {
	fs := withMemFs(t)
	captureLog(t)
	require.NoError(t, fs.MkdirAll("/empty", 0755))

	assert.ErrorIs(t, run("render", "--dir", "/empty"), ErrNoInputFiles)
	assert.Error(t, run("render", "--dir", "/empty", "--up", "Z", "--forward", "Z", "a.obj"))
	assert.Error(t, run("render", "--dir", "/empty", "--format", "exr", "a.obj"))
	assert.Error(t, run("render", "--dir", "/empty", "--config", "/missing.yaml", "a.obj"))
}

func TestCompileCommand(t *testing.T) {
	fs := withMemFs(t)
	captureLog(t)
	require.NoError(t, afero.WriteFile(fs, "/models/quad.obj", []byte(quadObj), 0644))

	require.NoError(t, run("compile", "--up", "Z", "--forward", "Y", "/models/quad.obj", "/models/skip.xyz"))

	objects, err := reader.NewRegistry(fs).ReadObjects("/models/quad.zip")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	require.Len(t, objects[0].Mesh.Triangles, 2)

	// The quad was on the XY plane with Z up; after conversion it lies on XZ.
	for _, tri := range objects[0].Mesh.Triangles {
		for _, v := range tri.Vertices {
			assert.InDelta(t, 0, v[1], 1e-5)
		}
	}

	assert.Error(t, run("compile"))
}

func TestListCommands(t *testing.T) {
	fs := withMemFs(t)
	logBuf := captureLog(t)

	require.NoError(t, run("list-formats"))
	assert.Contains(t, logBuf.String(), "Wavefront OBJ")
	assert.Contains(t, logBuf.String(), ".stl")
	assert.Contains(t, logBuf.String(), "Autodesk FBX")

	require.NoError(t, afero.WriteFile(fs, "/materials.yaml", []byte(`
materials:
  - {name: gold, kind: conductor, albedo: [1, 0.8, 0.3]}
`), 0644))
	require.NoError(t, run("list-materials", "--materials", "/materials.yaml"))
	assert.Contains(t, logBuf.String(), "gold")
	assert.Contains(t, logBuf.String(), "mirror")

	assert.Error(t, run("list-materials", "--materials", "/missing.yaml"))
}

func TestSceneInfoCommand(t *testing.T) {
	fs := withMemFs(t)
	logBuf := captureLog(t)
	require.NoError(t, afero.WriteFile(fs, "/models/quad.obj", []byte(quadObj), 0644))

	require.NoError(t, run("scene-info", "/models/quad.obj"))
	assert.Contains(t, logBuf.String(), "Triangles (2)")

	assert.Error(t, run("scene-info"))
}
