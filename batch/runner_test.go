package batch

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/achilleasa/batchrender/asset/material"
	"github.com/achilleasa/batchrender/asset/scene"
	"github.com/achilleasa/batchrender/log"
	"github.com/achilleasa/batchrender/renderer"
	"github.com/achilleasa/batchrender/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Imports a single triangle object per file. Files listed in failures return
// the mapped error instead.
type fakeImporter struct {
	exts     map[string]bool
	failures map[string]error
	panics   map[string]string
	objects  int

	// Invoked before each import.
	onImport func(path string)

	calls []string
	axes  []types.AxisConvention
}

func newFakeImporter(exts ...string) *fakeImporter {
	imp := &fakeImporter{
		exts:     make(map[string]bool),
		failures: make(map[string]error),
		panics:   make(map[string]string),
		objects:  1,
	}
	for _, ext := range exts {
		imp.exts[ext] = true
	}
	return imp
}

func (imp *fakeImporter) Supports(ext string) bool {
	return imp.exts[strings.ToLower(ext)]
}

func (imp *fakeImporter) Import(_ context.Context, path string, axes types.AxisConvention, dst *scene.Collection) error {
	imp.calls = append(imp.calls, path)
	imp.axes = append(imp.axes, axes)
	if imp.onImport != nil {
		imp.onImport(path)
	}
	if msg, found := imp.panics[path]; found {
		panic(msg)
	}
	if err := imp.failures[path]; err != nil {
		return err
	}

	for idx := 0; idx < imp.objects; idx++ {
		mesh := scene.NewMesh("tri")
		mesh.Add(scene.NewFlatTriangle(types.Vec3{0, 0, 0}, types.Vec3{1, 0, 0}, types.Vec3{0, 1, 0}))
		dst.Link(scene.NewObject(filepath.Base(path), mesh, nil))
	}
	return nil
}

// A snapshot of the scene taken when a render was requested.
type renderCall struct {
	target    string
	linked    []string
	materials []*material.Material
}

type fakeRenderer struct {
	failures map[string]error
	calls    []renderCall
	ctxErrs  []error
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{failures: make(map[string]error)}
}

func (r *fakeRenderer) RenderStill(ctx context.Context, sc *scene.Scene, target string) (string, error) {
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	call := renderCall{target: target}
	for _, c := range sc.Children() {
		call.linked = append(call.linked, c.Name)
	}
	for _, obj := range sc.Objects() {
		call.materials = append(call.materials, obj.ActiveMaterial)
	}
	r.calls = append(r.calls, call)

	if err := r.failures[target]; err != nil {
		return "", err
	}
	return target + ".png", nil
}

// Wraps a document and records every created collection.
type recordingStore struct {
	*scene.Document
	created []*scene.Collection
}

func newRecordingStore() *recordingStore {
	return &recordingStore{Document: scene.NewDocument()}
}

func (s *recordingStore) NewContainer(name string) *scene.Collection {
	c := s.Document.NewContainer(name)
	s.created = append(s.created, c)
	return c
}

func inputs(names ...string) []InputFile {
	files := make([]InputFile, len(names))
	for idx, name := range names {
		files[idx] = NewInputFile("/models", name)
	}
	return files
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.ProjectDir = "/project"
	return opts
}

func captureLog(t *testing.T) *bytes.Buffer {
	var buf bytes.Buffer
	log.SetSink(&buf)
	t.Cleanup(func() { log.SetSink(os.Stdout) })
	return &buf
}

func TestInputFile(t *testing.T) {
	specs := []struct {
		path    string
		expName string
		expExt  string
	}{
		{"/models/chair.obj", "chair", ".obj"},
		{"/models/Chair.OBJ", "Chair", ".OBJ"},
		{"/models/chair.v2.stl", "chair.v2", ".stl"},
		{"/models/README", "README", ""},
	}

	for _, s := range specs {
		f := InputFile{Path: s.path}
		assert.Equal(t, s.expName, f.Name(), s.path)
		assert.Equal(t, s.expExt, f.Ext(), s.path)
	}

	opts := testOptions()
	assert.Equal(t, "/project/output/chair.v2", opts.Target(InputFile{Path: "/models/chair.v2.stl"}))

	opts.OutputDir = ""
	assert.Equal(t, "/project/output/chair", opts.Target(InputFile{Path: "/models/chair.obj"}))
}

func TestDiscover(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, name := range []string{"b.stl", "a.OBJ", "notes.txt", "c.ply"} {
		require.NoError(t, afero.WriteFile(fs, filepath.Join("/models", name), nil, 0644))
	}
	require.NoError(t, fs.MkdirAll("/models/sub.obj", 0755))

	imp := newFakeImporter(".obj", ".stl", ".ply")
	files, err := Discover(fs, "/models", imp.Supports)
	require.NoError(t, err)
	assert.Equal(t, inputs("a.OBJ", "b.stl", "c.ply"), files)

	_, err = Discover(fs, "/missing", imp.Supports)
	assert.Error(t, err)
}

func TestRunRendersEveryFileInOrder(t *testing.T) {
	imp := newFakeImporter(".obj", ".stl", ".ply", ".zip")
	rend := newFakeRenderer()
	store := newRecordingStore()
	runner := NewRunner(store, imp, material.NewLibrary(), rend)

	files := inputs("d.zip", "a.obj", "c.ply", "b.STL")
	summary := runner.Run(context.Background(), files, testOptions())

	require.NoError(t, summary.Err())
	assert.Equal(t, Success, summary.Status())
	assert.Equal(t, []string{
		"/project/output/d.png",
		"/project/output/a.png",
		"/project/output/c.png",
		"/project/output/b.png",
	}, summary.Outputs())

	for idx, res := range summary.Results {
		assert.Equal(t, files[idx], res.File)
		assert.Equal(t, Cleaned, res.State)
		assert.Equal(t, []State{Created, Imported, MaterialSkipped, Rendered, Cleaned}, res.History)
		assert.Equal(t, 1, res.Objects)
		assert.False(t, res.MaterialApplied)
	}
}

func TestRunContainerLifecycle(t *testing.T) {
	imp := newFakeImporter(".obj")
	rend := newFakeRenderer()
	store := newRecordingStore()
	runner := NewRunner(store, imp, material.NewLibrary(), rend)

	// A leftover orphan from a previous run is purged.
	store.Document.NewContainer("stale")

	summary := runner.Run(context.Background(), inputs("a.obj", "b.obj", "c.obj"), testOptions())
	require.NoError(t, summary.Err())

	assert.Equal(t, 3, summary.ContainersCreated)
	assert.Equal(t, 3, summary.ContainersRemoved)
	assert.Equal(t, 1, summary.OrphansPurged)
	assert.Empty(t, store.Scene().Children())
	assert.Empty(t, store.Collections())

	// Exactly one container is linked while rendering
	require.Len(t, rend.calls, 3)
	for idx, call := range rend.calls {
		require.Len(t, call.linked, 1, "render %d", idx)
		assert.Equal(t, store.created[idx].Name, call.linked[0])
	}
	for _, c := range store.created {
		assert.Equal(t, 0, c.Users())
		assert.True(t, strings.HasPrefix(c.Name, DefaultContainerName))
	}
}

func TestRunUniqueContainerNames(t *testing.T) {
	store := newRecordingStore()
	runner := NewRunner(store, newFakeImporter(".obj"), material.NewLibrary(), newFakeRenderer())

	// A registered collection that uses the container name is kept alive by
	// linking it to the scene.
	busy := store.NewContainer(DefaultContainerName)
	require.NoError(t, store.Link(busy))

	summary := runner.Run(context.Background(), inputs("a.obj", "b.obj"), testOptions())
	require.NoError(t, summary.Err())

	require.Len(t, store.created, 3)
	assert.Equal(t, DefaultContainerName+".001", store.created[1].Name)
	assert.Equal(t, DefaultContainerName+".001", store.created[2].Name)

	remaining := store.Collections()
	require.Len(t, remaining, 1)
	assert.Equal(t, busy, remaining[0])
}

func TestRunAppliesOverrideMaterial(t *testing.T) {
	lib := material.NewLibrary()
	red, found := lib.Lookup("red")
	require.True(t, found)

	imp := newFakeImporter(".obj")
	imp.objects = 3
	rend := newFakeRenderer()
	runner := NewRunner(newRecordingStore(), imp, lib, rend)

	opts := testOptions()
	opts.OverrideMaterial = "red"
	summary := runner.Run(context.Background(), inputs("a.obj", "b.obj"), opts)
	require.NoError(t, summary.Err())

	for _, res := range summary.Results {
		assert.True(t, res.MaterialApplied)
		assert.Contains(t, res.History, MaterialApplied)
	}
	for _, call := range rend.calls {
		require.Len(t, call.materials, 3)
		for _, mat := range call.materials {
			assert.Same(t, red, mat)
		}
	}
}

func TestRunMissingMaterialIsSilent(t *testing.T) {
	logBuf := captureLog(t)

	rend := newFakeRenderer()
	runner := NewRunner(newRecordingStore(), newFakeImporter(".obj"), material.NewLibrary(), rend)

	for _, name := range []string{"does-not-exist", "None"} {
		opts := testOptions()
		opts.OverrideMaterial = name
		summary := runner.Run(context.Background(), inputs("a.obj"), opts)

		require.NoError(t, summary.Err())
		assert.False(t, summary.Results[0].MaterialApplied)
		assert.Contains(t, summary.Results[0].History, MaterialSkipped)
		assert.Equal(t, "/project/output/a.png", summary.Results[0].Output)
	}

	for _, call := range rend.calls {
		for _, mat := range call.materials {
			assert.Nil(t, mat)
		}
	}
	assert.NotContains(t, logBuf.String(), "does-not-exist")
}

func TestRunUnknownExtensionStillRenders(t *testing.T) {
	logBuf := captureLog(t)

	imp := newFakeImporter(".obj", ".fbx")
	rend := newFakeRenderer()
	runner := NewRunner(newRecordingStore(), imp, material.NewLibrary(), rend)

	summary := runner.Run(context.Background(), inputs("a.obj", "b.fbx", "c.xyz"), testOptions())

	assert.Equal(t, []string{
		"/project/output/a.png",
		"/project/output/b.png",
		"/project/output/c.png",
	}, summary.Outputs())
	assert.Equal(t, []string{"/models/a.obj", "/models/b.fbx"}, imp.calls)

	for _, res := range summary.Results[:2] {
		assert.Equal(t, []State{Created, Imported, MaterialSkipped, Rendered, Cleaned}, res.History)
		assert.Equal(t, 1, res.Objects)
		assert.NoError(t, res.ImportErr)
	}

	res := summary.Results[2]
	assert.Equal(t, []State{Created, Unknown, MaterialSkipped, Rendered, Cleaned}, res.History)
	assert.Equal(t, 0, res.Objects)
	var importErr *ImportError
	require.True(t, errors.As(res.ImportErr, &importErr))
	assert.ErrorIs(t, importErr, ErrUnknownFormat)

	assert.Equal(t, 1, strings.Count(logBuf.String(), "Unknown Extension!"))
	assert.Contains(t, logBuf.String(), "Unknown Extension! c.xyz")
	assert.Equal(t, PartialFailure, summary.Status())
	assert.ErrorIs(t, summary.Err(), ErrUnknownFormat)
}

func TestRunSkipRenderOnImportFailure(t *testing.T) {
	imp := newFakeImporter(".obj")
	imp.failures["/models/broken.obj"] = errors.New("bad face")
	rend := newFakeRenderer()
	store := newRecordingStore()
	runner := NewRunner(store, imp, material.NewLibrary(), rend)

	opts := testOptions()
	opts.SkipRenderOnImportFailure = true
	summary := runner.Run(context.Background(), inputs("broken.obj", "model.abc", "ok.obj"), opts)

	assert.Equal(t, []string{"/project/output/ok.png"}, summary.Outputs())
	require.Len(t, rend.calls, 1)

	assert.Equal(t, []State{Created, ImportFailed, MaterialSkipped, RenderSkipped, Cleaned}, summary.Results[0].History)
	assert.Equal(t, []State{Created, Unknown, MaterialSkipped, RenderSkipped, Cleaned}, summary.Results[1].History)
	assert.Equal(t, 3, summary.ContainersRemoved)
	assert.Empty(t, store.Collections())

	err := summary.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad face")
}

func TestRunImportFailureRendersByDefault(t *testing.T) {
	imp := newFakeImporter(".obj")
	imp.failures["/models/broken.obj"] = errors.New("bad face")
	rend := newFakeRenderer()
	runner := NewRunner(newRecordingStore(), imp, material.NewLibrary(), rend)

	summary := runner.Run(context.Background(), inputs("broken.obj"), testOptions())

	res := summary.Results[0]
	assert.Equal(t, []State{Created, ImportFailed, MaterialSkipped, Rendered, Cleaned}, res.History)
	assert.Equal(t, "/project/output/broken.png", res.Output)
	assert.Equal(t, PartialFailure, summary.Status())
}

func TestRunRenderFailureContinues(t *testing.T) {
	rend := newFakeRenderer()
	rend.failures["/project/output/a"] = errors.New("out of memory")
	store := newRecordingStore()
	runner := NewRunner(store, newFakeImporter(".obj"), material.NewLibrary(), rend)

	summary := runner.Run(context.Background(), inputs("a.obj", "b.obj"), testOptions())

	assert.Equal(t, RenderFailed, summary.Results[0].History[3])
	assert.Equal(t, Cleaned, summary.Results[0].State)
	var renderErr *RenderError
	require.True(t, errors.As(summary.Results[0].RenderErr, &renderErr))
	assert.Equal(t, "/models/a.obj", renderErr.File.Path)

	assert.Equal(t, []string{"/project/output/b.png"}, summary.Outputs())
	assert.Equal(t, 2, summary.ContainersRemoved)
	assert.Empty(t, store.Scene().Children())
	assert.Equal(t, PartialFailure, summary.Status())
	assert.Contains(t, summary.Table(), "partial failure")
}

func TestRunCancelledBetweenFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newRecordingStore()
	runner := NewRunner(store, newFakeImporter(".obj"), material.NewLibrary(), newFakeRenderer())

	var done []string
	opts := testOptions()
	opts.OnFileDone = func(res FileResult) {
		done = append(done, res.File.Name())
		cancel()
	}

	summary := runner.Run(ctx, inputs("a.obj", "b.obj", "c.obj"), opts)

	assert.Equal(t, []string{"a"}, done)
	assert.Equal(t, Cleaned, summary.Results[0].State)
	assert.Equal(t, Cancelled, summary.Results[1].State)
	assert.Equal(t, Cancelled, summary.Results[2].State)
	assert.Equal(t, 1, summary.ContainersCreated)
	assert.Empty(t, store.Collections())

	assert.Equal(t, PartialFailure, summary.Status())
	assert.ErrorIs(t, summary.Err(), ErrCancelled)
}

func TestRunCancelledDuringFile(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	imp := newFakeImporter(".obj")
	imp.onImport = func(string) { cancel() }
	rend := newFakeRenderer()
	store := newRecordingStore()
	runner := NewRunner(store, imp, material.NewLibrary(), rend)

	summary := runner.Run(ctx, inputs("a.obj", "b.obj"), testOptions())

	assert.Equal(t, []State{Created, Imported, MaterialSkipped, Rendered, Cleaned}, summary.Results[0].History)
	assert.Equal(t, "/project/output/a.png", summary.Results[0].Output)
	assert.Equal(t, []error{nil}, rend.ctxErrs)
	assert.Equal(t, Cancelled, summary.Results[1].State)
	assert.Empty(t, store.Collections())
}

func TestRunCancelledDuringFileStillWritesImage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs := afero.NewMemMapFs()
	ropts := renderer.DefaultOptions()
	ropts.FrameW = 4
	ropts.FrameH = 4
	ropts.SamplesPerPixel = 1
	ropts.NumTracers = 1
	lib := material.NewLibrary()
	sr, err := renderer.NewStillRenderer(fs, lib.Default(), ropts)
	require.NoError(t, err)
	defer sr.Close()

	imp := newFakeImporter(".obj")
	imp.onImport = func(string) { cancel() }
	runner := NewRunner(newRecordingStore(), imp, lib, sr)

	summary := runner.Run(ctx, inputs("a.obj"), testOptions())

	res := summary.Results[0]
	require.NoError(t, res.RenderErr)
	assert.Equal(t, Cleaned, res.State)
	assert.Equal(t, "/project/output/a.png", res.Output)
	exists, err := afero.Exists(fs, "/project/output/a.png")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRunRecoversImporterPanic(t *testing.T) {
	logBuf := captureLog(t)

	imp := newFakeImporter(".obj")
	imp.panics["/models/corrupt.obj"] = "makeslice: len out of range"
	rend := newFakeRenderer()
	store := newRecordingStore()
	runner := NewRunner(store, imp, material.NewLibrary(), rend)

	summary := runner.Run(context.Background(), inputs("corrupt.obj", "ok.obj"), testOptions())

	res := summary.Results[0]
	assert.Equal(t, []State{Created, ImportFailed, MaterialSkipped, Rendered, Cleaned}, res.History)
	var importErr *ImportError
	require.True(t, errors.As(res.ImportErr, &importErr))
	assert.ErrorIs(t, importErr, ErrImporterPanic)
	assert.Contains(t, importErr.Error(), "makeslice")

	assert.Equal(t, []State{Created, Imported, MaterialSkipped, Rendered, Cleaned}, summary.Results[1].History)
	assert.Equal(t, []string{"/project/output/corrupt.png", "/project/output/ok.png"}, summary.Outputs())
	assert.Empty(t, store.Collections())
	assert.Contains(t, logBuf.String(), "could not import")
	assert.Equal(t, PartialFailure, summary.Status())
}

func TestRunPassesAxisConvention(t *testing.T) {
	imp := newFakeImporter(".obj")
	runner := NewRunner(newRecordingStore(), imp, material.NewLibrary(), newFakeRenderer())

	opts := testOptions()
	opts.Axes = types.AxisConvention{Up: types.AxisZ, Forward: types.AxisY}
	runner.Run(context.Background(), inputs("a.obj"), opts)

	require.Len(t, imp.axes, 1)
	assert.Equal(t, opts.Axes, imp.axes[0])
}
