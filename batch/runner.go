package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/achilleasa/batchrender/asset/scene"
	"github.com/achilleasa/batchrender/log"
	"github.com/achilleasa/batchrender/types"
)

const (
	DefaultContainerName = "batch-tmp"
	DefaultOutputDir     = "output"
)

// Options control a batch run.
type Options struct {
	// The material to assign to every imported object. An empty name
	// disables the override; names that do not resolve are ignored.
	OverrideMaterial string

	// The axis convention of the input files.
	Axes types.AxisConvention

	// Do not render files whose import failed or whose format is unknown.
	SkipRenderOnImportFailure bool

	// Images are written to ProjectDir/OutputDir. OutputDir defaults to
	// DefaultOutputDir.
	ProjectDir string
	OutputDir  string

	// Base name for per-file containers. Defaults to DefaultContainerName.
	ContainerName string

	// An optional callback invoked after each file has been cleaned up.
	OnFileDone func(FileResult)
}

// DefaultOptions returns options with the default axis convention and
// output dir.
func DefaultOptions() Options {
	return Options{
		Axes:          types.DefaultAxisConvention(),
		OutputDir:     DefaultOutputDir,
		ContainerName: DefaultContainerName,
	}
}

// Runner processes input files one at a time.
type Runner struct {
	logger log.Logger

	store     ContainerStore
	importer  Importer
	materials MaterialLookup
	renderer  Renderer
}

// NewRunner creates a runner that drives the given capabilities.
func NewRunner(store ContainerStore, importer Importer, materials MaterialLookup, renderer Renderer) *Runner {
	return &Runner{
		logger:    log.New("batch"),
		store:     store,
		importer:  importer,
		materials: materials,
		renderer:  renderer,
	}
}

// Target returns the extension-less path of the image rendered for file.
func (opts Options) Target(file InputFile) string {
	outDir := opts.OutputDir
	if outDir == "" {
		outDir = DefaultOutputDir
	}
	return filepath.Join(opts.ProjectDir, outDir, file.Name())
}

// Run processes files in order. Each file is imported into a fresh
// container, optionally re-materialed, rendered and cleaned up before the
// next one starts. Errors are recorded per file and never abort the batch.
// Cancelling ctx stops the run before the next file; the remaining files are
// marked as Cancelled.
func (r *Runner) Run(ctx context.Context, files []InputFile, opts Options) *Summary {
	if opts.ContainerName == "" {
		opts.ContainerName = DefaultContainerName
	}

	start := time.Now()
	summary := &Summary{Results: make([]FileResult, len(files))}
	for idx, file := range files {
		if ctx.Err() != nil {
			r.logger.Warningf("batch cancelled; skipping %d remaining file(s)", len(files)-idx)
			for ; idx < len(files); idx++ {
				summary.Results[idx] = FileResult{File: files[idx], State: Cancelled, History: []State{Cancelled}}
			}
			break
		}

		summary.Results[idx] = r.processFile(ctx, file, opts, summary)
		if opts.OnFileDone != nil {
			opts.OnFileDone(summary.Results[idx])
		}
	}

	summary.Duration = time.Since(start)
	r.logger.Infof("processed %d file(s) in %s (%s)", len(files), summary.Duration, summary.Status())
	return summary
}

// A file that has started is always imported, rendered and cleaned up, so
// cancelling ctx does not reach the capabilities.
func (r *Runner) processFile(ctx context.Context, file InputFile, opts Options, summary *Summary) FileResult {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	res := FileResult{File: file}
	res.transition(Created)

	container := r.store.NewContainer(opts.ContainerName)
	summary.ContainersCreated++
	r.logger.Debugf("processing %q in container %q", file, container.Name)

	// Import
	ext := file.Ext()
	if err := r.store.Link(container); err != nil {
		res.ImportErr = &ImportError{File: file, Err: err}
		res.transition(ImportFailed)
	} else if !r.importer.Supports(ext) {
		r.logger.Warningf("Unknown Extension! %s", file.Name()+ext)
		res.ImportErr = &ImportError{File: file, Err: fmt.Errorf("%w: %q", ErrUnknownFormat, ext)}
		res.transition(Unknown)
	} else if err = r.safeImport(ctx, file, opts.Axes, container); err != nil {
		r.logger.Errorf("could not import %q: %v", file, err)
		res.ImportErr = &ImportError{File: file, Err: err}
		res.transition(ImportFailed)
	} else {
		res.transition(Imported)
	}
	res.Objects = len(container.Objects())

	// Material override
	res.MaterialApplied = r.applyMaterial(container.Objects(), opts.OverrideMaterial)
	if res.MaterialApplied {
		res.transition(MaterialApplied)
	} else {
		res.transition(MaterialSkipped)
	}

	// Render
	if res.ImportErr != nil && opts.SkipRenderOnImportFailure {
		r.logger.Infof("skipping render for %q", file)
		res.transition(RenderSkipped)
	} else if out, err := r.safeRender(ctx, opts.Target(file)); err != nil {
		r.logger.Errorf("could not render %q: %v", file, err)
		res.RenderErr = &RenderError{File: file, Err: err}
		res.transition(RenderFailed)
	} else {
		res.Output = out
		res.transition(Rendered)
	}

	// Cleanup
	if err := r.unlinkAndRemove(container); err != nil {
		res.CleanupErr = fmt.Errorf("cleanup %s: %w", file, err)
	} else {
		summary.ContainersRemoved++
	}
	purged := r.store.PurgeOrphans()
	summary.OrphansPurged += purged
	if purged != 0 {
		r.logger.Debugf("purged %d orphan collection(s)", purged)
	}
	res.transition(Cleaned)

	res.Duration = time.Since(start)
	return res
}

// Import file into container, converting importer panics into errors.
func (r *Runner) safeImport(ctx context.Context, file InputFile, axes types.AxisConvention, container *scene.Collection) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrImporterPanic, rec)
		}
	}()
	return r.importer.Import(ctx, file.Path, axes, container)
}

func (r *Runner) safeRender(ctx context.Context, target string) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrRendererPanic, rec)
		}
	}()
	return r.renderer.RenderStill(ctx, r.store.Scene(), target)
}

func (r *Runner) unlinkAndRemove(c *scene.Collection) error {
	if c.Users() > 0 {
		if err := r.store.Unlink(c); err != nil {
			return err
		}
	}
	return r.store.Remove(c)
}

// Resolve the override material and assign it to all objects. Returns false
// if no override was requested or the name could not be resolved.
func (r *Runner) applyMaterial(objects []*scene.Object, name string) bool {
	if name == "" {
		return false
	}

	mat, found := r.materials.Lookup(name)
	if !found {
		r.logger.Debugf("material %q not found; keeping imported materials", name)
		return false
	}

	for _, obj := range objects {
		obj.ActiveMaterial = mat
	}
	return true
}
