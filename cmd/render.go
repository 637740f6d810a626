package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/achilleasa/batchrender/asset/material"
	"github.com/achilleasa/batchrender/asset/scene"
	"github.com/achilleasa/batchrender/asset/scene/reader"
	"github.com/achilleasa/batchrender/batch"
	"github.com/achilleasa/batchrender/config"
	"github.com/achilleasa/batchrender/renderer"
	"github.com/achilleasa/batchrender/types"
	"github.com/spf13/afero"
	"github.com/urfave/cli"
)

// The filesystem used by all commands.
var appFs = afero.NewOsFs()

var (
	ErrNoInputFiles   = errors.New("no input files to render")
	ErrPartialFailure = errors.New("one or more files failed")
)

// Render every selected model file in a directory.
func RenderBatch(ctx *cli.Context) error {
	setupLogging(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	lib, err := loadMaterialLibrary(cfg.MaterialLibrary)
	if err != nil {
		return err
	}

	registry := reader.NewRegistry(appFs)
	files, err := inputFiles(ctx, registry)
	if err != nil {
		return err
	}

	projectDir, err := config.ExpandPath(ctx.String("project"))
	if err != nil {
		return err
	}

	bg, err := cfg.BackgroundColor()
	if err != nil {
		return err
	}
	doc := scene.NewDocument()
	doc.Scene().Background = bg

	sr, err := renderer.NewStillRenderer(appFs, lib.Default(), cfg.RenderOptions())
	if err != nil {
		return err
	}
	defer sr.Close()

	opts := batch.Options{
		OverrideMaterial:          cfg.Material,
		Axes:                      cfg.Axes,
		SkipRenderOnImportFailure: cfg.SkipFailed,
		ProjectDir:                projectDir,
		OutputDir:                 cfg.OutputDir,
		ContainerName:             batch.DefaultContainerName,
		OnFileDone: func(res batch.FileResult) {
			if res.State == batch.Cleaned && res.Output != "" {
				logger.Noticef("rendered %s -> %s (%s)", res.File, res.Output, res.Duration)
				logger.Infof("frame statistics\n%s", sr.Stats().Table())
			}
		},
	}

	logger.Noticef("rendering %d file(s) into %s (%s)", len(files), cfg.OutputPath(projectDir), cfg.Axes)

	// Interrupting the batch stops it after the current file.
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner := batch.NewRunner(doc, registry, lib, sr)
	summary := runner.Run(runCtx, files, opts)
	logger.Noticef("batch summary\n%s", summary.Table())

	if summary.Status() == batch.PartialFailure {
		return fmt.Errorf("%w: %v", ErrPartialFailure, summary.Err())
	}
	return nil
}

// Load the config file (if specified) and apply flag overrides.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if cfgFile := ctx.String("config"); cfgFile != "" {
		var err error
		if cfg, err = config.Load(appFs, cfgFile); err != nil {
			return nil, err
		}
	}

	if ctx.IsSet("material") {
		cfg.Material = ctx.String("material")
	}
	if ctx.IsSet("output-dir") {
		cfg.OutputDir = ctx.String("output-dir")
	}
	if ctx.IsSet("skip-failed") {
		cfg.SkipFailed = ctx.Bool("skip-failed")
	}
	if ctx.IsSet("up") {
		axis, err := types.ParseAxis(ctx.String("up"))
		if err != nil {
			return nil, err
		}
		cfg.Axes.Up = axis
	}
	if ctx.IsSet("forward") {
		axis, err := types.ParseAxis(ctx.String("forward"))
		if err != nil {
			return nil, err
		}
		cfg.Axes.Forward = axis
	}
	if ctx.IsSet("width") {
		cfg.Render.Width = uint32(ctx.Int("width"))
	}
	if ctx.IsSet("height") {
		cfg.Render.Height = uint32(ctx.Int("height"))
	}
	if ctx.IsSet("spp") {
		cfg.Render.SamplesPerPixel = uint32(ctx.Int("spp"))
	}
	if ctx.IsSet("exposure") {
		cfg.Render.Exposure = float32(ctx.Float64("exposure"))
	}
	if ctx.IsSet("supersample") {
		cfg.Render.Supersample = uint32(ctx.Int("supersample"))
	}
	if ctx.IsSet("workers") {
		cfg.Render.Workers = ctx.Int("workers")
	}
	if ctx.IsSet("format") {
		format, err := renderer.ParseImageFormat(ctx.String("format"))
		if err != nil {
			return nil, err
		}
		cfg.Render.Format = format
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Create the material library, optionally extended with the materials
// defined in path.
func loadMaterialLibrary(path string) (*material.Library, error) {
	lib := material.NewLibrary()
	if path == "" {
		return lib, nil
	}

	path, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	if err = lib.LoadFile(appFs, path); err != nil {
		return nil, err
	}
	return lib, nil
}

// Collect the files selected by the command arguments. Without arguments,
// all supported files in the input dir are selected.
func inputFiles(ctx *cli.Context, registry *reader.Registry) ([]batch.InputFile, error) {
	dir, err := config.ExpandPath(ctx.String("dir"))
	if err != nil {
		return nil, err
	}

	var files []batch.InputFile
	if ctx.NArg() == 0 {
		if files, err = batch.Discover(appFs, dir, registry.Supports); err != nil {
			return nil, err
		}
	} else {
		for _, arg := range ctx.Args() {
			path, err := config.ExpandPath(arg)
			if err != nil {
				return nil, err
			}
			if !filepath.IsAbs(path) {
				path = filepath.Join(dir, path)
			}
			files = append(files, batch.InputFile{Path: path})
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %q", ErrNoInputFiles, dir)
	}
	return files, nil
}
