package cmd

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/achilleasa/batchrender/asset/compiler"
	"github.com/achilleasa/batchrender/asset/material"
	"github.com/achilleasa/batchrender/asset/scene"
	"github.com/achilleasa/batchrender/asset/scene/reader"
	"github.com/achilleasa/batchrender/asset/scene/writer"
	"github.com/achilleasa/batchrender/config"
	"github.com/achilleasa/batchrender/types"
	"github.com/urfave/cli"
)

// Import models and write them as native scene archives.
func CompileScene(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() == 0 {
		return errors.New("missing model file argument")
	}

	axes, err := axesFromFlags(ctx)
	if err != nil {
		return err
	}

	registry := reader.NewRegistry(appFs)
	for _, arg := range ctx.Args() {
		sceneFile, err := config.ExpandPath(arg)
		if err != nil {
			return err
		}

		ext := filepath.Ext(sceneFile)
		if !registry.Supports(ext) || strings.EqualFold(ext, ".zip") {
			logger.Warningf("skipping unsupported file %s", sceneFile)
			continue
		}

		logger.Noticef("parsing and compiling scene: %s", sceneFile)
		doc, err := importScene(registry, sceneFile, axes)
		if err != nil {
			return err
		}

		if err = displaySceneStats(doc.Scene()); err != nil {
			return err
		}

		zipFile := strings.TrimSuffix(sceneFile, ext) + ".zip"
		if err = writer.WriteArchive(appFs, doc.Scene().Objects(), zipFile); err != nil {
			return err
		}
		logger.Noticef("wrote scene archive: %s", zipFile)
	}

	return nil
}

// Display compiled scene info.
func ShowSceneInfo(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing model file argument")
	}

	axes, err := axesFromFlags(ctx)
	if err != nil {
		return err
	}

	sceneFile, err := config.ExpandPath(ctx.Args().First())
	if err != nil {
		return err
	}

	doc, err := importScene(reader.NewRegistry(appFs), sceneFile, axes)
	if err != nil {
		return err
	}

	return displaySceneStats(doc.Scene())
}

// Import a model file into a new document.
func importScene(registry *reader.Registry, sceneFile string, axes types.AxisConvention) (*scene.Document, error) {
	doc := scene.NewDocument()
	c := doc.NewContainer(filepath.Base(sceneFile))
	if err := doc.Link(c); err != nil {
		return nil, err
	}

	if err := registry.Import(context.Background(), sceneFile, axes, c); err != nil {
		return nil, err
	}
	return doc, nil
}

func displaySceneStats(sc *scene.Scene) error {
	optimized, err := compiler.Compile(sc, material.NewLibrary().Default())
	if err != nil {
		return err
	}

	logger.Noticef("scene information:\n%s", optimized.Stats())
	return nil
}

func axesFromFlags(ctx *cli.Context) (types.AxisConvention, error) {
	up, err := types.ParseAxis(ctx.String("up"))
	if err != nil {
		return types.AxisConvention{}, err
	}
	forward, err := types.ParseAxis(ctx.String("forward"))
	if err != nil {
		return types.AxisConvention{}, err
	}

	axes := types.AxisConvention{Up: up, Forward: forward}
	return axes, axes.Validate()
}
