// Package batch sequences the import, material override, render and cleanup
// steps for a list of model files. The runner never touches files, formats or
// pixels itself; it drives the capabilities injected into it.
package batch

import (
	"context"

	"github.com/achilleasa/batchrender/asset/material"
	"github.com/achilleasa/batchrender/asset/scene"
	"github.com/achilleasa/batchrender/types"
)

// Importer loads the objects of a model file into a collection.
type Importer interface {
	// Import the file at path, converting its geometry from the given axis
	// convention, and link the resulting objects into dst.
	Import(ctx context.Context, path string, axes types.AxisConvention, dst *scene.Collection) error

	// Returns true if the importer can handle files with the given extension.
	Supports(ext string) bool
}

// MaterialLookup resolves material names.
type MaterialLookup interface {
	Lookup(name string) (*material.Material, bool)
}

// Renderer renders the linked contents of a scene to a still image.
type Renderer interface {
	// Render sc and write the image to target plus a format-specific
	// extension. RenderStill returns the path of the written image.
	RenderStill(ctx context.Context, sc *scene.Scene, target string) (string, error)
}

// ContainerStore owns the collection registry and the active scene.
type ContainerStore interface {
	NewContainer(name string) *scene.Collection
	Link(c *scene.Collection) error
	Unlink(c *scene.Collection) error
	Remove(c *scene.Collection) error
	PurgeOrphans() int
	Scene() *scene.Scene
}
