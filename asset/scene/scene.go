package scene

import "github.com/achilleasa/batchrender/types"

// Scene is the renderable view of a document. Only objects from collections
// linked to the scene are rendered.
type Scene struct {
	Name string

	// An explicit camera. If nil, renderers frame the scene contents automatically.
	Camera *Camera

	// Background (world) color.
	Background types.Vec3

	children []*Collection
}

// Get the collections linked to the scene.
func (s *Scene) Children() []*Collection {
	return s.children
}

// Get all objects from linked collections.
func (s *Scene) Objects() []*Object {
	var objects []*Object
	for _, c := range s.children {
		objects = append(objects, c.Objects()...)
	}
	return objects
}

// Get the bbox enclosing all linked collections.
func (s *Scene) BBox() types.BBox {
	bbox := types.EmptyBBox()
	for _, c := range s.children {
		if cb := c.BBox(); !cb.IsEmpty() {
			bbox = bbox.Union(cb)
		}
	}
	return bbox
}

func (s *Scene) indexOf(c *Collection) int {
	for idx, child := range s.children {
		if child == c {
			return idx
		}
	}
	return -1
}
