package scene

import "github.com/achilleasa/batchrender/types"

// A Collection groups objects so they can be linked into (or unlinked from)
// a scene as a unit.
type Collection struct {
	Name string

	objects []*Object

	// The number of parents that reference this collection.
	users int
}

// Link an object to the collection.
func (c *Collection) Link(objects ...*Object) {
	c.objects = append(c.objects, objects...)
}

// Get the objects linked to the collection.
func (c *Collection) Objects() []*Object {
	return c.objects
}

// Get the number of parents that reference this collection.
func (c *Collection) Users() int {
	return c.users
}

// Get the total number of triangles for all collection objects.
func (c *Collection) TriangleCount() int {
	count := 0
	for _, obj := range c.objects {
		if obj.Mesh != nil {
			count += len(obj.Mesh.Triangles)
		}
	}
	return count
}

// Get the bbox enclosing all collection objects.
func (c *Collection) BBox() types.BBox {
	bbox := types.EmptyBBox()
	for _, obj := range c.objects {
		if obj.Mesh != nil && len(obj.Mesh.Triangles) != 0 {
			bbox = bbox.Union(obj.Mesh.BBox())
		}
	}
	return bbox
}
