package scene

import "github.com/achilleasa/batchrender/asset/material"

// The current version of the native scene archive format.
const ArchiveVersion = 1

// Archive is the serializable form of a set of objects. Geometry is stored
// in the internal axis convention (+Y up, -Z forward).
type Archive struct {
	Version int
	Objects []ArchivedObject
}

// An archived object together with its material definition.
type ArchivedObject struct {
	Name      string
	MeshName  string
	Triangles []Triangle
	Material  *material.Material
}

// Build an archive for a set of objects.
func NewArchive(objects []*Object) *Archive {
	ar := &Archive{Version: ArchiveVersion}
	for _, obj := range objects {
		ao := ArchivedObject{
			Name:     obj.Name,
			Material: obj.ActiveMaterial,
		}
		if obj.Mesh != nil {
			ao.MeshName = obj.Mesh.Name
			ao.Triangles = obj.Mesh.Triangles
		}
		ar.Objects = append(ar.Objects, ao)
	}
	return ar
}

// Restore the archived objects.
func (ar *Archive) ToObjects() []*Object {
	objects := make([]*Object, 0, len(ar.Objects))
	for _, ao := range ar.Objects {
		mesh := NewMesh(ao.MeshName)
		mesh.Add(ao.Triangles...)
		objects = append(objects, NewObject(ao.Name, mesh, ao.Material))
	}
	return objects
}
