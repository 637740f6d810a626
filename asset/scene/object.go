package scene

import (
	"github.com/achilleasa/batchrender/asset/material"
	"github.com/achilleasa/batchrender/types"
)

// A triangle primitive with per-vertex normals.
type Triangle struct {
	Vertices [3]types.Vec3
	Normals  [3]types.Vec3
}

// Create a triangle from its vertices using the face normal for all vertices.
func NewFlatTriangle(v0, v1, v2 types.Vec3) Triangle {
	n := v1.Sub(v0).Cross(v2.Sub(v0)).Normalize()
	return Triangle{
		Vertices: [3]types.Vec3{v0, v1, v2},
		Normals:  [3]types.Vec3{n, n, n},
	}
}

// Get the triangle AABB.
func (t *Triangle) BBox() types.BBox {
	return types.EmptyBBox().Extend(t.Vertices[0]).Extend(t.Vertices[1]).Extend(t.Vertices[2])
}

// Get the triangle centroid.
func (t *Triangle) Center() types.Vec3 {
	return t.Vertices[0].Add(t.Vertices[1]).Add(t.Vertices[2]).Mul(1.0 / 3.0)
}

// Transform the triangle vertices and normals by a rotation matrix.
func (t *Triangle) Transform(m types.Mat3) {
	for i := 0; i < 3; i++ {
		t.Vertices[i] = m.Mul3x1(t.Vertices[i])
		t.Normals[i] = m.Mul3x1(t.Normals[i]).Normalize()
	}
}

// A mesh is constructed by a list of triangles.
type Mesh struct {
	Name      string
	Triangles []Triangle

	bbox            types.BBox
	bboxNeedsUpdate bool
}

// Create a new mesh.
func NewMesh(name string) *Mesh {
	return &Mesh{
		Name:            name,
		Triangles:       make([]Triangle, 0),
		bboxNeedsUpdate: true,
	}
}

// Append triangles to the mesh.
func (m *Mesh) Add(tris ...Triangle) {
	m.Triangles = append(m.Triangles, tris...)
	m.bboxNeedsUpdate = true
}

// Apply a rotation to all mesh triangles.
func (m *Mesh) Transform(mat types.Mat3) {
	for idx := range m.Triangles {
		m.Triangles[idx].Transform(mat)
	}
	m.bboxNeedsUpdate = true
}

// Get mesh bounding box.
func (m *Mesh) BBox() types.BBox {
	if m.bboxNeedsUpdate {
		m.bbox = types.EmptyBBox()
		for idx := range m.Triangles {
			m.bbox = m.bbox.Union(m.Triangles[idx].BBox())
		}
		m.bboxNeedsUpdate = false
	}

	return m.bbox
}

// An Object places a mesh in the scene and assigns it a material.
type Object struct {
	Name string
	Mesh *Mesh

	// The material in the object's active slot. Objects without a material
	// are rendered using the library default.
	ActiveMaterial *material.Material
}

// Create a new object for a mesh.
func NewObject(name string, mesh *Mesh, mat *material.Material) *Object {
	return &Object{
		Name:           name,
		Mesh:           mesh,
		ActiveMaterial: mat,
	}
}
