package writer

import (
	"context"
	"testing"

	"github.com/achilleasa/batchrender/asset/material"
	"github.com/achilleasa/batchrender/asset/scene"
	"github.com/achilleasa/batchrender/asset/scene/reader"
	"github.com/achilleasa/batchrender/types"
	"github.com/spf13/afero"
)

func TestArchiveRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()

	mesh := scene.NewMesh("tri")
	mesh.Add(scene.NewFlatTriangle(types.Vec3{0, 0, 0}, types.Vec3{1, 0, 0}, types.Vec3{0, 1, 0}))
	mat := &material.Material{Name: "gold", Kind: material.BxdfConductor, Albedo: types.Vec3{1, 0.8, 0.3}, Roughness: 0.2}

	objects := []*scene.Object{
		scene.NewObject("tri", mesh, mat),
		scene.NewObject("bare", mesh, nil),
	}

	fs.MkdirAll("/scenes", 0755)
	if err := WriteArchive(fs, objects, "/scenes/out.zip"); err != nil {
		t.Fatal(err)
	}

	// Archives are imported as is regardless of the requested axis convention
	reg := reader.NewRegistry(fs)
	dst := &scene.Collection{Name: "dst"}
	axes := types.AxisConvention{Up: types.AxisZ, Forward: types.AxisY}
	if err := reg.Import(context.Background(), "/scenes/OUT.zip", axes, dst); err == nil {
		t.Fatal("expected import of a missing file to fail")
	}
	if err := reg.Import(context.Background(), "/scenes/out.zip", axes, dst); err != nil {
		t.Fatal(err)
	}

	got := dst.Objects()
	if len(got) != 2 {
		t.Fatalf("expected 2 objects; got %d", len(got))
	}
	if got[0].Name != "tri" || got[0].Mesh.Name != "tri" {
		t.Fatalf("unexpected object/mesh names %q/%q", got[0].Name, got[0].Mesh.Name)
	}
	if got[0].Mesh.Triangles[0] != mesh.Triangles[0] {
		t.Fatalf("expected triangle %v; got %v", mesh.Triangles[0], got[0].Mesh.Triangles[0])
	}
	if got[0].ActiveMaterial == nil || *got[0].ActiveMaterial != *mat {
		t.Fatalf("expected material %+v; got %+v", mat, got[0].ActiveMaterial)
	}
	if got[1].ActiveMaterial != nil {
		t.Fatalf("expected second object to have no material; got %v", got[1].ActiveMaterial)
	}
}
