package material

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/achilleasa/batchrender/types"
	"github.com/spf13/afero"
)

func TestLibraryBuiltins(t *testing.T) {
	lib := NewLibrary()

	mat, ok := lib.Lookup("mirror")
	if !ok {
		t.Fatal("expected builtin material 'mirror' to be registered")
	}
	if mat.Kind != BxdfConductor {
		t.Fatalf("expected mirror to be a conductor; got %s", mat.Kind)
	}

	if lib.Default() == nil || lib.Default().Name != DefaultMaterialName {
		t.Fatal("expected library to provide a default material")
	}

	// Lookups are exact
	if _, ok = lib.Lookup("Mirror"); ok {
		t.Fatal("expected lookup to be case-sensitive")
	}
	if _, ok = lib.Lookup("None"); ok {
		t.Fatal("expected lookup of 'None' to fail")
	}
}

func TestLibraryDuplicates(t *testing.T) {
	lib := NewLibrary()
	err := lib.Add(&Material{Name: "red", Kind: BxdfDiffuse})
	if !errors.Is(err, ErrDuplicateMaterial) {
		t.Fatalf("expected ErrDuplicateMaterial; got %v", err)
	}
}

func TestLibraryLoadFile(t *testing.T) {
	payload := `
materials:
  - name: gold
    kind: conductor
    albedo: [1, 0.8, 0.3]
    roughness: 0.1
  - name: chalk
    albedo: [0.95]
  - name: lamp
    kind: emissive
    emission: [4, 4, 3]
    emission_scale: 2
`
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/materials.yaml", []byte(payload), 0644)

	lib := NewLibrary()
	if err := lib.LoadFile(fs, "/materials.yaml"); err != nil {
		t.Fatal(err)
	}

	gold, ok := lib.Lookup("gold")
	if !ok {
		t.Fatal("expected gold to be loaded")
	}
	if gold.Kind != BxdfConductor || !reflect.DeepEqual(gold.Albedo, types.Vec3{1, 0.8, 0.3}) {
		t.Fatalf("unexpected gold definition %+v", gold)
	}

	chalk, _ := lib.Lookup("chalk")
	if chalk.Kind != BxdfDiffuse || chalk.Albedo != (types.Vec3{0.95, 0.95, 0.95}) {
		t.Fatalf("unexpected chalk definition %+v", chalk)
	}

	lamp, _ := lib.Lookup("lamp")
	if exp := (types.Vec3{8, 8, 6}); lamp.Radiance() != exp {
		t.Fatalf("expected lamp radiance %v; got %v", exp, lamp.Radiance())
	}

	names := lib.Names()
	if len(names) != len(builtins())+3 {
		t.Fatalf("expected %d names; got %d", len(builtins())+3, len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("expected names to be sorted; got %v", names)
		}
	}
}

func TestLibraryLoadFileErrors(t *testing.T) {
	type spec struct {
		payload string
		expErr  string
	}
	specs := []spec{
		{"materials:\n  - name: x\n    kind: plasma\n", "unknown bxdf type"},
		{"materials:\n  - name: x\n    albedo: [1, 2]\n", "expected 1 or 3 components"},
		{"materials:\n  - name: glass\n    kind: dielectric\n", "positive IOR"},
		{"materials:\n  - kind: diffuse\n", "missing name"},
	}

	for idx, s := range specs {
		fs := afero.NewMemMapFs()
		afero.WriteFile(fs, "/m.yaml", []byte(s.payload), 0644)
		err := NewLibrary().LoadFile(fs, "/m.yaml")
		if err == nil || !strings.Contains(err.Error(), s.expErr) {
			t.Fatalf("[spec %d] expected error containing %q; got %v", idx, s.expErr, err)
		}
	}
}
