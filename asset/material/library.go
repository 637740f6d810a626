package material

import (
	"errors"
	"fmt"
	"sort"

	"github.com/achilleasa/batchrender/asset"
	"github.com/achilleasa/batchrender/log"
	"github.com/achilleasa/batchrender/types"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

var ErrDuplicateMaterial = errors.New("material: duplicate material name")

// Library is the global registry of named materials. Lookups are exact-name
// matches.
type Library struct {
	logger log.Logger

	materials []*Material
	byName    map[string]*Material
}

// Create a new library pre-populated with the built-in materials.
func NewLibrary() *Library {
	lib := &Library{
		logger: log.New("material library"),
		byName: make(map[string]*Material),
	}
	for _, mat := range builtins() {
		lib.Add(mat)
	}
	return lib
}

// Add a material to the library.
func (lib *Library) Add(mat *Material) error {
	if err := mat.Validate(); err != nil {
		return err
	}
	if _, exists := lib.byName[mat.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateMaterial, mat.Name)
	}
	lib.materials = append(lib.materials, mat)
	lib.byName[mat.Name] = mat
	return nil
}

// Lookup a material by name.
func (lib *Library) Lookup(name string) (*Material, bool) {
	mat, ok := lib.byName[name]
	return mat, ok
}

// Default returns the material assigned to geometry without one.
func (lib *Library) Default() *Material {
	return lib.byName[DefaultMaterialName]
}

// Names returns the sorted list of registered material names.
func (lib *Library) Names() []string {
	names := make([]string, 0, len(lib.materials))
	for _, mat := range lib.materials {
		names = append(names, mat.Name)
	}
	sort.Strings(names)
	return names
}

// Materials returns the registered materials in registration order.
func (lib *Library) Materials() []*Material {
	return append([]*Material(nil), lib.materials...)
}

type libraryFile struct {
	Materials []materialDef `yaml:"materials"`
}

type materialDef struct {
	Name          string    `yaml:"name"`
	Kind          BxdfType  `yaml:"kind"`
	Albedo        []float32 `yaml:"albedo"`
	Emission      []float32 `yaml:"emission"`
	EmissionScale float32   `yaml:"emission_scale"`
	Roughness     float32   `yaml:"roughness"`
	IOR           float32   `yaml:"ior"`
}

// Load material definitions from a yaml file and add them to the library.
func (lib *Library) LoadFile(fs afero.Fs, path string) error {
	res, err := asset.NewResource(fs, path, nil)
	if err != nil {
		return err
	}
	defer res.Close()

	var def libraryFile
	if err = yaml.NewDecoder(res).Decode(&def); err != nil {
		return fmt.Errorf("material: could not parse %s: %w", res.Path(), err)
	}

	for idx, md := range def.Materials {
		mat := &Material{
			Name:          md.Name,
			Kind:          md.Kind,
			EmissionScale: md.EmissionScale,
			Roughness:     md.Roughness,
			IOR:           md.IOR,
		}
		if mat.Kind == bxdfInvalid {
			mat.Kind = BxdfDiffuse
		}
		if mat.Albedo, err = parseColor(md.Albedo, DefaultReflectance); err != nil {
			return fmt.Errorf("material: %s: entry %d (%q): albedo: %w", res.Path(), idx, md.Name, err)
		}
		if mat.Emission, err = parseColor(md.Emission, DefaultRadiance); err != nil {
			return fmt.Errorf("material: %s: entry %d (%q): emission: %w", res.Path(), idx, md.Name, err)
		}
		if err = lib.Add(mat); err != nil {
			return fmt.Errorf("material: %s: entry %d: %w", res.Path(), idx, err)
		}
	}

	lib.logger.Infof("loaded %d material(s) from %q", len(def.Materials), res.Path())
	return nil
}

func parseColor(in []float32, def types.Vec3) (types.Vec3, error) {
	switch len(in) {
	case 0:
		return def, nil
	case 1:
		return types.Vec3{in[0], in[0], in[0]}, nil
	case 3:
		return types.Vec3{in[0], in[1], in[2]}, nil
	}
	return types.Vec3{}, fmt.Errorf("expected 1 or 3 components; got %d", len(in))
}
