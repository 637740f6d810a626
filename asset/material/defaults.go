package material

import "github.com/achilleasa/batchrender/types"

var (
	DefaultRoughness      float32 = 0.1
	DefaultReflectance            = types.Vec3{0.7, 0.7, 0.7}
	DefaultSpecularity            = types.Vec3{1.0, 1.0, 1.0}
	DefaultRadiance               = types.Vec3{1.0, 1.0, 1.0}
	DefaultRadianceScaler float32 = 1.0
	DefaultIntIOR         float32 = 1.5
)

// The name of the material assigned to geometry that does not reference one.
const DefaultMaterialName = "default"

// Built-in materials that are always available in a new Library.
func builtins() []*Material {
	return []*Material{
		{Name: DefaultMaterialName, Kind: BxdfDiffuse, Albedo: DefaultReflectance},
		{Name: "white", Kind: BxdfDiffuse, Albedo: types.Vec3{0.9, 0.9, 0.9}},
		{Name: "red", Kind: BxdfDiffuse, Albedo: types.Vec3{0.8, 0.1, 0.1}},
		{Name: "green", Kind: BxdfDiffuse, Albedo: types.Vec3{0.1, 0.8, 0.1}},
		{Name: "blue", Kind: BxdfDiffuse, Albedo: types.Vec3{0.1, 0.1, 0.8}},
		{Name: "mirror", Kind: BxdfConductor, Albedo: DefaultSpecularity, Roughness: 0},
		{Name: "light", Kind: BxdfEmissive, Emission: DefaultRadiance, EmissionScale: DefaultRadianceScaler},
	}
}
