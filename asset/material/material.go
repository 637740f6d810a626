package material

import (
	"fmt"

	"github.com/achilleasa/batchrender/types"
)

// Material describes how a surface interacts with light.
type Material struct {
	Name string
	Kind BxdfType

	// Diffuse reflectance or specular tint depending on Kind.
	Albedo types.Vec3

	// Emitted radiance and scaler for emissive materials.
	Emission      types.Vec3
	EmissionScale float32

	Roughness float32
	IOR       float32
}

func (m *Material) String() string {
	return fmt.Sprintf("%s(%s)", m.Kind, m.Name)
}

// Radiance returns the scaled emitted radiance; zero for non-emissive materials.
func (m *Material) Radiance() types.Vec3 {
	if m.Kind != BxdfEmissive {
		return types.Vec3{}
	}
	scale := m.EmissionScale
	if scale == 0 {
		scale = 1
	}
	return m.Emission.Mul(scale)
}

// Clone returns a copy of the material with a different name.
func (m *Material) Clone(name string) *Material {
	c := *m
	c.Name = name
	return &c
}

// Validate checks the material definition for consistency.
func (m *Material) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("material: missing name")
	}
	if m.Kind == bxdfInvalid {
		return fmt.Errorf("material %q: invalid bxdf type", m.Name)
	}
	if m.Kind == BxdfDielectric && m.IOR <= 0 {
		return fmt.Errorf("material %q: dielectric materials require a positive IOR", m.Name)
	}
	if m.Roughness < 0 || m.Roughness > 1 {
		return fmt.Errorf("material %q: roughness must be in [0, 1]; got %v", m.Name, m.Roughness)
	}
	return nil
}
