package material

import (
	"fmt"
	"strings"
)

// BxdfType represents the surface types supported by the renderer.
type BxdfType int

const (
	bxdfInvalid BxdfType = iota
	BxdfEmissive
	BxdfDiffuse
	BxdfConductor
	BxdfDielectric
)

// Lookup bxdf type by its name.
func bxdfTypeFromName(name string) BxdfType {
	switch strings.ToLower(name) {
	case "emissive":
		return BxdfEmissive
	case "diffuse", "":
		return BxdfDiffuse
	case "conductor":
		return BxdfConductor
	case "dielectric":
		return BxdfDielectric
	}

	return bxdfInvalid
}

func (t BxdfType) String() string {
	switch t {
	case BxdfEmissive:
		return "emissive"
	case BxdfDiffuse:
		return "diffuse"
	case BxdfConductor:
		return "conductor"
	case BxdfDielectric:
		return "dielectric"
	}

	return "invalid"
}

func (t BxdfType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *BxdfType) UnmarshalText(text []byte) error {
	parsed := bxdfTypeFromName(string(text))
	if parsed == bxdfInvalid {
		return fmt.Errorf("material: unknown bxdf type %q", string(text))
	}
	*t = parsed
	return nil
}
