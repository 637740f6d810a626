package cpu

import (
	"math"
	"math/rand"

	"github.com/achilleasa/batchrender/asset/material"
	"github.com/achilleasa/batchrender/asset/scene"
	"github.com/achilleasa/batchrender/types"
	"github.com/chewxy/math32"
)

const (
	// Max number of specular bounces per path.
	maxBounces = 4

	// Constant ambient term applied to diffuse surfaces.
	ambientIntensity float32 = 0.15

	// Intensity of the directional key light.
	keyLightIntensity float32 = 0.85
)

// Lighting state derived from the active camera.
type lightRig struct {
	// Normalized direction towards the key light.
	keyDir types.Vec3
}

// Place a key light above and to the left of the camera.
func newLightRig(cam *scene.Camera) lightRig {
	fwd := cam.LookAt.Sub(cam.Position).Normalize()
	right := fwd.Cross(cam.Up).Normalize()
	up := right.Cross(fwd)

	return lightRig{
		keyDir: fwd.Mul(-1).Add(up.Mul(0.8)).Sub(right.Mul(0.5)).Normalize(),
	}
}

type shader struct {
	sc  *scene.OptimizedScene
	rig lightRig
	rng *rand.Rand
}

// Estimate the radiance arriving along r.
func (s *shader) radiance(r ray, depth int) types.Vec3 {
	if depth > maxBounces {
		return types.Vec3{}
	}

	h, found := intersectScene(s.sc, &r, math.MaxFloat32, false)
	if !found {
		return s.sc.Background
	}

	tri := &s.sc.Triangles[h.triIndex]
	mat := s.sc.Materials[s.sc.MaterialIndex[h.triIndex]]

	hitPoint := r.origin.Add(r.dir.Mul(h.dist))
	normal := interpolateNormal(tri, h.u, h.v)

	// Shading normals always face the incoming ray except for dielectrics
	// that need to know whether the ray enters or exits the surface.
	entering := normal.Dot(r.dir) < 0
	facing := normal
	if !entering {
		facing = normal.Mul(-1)
	}

	switch mat.Kind {
	case material.BxdfEmissive:
		return mat.Radiance()
	case material.BxdfConductor:
		dir := s.perturb(reflect(r.dir, facing), mat.Roughness)
		next := newRay(hitPoint.Add(facing.Mul(rayEpsilon)), dir)
		return mat.Albedo.MulVec(s.radiance(next, depth+1))
	case material.BxdfDielectric:
		return mat.Albedo.MulVec(s.refract(r, hitPoint, facing, entering, mat.IOR, depth))
	default:
		return s.diffuse(hitPoint, facing, mat)
	}
}

// Direct lighting for a lambertian surface.
func (s *shader) diffuse(point, normal types.Vec3, mat *material.Material) types.Vec3 {
	origin := point.Add(normal.Mul(rayEpsilon))

	light := types.Vec3{ambientIntensity, ambientIntensity, ambientIntensity}
	light = light.Add(s.sc.Background.Mul(0.5))

	if nDotL := normal.Dot(s.rig.keyDir); nDotL > 0 {
		shadowRay := newRay(origin, s.rig.keyDir)
		if _, occluded := intersectScene(s.sc, &shadowRay, math.MaxFloat32, true); !occluded {
			light = light.Add(types.Vec3{1, 1, 1}.Mul(keyLightIntensity * nDotL))
		}
	}

	light = light.Add(s.sampleEmissive(origin, normal))
	return mat.Albedo.MulVec(light)
}

// Sample a random point on a random emissive triangle.
func (s *shader) sampleEmissive(origin, normal types.Vec3) types.Vec3 {
	emissiveCount := len(s.sc.EmissiveIndices)
	if emissiveCount == 0 {
		return types.Vec3{}
	}

	triIndex := s.sc.EmissiveIndices[s.rng.Intn(emissiveCount)]
	tri := &s.sc.Triangles[triIndex]
	mat := s.sc.Materials[s.sc.MaterialIndex[triIndex]]

	// Uniform barycentric sampling
	r1 := math32.Sqrt(s.rng.Float32())
	r2 := s.rng.Float32()
	point := tri.Vertices[0].Mul(1 - r1).
		Add(tri.Vertices[1].Mul(r1 * (1 - r2))).
		Add(tri.Vertices[2].Mul(r1 * r2))

	toLight := point.Sub(origin)
	dist := toLight.Len()
	if dist < rayEpsilon {
		return types.Vec3{}
	}
	dir := toLight.Mul(1 / dist)

	cross := tri.Vertices[1].Sub(tri.Vertices[0]).Cross(tri.Vertices[2].Sub(tri.Vertices[0]))
	area := 0.5 * cross.Len()
	cosSurface := normal.Dot(dir)
	cosLight := math32.Abs(cross.Normalize().Dot(dir))
	if cosSurface <= 0 || cosLight <= 0 {
		return types.Vec3{}
	}

	shadowRay := newRay(origin, dir)
	if h, occluded := intersectScene(s.sc, &shadowRay, dist-rayEpsilon, true); occluded && h.triIndex != triIndex {
		return types.Vec3{}
	}

	weight := cosSurface * cosLight * area * float32(emissiveCount) / (math32.Pi * dist * dist)
	return mat.Radiance().Mul(weight)
}

// Pick between reflection and refraction using Schlick's approximation.
func (s *shader) refract(r ray, point, facing types.Vec3, entering bool, ior float32, depth int) types.Vec3 {
	eta := ior
	if entering {
		eta = 1 / ior
	}

	cosI := -facing.Dot(r.dir)
	k := 1 - eta*eta*(1-cosI*cosI)

	r0 := (1 - ior) / (1 + ior)
	r0 *= r0
	fresnel := r0 + (1-r0)*math32.Pow(1-cosI, 5)

	if k < 0 || s.rng.Float32() < fresnel {
		next := newRay(point.Add(facing.Mul(rayEpsilon)), reflect(r.dir, facing))
		return s.radiance(next, depth+1)
	}

	dir := r.dir.Mul(eta).Add(facing.Mul(eta*cosI - math32.Sqrt(k))).Normalize()
	next := newRay(point.Sub(facing.Mul(rayEpsilon)), dir)
	return s.radiance(next, depth+1)
}

// Jitter a direction by a random offset scaled by roughness.
func (s *shader) perturb(dir types.Vec3, roughness float32) types.Vec3 {
	if roughness <= 0 {
		return dir
	}
	offset := types.Vec3{
		s.rng.Float32()*2 - 1,
		s.rng.Float32()*2 - 1,
		s.rng.Float32()*2 - 1,
	}
	return dir.Add(offset.Mul(roughness)).Normalize()
}

func reflect(dir, normal types.Vec3) types.Vec3 {
	return dir.Sub(normal.Mul(2 * dir.Dot(normal)))
}

func interpolateNormal(tri *scene.Triangle, u, v float32) types.Vec3 {
	n := tri.Normals[0].Mul(1 - u - v).Add(tri.Normals[1].Mul(u)).Add(tri.Normals[2].Mul(v)).Normalize()
	if n == (types.Vec3{}) {
		e1 := tri.Vertices[1].Sub(tri.Vertices[0])
		e2 := tri.Vertices[2].Sub(tri.Vertices[0])
		n = e1.Cross(e2).Normalize()
	}
	return n
}
