package scene

import (
	"fmt"

	"github.com/achilleasa/batchrender/types"
	"github.com/chewxy/math32"
)

const (
	// Default vertical field of view in degrees.
	DefaultFOV float32 = 45.0

	// Elevation (in radians) used when framing the scene contents.
	autoFrameElevation float32 = 0.35

	// Extra distance so framed objects do not touch the image borders.
	autoFramePadding float32 = 1.15
)

// Stores the ray directions at the four corners of the camera frustrum. It is
// used as a shortcut for generating per pixel rays via interpolation of the
// corner rays.
type Frustrum [4]types.Vec3

func (fr Frustrum) String() string {
	return fmt.Sprintf(
		"Frustrum Rays:\nTL : (%3.3f, %3.3f, %3.3f)\nTR : (%3.3f, %3.3f, %3.3f)\nBL : (%3.3f, %3.3f, %3.3f)\nBR : (%3.3f, %3.3f, %3.3f)",
		fr[0][0], fr[0][1], fr[0][2],
		fr[1][0], fr[1][1], fr[1][2],
		fr[2][0], fr[2][1], fr[2][2],
		fr[3][0], fr[3][1], fr[3][2],
	)
}

// The camera type controls the scene camera.
type Camera struct {
	Position types.Vec3
	LookAt   types.Vec3
	Up       types.Vec3

	ViewMat  types.Mat4
	ProjMat  types.Mat4
	Frustrum Frustrum

	// Camera FOV in degrees.
	FOV float32
}

func NewCamera(fov float32) *Camera {
	return &Camera{
		ViewMat:  types.Ident4(),
		ProjMat:  types.Ident4(),
		Position: types.Vec3{0, 0, 0},
		LookAt:   types.Vec3{0, 0, -1},
		Up:       types.Vec3{0, 1, 0},
		FOV:      fov,
	}
}

// Create a camera that frames the given bbox. The camera looks towards -Z
// from a slightly elevated position in front of the bbox. An empty bbox
// yields a camera at the origin.
func FrameBBox(bbox types.BBox, fov float32) *Camera {
	cam := NewCamera(fov)
	if bbox.IsEmpty() {
		return cam
	}

	center := bbox.Center()
	radius := bbox.Size().Len() * 0.5
	if radius < 1e-4 {
		radius = 1
	}

	dist := autoFramePadding * radius / math32.Sin(fov*math32.Pi/360.0)
	dir := types.QuatFromAxisAngle(types.Vec3{1, 0, 0}, -autoFrameElevation).Rotate(types.Vec3{0, 0, 1})

	cam.Position = center.Add(dir.Mul(dist))
	cam.LookAt = center
	return cam
}

// Setup camera projection matrix.
func (c *Camera) SetupProjection(aspect float32) {
	c.ProjMat = types.Perspective4(c.FOV, aspect, 1, 1000)
	c.Update()
}

// Update camera.
func (c *Camera) Update() {
	c.ViewMat = types.LookAtV(c.Position, c.LookAt, c.Up)
	c.updateFrustrum()
}

func (c *Camera) InvViewProjMat() types.Mat4 {
	return c.ProjMat.Mul4(c.ViewMat).Inv()
}

// Get the normalized ray direction for the normalized image coordinates
// (u, v) where (0, 0) is the top-left corner.
func (c *Camera) RayDir(u, v float32) types.Vec3 {
	top := c.Frustrum[0].Mul(1 - u).Add(c.Frustrum[1].Mul(u))
	bottom := c.Frustrum[2].Mul(1 - u).Add(c.Frustrum[3].Mul(u))
	return top.Mul(1 - v).Add(bottom.Mul(v)).Normalize()
}

// Generate a ray vector for each corner of the camera frustrum by
// multiplying clip space vectors for each corner with the inv proj/view
// matrix, applying perspective and subtracting the camera eye position.
func (c *Camera) updateFrustrum() {
	invProjViewMat := c.InvViewProjMat()

	corners := [4]types.Vec4{
		types.XYZW(-1, 1, -1, 1),
		types.XYZW(1, 1, -1, 1),
		types.XYZW(-1, -1, -1, 1),
		types.XYZW(1, -1, -1, 1),
	}
	for idx, corner := range corners {
		v := invProjViewMat.Mul4x1(corner)
		c.Frustrum[idx] = v.Mul(1.0 / v[3]).Vec3().Sub(c.Position)
	}
}
