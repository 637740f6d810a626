package cpu

import (
	"github.com/achilleasa/batchrender/asset/scene"
	"github.com/achilleasa/batchrender/types"
	"github.com/chewxy/math32"
)

const (
	// Offset applied to secondary ray origins to avoid self-intersections.
	rayEpsilon float32 = 1e-4

	// Möller-Trumbore determinant threshold.
	detEpsilon float32 = 1e-8

	traversalStackSize = 64
)

type ray struct {
	origin types.Vec3
	dir    types.Vec3
	invDir types.Vec3
}

func newRay(origin, dir types.Vec3) ray {
	return ray{
		origin: origin,
		dir:    dir,
		invDir: types.Vec3{1 / dir[0], 1 / dir[1], 1 / dir[2]},
	}
}

type hit struct {
	dist     float32
	triIndex uint32

	// Barycentric coordinates of the hit point.
	u, v float32
}

// Slab test. Axes where the ray direction is zero yield NaN distances which
// fail every comparison and are ignored.
func intersectBBox(r *ray, min, max types.Vec3, tMax float32) bool {
	tNear := float32(0)
	tFar := tMax
	for axis := 0; axis < 3; axis++ {
		t1 := (min[axis] - r.origin[axis]) * r.invDir[axis]
		t2 := (max[axis] - r.origin[axis]) * r.invDir[axis]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tNear {
			tNear = t1
		}
		if t2 < tFar {
			tFar = t2
		}
		if tNear > tFar {
			return false
		}
	}
	return true
}

// Möller-Trumbore ray/triangle intersection.
func intersectTriangle(r *ray, tri *scene.Triangle) (dist, u, v float32, ok bool) {
	e1 := tri.Vertices[1].Sub(tri.Vertices[0])
	e2 := tri.Vertices[2].Sub(tri.Vertices[0])

	p := r.dir.Cross(e2)
	det := e1.Dot(p)
	if math32.Abs(det) < detEpsilon {
		return 0, 0, 0, false
	}
	invDet := 1 / det

	s := r.origin.Sub(tri.Vertices[0])
	u = s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}

	q := s.Cross(e1)
	v = r.dir.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}

	dist = e2.Dot(q) * invDet
	if dist <= rayEpsilon {
		return 0, 0, 0, false
	}
	return dist, u, v, true
}

// Find the closest intersection closer than tMax. If anyHit is set, the
// search stops at the first intersection.
func intersectScene(sc *scene.OptimizedScene, r *ray, tMax float32, anyHit bool) (hit, bool) {
	var closest hit
	found := false
	if len(sc.BvhNodeList) == 0 {
		return closest, false
	}

	closest.dist = tMax

	stack := make([]int32, 1, traversalStackSize)
	for len(stack) > 0 {
		node := &sc.BvhNodeList[stack[len(stack)-1]]
		stack = stack[:len(stack)-1]

		if !intersectBBox(r, node.Min, node.Max, closest.dist) {
			continue
		}

		if !node.IsLeaf() {
			stack = append(stack, node.RData, node.LData)
			continue
		}

		first, count := node.GetPrimitives()
		for index := first; index < first+count; index++ {
			dist, u, v, ok := intersectTriangle(r, &sc.Triangles[index])
			if !ok || dist >= closest.dist {
				continue
			}

			closest = hit{dist: dist, triIndex: index, u: u, v: v}
			found = true
			if anyHit {
				return closest, true
			}
		}
	}

	return closest, found
}
