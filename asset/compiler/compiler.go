package compiler

import (
	"errors"
	"time"

	"github.com/achilleasa/batchrender/asset/compiler/bvh"
	"github.com/achilleasa/batchrender/asset/material"
	"github.com/achilleasa/batchrender/asset/scene"
	"github.com/achilleasa/batchrender/log"
	"github.com/achilleasa/batchrender/types"
)

const (
	minPrimitivesPerLeaf = 10
)

var ErrNoDefaultMaterial = errors.New("compiler: a default material is required")

// A triangle reference with a cached bbox and center for the BVH builder.
type primitive struct {
	index  uint32
	bbox   types.BBox
	center types.Vec3
}

func (p *primitive) BBox() types.BBox {
	return p.bbox
}

func (p *primitive) Center() types.Vec3 {
	return p.center
}

type sceneCompiler struct {
	logger log.Logger

	source         *scene.Scene
	defaultMat     *material.Material
	optimizedScene *scene.OptimizedScene

	// A map of materials to their index in the optimized material list.
	matIndexCache map[*material.Material]uint32

	// Unsorted triangles and their material indices.
	triangles     []scene.Triangle
	materialIndex []uint32
}

// Compile the objects of all collections linked to sc into a flat,
// BVH-partitioned representation that can be consumed by a tracer.
//
// Objects without an active material use defaultMat. If the scene does not
// define a camera, a camera framing the scene contents is generated.
func Compile(sc *scene.Scene, defaultMat *material.Material) (*scene.OptimizedScene, error) {
	if defaultMat == nil {
		return nil, ErrNoDefaultMaterial
	}

	compiler := &sceneCompiler{
		logger:     log.New("scene compiler"),
		source:     sc,
		defaultMat: defaultMat,
		optimizedScene: &scene.OptimizedScene{
			Background: sc.Background,
		},
		matIndexCache: make(map[*material.Material]uint32),
	}

	start := time.Now()
	compiler.logger.Infof("compiling scene %q", sc.Name)

	compiler.collectGeometry()
	compiler.partitionGeometry()
	compiler.setupCamera()

	compiler.logger.Infof("compiled scene in %d ms", time.Since(start).Nanoseconds()/1e6)
	return compiler.optimizedScene, nil
}

// Flatten the meshes of all linked objects into a single triangle list.
func (sc *sceneCompiler) collectGeometry() {
	for _, obj := range sc.source.Objects() {
		if obj.Mesh == nil || len(obj.Mesh.Triangles) == 0 {
			continue
		}

		matIndex := sc.materialIndexFor(obj.ActiveMaterial)
		for _, tri := range obj.Mesh.Triangles {
			sc.triangles = append(sc.triangles, tri)
			sc.materialIndex = append(sc.materialIndex, matIndex)
		}
	}
}

func (sc *sceneCompiler) materialIndexFor(mat *material.Material) uint32 {
	if mat == nil {
		mat = sc.defaultMat
	}

	if index, exists := sc.matIndexCache[mat]; exists {
		return index
	}

	index := uint32(len(sc.optimizedScene.Materials))
	sc.optimizedScene.Materials = append(sc.optimizedScene.Materials, mat)
	sc.matIndexCache[mat] = index
	return index
}

// Partition the collected triangles into a BVH. Triangles are re-ordered so
// each leaf references a contiguous range.
func (sc *sceneCompiler) partitionGeometry() {
	if len(sc.triangles) == 0 {
		sc.logger.Warning("the scene contains no geometry")
		return
	}

	start := time.Now()
	sc.logger.Infof("building scene BVH tree (%d triangles)", len(sc.triangles))

	volList := make([]bvh.BoundedVolume, len(sc.triangles))
	for index := range sc.triangles {
		tri := &sc.triangles[index]
		volList[index] = &primitive{
			index:  uint32(index),
			bbox:   tri.BBox(),
			center: tri.Center(),
		}
	}

	out := sc.optimizedScene
	out.Triangles = make([]scene.Triangle, 0, len(sc.triangles))
	out.MaterialIndex = make([]uint32, 0, len(sc.triangles))

	out.BvhNodeList = bvh.Build(volList, minPrimitivesPerLeaf, func(node *scene.BvhNode, workList []bvh.BoundedVolume) {
		node.SetPrimitives(uint32(len(out.Triangles)), uint32(len(workList)))

		for _, workItem := range workList {
			prim := workItem.(*primitive)
			matIndex := sc.materialIndex[prim.index]

			if out.Materials[matIndex].Kind == material.BxdfEmissive {
				out.EmissiveIndices = append(out.EmissiveIndices, uint32(len(out.Triangles)))
			}

			out.Triangles = append(out.Triangles, sc.triangles[prim.index])
			out.MaterialIndex = append(out.MaterialIndex, matIndex)
		}
	}, bvh.SurfaceAreaHeuristic)

	if len(out.EmissiveIndices) == 0 {
		sc.logger.Debug("the scene contains no emissive primitives; only the key light will be used")
	}

	sc.logger.Infof("partitioned geometry in %d ms", time.Since(start).Nanoseconds()/1e6)
}

// Initialize and position the camera for the scene.
func (sc *sceneCompiler) setupCamera() {
	if sc.source.Camera != nil {
		cam := *sc.source.Camera
		sc.optimizedScene.Camera = &cam
		return
	}

	sc.optimizedScene.Camera = scene.FrameBBox(sc.source.BBox(), scene.DefaultFOV)
}
