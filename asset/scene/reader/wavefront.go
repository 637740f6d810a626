package reader

import (
	"bufio"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/achilleasa/batchrender/asset"
	"github.com/achilleasa/batchrender/asset/material"
	"github.com/achilleasa/batchrender/asset/scene"
	"github.com/achilleasa/batchrender/log"
	"github.com/achilleasa/batchrender/types"
)

type wavefrontMaterial struct {
	Name string

	// Diffuse/Albedo color.
	Kd types.Vec3

	// Specular color.
	Ks types.Vec3

	// Emissive color and scaler.
	Ke       types.Vec3
	KeScaler float32

	// Transmission filter
	Tf types.Vec3

	// Index of refraction.
	Ni float32

	// Roughness (parsed from the PBR "Pr" extension).
	Pr float32
}

// Convert the wavefront material properties into a renderer material. The
// surface type is selected with the same precedence rules used by common
// exporters: specular+IOR -> dielectric, specular -> conductor, emission ->
// emissive and diffuse otherwise.
func (wf *wavefrontMaterial) toMaterial() *material.Material {
	isSpecularReflection := wf.Ks.MaxComponent() > 0.0
	isEmissive := wf.Ke.MaxComponent() > 0.0

	mat := &material.Material{
		Name:      wf.Name,
		Roughness: wf.Pr,
	}

	switch {
	case isSpecularReflection && wf.Ni > 1.0:
		mat.Kind = material.BxdfDielectric
		mat.Albedo = wf.Tf
		if wf.Tf.MaxComponent() == 0 {
			mat.Albedo = material.DefaultSpecularity
		}
		mat.IOR = wf.Ni
	case isSpecularReflection:
		mat.Kind = material.BxdfConductor
		mat.Albedo = wf.Ks
	case isEmissive:
		mat.Kind = material.BxdfEmissive
		mat.Emission = wf.Ke
		mat.EmissionScale = wf.KeScaler
	default:
		mat.Kind = material.BxdfDiffuse
		mat.Albedo = wf.Kd
	}

	return mat
}

// Objects are split by (group, material) so that each object carries a
// single active material.
type wavefrontGroupKey struct {
	group    string
	material string
}

type wavefrontSceneReader struct {
	logger log.Logger

	// A map of material names to parsed wavefront materials
	matNameToIndex map[string]int

	// Parsed wavefront materials and their converted counterparts.
	materials    []*wavefrontMaterial
	convertedMat map[string]*material.Material

	// Currently selected group and material.
	curGroup    string
	curMaterial *wavefrontMaterial

	// Parsed objects in order of appearance.
	objects     []*scene.Object
	objectIndex map[wavefrontGroupKey]*scene.Object
	objectNames map[string]bool

	// List of vertices, normals and uv coords.
	vertexList []types.Vec3
	normalList []types.Vec3
	uvCount    int

	// An error stack that provides additional error information when
	// scene files include other files (models, mat libs e.t.c)
	errStack []string
}

// Create a new wavefront scene reader.
func newWavefrontReader() Reader {
	return &wavefrontSceneReader{
		logger:         log.New("wavefront reader"),
		matNameToIndex: make(map[string]int),
		convertedMat:   make(map[string]*material.Material),
		objectIndex:    make(map[wavefrontGroupKey]*scene.Object),
		objectNames:    make(map[string]bool),
		vertexList:     make([]types.Vec3, 0),
		normalList:     make([]types.Vec3, 0),
		errStack:       make([]string, 0),
	}
}

// Read objects from a wavefront obj file.
func (r *wavefrontSceneReader) Read(res *asset.Resource) ([]*scene.Object, error) {
	r.logger.Infof(`parsing wavefront file "%s"`, res.Path())
	start := time.Now()

	r.curGroup = strings.TrimSuffix(filepath.Base(res.Path()), filepath.Ext(res.Path()))
	err := r.parse(res)
	if err != nil {
		return nil, err
	}

	// Drop objects that ended up without any polygons
	objects := make([]*scene.Object, 0, len(r.objects))
	for _, obj := range r.objects {
		if len(obj.Mesh.Triangles) == 0 {
			r.logger.Warningf(`dropping object "%s" as it contains no polygons`, obj.Name)
			continue
		}
		objects = append(objects, obj)
	}

	r.logger.Infof("parsed %d object(s) in %d ms", len(objects), time.Since(start).Nanoseconds()/1e6)
	return objects, nil
}

// Generate an error message that also includes any data in the error stack.
func (r *wavefrontSceneReader) emitError(file string, line int, msgFormat string, args ...interface{}) error {
	msg := fmt.Sprintf(msgFormat, args...)

	var errMsg string
	if file != "" {
		errMsg = strings.Trim(
			fmt.Sprintf("[%s: %d] error: %s\n%s", file, line, msg, strings.Join(r.errStack, "\n")),
			"\n",
		)
	} else {
		errMsg = strings.Trim(
			fmt.Sprintf("error: %s\n%s", msg, strings.Join(r.errStack, "\n")),
			"\n",
		)
	}

	return errors.New(errMsg)
}

// Push a frame to the error stack.
func (r *wavefrontSceneReader) pushFrame(msg string) {
	r.errStack = append([]string{msg}, r.errStack...)
}

// Pop a frame from the error stack.
func (r *wavefrontSceneReader) popFrame() {
	r.errStack = r.errStack[1:]
}

// Get the renderer material for the currently selected wavefront material.
// Faces preceding any "usemtl" statement have no material.
func (r *wavefrontSceneReader) activeMaterial() *material.Material {
	if r.curMaterial == nil {
		return nil
	}

	mat, exists := r.convertedMat[r.curMaterial.Name]
	if !exists {
		mat = r.curMaterial.toMaterial()
		r.convertedMat[r.curMaterial.Name] = mat
	}
	return mat
}

// Get (or create) the object for the current group and material.
func (r *wavefrontSceneReader) activeObject() *scene.Object {
	mat := r.activeMaterial()
	matName := ""
	if mat != nil {
		matName = mat.Name
	}

	key := wavefrontGroupKey{group: r.curGroup, material: matName}
	if obj, exists := r.objectIndex[key]; exists {
		return obj
	}

	name := r.curGroup
	if r.objectNames[name] && matName != "" {
		name = r.curGroup + "." + matName
	}
	r.objectNames[name] = true

	obj := scene.NewObject(name, scene.NewMesh(name), mat)
	r.objectIndex[key] = obj
	r.objects = append(r.objects, obj)
	return obj
}

// Parse wavefront object scene format.
func (r *wavefrontSceneReader) parse(res *asset.Resource) error {
	var lineNum int = 0

	// The main obj file may include (call) several other object files. Each
	// object file contains 1-based indices (when they are positive). By
	// tracking the current vertex/normal offsets we can apply them
	// while parsing faces to select the correct coordinates.
	relVertexOffset := len(r.vertexList)
	relNormalOffset := len(r.normalList)

	scanner := bufio.NewScanner(res)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "call", "mtllib":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
			}

			r.pushFrame(fmt.Sprintf("referenced from %s:%d [%s]", res.Path(), lineNum, lineTokens[0]))

			incRes, err := asset.NewResource(nil, lineTokens[1], res)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}

			switch lineTokens[0] {
			case "call":
				err = r.parse(incRes)
			case "mtllib":
				err = r.parseMaterials(incRes)
			}
			incRes.Close()

			if err != nil {
				return err
			}
			r.popFrame()
		case "usemtl":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "usemtl"; expected 1 argument; got %d`, len(lineTokens)-1)
			}

			// Lookup material
			matName := lineTokens[1]
			matIndex, exists := r.matNameToIndex[matName]
			if !exists {
				return r.emitError(res.Path(), lineNum, `undefined material with name "%s"`, matName)
			}

			// Activate material
			r.curMaterial = r.materials[matIndex]
		case "v":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.vertexList = append(r.vertexList, v)
		case "vn":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.normalList = append(r.normalList, v.Normalize())
		case "vt":
			if _, err := parseVec2(lineTokens); err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.uvCount++
		case "g", "o":
			if len(lineTokens) < 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument for object name; got %d`, lineTokens[0], len(lineTokens)-1)
			}
			r.curGroup = lineTokens[1]
		case "f":
			tris, err := r.parseFace(lineTokens, relVertexOffset, relNormalOffset)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.activeObject().Mesh.Add(tris...)
		case "s", "l", "p":
			// smoothing groups, lines and points do not contribute to the render
		default:
			r.logger.Debugf("[%s: %d] ignoring unsupported statement %q", res.Path(), lineNum, lineTokens[0])
		}
	}

	if err := scanner.Err(); err != nil {
		return r.emitError(res.Path(), lineNum, "%s", err.Error())
	}

	return nil
}

// Parse face definition. Each face definition consists of 3 or more
// arguments, one for each vertex. Each one of the vertex arguments is
// comprised of 1, 2 or 3 args separated by a slash character. The following
// formats are supported:
// - vertexIndex
// - vertexIndex/uvIndex
// - vertexIndex//normalIndex
// - vertexIndex/uvIndex/normalIndex
//
// Indices start from 1 and may be negative to indicate
// an offset off the end of the vertex/uv list.
//
// Faces with more than 3 vertices are assumed to be convex and are
// triangulated as a fan around the first vertex.
func (r *wavefrontSceneReader) parseFace(lineTokens []string, relVertexOffset, relNormalOffset int) ([]scene.Triangle, error) {
	if len(lineTokens) < 4 {
		return nil, fmt.Errorf(`unsupported syntax for "f"; expected at least 3 arguments; got %d`, len(lineTokens)-1)
	}

	argCount := len(lineTokens) - 1
	vertices := make([]types.Vec3, argCount)
	normals := make([]types.Vec3, argCount)
	var vOffset int
	var err error
	expIndices := 0
	hasNormals := true
	for arg := 0; arg < argCount; arg++ {
		vTokens := strings.Split(lineTokens[arg+1], "/")

		// The first arg defines the format for the following args
		if arg == 0 {
			expIndices = len(vTokens)
		} else if len(vTokens) != expIndices {
			return nil, fmt.Errorf("expected each face argument to contain %d indices; arg %d contains %d indices", expIndices, arg, len(vTokens))
		}

		// Faces must at least define a vertex coord
		if vTokens[0] == "" {
			return nil, fmt.Errorf("face argument %d does not include a vertex index", arg)
		}

		vOffset, err = selectFaceCoordIndex(vTokens[0], len(r.vertexList), relVertexOffset)
		if err != nil {
			return nil, fmt.Errorf("could not parse vertex coord for face argument %d: %s", arg, err.Error())
		}
		vertices[arg] = r.vertexList[vOffset]

		// Parse normal coords if specified
		if expIndices > 2 && vTokens[2] != "" {
			vOffset, err = selectFaceCoordIndex(vTokens[2], len(r.normalList), relNormalOffset)
			if err != nil {
				return nil, fmt.Errorf("could not parse normal coord for face argument %d: %s", arg, err.Error())
			}
			normals[arg] = r.normalList[vOffset]
		} else {
			hasNormals = false
		}
	}

	// Triangulate as a fan
	tris := make([]scene.Triangle, 0, argCount-2)
	for i := 1; i < argCount-1; i++ {
		if !hasNormals {
			tris = append(tris, scene.NewFlatTriangle(vertices[0], vertices[i], vertices[i+1]))
			continue
		}
		tris = append(tris, scene.Triangle{
			Vertices: [3]types.Vec3{vertices[0], vertices[i], vertices[i+1]},
			Normals:  [3]types.Vec3{normals[0], normals[i], normals[i+1]},
		})
	}

	return tris, nil
}

// Parse a wavefront material library.
func (r *wavefrontSceneReader) parseMaterials(res *asset.Resource) error {
	var lineNum int = 0
	var err error

	r.logger.Infof(`parsing material library "%s"`, res.Path())

	scanner := bufio.NewScanner(res)

	var curMaterial *wavefrontMaterial = nil
	var matName string = ""

	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "newmtl":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "newmtl"; expected 1 argument; got %d`, len(lineTokens)-1)
			}

			matName = lineTokens[1]
			if _, exists := r.matNameToIndex[matName]; exists {
				return r.emitError(res.Path(), lineNum, `material "%s" already defined`, matName)
			}

			// Allocate new material and add it to library
			curMaterial = &wavefrontMaterial{Name: matName}
			r.materials = append(r.materials, curMaterial)
			r.matNameToIndex[matName] = len(r.materials) - 1
		default:
			if curMaterial == nil {
				return r.emitError(res.Path(), lineNum, `got "%s" without a "newmtl"`, lineTokens[0])
			}

			switch lineTokens[0] {
			case "include":
				if len(lineTokens) < 2 {
					return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
				}

				baseMaterialIndex, exists := r.matNameToIndex[lineTokens[1]]
				if !exists {
					return r.emitError(res.Path(), lineNum, `could not include unknown material "%s"`, lineTokens[1])
				}

				// Overwrite material but keep the original name
				*curMaterial = *r.materials[baseMaterialIndex]
				curMaterial.Name = matName
			case "Kd", "Ks", "Ke", "Tf":
				var target *types.Vec3
				switch lineTokens[0] {
				case "Kd":
					target = &curMaterial.Kd
				case "Ks":
					target = &curMaterial.Ks
				case "Ke":
					target = &curMaterial.Ke
				case "Tf":
					target = &curMaterial.Tf
				}

				*target, err = parseVec3(lineTokens)
			case "Ni":
				curMaterial.Ni, err = parseFloat32(lineTokens)
			case "Pr":
				curMaterial.Pr, err = parseFloat32(lineTokens)
			case "KeScaler":
				curMaterial.KeScaler, err = parseFloat32(lineTokens)
			default:
				r.logger.Debugf("[%s: %d] ignoring unsupported material statement %q", res.Path(), lineNum, lineTokens[0])
			}

			// Report any errors
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
		}
	}

	return scanner.Err()
}

// Given an index for a face coord type (vertex, normal, tex) calculate the
// proper offset into the coord list. Wavefront format can also use negative
// indices to reference elements from the end of the coord list.
func selectFaceCoordIndex(indexToken string, coordListLen int, relOffset int) (int, error) {
	index, err := strconv.ParseInt(indexToken, 10, 32)
	if err != nil {
		return -1, err
	}

	var vOffset int = 0
	if index < 0 {
		vOffset = coordListLen + int(index)
	} else {
		vOffset = relOffset + int(index-1)
	}
	if vOffset < 0 || vOffset >= coordListLen {
		return -1, fmt.Errorf("index out of bounds")
	}
	return vOffset, nil
}

// Parse a float scalar value.
func parseFloat32(lineTokens []string) (float32, error) {
	if len(lineTokens) < 2 {
		return 0, fmt.Errorf(`unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	val, err := strconv.ParseFloat(lineTokens[1], 32)
	if err != nil {
		return 0, err
	}

	return float32(val), nil
}

// Parse a Vec3 row.
func parseVec3(lineTokens []string) (types.Vec3, error) {
	if len(lineTokens) < 4 {
		return types.Vec3{}, fmt.Errorf(`unsupported syntax for "%s"; expected 3 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec3{}
	for tokIdx := 1; tokIdx <= 3; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}

// Parse a Vec2 row.
func parseVec2(lineTokens []string) (types.Vec2, error) {
	if len(lineTokens) < 3 {
		return types.Vec2{}, fmt.Errorf(`unsupported syntax for "%s"; expected 2 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec2{}
	for tokIdx := 1; tokIdx <= 2; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}
