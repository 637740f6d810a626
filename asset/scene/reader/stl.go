package reader

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/achilleasa/batchrender/asset"
	"github.com/achilleasa/batchrender/asset/scene"
	"github.com/achilleasa/batchrender/log"
	"github.com/achilleasa/batchrender/types"
)

const (
	stlHeaderSize   = 80
	stlTriangleSize = 50
)

type stlReader struct {
	logger log.Logger
}

// Create a new reader for ASCII and binary stereolithography files.
func newStlReader() Reader {
	return &stlReader{
		logger: log.New("stl reader"),
	}
}

// Read objects from an STL file. Binary files yield a single object while
// ASCII files yield one object per "solid" block.
func (r *stlReader) Read(res *asset.Resource) ([]*scene.Object, error) {
	r.logger.Infof(`parsing stl file "%s"`, res.Path())
	start := time.Now()

	data, err := io.ReadAll(res)
	if err != nil {
		return nil, err
	}

	baseName := strings.TrimSuffix(filepath.Base(res.Path()), filepath.Ext(res.Path()))

	var objects []*scene.Object
	if isASCIIStl(data) {
		objects, err = r.parseASCII(res.Path(), data, baseName)
	} else {
		objects, err = r.parseBinary(data, baseName)
	}
	if err != nil {
		return nil, err
	}

	r.logger.Infof("parsed %d object(s) in %d ms", len(objects), time.Since(start).Nanoseconds()/1e6)
	return objects, nil
}

// Binary files may also start with "solid" so the payload size is checked
// against the size implied by the triangle count.
func isASCIIStl(data []byte) bool {
	if !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("solid")) {
		return false
	}
	if len(data) < stlHeaderSize+4 {
		return true
	}

	triCount := binary.LittleEndian.Uint32(data[stlHeaderSize:])
	return uint64(len(data)) != uint64(stlHeaderSize+4)+uint64(triCount)*stlTriangleSize
}

func (r *stlReader) parseBinary(data []byte, name string) ([]*scene.Object, error) {
	if len(data) < stlHeaderSize+4 {
		return nil, errors.New("stl: truncated binary header")
	}

	triCount := binary.LittleEndian.Uint32(data[stlHeaderSize:])
	payload := data[stlHeaderSize+4:]
	if uint64(len(payload)) < uint64(triCount)*stlTriangleSize {
		return nil, fmt.Errorf("stl: expected %d triangles; file is truncated", triCount)
	}

	mesh := scene.NewMesh(name)
	for i := uint32(0); i < triCount; i++ {
		rec := payload[i*stlTriangleSize:]

		// Skip the stored face normal; it is recalculated from the winding order.
		var v [3]types.Vec3
		for vi := 0; vi < 3; vi++ {
			for c := 0; c < 3; c++ {
				off := 12 + vi*12 + c*4
				v[vi][c] = math.Float32frombits(binary.LittleEndian.Uint32(rec[off:]))
			}
		}
		mesh.Add(scene.NewFlatTriangle(v[0], v[1], v[2]))
	}

	if len(mesh.Triangles) == 0 {
		return nil, nil
	}
	return []*scene.Object{scene.NewObject(name, mesh, nil)}, nil
}

func (r *stlReader) parseASCII(path string, data []byte, baseName string) ([]*scene.Object, error) {
	var (
		objects  []*scene.Object
		mesh     *scene.Mesh
		vertices []types.Vec3
		lineNum  int
	)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 {
			continue
		}

		switch strings.ToLower(lineTokens[0]) {
		case "solid":
			// A solid missing its endsolid is closed by the next one.
			if mesh != nil && len(mesh.Triangles) != 0 {
				r.logger.Warningf("[%s: %d] solid %q is missing its endsolid", path, lineNum, mesh.Name)
				objects = append(objects, scene.NewObject(mesh.Name, mesh, nil))
			}
			name := baseName
			if len(lineTokens) > 1 {
				name = strings.Join(lineTokens[1:], " ")
			}
			mesh = scene.NewMesh(name)
		case "endsolid":
			if mesh == nil {
				return nil, fmt.Errorf("[%s: %d] stl: endsolid without solid", path, lineNum)
			}
			if len(mesh.Triangles) != 0 {
				objects = append(objects, scene.NewObject(mesh.Name, mesh, nil))
			}
			mesh = nil
		case "facet", "outer":
			if mesh == nil {
				return nil, fmt.Errorf("[%s: %d] stl: %q outside of a solid", path, lineNum, lineTokens[0])
			}
			vertices = vertices[:0]
		case "vertex":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return nil, fmt.Errorf("[%s: %d] stl: %s", path, lineNum, err.Error())
			}
			vertices = append(vertices, v)
		case "endloop":
			if mesh == nil {
				return nil, fmt.Errorf("[%s: %d] stl: endloop outside of a solid", path, lineNum)
			}
			if len(vertices) < 3 {
				return nil, fmt.Errorf("[%s: %d] stl: expected at least 3 vertices per facet; got %d", path, lineNum, len(vertices))
			}
			for i := 1; i < len(vertices)-1; i++ {
				mesh.Add(scene.NewFlatTriangle(vertices[0], vertices[i], vertices[i+1]))
			}
		case "endfacet":
		default:
			return nil, fmt.Errorf("[%s: %d] stl: unexpected token %q", path, lineNum, lineTokens[0])
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	// Tolerate a missing endsolid
	if mesh != nil && len(mesh.Triangles) != 0 {
		objects = append(objects, scene.NewObject(mesh.Name, mesh, nil))
	}
	return objects, nil
}
