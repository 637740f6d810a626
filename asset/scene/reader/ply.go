package reader

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/achilleasa/batchrender/asset"
	"github.com/achilleasa/batchrender/asset/scene"
	"github.com/achilleasa/batchrender/log"
	"github.com/achilleasa/batchrender/types"
)

type plyType uint8

const (
	plyInvalid plyType = iota
	plyInt8
	plyUint8
	plyInt16
	plyUint16
	plyInt32
	plyUint32
	plyFloat32
	plyFloat64
)

var plyTypeNames = map[string]plyType{
	"char":    plyInt8,
	"int8":    plyInt8,
	"uchar":   plyUint8,
	"uint8":   plyUint8,
	"short":   plyInt16,
	"int16":   plyInt16,
	"ushort":  plyUint16,
	"uint16":  plyUint16,
	"int":     plyInt32,
	"int32":   plyInt32,
	"uint":    plyUint32,
	"uint32":  plyUint32,
	"float":   plyFloat32,
	"float32": plyFloat32,
	"double":  plyFloat64,
	"float64": plyFloat64,
}

func (t plyType) size() int {
	switch t {
	case plyInt8, plyUint8:
		return 1
	case plyInt16, plyUint16:
		return 2
	case plyInt32, plyUint32, plyFloat32:
		return 4
	case plyFloat64:
		return 8
	}
	return 0
}

type plyProperty struct {
	name     string
	typ      plyType
	isList   bool
	countTyp plyType
}

// Upper bound for slices pre-allocated from header element counts.
const plyMaxPrealloc = 1 << 16

type plyElement struct {
	name  string
	count int
	props []plyProperty
}

type plyHeader struct {
	format   string
	elements []*plyElement
}

// A source of property values. ASCII and binary payloads share the same
// element decoding logic.
type plyValueReader interface {
	next(plyType) (float64, error)
}

type plyASCIIValueReader struct {
	scanner *bufio.Scanner
}

func (r *plyASCIIValueReader) next(_ plyType) (float64, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return 0, err
		}
		return 0, io.ErrUnexpectedEOF
	}
	return strconv.ParseFloat(r.scanner.Text(), 64)
}

type plyBinaryValueReader struct {
	r     io.Reader
	order binary.ByteOrder
	buf   [8]byte
}

func (r *plyBinaryValueReader) next(t plyType) (float64, error) {
	b := r.buf[:t.size()]
	if _, err := io.ReadFull(r.r, b); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}

	switch t {
	case plyInt8:
		return float64(int8(b[0])), nil
	case plyUint8:
		return float64(b[0]), nil
	case plyInt16:
		return float64(int16(r.order.Uint16(b))), nil
	case plyUint16:
		return float64(r.order.Uint16(b)), nil
	case plyInt32:
		return float64(int32(r.order.Uint32(b))), nil
	case plyUint32:
		return float64(r.order.Uint32(b)), nil
	case plyFloat32:
		return float64(math.Float32frombits(r.order.Uint32(b))), nil
	case plyFloat64:
		return math.Float64frombits(r.order.Uint64(b)), nil
	}
	return 0, fmt.Errorf("ply: invalid property type %d", t)
}

type plyReader struct {
	logger log.Logger
}

// Create a new reader for Stanford PLY files.
func newPlyReader() Reader {
	return &plyReader{
		logger: log.New("ply reader"),
	}
}

// Read a PLY mesh. The vertex and face elements are converted into a single
// object; any other elements are skipped.
func (r *plyReader) Read(res *asset.Resource) ([]*scene.Object, error) {
	r.logger.Infof(`parsing ply file "%s"`, res.Path())
	start := time.Now()

	br := bufio.NewReader(res)
	hdr, err := parsePlyHeader(br)
	if err != nil {
		return nil, fmt.Errorf("[%s] %s", res.Path(), err.Error())
	}

	var values plyValueReader
	switch hdr.format {
	case "ascii":
		scanner := bufio.NewScanner(br)
		scanner.Split(bufio.ScanWords)
		values = &plyASCIIValueReader{scanner: scanner}
	case "binary_little_endian":
		values = &plyBinaryValueReader{r: br, order: binary.LittleEndian}
	case "binary_big_endian":
		values = &plyBinaryValueReader{r: br, order: binary.BigEndian}
	default:
		return nil, fmt.Errorf("[%s] ply: unsupported format %q", res.Path(), hdr.format)
	}

	name := strings.TrimSuffix(filepath.Base(res.Path()), filepath.Ext(res.Path()))
	mesh, err := r.parseBody(hdr, values, name)
	if err != nil {
		return nil, fmt.Errorf("[%s] %s", res.Path(), err.Error())
	}

	r.logger.Infof("parsed %d triangle(s) in %d ms", len(mesh.Triangles), time.Since(start).Nanoseconds()/1e6)
	if len(mesh.Triangles) == 0 {
		return nil, nil
	}
	return []*scene.Object{scene.NewObject(name, mesh, nil)}, nil
}

func parsePlyHeader(br *bufio.Reader) (*plyHeader, error) {
	hdr := &plyHeader{}

	for lineNum := 1; ; lineNum++ {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("ply: unterminated header: %w", err)
		}
		lineTokens := strings.Fields(line)

		if lineNum == 1 {
			if len(lineTokens) != 1 || lineTokens[0] != "ply" {
				return nil, errors.New(`ply: missing "ply" magic`)
			}
			continue
		}
		if len(lineTokens) == 0 {
			continue
		}

		switch lineTokens[0] {
		case "format":
			if len(lineTokens) != 3 {
				return nil, fmt.Errorf(`ply: unsupported syntax for "format"; expected 2 arguments; got %d`, len(lineTokens)-1)
			}
			hdr.format = lineTokens[1]
		case "comment", "obj_info":
		case "element":
			if len(lineTokens) != 3 {
				return nil, fmt.Errorf(`ply: unsupported syntax for "element"; expected 2 arguments; got %d`, len(lineTokens)-1)
			}
			count, err := strconv.Atoi(lineTokens[2])
			if err != nil || count < 0 {
				return nil, fmt.Errorf("ply: invalid count for element %q", lineTokens[1])
			}
			hdr.elements = append(hdr.elements, &plyElement{name: lineTokens[1], count: count})
		case "property":
			if len(hdr.elements) == 0 {
				return nil, errors.New(`ply: "property" without an "element"`)
			}
			prop, err := parsePlyProperty(lineTokens)
			if err != nil {
				return nil, err
			}
			el := hdr.elements[len(hdr.elements)-1]
			el.props = append(el.props, prop)
		case "end_header":
			if hdr.format == "" {
				return nil, errors.New("ply: missing format declaration")
			}
			return hdr, nil
		default:
			return nil, fmt.Errorf("ply: unexpected header token %q", lineTokens[0])
		}
	}
}

func parsePlyProperty(lineTokens []string) (plyProperty, error) {
	if len(lineTokens) >= 2 && lineTokens[1] == "list" {
		if len(lineTokens) != 5 {
			return plyProperty{}, fmt.Errorf(`ply: unsupported syntax for "property list"; expected 3 arguments; got %d`, len(lineTokens)-2)
		}
		countTyp, countOk := plyTypeNames[lineTokens[2]]
		typ, typOk := plyTypeNames[lineTokens[3]]
		if !countOk || !typOk {
			return plyProperty{}, fmt.Errorf("ply: unknown type in list property %q", lineTokens[4])
		}
		return plyProperty{name: lineTokens[4], typ: typ, isList: true, countTyp: countTyp}, nil
	}

	if len(lineTokens) != 3 {
		return plyProperty{}, fmt.Errorf(`ply: unsupported syntax for "property"; expected 2 arguments; got %d`, len(lineTokens)-1)
	}
	typ, ok := plyTypeNames[lineTokens[1]]
	if !ok {
		return plyProperty{}, fmt.Errorf("ply: unknown type %q for property %q", lineTokens[1], lineTokens[2])
	}
	return plyProperty{name: lineTokens[2], typ: typ}, nil
}

func (r *plyReader) parseBody(hdr *plyHeader, values plyValueReader, name string) (*scene.Mesh, error) {
	var (
		positions []types.Vec3
		normals   []types.Vec3
	)
	mesh := scene.NewMesh(name)

	for _, el := range hdr.elements {
		switch el.name {
		case "vertex":
			posIdx, normIdx := [3]int{-1, -1, -1}, [3]int{-1, -1, -1}
			for pi, prop := range el.props {
				switch prop.name {
				case "x", "y", "z":
					posIdx[prop.name[0]-'x'] = pi
				case "nx", "ny", "nz":
					normIdx[prop.name[1]-'x'] = pi
				}
			}
			if posIdx[0] == -1 || posIdx[1] == -1 || posIdx[2] == -1 {
				return nil, errors.New("ply: vertex element does not define x, y and z properties")
			}
			hasNormals := normIdx[0] != -1 && normIdx[1] != -1 && normIdx[2] != -1

			// Element counts come from the header and are not trusted for
			// allocations; a short payload fails with io.ErrUnexpectedEOF.
			positions = make([]types.Vec3, 0, min(el.count, plyMaxPrealloc))
			if hasNormals {
				normals = make([]types.Vec3, 0, cap(positions))
			}

			row := make([]float64, len(el.props))
			for i := 0; i < el.count; i++ {
				if err := readPlyRow(el, values, row, nil); err != nil {
					return nil, fmt.Errorf("ply: vertex %d: %w", i, err)
				}
				var pos, norm types.Vec3
				for c := 0; c < 3; c++ {
					pos[c] = float32(row[posIdx[c]])
					if hasNormals {
						norm[c] = float32(row[normIdx[c]])
					}
				}
				positions = append(positions, pos)
				if hasNormals {
					normals = append(normals, norm.Normalize())
				}
			}
		case "face":
			listIdx := -1
			for pi, prop := range el.props {
				if prop.isList && (prop.name == "vertex_indices" || prop.name == "vertex_index") {
					listIdx = pi
				}
			}
			if listIdx == -1 {
				return nil, errors.New("ply: face element does not define a vertex index list")
			}

			row := make([]float64, len(el.props))
			lists := make([][]float64, len(el.props))
			for i := 0; i < el.count; i++ {
				if err := readPlyRow(el, values, row, lists); err != nil {
					return nil, fmt.Errorf("ply: face %d: %w", i, err)
				}
				tris, err := plyFaceTriangles(lists[listIdx], positions, normals)
				if err != nil {
					return nil, fmt.Errorf("ply: face %d: %w", i, err)
				}
				mesh.Add(tris...)
			}
		default:
			r.logger.Debugf("skipping %d %q element(s)", el.count, el.name)
			if len(el.props) == 0 {
				continue
			}
			row := make([]float64, len(el.props))
			lists := make([][]float64, len(el.props))
			for i := 0; i < el.count; i++ {
				if err := readPlyRow(el, values, row, lists); err != nil {
					return nil, fmt.Errorf("ply: %s %d: %w", el.name, i, err)
				}
			}
		}
	}

	return mesh, nil
}

// Read a single element row. Scalar values are stored in row while list
// values are stored in lists (if non-nil).
func readPlyRow(el *plyElement, values plyValueReader, row []float64, lists [][]float64) error {
	for pi, prop := range el.props {
		if !prop.isList {
			v, err := values.next(prop.typ)
			if err != nil {
				return err
			}
			row[pi] = v
			continue
		}

		count, err := values.next(prop.countTyp)
		if err != nil {
			return err
		}
		if count < 0 {
			return fmt.Errorf("negative list length for property %q", prop.name)
		}

		var list []float64
		if lists != nil {
			list = lists[pi][:0]
		}
		for li := 0; li < int(count); li++ {
			v, err := values.next(prop.typ)
			if err != nil {
				return err
			}
			list = append(list, v)
		}
		if lists != nil {
			lists[pi] = list
		}
	}
	return nil
}

// Triangulate a convex polygon as a fan.
func plyFaceTriangles(indices []float64, positions, normals []types.Vec3) ([]scene.Triangle, error) {
	if len(indices) < 3 {
		return nil, fmt.Errorf("expected at least 3 vertex indices; got %d", len(indices))
	}

	idx := make([]int, len(indices))
	for i, v := range indices {
		idx[i] = int(v)
		if idx[i] < 0 || idx[i] >= len(positions) {
			return nil, fmt.Errorf("vertex index %d out of bounds", idx[i])
		}
	}

	tris := make([]scene.Triangle, 0, len(idx)-2)
	for i := 1; i < len(idx)-1; i++ {
		a, b, c := idx[0], idx[i], idx[i+1]
		if normals == nil {
			tris = append(tris, scene.NewFlatTriangle(positions[a], positions[b], positions[c]))
			continue
		}
		tris = append(tris, scene.Triangle{
			Vertices: [3]types.Vec3{positions[a], positions[b], positions[c]},
			Normals:  [3]types.Vec3{normals[a], normals[b], normals[c]},
		})
	}
	return tris, nil
}
