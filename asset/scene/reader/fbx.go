package reader

import (
	"bytes"
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
	"github.com/chewxy/math32"
	"github.com/klauspost/compress/zlib"
)

const (
	fbxBinaryMagic      = "Kaydara FBX Binary  \x00"
	fbxBinaryHeaderSize = 27

	// Binary files with a version >= 7500 use 64-bit record offsets.
	fbxWideRecordVersion = 7500

	fbxMaxDepth      = 64
	fbxMaxArrayBytes = 1 << 30
)

var errFbxTruncated = errors.New("fbx: unexpected end of file")

// A node in the FBX document tree. ASCII and binary files are decoded into
// the same representation. Property values are int64, float64, bool, string,
// []byte or []float64 (for arrays).
type fbxNode struct {
	name     string
	props    []interface{}
	children []*fbxNode
}

func (n *fbxNode) child(name string) *fbxNode {
	return fbxFind(n.children, name)
}

// The object id for nodes that define one.
func (n *fbxNode) id() (int64, bool) {
	if len(n.props) == 0 {
		return 0, false
	}
	id, ok := n.props[0].(int64)
	return id, ok
}

// The object name, with the class prefix or suffix stripped.
func (n *fbxNode) objectName() string {
	for _, p := range n.props {
		if s, ok := p.(string); ok {
			return fbxObjectName(s)
		}
	}
	return ""
}

// The object class; for geometry nodes this is "Mesh", "Shape" etc.
func (n *fbxNode) class() string {
	for i := len(n.props) - 1; i >= 0; i-- {
		if s, ok := n.props[i].(string); ok {
			return s
		}
	}
	return ""
}

// Flatten all numeric scalar and array properties.
func (n *fbxNode) numbers() ([]float64, error) {
	var out []float64
	for _, p := range n.props {
		switch v := p.(type) {
		case int64:
			out = append(out, float64(v))
		case float64:
			out = append(out, v)
		case []float64:
			out = append(out, v...)
		default:
			return nil, fmt.Errorf("fbx: %q: expected numeric values; got %T", n.name, p)
		}
	}
	return out, nil
}

func fbxFind(nodes []*fbxNode, name string) *fbxNode {
	for _, n := range nodes {
		if n.name == name {
			return n
		}
	}
	return nil
}

// Binary files store names as "Name\x00\x01Class" while ASCII files use
// "Class::Name".
func fbxObjectName(s string) string {
	if idx := strings.Index(s, "\x00\x01"); idx != -1 {
		return s[:idx]
	}
	if idx := strings.Index(s, "::"); idx != -1 {
		return s[idx+2:]
	}
	return s
}

// The local transform of a model node.
type fbxTransform struct {
	translation types.Vec3
	rotation    types.Vec3
	scaling     types.Vec3
}

func defaultFbxTransform() fbxTransform {
	return fbxTransform{scaling: types.Vec3{1, 1, 1}}
}

// Read the "Lcl *" properties of a model. Both the Properties70 (P) and the
// older Properties60 (Property) layouts are supported.
func parseFbxTransform(model *fbxNode) fbxTransform {
	xform := defaultFbxTransform()
	for _, propsName := range []string{"Properties70", "Properties60"} {
		props := model.child(propsName)
		if props == nil {
			continue
		}
		for _, p := range props.children {
			if len(p.props) < 4 {
				continue
			}
			kind, _ := p.props[0].(string)
			var target *types.Vec3
			switch kind {
			case "Lcl Translation":
				target = &xform.translation
			case "Lcl Rotation":
				target = &xform.rotation
			case "Lcl Scaling":
				target = &xform.scaling
			default:
				continue
			}

			var vals []float32
			for _, v := range p.props[len(p.props)-3:] {
				switch n := v.(type) {
				case int64:
					vals = append(vals, float32(n))
				case float64:
					vals = append(vals, float32(n))
				}
			}
			if len(vals) == 3 {
				*target = types.Vec3{vals[0], vals[1], vals[2]}
			}
		}
	}
	return xform
}

// Apply scaling, XYZ euler rotation (in degrees) and translation to v.
func (t fbxTransform) apply(v types.Vec3) types.Vec3 {
	const degToRad = math32.Pi / 180
	q := types.QuatFromAxisAngle(types.Vec3{0, 0, 1}, t.rotation[2]*degToRad).
		Mul(types.QuatFromAxisAngle(types.Vec3{0, 1, 0}, t.rotation[1]*degToRad)).
		Mul(types.QuatFromAxisAngle(types.Vec3{1, 0, 0}, t.rotation[0]*degToRad))
	return q.Rotate(v.MulVec(t.scaling)).Add(t.translation)
}

type fbxReader struct {
	logger log.Logger
}

// Create a new reader for ASCII and binary Autodesk FBX files.
func newFbxReader() Reader {
	return &fbxReader{
		logger: log.New("fbx reader"),
	}
}

// Read the mesh geometry from an FBX file. Each mesh becomes an object named
// after the model it is attached to; materials, textures and animation data
// are ignored.
func (r *fbxReader) Read(res *asset.Resource) ([]*scene.Object, error) {
	r.logger.Infof(`parsing fbx file "%s"`, res.Path())
	start := time.Now()

	data, err := io.ReadAll(res)
	if err != nil {
		return nil, err
	}

	var nodes []*fbxNode
	if bytes.HasPrefix(data, []byte(fbxBinaryMagic)) {
		nodes, err = parseFbxBinary(data)
	} else {
		nodes, err = parseFbxASCII(data)
	}
	if err != nil {
		return nil, fmt.Errorf("[%s] %s", res.Path(), err.Error())
	}

	baseName := strings.TrimSuffix(filepath.Base(res.Path()), filepath.Ext(res.Path()))
	objects, err := r.buildObjects(nodes, baseName)
	if err != nil {
		return nil, fmt.Errorf("[%s] %s", res.Path(), err.Error())
	}

	r.logger.Infof("parsed %d object(s) in %d ms", len(objects), time.Since(start).Nanoseconds()/1e6)
	return objects, nil
}

func (r *fbxReader) buildObjects(nodes []*fbxNode, baseName string) ([]*scene.Object, error) {
	objectsNode := fbxFind(nodes, "Objects")
	if objectsNode == nil {
		return nil, errors.New("fbx: missing Objects section")
	}

	type geometry struct {
		id    int64
		hasID bool
		name  string
		node  *fbxNode
		xform fbxTransform
	}

	var geometries []geometry
	models := make(map[int64]*fbxNode)
	for _, n := range objectsNode.children {
		switch n.name {
		case "Model":
			// Older files embed the geometry in the model node.
			if n.child("Vertices") != nil {
				geometries = append(geometries, geometry{name: n.objectName(), node: n, xform: parseFbxTransform(n)})
				continue
			}
			if id, ok := n.id(); ok {
				models[id] = n
			}
		case "Geometry":
			if n.class() != "Mesh" {
				r.logger.Debugf("skipping %q geometry %q", n.class(), n.objectName())
				continue
			}
			id, hasID := n.id()
			geometries = append(geometries, geometry{id: id, hasID: hasID, name: n.objectName(), node: n, xform: defaultFbxTransform()})
		}
	}

	// Object-object connections map a geometry to the model that uses it.
	parents := make(map[int64]int64)
	if conns := fbxFind(nodes, "Connections"); conns != nil {
		for _, c := range conns.children {
			if c.name != "C" || len(c.props) < 3 {
				continue
			}
			kind, _ := c.props[0].(string)
			child, childOK := c.props[1].(int64)
			parent, parentOK := c.props[2].(int64)
			if kind == "OO" && childOK && parentOK {
				parents[child] = parent
			}
		}
	}

	var objects []*scene.Object
	for _, g := range geometries {
		if g.hasID {
			if model, found := models[parents[g.id]]; found {
				g.name = model.objectName()
				g.xform = parseFbxTransform(model)
			}
		}
		if g.name == "" {
			g.name = baseName
		}

		mesh, err := fbxMesh(g.name, g.node, g.xform)
		if err != nil {
			return nil, err
		}
		if len(mesh.Triangles) == 0 {
			continue
		}
		objects = append(objects, scene.NewObject(g.name, mesh, nil))
	}
	return objects, nil
}

// Build a triangle mesh from the Vertices and PolygonVertexIndex arrays of a
// geometry node. The last index of each polygon is stored as -(index+1).
func fbxMesh(name string, node *fbxNode, xform fbxTransform) (*scene.Mesh, error) {
	mesh := scene.NewMesh(name)

	vertNode, indexNode := node.child("Vertices"), node.child("PolygonVertexIndex")
	if vertNode == nil || indexNode == nil {
		return mesh, nil
	}

	coords, err := vertNode.numbers()
	if err != nil {
		return nil, err
	}
	if len(coords)%3 != 0 {
		return nil, fmt.Errorf("fbx: geometry %q: vertex coordinate count %d is not a multiple of 3", name, len(coords))
	}
	positions := make([]types.Vec3, len(coords)/3)
	for i := range positions {
		positions[i] = xform.apply(types.Vec3{float32(coords[i*3]), float32(coords[i*3+1]), float32(coords[i*3+2])})
	}

	indices, err := indexNode.numbers()
	if err != nil {
		return nil, err
	}

	var poly []int
	for _, raw := range indices {
		idx, last := int(raw), false
		if idx < 0 {
			idx, last = -idx-1, true
		}
		if idx >= len(positions) {
			return nil, fmt.Errorf("fbx: geometry %q: vertex index %d out of bounds", name, idx)
		}
		poly = append(poly, idx)
		if !last {
			continue
		}

		if len(poly) < 3 {
			return nil, fmt.Errorf("fbx: geometry %q: polygon with %d vertices", name, len(poly))
		}
		for i := 1; i < len(poly)-1; i++ {
			mesh.Add(scene.NewFlatTriangle(positions[poly[0]], positions[poly[i]], positions[poly[i+1]]))
		}
		poly = poly[:0]
	}
	if len(poly) != 0 {
		return nil, fmt.Errorf("fbx: geometry %q: unterminated polygon", name)
	}
	return mesh, nil
}

type fbxBinaryParser struct {
	data []byte
	off  uint64
	wide bool
}

func parseFbxBinary(data []byte) ([]*fbxNode, error) {
	if len(data) < fbxBinaryHeaderSize {
		return nil, errFbxTruncated
	}

	version := binary.LittleEndian.Uint32(data[23:])
	p := &fbxBinaryParser{
		data: data,
		off:  fbxBinaryHeaderSize,
		wide: version >= fbxWideRecordVersion,
	}

	var nodes []*fbxNode
	for p.remaining() >= p.recordHeaderSize() {
		node, err := p.readNode(0)
		if err != nil {
			return nil, err
		}
		if node == nil {
			break
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (p *fbxBinaryParser) remaining() uint64 {
	return uint64(len(p.data)) - p.off
}

func (p *fbxBinaryParser) recordHeaderSize() uint64 {
	if p.wide {
		return 25
	}
	return 13
}

func (p *fbxBinaryParser) next(n uint64) ([]byte, error) {
	if n > p.remaining() {
		return nil, errFbxTruncated
	}
	b := p.data[p.off : p.off+n]
	p.off += n
	return b, nil
}

func (p *fbxBinaryParser) uint32() (uint32, error) {
	b, err := p.next(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Read a record offset or count; these are 64-bit wide in newer files.
func (p *fbxBinaryParser) recordUint() (uint64, error) {
	if !p.wide {
		v, err := p.uint32()
		return uint64(v), err
	}
	b, err := p.next(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Read a node record and its children. Returns nil when a null record is
// encountered.
func (p *fbxBinaryParser) readNode(depth int) (*fbxNode, error) {
	if depth > fbxMaxDepth {
		return nil, errors.New("fbx: nesting too deep")
	}

	start := p.off
	endOff, err := p.recordUint()
	if err != nil {
		return nil, err
	}
	numProps, err := p.recordUint()
	if err != nil {
		return nil, err
	}
	propLen, err := p.recordUint()
	if err != nil {
		return nil, err
	}
	nameLen, err := p.next(1)
	if err != nil {
		return nil, err
	}

	if endOff == 0 {
		return nil, nil
	}
	if endOff <= start || endOff > uint64(len(p.data)) {
		return nil, fmt.Errorf("fbx: record at offset %d has invalid end offset %d", start, endOff)
	}

	name, err := p.next(uint64(nameLen[0]))
	if err != nil {
		return nil, err
	}
	node := &fbxNode{name: string(name)}

	propsEnd := p.off + propLen
	if propLen > p.remaining() || propsEnd > endOff {
		return nil, fmt.Errorf("fbx: record %q: property list exceeds record bounds", node.name)
	}
	for i := uint64(0); i < numProps; i++ {
		if p.off >= propsEnd {
			return nil, fmt.Errorf("fbx: record %q: expected %d properties; got %d", node.name, numProps, i)
		}
		v, err := p.readProperty()
		if err != nil {
			return nil, fmt.Errorf("fbx: record %q: %w", node.name, err)
		}
		node.props = append(node.props, v)
	}
	if p.off != propsEnd {
		return nil, fmt.Errorf("fbx: record %q: property list length mismatch", node.name)
	}

	for p.off < endOff {
		child, err := p.readNode(depth + 1)
		if err != nil {
			return nil, err
		}
		if child == nil {
			break
		}
		node.children = append(node.children, child)
	}
	if p.off > endOff {
		return nil, fmt.Errorf("fbx: record %q: children exceed record bounds", node.name)
	}
	p.off = endOff
	return node, nil
}

func (p *fbxBinaryParser) readProperty() (interface{}, error) {
	code, err := p.next(1)
	if err != nil {
		return nil, err
	}

	switch typ := code[0]; typ {
	case 'Y':
		b, err := p.next(2)
		if err != nil {
			return nil, err
		}
		return int64(int16(binary.LittleEndian.Uint16(b))), nil
	case 'C':
		b, err := p.next(1)
		if err != nil {
			return nil, err
		}
		return b[0] != 0, nil
	case 'I':
		v, err := p.uint32()
		return int64(int32(v)), err
	case 'F':
		v, err := p.uint32()
		return float64(math.Float32frombits(v)), err
	case 'D', 'L':
		b, err := p.next(8)
		if err != nil {
			return nil, err
		}
		v := binary.LittleEndian.Uint64(b)
		if typ == 'D' {
			return math.Float64frombits(v), nil
		}
		return int64(v), nil
	case 'S', 'R':
		n, err := p.uint32()
		if err != nil {
			return nil, err
		}
		b, err := p.next(uint64(n))
		if err != nil {
			return nil, err
		}
		if typ == 'S' {
			return string(b), nil
		}
		return append([]byte(nil), b...), nil
	case 'f', 'd', 'l', 'i', 'b':
		return p.readArray(typ)
	default:
		return nil, fmt.Errorf("unknown property type %q", typ)
	}
}

func (p *fbxBinaryParser) readArray(typ byte) ([]float64, error) {
	count, err := p.uint32()
	if err != nil {
		return nil, err
	}
	encoding, err := p.uint32()
	if err != nil {
		return nil, err
	}
	compLen, err := p.uint32()
	if err != nil {
		return nil, err
	}
	raw, err := p.next(uint64(compLen))
	if err != nil {
		return nil, err
	}

	var elemSize uint64
	switch typ {
	case 'd', 'l':
		elemSize = 8
	case 'f', 'i':
		elemSize = 4
	case 'b':
		elemSize = 1
	}
	want := uint64(count) * elemSize
	if want > fbxMaxArrayBytes {
		return nil, fmt.Errorf("array of %d elements is too large", count)
	}

	switch encoding {
	case 0:
	case 1:
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		raw, err = io.ReadAll(io.LimitReader(zr, int64(want)+1))
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown array encoding %d", encoding)
	}
	if uint64(len(raw)) != want {
		return nil, fmt.Errorf("expected %d array bytes; got %d", want, len(raw))
	}

	out := make([]float64, count)
	for i := range out {
		b := raw[uint64(i)*elemSize:]
		switch typ {
		case 'd':
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b))
		case 'l':
			out[i] = float64(int64(binary.LittleEndian.Uint64(b)))
		case 'f':
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		case 'i':
			out[i] = float64(int32(binary.LittleEndian.Uint32(b)))
		case 'b':
			out[i] = float64(b[0])
		}
	}
	return out, nil
}

type fbxASCIIParser struct {
	data []byte
	pos  int
	line int
}

func parseFbxASCII(data []byte) ([]*fbxNode, error) {
	p := &fbxASCIIParser{data: data, line: 1}
	return p.parseNodes(0)
}

func (p *fbxASCIIParser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("fbx: line %d: %s", p.line, fmt.Sprintf(format, args...))
}

// Skip blanks and comments. Newlines are only skipped if multiLine is set.
func (p *fbxASCIIParser) skipSpace(multiLine bool) {
	for p.pos < len(p.data) {
		switch c := p.data[p.pos]; c {
		case ' ', '\t', '\r':
			p.pos++
		case '\n':
			if !multiLine {
				return
			}
			p.pos++
			p.line++
		case ';':
			for p.pos < len(p.data) && p.data[p.pos] != '\n' {
				p.pos++
			}
		default:
			return
		}
	}
}

func isFbxDelimiter(c byte) bool {
	switch c {
	case ':', '{', '}', ',', '"', ';', ' ', '\t', '\r', '\n':
		return true
	}
	return false
}

func (p *fbxASCIIParser) readBare() string {
	start := p.pos
	for p.pos < len(p.data) && !isFbxDelimiter(p.data[p.pos]) {
		p.pos++
	}
	return string(p.data[start:p.pos])
}

func (p *fbxASCIIParser) parseNodes(depth int) ([]*fbxNode, error) {
	if depth > fbxMaxDepth {
		return nil, p.errorf("nesting too deep")
	}

	var nodes []*fbxNode
	for {
		p.skipSpace(true)
		if p.pos >= len(p.data) {
			if depth > 0 {
				return nil, p.errorf("unexpected end of file; missing '}'")
			}
			return nodes, nil
		}
		if p.data[p.pos] == '}' {
			if depth == 0 {
				return nil, p.errorf("unexpected '}'")
			}
			p.pos++
			return nodes, nil
		}

		node, err := p.parseNode(depth)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
}

func (p *fbxASCIIParser) parseNode(depth int) (*fbxNode, error) {
	name := p.readBare()
	if name == "" || p.pos >= len(p.data) || p.data[p.pos] != ':' {
		return nil, p.errorf("expected a node name")
	}
	p.pos++

	node := &fbxNode{name: name}
	isArray, continued := false, false
	for {
		p.skipSpace(continued)
		continued = false
		if p.pos >= len(p.data) {
			return node, nil
		}

		switch c := p.data[p.pos]; c {
		case '\n':
			p.pos++
			p.line++
			return node, nil
		case '}':
			return node, nil
		case ',':
			p.pos++
			continued = true
		case '{':
			p.pos++
			children, err := p.parseNodes(depth + 1)
			if err != nil {
				return nil, err
			}
			// Arrays are written as "Name: *count { a: v0,v1,... }"
			if isArray {
				for _, child := range children {
					if child.name == "a" {
						node.props = append(node.props, child.props...)
					}
				}
				return node, nil
			}
			node.children = children
			return node, nil
		case '"':
			end := bytes.IndexByte(p.data[p.pos+1:], '"')
			if end == -1 {
				return nil, p.errorf("unterminated string")
			}
			s := p.data[p.pos+1 : p.pos+1+end]
			p.line += bytes.Count(s, []byte{'\n'})
			node.props = append(node.props, string(s))
			p.pos += end + 2
		case '*':
			p.pos++
			if _, err := strconv.ParseUint(p.readBare(), 10, 64); err != nil {
				return nil, p.errorf("invalid array length for %q", name)
			}
			isArray = true
		default:
			tok := p.readBare()
			if tok == "" {
				return nil, p.errorf("unexpected character %q", c)
			}
			node.props = append(node.props, parseFbxValue(tok))
		}
	}
}

func parseFbxValue(tok string) interface{} {
	if v, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(tok, 64); err == nil {
		return v
	}
	return tok
}
