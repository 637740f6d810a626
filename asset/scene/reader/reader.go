package reader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/achilleasa/batchrender/asset"
	"github.com/achilleasa/batchrender/asset/scene"
	"github.com/achilleasa/batchrender/log"
	"github.com/achilleasa/batchrender/types"
	"github.com/spf13/afero"
)

var ErrUnsupportedFormat = errors.New("reader: unsupported file format")

// The Reader interface is implemented by all scene readers.
type Reader interface {
	// Read objects from a resource.
	Read(*asset.Resource) ([]*scene.Object, error)
}

// A Factory creates a new Reader instance. Readers keep per-file parser state
// so a new instance is created for each file.
type Factory func() Reader

// Format describes a registered file format.
type Format struct {
	Name       string
	Extensions []string

	// If set, the importer axis convention is applied to the read geometry.
	// Formats that store geometry in the internal convention leave this unset.
	ConvertAxes bool

	factory Factory
}

// Registry maps file extensions to readers.
type Registry struct {
	logger log.Logger
	fs     afero.Fs

	formats []*Format
	byExt   map[string]*Format
}

// Create a registry for the given filesystem with all built-in formats
// registered. A nil fs selects asset.DefaultFs.
func NewRegistry(fs afero.Fs) *Registry {
	if fs == nil {
		fs = asset.DefaultFs
	}

	r := &Registry{
		logger: log.New("importer"),
		fs:     fs,
		byExt:  make(map[string]*Format),
	}

	r.mustRegister("Wavefront OBJ", []string{".obj"}, true, newWavefrontReader)
	r.mustRegister("Stereolithography", []string{".stl"}, true, newStlReader)
	r.mustRegister("Autodesk FBX", []string{".fbx"}, true, newFbxReader)
	r.mustRegister("Stanford PLY", []string{".ply"}, true, newPlyReader)
	r.mustRegister("Scene archive", []string{".zip"}, false, newZipSceneReader)
	return r
}

// Register a reader for a set of file extensions. Extensions are matched
// case-insensitively and must include the leading dot.
func (r *Registry) Register(name string, extensions []string, convertAxes bool, factory Factory) error {
	if len(extensions) == 0 {
		return fmt.Errorf("reader: format %q does not define any extensions", name)
	}

	f := &Format{Name: name, ConvertAxes: convertAxes, factory: factory}
	for _, ext := range extensions {
		ext = normalizeExt(ext)
		if existing, taken := r.byExt[ext]; taken {
			return fmt.Errorf("reader: extension %q already registered by format %q", ext, existing.Name)
		}
		f.Extensions = append(f.Extensions, ext)
	}

	for _, ext := range f.Extensions {
		r.byExt[ext] = f
	}
	r.formats = append(r.formats, f)
	return nil
}

func (r *Registry) mustRegister(name string, extensions []string, convertAxes bool, factory Factory) {
	if err := r.Register(name, extensions, convertAxes, factory); err != nil {
		panic(err)
	}
}

// Get the registered formats sorted by name.
func (r *Registry) Formats() []Format {
	out := make([]Format, 0, len(r.formats))
	for _, f := range r.formats {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Supports returns true if a reader is registered for ext.
func (r *Registry) Supports(ext string) bool {
	_, supported := r.byExt[normalizeExt(ext)]
	return supported
}

// Read all objects from the given file without applying any axis conversion.
func (r *Registry) ReadObjects(path string) ([]*scene.Object, error) {
	f, exists := r.byExt[normalizeExt(filepath.Ext(path))]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	res, err := asset.NewResource(r.fs, path, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	return f.factory().Read(res)
}

// Import the objects in path into dst. For formats that require it, the
// geometry is converted from the supplied axis convention into the internal
// one (+Y up, -Z forward).
func (r *Registry) Import(ctx context.Context, path string, axes types.AxisConvention, dst *scene.Collection) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, exists := r.byExt[normalizeExt(filepath.Ext(path))]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	axisMat, err := axes.Matrix()
	if err != nil {
		return err
	}

	objects, err := r.ReadObjects(path)
	if err != nil {
		return err
	}

	if f.ConvertAxes && axes != types.DefaultAxisConvention() {
		r.logger.Debugf("converting %q from axis convention %s", path, axes)
		for _, obj := range objects {
			if obj.Mesh != nil {
				obj.Mesh.Transform(axisMat)
			}
		}
	}

	dst.Link(objects...)
	r.logger.Debugf("imported %d object(s) from %q into %q", len(objects), path, dst.Name)
	return nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
