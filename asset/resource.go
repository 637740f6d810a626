package asset

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

var ErrResourceNotFound = errors.New("resource: not found")

// The filesystem used when NewResource is called with a nil fs.
var DefaultFs = afero.NewOsFs()

// The Resource type wraps a streamable file opened from an afero filesystem.
type Resource struct {
	io.ReadCloser

	fs   afero.Fs
	path string
	size int64
}

// Returns the path to this resource.
func (r *Resource) Path() string {
	return r.path
}

// Returns the directory containing this resource.
func (r *Resource) Dir() string {
	return filepath.Dir(r.path)
}

// Returns the resource size in bytes or -1 if the size is not known.
func (r *Resource) Size() int64 {
	return r.size
}

// Returns the filesystem this resource was opened from.
func (r *Resource) Fs() afero.Fs {
	return r.fs
}

// Create a new Resource data stream. If relTo is specified and pathToResource
// is not absolute, the path to the new Resource is generated by joining the
// directory of relTo with pathToResource and the resource is opened from the
// same filesystem as relTo.
//
// The caller must make sure to close the returned Resource.
func NewResource(fs afero.Fs, pathToResource string, relTo *Resource) (*Resource, error) {
	if fs == nil {
		fs = DefaultFs
	}

	// Normalize windows-style separators that are common in exported mtl/obj files
	path := filepath.FromSlash(strings.Replace(pathToResource, `\`, `/`, -1))
	if relTo != nil {
		fs = relTo.fs
		if !filepath.IsAbs(path) {
			path = filepath.Join(relTo.Dir(), path)
		}
	}
	path = filepath.Clean(path)

	info, err := fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrResourceNotFound, path)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("resource: %s is a directory", path)
	}

	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("resource: could not open %s: %w", path, err)
	}

	return &Resource{
		ReadCloser: f,
		fs:         fs,
		path:       path,
		size:       info.Size(),
	}, nil
}

// Create a resource from a reader. Relative resources are resolved against
// name using the supplied filesystem.
func NewResourceFromStream(fs afero.Fs, name string, source io.Reader) *Resource {
	if fs == nil {
		fs = DefaultFs
	}
	return &Resource{
		ReadCloser: io.NopCloser(source),
		fs:         fs,
		path:       name,
		size:       -1,
	}
}
