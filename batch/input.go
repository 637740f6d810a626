package batch

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// InputFile is a model file queued for rendering.
type InputFile struct {
	Path string
}

// NewInputFile creates an input for the file name in dir.
func NewInputFile(dir, name string) InputFile {
	return InputFile{Path: filepath.Join(dir, name)}
}

// Ext returns the file extension including the leading dot. Only the last
// extension is considered.
func (f InputFile) Ext() string {
	return filepath.Ext(f.Path)
}

// Name returns the file's base name without its last extension.
func (f InputFile) Name() string {
	base := filepath.Base(f.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (f InputFile) String() string {
	return f.Path
}

// Discover lists the regular files in dir whose extension is accepted by
// supports. Results are sorted by name.
func Discover(fs afero.Fs, dir string, supports func(ext string) bool) ([]InputFile, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("batch: could not list %q: %w", dir, err)
	}

	var files []InputFile
	for _, entry := range entries {
		if entry.IsDir() || !supports(filepath.Ext(entry.Name())) {
			continue
		}
		files = append(files, NewInputFile(dir, entry.Name()))
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files, nil
}
