package asset

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestLocalResource(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/models/cube.obj", []byte("v 0 0 0\n"), 0644)

	res, err := NewResource(fs, "/models/cube.obj", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()

	if res.Size() != 8 {
		t.Fatalf("expected resource size to be 8; got %d", res.Size())
	}

	data, err := io.ReadAll(res)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "v 0 0 0\n" {
		t.Fatalf("unexpected resource contents %q", string(data))
	}
}

func TestRelativeResources(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/models/cube.obj", []byte("mtllib mat/cube.mtl\n"), 0644)
	afero.WriteFile(fs, "/models/mat/cube.mtl", []byte("newmtl red\n"), 0644)

	res1, err := NewResource(fs, "/models/cube.obj", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res1.Close()

	res2, err := NewResource(nil, `mat\cube.mtl`, res1)
	if err != nil {
		t.Fatal(err)
	}
	defer res2.Close()

	if exp := "/models/mat/cube.mtl"; res2.Path() != exp {
		t.Fatalf("expected relative resource path to be %s; got %s", exp, res2.Path())
	}
}

func TestMissingResource(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := NewResource(fs, "/nope.obj", nil)
	if !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound; got %v", err)
	}

	fs.MkdirAll("/dir.obj", 0755)
	_, err = NewResource(fs, "/dir.obj", nil)
	if err == nil || !strings.Contains(err.Error(), "is a directory") {
		t.Fatalf("expected a directory error; got %v", err)
	}
}

func TestStreamResource(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/lib/inc.mtl", []byte("ok"), 0644)

	parent := NewResourceFromStream(fs, "/lib/embedded.obj", strings.NewReader("payload"))
	if parent.Size() != -1 {
		t.Fatalf("expected stream size to be unknown; got %d", parent.Size())
	}

	child, err := NewResource(nil, "inc.mtl", parent)
	if err != nil {
		t.Fatal(err)
	}
	child.Close()
}
