package scene

import (
	"errors"
	"testing"

	"github.com/achilleasa/batchrender/types"
)

func TestUniqueCollectionNames(t *testing.T) {
	doc := NewDocument()

	expNames := []string{"batch-tmp", "batch-tmp.001", "batch-tmp.002"}
	for idx, exp := range expNames {
		c := doc.NewContainer("batch-tmp")
		if c.Name != exp {
			t.Fatalf("[collection %d] expected name %q; got %q", idx, exp, c.Name)
		}
	}

	// Freed names get reused
	first, _ := doc.Lookup("batch-tmp")
	if err := doc.Remove(first); err != nil {
		t.Fatal(err)
	}
	if c := doc.NewContainer("batch-tmp"); c.Name != "batch-tmp" {
		t.Fatalf("expected freed name to be reused; got %q", c.Name)
	}
}

func TestLinkUnlink(t *testing.T) {
	doc := NewDocument()
	c := doc.NewContainer("tmp")

	if err := doc.Link(c); err != nil {
		t.Fatal(err)
	}
	if c.Users() != 1 {
		t.Fatalf("expected collection to have 1 user; got %d", c.Users())
	}
	if err := doc.Link(c); !errors.Is(err, ErrAlreadyLinked) {
		t.Fatalf("expected ErrAlreadyLinked; got %v", err)
	}
	if len(doc.Scene().Children()) != 1 {
		t.Fatalf("expected scene to have 1 child; got %d", len(doc.Scene().Children()))
	}

	if err := doc.Unlink(c); err != nil {
		t.Fatal(err)
	}
	if c.Users() != 0 {
		t.Fatalf("expected collection to have 0 users; got %d", c.Users())
	}
	if err := doc.Unlink(c); !errors.Is(err, ErrNotLinked) {
		t.Fatalf("expected ErrNotLinked; got %v", err)
	}

	foreign := &Collection{Name: "foreign"}
	if err := doc.Link(foreign); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered; got %v", err)
	}
}

func TestRemoveUnlinksCollection(t *testing.T) {
	doc := NewDocument()
	c := doc.NewContainer("tmp")
	doc.Link(c)

	if err := doc.Remove(c); err != nil {
		t.Fatal(err)
	}
	if len(doc.Scene().Children()) != 0 {
		t.Fatal("expected removed collection to be unlinked from the scene")
	}
	if err := doc.Remove(c); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered; got %v", err)
	}

	created, removed := doc.Stats()
	if created != 1 || removed != 1 {
		t.Fatalf("expected 1 created/1 removed; got %d/%d", created, removed)
	}
}

func TestPurgeOrphans(t *testing.T) {
	doc := NewDocument()
	linked := doc.NewContainer("linked")
	doc.Link(linked)
	doc.NewContainer("orphan")
	doc.NewContainer("orphan")

	if purged := doc.PurgeOrphans(); purged != 2 {
		t.Fatalf("expected 2 orphans to be purged; got %d", purged)
	}

	remaining := doc.Collections()
	if len(remaining) != 1 || remaining[0] != linked {
		t.Fatalf("expected only the linked collection to remain; got %v", remaining)
	}

	if purged := doc.PurgeOrphans(); purged != 0 {
		t.Fatalf("expected second purge to be a no-op; got %d", purged)
	}
}

func TestSceneBBox(t *testing.T) {
	doc := NewDocument()
	if !doc.Scene().BBox().IsEmpty() {
		t.Fatal("expected empty scene to have an empty bbox")
	}

	mesh := NewMesh("tri")
	mesh.Add(NewFlatTriangle(types.Vec3{0, 0, 0}, types.Vec3{1, 0, 0}, types.Vec3{0, 2, 0}))

	c := doc.NewContainer("tmp")
	c.Link(NewObject("tri", mesh, nil))

	// Unlinked collections do not contribute to the scene
	if !doc.Scene().BBox().IsEmpty() {
		t.Fatal("expected unlinked collection to be ignored")
	}

	doc.Link(c)
	bbox := doc.Scene().BBox()
	if bbox[0] != (types.Vec3{0, 0, 0}) || bbox[1] != (types.Vec3{1, 2, 0}) {
		t.Fatalf("unexpected scene bbox %v", bbox)
	}
	if len(doc.Scene().Objects()) != 1 {
		t.Fatalf("expected 1 scene object; got %d", len(doc.Scene().Objects()))
	}
}

func TestFrameBBox(t *testing.T) {
	bbox := types.BBox{types.Vec3{-1, -1, -1}, types.Vec3{1, 1, 1}}
	cam := FrameBBox(bbox, DefaultFOV)
	cam.SetupProjection(1)

	if cam.LookAt != bbox.Center() {
		t.Fatalf("expected camera to look at bbox center; got %v", cam.LookAt)
	}
	if cam.Position[2] <= 1 || cam.Position[1] <= 0 {
		t.Fatalf("expected camera to be in front of and above the bbox; got %v", cam.Position)
	}

	// The center ray should point at the bbox center
	dir := cam.RayDir(0.5, 0.5)
	exp := cam.LookAt.Sub(cam.Position).Normalize()
	if !dir.ApproxEqual(exp) {
		t.Fatalf("expected center ray %v; got %v", exp, dir)
	}

	// The top-left ray should point up and to the left of the center ray
	tl := cam.RayDir(0, 0)
	if tl[0] >= dir[0] || tl[1] <= dir[1] {
		t.Fatalf("expected top-left ray to point up-left; got %v (center %v)", tl, dir)
	}
}
