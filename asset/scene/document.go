package scene

import (
	"errors"
	"fmt"

	"github.com/achilleasa/batchrender/log"
	"github.com/achilleasa/batchrender/types"
)

var (
	ErrNotRegistered = errors.New("scene: collection is not registered with the document")
	ErrAlreadyLinked = errors.New("scene: collection is already linked to the scene")
	ErrNotLinked     = errors.New("scene: collection is not linked to the scene")
)

// Document owns the collection registry and the active scene. It is not safe
// for concurrent use; a document is expected to have a single mutator.
type Document struct {
	logger log.Logger

	scene       *Scene
	collections []*Collection

	created int
	removed int
}

// Create a new empty document.
func NewDocument() *Document {
	return &Document{
		logger: log.New("document"),
		scene: &Scene{
			Name:       "Scene",
			Background: types.Vec3{0.05, 0.05, 0.05},
		},
	}
}

// Get the active scene.
func (d *Document) Scene() *Scene {
	return d.scene
}

// Get the registered collections in creation order.
func (d *Document) Collections() []*Collection {
	return append([]*Collection(nil), d.collections...)
}

// Lookup a registered collection by name.
func (d *Document) Lookup(name string) (*Collection, bool) {
	for _, c := range d.collections {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Stats returns the number of collections created and removed over the
// document's lifetime.
func (d *Document) Stats() (created, removed int) {
	return d.created, d.removed
}

// NewContainer registers a new empty collection. If the requested name is
// taken, a numeric suffix (.001, .002, ...) is appended.
func (d *Document) NewContainer(name string) *Collection {
	c := &Collection{Name: d.uniqueName(name)}
	d.collections = append(d.collections, c)
	d.created++
	d.logger.Debugf("created collection %q", c.Name)
	return c
}

// Link a registered collection to the scene.
func (d *Document) Link(c *Collection) error {
	if d.indexOf(c) == -1 {
		return fmt.Errorf("%w: %q", ErrNotRegistered, c.Name)
	}
	if d.scene.indexOf(c) != -1 {
		return fmt.Errorf("%w: %q", ErrAlreadyLinked, c.Name)
	}

	d.scene.children = append(d.scene.children, c)
	c.users++
	return nil
}

// Unlink a collection from the scene.
func (d *Document) Unlink(c *Collection) error {
	idx := d.scene.indexOf(c)
	if idx == -1 {
		return fmt.Errorf("%w: %q", ErrNotLinked, c.Name)
	}

	d.scene.children = append(d.scene.children[:idx], d.scene.children[idx+1:]...)
	c.users--
	return nil
}

// Remove a collection from the registry. The collection is unlinked from the
// scene first if needed.
func (d *Document) Remove(c *Collection) error {
	idx := d.indexOf(c)
	if idx == -1 {
		return fmt.Errorf("%w: %q", ErrNotRegistered, c.Name)
	}

	if d.scene.indexOf(c) != -1 {
		if err := d.Unlink(c); err != nil {
			return err
		}
	}

	d.collections = append(d.collections[:idx], d.collections[idx+1:]...)
	d.removed++
	d.logger.Debugf("removed collection %q", c.Name)
	return nil
}

// PurgeOrphans removes every registered collection with zero users and
// returns the number of removed collections.
func (d *Document) PurgeOrphans() int {
	kept := d.collections[:0]
	purged := 0
	for _, c := range d.collections {
		if c.users > 0 {
			kept = append(kept, c)
			continue
		}
		d.logger.Debugf("purging orphan collection %q", c.Name)
		purged++
	}

	// Clear dangling references beyond the new length
	for idx := len(kept); idx < len(d.collections); idx++ {
		d.collections[idx] = nil
	}
	d.collections = kept
	d.removed += purged
	return purged
}

func (d *Document) indexOf(c *Collection) int {
	for idx, registered := range d.collections {
		if registered == c {
			return idx
		}
	}
	return -1
}

func (d *Document) uniqueName(name string) string {
	if _, taken := d.Lookup(name); !taken {
		return name
	}

	for suffix := 1; ; suffix++ {
		candidate := fmt.Sprintf("%s.%03d", name, suffix)
		if _, taken := d.Lookup(candidate); !taken {
			return candidate
		}
	}
}
