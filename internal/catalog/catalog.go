// Package catalog holds the ordered, de-duplicated collection of media
// descriptors that every control surface browses. Insertion order is the
// contract: button positions and browse windows depend on it staying stable
// across upserts.
package catalog

import (
	"sync"

	"github.com/matteklund/homedeck/internal/media"
)

// Catalog is safe for concurrent use. Reads are lock-shared and never
// observe a partially applied write.
type Catalog struct {
	mu      sync.RWMutex
	order   []string // descriptor ids in insertion order
	entries map[string]media.Descriptor
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		entries: make(map[string]media.Descriptor),
	}
}

// Upsert inserts a descriptor or replaces the entry with the same id.
// A replaced entry keeps its original position in the ordering.
func (c *Catalog) Upsert(d media.Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.upsertLocked(d)
}

func (c *Catalog) upsertLocked(d media.Descriptor) {
	if _, exists := c.entries[d.ID()]; !exists {
		c.order = append(c.order, d.ID())
	}
	c.entries[d.ID()] = d
}

// Remove deletes the entry with the given id. Absent ids are a no-op.
func (c *Catalog) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[id]; !exists {
		return
	}
	delete(c.entries, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Get returns the descriptor with the given id.
func (c *Catalog) Get(id string) (media.Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.entries[id]
	return d, ok
}

// List returns all descriptors in stable insertion order.
func (c *Catalog) List() []media.Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]media.Descriptor, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id])
	}
	return out
}

// ListKind returns the descriptors of one kind, in insertion order.
func (c *Catalog) ListKind(kind media.Kind) []media.Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []media.Descriptor
	for _, id := range c.order {
		if d := c.entries[id]; d.Kind() == kind {
			out = append(out, d)
		}
	}
	return out
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// ReplaceKind swaps every entry of one kind for the freshly loaded set,
// leaving other kinds untouched. Entries whose id survives the refresh keep
// their position; new ids are appended in the order given. The swap is
// atomic: a concurrent List never sees a half-replaced kind.
func (c *Catalog) ReplaceKind(kind media.Kind, fresh []media.Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	incoming := make(map[string]bool, len(fresh))
	for _, d := range fresh {
		incoming[d.ID()] = true
	}

	// Drop stale entries of this kind.
	kept := c.order[:0:0]
	for _, id := range c.order {
		if d := c.entries[id]; d.Kind() == kind && !incoming[id] {
			delete(c.entries, id)
			continue
		}
		kept = append(kept, id)
	}
	c.order = kept

	for _, d := range fresh {
		c.upsertLocked(d)
	}
}
