package browse

import (
	"sync"

	"github.com/google/uuid"

	"github.com/matteklund/homedeck/internal/catalog"
)

// Registry hands out cursors to control surfaces and resolves them by id on
// later calls. Cursors are transient: nothing survives a restart.
type Registry struct {
	cat *catalog.Catalog

	mu      sync.RWMutex
	cursors map[string]*Cursor
}

// NewRegistry creates an empty registry over the given catalog.
func NewRegistry(cat *catalog.Catalog) *Registry {
	return &Registry{
		cat:     cat,
		cursors: make(map[string]*Cursor),
	}
}

// Create registers a new cursor and returns its id.
func (r *Registry) Create(opts Options) (string, *Cursor) {
	id := uuid.NewString()
	c := NewCursor(r.cat, opts)
	r.mu.Lock()
	r.cursors[id] = c
	r.mu.Unlock()
	return id, c
}

// Get resolves a cursor id.
func (r *Registry) Get(id string) (*Cursor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cursors[id]
	return c, ok
}

// Remove drops a cursor. Unknown ids are a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.cursors, id)
	r.mu.Unlock()
}
