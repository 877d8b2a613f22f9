package tilecache

import (
	"github.com/google/uuid"

	"slideview/internal/viewport"
)

// Registry shares one Cache per open image between panes. Acquire retains,
// the caller releases; the registry drops its entry on teardown.
type Registry struct {
	decoder Decoder
	caches  map[uuid.UUID]*Cache
}

// NewRegistry returns an empty registry using the given decoder for every
// cache it creates.
func NewRegistry(dec Decoder) *Registry {
	return &Registry{decoder: dec, caches: map[uuid.UUID]*Cache{}}
}

// Acquire returns the cache for the image, creating it on first use and
// retaining it otherwise.
func (r *Registry) Acquire(img viewport.ImageDescriptor) *Cache {
	if c, ok := r.caches[img.ID]; ok {
		c.Retain()
		return c
	}
	c := New(img, r.decoder)
	id := img.ID
	prev := c.OnTeardown
	c.OnTeardown = func() {
		delete(r.caches, id)
		if prev != nil {
			prev()
		}
	}
	r.caches[img.ID] = c
	return c
}

// Open reports how many images currently have live caches.
func (r *Registry) Open() int { return len(r.caches) }
