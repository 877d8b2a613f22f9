// Package tilecache stores received tile payloads and their decoded
// bitmaps for one image, tracking per-tile decode state. Retention is
// visibility driven rather than LRU: Ready tiles stay while they are inside
// an expanded window around the viewport, and decode work outside it is
// cancelled to free capacity. The cache is shared between panes (split
// view) via reference counting.
package tilecache

import (
	"image"

	"slideview/internal/viewport"
)

// DecodeState is a tile's position in the decode lifecycle.
type DecodeState int

const (
	StatePending DecodeState = iota
	StateDecoding
	StateReady
	StateCancelled
	StateFailed
)

func (s DecodeState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDecoding:
		return "decoding"
	case StateReady:
		return "ready"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Decoder turns a tile payload into a bitmap. Pixel formats are the shell's
// concern; tests inject fakes.
type Decoder interface {
	Decode(data []byte) (image.Image, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(data []byte) (image.Image, error)

func (f DecoderFunc) Decode(data []byte) (image.Image, error) { return f(data) }

// Tile is one cached tile.
type Tile struct {
	Key    viewport.TileKey
	Raw    []byte
	Bitmap image.Image
	State  DecodeState

	// misses counts consecutive viewport updates with the tile outside
	// the expanded visible window; eviction triggers past a threshold.
	misses int
}

// evictAfterMisses is how many consecutive out-of-window sweeps a Ready
// tile survives before eviction.
const evictAfterMisses = 4

// Stats is a point-in-time memory/work snapshot for observability.
type Stats struct {
	Tiles          int
	BytesUsed      int64
	PendingDecodes int
}

// Cache holds tiles for one image. Not safe for concurrent use; the event
// loop owns it.
type Cache struct {
	Image   viewport.ImageDescriptor
	decoder Decoder

	// OnReady fires when a tile's bitmap finishes decoding. The TUI leaves
	// it unset: decoding happens inside its frame tick and every tick is
	// followed by a re-render anyway. Tests use it to observe completion.
	OnReady func(key viewport.TileKey)

	tiles map[uint64]*Tile
	queue []uint64 // decode FIFO

	refs int
	// OnTeardown runs when the last reference is released.
	OnTeardown func()
}

// New returns an empty cache holding one reference.
func New(img viewport.ImageDescriptor, dec Decoder) *Cache {
	return &Cache{Image: img, decoder: dec, tiles: map[uint64]*Tile{}, refs: 1}
}

// Retain adds a pane reference (e.g. split view sharing the image).
func (c *Cache) Retain() { c.refs++ }

// Release drops a reference; the last release tears the cache down.
func (c *Cache) Release() {
	if c.refs == 0 {
		return
	}
	c.refs--
	if c.refs == 0 {
		c.tiles = map[uint64]*Tile{}
		c.queue = nil
		if c.OnTeardown != nil {
			c.OnTeardown()
		}
	}
}

// Refs reports the current reference count.
func (c *Cache) Refs() int { return c.refs }

// Put stores a received tile payload and queues it for decoding. A payload
// for a tile that is already Ready refreshes nothing (the decoded bitmap is
// kept). Returns the tile so the caller can schedule its coarse re-render.
func (c *Cache) Put(key viewport.TileKey, data []byte) *Tile {
	idx := key.Index()
	if t, ok := c.tiles[idx]; ok && t.State == StateReady {
		return t
	}
	t := &Tile{Key: key, Raw: data, State: StatePending}
	c.tiles[idx] = t
	c.queue = append(c.queue, idx)
	return t
}

// Get returns the cached tile for the key, if any.
func (c *Cache) Get(key viewport.TileKey) (*Tile, bool) {
	t, ok := c.tiles[key.Index()]
	return t, ok
}

// Ready returns the decoded bitmap for the key when available.
func (c *Cache) Ready(key viewport.TileKey) (image.Image, bool) {
	if t, ok := c.tiles[key.Index()]; ok && t.State == StateReady {
		return t.Bitmap, true
	}
	return nil, false
}

// DecodeNext decodes up to n queued tiles, skipping cancelled ones, and
// fires OnReady for each success. It never blocks viewport updates: the
// loop calls it with a small budget per frame. Reports how many tiles
// reached Ready.
func (c *Cache) DecodeNext(n int) int {
	done := 0
	for n > 0 && len(c.queue) > 0 {
		idx := c.queue[0]
		c.queue = c.queue[1:]
		t, ok := c.tiles[idx]
		if !ok || t.State != StatePending {
			continue
		}
		n--
		t.State = StateDecoding
		bm, err := c.decoder.Decode(t.Raw)
		if err != nil {
			// Failed tiles are simply omitted from rendering; coarser
			// fallbacks cover the gap and a later viewport update
			// re-requests naturally if still visible.
			t.State = StateFailed
			t.Raw = nil
			continue
		}
		t.Bitmap = bm
		t.Raw = nil
		t.State = StateReady
		done++
		if c.OnReady != nil {
			c.OnReady(t.Key)
		}
	}
	return done
}

// CancelDecodesNotIn marks Pending/Decoding tiles outside the wanted set as
// Cancelled, freeing decode capacity. Ready tiles are untouched; they are
// handled by Sweep's miss counting.
func (c *Cache) CancelDecodesNotIn(wanted map[uint64]bool) {
	for idx, t := range c.tiles {
		if t.State != StatePending && t.State != StateDecoding {
			continue
		}
		if !wanted[idx] {
			t.State = StateCancelled
			t.Raw = nil
		}
	}
}

// WantedSet builds the retention set for a viewport update: the ideal
// level's visible tiles, one finer level, and every coarser level (the
// progressive-refinement fallbacks).
func (c *Cache) WantedSet(v viewport.Viewport, idealLevel, margin int) map[uint64]bool {
	wanted := map[uint64]bool{}
	for level := idealLevel - 1; level < c.Image.Levels; level++ {
		if level < 0 {
			continue
		}
		for _, k := range viewport.VisibleTiles(v, c.Image, level, margin) {
			wanted[k.Index()] = true
		}
	}
	return wanted
}

// Sweep updates miss counters against the wanted set and evicts tiles that
// have stayed out of the window for several consecutive updates. Cancelled
// and Failed tiles are dropped immediately.
func (c *Cache) Sweep(wanted map[uint64]bool) {
	for idx, t := range c.tiles {
		if wanted[idx] {
			t.misses = 0
			continue
		}
		switch t.State {
		case StateCancelled, StateFailed:
			delete(c.tiles, idx)
		default:
			t.misses++
			if t.misses >= evictAfterMisses {
				delete(c.tiles, idx)
			}
		}
	}
}

// Stats reports memory and pending-work usage.
func (c *Cache) Stats() Stats {
	st := Stats{Tiles: len(c.tiles)}
	for _, t := range c.tiles {
		st.BytesUsed += int64(len(t.Raw))
		if t.Bitmap != nil {
			b := t.Bitmap.Bounds()
			st.BytesUsed += int64(b.Dx()) * int64(b.Dy()) * 4
		}
		if t.State == StatePending || t.State == StateDecoding {
			st.PendingDecodes++
		}
	}
	return st
}

// BestCovering returns the sharpest Ready tile at or coarser than the
// ideal level that covers the given image point, for progressive
// refinement rendering. ok is false when nothing cached covers it.
func (c *Cache) BestCovering(ix, iy float64, idealLevel int) (*Tile, bool) {
	for level := idealLevel; level < c.Image.Levels; level++ {
		px := float64(int(1)<<uint(level)) * viewport.TileSize
		key := viewport.TileKey{
			Level: level,
			X:     int(ix / px),
			Y:     int(iy / px),
		}
		if t, ok := c.tiles[key.Index()]; ok && t.State == StateReady {
			return t, true
		}
	}
	return nil, false
}
