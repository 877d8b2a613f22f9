package mask

import "math"

// TileSize is the edge length of a mask tile in level-0 pixels. Mask tile
// origins are always aligned to it.
const TileSize = 512

// DefaultUndoDepth bounds the undo stack; pushing past it drops the oldest
// step.
const DefaultUndoDepth = 24

// Origin is a mask tile's aligned top-left corner in level-0 pixels.
type Origin struct {
	X int
	Y int
}

// OriginFor returns the aligned tile origin containing the image point.
func OriginFor(x, y float64) Origin {
	return Origin{
		X: int(math.Floor(x/TileSize)) * TileSize,
		Y: int(math.Floor(y/TileSize)) * TileSize,
	}
}

// Tile is one open mask tile within a paint session. AnnotationID is empty
// until the tile has been synced at least once.
type Tile struct {
	Origin       Origin
	Bits         *Bitmask
	AnnotationID string
	Dirty        bool
}

func (t *Tile) clone() *Tile {
	return &Tile{Origin: t.Origin, Bits: t.Bits.Clone(), AnnotationID: t.AnnotationID, Dirty: t.Dirty}
}

// UndoStep snapshots the whole tile set as it was before one brush stroke.
type UndoStep struct {
	Desc  string
	tiles map[Origin]*Tile
}

// ExistingMaskFunc lets the session pick up a previously synced mask at a
// tile origin so strokes extend it instead of starting from zero.
type ExistingMaskFunc func(o Origin) (bits *Bitmask, annotationID string, ok bool)

// Session is one interactive mask-paint session over a single image. All
// coordinates are level-0 pixels. It is not safe for concurrent use; the
// event loop owns it.
type Session struct {
	// Existing, when set, seeds newly touched tiles from prior annotations.
	Existing ExistingMaskFunc
	// UndoDepth overrides DefaultUndoDepth when positive.
	UndoDepth int

	tiles map[Origin]*Tile

	undo []UndoStep
	redo []UndoStep

	// In-flight stroke state.
	painting   bool
	erase      bool
	radius     float64
	lastX      float64
	lastY      float64
	preStroke  map[Origin]*Tile
	strokeDesc string
}

// NewSession returns an empty paint session.
func NewSession() *Session {
	return &Session{tiles: map[Origin]*Tile{}}
}

// Tiles returns the live tile set, keyed by origin.
func (s *Session) Tiles() map[Origin]*Tile { return s.tiles }

// TileAt returns the open tile containing the point, if any.
func (s *Session) TileAt(x, y float64) (*Tile, bool) {
	t, ok := s.tiles[OriginFor(x, y)]
	return t, ok
}

// Painting reports whether a stroke is in progress.
func (s *Session) Painting() bool { return s.painting }

// BeginStroke starts a brush stroke at the given image point. erase clears
// bits instead of setting them. The pre-stroke snapshot is captured lazily
// as tiles are first touched.
func (s *Session) BeginStroke(x, y, radius float64, erase bool) {
	if radius <= 0 {
		radius = 1
	}
	s.painting = true
	s.erase = erase
	s.radius = radius
	s.lastX, s.lastY = x, y
	s.preStroke = map[Origin]*Tile{}
	if erase {
		s.strokeDesc = "erase stroke"
	} else {
		s.strokeDesc = "paint stroke"
	}
	s.stamp(x, y)
}

// StrokeTo extends the stroke to a new pointer position, interpolating
// stamps at ~30% of the brush radius so fast pointer motion leaves no gaps.
func (s *Session) StrokeTo(x, y float64) {
	if !s.painting {
		return
	}
	dx := x - s.lastX
	dy := y - s.lastY
	dist := math.Hypot(dx, dy)
	step := s.radius * 0.3
	if step < 1 {
		step = 1
	}
	for d := step; d < dist; d += step {
		s.stamp(s.lastX+dx*d/dist, s.lastY+dy*d/dist)
	}
	s.stamp(x, y)
	s.lastX, s.lastY = x, y
}

// EndStroke finishes the stroke. If any bit changed against the pre-stroke
// snapshot, one undo step is pushed and the redo stack is cleared. Returns
// whether the mask changed (callers use this to arm the sync debounce).
func (s *Session) EndStroke() bool {
	if !s.painting {
		return false
	}
	s.painting = false

	changed := false
	for o, before := range s.preStroke {
		now, ok := s.tiles[o]
		if !ok || !now.Bits.Equal(before.Bits) {
			changed = true
			break
		}
	}
	if !changed {
		s.preStroke = nil
		return false
	}

	// The step snapshots every open tile, not just touched ones: undo/redo
	// swap the whole tile set.
	step := UndoStep{Desc: s.strokeDesc, tiles: map[Origin]*Tile{}}
	for o, t := range s.tiles {
		if before, ok := s.preStroke[o]; ok {
			step.tiles[o] = before
		} else {
			step.tiles[o] = t.clone()
		}
	}
	// Tiles created during this stroke were absent before it; represent
	// them in the snapshot as their pre-stroke (possibly all-zero) state,
	// already captured above via preStroke.
	for o, before := range s.preStroke {
		if _, ok := step.tiles[o]; !ok {
			step.tiles[o] = before
		}
	}

	s.pushUndo(step)
	s.redo = nil
	s.preStroke = nil
	return true
}

func (s *Session) pushUndo(step UndoStep) {
	depth := s.UndoDepth
	if depth <= 0 {
		depth = DefaultUndoDepth
	}
	s.undo = append(s.undo, step)
	if len(s.undo) > depth {
		s.undo = s.undo[1:]
	}
}

// CanUndo reports whether an undo step is available.
func (s *Session) CanUndo() bool { return len(s.undo) > 0 }

// CanRedo reports whether a redo step is available.
func (s *Session) CanRedo() bool { return len(s.redo) > 0 }

// Undo swaps the current tile set with the most recent undo snapshot,
// pushing the replaced state onto the redo stack. Returns false when there
// is nothing to undo.
func (s *Session) Undo() bool {
	if len(s.undo) == 0 {
		return false
	}
	step := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, s.snapshotAll(step.Desc))
	s.restore(step)
	return true
}

// Redo is the inverse of Undo.
func (s *Session) Redo() bool {
	if len(s.redo) == 0 {
		return false
	}
	step := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.undo = append(s.undo, s.snapshotAll(step.Desc))
	s.restore(step)
	return true
}

func (s *Session) snapshotAll(desc string) UndoStep {
	step := UndoStep{Desc: desc, tiles: map[Origin]*Tile{}}
	for o, t := range s.tiles {
		step.tiles[o] = t.clone()
	}
	return step
}

func (s *Session) restore(step UndoStep) {
	s.tiles = map[Origin]*Tile{}
	for o, t := range step.tiles {
		restored := t.clone()
		restored.Dirty = true
		s.tiles[o] = restored
	}
}

// DirtyTiles returns the tiles with unsynced changes.
func (s *Session) DirtyTiles() []*Tile {
	var out []*Tile
	for _, t := range s.tiles {
		if t.Dirty {
			out = append(out, t)
		}
	}
	return out
}

// MarkSynced records a successful sync for the tile at the origin,
// remembering the annotation id assigned by the server.
func (s *Session) MarkSynced(o Origin, annotationID string) {
	if t, ok := s.tiles[o]; ok {
		t.Dirty = false
		if annotationID != "" {
			t.AnnotationID = annotationID
		}
	}
}

// stamp rasterizes one circular brush dot across every tile the brush's
// bounding box overlaps, opening (and snapshotting) tiles on first touch.
func (s *Session) stamp(cx, cy float64) {
	r := s.radius
	minO := OriginFor(cx-r, cy-r)
	maxO := OriginFor(cx+r, cy+r)
	for oy := minO.Y; oy <= maxO.Y; oy += TileSize {
		for ox := minO.X; ox <= maxO.X; ox += TileSize {
			s.stampTile(Origin{X: ox, Y: oy}, cx, cy)
		}
	}
}

func (s *Session) stampTile(o Origin, cx, cy float64) {
	t := s.openTile(o)

	// Brush bounding box intersected with the tile, in tile-local pixels.
	r := s.radius
	x0 := int(math.Floor(cx-r)) - o.X
	x1 := int(math.Ceil(cx+r)) - o.X
	y0 := int(math.Floor(cy-r)) - o.Y
	y1 := int(math.Ceil(cy+r)) - o.Y
	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > TileSize-1 {
		x1 = TileSize - 1
	}
	if y1 > TileSize-1 {
		y1 = TileSize - 1
	}

	r2 := r * r
	set := !s.erase
	for y := y0; y <= y1; y++ {
		dy := float64(o.Y+y) + 0.5 - cy
		for x := x0; x <= x1; x++ {
			dx := float64(o.X+x) + 0.5 - cx
			if dx*dx+dy*dy <= r2 {
				t.Bits.Set(x, y, set)
			}
		}
	}
	t.Dirty = true
}

// openTile returns the tile at the origin, creating it if needed. During a
// stroke the tile's pre-stroke state is captured before the first mutation.
func (s *Session) openTile(o Origin) *Tile {
	t, ok := s.tiles[o]
	if !ok {
		t = &Tile{Origin: o, Bits: NewBitmask(TileSize, TileSize)}
		if s.Existing != nil {
			if bits, id, found := s.Existing(o); found && bits != nil {
				t.Bits = bits.Clone()
				t.AnnotationID = id
			}
		}
		s.tiles[o] = t
	}
	if s.painting && s.preStroke != nil {
		if _, snapped := s.preStroke[o]; !snapped {
			s.preStroke[o] = t.clone()
		}
	}
	return t
}
