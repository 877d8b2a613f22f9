package mask

import (
	"testing"
)

func TestRowStride(t *testing.T) {
	cases := []struct{ w, want int }{{1, 1}, {7, 1}, {8, 1}, {9, 2}, {16, 2}, {17, 3}, {512, 64}}
	for _, c := range cases {
		if got := RowStride(c.w); got != c.want {
			t.Fatalf("RowStride(%d)=%d want %d", c.w, got, c.want)
		}
	}
}

func TestBitmaskSetGet(t *testing.T) {
	b := NewBitmask(16, 16)
	b.Set(0, 0, true)
	b.Set(7, 0, true)
	b.Set(8, 0, true)
	b.Set(15, 15, true)

	for _, p := range [][2]int{{0, 0}, {7, 0}, {8, 0}, {15, 15}} {
		if !b.Get(p[0], p[1]) {
			t.Fatalf("bit (%d,%d) not set", p[0], p[1])
		}
	}
	if b.Get(1, 0) || b.Get(0, 1) {
		t.Fatal("unexpected set bit")
	}
	// Out of bounds is a no-op read/write.
	if b.Get(-1, 0) || b.Get(16, 0) {
		t.Fatal("out-of-bounds read returned true")
	}
	b.Set(-1, 0, true)
	b.Set(16, 16, true)

	b.Set(8, 0, false)
	if b.Get(8, 0) {
		t.Fatal("clear did not clear")
	}
}

func TestBitmaskBase64RoundTrip(t *testing.T) {
	cases := []struct {
		name string
		fill func(*Bitmask)
	}{
		{"all zero", func(*Bitmask) {}},
		{"all one", func(b *Bitmask) {
			for i := range b.Data {
				b.Data[i] = 0xFF
			}
		}},
		{"sparse", func(b *Bitmask) {
			b.Set(0, 0, true)
			b.Set(511, 511, true)
			b.Set(13, 400, true)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBitmask(TileSize, TileSize)
			tc.fill(b)
			got, err := FromBase64(TileSize, TileSize, b.ToBase64())
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !got.Equal(b) {
				t.Fatal("round trip not bit-for-bit equal")
			}
		})
	}
}

func TestFromDataRejectsBadLength(t *testing.T) {
	if _, err := FromData(8, 8, make([]byte, 7)); err == nil {
		t.Fatal("expected error for short data")
	}
}

func TestOriginFor(t *testing.T) {
	cases := []struct {
		x, y float64
		want Origin
	}{
		{0, 0, Origin{0, 0}},
		{511.9, 511.9, Origin{0, 0}},
		{512, 0, Origin{512, 0}},
		{100, 1030, Origin{0, 1024}},
		{-1, -1, Origin{-512, -512}},
	}
	for _, c := range cases {
		if got := OriginFor(c.x, c.y); got != c.want {
			t.Fatalf("OriginFor(%v,%v)=%v want %v", c.x, c.y, got, c.want)
		}
	}
}

func TestBrushStrokeSingleTileDisc(t *testing.T) {
	s := NewSession()
	s.BeginStroke(100, 100, 20, false)
	changed := s.EndStroke()
	if !changed {
		t.Fatal("stroke reported no change")
	}

	if len(s.Tiles()) != 1 {
		t.Fatalf("tiles=%d want 1", len(s.Tiles()))
	}
	tile, ok := s.TileAt(100, 100)
	if !ok || tile.Origin != (Origin{0, 0}) {
		t.Fatalf("tile origin=%v want (0,0)", tile.Origin)
	}

	if !tile.Bits.Get(100, 100) {
		t.Fatal("brush center not set")
	}
	if !tile.Bits.Get(100+15, 100) || !tile.Bits.Get(100, 100-15) {
		t.Fatal("points inside radius not set")
	}
	if tile.Bits.Get(100+25, 100) || tile.Bits.Get(100, 100+25) {
		t.Fatal("points outside radius set")
	}
	if !tile.Dirty {
		t.Fatal("painted tile not dirty")
	}

	// Erasing the same stroke restores all-zero.
	s.BeginStroke(100, 100, 20, true)
	s.EndStroke()
	if tile.Bits.Any() {
		t.Fatalf("erase left %d bits set", tile.Bits.Count())
	}
}

func TestBrushSpansTileBoundary(t *testing.T) {
	s := NewSession()
	s.BeginStroke(510, 510, 10, false)
	s.EndStroke()
	if len(s.Tiles()) != 4 {
		t.Fatalf("tiles=%d want 4 (brush overlaps tile corner)", len(s.Tiles()))
	}
	right, ok := s.TileAt(513, 510)
	if !ok || !right.Bits.Get(513-512, 510) {
		t.Fatal("neighbour tile missing brush coverage")
	}
}

func TestStrokeInterpolationLeavesNoGaps(t *testing.T) {
	s := NewSession()
	s.BeginStroke(10, 50, 8, false)
	// A jump much larger than the brush radius must still paint a solid
	// line via interpolation.
	s.StrokeTo(200, 50)
	s.EndStroke()

	tile, _ := s.TileAt(10, 50)
	for x := 10; x <= 200; x++ {
		if !tile.Bits.Get(x, 50) {
			t.Fatalf("gap in stroke at x=%d", x)
		}
	}
}

func TestUndoRedoRoundTrip(t *testing.T) {
	s := NewSession()
	s.BeginStroke(100, 100, 10, false)
	s.EndStroke()
	afterFirst := s.snapshotAll("")

	s.BeginStroke(300, 300, 15, false)
	s.StrokeTo(350, 350)
	s.EndStroke()
	afterSecond := s.snapshotAll("")

	if !s.Undo() {
		t.Fatal("undo failed")
	}
	if !tilesEqual(t, s.Tiles(), afterFirst.tiles) {
		t.Fatal("undo did not restore pre-stroke state")
	}
	if !s.Redo() {
		t.Fatal("redo failed")
	}
	if !tilesEqual(t, s.Tiles(), afterSecond.tiles) {
		t.Fatal("redo did not restore post-stroke state")
	}

	// Any new stroke clears the redo stack.
	s.Undo()
	s.BeginStroke(20, 20, 5, false)
	s.EndStroke()
	if s.CanRedo() {
		t.Fatal("redo stack not cleared by new stroke")
	}
}

func TestUndoEmptyStacks(t *testing.T) {
	s := NewSession()
	if s.Undo() || s.Redo() {
		t.Fatal("undo/redo on empty session succeeded")
	}
}

func TestNoUndoStepForNoopStroke(t *testing.T) {
	s := NewSession()
	s.BeginStroke(100, 100, 10, true) // erasing an empty mask changes nothing
	if s.EndStroke() {
		t.Fatal("no-op stroke reported change")
	}
	if s.CanUndo() {
		t.Fatal("no-op stroke pushed an undo step")
	}
}

func TestUndoDepthBounded(t *testing.T) {
	s := NewSession()
	s.UndoDepth = 3
	for i := 0; i < 6; i++ {
		s.BeginStroke(float64(10+i*40), 10, 6, false)
		s.EndStroke()
	}
	if got := len(s.undo); got != 3 {
		t.Fatalf("undo depth=%d want 3", got)
	}
	// Oldest steps were discarded silently; undo still works for the rest.
	for i := 0; i < 3; i++ {
		if !s.Undo() {
			t.Fatalf("undo %d failed", i)
		}
	}
	if s.Undo() {
		t.Fatal("undo past bounded depth succeeded")
	}
}

func TestExistingMaskSeedsTile(t *testing.T) {
	prior := NewBitmask(TileSize, TileSize)
	prior.Set(5, 5, true)

	s := NewSession()
	s.Existing = func(o Origin) (*Bitmask, string, bool) {
		if o == (Origin{0, 0}) {
			return prior, "ann-1", true
		}
		return nil, "", false
	}

	s.BeginStroke(100, 100, 5, false)
	s.EndStroke()

	tile, _ := s.TileAt(0, 0)
	if !tile.Bits.Get(5, 5) {
		t.Fatal("pre-existing mask bit lost")
	}
	if tile.AnnotationID != "ann-1" {
		t.Fatalf("annotationID=%q want ann-1", tile.AnnotationID)
	}
	// Undoing the stroke restores the seeded state, not all-zero.
	s.Undo()
	tile, _ = s.TileAt(0, 0)
	if !tile.Bits.Get(5, 5) || tile.Bits.Get(100, 100) {
		t.Fatal("undo did not restore seeded pre-stroke state")
	}
}

func TestDirtyTrackingAndMarkSynced(t *testing.T) {
	s := NewSession()
	s.BeginStroke(100, 100, 10, false)
	s.EndStroke()

	dirty := s.DirtyTiles()
	if len(dirty) != 1 {
		t.Fatalf("dirty=%d want 1", len(dirty))
	}
	s.MarkSynced(dirty[0].Origin, "ann-42")
	if len(s.DirtyTiles()) != 0 {
		t.Fatal("tile still dirty after MarkSynced")
	}
	tile, _ := s.TileAt(100, 100)
	if tile.AnnotationID != "ann-42" {
		t.Fatalf("annotationID=%q want ann-42", tile.AnnotationID)
	}

	// Undo re-dirties so the next debounced sync re-sends.
	s.Undo()
	if len(s.DirtyTiles()) != 1 {
		t.Fatal("undo did not mark tiles dirty")
	}
}

func tilesEqual(t *testing.T, a, b map[Origin]*Tile) bool {
	t.Helper()
	if len(a) != len(b) {
		return false
	}
	for o, ta := range a {
		tb, ok := b[o]
		if !ok || !ta.Bits.Equal(tb.Bits) {
			return false
		}
	}
	return true
}
