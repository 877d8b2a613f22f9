package pane

import (
	"errors"
	"image"
	"testing"

	"github.com/google/uuid"

	"slideview/internal/annotate"
	"slideview/internal/tilecache"
	"slideview/internal/viewport"
)

func testRegistry() *tilecache.Registry {
	return tilecache.NewRegistry(tilecache.DecoderFunc(func([]byte) (image.Image, error) {
		return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
	}))
}

func testImage() viewport.ImageDescriptor {
	return viewport.ImageDescriptor{ID: uuid.New(), Width: 40000, Height: 30000, Levels: 7}
}

func TestNewFitsWholeSlide(t *testing.T) {
	p := New(testImage(), 96, testRegistry(), 800, 600)
	defer p.Close()

	v := p.Viewport()
	if v.Width != 800 || v.Height != 600 {
		t.Fatalf("size=%dx%d", v.Width, v.Height)
	}
	// Fit zoom must show the full extent of both axes.
	if v.ImageSpanX() < 39999 || v.ImageSpanY() < 29999 {
		t.Fatalf("span=%.0fx%.0f does not cover the slide", v.ImageSpanX(), v.ImageSpanY())
	}
}

func TestViewportChangesNotify(t *testing.T) {
	p := New(testImage(), 96, testRegistry(), 800, 600)
	defer p.Close()

	var got []viewport.Viewport
	p.OnViewport = func(v viewport.Viewport) { got = append(got, v) }

	p.Pan(50, 20)
	p.ZoomAround(400, 300, 2)
	p.Resize(1000, 700)
	if len(got) != 3 {
		t.Fatalf("notifications=%d want 3", len(got))
	}
	if got[2].Width != 1000 || got[2].Height != 700 {
		t.Fatalf("last viewport=%+v", got[2])
	}
}

func TestLoadErrorSuppressesUpdates(t *testing.T) {
	p := New(testImage(), 96, testRegistry(), 800, 600)
	defer p.Close()

	calls := 0
	p.OnViewport = func(viewport.Viewport) { calls++ }
	p.SetLoadError(errors.New("no free slot"))

	before := p.Viewport()
	p.Pan(100, 100)
	p.ZoomAround(400, 300, 2)
	if calls != 0 {
		t.Fatalf("failed pane sent %d updates", calls)
	}
	// Still interactive locally.
	if p.Viewport() == before {
		t.Fatal("viewport frozen by load error")
	}

	p.ClearLoadError()
	if calls != 1 {
		t.Fatalf("clear should push current viewport once, got %d", calls)
	}
}

func TestDragFeedsInertiaAndGlides(t *testing.T) {
	p := New(testImage(), 96, testRegistry(), 800, 600)
	defer p.Close()
	p.ZoomAround(400, 300, 8) // zoom in so panning has room

	for i := 0; i < 5; i++ {
		p.DragBy(12, 0)
	}
	p.EndDrag()
	if !p.Gliding() {
		t.Fatal("no glide after release")
	}

	x := p.Viewport().X
	steps := 0
	for p.StepInertia() {
		steps++
		if steps > 200 {
			t.Fatal("glide never settled")
		}
	}
	if p.Viewport().X >= x {
		t.Fatalf("glide did not continue the pan: x %f -> %f", x, p.Viewport().X)
	}
	if p.Gliding() {
		t.Fatal("still gliding after settle")
	}
}

func TestZoomCancelsGlide(t *testing.T) {
	p := New(testImage(), 96, testRegistry(), 800, 600)
	defer p.Close()
	p.ZoomAround(400, 300, 8)

	for i := 0; i < 5; i++ {
		p.DragBy(12, 0)
	}
	p.EndDrag()
	p.ZoomAround(400, 300, 2)
	if p.Gliding() {
		t.Fatal("zoom should cancel the glide")
	}
}

func TestToolSwitchFlushesMaskAndStopsMotion(t *testing.T) {
	p := New(testImage(), 96, testRegistry(), 800, 600)
	defer p.Close()

	flushes := 0
	p.OnMaskFlush = func() { flushes++ }

	// Paint something so the session has dirty tiles.
	p.SetTool(annotate.ToolMask)
	ed := p.Editor()
	ed.PointerDown(annotate.PointerEvent{Pos: annotate.Pt{X: 100, Y: 100}, Zoom: 1})
	ed.PointerUp(annotate.PointerEvent{Pos: annotate.Pt{X: 100, Y: 100}, Zoom: 1})
	if flushes != 0 {
		t.Fatalf("flushed before any dirty tiles existed: %d", flushes)
	}

	for i := 0; i < 5; i++ {
		p.DragBy(10, 0)
	}
	p.EndDrag()

	p.SetTool(annotate.ToolPoint)
	if flushes != 1 {
		t.Fatalf("flushes=%d want 1", flushes)
	}
	if p.Gliding() {
		t.Fatal("tool switch should cancel inertia")
	}
}

func TestDeactivateFlushesOnlyWhenDirty(t *testing.T) {
	p := New(testImage(), 96, testRegistry(), 800, 600)
	defer p.Close()

	flushes := 0
	p.OnMaskFlush = func() { flushes++ }

	p.Deactivate()
	if flushes != 0 {
		t.Fatalf("clean deactivate flushed %d times", flushes)
	}

	p.SetTool(annotate.ToolMask)
	ed := p.Editor()
	ed.PointerDown(annotate.PointerEvent{Pos: annotate.Pt{X: 50, Y: 50}, Zoom: 1})
	ed.PointerUp(annotate.PointerEvent{Pos: annotate.Pt{X: 50, Y: 50}, Zoom: 1})
	p.Deactivate()
	if flushes != 1 {
		t.Fatalf("flushes=%d want 1", flushes)
	}
}

func TestSplitViewSharesCacheUntilLastClose(t *testing.T) {
	reg := testRegistry()
	img := testImage()

	a := New(img, 96, reg, 800, 600)
	b := New(img, 96, reg, 400, 600)
	if a.Cache() != b.Cache() {
		t.Fatal("panes on the same image should share a cache")
	}

	a.Cache().Put(viewport.TileKey{Level: 6, X: 0, Y: 0}, []byte{1})
	a.Close()
	a.Close() // idempotent
	if reg.Open() != 1 {
		t.Fatal("cache torn down while second pane still open")
	}
	if st := b.Cache().Stats(); st.Tiles != 1 {
		t.Fatalf("tiles=%d after first close", st.Tiles)
	}

	b.Close()
	if reg.Open() != 0 {
		t.Fatal("cache survived last close")
	}
}

func TestIdealLevelTracksZoom(t *testing.T) {
	p := New(testImage(), 96, testRegistry(), 800, 600)
	defer p.Close()

	fitLevel := p.IdealLevel()
	p.ZoomAround(400, 300, 64)
	if p.IdealLevel() >= fitLevel {
		t.Fatalf("zooming in did not select a finer level: %d -> %d", fitLevel, p.IdealLevel())
	}
}

func TestMissingTilesRetryAfterAge(t *testing.T) {
	img := viewport.ImageDescriptor{ID: uuid.New(), Width: 1024, Height: 1024, Levels: 2}
	p := New(img, 96, testRegistry(), 100, 100)
	defer p.Close()

	var asked []viewport.TileKey
	p.OnRequestTile = func(k viewport.TileKey) { asked = append(asked, k) }
	p.RetryAfter = 0

	p.Pan(1, 0) // records the missing visible tiles
	if len(asked) != 0 {
		t.Fatalf("asked on first sighting: %v", asked)
	}
	p.Pan(1, 0) // still missing past the retry age
	if len(asked) == 0 {
		t.Fatal("missing tile never re-requested")
	}
	key := asked[0]
	if key.Level != p.IdealLevel() {
		t.Fatalf("retry at level %d, ideal %d", key.Level, p.IdealLevel())
	}

	// Once the tile arrives it is never asked for again.
	p.Cache().Put(key, []byte{1})
	asked = nil
	p.Pan(1, 0)
	for _, k := range asked {
		if k == key {
			t.Fatalf("cached tile re-requested: %v", k)
		}
	}
}

func TestLoadErrorSuppressesTileRetries(t *testing.T) {
	img := viewport.ImageDescriptor{ID: uuid.New(), Width: 1024, Height: 1024, Levels: 2}
	p := New(img, 96, testRegistry(), 100, 100)
	defer p.Close()

	asked := 0
	p.OnRequestTile = func(viewport.TileKey) { asked++ }
	p.RetryAfter = 0
	p.SetLoadError(errors.New("no free slot"))

	p.Pan(1, 0)
	p.Pan(1, 0)
	if asked != 0 {
		t.Fatalf("failed pane issued %d tile requests", asked)
	}
}
