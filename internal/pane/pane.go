// Package pane composes one slide view: viewport state, the shared tile
// cache reference, the annotation editor and inertial panning. The TUI host
// routes input here; the pane owns all per-view state and notifies the host
// when the viewport changes so the server can be told.
package pane

import (
	"time"

	"slideview/internal/annotate"
	"slideview/internal/tilecache"
	"slideview/internal/viewport"
)

// RetainMargin is the extra screen-pixel border around the viewport kept in
// the cache retention window.
const RetainMargin = 256

// DefaultRetryAfter bounds how long a visible tile may stay absent from the
// cache before it is asked for again.
const DefaultRetryAfter = 2 * time.Second

// Pane is one view onto one slide. Not safe for concurrent use; the event
// loop owns it.
type Pane struct {
	Image viewport.ImageDescriptor
	DPI   float64

	// OnViewport fires after every viewport mutation, with the clamped
	// viewport. Suppressed while the pane carries a load error: a slide
	// without a slot must never generate updates.
	OnViewport func(viewport.Viewport)
	// OnMaskFlush hands dirty mask tiles to the sync layer. Fired on tool
	// switches and deactivation.
	OnMaskFlush func()
	// OnRequestTile asks the host to re-request a tile that stayed missing
	// for RetryAfter; the server drops frames under rate limiting and a
	// still viewport would otherwise never see them.
	OnRequestTile func(viewport.TileKey)
	// RetryAfter is the missing-tile retry age. Zero retries on every
	// viewport refresh.
	RetryAfter time.Duration

	vp      viewport.Viewport
	editor  *annotate.Editor
	cache   *tilecache.Cache
	inertia viewport.Inertia
	loadErr error
	closed  bool

	missing map[uint64]missRecord
}

// missRecord tracks one visible tile that is not in the cache yet.
type missRecord struct {
	key   viewport.TileKey
	since time.Time
}

// New acquires the image's shared cache from the registry and returns a
// pane showing the whole slide.
func New(img viewport.ImageDescriptor, dpi float64, reg *tilecache.Registry, screenW, screenH int) *Pane {
	p := &Pane{
		Image:      img,
		DPI:        dpi,
		RetryAfter: DefaultRetryAfter,
		editor:     annotate.NewEditor(),
		cache:      reg.Acquire(img),
		missing:    map[uint64]missRecord{},
	}
	v := viewport.Viewport{Width: screenW, Height: screenH, Zoom: 1}
	v.Zoom = v.FitZoom(img.Width, img.Height)
	p.vp = v.CenterOn(img.Width, img.Height)
	return p
}

// Viewport returns the current (always clamped) viewport.
func (p *Pane) Viewport() viewport.Viewport { return p.vp }

// Editor returns the pane's annotation editor.
func (p *Pane) Editor() *annotate.Editor { return p.editor }

// Cache returns the shared tile cache.
func (p *Pane) Cache() *tilecache.Cache { return p.cache }

// Restore replaces the viewport wholesale (saved-state restore). The size
// is kept from the current screen.
func (p *Pane) Restore(v viewport.Viewport) {
	v.Width, v.Height = p.vp.Width, p.vp.Height
	p.apply(v)
}

// Resize updates the screen dimensions.
func (p *Pane) Resize(w, h int) {
	v := p.vp
	v.Width, v.Height = w, h
	p.apply(v)
}

// Pan moves the viewport by a screen-pixel delta.
func (p *Pane) Pan(dx, dy float64) {
	p.apply(p.vp.Pan(dx, dy))
}

// ZoomAround scales around a screen pivot, keeping the image point under
// the pivot fixed.
func (p *Pane) ZoomAround(sx, sy, factor float64) {
	p.inertia.Cancel()
	p.apply(p.vp.ZoomAround(sx, sy, factor))
}

// DragBy pans and feeds the inertia tracker. Call once per drag movement.
func (p *Pane) DragBy(dx, dy float64) {
	p.inertia.Observe(dx, dy)
	p.Pan(dx, dy)
}

// EndDrag releases the drag; panning glides on until the velocity decays
// or something cancels it.
func (p *Pane) EndDrag() { p.inertia.Release() }

// StepInertia advances the glide one frame. Returns false once settled.
func (p *Pane) StepInertia() bool {
	dx, dy, ok := p.inertia.Step()
	if !ok {
		return false
	}
	p.Pan(dx, dy)
	return true
}

// Gliding reports whether an inertia glide is in progress.
func (p *Pane) Gliding() bool { return p.inertia.Active() }

// CancelInertia stops any glide immediately.
func (p *Pane) CancelInertia() { p.inertia.Cancel() }

func (p *Pane) apply(v viewport.Viewport) {
	p.vp = v.Clamp(p.Image.Width, p.Image.Height)
	if p.loadErr == nil && p.OnViewport != nil {
		p.OnViewport(p.vp)
	}
	p.refreshCache()
}

// IdealLevel is the pyramid level matching the current zoom.
func (p *Pane) IdealLevel() int {
	return viewport.IdealLevel(p.vp.Zoom, p.Image.Levels, p.DPI)
}

// refreshCache re-derives the retention window after a viewport change:
// decode work outside it is cancelled, long-unseen tiles age out.
func (p *Pane) refreshCache() {
	wanted := p.cache.WantedSet(p.vp, p.IdealLevel(), RetainMargin)
	p.cache.CancelDecodesNotIn(wanted)
	p.cache.Sweep(wanted)
	p.retryMissing()
}

// retryMissing ages the visible tiles absent from the cache and fires
// OnRequestTile for ones missing longer than RetryAfter. Rides on viewport
// refreshes, so retries happen while the user pans or glides; a failed pane
// never requests.
func (p *Pane) retryMissing() {
	if p.loadErr != nil {
		return
	}
	now := time.Now()
	seen := map[uint64]bool{}
	for _, k := range viewport.VisibleTiles(p.vp, p.Image, p.IdealLevel(), 0) {
		idx := k.Index()
		seen[idx] = true
		if _, ok := p.cache.Get(k); ok {
			delete(p.missing, idx)
			continue
		}
		rec, tracked := p.missing[idx]
		if !tracked {
			p.missing[idx] = missRecord{key: k, since: now}
			continue
		}
		if now.Sub(rec.since) >= p.RetryAfter {
			rec.since = now
			p.missing[idx] = rec
			if p.OnRequestTile != nil {
				p.OnRequestTile(k)
			}
		}
	}
	for idx := range p.missing {
		if !seen[idx] {
			delete(p.missing, idx)
		}
	}
}

// SetLoadError marks the pane as failed to open (e.g. no free server slot).
// The pane stays interactive locally but stops notifying viewport changes.
func (p *Pane) SetLoadError(err error) { p.loadErr = err }

// LoadError returns the open failure, if any.
func (p *Pane) LoadError() error { return p.loadErr }

// ClearLoadError re-enables updates (after a successful re-open) and pushes
// the current viewport.
func (p *Pane) ClearLoadError() {
	p.loadErr = nil
	if p.OnViewport != nil {
		p.OnViewport(p.vp)
	}
}

// SetTool switches the annotation tool. Dirty mask tiles are flushed first
// and any glide stops so the switch lands on a stable view.
func (p *Pane) SetTool(t annotate.Tool) {
	p.inertia.Cancel()
	p.flushMask()
	p.editor.SetTool(t)
}

// Deactivate is called when focus moves to another pane: pending mask work
// is flushed and motion stops.
func (p *Pane) Deactivate() {
	p.inertia.Cancel()
	p.flushMask()
}

func (p *Pane) flushMask() {
	ms := p.editor.MaskSession()
	if ms == nil || len(ms.DirtyTiles()) == 0 {
		return
	}
	if p.OnMaskFlush != nil {
		p.OnMaskFlush()
	}
}

// Close releases the cache reference. Idempotent.
func (p *Pane) Close() {
	if p.closed {
		return
	}
	p.closed = true
	p.cache.Release()
}
