package annotate

import (
	"slideview/internal/mask"
)

const (
	// simplifyBasePx is the freehand simplification tolerance in screen
	// pixels; dividing by zoom makes it resolution independent.
	simplifyBasePx = 2.0
	// vertexHitPx is the vertex grab radius in screen pixels.
	vertexHitPx = 8.0
	// DefaultBrushRadius is the initial mask brush radius in level-0 px.
	DefaultBrushRadius = 20.0
)

// PointerEvent is one pointer sample, already converted to level-0 image
// coordinates by the pane. Zoom is a read-only snapshot of the viewport
// zoom at event time, used for resolution-dependent thresholds.
type PointerEvent struct {
	Pos   Pt
	Zoom  float64
	Erase bool // erase modifier held (mask tool)
}

// Key is one of the editor's dedicated key commands.
type Key int

const (
	// KeyEllipsePosition, KeyEllipseSize and KeyEllipseRotation cycle the
	// ellipse sub-phases non-destructively.
	KeyEllipsePosition Key = iota
	KeyEllipseSize
	KeyEllipseRotation
	// KeyCommit finalizes multi-step drafts (polygons, edits).
	KeyCommit
	// KeyEscape cancels the active phase; mask paint auto-confirms instead.
	KeyEscape
)

// Drafts emitted on confirm.
type (
	PointDraft   struct{ Pos Pt }
	PolygonDraft struct{ Vertices []Pt }
)

// Event is an outbound editor event, drained by the host after each input.
type Event interface{ editorEvent() }

// Confirmed carries a finished draft. AnnotationID is non-empty when an
// existing annotation was edited.
type Confirmed struct {
	Draft        any
	AnnotationID string
}

// Cancelled reports that the active phase was abandoned without persisting.
type Cancelled struct{}

// Rejected reports locally invalid geometry; the phase stays active so the
// user can keep editing.
type Rejected struct{ Reason string }

// MaskStroke reports a finished brush stroke; Changed arms the sync
// debounce.
type MaskStroke struct{ Changed bool }

// MaskConfirmed reports that the mask session should be flushed to the
// persistence layer.
type MaskConfirmed struct{}

func (Confirmed) editorEvent()     {}
func (Cancelled) editorEvent()     {}
func (Rejected) editorEvent()      {}
func (MaskStroke) editorEvent()    {}
func (MaskConfirmed) editorEvent() {}

// Editor is the annotation editing state machine for one pane. It is owned
// by the event loop and not safe for concurrent use.
type Editor struct {
	BrushRadius float64

	phase    Phase
	tool     Tool
	creating bool
	// editingID is the persisted annotation being modified, empty in
	// creation mode.
	editingID string

	pointer   Pt
	dragging  bool
	dragStart Pt
	origDraft EllipseDraft

	maskSession *mask.Session

	events []Event
}

// NewEditor returns an idle editor.
func NewEditor() *Editor {
	return &Editor{phase: idle{}, BrushRadius: DefaultBrushRadius}
}

// Phase exposes the current phase name, mostly for status display.
func (e *Editor) Phase() string { return e.phase.phaseName() }

// Tool reports the active tool.
func (e *Editor) Tool() Tool { return e.tool }

// MaskSession returns the live mask session, creating it on first use of
// the mask tool. Nil while the mask tool has never been active.
func (e *Editor) MaskSession() *mask.Session { return e.maskSession }

// DrainEvents returns and clears the outbound event queue.
func (e *Editor) DrainEvents() []Event {
	ev := e.events
	e.events = nil
	return ev
}

func (e *Editor) emit(ev Event) { e.events = append(e.events, ev) }

// SetTool switches tools. Any active phase is abandoned first: drafts are
// discarded, but an active mask session auto-confirms so committed paint is
// not lost.
func (e *Editor) SetTool(t Tool) {
	e.abandonPhase()
	e.tool = t
	e.creating = true
	e.editingID = ""
	e.dragging = false

	switch t {
	case ToolPoint:
		e.phase = pointPlacing{}
	case ToolMultiPoint:
		e.phase = multiPoint{}
	case ToolEllipse:
		e.phase = ellipseCenter{}
	case ToolPolygon:
		e.phase = polygonVertices{}
	case ToolFreehand:
		e.phase = polygonFreehand{}
	case ToolMask:
		if e.maskSession == nil {
			e.maskSession = mask.NewSession()
		}
		e.phase = maskPaint{}
	default:
		e.phase = idle{}
	}
}

// EditEllipse enters modification mode on an existing ellipse annotation.
func (e *Editor) EditEllipse(annotationID string, d EllipseDraft) {
	e.abandonPhase()
	e.tool = ToolEllipse
	e.creating = false
	e.editingID = annotationID
	e.phase = ellipseCenter{Draft: d, Placed: true}
}

// EditPolygon enters modification mode on an existing polygon annotation.
// Degenerate polygons (< 3 vertices) are rejected up front.
func (e *Editor) EditPolygon(annotationID string, vertices []Pt) {
	if len(vertices) < 3 {
		e.emit(Rejected{Reason: "polygon needs at least 3 vertices"})
		return
	}
	e.abandonPhase()
	e.tool = ToolPolygon
	e.creating = false
	e.editingID = annotationID
	vs := make([]Pt, len(vertices))
	copy(vs, vertices)
	e.phase = polygonEdit{Vertices: vs}
}

// abandonPhase drops the active phase. Mask paint confirms instead of
// discarding, since strokes are already committed to tiles.
func (e *Editor) abandonPhase() {
	switch e.phase.(type) {
	case idle:
	case maskPaint:
		if e.maskSession != nil && e.maskSession.Painting() {
			e.maskSession.EndStroke()
		}
		e.emit(MaskConfirmed{})
	default:
		e.emit(Cancelled{})
	}
	e.phase = idle{}
	e.dragging = false
}

// PointerDown routes a press into the active phase.
func (e *Editor) PointerDown(ev PointerEvent) {
	e.pointer = ev.Pos

	switch ph := e.phase.(type) {
	case pointPlacing:
		e.emit(Confirmed{Draft: PointDraft{Pos: ev.Pos}})
		e.phase = idle{}
		e.tool = ToolNone

	case multiPoint:
		ph.Points = append(ph.Points, ev.Pos)
		e.phase = ph
		e.emit(Confirmed{Draft: PointDraft{Pos: ev.Pos}})

	case ellipseCenter:
		if e.creating {
			ph.Draft.CX, ph.Draft.CY = ev.Pos.X, ev.Pos.Y
			ph.Placed = true
			e.phase = ellipseRadii{Draft: ph.Draft}
		} else {
			e.beginDrag(ev.Pos, ph.Draft)
		}

	case ellipseRadii:
		if e.creating {
			d := captureEllipse(ph, ph.Draft, ev.Pos, true, Pt{}, EllipseDraft{})
			e.phase = ellipseAngle{Draft: d}
		} else {
			e.beginDrag(ev.Pos, ph.Draft)
		}

	case ellipseAngle:
		if e.creating {
			d := captureEllipse(ph, ph.Draft, ev.Pos, true, Pt{}, EllipseDraft{})
			e.confirmEllipse(d)
		} else {
			e.beginDrag(ev.Pos, ph.Draft)
		}

	case polygonVertices:
		ph.Vertices = append(ph.Vertices, ev.Pos)
		e.phase = ph

	case polygonFreehand:
		ph.Drawing = true
		ph.Path = append(ph.Path[:0], ev.Pos)
		e.phase = ph

	case polygonEdit:
		hit := nearestVertex(ev.Pos, ph.Vertices, vertexHitPx/safeZoom(ev.Zoom))
		if hit < 0 && !PointInPolygon(ev.Pos, ph.Vertices) {
			return
		}
		ph.Dragging = true
		ph.DragVertex = hit // -1 means whole-shape drag
		ph.DragStart = ev.Pos
		ph.DragOrig = append([]Pt(nil), ph.Vertices...)
		e.phase = ph

	case maskPaint:
		e.maskSession.BeginStroke(ev.Pos.X, ev.Pos.Y, e.BrushRadius, ev.Erase)
	}
}

// PointerMove routes pointer motion into the active phase.
func (e *Editor) PointerMove(ev PointerEvent) {
	e.pointer = ev.Pos

	switch ph := e.phase.(type) {
	case ellipseCenter:
		if e.creating && !ph.Placed {
			ph.Draft.CX, ph.Draft.CY = ev.Pos.X, ev.Pos.Y
			e.phase = ph
		} else if !e.creating && e.dragging {
			ph.Draft = captureEllipse(ph, ph.Draft, ev.Pos, false, e.dragStart, e.origDraft)
			e.phase = ph
		}

	case ellipseRadii:
		if e.creating {
			ph.Draft = captureEllipse(ph, ph.Draft, ev.Pos, true, Pt{}, EllipseDraft{})
			e.phase = ph
		} else if e.dragging {
			ph.Draft = captureEllipse(ph, ph.Draft, ev.Pos, false, e.dragStart, e.origDraft)
			e.phase = ph
		}

	case ellipseAngle:
		if e.creating {
			ph.Draft = captureEllipse(ph, ph.Draft, ev.Pos, true, Pt{}, EllipseDraft{})
			e.phase = ph
		} else if e.dragging {
			ph.Draft = captureEllipse(ph, ph.Draft, ev.Pos, false, e.dragStart, e.origDraft)
			e.phase = ph
		}

	case polygonFreehand:
		if ph.Drawing {
			ph.Path = append(ph.Path, ev.Pos)
			e.phase = ph
		}

	case polygonEdit:
		if !ph.Dragging {
			return
		}
		dx := ev.Pos.X - ph.DragStart.X
		dy := ev.Pos.Y - ph.DragStart.Y
		if ph.DragVertex >= 0 {
			ph.Vertices[ph.DragVertex] = Pt{X: ph.DragOrig[ph.DragVertex].X + dx, Y: ph.DragOrig[ph.DragVertex].Y + dy}
		} else {
			for i, v := range ph.DragOrig {
				ph.Vertices[i] = Pt{X: v.X + dx, Y: v.Y + dy}
			}
		}
		e.phase = ph

	case maskPaint:
		if e.maskSession.Painting() {
			e.maskSession.StrokeTo(ev.Pos.X, ev.Pos.Y)
		}
	}
}

// PointerUp routes a release into the active phase.
func (e *Editor) PointerUp(ev PointerEvent) {
	e.pointer = ev.Pos

	switch ph := e.phase.(type) {
	case ellipseCenter, ellipseRadii, ellipseAngle:
		e.dragging = false

	case polygonFreehand:
		if !ph.Drawing {
			return
		}
		simplified := Simplify(ph.Path, simplifyBasePx/safeZoom(ev.Zoom))
		if len(simplified) < 3 {
			e.emit(Rejected{Reason: "freehand path too short"})
			e.phase = polygonFreehand{}
			return
		}
		e.phase = polygonEdit{Vertices: simplified}

	case polygonEdit:
		ph.Dragging = false
		ph.DragOrig = nil
		e.phase = ph

	case maskPaint:
		if e.maskSession.Painting() {
			e.emit(MaskStroke{Changed: e.maskSession.EndStroke()})
		}
	}
}

// HandleKey routes a dedicated key command into the active phase.
func (e *Editor) HandleKey(k Key) {
	switch k {
	case KeyEllipsePosition, KeyEllipseSize, KeyEllipseRotation:
		e.cycleEllipsePhase(k)
	case KeyCommit:
		e.commit()
	case KeyEscape:
		e.escape()
	}
}

// cycleEllipsePhase switches the ellipse sub-phase, carrying the draft
// across unchanged. The pointer-implied value of the outgoing phase was
// already captured into the draft by the last pointer event, so re-entering
// a phase resumes from the displayed value instead of snapping to the
// pointer.
func (e *Editor) cycleEllipsePhase(k Key) {
	draft, ok := e.ellipseDraft()
	if !ok {
		return
	}

	// Phase switches end any modification drag; the drag delta is already
	// folded into the draft.
	e.dragging = false

	switch k {
	case KeyEllipsePosition:
		e.phase = ellipseCenter{Draft: draft, Placed: true}
	case KeyEllipseSize:
		e.phase = ellipseRadii{Draft: draft}
	case KeyEllipseRotation:
		e.phase = ellipseAngle{Draft: draft}
	}
}

func (e *Editor) ellipseDraft() (EllipseDraft, bool) {
	switch ph := e.phase.(type) {
	case ellipseCenter:
		return ph.Draft, true
	case ellipseRadii:
		return ph.Draft, true
	case ellipseAngle:
		return ph.Draft, true
	}
	return EllipseDraft{}, false
}

func (e *Editor) commit() {
	switch ph := e.phase.(type) {
	case multiPoint:
		e.phase = idle{}
		e.tool = ToolNone

	case polygonVertices:
		if len(ph.Vertices) < 3 {
			e.emit(Rejected{Reason: "polygon needs at least 3 vertices"})
			return
		}
		e.emit(Confirmed{Draft: PolygonDraft{Vertices: ph.Vertices}})
		e.phase = idle{}
		e.tool = ToolNone

	case polygonEdit:
		if len(ph.Vertices) < 3 {
			e.emit(Rejected{Reason: "polygon needs at least 3 vertices"})
			return
		}
		e.emit(Confirmed{Draft: PolygonDraft{Vertices: ph.Vertices}, AnnotationID: e.editingID})
		e.phase = idle{}
		e.tool = ToolNone
		e.editingID = ""

	case ellipseCenter, ellipseRadii, ellipseAngle:
		draft, _ := e.ellipseDraft()
		e.confirmEllipse(draft)
	}
}

func (e *Editor) confirmEllipse(d EllipseDraft) {
	if d.RX <= 0 || d.RY <= 0 {
		e.emit(Rejected{Reason: "ellipse needs non-zero radii"})
		return
	}
	e.emit(Confirmed{Draft: d, AnnotationID: e.editingID})
	e.phase = idle{}
	e.tool = ToolNone
	e.editingID = ""
	e.dragging = false
}

// escape cancels the active phase without persisting. Mask paint is the
// exception: it auto-confirms, since strokes already committed to tiles
// would otherwise be lost silently.
func (e *Editor) escape() {
	switch e.phase.(type) {
	case idle:
		return
	case maskPaint:
		if e.maskSession.Painting() {
			e.maskSession.EndStroke()
		}
		e.emit(MaskConfirmed{})
	default:
		e.emit(Cancelled{})
	}
	e.phase = idle{}
	e.tool = ToolNone
	e.editingID = ""
	e.dragging = false
}

func (e *Editor) beginDrag(pos Pt, current EllipseDraft) {
	e.dragging = true
	e.dragStart = pos
	e.origDraft = current
}

func safeZoom(z float64) float64 {
	if z < 1e-9 {
		return 1e-9
	}
	return z
}
