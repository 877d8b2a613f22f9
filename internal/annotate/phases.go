// Package annotate turns pointer and key events into annotation geometry:
// points, ellipses, polygons (clicked or freehand) and mask paint strokes.
// The editor is a state machine; each phase is its own type carrying only
// the fields meaningful to that phase, and phase switches capture the value
// implied by the current pointer before changing, so re-entering a phase
// never snaps the shape to the pointer.
package annotate

import "math"

// Pt is a level-0 image coordinate.
type Pt struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Tool selects what the next pointer interaction creates.
type Tool int

const (
	ToolNone Tool = iota
	ToolPoint
	ToolMultiPoint
	ToolEllipse
	ToolPolygon
	ToolFreehand
	ToolMask
)

// Phase is the editor's current state. Exactly one of the concrete phase
// types below is active at any time.
type Phase interface{ phaseName() string }

type idle struct{}

func (idle) phaseName() string { return "idle" }

type pointPlacing struct{}

func (pointPlacing) phaseName() string { return "point" }

type multiPoint struct {
	Points []Pt
}

func (multiPoint) phaseName() string { return "multipoint" }

// EllipseDraft is the shape being built or edited across the three ellipse
// sub-phases.
type EllipseDraft struct {
	CX, CY   float64
	RX, RY   float64
	Rotation float64
}

type ellipseCenter struct {
	Draft EllipseDraft
	// placed is false until the first click fixes the center; while false
	// the center follows the pointer (creation mode only).
	Placed bool
}

func (ellipseCenter) phaseName() string { return "ellipse-center" }

type ellipseRadii struct {
	Draft EllipseDraft
}

func (ellipseRadii) phaseName() string { return "ellipse-radii" }

type ellipseAngle struct {
	Draft EllipseDraft
}

func (ellipseAngle) phaseName() string { return "ellipse-angle" }

type polygonVertices struct {
	Vertices []Pt
}

func (polygonVertices) phaseName() string { return "polygon-vertices" }

type polygonFreehand struct {
	Path    []Pt
	Drawing bool
}

func (polygonFreehand) phaseName() string { return "polygon-freehand" }

type polygonEdit struct {
	Vertices []Pt

	// Drag state. dragVertex is -1 when the whole shape is dragged.
	Dragging   bool
	DragVertex int
	DragStart  Pt
	DragOrig   []Pt
}

func (polygonEdit) phaseName() string { return "polygon-edit" }

type maskPaint struct{}

func (maskPaint) phaseName() string { return "mask-paint" }

// captureEllipse folds the pointer-implied value for the active sub-phase
// into the draft. Called before any sub-phase switch so the captured value
// survives the transition. Pure: old draft in, new draft out.
func captureEllipse(ph Phase, draft EllipseDraft, pointer Pt, creating bool, dragStart Pt, orig EllipseDraft) EllipseDraft {
	switch ph.(type) {
	case ellipseCenter:
		if creating {
			draft.CX, draft.CY = pointer.X, pointer.Y
		} else {
			draft.CX = orig.CX + (pointer.X - dragStart.X)
			draft.CY = orig.CY + (pointer.Y - dragStart.Y)
		}
	case ellipseRadii:
		if creating {
			draft.RX = math.Abs(pointer.X - draft.CX)
			draft.RY = math.Abs(pointer.Y - draft.CY)
		} else {
			draft.RX = math.Max(0, orig.RX+(pointer.X-dragStart.X))
			draft.RY = math.Max(0, orig.RY+(pointer.Y-dragStart.Y))
		}
	case ellipseAngle:
		if creating {
			draft.Rotation = math.Atan2(pointer.Y-draft.CY, pointer.X-draft.CX)
		} else {
			a0 := math.Atan2(dragStart.Y-draft.CY, dragStart.X-draft.CX)
			a1 := math.Atan2(pointer.Y-draft.CY, pointer.X-draft.CX)
			draft.Rotation = orig.Rotation + (a1 - a0)
		}
	}
	return draft
}
