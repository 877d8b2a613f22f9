// Package model holds the shared wire/data types exchanged with the slide
// server and the annotation persistence API. All geometry is expressed in
// level-0 (full resolution) image pixels.
package model

import (
	"time"

	"github.com/google/uuid"
)

// SlideSummary is one entry from the slide listing API.
type SlideSummary struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Levels    int       `json:"levels"`
	CreatedAt time.Time `json:"created_at"`
}

// AnnotationKind discriminates annotation geometry.
type AnnotationKind string

const (
	KindPoint   AnnotationKind = "point"
	KindPolygon AnnotationKind = "polygon"
	KindEllipse AnnotationKind = "ellipse"
	KindMask    AnnotationKind = "mask"
)

// PointGeometry is a single marker.
type PointGeometry struct {
	X float64 `json:"x_level0"`
	Y float64 `json:"y_level0"`
}

// PolygonGeometry is a closed path of [x, y] pairs.
type PolygonGeometry struct {
	Path [][2]float64 `json:"path"`
}

// EllipseGeometry is a rotated ellipse.
type EllipseGeometry struct {
	CX       float64 `json:"cx_level0"`
	CY       float64 `json:"cy_level0"`
	RadiusX  float64 `json:"radius_x"`
	RadiusY  float64 `json:"radius_y"`
	Rotation float64 `json:"rotation_radians"`
}

// MaskGeometry is one fixed-size bitmask patch. Width and Height are always
// the mask tile size; Data is the base64-encoded packed bitmask.
type MaskGeometry struct {
	X0       float64 `json:"x0_level0"`
	Y0       float64 `json:"y0_level0"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Encoding string  `json:"encoding"`
	Data     string  `json:"data_base64"`
}

// Annotation is a persisted annotation as returned by the API. Geometry is
// exactly one of the pointers, matching Kind.
type Annotation struct {
	ID        string         `json:"id"`
	SetID     string         `json:"annotation_set_id"`
	Kind      AnnotationKind `json:"kind"`
	LabelID   string         `json:"label_id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`

	Point   *PointGeometry   `json:"point,omitempty"`
	Polygon *PolygonGeometry `json:"polygon,omitempty"`
	Ellipse *EllipseGeometry `json:"ellipse,omitempty"`
	Mask    *MaskGeometry    `json:"mask,omitempty"`
}

// CreateAnnotationRequest creates a new annotation in a set.
type CreateAnnotationRequest struct {
	Kind     AnnotationKind `json:"kind"`
	LabelID  string         `json:"label_id"`
	Geometry any            `json:"geometry"`
}

// UpdateAnnotationRequest replaces an annotation's geometry and/or label.
type UpdateAnnotationRequest struct {
	LabelID  string `json:"label_id,omitempty"`
	Geometry any    `json:"geometry,omitempty"`
}

// AnnotationResponse is the API's canonical annotation envelope.
type AnnotationResponse struct {
	ID      string         `json:"id"`
	Kind    AnnotationKind `json:"kind"`
	LabelID string         `json:"label_id"`
}

// ListAnnotationsResponse wraps the listing endpoint payload.
type ListAnnotationsResponse struct {
	Items []Annotation `json:"items"`
}

// ROIEndpoints is the locally persisted measurement endpoints for a slide.
// Best-effort state: absence or corruption degrades to "none set".
type ROIEndpoints struct {
	X1, Y1 float64
	X2, Y2 float64
}
