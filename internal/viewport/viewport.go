// Package viewport holds the pure math for panning and zooming a pyramidal
// image: coordinate transforms, clamping, pyramid level selection and the
// visible-tile enumeration. No I/O happens here.
package viewport

import "math"

const (
	// MinZoom and MaxZoom bound screen-pixels-per-image-pixel. MaxZoom > 1
	// allows over-zoom past native resolution (nearest-neighbour upscaling
	// is the renderer's problem).
	MinZoom = 1.0 / 65536
	MaxZoom = 10.0
)

// Viewport describes the visible window into a slide. X and Y are the
// top-left visible image coordinate in level-0 pixels; Width and Height are
// the output surface size in screen pixels; Zoom is screen pixels per
// level-0 image pixel.
type Viewport struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Zoom   float64 `json:"zoom"`
}

// SafeZoom never returns zero, so divisions by it are always defined.
func (v Viewport) SafeZoom() float64 {
	if v.Zoom < 1e-9 {
		return 1e-9
	}
	return v.Zoom
}

// ImageSpanX reports how many level-0 pixels are visible horizontally.
func (v Viewport) ImageSpanX() float64 { return float64(v.Width) / v.SafeZoom() }

// ImageSpanY reports how many level-0 pixels are visible vertically.
func (v Viewport) ImageSpanY() float64 { return float64(v.Height) / v.SafeZoom() }

// ScreenToImage converts a screen coordinate to a level-0 image coordinate.
func (v Viewport) ScreenToImage(sx, sy float64) (ix, iy float64) {
	z := v.SafeZoom()
	return v.X + sx/z, v.Y + sy/z
}

// ImageToScreen converts a level-0 image coordinate to a screen coordinate.
func (v Viewport) ImageToScreen(ix, iy float64) (sx, sy float64) {
	z := v.SafeZoom()
	return (ix - v.X) * z, (iy - v.Y) * z
}

// Pan moves the viewport by a screen-space delta.
func (v Viewport) Pan(dx, dy float64) Viewport {
	z := v.SafeZoom()
	v.X -= dx / z
	v.Y -= dy / z
	return v
}

// ZoomAround rescales by factor while keeping the image point under the
// screen pivot fixed: capture the image coordinate under the pivot, apply
// the new zoom, then translate so that coordinate maps back to the pivot.
func (v Viewport) ZoomAround(pivotX, pivotY, factor float64) Viewport {
	if factor <= 0 {
		return v
	}
	ix, iy := v.ScreenToImage(pivotX, pivotY)

	z := v.SafeZoom() * factor
	if z < MinZoom {
		z = MinZoom
	}
	if z > MaxZoom {
		z = MaxZoom
	}
	v.Zoom = z
	v.X = ix - pivotX/z
	v.Y = iy - pivotY/z
	return v
}

// FitZoom is the zoom at which the whole image just fits the viewport.
func (v Viewport) FitZoom(imageW, imageH int) float64 {
	if imageW <= 0 || imageH <= 0 {
		return 1
	}
	fx := float64(v.Width) / float64(imageW)
	fy := float64(v.Height) / float64(imageH)
	return math.Min(fx, fy)
}

// Clamp restricts X and Y so the visible rectangle stays inside the image
// bounds. On any axis where the visible span exceeds the image, the image is
// centered on that axis instead. Clamp is idempotent.
func (v Viewport) Clamp(imageW, imageH int) Viewport {
	v.X = clampAxis(v.X, v.ImageSpanX(), float64(imageW))
	v.Y = clampAxis(v.Y, v.ImageSpanY(), float64(imageH))
	return v
}

func clampAxis(pos, span, size float64) float64 {
	if span >= size {
		// Image smaller than the window: center it.
		return (size - span) / 2
	}
	if pos < 0 {
		return 0
	}
	if pos > size-span {
		return size - span
	}
	return pos
}

// CenterOn positions the viewport so the image center sits at the window
// center, then clamps.
func (v Viewport) CenterOn(imageW, imageH int) Viewport {
	v.X = float64(imageW)/2 - v.ImageSpanX()/2
	v.Y = float64(imageH)/2 - v.ImageSpanY()/2
	return v.Clamp(imageW, imageH)
}
