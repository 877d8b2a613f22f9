package viewport

import (
	"math"

	"github.com/google/uuid"
)

// TileSize is the edge length in pixels of every pyramid tile.
const TileSize = 512

// BaseDPI is the reference display density; zoom values are normalized
// against it before level selection.
const BaseDPI = 96.0

// Bit widths for packing a TileKey into a uint64 (x | y<<20 | level<<40).
// 20 bits per axis covers images up to TileSize<<20 pixels wide.
const (
	xBits     = 20
	yBits     = 20
	levelBits = 20
	xMask     = (1 << xBits) - 1
	yMask     = (1 << yBits) - 1
	levelMask = (1 << levelBits) - 1
)

// ImageDescriptor identifies one pyramidal image. Immutable once loaded.
type ImageDescriptor struct {
	ID     uuid.UUID `json:"id"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Levels int       `json:"levels"`
}

// TileKey addresses one tile: X and Y are tile column/row indices at the
// given pyramid level. The tile covers level-0 pixels
// [X*TileSize*2^Level, (X+1)*TileSize*2^Level) on each axis.
type TileKey struct {
	Level int
	X     int
	Y     int
}

// Index packs the key into a uint64 for map keys and wire tracking.
func (k TileKey) Index() uint64 {
	return uint64(k.X)&xMask | (uint64(k.Y)&yMask)<<xBits | (uint64(k.Level)&levelMask)<<(xBits+yBits)
}

// KeyFromIndex is the inverse of Index.
func KeyFromIndex(idx uint64) TileKey {
	return TileKey{
		X:     int(idx & xMask),
		Y:     int((idx >> xBits) & yMask),
		Level: int((idx >> (xBits + yBits)) & levelMask),
	}
}

// Downsample is the level-0 pixels per tile pixel at this key's level.
func (k TileKey) Downsample() float64 { return math.Pow(2, float64(k.Level)) }

// ImageRect reports the tile's bounds in level-0 pixels.
func (k TileKey) ImageRect() (x0, y0, x1, y1 float64) {
	px := k.Downsample() * TileSize
	x0 = float64(k.X) * px
	y0 = float64(k.Y) * px
	return x0, y0, x0 + px, y0 + px
}

// ScreenRect reports where the tile lands on screen for the given viewport.
func (k TileKey) ScreenRect(v Viewport) (x0, y0, x1, y1 float64) {
	ix0, iy0, ix1, iy1 := k.ImageRect()
	x0, y0 = v.ImageToScreen(ix0, iy0)
	x1, y1 = v.ImageToScreen(ix1, iy1)
	return x0, y0, x1, y1
}

// IdealLevel picks the coarsest pyramid level whose native resolution still
// meets the effective on-screen resolution. Rounding (rather than ceil)
// switches to the coarser mip at the geometric midpoint between levels,
// which keeps perceived sharpness symmetric while zooming in and out.
func IdealLevel(zoom float64, levels int, dpi float64) int {
	if levels <= 0 {
		return 0
	}
	if dpi <= 0 {
		dpi = BaseDPI
	}
	effective := zoom * dpi / BaseDPI
	if effective < 1e-9 {
		effective = 1e-9
	}

	level := 0
	if effective < 1 {
		level = int(math.Round(-math.Log2(effective)))
	}
	if level < 0 {
		level = 0
	}
	if level > levels-1 {
		level = levels - 1
	}
	return level
}

// VisibleTiles enumerates every tile at the given level whose image rect
// intersects the viewport, expanded by margin screen pixels on each side for
// prefetch. Order is row-major; callers that care about priority sort
// center-out themselves.
func VisibleTiles(v Viewport, img ImageDescriptor, level, margin int) []TileKey {
	if level < 0 || level >= img.Levels {
		return nil
	}
	px := math.Pow(2, float64(level)) * TileSize
	z := v.SafeZoom()
	m := float64(margin) / z

	x0 := (v.X - m) / px
	y0 := (v.Y - m) / px
	x1 := (v.X + float64(v.Width)/z + m) / px
	y1 := (v.Y + float64(v.Height)/z + m) / px

	tilesX := math.Ceil(float64(img.Width) / px)
	tilesY := math.Ceil(float64(img.Height) / px)

	minX := int(math.Max(math.Floor(x0), 0))
	minY := int(math.Max(math.Floor(y0), 0))
	maxX := int(math.Min(math.Ceil(x1), tilesX))
	maxY := int(math.Min(math.Ceil(y1), tilesY))

	if maxX <= minX || maxY <= minY {
		return nil
	}

	keys := make([]TileKey, 0, (maxX-minX)*(maxY-minY))
	for ty := minY; ty < maxY; ty++ {
		for tx := minX; tx < maxX; tx++ {
			keys = append(keys, TileKey{Level: level, X: tx, Y: ty})
		}
	}
	return keys
}
