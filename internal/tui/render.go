package tui

import (
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"

	"slideview/internal/mask"
	"slideview/internal/model"
	"slideview/internal/pane"
	"slideview/internal/tilecache"
	"slideview/internal/viewport"
)

var (
	colorVoid       = color.RGBA{R: 16, G: 16, B: 20, A: 255}
	colorUnloaded   = color.RGBA{R: 38, G: 38, B: 46, A: 255}
	colorMarker     = color.RGBA{R: 255, G: 80, B: 80, A: 255}
	colorMaskTint   = color.RGBA{R: 80, G: 200, B: 120, A: 255}
	colorMinimapBox = color.RGBA{R: 255, G: 255, B: 0, A: 255}
)

// renderPane composites one pane into the sink: for every pixel of the cell
// grid, the sharpest Ready tile covering that image point is sampled, with
// coarser levels standing in while finer ones decode. Painted mask bits and
// point annotations overlay the tissue.
func renderPane(p *pane.Pane, annotations []model.Annotation, sink RenderSink, wCells, hCells int) {
	sink.Frame(wCells, hCells)
	v := p.Viewport()
	ideal := p.IdealLevel()
	c := p.Cache()
	ms := p.Editor().MaskSession()

	for cy := 0; cy < hCells; cy++ {
		for cx := 0; cx < wCells; cx++ {
			var px [2]color.Color
			for half := 0; half < 2; half++ {
				sx := float64(cx) + 0.5
				sy := float64(cy*2+half) + 0.5
				ix, iy := v.ScreenToImage(sx, sy)
				px[half] = samplePoint(c, p.Image, ms, ix, iy, ideal)
			}
			sink.Cell(cx, cy, px[0], px[1])
		}
	}

	for _, a := range annotations {
		if a.Kind != model.KindPoint || a.Point == nil {
			continue
		}
		sx, sy := v.ImageToScreen(a.Point.X, a.Point.Y)
		cx, cy := int(sx), int(sy)/2
		if cx >= 0 && cx < wCells && cy >= 0 && cy < hCells {
			sink.Cell(cx, cy, colorMarker, colorMarker)
		}
	}
}

func samplePoint(c *tilecache.Cache, img viewport.ImageDescriptor, ms *mask.Session, ix, iy float64, ideal int) color.Color {
	if ix < 0 || iy < 0 || ix >= float64(img.Width) || iy >= float64(img.Height) {
		return colorVoid
	}
	if ms != nil {
		if t, ok := ms.TileAt(ix, iy); ok {
			lx := int(ix) - t.Origin.X
			ly := int(iy) - t.Origin.Y
			if lx >= 0 && ly >= 0 && lx < t.Bits.Width && ly < t.Bits.Height && t.Bits.Get(lx, ly) {
				return colorMaskTint
			}
		}
	}
	t, ok := c.BestCovering(ix, iy, ideal)
	if !ok {
		return colorUnloaded
	}
	return sampleTile(t, ix, iy)
}

func sampleTile(t *tilecache.Tile, ix, iy float64) color.Color {
	x0, y0, x1, y1 := t.Key.ImageRect()
	b := t.Bitmap.Bounds()
	fx := (ix - x0) / (x1 - x0)
	fy := (iy - y0) / (y1 - y0)
	px := b.Min.X + int(fx*float64(b.Dx()))
	py := b.Min.Y + int(fy*float64(b.Dy()))
	if px >= b.Max.X {
		px = b.Max.X - 1
	}
	if py >= b.Max.Y {
		py = b.Max.Y - 1
	}
	return t.Bitmap.At(px, py)
}

// renderMinimap assembles the coarsest pyramid level into a thumbnail and
// marks the viewport on it. Returns empty when nothing is decoded yet.
func renderMinimap(p *pane.Pane, wCells, hCells int) *image.RGBA {
	c := p.Cache()
	img := p.Image
	level := img.Levels - 1
	ds := math.Pow(2, float64(level))
	lw := int(math.Ceil(float64(img.Width) / ds))
	lh := int(math.Ceil(float64(img.Height) / ds))
	if lw <= 0 || lh <= 0 {
		return nil
	}

	src := image.NewRGBA(image.Rect(0, 0, lw, lh))
	have := false
	tilesX := (lw + viewport.TileSize - 1) / viewport.TileSize
	tilesY := (lh + viewport.TileSize - 1) / viewport.TileSize
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			bm, ok := c.Ready(viewport.TileKey{Level: level, X: tx, Y: ty})
			if !ok {
				continue
			}
			have = true
			dst := image.Rect(tx*viewport.TileSize, ty*viewport.TileSize,
				(tx+1)*viewport.TileSize, (ty+1)*viewport.TileSize).Intersect(src.Bounds())
			xdraw.ApproxBiLinear.Scale(src, dst, bm, bm.Bounds(), xdraw.Src, nil)
		}
	}
	if !have {
		return nil
	}

	out := image.NewRGBA(image.Rect(0, 0, wCells, hCells*2))
	xdraw.ApproxBiLinear.Scale(out, out.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	// Viewport marker.
	v := p.Viewport()
	mx0 := int(v.X / float64(img.Width) * float64(wCells))
	my0 := int(v.Y / float64(img.Height) * float64(hCells*2))
	mx1 := int((v.X + v.ImageSpanX()) / float64(img.Width) * float64(wCells))
	my1 := int((v.Y + v.ImageSpanY()) / float64(img.Height) * float64(hCells*2))
	for x := mx0; x <= mx1; x++ {
		setIfIn(out, x, my0, colorMinimapBox)
		setIfIn(out, x, my1, colorMinimapBox)
	}
	for y := my0; y <= my1; y++ {
		setIfIn(out, mx0, y, colorMinimapBox)
		setIfIn(out, mx1, y, colorMinimapBox)
	}
	return out
}

func setIfIn(img *image.RGBA, x, y int, c color.Color) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.Set(x, y, c)
	}
}
