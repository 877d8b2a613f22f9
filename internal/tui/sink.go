package tui

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/muesli/termenv"
)

// RenderSink receives a pane's composited pixels. Each terminal cell holds
// two vertically stacked pixels, so a frame of w x h cells is a w x 2h
// pixel surface.
type RenderSink interface {
	// Frame starts a new frame of w x h cells.
	Frame(w, h int)
	// Cell sets one cell's top and bottom pixel colors.
	Cell(x, y int, top, bottom color.Color)
	// Flush returns the rendered frame.
	Flush() string
}

// cellSink renders half-block characters through termenv.
type cellSink struct {
	profile termenv.Profile
	w, h    int
	cells   [][2]color.Color
}

// NewCellSink returns the terminal sink used by the live TUI.
func NewCellSink() RenderSink {
	return &cellSink{profile: termenv.ColorProfile()}
}

func (s *cellSink) Frame(w, h int) {
	s.w, s.h = w, h
	s.cells = make([][2]color.Color, w*h)
}

func (s *cellSink) Cell(x, y int, top, bottom color.Color) {
	if x < 0 || y < 0 || x >= s.w || y >= s.h {
		return
	}
	s.cells[y*s.w+x] = [2]color.Color{top, bottom}
}

func (s *cellSink) Flush() string {
	var b strings.Builder
	for y := 0; y < s.h; y++ {
		if y > 0 {
			b.WriteByte('\n')
		}
		for x := 0; x < s.w; x++ {
			c := s.cells[y*s.w+x]
			b.WriteString(termenv.String("▀").
				Foreground(s.profile.Color(hexColor(c[0]))).
				Background(s.profile.Color(hexColor(c[1]))).
				String())
		}
	}
	return b.String()
}

func hexColor(c color.Color) string {
	if c == nil {
		return "#000000"
	}
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", uint8(r>>8), uint8(g>>8), uint8(b>>8))
}

// RecordingSink captures pixels for assertions instead of rendering them.
type RecordingSink struct {
	W, H   int
	Top    []color.Color
	Bottom []color.Color
	Frames int
}

func (s *RecordingSink) Frame(w, h int) {
	s.W, s.H = w, h
	s.Top = make([]color.Color, w*h)
	s.Bottom = make([]color.Color, w*h)
	s.Frames++
}

func (s *RecordingSink) Cell(x, y int, top, bottom color.Color) {
	if x < 0 || y < 0 || x >= s.W || y >= s.H {
		return
	}
	s.Top[y*s.W+x] = top
	s.Bottom[y*s.W+x] = bottom
}

func (s *RecordingSink) Flush() string { return "" }

// At returns the recorded pixel at pixel (not cell) coordinates.
func (s *RecordingSink) At(px, py int) color.Color {
	if py%2 == 0 {
		return s.Top[(py/2)*s.W+px]
	}
	return s.Bottom[(py/2)*s.W+px]
}
