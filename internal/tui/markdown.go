package tui

import (
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

var (
	mdRendererMu sync.Mutex
	// Cache renderers by wrap width. WithAutoStyle can block on terminal
	// capability queries, so a fixed style is used instead.
	mdRenderers = map[string]*glamour.TermRenderer{}
)

func renderMarkdown(md string, width int) string {
	md = strings.TrimSpace(md)
	if md == "" {
		return ""
	}
	if width < 10 {
		width = 10
	}

	key := strconv.Itoa(width)
	mdRendererMu.Lock()
	r := mdRenderers[key]
	if r == nil {
		rr, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			mdRendererMu.Unlock()
			return md
		}
		mdRenderers[key] = rr
		r = rr
	}
	mdRendererMu.Unlock()

	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

const helpMarkdown = `# slideview

## Navigation
- **arrows / hjkl** pan, drag with the mouse for inertial panning
- **+ / -** or mouse wheel: zoom around the cursor
- **0** fit the whole slide
- **tab** switch pane, **|** toggle split view

## Annotation tools
- **1** point, **2** multi-point, **3** ellipse, **4** polygon,
  **5** freehand, **6** mask brush, **esc** cancel / leave tool
- Ellipse: click center, drag size, **space** cycles position/size/rotation,
  **enter** commits
- Mask: paint with the mouse, **e** toggles erase (or hold **alt**),
  **u / U** undo / redo

## Other
- **m** toggle the minimap, **?** toggle this help, **q** quit
`
