package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// docTopics is the on-demand documentation shown by `slideview docs`.
var docTopics = map[string]string{
	"keys": strings.TrimSpace(`
Navigation: arrows/hjkl pan, +/- zoom, 0 fit, mouse drag pans with inertia,
wheel zooms around the cursor.
Panes: | toggles split view, tab switches the active pane, m toggles the
minimap.
Tools: 1 point, 2 multi-point, 3 ellipse, 4 polygon, 5 freehand, 6 mask.
Mask: e toggles erase (or hold alt while painting), u/U undo/redo, esc
confirms the painted mask.
Other: r place ROI endpoint, ? help overlay, q quit.
`),
	"protocol": strings.TrimSpace(`
Tiles stream over one websocket connection. Opening a slide reserves a
server-side slot; every viewport change is sent as a compact binary update
for that slot, coalesced so at most one update goes out per 16 ms. Tile
frames come back tagged with the slot and pyramid coordinates. When the
server runs out of slots the slide stays browsable locally but receives no
tiles until another one closes.
`),
	"annotations": strings.TrimSpace(`
Annotations are synced to the annotation service at most once per 350 ms
quiet period. Mask paint is stored as 512x512 bitmask tiles, one annotation
per tile, base64 encoded. Fully erased tiles are re-synced as empty masks
rather than deleted; use "slideview annotations delete" to remove them.
`),
}

func newDocsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "docs [topic]",
		Short: "Show on-demand documentation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				topics := make([]string, 0, len(docTopics))
				for t := range docTopics {
					topics = append(topics, t)
				}
				sort.Strings(topics)
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(topics, "\n"))
				return nil
			}
			body, ok := docTopics[args[0]]
			if !ok {
				return fmt.Errorf("unknown docs topic %q (run `slideview docs` to list topics)", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), body)
			return nil
		},
	}
}
