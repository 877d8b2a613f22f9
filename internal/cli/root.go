// Package cli wires the cobra command tree: bare invocation starts the
// interactive viewer, subcommands cover scriptable slide and annotation
// operations.
package cli

import (
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"slideview/internal/tui"
)

// App carries the persistent flag values shared by every subcommand.
type App struct {
	ServerURL string
	APIURL    string
	SetID     string
	DPI       float64
	StateDir  string
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "slideview",
		Short:        "Terminal viewer for pyramidal whole-slide images",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the interactive viewer
  slideview

  # Open one slide directly
  slideview view 7d44f9a2-...

  # Scriptable commands
  slideview slides list
  slideview annotations list --set <set-id>
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive viewer.
			if cmd.HasSubCommands() && len(args) == 0 {
				return tui.Run(app.tuiOptions())
			}
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&app.ServerURL, "server", envOr("SLIDEVIEW_SERVER", "ws://localhost:3007/stream"), "Tile server websocket URL")
	cmd.PersistentFlags().StringVar(&app.APIURL, "api", envOr("SLIDEVIEW_API", "http://localhost:3008"), "Annotation service base URL")
	cmd.PersistentFlags().StringVar(&app.SetID, "set", envOr("SLIDEVIEW_SET", ""), "Annotation set id receiving created annotations")
	cmd.PersistentFlags().Float64Var(&app.DPI, "dpi", envFloatOr("SLIDEVIEW_DPI", 96), "Display DPI used for pyramid level selection")
	cmd.PersistentFlags().StringVar(&app.StateDir, "state-dir", envOr("SLIDEVIEW_STATE_DIR", ""), "Local state directory (advanced: overrides the default; mostly for fixtures/tests)")

	cmd.AddCommand(newViewCmd(app))
	cmd.AddCommand(newSlidesCmd(app))
	cmd.AddCommand(newAnnotationsCmd(app))
	cmd.AddCommand(newDocsCmd())
	return cmd
}

func (app *App) tuiOptions() tui.Options {
	return tui.Options{
		TileServerURL:   app.ServerURL,
		APIURL:          app.APIURL,
		AnnotationSetID: app.SetID,
		DPI:             app.DPI,
		StateDir:        app.StateDir,
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envFloatOr(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return def
}
