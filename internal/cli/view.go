package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"slideview/internal/tui"
)

func newViewCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "view <slide-id>",
		Short: "Open one slide directly in the interactive viewer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid slide id %q: %w", args[0], err)
			}
			opts := app.tuiOptions()
			opts.SlideID = id
			return tui.Run(opts)
		},
	}
}
