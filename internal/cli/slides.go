package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"slideview/internal/annosync"
)

func newSlidesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slides",
		Short: "Slide operations",
	}
	cmd.AddCommand(newSlidesListCmd(app))
	return cmd
}

func newSlidesListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the slides known to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			slides, err := annosync.NewClient(app.APIURL).ListSlides(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSIZE\tLEVELS")
			for _, s := range slides {
				fmt.Fprintf(w, "%s\t%s\t%dx%d\t%d\n", s.ID, s.Name, s.Width, s.Height, s.Levels)
			}
			return w.Flush()
		},
	}
}
