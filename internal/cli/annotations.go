package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"slideview/internal/annosync"
	"slideview/internal/model"
)

func newAnnotationsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "annotations",
		Short: "Annotation operations",
	}
	cmd.AddCommand(newAnnotationsListCmd(app))
	cmd.AddCommand(newAnnotationsDeleteCmd(app))
	return cmd
}

func newAnnotationsListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the annotations in a set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.SetID == "" {
				return errors.New("an annotation set is required (--set or SLIDEVIEW_SET)")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			items, err := annosync.NewClient(app.APIURL).ListAnnotations(ctx, app.SetID)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tLABEL\tGEOMETRY")
			for _, a := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.Kind, a.LabelID, summarizeGeometry(a))
			}
			return w.Flush()
		},
	}
}

func newAnnotationsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <annotation-id>...",
		Short: "Delete annotations (e.g. fully erased mask tiles)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			client := annosync.NewClient(app.APIURL)
			for _, id := range args {
				if err := client.DeleteAnnotation(ctx, id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			}
			return nil
		},
	}
}

func summarizeGeometry(a model.Annotation) string {
	switch {
	case a.Point != nil:
		return fmt.Sprintf("(%.0f, %.0f)", a.Point.X, a.Point.Y)
	case a.Polygon != nil:
		return fmt.Sprintf("%d vertices", len(a.Polygon.Path))
	case a.Ellipse != nil:
		return fmt.Sprintf("center (%.0f, %.0f) radii %.0fx%.0f", a.Ellipse.CX, a.Ellipse.CY, a.Ellipse.RadiusX, a.Ellipse.RadiusY)
	case a.Mask != nil:
		return fmt.Sprintf("tile (%.0f, %.0f) %dx%d", a.Mask.X0, a.Mask.Y0, a.Mask.Width, a.Mask.Height)
	}
	return "-"
}
