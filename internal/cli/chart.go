package cli

import (
	"github.com/spf13/cobra"

	"power-price-alerts/internal/app"
)

var chartOpts app.ChartOptions

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Render the feed's current price series with the min/max lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Chart(cmd.Context(), chartOpts)
	},
}

func init() {
	chartCmd.Flags().StringVar(&chartOpts.PNGPath, "png", "", "Path to write PNG chart")
	chartCmd.Flags().StringVar(&chartOpts.CSVPath, "csv", "", "Path to write CSV data")
	chartCmd.Flags().IntVar(&chartOpts.MaxPoints, "max-points", 0, "Downsample to at most this many points (0 keeps all)")
	chartCmd.Flags().IntVar(&chartOpts.Width, "width", 0, "PNG width in pixels")
	chartCmd.Flags().IntVar(&chartOpts.Height, "height", 0, "PNG height in pixels")
}
