package cli

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"power-price-alerts/internal/storage"
)

var simulatePrice string

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Run one cycle with the given price and deliver its alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrice == "" {
			return errors.New("--price is required")
		}
		price, err := decimal.NewFromString(simulatePrice)
		if err != nil {
			return fmt.Errorf("invalid --price: %w", err)
		}
		return getApp().SimulateAlert(cmd.Context(), price, cmd.OutOrStdout())
	},
}

var (
	setMin string
	setMax string
)

var setThresholdsCmd = &cobra.Command{
	Use:   "set-thresholds",
	Short: "Update min and/or max (ct/kWh) with the same validation as /set",
	RunE: func(cmd *cobra.Command, args []string) error {
		var override storage.ThresholdOverride
		if cmd.Flags().Changed("min") {
			v, err := decimal.NewFromString(setMin)
			if err != nil {
				return fmt.Errorf("bad min: %w", err)
			}
			override.Min = &v
		}
		if cmd.Flags().Changed("max") {
			v, err := decimal.NewFromString(setMax)
			if err != nil {
				return fmt.Errorf("bad max: %w", err)
			}
			override.Max = &v
		}
		return getApp().SetThresholds(cmd.Context(), override, cmd.OutOrStdout())
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulatePrice, "price", "", "Simulated price in ct/kWh")

	setThresholdsCmd.Flags().StringVar(&setMin, "min", "", "Lower threshold in ct/kWh")
	setThresholdsCmd.Flags().StringVar(&setMax, "max", "", "Upper threshold in ct/kWh")
}
