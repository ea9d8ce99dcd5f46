package cli

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"power-price-alerts/internal/app"
)

var (
	replayPrices []string
	replayStep   time.Duration
	replayStart  string
	replayMin    string
	replayMax    string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Feed a price sequence through the alert rules against a throwaway store",
	Example: "  pricewatch replay --prices -1,-1,7,9,11,9 --step 5m\n" +
		"  pricewatch replay --prices 5,6.4,12 --min 6 --max 8",
	RunE: func(cmd *cobra.Command, args []string) error {
		prices, err := app.ParsePrices(replayPrices)
		if err != nil {
			return err
		}

		opts := app.ReplayOptions{Prices: prices, Step: replayStep}
		if replayStart != "" {
			start, err := time.Parse(time.RFC3339, replayStart)
			if err != nil {
				return fmt.Errorf("invalid --start value: %w", err)
			}
			opts.Start = start
		}
		if opts.MinCents, err = optionalDecimal("min", replayMin); err != nil {
			return err
		}
		if opts.MaxCents, err = optionalDecimal("max", replayMax); err != nil {
			return err
		}

		return getApp().Replay(cmd.Context(), opts, cmd.OutOrStdout())
	},
}

func optionalDecimal(name, raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s value: %w", name, err)
	}
	return &v, nil
}

func init() {
	replayCmd.Flags().StringSliceVar(&replayPrices, "prices", nil, "Comma separated prices in ct/kWh")
	replayCmd.Flags().DurationVar(&replayStep, "step", 5*time.Minute, "Simulated time between prices")
	replayCmd.Flags().StringVar(&replayStart, "start", "", "Simulated start timestamp (RFC3339, defaults to now)")
	replayCmd.Flags().StringVar(&replayMin, "min", "", "Override min threshold (defaults to config)")
	replayCmd.Flags().StringVar(&replayMax, "max", "", "Override max threshold (defaults to config)")
	_ = replayCmd.MarkFlagRequired("prices")
}
