package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"power-price-alerts/internal/alerting"
	"power-price-alerts/internal/band"
	"power-price-alerts/internal/fetcher"
	"power-price-alerts/internal/service"
	"power-price-alerts/internal/storage"
)

// Replay feeds a price sequence through the cycle against a throwaway memory store and the log sink.
// Nothing touches the configured store or channel.
func (a *App) Replay(ctx context.Context, opts ReplayOptions, out io.Writer) error {
	if len(opts.Prices) == 0 {
		return errors.New("replay needs at least one price")
	}
	if opts.Step <= 0 {
		return errors.New("--step must be greater than 0")
	}

	th := a.thresholdDefaults()
	if opts.MinCents != nil {
		th.Min = *opts.MinCents
	}
	if opts.MaxCents != nil {
		th.Max = *opts.MaxCents
	}
	if err := th.Validate(); err != nil {
		return fmt.Errorf("replay thresholds: %w", err)
	}

	clock := opts.Start.UTC()
	if opts.Start.IsZero() {
		clock = time.Now().UTC().Truncate(opts.Step)
	}
	now := func() time.Time { return clock }

	kv := storage.NewMemory()
	prices := &fetcher.Static{Now: now}
	deps := a.serviceDeps(kv, prices, alerting.NewLogNotifier(a.Logger))
	deps.Thresholds = storage.NewThresholdStore(kv, th)
	deps.Clock = now
	svc := service.New(a.Config, deps, a.Logger)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Range\tmin %s / max %s ct/kWh\n", th.Min.StringFixed(2), th.Max.StringFixed(2))
	fmt.Fprintln(w, "Step\tAt (UTC)\tPrice\tBand\tNotifications")

	sent := 0
	for i, price := range opts.Prices {
		if err := ctx.Err(); err != nil {
			return err
		}

		prices.Price = price
		res, err := svc.RunCycle(ctx)
		if err != nil {
			return fmt.Errorf("replay step %d: %w", i+1, err)
		}
		sent += len(res.Notifications)

		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			i+1,
			clock.Format(time.RFC3339),
			price.StringFixed(2),
			bandTransition(res.Previous, res.Current),
			notificationKinds(res.Notifications),
		)
		clock = clock.Add(opts.Step)
	}

	if err := w.Flush(); err != nil {
		return err
	}
	a.Logger.Info().Int("steps", len(opts.Prices)).Int("notifications", sent).Msg("replay finished")
	return nil
}

// ParsePrices reads a comma separated price list such as "-1,7.5,11".
func ParsePrices(values []string) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, 0, len(values))
	for _, raw := range values {
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", raw, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func bandTransition(prev, cur band.Band) string {
	if prev == cur {
		return cur.String()
	}
	return prev.String() + " -> " + cur.String()
}

func notificationKinds(notes []alerting.Notification) string {
	if len(notes) == 0 {
		return "-"
	}
	out := string(notes[0].Kind)
	for _, n := range notes[1:] {
		out += ", " + string(n.Kind)
	}
	return out
}
