package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"power-price-alerts/internal/service"
)

// Show prints the current snapshot: price, thresholds and alert state. It never writes.
func (a *App) Show(ctx context.Context, out io.Writer) error {
	kv, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := service.New(a.Config, a.serviceDeps(kv, a.newFeed(), nil), a.Logger)
	snap, err := svc.Snapshot(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	price := "unavailable"
	if snap.Price != nil {
		price = snap.Price.StringFixed(2) + " ct/kWh"
	}
	fmt.Fprintf(w, "Price\t%s\n", price)
	fmt.Fprintf(w, "Price at\t%s\n", formatTime(snap.PriceAt))
	fmt.Fprintf(w, "Min\t%s ct/kWh\n", snap.Thresholds.Min.StringFixed(2))
	fmt.Fprintf(w, "Max\t%s ct/kWh\n", snap.Thresholds.Max.StringFixed(2))
	fmt.Fprintf(w, "Band\t%s\n", snap.State.Band)
	fmt.Fprintf(w, "Last negative alert\t%s\n", formatTime(snap.State.LastNegativeAlertAt))
	fmt.Fprintf(w, "Last extreme alert\t%s\n", formatTime(snap.State.LastExtremeAlertAt))
	fmt.Fprintf(w, "Last negative ended\t%s\n", formatTime(snap.State.LastNegativeEndedAt))
	fmt.Fprintf(w, "Taken at\t%s\n", snap.TakenAt.Format(time.RFC3339))
	return w.Flush()
}

// Check runs one cycle with the configured store, feed and channel, then prints what it did.
func (a *App) Check(ctx context.Context, out io.Writer) error {
	kv, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier, closeNotifier, err := a.newNotifier()
	if err != nil {
		return err
	}
	defer closeNotifier()

	svc := service.New(a.Config, a.serviceDeps(kv, a.newFeed(), notifier), a.Logger)
	res, err := svc.RunCycle(ctx)
	if err != nil {
		return err
	}
	printCycle(out, res)
	return nil
}

func printCycle(out io.Writer, res service.CycleResult) {
	if res.Skipped {
		fmt.Fprintf(out, "cycle %s skipped: advisory lock held elsewhere\n", res.CycleID)
		return
	}
	fmt.Fprintf(out, "cycle %s: %s ct/kWh, %s (delivered %d/%d, persisted %t)\n",
		res.CycleID,
		res.Price.StringFixed(2),
		bandTransition(res.Previous, res.Current),
		res.Delivered,
		len(res.Notifications),
		res.Persisted,
	)
	for _, note := range res.Notifications {
		fmt.Fprintf(out, "\n[%s]\n%s\n", note.Kind, indent(note.Text))
	}
}

func indent(text string) string {
	return "  " + strings.ReplaceAll(text, "\n", "\n  ")
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
