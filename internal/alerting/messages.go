package alerting

import (
	"fmt"
	"strings"
	"time"

	"power-price-alerts/internal/band"
)

var headlines = map[Kind]string{
	KindNegativeStarted:  "Price is now negative",
	KindNegativeReminder: "Price remains negative",
	KindNegativeEnded:    "Negative price period has ended",
	KindExtremeStarted:   "Price is extremely high (>= 10 ct/kWh)",
	KindExtremeReminder:  "Price remains extremely high",
	KindExtremeEased:     "Price dropped below 10 ct/kWh but is still above max",
	KindAboveMax:         "Price is above max",
	KindBelowMin:         "Price is below min",
	KindBackToNormal:     "Price is back to normal range",
}

// Headline returns the one-line summary for a kind.
func Headline(kind Kind) string {
	if h, ok := headlines[kind]; ok {
		return h
	}
	return string(kind)
}

func renderText(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("%s: %s ct/kWh\n", Headline(note.Kind), note.Price.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Band: %s", note.Band))
	if note.Previous != band.None && note.Previous != note.Band {
		builder.WriteString(fmt.Sprintf(" (was %s)", note.Previous))
	}
	builder.WriteString("\n")
	builder.WriteString(fmt.Sprintf("Range: min %s / max %s ct/kWh\n", note.Thresholds.Min.StringFixed(2), note.Thresholds.Max.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("At: %s UTC", note.At.UTC().Format(time.RFC3339)))
	return builder.String()
}
