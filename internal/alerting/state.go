package alerting

import (
	"time"

	"power-price-alerts/internal/band"
)

// State is the single durable record carried between cycles.
type State struct {
	Band                band.Band  `json:"band"`
	LastNegativeAlertAt *time.Time `json:"last_negative_alert_at,omitempty"`
	LastExtremeAlertAt  *time.Time `json:"last_extreme_alert_at,omitempty"`
	LastNegativeEndedAt *time.Time `json:"last_negative_ended_at,omitempty"`
}

// Equal reports whether both states carry the same band and instants.
func (s State) Equal(other State) bool {
	return s.Band == other.Band &&
		sameInstant(s.LastNegativeAlertAt, other.LastNegativeAlertAt) &&
		sameInstant(s.LastExtremeAlertAt, other.LastExtremeAlertAt) &&
		sameInstant(s.LastNegativeEndedAt, other.LastNegativeEndedAt)
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// advance returns now, unless prev is already later; stored instants never move backwards.
func advance(prev *time.Time, now time.Time) *time.Time {
	if prev != nil && prev.After(now) {
		kept := *prev
		return &kept
	}
	stamped := now
	return &stamped
}

// since reports the elapsed time from t to now, and false when t is unset.
func since(t *time.Time, now time.Time) (time.Duration, bool) {
	if t == nil {
		return 0, false
	}
	return now.Sub(*t), true
}
