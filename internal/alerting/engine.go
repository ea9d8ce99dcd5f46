package alerting

import (
	"time"

	"github.com/shopspring/decimal"

	"power-price-alerts/internal/band"
)

const (
	// NegativeReminderInterval gates "remains negative" reminders.
	NegativeReminderInterval = 45 * time.Minute
	// ExtremeReminderInterval gates "remains extremely high" reminders.
	ExtremeReminderInterval = 2 * time.Hour
	// GreenSuppressWindow mutes "below min" right after a negative period ended.
	GreenSuppressWindow = 2 * time.Minute
)

// Kind identifies which rule produced a notification.
type Kind string

const (
	KindNegativeStarted  Kind = "negative_started"
	KindNegativeReminder Kind = "negative_reminder"
	KindNegativeEnded    Kind = "negative_ended"
	KindExtremeStarted   Kind = "extreme_started"
	KindExtremeReminder  Kind = "extreme_reminder"
	KindExtremeEased     Kind = "extreme_eased"
	KindAboveMax         Kind = "above_max"
	KindBelowMin         Kind = "below_min"
	KindBackToNormal     Kind = "back_to_normal"
)

// Notification is one message the cycle wants delivered.
type Notification struct {
	Kind       Kind
	Band       band.Band
	Previous   band.Band
	Price      decimal.Decimal
	Thresholds band.Thresholds
	At         time.Time
	Text       string
}

// Input is the snapshot a cycle decides on.
type Input struct {
	Price      decimal.Decimal
	Thresholds band.Thresholds
	State      State
	Now        time.Time
}

// Decision is the outcome of one cycle: messages to send, in order, and the state to persist.
type Decision struct {
	Current       band.Band
	Notifications []Notification
	State         State
	Changed       bool
}

// Decide runs the band transition and reminder rules. It is pure; thresholds must already be valid.
func Decide(in Input) Decision {
	cur := band.Classify(in.Price, in.Thresholds)
	prev := in.State.Band

	d := &decider{in: in, cur: cur, prev: prev, next: in.State}
	if cur != prev {
		d.exit()
		d.enter()
	} else {
		d.remind()
	}

	return Decision{
		Current:       cur,
		Notifications: d.notes,
		State:         d.next,
		Changed:       !d.next.Equal(in.State),
	}
}

type decider struct {
	in    Input
	cur   band.Band
	prev  band.Band
	next  State
	notes []Notification
}

// exit handles leaving VERY_GREEN. It never ends the cycle: the entered band is evaluated next.
func (d *decider) exit() {
	if d.prev != band.VeryGreen || d.cur == band.VeryGreen {
		return
	}
	d.emit(KindNegativeEnded)
	d.next.Band = d.cur
	d.next.LastNegativeEndedAt = advance(d.next.LastNegativeEndedAt, d.in.Now)
}

func (d *decider) enter() {
	now := d.in.Now
	switch {
	case d.cur == band.VeryGreen:
		d.emit(KindNegativeStarted)
		d.next.LastNegativeAlertAt = advance(d.next.LastNegativeAlertAt, now)
	case d.cur == band.VeryRed:
		d.emit(KindExtremeStarted)
		d.next.LastExtremeAlertAt = advance(d.next.LastExtremeAlertAt, now)
	case d.cur == band.Red && d.prev == band.VeryRed:
		d.emit(KindExtremeEased)
	case d.cur == band.Red:
		d.emit(KindAboveMax)
	case d.cur == band.Green:
		elapsed, ok := since(d.next.LastNegativeEndedAt, now)
		if !ok || elapsed >= GreenSuppressWindow {
			d.emit(KindBelowMin)
		}
	case d.cur == band.Yellow:
		d.emit(KindBackToNormal)
	}
	d.next.Band = d.cur
}

func (d *decider) remind() {
	now := d.in.Now
	switch d.cur {
	case band.VeryGreen:
		if due(d.next.LastNegativeAlertAt, now, NegativeReminderInterval) {
			d.emit(KindNegativeReminder)
			d.next.LastNegativeAlertAt = advance(d.next.LastNegativeAlertAt, now)
		}
	case band.VeryRed:
		if due(d.next.LastExtremeAlertAt, now, ExtremeReminderInterval) {
			d.emit(KindExtremeReminder)
			d.next.LastExtremeAlertAt = advance(d.next.LastExtremeAlertAt, now)
		}
	}
}

func due(last *time.Time, now time.Time, interval time.Duration) bool {
	elapsed, ok := since(last, now)
	return !ok || elapsed >= interval
}

func (d *decider) emit(kind Kind) {
	note := Notification{
		Kind:       kind,
		Band:       d.cur,
		Previous:   d.prev,
		Price:      d.in.Price,
		Thresholds: d.in.Thresholds,
		At:         d.in.Now,
	}
	note.Text = renderText(note)
	d.notes = append(d.notes, note)
}
