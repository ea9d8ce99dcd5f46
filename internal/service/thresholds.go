package service

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"power-price-alerts/internal/alerting"
	"power-price-alerts/internal/band"
	"power-price-alerts/internal/storage"
)

// Validation messages returned verbatim to /set callers.
const (
	MsgBadMin      = "bad min"
	MsgBadMax      = "bad max"
	MsgMinBelowMax = "min must be < max"
)

// ValidationError rejects a threshold update before anything is written.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Snapshot is a read-only view of price, thresholds, and alert state.
type Snapshot struct {
	Price      *decimal.Decimal
	PriceAt    *time.Time
	Thresholds band.Thresholds
	State      alerting.State
	TakenAt    time.Time
}

// Snapshot reads everything /price reports. A failed fetch leaves Price nil; nothing is mutated.
func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	th, err := s.thresholds.Load(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load thresholds: %w", err)
	}
	state, err := s.states.Load(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load alert state: %w", err)
	}

	snap := Snapshot{Thresholds: th, State: state, TakenAt: s.now()}
	sample, err := s.prices.FetchLatest(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("price fetch failed; snapshot without price")
		return snap, nil
	}
	snap.Price = &sample.CentsPerKWh
	snap.PriceAt = &sample.At
	return snap, nil
}

// Thresholds returns the effective thresholds.
func (s *Service) Thresholds(ctx context.Context) (band.Thresholds, error) {
	return s.thresholds.Load(ctx)
}

// CurrentBand returns the band recorded by the last persisted cycle.
func (s *Service) CurrentBand(ctx context.Context) (band.Band, error) {
	state, err := s.states.Load(ctx)
	if err != nil {
		return band.None, err
	}
	return state.Band, nil
}

// ConfigureThresholds merges the override onto the stored values and persists only the supplied fields.
func (s *Service) ConfigureThresholds(ctx context.Context, o storage.ThresholdOverride) (band.Thresholds, error) {
	if o.Min != nil && o.Min.IsNegative() {
		return band.Thresholds{}, &ValidationError{Msg: MsgBadMin}
	}
	if o.Max != nil && o.Max.IsNegative() {
		return band.Thresholds{}, &ValidationError{Msg: MsgBadMax}
	}

	merged, err := s.thresholds.Load(ctx)
	if err != nil {
		return band.Thresholds{}, fmt.Errorf("load thresholds: %w", err)
	}
	if o.Min != nil {
		merged.Min = *o.Min
	}
	if o.Max != nil {
		merged.Max = *o.Max
	}
	if !merged.Min.LessThan(merged.Max) {
		return band.Thresholds{}, &ValidationError{Msg: MsgMinBelowMax}
	}

	if err := s.thresholds.Save(ctx, o); err != nil {
		return band.Thresholds{}, fmt.Errorf("save thresholds: %w", err)
	}

	s.logger.Info().
		Str("min_cents", merged.Min.String()).
		Str("max_cents", merged.Max.String()).
		Msg("thresholds updated")
	return merged, nil
}

// ParseOverride reads optional min/max query values. Present values must be finite and non-negative.
func ParseOverride(q url.Values) (storage.ThresholdOverride, error) {
	var o storage.ThresholdOverride
	if q.Has("min") {
		v, err := parseCents(q.Get("min"))
		if err != nil {
			return o, &ValidationError{Msg: MsgBadMin}
		}
		o.Min = &v
	}
	if q.Has("max") {
		v, err := parseCents(q.Get("max"))
		if err != nil {
			return o, &ValidationError{Msg: MsgBadMax}
		}
		o.Max = &v
	}
	return o, nil
}

func parseCents(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return decimal.Decimal{}, fmt.Errorf("value %q out of range", raw)
	}
	// exact digits when decimal can read them; hex floats fall back to the parsed value
	if d, err := decimal.NewFromString(raw); err == nil {
		return d, nil
	}
	return decimal.NewFromFloat(f), nil
}
