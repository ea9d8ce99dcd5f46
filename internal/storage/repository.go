package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"power-price-alerts/internal/alerting"
	"power-price-alerts/internal/band"
)

// ThresholdOverride carries the fields a configuration update supplies; nil means untouched.
type ThresholdOverride struct {
	Min *decimal.Decimal
	Max *decimal.Decimal
}

// ThresholdStore persists min/max as two independent keys on top of configured defaults.
type ThresholdStore struct {
	kv       KV
	defaults band.Thresholds
}

// NewThresholdStore builds a ThresholdStore.
func NewThresholdStore(kv KV, defaults band.Thresholds) *ThresholdStore {
	return &ThresholdStore{kv: kv, defaults: defaults}
}

// Defaults returns the statically configured thresholds.
func (s *ThresholdStore) Defaults() band.Thresholds {
	return s.defaults
}

// Load returns the stored thresholds, falling back to defaults per field. It does not validate.
func (s *ThresholdStore) Load(ctx context.Context) (band.Thresholds, error) {
	th := s.defaults

	storedMin, err := s.loadField(ctx, KeyMinCents)
	if err != nil {
		return band.Thresholds{}, err
	}
	if storedMin != nil {
		th.Min = *storedMin
	}

	storedMax, err := s.loadField(ctx, KeyMaxCents)
	if err != nil {
		return band.Thresholds{}, err
	}
	if storedMax != nil {
		th.Max = *storedMax
	}

	return th, nil
}

func (s *ThresholdStore) loadField(ctx context.Context, key string) (*decimal.Decimal, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrStore, key, err)
	}
	return &value, nil
}

// Save writes only the supplied fields, in a single SetMany.
func (s *ThresholdStore) Save(ctx context.Context, o ThresholdOverride) error {
	entries := make(map[string]string, 2)
	if o.Min != nil {
		entries[KeyMinCents] = o.Min.String()
	}
	if o.Max != nil {
		entries[KeyMaxCents] = o.Max.String()
	}
	if len(entries) == 0 {
		return nil
	}
	return s.kv.SetMany(ctx, entries)
}

// AlertStateStore persists the single alert state record as JSON.
type AlertStateStore struct {
	kv KV
}

// NewAlertStateStore builds an AlertStateStore.
func NewAlertStateStore(kv KV) *AlertStateStore {
	return &AlertStateStore{kv: kv}
}

// Load returns the stored state; an absent record reads as the zero state (band none).
func (s *AlertStateStore) Load(ctx context.Context) (alerting.State, error) {
	raw, ok, err := s.kv.Get(ctx, KeyAlertState)
	if err != nil {
		return alerting.State{}, err
	}
	if !ok {
		return alerting.State{}, nil
	}

	var state alerting.State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return alerting.State{}, fmt.Errorf("%w: decode alert state: %v", ErrStore, err)
	}
	return state, nil
}

// Save overwrites the record; last writer wins.
func (s *AlertStateStore) Save(ctx context.Context, state alerting.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("%w: encode alert state: %v", ErrStore, err)
	}
	return s.kv.SetMany(ctx, map[string]string{KeyAlertState: string(raw)})
}
