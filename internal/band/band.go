package band

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Band classifies a price into one of five ordered ranges.
type Band int

const (
	// None marks the absence of any observation.
	None Band = iota
	VeryGreen
	Green
	Yellow
	Red
	VeryRed
)

var (
	// ErrInvalidThresholds is returned when min/max do not satisfy 0 <= min < max.
	ErrInvalidThresholds = errors.New("thresholds: min must be < max")

	// ExtremeCents is the fixed VERY_RED edge, independent of user thresholds.
	ExtremeCents = decimal.NewFromInt(10)
)

var names = map[Band]string{
	None:      "none",
	VeryGreen: "VERY_GREEN",
	Green:     "GREEN",
	Yellow:    "YELLOW",
	Red:       "RED",
	VeryRed:   "VERY_RED",
}

func (b Band) String() string {
	if name, ok := names[b]; ok {
		return name
	}
	return fmt.Sprintf("Band(%d)", int(b))
}

// ParseBand maps a textual band name back to its value.
func ParseBand(s string) (Band, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return None, nil
	}
	for b, name := range names {
		if strings.EqualFold(name, trimmed) {
			return b, nil
		}
	}
	return None, fmt.Errorf("unknown band %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (b Band) MarshalText() ([]byte, error) {
	if _, ok := names[b]; !ok {
		return nil, fmt.Errorf("unknown band %d", int(b))
	}
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Band) UnmarshalText(text []byte) error {
	parsed, err := ParseBand(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Thresholds are the user-configurable GREEN/YELLOW/RED edges in cents.
type Thresholds struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Validate enforces 0 <= Min < Max.
func (t Thresholds) Validate() error {
	if t.Min.IsNegative() || t.Max.IsNegative() {
		return fmt.Errorf("%w (min=%s max=%s)", ErrInvalidThresholds, t.Min, t.Max)
	}
	if !t.Min.LessThan(t.Max) {
		return fmt.Errorf("%w (min=%s max=%s)", ErrInvalidThresholds, t.Min, t.Max)
	}
	return nil
}

// Classify maps a price onto its band. Every edge is inclusive on the upper band:
//
//	price < 0         VERY_GREEN
//	0 <= price < min  GREEN
//	min <= price < max YELLOW
//	max <= price < 10 RED
//	price >= 10       VERY_RED
//
// Callers must validate th first.
func Classify(price decimal.Decimal, th Thresholds) Band {
	switch {
	case price.IsNegative():
		return VeryGreen
	case price.GreaterThanOrEqual(ExtremeCents):
		return VeryRed
	case price.LessThan(th.Min):
		return Green
	case price.LessThan(th.Max):
		return Yellow
	default:
		return Red
	}
}
