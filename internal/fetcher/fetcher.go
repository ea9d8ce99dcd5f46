package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrFetch wraps every failure to obtain a usable price sample.
var ErrFetch = errors.New("price fetch failed")

// PriceSample is a single timestamped reading in cents per kWh.
type PriceSample struct {
	At          time.Time
	CentsPerKWh decimal.Decimal
}

// PriceFetcher retrieves the latest price sample from the upstream feed.
type PriceFetcher interface {
	FetchLatest(ctx context.Context) (PriceSample, error)
}

// SeriesFetcher exposes the full time-ordered series, when the source has one.
type SeriesFetcher interface {
	FetchSeries(ctx context.Context) ([]PriceSample, error)
}

// Static always returns the same price, stamped with the current time.
type Static struct {
	Price decimal.Decimal
	Now   func() time.Time
}

// FetchLatest implements PriceFetcher.
func (s *Static) FetchLatest(ctx context.Context) (PriceSample, error) {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}
	return PriceSample{At: now, CentsPerKWh: s.Price}, nil
}

var _ PriceFetcher = (*Static)(nil)
