package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// FeedOptions parameterise the HTTP price feed.
type FeedOptions struct {
	URL         string
	Timeout     time.Duration
	UserAgent   string
	UnitDivisor decimal.Decimal
}

// Feed fetches the price series from a JSON endpoint.
type Feed struct {
	opts    FeedOptions
	logger  zerolog.Logger
	client  *http.Client
	divisor decimal.Decimal
}

// NewFeed constructs a feed fetcher.
func NewFeed(opts FeedOptions, logger zerolog.Logger) *Feed {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	divisor := opts.UnitDivisor
	if divisor.IsZero() {
		divisor = decimal.NewFromInt(1)
	}

	return &Feed{
		opts:    opts,
		logger:  logger.With().Str("component", "price_feed").Logger(),
		client:  &http.Client{Timeout: timeout},
		divisor: divisor,
	}
}

// FetchLatest returns the sample with the greatest timestamp.
func (f *Feed) FetchLatest(ctx context.Context) (PriceSample, error) {
	series, err := f.FetchSeries(ctx)
	if err != nil {
		return PriceSample{}, err
	}

	latest := series[len(series)-1]
	f.logger.Debug().Time("at", latest.At).Str("price", latest.CentsPerKWh.String()).Msg("latest price fetched")
	return latest, nil
}

// FetchSeries returns all samples ordered by timestamp.
func (f *Feed) FetchSeries(ctx context.Context) ([]PriceSample, error) {
	if strings.TrimSpace(f.opts.URL) == "" {
		return nil, fmt.Errorf("%w: feed url not configured", ErrFetch)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "pricewatch/1.0")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(resp.StatusCode, payloadBytes)
	}

	var res feedResponse
	if err := json.Unmarshal(payloadBytes, &res); err != nil {
		return nil, fmt.Errorf("%w: decode feed: %v", ErrFetch, err)
	}
	if len(res.Data) == 0 {
		return nil, fmt.Errorf("%w: feed returned no samples", ErrFetch)
	}

	series := make([]PriceSample, 0, len(res.Data))
	for _, point := range res.Data {
		if point.Date.IsZero() || point.Value == nil {
			return nil, fmt.Errorf("%w: incomplete sample in feed", ErrFetch)
		}
		series = append(series, PriceSample{
			At:          point.Date.UTC(),
			CentsPerKWh: point.Value.Div(f.divisor),
		})
	}
	sort.SliceStable(series, func(i, j int) bool { return series[i].At.Before(series[j].At) })

	return series, nil
}

type feedResponse struct {
	Unit     string      `json:"unit"`
	Interval int         `json:"interval"`
	Data     []feedPoint `json:"data"`
}

type feedPoint struct {
	Date  time.Time        `json:"date"`
	Value *decimal.Decimal `json:"value"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("%w: feed error (%d): %s", ErrFetch, status, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("%w: feed error (%d): %s", ErrFetch, status, apiErr.Error)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("%w: feed error (%d): %s", ErrFetch, status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("%w: feed error (%d)", ErrFetch, status)
}

var (
	_ PriceFetcher  = (*Feed)(nil)
	_ SeriesFetcher = (*Feed)(nil)
)
