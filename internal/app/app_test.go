package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"power-price-alerts/internal/band"
	"power-price-alerts/internal/config"
	"power-price-alerts/internal/fetcher"
	"power-price-alerts/internal/storage"
)

func testApp(t *testing.T, feedURL string) *App {
	t.Helper()
	cfg := &config.Config{}
	cfg.Thresholds.DefaultMinCents = 6.5
	cfg.Thresholds.DefaultMaxCents = 8.5
	cfg.Store.Backend = "sqlite"
	cfg.Store.SQLite.Path = filepath.Join(t.TempDir(), "pricewatch.db")
	cfg.Alerting.Channel = "log"
	cfg.Feed.URL = feedURL
	cfg.Feed.RequestTimeout = time.Second
	cfg.Feed.UnitDivisor = 1
	return NewApp(cfg, zerolog.Nop())
}

func feedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestReplayScenario(t *testing.T) {
	a := testApp(t, "")
	prices, err := ParsePrices(strings.Split("-1, -1, 7, 9, 11, 9", ","))
	require.NoError(t, err)

	var out bytes.Buffer
	err = a.Replay(context.Background(), ReplayOptions{
		Prices: prices,
		Step:   5 * time.Minute,
		Start:  time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC),
	}, &out)
	require.NoError(t, err)

	text := out.String()
	for _, want := range []string{
		"none -> VERY_GREEN",
		"negative_started",
		"VERY_GREEN -> YELLOW",
		"negative_ended, back_to_normal",
		"above_max",
		"extreme_started",
		"VERY_RED -> RED",
		"extreme_eased",
		"2025-03-09T12:25:00Z",
	} {
		assert.Contains(t, text, want)
	}

	_, err = os.Stat(a.Config.Store.SQLite.Path)
	assert.True(t, os.IsNotExist(err), "replay 不应触碰配置的存储")
}

func TestReplayRejectsBadInput(t *testing.T) {
	a := testApp(t, "")
	var out bytes.Buffer

	assert.EqualError(t, a.Replay(context.Background(), ReplayOptions{Step: time.Minute}, &out), "replay needs at least one price")
	assert.EqualError(t, a.Replay(context.Background(), ReplayOptions{Prices: []decimal.Decimal{decimal.Zero}}, &out), "--step must be greater than 0")

	minCents := decimal.RequireFromString("9")
	err := a.Replay(context.Background(), ReplayOptions{
		Prices:   []decimal.Decimal{decimal.Zero},
		Step:     time.Minute,
		MinCents: &minCents,
	}, &out)
	assert.ErrorIs(t, err, band.ErrInvalidThresholds)

	_, err = ParsePrices([]string{"1", "abc"})
	assert.Error(t, err)
}

func TestCheckAndShowUseConfiguredStore(t *testing.T) {
	srv := feedServer(t, `{"unit":"ct/kWh","data":[{"date":"2025-03-09T10:00:00Z","value":-2.5}]}`)
	a := testApp(t, srv.URL)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, a.Check(ctx, &out))
	assert.Contains(t, out.String(), "negative_started")
	assert.Contains(t, out.String(), "persisted true")

	out.Reset()
	require.NoError(t, a.Check(ctx, &out))
	assert.Contains(t, out.String(), "persisted false", "second cycle in the same band writes nothing")

	out.Reset()
	require.NoError(t, a.Show(ctx, &out))
	assert.Contains(t, out.String(), "-2.50 ct/kWh")
	assert.Contains(t, out.String(), "VERY_GREEN")
}

func TestSetThresholdsAndSimulate(t *testing.T) {
	a := testApp(t, "")
	ctx := context.Background()
	var out bytes.Buffer

	assert.Error(t, a.SetThresholds(ctx, storage.ThresholdOverride{}, &out))

	maxCents := decimal.RequireFromString("12")
	require.NoError(t, a.SetThresholds(ctx, storage.ThresholdOverride{Max: &maxCents}, &out))
	assert.Contains(t, out.String(), "min 6.50 / max 12.00")

	out.Reset()
	require.NoError(t, a.SimulateAlert(ctx, decimal.RequireFromString("11"), &out))
	assert.Contains(t, out.String(), "extreme_started", "10ct 以上无论 max 多少都是 VERY_RED")
}

func TestDownsampleSamples(t *testing.T) {
	samples := make([]fetcher.PriceSample, 10)
	base := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	for i := range samples {
		samples[i] = fetcher.PriceSample{At: base.Add(time.Duration(i) * time.Hour), CentsPerKWh: decimal.NewFromInt(int64(i))}
	}

	assert.Len(t, downsampleSamples(samples, 0), 10)
	got := downsampleSamples(samples, 4)
	require.Len(t, got, 4)
	assert.Equal(t, samples[0].At, got[0].At)
	assert.Equal(t, samples[9].At, got[3].At)
}

func TestChartWritesFiles(t *testing.T) {
	srv := feedServer(t, `{"unit":"ct/kWh","data":[
		{"date":"2025-03-09T10:00:00Z","value":-1},
		{"date":"2025-03-09T10:15:00Z","value":7.2},
		{"date":"2025-03-09T10:30:00Z","value":11}
	]}`)
	a := testApp(t, srv.URL)
	dir := t.TempDir()

	assert.Error(t, a.Chart(context.Background(), ChartOptions{}))

	opts := ChartOptions{
		PNGPath: filepath.Join(dir, "out", "series.png"),
		CSVPath: filepath.Join(dir, "out", "series.csv"),
	}
	require.NoError(t, a.Chart(context.Background(), opts))

	csvData, err := os.ReadFile(opts.CSVPath)
	require.NoError(t, err)
	assert.Contains(t, string(csvData), "2025-03-09T10:00:00Z,-1,VERY_GREEN")
	assert.Contains(t, string(csvData), "2025-03-09T10:30:00Z,11,VERY_RED")

	png, err := os.ReadFile(opts.PNGPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}
