package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"power-price-alerts/internal/alerting"
	"power-price-alerts/internal/band"
	"power-price-alerts/internal/config"
	"power-price-alerts/internal/fetcher"
	"power-price-alerts/internal/metrics"
	"power-price-alerts/internal/storage"
)

var testDefaults = band.Thresholds{Min: decimal.RequireFromString("6.5"), Max: decimal.RequireFromString("8.5")}

type fakeFetcher struct {
	mu     sync.Mutex
	prices []string
	err    error
	calls  int
}

func (f *fakeFetcher) FetchLatest(ctx context.Context) (fetcher.PriceSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return fetcher.PriceSample{}, f.err
	}
	p := f.prices[0]
	if len(f.prices) > 1 {
		f.prices = f.prices[1:]
	}
	return fetcher.PriceSample{At: time.Now().UTC(), CentsPerKWh: decimal.RequireFromString(p)}, nil
}

type recordingNotifier struct {
	notes []alerting.Notification
	err   error
}

func (r *recordingNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	r.notes = append(r.notes, note)
	return r.err
}

// countingKV wraps a KV to count writes and inject failures.
type countingKV struct {
	storage.KV
	writes  int
	getErr  error
	saveErr error
}

func (c *countingKV) Get(ctx context.Context, key string) (string, bool, error) {
	if c.getErr != nil {
		return "", false, c.getErr
	}
	return c.KV.Get(ctx, key)
}

func (c *countingKV) SetMany(ctx context.Context, entries map[string]string) error {
	if c.saveErr != nil {
		return c.saveErr
	}
	c.writes++
	return c.KV.SetMany(ctx, entries)
}

type harness struct {
	svc      *Service
	kv       *countingKV
	fetch    *fakeFetcher
	notifier *recordingNotifier
	metrics  *metrics.Metrics
	clock    time.Time
}

func newHarness(t *testing.T, prices ...string) *harness {
	t.Helper()
	h := &harness{
		kv:       &countingKV{KV: storage.NewMemory()},
		fetch:    &fakeFetcher{prices: prices},
		notifier: &recordingNotifier{},
		metrics:  metrics.New(),
		clock:    time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC),
	}
	h.svc = New(&config.Config{}, Deps{
		Prices:     h.fetch,
		Thresholds: storage.NewThresholdStore(h.kv, testDefaults),
		States:     storage.NewAlertStateStore(h.kv),
		Notifier:   h.notifier,
		Metrics:    h.metrics,
	}, zerolog.Nop())
	h.svc.now = func() time.Time { return h.clock }
	return h
}

func (h *harness) kinds() []alerting.Kind {
	out := make([]alerting.Kind, 0, len(h.notifier.notes))
	for _, n := range h.notifier.notes {
		out = append(out, n.Kind)
	}
	return out
}

func TestRunCycleScenario(t *testing.T) {
	h := newHarness(t, "-1.0", "-1.0", "7.0", "9.0", "11.0", "9.0")
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := h.svc.RunCycle(ctx)
		require.NoError(t, err, "cycle %d", i+1)
		h.clock = h.clock.Add(5 * time.Minute)
	}

	assert.Equal(t, []alerting.Kind{
		alerting.KindNegativeStarted,
		alerting.KindNegativeEnded,
		alerting.KindBackToNormal,
		alerting.KindAboveMax,
		alerting.KindExtremeStarted,
		alerting.KindExtremeEased,
	}, h.kinds())

	current, err := h.svc.CurrentBand(ctx)
	require.NoError(t, err)
	assert.Equal(t, band.Red, current)
	assert.Equal(t, 6.0, testutil.ToFloat64(h.metrics.CyclesTotal.WithLabelValues(metrics.OutcomeOK)))
}

func TestRunCycleSkipsWriteWhenUnchanged(t *testing.T) {
	h := newHarness(t, "7")
	ctx := context.Background()

	first, err := h.svc.RunCycle(ctx)
	require.NoError(t, err)
	assert.True(t, first.Persisted)
	assert.Equal(t, 1, h.kv.writes)

	second, err := h.svc.RunCycle(ctx)
	require.NoError(t, err)
	assert.False(t, second.Persisted)
	assert.Empty(t, second.Notifications)
	assert.Equal(t, 1, h.kv.writes)
	assert.Len(t, h.notifier.notes, 1)
}

func TestRunCycleConfigurationError(t *testing.T) {
	h := newHarness(t, "7")
	ctx := context.Background()
	require.NoError(t, h.kv.SetMany(ctx, map[string]string{storage.KeyMinCents: "9", storage.KeyMaxCents: "3"}))
	writes := h.kv.writes

	_, err := h.svc.RunCycle(ctx)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, 0, h.fetch.calls, "no fetch on configuration error")
	assert.Empty(t, h.notifier.notes)
	assert.Equal(t, writes, h.kv.writes)

	assert.NoError(t, h.svc.Tick(ctx, h.clock), "timer callers never see configuration errors")
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.CyclesTotal.WithLabelValues(metrics.OutcomeConfigError)))
}

func TestRunCycleFetchError(t *testing.T) {
	h := newHarness(t)
	h.fetch.err = fmt.Errorf("%w: upstream down", fetcher.ErrFetch)

	_, err := h.svc.RunCycle(context.Background())
	assert.ErrorIs(t, err, fetcher.ErrFetch)
	assert.Empty(t, h.notifier.notes)
	assert.Equal(t, 0, h.kv.writes)
}

func TestRunCycleDeliveryErrorStillPersists(t *testing.T) {
	h := newHarness(t, "-3")
	h.notifier.err = errors.New("telegram down")

	res, err := h.svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Persisted)
	assert.Equal(t, 0, res.Delivered)
	assert.Len(t, h.notifier.notes, 1)

	current, err := h.svc.CurrentBand(context.Background())
	require.NoError(t, err)
	assert.Equal(t, band.VeryGreen, current)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.NotificationsTotal.WithLabelValues(string(alerting.KindNegativeStarted), "failed")))
}

func TestRunCycleStoreErrors(t *testing.T) {
	h := newHarness(t, "7")
	h.kv.getErr = fmt.Errorf("%w: connection refused", storage.ErrStore)

	_, err := h.svc.RunCycle(context.Background())
	assert.ErrorIs(t, err, storage.ErrStore)
	assert.Equal(t, 0, h.fetch.calls)

	h.kv.getErr = nil
	h.kv.saveErr = fmt.Errorf("%w: disk full", storage.ErrStore)
	_, err = h.svc.RunCycle(context.Background())
	assert.ErrorIs(t, err, storage.ErrStore)
	assert.Len(t, h.notifier.notes, 1, "delivery happens before the failed write")
}

type fakeLocker struct {
	acquired bool
	released int
}

func (f *fakeLocker) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	if !f.acquired {
		return nil, false, nil
	}
	return func() { f.released++ }, true, nil
}

func TestRunCycleAdvisoryLock(t *testing.T) {
	h := newHarness(t, "7")
	locker := &fakeLocker{}
	h.svc.locker = locker
	h.svc.lockKey = 42

	res, err := h.svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, 0, h.fetch.calls)

	locker.acquired = true
	res, err = h.svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 1, locker.released)
}

func TestSnapshot(t *testing.T) {
	h := newHarness(t, "-1")
	ctx := context.Background()
	_, err := h.svc.RunCycle(ctx)
	require.NoError(t, err)
	writes := h.kv.writes

	snap, err := h.svc.Snapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.Price)
	assert.Equal(t, "-1", snap.Price.String())
	assert.Equal(t, band.VeryGreen, snap.State.Band)
	assert.Equal(t, writes, h.kv.writes, "snapshot never writes")

	h.fetch.err = errors.New("offline")
	snap, err = h.svc.Snapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap.Price)
}

func TestConfigureThresholds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	th, err := h.svc.ConfigureThresholds(ctx, storage.ThresholdOverride{Min: decPtr("2")})
	require.NoError(t, err)
	assert.Equal(t, "2", th.Min.String())
	assert.True(t, th.Max.Equal(testDefaults.Max))

	_, stored, err := h.kv.Get(ctx, storage.KeyMaxCents)
	require.NoError(t, err)
	assert.False(t, stored, "max was not supplied")

	_, err = h.svc.ConfigureThresholds(ctx, storage.ThresholdOverride{Min: decPtr("5"), Max: decPtr("3")})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MsgMinBelowMax, verr.Msg)

	current, err := h.svc.Thresholds(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", current.Min.String(), "rejected update leaves thresholds unchanged")

	_, err = h.svc.ConfigureThresholds(ctx, storage.ThresholdOverride{Max: decPtr("2")})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MsgMinBelowMax, verr.Msg)

	_, err = h.svc.ConfigureThresholds(ctx, storage.ThresholdOverride{Max: decPtr("-4")})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MsgBadMax, verr.Msg)
}

func TestParseOverride(t *testing.T) {
	cases := []struct {
		query   string
		wantErr string
		min     string
		max     string
	}{
		{query: "", min: "", max: ""},
		{query: "min=5&max=3", min: "5", max: "3"},
		{query: "max=9.75", max: "9.75"},
		{query: "min=-1", wantErr: MsgBadMin},
		{query: "min=abc", wantErr: MsgBadMin},
		{query: "min=NaN", wantErr: MsgBadMin},
		{query: "min=", wantErr: MsgBadMin},
		{query: "max=Inf", wantErr: MsgBadMax},
		{query: "max=1e400", wantErr: MsgBadMax},
		{query: "min=1&max=-2", wantErr: MsgBadMax},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			q, err := url.ParseQuery(tc.query)
			require.NoError(t, err)

			o, err := ParseOverride(q)
			if tc.wantErr != "" {
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tc.wantErr, verr.Msg)
				return
			}
			require.NoError(t, err)
			assertDecPtr(t, tc.min, o.Min)
			assertDecPtr(t, tc.max, o.Max)
		})
	}
}

func assertDecPtr(t *testing.T, want string, got *decimal.Decimal) {
	t.Helper()
	if want == "" {
		assert.Nil(t, got)
		return
	}
	require.NotNil(t, got)
	assert.Equal(t, want, got.String())
}

func decPtr(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func TestRunWithoutScheduler(t *testing.T) {
	h := newHarness(t)
	assert.EqualError(t, h.svc.Run(context.Background()), "scheduler not configured")
}
