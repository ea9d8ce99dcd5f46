package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Cycle outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeConfigError = "config_error"
	OutcomeFetchError  = "fetch_error"
	OutcomeStoreError  = "store_error"
	OutcomeSkipped     = "skipped"
)

// Metrics holds the Prometheus collectors for the decision cycle.
type Metrics struct {
	registry *prometheus.Registry

	CyclesTotal        *prometheus.CounterVec // labels: outcome
	NotificationsTotal *prometheus.CounterVec // labels: kind, result
	Price              prometheus.Gauge
	Band               prometheus.Gauge
	CycleDuration      prometheus.Histogram
}

// New registers every collector on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_cycles_total",
			Help: "Decision cycles by outcome",
		}, []string{"outcome"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_notifications_total",
			Help: "Notifications by kind and delivery result",
		}, []string{"kind", "result"}),
		Price: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pricewatch_price_cents_per_kwh",
			Help: "Most recently fetched price",
		}),
		Band: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pricewatch_band",
			Help: "Current band (0=none, 1=VERY_GREEN .. 5=VERY_RED)",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pricewatch_cycle_duration_seconds",
			Help:    "Wall time of one decision cycle",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.CyclesTotal,
		m.NotificationsTotal,
		m.Price,
		m.Band,
		m.CycleDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the private registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics listener started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
