package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"power-price-alerts/internal/alerting"
	"power-price-alerts/internal/band"
	"power-price-alerts/internal/config"
	"power-price-alerts/internal/fetcher"
	"power-price-alerts/internal/metrics"
	"power-price-alerts/internal/scheduler"
	"power-price-alerts/internal/server"
	"power-price-alerts/internal/service"
	"power-price-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFeed() *fetcher.Feed {
	return fetcher.NewFeed(fetcher.FeedOptions{
		URL:         a.Config.Feed.URL,
		Timeout:     a.Config.Feed.RequestTimeout,
		UserAgent:   a.Config.Feed.UserAgent,
		UnitDivisor: decimal.NewFromFloat(a.Config.Feed.UnitDivisor),
	}, a.Logger)
}

// newNotifier builds the single configured sink. The closer is never nil.
func (a *App) newNotifier() (alerting.Notifier, func(), error) {
	cfg := a.Config.Alerting
	noop := func() {}

	switch strings.ToLower(cfg.Channel) {
	case "telegram":
		return alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, cfg.RequestTimeout, a.Logger), noop, nil
	case "webhook":
		return alerting.NewWebhookNotifier(cfg.Webhook.URL, cfg.RequestTimeout, a.Logger), noop, nil
	case "kafka":
		k, err := alerting.NewKafkaNotifier(alerting.KafkaOptions{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			Destination:  cfg.Kafka.Destination,
			WriteTimeout: cfg.RequestTimeout,
		}, a.Logger)
		if err != nil {
			return nil, nil, err
		}
		return k, func() {
			if err := k.Close(); err != nil {
				a.Logger.Warn().Err(err).Msg("close kafka writer")
			}
		}, nil
	case "", "log":
		return alerting.NewLogNotifier(a.Logger), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown alerting channel %q", cfg.Channel)
	}
}

func (a *App) openStore(ctx context.Context) (storage.KV, func(), error) {
	kv, err := storage.Open(ctx, a.Config.Store)
	if err != nil {
		return nil, nil, err
	}
	a.Logger.Debug().Str("backend", a.Config.Store.Backend).Msg("store opened")
	return kv, func() {
		if err := kv.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close store")
		}
	}, nil
}

func (a *App) thresholdDefaults() band.Thresholds {
	return band.Thresholds{
		Min: decimal.NewFromFloat(a.Config.Thresholds.DefaultMinCents),
		Max: decimal.NewFromFloat(a.Config.Thresholds.DefaultMaxCents),
	}
}

// serviceDeps wires the cycle over kv. The advisory lock is used only when kv supports it.
func (a *App) serviceDeps(kv storage.KV, prices fetcher.PriceFetcher, notifier alerting.Notifier) service.Deps {
	locker, _ := kv.(storage.AdvisoryLocker)
	return service.Deps{
		Prices:     prices,
		Thresholds: storage.NewThresholdStore(kv, a.thresholdDefaults()),
		States:     storage.NewAlertStateStore(kv),
		Notifier:   notifier,
		Locker:     locker,
	}
}

// Run executes the long-running service: scheduler, HTTP surface and metrics listener.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kv, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	notifier, closeNotifier, err := a.newNotifier()
	if err != nil {
		return err
	}
	defer closeNotifier()

	sched, err := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		Align:        a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
	}, a.Logger)
	if err != nil {
		return err
	}

	m := metrics.New()
	deps := a.serviceDeps(kv, a.newFeed(), notifier)
	deps.Scheduler = sched
	deps.Metrics = m
	svc := service.New(a.Config, deps, a.Logger)
	srv := server.New(a.Config.Server, svc, a.Logger)

	errCh := make(chan error, 3)
	running := 0
	start := func(name string, fn func(context.Context) error) {
		running++
		go func() {
			err := fn(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				err = fmt.Errorf("%s: %w", name, err)
				cancel()
			} else {
				err = nil
			}
			errCh <- err
		}()
	}

	start("scheduler", svc.Run)
	start("http", srv.Run)
	if a.Config.Metrics.Addr != "" {
		start("metrics", func(ctx context.Context) error {
			return m.Serve(ctx, a.Config.Metrics.Addr, a.Logger)
		})
	}

	a.Logger.Info().
		Str("store", a.Config.Store.Backend).
		Str("channel", a.Config.Alerting.Channel).
		Dur("interval", sched.Interval()).
		Msg("starting monitoring service")

	var firstErr error
	for i := 0; i < running; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		a.Logger.Error().Err(firstErr).Msg("service terminated with error")
		return firstErr
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// ChartOptions configure the chart command.
type ChartOptions struct {
	PNGPath   string
	CSVPath   string
	MaxPoints int
	Width     int
	Height    int
}

// ReplayOptions configure the replay command.
type ReplayOptions struct {
	Prices   []decimal.Decimal
	Step     time.Duration
	Start    time.Time
	MinCents *decimal.Decimal
	MaxCents *decimal.Decimal
}
