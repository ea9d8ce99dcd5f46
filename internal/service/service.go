package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"power-price-alerts/internal/alerting"
	"power-price-alerts/internal/band"
	"power-price-alerts/internal/config"
	"power-price-alerts/internal/fetcher"
	"power-price-alerts/internal/metrics"
	"power-price-alerts/internal/scheduler"
	"power-price-alerts/internal/storage"
)

// ErrConfiguration marks a cycle aborted because stored thresholds violate min < max.
var ErrConfiguration = errors.New("invalid threshold configuration")

// ThresholdRepository reads and writes the two threshold fields.
type ThresholdRepository interface {
	Load(ctx context.Context) (band.Thresholds, error)
	Save(ctx context.Context, override storage.ThresholdOverride) error
}

// StateRepository reads and writes the alert state record.
type StateRepository interface {
	Load(ctx context.Context) (alerting.State, error)
	Save(ctx context.Context, state alerting.State) error
}

// Deps are the collaborators a Service drives.
type Deps struct {
	Scheduler  *scheduler.Scheduler
	Prices     fetcher.PriceFetcher
	Thresholds ThresholdRepository
	States     StateRepository
	Notifier   alerting.Notifier
	Locker     storage.AdvisoryLocker
	Metrics    *metrics.Metrics
	// Clock defaults to time.Now in UTC.
	Clock      func() time.Time
}

// Service orchestrates fetching, deciding, delivery, and persistence.
type Service struct {
	scheduler  *scheduler.Scheduler
	prices     fetcher.PriceFetcher
	thresholds ThresholdRepository
	states     StateRepository
	notifier   alerting.Notifier
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	locker  storage.AdvisoryLocker
	lockKey int64
	now     func() time.Time
}

// CycleResult summarises one decision cycle.
type CycleResult struct {
	CycleID       string
	Skipped       bool
	Price         decimal.Decimal
	PriceAt       time.Time
	Previous      band.Band
	Current       band.Band
	Notifications []alerting.Notification
	Delivered     int
	Persisted     bool
}

// New constructs the monitoring service.
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Service {
	var lockKey int64
	if cfg != nil {
		lockKey = cfg.Scheduler.AdvisoryLockKey
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		scheduler:  deps.Scheduler,
		prices:     deps.Prices,
		thresholds: deps.Thresholds,
		states:     deps.States,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		logger:     logger.With().Str("component", "service").Logger(),
		locker:     deps.Locker,
		lockKey:    lockKey,
		now:        clock,
	}
}

// Run begins the scheduled sampling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return errors.New("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.Tick)
}

// Tick adapts RunCycle to the scheduler; the result is discarded.
func (s *Service) Tick(ctx context.Context, bucket time.Time) error {
	_, err := s.RunCycle(ctx)
	if errors.Is(err, ErrConfiguration) {
		// already logged by the cycle; not a scheduler failure
		return nil
	}
	return err
}

// RunCycle executes one decision cycle: thresholds, state, price, decide, deliver, persist.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	started := time.Now()
	result := CycleResult{CycleID: uuid.NewString()}
	logger := s.logger.With().Str("cycle_id", result.CycleID).Logger()

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		s.observeCycle(metrics.OutcomeStoreError, started)
		logger.Error().Err(err).Msg("advisory lock failed; cycle aborted")
		return result, err
	}
	if !proceed {
		result.Skipped = true
		s.observeCycle(metrics.OutcomeSkipped, started)
		logger.Debug().Msg("skip cycle because advisory lock held elsewhere")
		return result, nil
	}
	if unlock != nil {
		defer unlock()
	}

	outcome, err := s.executeCycle(ctx, &result, logger)
	s.observeCycle(outcome, started)
	return result, err
}

func (s *Service) executeCycle(ctx context.Context, result *CycleResult, logger zerolog.Logger) (string, error) {
	th, err := s.thresholds.Load(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("load thresholds failed; cycle aborted")
		return metrics.OutcomeStoreError, fmt.Errorf("load thresholds: %w", err)
	}
	if err := th.Validate(); err != nil {
		logger.Error().Err(err).
			Str("min_cents", th.Min.String()).
			Str("max_cents", th.Max.String()).
			Msg("stored thresholds invalid; cycle aborted")
		return metrics.OutcomeConfigError, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	state, err := s.states.Load(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("load alert state failed; cycle aborted")
		return metrics.OutcomeStoreError, fmt.Errorf("load alert state: %w", err)
	}

	sample, err := s.prices.FetchLatest(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("price fetch failed; cycle aborted")
		return metrics.OutcomeFetchError, fmt.Errorf("fetch price: %w", err)
	}
	result.Price = sample.CentsPerKWh
	result.PriceAt = sample.At

	decision := alerting.Decide(alerting.Input{
		Price:      sample.CentsPerKWh,
		Thresholds: th,
		State:      state,
		Now:        s.now(),
	})
	result.Previous = state.Band
	result.Current = decision.Current
	result.Notifications = decision.Notifications
	s.observePrice(sample.CentsPerKWh, decision.Current)

	logger.Info().
		Str("price", sample.CentsPerKWh.String()).
		Time("price_at", sample.At).
		Str("prev_band", state.Band.String()).
		Str("band", decision.Current.String()).
		Int("notifications", len(decision.Notifications)).
		Msg("price classified")

	for _, note := range decision.Notifications {
		if s.deliver(ctx, note, logger) {
			result.Delivered++
		}
	}

	if !decision.Changed {
		return metrics.OutcomeOK, nil
	}
	if err := s.states.Save(ctx, decision.State); err != nil {
		logger.Error().Err(err).Msg("persist alert state failed")
		return metrics.OutcomeStoreError, fmt.Errorf("save alert state: %w", err)
	}
	result.Persisted = true
	return metrics.OutcomeOK, nil
}

// deliver is best effort: failures are logged and never abort the cycle.
func (s *Service) deliver(ctx context.Context, note alerting.Notification, logger zerolog.Logger) bool {
	if s.notifier == nil {
		s.observeNotification(note.Kind, "disabled")
		return false
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.observeNotification(note.Kind, "failed")
		logger.Error().Err(err).Str("kind", string(note.Kind)).Msg("failed to dispatch alert")
		return false
	}
	s.observeNotification(note.Kind, "sent")
	return true
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func (s *Service) observeCycle(outcome string, started time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.CyclesTotal.WithLabelValues(outcome).Inc()
	s.metrics.CycleDuration.Observe(time.Since(started).Seconds())
}

func (s *Service) observePrice(price decimal.Decimal, current band.Band) {
	if s.metrics == nil {
		return
	}
	s.metrics.Price.Set(price.InexactFloat64())
	s.metrics.Band.Set(float64(current))
}

func (s *Service) observeNotification(kind alerting.Kind, result string) {
	if s.metrics == nil {
		return
	}
	s.metrics.NotificationsTotal.WithLabelValues(string(kind), result).Inc()
}
