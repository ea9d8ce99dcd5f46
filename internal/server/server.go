package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"power-price-alerts/internal/band"
	"power-price-alerts/internal/config"
	"power-price-alerts/internal/service"
	"power-price-alerts/internal/storage"
)

// Backend is the slice of the service the HTTP surface drives.
type Backend interface {
	RunCycle(ctx context.Context) (service.CycleResult, error)
	Snapshot(ctx context.Context) (service.Snapshot, error)
	Thresholds(ctx context.Context) (band.Thresholds, error)
	CurrentBand(ctx context.Context) (band.Band, error)
	ConfigureThresholds(ctx context.Context, o storage.ThresholdOverride) (band.Thresholds, error)
}

// Server exposes /ping, /price, /get and /set. Every other path answers 200 "ok".
type Server struct {
	cfg     config.ServerConfig
	backend Backend
	logger  zerolog.Logger
	handler http.Handler
}

// New builds the router and middleware chain.
func New(cfg config.ServerConfig, backend Backend, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		backend: backend,
		logger:  logger.With().Str("component", "http").Logger(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/ping", s.handlePing)
	r.HandleFunc("/price", s.handlePrice)
	r.HandleFunc("/get", s.handleGet)
	r.HandleFunc("/set", s.handleSet)
	r.NotFoundHandler = http.HandlerFunc(writeOK)
	r.MethodNotAllowedHandler = http.HandlerFunc(writeOK)

	logged := handlers.CustomLoggingHandler(io.Discard, r, s.accessLog)
	s.handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
		handlers.PrintRecoveryStack(true),
	)(logged)
	return s
}

// Handler returns the wrapped router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("http listener started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info().Msg("http listener stopped")
	return nil
}

// handlePing runs one cycle. The caller always gets "ok"; outcomes live in the logs.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	if _, err := s.backend.RunCycle(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("cycle triggered by /ping failed")
	}
	writeOK(w, r)
}

type priceResponse struct {
	PriceCentsPerKWh    *float64   `json:"price_cents_per_kwh"`
	PriceAt             *time.Time `json:"price_at"`
	MinCents            float64    `json:"min_cents"`
	MaxCents            float64    `json:"max_cents"`
	Band                band.Band  `json:"band"`
	LastNegativeAlertAt *time.Time `json:"last_negative_alert_at"`
	LastExtremeAlertAt  *time.Time `json:"last_extreme_alert_at"`
	LastNegativeEndedAt *time.Time `json:"last_negative_ended_at"`
	LastUpdatedUTC      time.Time  `json:"last_updated_utc"`
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	snap, err := s.backend.Snapshot(r.Context())
	if err != nil {
		s.internalError(w, err, "snapshot failed")
		return
	}

	resp := priceResponse{
		PriceAt:             snap.PriceAt,
		MinCents:            snap.Thresholds.Min.InexactFloat64(),
		MaxCents:            snap.Thresholds.Max.InexactFloat64(),
		Band:                snap.State.Band,
		LastNegativeAlertAt: snap.State.LastNegativeAlertAt,
		LastExtremeAlertAt:  snap.State.LastExtremeAlertAt,
		LastNegativeEndedAt: snap.State.LastNegativeEndedAt,
		LastUpdatedUTC:      snap.TakenAt.UTC(),
	}
	if snap.Price != nil {
		p := snap.Price.InexactFloat64()
		resp.PriceCentsPerKWh = &p
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type thresholdsResponse struct {
	MinCents float64    `json:"min_cents"`
	MaxCents float64    `json:"max_cents"`
	Band     *band.Band `json:"band,omitempty"`
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	th, err := s.backend.Thresholds(r.Context())
	if err != nil {
		s.internalError(w, err, "load thresholds failed")
		return
	}
	current, err := s.backend.CurrentBand(r.Context())
	if err != nil {
		s.internalError(w, err, "load band failed")
		return
	}
	s.writeJSON(w, http.StatusOK, thresholdsResponse{
		MinCents: th.Min.InexactFloat64(),
		MaxCents: th.Max.InexactFloat64(),
		Band:     &current,
	})
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	override, err := service.ParseOverride(r.URL.Query())
	if err == nil {
		var th band.Thresholds
		th, err = s.backend.ConfigureThresholds(r.Context(), override)
		if err == nil {
			s.writeJSON(w, http.StatusOK, thresholdsResponse{
				MinCents: th.Min.InexactFloat64(),
				MaxCents: th.Max.InexactFloat64(),
			})
			return
		}
	}

	var verr *service.ValidationError
	if errors.As(err, &verr) {
		writeText(w, http.StatusBadRequest, verr.Msg)
		return
	}
	s.internalError(w, err, "configure thresholds failed")
}

func (s *Server) internalError(w http.ResponseWriter, err error, msg string) {
	s.logger.Error().Err(err).Msg(msg)
	writeText(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn().Err(err).Msg("write response failed")
	}
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}

func writeOK(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

// accessLog routes gorilla's access log through zerolog; the io.Writer argument is unused.
func (s *Server) accessLog(_ io.Writer, p handlers.LogFormatterParams) {
	s.logger.Info().
		Str("method", p.Request.Method).
		Str("path", p.URL.Path).
		Int("status", p.StatusCode).
		Int("size", p.Size).
		Dur("elapsed", time.Since(p.TimeStamp)).
		Msg("request")
}

type recoveryLogger struct {
	logger zerolog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error().Msg(fmt.Sprint(v...))
}
