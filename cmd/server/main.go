package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"credentia/internal/notary/address"
	notaryhandler "credentia/internal/notary/handler"
	notarymetrics "credentia/internal/notary/metrics"
	"credentia/internal/notary/service"
	"credentia/internal/platform/config"
	"credentia/internal/platform/httpserver"
	"credentia/internal/platform/logger"
	"credentia/internal/platform/metrics"
	"credentia/internal/platform/middleware"
	"credentia/pkg/platform/httputil"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "credentia: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openLedger(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Warn("close ledger", "error", err)
		}
	}()

	deriver := address.New(cfg.ProgramID)
	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(notarymetrics.New(prometheus.DefaultRegisterer)),
		service.WithDeriver(deriver),
	}
	if cfg.Registry.Mode == config.RegistrationAuthority {
		opts = append(opts, service.WithRegistrationAuthority(cfg.Registry.Authority))
	}
	notary := service.New(newBoundedLedger(backend, cfg.Ledger), opts...)

	router := newRouter(log, backend, notaryhandler.New(notary, log, cfg.Auth.MaxSkew), prometheus.DefaultRegisterer)
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting credentia",
		"addr", cfg.Addr,
		"ledger", cfg.Ledger.Backend,
		"program_id", deriver.ProgramID().String(),
		"registration", string(notary.Registration()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

type healthChecker interface {
	Health(ctx context.Context) error
}

func newRouter(log *slog.Logger, ledger healthChecker, notary *notaryhandler.Handler, reg prometheus.Registerer) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(log))
	r.Use(middleware.Metrics(metrics.New(reg)))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ledger.Health(ctx); err != nil {
			log.WarnContext(ctx, "health check failed", "error", err)
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	notary.Register(r)
	return r
}
