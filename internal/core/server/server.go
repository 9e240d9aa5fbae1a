package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/config"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/health"
	middleware "github.com/mohammed-shakir/oaf-filter-engine/internal/core/middleware"
	"github.com/mohammed-shakir/oaf-filter-engine/internal/core/router"
)

// Routes mounts the filter API and the probes.
func Routes(logger *slog.Logger, h *router.Handlers, ready health.ReadinessReporter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(ready))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Post("/filter", router.Observe("/filter", h.Filter))
	r.Post("/filter/stop", router.Observe("/filter/stop", h.Stop))
	r.Route("/properties", func(r chi.Router) {
		r.Get("/minmax", router.Observe("/properties/minmax", h.MinMax))
		r.Get("/unique", router.Observe("/properties/unique", h.UniqueValues))
		r.Get("/types", router.Observe("/properties/types", h.AttrTypes))
	})
	return r
}

// Run serves handler on cfg.Addr until ctx is done.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, handler http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
