package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpAdapter "github.com/lorrc/service-desk-realtime/internal/adapters/primary/http"
	mw "github.com/lorrc/service-desk-realtime/internal/adapters/primary/http/middleware"
	"github.com/urfave/cli/v2"
)

// runServe connects and serves the synchronized view until interrupted.
func runServe(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if !a.hasLoad {
		return errors.New("serve requires API_BASE_URL for the ticket list")
	}
	cfg := a.cfg

	// Rate limiter
	var limiter *mw.RateLimiter
	if cfg.HTTP.RateLimit {
		limiter = mw.NewRateLimiter(ctx, mw.RateLimiterConfig{
			RequestsPerSecond: cfg.HTTP.RateLimitRPS,
			BurstSize:         cfg.HTTP.RateLimitBurst,
			CleanupInterval:   time.Minute,
			TTL:               3 * time.Minute,
		})
	}

	// Handlers (Primary Adapters)
	errorHandler := httpAdapter.NewErrorHandler(a.logger)
	viewHandler := httpAdapter.NewViewHandler(a.service, a.loader, errorHandler, a.logger)

	var db httpAdapter.HealthChecker
	if a.pool != nil {
		db = a.pool
	}
	healthHandler := httpAdapter.NewHealthHandler(a.service, db, version)

	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RateLimiter:    limiter,
	}, viewHandler, healthHandler, a.logger)

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	if err := a.start(ctx); err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server forced to shutdown", "error", err)
		return err
	}

	a.logger.Info("server stopped gracefully")
	return nil
}
