package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/school-auth/config"
	"github.com/ErlanBelekov/school-auth/internal/health"
	"github.com/ErlanBelekov/school-auth/internal/infrastructure/postgres"
	ctxlog "github.com/ErlanBelekov/school-auth/internal/log"
	"github.com/ErlanBelekov/school-auth/internal/metrics"
	"github.com/ErlanBelekov/school-auth/internal/reaper"
	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	// One delete at a time; the reaper never needs the API's pool size.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxConns:        2,
		MinConns:        1,
		MaxConnLifetime: cfg.DBMaxConnLifetime,
	})
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	metrics.Register()
	checker := health.NewChecker(logger, prometheus.DefaultRegisterer, health.Dependency{Name: "postgres", Pinger: pool})

	r, err := reaper.New(postgres.NewTenantRepository(pool), logger, clockwork.NewRealClock(),
		cfg.ReaperSchedule, cfg.PendingTenantTTL)
	if err != nil {
		stop()
		log.Fatalf("reaper: %v", err)
	}
	go r.Start(ctx)

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("reaper shut down")
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
