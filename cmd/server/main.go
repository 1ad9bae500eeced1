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
	"github.com/ErlanBelekov/school-auth/internal/email"
	"github.com/ErlanBelekov/school-auth/internal/health"
	"github.com/ErlanBelekov/school-auth/internal/infrastructure/memory"
	"github.com/ErlanBelekov/school-auth/internal/infrastructure/postgres"
	redisstore "github.com/ErlanBelekov/school-auth/internal/infrastructure/redis"
	ctxlog "github.com/ErlanBelekov/school-auth/internal/log"
	"github.com/ErlanBelekov/school-auth/internal/metrics"
	"github.com/ErlanBelekov/school-auth/internal/otp"
	"github.com/ErlanBelekov/school-auth/internal/password"
	"github.com/ErlanBelekov/school-auth/internal/repository"
	"github.com/ErlanBelekov/school-auth/internal/token"
	httptransport "github.com/ErlanBelekov/school-auth/internal/transport/http"
	"github.com/ErlanBelekov/school-auth/internal/transport/http/handler"
	"github.com/ErlanBelekov/school-auth/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolConfig{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: cfg.DBMaxConnLifetime,
	})
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		stop()
		log.Fatalf("migrate: %v", err)
	}

	clock := clockwork.NewRealClock()
	deps := []health.Dependency{{Name: "postgres", Pinger: pool}}

	// Ephemeral verification state
	var (
		otpStore    repository.OTPStore
		resendStore repository.ResendCounterStore
	)
	switch cfg.OTPStore {
	case config.OTPStoreRedis:
		client, err := redisstore.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			stop()
			log.Fatalf("redis: %v", err)
		}
		defer client.Close()
		otpStore = redisstore.NewOTPStore(client, "")
		resendStore = redisstore.NewResendCounterStore(client, "")
		deps = append(deps, health.Dependency{
			Name:   "redis",
			Pinger: health.PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() }),
		})
	default:
		otpStore = memory.NewOTPStore(clock)
		resendStore = memory.NewResendCounterStore(clock)
	}

	// Persistence
	tenantRepo := postgres.NewTenantRepository(pool)
	accountRepo := postgres.NewAccountRepository(pool)

	// Mail
	mailer, err := email.NewMailer(email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger))
	if err != nil {
		stop()
		log.Fatalf("mailer: %v", err)
	}

	// Credentials
	hasher := password.NewHasher(cfg.BcryptCost)
	tokens := token.NewIssuer(token.Config{
		SessionSecret: []byte(cfg.JWTSecret),
		PurposeSecret: []byte(cfg.PasswordResetSecret),
		SessionTTL:    cfg.JWTTTL,
		Issuer:        cfg.JWTIssuer,
	}, clock)

	settings := usecase.Settings{
		LoginURL:         cfg.LoginURL,
		ResetPasswordURL: cfg.ResetPasswordURL,
		SupportEmail:     cfg.SupportEmail,
		MailTimeout:      cfg.MailTimeout,
	}

	// Flows
	verification := usecase.NewVerificationUsecase(accountRepo, tenantRepo, otp.NewLedger(otpStore, clock),
		resendStore, mailer, tokens, clock, settings, logger)
	provision := usecase.NewProvisionUsecase(tenantRepo, accountRepo, hasher, verification, logger)
	session := usecase.NewSessionUsecase(accountRepo, tenantRepo, hasher, tokens, logger)
	recovery := usecase.NewRecoveryUsecase(accountRepo, tenantRepo, hasher, mailer, tokens, clock, settings, logger)
	gate := usecase.NewAuthenticator(accountRepo, tenantRepo, tokens)

	if err := handler.RegisterValidators(); err != nil {
		stop()
		log.Fatalf("validators: %v", err)
	}
	authHandler := handler.NewAuthHandler(provision, verification, session, recovery, logger)

	metrics.Register()
	checker := health.NewChecker(logger, prometheus.DefaultRegisterer, deps...)

	srv := http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httptransport.NewRouter(logger, authHandler, gate),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port, "otp_store", cfg.OTPStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
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
