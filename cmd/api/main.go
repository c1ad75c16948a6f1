package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/microloan/backend/internal/auth"
	"github.com/microloan/backend/internal/config"
	loandomain "github.com/microloan/backend/internal/domain/loan"
	"github.com/microloan/backend/internal/domain/payment"
	"github.com/microloan/backend/internal/events"
	"github.com/microloan/backend/internal/http/handlers"
	"github.com/microloan/backend/internal/http/middleware"
	"github.com/microloan/backend/internal/jobs"
	"github.com/microloan/backend/internal/observability"
	"github.com/microloan/backend/internal/ratelimit"
	"github.com/microloan/backend/internal/server"
	"github.com/microloan/backend/internal/ws"
)

func main() {
	cfg := config.Load()
	logger := observability.NewLogger(cfg.Env, cfg.LogLevel, "api")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stores, err := server.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer stores.Close()

	gateway, err := server.NewGateway(cfg, logger)
	if err != nil {
		logger.Error("failed to build payment gateway", "err", err)
		os.Exit(1)
	}

	jwtManager := auth.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSigningKey)
	authService := auth.NewService(stores.Users, jwtManager, cfg.JWTAccessTTL, cfg.JWTRefreshTTL, cfg.LoanDefaultLimit)
	loanService := loandomain.NewService(stores.Loans)
	paymentService := payment.NewService(stores.Transactions, stores.Loans, stores.Users, gateway, payment.Config{
		LimitIncrement: cfg.LoanLimitIncrement,
		LimitCap:       cfg.LoanLimitCap,
		GatewayTimeout: cfg.GatewayTimeout,
	}, logger)

	var limiter middleware.Limiter
	redisClient, err := ratelimit.NewClient(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid redis url", "err", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimitPrefix)
	} else {
		logger.Warn("REDIS_URL not set; rate limiting disabled")
	}

	hub := ws.NewHub()
	cookieCfg := auth.CookieConfig{Domain: cfg.CookieDomain, Secure: cfg.CookieSecure}
	r := server.NewRouter(cfg, logger, server.Dependencies{
		Pinger:         stores.Pinger,
		AuthHandler:    handlers.NewAuthHandler(authService, cookieCfg, cfg.JWTAccessTTL, cfg.JWTRefreshTTL),
		LoanHandler:    handlers.NewLoanHandler(loanService),
		PaymentHandler: handlers.NewPaymentHandler(paymentService),
		WSHandler:      ws.NewHandler(hub),
		JWTManager:     jwtManager,
		RateLimiter:    limiter,
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier := ws.NewNotifier(stores.Outbox, hub, logger, cfg.WSPollInterval)
	go func() {
		if err := notifier.Run(sigCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("ws notifier stopped", "err", err)
		}
	}()

	if stores.InProcess {
		startInProcessJobs(sigCtx, cfg, logger, stores, paymentService)
	}

	go func() {
		logger.Info("api server starting", "addr", cfg.Addr(), "store", cfg.StoreMode, "gateway", cfg.GatewayMode)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	<-sigCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	logger.Info("api server stopped")
}

// startInProcessJobs runs the outbox relay and pending sweep inside the API
// when the store is not shared with a separate worker process.
func startInProcessJobs(ctx context.Context, cfg config.Config, logger *slog.Logger, stores *server.Stores, settler jobs.PendingSettler) {
	publisher, err := events.NewPublisherFromConfig(cfg, logger)
	if err != nil {
		logger.Error("failed to build event publisher", "err", err)
		os.Exit(1)
	}
	worker := jobs.NewWorker(stores.Outbox, publisher, logger)
	go func() {
		worker.Run(ctx, cfg.WorkerPollInterval, cfg.WorkerBatchSize)
		_ = publisher.Close()
	}()

	if !cfg.SweepEnabled {
		return
	}
	scheduler, err := jobs.NewScheduler(jobs.NewPendingSweep(settler, logger, cfg.SweepMinAge, cfg.SweepBatch), cfg.SweepSchedule, logger)
	if err != nil {
		logger.Error("invalid SWEEP_SCHEDULE", "err", err)
		os.Exit(1)
	}
	scheduler.Start()
	go func() {
		<-ctx.Done()
		<-scheduler.Stop().Done()
	}()
}
