package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/microloan/backend/internal/config"
	"github.com/microloan/backend/internal/domain/payment"
	"github.com/microloan/backend/internal/events"
	"github.com/microloan/backend/internal/jobs"
	"github.com/microloan/backend/internal/observability"
	"github.com/microloan/backend/internal/server"
)

func main() {
	cfg := config.Load()
	logger := observability.NewLogger(cfg.Env, cfg.LogLevel, "worker")

	if cfg.StoreMode == "memory" {
		logger.Error("worker needs a shared store; STORE_MODE=memory runs jobs inside the api process")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stores, err := server.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer stores.Close()

	publisher, err := events.NewPublisherFromConfig(cfg, logger)
	if err != nil {
		logger.Error("failed to build event publisher", "err", err)
		os.Exit(1)
	}
	defer publisher.Close()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SweepEnabled {
		gateway, err := server.NewGateway(cfg, logger)
		if err != nil {
			logger.Error("failed to build payment gateway", "err", err)
			os.Exit(1)
		}
		paymentService := payment.NewService(stores.Transactions, stores.Loans, stores.Users, gateway, payment.Config{
			LimitIncrement: cfg.LoanLimitIncrement,
			LimitCap:       cfg.LoanLimitCap,
			GatewayTimeout: cfg.GatewayTimeout,
		}, logger)
		scheduler, err := jobs.NewScheduler(jobs.NewPendingSweep(paymentService, logger, cfg.SweepMinAge, cfg.SweepBatch), cfg.SweepSchedule, logger)
		if err != nil {
			logger.Error("invalid SWEEP_SCHEDULE", "err", err)
			os.Exit(1)
		}
		scheduler.Start()
		defer func() { <-scheduler.Stop().Done() }()
		logger.Info("pending sweep scheduled", "schedule", cfg.SweepSchedule, "min_age", cfg.SweepMinAge.String())
	}

	jobs.NewWorker(stores.Outbox, publisher, logger).Run(sigCtx, cfg.WorkerPollInterval, cfg.WorkerBatchSize)
}
