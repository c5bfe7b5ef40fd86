package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/pawpress/server/internal/adapter/repo"
	"github.com/pawpress/server/internal/infra"
	"github.com/pawpress/server/internal/pipeline"
	"github.com/pawpress/server/internal/progress"
	"github.com/pawpress/server/internal/providers"
	"github.com/pawpress/server/internal/queue"
	"github.com/pawpress/server/internal/quota"
	"github.com/pawpress/server/internal/scorer"
	"github.com/pawpress/server/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("service", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	jobs := repo.NewJobRepository(runner)
	steps := repo.NewStepRepository(runner)
	events := repo.NewEventRepository(runner)
	providersRepo := repo.NewProviderRepository(runner)
	quotas := repo.NewQuotaRepository(runner)

	var notifier progress.Notifier
	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("worker: redis unavailable, progress push disabled")
	} else if redisClient != nil {
		defer redisClient.Close()
		notifier = progress.NewRedisNotifier(redisClient)
	}

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: storage path unusable")
	}

	publisher := progress.NewPublisher(events, jobs, steps, notifier, logger)
	ledger := quota.NewLedger(quotas, logger)
	selector := scorer.NewSelector(providersRepo, providersRepo, logger)
	invoker := providers.NewSyntheticInvoker(fileStore, logger)

	executor := queue.NewExecutor(selector, invoker, ledger, fileStore, logger)
	stepRunner := pipeline.NewRunner(jobs, steps, selector, invoker, ledger, publisher, pipeline.Config{
		MinCallTimeout: cfg.StepCallMinTimeout,
		MaxCallTimeout: cfg.StepCallMaxTimeout,
	}, logger)

	scheduler, err := quota.NewScheduler(ledger, cfg.QuotaResetSpec, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: bad quota reset spec")
	}
	scheduler.Start()
	defer scheduler.Stop()

	worker := queue.NewWorker(jobs, executor, stepRunner, publisher, queue.WorkerConfig{
		WorkerID:     cfg.WorkerID,
		PollInterval: cfg.WorkerPollInterval,
		LeaseTTL:     cfg.LeaseTTL,
		Backoff:      queue.BackoffPolicy{Base: cfg.RetryBackoffBase, Max: cfg.RetryBackoffMax},
	}, logger)

	logger.Info().Int("workers", cfg.WorkerCount).Msg("worker: starting pool")
	if err := worker.RunPool(ctx, cfg.WorkerCount); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
