package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/pawpress/server/internal/adapter/repo"
	"github.com/pawpress/server/internal/http/handlers"
	"github.com/pawpress/server/internal/http/httpapi"
	"github.com/pawpress/server/internal/infra"
	"github.com/pawpress/server/internal/infra/geoip"
	"github.com/pawpress/server/internal/middleware"
	"github.com/pawpress/server/internal/pipeline"
	"github.com/pawpress/server/internal/progress"
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
	logger := infra.NewLogger(cfg.AppEnv).With().Str("service", "api").Logger()

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: db connection failed")
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
		logger.Warn().Err(err).Msg("api: redis unavailable, progress push disabled")
	} else if redisClient != nil {
		defer redisClient.Close()
		notifier = progress.NewRedisNotifier(redisClient)
	}

	fileStore, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: storage path unusable")
	}

	publisher := progress.NewPublisher(events, jobs, steps, notifier, logger)
	ledger := quota.NewLedger(quotas, logger)
	service := queue.NewService(jobs, steps, ledger, pipeline.NewPlanner(), publisher, logger)
	selector := scorer.NewSelector(providersRepo, providersRepo, logger)

	app := &handlers.App{
		Queue:     service,
		Monitor:   queue.NewMonitor(jobs),
		Progress:  publisher,
		Ledger:    ledger,
		Selector:  selector,
		Jobs:      jobs,
		Providers: providersRepo,
		Store:     fileStore,
		DB:        pool,
		Config:    cfg,
		Log:       logger,
	}

	var lookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("api: geoip database unavailable")
	} else if resolver != nil {
		defer resolver.Close()
		lookup = resolver.CountryCode
	}

	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, lookup))

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("api: listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: shutdown failed")
	}
	logger.Info().Msg("api: stopped")
}
