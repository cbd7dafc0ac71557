package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/queue-service/internal/api/http"
	"github.com/spec-kit/queue-service/internal/api/http/handlers"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/cache"
	"github.com/spec-kit/queue-service/internal/config"
	"github.com/spec-kit/queue-service/internal/events"
	"github.com/spec-kit/queue-service/internal/feed"
	"github.com/spec-kit/queue-service/internal/notify"
	"github.com/spec-kit/queue-service/internal/observability"
	"github.com/spec-kit/queue-service/internal/persistence"
	"github.com/spec-kit/queue-service/internal/repository"
	"github.com/spec-kit/queue-service/internal/service"
	"github.com/spec-kit/queue-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	metrics := observability.NewMetrics()

	pool := pg.PoolHandle()
	tokenRepo := repository.NewTokenRepository(pool)
	counterRepo := repository.NewCounterRepository(pool)
	profileRepo := repository.NewProfileRepository(pool)

	profileCache := cache.NewProfileCache(profileRepo, cfg.Queue.ProfileCacheTTL)
	sender := notify.NewWebhookSender(cfg.Notification, logger)
	notifier := worker.NewNotificationWorker(sender, profileCache, metrics, logger, cfg.Queue.NotificationQueueSize)
	notifier.Start(cfg.Queue.NotificationWorkers)
	defer notifier.Stop()

	dispatcher := events.NewInMemoryDispatcher()
	changeFeed := feed.New(redis.ClientHandle(), cfg.Queue.FeedChannel, logger)

	queueService := service.NewQueueService(service.QueueDependencies{
		TokenRepo:    tokenRepo,
		CounterRepo:  counterRepo,
		Dispatcher:   dispatcher,
		Feed:         changeFeed,
		Notifier:     notifier,
		Metrics:      metrics,
		Logger:       logger,
		SlotCapacity: cfg.Queue.SlotCapacity,
	})
	counterService := service.NewCounterService(counterRepo)

	notificationService := service.NewNotificationService(tokenRepo, notifier, logger)
	notificationService.RegisterHandlers(dispatcher)

	authMiddleware := auth.NewMiddleware(cfg.Auth)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(pg, redis),
		Tokens:         handlers.NewTokensHandler(queueService),
		Queue:          handlers.NewQueueHandler(queueService),
		Counters:       handlers.NewCountersHandler(counterService),
		AuthMiddleware: authMiddleware,
		Metrics:        metrics,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
