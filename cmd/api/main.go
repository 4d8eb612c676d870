package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/simplesla-notifier/internal/config"
	"github.com/kursadbilgin/simplesla-notifier/internal/domain"
	"github.com/kursadbilgin/simplesla-notifier/internal/handler"
	"github.com/kursadbilgin/simplesla-notifier/internal/infra/postgresql"
	"github.com/kursadbilgin/simplesla-notifier/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/simplesla-notifier/internal/infra/redis"
	"github.com/kursadbilgin/simplesla-notifier/internal/observability"
	"github.com/kursadbilgin/simplesla-notifier/internal/provider"
	"github.com/kursadbilgin/simplesla-notifier/internal/queue"
	"github.com/kursadbilgin/simplesla-notifier/internal/repository"
	"github.com/kursadbilgin/simplesla-notifier/internal/service"
	"github.com/kursadbilgin/simplesla-notifier/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("simplesla-notifier stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	settings, err := service.NewSettingsService(
		repository.NewGormSettingsRepo(db),
		domain.GlobalSettings{ServerName: cfg.SLAServerName},
		logger,
	)
	if err != nil {
		return err
	}
	if err := settings.Load(ctx); err != nil {
		return fmt.Errorf("loading global settings failed: %w", err)
	}

	metrics := observability.NewMetrics()

	notifier, err := service.NewNotifierService(provider.NewSimpleSLAProvider(), logger)
	if err != nil {
		return err
	}
	notifier.SetMetrics(metrics)

	checks := []handler.ReadinessCheck{handler.PostgresCheck(sqlDB)}

	if cfg.RedisURL != "" {
		rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer rdb.Close()

		guard, err := infraredis.NewDedupGuard(rdb, cfg.DedupTTL)
		if err != nil {
			return err
		}
		notifier.SetDedupGuard(guard)
		checks = append(checks, handler.RedisCheck(rdb))
	} else {
		logger.Info("REDIS_URL not set, duplicate completion guard disabled")
	}

	completions, err := service.NewCompletionService(notifier, settings, cfg.RootURL, logger)
	if err != nil {
		return err
	}
	completions.SetMetrics(metrics)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.RabbitMQURL != "" {
		broker, err := queue.NewRabbitMQ(ctx, cfg.RabbitMQURL, logger)
		if err != nil {
			return fmt.Errorf("rabbitmq initialization failed: %w", err)
		}

		consumer := queue.NewRabbitMQConsumer(broker, 1, logger)
		defer consumer.Close() //nolint:errcheck

		worker, err := service.NewCompletionWorker(consumer, completions, logger)
		if err != nil {
			return err
		}
		checks = append(checks, handler.BrokerCheck(broker.Connected))

		g.Go(func() error {
			return worker.Start(gctx)
		})
	}

	app := fiber.New(fiber.Config{
		AppName:               "simplesla-notifier",
		DisableStartupMessage: true,
		ErrorHandler:          transport.ErrorHandler(logger),
	})
	app.Use(transport.CorrelationID())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, checks...)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterBuildRoutes(app, completions); err != nil {
		return err
	}
	if err := handler.RegisterSettingsRoutes(app, settings); err != nil {
		return err
	}

	g.Go(func() error {
		logger.Info("simplesla-notifier api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	return g.Wait()
}
