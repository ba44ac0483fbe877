package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/readstack/readstack-backend/internal/books"
	"github.com/readstack/readstack-backend/internal/cron"
	"github.com/readstack/readstack-backend/internal/fines"
	"github.com/readstack/readstack-backend/internal/loans"
	"github.com/readstack/readstack-backend/internal/notifications"
	"github.com/readstack/readstack-backend/internal/reservations"
	subscriptionsvc "github.com/readstack/readstack-backend/internal/subscriptions"
	"github.com/readstack/readstack-backend/pkg/config"
	"github.com/readstack/readstack-backend/pkg/db"
	"github.com/readstack/readstack-backend/pkg/logger"
	"github.com/readstack/readstack-backend/pkg/metrics"
	"github.com/readstack/readstack-backend/pkg/migrate"
	"github.com/readstack/readstack-backend/pkg/pubsub"
	"github.com/readstack/readstack-backend/pkg/redis"
)

const lockKeyFormat = "rs:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	conn := dbClient.DB()

	notificationPublisher, err := notifications.NewPubSubPublisher(pubsubClient.NotificationPublisher())
	if err != nil {
		logg.Error(context.Background(), "failed to create notification publisher", err)
		os.Exit(1)
	}
	notificationService, err := notifications.NewService(notifications.NewRepository(conn), notificationPublisher, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	bookRepo := books.NewRepository(conn)
	copyPool := books.NewCopyPool()

	subscriptionService, err := subscriptionsvc.NewService(
		subscriptionsvc.NewRepository(conn),
		dbClient,
		notificationService,
		logg,
		cfg.Policy,
		cfg.FeatureFlags.FreeTier,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create subscriptions service", err)
		os.Exit(1)
	}

	fineService, err := fines.NewService(fines.NewRepository(conn), dbClient, notificationService, cfg.Policy)
	if err != nil {
		logg.Error(context.Background(), "failed to create fines service", err)
		os.Exit(1)
	}

	reservationService, err := reservations.NewService(
		reservations.NewRepository(conn),
		bookRepo,
		copyPool,
		dbClient,
		notificationService,
		logg,
		cfg.Policy,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create reservations service", err)
		os.Exit(1)
	}

	loanService, err := loans.NewService(
		loans.NewRepository(conn),
		bookRepo,
		copyPool,
		dbClient,
		reservationService,
		fineService,
		subscriptionService,
		notificationService,
		logg,
		cfg.Policy,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create loans service", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()
	if err := registerJobs(registry, logg, metricsCollector, loanService, reservationService, subscriptionService); err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func registerJobs(
	registry *cron.Registry,
	logg *logger.Logger,
	metricsCollector *metrics.CronJobMetrics,
	loanService loans.Service,
	reservationService reservations.Service,
	subscriptionService subscriptionsvc.Service,
) error {
	loanParams := cron.LoanJobParams{Logger: logg, Loans: loanService, Metrics: metricsCollector}

	overdueJob, err := cron.NewOverdueLoansJob(loanParams)
	if err != nil {
		return err
	}
	noticesJob, err := cron.NewOverdueNoticesJob(loanParams)
	if err != nil {
		return err
	}
	remindersJob, err := cron.NewDueRemindersJob(loanParams)
	if err != nil {
		return err
	}
	reservationJob, err := cron.NewReservationExpiryJob(cron.ReservationExpiryJobParams{
		Logger:       logg,
		Reservations: reservationService,
		Metrics:      metricsCollector,
	})
	if err != nil {
		return err
	}
	subscriptionJob, err := cron.NewSubscriptionExpiryJob(cron.SubscriptionExpiryJobParams{
		Logger:        logg,
		Subscriptions: subscriptionService,
		Metrics:       metricsCollector,
	})
	if err != nil {
		return err
	}

	if err := registry.Register(overdueJob, cron.Schedule{At: "00:00"}); err != nil {
		return err
	}
	if err := registry.Register(subscriptionJob, cron.Schedule{At: "02:00"}); err != nil {
		return err
	}
	if err := registry.Register(noticesJob, cron.Schedule{At: "09:00"}); err != nil {
		return err
	}
	if err := registry.Register(remindersJob, cron.Schedule{At: "10:00"}); err != nil {
		return err
	}
	return registry.Register(reservationJob, cron.Schedule{Every: 6 * time.Hour})
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
