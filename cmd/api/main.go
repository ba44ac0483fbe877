package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/readstack/readstack-backend/api/routes"
	"github.com/readstack/readstack-backend/internal/books"
	"github.com/readstack/readstack-backend/internal/fines"
	"github.com/readstack/readstack-backend/internal/loans"
	"github.com/readstack/readstack-backend/internal/members"
	"github.com/readstack/readstack-backend/internal/notifications"
	"github.com/readstack/readstack-backend/internal/reservations"
	subscriptionsvc "github.com/readstack/readstack-backend/internal/subscriptions"
	"github.com/readstack/readstack-backend/pkg/config"
	"github.com/readstack/readstack-backend/pkg/db"
	"github.com/readstack/readstack-backend/pkg/logger"
	"github.com/readstack/readstack-backend/pkg/migrate"
	"github.com/readstack/readstack-backend/pkg/pubsub"
	"github.com/readstack/readstack-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	memberService, err := members.NewService(members.NewRepository(conn), cfg.JWT, cfg.Password)
	if err != nil {
		logg.Error(context.Background(), "failed to create members service", err)
		os.Exit(1)
	}

	bookRepo := books.NewRepository(conn)
	copyPool := books.NewCopyPool()
	bookService, err := books.NewService(bookRepo, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create books service", err)
		os.Exit(1)
	}

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

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			Members:       memberService,
			Books:         bookService,
			Loans:         loanService,
			Reservations:  reservationService,
			Fines:         fineService,
			Subscriptions: subscriptionService,
			Notifications: notificationService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
