package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/readstack/readstack-backend/internal/consumers/payments"
	"github.com/readstack/readstack-backend/pkg/config"
	"github.com/readstack/readstack-backend/pkg/db"
	"github.com/readstack/readstack-backend/pkg/logger"
	"github.com/readstack/readstack-backend/pkg/pubsub"
	"github.com/readstack/readstack-backend/pkg/redis"
)

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               *db.Client
	Redis            *redis.Client
	PubSub           *pubsub.Client
	PaymentsConsumer *payments.Consumer
}

// Service supervises the payment-event consumer: it checks dependency health
// on boot, runs the consumer, and shuts down when the context is canceled or
// the consumer dies.
type Service struct {
	cfg      *config.Config
	logg     *logger.Logger
	db       *db.Client
	redis    *redis.Client
	pubsub   *pubsub.Client
	payments *payments.Consumer
}

func NewService(params ServiceParams) (*Service, error) {
	for name, missing := range map[string]bool{
		"config":            params.Config == nil,
		"logger":            params.Logger == nil,
		"database client":   params.DB == nil,
		"redis client":      params.Redis == nil,
		"pubsub client":     params.PubSub == nil,
		"payments consumer": params.PaymentsConsumer == nil,
	} {
		if missing {
			return nil, fmt.Errorf("%s is required", name)
		}
	}

	return &Service{
		cfg:      params.Config,
		logg:     params.Logger,
		db:       params.DB,
		redis:    params.Redis,
		pubsub:   params.PubSub,
		payments: params.PaymentsConsumer,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	checks := []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{"redis", s.redis.Ping},
		{"pubsub", s.pubsub.Ping},
	}
	for _, check := range checks {
		if err := check.ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", check.name), err)
			return fmt.Errorf("%s ping failed: %w", check.name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.payments.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		s.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logg.Error(ctx, "consumer stopped unexpectedly", err)
		}
		return err
	}
}
