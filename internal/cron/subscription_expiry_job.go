package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/readstack/readstack-backend/pkg/logger"
	"github.com/readstack/readstack-backend/pkg/metrics"
)

type subscriptionExpirer interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// SubscriptionExpiryJobParams configure the subscription expiry sweep.
type SubscriptionExpiryJobParams struct {
	Logger        *logger.Logger
	Subscriptions subscriptionExpirer
	Metrics       *metrics.CronJobMetrics
}

// NewSubscriptionExpiryJob deactivates subscriptions whose paid period
// has lapsed.
func NewSubscriptionExpiryJob(params SubscriptionExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscriptions service required")
	}
	return &sweepJob{
		name:    "subscription-expiry",
		logg:    params.Logger,
		metrics: params.Metrics,
		sweep:   params.Subscriptions.SweepExpired,
		now:     time.Now,
	}, nil
}
