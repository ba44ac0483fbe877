package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/readstack/readstack-backend/pkg/logger"
	"github.com/readstack/readstack-backend/pkg/metrics"
)

type holdExpirer interface {
	ExpireHolds(ctx context.Context, now time.Time) (int, error)
}

// ReservationExpiryJobParams configure the hold expiry sweep.
type ReservationExpiryJobParams struct {
	Logger       *logger.Logger
	Reservations holdExpirer
	Metrics      *metrics.CronJobMetrics
}

// NewReservationExpiryJob expires lapsed holds and promotes the next
// waiter in each queue.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservations service required")
	}
	return &sweepJob{
		name:    "reservation-expiry",
		logg:    params.Logger,
		metrics: params.Metrics,
		sweep:   params.Reservations.ExpireHolds,
		now:     time.Now,
	}, nil
}
