package cron

import (
	"context"
	"time"

	"github.com/readstack/readstack-backend/pkg/logger"
	"github.com/readstack/readstack-backend/pkg/metrics"
)

// sweepFunc is the shared shape of the lifecycle sweeps: it processes
// every due entity as of now and reports how many it touched.
type sweepFunc func(ctx context.Context, now time.Time) (int, error)

// sweepJob adapts a lifecycle sweep to the Job interface.
type sweepJob struct {
	name    string
	logg    *logger.Logger
	metrics *metrics.CronJobMetrics
	sweep   sweepFunc
	now     func() time.Time
}

func (j *sweepJob) Name() string { return j.name }

func (j *sweepJob) Run(ctx context.Context) error {
	count, err := j.sweep(ctx, j.now().UTC())
	if err != nil {
		return err
	}
	if j.metrics != nil {
		j.metrics.AddProcessed(j.name, count)
	}
	logCtx := j.logg.WithField(ctx, "count", count)
	j.logg.Info(logCtx, "sweep complete")
	return nil
}
