package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/readstack/readstack-backend/pkg/logger"
	"github.com/readstack/readstack-backend/pkg/metrics"
)

type loanSweeper interface {
	MarkOverdue(ctx context.Context, now time.Time) (int, error)
	SendOverdueNotices(ctx context.Context, now time.Time) (int, error)
	SendDueReminders(ctx context.Context, now time.Time) (int, error)
}

// LoanJobParams configure the scheduled loan sweeps.
type LoanJobParams struct {
	Logger  *logger.Logger
	Loans   loanSweeper
	Metrics *metrics.CronJobMetrics
}

func (p LoanJobParams) validate() error {
	if p.Logger == nil {
		return fmt.Errorf("logger required")
	}
	if p.Loans == nil {
		return fmt.Errorf("loans service required")
	}
	return nil
}

// NewOverdueLoansJob flips past-due loans to overdue and accrues fines.
func NewOverdueLoansJob(params LoanJobParams) (Job, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &sweepJob{
		name:    "overdue-loans",
		logg:    params.Logger,
		metrics: params.Metrics,
		sweep:   params.Loans.MarkOverdue,
		now:     time.Now,
	}, nil
}

// NewOverdueNoticesJob sends one aggregated notice per member with
// unnoticed overdue loans.
func NewOverdueNoticesJob(params LoanJobParams) (Job, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &sweepJob{
		name:    "overdue-notices",
		logg:    params.Logger,
		metrics: params.Metrics,
		sweep:   params.Loans.SendOverdueNotices,
		now:     time.Now,
	}, nil
}

// NewDueRemindersJob reminds members about loans due soon.
func NewDueRemindersJob(params LoanJobParams) (Job, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return &sweepJob{
		name:    "due-date-reminders",
		logg:    params.Logger,
		metrics: params.Metrics,
		sweep:   params.Loans.SendDueReminders,
		now:     time.Now,
	}, nil
}
