package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/readstack/readstack-backend/pkg/logger"
)

type fakeSweeps struct {
	overdue   int
	notices   int
	reminders int
	expired   int
	swept     int
	err       error
	lastNow   time.Time
}

func (f *fakeSweeps) MarkOverdue(_ context.Context, now time.Time) (int, error) {
	f.lastNow = now
	return f.overdue, f.err
}

func (f *fakeSweeps) SendOverdueNotices(_ context.Context, now time.Time) (int, error) {
	f.lastNow = now
	return f.notices, f.err
}

func (f *fakeSweeps) SendDueReminders(_ context.Context, now time.Time) (int, error) {
	f.lastNow = now
	return f.reminders, f.err
}

func (f *fakeSweeps) ExpireHolds(_ context.Context, now time.Time) (int, error) {
	f.lastNow = now
	return f.expired, f.err
}

func (f *fakeSweeps) SweepExpired(_ context.Context, now time.Time) (int, error) {
	f.lastNow = now
	return f.swept, f.err
}

func TestSweepJobConstructorsValidateParams(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})

	if _, err := NewOverdueLoansJob(LoanJobParams{Logger: logg}); err == nil {
		t.Fatal("expected missing loans service to be rejected")
	}
	if _, err := NewReservationExpiryJob(ReservationExpiryJobParams{Logger: logg}); err == nil {
		t.Fatal("expected missing reservations service to be rejected")
	}
	if _, err := NewSubscriptionExpiryJob(SubscriptionExpiryJobParams{Subscriptions: &fakeSweeps{}}); err == nil {
		t.Fatal("expected missing logger to be rejected")
	}
}

func TestSweepJobNames(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	sweeps := &fakeSweeps{}

	cases := map[string]func() (Job, error){
		"overdue-loans":      func() (Job, error) { return NewOverdueLoansJob(LoanJobParams{Logger: logg, Loans: sweeps}) },
		"overdue-notices":    func() (Job, error) { return NewOverdueNoticesJob(LoanJobParams{Logger: logg, Loans: sweeps}) },
		"due-date-reminders": func() (Job, error) { return NewDueRemindersJob(LoanJobParams{Logger: logg, Loans: sweeps}) },
		"reservation-expiry": func() (Job, error) {
			return NewReservationExpiryJob(ReservationExpiryJobParams{Logger: logg, Reservations: sweeps})
		},
		"subscription-expiry": func() (Job, error) {
			return NewSubscriptionExpiryJob(SubscriptionExpiryJobParams{Logger: logg, Subscriptions: sweeps})
		},
	}
	for name, build := range cases {
		job, err := build()
		if err != nil {
			t.Fatalf("build %s: %v", name, err)
		}
		if job.Name() != name {
			t.Fatalf("expected job name %q, got %q", name, job.Name())
		}
	}
}

func TestSweepJobRunsSweepWithCurrentTime(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	sweeps := &fakeSweeps{overdue: 3}
	job, err := NewOverdueLoansJob(LoanJobParams{Logger: logg, Loans: sweeps})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	frozen := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	job.(*sweepJob).now = func() time.Time { return frozen }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !sweeps.lastNow.Equal(frozen) {
		t.Fatalf("expected sweep invoked with %v, got %v", frozen, sweeps.lastNow)
	}
}

func TestSweepJobPropagatesSweepError(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test"})
	sweeps := &fakeSweeps{err: errors.New("db down")}
	job, err := NewSubscriptionExpiryJob(SubscriptionExpiryJobParams{Logger: logg, Subscriptions: sweeps})
	if err != nil {
		t.Fatalf("build job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected sweep error to propagate")
	}
}
