package cron

import (
	"context"
	"fmt"
	"time"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Schedule describes when a job is due. Exactly one field is set:
// Every for interval jobs, At ("HH:MM", UTC) for daily jobs.
type Schedule struct {
	Every time.Duration
	At    string
}

func (s Schedule) validate() error {
	if s.Every > 0 && s.At != "" {
		return fmt.Errorf("schedule must set either Every or At, not both")
	}
	if s.Every <= 0 && s.At == "" {
		return fmt.Errorf("schedule requires Every or At")
	}
	if s.At != "" {
		if _, err := time.Parse("15:04", s.At); err != nil {
			return fmt.Errorf("invalid At time %q: %w", s.At, err)
		}
	}
	return nil
}

// due reports whether a job with this schedule should run at now given
// when it last ran. Daily jobs catch up if the worker was down at the
// scheduled minute.
func (s Schedule) due(now, lastRun time.Time) bool {
	now = now.UTC()
	if s.Every > 0 {
		return lastRun.IsZero() || now.Sub(lastRun) >= s.Every
	}
	at, err := time.Parse("15:04", s.At)
	if err != nil {
		return false
	}
	todayAt := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, time.UTC)
	if now.Before(todayAt) {
		return false
	}
	return lastRun.Before(todayAt)
}

// Entry pairs a job with its schedule.
type Entry struct {
	Job      Job
	Schedule Schedule
}

// Registry tracks registered cron jobs and their schedules.
type Registry struct {
	entries []Entry
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a job with its schedule.
func (r *Registry) Register(job Job, schedule Schedule) error {
	if job == nil {
		return fmt.Errorf("job required")
	}
	if err := schedule.validate(); err != nil {
		return fmt.Errorf("job %s: %w", job.Name(), err)
	}
	r.entries = append(r.entries, Entry{Job: job, Schedule: schedule})
	return nil
}

// Entries returns the registered jobs in the order they were added.
func (r *Registry) Entries() []Entry {
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	return entries
}
