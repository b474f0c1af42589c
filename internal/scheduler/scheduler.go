// Package scheduler fires one pipeline run per calendar day. The run for a
// day starts once that day is over: at midnight UTC the previous date runs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"go-etl-pipeline/internal/model"
)

// DailySpec is the cron spec of the trigger, evaluated in UTC.
const DailySpec = "@daily"

// ErrBeforeStart is returned for logical dates earlier than the start date.
var ErrBeforeStart = errors.New("scheduler: logical date precedes start date")

// Runner executes one run for a logical date. *pipeline.Controller implements it.
type Runner interface {
	Run(ctx context.Context, date model.LogicalDate) (*model.RunResult, error)
}

// TriggerEvent is one firing of the schedule.
type TriggerEvent struct {
	ScheduledAt time.Time
	FiredAt     time.Time
	LogicalDate model.LogicalDate
}

// Scheduler triggers runner once per day. It never catches up on days it
// missed while not running.
type Scheduler struct {
	runner Runner
	start  model.LogicalDate
	now    func() time.Time
	cron   *cron.Cron
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(runner Runner, start model.LogicalDate, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner: runner,
		start:  start,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	return s
}

// LogicalDateFor is the date a trigger at now covers: the UTC day before.
func LogicalDateFor(now time.Time) model.LogicalDate {
	return model.NewLogicalDate(now).AddDays(-1)
}

// Trigger runs the pipeline for the day before now.
func (s *Scheduler) Trigger(ctx context.Context) (*model.RunResult, error) {
	fired := s.now().UTC()
	ev := TriggerEvent{
		ScheduledAt: fired.Truncate(24 * time.Hour),
		FiredAt:     fired,
		LogicalDate: LogicalDateFor(fired),
	}
	if !s.start.IsZero() && ev.LogicalDate.Before(s.start) {
		return nil, fmt.Errorf("%w: %s < %s", ErrBeforeStart, ev.LogicalDate, s.start)
	}

	slog.InfoContext(ctx, "schedule fired", "logical_date", ev.LogicalDate.String(), "fired_at", ev.FiredAt)
	return s.runner.Run(ctx, ev.LogicalDate)
}

// Start runs the daily schedule until ctx ends, then waits for an in-flight
// run to finish.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(DailySpec, func() {
		res, err := s.Trigger(ctx)
		switch {
		case errors.Is(err, ErrBeforeStart):
			slog.InfoContext(ctx, "schedule skipped", "reason", err.Error())
		case err != nil:
			slog.ErrorContext(ctx, "scheduled run failed", "error", err)
		default:
			slog.InfoContext(ctx, "scheduled run finished", "run_id", res.RunID, "status", res.Status)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduler: add job: %w", err)
	}

	s.cron.Start()
	slog.InfoContext(ctx, "scheduler started", "spec", DailySpec, "start_date", s.start.String())

	<-ctx.Done()
	<-s.cron.Stop().Done()
	slog.InfoContext(ctx, "scheduler stopped")
	return nil
}

// Next reports when the schedule fires after t.
func Next(t time.Time) time.Time {
	sched, err := cron.ParseStandard(DailySpec)
	if err != nil {
		panic(err)
	}
	return sched.Next(t.UTC())
}
