// Package pipeline runs the daily users ETL: extract from the source API,
// load into the warehouse, aggregate back out to the object store. Stages
// run strictly in order, each retried under its own policy, and a stage
// that fails for good stops the run and raises exactly one alert.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"go-etl-pipeline/internal/lock"
	"go-etl-pipeline/internal/model"
	"go-etl-pipeline/internal/notify"
	"go-etl-pipeline/pkg/utils"
)

// notifyTimeout bounds alert delivery once the run context is gone.
const notifyTimeout = 30 * time.Second

// Controller executes task graphs for logical dates.
type Controller struct {
	name     string
	graph    *TaskGraph
	notifier notify.Notifier
	history  History
	locker   lock.Locker
	retrier  *Retrier
	spool    *utils.OutputManager
	newID    func() string
}

// Option configures a Controller.
type Option func(*Controller)

// WithHistory records runs and stage transitions.
func WithHistory(h History) Option {
	return func(c *Controller) { c.history = h }
}

// WithLocker serializes runs across processes.
func WithLocker(l lock.Locker) Option {
	return func(c *Controller) { c.locker = l }
}

// WithSleeper replaces the wait between retry attempts.
func WithSleeper(s Sleeper) Option {
	return func(c *Controller) { c.retrier = NewRetrier(s) }
}

// WithSpool removes each run's staged files once the run ends.
func WithSpool(om *utils.OutputManager) Option {
	return func(c *Controller) { c.spool = om }
}

// WithRunIDs replaces the run id generator.
func WithRunIDs(f func() string) Option {
	return func(c *Controller) { c.newID = f }
}

// NewController builds a controller for the named pipeline. The name is the
// dag name shown in alerts.
func NewController(name string, graph *TaskGraph, notifier notify.Notifier, opts ...Option) *Controller {
	c := &Controller{
		name:     name,
		graph:    graph,
		notifier: notifier,
		locker:   lock.NewLocal(),
		retrier:  NewRetrier(nil),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = notify.Log{}
	}
	return c
}

// Graph returns the task graph the controller executes.
func (c *Controller) Graph() *TaskGraph { return c.graph }

// NewRunID returns a fresh run id.
func (c *Controller) NewRunID() string { return c.newID() }

// Run executes every stage for date under a new run id.
func (c *Controller) Run(ctx context.Context, date model.LogicalDate) (*model.RunResult, error) {
	return c.RunWithID(ctx, c.newID(), date)
}

// RunWithID executes every stage for date. The returned error is the
// terminal stage error, if any; the result describes the run either way.
func (c *Controller) RunWithID(ctx context.Context, runID string, date model.LogicalDate) (*model.RunResult, error) {
	log := slog.With("run_id", runID, "logical_date", date.String(), "pipeline", c.name)
	if date.IsZero() {
		return nil, errors.New("pipeline: logical date is required")
	}

	release, err := c.locker.Acquire(ctx)
	if err != nil {
		log.WarnContext(ctx, "run rejected", "error", err)
		return c.reject(ctx, runID, date, err), err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.WarnContext(ctx, "failed to release pipeline lock", "error", err)
		}
	}()

	if c.spool != nil {
		defer func() {
			if err := c.spool.Cleanup(runID); err != nil {
				log.WarnContext(ctx, "failed to clean run spool", "error", err)
			}
		}()
	}

	log.InfoContext(ctx, "run started")
	tracker := NewRunTracker(ctx, runID, date, c.graph, c.history)
	rc := model.NewRunContext(runID, date)

	for _, task := range c.graph.Tasks() {
		if err := ctx.Err(); err != nil {
			tracker.SkipPending(context.WithoutCancel(ctx))
			log.WarnContext(ctx, "run cancelled", "next_stage", task.Stage, "error", err)
			return tracker.Finish(context.WithoutCancel(ctx), model.RunCancelled, "", rc.Outputs(), err), err
		}

		rc = rc.WithStage(task.Stage)
		log.DebugContext(ctx, "stage starting", "stage", task.Stage, "task", task.Name, "upstream", c.graph.Upstream(task.Stage))
		out, err := c.runTask(ctx, tracker, task, rc)
		if err == nil {
			rc, err = rc.WithOutputs(out)
		}
		if err != nil {
			tracker.SkipPending(context.WithoutCancel(ctx))
			c.alert(ctx, runID, date, task)
			log.ErrorContext(ctx, "run failed", "stage", task.Stage, "task", task.Name, "error", err)
			return tracker.Finish(context.WithoutCancel(ctx), model.RunFailed, task.Stage, rc.Outputs(), err), err
		}
	}

	log.InfoContext(ctx, "run succeeded")
	return tracker.Finish(ctx, model.RunSucceeded, "", rc.Outputs(), nil), nil
}

// reject records a run that never started because another one holds the
// pipeline lock, so its id still resolves in the history.
func (c *Controller) reject(ctx context.Context, runID string, date model.LogicalDate, cause error) *model.RunResult {
	runsTotal.WithLabelValues(string(model.RunRejected)).Inc()
	if c.history != nil {
		hctx := context.WithoutCancel(ctx)
		err := c.history.SaveRun(hctx, runID, date)
		if err == nil {
			err = c.history.UpdateRunStatus(hctx, runID, model.RunRejected, "")
		}
		if err == nil {
			err = c.history.SaveRunError(hctx, runID, "", cause)
		}
		if err != nil {
			slog.WarnContext(ctx, "failed to record rejected run", "run_id", runID, "error", err)
		}
	}
	now := time.Now().UTC()
	return &model.RunResult{
		RunID:       runID,
		LogicalDate: date.String(),
		Status:      model.RunRejected,
		StartedAt:   now,
		EndedAt:     now,
		Err:         cause,
	}
}

// runTask drives one stage to a terminal state.
func (c *Controller) runTask(ctx context.Context, tracker *RunTracker, task Task, rc model.RunContext) (map[string]string, error) {
	in, err := task.input(rc)
	if err != nil {
		// Never started: record it as a failure of its first attempt.
		_ = tracker.Running(ctx, task.Stage, 1)
		_ = tracker.Failed(ctx, task.Stage, 1, err)
		return nil, err
	}

	var out map[string]string
	attempts, err := c.retrier.Do(ctx, task.Policy,
		func(ctx context.Context, attempt int) error {
			if err := tracker.Running(ctx, task.Stage, attempt); err != nil {
				return err
			}
			res, err := task.Run(ctx, in)
			if err == nil {
				err = task.checkOutputs(res)
			}
			if err != nil {
				return err
			}
			out = res
			return nil
		},
		func(attempt int, err error) {
			slog.WarnContext(ctx, "stage attempt failed, retrying",
				"run_id", rc.RunID, "stage", task.Stage, "attempt", attempt, "delay", task.Policy.Delay, "error", err)
			_ = tracker.Retrying(ctx, task.Stage, attempt, err)
		},
	)
	if err != nil {
		_ = tracker.Failed(context.WithoutCancel(ctx), task.Stage, attempts, err)
		return nil, fmt.Errorf("stage %s failed after %d attempt(s): %w", task.Stage, attempts, err)
	}
	_ = tracker.Succeeded(ctx, task.Stage, attempts)
	return out, nil
}

// alert sends the single failure notification of a run. Delivery errors are
// logged and swallowed; they never change the run's outcome.
func (c *Controller) alert(ctx context.Context, runID string, date model.LogicalDate, task Task) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	err := c.notifier.Notify(ctx, notify.Alert{
		RunID:       runID,
		Pipeline:    c.name,
		Stage:       task.Stage,
		Task:        task.Name,
		LogicalDate: date.String(),
	})
	if err != nil {
		notifications.WithLabelValues("failed").Inc()
		slog.ErrorContext(ctx, "failed to send failure alert", "run_id", runID, "stage", task.Stage, "error", err)
		return
	}
	notifications.WithLabelValues("sent").Inc()
}
