package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go-etl-pipeline/internal/model"
	"go-etl-pipeline/internal/store"
)

// History persists what a run did. *store.DB implements it.
type History interface {
	SaveRun(ctx context.Context, runID string, date model.LogicalDate) error
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, failedStage model.StageID) error
	SaveStageTransition(ctx context.Context, tr store.StageTransition) error
	SaveRunError(ctx context.Context, runID string, stage model.StageID, err error) error
}

// RunTracker owns the stage states of one run. Every change goes through
// model.CanTransition, then to the history and the metrics. History writes
// are best effort and outlive cancellation of the run: a broken history
// database never fails a run, and a cancelled run is still recorded.
type RunTracker struct {
	mu      sync.Mutex
	runID   string
	date    model.LogicalDate
	history History
	log     *slog.Logger

	order   []model.StageID
	reports map[model.StageID]*model.StageReport
	started time.Time
}

// NewRunTracker starts tracking a run whose stages are all pending.
func NewRunTracker(ctx context.Context, runID string, date model.LogicalDate, graph *TaskGraph, history History) *RunTracker {
	rt := &RunTracker{
		runID:   runID,
		date:    date,
		history: history,
		log:     slog.With("run_id", runID, "logical_date", date.String()),
		reports: map[model.StageID]*model.StageReport{},
		started: time.Now().UTC(),
	}
	for _, t := range graph.Tasks() {
		rt.order = append(rt.order, t.Stage)
		rt.reports[t.Stage] = &model.StageReport{Stage: t.Stage, Task: t.Name, State: model.StatePending}
	}
	if history != nil {
		if err := history.SaveRun(context.WithoutCancel(ctx), runID, date); err != nil {
			rt.log.WarnContext(ctx, "failed to record run", "error", err)
		}
	}
	return rt
}

// Running marks the start of an attempt.
func (rt *RunTracker) Running(ctx context.Context, stage model.StageID, attempt int) error {
	return rt.transition(ctx, stage, model.StateRunning, attempt, nil)
}

// Retrying records a failed attempt that will be retried.
func (rt *RunTracker) Retrying(ctx context.Context, stage model.StageID, attempt int, cause error) error {
	stageAttempts.WithLabelValues(string(stage), "retrying").Inc()
	return rt.transition(ctx, stage, model.StateRetrying, attempt, cause)
}

// Succeeded closes a stage successfully.
func (rt *RunTracker) Succeeded(ctx context.Context, stage model.StageID, attempt int) error {
	stageAttempts.WithLabelValues(string(stage), "succeeded").Inc()
	return rt.transition(ctx, stage, model.StateSucceeded, attempt, nil)
}

// Failed closes a stage with its last error.
func (rt *RunTracker) Failed(ctx context.Context, stage model.StageID, attempt int, cause error) error {
	stageAttempts.WithLabelValues(string(stage), "failed").Inc()
	if rt.history != nil {
		if err := rt.history.SaveRunError(context.WithoutCancel(ctx), rt.runID, stage, cause); err != nil {
			rt.log.WarnContext(ctx, "failed to record run error", "error", err)
		}
	}
	return rt.transition(ctx, stage, model.StateFailed, attempt, cause)
}

// SkipPending marks every stage that never started as skipped.
func (rt *RunTracker) SkipPending(ctx context.Context) {
	for _, id := range rt.order {
		if rt.state(id) == model.StatePending {
			_ = rt.transition(ctx, id, model.StateSkipped, 0, nil)
		}
	}
}

func (rt *RunTracker) state(id model.StageID) model.StageState {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.reports[id].State
}

func (rt *RunTracker) transition(ctx context.Context, stage model.StageID, to model.StageState, attempt int, cause error) error {
	rt.mu.Lock()
	rep, ok := rt.reports[stage]
	if !ok {
		rt.mu.Unlock()
		return fmt.Errorf("tracker: unknown stage %q", stage)
	}
	from := rep.State
	if !model.CanTransition(from, to) {
		rt.mu.Unlock()
		return fmt.Errorf("tracker: stage %q cannot move from %s to %s", stage, from, to)
	}

	now := time.Now().UTC()
	rep.State = to
	if attempt > 0 {
		rep.Attempts = attempt
	}
	if cause != nil {
		rep.Error = cause.Error()
	}
	if to == model.StateRunning && rep.StartedAt == nil {
		rep.StartedAt = &now
	}
	if to.Terminal() {
		rep.EndedAt = &now
		if rep.StartedAt != nil {
			stageDuration.WithLabelValues(string(stage)).Observe(now.Sub(*rep.StartedAt).Seconds())
		}
	}
	tr := store.StageTransition{
		RunID:     rt.runID,
		Stage:     stage,
		Task:      rep.Task,
		State:     to,
		Attempt:   attempt,
		CreatedAt: now,
	}
	if cause != nil {
		tr.Error = cause.Error()
	}
	rt.mu.Unlock()

	rt.log.DebugContext(ctx, "stage transition", "stage", stage, "from", from, "to", to, "attempt", attempt)
	if rt.history != nil {
		if err := rt.history.SaveStageTransition(context.WithoutCancel(ctx), tr); err != nil {
			rt.log.WarnContext(ctx, "failed to record stage transition", "stage", stage, "error", err)
		}
	}
	return nil
}

// Finish records the final status and builds the run result.
func (rt *RunTracker) Finish(ctx context.Context, status model.RunStatus, failed model.StageID, outputs map[string]string, cause error) *model.RunResult {
	runsTotal.WithLabelValues(string(status)).Inc()
	if rt.history != nil {
		if err := rt.history.UpdateRunStatus(context.WithoutCancel(ctx), rt.runID, status, failed); err != nil {
			rt.log.WarnContext(ctx, "failed to record run status", "error", err)
		}
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	res := &model.RunResult{
		RunID:       rt.runID,
		LogicalDate: rt.date.String(),
		Status:      status,
		FailedStage: failed,
		Outputs:     outputs,
		StartedAt:   rt.started,
		EndedAt:     time.Now().UTC(),
		Err:         cause,
	}
	for _, id := range rt.order {
		res.Stages = append(res.Stages, *rt.reports[id])
	}
	return res
}
