package model

import (
	"time"
)

// StageState is the lifecycle of one stage within a run.
//
//	Pending -> Running -> Succeeded
//	                   -> Retrying -> Running ...
//	                   -> Failed (terminal)
//
// A stage waiting out its retry delay may also fail directly when the run is
// cancelled during the wait.
type StageState string

const (
	StatePending   StageState = "pending"
	StateRunning   StageState = "running"
	StateRetrying  StageState = "retrying"
	StateSucceeded StageState = "succeeded"
	StateFailed    StageState = "failed"
	// StateSkipped marks stages never started because an earlier stage failed.
	StateSkipped StageState = "skipped"
)

var stageTransitions = map[StageState][]StageState{
	StatePending:  {StateRunning, StateSkipped},
	StateRunning:  {StateSucceeded, StateRetrying, StateFailed},
	StateRetrying: {StateRunning, StateFailed},
}

// CanTransition reports whether a stage may move from one state to another.
// Succeeded, Failed and Skipped are final.
func CanTransition(from, to StageState) bool {
	for _, s := range stageTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state is final.
func (s StageState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateSkipped
}

// RunStatus is the outcome of a whole run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	// RunRejected means the run never started, e.g. the pipeline lock was held.
	RunRejected RunStatus = "rejected"
	// RunCancelled means the run stopped at a stage boundary because its
	// context ended. No stage failed, so no alert is sent.
	RunCancelled RunStatus = "cancelled"
)

// StageReport summarizes one stage of a finished run.
type StageReport struct {
	Stage     StageID    `json:"stage"`
	Task      string     `json:"task"`
	State     StageState `json:"state"`
	Attempts  int        `json:"attempts"`
	Error     string     `json:"error,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// RunResult is what the controller reports once a run reaches a final status.
type RunResult struct {
	RunID       string            `json:"run_id"`
	LogicalDate string            `json:"logical_date"`
	Status      RunStatus         `json:"status"`
	FailedStage StageID           `json:"failed_stage,omitempty"`
	Stages      []StageReport     `json:"stages"`
	Outputs     map[string]string `json:"outputs"`
	StartedAt   time.Time         `json:"started_at"`
	EndedAt     time.Time         `json:"ended_at"`
	Err         error             `json:"-"`
}

// Succeeded reports whether every stage completed.
func (r *RunResult) Succeeded() bool { return r.Status == RunSucceeded }

// Stage returns the report for id, if present.
func (r *RunResult) Stage(id StageID) (StageReport, bool) {
	for _, s := range r.Stages {
		if s.Stage == id {
			return s, true
		}
	}
	return StageReport{}, false
}
