package model

import (
	"fmt"
	"time"
)

// DateLayout is the canonical text form of a logical date.
const DateLayout = "2006-01-02"

// StageID identifies one unit of pipeline work
type StageID string

const (
	StageExtract   StageID = "extract"
	StageLoad      StageID = "load"
	StageAggregate StageID = "aggregate"
)

// LogicalDate is the calendar date a run represents. It is independent of
// the wall clock at which the run executes.
type LogicalDate struct {
	t time.Time
}

// NewLogicalDate truncates t to its UTC calendar date.
func NewLogicalDate(t time.Time) LogicalDate {
	t = t.UTC()
	return LogicalDate{t: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseLogicalDate parses a YYYY-MM-DD string.
func ParseLogicalDate(s string) (LogicalDate, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return LogicalDate{}, fmt.Errorf("invalid logical date %q: %w", s, err)
	}
	return NewLogicalDate(t), nil
}

func (d LogicalDate) String() string {
	if d.t.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

func (d LogicalDate) Time() time.Time { return d.t }
func (d LogicalDate) Year() int       { return d.t.Year() }
func (d LogicalDate) IsZero() bool    { return d.t.IsZero() }

// Before reports whether d is strictly earlier than other.
func (d LogicalDate) Before(other LogicalDate) bool { return d.t.Before(other.t) }

// AddDays returns the logical date n days away from d.
func (d LogicalDate) AddDays(n int) LogicalDate {
	return LogicalDate{t: d.t.AddDate(0, 0, n)}
}

// RunContext is the state threaded between stages of one run. Values are
// copied on every change; an output key, once set, can never be replaced.
type RunContext struct {
	RunID       string      `json:"run_id"`
	LogicalDate LogicalDate `json:"-"`
	Stage       StageID     `json:"stage"`

	outputs map[string]string
}

// NewRunContext creates the context for a fresh run.
func NewRunContext(runID string, date LogicalDate) RunContext {
	return RunContext{
		RunID:       runID,
		LogicalDate: date,
		outputs:     map[string]string{},
	}
}

// WithStage returns a copy of rc positioned at stage id.
func (rc RunContext) WithStage(id StageID) RunContext {
	next := rc
	next.Stage = id
	next.outputs = rc.Outputs()
	return next
}

// WithOutputs returns a copy of rc extended with out. Overwriting a key that
// an earlier stage produced is an error.
func (rc RunContext) WithOutputs(out map[string]string) (RunContext, error) {
	merged := rc.Outputs()
	for k, v := range out {
		if _, exists := merged[k]; exists {
			return rc, fmt.Errorf("run context: output %q already set", k)
		}
		merged[k] = v
	}
	next := rc
	next.outputs = merged
	return next, nil
}

// Output returns a single produced value.
func (rc RunContext) Output(key string) (string, bool) {
	v, ok := rc.outputs[key]
	return v, ok
}

// Outputs returns a copy of every produced value.
func (rc RunContext) Outputs() map[string]string {
	cp := make(map[string]string, len(rc.outputs))
	for k, v := range rc.outputs {
		cp[k] = v
	}
	return cp
}
