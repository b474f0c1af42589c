package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go-etl-pipeline/internal/model"
)

// Output keys are namespaced by the stage that produces them so that the
// run context only ever grows.
const (
	KeyArtifactPath  = "extract.path"
	KeyExtractDate   = "extract.exec_date"
	KeyLoadDate      = "load.exec_date"
	KeyLoadRows      = "load.rows"
	KeyAggregatePath = "aggregate.path"
)

// StageFunc performs one attempt of a stage.
type StageFunc func(ctx context.Context, in StageInput) (map[string]string, error)

// StageInput is everything a stage may read: the run identity, the logical
// date and the values of its declared inputs. Nothing else is visible.
type StageInput struct {
	RunID       string
	LogicalDate model.LogicalDate
	values      map[string]string
}

// NewStageInput builds an input from a copy of values. Stages can also be
// invoked directly with one.
func NewStageInput(runID string, date model.LogicalDate, values map[string]string) StageInput {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return StageInput{RunID: runID, LogicalDate: date, values: cp}
}

// Value returns a declared input.
func (in StageInput) Value(key string) (string, error) {
	v, ok := in.values[key]
	if !ok {
		return "", fmt.Errorf("stage input %q not provided", key)
	}
	return v, nil
}

// Task is one node of the graph.
type Task struct {
	Stage   model.StageID
	Name    string
	Run     StageFunc
	Policy  model.RetryPolicy
	Inputs  []string
	Outputs []string
}

// TaskGraph is the ordered, validated set of tasks a run executes.
type TaskGraph struct {
	tasks    []Task
	upstream map[model.StageID][]model.StageID
}

// NewTaskGraph validates tasks in execution order. Every input must be an
// output of an earlier task, which makes the declared order a topological
// order of the dependency graph.
func NewTaskGraph(tasks ...Task) (*TaskGraph, error) {
	if len(tasks) == 0 {
		return nil, errors.New("task graph: no tasks")
	}
	g := &TaskGraph{upstream: map[model.StageID][]model.StageID{}}
	producer := map[string]model.StageID{}
	seen := map[model.StageID]bool{}

	for _, t := range tasks {
		if t.Stage == "" || t.Name == "" || t.Run == nil {
			return nil, fmt.Errorf("task graph: task %q is incomplete", t.Stage)
		}
		if seen[t.Stage] {
			return nil, fmt.Errorf("task graph: duplicate stage %q", t.Stage)
		}
		if err := t.Policy.Validate(); err != nil {
			return nil, fmt.Errorf("task graph: stage %q: %w", t.Stage, err)
		}

		deps := map[model.StageID]bool{}
		for _, in := range t.Inputs {
			from, ok := producer[in]
			if !ok {
				return nil, fmt.Errorf("task graph: stage %q reads %q before any stage produces it", t.Stage, in)
			}
			if !deps[from] {
				deps[from] = true
				g.upstream[t.Stage] = append(g.upstream[t.Stage], from)
			}
		}
		for _, out := range t.Outputs {
			if prev, dup := producer[out]; dup {
				return nil, fmt.Errorf("task graph: %q produced by both %q and %q", out, prev, t.Stage)
			}
			producer[out] = t.Stage
		}

		seen[t.Stage] = true
		g.tasks = append(g.tasks, t)
	}
	return g, nil
}

// Tasks returns the tasks in execution order.
func (g *TaskGraph) Tasks() []Task {
	return append([]Task(nil), g.tasks...)
}

// Task looks a task up by stage id.
func (g *TaskGraph) Task(id model.StageID) (Task, bool) {
	for _, t := range g.tasks {
		if t.Stage == id {
			return t, true
		}
	}
	return Task{}, false
}

// Upstream lists the stages whose outputs id consumes.
func (g *TaskGraph) Upstream(id model.StageID) []model.StageID {
	return append([]model.StageID(nil), g.upstream[id]...)
}

// input gathers the declared inputs of t from rc. A missing value means an
// upstream stage has not produced its output, so t must not run.
func (t Task) input(rc model.RunContext) (StageInput, error) {
	values := make(map[string]string, len(t.Inputs))
	for _, key := range t.Inputs {
		v, ok := rc.Output(key)
		if !ok {
			return StageInput{}, fmt.Errorf("stage %q: input %q has not been produced", t.Stage, key)
		}
		values[key] = v
	}
	return NewStageInput(rc.RunID, rc.LogicalDate, values), nil
}

// checkOutputs requires exactly the declared output keys.
func (t Task) checkOutputs(out map[string]string) error {
	if len(out) != len(t.Outputs) {
		return fmt.Errorf("stage %q produced %d outputs, declared %d", t.Stage, len(out), len(t.Outputs))
	}
	for _, key := range t.Outputs {
		if _, ok := out[key]; !ok {
			return fmt.Errorf("stage %q did not produce declared output %q", t.Stage, key)
		}
	}
	return nil
}
