package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-etl-pipeline/internal/model"
)

func noop(context.Context, StageInput) (map[string]string, error) { return nil, nil }

func TestDefaultGraph(t *testing.T) {
	g, err := (&Stages{}).Graph(model.DefaultRetryPolicy())
	require.NoError(t, err)

	tasks := g.Tasks()
	require.Len(t, tasks, 3)
	assert.Equal(t, []string{TaskExtract, TaskLoad, TaskAggregate}, []string{tasks[0].Name, tasks[1].Name, tasks[2].Name})
	for _, task := range tasks {
		assert.Equal(t, model.DefaultRetryPolicy(), task.Policy)
	}

	assert.Empty(t, g.Upstream(model.StageExtract))
	assert.Equal(t, []model.StageID{model.StageExtract}, g.Upstream(model.StageLoad))
	assert.Equal(t, []model.StageID{model.StageLoad}, g.Upstream(model.StageAggregate))

	load, ok := g.Task(model.StageLoad)
	require.True(t, ok)
	assert.Equal(t, []string{KeyArtifactPath, KeyExtractDate}, load.Inputs)
	_, ok = g.Task("missing")
	assert.False(t, ok)
}

func TestTaskGraphRejectsBadTables(t *testing.T) {
	policy := model.DefaultRetryPolicy()
	tests := []struct {
		name  string
		tasks []Task
	}{
		{"empty", nil},
		{"no function", []Task{{Stage: "a", Name: "a", Policy: policy}}},
		{"bad policy", []Task{{Stage: "a", Name: "a", Run: noop}}},
		{"duplicate stage", []Task{
			{Stage: "a", Name: "a", Run: noop, Policy: policy},
			{Stage: "a", Name: "a2", Run: noop, Policy: policy},
		}},
		{"input before producer", []Task{
			{Stage: "a", Name: "a", Run: noop, Policy: policy, Inputs: []string{"b.out"}},
			{Stage: "b", Name: "b", Run: noop, Policy: policy, Outputs: []string{"b.out"}},
		}},
		{"output produced twice", []Task{
			{Stage: "a", Name: "a", Run: noop, Policy: policy, Outputs: []string{"x"}},
			{Stage: "b", Name: "b", Run: noop, Policy: policy, Outputs: []string{"x"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTaskGraph(tt.tasks...)
			assert.Error(t, err)
		})
	}
}

func TestCheckOutputs(t *testing.T) {
	task := Task{Stage: "a", Outputs: []string{"a.x"}}
	assert.NoError(t, task.checkOutputs(map[string]string{"a.x": ""}))
	assert.Error(t, task.checkOutputs(nil))
	assert.Error(t, task.checkOutputs(map[string]string{"a.y": "1"}))
	assert.Error(t, task.checkOutputs(map[string]string{"a.x": "1", "a.y": "1"}))
}
