package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sagan/gridgen/internal/config"
	"github.com/sagan/gridgen/internal/dispatcher"
	"github.com/sagan/gridgen/internal/imageapi"
	"github.com/sagan/gridgen/internal/model"
	"github.com/sagan/gridgen/internal/notify"
	"github.com/sagan/gridgen/internal/pool"
	"github.com/sagan/gridgen/internal/store"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	st := store.New()
	cfg, err := config.Load("")
	require.NoError(t, err)
	client := imageapi.New(cfg)
	defaultPool := pool.New("default", 5)
	luminaPool := pool.New("lumina", 2)
	ctx := context.Background()
	d := dispatcher.New(ctx, client, st, defaultPool, luminaPool)
	sink := notify.New("")
	return New(ctx, st, d, sink, 5*time.Millisecond)
}

func TestCreateTask_RejectsMissingRequiredFields(t *testing.T) {
	o := newTestOrchestrator(t)
	_, err := o.CreateTask(context.Background(), CreateTaskInput{})
	require.Error(t, err)
}

func TestCreateTask_DefaultsQueueAndExpands(t *testing.T) {
	o := newTestOrchestrator(t)
	input := CreateTaskInput{
		Name:  "batch-1",
		Owner: "alice",
		Tags: []model.Tag{
			{ID: "t1", Type: model.TagPrompt, Value: "1girl"},
			{ID: "t2", Type: model.TagRatio, IsVariable: true, Name: "ratio"},
		},
		Variables: map[int]*model.Variable{
			0: {Name: "ratio", Values: []model.ValueRecord{{Value: "1:1"}, {Value: "16:9"}}, ValuesCount: 2},
		},
	}

	task, err := o.CreateTask(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, "prod", task.Queue)
	require.Equal(t, 2, task.TotalImages)
	require.Equal(t, model.TaskProcessing, task.Status)
}

func TestCancelTask_OnlyAffectsNonTerminal(t *testing.T) {
	o := newTestOrchestrator(t)
	task, err := o.CreateTask(context.Background(), CreateTaskInput{
		Name: "c", Owner: "bob",
		Tags: []model.Tag{{ID: "t1", Type: model.TagPrompt, Value: "x"}},
	})
	require.NoError(t, err)

	require.NoError(t, o.CancelTask(task.ID))
	got, err := o.GetTask(task.ID)
	require.NoError(t, err)
	require.Equal(t, model.TaskCancelled, got.Status)
}

func TestDeleteTask_SoftDeletes(t *testing.T) {
	o := newTestOrchestrator(t)
	task, err := o.CreateTask(context.Background(), CreateTaskInput{
		Name: "d", Owner: "carol",
		Tags: []model.Tag{{ID: "t1", Type: model.TagPrompt, Value: "x"}},
	})
	require.NoError(t, err)

	require.NoError(t, o.DeleteTask(task.ID))
	got, err := o.GetTask(task.ID)
	require.NoError(t, err)
	require.True(t, got.IsDeleted)
	require.NotNil(t, got.DeletedAt)
}
