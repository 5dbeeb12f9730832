package monitor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sagan/gridgen/internal/model"
	"github.com/sagan/gridgen/internal/store"
)

func TestClassifyOutcome(t *testing.T) {
	eventType, status := classifyOutcome(store.Counts{Total: 3, Completed: 0, Failed: 3})
	require.Equal(t, "task_failed", eventType)
	require.Equal(t, model.TaskFailed, status)

	eventType, status = classifyOutcome(store.Counts{Total: 4, Completed: 3, Failed: 1})
	require.Equal(t, "task_partial_completed", eventType)
	require.Equal(t, model.TaskCompleted, status)

	eventType, status = classifyOutcome(store.Counts{Total: 2, Completed: 2, Failed: 0})
	require.Equal(t, "task_completed", eventType)
	require.Equal(t, model.TaskCompleted, status)
}

func newTaskWithSubtasks(t *testing.T, st *store.Store, n int) string {
	t.Helper()
	task := &model.Task{ID: "task-1", Name: "t", TotalImages: n, Status: model.TaskProcessing}
	st.CreateTask(task)
	specs := make([]*model.Subtask, n)
	for i := 0; i < n; i++ {
		specs[i] = &model.Subtask{ID: string(rune('a' + i)), ParentTaskID: task.ID}
		for j := range specs[i].Coordinate {
			specs[i].Coordinate[j] = model.Unset
		}
		specs[i].Coordinate[0] = i
	}
	st.CreateBatch(specs)
	return task.ID
}

func TestPoll_AllCompletedMarksTaskCompleted(t *testing.T) {
	st := store.New()
	taskID := newTaskWithSubtasks(t, st, 2)
	subtasks := st.SubtasksByParent(taskID)
	for _, sub := range subtasks {
		require.NoError(t, st.SetResult(sub.ID, model.Result{URL: "http://x/" + sub.ID}))
	}

	m := New(st, nil, 0)
	done := m.poll(taskID)
	require.True(t, done)

	task, err := st.GetTask(taskID)
	require.NoError(t, err)
	require.Equal(t, model.TaskCompleted, task.Status)
	require.Equal(t, 100, task.Progress)
}

func TestPoll_StillRunningReturnsFalse(t *testing.T) {
	st := store.New()
	taskID := newTaskWithSubtasks(t, st, 2)

	m := New(st, nil, 0)
	require.False(t, m.poll(taskID))
}

func TestPoll_CancelledTaskStopsImmediately(t *testing.T) {
	st := store.New()
	taskID := newTaskWithSubtasks(t, st, 2)
	require.NoError(t, st.UpdateTask(taskID, func(t *model.Task) { t.Status = model.TaskCancelled }))

	m := New(st, nil, 0)
	require.True(t, m.poll(taskID))
}
