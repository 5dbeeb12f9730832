package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sagan/gridgen/internal/model"
)

func newTaskWithTotal(s *Store, total int) *model.Task {
	t := &model.Task{ID: "t1", TotalImages: total, Status: model.TaskPending}
	s.CreateTask(t)
	return t
}

func coord(vals ...int) model.Coordinate {
	var c model.Coordinate
	for i := range c {
		c[i] = model.Unset
	}
	for i, v := range vals {
		c[i] = v
	}
	return c
}

func TestCreateBatch_DedupByCoordinate(t *testing.T) {
	s := New()
	newTaskWithTotal(s, 2)

	specs := []*model.Subtask{
		{ID: "s1", ParentTaskID: "t1", Coordinate: coord(0, 0), Seed: 1},
		{ID: "s2", ParentTaskID: "t1", Coordinate: coord(0, 0), Seed: 1}, // duplicate, skipped
	}
	inserted := s.CreateBatch(specs)
	require.Len(t, inserted, 1)
}

func TestCreateBatch_SeedZeroAllowsDuplicates(t *testing.T) {
	s := New()
	newTaskWithTotal(s, 2)

	specs := []*model.Subtask{
		{ID: "s1", ParentTaskID: "t1", Coordinate: coord(0, 0), Seed: 0},
		{ID: "s2", ParentTaskID: "t1", Coordinate: coord(0, 0), Seed: 0},
	}
	inserted := s.CreateBatch(specs)
	require.Len(t, inserted, 2)
}

func TestUpdateStatus_NeverLeavesTerminal(t *testing.T) {
	s := New()
	newTaskWithTotal(s, 1)
	s.CreateBatch([]*model.Subtask{{ID: "s1", ParentTaskID: "t1", Coordinate: coord(0)}})

	require.NoError(t, s.UpdateStatus("s1", model.SubtaskFailed, StatusUpdate{}))
	err := s.UpdateStatus("s1", model.SubtaskProcessing, StatusUpdate{})
	require.ErrorIs(t, err, ErrTerminal)
}

func TestUpdateStatus_ProcessedNeverExceedsTotal(t *testing.T) {
	s := New()
	newTaskWithTotal(s, 1)
	s.CreateBatch([]*model.Subtask{
		{ID: "s1", ParentTaskID: "t1", Coordinate: coord(0), Seed: 1},
		{ID: "s2", ParentTaskID: "t1", Coordinate: coord(1), Seed: 1},
	})

	require.NoError(t, s.UpdateStatus("s1", model.SubtaskFailed, StatusUpdate{}))
	require.NoError(t, s.UpdateStatus("s2", model.SubtaskFailed, StatusUpdate{}))

	task, err := s.GetTask("t1")
	require.NoError(t, err)
	require.Equal(t, 1, task.ProcessedImages) // clamped, total was 1
}

func TestUpdateStatus_RetryCountMonotonic(t *testing.T) {
	s := New()
	newTaskWithTotal(s, 1)
	s.CreateBatch([]*model.Subtask{{ID: "s1", ParentTaskID: "t1", Coordinate: coord(0)}})

	require.NoError(t, s.UpdateStatus("s1", model.SubtaskProcessing, StatusUpdate{IncrementRetry: true}))
	require.NoError(t, s.UpdateStatus("s1", model.SubtaskProcessing, StatusUpdate{IncrementRetry: true}))
	st, err := s.GetSubtask("s1")
	require.NoError(t, err)
	require.Equal(t, 2, st.RetryCount)
}

func TestSetResult_IncrementsProcessedOnce(t *testing.T) {
	s := New()
	newTaskWithTotal(s, 1)
	s.CreateBatch([]*model.Subtask{{ID: "s1", ParentTaskID: "t1", Coordinate: coord(0)}})

	require.NoError(t, s.SetResult("s1", model.Result{URL: "http://x", CreatedAt: time.Now()}))
	err := s.SetResult("s1", model.Result{URL: "http://y"})
	require.ErrorIs(t, err, ErrTerminal)

	task, err := s.GetTask("t1")
	require.NoError(t, err)
	require.Equal(t, 1, task.ProcessedImages)
}

func TestExpiredDeletedTasks(t *testing.T) {
	s := New()
	old := time.Now().Add(-31 * 24 * time.Hour)
	s.CreateTask(&model.Task{ID: "old", IsDeleted: true, DeletedAt: &old})
	recent := time.Now().Add(-1 * time.Hour)
	s.CreateTask(&model.Task{ID: "recent", IsDeleted: true, DeletedAt: &recent})

	ids := s.ExpiredDeletedTasks(time.Now().Add(-30 * 24 * time.Hour))
	require.Equal(t, []string{"old"}, ids)
}
