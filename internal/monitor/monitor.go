// Package monitor implements the task monitor (C8): one background unit per
// active task, polling subtask aggregates until the task reaches a
// terminal status, then emitting the matching notification.
package monitor

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sagan/gridgen/internal/model"
	"github.com/sagan/gridgen/internal/notify"
	"github.com/sagan/gridgen/internal/store"
)

var logger = log.WithField("component", "monitor")

// Monitor watches one task to its terminal status.
type Monitor struct {
	store *store.Store
	sink  *notify.Sink
	tick  time.Duration
}

func New(st *store.Store, sink *notify.Sink, tick time.Duration) *Monitor {
	return &Monitor{store: st, sink: sink, tick: tick}
}

// Watch blocks until taskID reaches a terminal status or ctx is cancelled,
// per the per-5s poll loop of §4.8.
func (m *Monitor) Watch(ctx context.Context, taskID string) {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.poll(taskID) {
				return
			}
		}
	}
}

// poll runs one evaluation cycle; returns true once the task has reached a
// terminal state (or was observed cancelled) and monitoring should stop.
func (m *Monitor) poll(taskID string) bool {
	task, err := m.store.GetTask(taskID)
	if err != nil {
		logger.WithError(err).WithField("task", taskID).Warn("monitor: task vanished")
		return true
	}
	if task.Status == model.TaskCancelled {
		return true
	}

	counts := m.store.CountsByStatus(taskID)
	if counts.Total == 0 || counts.Completed+counts.Failed+counts.Cancelled != counts.Total {
		return false
	}

	eventType, finalStatus := classifyOutcome(counts)
	now := time.Now()
	_ = m.store.UpdateTask(taskID, func(t *model.Task) {
		t.Status = finalStatus
		t.ProcessedImages = t.TotalImages
		t.Progress = 100
		t.AllSubtasksCompleted = true
		t.CompletedAt = &now
	})

	m.sink.Emit(notify.Event{
		EventType: eventType,
		TaskID:    taskID,
		TaskName:  task.Name,
		Submitter: task.Owner,
		Details: map[string]any{
			"total": counts.Total, "completed": counts.Completed,
			"failed": counts.Failed, "cancelled": counts.Cancelled,
		},
	})
	return true
}

func classifyOutcome(c store.Counts) (eventType string, status model.TaskStatus) {
	switch {
	case c.Completed == 0:
		return "task_failed", model.TaskFailed
	case c.Failed > 0:
		return "task_partial_completed", model.TaskCompleted
	default:
		return "task_completed", model.TaskCompleted
	}
}
