// Package orchestrator implements the task orchestrator (C10): the single
// entry point that turns a validated task submission into an expanded,
// dispatched, and monitored set of subtasks.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/sagan/gridgen/internal/autoscale"
	"github.com/sagan/gridgen/internal/dispatcher"
	"github.com/sagan/gridgen/internal/expander"
	"github.com/sagan/gridgen/internal/idgen"
	"github.com/sagan/gridgen/internal/model"
	"github.com/sagan/gridgen/internal/monitor"
	"github.com/sagan/gridgen/internal/notify"
	"github.com/sagan/gridgen/internal/store"
)

var logger = log.WithField("component", "orchestrator")

var validate = validator.New()

const defaultQueue = "prod"

// ErrNotFound mirrors the store's sentinel for callers that only import
// this package.
var ErrNotFound = store.ErrNotFound

// CreateTaskInput is the orchestrator entry point's validated payload.
type CreateTaskInput struct {
	Name      string                  `json:"name" validate:"required"`
	Owner     string                  `json:"owner" validate:"required"`
	Queue     string                  `json:"queue,omitempty" validate:"omitempty,oneof=prod dev ops"`
	Priority  int                     `json:"priority" validate:"gte=0,lte=10"`
	Tags      []model.Tag             `json:"tags" validate:"required,min=1,dive"`
	Variables map[int]*model.Variable `json:"variables,omitempty"`
	Settings  model.Settings          `json:"settings,omitempty"`
}

// Orchestrator wires the store, expander, dispatcher, monitor and
// notification sink together behind CreateTask/CancelTask/DeleteTask.
type Orchestrator struct {
	store       *store.Store
	dispatcher  *dispatcher.Dispatcher
	sink        *notify.Sink
	monitorTick time.Duration
	bgCtx       context.Context
}

func New(ctx context.Context, st *store.Store, d *dispatcher.Dispatcher, sink *notify.Sink, monitorTick time.Duration) *Orchestrator {
	return &Orchestrator{store: st, dispatcher: d, sink: sink, monitorTick: monitorTick, bgCtx: ctx}
}

// CreateTask validates input, persists the task, expands it into subtasks,
// inserts the deduplicated batch, flips the task to processing, and kicks
// off dispatch and monitoring in the background. It returns as soon as the
// task and its subtasks exist - it does not wait for any subtask to finish.
func (o *Orchestrator) CreateTask(ctx context.Context, input CreateTaskInput) (*model.Task, error) {
	if err := validate.Struct(input); err != nil {
		return nil, fmt.Errorf("orchestrator: invalid task input: %w", err)
	}

	queue := input.Queue
	if queue == "" {
		queue = defaultQueue
	}

	task := &model.Task{
		ID:        idgen.NewTaskID(),
		Name:      input.Name,
		Owner:     input.Owner,
		Queue:     queue,
		Tags:      input.Tags,
		Variables: input.Variables,
		Settings:  input.Settings,
		Priority:  input.Priority,
		Status:    model.TaskPending,
	}
	o.store.CreateTask(task)

	specs, err := expander.Expand(task)
	if err != nil {
		_ = o.store.UpdateTask(task.ID, func(t *model.Task) {
			t.Status = model.TaskFailed
			t.Error = err.Error()
		})
		return nil, fmt.Errorf("orchestrator: expansion failed: %w", err)
	}
	for _, spec := range specs {
		spec.ID = idgen.NewSubtaskID()
	}

	inserted := o.store.CreateBatch(specs)

	_ = o.store.UpdateTask(task.ID, func(t *model.Task) {
		t.TotalImages = len(inserted)
		t.Status = model.TaskProcessing
	})

	o.sink.Emit(notify.Event{
		EventType: "task_submitted",
		TaskID:    task.ID,
		TaskName:  task.Name,
		Submitter: task.Owner,
		Details:   map[string]any{"total_images": len(inserted)},
	})

	go func() {
		if err := o.dispatcher.Dispatch(o.bgCtx, inserted); err != nil {
			logger.WithError(err).WithField("task", task.ID).Warn("dispatch returned error")
		}
	}()
	go monitor.New(o.store, o.sink, o.monitorTick).Watch(o.bgCtx, task.ID)

	final, err := o.store.GetTask(task.ID)
	if err != nil {
		return task, nil
	}
	return final, nil
}

// CancelTask marks a non-terminal task cancelled; running subtasks are left
// to finish or fail on their own - cancellation is advisory to the monitor,
// it does not force-kill in-flight pool units.
func (o *Orchestrator) CancelTask(id string) error {
	return o.store.UpdateTask(id, func(t *model.Task) {
		if t.Status == model.TaskProcessing || t.Status == model.TaskPending {
			t.Status = model.TaskCancelled
		}
	})
}

// DeleteTask soft-deletes a task; the periodic sweep hard-removes it once
// the retention window elapses.
func (o *Orchestrator) DeleteTask(id string) error {
	now := time.Now()
	return o.store.UpdateTask(id, func(t *model.Task) {
		t.IsDeleted = true
		t.DeletedAt = &now
	})
}

// GetTask, ListTasks are thin pass-throughs kept here so CLI/API callers
// depend on one package for the whole task lifecycle.
func (o *Orchestrator) GetTask(id string) (*model.Task, error) { return o.store.GetTask(id) }

func (o *Orchestrator) ListTasks(filter store.TaskFilter) []*model.Task {
	return o.store.ListTasks(filter)
}

// PoolParamsFromConfig is a small seam kept here rather than in cmd/ so the
// mapping from config to autoscale.Params is testable without a CLI.
func PoolParamsFromConfig(min, max, step int, up, down, luminaEmptyTimeout time.Duration) autoscale.Params {
	return autoscale.Params{
		Min: min, Max: max, Step: step,
		ScaleUpInterval: up, ScaleDownInterval: down,
		LuminaEmptyTimeout: luminaEmptyTimeout,
	}
}
