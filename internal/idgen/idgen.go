// Package idgen hands out globally unique, time-sortable identifiers for
// tasks and subtasks, following the ulid.Make().String() idiom used
// throughout the pack's orchestrator/scheduler/session stores.
package idgen

import "github.com/oklog/ulid/v2"

// NewTaskID returns a new task identifier.
func NewTaskID() string {
	return "task_" + ulid.Make().String()
}

// NewSubtaskID returns a new subtask identifier.
func NewSubtaskID() string {
	return "sub_" + ulid.Make().String()
}
