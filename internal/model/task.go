package model

import "time"

// TagType is the kind of a task tag, matching the fixed vocabulary a prompt
// can be built from.
type TagType string

const (
	TagPrompt    TagType = "prompt"
	TagCharacter TagType = "character"
	TagElement   TagType = "element"
	TagRatio     TagType = "ratio"
	TagSeed      TagType = "seed"
	TagPolish    TagType = "polish"
	TagBatch     TagType = "batch"
	TagCkptName  TagType = "ckpt_name"
	TagSteps     TagType = "steps"
	TagCfg       TagType = "cfg"
)

// Tag is one ordered parameter entry of a task definition.
type Tag struct {
	ID         string  `json:"id"`
	Type       TagType `json:"type"`
	Value      string  `json:"value"`
	IsVariable bool    `json:"is_variable"`
	Name       string  `json:"name,omitempty"` // links a variable tag to its Variable slot
	Weight     float64 `json:"weight,omitempty"`
}

// ValueRecord is one admissible value of a variable slot.
type ValueRecord struct {
	Value     string `json:"value"`
	UUID      string `json:"uuid,omitempty"`
	HeaderImg string `json:"header_img,omitempty"`
	ID        string `json:"id,omitempty"`
}

// Variable is one indexed slot vK, K in [0,NumVariables).
type Variable struct {
	Name        string        `json:"name"`
	TagID       string        `json:"tag_id"`
	Values      []ValueRecord `json:"values"`
	ValuesCount int           `json:"values_count"`
}

// TaskStatus is the task lifecycle state.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// ClientArgs bundles optional generation hyperparameters.
type ClientArgs struct {
	CkptName string  `json:"ckpt_name,omitempty"`
	Steps    int     `json:"steps,omitempty" validate:"omitempty,min=1,max=50"`
	Cfg      float64 `json:"cfg,omitempty" validate:"omitempty,gte=0.1,lte=10"`
}

// Task is a user-submitted generation job, expanded into subtasks.
type Task struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Owner string `json:"owner"`
	// Queue selects which of the three external image-API queues
	// (prod/dev/ops) this task's subtasks are submitted to.
	Queue string `json:"queue"`

	Tags      []Tag               `json:"tags"`
	Variables map[int]*Variable   `json:"variables"` // key: vK index, 0..5
	Settings  Settings            `json:"settings"`
	Priority  int                 `json:"priority"`

	Status               TaskStatus `json:"status"`
	TotalImages          int        `json:"total_images"`
	ProcessedImages      int        `json:"processed_images"`
	Progress             int        `json:"progress"`
	AllSubtasksCompleted bool       `json:"all_subtasks_completed"`
	IsDeleted            bool       `json:"is_deleted"`
	Error                string     `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Settings carries the orchestrator-entry input's optional tuning knobs.
type Settings struct {
	Concurrency int        `json:"concurrency,omitempty" validate:"omitempty,min=1,max=50"`
	ClientArgs  ClientArgs `json:"client_args,omitempty"`
}

// RecomputeProgress applies the invariant progress = floor(100*processed/total).
func (t *Task) RecomputeProgress() {
	if t.TotalImages <= 0 {
		t.Progress = 0
		return
	}
	t.Progress = (100 * t.ProcessedImages) / t.TotalImages
}
