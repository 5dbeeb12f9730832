package model

import (
	"strings"
	"time"
)

// SubtaskStatus is the per-unit lifecycle state; once terminal it never
// transitions again (Completed/Failed/Cancelled are terminal).
type SubtaskStatus string

const (
	SubtaskPending    SubtaskStatus = "pending"
	SubtaskProcessing SubtaskStatus = "processing"
	SubtaskCompleted  SubtaskStatus = "completed"
	SubtaskFailed     SubtaskStatus = "failed"
	SubtaskCancelled  SubtaskStatus = "cancelled"
)

func (s SubtaskStatus) Terminal() bool {
	return s == SubtaskCompleted || s == SubtaskFailed || s == SubtaskCancelled
}

// PromptItemType distinguishes the three prompt-item shapes.
type PromptItemType string

const (
	PromptFreetext  PromptItemType = "freetext"
	PromptCharacter PromptItemType = "character"
	PromptElement   PromptItemType = "element"
)

// PromptItem is one entry of a subtask's ordered prompt list.
type PromptItem struct {
	Type   PromptItemType `json:"type"`
	Value  string         `json:"value"` // freetext literal, or character/element uuid
	Name   string         `json:"name,omitempty"`
	Weight float64        `json:"weight,omitempty"`
	ImgURL string         `json:"img_url,omitempty"`
}

// Result is the terminal success payload of a subtask.
type Result struct {
	URL       string    `json:"url"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Seed      int64     `json:"seed"`
	CreatedAt time.Time `json:"created_at"`
}

// Subtask is one image-generation unit corresponding to one coordinate.
type Subtask struct {
	ID           string     `json:"id"`
	ParentTaskID string     `json:"parent_task_id"`
	Coordinate   Coordinate `json:"coordinate"`

	VariableTypesMap map[int]TagType `json:"variable_types_map"`
	TypeToVariable   map[TagType]int `json:"type_to_variable"`

	Prompts    []PromptItem `json:"prompts"`
	Ratio      string       `json:"ratio"`
	Seed       int64        `json:"seed"`
	UsePolish  bool         `json:"use_polish"`
	ClientArgs ClientArgs   `json:"client_args"`

	// MakeAPIQueue selects which of the three external queues (prod/dev/ops)
	// serves this subtask's image-API calls.
	MakeAPIQueue string `json:"make_api_queue"`

	Status     SubtaskStatus `json:"status"`
	RetryCount int           `json:"retry_count"`
	Error      string        `json:"error,omitempty"`
	Result     *Result       `json:"result,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsLumina reports whether any prompt item's Name contains "lumina"
// (case-insensitively), the sole routing signal for the dual-pool dispatcher.
func (s *Subtask) IsLumina() bool {
	for _, p := range s.Prompts {
		if strings.Contains(strings.ToLower(p.Name), "lumina") {
			return true
		}
	}
	return false
}
