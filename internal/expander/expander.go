// Package expander implements the combinatorial expander (C2): it turns one
// task (tagged parameters + up to six indexed variables v0..v5 + a batch
// multiplier) into the ordered Cartesian-product list of subtask specs, each
// carrying the coordinate that fixes its cell in the result matrix.
package expander

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/sagan/gridgen/internal/model"
)

// UnmatchedVariableError is returned when a variable tag's Name has no
// corresponding entry in the task's Variables map.
type UnmatchedVariableError struct {
	TagName string
}

func (e *UnmatchedVariableError) Error() string {
	return fmt.Sprintf("expander: variable tag %q has no matching variable slot", e.TagName)
}

// InvalidBatchError is returned when the batch tag's literal does not parse
// as a positive integer.
type InvalidBatchError struct {
	Value string
}

func (e *InvalidBatchError) Error() string {
	return fmt.Sprintf("expander: invalid batch value %q", e.Value)
}

// combination pins one chosen value-record index per used variable slot.
type combination map[int]int

// Expand produces the ordered subtask-spec list for task, per §4.1.
func Expand(task *model.Task) ([]*model.Subtask, error) {
	usedSlots := usedVariableSlots(task)
	nameToSlot := make(map[string]int, len(usedSlots))
	for _, k := range usedSlots {
		nameToSlot[task.Variables[k].Name] = k
	}

	base := cartesianProduct(task, usedSlots)

	batchSize, err := parseBatchSize(task)
	if err != nil {
		return nil, err
	}

	batchSlot := -1
	if !lo.Contains(usedSlots, 5) {
		batchSlot = 5
	}

	combos := replicateForBatch(base, batchSize, batchSlot)

	subtasks := make([]*model.Subtask, 0, len(combos))
	for _, combo := range combos {
		st, err := buildSubtask(task, combo, nameToSlot, batchSlot)
		if err != nil {
			return nil, err
		}
		subtasks = append(subtasks, st)
	}
	return subtasks, nil
}

// replica bundles a variable combination with its optional batch index.
type replica struct {
	combo      combination
	batchIndex int // -1 if this task has no batch replication slot
}

func usedVariableSlots(task *model.Task) []int {
	slots := make([]int, 0, model.NumVariables)
	for k := 0; k < model.NumVariables; k++ {
		if v, ok := task.Variables[k]; ok && v.ValuesCount > 0 {
			slots = append(slots, k)
		}
	}
	return slots
}

func cartesianProduct(task *model.Task, usedSlots []int) []combination {
	combos := []combination{{}}
	for _, slot := range usedSlots {
		values := valuesForSlot(task.Variables[slot])
		next := make([]combination, 0, len(combos)*len(values))
		for _, c := range combos {
			for i := range values {
				nc := make(combination, len(c)+1)
				for k, v := range c {
					nc[k] = v
				}
				nc[slot] = i
				next = append(next, nc)
			}
		}
		combos = next
	}
	return combos
}

// valuesForSlot returns the value records to range over for variable. A
// variable can declare values_count without shipping the values themselves
// (e.g. a caller that only wants placeholder cells); in that case synthesize
// values_count empty records rather than collapsing the whole product.
func valuesForSlot(variable *model.Variable) []model.ValueRecord {
	if len(variable.Values) > 0 || variable.ValuesCount <= 0 {
		return variable.Values
	}
	return make([]model.ValueRecord, variable.ValuesCount)
}

func parseBatchSize(task *model.Task) (int, error) {
	for _, tag := range task.Tags {
		if tag.Type == model.TagBatch && !tag.IsVariable {
			n, err := strconv.Atoi(strings.TrimSpace(tag.Value))
			if err != nil || n < 1 {
				return 0, &InvalidBatchError{Value: tag.Value}
			}
			return n, nil
		}
	}
	return 1, nil
}

func replicateForBatch(base []combination, batchSize int, batchSlot int) []replica {
	replicas := make([]replica, 0, len(base)*batchSize)
	for _, c := range base {
		if batchSize <= 1 {
			replicas = append(replicas, replica{combo: c, batchIndex: -1})
			continue
		}
		for b := 0; b < batchSize; b++ {
			idx := -1
			if batchSlot >= 0 {
				idx = b
			}
			replicas = append(replicas, replica{combo: c, batchIndex: idx})
		}
	}
	return replicas
}

func buildSubtask(task *model.Task, r replica, nameToSlot map[string]int, batchSlot int) (*model.Subtask, error) {
	st := &model.Subtask{
		ParentTaskID:     task.ID,
		MakeAPIQueue:     task.Queue,
		VariableTypesMap: map[int]model.TagType{},
		TypeToVariable:   map[model.TagType]int{},
		Ratio:            "1:1",
	}
	for i := range st.Coordinate {
		st.Coordinate[i] = model.Unset
	}

	for _, tag := range task.Tags {
		if !tag.IsVariable {
			applyLiteral(st, tag)
			continue
		}
		slot, ok := nameToSlot[tag.Name]
		if !ok {
			return nil, &UnmatchedVariableError{TagName: tag.Name}
		}
		variable := task.Variables[slot]
		idx := r.combo[slot]
		record := valuesForSlot(variable)[idx]
		applyVariable(st, tag, record)
		st.VariableTypesMap[slot] = tag.Type
		st.TypeToVariable[tag.Type] = slot
		st.Coordinate[slot] = idx
	}

	if r.batchIndex >= 0 && batchSlot >= 0 {
		st.Coordinate[batchSlot] = r.batchIndex
	}

	if len(st.Prompts) == 0 {
		st.Prompts = append(st.Prompts, model.PromptItem{
			Type:   model.PromptFreetext,
			Value:  "1girl",
			Weight: 1,
		})
	}
	if !strings.Contains(st.Ratio, ":") {
		st.Ratio = "1:1"
	}
	return st, nil
}

func applyLiteral(st *model.Subtask, tag model.Tag) {
	switch tag.Type {
	case model.TagPrompt:
		st.Prompts = append(st.Prompts, model.PromptItem{Type: model.PromptFreetext, Value: tag.Value, Weight: weightOrDefault(tag.Weight)})
	case model.TagCharacter:
		st.Prompts = append(st.Prompts, model.PromptItem{Type: model.PromptCharacter, Value: tag.Value, Name: tag.Name, Weight: weightOrDefault(tag.Weight)})
	case model.TagElement:
		st.Prompts = append(st.Prompts, model.PromptItem{Type: model.PromptElement, Value: tag.Value, Name: tag.Name, Weight: weightOrDefault(tag.Weight)})
	case model.TagRatio:
		st.Ratio = tag.Value
	case model.TagSeed:
		if n, err := strconv.ParseInt(strings.TrimSpace(tag.Value), 10, 64); err == nil {
			st.Seed = n
		}
	case model.TagPolish:
		st.UsePolish = parseTruthy(tag.Value)
	case model.TagCkptName:
		st.ClientArgs.CkptName = tag.Value
	case model.TagSteps:
		if n, err := strconv.Atoi(strings.TrimSpace(tag.Value)); err == nil {
			st.ClientArgs.Steps = n
		}
	case model.TagCfg:
		if f, err := strconv.ParseFloat(strings.TrimSpace(tag.Value), 64); err == nil {
			st.ClientArgs.Cfg = f
		}
	case model.TagBatch:
		// consumed by parseBatchSize; not itself a prompt/client-arg bucket.
	}
}

func applyVariable(st *model.Subtask, tag model.Tag, record model.ValueRecord) {
	switch tag.Type {
	case model.TagPrompt:
		st.Prompts = append(st.Prompts, model.PromptItem{Type: model.PromptFreetext, Value: record.Value, Weight: weightOrDefault(tag.Weight)})
	case model.TagCharacter:
		st.Prompts = append(st.Prompts, model.PromptItem{
			Type: model.PromptCharacter, Value: firstNonEmpty(record.UUID, record.Value), Name: tag.Name,
			Weight: weightOrDefault(tag.Weight), ImgURL: record.HeaderImg,
		})
	case model.TagElement:
		st.Prompts = append(st.Prompts, model.PromptItem{
			Type: model.PromptElement, Value: firstNonEmpty(record.UUID, record.Value), Name: tag.Name,
			Weight: weightOrDefault(tag.Weight), ImgURL: record.HeaderImg,
		})
	case model.TagRatio:
		st.Ratio = record.Value
	case model.TagSeed:
		if n, err := strconv.ParseInt(strings.TrimSpace(record.Value), 10, 64); err == nil {
			st.Seed = n
		}
	case model.TagPolish:
		st.UsePolish = parseTruthy(record.Value)
	case model.TagCkptName:
		st.ClientArgs.CkptName = record.Value
	case model.TagSteps:
		if n, err := strconv.Atoi(strings.TrimSpace(record.Value)); err == nil {
			st.ClientArgs.Steps = n
		}
	case model.TagCfg:
		if f, err := strconv.ParseFloat(strings.TrimSpace(record.Value), 64); err == nil {
			st.ClientArgs.Cfg = f
		}
	case model.TagBatch:
		// batch is never a variable slot in practice; ignored defensively.
	}
}

func weightOrDefault(w float64) float64 {
	if w == 0 {
		return 1
	}
	return w
}

func parseTruthy(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
