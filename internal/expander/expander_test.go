package expander

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sagan/gridgen/internal/model"
)

func buildBaseTask() *model.Task {
	return &model.Task{
		ID: "t1",
		Tags: []model.Tag{
			{ID: "g0", Type: model.TagPrompt, IsVariable: true, Name: "v0"},
			{ID: "g1", Type: model.TagPrompt, IsVariable: true, Name: "v1"},
		},
		Variables: map[int]*model.Variable{
			0: {Name: "v0", Values: []model.ValueRecord{{Value: "a"}, {Value: "b"}, {Value: "c"}}, ValuesCount: 3},
			1: {Name: "v1", Values: []model.ValueRecord{{Value: "x"}, {Value: "y"}}, ValuesCount: 2},
		},
	}
}

func TestExpand_S1_PureExpansion(t *testing.T) {
	task := buildBaseTask()

	subtasks, err := Expand(task)
	require.NoError(t, err)
	require.Len(t, subtasks, 6)

	seen := map[string]bool{}
	for _, st := range subtasks {
		key := st.Coordinate.IndexedKey()
		require.False(t, seen[key], "duplicate coordinate %s", key)
		seen[key] = true
		require.Equal(t, model.Unset, st.Coordinate[2])
		require.Equal(t, model.Unset, st.Coordinate[5])
	}
	for i0 := 0; i0 < 3; i0++ {
		for i1 := 0; i1 < 2; i1++ {
			var c model.Coordinate
			for k := range c {
				c[k] = model.Unset
			}
			c[0], c[1] = i0, i1
			require.True(t, seen[c.IndexedKey()])
		}
	}
}

func TestExpand_S2_Batch(t *testing.T) {
	task := buildBaseTask()
	task.Tags = append(task.Tags, model.Tag{ID: "gb", Type: model.TagBatch, Value: "3"})

	subtasks, err := Expand(task)
	require.NoError(t, err)
	require.Len(t, subtasks, 18)

	counts := map[string]int{}
	batchIdxSeen := map[int]bool{}
	for _, st := range subtasks {
		baseCoord := st.Coordinate
		baseCoord[5] = model.Unset
		counts[baseCoord.IndexedKey()]++
		batchIdxSeen[st.Coordinate[5]] = true
	}
	require.Len(t, counts, 6)
	for _, c := range counts {
		require.Equal(t, 3, c)
	}
	require.Equal(t, map[int]bool{0: true, 1: true, 2: true}, batchIdxSeen)
}

func TestExpand_UnmatchedVariable(t *testing.T) {
	task := &model.Task{
		ID: "t1",
		Tags: []model.Tag{
			{ID: "g0", Type: model.TagPrompt, IsVariable: true, Name: "ghost"},
		},
		Variables: map[int]*model.Variable{},
	}
	_, err := Expand(task)
	require.Error(t, err)
	require.IsType(t, &UnmatchedVariableError{}, err)
}

func TestExpand_EmptyValuesWithPositiveCountInsertsPlaceholders(t *testing.T) {
	task := &model.Task{
		ID: "t1",
		Tags: []model.Tag{
			{ID: "g0", Type: model.TagPrompt, IsVariable: true, Name: "v0"},
		},
		Variables: map[int]*model.Variable{
			0: {Name: "v0", Values: nil, ValuesCount: 3},
		},
	}
	subtasks, err := Expand(task)
	require.NoError(t, err)
	require.Len(t, subtasks, 3)

	seen := map[int]bool{}
	for _, st := range subtasks {
		seen[st.Coordinate[0]] = true
		require.Equal(t, "", st.Prompts[0].Value)
	}
	require.Equal(t, map[int]bool{0: true, 1: true, 2: true}, seen)
}

func TestExpand_DefaultsWhenNoPrompt(t *testing.T) {
	task := &model.Task{ID: "t1", Variables: map[int]*model.Variable{}}
	subtasks, err := Expand(task)
	require.NoError(t, err)
	require.Len(t, subtasks, 1)
	require.Equal(t, "1girl", subtasks[0].Prompts[0].Value)
	require.Equal(t, "1:1", subtasks[0].Ratio)
}
