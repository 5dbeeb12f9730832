package matrix

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sagan/gridgen/internal/model"
)

func completed(id string, c model.Coordinate, url string, updatedAt time.Time) *model.Subtask {
	return &model.Subtask{
		ID: id, Coordinate: c, Status: model.SubtaskCompleted,
		Result: &model.Result{URL: url}, UpdatedAt: updatedAt,
	}
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

func TestBuild_RoundTripKey(t *testing.T) {
	c := coord(0, 1)
	subtasks := []*model.Subtask{completed("s1", c, "http://a", time.Now())}
	m := Build(subtasks)
	require.Equal(t, "http://a", m["0,1,,,,"])

	decoded, ok := model.ParseIndexedKey("0,1,,,,")
	require.True(t, ok)
	require.Equal(t, c, decoded)
}

func TestBuild_TieBreakByLatestUpdatedAt(t *testing.T) {
	c := coord(0, 0)
	t0 := time.Now()
	subtasks := []*model.Subtask{
		completed("s1", c, "http://old", t0),
		completed("s2", c, "http://new", t0.Add(time.Second)),
	}
	m := Build(subtasks)
	require.Equal(t, "http://new", m[c.IndexedKey()])
}

func TestBuild_TieBreakByIDWhenTimesEqual(t *testing.T) {
	c := coord(0, 0)
	t0 := time.Now()
	subtasks := []*model.Subtask{
		completed("s2", c, "http://s2", t0),
		completed("s1", c, "http://s1", t0),
	}
	m := Build(subtasks)
	require.Equal(t, "http://s1", m[c.IndexedKey()])
}

func TestBuild_IgnoresIncomplete(t *testing.T) {
	subtasks := []*model.Subtask{
		{ID: "s1", Coordinate: coord(0), Status: model.SubtaskFailed},
	}
	m := Build(subtasks)
	require.Empty(t, m)
}
