// Package matrix implements the result-matrix assembler (C9): given a
// task's completed subtasks, it produces the indexed_key -> url map that
// the external matrix response surfaces.
package matrix

import (
	"github.com/sagan/gridgen/internal/model"
)

// Build produces {indexed_key -> url}. When two completed subtasks share an
// indexed_key (possible when Seed == 0 disables dedup), the one with the
// later UpdatedAt wins; ties break on subtask id, lexicographically.
func Build(subtasks []*model.Subtask) map[string]string {
	winners := map[string]*model.Subtask{}

	for _, st := range subtasks {
		if st.Status != model.SubtaskCompleted || st.Result == nil {
			continue
		}
		key := st.Coordinate.IndexedKey()
		cur, exists := winners[key]
		if !exists || beats(st, cur) {
			winners[key] = st
		}
	}

	out := make(map[string]string, len(winners))
	for key, st := range winners {
		out[key] = st.Result.URL
	}
	return out
}

func beats(candidate, current *model.Subtask) bool {
	if candidate.UpdatedAt.After(current.UpdatedAt) {
		return true
	}
	if candidate.UpdatedAt.Before(current.UpdatedAt) {
		return false
	}
	return candidate.ID < current.ID
}
