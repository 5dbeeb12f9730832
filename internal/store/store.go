// Package store implements the subtask store (C3): dedup'd bulk insert,
// atomic per-row status transitions, and the atomic parent-counter increment
// that drives task progress. It also holds the task records themselves
// (persistence of users/tasks is out of scope as a database, but the task
// and subtask records still need a concrete home for the orchestrator to
// read and write).
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"

	"github.com/sagan/gridgen/internal/model"
)

var logger = log.WithField("component", "store")

// ErrNotFound is returned when a task or subtask id is unknown.
var ErrNotFound = fmt.Errorf("store: not found")

// ErrTerminal is returned when a status update targets a subtask that has
// already reached a terminal state.
var ErrTerminal = fmt.Errorf("store: subtask already terminal")

// Store holds tasks and their subtasks in memory, guarded by one mutex; a
// read-through go-cache layer in front of task reads mirrors the Redis
// read-through cache the original task CRUD used, without needing an actual
// external cache since persistent storage is out of scope here.
type Store struct {
	mu sync.Mutex

	tasks    map[string]*model.Task
	subtasks map[string]*model.Subtask
	// byCoordinate indexes subtask id by (parent_task_id, indexed_key) for
	// the dedup check in CreateBatch; seed==0 subtasks are deliberately
	// excluded from this index so duplicates are allowed for them.
	byCoordinate map[string]string

	taskCache *gocache.Cache
}

func New() *Store {
	return &Store{
		tasks:        map[string]*model.Task{},
		subtasks:     map[string]*model.Subtask{},
		byCoordinate: map[string]string{},
		taskCache:    gocache.New(30*time.Second, time.Minute),
	}
}

func coordKey(taskID, indexedKey string) string {
	return taskID + "|" + indexedKey
}

// CreateTask inserts a new task record with the status the caller set on it.
func (s *Store) CreateTask(task *model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	task.CreatedAt, task.UpdatedAt = now, now
	s.tasks[task.ID] = task
	s.taskCache.Delete(task.ID)
}

// GetTask reads a task, read-through the cache.
func (s *Store) GetTask(id string) (*model.Task, error) {
	if cached, ok := s.taskCache.Get(id); ok {
		t := cached.(model.Task)
		return &t, nil
	}
	s.mu.Lock()
	t, ok := s.tasks[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	s.taskCache.Set(id, cp, gocache.DefaultExpiration)
	return &cp, nil
}

// UpdateTask applies mutate under lock and invalidates the cache entry.
func (s *Store) UpdateTask(id string, mutate func(*model.Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	mutate(t)
	t.UpdatedAt = time.Now()
	s.taskCache.Delete(id)
	return nil
}

// TaskFilter narrows ListTasks, mirroring the original's pagination/status/
// name-search list_tasks.
type TaskFilter struct {
	Statuses   []model.TaskStatus
	NameSubstr string
	Offset     int
	Limit      int
}

// ListTasks returns non-deleted tasks matching filter, newest first.
func (s *Store) ListTasks(filter TaskFilter) []*model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	statusSet := map[model.TaskStatus]bool{}
	for _, st := range filter.Statuses {
		statusSet[st] = true
	}

	matches := make([]*model.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.IsDeleted {
			continue
		}
		if len(statusSet) > 0 && !statusSet[t.Status] {
			continue
		}
		if filter.NameSubstr != "" && !strings.Contains(strings.ToLower(t.Name), strings.ToLower(filter.NameSubstr)) {
			continue
		}
		cp := *t
		matches = append(matches, &cp)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })

	if filter.Offset > len(matches) {
		return nil
	}
	end := len(matches)
	if filter.Limit > 0 && filter.Offset+filter.Limit < end {
		end = filter.Offset + filter.Limit
	}
	return matches[filter.Offset:end]
}

// CreateBatch atomically bulk-inserts subtask specs, skipping any whose
// (parent_task_id, coordinate) already exists - unless Seed == 0, which
// explicitly disables dedup. Returns the subtasks actually inserted.
func (s *Store) CreateBatch(specs []*model.Subtask) []*model.Subtask {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := make([]*model.Subtask, 0, len(specs))
	now := time.Now()
	for _, spec := range specs {
		key := coordKey(spec.ParentTaskID, spec.Coordinate.IndexedKey())
		if spec.Seed != 0 {
			if _, exists := s.byCoordinate[key]; exists {
				continue
			}
		}
		spec.Status = model.SubtaskPending
		spec.CreatedAt, spec.UpdatedAt = now, now
		s.subtasks[spec.ID] = spec
		if spec.Seed != 0 {
			s.byCoordinate[key] = spec.ID
		}
		inserted = append(inserted, spec)
	}
	logger.WithFields(log.Fields{"requested": len(specs), "inserted": len(inserted)}).Debug("batch insert")
	return inserted
}

// GetExistingByIndices looks up already-created subtasks for a set of
// coordinates, so a caller can avoid recreating them on re-dispatch. The
// orchestrator does not call it; it relies on CreateBatch's own dedup.
func (s *Store) GetExistingByIndices(taskID string, coords []model.Coordinate) map[string]*model.Subtask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*model.Subtask, len(coords))
	for _, c := range coords {
		key := c.IndexedKey()
		if id, ok := s.byCoordinate[coordKey(taskID, key)]; ok {
			if st, ok := s.subtasks[id]; ok {
				out[key] = st
			}
		}
	}
	return out
}

func (s *Store) GetSubtask(id string) (*model.Subtask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.subtasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *st
	return &cp, nil
}

// SubtasksByParent returns all subtasks of a task.
func (s *Store) SubtasksByParent(taskID string) []*model.Subtask {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Subtask, 0)
	for _, st := range s.subtasks {
		if st.ParentTaskID == taskID {
			cp := *st
			out = append(out, &cp)
		}
	}
	return out
}

// StatusUpdate describes an UpdateStatus call's optional fields.
type StatusUpdate struct {
	Error          string
	IncrementRetry bool
}

// UpdateStatus transitions a subtask to newStatus; it never allows leaving a
// terminal state, stamps StartedAt on first entry to Processing and
// CompletedAt on any terminal entry, and - on the terminal transition -
// advances the parent's processed_images counter.
func (s *Store) UpdateStatus(id string, newStatus model.SubtaskStatus, upd StatusUpdate) error {
	s.mu.Lock()
	st, ok := s.subtasks[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if st.Status.Terminal() {
		s.mu.Unlock()
		return ErrTerminal
	}

	now := time.Now()
	wasNonTerminal := !st.Status.Terminal()
	becomingTerminal := newStatus.Terminal()

	if newStatus == model.SubtaskProcessing && st.StartedAt == nil {
		st.StartedAt = &now
	}
	if upd.IncrementRetry {
		st.RetryCount++
	}
	if upd.Error != "" {
		st.Error = upd.Error
	}
	st.Status = newStatus
	st.UpdatedAt = now
	if becomingTerminal {
		st.CompletedAt = &now
	}
	parentID := st.ParentTaskID
	s.mu.Unlock()

	if wasNonTerminal && becomingTerminal {
		s.onSubtaskTerminal(parentID)
	}
	return nil
}

// SetResult writes a successful result and transitions the subtask to
// completed, advancing the parent counter exactly once.
func (s *Store) SetResult(id string, result model.Result) error {
	s.mu.Lock()
	st, ok := s.subtasks[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if st.Status.Terminal() {
		s.mu.Unlock()
		return ErrTerminal
	}
	now := time.Now()
	st.Result = &result
	st.Status = model.SubtaskCompleted
	st.UpdatedAt = now
	st.CompletedAt = &now
	parentID := st.ParentTaskID
	s.mu.Unlock()

	s.onSubtaskTerminal(parentID)
	return nil
}

// onSubtaskTerminal is the store-owned atomic counter update: the subtask
// never touches parent fields directly, it only triggers this increment.
func (s *Store) onSubtaskTerminal(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return
	}
	if t.ProcessedImages < t.TotalImages {
		t.ProcessedImages++
	}
	t.RecomputeProgress()
	t.UpdatedAt = time.Now()
	s.taskCache.Delete(taskID)
}

// CountsByStatus aggregates subtask counts for the monitor's poll.
type Counts struct {
	Total, Completed, Failed, Processing, Pending, Cancelled int
}

func (s *Store) CountsByStatus(taskID string) Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c Counts
	for _, st := range s.subtasks {
		if st.ParentTaskID != taskID {
			continue
		}
		c.Total++
		switch st.Status {
		case model.SubtaskCompleted:
			c.Completed++
		case model.SubtaskFailed:
			c.Failed++
		case model.SubtaskProcessing:
			c.Processing++
		case model.SubtaskPending:
			c.Pending++
		case model.SubtaskCancelled:
			c.Cancelled++
		}
	}
	return c
}

// DeleteTaskAndSubtasks hard-removes a task and all its subtasks, used by
// the periodic expiry sweep; never called on a task that isn't already
// soft-deleted.
func (s *Store) DeleteTaskAndSubtasks(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
	s.taskCache.Delete(taskID)
	for id, st := range s.subtasks {
		if st.ParentTaskID == taskID {
			delete(s.subtasks, id)
			delete(s.byCoordinate, coordKey(taskID, st.Coordinate.IndexedKey()))
		}
	}
}

// ExpiredDeletedTasks returns soft-deleted tasks whose DeletedAt predates
// cutoff, candidates for the sweep's hard removal.
func (s *Store) ExpiredDeletedTasks(cutoff time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, t := range s.tasks {
		if t.IsDeleted && t.DeletedAt != nil && t.DeletedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}
