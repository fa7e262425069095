package store

import (
	"context"
	"sync"

	"github.com/flowforge-ai/flowforge/types"
)

// MemoryStore keeps runs and tasks in process memory. Values are copied on
// the way in and out so callers never alias stored state.
type MemoryStore struct {
	mu        sync.RWMutex
	runs      map[string]*types.Run
	tasks     map[string]*types.Task
	taskOrder map[string][]string // run id -> task ids in creation order
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:      make(map[string]*types.Run),
		tasks:     make(map[string]*types.Task),
		taskOrder: make(map[string][]string),
	}
}

// SaveRun inserts or updates a run.
func (s *MemoryStore) SaveRun(_ context.Context, run *types.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = copyRun(run)
	return nil
}

// GetRun returns a copy of the run.
func (s *MemoryStore) GetRun(_ context.Context, id string) (*types.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, types.Errorf(types.ErrRunNotFound, "run %q not found", id)
	}
	return copyRun(run), nil
}

// SaveTask inserts or updates a task.
func (s *MemoryStore) SaveTask(_ context.Context, task *types.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; !exists {
		s.taskOrder[task.RunID] = append(s.taskOrder[task.RunID], task.ID)
	}
	s.tasks[task.ID] = copyTask(task)
	return nil
}

// GetTask returns a copy of the task.
func (s *MemoryStore) GetTask(_ context.Context, id string) (*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, types.Errorf(types.ErrRunNotFound, "task %q not found", id)
	}
	return copyTask(task), nil
}

// TasksForRun returns copies of the run's tasks in creation order.
func (s *MemoryStore) TasksForRun(_ context.Context, runID string) ([]*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.taskOrder[runID]
	tasks := make([]*types.Task, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, copyTask(s.tasks[id]))
	}
	return tasks, nil
}

// DeleteRun removes a run and all of its tasks.
func (s *MemoryStore) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return types.Errorf(types.ErrRunNotFound, "run %q not found", id)
	}
	delete(s.runs, id)
	for _, taskID := range s.taskOrder[id] {
		delete(s.tasks, taskID)
	}
	delete(s.taskOrder, id)
	return nil
}

func copyRun(run *types.Run) *types.Run {
	dup := *run
	if run.Frontier != nil {
		dup.Frontier = append([]string(nil), run.Frontier...)
	}
	if run.Outputs != nil {
		dup.Outputs = make(map[string]any, len(run.Outputs))
		for k, v := range run.Outputs {
			dup.Outputs[k] = v
		}
	}
	if run.CompletedAt != nil {
		at := *run.CompletedAt
		dup.CompletedAt = &at
	}
	return &dup
}

func copyTask(task *types.Task) *types.Task {
	dup := *task
	if task.CompletedAt != nil {
		at := *task.CompletedAt
		dup.CompletedAt = &at
	}
	return &dup
}
