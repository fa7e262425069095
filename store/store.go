package store

import (
	"context"

	"github.com/flowforge-ai/flowforge/types"
)

// RunStore persists runs and their tasks.
type RunStore interface {
	// SaveRun inserts or updates a run.
	SaveRun(ctx context.Context, run *types.Run) error
	// GetRun returns the run with the given id, or ErrRunNotFound.
	GetRun(ctx context.Context, id string) (*types.Run, error)
	// SaveTask inserts or updates a task.
	SaveTask(ctx context.Context, task *types.Task) error
	// GetTask returns the task with the given id, or ErrRunNotFound.
	GetTask(ctx context.Context, id string) (*types.Task, error)
	// TasksForRun returns every task of a run in creation order.
	TasksForRun(ctx context.Context, runID string) ([]*types.Task, error)
	// DeleteRun removes a run and its tasks, or ErrRunNotFound.
	DeleteRun(ctx context.Context, id string) error
}
