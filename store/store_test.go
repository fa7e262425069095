package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge-ai/flowforge/types"
)

// storeUnderTest runs the same contract checks against every implementation.
func storeUnderTest(t *testing.T) map[string]RunStore {
	t.Helper()
	gormStore, err := OpenGorm("sqlite", ":memory:")
	require.NoError(t, err)
	return map[string]RunStore{
		"memory": NewMemoryStore(),
		"sqlite": gormStore,
	}
}

func sampleRun() *types.Run {
	return &types.Run{
		ID:         "run-1",
		WorkflowID: "wf-1",
		Status:     types.RunRunning,
		Frontier:   []string{"agent-1", "agent-2"},
		Outputs:    map[string]any{"input": "hello"},
		StartedAt:  time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestRunStore_SaveAndGetRun(t *testing.T) {
	t.Parallel()

	for name, s := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			run := sampleRun()
			require.NoError(t, s.SaveRun(ctx, run))

			got, err := s.GetRun(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, run.ID, got.ID)
			assert.Equal(t, types.RunRunning, got.Status)
			assert.Equal(t, []string{"agent-1", "agent-2"}, got.Frontier)
			assert.Equal(t, "hello", got.Outputs["input"])
		})
	}
}

func TestRunStore_UpdateRun(t *testing.T) {
	t.Parallel()

	for name, s := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			run := sampleRun()
			require.NoError(t, s.SaveRun(ctx, run))

			now := time.Now().UTC().Truncate(time.Millisecond)
			run.Status = types.RunCompleted
			run.Frontier = nil
			run.CompletedAt = &now
			require.NoError(t, s.SaveRun(ctx, run))

			got, err := s.GetRun(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, types.RunCompleted, got.Status)
			assert.Empty(t, got.Frontier)
			require.NotNil(t, got.CompletedAt)
		})
	}
}

func TestRunStore_GetRunNotFound(t *testing.T) {
	t.Parallel()

	for name, s := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.GetRun(context.Background(), "missing")
			require.Error(t, err)
			assert.Equal(t, types.ErrRunNotFound, types.GetErrorCode(err))
		})
	}
}

func TestRunStore_TasksForRun(t *testing.T) {
	t.Parallel()

	for name, s := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, node := range []string{"in", "agent", "out"} {
				task := &types.Task{
					ID:        "task-" + node,
					RunID:     "run-1",
					NodeID:    node,
					Status:    types.TaskCompleted,
					StartedAt: time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
				}
				require.NoError(t, s.SaveTask(ctx, task))
			}
			// Unrelated run.
			require.NoError(t, s.SaveTask(ctx, &types.Task{
				ID: "task-x", RunID: "run-2", NodeID: "x", Status: types.TaskPending, StartedAt: time.Now(),
			}))

			tasks, err := s.TasksForRun(ctx, "run-1")
			require.NoError(t, err)
			require.Len(t, tasks, 3)
			assert.Equal(t, "in", tasks[0].NodeID)
			assert.Equal(t, "out", tasks[2].NodeID)
		})
	}
}

func TestRunStore_TaskRoundTrip(t *testing.T) {
	t.Parallel()

	for name, s := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			task := &types.Task{
				ID:           "task-1",
				RunID:        "run-1",
				NodeID:       "agent",
				Status:       types.TaskFailed,
				AttemptCount: 2,
				TokensUsed:   512,
				CostUSD:      0.023,
				Output:       map[string]any{"summary": "done"},
				Error:        "[TOOL_TIMEOUT] tool timed out",
				StartedAt:    time.Now().UTC(),
			}
			require.NoError(t, s.SaveTask(ctx, task))

			got, err := s.GetTask(ctx, "task-1")
			require.NoError(t, err)
			assert.Equal(t, types.TaskFailed, got.Status)
			assert.Equal(t, 2, got.AttemptCount)
			assert.Equal(t, 512, got.TokensUsed)
			assert.InDelta(t, 0.023, got.CostUSD, 1e-9)
			assert.Equal(t, "[TOOL_TIMEOUT] tool timed out", got.Error)
			out, ok := got.Output.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "done", out["summary"])
		})
	}
}

func TestRunStore_DeleteRun(t *testing.T) {
	t.Parallel()

	for name, s := range storeUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			run := sampleRun()
			require.NoError(t, s.SaveRun(ctx, run))
			require.NoError(t, s.SaveTask(ctx, &types.Task{
				ID:        "task-1",
				RunID:     run.ID,
				NodeID:    "agent-1",
				Status:    types.TaskCompleted,
				StartedAt: time.Now().UTC(),
			}))

			require.NoError(t, s.DeleteRun(ctx, run.ID))

			_, err := s.GetRun(ctx, run.ID)
			require.Error(t, err)
			assert.Equal(t, types.ErrRunNotFound, types.GetErrorCode(err))

			tasks, err := s.TasksForRun(ctx, run.ID)
			require.NoError(t, err)
			assert.Empty(t, tasks)

			err = s.DeleteRun(ctx, run.ID)
			require.Error(t, err)
			assert.Equal(t, types.ErrRunNotFound, types.GetErrorCode(err))
		})
	}
}

func TestMemoryStore_CopiesOnWriteAndRead(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	run := sampleRun()
	require.NoError(t, s.SaveRun(ctx, run))

	// Mutating the original after save must not affect the stored copy.
	run.Frontier[0] = "mutated"

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", got.Frontier[0])

	// Mutating a read copy must not affect the store.
	got.Outputs["input"] = "mutated"
	again, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Outputs["input"])
}

func TestOpenGorm_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := OpenGorm("oracle", "dsn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}
