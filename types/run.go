package types

import "time"

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	RunPending         RunStatus = "pending"
	RunRunning         RunStatus = "running"
	RunWaitingForHuman RunStatus = "waiting_for_human"
	RunCompleted       RunStatus = "completed"
	RunFailed          RunStatus = "failed"
	RunCancelled       RunStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}

// TaskStatus is the lifecycle state of one node's execution within a run.
type TaskStatus string

const (
	TaskPending         TaskStatus = "pending"
	TaskRunning         TaskStatus = "running"
	TaskRetrying        TaskStatus = "retrying"
	TaskWaitingForHuman TaskStatus = "waiting_for_human"
	TaskCompleted       TaskStatus = "completed"
	TaskFailed          TaskStatus = "failed"
	TaskCancelled       TaskStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// Run is one execution of a workflow. It is created by the engine's Start,
// mutated only by the engine that owns it, and archived once terminal.
type Run struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflow_id"`
	Status      RunStatus      `json:"status"`
	Frontier    []string       `json:"frontier,omitempty"`
	Outputs     map[string]any `json:"outputs,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Task is one node's execution within a run. The engine owns task state
// exclusively; executors only report results back.
type Task struct {
	ID           string     `json:"id"`
	RunID        string     `json:"run_id"`
	NodeID       string     `json:"node_id"`
	Status       TaskStatus `json:"status"`
	AttemptCount int        `json:"attempt_count"`
	TokensUsed   int        `json:"tokens_used"`
	CostUSD      float64    `json:"cost_usd"`
	Output       any        `json:"output,omitempty"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}
