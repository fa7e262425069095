package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flowforge-ai/flowforge/executor"
	"github.com/flowforge-ai/flowforge/graph"
	"github.com/flowforge-ai/flowforge/internal/metrics"
	"github.com/flowforge-ai/flowforge/ledger"
	"github.com/flowforge-ai/flowforge/sandbox"
	"github.com/flowforge-ai/flowforge/store"
	"github.com/flowforge-ai/flowforge/types"
)

// Defaults for engine options.
const (
	DefaultMaxConcurrency = 4
	DefaultMaxAttempts    = 3
	DefaultRetryBaseDelay = time.Second
	maxRetryDelay         = 30 * time.Second
)

// Options configures an Engine.
type Options struct {
	Store    store.RunStore
	Ledger   *ledger.Ledger
	Executor *executor.Executor
	Sandbox  *sandbox.Sandbox
	Logger   *zap.Logger
	Metrics  *metrics.Collector

	// MaxConcurrency bounds parallel node execution within one wave.
	MaxConcurrency int
	// MaxAttempts is the default retry budget for retryable task errors.
	// Node config can override it per node.
	MaxAttempts int
	// RetryBaseDelay is the first backoff delay; it doubles per attempt.
	RetryBaseDelay time.Duration
	// CostCapUSD stops the run once its ledger total exceeds it. Zero
	// means no cap.
	CostCapUSD float64
	// HumanTimeout fails a waiting human task after this long. A human
	// node's own Timeout overrides it. Zero means wait indefinitely.
	HumanTimeout time.Duration
}

// Engine executes workflow runs. One engine instance owns the state of every
// run it started; runs never share mutable state except the cost ledger.
type Engine struct {
	store      store.RunStore
	ledger     *ledger.Ledger
	executor   *executor.Executor
	sandbox    *sandbox.Sandbox
	logger     *zap.Logger
	metrics    *metrics.Collector
	maxConc    int
	maxAttempt int
	baseDelay  time.Duration
	costCap    float64
	humanWait  time.Duration

	mu   sync.Mutex
	runs map[string]*runController
}

// New creates an engine. Every option has a usable default.
func New(opts Options) *Engine {
	if opts.Store == nil {
		opts.Store = store.NewMemoryStore()
	}
	if opts.Ledger == nil {
		opts.Ledger = ledger.New(opts.Logger)
	}
	if opts.Sandbox == nil {
		opts.Sandbox = sandbox.New(sandbox.Options{Logger: opts.Logger})
	}
	if opts.Executor == nil {
		opts.Executor = executor.New(executor.Options{
			Sandbox: opts.Sandbox,
			Ledger:  opts.Ledger,
			Logger:  opts.Logger,
		})
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = DefaultRetryBaseDelay
	}
	return &Engine{
		store:      opts.Store,
		ledger:     opts.Ledger,
		executor:   opts.Executor,
		sandbox:    opts.Sandbox,
		logger:     opts.Logger.With(zap.String("component", "workflow_engine")),
		metrics:    opts.Metrics,
		maxConc:    opts.MaxConcurrency,
		maxAttempt: opts.MaxAttempts,
		baseDelay:  opts.RetryBaseDelay,
		costCap:    opts.CostCapUSD,
		humanWait:  opts.HumanTimeout,
		runs:       make(map[string]*runController),
	}
}

// Start validates the graph and, if valid, begins executing it
// asynchronously with the given initial input. It returns the new run id
// immediately; validation failures are returned synchronously and no run is
// created.
func (e *Engine) Start(ctx context.Context, g *graph.Graph, workflowID string, input any) (string, error) {
	if res := graph.Validate(g); !res.Valid {
		return "", res.Err()
	}

	ctrl, err := newRunController(e, g, workflowID, input)
	if err != nil {
		return "", err
	}
	if err := e.store.SaveRun(ctx, ctrl.snapshotRun()); err != nil {
		return "", err
	}

	e.mu.Lock()
	e.runs[ctrl.run.ID] = ctrl
	e.mu.Unlock()

	e.metrics.RunStarted()
	go func() {
		ctrl.loop()
		e.mu.Lock()
		delete(e.runs, ctrl.run.ID)
		e.mu.Unlock()
	}()
	return ctrl.run.ID, nil
}

// Status returns the current state snapshot of a run.
func (e *Engine) Status(ctx context.Context, runID string) (*types.Run, error) {
	return e.store.GetRun(ctx, runID)
}

// Tasks returns the run's tasks in creation order.
func (e *Engine) Tasks(ctx context.Context, runID string) ([]*types.Task, error) {
	return e.store.TasksForRun(ctx, runID)
}

// Resume provides the input a human node is waiting for. It is only valid
// while the run is waiting for a human at that node.
func (e *Engine) Resume(ctx context.Context, runID, nodeID string, input any) error {
	e.mu.Lock()
	ctrl, ok := e.runs[runID]
	e.mu.Unlock()
	if !ok {
		run, err := e.store.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		return types.Errorf(types.ErrInvalidTransition,
			"run %s is %s, not waiting for human input", runID, run.Status)
	}
	return ctrl.resume(nodeID, input)
}

// Cancel marks the run cancelled and stops dispatching new waves. In-flight
// tasks finish but their outputs are discarded from subsequent decisions.
func (e *Engine) Cancel(ctx context.Context, runID string) error {
	e.mu.Lock()
	ctrl, ok := e.runs[runID]
	e.mu.Unlock()
	if !ok {
		run, err := e.store.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if run.Status.Terminal() {
			return types.Errorf(types.ErrInvalidTransition, "run %s is already %s", runID, run.Status)
		}
		return nil
	}
	if run := ctrl.snapshotRun(); run.Status.Terminal() {
		return types.Errorf(types.ErrInvalidTransition, "run %s is already %s", runID, run.Status)
	}
	ctrl.cancel()
	return nil
}

// Archive removes a terminal run and its tasks from the store. Active runs
// cannot be archived.
func (e *Engine) Archive(ctx context.Context, runID string) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if !run.Status.Terminal() {
		return types.Errorf(types.ErrInvalidTransition, "run %s is still %s", runID, run.Status)
	}
	return e.store.DeleteRun(ctx, runID)
}

// Wait blocks until the run reaches a terminal status or ctx is done, and
// returns the final snapshot.
func (e *Engine) Wait(ctx context.Context, runID string) (*types.Run, error) {
	e.mu.Lock()
	ctrl, ok := e.runs[runID]
	e.mu.Unlock()
	if ok {
		select {
		case <-ctrl.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return e.store.GetRun(ctx, runID)
}
