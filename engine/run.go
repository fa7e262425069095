package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/flowforge-ai/flowforge/executor"
	"github.com/flowforge-ai/flowforge/graph"
	"github.com/flowforge-ai/flowforge/sandbox"
	"github.com/flowforge-ai/flowforge/types"
)

// nodeState tracks one node's progress within a run. The two cancelled
// states are distinguished internally: a skip means the node sat behind a
// branch that was not taken, a failure cascade means an upstream node failed
// fatally. Joins dispatch as long as at least one predecessor completed and
// none failed, so a skipped sibling never blocks a downstream merge.
type nodeState int

const (
	statePending nodeState = iota
	stateWaitingHuman
	stateCompleted
	stateFailed
	stateCancelledSkip
	stateCancelledFailure
)

type nodeOutcome struct {
	state  nodeState
	output any
	err    error
}

type branchGuard struct {
	label string
	cond  *Condition // nil means the branch always matches
}

// waitDeadline bounds one parked human node. The node's own Timeout wins
// over the engine-wide default; zero on both means wait indefinitely.
type waitDeadline struct {
	deadline time.Time
	limit    time.Duration
}

// runController owns all mutable state of one run. The loop goroutine is the
// only writer of run status and frontier; node goroutines and Resume calls
// mutate outcomes and tasks under the controller mutex.
type runController struct {
	eng   *Engine
	graph *graph.Graph
	input any

	conditions map[string]*Condition
	guards     map[string][]branchGuard

	logger *zap.Logger

	mu       sync.Mutex
	run      *types.Run
	outcomes map[string]*nodeOutcome
	tasks    map[string]*types.Task
	blocked  map[string]bool         // edge id -> excluded by a decision or branch
	waits    map[string]waitDeadline // human node id -> timeout bound

	wakeCh     chan struct{}
	cancelCh   chan struct{}
	cancelOnce sync.Once
	done       chan struct{}
}

func newRunController(e *Engine, g *graph.Graph, workflowID string, input any) (*runController, error) {
	conditions := make(map[string]*Condition)
	guards := make(map[string][]branchGuard)
	for _, n := range g.Nodes() {
		switch n.Kind {
		case graph.KindDecision:
			cond, err := CompileCondition(n.Config.Condition)
			if err != nil {
				return nil, types.Errorf(types.ErrWorkflowInvalid,
					"decision node %s: invalid condition", n.ID).WithCause(err).WithNode(n.ID)
			}
			conditions[n.ID] = cond
		case graph.KindBranch:
			if n.Config.BranchMode != graph.BranchConditional {
				continue
			}
			for _, spec := range n.Config.Branches {
				var cond *Condition
				if spec.When != "" {
					var err error
					cond, err = CompileCondition(spec.When)
					if err != nil {
						return nil, types.Errorf(types.ErrWorkflowInvalid,
							"branch node %s: invalid guard for %q", n.ID, spec.Label).WithCause(err).WithNode(n.ID)
					}
				}
				guards[n.ID] = append(guards[n.ID], branchGuard{label: spec.Label, cond: cond})
			}
		}
	}

	run := &types.Run{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Status:     types.RunPending,
		Outputs:    make(map[string]any),
		StartedAt:  time.Now(),
	}
	outcomes := make(map[string]*nodeOutcome, g.Len())
	for _, id := range g.NodeIDs() {
		outcomes[id] = &nodeOutcome{}
	}

	return &runController{
		eng:        e,
		graph:      g,
		input:      input,
		conditions: conditions,
		guards:     guards,
		logger:     e.logger.With(zap.String("run_id", run.ID), zap.String("workflow_id", workflowID)),
		run:        run,
		outcomes:   outcomes,
		tasks:      make(map[string]*types.Task),
		blocked:    make(map[string]bool),
		waits:      make(map[string]waitDeadline),
		wakeCh:     make(chan struct{}, 1),
		cancelCh:   make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

func (c *runController) snapshotRun() *types.Run {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := *c.run
	return &snap
}

func (c *runController) cancel() {
	c.cancelOnce.Do(func() { close(c.cancelCh) })
}

func (c *runController) isCancelled() bool {
	select {
	case <-c.cancelCh:
		return true
	default:
		return false
	}
}

// resume completes a waiting human node with the supplied input and wakes the
// loop. Valid only while the node's task is waiting.
func (c *runController) resume(nodeID string, input any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	oc, ok := c.outcomes[nodeID]
	if !ok {
		return types.Errorf(types.ErrInvalidTransition, "run %s has no node %s", c.run.ID, nodeID)
	}
	if oc.state != stateWaitingHuman {
		return types.Errorf(types.ErrInvalidTransition,
			"node %s in run %s is not waiting for human input", nodeID, c.run.ID)
	}

	oc.state = stateCompleted
	oc.output = input
	delete(c.waits, nodeID)
	c.run.Outputs[nodeID] = input
	c.completeTaskLocked(nodeID, input)
	c.logger.Info("human input received", zap.String("node_id", nodeID))

	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
	return nil
}

// loop drives the run to a terminal status in frontier waves.
func (c *runController) loop() {
	defer close(c.done)
	ctx := context.Background()
	start := time.Now()
	c.setRunStatus(ctx, types.RunRunning)

	for {
		if c.isCancelled() {
			c.finish(ctx, types.RunCancelled, "", start)
			return
		}

		ready, waiting := c.advance(ctx)
		if len(ready) == 0 {
			if waiting > 0 {
				if !c.park(ctx) {
					c.finish(ctx, types.RunCancelled, "", start)
					return
				}
				continue
			}
			break
		}

		c.setFrontier(ctx, ready)
		wave := &errgroup.Group{}
		wave.SetLimit(c.eng.maxConc)
		for _, nodeID := range ready {
			nodeID := nodeID
			wave.Go(func() error {
				c.executeNode(ctx, nodeID)
				return nil
			})
		}
		_ = wave.Wait()

		if c.eng.costCap > 0 {
			total := c.eng.ledger.TotalFor(c.run.ID)
			if total.CostUSD > c.eng.costCap {
				msg := fmt.Sprintf("[%s] run cost $%.6f exceeds cap $%.6f",
					types.ErrCostCapExceeded, total.CostUSD, c.eng.costCap)
				c.finish(ctx, types.RunFailed, msg, start)
				return
			}
		}
	}

	status, errMsg := c.terminalOutcome()
	c.finish(ctx, status, errMsg, start)
}

// advance applies cascade cancellations until stable, parks newly reachable
// human nodes, and returns the dispatchable node ids plus the count of nodes
// waiting for a human.
func (c *runController) advance(ctx context.Context) ([]string, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ready []string
	for changed := true; changed; {
		changed = false
		ready = ready[:0]
		for _, id := range c.graph.NodeIDs() {
			if c.outcomes[id].state != statePending {
				continue
			}
			dispatch, cascade, settled := c.classifyLocked(id)
			switch {
			case cascade != statePending:
				c.cancelNodeLocked(ctx, id, cascade)
				changed = true
			case dispatch && settled:
				node, _ := c.graph.Node(id)
				if node.Kind == graph.KindHuman {
					c.parkHumanLocked(ctx, id)
					changed = true
				} else {
					ready = append(ready, id)
				}
			}
		}
	}

	waiting := 0
	for _, oc := range c.outcomes {
		if oc.state == stateWaitingHuman {
			waiting++
		}
	}
	return ready, waiting
}

// classifyLocked decides what to do with a pending node given its
// predecessors: dispatch it, cascade a cancellation, or keep waiting.
func (c *runController) classifyLocked(id string) (dispatch bool, cascade nodeState, settled bool) {
	inEdges := c.graph.InEdges(id)
	if len(inEdges) == 0 {
		return true, statePending, true
	}

	contributing := 0
	anyFailure := false
	for _, e := range inEdges {
		src := c.outcomes[e.Source]
		switch src.state {
		case statePending, stateWaitingHuman:
			return false, statePending, false
		case stateFailed, stateCancelledFailure:
			anyFailure = true
		case stateCompleted:
			if !c.blocked[e.ID] {
				contributing++
			}
		}
	}

	if anyFailure {
		return false, stateCancelledFailure, true
	}
	if contributing > 0 {
		return true, statePending, true
	}
	// Every predecessor finished but none selected this node.
	return false, stateCancelledSkip, true
}

// cancelNodeLocked records a cancelled task for a node that will never run.
func (c *runController) cancelNodeLocked(ctx context.Context, nodeID string, state nodeState) {
	c.outcomes[nodeID].state = state
	now := time.Now()
	task := &types.Task{
		ID:          uuid.NewString(),
		RunID:       c.run.ID,
		NodeID:      nodeID,
		Status:      types.TaskCancelled,
		StartedAt:   now,
		CompletedAt: &now,
	}
	c.tasks[nodeID] = task
	c.saveTaskLocked(ctx, task)

	node, _ := c.graph.Node(nodeID)
	c.eng.metrics.TaskFinished(string(types.TaskCancelled), string(node.Kind))
	c.logger.Debug("node cancelled",
		zap.String("node_id", nodeID),
		zap.Bool("upstream_failure", state == stateCancelledFailure),
	)
}

// parkHumanLocked creates a waiting task for a human node and records its
// timeout bound.
func (c *runController) parkHumanLocked(ctx context.Context, nodeID string) {
	c.outcomes[nodeID].state = stateWaitingHuman
	task := &types.Task{
		ID:        uuid.NewString(),
		RunID:     c.run.ID,
		NodeID:    nodeID,
		Status:    types.TaskWaitingForHuman,
		StartedAt: time.Now(),
	}
	c.tasks[nodeID] = task
	c.saveTaskLocked(ctx, task)

	node, _ := c.graph.Node(nodeID)
	limit := node.Config.Timeout.Std()
	if limit <= 0 {
		limit = c.eng.humanWait
	}
	if limit > 0 {
		c.waits[nodeID] = waitDeadline{deadline: time.Now().Add(limit), limit: limit}
	}
	c.logger.Info("waiting for human input",
		zap.String("node_id", nodeID),
		zap.String("assignee", node.Config.Assignee),
		zap.Duration("timeout", limit),
	)
}

// park suspends the loop until a resume, the nearest human timeout, or
// cancellation. It returns false when the run was cancelled.
func (c *runController) park(ctx context.Context) bool {
	c.setRunStatus(ctx, types.RunWaitingForHuman)

	var timeout <-chan time.Time
	if deadline, ok := c.earliestDeadline(); ok {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-c.wakeCh:
	case <-timeout:
		c.expireWaiting(ctx)
	case <-c.cancelCh:
		return false
	}
	c.setRunStatus(ctx, types.RunRunning)
	return true
}

// earliestDeadline reports the soonest timeout among the waiting human nodes.
func (c *runController) earliestDeadline() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var earliest time.Time
	for _, w := range c.waits {
		if earliest.IsZero() || w.deadline.Before(earliest) {
			earliest = w.deadline
		}
	}
	return earliest, !earliest.IsZero()
}

// expireWaiting fails every waiting human node whose deadline has passed.
// Nodes with later deadlines, or none, keep waiting.
func (c *runController) expireWaiting(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for _, id := range c.graph.NodeIDs() {
		oc := c.outcomes[id]
		if oc.state != stateWaitingHuman {
			continue
		}
		w, ok := c.waits[id]
		if !ok || now.Before(w.deadline) {
			continue
		}
		delete(c.waits, id)
		err := types.Errorf(types.ErrHumanTimeout,
			"no human input within %s", w.limit).WithNode(id)
		oc.state = stateFailed
		oc.err = err
		c.failTaskLocked(ctx, id, err)
		node, _ := c.graph.Node(id)
		c.eng.metrics.TaskFinished(string(types.TaskFailed), string(node.Kind))
		c.logger.Warn("human input timed out",
			zap.String("node_id", id),
			zap.Duration("timeout", w.limit),
		)
	}
}

// executeNode runs one node to a terminal task status, retrying retryable
// errors with exponential backoff.
func (c *runController) executeNode(ctx context.Context, nodeID string) {
	node, _ := c.graph.Node(nodeID)
	task := c.startTask(ctx, nodeID)

	maxAttempts := node.Config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = c.eng.maxAttempt
	}

	var out any
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		c.setTaskAttempt(ctx, task, attempt)
		out, err = c.handle(ctx, node, task)
		if err == nil || !types.IsRetryable(err) || attempt == maxAttempts {
			break
		}

		c.setTaskStatus(ctx, task, types.TaskRetrying)
		c.eng.metrics.TaskRetried()
		delay := c.backoff(attempt)
		c.logger.Warn("task attempt failed, retrying",
			zap.String("node_id", nodeID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		select {
		case <-time.After(delay):
			c.setTaskStatus(ctx, task, types.TaskRunning)
		case <-c.cancelCh:
			c.abortNode(ctx, node, task)
			return
		}
	}

	if err != nil {
		c.failNode(ctx, node, task, err)
		return
	}
	c.completeNode(ctx, node, task, out)
}

func (c *runController) backoff(attempt int) time.Duration {
	delay := c.eng.baseDelay << (attempt - 1)
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

// handle dispatches a node to its kind handler. Human nodes never reach
// here; they are parked by advance.
func (c *runController) handle(ctx context.Context, node graph.Node, task *types.Task) (any, error) {
	if node.Config.Timeout.Std() > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, node.Config.Timeout.Std())
		defer cancel()
	}

	switch node.Kind {
	case graph.KindInput:
		return c.input, nil
	case graph.KindOutput:
		return c.nodeInput(node.ID), nil
	case graph.KindAgent:
		return c.runAgent(ctx, node, task)
	case graph.KindAction:
		return c.runAction(ctx, node)
	case graph.KindDecision:
		return c.runDecision(node)
	case graph.KindBranch:
		return c.runBranch(node)
	default:
		return nil, types.Errorf(types.ErrInternal, "no handler for node kind %q", node.Kind)
	}
}

func (c *runController) runAgent(ctx context.Context, node graph.Node, task *types.Task) (any, error) {
	agentID := node.Config.AgentID
	if agentID == "" {
		agentID = node.ID
	}
	result, err := c.eng.executor.Execute(ctx, executor.Request{
		RunID:        c.run.ID,
		TaskID:       task.ID,
		NodeID:       node.ID,
		AgentID:      agentID,
		Model:        node.Config.Model,
		Instructions: node.Config.Instructions,
		Input:        stringifyInput(c.nodeInput(node.ID)),
		Tools:        node.Config.Tools,
	})
	if err != nil {
		return nil, err
	}
	return result.Response, nil
}

func (c *runController) runAction(ctx context.Context, node graph.Node) (any, error) {
	if node.Config.Tool == "" {
		return nil, types.Errorf(types.ErrToolValidation, "action node %s has no tool", node.ID)
	}
	principal := sandbox.Principal{
		ID:           "run:" + c.run.ID,
		AllowedTools: []string{node.Config.Tool},
	}
	return c.eng.sandbox.Invoke(ctx, principal, node.Config.Tool, node.Config.Params)
}

// runDecision evaluates the node's condition, picks the matching out-edge,
// and blocks the rest. The decision's own output is the outcome label.
func (c *runController) runDecision(node graph.Node) (any, error) {
	label, err := c.conditions[node.ID].Eval(c.scope())
	if err != nil {
		return nil, err
	}

	edges := c.graph.OutEdges(node.ID)
	var selected, fallback *graph.Edge
	for i := range edges {
		e := &edges[i]
		if e.Label == "" {
			if fallback != nil {
				return nil, types.Errorf(types.ErrDecisionAmbiguous,
					"decision node %s has multiple default edges", node.ID)
			}
			fallback = e
			continue
		}
		if e.Label == label {
			if selected != nil {
				return nil, types.Errorf(types.ErrDecisionAmbiguous,
					"decision node %s has multiple edges labeled %q", node.ID, label)
			}
			selected = e
		}
	}
	if selected == nil {
		selected = fallback
	}
	if selected == nil {
		return nil, types.Errorf(types.ErrDecisionNoMatch,
			"decision node %s has no edge matching outcome %q and no default", node.ID, label)
	}

	c.blockOthers(node.ID, map[string]bool{selected.ID: true})
	c.logger.Debug("decision taken",
		zap.String("node_id", node.ID),
		zap.String("outcome", label),
		zap.String("edge", selected.ID),
	)
	return label, nil
}

// runBranch fans out. Parallel mode takes every out-edge; conditional mode
// takes the edges labeled by the first branch whose guard holds.
func (c *runController) runBranch(node graph.Node) (any, error) {
	if node.Config.BranchMode != graph.BranchConditional {
		return c.nodeInput(node.ID), nil
	}

	scope := c.scope()
	var chosen string
	found := false
	for _, g := range c.guards[node.ID] {
		if g.cond == nil {
			chosen, found = g.label, true
			break
		}
		holds, err := g.cond.Holds(scope)
		if err != nil {
			return nil, err
		}
		if holds {
			chosen, found = g.label, true
			break
		}
	}
	if !found {
		return nil, types.Errorf(types.ErrDecisionNoMatch,
			"branch node %s: no branch guard matched", node.ID)
	}

	keep := make(map[string]bool)
	for _, e := range c.graph.OutEdges(node.ID) {
		if e.Label == chosen {
			keep[e.ID] = true
		}
	}
	if len(keep) == 0 {
		return nil, types.Errorf(types.ErrDecisionNoMatch,
			"branch node %s: no edge labeled %q", node.ID, chosen)
	}
	c.blockOthers(node.ID, keep)
	return chosen, nil
}

func (c *runController) blockOthers(nodeID string, keep map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.graph.OutEdges(nodeID) {
		if !keep[e.ID] {
			c.blocked[e.ID] = true
		}
	}
}

// nodeInput assembles a node's input from its contributing predecessors: the
// run input for the entry node, the single predecessor's output, or a map of
// predecessor outputs for a join.
func (c *runController) nodeInput(nodeID string) any {
	c.mu.Lock()
	defer c.mu.Unlock()

	inEdges := c.graph.InEdges(nodeID)
	if len(inEdges) == 0 {
		return c.input
	}

	contributions := make(map[string]any)
	for _, e := range inEdges {
		src := c.outcomes[e.Source]
		if src.state == stateCompleted && !c.blocked[e.ID] {
			contributions[e.Source] = src.output
		}
	}
	if len(contributions) == 1 {
		for _, v := range contributions {
			return v
		}
	}
	return contributions
}

// scope builds the lookup map for condition evaluation: map-valued outputs
// contribute their fields, and node ids always win on collision.
func (c *runController) scope() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	scope := make(map[string]any, len(c.run.Outputs))
	for _, out := range c.run.Outputs {
		if m, ok := out.(map[string]any); ok {
			for k, v := range m {
				scope[k] = v
			}
		}
	}
	for nodeID, out := range c.run.Outputs {
		scope[nodeID] = out
	}
	return scope
}

func (c *runController) completeNode(ctx context.Context, node graph.Node, task *types.Task, out any) {
	c.mu.Lock()
	c.outcomes[node.ID].state = stateCompleted
	c.outcomes[node.ID].output = out
	c.run.Outputs[node.ID] = out
	c.completeTaskLocked(node.ID, out)
	c.saveRunLocked(ctx)
	c.mu.Unlock()

	c.eng.metrics.TaskFinished(string(types.TaskCompleted), string(node.Kind))
	c.logger.Debug("node completed", zap.String("node_id", node.ID), zap.String("kind", string(node.Kind)))
}

func (c *runController) failNode(ctx context.Context, node graph.Node, task *types.Task, err error) {
	var typed *types.Error
	if !errors.As(err, &typed) {
		typed = types.Errorf(types.ErrInternal, "node %s failed", node.ID).WithCause(err)
	}
	if typed.NodeID == "" {
		typed.NodeID = node.ID
	}

	c.mu.Lock()
	c.outcomes[node.ID].state = stateFailed
	c.outcomes[node.ID].err = typed
	c.failTaskLocked(ctx, node.ID, typed)
	c.mu.Unlock()

	c.eng.metrics.TaskFinished(string(types.TaskFailed), string(node.Kind))
	c.logger.Warn("node failed",
		zap.String("node_id", node.ID),
		zap.String("kind", string(node.Kind)),
		zap.String("code", string(types.GetErrorCode(typed))),
		zap.Error(typed),
	)
}

// abortNode marks a node cancelled when the run was cancelled mid-retry.
func (c *runController) abortNode(ctx context.Context, node graph.Node, task *types.Task) {
	c.mu.Lock()
	c.outcomes[node.ID].state = stateCancelledFailure
	now := time.Now()
	task.Status = types.TaskCancelled
	task.CompletedAt = &now
	c.saveTaskLocked(ctx, task)
	c.mu.Unlock()

	c.eng.metrics.TaskFinished(string(types.TaskCancelled), string(node.Kind))
}

// terminalOutcome decides the run's final status once nothing is pending.
func (c *runController) terminalOutcome() (types.RunStatus, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range c.graph.EndNodes() {
		if c.outcomes[id].state == stateCompleted {
			return types.RunCompleted, ""
		}
	}
	for _, id := range c.graph.NodeIDs() {
		oc := c.outcomes[id]
		if oc.state == stateFailed && oc.err != nil {
			return types.RunFailed, fmt.Sprintf("node %s: %s", id, oc.err.Error())
		}
	}
	return types.RunFailed, "no terminal node completed"
}

// finish writes the run's terminal state, cancelling any task still waiting.
func (c *runController) finish(ctx context.Context, status types.RunStatus, errMsg string, start time.Time) {
	c.mu.Lock()
	for _, id := range c.graph.NodeIDs() {
		oc := c.outcomes[id]
		if oc.state != stateWaitingHuman {
			continue
		}
		oc.state = stateCancelledFailure
		if task := c.tasks[id]; task != nil {
			now := time.Now()
			task.Status = types.TaskCancelled
			task.CompletedAt = &now
			c.saveTaskLocked(ctx, task)
		}
	}

	now := time.Now()
	c.run.Status = status
	c.run.Error = errMsg
	c.run.Frontier = nil
	c.run.CompletedAt = &now
	c.saveRunLocked(ctx)
	c.mu.Unlock()

	elapsed := time.Since(start)
	c.eng.metrics.RunFinished(string(status), elapsed)
	total := c.eng.ledger.TotalFor(c.run.ID)
	c.logger.Info("run finished",
		zap.String("status", string(status)),
		zap.Duration("elapsed", elapsed),
		zap.Int("tokens_used", total.TokensUsed),
		zap.Float64("cost_usd", total.CostUSD),
		zap.String("error", errMsg),
	)
}

// Task bookkeeping. All *Locked helpers require c.mu.

func (c *runController) startTask(ctx context.Context, nodeID string) *types.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	task := &types.Task{
		ID:        uuid.NewString(),
		RunID:     c.run.ID,
		NodeID:    nodeID,
		Status:    types.TaskRunning,
		StartedAt: time.Now(),
	}
	c.tasks[nodeID] = task
	c.saveTaskLocked(ctx, task)
	return task
}

func (c *runController) setTaskAttempt(ctx context.Context, task *types.Task, attempt int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	task.AttemptCount = attempt
	c.saveTaskLocked(ctx, task)
}

func (c *runController) setTaskStatus(ctx context.Context, task *types.Task, status types.TaskStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	task.Status = status
	c.saveTaskLocked(ctx, task)
}

func (c *runController) completeTaskLocked(nodeID string, out any) {
	task := c.tasks[nodeID]
	if task == nil {
		return
	}
	now := time.Now()
	spend := c.eng.ledger.TotalFor(task.ID)
	task.Status = types.TaskCompleted
	task.Output = out
	task.TokensUsed = spend.TokensUsed
	task.CostUSD = spend.CostUSD
	task.CompletedAt = &now
	c.eng.metrics.SpendRecorded(spend.TokensUsed, spend.CostUSD)
	c.saveTaskLocked(context.Background(), task)
}

func (c *runController) failTaskLocked(ctx context.Context, nodeID string, err *types.Error) {
	task := c.tasks[nodeID]
	if task == nil {
		return
	}
	now := time.Now()
	spend := c.eng.ledger.TotalFor(task.ID)
	task.Status = types.TaskFailed
	task.Error = err.Error()
	task.TokensUsed = spend.TokensUsed
	task.CostUSD = spend.CostUSD
	task.CompletedAt = &now
	c.eng.metrics.SpendRecorded(spend.TokensUsed, spend.CostUSD)
	c.saveTaskLocked(ctx, task)
}

func (c *runController) saveTaskLocked(ctx context.Context, task *types.Task) {
	if err := c.eng.store.SaveTask(ctx, task); err != nil {
		c.logger.Error("task save failed", zap.String("task_id", task.ID), zap.Error(err))
	}
}

func (c *runController) saveRunLocked(ctx context.Context) {
	if err := c.eng.store.SaveRun(ctx, c.run); err != nil {
		c.logger.Error("run save failed", zap.Error(err))
	}
}

func (c *runController) setRunStatus(ctx context.Context, status types.RunStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run.Status = status
	c.saveRunLocked(ctx)
}

func (c *runController) setFrontier(ctx context.Context, frontier []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run.Frontier = append([]string(nil), frontier...)
	c.saveRunLocked(ctx)
}

// stringifyInput renders a node input for an agent prompt.
func stringifyInput(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	}
}
