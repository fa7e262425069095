// Package engine walks a validated workflow graph, dispatching each node to
// its handler and maintaining run state.
//
// Execution proceeds in frontier waves: every dispatchable node runs
// concurrently under a bounded limit, then the next wave is computed from
// the newly terminal tasks. A node is dispatched only after all of its
// predecessors have recorded a terminal status; a fatally failed predecessor
// cascades a cancelled status downstream without aborting sibling branches.
//
// Human nodes suspend the run until an external Resume call. Retryable task
// errors are retried with exponential backoff; fatal errors fail the task
// immediately. An optional per-run cost cap stops runaway spend.
package engine
