package graph

import (
	"fmt"
	"strings"

	"github.com/flowforge-ai/flowforge/types"
)

// ValidationResult reports every structural problem found in a graph.
// Valid is true iff Errors is empty.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Err converts a failed result into a single WORKFLOW_INVALID error carrying
// the full message list. Returns nil when the result is valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return types.Errorf(types.ErrWorkflowInvalid, "workflow validation failed: %s", strings.Join(r.Errors, "; "))
}

// Validate runs all structural checks over the graph and collects every
// error instead of stopping at the first. It is a pure function; the engine
// calls it once at run start and refuses to execute on failure.
func Validate(g *Graph) ValidationResult {
	var errs []string

	entries := g.EntryNodes()
	switch {
	case len(entries) == 0 && g.Len() > 0:
		errs = append(errs, "workflow must have exactly one entry point (found 0)")
	case len(entries) == 0:
		errs = append(errs, "workflow must have exactly one entry point (graph is empty)")
	case len(entries) > 1:
		errs = append(errs, fmt.Sprintf("workflow must have exactly one entry point (found %d: %s)",
			len(entries), strings.Join(entries, ", ")))
	}

	if len(g.EndNodes()) == 0 && g.Len() > 0 {
		errs = append(errs, "workflow must have a terminal node")
	}

	errs = append(errs, findCycles(g)...)
	errs = append(errs, findDisconnected(g, entries)...)

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// dfs colors for cycle detection.
const (
	white = iota // unvisited
	gray         // on the active recursion stack
	black        // finished
)

// findCycles runs a colored DFS over every node and reports each back-edge
// as a cycle error naming the implicated node pair. Finished nodes are never
// revisited, which bounds the sweep at O(V+E).
func findCycles(g *Graph) []string {
	color := make(map[string]int, g.Len())
	var errs []string

	var visit func(id string)
	visit = func(id string) {
		color[id] = gray
		for _, next := range g.Successors(id) {
			switch color[next] {
			case white:
				visit(next)
			case gray:
				errs = append(errs, fmt.Sprintf("cycle detected involving nodes %q and %q", id, next))
			}
		}
		color[id] = black
	}

	for _, id := range g.NodeIDs() {
		if color[id] == white {
			visit(id)
		}
	}
	return errs
}

// findDisconnected collects the forward-reachable set from the entry and
// reports every node outside it. In an acyclic graph every reachable node
// also reaches an end node, so forward reachability is the whole check.
func findDisconnected(g *Graph, entries []string) []string {
	if len(entries) != 1 {
		// Without a unique entry there is no anchor for reachability; the
		// entry-count error already covers the graph.
		return nil
	}

	reachable := make(map[string]bool, g.Len())
	stack := []string{entries[0]}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reachable[id] {
			continue
		}
		reachable[id] = true
		stack = append(stack, g.Successors(id)...)
	}

	var orphans []string
	for _, id := range g.NodeIDs() {
		if !reachable[id] {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) == 0 {
		return nil
	}
	noun := "node"
	verb := "is"
	if len(orphans) > 1 {
		noun = "nodes"
		verb = "are"
	}
	return []string{fmt.Sprintf("%s %s %s disconnected from the entry point", noun, strings.Join(orphans, ", "), verb)}
}
