package graph

import (
	"github.com/flowforge-ai/flowforge/types"
)

// NodeKind identifies the handler a node is dispatched to.
type NodeKind string

const (
	// KindInput seeds the run with its initial input.
	KindInput NodeKind = "input"
	// KindAgent runs one agent conversation turn with tool access.
	KindAgent NodeKind = "agent"
	// KindDecision evaluates a condition and routes by edge label.
	KindDecision NodeKind = "decision"
	// KindAction invokes a single tool directly, without a model turn.
	KindAction NodeKind = "action"
	// KindHuman suspends the run until an external resume call.
	KindHuman NodeKind = "human"
	// KindBranch fans the frontier out to several targets.
	KindBranch NodeKind = "branch"
	// KindOutput collects its input as a run output.
	KindOutput NodeKind = "output"
)

// BranchMode selects how a branch node picks its targets.
type BranchMode string

const (
	// BranchParallel dispatches every declared branch simultaneously.
	BranchParallel BranchMode = "parallel"
	// BranchConditional dispatches the first branch whose guard passes.
	BranchConditional BranchMode = "conditional"
)

// BranchSpec declares one branch of a branch node. When is a condition
// expression evaluated in conditional mode; it is ignored in parallel mode.
type BranchSpec struct {
	Label string `json:"label" yaml:"label"`
	When  string `json:"when,omitempty" yaml:"when,omitempty"`
}

// NodeConfig carries the kind-specific settings of a node. Only the fields
// relevant to the node's kind are consulted by the engine.
type NodeConfig struct {
	// Agent nodes.
	AgentID      string         `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`
	Model        string         `json:"model,omitempty" yaml:"model,omitempty"`
	Instructions string         `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Tools        []string       `json:"tools,omitempty" yaml:"tools,omitempty"`
	Timeout      types.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxAttempts  int            `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`

	// Decision nodes.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// Action nodes.
	Tool   string         `json:"tool,omitempty" yaml:"tool,omitempty"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`

	// Human nodes.
	Assignee string `json:"assignee,omitempty" yaml:"assignee,omitempty"`

	// Branch nodes.
	BranchMode BranchMode   `json:"branch_mode,omitempty" yaml:"branch_mode,omitempty"`
	Branches   []BranchSpec `json:"branches,omitempty" yaml:"branches,omitempty"`
}

// Position is display-only canvas placement, ignored by the engine.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is a single workflow node.
type Node struct {
	ID       string     `json:"id" yaml:"id"`
	Kind     NodeKind   `json:"kind" yaml:"kind"`
	Config   NodeConfig `json:"config,omitempty" yaml:"config,omitempty"`
	Position Position   `json:"position,omitempty" yaml:"position,omitempty"`
}

// Edge is a directed connection between two nodes. Label is matched against
// a decision node's evaluated outcome; an unlabeled edge out of a decision
// node is the default branch.
type Edge struct {
	ID     string `json:"id" yaml:"id"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Label  string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Graph is the immutable workflow graph. Construction fails on duplicate
// ids, dangling edge endpoints, and self-loops; anything deeper (cycles,
// connectivity, entry/exit counts) is the validator's job.
type Graph struct {
	nodes map[string]Node
	order []string // node ids in insertion order, for stable iteration

	out map[string][]Edge // source id -> outgoing edges, insertion order
	in  map[string][]Edge // target id -> incoming edges
}

// New constructs a Graph from node and edge lists.
func New(nodes []Node, edges []Edge) (*Graph, error) {
	g := &Graph{
		nodes: make(map[string]Node, len(nodes)),
		order: make([]string, 0, len(nodes)),
		out:   make(map[string][]Edge),
		in:    make(map[string][]Edge),
	}

	for _, n := range nodes {
		if n.ID == "" {
			return nil, types.NewError(types.ErrGraphInvalid, "node with empty id")
		}
		if _, dup := g.nodes[n.ID]; dup {
			return nil, types.Errorf(types.ErrGraphInvalid, "duplicate node id %q", n.ID)
		}
		g.nodes[n.ID] = n
		g.order = append(g.order, n.ID)
	}

	seenEdges := make(map[string]struct{}, len(edges))
	for _, e := range edges {
		if e.ID != "" {
			if _, dup := seenEdges[e.ID]; dup {
				return nil, types.Errorf(types.ErrGraphInvalid, "duplicate edge id %q", e.ID)
			}
			seenEdges[e.ID] = struct{}{}
		}
		if e.Source == e.Target {
			return nil, types.Errorf(types.ErrGraphInvalid, "self-loop on node %q", e.Source)
		}
		if _, ok := g.nodes[e.Source]; !ok {
			return nil, types.Errorf(types.ErrGraphInvalid, "edge %s references unknown source node %q", e.ID, e.Source)
		}
		if _, ok := g.nodes[e.Target]; !ok {
			return nil, types.Errorf(types.ErrGraphInvalid, "edge %s references unknown target node %q", e.ID, e.Target)
		}
		g.out[e.Source] = append(g.out[e.Source], e)
		g.in[e.Target] = append(g.in[e.Target], e)
	}

	return g, nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	nodes := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, g.nodes[id])
	}
	return nodes
}

// NodeIDs returns all node ids in insertion order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, len(g.order))
	copy(ids, g.order)
	return ids
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Edges returns every edge in the graph.
func (g *Graph) Edges() []Edge {
	var edges []Edge
	for _, id := range g.order {
		edges = append(edges, g.out[id]...)
	}
	return edges
}

// OutEdges returns the outgoing edges of a node in declaration order.
func (g *Graph) OutEdges(id string) []Edge {
	return g.out[id]
}

// InEdges returns the incoming edges of a node.
func (g *Graph) InEdges(id string) []Edge {
	return g.in[id]
}

// Successors returns the ids of nodes directly reachable from id.
func (g *Graph) Successors(id string) []string {
	edges := g.out[id]
	succ := make([]string, 0, len(edges))
	for _, e := range edges {
		succ = append(succ, e.Target)
	}
	return succ
}

// Predecessors returns the ids of nodes with an edge into id.
func (g *Graph) Predecessors(id string) []string {
	edges := g.in[id]
	pred := make([]string, 0, len(edges))
	for _, e := range edges {
		pred = append(pred, e.Source)
	}
	return pred
}

// InDegree returns the number of incoming edges of id.
func (g *Graph) InDegree(id string) int {
	return len(g.in[id])
}

// OutDegree returns the number of outgoing edges of id.
func (g *Graph) OutDegree(id string) int {
	return len(g.out[id])
}

// EntryNodes returns the ids of nodes with in-degree zero, in insertion
// order. A valid workflow has exactly one.
func (g *Graph) EntryNodes() []string {
	var entries []string
	for _, id := range g.order {
		if len(g.in[id]) == 0 {
			entries = append(entries, id)
		}
	}
	return entries
}

// EndNodes returns the ids of nodes with out-degree zero.
func (g *Graph) EndNodes() []string {
	var ends []string
	for _, id := range g.order {
		if len(g.out[id]) == 0 {
			ends = append(ends, id)
		}
	}
	return ends
}
