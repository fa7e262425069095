package graph

import (
	"fmt"
	"time"

	"github.com/flowforge-ai/flowforge/types"
)

// Builder provides a fluent API for constructing workflow graphs in code.
// Construction problems surface once, from Build.
type Builder struct {
	nodes []*Node
	edges []Edge

	autoEdge int
}

// NewBuilder creates a new graph builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddNode adds a node of the given kind and returns a NodeBuilder for
// kind-specific configuration. Call Done to return to the graph builder.
func (b *Builder) AddNode(id string, kind NodeKind) *NodeBuilder {
	n := &Node{ID: id, Kind: kind}
	b.nodes = append(b.nodes, n)
	return &NodeBuilder{
		node:   n,
		parent: b,
	}
}

// Input adds an input node.
func (b *Builder) Input(id string) *Builder {
	return b.AddNode(id, KindInput).Done()
}

// Output adds an output node.
func (b *Builder) Output(id string) *Builder {
	return b.AddNode(id, KindOutput).Done()
}

// Connect adds an unlabeled edge from source to target.
func (b *Builder) Connect(source, target string) *Builder {
	return b.ConnectLabeled(source, target, "")
}

// ConnectLabeled adds a labeled edge from source to target. Labels route
// decision outcomes.
func (b *Builder) ConnectLabeled(source, target, label string) *Builder {
	b.autoEdge++
	b.edges = append(b.edges, Edge{
		ID:     fmt.Sprintf("e%d", b.autoEdge),
		Source: source,
		Target: target,
		Label:  label,
	})
	return b
}

// Build constructs the graph and runs full validation over it.
func (b *Builder) Build() (*Graph, error) {
	g, err := New(b.nodeList(), b.edges)
	if err != nil {
		return nil, err
	}
	if err := Validate(g).Err(); err != nil {
		return nil, err
	}
	return g, nil
}

// BuildUnchecked constructs the graph without running Validate. Useful for
// assembling deliberately malformed graphs in tests, or when validation is
// deferred to run start.
func (b *Builder) BuildUnchecked() (*Graph, error) {
	return New(b.nodeList(), b.edges)
}

func (b *Builder) nodeList() []Node {
	nodes := make([]Node, len(b.nodes))
	for i, n := range b.nodes {
		nodes[i] = *n
	}
	return nodes
}

// NodeBuilder configures a single node within a Builder chain.
type NodeBuilder struct {
	node   *Node
	parent *Builder
}

// WithAgent sets the agent reference and model for an agent node.
func (nb *NodeBuilder) WithAgent(agentID, model string) *NodeBuilder {
	nb.node.Config.AgentID = agentID
	nb.node.Config.Model = model
	return nb
}

// WithInstructions sets the agent node's system instructions.
func (nb *NodeBuilder) WithInstructions(instructions string) *NodeBuilder {
	nb.node.Config.Instructions = instructions
	return nb
}

// WithTools grants the agent node access to the named tools.
func (nb *NodeBuilder) WithTools(names ...string) *NodeBuilder {
	nb.node.Config.Tools = append(nb.node.Config.Tools, names...)
	return nb
}

// WithTimeout sets the node's execution timeout.
func (nb *NodeBuilder) WithTimeout(d time.Duration) *NodeBuilder {
	nb.node.Config.Timeout = types.Duration(d)
	return nb
}

// WithMaxAttempts overrides the engine's retry budget for this node.
func (nb *NodeBuilder) WithMaxAttempts(n int) *NodeBuilder {
	nb.node.Config.MaxAttempts = n
	return nb
}

// WithCondition sets a decision node's condition expression.
func (nb *NodeBuilder) WithCondition(expr string) *NodeBuilder {
	nb.node.Config.Condition = expr
	return nb
}

// WithTool sets an action node's tool name and call parameters.
func (nb *NodeBuilder) WithTool(name string, params map[string]any) *NodeBuilder {
	nb.node.Config.Tool = name
	nb.node.Config.Params = params
	return nb
}

// WithAssignee sets a human node's assignee.
func (nb *NodeBuilder) WithAssignee(assignee string) *NodeBuilder {
	nb.node.Config.Assignee = assignee
	return nb
}

// WithBranches sets a branch node's mode and branch declarations.
func (nb *NodeBuilder) WithBranches(mode BranchMode, branches ...BranchSpec) *NodeBuilder {
	nb.node.Config.BranchMode = mode
	nb.node.Config.Branches = branches
	return nb
}

// Done returns to the graph builder.
func (nb *NodeBuilder) Done() *Builder {
	return nb.parent
}
