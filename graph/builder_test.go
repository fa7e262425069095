package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_LinearWorkflow(t *testing.T) {
	t.Parallel()

	g, err := NewBuilder().
		Input("in").
		AddNode("summarize", KindAgent).
		WithAgent("summarizer", "claude-3-5-sonnet").
		WithInstructions("Summarize the input in one paragraph.").
		WithTools("http_request").
		WithTimeout(30 * time.Second).
		Done().
		Output("out").
		Connect("in", "summarize").
		Connect("summarize", "out").
		Build()

	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())

	n, ok := g.Node("summarize")
	require.True(t, ok)
	assert.Equal(t, "summarizer", n.Config.AgentID)
	assert.Equal(t, "claude-3-5-sonnet", n.Config.Model)
	assert.Equal(t, []string{"http_request"}, n.Config.Tools)
	assert.Equal(t, 30*time.Second, n.Config.Timeout.Std())
}

func TestBuilder_DecisionWorkflow(t *testing.T) {
	t.Parallel()

	g, err := NewBuilder().
		Input("in").
		AddNode("check", KindDecision).WithCondition(`sentiment == "positive"`).Done().
		AddNode("thank", KindAction).WithTool("email_send", map[string]any{"to": "user"}).Done().
		AddNode("escalate", KindAction).WithTool("slack_post", nil).Done().
		Output("out").
		Connect("in", "check").
		ConnectLabeled("check", "thank", "yes").
		ConnectLabeled("check", "escalate", "no").
		Connect("thank", "out").
		Connect("escalate", "out").
		Build()

	require.NoError(t, err)

	edges := g.OutEdges("check")
	require.Len(t, edges, 2)
	assert.Equal(t, "yes", edges[0].Label)
	assert.Equal(t, "no", edges[1].Label)
}

func TestBuilder_BuildRunsValidation(t *testing.T) {
	t.Parallel()

	_, err := NewBuilder().
		Input("a").
		Input("b").
		Output("out").
		Connect("a", "out").
		Connect("b", "out").
		Build()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one entry point")
}

func TestBuilder_BuildUncheckedSkipsValidation(t *testing.T) {
	t.Parallel()

	// A two-node cycle fails Validate but is structurally constructible.
	g, err := NewBuilder().
		AddNode("a", KindAgent).Done().
		AddNode("b", KindAgent).Done().
		Connect("a", "b").
		Connect("b", "a").
		BuildUnchecked()

	require.NoError(t, err)
	assert.False(t, Validate(g).Valid)
}
