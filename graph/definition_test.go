package graph

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlWorkflow = `
name: support-triage
description: Route incoming tickets by sentiment.
version: 3
nodes:
  - id: in
    kind: input
  - id: classify
    kind: agent
    config:
      agent_id: classifier
      model: claude-3-5-haiku
      instructions: Classify ticket sentiment.
      timeout: 45s
  - id: route
    kind: decision
    config:
      condition: sentiment == "negative"
  - id: escalate
    kind: action
    config:
      tool: slack_post
      params:
        channel: "#support-escalations"
  - id: out
    kind: output
edges:
  - id: e1
    source: in
    target: classify
  - id: e2
    source: classify
    target: route
  - id: e3
    source: route
    target: escalate
    label: "yes"
  - id: e4
    source: route
    target: out
    label: "no"
  - id: e5
    source: escalate
    target: out
`

func TestParseDefinition_YAML(t *testing.T) {
	t.Parallel()

	def, err := ParseDefinition([]byte(yamlWorkflow))
	require.NoError(t, err)
	assert.Equal(t, "support-triage", def.Name)
	assert.Equal(t, 3, def.Version)
	assert.Len(t, def.Nodes, 5)
	assert.Len(t, def.Edges, 5)

	g, err := def.Graph()
	require.NoError(t, err)
	assert.True(t, Validate(g).Valid)

	n, ok := g.Node("classify")
	require.True(t, ok)
	assert.Equal(t, 45*time.Second, n.Config.Timeout.Std())
	assert.Equal(t, "claude-3-5-haiku", n.Config.Model)
}

func TestParseDefinition_JSON(t *testing.T) {
	t.Parallel()

	data := []byte(`{
		"name": "mini",
		"nodes": [
			{"id": "in", "kind": "input"},
			{"id": "out", "kind": "output"}
		],
		"edges": [
			{"id": "e1", "source": "in", "target": "out"}
		]
	}`)

	def, err := ParseDefinition(data)
	require.NoError(t, err)
	assert.Equal(t, "mini", def.Name)

	g, err := def.Graph()
	require.NoError(t, err)
	assert.True(t, Validate(g).Valid)
}

func TestParseDefinition_EmptyNodes(t *testing.T) {
	t.Parallel()

	_, err := ParseDefinition([]byte(`name: empty`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no nodes")
}

func TestLoadDefinition(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "wf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlWorkflow), 0o644))

	def, err := LoadDefinition(path)
	require.NoError(t, err)
	assert.Equal(t, "support-triage", def.Name)
}

func TestLoadDefinition_BadExtension(t *testing.T) {
	t.Parallel()

	_, err := LoadDefinition("workflow.toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported workflow file extension")
}

func TestDefinition_RoundTrip(t *testing.T) {
	t.Parallel()

	def, err := ParseDefinition([]byte(yamlWorkflow))
	require.NoError(t, err)

	data, err := def.MarshalIndent()
	require.NoError(t, err)

	back, err := ParseDefinition(data)
	require.NoError(t, err)
	assert.Equal(t, def.Name, back.Name)
	assert.Len(t, back.Nodes, len(def.Nodes))
	assert.Len(t, back.Edges, len(def.Edges))
}
