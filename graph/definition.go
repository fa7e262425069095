package graph

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flowforge-ai/flowforge/types"
)

// Definition is the serialized form of a workflow: what authoring surfaces
// store and what the CLI loads from disk.
type Definition struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Version     int    `json:"version,omitempty" yaml:"version,omitempty"`
	Nodes       []Node `json:"nodes" yaml:"nodes"`
	Edges       []Edge `json:"edges" yaml:"edges"`
}

// Graph materializes the definition into an immutable Graph. It performs
// construction checks only; call Validate on the result before executing.
func (d *Definition) Graph() (*Graph, error) {
	return New(d.Nodes, d.Edges)
}

// ParseDefinition decodes a workflow definition from JSON or YAML. YAML is
// a superset of JSON here, so a single decoder path handles both.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, types.NewError(types.ErrWorkflowInvalid, "failed to parse workflow definition").WithCause(err)
	}
	if len(def.Nodes) == 0 {
		return nil, types.NewError(types.ErrWorkflowInvalid, "workflow definition has no nodes")
	}
	return &def, nil
}

// LoadDefinition reads and parses a workflow definition file. The extension
// is not consulted beyond a sanity check; content decides the format.
func LoadDefinition(path string) (*Definition, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
	default:
		return nil, types.Errorf(types.ErrWorkflowInvalid, "unsupported workflow file extension: %s", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.Errorf(types.ErrWorkflowInvalid, "failed to read workflow file %s", path).WithCause(err)
	}
	return ParseDefinition(data)
}

// MarshalIndent renders the definition as indented JSON, the storage format
// used for workflow versions.
func (d *Definition) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
